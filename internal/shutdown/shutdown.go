// Package shutdown implements the double-signal shutdown handler: the
// first SIGINT/SIGTERM requests a graceful drain, the second calls
// os.Exit(1) immediately.
package shutdown

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler installs a signal handler that closes Done() on the first
// SIGINT/SIGTERM and calls os.Exit(1) on the second.
type Handler struct {
	mu      sync.Mutex
	done    chan struct{}
	closed  bool
	logger  *slog.Logger
	sigChan chan os.Signal
}

// Install registers the OS signal handler and returns a Handler whose
// Done() channel closes on first signal.
func Install(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		done:    make(chan struct{}),
		logger:  logger,
		sigChan: make(chan os.Signal, 2),
	}
	signal.Notify(h.sigChan, syscall.SIGINT, syscall.SIGTERM)
	go h.watch()
	return h
}

func (h *Handler) watch() {
	<-h.sigChan
	h.logger.Info("shutdown requested, draining in-flight work")
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
	h.mu.Unlock()

	<-h.sigChan
	h.logger.Warn("second signal received, forcing exit")
	os.Exit(1)
}

// Done returns a channel that closes when the first shutdown signal
// arrives.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Stop deregisters the signal handler (test/diagnostic use).
func (h *Handler) Stop() {
	signal.Stop(h.sigChan)
}
