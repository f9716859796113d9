package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

// FileWatchDriver emits an event for each debounced filesystem change under
// its configured paths, optionally sweeping existing files at startup.
type FileWatchDriver struct {
	cfg     role.FileWatchTrigger
	handler bus.Handler
	logger  *slog.Logger

	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// NewFileWatchDriver builds a FileWatchDriver; the fsnotify watcher itself
// is created lazily in Start so a build failure here never blocks other
// drivers from starting.
func NewFileWatchDriver(cfg role.FileWatchTrigger, handler bus.Handler, logger *slog.Logger) (*FileWatchDriver, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("file_watch trigger requires at least one path")
	}
	return &FileWatchDriver{cfg: cfg, handler: handler, logger: logger}, nil
}

func (d *FileWatchDriver) Start(_ context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	for _, p := range d.cfg.Paths {
		if err := watcher.Add(p); err != nil {
			watcher.Close()
			return fmt.Errorf("watch path %s: %w", p, err)
		}
	}
	d.watcher = watcher
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go func() {
		if d.cfg.ProcessExisting && !d.sweepExisting() {
			close(d.done)
			return
		}
		d.run()
	}()
	return nil
}

func (d *FileWatchDriver) Stop() error {
	close(d.stop)
	if d.watcher != nil {
		d.watcher.Close()
	}
	<-d.done
	return nil
}

// sweepExisting emits one event per existing regular file under each
// configured path, sorted, honoring the stop flag between files and the
// same extension filter as the live watch loop. Returns false if stopped
// mid-sweep.
func (d *FileWatchDriver) sweepExisting() bool {
	var files []string
	for _, root := range d.cfg.Paths {
		entries, err := os.ReadDir(root)
		if err != nil {
			d.logger.Warn("file_watch: existing sweep failed to read dir", slog.String("path", root), slog.Any("error", err))
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			files = append(files, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(files)

	for _, path := range files {
		select {
		case <-d.stop:
			return false
		default:
		}
		if !d.matchesExtension(path) {
			continue
		}
		d.emit(path)
	}
	return true
}

func (d *FileWatchDriver) run() {
	defer close(d.done)

	var debounceTimer *time.Timer
	pending := make(map[string]struct{})
	var mu sync.Mutex

	debounce := time.Duration(d.cfg.DebounceSeconds * float64(time.Second))
	if debounce <= 0 {
		debounce = time.Second
	}

	// fire emits one event per distinct path that changed during the
	// debounce window, so two different files changing within the same
	// window each get their own event rather than the last write winning.
	fire := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})
		mu.Unlock()

		sort.Strings(paths)
		for _, p := range paths {
			d.emit(p)
		}
	}

	for {
		select {
		case <-d.stop:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !d.matchesExtension(event.Name) {
				continue
			}
			mu.Lock()
			pending[event.Name] = struct{}{}
			mu.Unlock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, fire)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("file_watch: watcher error", slog.Any("error", err))
		}
	}
}

func (d *FileWatchDriver) matchesExtension(path string) bool {
	if len(d.cfg.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range d.cfg.Extensions {
		if !strings.HasPrefix(allowed, ".") {
			allowed = "." + allowed
		}
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

func (d *FileWatchDriver) emit(path string) {
	prompt := strings.ReplaceAll(d.cfg.PromptTemplate, "{path}", path)
	d.handler(bus.TriggerEvent{
		TriggerType: bus.TriggerFileWatch,
		Prompt:      prompt,
		Timestamp:   time.Now().UTC(),
		Metadata:    map[string]string{"path": path},
	})
}
