package triggers

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

// maxWebhookBodyBytes is the 1 MiB request body ceiling.
const maxWebhookBodyBytes = 1 << 20

// WebhookDriver binds a loopback-only HTTP listener accepting exactly one
// configured path/method, rate-limited via a token bucket and
// authenticated via an HMAC-SHA256 signature.
type WebhookDriver struct {
	cfg     role.WebhookTrigger
	handler bus.Handler
	logger  *slog.Logger

	secret  string
	limiter *rate.Limiter
	server  *http.Server
}

// NewWebhookDriver builds a WebhookDriver, auto-generating a
// cryptographically random secret when cfg.Secret is empty. Since the
// secret is always populated one way or the other, HMAC verification
// always runs; there is no unauthenticated mode.
func NewWebhookDriver(cfg role.WebhookTrigger, handler bus.Handler, logger *slog.Logger) (*WebhookDriver, error) {
	secret := cfg.Secret
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate webhook secret: %w", err)
		}
		secret = generated
		logger.Info("webhook: auto-generated secret", slog.String("path", cfg.Path))
	}

	rpm := cfg.RateLimitRPM
	if rpm <= 0 {
		rpm = 60
	}
	ratePerSecond := float64(rpm) / 60
	burst := rpm / 6
	if burst < 1 {
		burst = 1
	}

	return &WebhookDriver{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		secret:  secret,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (d *WebhookDriver) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(d.cfg.Path, d.handleRequest)

	addr := fmt.Sprintf("127.0.0.1:%d", d.cfg.Port)
	d.server = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind webhook listener on %s: %w", addr, err)
	}

	go func() {
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			d.logger.Error("webhook: server exited", slog.Any("error", err))
		}
	}()

	return nil
}

func (d *WebhookDriver) Stop() error {
	if d.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.server.Shutdown(ctx)
}

func (d *WebhookDriver) handleRequest(w http.ResponseWriter, r *http.Request) {
	method := d.cfg.Method
	if method == "" {
		method = "POST"
	}
	if r.Method != method {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if cl := r.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > maxWebhookBodyBytes {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxWebhookBodyBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	if !d.limiter.Allow() {
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if !d.verifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
		writeJSONError(w, http.StatusForbidden, "signature verification failed")
		return
	}

	prompt := decodeBody(body)
	d.handler(bus.TriggerEvent{
		TriggerType: bus.TriggerWebhook,
		Prompt:      prompt,
		Timestamp:   time.Now().UTC(),
		Metadata:    map[string]string{"path": d.cfg.Path},
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (d *WebhookDriver) verifySignature(header string, body []byte) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	given, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(d.secret))
	mac.Write(body)
	want := mac.Sum(nil)

	return hmac.Equal(given, want)
}

func decodeBody(body []byte) string {
	return strings.ToValidUTF8(string(body), "�")
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
