package triggers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 10}))
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifySignature(t *testing.T) {
	d, err := NewWebhookDriver(role.WebhookTrigger{Secret: "shh", Path: "/hook", RateLimitRPM: 600}, func(bus.TriggerEvent) {}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	body := []byte(`{"hello":"world"}`)
	good := sign("shh", body)
	if !d.verifySignature(good, body) {
		t.Error("verifySignature() = false, want true for matching signature")
	}

	bad := sign("wrong-secret", body)
	if d.verifySignature(bad, body) {
		t.Error("verifySignature() = true, want false for mismatched secret")
	}

	if d.verifySignature("not-even-prefixed", body) {
		t.Error("verifySignature() should reject a header without the sha256= prefix")
	}
}

func TestWebhookAutoGeneratesSecretWhenUnset(t *testing.T) {
	d, err := NewWebhookDriver(role.WebhookTrigger{Path: "/hook", RateLimitRPM: 60}, func(bus.TriggerEvent) {}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if d.secret == "" {
		t.Error("expected an auto-generated secret when cfg.Secret is empty")
	}
}

func TestWebhookHandleRequestEndToEnd(t *testing.T) {
	var got bus.TriggerEvent
	received := make(chan struct{}, 1)
	d, err := NewWebhookDriver(role.WebhookTrigger{Secret: "shh", Path: "/hook", Method: "POST", RateLimitRPM: 600}, func(e bus.TriggerEvent) {
		got = e
		received <- struct{}{}
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	body := []byte("hello from the webhook")
	req := httptest.NewRequest("POST", "/hook", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", sign("shh", body))
	rec := httptest.NewRecorder()

	d.handleRequest(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("handler did not invoke the bus.Handler")
	}
	if got.TriggerType != bus.TriggerWebhook {
		t.Errorf("TriggerType = %q, want %q", got.TriggerType, bus.TriggerWebhook)
	}
	if got.Prompt != string(body) {
		t.Errorf("Prompt = %q, want %q", got.Prompt, string(body))
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	called := false
	d, err := NewWebhookDriver(role.WebhookTrigger{Secret: "shh", Path: "/hook", Method: "POST", RateLimitRPM: 600}, func(bus.TriggerEvent) {
		called = true
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	body := []byte("hello")
	req := httptest.NewRequest("POST", "/hook", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", sign("wrong", body))
	rec := httptest.NewRecorder()

	d.handleRequest(rec, req)

	if rec.Code != 403 {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if called {
		t.Error("handler must not invoke bus.Handler on signature failure")
	}
}

func TestWebhookRejectsOversizedContentLength(t *testing.T) {
	d, err := NewWebhookDriver(role.WebhookTrigger{Secret: "shh", Path: "/hook", Method: "POST", RateLimitRPM: 600}, func(bus.TriggerEvent) {}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/hook", strings.NewReader("x"))
	req.ContentLength = maxWebhookBodyBytes + 1
	req.Header.Set("Content-Length", "1048577")
	rec := httptest.NewRecorder()

	d.handleRequest(rec, req)

	if rec.Code != 413 {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestWebhookRateLimit(t *testing.T) {
	count := 0
	d, err := NewWebhookDriver(role.WebhookTrigger{Secret: "shh", Path: "/hook", Method: "POST", RateLimitRPM: 6}, func(bus.TriggerEvent) {
		count++
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	body := []byte("x")
	sig := sign("shh", body)
	var lastCode int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/hook", strings.NewReader(string(body)))
		req.Header.Set("X-Hub-Signature-256", sig)
		rec := httptest.NewRecorder()
		d.handleRequest(rec, req)
		lastCode = rec.Code
	}
	if lastCode != 429 {
		t.Errorf("after exceeding burst, last status = %d, want 429", lastCode)
	}
}
