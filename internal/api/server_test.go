package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MikeSquared-Agency/dialer/internal/calls"
	"github.com/MikeSquared-Agency/dialer/internal/conversation"
	"github.com/MikeSquared-Agency/dialer/internal/metrics"
	"github.com/MikeSquared-Agency/dialer/internal/session"
	"github.com/MikeSquared-Agency/dialer/internal/telephony"
	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type echoEngine struct{}

func (echoEngine) GenerateReply(_ context.Context, t transcript.Transcript) (string, error) {
	return fmt.Sprintf("réponse %d", len(t)), nil
}

type urlSynth struct{}

func (urlSynth) Synthesize(_ context.Context, _, assetID string) (string, error) {
	return "https://dialer.example.com/public/" + assetID + ".mp3", nil
}

type fakeLauncher struct {
	to  string
	sid string
	err error
}

func (f *fakeLauncher) LaunchCall(_ context.Context, destination string) (string, error) {
	f.to = destination
	if f.err != nil {
		return "", f.err
	}
	return f.sid, nil
}

type fixture struct {
	srv      *Server
	store    *session.MemoryStore
	launcher *fakeLauncher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := session.NewMemoryStore()
	ctrl := conversation.New(conversation.DefaultConfig(), store, echoEngine{}, urlSynth{}, discardLogger())
	launcher := &fakeLauncher{sid: "CA-new"}
	opts = append([]Option{WithSessionCounter(store)}, opts...)
	srv := NewServer(3000, ctrl, launcher, telephony.NewRenderer(WebhookPath), discardLogger(), opts...)
	return &fixture{srv: srv, store: store, launcher: launcher}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.srv.router.ServeHTTP(w, req)
	return w
}

func formRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint_CountsActiveCalls(t *testing.T) {
	f := newFixture(t)
	f.do(formRequest(WebhookPath, url.Values{"CallSid": {"CA1"}}))

	w := f.do(httptest.NewRequest("GET", "/api/v1/dialer/status", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["agent"] != "dialer" {
		t.Errorf("expected agent dialer, got %v", body["agent"])
	}
	if body["active_calls"] != float64(1) {
		t.Errorf("expected 1 active call, got %v", body["active_calls"])
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(httptest.NewRequest("GET", "/nonexistent", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestWebhook_Conversation(t *testing.T) {
	f := newFixture(t)

	w := f.do(formRequest(WebhookPath, url.Values{"CallSid": {"CA1"}}))
	if w.Code != http.StatusOK {
		t.Fatalf("greeting: expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("expected text/xml, got %q", ct)
	}
	doc := w.Body.String()
	if !strings.Contains(doc, "<Play>https://dialer.example.com/public/CA1-01.mp3</Play>") || !strings.Contains(doc, "<Gather") {
		t.Errorf("unexpected greeting TwiML:\n%s", doc)
	}

	w = f.do(formRequest(WebhookPath, url.Values{"CallSid": {"CA1"}, "SpeechResult": {"Je suis intéressé"}}))
	if doc := w.Body.String(); !strings.Contains(doc, "<Gather") || strings.Contains(doc, "<Hangup") {
		t.Errorf("expected listening TwiML:\n%s", doc)
	}

	w = f.do(formRequest(WebhookPath, url.Values{"CallSid": {"CA1"}, "SpeechResult": {"merci beaucoup"}}))
	doc = w.Body.String()
	if !strings.Contains(doc, "<Hangup") || strings.Contains(doc, "<Gather") {
		t.Errorf("expected hangup TwiML:\n%s", doc)
	}
	if !strings.Contains(doc, conversation.DefaultClosingRemark) {
		t.Errorf("expected closing remark:\n%s", doc)
	}
	if f.store.Len() != 0 {
		t.Errorf("session should be gone, %d left", f.store.Len())
	}
}

func TestWebhook_MissingCallSid(t *testing.T) {
	f := newFixture(t)

	w := f.do(formRequest(WebhookPath, url.Values{"SpeechResult": {"allo"}}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestWebhook_RejectsUnsignedWhenValidating(t *testing.T) {
	f := newFixture(t, WithSignatureValidation("auth-token", "https://dialer.example.com"))

	w := f.do(formRequest(WebhookPath, url.Values{"CallSid": {"CA1"}}))

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if f.store.Len() != 0 {
		t.Error("rejected webhook must not open a session")
	}
}

func TestStatusCallback_TerminalDropsSession(t *testing.T) {
	f := newFixture(t)
	f.do(formRequest(WebhookPath, url.Values{"CallSid": {"CA1"}}))

	w := f.do(formRequest(StatusPath, url.Values{"CallSid": {"CA1"}, "CallStatus": {"ringing"}}))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if f.store.Len() != 1 {
		t.Fatal("non-terminal status must keep the session")
	}

	f.do(formRequest(StatusPath, url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}}))
	if f.store.Len() != 0 {
		t.Error("completed call should drop the session")
	}
}

func TestLaunch_JSON(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader(`{"to":"+33612345678"}`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["callSid"] != "CA-new" || body["message"] != "Appel lancé vers +33612345678" {
		t.Errorf("unexpected body: %v", body)
	}
	if f.launcher.to != "+33612345678" {
		t.Errorf("launcher got %q", f.launcher.to)
	}
}

func TestLaunch_Form(t *testing.T) {
	f := newFixture(t)

	w := f.do(formRequest("/call", url.Values{"to": {"+33612345678"}}))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.launcher.to != "+33612345678" {
		t.Errorf("launcher got %q", f.launcher.to)
	}
}

func TestLaunch_Errors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid number", fmt.Errorf("%w: %q", calls.ErrInvalidNumber, "abc"), http.StatusBadRequest},
		{"origination", &calls.OriginationError{To: "+33612345678", Err: fmt.Errorf("twilio 21215")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.launcher.err = tc.err

			w := f.do(formRequest("/call", url.Values{"to": {"+33612345678"}}))

			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
			var body map[string]string
			json.NewDecoder(w.Body).Decode(&body)
			if body["error"] == "" {
				t.Error("expected error message in body")
			}
		})
	}
}

func TestLaunch_BearerToken(t *testing.T) {
	f := newFixture(t, WithAPIToken("s3cr3t"))

	w := f.do(formRequest("/call", url.Values{"to": {"+33612345678"}}))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	req := formRequest("/call", url.Values{"to": {"+33612345678"}})
	req.Header.Set("Authorization", "Bearer s3cr3t")
	if w := f.do(req); w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}
}

func TestPublicAudio(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "CA1-01.mp3"), []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, WithAudioDir(dir))

	w := f.do(httptest.NewRequest("GET", "/public/CA1-01.mp3", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ID3" {
		t.Errorf("unexpected body %q", w.Body.String())
	}

	if err := os.WriteFile(filepath.Join(dir, ".partial-123"), []byte("ID"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "old"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/public/", "/public/.partial-123", "/public/old", "/public/old/", "/public/missing.mp3"} {
		w := f.do(httptest.NewRequest("GET", p, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", p, w.Code)
		}
		if strings.Contains(w.Body.String(), "CA1-01.mp3") {
			t.Errorf("GET %s leaked the asset list:\n%s", p, w.Body.String())
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Turn("greeting")
	f := newFixture(t, WithMetrics(reg))

	w := f.do(httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "dialer_turns_total") {
		t.Errorf("expected dialer metrics:\n%s", w.Body.String())
	}
}
