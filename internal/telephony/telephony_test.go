package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/dialer/internal/conversation"
)

func mustRender(t *testing.T, resp conversation.VoiceResponse) string {
	t.Helper()
	doc, err := NewRenderer("/twilio-webhook").Render(resp)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return doc
}

func assertContains(t *testing.T, doc string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(doc, p) {
			t.Errorf("expected TwiML to contain %q:\n%s", p, doc)
		}
	}
}

func TestRender_ListeningWithAudio(t *testing.T) {
	doc := mustRender(t, conversation.VoiceResponse{
		AudioURL:          "https://dialer.example.com/public/CA1-01.mp3",
		ContinueListening: true,
	})

	assertContains(t, doc,
		"<Response>",
		"<Play>https://dialer.example.com/public/CA1-01.mp3</Play>",
		"<Gather",
		`input="speech"`,
		`action="/twilio-webhook"`,
		`method="POST"`,
		`language="fr-FR"`,
		DefaultListeningPrompt,
	)
	if strings.Contains(doc, "<Hangup") {
		t.Errorf("listening response must not hang up:\n%s", doc)
	}
}

func TestRender_FallbackSpeech(t *testing.T) {
	doc := mustRender(t, conversation.VoiceResponse{
		FallbackText:      "Bonjour",
		ContinueListening: true,
	})

	assertContains(t, doc, "Bonjour", `voice="Polly.Celine"`)
	if strings.Contains(doc, "<Play") {
		t.Errorf("fallback response must not play audio:\n%s", doc)
	}
}

func TestRender_EndCallWithClosing(t *testing.T) {
	doc := mustRender(t, conversation.VoiceResponse{
		AudioURL:    "https://dialer.example.com/public/CA1-05.mp3",
		ClosingText: "Merci pour votre temps. Au revoir !",
		EndCall:     true,
	})

	assertContains(t, doc, "<Play>", "Merci pour votre temps. Au revoir !", "<Hangup")
	if strings.Contains(doc, "<Gather") {
		t.Errorf("final response must not gather:\n%s", doc)
	}
	if strings.Index(doc, "<Play>") > strings.Index(doc, "Merci pour votre temps") {
		t.Errorf("closing remark must follow the reply:\n%s", doc)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{"completed", "busy", "failed", "no-answer", "canceled"} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []string{"queued", "ringing", "in-progress", ""} {
		if IsTerminal(s) {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestParseTurnEvent(t *testing.T) {
	evt, err := ParseTurnEvent(formRequest("/twilio-webhook", url.Values{
		"CallSid":      {"CA1"},
		"SpeechResult": {"Je suis intéressé"},
	}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if evt.CallSid != "CA1" || evt.Speech != "Je suis intéressé" {
		t.Errorf("unexpected event %+v", evt)
	}

	if _, err := ParseTurnEvent(formRequest("/twilio-webhook", url.Values{"SpeechResult": {"x"}})); err == nil {
		t.Error("expected error without CallSid")
	}
}

func TestParseStatusEvent(t *testing.T) {
	evt, err := ParseStatusEvent(formRequest("/twilio-status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"completed"},
	}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if evt.CallStatus != "completed" {
		t.Errorf("unexpected event %+v", evt)
	}
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(fullURL)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := SignatureMiddleware("auth-token", "https://dialer.example.com/", logger)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	form := url.Values{"CallSid": {"CA1"}, "SpeechResult": {"oui"}}

	req := formRequest("/twilio-webhook", form)
	req.Header.Set("X-Twilio-Signature", sign("auth-token", "https://dialer.example.com/twilio-webhook", form))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected valid signature to pass, got %d", w.Code)
	}

	req = formRequest("/twilio-webhook", form)
	req.Header.Set("X-Twilio-Signature", sign("wrong-token", "https://dialer.example.com/twilio-webhook", form))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected bad signature to be rejected, got %d", w.Code)
	}
}
