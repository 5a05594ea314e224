package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesize_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/voice-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != outputFormat {
			t.Errorf("expected output format %s, got %q", outputFormat, r.URL.Query().Get("output_format"))
		}
		if r.Header.Get("xi-api-key") != "xi-test" {
			t.Errorf("expected api key header, got %q", r.Header.Get("xi-api-key"))
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Text != "Bonjour" || req.ModelID != DefaultModel {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-fake-mp3"))
	}))
	defer server.Close()

	c := NewClient("xi-test", "voice-1", "")
	c.SetTestTransport(server.URL)

	rc, err := c.Synthesize(context.Background(), "Bonjour")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	audio, _ := io.ReadAll(rc)
	if string(audio) != "ID3-fake-mp3" {
		t.Errorf("unexpected audio %q", audio)
	}
}

func TestSynthesize_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`))
	}))
	defer server.Close()

	c := NewClient("bad", "", "")
	c.SetTestTransport(server.URL)

	if _, err := c.Synthesize(context.Background(), "Bonjour"); err == nil {
		t.Fatal("expected error for API error response")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	c := NewClient("xi-test", "", "")
	if _, err := c.Synthesize(context.Background(), ""); !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("k", "", "")
	if c.voiceID != DefaultVoice || c.model != DefaultModel {
		t.Errorf("expected defaults, got voice=%q model=%q", c.voiceID, c.model)
	}
}
