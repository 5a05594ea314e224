package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/dialer/internal/calls"
	"github.com/MikeSquared-Agency/dialer/internal/conversation"
	"github.com/MikeSquared-Agency/dialer/internal/speech"
	"github.com/MikeSquared-Agency/dialer/internal/telephony"
)

const (
	WebhookPath = "/twilio-webhook"
	StatusPath  = "/twilio-status"
)

// fallbackTwiML is served when a response cannot be rendered at all.
const fallbackTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Say voice="Polly.Celine" language="fr-FR">Désolé, une erreur est survenue. Au revoir.</Say><Hangup/></Response>`

// Conversation drives a call from its webhooks.
type Conversation interface {
	HandleTurn(ctx context.Context, callID, speech string) (conversation.VoiceResponse, error)
	Hangup(ctx context.Context, callID string) (bool, error)
}

type Launcher interface {
	LaunchCall(ctx context.Context, destination string) (string, error)
}

// SessionCounter is implemented by stores that can count open calls.
type SessionCounter interface {
	Len() int
}

type Server struct {
	router   *chi.Mux
	port     int
	conv     Conversation
	launcher Launcher
	renderer *telephony.Renderer
	logger   *slog.Logger
	httpSrv  *http.Server

	audioDir   string
	gatherer   prometheus.Gatherer
	sessions   SessionCounter
	apiToken   string
	authToken  string
	publicBase string
}

type Option func(*Server)

// WithAudioDir serves synthesized audio from dir under /public.
func WithAudioDir(dir string) Option {
	return func(s *Server) { s.audioDir = dir }
}

func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithSessionCounter(c SessionCounter) Option {
	return func(s *Server) { s.sessions = c }
}

// WithAPIToken requires a bearer token on POST /call.
func WithAPIToken(token string) Option {
	return func(s *Server) { s.apiToken = token }
}

// WithSignatureValidation rejects Twilio webhooks that are not signed with
// authToken. baseURL is the public origin the webhooks were registered with.
func WithSignatureValidation(authToken, baseURL string) Option {
	return func(s *Server) {
		s.authToken = authToken
		s.publicBase = baseURL
	}
}

func NewServer(port int, conv Conversation, launcher Launcher, renderer *telephony.Renderer, logger *slog.Logger, opts ...Option) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		conv:     conv,
		launcher: launcher,
		renderer: renderer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/dialer/status", s.status)

	router.Group(func(r chi.Router) {
		if s.authToken != "" {
			r.Use(telephony.SignatureMiddleware(s.authToken, s.publicBase, logger))
		}
		r.Post(WebhookPath, s.webhook)
		r.Post(StatusPath, s.callStatus)
	})

	router.Group(func(r chi.Router) {
		if s.apiToken != "" {
			r.Use(BearerAuthMiddleware(s.apiToken))
		}
		r.Post("/call", s.launch)
	})

	if s.audioDir != "" {
		router.Handle(speech.PublicPath+"/*", http.StripPrefix(speech.PublicPath, audioFiles(s.audioDir)))
	}
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// BearerAuthMiddleware rejects requests without "Authorization: Bearer <token>".
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || got != token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// audioFiles serves the files of dir. Directories and dotfiles, including
// in-progress synthesis output, are reported as not found.
func audioFiles(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") || strings.Contains(name, "/.") {
			http.NotFound(w, r)
			return
		}
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"agent":  "dialer",
		"status": "ready",
	}
	if s.sessions != nil {
		body["active_calls"] = s.sessions.Len()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	evt, err := telephony.ParseTurnEvent(r)
	if err != nil {
		s.logger.Warn("invalid webhook", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp, err := s.conv.HandleTurn(r.Context(), evt.CallSid, evt.Speech)
	if err != nil {
		s.logger.Error("turn handled with error", "call_sid", evt.CallSid, "error", err)
	}

	doc, err := s.renderer.Render(resp)
	if err != nil {
		s.logger.Error("failed to render response", "call_sid", evt.CallSid, "error", err)
		doc = fallbackTwiML
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, doc)
}

func (s *Server) callStatus(w http.ResponseWriter, r *http.Request) {
	evt, err := telephony.ParseStatusEvent(r)
	if err != nil {
		s.logger.Warn("invalid status callback", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if telephony.IsTerminal(evt.CallStatus) {
		open, err := s.conv.Hangup(r.Context(), evt.CallSid)
		if err != nil {
			s.logger.Error("failed to close session", "call_sid", evt.CallSid, "error", err)
		} else if open {
			s.logger.Info("caller hung up", "call_sid", evt.CallSid, "status", evt.CallStatus)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type launchRequest struct {
	To string `json:"to"`
}

func (s *Server) launch(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
	} else {
		req.To = r.FormValue("to")
	}

	callSid, err := s.launcher.LaunchCall(r.Context(), req.To)
	switch {
	case errors.Is(err, calls.ErrInvalidNumber):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Appel lancé vers " + req.To,
		"callSid": callSid,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
