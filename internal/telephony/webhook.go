package telephony

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	twclient "github.com/twilio/twilio-go/client"
)

// TurnEvent is the part of a Twilio voice webhook the conversation needs.
type TurnEvent struct {
	CallSid string
	Speech  string
}

// ParseTurnEvent reads CallSid and SpeechResult from a webhook form.
func ParseTurnEvent(r *http.Request) (TurnEvent, error) {
	if err := r.ParseForm(); err != nil {
		return TurnEvent{}, fmt.Errorf("parse form: %w", err)
	}
	evt := TurnEvent{
		CallSid: r.PostFormValue("CallSid"),
		Speech:  r.PostFormValue("SpeechResult"),
	}
	if evt.CallSid == "" {
		return TurnEvent{}, fmt.Errorf("missing CallSid")
	}
	return evt, nil
}

// StatusEvent is a Twilio status callback.
type StatusEvent struct {
	CallSid    string
	CallStatus string
}

// ParseStatusEvent reads CallSid and CallStatus from a status callback form.
func ParseStatusEvent(r *http.Request) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, fmt.Errorf("parse form: %w", err)
	}
	evt := StatusEvent{
		CallSid:    r.PostFormValue("CallSid"),
		CallStatus: r.PostFormValue("CallStatus"),
	}
	if evt.CallSid == "" {
		return StatusEvent{}, fmt.Errorf("missing CallSid")
	}
	return evt, nil
}

// SignatureMiddleware rejects requests whose X-Twilio-Signature does not
// match. baseURL is the public origin Twilio was given.
func SignatureMiddleware(authToken, baseURL string, logger *slog.Logger) func(http.Handler) http.Handler {
	validator := twclient.NewRequestValidator(authToken)
	origin := strings.TrimRight(baseURL, "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			params := make(map[string]string, len(r.PostForm))
			for k, v := range r.PostForm {
				if len(v) > 0 {
					params[k] = v[0]
				}
			}
			url := origin + r.URL.RequestURI()
			if !validator.Validate(url, params, r.Header.Get("X-Twilio-Signature")) {
				logger.Warn("rejected webhook with bad signature", "path", r.URL.Path)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
