// Package calls starts outbound prospecting calls.
package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/dialer/internal/metrics"
)

var (
	ErrOriginationFailed = errors.New("call origination failed")
	ErrInvalidNumber     = errors.New("destination must be an E.164 number")
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// OriginationError carries the telephony provider's failure detail.
type OriginationError struct {
	To  string
	Err error
}

func (e *OriginationError) Error() string {
	return fmt.Sprintf("call to %s: %v", e.To, e.Err)
}

func (e *OriginationError) Unwrap() error { return e.Err }

func (e *OriginationError) Is(target error) bool { return target == ErrOriginationFailed }

// Originator places a call that fetches its instructions from webhookURL.
type Originator interface {
	Originate(ctx context.Context, to, webhookURL, statusURL string) (string, error)
}

// Notifier is told about every call that was placed.
type Notifier interface {
	CallLaunched(ctx context.Context, callID, to string)
}

type Launcher struct {
	originator Originator
	webhookURL string
	statusURL  string
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewLauncher(o Originator, webhookURL, statusURL string, n Notifier, m *metrics.Metrics, logger *slog.Logger) *Launcher {
	return &Launcher{
		originator: o,
		webhookURL: webhookURL,
		statusURL:  statusURL,
		notifier:   n,
		metrics:    m,
		logger:     logger,
	}
}

// NormalizeNumber strips formatting characters from a phone number and
// checks it is E.164.
func NormalizeNumber(raw string) (string, error) {
	n := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, raw)
	if !e164.MatchString(n) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	return n, nil
}

// LaunchCall dials destination and returns the provider's call id.
// Failures are returned as *OriginationError and never retried.
func (l *Launcher) LaunchCall(ctx context.Context, destination string) (string, error) {
	to, err := NormalizeNumber(destination)
	if err != nil {
		return "", err
	}

	callID, err := l.originator.Originate(ctx, to, l.webhookURL, l.statusURL)
	if err != nil {
		l.metrics.Launched(false)
		l.logger.Error("call origination failed", "to", to, "error", err)
		return "", &OriginationError{To: to, Err: err}
	}

	l.metrics.Launched(true)
	l.logger.Info("call launched", "to", to, "call_sid", callID)
	if l.notifier != nil {
		l.notifier.CallLaunched(ctx, callID, to)
	}
	return callID, nil
}

// LaunchRequest is the payload of a launch command received over NATS.
type LaunchRequest struct {
	To string `json:"to"`
}

// HandleLaunchRequest is the NATS handler for launch commands published by
// campaign tooling.
func (l *Launcher) HandleLaunchRequest(subject string, data []byte) {
	var req LaunchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		l.logger.Error("failed to parse launch request", "subject", subject, "error", err)
		return
	}
	if _, err := l.LaunchCall(context.Background(), req.To); err != nil {
		l.logger.Warn("launch request failed", "subject", subject, "to", req.To, "error", err)
	}
}
