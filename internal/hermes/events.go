package hermes

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/dialer/internal/conversation"
	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

const (
	SubjectCallLaunched  = "dialer.call.launched"
	SubjectCallStarted   = "dialer.call.started"
	SubjectCallEnded     = "dialer.call.ended"
	SubjectLeadQualified = "dialer.lead.qualified"
	// SubjectLaunchCommand carries {"to": "+33..."} requests from campaign tooling.
	SubjectLaunchCommand = "dialer.call.launch"
)

type CallLaunchedEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	CallSid    string    `json:"call_sid"`
	To         string    `json:"to"`
	LaunchedAt time.Time `json:"launched_at"`
}

type CallStartedEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	CallSid   string    `json:"call_sid"`
	StartedAt time.Time `json:"started_at"`
}

// CallEndedEvent carries the final transcript of a conversation.
type CallEndedEvent struct {
	EventID    uuid.UUID             `json:"event_id"`
	CallSid    string                `json:"call_sid"`
	Reason     string                `json:"reason"`
	Transcript transcript.Transcript `json:"transcript"`
	EndedAt    time.Time             `json:"ended_at"`
}

type publisher interface {
	Publish(subject string, data any) error
}

// CallEvents publishes call lifecycle events. Publish failures are logged;
// they never affect the call.
type CallEvents struct {
	pub    publisher
	logger *slog.Logger
}

func NewCallEvents(pub publisher, logger *slog.Logger) *CallEvents {
	return &CallEvents{pub: pub, logger: logger}
}

func (e *CallEvents) CallLaunched(_ context.Context, callID, to string) {
	e.publish(SubjectCallLaunched, CallLaunchedEvent{
		EventID:    uuid.New(),
		CallSid:    callID,
		To:         to,
		LaunchedAt: time.Now().UTC(),
	})
}

func (e *CallEvents) CallStarted(_ context.Context, callID string) {
	e.publish(SubjectCallStarted, CallStartedEvent{
		EventID:   uuid.New(),
		CallSid:   callID,
		StartedAt: time.Now().UTC(),
	})
}

func (e *CallEvents) CallEnded(_ context.Context, callID string, reason conversation.EndReason, t transcript.Transcript) {
	e.publish(SubjectCallEnded, CallEndedEvent{
		EventID:    uuid.New(),
		CallSid:    callID,
		Reason:     string(reason),
		Transcript: t,
		EndedAt:    time.Now().UTC(),
	})
}

func (e *CallEvents) publish(subject string, evt any) {
	if err := e.pub.Publish(subject, evt); err != nil {
		e.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}
