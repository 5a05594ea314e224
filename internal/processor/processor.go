// Package processor is the post-call pipeline: it archives finished calls,
// qualifies the prospect and tells the sales team.
package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/dialer/internal/hermes"
	"github.com/MikeSquared-Agency/dialer/internal/qualifier"
	"github.com/MikeSquared-Agency/dialer/internal/slack"
	"github.com/MikeSquared-Agency/dialer/internal/store"
	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

// Archive is the call ledger.
type Archive interface {
	RecordLaunch(ctx context.Context, callSid, destination string, at time.Time) error
	RecordOutcome(ctx context.Context, callSid, reason string, t transcript.Transcript, at time.Time) error
	GetCall(ctx context.Context, callSid string) (*store.CallRow, error)
	WriteQualification(ctx context.Context, callSid string, q qualifier.Qualification) (uuid.UUID, error)
}

// Summarizer posts finished calls for humans.
type Summarizer interface {
	PostCallSummary(ctx context.Context, summary slack.CallSummary) (string, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

// LeadQualifiedEvent is published for every qualified call.
type LeadQualifiedEvent struct {
	EventID         uuid.UUID               `json:"event_id"`
	CallSid         string                  `json:"call_sid"`
	Destination     string                  `json:"destination,omitempty"`
	QualificationID uuid.UUID               `json:"qualification_id"`
	Qualification   qualifier.Qualification `json:"qualification"`
}

// Processor consumes call lifecycle events. Every dependency is optional:
// a nil archive skips persistence, a nil qualifier skips qualification,
// a nil summarizer skips Slack.
type Processor struct {
	archive   Archive
	qualifier *qualifier.Qualifier
	slack     Summarizer
	pub       Publisher
	logger    *slog.Logger
}

func New(a Archive, q *qualifier.Qualifier, s Summarizer, pub Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		archive:   a,
		qualifier: q,
		slack:     s,
		pub:       pub,
		logger:    logger,
	}
}

// HandleCallLaunched is the NATS handler for dialer.call.launched.
func (p *Processor) HandleCallLaunched(subject string, data []byte) {
	var evt hermes.CallLaunchedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse launch event", "error", err)
		return
	}
	if p.archive == nil {
		return
	}
	if err := p.archive.RecordLaunch(context.Background(), evt.CallSid, evt.To, evt.LaunchedAt); err != nil {
		p.logger.Error("failed to record launch", "call_sid", evt.CallSid, "error", err)
	}
}

// HandleCallEnded is the NATS handler for dialer.call.ended.
func (p *Processor) HandleCallEnded(subject string, data []byte) {
	ctx := context.Background()

	var evt hermes.CallEndedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse call ended event", "error", err)
		return
	}

	p.logger.Info("processing finished call",
		"call_sid", evt.CallSid,
		"reason", evt.Reason,
		"turns", len(evt.Transcript),
	)

	var destination string
	if p.archive != nil {
		if err := p.archive.RecordOutcome(ctx, evt.CallSid, evt.Reason, evt.Transcript, evt.EndedAt); err != nil {
			p.logger.Error("failed to record outcome", "call_sid", evt.CallSid, "error", err)
		}
		if row, err := p.archive.GetCall(ctx, evt.CallSid); err == nil && row.Destination != nil {
			destination = *row.Destination
		}
	}

	var qual *qualifier.Qualification
	if p.qualifier != nil {
		q, err := p.qualifier.Qualify(ctx, evt.CallSid, evt.Reason, evt.Transcript)
		if err != nil {
			p.logger.Error("qualification failed", "call_sid", evt.CallSid, "error", err)
		} else {
			qual = q
			p.recordQualification(ctx, evt.CallSid, destination, *q)
		}
	}

	if p.slack != nil {
		if _, err := p.slack.PostCallSummary(ctx, slack.CallSummary{
			CallSid:       evt.CallSid,
			Destination:   destination,
			Reason:        evt.Reason,
			Transcript:    evt.Transcript,
			Qualification: qual,
		}); err != nil {
			p.logger.Error("slack post failed", "call_sid", evt.CallSid, "error", err)
		}
	}
}

func (p *Processor) recordQualification(ctx context.Context, callSid, destination string, q qualifier.Qualification) {
	var id uuid.UUID
	if p.archive != nil {
		stored, err := p.archive.WriteQualification(ctx, callSid, q)
		if err != nil {
			p.logger.Error("failed to store qualification", "call_sid", callSid, "error", err)
		} else {
			id = stored
		}
	}

	if p.pub == nil {
		return
	}
	if err := p.pub.Publish(hermes.SubjectLeadQualified, LeadQualifiedEvent{
		EventID:         uuid.New(),
		CallSid:         callSid,
		Destination:     destination,
		QualificationID: id,
		Qualification:   q,
	}); err != nil {
		p.logger.Error("failed to publish lead qualified", "call_sid", callSid, "error", err)
	}
}
