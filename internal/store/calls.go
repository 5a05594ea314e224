package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/dialer/internal/qualifier"
	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

var ErrCallNotFound = errors.New("call not found")

// CallRow is one archived call. Fields are nil until the matching event
// has been recorded.
type CallRow struct {
	CallSid     string
	Destination *string
	LaunchedAt  *time.Time
	EndedAt     *time.Time
	EndReason   *string
	CallerTurns *int
	Transcript  transcript.Transcript
}

// RecordLaunch upserts the origination of a call.
func (s *Store) RecordLaunch(ctx context.Context, callSid, destination string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calls (call_sid, destination, launched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (call_sid) DO UPDATE
		SET destination = EXCLUDED.destination, launched_at = EXCLUDED.launched_at`,
		callSid, destination, at,
	)
	if err != nil {
		return fmt.Errorf("record launch: %w", err)
	}
	return nil
}

// RecordOutcome upserts the end of a conversation and its transcript.
func (s *Store) RecordOutcome(ctx context.Context, callSid, reason string, t transcript.Transcript, at time.Time) error {
	if t == nil {
		t = transcript.Transcript{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO calls (call_sid, ended_at, end_reason, caller_turns, transcript)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (call_sid) DO UPDATE
		SET ended_at = EXCLUDED.ended_at,
		    end_reason = EXCLUDED.end_reason,
		    caller_turns = EXCLUDED.caller_turns,
		    transcript = EXCLUDED.transcript`,
		callSid, at, reason, t.CallerTurns(), data,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// GetCall returns the archived call, or ErrCallNotFound.
func (s *Store) GetCall(ctx context.Context, callSid string) (*CallRow, error) {
	var (
		row  CallRow
		data []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT call_sid, destination, launched_at, ended_at, end_reason, caller_turns, transcript
		FROM calls WHERE call_sid = $1`,
		callSid,
	).Scan(&row.CallSid, &row.Destination, &row.LaunchedAt, &row.EndedAt, &row.EndReason, &row.CallerTurns, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("get call: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &row.Transcript); err != nil {
			return nil, fmt.Errorf("unmarshal transcript: %w", err)
		}
	}
	return &row, nil
}

// WriteQualification stores the lead qualification of an archived call.
func (s *Store) WriteQualification(ctx context.Context, callSid string, q qualifier.Qualification) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lead_qualifications
			(id, call_sid, interested, wants_catalogue, callback_requested, business_type, summary, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, callSid, q.Interested, q.WantsCatalogue, q.CallbackRequested, q.BusinessType, q.Summary, q.Confidence,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert qualification: %w", err)
	}
	return id, nil
}
