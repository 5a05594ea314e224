// Package session keeps the live conversation record of every in-progress
// call. Records are ephemeral: they exist from the first webhook of a call
// until the conversation ends or the call hangs up.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

var (
	ErrDuplicateSession  = errors.New("session already exists")
	ErrNotFound          = errors.New("session not found")
	ErrInvalidID         = errors.New("invalid call id")
	ErrTranscriptShrunk  = errors.New("transcript may only grow")
	ErrInvalidTranscript = errors.New("transcript must start with system and agent turns")
)

// State is the position of a call in the conversation state machine.
// Absent and Ended are never stored; they describe a call id with no record.
type State string

const (
	StateAbsent  State = "absent"
	StateGreeted State = "greeted"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

// Session is the conversation record for one call.
type Session struct {
	CallID     string                `json:"call_id"`
	State      State                 `json:"state"`
	Transcript transcript.Transcript `json:"transcript"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func (s *Session) clone() *Session {
	cp := *s
	cp.Transcript = s.Transcript.Clone()
	return &cp
}

// Store holds at most one Session per call id. Update runs its function
// atomically with respect to every other operation on the same id; the
// function must not perform I/O.
type Store interface {
	Create(ctx context.Context, callID string, t transcript.Transcript) (*Session, error)
	Get(ctx context.Context, callID string) (*Session, error)
	Has(ctx context.Context, callID string) (bool, error)
	Update(ctx context.Context, callID string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, callID string) error
}

func newSession(callID string, t transcript.Transcript, now time.Time) (*Session, error) {
	if callID == "" {
		return nil, ErrInvalidID
	}
	if !t.Valid() {
		return nil, ErrInvalidTranscript
	}
	return &Session{
		CallID:     callID,
		State:      StateGreeted,
		Transcript: t.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// checkUpdate enforces the invariants an Update function must keep.
func checkUpdate(before, after *Session) error {
	if after.CallID != before.CallID {
		return fmt.Errorf("call id changed from %q to %q", before.CallID, after.CallID)
	}
	if len(after.Transcript) < len(before.Transcript) {
		return fmt.Errorf("%w: %d -> %d turns", ErrTranscriptShrunk, len(before.Transcript), len(after.Transcript))
	}
	if !after.Transcript.Valid() {
		return ErrInvalidTranscript
	}
	return nil
}
