// Package conversation runs the per-call dialogue: it greets a new call,
// turns each caller utterance into a spoken reply, and decides when the
// call ends.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/dialer/internal/metrics"
	"github.com/MikeSquared-Agency/dialer/internal/session"
	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

// DialogueEngine produces the next agent line from the full transcript,
// system prompt first.
type DialogueEngine interface {
	GenerateReply(ctx context.Context, t transcript.Transcript) (string, error)
}

// SpeechSynthesizer renders text into an asset named assetID and returns a
// URL the telephony provider can fetch.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, assetID string) (string, error)
}

// EventSink is told when conversations start and end.
type EventSink interface {
	CallStarted(ctx context.Context, callID string)
	CallEnded(ctx context.Context, callID string, reason EndReason, t transcript.Transcript)
}

type Controller struct {
	store    session.Store
	engine   DialogueEngine
	synth    SpeechSynthesizer
	events   EventSink
	metrics  *metrics.Metrics
	cfg      Config
	keywords []string
	logger   *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

func WithEvents(sink EventSink) Option {
	return func(c *Controller) {
		c.events = sink
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func New(cfg Config, store session.Store, engine DialogueEngine, synth SpeechSynthesizer, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		engine:   engine,
		synth:    synth,
		cfg:      cfg,
		keywords: cfg.normalizedKeywords(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports where callID is in the conversation state machine.
func (c *Controller) State(ctx context.Context, callID string) (session.State, error) {
	sess, err := c.store.Get(ctx, callID)
	if errors.Is(err, session.ErrNotFound) {
		return session.StateAbsent, nil
	}
	if err != nil {
		return "", err
	}
	return sess.State, nil
}

// HandleTurn processes one inbound webhook for callID. An empty speech
// means nothing was captured. The returned response is always renderable,
// even when an error is returned alongside it.
func (c *Controller) HandleTurn(ctx context.Context, callID, speech string) (VoiceResponse, error) {
	sess, err := c.store.Get(ctx, callID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return c.greet(ctx, callID)
	case err != nil:
		return c.abort(ctx, callID, nil, err)
	}

	speech = strings.TrimSpace(speech)
	if speech == "" {
		return c.noSpeech(ctx, sess)
	}
	return c.reply(ctx, callID, sess.Transcript, speech)
}

// Hangup drops the session of a call the provider reports as finished.
// It reports whether a conversation was still open.
func (c *Controller) Hangup(ctx context.Context, callID string) (bool, error) {
	sess, err := c.store.Get(ctx, callID)
	if errors.Is(err, session.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.end(ctx, sess, EndHangup)
	return true, nil
}

// greet handles ABSENT -> GREETED.
func (c *Controller) greet(ctx context.Context, callID string) (VoiceResponse, error) {
	c.metrics.Turn("greeting")

	sess, err := c.store.Create(ctx, callID, transcript.New(c.cfg.Persona, c.cfg.Greeting))
	switch {
	case errors.Is(err, session.ErrDuplicateSession):
		// A redelivered first webhook; keep the conversation that won.
		c.logger.Warn("duplicate first event, reusing session", "call_sid", callID)
		sess, err = c.store.Get(ctx, callID)
		if err != nil {
			return c.abort(ctx, callID, nil, err)
		}
	case err != nil:
		return c.abort(ctx, callID, nil, err)
	default:
		c.logger.Info("conversation started", "call_sid", callID)
		if c.events != nil {
			c.events.CallStarted(ctx, callID)
		}
	}

	idx, line := lastAgentTurn(sess.Transcript)
	speech, err := c.speak(ctx, callID, idx, line)
	return listen(speech), err
}

// noSpeech handles the capture timeout: the call ends without retrying.
func (c *Controller) noSpeech(ctx context.Context, sess *session.Session) (VoiceResponse, error) {
	c.metrics.Turn("no_speech")
	c.end(ctx, sess, EndNoSpeech)
	return hangup(Speech{FallbackText: c.cfg.NoSpeechApology}, ""), nil
}

// reply handles GREETED|ACTIVE -> ACTIVE|ENDED.
func (c *Controller) reply(ctx context.Context, callID string, prior transcript.Transcript, speech string) (VoiceResponse, error) {
	c.metrics.Turn("reply")

	sess, err := c.store.Update(ctx, callID, func(s *session.Session) error {
		s.Transcript = append(s.Transcript, transcript.Caller(speech))
		s.State = session.StateActive
		return nil
	})
	if errors.Is(err, session.ErrNotFound) {
		return c.alreadyEnded(callID), nil
	}
	if err != nil {
		return c.abort(ctx, callID, prior, err)
	}

	line := c.generate(ctx, callID, sess.Transcript)

	known := sess.Transcript
	sess, err = c.store.Update(ctx, callID, func(s *session.Session) error {
		s.Transcript = append(s.Transcript, transcript.Agent(line))
		return nil
	})
	if errors.Is(err, session.ErrNotFound) {
		// The status callback closed the call while the reply was generated.
		return c.alreadyEnded(callID), nil
	}
	if err != nil {
		return c.abort(ctx, callID, known, err)
	}

	reason, done := c.shouldEnd(speech, len(sess.Transcript))
	out, err := c.speak(ctx, callID, len(sess.Transcript)-1, line)
	if err != nil {
		c.logger.Warn("reply synthesis failed, using built-in voice", "call_sid", callID, "error", err)
	}

	if !done {
		return listen(out), nil
	}
	c.end(ctx, sess, reason)
	return hangup(out, c.cfg.ClosingRemark), nil
}

// shouldEnd applies the termination rules to the caller's utterance and
// the transcript length after the turn.
func (c *Controller) shouldEnd(speech string, turns int) (EndReason, bool) {
	lower := strings.ToLower(speech)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return EndKeyword, true
		}
	}
	if turns >= c.cfg.MaxTurns {
		return EndMaxTurns, true
	}
	return "", false
}

// generate asks the engine for the next line, falling back to the
// degraded reply.
func (c *Controller) generate(ctx context.Context, callID string, t transcript.Transcript) string {
	start := time.Now()
	line, err := c.engine.GenerateReply(ctx, t)
	c.metrics.Since("dialogue", start)

	if err == nil && strings.TrimSpace(line) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		return c.degradedReply(callID, fmt.Errorf("%w: %w", ErrDialogueFailed, err))
	}
	return strings.TrimSpace(line)
}

func (c *Controller) degradedReply(callID string, err error) string {
	c.metrics.Degraded("dialogue")
	c.logger.Error("dialogue engine failed, using degraded reply", "call_sid", callID, "error", err)
	return c.cfg.DegradedReply
}

// speak synthesizes the agent line at transcript index turn. On failure
// the returned segment uses built-in speech and the error wraps
// ErrSynthesisFailed.
func (c *Controller) speak(ctx context.Context, callID string, turn int, text string) (Speech, error) {
	start := time.Now()
	url, err := c.synth.Synthesize(ctx, text, AssetID(callID, turn))
	c.metrics.Since("synthesis", start)
	if err != nil {
		return c.degradedSpeech(text), fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	return Speech{AudioURL: url}, nil
}

func (c *Controller) degradedSpeech(text string) Speech {
	c.metrics.Degraded("synthesis")
	return Speech{FallbackText: text}
}

// abort ends a call whose session could not be read or written. t is the
// last transcript known to the controller, possibly nil.
func (c *Controller) abort(ctx context.Context, callID string, t transcript.Transcript, cause error) (VoiceResponse, error) {
	c.logger.Error("session store failed, ending call", "call_sid", callID, "error", cause)
	c.metrics.Ended(string(EndStoreError))
	if err := c.store.Delete(ctx, callID); err != nil {
		c.logger.Warn("failed to drop session", "call_sid", callID, "error", err)
	}
	if c.events != nil {
		c.events.CallEnded(ctx, callID, EndStoreError, t)
	}
	return hangup(Speech{FallbackText: c.cfg.NoSpeechApology}, ""), fmt.Errorf("session %s: %w", callID, cause)
}

// alreadyEnded answers a turn whose session was closed by a concurrent
// hang-up. The call was already counted and reported by Hangup.
func (c *Controller) alreadyEnded(callID string) VoiceResponse {
	c.logger.Info("call ended during turn", "call_sid", callID)
	return hangup(Speech{}, "")
}

// end moves a session to ENDED.
func (c *Controller) end(ctx context.Context, sess *session.Session, reason EndReason) {
	if err := c.store.Delete(ctx, sess.CallID); err != nil {
		c.logger.Warn("failed to delete ended session", "call_sid", sess.CallID, "error", err)
	}
	c.metrics.Ended(string(reason))
	c.logger.Info("conversation ended",
		"call_sid", sess.CallID,
		"reason", string(reason),
		"turns", len(sess.Transcript),
	)
	if c.events != nil {
		c.events.CallEnded(ctx, sess.CallID, reason, sess.Transcript)
	}
}

func lastAgentTurn(t transcript.Transcript) (int, string) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == transcript.RoleAgent {
			return i, t[i].Text
		}
	}
	return 0, ""
}
