// Package qualifier turns a finished call transcript into a lead
// qualification for the sales team.
package qualifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

// LLM runs a single-shot prompt.
type LLM interface {
	Prompt(ctx context.Context, system, user string) (string, error)
}

// Qualification is the model's read of a prospect.
type Qualification struct {
	Interested        bool    `json:"interested"`
	WantsCatalogue    bool    `json:"wants_catalogue"`
	CallbackRequested bool    `json:"callback_requested"`
	BusinessType      string  `json:"business_type"`
	Summary           string  `json:"summary"`
	Confidence        float64 `json:"confidence"`
}

// Hot reports whether the sales team should follow up.
func (q Qualification) Hot() bool {
	return q.Interested || q.WantsCatalogue || q.CallbackRequested
}

type Qualifier struct {
	llm    LLM
	logger *slog.Logger
}

func New(llm LLM, logger *slog.Logger) *Qualifier {
	return &Qualifier{llm: llm, logger: logger}
}

// Qualify asks the model to qualify the prospect of a finished call.
func (q *Qualifier) Qualify(ctx context.Context, callSid, reason string, t transcript.Transcript) (*Qualification, error) {
	if t.CallerTurns() == 0 {
		return &Qualification{BusinessType: "unknown", Summary: "Le prospect n'a rien dit."}, nil
	}

	prompt := fmt.Sprintf(qualifyUserPrompt, callSid, reason, Format(t))

	q.logger.Info("qualifying call", "call_sid", callSid, "turns", len(t))

	raw, err := q.llm.Prompt(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm qualification: %w", err)
	}

	var out Qualification
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		q.logger.Error("failed to parse qualification response",
			"error", err,
			"raw", raw,
		)
		return nil, fmt.Errorf("parse qualification: %w", err)
	}
	if out.BusinessType == "" {
		out.BusinessType = "unknown"
	}

	q.logger.Info("qualification complete",
		"call_sid", callSid,
		"interested", out.Interested,
		"confidence", out.Confidence,
	)
	return &out, nil
}

// Format renders the spoken part of a transcript one line per turn.
func Format(t transcript.Transcript) string {
	var sb strings.Builder
	for _, turn := range t.Dialogue() {
		speaker := "Prospect"
		if turn.Role == transcript.RoleAgent {
			speaker = "Prune"
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, turn.Text)
	}
	return sb.String()
}

// stripFences drops a ```json ... ``` wrapper some models add.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
