package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/dialer/internal/qualifier"
	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// CallSummary is what the sales team sees for a finished call.
type CallSummary struct {
	CallSid       string
	Destination   string
	Reason        string
	Transcript    transcript.Transcript
	Qualification *qualifier.Qualification
}

// PostCallSummary posts a finished call to the leads channel and returns
// the message timestamp.
func (p *Poster) PostCallSummary(ctx context.Context, summary CallSummary) (string, error) {
	text := formatCallSummary(summary)

	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted call summary to slack", "ts", slackResp.TS, "call_sid", summary.CallSid)
	return slackResp.TS, nil
}

func formatCallSummary(s CallSummary) string {
	var sb strings.Builder

	dest := s.Destination
	if dest == "" {
		dest = "unknown number"
	}
	fmt.Fprintf(&sb, "*Call:* %s to %s (ended: %s, %d caller turns)\n", s.CallSid, dest, s.Reason, s.Transcript.CallerTurns())

	if q := s.Qualification; q != nil {
		label := "cold"
		if q.Hot() {
			label = ":fire: hot"
		}
		fmt.Fprintf(&sb, "*Lead:* %s | %s | Confidence: %.2f\n", label, q.BusinessType, q.Confidence)
		var asks []string
		if q.WantsCatalogue {
			asks = append(asks, "send catalogue")
		}
		if q.CallbackRequested {
			asks = append(asks, "call back")
		}
		if len(asks) > 0 {
			fmt.Fprintf(&sb, "*Follow up:* %s\n", strings.Join(asks, ", "))
		}
		if q.Summary != "" {
			fmt.Fprintf(&sb, "> %s\n", q.Summary)
		}
	} else {
		sb.WriteString("_Not qualified._\n")
	}

	if s.Transcript.CallerTurns() > 0 {
		sb.WriteString("\n")
		for _, turn := range s.Transcript.Dialogue() {
			who := "Prospect"
			if turn.Role == transcript.RoleAgent {
				who = "Prune"
			}
			fmt.Fprintf(&sb, "*%s:* %s\n", who, turn.Text)
		}
	}

	return sb.String()
}
