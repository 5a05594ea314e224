// Package telephony adapts the conversation core to Twilio: outbound call
// origination, TwiML rendering and webhook parsing.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Terminal call statuses reported to the status callback.
var terminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// IsTerminal reports whether a CallStatus means the call is over.
func IsTerminal(status string) bool {
	return terminalStatuses[status]
}

// Twilio originates outbound calls through the Twilio REST API.
type Twilio struct {
	client *twilio.RestClient
	from   string
}

func NewTwilio(accountSID, authToken, from string) *Twilio {
	return &Twilio{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from: from,
	}
}

// Originate dials to and points the call at webhookURL. Terminal status
// changes are posted to statusURL when it is set.
func (t *Twilio) Originate(ctx context.Context, to, webhookURL, statusURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetUrl(webhookURL)
	params.SetMethod(http.MethodPost)
	if statusURL != "" {
		params.SetStatusCallback(statusURL)
		params.SetStatusCallbackMethod(http.MethodPost)
		params.SetStatusCallbackEvent([]string{"completed"})
	}

	call, err := t.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	if call.Sid == nil {
		return "", errors.New("create call: response has no sid")
	}
	return *call.Sid, nil
}
