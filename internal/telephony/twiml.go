package telephony

import (
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go/twiml"

	"github.com/MikeSquared-Agency/dialer/internal/conversation"
)

const (
	DefaultVoice           = "Polly.Celine"
	DefaultLanguage        = "fr-FR"
	DefaultListeningPrompt = "Je vous écoute."
)

// Renderer turns a VoiceResponse into TwiML.
type Renderer struct {
	action   string
	voice    string
	language string
	prompt   string
}

// NewRenderer returns a Renderer whose speech capture posts to action.
func NewRenderer(action string) *Renderer {
	return &Renderer{
		action:   action,
		voice:    DefaultVoice,
		language: DefaultLanguage,
		prompt:   DefaultListeningPrompt,
	}
}

func (r *Renderer) say(text string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: text, Voice: r.voice, Language: r.language}
}

// Render builds the TwiML document for resp. Audio assets are played;
// fallback and closing text use the built-in voice.
func (r *Renderer) Render(resp conversation.VoiceResponse) (string, error) {
	var verbs []twiml.Element

	switch {
	case resp.AudioURL != "":
		verbs = append(verbs, &twiml.VoicePlay{Url: resp.AudioURL})
	case resp.FallbackText != "":
		verbs = append(verbs, r.say(resp.FallbackText))
	}

	switch {
	case resp.EndCall:
		if resp.ClosingText != "" {
			verbs = append(verbs, r.say(resp.ClosingText))
		}
		verbs = append(verbs, &twiml.VoiceHangup{})
	case resp.ContinueListening:
		verbs = append(verbs, &twiml.VoiceGather{
			Input:               "speech",
			Action:              r.action,
			Method:              http.MethodPost,
			Language:            r.language,
			SpeechTimeout:       "auto",
			ActionOnEmptyResult: "true",
			InnerElements:       []twiml.Element{r.say(r.prompt)},
		})
	}

	doc, err := twiml.Voice(verbs)
	if err != nil {
		return "", fmt.Errorf("render twiml: %w", err)
	}
	return doc, nil
}
