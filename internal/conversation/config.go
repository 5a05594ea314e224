package conversation

import (
	"errors"
	"fmt"
	"strings"
)

// Default persona and scripted lines for the SourLoops Free Spirits
// prospecting campaign.
const (
	DefaultPersona = `Tu prends le rôle d'un commercial pour la marque SourLoops Free Spirits. Tu te présentes en tant que tel.
Tu appelles des professionnels du secteur CHR : bars à cocktails, cavistes, hôtels, restaurants, distributeurs de boissons.
Ton objectif est de qualifier le prospect afin de savoir s’il pourrait être client.

Sois poli, professionnel, accessible et direct.
Si la personne semble intéressée, propose de lui envoyer un catalogue ou de la rappeler.
Finis toujours par remercier l’interlocuteur.`

	DefaultGreeting = `Bonjour, je suis Prune de la marque SourLoops Free Spirits. Je vous appelle dans le cadre de votre activité pour savoir si vous seriez intéressé par des spiritueux sans alcool haut de gamme pour vos cocktails ou votre boutique.`

	DefaultDegradedReply   = "Désolé, je n’ai pas compris."
	DefaultNoSpeechApology = "Je n’ai pas compris, je vais devoir raccrocher. Bonne journée !"
	DefaultClosingRemark   = "Merci pour votre temps. Au revoir !"
	DefaultMaxTurns        = 10
)

// DefaultClosingKeywords end the call when the caller says one of them.
var DefaultClosingKeywords = []string{"merci"}

// Config is the immutable script of a campaign.
type Config struct {
	Persona         string
	Greeting        string
	ClosingKeywords []string
	// MaxTurns caps the transcript length, system prompt included.
	MaxTurns        int
	DegradedReply   string
	NoSpeechApology string
	// ClosingRemark is spoken as a separate segment after the final reply.
	ClosingRemark   string
}

// DefaultConfig returns the SourLoops campaign script.
func DefaultConfig() Config {
	return Config{
		Persona:         DefaultPersona,
		Greeting:        DefaultGreeting,
		ClosingKeywords: append([]string(nil), DefaultClosingKeywords...),
		MaxTurns:        DefaultMaxTurns,
		DegradedReply:   DefaultDegradedReply,
		NoSpeechApology: DefaultNoSpeechApology,
		ClosingRemark:   DefaultClosingRemark,
	}
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Persona) == "" {
		errs = append(errs, errors.New("persona is required"))
	}
	if strings.TrimSpace(c.Greeting) == "" {
		errs = append(errs, errors.New("greeting is required"))
	}
	if strings.TrimSpace(c.DegradedReply) == "" {
		errs = append(errs, errors.New("degraded reply is required"))
	}
	// system + greeting + one caller turn + one reply
	if c.MaxTurns < 4 {
		errs = append(errs, fmt.Errorf("max turns must be at least 4, got %d", c.MaxTurns))
	}
	return errors.Join(errs...)
}

// normalizedKeywords lower-cases the keywords and drops blanks.
func (c Config) normalizedKeywords() []string {
	out := make([]string, 0, len(c.ClosingKeywords))
	for _, kw := range c.ClosingKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
