package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/dialer/internal/conversation"
	"github.com/MikeSquared-Agency/dialer/internal/elevenlabs"
)

type Config struct {
	Port     int
	BaseURL  string
	LogLevel string

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioPhoneNumber       string
	TwilioValidateSignature bool

	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModel   string
	AudioDir          string
	AudioTTL          time.Duration

	PersonaFile     string
	Greeting        string
	ClosingKeywords []string
	MaxTurns        int
	SessionIdle     time.Duration

	RedisURL      string
	NatsURL       string
	NatsToken     string
	DatabaseURL   string
	SlackBotToken string
	SlackChannel  string
	APIToken      string
}

func Load() Config {
	return Config{
		Port:     envInt("PORT", 3000),
		BaseURL:  strings.TrimRight(envStr("BASE_URL", "http://localhost:3000"), "/"),
		LogLevel: envStr("LOG_LEVEL", "info"),

		TwilioAccountSID:        envStr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         envStr("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:       envStr("TWILIO_PHONE_NUMBER", ""),
		TwilioValidateSignature: envBool("TWILIO_VALIDATE_SIGNATURE", false),

		LLMProvider:     envStr("DIALER_LLM_PROVIDER", "openai"),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		OpenAIModel:     envStr("OPENAI_MODEL", "gpt-3.5-turbo"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),

		ElevenLabsAPIKey:  envStr("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: envStr("ELEVENLABS_VOICE_ID", elevenlabs.DefaultVoice),
		ElevenLabsModel:   envStr("ELEVENLABS_MODEL", elevenlabs.DefaultModel),
		AudioDir:          envStr("DIALER_AUDIO_DIR", "public"),
		AudioTTL:          envMinutes("DIALER_AUDIO_TTL_MINUTES", 60),

		PersonaFile:     envStr("DIALER_PERSONA_FILE", ""),
		Greeting:        envStr("DIALER_GREETING", conversation.DefaultGreeting),
		ClosingKeywords: envList("DIALER_CLOSING_KEYWORDS", conversation.DefaultClosingKeywords),
		MaxTurns:        envInt("DIALER_MAX_TURNS", conversation.DefaultMaxTurns),
		SessionIdle:     envMinutes("DIALER_SESSION_IDLE_MINUTES", 30),

		RedisURL:      envStr("REDIS_URL", ""),
		NatsURL:       envStr("NATS_URL", ""),
		NatsToken:     envStr("NATS_TOKEN", ""),
		DatabaseURL:   envStr("DATABASE_URL", ""),
		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_LEADS_CHANNEL", ""),
		APIToken:      envStr("DIALER_API_TOKEN", ""),
	}
}

// Conversation builds the controller configuration, reading the persona
// from PersonaFile when one is set.
func (c Config) Conversation() (conversation.Config, error) {
	cc := conversation.DefaultConfig()
	cc.Greeting = c.Greeting
	cc.ClosingKeywords = c.ClosingKeywords
	cc.MaxTurns = c.MaxTurns

	if c.PersonaFile != "" {
		b, err := os.ReadFile(c.PersonaFile)
		if err != nil {
			return conversation.Config{}, fmt.Errorf("read persona: %w", err)
		}
		cc.Persona = strings.TrimSpace(string(b))
	}

	if err := cc.Validate(); err != nil {
		return conversation.Config{}, err
	}
	return cc, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// minIdleMinutes is the shortest accepted expiry window. Anything shorter
// would expire calls that are still talking.
const minIdleMinutes = 2

// envMinutes reads a duration in whole minutes. Values below
// minIdleMinutes fall back to the default.
func envMinutes(key string, fallback int) time.Duration {
	n := envInt(key, fallback)
	if n < minIdleMinutes {
		n = fallback
	}
	return time.Duration(n) * time.Minute
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envList reads a comma-separated list, dropping empty entries.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
