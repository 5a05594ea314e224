package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/dialer/internal/anthropic"
	"github.com/MikeSquared-Agency/dialer/internal/api"
	"github.com/MikeSquared-Agency/dialer/internal/calls"
	"github.com/MikeSquared-Agency/dialer/internal/config"
	"github.com/MikeSquared-Agency/dialer/internal/conversation"
	"github.com/MikeSquared-Agency/dialer/internal/elevenlabs"
	"github.com/MikeSquared-Agency/dialer/internal/hermes"
	"github.com/MikeSquared-Agency/dialer/internal/metrics"
	"github.com/MikeSquared-Agency/dialer/internal/openai"
	"github.com/MikeSquared-Agency/dialer/internal/processor"
	"github.com/MikeSquared-Agency/dialer/internal/qualifier"
	"github.com/MikeSquared-Agency/dialer/internal/session"
	"github.com/MikeSquared-Agency/dialer/internal/slack"
	"github.com/MikeSquared-Agency/dialer/internal/speech"
	"github.com/MikeSquared-Agency/dialer/internal/store"
	"github.com/MikeSquared-Agency/dialer/internal/telephony"
)

// llm is what both providers offer: live replies and one-shot prompts.
type llm interface {
	conversation.DialogueEngine
	qualifier.LLM
}

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("dialer starting", "port", cfg.Port, "base_url", cfg.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	script, err := cfg.Conversation()
	if err != nil {
		slog.Error("invalid conversation config", "error", err)
		os.Exit(1)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Language model
	var model llm
	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			slog.Error("ANTHROPIC_API_KEY is required")
			os.Exit(1)
		}
		model = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			slog.Error("OPENAI_API_KEY is required")
			os.Exit(1)
		}
		model = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		slog.Info("openai client ready", "model", cfg.OpenAIModel)
	default:
		slog.Error("unknown DIALER_LLM_PROVIDER", "provider", cfg.LLMProvider)
		os.Exit(1)
	}

	// Speech synthesis
	if cfg.ElevenLabsAPIKey == "" {
		slog.Error("ELEVENLABS_API_KEY is required")
		os.Exit(1)
	}
	tts := elevenlabs.NewClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModel)
	synth, err := speech.New(tts, cfg.AudioDir, cfg.BaseURL)
	if err != nil {
		slog.Error("failed to prepare audio directory", "dir", cfg.AudioDir, "error", err)
		os.Exit(1)
	}
	slog.Info("speech synthesis ready", "voice", cfg.ElevenLabsVoiceID, "dir", synth.Dir())

	// Telephony
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioPhoneNumber == "" {
		slog.Error("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER are required")
		os.Exit(1)
	}
	twilio := telephony.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)

	g, gctx := errgroup.WithContext(ctx)

	// Session store
	var sessions session.Store
	var counter api.SessionCounter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		sessions = session.NewRedisStore(rdb, session.WithTTL(cfg.SessionIdle))
		slog.Info("redis session store ready")
	} else {
		mem := session.NewMemoryStore()
		sessions, counter = mem, mem
		g.Go(func() error {
			mem.RunSweeper(gctx, time.Minute, cfg.SessionIdle, slog.Default())
			return nil
		})
		slog.Info("in-memory session store ready")
	}

	ctrlOpts := []conversation.Option{conversation.WithMetrics(m)}
	var notifier calls.Notifier

	// NATS/Hermes (optional, enables lifecycle events and the follow-up pipeline)
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)

		events := hermes.NewCallEvents(hermesClient, slog.Default())
		ctrlOpts = append(ctrlOpts, conversation.WithEvents(events))
		notifier = events
	} else {
		slog.Warn("NATS not configured, running without lifecycle events")
	}

	ctrl := conversation.New(script, sessions, model, synth, slog.Default(), ctrlOpts...)
	launcher := calls.NewLauncher(twilio,
		cfg.BaseURL+api.WebhookPath,
		cfg.BaseURL+api.StatusPath,
		notifier, m, slog.Default())

	if hermesClient != nil {
		if err := hermesClient.QueueSubscribe(hermes.SubjectLaunchCommand, hermes.QueueGroup, launcher.HandleLaunchRequest); err != nil {
			slog.Error("failed to subscribe to launch commands", "error", err)
			os.Exit(1)
		}

		var archive processor.Archive
		if cfg.DatabaseURL != "" {
			db, err := store.New(ctx, cfg.DatabaseURL)
			if err != nil {
				slog.Error("failed to connect to database", "error", err)
				os.Exit(1)
			}
			defer db.Close()
			if err := db.EnsureSchema(ctx); err != nil {
				slog.Error("failed to apply schema", "error", err)
				os.Exit(1)
			}
			archive = db
			slog.Info("database connected")
		}

		// Slack poster (optional, the dialer works without the sales channel)
		var summarizer processor.Summarizer
		if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
			summarizer = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
			slog.Info("slack poster ready", "channel", cfg.SlackChannel)
		} else {
			slog.Warn("slack not configured, call summaries will not be posted")
		}

		proc := processor.New(archive, qualifier.New(model, slog.Default()), summarizer, hermesClient, slog.Default())
		if err := hermesClient.QueueSubscribe(hermes.SubjectCallLaunched, hermes.QueueGroup, proc.HandleCallLaunched); err != nil {
			slog.Error("failed to subscribe to launch events", "error", err)
			os.Exit(1)
		}
		if err := hermesClient.QueueSubscribe(hermes.SubjectCallEnded, hermes.QueueGroup, proc.HandleCallEnded); err != nil {
			slog.Error("failed to subscribe to call ended events", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	srvOpts := []api.Option{
		api.WithAudioDir(synth.Dir()),
		api.WithMetrics(reg),
		api.WithAPIToken(cfg.APIToken),
	}
	if counter != nil {
		srvOpts = append(srvOpts, api.WithSessionCounter(counter))
	}
	if cfg.TwilioValidateSignature {
		srvOpts = append(srvOpts, api.WithSignatureValidation(cfg.TwilioAuthToken, cfg.BaseURL))
	}
	srv := api.NewServer(cfg.Port, ctrl, launcher, telephony.NewRenderer(api.WebhookPath), slog.Default(), srvOpts...)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		synth.RunPruner(gctx, 10*time.Minute, cfg.AudioTTL, slog.Default())
		return nil
	})

	slog.Info("dialer ready", "port", cfg.Port)

	err = g.Wait()
	if hermesClient != nil {
		if derr := hermesClient.Drain(); derr != nil {
			slog.Warn("nats drain failed", "error", derr)
		}
	}
	if err != nil {
		slog.Error("dialer stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("dialer stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
