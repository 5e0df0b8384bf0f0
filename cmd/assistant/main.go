package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.design/x/hotkey/mainthread"

	"github.com/satriahrh/elena/assistant/adapters/audio"
	"github.com/satriahrh/elena/assistant/adapters/hotkey"
	"github.com/satriahrh/elena/assistant/adapters/llm"
	"github.com/satriahrh/elena/assistant/adapters/memory"
	"github.com/satriahrh/elena/assistant/adapters/mongo"
	"github.com/satriahrh/elena/assistant/adapters/storage"
	"github.com/satriahrh/elena/assistant/adapters/stt"
	"github.com/satriahrh/elena/assistant/adapters/tts"
	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/api"
	"github.com/satriahrh/elena/assistant/internal/auth"
	"github.com/satriahrh/elena/assistant/internal/capture"
	"github.com/satriahrh/elena/assistant/internal/config"
	"github.com/satriahrh/elena/assistant/internal/metrics"
	"github.com/satriahrh/elena/assistant/internal/websocket"
	"github.com/satriahrh/elena/assistant/usecase"
)

var (
	configPath = flag.String("config", "config.yaml", "path to the configuration file")
	issueToken = flag.String("issue-token", "", "print a monitor token for the given subject and exit")
)

func main() {
	flag.Parse()
	// Global hotkeys on macOS must be registered from the main thread.
	mainthread.Init(run)
}

func run() {
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, level, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *issueToken != "" {
		printToken(cfg, *issueToken, logger)
		return
	}

	if err := cfg.ValidateCredentials(); err != nil {
		logger.Fatal("Missing credentials", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(nil)

	input, err := audio.NewPortAudioInput(logger)
	if err != nil {
		logger.Fatal("Failed to initialize audio input", zap.Error(err))
	}
	defer input.Close()
	input.OnOverflow = m.InputOverflows.Inc
	input.OnReadError = m.InputErrors.Inc

	transcriber, closeSTT, err := newSpeechToText(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize transcription", zap.Error(err))
	}
	defer closeSTT()

	conversation, closeConversation, err := newConversation(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize assistant backend", zap.Error(err))
	}
	defer closeConversation()

	speaker, closeSpeaker := newTextToSpeech(cfg, logger)
	defer closeSpeaker()

	// Monitor clients connect only after the pipeline is built.
	var pipeline *usecase.Pipeline
	hub := websocket.NewHub(func() interface{} { return pipeline.Status() }, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	pipeline = usecase.NewPipeline(pipelineConfig(cfg), usecase.PipelineDeps{
		Input:        input,
		STT:          transcriber,
		Conversation: conversation,
		SessionStore: storage.NewSessionFile(cfg.Assistant.SessionFile),
		TTS:          speaker,
		Events:       hub,
		Metrics:      m,
	}, logger)

	// Stages outlive the signal so Shutdown can drain them.
	if err := pipeline.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start pipeline", zap.Error(err))
	}

	ptt, err := hotkey.NewPushToTalk(cfg.Controls.PTTKey, logger)
	if err != nil {
		logger.Fatal("Invalid push-to-talk key", zap.Error(err))
	}
	if err := ptt.Start(ctx, pipeline.Press, pipeline.Release); err != nil {
		logger.Fatal("Failed to register push-to-talk key", zap.Error(err))
	}

	watcher, err := config.NewWatcher(*configPath, logger, func(next *config.Config) {
		if lvl, err := zapcore.ParseLevel(next.Logging.Level); err == nil && lvl != level.Level() {
			level.SetLevel(lvl)
			logger.Info("Log level changed", zap.String("level", lvl.String()))
		}
		pipeline.SetSpeechEnabled(next.TTS.Enabled)
	})
	if err != nil {
		logger.Warn("Configuration reload disabled", zap.Error(err))
	} else {
		go watcher.Run(ctx)
	}

	var server *echo.Echo
	if cfg.Monitor.Enabled {
		server = startMonitor(cfg, pipeline, hub, m, logger)
	}

	logger.Info("Assistant ready",
		zap.String("ptt_key", ptt.Combo()),
		zap.String("transcription", cfg.Transcription.Backend),
		zap.String("assistant", cfg.Assistant.Backend),
		zap.Bool("speech", cfg.TTS.Enabled))

	<-ctx.Done()
	logger.Info("Assistant is shutting down...")

	ptt.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer cancel()

	if err := pipeline.Shutdown(shutdownCtx); err != nil {
		logger.Error("Pipeline did not drain in time", zap.Error(err))
	}

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Monitor forced to shutdown", zap.Error(err))
		}
	}
	stopHub()

	logger.Info("Assistant exited")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, level, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, level, err
	}
	return logger, level, nil
}

func printToken(cfg *config.Config, subject string, logger *zap.Logger) {
	tokens, err := auth.NewTokenService(cfg.Secrets.MonitorJWTSecret, cfg.Monitor.TokenTTL)
	if err != nil {
		logger.Fatal("Cannot issue monitor token", zap.Error(err))
	}
	token, expiresAt, err := tokens.GenerateMonitorToken(subject)
	if err != nil {
		logger.Fatal("Failed to generate monitor token", zap.Error(err))
	}
	fmt.Println(token)
	logger.Info("Monitor token issued", zap.String("subject", subject), zap.Time("expires_at", expiresAt))
}

func pipelineConfig(cfg *config.Config) usecase.PipelineConfig {
	return usecase.PipelineConfig{
		JobQueueSize:        cfg.Pipeline.JobQueueSize,
		TranscriptQueueSize: cfg.Pipeline.TranscriptQueueSize,
		ResponseQueueSize:   cfg.Pipeline.ResponseQueueSize,
		Capture: usecase.CaptureConfig{
			Stream: repositories.AudioStreamConfig{
				SampleRate: cfg.Audio.SampleRate,
				Channels:   cfg.Audio.Channels,
				BlockSize:  cfg.Audio.BlockSize,
				Device:     cfg.Audio.Device,
			},
			Capture: capture.Config{
				SampleRate: cfg.Audio.SampleRate,
				BlockSize:  cfg.Audio.BlockSize,
				PreRoll:    cfg.Audio.PreRoll,
				PostRoll:   cfg.Audio.PostRoll,
			},
			ModelSampleRate: cfg.Audio.ModelSampleRate,
		},
		Transcription: usecase.TranscriptionConfig{
			Workers: cfg.Transcription.Workers,
			Options: repositories.TranscribeOptions{
				Language:          cfg.Transcription.Language,
				BeamSize:          cfg.Transcription.BeamSize,
				BestOf:            cfg.Transcription.BestOf,
				Temperature:       cfg.Transcription.Temperature,
				VADFilter:         cfg.Transcription.VADFilter,
				NoSpeechThreshold: cfg.Transcription.NoSpeechThreshold,
			},
		},
		Response: usecase.ResponseConfig{
			Author:          cfg.Assistant.Author,
			MaxAttempts:     cfg.Assistant.MaxAttempts,
			InitialBackoff:  cfg.Assistant.InitialBackoff,
			CallTimeout:     cfg.Assistant.CallTimeout,
			FallbackMessage: cfg.Assistant.FallbackMessage,
		},
		Output: usecase.OutputConfig{
			Enabled:      cfg.TTS.Enabled,
			QueueMaxSize: cfg.TTS.QueueMaxSize,
		},
	}
}

func newSpeechToText(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, func(), error) {
	t := cfg.Transcription
	switch t.Backend {
	case "whisper":
		w, err := stt.NewWhisper(t.ModelPath, t.Threads, t.FilterHallucinations, logger)
		if err != nil {
			return nil, nil, err
		}
		return w, func() { w.Close() }, nil
	case "remote":
		key := cfg.Secrets.STTRemoteAPIKey
		if key == "" {
			key = cfg.Secrets.OpenAIAPIKey
		}
		return stt.NewRemoteWhisper(stt.RemoteWhisperConfig{
			Endpoint:             t.RemoteEndpoint,
			APIKey:               key,
			Model:                t.RemoteModel,
			FilterHallucinations: t.FilterHallucinations,
		}, logger), func() {}, nil
	case "google":
		g, err := stt.NewGoogleSpeechToText(ctx, t.FilterHallucinations, logger)
		if err != nil {
			return nil, nil, err
		}
		return g, func() { g.Close() }, nil
	case "mock":
		return stt.NewMockSpeechToText(logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported transcription backend: %s", t.Backend)
	}
}

func newConversation(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.Conversation, func(), error) {
	a := cfg.Assistant
	switch a.Backend {
	case "openai":
		client, err := llm.NewAssistantClient(llm.AssistantConfig{
			APIKey:       cfg.Secrets.OpenAIAPIKey,
			AssistantID:  cfg.Secrets.OpenAIAssistantID,
			BaseURL:      a.BaseURL,
			PollInterval: a.PollInterval,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	case "gemini":
		var sessions repositories.SessionRepository
		closeStore := func() {}
		if a.HistoryStore == "mongo" {
			client, err := mongo.NewClient(ctx, cfg.Secrets.MongoDBURI, cfg.Secrets.MongoDBDatabase, logger)
			if err != nil {
				return nil, nil, err
			}
			sessions = mongo.NewSessionRepository(client.Database, logger)
			closeStore = func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				client.Close(closeCtx)
			}
		} else {
			sessions = memory.NewSessionRepository()
		}

		gemini, err := llm.NewGeminiConversation(ctx, llm.GeminiConfig{
			APIKey:       cfg.Secrets.GeminiAPIKey,
			Model:        a.GeminiModel,
			SystemPrompt: a.SystemPrompt,
			Language:     cfg.Transcription.Language,
			HistoryLimit: a.HistoryLimit,
		}, sessions, logger)
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		return gemini, closeStore, nil
	case "mock":
		return llm.NewMockConversation(logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported assistant backend: %s", a.Backend)
	}
}

// newTextToSpeech returns nil when no engine can be built; replies are then only logged.
func newTextToSpeech(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, func()) {
	t := cfg.TTS
	if t.Backend == "elevenlabs" && cfg.Secrets.ElevenLabsAPIKey == "" {
		logger.Warn("Speech output unavailable: ELEVEN_LABS_API_KEY is not set")
		return nil, func() {}
	}

	sampleRate := 24000
	if t.Backend == "elevenlabs" {
		rate, err := config.PCMSampleRate(t.OutputFormat)
		if err != nil {
			logger.Warn("Speech output unavailable", zap.Error(err))
			return nil, func() {}
		}
		sampleRate = rate
	}

	var player repositories.AudioOutput
	closePlayer := func() {}
	if p, err := audio.NewPortAudioPlayer(sampleRate); err != nil {
		logger.Warn("Audio output unavailable, speech will not be played", zap.Error(err))
	} else {
		player = p
		closePlayer = func() { p.Close() }
	}

	switch t.Backend {
	case "elevenlabs":
		engine, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.Secrets.ElevenLabsAPIKey,
			APIBaseURL:   t.BaseURL,
			VoiceID:      t.VoiceID,
			ModelID:      t.ModelID,
			OutputFormat: t.OutputFormat,
			LanguageCode: cfg.Transcription.Language,
			Timeout:      t.SynthesisTimeout,
		}, player, logger)
		if err != nil {
			logger.Warn("Speech output unavailable", zap.Error(err))
			closePlayer()
			return nil, func() {}
		}
		return engine, closePlayer
	case "mock":
		return tts.NewMockTextToSpeech(player, logger), closePlayer
	default:
		closePlayer()
		logger.Warn("Speech output unavailable", zap.Error(fmt.Errorf("%w: unsupported backend %s", domain.ErrTTSConfig, t.Backend)))
		return nil, func() {}
	}
}

func startMonitor(cfg *config.Config, pipeline *usecase.Pipeline, hub *websocket.Hub, m *metrics.Metrics, logger *zap.Logger) *echo.Echo {
	var tokens *auth.TokenService
	if cfg.Secrets.MonitorJWTSecret != "" {
		t, err := auth.NewTokenService(cfg.Secrets.MonitorJWTSecret, cfg.Monitor.TokenTTL)
		if err != nil {
			logger.Fatal("Failed to create token service", zap.Error(err))
		}
		tokens = t
	} else {
		logger.Warn("MONITOR_JWT_SECRET is not set, monitor API is unauthenticated")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("Monitor request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, pipeline, hub, m, api.RouteConfig{
		ArchiveDir: cfg.TTS.ArchiveDir,
		Tokens:     tokens,
	}, logger)

	go func() {
		if err := e.Start(cfg.Monitor.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Monitor server stopped", zap.Error(err))
		}
	}()
	logger.Info("Monitor started", zap.String("address", cfg.Monitor.Address))
	return e
}
