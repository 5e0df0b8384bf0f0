package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/adapters/audio"
	"github.com/satriahrh/elena/assistant/adapters/tts"
	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/config"
	"github.com/satriahrh/elena/assistant/internal/speech"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	text := flag.String("text", "Ahoj! Som Elena, tvoja hlasová asistentka.", "text to synthesize")
	out := flag.String("out", "", "write a WAV file instead of playing through the speaker")
	voices := flag.Bool("voices", false, "list available voices and exit")
	flag.Parse()

	godotenv.Load()

	// Create logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if cfg.Secrets.ElevenLabsAPIKey == "" {
		logger.Fatal("ELEVEN_LABS_API_KEY environment variable is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TTS.SynthesisTimeout+10*time.Second)
	defer cancel()

	var player repositories.AudioOutput
	if *out == "" && !*voices {
		rate, err := config.PCMSampleRate(cfg.TTS.OutputFormat)
		if err != nil {
			logger.Fatal("Unsupported output format", zap.Error(err))
		}
		p, err := audio.NewPortAudioPlayer(rate)
		if err != nil {
			logger.Fatal("Failed to open audio output", zap.Error(err))
		}
		defer p.Close()
		player = p
	}

	engine, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
		APIKey:       cfg.Secrets.ElevenLabsAPIKey,
		APIBaseURL:   cfg.TTS.BaseURL,
		VoiceID:      cfg.TTS.VoiceID,
		ModelID:      cfg.TTS.ModelID,
		OutputFormat: cfg.TTS.OutputFormat,
		LanguageCode: cfg.Transcription.Language,
		Timeout:      cfg.TTS.SynthesisTimeout,
	}, player, logger)
	if err != nil {
		logger.Fatal("Failed to create TTS service", zap.Error(err))
	}

	if *voices {
		list, err := engine.GetAvailableVoices(ctx)
		if err != nil {
			logger.Fatal("Failed to get available voices", zap.Error(err))
		}
		fmt.Printf("Available voices (%d):\n", len(list))
		for _, voice := range list {
			fmt.Printf("  - %s (ID: %s)\n", voice["name"], voice["voice_id"])
		}
		return
	}

	cleaned := speech.Clean(*text)
	logger.Info("Converting text to speech", zap.String("text", cleaned))

	if *out != "" {
		if err := engine.SynthesizeToFile(ctx, cleaned, *out); err != nil {
			logger.Fatal("Failed to synthesize", zap.Error(err))
		}
		fmt.Printf("Audio saved to %s\n", *out)
		return
	}

	var words []string
	err = engine.Synthesize(ctx, cleaned, func(b repositories.WordBoundary) {
		words = append(words, fmt.Sprintf("%s@%s", b.Text, b.AudioOffset))
	})
	if err != nil {
		logger.Fatal("Failed to synthesize", zap.Error(err))
	}
	fmt.Printf("Spoken: %s\n", strings.Join(words, " "))
}
