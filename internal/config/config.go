package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredential is returned when a selected backend has no credential in the environment
var ErrMissingCredential = errors.New("missing credential")

// DefaultFallbackMessage is spoken when the conversational backend cannot be reached
const DefaultFallbackMessage = "Prepáč, Elena má technický problém s komunikáciou."

// Config represents the complete assistant configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Controls      ControlsConfig      `yaml:"controls"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Assistant     AssistantConfig     `yaml:"assistant"`
	TTS           TTSConfig           `yaml:"tts"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Monitor       MonitorConfig       `yaml:"monitor"`
	Logging       LoggingConfig       `yaml:"logging"`

	Secrets Secrets `yaml:"-"`
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	SampleRate      int           `yaml:"sample_rate"`
	Channels        int           `yaml:"channels"`
	BlockSize       int           `yaml:"block_size"`
	PreRoll         time.Duration `yaml:"pre_roll"`
	PostRoll        time.Duration `yaml:"post_roll"`
	Device          string        `yaml:"device"`
	ModelSampleRate int           `yaml:"model_sample_rate"`
}

// ControlsConfig contains the push-to-talk binding
type ControlsConfig struct {
	PTTKey string `yaml:"ptt_key"`
}

// TranscriptionConfig contains speech-to-text parameters
type TranscriptionConfig struct {
	Backend              string  `yaml:"backend"`
	ModelPath            string  `yaml:"model_path"`
	Language             string  `yaml:"language"`
	BeamSize             int     `yaml:"beam_size"`
	BestOf               int     `yaml:"best_of"`
	Temperature          float32 `yaml:"temperature"`
	VADFilter            bool    `yaml:"vad_filter"`
	NoSpeechThreshold    float32 `yaml:"no_speech_threshold"`
	Workers              int     `yaml:"workers"`
	Threads              int     `yaml:"threads"`
	RemoteEndpoint       string  `yaml:"remote_endpoint"`
	RemoteModel          string  `yaml:"remote_model"`
	FilterHallucinations bool    `yaml:"filter_hallucinations"`
}

// AssistantConfig contains the conversational backend parameters
type AssistantConfig struct {
	Backend         string        `yaml:"backend"`
	Author          string        `yaml:"author"`
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialBackoff  time.Duration `yaml:"initial_backoff"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	SessionFile     string        `yaml:"session_file"`
	FallbackMessage string        `yaml:"fallback_message"`
	BaseURL         string        `yaml:"base_url"`
	GeminiModel     string        `yaml:"gemini_model"`
	SystemPrompt    string        `yaml:"system_prompt"`
	HistoryStore    string        `yaml:"history_store"`
	HistoryLimit    int           `yaml:"history_limit"`
}

// TTSConfig contains speech synthesis parameters
type TTSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Backend          string        `yaml:"backend"`
	BaseURL          string        `yaml:"base_url"`
	VoiceID          string        `yaml:"voice_id"`
	ModelID          string        `yaml:"model_id"`
	OutputFormat     string        `yaml:"output_format"`
	QueueMaxSize     int           `yaml:"queue_max_size"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
	ArchiveDir       string        `yaml:"archive_dir"`
}

// PipelineConfig contains stage queue sizes
type PipelineConfig struct {
	JobQueueSize        int           `yaml:"job_queue_size"`
	TranscriptQueueSize int           `yaml:"transcript_queue_size"`
	ResponseQueueSize   int           `yaml:"response_queue_size"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
}

// MonitorConfig contains the monitor HTTP API parameters
type MonitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Secrets holds credentials read from the environment
type Secrets struct {
	OpenAIAPIKey      string
	OpenAIAssistantID string
	GeminiAPIKey      string
	ElevenLabsAPIKey  string
	MongoDBURI        string
	MongoDBDatabase   string
	MonitorJWTSecret  string
	STTRemoteAPIKey   string
}

// SecretsFromEnv reads credentials from environment variables
func SecretsFromEnv() Secrets {
	return Secrets{
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIAssistantID: os.Getenv("OPENAI_ASSISTANT_ID"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		ElevenLabsAPIKey:  os.Getenv("ELEVEN_LABS_API_KEY"),
		MongoDBURI:        os.Getenv("MONGODB_URI"),
		MongoDBDatabase:   os.Getenv("MONGODB_DATABASE"),
		MonitorJWTSecret:  os.Getenv("MONITOR_JWT_SECRET"),
		STTRemoteAPIKey:   os.Getenv("STT_REMOTE_API_KEY"),
	}
}

// Default returns the configuration used for every key the file leaves out
func Default() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			BlockSize:       1024,
			PreRoll:         500 * time.Millisecond,
			PostRoll:        500 * time.Millisecond,
			ModelSampleRate: 16000,
		},
		Controls: ControlsConfig{PTTKey: "f12"},
		Transcription: TranscriptionConfig{
			Backend:              "whisper",
			ModelPath:            "models/ggml-large-v3-turbo.bin",
			Language:             "sk",
			BeamSize:             5,
			BestOf:               5,
			Temperature:          0.0,
			VADFilter:            true,
			NoSpeechThreshold:    0.6,
			Workers:              3,
			Threads:              4,
			RemoteEndpoint:       "https://api.openai.com/v1/audio/transcriptions",
			RemoteModel:          "whisper-1",
			FilterHallucinations: true,
		},
		Assistant: AssistantConfig{
			Backend:         "openai",
			Author:          "Používateľ",
			MaxAttempts:     2,
			InitialBackoff:  2 * time.Second,
			CallTimeout:     30 * time.Second,
			PollInterval:    500 * time.Millisecond,
			SessionFile:     "thread_id.txt",
			FallbackMessage: DefaultFallbackMessage,
			BaseURL:         "https://api.openai.com/v1",
			GeminiModel:     "gemini-2.0-flash",
			SystemPrompt:    "Si Elena, priateľská hlasová asistentka. Odpovedaj stručne po slovensky.",
			HistoryStore:    "memory",
			HistoryLimit:    20,
		},
		TTS: TTSConfig{
			Enabled:          true,
			Backend:          "elevenlabs",
			BaseURL:          "https://api.elevenlabs.io/v1",
			VoiceID:          "21m00Tcm4TlvDq8ikWAM",
			ModelID:          "eleven_multilingual_v2",
			OutputFormat:     "pcm_24000",
			QueueMaxSize:     10,
			SynthesisTimeout: 30 * time.Second,
			ArchiveDir:       "speech",
		},
		Pipeline: PipelineConfig{
			JobQueueSize:        8,
			TranscriptQueueSize: 8,
			ResponseQueueSize:   8,
			ShutdownTimeout:     10 * time.Second,
		},
		Monitor: MonitorConfig{
			Enabled:  false,
			Address:  "127.0.0.1:8089",
			TokenTTL: 12 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.Secrets = SecretsFromEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Controls.Validate(); err != nil {
		return fmt.Errorf("controls config: %w", err)
	}
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Assistant.Validate(); err != nil {
		return fmt.Errorf("assistant config: %w", err)
	}
	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// ValidateCredentials checks that the environment carries the secrets the selected
// backends need
func (c *Config) ValidateCredentials() error {
	s := c.Secrets
	switch c.Assistant.Backend {
	case "openai":
		if s.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for the openai assistant", ErrMissingCredential)
		}
		if s.OpenAIAssistantID == "" {
			return fmt.Errorf("%w: OPENAI_ASSISTANT_ID is required for the openai assistant", ErrMissingCredential)
		}
	case "gemini":
		if s.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for the gemini assistant", ErrMissingCredential)
		}
		if c.Assistant.HistoryStore == "mongo" && s.MongoDBURI == "" {
			return fmt.Errorf("%w: MONGODB_URI is required for the mongo history store", ErrMissingCredential)
		}
	}

	if c.TTS.Enabled && c.TTS.Backend == "elevenlabs" && s.ElevenLabsAPIKey == "" {
		return fmt.Errorf("%w: ELEVEN_LABS_API_KEY is required for elevenlabs synthesis", ErrMissingCredential)
	}

	if c.Transcription.Backend == "remote" && s.STTRemoteAPIKey == "" && s.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: STT_REMOTE_API_KEY is required for remote transcription", ErrMissingCredential)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", a.SampleRate)
	}
	if a.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", a.Channels)
	}
	if a.BlockSize < 1 {
		return fmt.Errorf("block_size must be positive, got %d", a.BlockSize)
	}
	if a.PreRoll < 0 {
		return fmt.Errorf("pre_roll cannot be negative, got %s", a.PreRoll)
	}
	if a.PostRoll < 0 {
		return fmt.Errorf("post_roll cannot be negative, got %s", a.PostRoll)
	}
	if a.ModelSampleRate < 8000 {
		return fmt.Errorf("model_sample_rate must be at least 8000 Hz, got %d", a.ModelSampleRate)
	}
	return nil
}

// Validate validates the push-to-talk binding
func (c *ControlsConfig) Validate() error {
	if c.PTTKey == "" {
		return fmt.Errorf("ptt_key cannot be empty")
	}
	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	validBackends := map[string]bool{"whisper": true, "remote": true, "google": true, "mock": true}
	if !validBackends[t.Backend] {
		return fmt.Errorf("backend must be one of [whisper, remote, google, mock], got '%s'", t.Backend)
	}
	if t.Backend == "whisper" && t.ModelPath == "" {
		return fmt.Errorf("model_path cannot be empty for the whisper backend")
	}
	if t.Backend == "remote" && t.RemoteEndpoint == "" {
		return fmt.Errorf("remote_endpoint cannot be empty for the remote backend")
	}
	if t.BeamSize < 1 {
		return fmt.Errorf("beam_size must be at least 1, got %d", t.BeamSize)
	}
	if t.BestOf < 1 {
		return fmt.Errorf("best_of must be at least 1, got %d", t.BestOf)
	}
	if t.Temperature < 0 || t.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", t.Temperature)
	}
	if t.NoSpeechThreshold < 0 || t.NoSpeechThreshold > 1 {
		return fmt.Errorf("no_speech_threshold must be between 0 and 1, got %f", t.NoSpeechThreshold)
	}
	if t.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", t.Workers)
	}
	if t.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", t.Threads)
	}
	return nil
}

// Validate validates conversational backend configuration
func (a *AssistantConfig) Validate() error {
	validBackends := map[string]bool{"openai": true, "gemini": true, "mock": true}
	if !validBackends[a.Backend] {
		return fmt.Errorf("backend must be one of [openai, gemini, mock], got '%s'", a.Backend)
	}
	if a.Author == "" {
		return fmt.Errorf("author cannot be empty")
	}
	if a.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", a.MaxAttempts)
	}
	if a.InitialBackoff < 0 {
		return fmt.Errorf("initial_backoff cannot be negative, got %s", a.InitialBackoff)
	}
	if a.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive, got %s", a.CallTimeout)
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", a.PollInterval)
	}
	if a.SessionFile == "" {
		return fmt.Errorf("session_file cannot be empty")
	}
	if a.FallbackMessage == "" {
		return fmt.Errorf("fallback_message cannot be empty")
	}
	validStores := map[string]bool{"memory": true, "mongo": true}
	if !validStores[a.HistoryStore] {
		return fmt.Errorf("history_store must be 'memory' or 'mongo', got '%s'", a.HistoryStore)
	}
	return nil
}

// Validate validates synthesis configuration
func (t *TTSConfig) Validate() error {
	validBackends := map[string]bool{"elevenlabs": true, "mock": true}
	if !validBackends[t.Backend] {
		return fmt.Errorf("backend must be 'elevenlabs' or 'mock', got '%s'", t.Backend)
	}
	if t.Backend == "elevenlabs" && t.VoiceID == "" {
		return fmt.Errorf("voice_id cannot be empty for the elevenlabs backend")
	}
	if t.QueueMaxSize < 1 {
		return fmt.Errorf("queue_max_size must be at least 1, got %d", t.QueueMaxSize)
	}
	if t.SynthesisTimeout <= 0 {
		return fmt.Errorf("synthesis_timeout must be positive, got %s", t.SynthesisTimeout)
	}
	if _, err := PCMSampleRate(t.OutputFormat); err != nil {
		return err
	}
	return nil
}

// Validate validates stage queue sizes
func (p *PipelineConfig) Validate() error {
	if p.JobQueueSize < 1 {
		return fmt.Errorf("job_queue_size must be at least 1, got %d", p.JobQueueSize)
	}
	if p.TranscriptQueueSize < 1 {
		return fmt.Errorf("transcript_queue_size must be at least 1, got %d", p.TranscriptQueueSize)
	}
	if p.ResponseQueueSize < 1 {
		return fmt.Errorf("response_queue_size must be at least 1, got %d", p.ResponseQueueSize)
	}
	if p.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", p.ShutdownTimeout)
	}
	return nil
}

// Validate validates monitor configuration
func (m *MonitorConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when the monitor is enabled")
	}
	if m.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive, got %s", m.TokenTTL)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'console', got '%s'", l.Format)
	}
	return nil
}

// PCMSampleRate returns the sample rate of a pcm_<rate> output format
func PCMSampleRate(format string) (int, error) {
	switch format {
	case "pcm_16000":
		return 16000, nil
	case "pcm_22050":
		return 22050, nil
	case "pcm_24000":
		return 24000, nil
	case "pcm_44100":
		return 44100, nil
	}
	return 0, fmt.Errorf("output_format must be a pcm format (pcm_16000, pcm_22050, pcm_24000, pcm_44100), got '%s'", format)
}
