package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/pcm"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"   // Rachel voice
	defaultOutputFormat = "pcm_24000"              // PCM format for real-time applications
	defaultModelID      = "eleven_multilingual_v2" // Default model ID
	defaultStability    = 0.5                      // Default voice stability
	defaultClarity      = 0.75                     // Default voice clarity/similarity_boost
	defaultTimeout      = 30 * time.Second
)

// ElevenLabsConfig holds configuration for the ElevenLabsTTS adapter
// Required fields:
// - APIKey: Your Eleven Labs API key
// Optional fields with defaults:
// - APIBaseURL: The base URL for the Eleven Labs API (default: "https://api.elevenlabs.io/v1")
// - VoiceID: The voice ID to use (default: "21m00Tcm4TlvDq8ikWAM" - Rachel voice)
// - ModelID: The model ID to use (default: "eleven_multilingual_v2")
// - OutputFormat: A raw PCM output format (default: "pcm_24000")
// - Stability: Voice stability value between 0 and 1 (default: 0.5)
// - Clarity: Voice clarity/similarity boost value between 0 and 1 (default: 0.75)
// - Timeout: Deadline for one synthesis including playback (default: 30s)
type ElevenLabsConfig struct {
	APIKey       string        // Required: Your Eleven Labs API key
	APIBaseURL   string        // Optional: The base URL for the Eleven Labs API
	VoiceID      string        // Optional: The voice ID to use
	ModelID      string        // Optional: The model ID to use
	OutputFormat string        // Optional: The output format
	LanguageCode string        // Optional: ISO 639-1 hint passed to the model
	Stability    float64       // Optional: Voice stability value between 0 and 1
	Clarity      float64       // Optional: Voice clarity/similarity boost value between 0 and 1
	Timeout      time.Duration // Optional: Synthesis deadline
}

// ElevenLabsTTS implements TextToSpeech using the Eleven Labs streaming API.
// Audio is written to the player chunk by chunk while the response is still arriving.
type ElevenLabsTTS struct {
	apiKey       string
	apiBaseURL   string
	voiceID      string
	modelID      string
	outputFormat string
	sampleRate   int
	languageCode string
	stability    float64
	clarity      float64
	timeout      time.Duration
	player       repositories.AudioOutput
	httpClient   *http.Client
	logger       *zap.Logger
}

// Ensure ElevenLabsTTS implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

// ElevenLabsVoiceSettings represents voice settings for Eleven Labs API
type ElevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// ElevenLabsRequest represents the request payload for Eleven Labs TTS API
type ElevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	LanguageCode           string                  `json:"language_code,omitempty"`
	VoiceSettings          ElevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

// streamChunk is one JSON object of the with-timestamps stream
type streamChunk struct {
	AudioBase64 string              `json:"audio_base64"`
	Alignment   *characterAlignment `json:"alignment"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}

	// Validate stability is in the valid range
	if config.Stability != 0 && (config.Stability < 0 || config.Stability > 1) {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}

	// Validate clarity is in the valid range
	if config.Clarity != 0 && (config.Clarity < 0 || config.Clarity > 1) {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}

	if config.OutputFormat != "" {
		if _, err := SampleRateForFormat(config.OutputFormat); err != nil {
			return err
		}
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", config.Timeout)
	}

	return nil
}

// SampleRateForFormat returns the sample rate of a raw PCM output format such as pcm_24000
func SampleRateForFormat(format string) (int, error) {
	rate, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("output format %q is not raw PCM", format)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("output format %q has no valid sample rate", format)
	}
	return n, nil
}

// NewElevenLabsTTS creates a new Eleven Labs TTS instance. player may be nil when the
// instance is only used for SynthesizeToFile.
func NewElevenLabsTTS(config ElevenLabsConfig, player repositories.AudioOutput, logger *zap.Logger) (*ElevenLabsTTS, error) {
	// Validate required configuration
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, domain.NewTTSConfigError("new elevenlabs", err)
	}

	// Apply defaults where needed
	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}

	voiceID := config.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
		logger.Info("Using default voice ID", zap.String("voiceID", voiceID))
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = defaultModelID
	}

	outputFormat := config.OutputFormat
	if outputFormat == "" {
		outputFormat = defaultOutputFormat
	}
	sampleRate, _ := SampleRateForFormat(outputFormat)

	stability := config.Stability
	if stability == 0 {
		stability = defaultStability
	}

	clarity := config.Clarity
	if clarity == 0 {
		clarity = defaultClarity
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	if player != nil && player.SampleRate() != sampleRate {
		return nil, domain.NewTTSConfigError("new elevenlabs",
			fmt.Errorf("player runs at %d Hz but output format %s is %d Hz", player.SampleRate(), outputFormat, sampleRate))
	}

	logger.Info("Eleven Labs TTS configured",
		zap.String("voiceID", voiceID),
		zap.String("modelID", modelID),
		zap.String("outputFormat", outputFormat),
		zap.Duration("timeout", timeout))

	return &ElevenLabsTTS{
		apiKey:       config.APIKey,
		apiBaseURL:   strings.TrimRight(apiBaseURL, "/"),
		voiceID:      voiceID,
		modelID:      modelID,
		outputFormat: outputFormat,
		sampleRate:   sampleRate,
		languageCode: config.LanguageCode,
		stability:    stability,
		clarity:      clarity,
		timeout:      timeout,
		player:       player,
		httpClient:   &http.Client{},
		logger:       logger,
	}, nil
}

// Synthesize streams text through the API and plays it as the audio arrives
func (e *ElevenLabsTTS) Synthesize(ctx context.Context, text string, onBoundary func(repositories.WordBoundary)) error {
	const op = "synthesize"
	if e.player == nil {
		return domain.NewTTSConfigError(op, errors.New("no audio output configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	tracker := &wordTracker{}
	played := time.Duration(0)

	emit := func(boundaries []repositories.WordBoundary) {
		if onBoundary == nil {
			return
		}
		for _, b := range boundaries {
			onBoundary(b)
		}
	}

	err := e.stream(ctx, op, text, func(samples []int16, alignment *characterAlignment) error {
		emit(tracker.feed(alignment, played))
		if err := e.player.Write(ctx, samples); err != nil {
			return err
		}
		played += samplesDuration(len(samples), e.sampleRate)
		return nil
	})
	if err != nil {
		return err
	}

	if b, ok := tracker.flush(); ok {
		emit([]repositories.WordBoundary{b})
	}

	e.logger.Debug("Utterance synthesized",
		zap.Int("runes", len([]rune(text))),
		zap.Duration("audio", played),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// SynthesizeToFile renders text into a 16-bit mono WAV file at path
func (e *ElevenLabsTTS) SynthesizeToFile(ctx context.Context, text, path string) error {
	const op = "synthesize to file"

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var samples []int16
	err := e.stream(ctx, op, text, func(chunk []int16, _ *characterAlignment) error {
		samples = append(samples, chunk...)
		return nil
	})
	if err != nil {
		return err
	}

	return writeWAV(op, path, samples, e.sampleRate)
}

// stream posts text to the with-timestamps endpoint and hands every decoded chunk to
// onChunk. Any failure is returned as a *domain.TTSError.
func (e *ElevenLabsTTS) stream(ctx context.Context, op, text string, onChunk func([]int16, *characterAlignment) error) error {
	if strings.TrimSpace(text) == "" {
		return domain.NewTTSConfigError(op, errors.New("text cannot be empty"))
	}

	request := ElevenLabsRequest{
		Text:                   text,
		ModelID:                e.modelID,
		LanguageCode:           e.languageCode,
		ApplyTextNormalization: "auto",
		VoiceSettings: ElevenLabsVoiceSettings{
			Stability:       e.stability,
			SimilarityBoost: e.clarity,
			Style:           0.0,
			UseSpeakerBoost: true,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return domain.NewTTSConfigError(op, fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream/with-timestamps?output_format=%s&enable_logging=false",
		e.apiBaseURL, e.voiceID, e.outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return domain.NewTTSConfigError(op, fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	e.logger.Debug("Sending request to Eleven Labs API",
		zap.String("voiceID", e.voiceID),
		zap.Int("runes", len([]rune(text))))

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return domain.NewTTSServiceError(op, fmt.Errorf("failed to execute HTTP request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("API returned error %d: %s", resp.StatusCode, strings.TrimSpace(string(errorBody)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound {
			return domain.NewTTSConfigError(op, err)
		}
		return domain.NewTTSServiceError(op, err)
	}

	decoder := json.NewDecoder(resp.Body)
	var carry []byte
	chunkCount := 0
	for {
		var chunk streamChunk
		if err := decoder.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return domain.NewTTSServiceError(op, ctx.Err())
			}
			return domain.NewTTSServiceError(op, fmt.Errorf("failed to decode stream chunk: %w", err))
		}

		audio, err := base64.StdEncoding.DecodeString(chunk.AudioBase64)
		if err != nil {
			return domain.NewTTSServiceError(op, fmt.Errorf("failed to decode audio: %w", err))
		}

		// Chunks are not guaranteed to end on a sample boundary.
		audio = append(carry, audio...)
		even := len(audio) &^ 1
		carry = append([]byte(nil), audio[even:]...)

		chunkCount++
		if err := onChunk(pcm.FromBytes(audio[:even]), chunk.Alignment); err != nil {
			return domain.NewTTSServiceError(op, err)
		}
	}

	if chunkCount == 0 {
		return domain.NewTTSServiceError(op, errors.New("stream contained no audio"))
	}
	return nil
}

// GetAvailableVoices retrieves available voices from Eleven Labs API
func (e *ElevenLabsTTS) GetAvailableVoices(ctx context.Context) ([]map[string]interface{}, error) {
	url := fmt.Sprintf("%s/voices", e.apiBaseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("xi-api-key", e.apiKey)

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned error %d: %s", resp.StatusCode, string(errorBody))
	}

	var voicesResponse struct {
		Voices []map[string]interface{} `json:"voices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&voicesResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	e.logger.Info("Retrieved available voices", zap.Int("count", len(voicesResponse.Voices)))
	return voicesResponse.Voices, nil
}

// SampleRate returns the rate of the synthesized audio
func (e *ElevenLabsTTS) SampleRate() int {
	return e.sampleRate
}

func samplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

func writeWAV(op, path string, samples []int16, rate int) error {
	data, err := pcm.EncodeWAV(samples, rate)
	if err != nil {
		return domain.NewTTSServiceError(op, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.NewTTSServiceError(op, fmt.Errorf("failed to write %s: %w", path, err))
	}
	return nil
}
