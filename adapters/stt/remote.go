package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/pcm"
)

var _ repositories.SpeechToText = (*RemoteWhisper)(nil)

// RemoteWhisperConfig configures an OpenAI-compatible transcription endpoint
type RemoteWhisperConfig struct {
	Endpoint             string
	APIKey               string
	Model                string
	Timeout              time.Duration
	FilterHallucinations bool
}

// RemoteWhisper uploads audio to an OpenAI-compatible /audio/transcriptions endpoint
type RemoteWhisper struct {
	config RemoteWhisperConfig
	client *http.Client
	logger *zap.Logger
}

type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// NewRemoteWhisper creates a new RemoteWhisper
func NewRemoteWhisper(config RemoteWhisperConfig, logger *zap.Logger) *RemoteWhisper {
	if config.Model == "" {
		config.Model = "whisper-1"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &RemoteWhisper{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Transcribe uploads audio as a WAV file and reports the returned segments in order
func (r *RemoteWhisper) Transcribe(ctx context.Context, audio []float32, sampleRate int, opts repositories.TranscribeOptions, onSegment func(repositories.Segment)) (repositories.TranscriptionInfo, error) {
	info := repositories.TranscriptionInfo{
		Language: opts.Language,
		Duration: samplesDuration(len(audio), sampleRate),
	}

	if opts.VADFilter {
		audio = TrimSilence(audio, sampleRate)
		if len(audio) == 0 {
			return info, nil
		}
	}

	wav, err := pcm.EncodeWAV(pcm.FromFloat32(audio), sampleRate)
	if err != nil {
		return info, fmt.Errorf("failed to encode audio: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return info, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return info, fmt.Errorf("failed to write audio: %w", err)
	}
	_ = writer.WriteField("model", r.config.Model)
	_ = writer.WriteField("response_format", "verbose_json")
	_ = writer.WriteField("temperature", strconv.FormatFloat(float64(opts.Temperature), 'f', -1, 32))
	if opts.Language != "" {
		_ = writer.WriteField("language", opts.Language)
	}
	if err := writer.Close(); err != nil {
		return info, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, body)
	if err != nil {
		return info, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return info, fmt.Errorf("failed to send transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return info, fmt.Errorf("transcription API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result verboseTranscription
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return info, fmt.Errorf("failed to decode transcription response: %w", err)
	}

	if result.Language != "" {
		info.Language = result.Language
	}
	if result.Duration > 0 {
		info.Duration = seconds(result.Duration)
	}

	emit := func(seg repositories.Segment) {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" || (r.config.FilterHallucinations && IsHallucination(seg.Text)) {
			return
		}
		onSegment(seg)
	}

	if len(result.Segments) == 0 {
		emit(repositories.Segment{Text: result.Text, End: info.Duration})
		return info, nil
	}
	for _, s := range result.Segments {
		emit(repositories.Segment{Text: s.Text, Start: seconds(s.Start), End: seconds(s.End)})
	}
	return info, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
