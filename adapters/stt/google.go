package stt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/pcm"
)

// Google limits a single streaming request to 25 KB of audio
const googleChunkBytes = 16 * 1024

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

var googleLanguageCodes = map[string]string{
	"sk": "sk-SK",
	"cs": "cs-CZ",
	"en": "en-US",
	"de": "de-DE",
	"hu": "hu-HU",
	"pl": "pl-PL",
}

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	filter bool
	logger *zap.Logger
}

// NewGoogleSpeechToText creates a client using application default credentials
func NewGoogleSpeechToText(ctx context.Context, filterHallucinations bool, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{client: client, filter: filterHallucinations, logger: logger}, nil
}

// Transcribe streams LINEAR16 audio and reports every final result as a segment
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, audio []float32, sampleRate int, opts repositories.TranscribeOptions, onSegment func(repositories.Segment)) (repositories.TranscriptionInfo, error) {
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

	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	// Send initial configuration
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(sampleRate),
					LanguageCode:               GoogleLanguageCode(opts.Language),
					MaxAlternatives:            1,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: false,
			},
		},
	}); err != nil {
		stream.CloseSend()
		return info, fmt.Errorf("failed to send streaming config: %w", err)
	}

	data := pcm.Bytes(pcm.FromFloat32(audio))
	for len(data) > 0 {
		n := min(googleChunkBytes, len(data))
		if err := stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
				AudioContent: data[:n],
			},
		}); err != nil {
			return info, fmt.Errorf("failed to send audio data: %w", err)
		}
		data = data[n:]
	}

	// Close the send stream to signal end of audio
	if err := stream.CloseSend(); err != nil {
		return info, fmt.Errorf("failed to close send stream: %w", err)
	}

	var previousEnd time.Duration
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return info, nil
		}
		if err != nil {
			return info, fmt.Errorf("failed to receive response: %w", err)
		}

		for _, result := range resp.Results {
			if !result.IsFinal || len(result.Alternatives) == 0 {
				continue
			}
			if result.LanguageCode != "" {
				info.Language = result.LanguageCode
			}

			end := previousEnd
			if result.ResultEndTime != nil {
				end = result.ResultEndTime.AsDuration()
			}
			text := strings.TrimSpace(result.Alternatives[0].Transcript)
			if text != "" && !(g.filter && IsHallucination(text)) {
				onSegment(repositories.Segment{Text: text, Start: previousEnd, End: end})
			}
			previousEnd = end
		}
	}
}

// Close closes the underlying client
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

// GoogleLanguageCode expands a two-letter language into a BCP-47 code Google accepts
func GoogleLanguageCode(language string) string {
	if code, ok := googleLanguageCodes[strings.ToLower(language)]; ok {
		return code
	}
	if language == "" {
		return "sk-SK"
	}
	return language
}
