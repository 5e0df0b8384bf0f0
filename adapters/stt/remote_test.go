package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/elena/assistant/domain/repositories"
	"github.com/satriahrh/elena/assistant/internal/pcm"
)

func TestRemoteWhisper_Transcribe(t *testing.T) {
	var gotModel, gotLanguage, gotFormat, gotAuth string
	var gotRate int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		gotFormat = r.FormValue("response_format")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		_, gotRate, _ = pcm.DecodeWAV(data)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":     "Ahoj Elena. [BLANK_AUDIO]",
			"language": "slovak",
			"duration": 1.5,
			"segments": []map[string]interface{}{
				{"start": 0.0, "end": 0.8, "text": " Ahoj Elena."},
				{"start": 0.8, "end": 1.5, "text": " [BLANK_AUDIO]"},
			},
		})
	}))
	defer server.Close()

	remote := NewRemoteWhisper(RemoteWhisperConfig{
		Endpoint:             server.URL + "/v1/audio/transcriptions",
		APIKey:               "test-key",
		FilterHallucinations: true,
	}, zaptest.NewLogger(t))

	var segments []repositories.Segment
	info, err := remote.Transcribe(context.Background(), tone(24000, 0.2), 16000,
		repositories.TranscribeOptions{Language: "sk"},
		func(s repositories.Segment) { segments = append(segments, s) })
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotModel != "whisper-1" || gotLanguage != "sk" || gotFormat != "verbose_json" {
		t.Errorf("Unexpected form fields: model=%q language=%q format=%q", gotModel, gotLanguage, gotFormat)
	}
	if gotRate != 16000 {
		t.Errorf("Expected 16000 Hz upload, got %d", gotRate)
	}
	if len(segments) != 1 || segments[0].Text != "Ahoj Elena." {
		t.Errorf("Expected one filtered segment, got %+v", segments)
	}
	if segments[0].End != 800*time.Millisecond {
		t.Errorf("Expected segment end 800ms, got %s", segments[0].End)
	}
	if info.Language != "slovak" || info.Duration != 1500*time.Millisecond {
		t.Errorf("Unexpected info %+v", info)
	}
}

func TestRemoteWhisper_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	remote := NewRemoteWhisper(RemoteWhisperConfig{Endpoint: server.URL}, zaptest.NewLogger(t))
	_, err := remote.Transcribe(context.Background(), tone(1600, 0.2), 16000,
		repositories.TranscribeOptions{}, func(repositories.Segment) {
			t.Error("No segment expected on error")
		})
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Errorf("Expected status 401 error, got %v", err)
	}
}

func TestRemoteWhisper_SilentAudioSkipsRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	remote := NewRemoteWhisper(RemoteWhisperConfig{Endpoint: server.URL}, zaptest.NewLogger(t))
	info, err := remote.Transcribe(context.Background(), make([]float32, 16000), 16000,
		repositories.TranscribeOptions{VADFilter: true}, func(repositories.Segment) {})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if called {
		t.Error("Silent audio should not be uploaded")
	}
	if info.Duration != time.Second {
		t.Errorf("Expected original duration 1s, got %s", info.Duration)
	}
}
