package stt

import (
	"math"
	"strings"
	"time"
)

const (
	vadWindow      = 30 * time.Millisecond
	vadEnergyFloor = 0.01
)

var hallucinationTags = map[string]bool{
	"[blank_audio]": true,
	"(music)":       true,
	"[music]":       true,
	"(noise)":       true,
	"(clapping)":    true,
	"(applause)":    true,
	"[silence]":     true,
	"(ticho)":       true,
	"[hudba]":       true,
}

// IsHallucination reports whether text is a non-speech tag that whisper emits for
// silence or noise, e.g. "[BLANK_AUDIO]" or "(Music)"
func IsHallucination(text string) bool {
	s := strings.TrimSpace(text)
	if hallucinationTags[strings.ToLower(s)] {
		return true
	}
	return len(s) > 2 &&
		((s[0] == '[' && s[len(s)-1] == ']') || (s[0] == '(' && s[len(s)-1] == ')')) &&
		!strings.ContainsAny(s[1:len(s)-1], "[]()")
}

// TrimSilence drops leading and trailing 30 ms windows whose RMS energy is below the
// floor. An all-silent buffer trims to nothing.
func TrimSilence(audio []float32, sampleRate int) []float32 {
	window := int(int64(sampleRate) * int64(vadWindow) / int64(time.Second))
	if window < 1 || len(audio) == 0 {
		return audio
	}

	start := 0
	for start < len(audio) && rms(audio[start:min(start+window, len(audio))]) < vadEnergyFloor {
		start += window
	}
	if start >= len(audio) {
		return audio[:0]
	}

	end := len(audio)
	for end > start {
		from := max(end-window, start)
		if rms(audio[from:end]) >= vadEnergyFloor {
			break
		}
		end = from
	}
	return audio[start:end]
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func samplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}
