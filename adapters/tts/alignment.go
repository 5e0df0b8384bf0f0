package tts

import (
	"time"
	"unicode"

	"github.com/satriahrh/elena/assistant/domain/repositories"
)

// characterAlignment is the per-chunk character timing returned by the streaming endpoint.
// Times are relative to the start of the chunk's audio.
type characterAlignment struct {
	Characters []string  `json:"characters"`
	StartTimes []float64 `json:"character_start_times_seconds"`
	EndTimes   []float64 `json:"character_end_times_seconds"`
}

// wordTracker turns a stream of aligned characters into word boundaries
type wordTracker struct {
	offset    int
	inWord    bool
	start     int
	startTime time.Duration
	word      []rune
}

// feed consumes one chunk's alignment. base is the audio duration already played before
// the chunk. Completed words are returned in order.
func (w *wordTracker) feed(alignment *characterAlignment, base time.Duration) []repositories.WordBoundary {
	if alignment == nil {
		return nil
	}

	var boundaries []repositories.WordBoundary
	for i, char := range alignment.Characters {
		var at time.Duration
		if i < len(alignment.StartTimes) {
			at = base + time.Duration(alignment.StartTimes[i]*float64(time.Second))
		}

		for _, r := range char {
			if unicode.IsSpace(r) {
				if b, ok := w.finish(); ok {
					boundaries = append(boundaries, b)
				}
			} else {
				if !w.inWord {
					w.inWord = true
					w.start = w.offset
					w.startTime = at
				}
				w.word = append(w.word, r)
			}
			w.offset++
		}
	}
	return boundaries
}

// flush returns the trailing word, if the stream ended inside one
func (w *wordTracker) flush() (repositories.WordBoundary, bool) {
	return w.finish()
}

func (w *wordTracker) finish() (repositories.WordBoundary, bool) {
	if !w.inWord {
		return repositories.WordBoundary{}, false
	}
	b := repositories.WordBoundary{
		AudioOffset: w.startTime,
		TextOffset:  w.start,
		WordLength:  len(w.word),
		Text:        string(w.word),
	}
	w.inWord = false
	w.word = w.word[:0]
	return b, true
}
