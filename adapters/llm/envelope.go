package llm

import (
	"fmt"
	"time"
)

// FormatMessage wraps a user utterance as "[YYYY-MM-DD HH:MM:SS] [author]: text"
func FormatMessage(at time.Time, author, text string) string {
	return fmt.Sprintf("[%s] [%s]: %s", at.Format("2006-01-02 15:04:05"), author, text)
}
