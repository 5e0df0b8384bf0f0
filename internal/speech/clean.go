package speech

import (
	"regexp"
	"strings"
)

var (
	// "[2024-05-01 12:00:00] [Elena]: " as echoed back by some assistants
	envelopePrefix = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[[^\]]+\]:\s*`)
	pictographs    = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{FE0F}\x{200D}]`)
	repeatedSpace  = regexp.MustCompile(`[ \t]{2,}`)
)

// Clean prepares reply text for synthesis: it strips a leading timestamp and author
// envelope and removes emoji.
func Clean(text string) string {
	text = envelopePrefix.ReplaceAllString(strings.TrimSpace(text), "")
	text = pictographs.ReplaceAllString(text, "")
	text = repeatedSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
