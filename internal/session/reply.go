package session

import (
	"regexp"
	"strings"

	"github.com/antoniostano/navi/internal/voice"
)

const (
	maxReplySentences = 3
	fallbackReply     = "I'm having trouble forming a response right now."
)

var sentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*(\s+|$)`)

// PostProcessReply makes an engine reply fit for speech: markup is removed,
// the reply is cut to at most three sentences and a trailing question mark
// is dropped unless the user asked a question.
func PostProcessReply(userText, reply string) string {
	out := limitSentences(voice.SanitizeSpeechText(reply), maxReplySentences)
	if !strings.Contains(userText, "?") {
		out = strings.TrimSpace(strings.TrimRight(out, "?"))
	}
	if out == "" {
		return fallbackReply
	}
	return out
}

func limitSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" || n <= 0 {
		return text
	}
	ends := sentenceEnd.FindAllStringIndex(text, -1)
	if len(ends) <= n {
		return text
	}
	return strings.TrimSpace(text[:ends[n-1][1]])
}

// summarize builds the rolling summary stored after a session.
func summarize(utterances []string) string {
	const maxLen = 280
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if u = strings.TrimSpace(u); u != "" {
			parts = append(parts, u)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	s := "Last session the user said: " + strings.Join(parts, "; ")
	if r := []rune(s); len(r) > maxLen {
		s = strings.TrimSpace(string(r[:maxLen-3])) + "..."
	}
	return s
}
