package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	namePattern     = regexp.MustCompile(`(?i)\bmy name is\s+([a-z][a-z\s'-]{1,40})\b`)
	rememberPattern = regexp.MustCompile(`(?i)\bremember (that\s+)?(.+)`)
	titleCaser      = cases.Title(language.English)
)

// MemoryWriter is the subset of the memory store the phrase hooks use.
type MemoryWriter interface {
	UpsertPerson(ctx context.Context, id, name string, traits map[string]any) error
	AddFact(ctx context.Context, id, text, source string, weight float64) error
}

// HandleMemoryPhrases stores names and facts the user states explicitly.
// It returns the reply to speak and true when the utterance was handled.
// The completion engine is not consulted for handled utterances.
func HandleMemoryPhrases(ctx context.Context, mem MemoryWriter, userID, text string) (string, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false, nil
	}

	if m := namePattern.FindStringSubmatch(text); m != nil {
		name := titleCaser.String(strings.Join(strings.Fields(m[1]), " "))
		if err := mem.UpsertPerson(ctx, userID, name, nil); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("Nice to meet you, %s. I'll remember that.", name), true, nil
	}

	if m := rememberPattern.FindStringSubmatch(text); m != nil {
		fact := strings.TrimRight(strings.TrimSpace(m[2]), ".")
		if fact == "" {
			return "", false, nil
		}
		if err := mem.AddFact(ctx, userID, fact, "user", 1.0); err != nil {
			return "", false, err
		}
		return "Got it. I'll remember that.", true, nil
	}

	return "", false, nil
}
