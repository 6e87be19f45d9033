package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`[^`]*`")
	mdLinkRe     = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	urlRe        = regexp.MustCompile(`https?://\S+`)
	dollarsRe    = regexp.MustCompile(`\$(\d+(?:[.,]\d+)*)`)
)

// spokenSymbols turns symbols that carry meaning into words. Longer keys
// come first so "°F" wins over "°".
var spokenSymbols = strings.NewReplacer(
	"°F", " degrees Fahrenheit",
	"°C", " degrees Celsius",
	"°", " degrees",
	"%", " percent",
	"&", " and ",
	"+", " plus ",
	"=", " equals ",
	"@", " at ",
)

// markupSymbols are formatting noise that reads as nothing.
var markupSymbols = strings.NewReplacer(
	"*", " ", "_", " ", "\\", " ", "/", " ", "|", " ",
	"#", " ", "~", " ", "<", " ", ">", " ",
)

// SanitizeSpeechText rewrites model output into plain text for TTS. Code
// and URLs are dropped, link labels kept, meaningful symbols spoken as
// words and the remaining markup and emoji removed.
func SanitizeSpeechText(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = fencedCodeRe.ReplaceAllString(text, " ")
	text = inlineCodeRe.ReplaceAllString(text, " ")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = urlRe.ReplaceAllString(text, " ")
	text = dollarsRe.ReplaceAllString(text, "$1 dollars")
	text = spokenSymbols.Replace(text)
	text = markupSymbols.Replace(text)
	return collapseSpeech(text)
}

// collapseSpeech keeps letters, digits and sentence punctuation, folds
// whitespace runs to one space and drops emoji joiners and pictographs.
func collapseSpeech(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	emit := func(r rune) {
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}

	for _, r := range text {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
		case spokenPunct(r):
			emit(r)
		case unicode.IsPunct(r):
			pendingSpace = true
		default:
			emit(r)
		}
	}
	return b.String()
}

func spokenPunct(r rune) bool {
	return strings.ContainsRune(`.,!?:;'"-()`, r)
}
