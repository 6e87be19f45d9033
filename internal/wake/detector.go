// Package wake classifies finalized transcripts as wake / not-wake.
//
// A Detector first looks for any configured phrase as a whole-word,
// case-insensitive substring of the heard text. If none is present it
// falls back to a fuzzy similarity score between each phrase and every
// run of words of about the phrase's length, which catches recognizer
// mishearings that the phrase list does not enumerate.
package wake

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the minimum fuzzy score (0-100) accepted as a wake.
const DefaultThreshold = 75

// DefaultPhrases is the canonical phrase plus common recognizer mishearings.
var DefaultPhrases = []string{
	"hey navi", "hi navi", "okay navi",
	"hey naughty", "hi naughty", "okay naughty",
	"hey navy", "hi navy", "okay navy",
	"hey neighbor", "hi neighbor", "okay neighbor",
}

type Method string

const (
	MethodExact Method = "exact"
	MethodFuzzy Method = "fuzzy"
)

// Match describes why a transcript was accepted.
type Match struct {
	Phrase string
	Score  int
	Method Method
}

// Detector is immutable once built and safe for concurrent use.
type Detector struct {
	phrases   []string
	patterns  []*regexp.Regexp
	threshold int
}

// New builds a detector. An empty phrase list falls back to DefaultPhrases,
// and a threshold outside 1..100 falls back to DefaultThreshold.
func New(phrases []string, threshold int) (*Detector, error) {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	d := &Detector{threshold: threshold}
	seen := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		p = Normalize(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(p) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compile wake phrase %q: %w", p, err)
		}
		d.phrases = append(d.phrases, p)
		d.patterns = append(d.patterns, re)
	}
	if len(d.phrases) == 0 {
		return nil, fmt.Errorf("no usable wake phrases")
	}
	return d, nil
}

// IsWake reports whether text should open a session.
func (d *Detector) IsWake(text string) bool {
	_, ok := d.Match(text)
	return ok
}

// Match returns the phrase that accepted text, if any.
func (d *Detector) Match(text string) (Match, bool) {
	t := Normalize(text)
	if t == "" {
		return Match{}, false
	}
	for i, re := range d.patterns {
		if re.MatchString(t) {
			return Match{Phrase: d.phrases[i], Score: 100, Method: MethodExact}, true
		}
	}
	words := strings.Fields(t)
	best := Match{Method: MethodFuzzy}
	for _, p := range d.phrases {
		for _, w := range windows(words, len(strings.Fields(p))) {
			if score := Similarity(p, w); score > best.Score {
				best.Phrase = p
				best.Score = score
			}
		}
	}
	return best, best.Score >= d.threshold
}

// windows returns every run of n-1, n and n+1 consecutive words. A split or
// merged word in the transcript still lines up with the phrase.
func windows(words []string, n int) []string {
	if len(words) <= n {
		return []string{strings.Join(words, " ")}
	}
	var out []string
	for size := max(1, n-1); size <= n+1 && size <= len(words); size++ {
		for i := 0; i+size <= len(words); i++ {
			out = append(out, strings.Join(words[i:i+size], " "))
		}
	}
	return out
}

func (d *Detector) Threshold() int { return d.threshold }

func (d *Detector) Phrases() []string {
	out := make([]string, len(d.phrases))
	copy(out, d.phrases)
	return out
}

// Similarity is a 0-100 ratio derived from the rune-level edit distance,
// normalized by the longer string.
func Similarity(a, b string) int {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(longest))))
}

// Normalize lowercases, folds diacritics, drops apostrophes, turns other
// punctuation into spaces and collapses whitespace.
func Normalize(s string) string {
	folded, _, err := transform.String(normalizer(), s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func normalizer() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(isApostrophe)),
		runes.Map(func(r rune) rune {
			if unicode.IsPunct(r) || unicode.IsSymbol(r) {
				return ' '
			}
			return r
		}),
		norm.NFC,
	)
}

func isApostrophe(r rune) bool { return r == '\'' || r == '\u2019' }
