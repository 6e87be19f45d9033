package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// GetContext builds the grounding digest handed to the completion engine:
// display name, traits, the most recent person facts, the rolling summary and
// the most recent global facts. It is empty when nothing is known.
func (s *Store) GetContext(ctx context.Context, id string) (string, error) {
	doc, err := s.ExportAll(ctx)
	if err != nil {
		return "", err
	}

	var lines []string
	if p := doc.People[strings.TrimSpace(id)]; p != nil {
		if p.Name != "" {
			lines = append(lines, "Name: "+p.Name)
		}
		if t := formatTraits(p.Traits); t != "" {
			lines = append(lines, "Traits: "+t)
		}
		if f := joinFacts(tail(p.Facts, s.recentFacts)); f != "" {
			lines = append(lines, "Known facts: "+f)
		}
		if p.RecentSummary != "" {
			lines = append(lines, "Recent summary: "+p.RecentSummary)
		}
	}
	if f := joinFacts(tail(doc.GlobalFacts, s.globalFacts)); f != "" {
		lines = append(lines, "General facts: "+f)
	}
	return strings.Join(lines, "\n"), nil
}

func formatTraits(traits map[string]any) string {
	keys := make([]string, 0, len(traits))
	for k := range traits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, traits[k]))
	}
	return strings.Join(parts, ", ")
}

func tail(facts []FactRecord, n int) []FactRecord {
	if n <= 0 {
		return nil
	}
	if len(facts) > n {
		return facts[len(facts)-n:]
	}
	return facts
}

func joinFacts(facts []FactRecord) string {
	texts := make([]string, 0, len(facts))
	for _, f := range facts {
		texts = append(texts, f.Text)
	}
	return strings.Join(texts, "; ")
}
