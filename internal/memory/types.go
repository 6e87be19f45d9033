package memory

import "time"

// FactRecord is one remembered statement. Facts are unique by Text within
// their scope (a person, or the global list).
type FactRecord struct {
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// PersonRecord holds everything known about one user.
type PersonRecord struct {
	Name          string         `json:"name"`
	Traits        map[string]any `json:"traits"`
	Facts         []FactRecord   `json:"facts"`
	RecentSummary string         `json:"recentSummary"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// InteractionRecord is one user utterance and the reply that was spoken.
type InteractionRecord struct {
	UserID    string    `json:"userId"`
	UserText  string    `json:"userText"`
	Reply     string    `json:"reply"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is the full on-disk state.
type Document struct {
	People       map[string]*PersonRecord `json:"people"`
	GlobalFacts  []FactRecord             `json:"globalFacts"`
	Interactions []InteractionRecord      `json:"interactions"`
}

// Skeleton returns an empty, fully initialized document.
func Skeleton() Document {
	return Document{
		People:       map[string]*PersonRecord{},
		GlobalFacts:  []FactRecord{},
		Interactions: []InteractionRecord{},
	}
}

// normalize replaces nil collections so callers never branch on them and
// the serialized form always carries every top-level field.
func (d *Document) normalize() {
	if d.People == nil {
		d.People = map[string]*PersonRecord{}
	}
	for id, p := range d.People {
		if p == nil {
			delete(d.People, id)
			continue
		}
		if p.Traits == nil {
			p.Traits = map[string]any{}
		}
		if p.Facts == nil {
			p.Facts = []FactRecord{}
		}
	}
	if d.GlobalFacts == nil {
		d.GlobalFacts = []FactRecord{}
	}
	if d.Interactions == nil {
		d.Interactions = []InteractionRecord{}
	}
}

func hasFact(facts []FactRecord, text string) bool {
	for _, f := range facts {
		if f.Text == text {
			return true
		}
	}
	return false
}
