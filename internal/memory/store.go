package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const (
	DefaultMaxInteractions = 2000
	DefaultRecentFacts     = 3
	DefaultGlobalFacts     = 2
)

// Store is the durable memory backing conversational context. Every
// operation loads the file, applies its change and writes the whole document
// back under one process-wide mutex, so callers block rather than interleave.
type Store struct {
	path            string
	maxInteractions int
	recentFacts     int
	globalFacts     int
	logger          *slog.Logger
	now             func() time.Time
	onCorrupt       func(artifact string)
	onWrite         func(op string)

	mu sync.Mutex
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxInteractions caps the interaction log; older entries are evicted first.
func WithMaxInteractions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxInteractions = n
		}
	}
}

// WithDigestSizes sets how many person and global facts GetContext includes.
func WithDigestSizes(recentFacts, globalFacts int) Option {
	return func(s *Store) {
		if recentFacts >= 0 {
			s.recentFacts = recentFacts
		}
		if globalFacts >= 0 {
			s.globalFacts = globalFacts
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCorruptionHook is called with the quarantine path whenever a corrupt
// file is set aside.
func WithCorruptionHook(fn func(artifact string)) Option {
	return func(s *Store) { s.onCorrupt = fn }
}

// WithWriteHook is called after every successful write with the operation name.
func WithWriteHook(fn func(op string)) Option {
	return func(s *Store) { s.onWrite = fn }
}

// Open returns a store backed by path. The file is not touched until the
// first operation.
func Open(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("memory file path is required")
	}
	s := &Store{
		path:            path,
		maxInteractions: DefaultMaxInteractions,
		recentFacts:     DefaultRecentFacts,
		globalFacts:     DefaultGlobalFacts,
		logger:          slog.Default(),
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "memory", "path", path)
	return s, nil
}

func (s *Store) Path() string { return s.path }

// UpsertPerson creates the person if needed, sets the display name when name
// is non-empty and merges every non-nil trait value.
func (s *Store) UpsertPerson(ctx context.Context, id, name string, traits map[string]any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("person id is required")
	}
	return s.update(ctx, "upsert_person", func(doc *Document) bool {
		p := personFor(doc, id)
		if n := strings.TrimSpace(name); n != "" {
			p.Name = n
		}
		for k, v := range traits {
			if v == nil {
				continue
			}
			p.Traits[k] = v
		}
		p.UpdatedAt = s.now()
		return true
	})
}

// AddFact appends a fact to the person identified by id, or to the global
// list when id is empty. Empty text and exact duplicates are ignored.
func (s *Store) AddFact(ctx context.Context, id, text, source string, weight float64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	id = strings.TrimSpace(id)
	return s.update(ctx, "add_fact", func(doc *Document) bool {
		fact := FactRecord{Text: text, Source: source, Weight: weight, Timestamp: s.now()}
		if id == "" {
			if hasFact(doc.GlobalFacts, text) {
				return false
			}
			doc.GlobalFacts = append(doc.GlobalFacts, fact)
			return true
		}
		p := personFor(doc, id)
		if hasFact(p.Facts, text) {
			return false
		}
		p.Facts = append(p.Facts, fact)
		p.UpdatedAt = fact.Timestamp
		return true
	})
}

// SetRecentSummary overwrites the rolling summary for id.
func (s *Store) SetRecentSummary(ctx context.Context, id, summary string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("person id is required")
	}
	return s.update(ctx, "set_recent_summary", func(doc *Document) bool {
		p := personFor(doc, id)
		p.RecentSummary = strings.TrimSpace(summary)
		p.UpdatedAt = s.now()
		return true
	})
}

// RecordInteraction appends to the bounded interaction log.
func (s *Store) RecordInteraction(ctx context.Context, id, userText, reply string) error {
	return s.update(ctx, "record_interaction", func(doc *Document) bool {
		doc.Interactions = append(doc.Interactions, InteractionRecord{
			UserID:    strings.TrimSpace(id),
			UserText:  userText,
			Reply:     reply,
			Timestamp: s.now(),
		})
		if over := len(doc.Interactions) - s.maxInteractions; over > 0 {
			doc.Interactions = append([]InteractionRecord(nil), doc.Interactions[over:]...)
		}
		return true
	})
}

// ExportAll returns a snapshot of the whole store. The result shares no
// memory with the store.
func (s *Store) ExportAll(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return Document{}, err
	}
	return *doc, nil
}

// Restore replaces the whole store with doc, e.g. a snapshot pulled back
// from an archiver. The interaction log is trimmed to the configured cap.
func (s *Store) Restore(ctx context.Context, doc Document) error {
	return s.update(ctx, "restore", func(cur *Document) bool {
		doc.normalize()
		if over := len(doc.Interactions) - s.maxInteractions; over > 0 {
			doc.Interactions = append([]InteractionRecord(nil), doc.Interactions[over:]...)
		}
		*cur = doc
		return true
	})
}

func (s *Store) update(ctx context.Context, op string, mutate func(*Document) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if !mutate(doc) {
		return nil
	}
	if err := s.save(doc); err != nil {
		return fmt.Errorf("memory %s: %w", op, err)
	}
	if s.onWrite != nil {
		s.onWrite(op)
	}
	return nil
}

// load must be called with mu held. A missing or empty file yields a fresh
// skeleton; an unparsable file is quarantined and replaced.
func (s *Store) load() (*Document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		doc := Skeleton()
		if err := s.save(&doc); err != nil {
			return nil, fmt.Errorf("create memory file: %w", err)
		}
		return &doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory file: %w", err)
	}

	doc := Skeleton()
	if len(strings.TrimSpace(string(raw))) == 0 {
		return &doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return s.quarantine(err)
	}
	doc.normalize()
	return &doc, nil
}

func (s *Store) quarantine(parseErr error) (*Document, error) {
	artifact := fmt.Sprintf("%s.corrupt.%s", s.path, s.now().UTC().Format("20060102T150405.000000000Z"))
	if err := os.Rename(s.path, artifact); err != nil {
		s.logger.Error("memory file corrupt and could not be moved aside", "error", err, "parse_error", parseErr)
		artifact = ""
	} else {
		s.logger.Warn("memory file corrupt, starting fresh", "artifact", artifact, "parse_error", parseErr)
	}
	if s.onCorrupt != nil {
		s.onCorrupt(artifact)
	}
	doc := Skeleton()
	if err := s.save(&doc); err != nil {
		return nil, fmt.Errorf("reset corrupt memory file: %w", err)
	}
	return &doc, nil
}

// save writes doc to a temp file in the same directory and renames it over
// the target, so readers only ever see a complete document.
func (s *Store) save(doc *Document) error {
	doc.normalize()
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func personFor(doc *Document, id string) *PersonRecord {
	p, ok := doc.People[id]
	if !ok {
		p = &PersonRecord{Traits: map[string]any{}, Facts: []FactRecord{}}
		doc.People[id] = p
	}
	return p
}
