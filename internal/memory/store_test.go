package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "navi_memory.json"), opts...)
	require.NoError(t, err)
	return s
}

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestFirstAccessWritesSkeleton(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	digest, err := s.GetContext(ctx, "josh")
	require.NoError(t, err)
	assert.Empty(t, digest)

	doc := readDoc(t, s.Path())
	assert.Contains(t, doc, "people")
	assert.Contains(t, doc, "globalFacts")
	assert.Contains(t, doc, "interactions")
}

func TestAddFactDeduplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddFact(ctx, "josh", "likes tea", "user", 1))
	require.NoError(t, s.AddFact(ctx, "josh", "likes tea", "user", 1))
	require.NoError(t, s.AddFact(ctx, "josh", "  likes tea ", "user", 0.5))
	require.NoError(t, s.AddFact(ctx, "", "likes tea", "user", 1))
	require.NoError(t, s.AddFact(ctx, "", "likes tea", "user", 1))

	doc, err := s.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, doc.People["josh"].Facts, 1)
	assert.Equal(t, "likes tea", doc.People["josh"].Facts[0].Text)
	assert.Len(t, doc.GlobalFacts, 1)
}

func TestAddFactIgnoresEmptyText(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AddFact(context.Background(), "josh", "   ", "user", 1))

	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err), "empty fact should not touch the file")
}

func TestUpsertPersonMergesTraits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPerson(ctx, "josh", "Josh", map[string]any{"drink": "tea", "pets": 2}))
	require.NoError(t, s.UpsertPerson(ctx, "josh", "", map[string]any{"drink": "coffee", "pets": nil, "city": "Perth"}))

	doc, err := s.ExportAll(ctx)
	require.NoError(t, err)
	p := doc.People["josh"]
	require.NotNil(t, p)
	assert.Equal(t, "Josh", p.Name)
	assert.Equal(t, "coffee", p.Traits["drink"])
	assert.EqualValues(t, 2, p.Traits["pets"])
	assert.Equal(t, "Perth", p.Traits["city"])
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestUpsertPersonRequiresID(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.UpsertPerson(context.Background(), "", "Josh", nil))
}

func TestInteractionLogEvictsOldestFirst(t *testing.T) {
	s := openTestStore(t, WithMaxInteractions(3))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.RecordInteraction(ctx, "josh", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	doc, err := s.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Interactions, 3)
	assert.Equal(t, "q3", doc.Interactions[0].UserText)
	assert.Equal(t, "q5", doc.Interactions[2].UserText)
}

func TestCorruptFileIsQuarantined(t *testing.T) {
	var artifacts []string
	fixed := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	s := openTestStore(t, WithClock(func() time.Time { return fixed }), WithCorruptionHook(func(p string) {
		artifacts = append(artifacts, p)
	}))
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"people": {`), 0o644))

	ctx := context.Background()
	doc, err := s.ExportAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.People)
	assert.Empty(t, doc.Interactions)

	require.Len(t, artifacts, 1)
	assert.True(t, strings.HasPrefix(filepath.Base(artifacts[0]), "navi_memory.json.corrupt."))
	b, err := os.ReadFile(artifacts[0])
	require.NoError(t, err)
	assert.Equal(t, `{"people": {`, string(b))

	// The replacement is valid and usable.
	require.NoError(t, s.AddFact(ctx, "josh", "likes tea", "user", 1))
	readDoc(t, s.Path())
}

func TestEmptyFileLoadsAsSkeleton(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("  \n"), 0o644))

	doc, err := s.ExportAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.People)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordInteraction(ctx, "josh", "hi", "hello"))
	}
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "navi_memory.json", entries[0].Name())
}

func TestConcurrentWritesAreSerialized(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.RecordInteraction(ctx, "josh", fmt.Sprintf("q%d", i), "a"))
			assert.NoError(t, s.AddFact(ctx, "josh", fmt.Sprintf("fact %d", i), "user", 1))
		}(i)
	}
	wg.Wait()

	doc, err := s.ExportAll(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Interactions, 20)
	assert.Len(t, doc.People["josh"].Facts, 20)
}

func TestCancelledContextIsRejected(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.RecordInteraction(ctx, "josh", "hi", "hello"), context.Canceled)
}

func TestWriteHookReportsOperation(t *testing.T) {
	var ops []string
	s := openTestStore(t, WithWriteHook(func(op string) { ops = append(ops, op) }))
	ctx := context.Background()

	require.NoError(t, s.SetRecentSummary(ctx, "josh", "talked about tea"))
	require.NoError(t, s.AddFact(ctx, "josh", "likes tea", "user", 1))
	require.NoError(t, s.AddFact(ctx, "josh", "likes tea", "user", 1))

	assert.Equal(t, []string{"set_recent_summary", "add_fact"}, ops)
}

func TestRestoreReplacesDocument(t *testing.T) {
	s := openTestStore(t, WithMaxInteractions(2))
	ctx := context.Background()
	require.NoError(t, s.AddFact(ctx, "josh", "likes tea", "user", 1))

	snap := Document{
		People: map[string]*PersonRecord{"mia": {Name: "Mia"}},
		Interactions: []InteractionRecord{
			{UserID: "mia", UserText: "one"},
			{UserID: "mia", UserText: "two"},
			{UserID: "mia", UserText: "three"},
		},
	}
	require.NoError(t, s.Restore(ctx, snap))

	doc, err := s.ExportAll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, doc.People, "josh")
	require.Contains(t, doc.People, "mia")
	assert.NotNil(t, doc.People["mia"].Facts)
	assert.NotNil(t, doc.GlobalFacts)
	require.Len(t, doc.Interactions, 2)
	assert.Equal(t, "two", doc.Interactions[0].UserText)
}
