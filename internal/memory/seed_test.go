package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
people:
  - id: josh
    name: Josh
    traits:
      drink: peppermint tea
    facts:
      - works night shifts
globalFacts:
  - the house has two cats
`

func TestSeedIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, Seed(ctx, s, strings.NewReader(fixture)))
	require.NoError(t, Seed(ctx, s, strings.NewReader(fixture)))

	doc, err := s.ExportAll(ctx)
	require.NoError(t, err)
	p := doc.People["josh"]
	require.NotNil(t, p)
	assert.Equal(t, "Josh", p.Name)
	assert.Equal(t, "peppermint tea", p.Traits["drink"])
	assert.Len(t, p.Facts, 1)
	assert.Equal(t, "seed", p.Facts[0].Source)
	assert.Len(t, doc.GlobalFacts, 1)
}

func TestSeedRejectsPersonWithoutID(t *testing.T) {
	s := openTestStore(t)
	err := Seed(context.Background(), s, strings.NewReader("people:\n  - name: Nobody\n"))
	assert.Error(t, err)
}

func TestSeedAcceptsEmptyFixture(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, Seed(context.Background(), s, strings.NewReader("")))
}
