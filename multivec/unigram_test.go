package multivec

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnigramTableOccupancy(t *testing.T) {
	v, err := buildVocabulary(strings.NewReader("hot hot hot hot hot hot hot hot cold"))
	require.NoError(t, err)
	v.prune(1)

	table, err := buildUnigramTable(v, 100)
	require.NoError(t, err)
	require.NotEmpty(t, table.slots)
	require.LessOrEqual(t, len(table.slots), 100)

	perIndex := make(map[int32]int)
	for _, s := range table.slots {
		perIndex[s]++
	}
	hot := perIndex[int32(v.get("hot").Index)]
	cold := perIndex[int32(v.get("cold").Index)]
	require.Positive(t, hot)
	require.Positive(t, cold)
	// The distortion flattens the 8:1 count ratio to roughly 4.8:1.
	assert.Greater(t, hot, cold)
	assert.Less(t, hot, 8*cold)
}

func TestUnigramTableSamplesFollowCounts(t *testing.T) {
	v, err := buildVocabulary(strings.NewReader("hot hot hot hot hot hot hot hot cold"))
	require.NoError(t, err)
	v.prune(1)

	table, err := buildUnigramTable(v, 1000)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	draws := make(map[string]int)
	for i := 0; i < 2000; i++ {
		e := table.sample(rng)
		require.NotNil(t, e)
		draws[e.Word]++
	}
	assert.Greater(t, draws["hot"], draws["cold"])
	assert.Positive(t, draws["cold"])
}

func TestUnigramTableUndersizedFallback(t *testing.T) {
	v, err := buildVocabulary(strings.NewReader("a b c"))
	require.NoError(t, err)
	v.prune(1)

	// A two-slot budget rounds every per-word allocation down to zero; the
	// fallback still gives each word one slot.
	table, err := buildUnigramTable(v, 2)
	require.NoError(t, err)
	require.Len(t, table.slots, 3)

	seen := make(map[int32]bool)
	for _, s := range table.slots {
		seen[s] = true
	}
	assert.Len(t, seen, 3)
}

func TestUnigramTableEmptyVocabulary(t *testing.T) {
	v := &Vocabulary{entries: map[string]*VocabEntry{}}
	_, err := buildUnigramTable(v, 100)
	require.ErrorIs(t, err, ErrEmptyVocabulary)
}
