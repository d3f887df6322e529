package multivec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildVocabulary(t *testing.T) {
	t.Run("counts_whitespace_separated_tokens", func(t *testing.T) {
		v, err := buildVocabulary(strings.NewReader("the cat sat on the mat\nthe cat\n"))
		require.NoError(t, err)

		require.Equal(t, 5, v.Size())
		assert.EqualValues(t, 3, v.get("the").Count)
		assert.EqualValues(t, 2, v.get("cat").Count)
		assert.EqualValues(t, 1, v.get("sat").Count)
		assert.EqualValues(t, 1, v.get("mat").Count)
		assert.Nil(t, v.get("dog"))
	})

	t.Run("empty_corpus", func(t *testing.T) {
		_, err := buildVocabulary(strings.NewReader(""))
		require.ErrorIs(t, err, ErrEmptyCorpus)
	})

	t.Run("whitespace_only_corpus", func(t *testing.T) {
		_, err := buildVocabulary(strings.NewReader("  \n\t \n"))
		require.ErrorIs(t, err, ErrEmptyCorpus)
	})
}

func TestVocabularyPrune(t *testing.T) {
	t.Run("drops_rare_words_and_redensifies_indices", func(t *testing.T) {
		v, err := buildVocabulary(strings.NewReader("the the the cat cat sat on mat"))
		require.NoError(t, err)

		v.prune(2)

		require.Equal(t, 2, v.Size())
		require.NotNil(t, v.get("the"))
		require.NotNil(t, v.get("cat"))
		assert.Nil(t, v.get("sat"))

		// Indices must stay dense so entries can address matrix rows, and
		// must keep first-seen order so fixed-seed runs reproduce.
		seen := make(map[int]bool)
		for i, e := range v.byIndex {
			require.NotNil(t, e, "index %d unassigned", i)
			require.Equal(t, i, e.Index)
			require.False(t, seen[e.Index])
			seen[e.Index] = true
		}
		assert.Equal(t, 0, v.get("the").Index)
		assert.Equal(t, 1, v.get("cat").Index)
		assert.EqualValues(t, 5, v.TotalCount())
	})

	t.Run("min_count_one_keeps_everything", func(t *testing.T) {
		v, err := buildVocabulary(strings.NewReader("a b c"))
		require.NoError(t, err)
		v.prune(1)
		assert.Equal(t, 3, v.Size())
		assert.EqualValues(t, 3, v.TotalCount())
	})
}

func TestVocabularySortedEntries(t *testing.T) {
	v, err := buildVocabulary(strings.NewReader("the the the cat cat sat on mat"))
	require.NoError(t, err)
	v.prune(1)

	words := v.Words()
	require.Len(t, words, 5)
	assert.Equal(t, WordCount{Word: "the", Count: 3}, words[0])
	assert.Equal(t, WordCount{Word: "cat", Count: 2}, words[1])
	// Ties on count break alphabetically.
	assert.Equal(t, []WordCount{
		{Word: "mat", Count: 1},
		{Word: "on", Count: 1},
		{Word: "sat", Count: 1},
	}, words[2:])
}
