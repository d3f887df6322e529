package multivec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfBilingual wraps one trained model as both sides, which makes the
// expected cross-language answers exact: every word's best translation is
// itself.
func selfBilingual(t *testing.T) (*BilingualModel, *Model) {
	t.Helper()
	m := trainedTestModel(t)
	return NewBilingualModel(m, m, WithBilingualSeed(3)), m
}

func TestBilingualSimilarity(t *testing.T) {
	b, _ := selfBilingual(t)

	t.Run("same_word_across_identical_spaces", func(t *testing.T) {
		sim, err := b.Similarity("fox", "fox", PolicyInput)
		require.NoError(t, err)
		assert.InDelta(t, 1, sim, 1e-4)

		d, err := b.Distance("fox", "fox", PolicyInput)
		require.NoError(t, err)
		assert.InDelta(t, 0, d, 1e-4)
	})

	t.Run("unknown_member_scores_zero", func(t *testing.T) {
		sim, err := b.Similarity("fox", "unicorn", PolicyInput)
		require.NoError(t, err)
		assert.Zero(t, sim)
	})

	t.Run("uninitialized_side", func(t *testing.T) {
		fresh, err := NewModel(DefaultTrainingConfig())
		require.NoError(t, err)
		bad := NewBilingualModel(trainedTestModel(t), fresh)
		_, err = bad.Similarity("fox", "fox", PolicyInput)
		require.ErrorIs(t, err, ErrModelUninitialized)
	})
}

func TestBilingualClosest(t *testing.T) {
	b, _ := selfBilingual(t)

	res, err := b.TargetClosest("fox", 3, PolicyInput)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "fox", res[0].Word)
	assert.InDelta(t, 1, res[0].Similarity, 1e-4)

	res, err = b.SourceClosest("dog", 3, PolicyInput)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "dog", res[0].Word)

	_, err = b.TargetClosest("unicorn", 3, PolicyInput)
	require.ErrorIs(t, err, ErrOutOfVocabulary)
}

func TestBilingualSequenceSimilarities(t *testing.T) {
	b, _ := selfBilingual(t)

	ngram, err := b.SimilarityNgrams("the quick fox", "the quick fox", PolicyInput)
	require.NoError(t, err)
	assert.InDelta(t, 1, ngram, 1e-4)

	_, err = b.SimilarityNgrams("one two", "one", PolicyInput)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = b.SimilarityNgrams("", "", PolicyInput)
	require.ErrorIs(t, err, ErrEmptySequence)

	sent, err := b.SimilaritySentence("the quick fox", "the quick fox", PolicyInput)
	require.NoError(t, err)
	assert.InDelta(t, 1, sent, 1e-4)
}

func TestInduceDictionary(t *testing.T) {
	b, m := selfBilingual(t)

	t.Run("identical_spaces_pair_words_with_themselves", func(t *testing.T) {
		words := []string{"fox", "dog", "quick", "box"}
		pairs, err := b.InduceDictionaryWords(words, words, PolicyInput)
		require.NoError(t, err)
		require.Len(t, pairs, len(words))
		for i, p := range pairs {
			assert.Equal(t, words[i], p.Source)
			assert.Equal(t, p.Source, p.Target)
		}
	})

	t.Run("unknown_candidates_are_dropped", func(t *testing.T) {
		pairs, err := b.InduceDictionaryWords(
			[]string{"fox", "unicorn"},
			[]string{"fox", "dragon"},
			PolicyInput)
		require.NoError(t, err)
		require.Len(t, pairs, 1)
		assert.Equal(t, DictionaryPair{Source: "fox", Target: "fox"}, pairs[0])
	})

	t.Run("no_usable_candidates", func(t *testing.T) {
		pairs, err := b.InduceDictionaryWords([]string{"unicorn"}, []string{"dragon"}, PolicyInput)
		require.NoError(t, err)
		assert.Nil(t, pairs)
	})

	t.Run("top_frequency_induction", func(t *testing.T) {
		pairs, err := b.InduceDictionary(5, 5, PolicyInput)
		require.NoError(t, err)
		require.Len(t, pairs, 5)
		for _, p := range pairs {
			assert.Equal(t, p.Source, p.Target)
		}
	})

	t.Run("sharded_induction_keeps_source_order", func(t *testing.T) {
		words := make([]string, 0, m.VocabSize())
		for _, wc := range m.Words() {
			words = append(words, wc.Word)
		}
		sharded := NewBilingualModel(m, m, WithBilingualThreads(4), WithBilingualSeed(3))
		pairs, err := sharded.InduceDictionaryWords(words, words, PolicyInput)
		require.NoError(t, err)
		require.Len(t, pairs, len(words))
		for i, p := range pairs {
			assert.Equal(t, words[i], p.Source)
			assert.Equal(t, p.Source, p.Target)
		}
	})

	t.Run("dimension_mismatch", func(t *testing.T) {
		narrow := NewTrainHarness(t).
			WithRepeatedLines(5, trainCorpusLines...).
			WithConfigEdit(func(c *TrainingConfig) { c.Dimension = 8 }).
			Setup().
			Train(context.Background())
		defer narrow.Cleanup()

		mixed := NewBilingualModel(m, narrow.Model())
		_, err := mixed.InduceDictionaryWords([]string{"fox"}, []string{"fox"}, PolicyInput)
		require.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestLearnMapping(t *testing.T) {
	b, m := selfBilingual(t)

	t.Run("map_vector_before_learning", func(t *testing.T) {
		_, err := b.MapVector(make([]float32, m.Dimension()))
		require.ErrorIs(t, err, ErrMappingNotLearned)
		assert.Nil(t, b.Mapping())
	})

	t.Run("dictionary_without_known_pairs", func(t *testing.T) {
		err := b.LearnMapping([]DictionaryPair{{Source: "unicorn", Target: "dragon"}})
		require.ErrorIs(t, err, ErrEmptyDictionary)
	})

	t.Run("learns_projection_toward_targets", func(t *testing.T) {
		dict := []DictionaryPair{
			{Source: "fox", Target: "fox"},
			{Source: "dog", Target: "dog"},
			{Source: "quick", Target: "quick"},
			{Source: "lazy", Target: "lazy"},
			{Source: "box", Target: "box"},
			{Source: "jugs", Target: "jugs"},
		}
		require.NoError(t, b.LearnMapping(dict))

		mapping := b.Mapping()
		require.Len(t, mapping, m.Dimension())
		for _, row := range mapping {
			require.Len(t, row, m.Dimension())
			requireFiniteVector(t, row)
		}

		// On an identity dictionary over identical spaces the projection of
		// a trained pair must land near its own vector.
		for _, p := range dict {
			src, err := m.WordVector(p.Source, PolicyInput)
			require.NoError(t, err)
			mapped, err := b.MapVector(src)
			require.NoError(t, err)
			require.Len(t, mapped, m.Dimension())
			assert.Positive(t, cosineSimilarity(mapped, src), "word %q", p.Source)
		}
	})

	t.Run("map_vector_length_mismatch", func(t *testing.T) {
		require.NotNil(t, b.Mapping())
		_, err := b.MapVector(make([]float32, 3))
		require.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("mapping_returns_a_copy", func(t *testing.T) {
		first := b.Mapping()
		require.NotNil(t, first)
		first[0][0] += 42
		second := b.Mapping()
		assert.NotEqual(t, first[0][0], second[0][0])
	})
}
