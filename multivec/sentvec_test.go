package multivec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferSentenceVector(t *testing.T) {
	m := trainedTestModel(t)

	t.Run("returns_dimension_sized_vector", func(t *testing.T) {
		vec, err := m.InferSentenceVector("the quick brown fox", 5)
		require.NoError(t, err)
		require.Len(t, vec, m.Dimension())
		requireFiniteVector(t, vec)

		var sum float32
		for _, v := range vec {
			sum += v * v
		}
		assert.Positive(t, sum)
	})

	t.Run("unknown_words_are_dropped", func(t *testing.T) {
		vec, err := m.InferSentenceVector("unicorn the dragon fox", 5)
		require.NoError(t, err)
		require.Len(t, vec, m.Dimension())
	})

	t.Run("all_unknown_sentence", func(t *testing.T) {
		_, err := m.InferSentenceVector("unicorn dragon", 5)
		require.ErrorIs(t, err, ErrEmptySequence)
	})

	t.Run("non_positive_iterations_fall_back_to_config", func(t *testing.T) {
		vec, err := m.InferSentenceVector("the quick fox", 0)
		require.NoError(t, err)
		require.Len(t, vec, m.Dimension())
	})

	t.Run("uninitialized_model", func(t *testing.T) {
		fresh, err := NewModel(DefaultTrainingConfig())
		require.NoError(t, err)
		_, err = fresh.InferSentenceVector("anything", 5)
		require.ErrorIs(t, err, ErrModelUninitialized)
	})
}

func TestInferSentenceVectorDBOW(t *testing.T) {
	harness := NewTrainHarness(t).
		WithRepeatedLines(10, trainCorpusLines...).
		WithConfigEdit(func(c *TrainingConfig) {
			c.SkipGram = true
			c.SentVector = true
		}).
		Setup().
		Train(context.Background())
	defer harness.Cleanup()

	vec, err := harness.Model().InferSentenceVector("the quick brown fox", 5)
	require.NoError(t, err)
	require.Len(t, vec, harness.Config().Dimension)
	requireFiniteVector(t, vec)
}

func TestInferSentenceVectors(t *testing.T) {
	ctx := context.Background()
	m := trainedTestModel(t)

	t.Run("one_row_per_line", func(t *testing.T) {
		path := writeCorpus(t, "the quick fox\nunicorn dragon\npack my box\n")
		require.NoError(t, m.InferSentenceVectors(ctx, path))

		require.Len(t, m.weights.sentence, 3)
		requireFiniteVector(t, m.weights.sentence[0])

		// A line with no known word keeps a zero row.
		for _, v := range m.weights.sentence[1] {
			assert.Zero(t, v)
		}

		var sum float32
		for _, v := range m.weights.sentence[2] {
			sum += v * v
		}
		assert.Positive(t, sum)
	})

	t.Run("canceled_context", func(t *testing.T) {
		path := writeCorpus(t, "the quick fox\n")
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err := m.InferSentenceVectors(canceled, path)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("missing_file", func(t *testing.T) {
		err := m.InferSentenceVectors(ctx, t.TempDir()+"/absent.txt")
		require.Error(t, err)
	})
}
