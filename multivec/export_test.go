package multivec

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveVectorsBinRoundTrip(t *testing.T) {
	m := trainedTestModel(t)
	path := filepath.Join(t.TempDir(), "vectors.bin")

	require.NoError(t, m.SaveVectorsBin(path, PolicyInput, false))
	records, err := ReadVectorsBin(path)
	require.NoError(t, err)
	require.Len(t, records, m.VocabSize())

	// Records follow the canonical order: by count descending, ties
	// alphabetical. "quick" and "the" both appear twice per repetition and
	// "quick" sorts first.
	assert.Equal(t, "quick", records[0].Word)
	assert.Equal(t, "the", records[1].Word)

	for _, rec := range records {
		want, err := m.WordVector(rec.Word, PolicyInput)
		require.NoError(t, err)
		require.Equal(t, want, rec.Vector, "word %q", rec.Word)
	}
}

func TestSaveVectorsBinNormalized(t *testing.T) {
	m := trainedTestModel(t)
	path := filepath.Join(t.TempDir(), "vectors.bin")

	require.NoError(t, m.SaveVectorsBin(path, PolicyInput, true))
	records, err := ReadVectorsBin(path)
	require.NoError(t, err)

	for _, rec := range records {
		var sum float64
		for _, v := range rec.Vector {
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5, "word %q", rec.Word)
	}
}

func TestSaveVectorsBinConcatKeepsHeaderDimension(t *testing.T) {
	// The interchange format stores only the first Dimension components of
	// a concat embedding; the header advertises Dimension, not twice it.
	m := trainedTestModel(t)
	path := filepath.Join(t.TempDir(), "vectors.bin")

	require.NoError(t, m.SaveVectorsBin(path, PolicyConcat, false))
	records, err := ReadVectorsBin(path)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	dim := m.Dimension()
	for _, rec := range records {
		require.Len(t, rec.Vector, dim)
		full, err := m.WordVector(rec.Word, PolicyConcat)
		require.NoError(t, err)
		require.Len(t, full, 2*dim)
		assert.Equal(t, full[:dim], rec.Vector)
	}
}

func TestSaveVectorsTextRoundTrip(t *testing.T) {
	m := trainedTestModel(t)
	path := filepath.Join(t.TempDir(), "vectors.txt")

	require.NoError(t, m.SaveVectorsText(path, PolicyInput, false))
	records, err := ReadVectorsText(path)
	require.NoError(t, err)
	require.Len(t, records, m.VocabSize())
	assert.Equal(t, "quick", records[0].Word)

	// Components are printed with enough precision to round-trip float32
	// exactly.
	for _, rec := range records {
		want, err := m.WordVector(rec.Word, PolicyInput)
		require.NoError(t, err)
		require.Equal(t, want, rec.Vector, "word %q", rec.Word)
	}
}

func TestSaveVectorsUninitialized(t *testing.T) {
	m, err := NewModel(DefaultTrainingConfig())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "vectors.bin")

	require.ErrorIs(t, m.SaveVectorsBin(path, PolicyInput, false), ErrModelUninitialized)
	require.ErrorIs(t, m.SaveVectorsText(path, PolicyInput, false), ErrModelUninitialized)
	require.ErrorIs(t, m.SaveSentenceVectors(path, false), ErrModelUninitialized)
}

func TestSaveSentenceVectors(t *testing.T) {
	harness := NewTrainHarness(t).
		WithRepeatedLines(10, trainCorpusLines...).
		WithConfigEdit(func(c *TrainingConfig) { c.SentVector = true }).
		Setup().
		Train(context.Background())
	defer harness.Cleanup()
	m := harness.Model()

	path := filepath.Join(t.TempDir(), "sentences.txt")
	require.NoError(t, m.SaveSentenceVectors(path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, int(m.TrainingLines()))

	for i, line := range lines {
		fields := strings.Fields(line)
		require.Len(t, fields, m.Dimension(), "line %d", i)
	}
}

func TestReadVectorsMalformed(t *testing.T) {
	dir := t.TempDir()

	t.Run("bad_header", func(t *testing.T) {
		path := filepath.Join(dir, "bad-header.txt")
		require.NoError(t, os.WriteFile(path, []byte("not a header\n"), 0o644))
		_, err := ReadVectorsText(path)
		require.Error(t, err)
	})

	t.Run("truncated_records", func(t *testing.T) {
		path := filepath.Join(dir, "truncated.txt")
		require.NoError(t, os.WriteFile(path, []byte("3 2\nfoo 0.5 0.25\n"), 0o644))
		_, err := ReadVectorsText(path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "unexpected end of file")
	})

	t.Run("wrong_field_count", func(t *testing.T) {
		path := filepath.Join(dir, "fields.txt")
		require.NoError(t, os.WriteFile(path, []byte("1 3\nfoo 0.5 0.25\n"), 0o644))
		_, err := ReadVectorsText(path)
		require.Error(t, err)
	})

	t.Run("binary_missing_terminator", func(t *testing.T) {
		path := filepath.Join(dir, "binary.bin")
		payload := append([]byte("1 1\nw "), 0, 0, 0, 0) // record without trailing newline
		require.NoError(t, os.WriteFile(path, payload, 0o644))
		_, err := ReadVectorsBin(path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "missing record terminator")
	})
}
