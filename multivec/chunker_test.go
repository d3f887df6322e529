package multivec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestChunkify(t *testing.T) {
	t.Run("chunks_start_on_line_boundaries", func(t *testing.T) {
		path := writeCorpus(t, ""+
			"one two three\n"+ // offset 0
			"four five\n"+ // offset 14
			"six\n"+ // offset 24
			"seven eight nine ten\n"+ // offset 28
			"eleven\n"+ // offset 49
			"twelve\n") // offset 56

		lines, words, chunks, err := chunkify(path, 3)
		require.NoError(t, err)
		assert.EqualValues(t, 6, lines)
		assert.EqualValues(t, 12, words)
		assert.Equal(t, []int64{0, 24, 49}, chunks)
	})

	t.Run("single_chunk_starts_at_zero", func(t *testing.T) {
		path := writeCorpus(t, "a b\nc d\n")
		lines, words, chunks, err := chunkify(path, 1)
		require.NoError(t, err)
		assert.EqualValues(t, 2, lines)
		assert.EqualValues(t, 4, words)
		assert.Equal(t, []int64{0}, chunks)
	})

	t.Run("more_chunks_than_lines_all_start_at_zero", func(t *testing.T) {
		path := writeCorpus(t, "a b\nc d\ne f\n")
		lines, _, chunks, err := chunkify(path, 8)
		require.NoError(t, err)
		assert.EqualValues(t, 3, lines)
		require.Len(t, chunks, 8)
		for i, c := range chunks {
			assert.Zero(t, c, "chunk %d", i)
		}
	})

	t.Run("final_line_without_newline_still_counts", func(t *testing.T) {
		path := writeCorpus(t, "a b\nc d")
		lines, words, chunks, err := chunkify(path, 2)
		require.NoError(t, err)
		assert.EqualValues(t, 2, lines)
		assert.EqualValues(t, 4, words)
		assert.Equal(t, []int64{0, 4}, chunks)
	})

	t.Run("empty_corpus", func(t *testing.T) {
		path := writeCorpus(t, "")
		_, _, _, err := chunkify(path, 2)
		require.ErrorIs(t, err, ErrEmptyCorpus)
	})

	t.Run("missing_file", func(t *testing.T) {
		_, _, _, err := chunkify(filepath.Join(t.TempDir(), "absent.txt"), 2)
		require.Error(t, err)
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}
