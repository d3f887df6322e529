package multivec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	harness := NewTrainHarness(t).
		WithRepeatedLines(10, trainCorpusLines...).
		WithConfigEdit(func(c *TrainingConfig) { c.SentVector = true }).
		Setup().
		Train(ctx)
	defer harness.Cleanup()
	m := harness.Model()

	path := filepath.Join(t.TempDir(), "model.mvec")
	require.NoError(t, m.Save(path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)

	assert.Equal(t, m.Config(), loaded.Config())
	assert.Equal(t, m.VocabSize(), loaded.VocabSize())
	assert.Equal(t, m.TrainingWords(), loaded.TrainingWords())
	assert.Equal(t, m.TrainingLines(), loaded.TrainingLines())
	assert.Equal(t, m.Words(), loaded.Words())
	require.Len(t, loaded.weights.sentence, len(m.weights.sentence))

	for _, wc := range m.Words() {
		for _, policy := range []VectorPolicy{PolicyInput, PolicyConcat, PolicyOutput} {
			want, err := m.WordVector(wc.Word, policy)
			require.NoError(t, err)
			got, err := loaded.WordVector(wc.Word, policy)
			require.NoError(t, err)
			require.Equal(t, want, got, "word %q policy %s", wc.Word, policy)
		}
	}

	// Derived structures are rebuilt, not stored: queries and further
	// training must work on the restored model.
	wantClosest, err := m.Closest("fox", 5, PolicyInput)
	require.NoError(t, err)
	gotClosest, err := loaded.Closest("fox", 5, PolicyInput)
	require.NoError(t, err)
	assert.Equal(t, wantClosest, gotClosest)

	require.NoError(t, loaded.TrainIncremental(ctx, harness.CorpusPath()))
}

func TestModelSaveUninitialized(t *testing.T) {
	m, err := NewModel(DefaultTrainingConfig())
	require.NoError(t, err)
	err = m.Save(filepath.Join(t.TempDir(), "model.mvec"))
	require.ErrorIs(t, err, ErrModelUninitialized)
}

func TestLoadModelOptionsApply(t *testing.T) {
	m := trainedTestModel(t)
	path := filepath.Join(t.TempDir(), "model.mvec")
	require.NoError(t, m.Save(path))

	loaded, err := LoadModel(path, WithSeed(7), WithConsistencyMode(ConsistencyLocked))
	require.NoError(t, err)
	assert.Equal(t, int64(7), loaded.seed)
	assert.Equal(t, ConsistencyLocked, loaded.consistency)
}

func TestLoadModelRejectsCorruptFiles(t *testing.T) {
	m := trainedTestModel(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "model.mvec")
	require.NoError(t, m.Save(path))

	tests := []struct {
		name        string
		corrupt     func(t *testing.T, src, dst string)
		errContains string
	}{
		{
			name: "bad_magic",
			corrupt: func(t *testing.T, src, dst string) {
				data, err := os.ReadFile(src)
				require.NoError(t, err)
				copy(data[:4], "XXXX")
				require.NoError(t, os.WriteFile(dst, data, 0o644))
			},
			errContains: "bad magic",
		},
		{
			name: "unsupported_version",
			corrupt: func(t *testing.T, src, dst string) {
				data, err := os.ReadFile(src)
				require.NoError(t, err)
				data[4] = 0xFF
				require.NoError(t, os.WriteFile(dst, data, 0o644))
			},
			errContains: "unsupported format version",
		},
		{
			name: "truncated",
			corrupt: func(t *testing.T, src, dst string) {
				data, err := os.ReadFile(src)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(dst, data[:len(data)/2], 0o644))
			},
		},
		{
			name: "empty",
			corrupt: func(t *testing.T, src, dst string) {
				require.NoError(t, os.WriteFile(dst, nil, 0o644))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dst := filepath.Join(dir, tc.name+".mvec")
			tc.corrupt(t, path, dst)
			_, err := LoadModel(dst)
			require.Error(t, err)
			if tc.errContains != "" {
				require.Contains(t, err.Error(), tc.errContains)
			}
		})
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "absent.mvec"))
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}
