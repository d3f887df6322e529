package multivec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TrainHarness provides a fluent API for setting up trained models in tests.
// Use this in tests to reduce boilerplate corpus and training setup.
//
// Example:
//
//	harness := NewTrainHarness(t).
//	    WithLines("the quick brown fox", "the lazy dog").
//	    Setup().
//	    Train(ctx)
//	defer harness.Cleanup()
//
//	vec, err := harness.Model().WordVector("the", PolicyInput)
type TrainHarness struct {
	t *testing.T

	// Configuration options
	lines   []string
	cfg     TrainingConfig
	cfgEdit func(*TrainingConfig)
	opts    []ModelOption

	// Internal state
	corpusPath  string
	model       *Model
	initialized bool
	cleanedUp   bool
}

// NewTrainHarness creates a harness with hyperparameters scaled down for
// tests: a small dimension, MinCount 1, a single worker and a fixed seed,
// so runs are fast and reproducible.
func NewTrainHarness(t *testing.T) *TrainHarness {
	cfg := DefaultTrainingConfig()
	cfg.Dimension = 16
	cfg.MinCount = 1
	cfg.WindowSize = 2
	cfg.Threads = 1
	cfg.Iterations = 3
	cfg.Subsampling = 0

	return &TrainHarness{
		t:    t,
		cfg:  cfg,
		opts: []ModelOption{WithSeed(1)},
	}
}

// WithLines sets the corpus, one sentence per line.
func (h *TrainHarness) WithLines(lines ...string) *TrainHarness {
	h.lines = lines
	return h
}

// WithRepeatedLines sets the corpus to n copies of each given line. Useful
// for pushing words over frequency thresholds without hand-writing corpora.
func (h *TrainHarness) WithRepeatedLines(n int, lines ...string) *TrainHarness {
	repeated := make([]string, 0, n*len(lines))
	for i := 0; i < n; i++ {
		repeated = append(repeated, lines...)
	}
	h.lines = repeated
	return h
}

// WithConfig replaces the harness training config entirely.
func (h *TrainHarness) WithConfig(cfg TrainingConfig) *TrainHarness {
	h.cfg = cfg
	return h
}

// WithConfigEdit applies an in-place edit to the harness defaults during
// Setup. Use this to flip individual hyperparameters.
func (h *TrainHarness) WithConfigEdit(edit func(*TrainingConfig)) *TrainHarness {
	h.cfgEdit = edit
	return h
}

// WithOptions adds model options applied when constructing the model.
func (h *TrainHarness) WithOptions(opts ...ModelOption) *TrainHarness {
	h.opts = append(h.opts, opts...)
	return h
}

// Setup writes the corpus file and constructs the model.
func (h *TrainHarness) Setup() *TrainHarness {
	if h.initialized {
		h.t.Fatal("Harness already initialized")
	}
	if len(h.lines) == 0 {
		h.t.Fatal("Harness requires corpus lines. Call WithLines() first.")
	}

	if h.cfgEdit != nil {
		h.cfgEdit(&h.cfg)
	}

	h.corpusPath = filepath.Join(h.t.TempDir(), "corpus.txt")
	content := strings.Join(h.lines, "\n") + "\n"
	if err := os.WriteFile(h.corpusPath, []byte(content), 0o644); err != nil {
		h.t.Fatalf("Failed to write corpus: %v", err)
	}

	model, err := NewModel(h.cfg, h.opts...)
	if err != nil {
		h.t.Fatalf("Failed to create model: %v", err)
	}
	h.model = model

	h.initialized = true
	return h
}

// Train runs training over the harness corpus, failing the test on error.
func (h *TrainHarness) Train(ctx context.Context) *TrainHarness {
	if !h.initialized {
		h.t.Fatal("Harness not initialized. Call Setup() first.")
	}
	if err := h.model.Train(ctx, h.corpusPath); err != nil {
		h.t.Fatalf("Failed to train model: %v", err)
	}
	return h
}

// Cleanup releases harness resources.
// Call this with defer immediately after Setup().
func (h *TrainHarness) Cleanup() {
	if h.cleanedUp {
		return
	}
	// Temp dirs are cleaned up by t.TempDir().
	h.cleanedUp = true
}

// Model returns the model instance.
func (h *TrainHarness) Model() *Model {
	if !h.initialized {
		h.t.Fatal("Harness not initialized. Call Setup() first.")
	}
	return h.model
}

// CorpusPath returns the path of the written corpus file.
func (h *TrainHarness) CorpusPath() string {
	if !h.initialized {
		h.t.Fatal("Harness not initialized. Call Setup() first.")
	}
	return h.corpusPath
}

// Config returns the training config the harness will use or used.
func (h *TrainHarness) Config() TrainingConfig {
	return h.cfg
}
