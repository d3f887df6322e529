// Package multivec trains and serves word and paragraph embeddings.
//
// A Model learns CBOW or skip-gram embeddings over a tokenized corpus, with
// hierarchical softmax and negative sampling output layers that can run
// together or alone. Trained models answer similarity queries, infer
// vectors for unseen sentences, export to the common interchange formats
// and round-trip through a binary container. BilingualModel aligns two
// monolingual models through a learned linear mapping.
package multivec

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Model is a monolingual embedding model. A model is either fresh, trained
// via Train, or restored via LoadModel; queries on a fresh model return
// ErrModelUninitialized. Queries are safe to run concurrently with each
// other but not with training.
type Model struct {
	cfg         TrainingConfig
	consistency ConsistencyMode
	seed        int64
	rng         *rand.Rand
	observer    TrainObserver
	unigramSize int
	inferSeq    atomic.Int64

	vocab   *Vocabulary
	unigram *unigramTable
	weights *WeightStore

	trainingWords int64
	trainingLines int64

	progressMu     sync.Mutex
	wordsProcessed int64
	alpha          float32
}

// ModelOption configures a Model beyond its training hyperparameters.
type ModelOption func(*Model)

// WithSeed fixes the RNG seed for weight initialization, subsampling,
// window draws and negative sampling. Runs with one thread and a fixed
// seed are reproducible.
func WithSeed(seed int64) ModelOption {
	return func(m *Model) { m.seed = seed }
}

// WithTrainObserver installs an observer for training progress snapshots.
func WithTrainObserver(obs TrainObserver) ModelOption {
	return func(m *Model) {
		if obs != nil {
			m.observer = obs
		}
	}
}

// WithConsistencyMode selects how workers coordinate on the shared weight
// matrices. The default is ConsistencyHogwild.
func WithConsistencyMode(mode ConsistencyMode) ModelOption {
	return func(m *Model) { m.consistency = mode }
}

// WithUnigramTableSize overrides the negative-sampling table size. Smaller
// tables trade sampling fidelity for memory.
func WithUnigramTableSize(size int) ModelOption {
	return func(m *Model) {
		if size > 0 {
			m.unigramSize = size
		}
	}
}

// NewModel validates the config and returns an untrained model.
func NewModel(cfg TrainingConfig, opts ...ModelOption) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training config: %w", err)
	}
	m := &Model{
		cfg:         cfg,
		consistency: ConsistencyHogwild,
		seed:        time.Now().UnixNano(),
		observer:    NoopTrainObserver{},
		unigramSize: unigramTableSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.rng = rand.New(rand.NewSource(m.seed))
	return m, nil
}

// Train builds the vocabulary, coding tree, sampling table and weight
// matrices from the corpus at corpusPath, then runs the configured number
// of epochs across the configured number of workers. The context is
// checked before setup and before the workers launch, not inside the hot
// loop.
func (m *Model) Train(ctx context.Context, corpusPath string) error {
	return m.train(ctx, corpusPath, true)
}

// TrainIncremental continues training an initialized model on another
// corpus. The vocabulary and weights carry over; corpus words outside the
// vocabulary are treated as unknown.
func (m *Model) TrainIncremental(ctx context.Context, corpusPath string) error {
	return m.train(ctx, corpusPath, false)
}

func (m *Model) initialized() bool {
	return m.vocab != nil && m.weights != nil && m.vocab.TotalCount() > 0
}

// Config returns the model's training hyperparameters.
func (m *Model) Config() TrainingConfig {
	return m.cfg
}

// Dimension returns the embedding size for the input-row policies. Concat
// doubles it.
func (m *Model) Dimension() int {
	return m.cfg.Dimension
}

// VocabSize returns the number of words kept after pruning.
func (m *Model) VocabSize() int {
	if m.vocab == nil {
		return 0
	}
	return m.vocab.Size()
}

// TrainingWords returns the in-corpus word count from the last training
// scan.
func (m *Model) TrainingWords() int64 {
	return m.trainingWords
}

// TrainingLines returns the corpus line count from the last training scan.
func (m *Model) TrainingLines() int64 {
	return m.trainingLines
}

// Words lists the vocabulary with frequencies, most frequent first.
func (m *Model) Words() []WordCount {
	if m.vocab == nil {
		return nil
	}
	return m.vocab.Words()
}

// Progress reports the shared training progress counters. Safe to call
// from another goroutine while training runs.
func (m *Model) Progress() TrainProgress {
	m.progressMu.Lock()
	defer m.progressMu.Unlock()
	return TrainProgress{
		WordsProcessed: m.wordsProcessed,
		TargetWords:    int64(m.cfg.Iterations) * m.trainingWords,
		Alpha:          m.alpha,
	}
}

// policyDimension returns the embedding length produced under policy.
func (m *Model) policyDimension(policy VectorPolicy) int {
	if policy == PolicyConcat && m.cfg.Negative > 0 {
		return 2 * m.cfg.Dimension
	}
	return m.cfg.Dimension
}

// WordVector returns a copy of the word's embedding composed under policy.
func (m *Model) WordVector(word string, policy VectorPolicy) ([]float32, error) {
	if !m.initialized() {
		return nil, ErrModelUninitialized
	}
	e := m.vocab.get(word)
	if e == nil {
		return nil, fmt.Errorf("word %q: %w", word, ErrOutOfVocabulary)
	}
	return m.wordVectorAt(e.Index, policy), nil
}

// wordVectorAt composes the embedding for a vocabulary row. Policies that
// need the sampling-output matrix degrade to the input row on models
// trained without negative sampling.
func (m *Model) wordVectorAt(index int, policy VectorPolicy) []float32 {
	in := m.weights.input[index]
	if m.cfg.Negative <= 0 {
		return append([]float32(nil), in...)
	}
	out := m.weights.negOutput[index]
	switch policy {
	case PolicyConcat:
		v := make([]float32, 0, 2*m.weights.dim)
		v = append(v, in...)
		return append(v, out...)
	case PolicySum:
		v := append([]float32(nil), in...)
		addTo(v, out)
		return v
	case PolicyOutput:
		return append([]float32(nil), out...)
	default:
		return append([]float32(nil), in...)
	}
}
