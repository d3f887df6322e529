package multivec

import (
	"fmt"
	"math/rand"
	"sync"
)

// VectorPolicy selects which trained matrices compose a word's embedding.
// The compositions involving the sampling-output matrix only apply to models
// trained with negative sampling; other models fall back to the input row.
type VectorPolicy int

const (
	// PolicyInput reads the input weight row only.
	PolicyInput VectorPolicy = iota
	// PolicyConcat concatenates the input row with the sampling-output row,
	// doubling the embedding length.
	PolicyConcat
	// PolicySum adds the sampling-output row to the input row.
	PolicySum
	// PolicyOutput reads the sampling-output row only.
	PolicyOutput
)

func (p VectorPolicy) String() string {
	switch p {
	case PolicyInput:
		return "input"
	case PolicyConcat:
		return "concat"
	case PolicySum:
		return "sum"
	case PolicyOutput:
		return "output"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseVectorPolicy maps the numeric policy codes 0 through 3 to a policy.
func ParseVectorPolicy(code int) (VectorPolicy, error) {
	if code < int(PolicyInput) || code > int(PolicyOutput) {
		return 0, fmt.Errorf("unknown vector policy %d", code)
	}
	return VectorPolicy(code), nil
}

// WeightStore owns the trained matrices. Rows are indexed by vocabulary
// entry index; hsOutput rows are indexed by Huffman internal-node number.
// The guards serialize matrix access in locked mode and are no-ops under
// hogwild.
type WeightStore struct {
	dim       int
	input     [][]float32
	negOutput [][]float32
	hsOutput  [][]float32
	sentence  [][]float32

	inputGuard matrixGuard
	negGuard   matrixGuard
	hsGuard    matrixGuard
}

func newWeightStore(vocabSize, dim int, mode ConsistencyMode, rng *rand.Rand) *WeightStore {
	w := &WeightStore{
		dim:   dim,
		input: randomMatrix(vocabSize, dim, rng),
		// The tree has vocabSize-1 internal rows; sizing by vocabSize keeps
		// row indexing simple.
		negOutput: zeroMatrix(vocabSize, dim),
		hsOutput:  zeroMatrix(vocabSize, dim),
	}
	w.setGuards(mode)
	return w
}

func (w *WeightStore) setGuards(mode ConsistencyMode) {
	if mode == ConsistencyLocked {
		w.inputGuard, w.negGuard, w.hsGuard = &sync.Mutex{}, &sync.Mutex{}, &sync.Mutex{}
		return
	}
	w.inputGuard, w.negGuard, w.hsGuard = nopGuard{}, nopGuard{}, nopGuard{}
}

// initSentenceRows allocates one random row per corpus line for paragraph
// vector training. Any earlier rows are discarded.
func (w *WeightStore) initSentenceRows(lines int64, rng *rand.Rand) {
	w.sentence = randomMatrix(int(lines), w.dim, rng)
}

func randomMatrix(rows, dim int, rng *rand.Rand) [][]float32 {
	m := make([][]float32, rows)
	for i := range m {
		row := make([]float32, dim)
		for j := range row {
			row[j] = (rng.Float32() - 0.5) / float32(dim)
		}
		m[i] = row
	}
	return m
}

func zeroMatrix(rows, dim int) [][]float32 {
	m := make([][]float32, rows)
	for i := range m {
		m[i] = make([]float32, dim)
	}
	return m
}
