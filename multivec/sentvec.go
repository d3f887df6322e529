package multivec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
)

// InferSentenceVector learns an embedding for an unseen sentence against
// the frozen word matrices. The vector starts at zero and is refined over
// the given number of passes with a per-pass annealed learning rate;
// iterations <= 0 falls back to the configured epoch count. Safe to call
// concurrently.
func (m *Model) InferSentenceVector(sentence string, iterations int) ([]float32, error) {
	if !m.initialized() {
		return nil, ErrModelUninitialized
	}
	if iterations <= 0 {
		iterations = m.cfg.Iterations
	}
	nodes := m.lookupTokens(sentence)
	kept := nodes[:0]
	for _, n := range nodes {
		if n != unkEntry {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("sentence has no in-vocabulary tokens: %w", ErrEmptySequence)
	}

	rng := rand.New(rand.NewSource(m.seed + m.inferSeq.Add(1)))
	sentVec := make([]float32, m.cfg.Dimension)
	for k := 0; k < iterations; k++ {
		alpha := m.cfg.Alpha * (1 - float32(k)/float32(iterations))
		for pos := range kept {
			m.trainWord(kept, pos, sentVec, alpha, rng, false)
		}
	}
	return sentVec, nil
}

// InferSentenceVectors infers one vector per line of the file and replaces
// the model's stored sentence rows with the result. Lines without a single
// in-vocabulary token keep a zero row.
func (m *Model) InferSentenceVectors(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.initialized() {
		return ErrModelUninitialized
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open sentences %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var rows [][]float32
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := m.InferSentenceVector(scanner.Text(), m.cfg.Iterations)
		if err != nil {
			if !errors.Is(err, ErrEmptySequence) {
				return err
			}
			v = make([]float32, m.cfg.Dimension)
		}
		rows = append(rows, v)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read sentences %s: %w", path, err)
	}
	m.weights.sentence = rows
	return nil
}
