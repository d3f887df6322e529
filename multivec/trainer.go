package multivec

// Training fans out one worker goroutine per corpus chunk. The weight
// matrices and the progress counter are shared; the corpus file handle, the
// RNG and the working copy of the learning rate are worker-local.
//
// System fit:
//   - under hogwild consistency workers update the shared matrices without
//     locks; lost updates are tolerated and training stays statistically
//     sound
//   - under locked consistency each matrix has a dedicated guard held for
//     the duration of every access, input guard acquired before the output
//     guards
//   - the progress counter and the shared learning rate are mutex protected
//     in either mode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strings"
	"sync"
)

const (
	// progressBatchWords is how many words a worker trains between shared
	// progress updates.
	progressBatchWords = 10000
	// minAlphaRatio floors the decayed learning rate at this fraction of
	// the initial rate.
	minAlphaRatio = 0.0001
)

func (m *Model) train(ctx context.Context, path string, initialize bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if initialize {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open corpus %s: %w", path, err)
		}
		vocab, err := buildVocabulary(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("corpus %s: %w", path, err)
		}
		vocab.prune(m.cfg.MinCount)
		if vocab.Size() == 0 {
			return fmt.Errorf("min count %d leaves nothing to train: %w", m.cfg.MinCount, ErrEmptyVocabulary)
		}
		assignHuffmanCodes(vocab)
		unigram, err := buildUnigramTable(vocab, m.unigramSize)
		if err != nil {
			return err
		}
		m.vocab = vocab
		m.unigram = unigram
		m.weights = newWeightStore(vocab.Size(), m.cfg.Dimension, m.consistency, m.rng)
	} else if !m.initialized() {
		return ErrModelUninitialized
	}

	lineCount, wordCount, chunks, err := chunkify(path, m.cfg.Threads)
	if err != nil {
		return err
	}
	m.trainingLines = lineCount
	m.trainingWords = wordCount

	m.progressMu.Lock()
	m.wordsProcessed = 0
	m.alpha = m.cfg.Alpha
	m.progressMu.Unlock()

	if m.cfg.SentVector {
		m.weights.initSentenceRows(lineCount, m.rng)
	}
	if m.cfg.Verbose > 0 {
		slog.Default().InfoContext(ctx, "corpus scanned",
			"path", path, "lines", lineCount, "words", wordCount, "vocab", m.vocab.Size())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.cfg.Threads == 1 {
		return m.trainChunk(path, chunks, 0)
	}
	var wg sync.WaitGroup
	errs := make([]error, len(chunks))
	for i := range chunks {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errs[id] = m.trainChunk(path, chunks, id)
		}(i)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// trainChunk runs every epoch of one worker. The worker re-reads its chunk
// from its own file handle each epoch and stops early when it crosses into
// the next chunk's territory; the last chunk always runs to end of file.
func (m *Model) trainChunk(path string, chunks []int64, chunkID int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer f.Close()

	rng := rand.New(rand.NewSource(m.seed + int64(chunkID) + 1))
	startAlpha := m.cfg.Alpha
	alpha := startAlpha
	target := int64(m.cfg.Iterations) * m.trainingWords

	for k := 0; k < m.cfg.Iterations; k++ {
		if _, err := f.Seek(chunks[chunkID], io.SeekStart); err != nil {
			return fmt.Errorf("seek corpus %s: %w", path, err)
		}
		reader := bufio.NewReader(f)
		pos := chunks[chunkID]
		sentID := int64(chunkID) * (m.trainingLines / int64(len(chunks)))
		wordCount := 0

		for {
			line, rerr := reader.ReadString('\n')
			if len(line) > 0 {
				pos += int64(len(line))

				var sentVec []float32
				if m.cfg.SentVector && sentID < int64(len(m.weights.sentence)) {
					sentVec = m.weights.sentence[sentID]
				}
				wordCount += m.trainSentence(line, sentVec, alpha, rng)
				sentID++

				if wordCount >= progressBatchWords {
					var p TrainProgress
					m.progressMu.Lock()
					m.wordsProcessed += int64(wordCount)
					wordCount = 0
					alpha = startAlpha * (1 - float32(m.wordsProcessed)/float32(target))
					if alpha < startAlpha*minAlphaRatio {
						alpha = startAlpha * minAlphaRatio
					}
					m.alpha = alpha
					p = TrainProgress{WordsProcessed: m.wordsProcessed, TargetWords: target, Alpha: alpha}
					m.progressMu.Unlock()
					m.observer.ObserveTrainProgress(p)
				}
				if chunkID < len(chunks)-1 && pos >= chunks[chunkID+1] {
					break
				}
			}
			if rerr != nil {
				if errors.Is(rerr, io.EOF) {
					break
				}
				return fmt.Errorf("read corpus %s: %w", path, rerr)
			}
		}

		m.progressMu.Lock()
		m.wordsProcessed += int64(wordCount)
		m.progressMu.Unlock()
	}
	return nil
}

// trainSentence trains every kept token of one line against its context and
// returns the line's in-vocabulary word count from before subsampling.
func (m *Model) trainSentence(sent string, sentVec []float32, alpha float32, rng *rand.Rand) int {
	nodes := m.lookupTokens(sent)
	words := 0
	for _, n := range nodes {
		if n != unkEntry {
			words++
		}
	}

	if m.cfg.Subsampling > 0 {
		m.subsample(nodes, rng)
	}

	kept := nodes[:0]
	for _, n := range nodes {
		if n != unkEntry {
			kept = append(kept, n)
		}
	}
	for pos := range kept {
		m.trainWord(kept, pos, sentVec, alpha, rng, true)
	}
	return words
}

// lookupTokens resolves whitespace-separated tokens to vocabulary entries,
// substituting the unknown placeholder for words outside the vocabulary.
func (m *Model) lookupTokens(sent string) []*VocabEntry {
	fields := strings.Fields(sent)
	nodes := make([]*VocabEntry, len(fields))
	for i, w := range fields {
		if e, ok := m.vocab.entries[w]; ok {
			nodes[i] = e
		} else {
			nodes[i] = unkEntry
		}
	}
	return nodes
}

// subsample randomly replaces frequent words with the unknown placeholder.
// The discard probability grows with corpus frequency; the placeholder
// itself is never discarded.
func (m *Model) subsample(nodes []*VocabEntry, rng *rand.Rand) {
	t := m.cfg.Subsampling
	total := float32(m.vocab.TotalCount())
	for i, n := range nodes {
		if n == unkEntry {
			continue
		}
		f := float32(n.Count) / total
		p := 1 - (1+float32(math.Sqrt(float64(f/t))))*t/f
		if p >= rng.Float32() {
			nodes[i] = unkEntry
		}
	}
}

func (m *Model) trainWord(nodes []*VocabEntry, wordPos int, sentVec []float32, alpha float32, rng *rand.Rand, update bool) {
	switch {
	case m.cfg.SkipGram && sentVec != nil:
		m.trainWordDBOW(nodes[wordPos], sentVec, alpha, rng, update)
	case m.cfg.SkipGram:
		m.trainWordSkipGram(nodes, wordPos, alpha, rng, update)
	default:
		m.trainWordCBOW(nodes, wordPos, sentVec, alpha, rng, update)
	}
}

// trainWordCBOW predicts the center word from the averaged context. The
// paragraph vector, when present, joins the average and always receives its
// share of the gradient, even when the word matrices are frozen; that is
// what makes post-hoc paragraph inference work.
func (m *Model) trainWordCBOW(nodes []*VocabEntry, wordPos int, sentVec []float32, alpha float32, rng *rand.Rand, update bool) {
	hidden := make([]float32, m.weights.dim)
	window := 1 + rng.Intn(m.cfg.WindowSize)
	count := 0

	m.weights.inputGuard.Lock()
	for pos := wordPos - window; pos <= wordPos+window; pos++ {
		if pos < 0 || pos >= len(nodes) || pos == wordPos {
			continue
		}
		addTo(hidden, m.weights.input[nodes[pos].Index])
		count++
	}
	m.weights.inputGuard.Unlock()

	if sentVec != nil {
		addTo(hidden, sentVec)
		count++
	}
	if count == 0 {
		return
	}
	if m.cfg.NoAverage {
		count = 1
	}
	scale := 1 / float32(count)
	scaleVector(hidden, scale)

	errVec := make([]float32, m.weights.dim)
	if m.cfg.HierarchicalSoftmax {
		m.hierarchicalUpdate(nodes[wordPos], hidden, errVec, alpha, update)
	}
	if m.cfg.Negative > 0 {
		m.negSamplingUpdate(nodes[wordPos], hidden, errVec, alpha, rng, update)
	}

	if update {
		m.weights.inputGuard.Lock()
		for pos := wordPos - window; pos <= wordPos+window; pos++ {
			if pos < 0 || pos >= len(nodes) || pos == wordPos {
				continue
			}
			addScaled(m.weights.input[nodes[pos].Index], scale, errVec)
		}
		m.weights.inputGuard.Unlock()
	}
	if sentVec != nil {
		addScaled(sentVec, scale, errVec)
	}
}

// trainWordSkipGram predicts each context word from the center word's input
// row. The row is used live, so the gradient applied for one context word is
// visible when the next one is trained.
func (m *Model) trainWordSkipGram(nodes []*VocabEntry, wordPos int, alpha float32, rng *rand.Rand, update bool) {
	input := nodes[wordPos]
	window := 1 + rng.Intn(m.cfg.WindowSize)

	for pos := wordPos - window; pos <= wordPos+window; pos++ {
		if pos == wordPos || pos < 0 || pos >= len(nodes) {
			continue
		}
		errVec := make([]float32, m.weights.dim)

		m.weights.inputGuard.Lock()
		hidden := m.weights.input[input.Index]
		if m.cfg.HierarchicalSoftmax {
			m.hierarchicalUpdate(nodes[pos], hidden, errVec, alpha, update)
		}
		if m.cfg.Negative > 0 {
			m.negSamplingUpdate(nodes[pos], hidden, errVec, alpha, rng, update)
		}
		if update {
			addTo(hidden, errVec)
		}
		m.weights.inputGuard.Unlock()
	}
}

// trainWordDBOW predicts the center word from the paragraph vector alone.
// The paragraph vector is always updated, whatever the update flag says
// about the output matrices.
func (m *Model) trainWordDBOW(node *VocabEntry, sentVec []float32, alpha float32, rng *rand.Rand, update bool) {
	errVec := make([]float32, m.weights.dim)
	if m.cfg.HierarchicalSoftmax {
		m.hierarchicalUpdate(node, sentVec, errVec, alpha, update)
	}
	if m.cfg.Negative > 0 {
		m.negSamplingUpdate(node, sentVec, errVec, alpha, rng, update)
	}
	addTo(sentVec, errVec)
}

// hierarchicalUpdate walks the word's Huffman path and nudges each internal
// node row toward the observed bit. Pre-activations outside the logistic
// table skip their bit entirely.
func (m *Model) hierarchicalUpdate(node *VocabEntry, hidden, errVec []float32, alpha float32, update bool) {
	g := m.weights.hsGuard
	for j, bit := range node.Code {
		row := m.weights.hsOutput[node.Parents[j]]
		g.Lock()
		x := dot(hidden, row)
		if x <= -maxExp || x >= maxExp {
			g.Unlock()
			continue
		}
		e := -alpha * (sigmoid(x) - float32(bit))
		addScaled(errVec, e, row)
		if update {
			addScaled(row, e, hidden)
		}
		g.Unlock()
	}
}

// negSamplingUpdate trains the word as a positive example plus Negative
// draws from the unigram table. Draws that hit the positive word are
// skipped rather than redrawn.
func (m *Model) negSamplingUpdate(node *VocabEntry, hidden, errVec []float32, alpha float32, rng *rand.Rand, update bool) {
	g := m.weights.negGuard
	for d := 0; d <= m.cfg.Negative; d++ {
		target := node
		var label float32 = 1
		if d > 0 {
			target = m.unigram.sample(rng)
			if target.Index == node.Index {
				continue
			}
			label = 0
		}

		row := m.weights.negOutput[target.Index]
		g.Lock()
		x := dot(hidden, row)
		var pred float32
		switch {
		case x >= maxExp:
			pred = 1
		case x <= -maxExp:
			pred = 0
		default:
			pred = sigmoid(x)
		}
		e := alpha * (label - pred)
		addScaled(errVec, e, row)
		if update {
			addScaled(row, e, hidden)
		}
		g.Unlock()
	}
}
