package multivec

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	mappingPatience     = 10
	mappingInitialAlpha = 0.01
	mappingMinAlpha     = 1e-10
	mappingEpsilon      = 0.0001
)

// DictionaryPair is one translation pair of an induced or supplied
// dictionary.
type DictionaryPair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// BilingualModel relates two monolingual models. Cross-language queries
// compare vectors across the two spaces directly; LearnMapping additionally
// fits a linear projection from source rows to target rows over a seed
// dictionary, which MapVector then applies.
type BilingualModel struct {
	Source *Model
	Target *Model

	threads int
	rng     *rand.Rand
	mapping [][]float32
}

// BilingualOption configures a BilingualModel.
type BilingualOption func(*BilingualModel)

// WithBilingualThreads overrides the worker count for dictionary induction.
// The default is the source model's thread count.
func WithBilingualThreads(n int) BilingualOption {
	return func(b *BilingualModel) {
		if n > 0 {
			b.threads = n
		}
	}
}

// WithBilingualSeed fixes the RNG used to shuffle mapping examples.
func WithBilingualSeed(seed int64) BilingualOption {
	return func(b *BilingualModel) { b.rng = rand.New(rand.NewSource(seed)) }
}

// NewBilingualModel wraps a source and a target model.
func NewBilingualModel(src, trg *Model, opts ...BilingualOption) *BilingualModel {
	b := &BilingualModel{Source: src, Target: trg, threads: src.cfg.Threads}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return b
}

func (b *BilingualModel) initialized() bool {
	return b.Source.initialized() && b.Target.initialized()
}

// Similarity returns the cosine similarity of a source word and a target
// word across the two spaces. Either word missing from its vocabulary
// yields zero.
func (b *BilingualModel) Similarity(srcWord, trgWord string, policy VectorPolicy) (float32, error) {
	if !b.initialized() {
		return 0, ErrModelUninitialized
	}
	return b.crossWordSimilarity(srcWord, trgWord, policy), nil
}

// Distance maps cross-language similarity into [0, 2], zero meaning
// identical direction.
func (b *BilingualModel) Distance(srcWord, trgWord string, policy VectorPolicy) (float32, error) {
	sim, err := b.Similarity(srcWord, trgWord, policy)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

func (b *BilingualModel) crossWordSimilarity(srcWord, trgWord string, policy VectorPolicy) float32 {
	se := b.Source.vocab.get(srcWord)
	te := b.Target.vocab.get(trgWord)
	if se == nil || te == nil {
		return 0
	}
	return cosineSimilarity(
		b.Source.wordVectorAt(se.Index, policy),
		b.Target.wordVectorAt(te.Index, policy),
	)
}

// TargetClosest ranks target-language words by similarity to a source word.
func (b *BilingualModel) TargetClosest(srcWord string, n int, policy VectorPolicy) ([]WordSimilarity, error) {
	if !b.initialized() {
		return nil, ErrModelUninitialized
	}
	vec, err := b.Source.WordVector(srcWord, policy)
	if err != nil {
		return nil, err
	}
	return b.Target.ClosestToVector(vec, n, policy)
}

// SourceClosest ranks source-language words by similarity to a target word.
func (b *BilingualModel) SourceClosest(trgWord string, n int, policy VectorPolicy) ([]WordSimilarity, error) {
	if !b.initialized() {
		return nil, ErrModelUninitialized
	}
	vec, err := b.Target.WordVector(trgWord, policy)
	if err != nil {
		return nil, err
	}
	return b.Source.ClosestToVector(vec, n, policy)
}

// SimilarityNgrams averages position-wise cross-language similarities of
// two equal-length sequences. Pairs with an unknown member contribute zero.
func (b *BilingualModel) SimilarityNgrams(srcSeq, trgSeq string, policy VectorPolicy) (float32, error) {
	if !b.initialized() {
		return 0, ErrModelUninitialized
	}
	src := strings.Fields(srcSeq)
	trg := strings.Fields(trgSeq)
	if len(src) != len(trg) {
		return 0, fmt.Errorf("sequences have %d and %d tokens: %w", len(src), len(trg), ErrDimensionMismatch)
	}
	if len(src) == 0 {
		return 0, ErrEmptySequence
	}
	var sum float32
	for i := range src {
		sum += b.crossWordSimilarity(src[i], trg[i], policy)
	}
	return sum / float32(len(src)), nil
}

// SimilaritySentence compares the summed source-side and target-side word
// vectors of two sequences.
func (b *BilingualModel) SimilaritySentence(srcSeq, trgSeq string, policy VectorPolicy) (float32, error) {
	if !b.initialized() {
		return 0, ErrModelUninitialized
	}
	return cosineSimilarity(
		b.Source.sumWordVectors(srcSeq, policy),
		b.Target.sumWordVectors(trgSeq, policy),
	), nil
}

// SimilaritySentenceSyntax compares POS and idf weighted vector sums across
// the two languages, with the same weighting rules as the monolingual
// variant.
func (b *BilingualModel) SimilaritySentenceSyntax(srcSeq, trgSeq, srcTags, trgTags string, srcIDF, trgIDF []float32, alpha float32, policy VectorPolicy) (float32, error) {
	if !b.initialized() {
		return 0, ErrModelUninitialized
	}
	return cosineSimilarity(
		b.Source.sumWeightedWordVectors(srcSeq, srcTags, srcIDF, alpha, policy),
		b.Target.sumWeightedWordVectors(trgSeq, trgTags, trgIDF, alpha, policy),
	), nil
}

// InduceDictionary pairs the most frequent source words with their greedy
// nearest target neighbor. srcCount and trgCount cap the candidate lists;
// zero means the whole vocabulary.
func (b *BilingualModel) InduceDictionary(srcCount, trgCount int, policy VectorPolicy) ([]DictionaryPair, error) {
	if !b.initialized() {
		return nil, ErrModelUninitialized
	}
	return b.InduceDictionaryWords(topWords(b.Source, srcCount), topWords(b.Target, trgCount), policy)
}

// InduceDictionaryWords pairs each given source word with its greedy
// nearest neighbor among the given target words, comparing unit-normalized
// vectors. Words outside their vocabulary are dropped from the candidate
// lists. Results keep the source list order.
func (b *BilingualModel) InduceDictionaryWords(srcWords, trgWords []string, policy VectorPolicy) ([]DictionaryPair, error) {
	if !b.initialized() {
		return nil, ErrModelUninitialized
	}
	if b.Source.policyDimension(policy) != b.Target.policyDimension(policy) {
		return nil, fmt.Errorf("source and target embeddings have %d and %d components: %w",
			b.Source.policyDimension(policy), b.Target.policyDimension(policy), ErrDimensionMismatch)
	}
	src := collectNormalized(b.Source, srcWords, policy)
	trg := collectNormalized(b.Target, trgWords, policy)
	if len(src) == 0 || len(trg) == 0 {
		return nil, nil
	}

	if b.threads <= 1 {
		return induceShard(src, trg), nil
	}

	// Contiguous shards keep the output order equal to the source order;
	// the last shard absorbs the division remainder.
	shardSize := len(src) / b.threads
	results := make([][]DictionaryPair, b.threads)
	var wg sync.WaitGroup
	for i := 0; i < b.threads; i++ {
		begin := i * shardSize
		end := begin + shardSize
		if i == b.threads-1 {
			end = len(src)
		}
		wg.Add(1)
		go func(i int, shard []normalizedWord) {
			defer wg.Done()
			results[i] = induceShard(shard, trg)
		}(i, src[begin:end])
	}
	wg.Wait()

	var out []DictionaryPair
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

type normalizedWord struct {
	word string
	vec  []float32
}

func collectNormalized(m *Model, words []string, policy VectorPolicy) []normalizedWord {
	out := make([]normalizedWord, 0, len(words))
	for _, w := range words {
		e := m.vocab.get(w)
		if e == nil {
			continue
		}
		out = append(out, normalizedWord{word: w, vec: normalized(m.wordVectorAt(e.Index, policy))})
	}
	return out
}

func induceShard(src, trg []normalizedWord) []DictionaryPair {
	out := make([]DictionaryPair, 0, len(src))
	for _, s := range src {
		best := -1
		var bestDot float32
		for i, t := range trg {
			if d := dot(s.vec, t.vec); best < 0 || d > bestDot {
				best = i
				bestDot = d
			}
		}
		out = append(out, DictionaryPair{Source: s.word, Target: trg[best].word})
	}
	return out
}

func topWords(m *Model, n int) []string {
	entries := m.vocab.sortedEntries()
	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	words := make([]string, len(entries))
	for i, e := range entries {
		words[i] = e.Word
	}
	return words
}

// LearnMapping fits the linear projection from source input rows to target
// input rows by per-example gradient descent over the dictionary. The
// learning rate starts at 0.01 and halves whenever ten consecutive epochs
// fail to improve the best loss by more than epsilon; training stops when
// halving no longer helps or the rate underflows 1e-10.
func (b *BilingualModel) LearnMapping(dict []DictionaryPair) error {
	if !b.initialized() {
		return ErrModelUninitialized
	}
	type indexPair struct{ src, trg int }
	pairs := make([]indexPair, 0, len(dict))
	for _, p := range dict {
		se := b.Source.vocab.get(p.Source)
		te := b.Target.vocab.get(p.Target)
		if se == nil || te == nil {
			continue
		}
		pairs = append(pairs, indexPair{src: se.Index, trg: te.Index})
	}
	if len(pairs) == 0 {
		return ErrEmptyDictionary
	}

	srcDim := b.Source.cfg.Dimension
	trgDim := b.Target.cfg.Dimension
	mapping := zeroMatrix(trgDim, srcDim)

	patience := mappingPatience
	var bestLoss float32 = -1
	var prevBestLoss float32 = -1
	var alpha float32 = mappingInitialAlpha

	y := make([]float32, trgDim)
	e := make([]float32, trgDim)
	for alpha > mappingMinAlpha {
		var loss float32
		b.rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
		for _, p := range pairs {
			x := b.Source.weights.input[p.src]
			z := b.Target.weights.input[p.trg]
			for i := range mapping {
				y[i] = dot(mapping[i], x)
				e[i] = y[i] - z[i]
				loss += e[i] * e[i] / float32(len(pairs))
			}
			for i := range mapping {
				addScaled(mapping[i], -2*alpha*e[i], x)
			}
		}

		if bestLoss > 0 && loss >= bestLoss-mappingEpsilon {
			patience--
		}
		if bestLoss <= 0 || loss < bestLoss {
			bestLoss = loss
		}
		if patience == 0 {
			if prevBestLoss > 0 && bestLoss >= prevBestLoss-mappingEpsilon {
				break
			}
			prevBestLoss = bestLoss
			alpha /= 2
			patience = mappingPatience
			if b.Source.cfg.Verbose > 0 {
				slog.Default().Info("mapping plateau, halving rate", "alpha", alpha, "best_loss", bestLoss)
			}
		}
	}
	b.mapping = mapping
	return nil
}

// MapVector projects a source-space vector into the target space through
// the learned mapping.
func (b *BilingualModel) MapVector(src []float32) ([]float32, error) {
	if b.mapping == nil {
		return nil, ErrMappingNotLearned
	}
	if len(src) != len(b.mapping[0]) {
		return nil, fmt.Errorf("vector has %d components, want %d: %w", len(src), len(b.mapping[0]), ErrDimensionMismatch)
	}
	out := make([]float32, len(b.mapping))
	for i := range b.mapping {
		out[i] = dot(b.mapping[i], src)
	}
	return out, nil
}

// Mapping returns a copy of the learned projection matrix, row per target
// dimension, or nil before LearnMapping.
func (b *BilingualModel) Mapping() [][]float32 {
	if b.mapping == nil {
		return nil
	}
	out := make([][]float32, len(b.mapping))
	for i, row := range b.mapping {
		out[i] = append([]float32(nil), row...)
	}
	return out
}
