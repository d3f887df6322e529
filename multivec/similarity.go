package multivec

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// WordSimilarity pairs a word with its cosine similarity to some query.
type WordSimilarity struct {
	Word       string  `json:"word"`
	Similarity float32 `json:"similarity"`
}

// posTagWeights scales each universal POS tag's contribution to the
// syntax-aware sentence similarity. Content words dominate, function words
// barely register.
var posTagWeights = map[string]float32{
	"VERB": 0.75,
	"NOUN": 1.0,
	"PRON": 0.1,
	"ADJ":  0.75,
	"ADV":  0.5,
	"ADP":  0.1,
	"CONJ": 0.1,
	"DET":  0.1,
	"NUM":  0.5,
	"PRT":  0.1,
	"X":    0.5,
	".":    0.05,
}

// Similarity returns the cosine similarity of two words under policy. A
// word outside the vocabulary yields zero, and a word compared against
// itself yields exactly one.
func (m *Model) Similarity(w1, w2 string, policy VectorPolicy) (float32, error) {
	if !m.initialized() {
		return 0, ErrModelUninitialized
	}
	return m.wordSimilarity(w1, w2, policy), nil
}

func (m *Model) wordSimilarity(w1, w2 string, policy VectorPolicy) float32 {
	e1 := m.vocab.get(w1)
	e2 := m.vocab.get(w2)
	if e1 == nil || e2 == nil {
		return 0
	}
	if e1.Index == e2.Index {
		return 1
	}
	return cosineSimilarity(m.wordVectorAt(e1.Index, policy), m.wordVectorAt(e2.Index, policy))
}

// Distance maps similarity into [0, 1], zero meaning identical.
func (m *Model) Distance(w1, w2 string, policy VectorPolicy) (float32, error) {
	sim, err := m.Similarity(w1, w2, policy)
	if err != nil {
		return 0, err
	}
	return (1 - sim) / 2, nil
}

// Closest ranks the whole vocabulary by similarity to word, most similar
// first, excluding the word itself. n caps the result length; n <= 0
// returns the full ranking.
func (m *Model) Closest(word string, n int, policy VectorPolicy) ([]WordSimilarity, error) {
	if !m.initialized() {
		return nil, ErrModelUninitialized
	}
	e := m.vocab.get(word)
	if e == nil {
		return nil, fmt.Errorf("word %q: %w", word, ErrOutOfVocabulary)
	}
	query := m.wordVectorAt(e.Index, policy)
	res := make([]WordSimilarity, 0, m.vocab.Size()-1)
	for _, other := range m.vocab.byIndex {
		if other.Index == e.Index {
			continue
		}
		res = append(res, WordSimilarity{
			Word:       other.Word,
			Similarity: cosineSimilarity(query, m.wordVectorAt(other.Index, policy)),
		})
	}
	sortBySimilarity(res)
	return capResults(res, n), nil
}

// ClosestToVector ranks the whole vocabulary by similarity to an arbitrary
// vector, which must match the policy's embedding length. Nothing is
// excluded from the ranking.
func (m *Model) ClosestToVector(vec []float32, n int, policy VectorPolicy) ([]WordSimilarity, error) {
	if !m.initialized() {
		return nil, ErrModelUninitialized
	}
	if len(vec) != m.policyDimension(policy) {
		return nil, fmt.Errorf("query vector has %d components, want %d: %w",
			len(vec), m.policyDimension(policy), ErrDimensionMismatch)
	}
	res := make([]WordSimilarity, 0, m.vocab.Size())
	for _, e := range m.vocab.byIndex {
		res = append(res, WordSimilarity{
			Word:       e.Word,
			Similarity: cosineSimilarity(vec, m.wordVectorAt(e.Index, policy)),
		})
	}
	sortBySimilarity(res)
	return capResults(res, n), nil
}

// ClosestAmong ranks only the given candidate words by similarity to word.
// Candidates outside the vocabulary are skipped.
func (m *Model) ClosestAmong(word string, candidates []string, policy VectorPolicy) ([]WordSimilarity, error) {
	if !m.initialized() {
		return nil, ErrModelUninitialized
	}
	e := m.vocab.get(word)
	if e == nil {
		return nil, fmt.Errorf("word %q: %w", word, ErrOutOfVocabulary)
	}
	query := m.wordVectorAt(e.Index, policy)
	res := make([]WordSimilarity, 0, len(candidates))
	for _, cand := range candidates {
		ce := m.vocab.get(cand)
		if ce == nil {
			continue
		}
		res = append(res, WordSimilarity{
			Word:       ce.Word,
			Similarity: cosineSimilarity(query, m.wordVectorAt(ce.Index, policy)),
		})
	}
	sortBySimilarity(res)
	return res, nil
}

// SimilarityNgrams averages the position-wise word similarities of two
// equal-length sequences. Pairs with an unknown member contribute zero to
// the average.
func (m *Model) SimilarityNgrams(seq1, seq2 string, policy VectorPolicy) (float32, error) {
	if !m.initialized() {
		return 0, ErrModelUninitialized
	}
	words1 := strings.Fields(seq1)
	words2 := strings.Fields(seq2)
	if len(words1) != len(words2) {
		return 0, fmt.Errorf("sequences have %d and %d tokens: %w",
			len(words1), len(words2), ErrDimensionMismatch)
	}
	if len(words1) == 0 {
		return 0, ErrEmptySequence
	}
	var sum float32
	for i := range words1 {
		sum += m.wordSimilarity(words1[i], words2[i], policy)
	}
	return sum / float32(len(words1)), nil
}

// SimilaritySentence compares the summed word vectors of two sequences.
// Unknown words are skipped; if either sum ends up with zero norm the
// similarity is zero.
func (m *Model) SimilaritySentence(seq1, seq2 string, policy VectorPolicy) (float32, error) {
	if !m.initialized() {
		return 0, ErrModelUninitialized
	}
	return cosineSimilarity(
		m.sumWordVectors(seq1, policy),
		m.sumWordVectors(seq2, policy),
	), nil
}

func (m *Model) sumWordVectors(seq string, policy VectorPolicy) []float32 {
	sum := make([]float32, m.policyDimension(policy))
	for _, w := range strings.Fields(seq) {
		if e := m.vocab.get(w); e != nil {
			addTo(sum, m.wordVectorAt(e.Index, policy))
		}
	}
	return sum
}

// SimilaritySentenceSyntax compares weighted vector sums of two sequences.
// Each word's weight is pos^(1-alpha) * idf^alpha, where pos comes from
// posTagWeights for the word's universal POS tag and idf from the caller.
// Tags without a configured weight count as 1. Each side only consumes as
// many words as it has tags and idf values.
func (m *Model) SimilaritySentenceSyntax(seq1, seq2, tags1, tags2 string, idf1, idf2 []float32, alpha float32, policy VectorPolicy) (float32, error) {
	if !m.initialized() {
		return 0, ErrModelUninitialized
	}
	return cosineSimilarity(
		m.sumWeightedWordVectors(seq1, tags1, idf1, alpha, policy),
		m.sumWeightedWordVectors(seq2, tags2, idf2, alpha, policy),
	), nil
}

func (m *Model) sumWeightedWordVectors(seq, tags string, idf []float32, alpha float32, policy VectorPolicy) []float32 {
	words := strings.Fields(seq)
	tagList := strings.Fields(tags)
	n := len(words)
	if len(tagList) < n {
		n = len(tagList)
	}
	if len(idf) < n {
		n = len(idf)
	}
	sum := make([]float32, m.policyDimension(policy))
	for i := 0; i < n; i++ {
		e := m.vocab.get(words[i])
		if e == nil {
			continue
		}
		pos, ok := posTagWeights[tagList[i]]
		if !ok {
			pos = 1
		}
		weight := float32(math.Pow(float64(pos), float64(1-alpha)) * math.Pow(float64(idf[i]), float64(alpha)))
		addScaled(sum, weight, m.wordVectorAt(e.Index, policy))
	}
	return sum
}

// SoftWER computes a word error rate where substitutions cost the embedding
// distance between the substituted words instead of a flat one. Insertions
// and deletions still cost one. The result is normalized by the reference
// length.
func (m *Model) SoftWER(hyp, ref string, policy VectorPolicy) (float32, error) {
	if !m.initialized() {
		return 0, ErrModelUninitialized
	}
	s1 := strings.Fields(hyp)
	s2 := strings.Fields(ref)
	if len(s2) == 0 {
		return 0, fmt.Errorf("reference: %w", ErrEmptySequence)
	}

	d := make([][]float32, len(s1)+1)
	for i := range d {
		d[i] = make([]float32, len(s2)+1)
		d[i][0] = float32(i)
	}
	for j := 1; j <= len(s2); j++ {
		d[0][j] = float32(j)
	}
	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			subCost := (1 - m.wordSimilarity(s1[i-1], s2[j-1], policy)) / 2
			d[i][j] = min3(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+subCost)
		}
	}
	return d[len(s1)][len(s2)] / float32(len(s2)), nil
}

func min3(a, b, c float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func sortBySimilarity(res []WordSimilarity) {
	sort.Slice(res, func(i, j int) bool {
		if res[i].Similarity != res[j].Similarity {
			return res[i].Similarity > res[j].Similarity
		}
		return res[i].Word < res[j].Word
	})
}

// capResults truncates a ranking to n entries; n <= 0 keeps everything.
func capResults(res []WordSimilarity, n int) []WordSimilarity {
	if n > 0 && n < len(res) {
		return res[:n]
	}
	return res
}
