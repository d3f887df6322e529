package multivec

import (
	"math"
	"math/rand"
)

const (
	// unigramTableSize is the slot count used for full-size training runs.
	unigramTableSize = 100_000_000
	// distortionPower flattens the unigram distribution before sampling.
	distortionPower = 0.75
)

// unigramTable draws negative samples from the distorted unigram
// distribution. Each word occupies a number of slots proportional to
// count^0.75; very rare words may get no slot at all.
type unigramTable struct {
	slots []int32
	vocab *Vocabulary
}

func buildUnigramTable(v *Vocabulary, size int) (*unigramTable, error) {
	if v.Size() == 0 {
		return nil, ErrEmptyVocabulary
	}
	var total float64
	for _, e := range v.byIndex {
		total += math.Pow(float64(e.Count), distortionPower)
	}
	t := &unigramTable{slots: make([]int32, 0, size), vocab: v}
	for _, e := range v.byIndex {
		f := math.Pow(float64(e.Count), distortionPower) / total
		d := int(f * float64(size))
		for i := 0; i < d; i++ {
			t.slots = append(t.slots, int32(e.Index))
		}
	}
	if len(t.slots) == 0 {
		// Undersized tables can round every allocation down to zero. Give
		// each word one slot so sampling still works.
		for _, e := range v.byIndex {
			t.slots = append(t.slots, int32(e.Index))
		}
	}
	return t, nil
}

func (t *unigramTable) sample(rng *rand.Rand) *VocabEntry {
	return t.vocab.byIndex[t.slots[rng.Intn(len(t.slots))]]
}
