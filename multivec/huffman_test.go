package multivec

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codedVocabulary(t *testing.T, corpus string) *Vocabulary {
	t.Helper()
	v, err := buildVocabulary(strings.NewReader(corpus))
	require.NoError(t, err)
	v.prune(1)
	assignHuffmanCodes(v)
	return v
}

func TestHuffmanKnownTree(t *testing.T) {
	// Counts 5, 3, 1 force a fixed tree shape: the two rare words merge
	// first and the lower-count side of each merge takes bit 0.
	v := codedVocabulary(t, "a a a a a b b b c")

	assert.Equal(t, []byte{1}, v.get("a").Code)
	assert.Equal(t, []byte{0, 1}, v.get("b").Code)
	assert.Equal(t, []byte{0, 0}, v.get("c").Code)

	// The root is numbered last, vocab size minus two, and leads every path.
	root := v.Size() - 2
	for _, e := range v.byIndex {
		require.Len(t, e.Parents, len(e.Code))
		assert.Equal(t, root, e.Parents[0], "word %q", e.Word)
	}
}

func TestHuffmanCodeProperties(t *testing.T) {
	var corpus strings.Builder
	for i := 0; i < 20; i++ {
		word := fmt.Sprintf("w%02d", i)
		for j := 0; j <= i; j++ {
			corpus.WriteString(word)
			corpus.WriteByte(' ')
		}
	}
	v := codedVocabulary(t, corpus.String())
	require.Equal(t, 20, v.Size())

	t.Run("codes_are_prefix_free", func(t *testing.T) {
		for _, a := range v.byIndex {
			for _, b := range v.byIndex {
				if a == b {
					continue
				}
				require.False(t, hasBitPrefix(a.Code, b.Code),
					"%q (%v) is a prefix of %q (%v)", b.Word, b.Code, a.Word, a.Code)
			}
		}
	})

	t.Run("kraft_sum_is_one", func(t *testing.T) {
		// A complete binary code tree satisfies the Kraft equality.
		var sum float64
		for _, e := range v.byIndex {
			require.NotEmpty(t, e.Code)
			sum += math.Pow(2, -float64(len(e.Code)))
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	})

	t.Run("frequent_words_get_shorter_codes", func(t *testing.T) {
		most := v.get("w19")
		least := v.get("w00")
		assert.LessOrEqual(t, len(most.Code), len(least.Code))
	})

	t.Run("parents_address_internal_rows", func(t *testing.T) {
		for _, e := range v.byIndex {
			for _, p := range e.Parents {
				assert.GreaterOrEqual(t, p, 0)
				assert.LessOrEqual(t, p, v.Size()-2)
			}
		}
	})
}

func TestHuffmanSingleWord(t *testing.T) {
	v := codedVocabulary(t, "solo solo solo")
	require.Equal(t, 1, v.Size())
	// A one-word tree has no decisions to encode.
	assert.Empty(t, v.get("solo").Code)
	assert.Empty(t, v.get("solo").Parents)
}

func hasBitPrefix(code, prefix []byte) bool {
	if len(prefix) > len(code) {
		return false
	}
	for i := range prefix {
		if code[i] != prefix[i] {
			return false
		}
	}
	return true
}
