package multivec

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// VocabEntry is one word of the training vocabulary. Index is the word's row
// in the weight matrices and stays dense in [0, vocab size) after pruning.
// Code and Parents are the word's Huffman code bits and the matching internal
// node indices, root first.
type VocabEntry struct {
	Index   int
	Word    string
	Count   int64
	Code    []byte
	Parents []int
}

// unkEntry stands in for out-of-vocabulary tokens during lookup. It is a
// placeholder, never trained and never counted.
var unkEntry = &VocabEntry{Index: -1, Word: "<unk>"}

// Vocabulary maps words to their entries and keeps a dense index over them.
type Vocabulary struct {
	entries    map[string]*VocabEntry
	byIndex    []*VocabEntry
	totalCount int64
}

// WordCount pairs a vocabulary word with its corpus frequency.
type WordCount struct {
	Word  string `json:"word"`
	Count int64  `json:"count"`
}

// buildVocabulary counts whitespace-separated tokens from r. Entries keep
// the index order in which words were first seen; call prune before
// training to drop rare words and re-densify the indices.
func buildVocabulary(r io.Reader) (*Vocabulary, error) {
	v := &Vocabulary{entries: make(map[string]*VocabEntry)}
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		word := scanner.Text()
		if e, ok := v.entries[word]; ok {
			e.Count++
			continue
		}
		v.entries[word] = &VocabEntry{Index: len(v.entries), Word: word, Count: 1}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}
	if len(v.entries) == 0 {
		return nil, ErrEmptyCorpus
	}
	return v, nil
}

// prune drops words with fewer than minCount occurrences and reassigns
// dense indices to the survivors, keeping their first-seen order. Index
// assignment must be deterministic or fixed-seed runs would not reproduce.
func (v *Vocabulary) prune(minCount int) {
	for word, e := range v.entries {
		if e.Count < int64(minCount) {
			delete(v.entries, word)
		}
	}
	survivors := make([]*VocabEntry, 0, len(v.entries))
	for _, e := range v.entries {
		survivors = append(survivors, e)
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].Index < survivors[j].Index })
	for i, e := range survivors {
		e.Index = i
	}
	v.reindex()
}

// reindex rebuilds the index-ordered view and the total count after entry
// indices change.
func (v *Vocabulary) reindex() {
	v.byIndex = make([]*VocabEntry, len(v.entries))
	v.totalCount = 0
	for _, e := range v.entries {
		v.byIndex[e.Index] = e
		v.totalCount += e.Count
	}
}

func (v *Vocabulary) get(word string) *VocabEntry {
	return v.entries[word]
}

func (v *Vocabulary) Size() int {
	return len(v.entries)
}

// TotalCount is the summed frequency of all words kept after pruning.
func (v *Vocabulary) TotalCount() int64 {
	return v.totalCount
}

// sortedEntries returns entries ordered by descending count, ties broken by
// ascending word. This is the canonical export order.
func (v *Vocabulary) sortedEntries() []*VocabEntry {
	out := make([]*VocabEntry, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	return out
}

// Words returns every vocabulary word with its frequency, most frequent
// first.
func (v *Vocabulary) Words() []WordCount {
	entries := v.sortedEntries()
	out := make([]WordCount, len(entries))
	for i, e := range entries {
		out[i] = WordCount{Word: e.Word, Count: e.Count}
	}
	return out
}
