package multivec

import "sort"

// huffmanNode is one slot of the coding tree arena. Leaves carry their
// vocabulary entry and have no children. Internal nodes carry arena indices
// of their children and an order number that doubles as their row in the
// tree output matrix.
type huffmanNode struct {
	count int64
	left  int
	right int
	leaf  *VocabEntry
	order int
}

type codeFrame struct {
	idx     int
	code    []byte
	parents []int
}

// assignHuffmanCodes builds a Huffman tree over word frequencies and writes
// each entry's code bits and internal-node path onto the entry, root
// decision first. Internal nodes are numbered in creation order, so the
// root always gets the highest number, vocab size minus two. The lower-count
// child of every merge takes bit 0.
func assignHuffmanCodes(v *Vocabulary) {
	n := v.Size()
	if n == 0 {
		return
	}
	arena := make([]huffmanNode, 0, 2*n-1)
	for _, e := range v.byIndex {
		arena = append(arena, huffmanNode{count: e.Count, left: -1, right: -1, leaf: e})
	}

	// Work list of arena indices sorted by descending count, so the two
	// lowest-count nodes are always at the tail. Leaf ties break on word
	// index to keep the tree deterministic for a given vocabulary.
	work := make([]int, n)
	for i := range work {
		work[i] = i
	}
	sort.Slice(work, func(i, j int) bool {
		a, b := &arena[work[i]], &arena[work[j]]
		if a.count != b.count {
			return a.count > b.count
		}
		return a.leaf.Index < b.leaf.Index
	})

	for order := 0; len(work) > 1; order++ {
		left := work[len(work)-1]
		right := work[len(work)-2]
		work = work[:len(work)-2]
		arena = append(arena, huffmanNode{
			count: arena[left].count + arena[right].count,
			left:  left,
			right: right,
			order: order,
		})
		parent := len(arena) - 1
		at := sort.Search(len(work), func(i int) bool {
			return arena[work[i]].count <= arena[parent].count
		})
		work = append(work, 0)
		copy(work[at+1:], work[at:])
		work[at] = parent
	}

	stack := []codeFrame{{idx: work[0]}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &arena[f.idx]
		if node.leaf != nil {
			node.leaf.Code = f.code
			node.leaf.Parents = f.parents
			continue
		}
		parents := append(append([]int(nil), f.parents...), node.order)
		stack = append(stack,
			codeFrame{
				idx:     node.left,
				code:    append(append([]byte(nil), f.code...), 0),
				parents: parents,
			},
			codeFrame{
				idx:     node.right,
				code:    append(append([]byte(nil), f.code...), 1),
				parents: append([]int(nil), parents...),
			},
		)
	}
}
