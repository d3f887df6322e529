package multivec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// chunkify scans the corpus once, counting lines and whitespace-separated
// words, and returns one starting byte offset per requested chunk. Chunks
// are aligned to line starts; the last chunk runs to end of file. When nChunks
// exceeds the line count every chunk starts at offset zero.
func chunkify(path string, nChunks int) (lineCount, wordCount int64, chunks []int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var positions []int64
	var offset int64
	for {
		line, rerr := reader.ReadString('\n')
		if len(line) > 0 {
			positions = append(positions, offset)
			wordCount += int64(len(strings.Fields(line)))
			offset += int64(len(line))
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return 0, 0, nil, fmt.Errorf("read corpus %s: %w", path, rerr)
		}
	}
	// End-of-file sentinel, so positions always holds lineCount+1 entries.
	positions = append(positions, offset)

	lineCount = int64(len(positions) - 1)
	if lineCount == 0 {
		return 0, 0, nil, fmt.Errorf("corpus %s: %w", path, ErrEmptyCorpus)
	}

	chunkLines := lineCount / int64(nChunks)
	chunks = make([]int64, nChunks)
	for i := range chunks {
		chunks[i] = positions[int64(i)*chunkLines]
	}
	return lineCount, wordCount, chunks, nil
}
