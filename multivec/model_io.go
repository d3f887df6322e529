package multivec

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Model files are a small self-describing container: a fixed magic and
// format version, a JSON header with the config and corpus statistics, the
// vocabulary records, then the raw weight matrices as little-endian
// float32 rows. The Huffman codes and the sampling table are rebuilt on
// load, never stored.
const (
	modelMagic         = "MVEC"
	modelFormatVersion = 1

	maxHeaderBytes = 1 << 20
	maxWordBytes   = 1 << 16
)

type modelHeader struct {
	Config        TrainingConfig `json:"config"`
	VocabSize     int            `json:"vocab_size"`
	TrainingWords int64          `json:"training_words"`
	TrainingLines int64          `json:"training_lines"`
	SentenceRows  int            `json:"sentence_rows"`
}

// Save writes the full trained state to path. A saved model restores to an
// equivalent model: same vocabulary, same matrices, ready for queries or
// incremental training.
func (m *Model) Save(path string) error {
	if !m.initialized() {
		return ErrModelUninitialized
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model file %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if err := m.writeTo(w); err != nil {
		f.Close()
		return fmt.Errorf("write model %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush model %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync model %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close model %s: %w", path, err)
	}
	return nil
}

func (m *Model) writeTo(w io.Writer) error {
	headerJSON, err := json.Marshal(modelHeader{
		Config:        m.cfg,
		VocabSize:     m.vocab.Size(),
		TrainingWords: m.trainingWords,
		TrainingLines: m.trainingLines,
		SentenceRows:  len(m.weights.sentence),
	})
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if _, err := io.WriteString(w, modelMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(modelFormatVersion)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(headerJSON))); err != nil {
		return err
	}
	if _, err := w.Write(headerJSON); err != nil {
		return err
	}

	for _, e := range m.vocab.byIndex {
		if err := binary.Write(w, binary.LittleEndian, uint32(e.Index)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(e.Count)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Word))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, e.Word); err != nil {
			return err
		}
	}

	for _, matrix := range [][][]float32{m.weights.input, m.weights.negOutput, m.weights.hsOutput, m.weights.sentence} {
		if err := writeMatrixRows(w, matrix); err != nil {
			return err
		}
	}
	return nil
}

// LoadModel restores a model saved with Save. Options apply to the restored
// model the same way they would to a fresh one; the stored config always
// wins over defaults.
func LoadModel(path string, opts ...ModelOption) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file %s: %w", path, err)
	}
	defer f.Close()
	m, err := readModel(bufio.NewReaderSize(f, 1<<20), opts...)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return m, nil
}

func readModel(r io.Reader, opts ...ModelOption) (*Model, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic[:]) != modelMagic {
		return nil, fmt.Errorf("bad magic %q", magic[:])
	}
	var version, headerLen uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read format version: %w", err)
	}
	if version != modelFormatVersion {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	if headerLen == 0 || headerLen > maxHeaderBytes {
		return nil, fmt.Errorf("implausible header length %d", headerLen)
	}
	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var h modelHeader
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if err := h.Config.Validate(); err != nil {
		return nil, fmt.Errorf("stored config: %w", err)
	}
	if h.VocabSize <= 0 || h.SentenceRows < 0 {
		return nil, fmt.Errorf("implausible header counts: vocab %d, sentence rows %d", h.VocabSize, h.SentenceRows)
	}

	m, err := NewModel(h.Config, opts...)
	if err != nil {
		return nil, err
	}

	vocab := &Vocabulary{entries: make(map[string]*VocabEntry, h.VocabSize)}
	for i := 0; i < h.VocabSize; i++ {
		var index uint32
		var count uint64
		var wordLen uint32
		if err := binary.Read(r, binary.LittleEndian, &index); err != nil {
			return nil, fmt.Errorf("read vocab record %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, fmt.Errorf("read vocab record %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &wordLen); err != nil {
			return nil, fmt.Errorf("read vocab record %d: %w", i, err)
		}
		if int(index) >= h.VocabSize {
			return nil, fmt.Errorf("vocab record %d: index %d out of range", i, index)
		}
		if wordLen == 0 || wordLen > maxWordBytes {
			return nil, fmt.Errorf("vocab record %d: implausible word length %d", i, wordLen)
		}
		wordBytes := make([]byte, wordLen)
		if _, err := io.ReadFull(r, wordBytes); err != nil {
			return nil, fmt.Errorf("read vocab record %d: %w", i, err)
		}
		word := string(wordBytes)
		if _, dup := vocab.entries[word]; dup {
			return nil, fmt.Errorf("vocab record %d: duplicate word %q", i, word)
		}
		vocab.entries[word] = &VocabEntry{Index: int(index), Word: word, Count: int64(count)}
	}
	vocab.reindex()
	for i, e := range vocab.byIndex {
		if e == nil {
			return nil, fmt.Errorf("vocabulary index %d is unassigned", i)
		}
	}
	assignHuffmanCodes(vocab)
	unigram, err := buildUnigramTable(vocab, m.unigramSize)
	if err != nil {
		return nil, err
	}

	dim := h.Config.Dimension
	weights := &WeightStore{dim: dim}
	if weights.input, err = readMatrixRows(r, h.VocabSize, dim); err != nil {
		return nil, fmt.Errorf("read input matrix: %w", err)
	}
	if weights.negOutput, err = readMatrixRows(r, h.VocabSize, dim); err != nil {
		return nil, fmt.Errorf("read sampling-output matrix: %w", err)
	}
	if weights.hsOutput, err = readMatrixRows(r, h.VocabSize, dim); err != nil {
		return nil, fmt.Errorf("read tree-output matrix: %w", err)
	}
	if weights.sentence, err = readMatrixRows(r, h.SentenceRows, dim); err != nil {
		return nil, fmt.Errorf("read sentence matrix: %w", err)
	}
	weights.setGuards(m.consistency)

	m.vocab = vocab
	m.unigram = unigram
	m.weights = weights
	m.trainingWords = h.TrainingWords
	m.trainingLines = h.TrainingLines
	return m, nil
}

func writeMatrixRows(w io.Writer, rows [][]float32) error {
	for _, row := range rows {
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return err
		}
	}
	return nil
}

func readMatrixRows(r io.Reader, rows, dim int) ([][]float32, error) {
	m := make([][]float32, rows)
	for i := range m {
		m[i] = make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, m[i]); err != nil {
			return nil, err
		}
	}
	return m, nil
}
