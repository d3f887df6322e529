package multivec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ExportedVector is one row of an interchange vectors file.
type ExportedVector struct {
	Word   string
	Vector []float32
}

// SaveVectorsBin writes the vocabulary vectors in the common binary
// interchange format: a "<count> <dimension>" header line, then one record
// per word holding the word, a space, the dimension raw little-endian
// float32 components and a newline. Words are ordered by descending count,
// ties by ascending word. Only the first dimension components of a concat
// embedding are written; norm first normalizes the full embedding.
func (m *Model) SaveVectorsBin(path string, policy VectorPolicy, norm bool) error {
	if !m.initialized() {
		return ErrModelUninitialized
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vectors file %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	writeErr := func() error {
		if _, err := fmt.Fprintf(w, "%d %d\n", m.vocab.Size(), m.cfg.Dimension); err != nil {
			return err
		}
		for _, e := range m.vocab.sortedEntries() {
			embedding := m.exportEmbedding(e.Index, policy, norm)
			if _, err := fmt.Fprintf(w, "%s ", e.Word); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, embedding[:m.cfg.Dimension]); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if writeErr != nil {
		f.Close()
		return fmt.Errorf("write vectors %s: %w", path, writeErr)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close vectors %s: %w", path, err)
	}
	return nil
}

// SaveVectorsText writes the vocabulary vectors in the text interchange
// format, same ordering and truncation rules as SaveVectorsBin.
func (m *Model) SaveVectorsText(path string, policy VectorPolicy, norm bool) error {
	if !m.initialized() {
		return ErrModelUninitialized
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vectors file %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	writeErr := func() error {
		if _, err := fmt.Fprintf(w, "%d %d\n", m.vocab.Size(), m.cfg.Dimension); err != nil {
			return err
		}
		for _, e := range m.vocab.sortedEntries() {
			embedding := m.exportEmbedding(e.Index, policy, norm)
			if _, err := fmt.Fprintf(w, "%s ", e.Word); err != nil {
				return err
			}
			for _, v := range embedding[:m.cfg.Dimension] {
				if _, err := w.WriteString(formatComponent(v)); err != nil {
					return err
				}
				if err := w.WriteByte(' '); err != nil {
					return err
				}
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if writeErr != nil {
		f.Close()
		return fmt.Errorf("write vectors %s: %w", path, writeErr)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close vectors %s: %w", path, err)
	}
	return nil
}

// SaveSentenceVectors writes the stored sentence rows as whitespace
// separated text, one line per corpus line, in corpus order.
func (m *Model) SaveSentenceVectors(path string, norm bool) error {
	if !m.initialized() {
		return ErrModelUninitialized
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sentence vectors file %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	writeErr := func() error {
		for _, row := range m.weights.sentence {
			out := row
			if norm {
				out = normalized(row)
			}
			for _, v := range out {
				if _, err := w.WriteString(formatComponent(v)); err != nil {
					return err
				}
				if err := w.WriteByte(' '); err != nil {
					return err
				}
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if writeErr != nil {
		f.Close()
		return fmt.Errorf("write sentence vectors %s: %w", path, writeErr)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close sentence vectors %s: %w", path, err)
	}
	return nil
}

func (m *Model) exportEmbedding(index int, policy VectorPolicy, norm bool) []float32 {
	embedding := m.wordVectorAt(index, policy)
	if norm {
		if n := vectorNorm(embedding); n > 0 {
			scaleVector(embedding, 1/n)
		}
	}
	return embedding
}

func formatComponent(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// ReadVectorsBin parses a binary interchange vectors file written by
// SaveVectorsBin or any compatible tool.
func ReadVectorsBin(path string) ([]ExportedVector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vectors file %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	count, dim, err := readVectorsHeader(r)
	if err != nil {
		return nil, fmt.Errorf("vectors file %s: %w", path, err)
	}
	out := make([]ExportedVector, 0, count)
	for i := 0; i < count; i++ {
		word, err := r.ReadString(' ')
		if err != nil {
			return nil, fmt.Errorf("vectors file %s: record %d: %w", path, i, err)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("vectors file %s: record %d: %w", path, i, err)
		}
		if nl, err := r.ReadByte(); err != nil || nl != '\n' {
			return nil, fmt.Errorf("vectors file %s: record %d: missing record terminator", path, i)
		}
		out = append(out, ExportedVector{Word: strings.TrimSuffix(word, " "), Vector: vec})
	}
	return out, nil
}

// ReadVectorsText parses a text interchange vectors file written by
// SaveVectorsText or any compatible tool.
func ReadVectorsText(path string) ([]ExportedVector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vectors file %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	count, dim, err := readVectorsHeader(r)
	if err != nil {
		return nil, fmt.Errorf("vectors file %s: %w", path, err)
	}
	out := make([]ExportedVector, 0, count)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("vectors file %s: record %d: %w", path, i, err)
			}
			return nil, fmt.Errorf("vectors file %s: record %d: unexpected end of file", path, i)
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) != dim+1 {
			return nil, fmt.Errorf("vectors file %s: record %d: got %d fields, want %d", path, i, len(fields), dim+1)
		}
		vec := make([]float32, dim)
		for c, field := range fields[1:] {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("vectors file %s: record %d: %w", path, i, err)
			}
			vec[c] = float32(v)
		}
		out = append(out, ExportedVector{Word: fields[0], Vector: vec})
	}
	return out, nil
}

func readVectorsHeader(r *bufio.Reader) (count, dim int, err error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	if _, err := fmt.Sscanf(header, "%d %d", &count, &dim); err != nil {
		return 0, 0, fmt.Errorf("parse header %q: %w", strings.TrimSpace(header), err)
	}
	if count < 0 || dim <= 0 {
		return 0, 0, fmt.Errorf("implausible header %q", strings.TrimSpace(header))
	}
	return count, dim, nil
}
