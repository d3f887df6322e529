package multivec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/marcboeker/go-duckdb"
)

// VectorNeighbor is one row of a DuckDB embeddings query.
type VectorNeighbor struct {
	Word  string  `json:"word"`
	Count int64   `json:"count"`
	Score float64 `json:"score"`
}

// ExportDuckDB writes the vocabulary embeddings into a DuckDB database at
// path: one row per word with its corpus frequency and its embedding
// composed under policy, optionally length-normalized. The resulting file
// is self-contained and queryable without the model.
func (m *Model) ExportDuckDB(ctx context.Context, path string, policy VectorPolicy, norm bool) error {
	if !m.initialized() {
		return ErrModelUninitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// DuckDB creates its own file structure and rejects a pre-existing
	// empty file.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear export target %s: %w", path, err)
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("open duckdb at %s: %w", path, err)
	}
	defer db.Close()

	dim := m.policyDimension(policy)
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE embeddings (
			word TEXT PRIMARY KEY,
			freq BIGINT NOT NULL,
			vec FLOAT[%d] NOT NULL
		)
	`, dim)); err != nil {
		return fmt.Errorf("create embeddings table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export tx: %w", err)
	}

	for _, e := range m.vocab.sortedEntries() {
		embedding := m.exportEmbedding(e.Index, policy, norm)
		vecStr := formatVectorForSQL(embedding)
		insertSQL := fmt.Sprintf(`INSERT INTO embeddings (word, freq, vec) VALUES (?, ?, %s::FLOAT[%d])`, vecStr, dim)
		if _, err := tx.ExecContext(ctx, insertSQL, e.Word, e.Count); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert embedding for %q: %w", e.Word, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export tx: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CHECKPOINT`); err != nil {
		return fmt.Errorf("checkpoint export db: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close export db: %w", err)
	}
	return nil
}

// QueryTopKVectors returns the k nearest words to queryVec from an exported
// embeddings database, by cosine similarity, most similar first. The query
// vector length must match the exported embedding length.
func QueryTopKVectors(ctx context.Context, dbPath string, queryVec []float32, k int) ([]VectorNeighbor, error) {
	if k <= 0 {
		return []VectorNeighbor{}, nil
	}
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb at %s: %w", dbPath, err)
	}
	defer db.Close()

	vecStr := formatVectorForSQL(queryVec)
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT word, freq, array_cosine_similarity(vec, %s::FLOAT[%d]) as score
		FROM embeddings
		ORDER BY score DESC
		LIMIT %d
	`, vecStr, len(queryVec), k))
	if err != nil {
		return nil, fmt.Errorf("embeddings query failed: %w", err)
	}
	defer rows.Close()

	results := make([]VectorNeighbor, 0, k)
	for rows.Next() {
		var n VectorNeighbor
		if err := rows.Scan(&n.Word, &n.Count, &n.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return results, nil
}
