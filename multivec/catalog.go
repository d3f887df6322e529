package multivec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ModelCatalog is a concurrency-safe registry of loaded models keyed by ID.
// A catalog can optionally fall back to a ModelStore: the first Get for an
// unknown ID fetches the published model and caches it.
type ModelCatalog struct {
	mu     sync.RWMutex
	models map[string]*Model
	store  *ModelStore
}

// NewModelCatalog creates an empty catalog with no store fallback.
func NewModelCatalog() *ModelCatalog {
	return &ModelCatalog{models: make(map[string]*Model)}
}

// NewModelCatalogWithStore creates a catalog that fetches unknown IDs from
// the given store on demand.
func NewModelCatalogWithStore(store *ModelStore) *ModelCatalog {
	return &ModelCatalog{models: make(map[string]*Model), store: store}
}

// Add registers a model under id, replacing any previous entry.
func (c *ModelCatalog) Add(id string, m *Model) {
	if id == "" || m == nil {
		return
	}
	c.mu.Lock()
	c.models[id] = m
	c.mu.Unlock()
}

// Remove drops the model registered under id, if any.
func (c *ModelCatalog) Remove(id string) {
	c.mu.Lock()
	delete(c.models, id)
	c.mu.Unlock()
}

// Get returns the model registered under id. With a store fallback
// configured, a miss fetches the published model and caches it; concurrent
// misses may fetch more than once, last one wins. Returns ErrModelNotFound
// when the ID is unknown everywhere.
func (c *ModelCatalog) Get(ctx context.Context, id string) (*Model, error) {
	if id == "" {
		return nil, fmt.Errorf("model id cannot be empty: %w", ErrModelNotFound)
	}

	c.mu.RLock()
	m, ok := c.models[id]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	if c.store == nil {
		return nil, fmt.Errorf("model %s: %w", id, ErrModelNotFound)
	}

	m, _, err := c.store.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, ErrModelNotFound) || errors.Is(err, ErrManifestNotFound) {
			return nil, fmt.Errorf("model %s: %w", id, ErrModelNotFound)
		}
		return nil, fmt.Errorf("fetch model %s: %w", id, err)
	}

	c.mu.Lock()
	c.models[id] = m
	c.mu.Unlock()

	slog.Default().InfoContext(ctx, "model fetched into catalog", "model_id", id, "vocab_size", m.VocabSize(), "dimension", m.Dimension())
	return m, nil
}

// IDs lists the registered model IDs in sorted order.
func (c *ModelCatalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.models))
	for id := range c.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered models.
func (c *ModelCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// LoadDir loads every *.mvec file in dir into the catalog, keyed by file
// name without the extension. Returns the number of models loaded. A file
// that fails to load aborts the scan.
func (c *ModelCatalog) LoadDir(dir string, opts ...ModelOption) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read model dir %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mvec") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		m, err := LoadModel(path, opts...)
		if err != nil {
			return loaded, fmt.Errorf("load model %s: %w", path, err)
		}

		id := strings.TrimSuffix(entry.Name(), ".mvec")
		c.Add(id, m)
		loaded++

		slog.Default().Info("model loaded into catalog", "model_id", id, "path", path, "vocab_size", m.VocabSize(), "dimension", m.Dimension())
	}

	return loaded, nil
}
