// publish.go implements ModelStore, the durable publish/fetch layer for
// trained models.
//
// System fit:
//
//   - Publish stages artifacts locally, uploads them under immutable
//     run-scoped keys (models/<id>/<runID>/...), and only then flips the
//     manifest via CAS. Readers never observe a half-published run: until
//     the manifest lands, the new artifacts are unreachable.
//   - Concurrent publishes of one model are serialised by a publish lease;
//     the manifest CAS remains the hard guard when the lease fails open.
//   - Fetch resolves artifacts only through the manifest and verifies size
//     and checksum before loading, so a torn download can never surface as
//     a silently corrupt model.
//
// Abandoned runs (a publisher that died between upload and CAS) leave
// orphaned run directories behind. Delete removes everything under the
// model prefix, which also collects those orphans.

package multivec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact file names within a run directory.
const (
	modelArtifactName   = "model.mvec"
	vectorsArtifactName = "vectors.bin"
	duckdbArtifactName  = "embeddings.duckdb"
)

// ModelStore publishes trained models to durable storage and fetches them
// back. Artifact bytes live in the BlobStore; the manifest names the current
// run and is the single point of visibility.
type ModelStore struct {
	BlobStore     BlobStore
	ManifestStore ManifestStore
	LeaseManager  PublishLeaseManager
	LeaseTTL      time.Duration
}

// ModelStoreOption configures ModelStore instances.
type ModelStoreOption func(*ModelStore)

// WithManifestStore sets a custom ManifestStore implementation.
func WithManifestStore(store ManifestStore) ModelStoreOption {
	return func(s *ModelStore) {
		if store != nil {
			s.ManifestStore = store
		}
	}
}

// WithPublishLeaseManager sets the lease manager for distributed coordination.
func WithPublishLeaseManager(mgr PublishLeaseManager) ModelStoreOption {
	return func(s *ModelStore) {
		if mgr == nil {
			s.LeaseManager = NewInMemoryPublishLeaseManager()
			return
		}
		s.LeaseManager = mgr
	}
}

// WithPublishLeaseTTL sets the TTL for publish leases.
func WithPublishLeaseTTL(ttl time.Duration) ModelStoreOption {
	return func(s *ModelStore) {
		if ttl <= 0 {
			s.LeaseTTL = defaultPublishLeaseTTL
			return
		}
		s.LeaseTTL = ttl
	}
}

// NewModelStore creates a ModelStore on the given blob store.
func NewModelStore(bs BlobStore, opts ...ModelStoreOption) *ModelStore {
	s := &ModelStore{
		BlobStore:    bs,
		LeaseManager: NewInMemoryPublishLeaseManager(),
		LeaseTTL:     defaultPublishLeaseTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.ManifestStore == nil {
		s.ManifestStore = &BlobManifestStore{Store: s.BlobStore}
	}

	return s
}

type publishOptions struct {
	vectorsBin bool
	duckdb     bool
	policy     VectorPolicy
	normalize  bool
}

// PublishOption selects extra artifacts to publish alongside the model file.
type PublishOption func(*publishOptions)

// WithVectorsArtifact additionally publishes the embeddings in word2vec
// binary format, composed per policy and optionally length-normalized.
func WithVectorsArtifact(policy VectorPolicy, normalize bool) PublishOption {
	return func(o *publishOptions) {
		o.vectorsBin = true
		o.policy = policy
		o.normalize = normalize
	}
}

// WithDuckDBArtifact additionally publishes a queryable DuckDB database of
// the embeddings.
func WithDuckDBArtifact() PublishOption {
	return func(o *publishOptions) {
		o.duckdb = true
	}
}

func runArtifactKey(modelID, runID, name string) string {
	return fmt.Sprintf("models/%s/%s/%s", modelID, runID, name)
}

// Publish uploads the model under a fresh run ID and flips the manifest.
//
// It returns ErrPublishLeaseConflict when another publish of this model is
// in flight, and ErrBlobVersionMismatch when the manifest changed between
// the version read and the CAS write. Neither failure leaves a partially
// visible model.
func (s *ModelStore) Publish(ctx context.Context, modelID string, m *Model, opts ...PublishOption) (*ModelManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("modelID cannot be empty")
	}
	if m == nil || !m.initialized() {
		return nil, ErrModelUninitialized
	}

	var cfg publishOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	leaseManager, lease, err := s.acquirePublishLease(ctx, modelID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = leaseManager.Release(context.Background(), lease)
	}()

	// Read the manifest version before any upload work. The CAS at the end
	// fails if anyone else published in between.
	expectedVersion, err := s.ManifestStore.HeadVersion(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("head manifest version for %s: %w", modelID, err)
	}

	runID := uuid.New().String()

	stageDir, err := os.MkdirTemp("", "multivec-publish-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stageDir)

	type stagedArtifact struct {
		name string
		kind string
		path string
	}
	staged := make([]stagedArtifact, 0, 3)

	modelPath := filepath.Join(stageDir, modelArtifactName)
	if err := m.Save(modelPath); err != nil {
		return nil, fmt.Errorf("stage model artifact: %w", err)
	}
	staged = append(staged, stagedArtifact{name: modelArtifactName, kind: ArtifactKindModel, path: modelPath})

	if cfg.vectorsBin {
		vectorsPath := filepath.Join(stageDir, vectorsArtifactName)
		if err := m.SaveVectorsBin(vectorsPath, cfg.policy, cfg.normalize); err != nil {
			return nil, fmt.Errorf("stage vectors artifact: %w", err)
		}
		staged = append(staged, stagedArtifact{name: vectorsArtifactName, kind: ArtifactKindVectorsBin, path: vectorsPath})
	}

	if cfg.duckdb {
		dbPath := filepath.Join(stageDir, duckdbArtifactName)
		if err := m.ExportDuckDB(ctx, dbPath, cfg.policy, cfg.normalize); err != nil {
			return nil, fmt.Errorf("stage duckdb artifact: %w", err)
		}
		staged = append(staged, stagedArtifact{name: duckdbArtifactName, kind: ArtifactKindDuckDB, path: dbPath})
	}

	artifacts := make([]ArtifactMetadata, 0, len(staged))
	for _, art := range staged {
		info, err := os.Stat(art.path)
		if err != nil {
			return nil, err
		}
		sha, err := fileContentSHA256(art.path)
		if err != nil {
			return nil, err
		}

		key := runArtifactKey(modelID, runID, art.name)
		if _, err := s.BlobStore.UploadIfMatch(ctx, key, art.path, ""); err != nil {
			return nil, fmt.Errorf("upload artifact %s: %w", art.name, err)
		}

		artifacts = append(artifacts, ArtifactMetadata{
			Key:       key,
			Kind:      art.kind,
			SizeBytes: info.Size(),
			SHA256:    sha,
		})

		// Renew between uploads so a slow artifact does not outlive the
		// lease. Renewal failure is not fatal; the manifest CAS still holds.
		if renewed, renewErr := leaseManager.Renew(ctx, lease, s.LeaseTTL); renewErr == nil {
			lease = renewed
		} else {
			slog.Default().WarnContext(ctx, "publish lease renew failed", "model_id", modelID, "run_id", runID, "error", renewErr)
		}
	}

	manifest := ModelManifest{
		SchemaVersion: 1,
		ModelID:       modelID,
		RunID:         runID,
		CreatedAt:     time.Now().UTC(),
		Dimension:     m.Dimension(),
		VocabSize:     m.VocabSize(),
		TrainingWords: m.TrainingWords(),
		TrainingLines: m.TrainingLines(),
		Config:        m.Config(),
		Artifacts:     artifacts,
	}

	if _, err := s.ManifestStore.UpsertIfMatch(ctx, modelID, manifest, expectedVersion); err != nil {
		if errors.Is(err, ErrBlobVersionMismatch) {
			slog.Default().WarnContext(ctx, "manifest CAS conflict", "model_id", modelID, "run_id", runID)
		}
		return nil, fmt.Errorf("publish manifest for %s: %w", modelID, err)
	}

	slog.Default().InfoContext(ctx, "model published",
		"model_id", modelID,
		"run_id", runID,
		"artifacts", len(artifacts),
		"vocab_size", manifest.VocabSize,
		"dimension", manifest.Dimension,
	)
	return &manifest, nil
}

// Fetch downloads the currently published model and loads it. The manifest
// that resolved the artifacts is returned alongside the model.
func (s *ModelStore) Fetch(ctx context.Context, modelID string, opts ...ModelOption) (*Model, *ModelManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, nil, fmt.Errorf("modelID cannot be empty")
	}

	doc, err := s.ManifestStore.Get(ctx, modelID)
	if err != nil {
		if errors.Is(err, ErrManifestNotFound) {
			return nil, nil, fmt.Errorf("fetch model %s: %w", modelID, ErrModelNotFound)
		}
		return nil, nil, err
	}

	art := doc.Manifest.Artifact(ArtifactKindModel)
	if art == nil {
		return nil, nil, fmt.Errorf("manifest for %s has no model artifact", modelID)
	}

	tmpDir, err := os.MkdirTemp("", "multivec-fetch-*")
	if err != nil {
		return nil, nil, err
	}
	defer os.RemoveAll(tmpDir)

	modelPath := filepath.Join(tmpDir, modelArtifactName)
	if err := s.BlobStore.Download(ctx, art.Key, modelPath); err != nil {
		return nil, nil, fmt.Errorf("download model artifact %s: %w", art.Key, err)
	}

	// Check size first (cheap stat) before computing SHA256 (full file read).
	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, nil, err
	}
	if art.SizeBytes > 0 && info.Size() != art.SizeBytes {
		return nil, nil, fmt.Errorf("model artifact %s size mismatch", art.Key)
	}
	if art.SHA256 != "" {
		sha, err := fileContentSHA256(modelPath)
		if err != nil {
			return nil, nil, err
		}
		if sha != art.SHA256 {
			return nil, nil, fmt.Errorf("model artifact %s checksum mismatch", art.Key)
		}
	}

	model, err := LoadModel(modelPath, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load model %s: %w", modelID, err)
	}

	manifest := doc.Manifest
	return model, &manifest, nil
}

// Manifest returns the current manifest document for modelID.
// Returns ErrManifestNotFound if the model has never been published.
func (s *ModelStore) Manifest(ctx context.Context, modelID string) (*ManifestDocument, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("modelID cannot be empty")
	}
	return s.ManifestStore.Get(ctx, modelID)
}

// Delete removes all published artifacts and the manifest for modelID,
// including orphaned runs left behind by abandoned publishes.
func (s *ModelStore) Delete(ctx context.Context, modelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(modelID) == "" {
		return fmt.Errorf("modelID cannot be empty")
	}

	leaseManager, lease, err := s.acquirePublishLease(ctx, modelID)
	if err != nil {
		return err
	}
	defer func() {
		_ = leaseManager.Release(context.Background(), lease)
	}()

	objects, err := s.BlobStore.List(ctx, "models/"+modelID+"/")
	if err != nil {
		return fmt.Errorf("list artifacts for %s: %w", modelID, err)
	}
	for _, obj := range objects {
		if err := s.BlobStore.Delete(ctx, obj.Key); err != nil && !errors.Is(err, ErrBlobNotFound) {
			return fmt.Errorf("delete artifact %s: %w", obj.Key, err)
		}
	}

	if err := s.ManifestStore.Delete(ctx, modelID); err != nil {
		return fmt.Errorf("delete manifest for %s: %w", modelID, err)
	}

	slog.Default().InfoContext(ctx, "model deleted", "model_id", modelID, "artifacts_removed", len(objects))
	return nil
}
