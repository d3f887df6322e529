package multivec

import (
	"context"
	"time"
)

// Artifact kinds recorded in a model manifest.
const (
	ArtifactKindModel      = "model"
	ArtifactKindVectorsBin = "vectors_bin"
	ArtifactKindDuckDB     = "duckdb"
)

// ArtifactMetadata describes one published artifact referenced by a manifest.
type ArtifactMetadata struct {
	Key       string `json:"key"`
	Kind      string `json:"kind"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// ModelManifest is the published description of one model run. It is the
// unit the manifest CAS protects: readers resolve artifacts through it, and
// a publish only becomes visible when its manifest lands.
type ModelManifest struct {
	SchemaVersion int                `json:"schema_version"`
	ModelID       string             `json:"model_id"`
	RunID         string             `json:"run_id"`
	CreatedAt     time.Time          `json:"created_at"`
	Dimension     int                `json:"dimension"`
	VocabSize     int                `json:"vocab_size"`
	TrainingWords int64              `json:"training_words"`
	TrainingLines int64              `json:"training_lines"`
	Config        TrainingConfig     `json:"config"`
	Artifacts     []ArtifactMetadata `json:"artifacts"`
}

// Artifact returns the first artifact of the given kind, or nil.
func (m *ModelManifest) Artifact(kind string) *ArtifactMetadata {
	for i := range m.Artifacts {
		if m.Artifacts[i].Kind == kind {
			return &m.Artifacts[i]
		}
	}
	return nil
}

// ManifestDocument pairs a parsed manifest with its version for CAS.
type ManifestDocument struct {
	Manifest ModelManifest
	Version  string
}

// ManifestStore abstracts manifest CRUD with CAS update semantics.
type ManifestStore interface {
	// Get downloads and parses the manifest. Returns ErrManifestNotFound if absent.
	Get(ctx context.Context, modelID string) (*ManifestDocument, error)

	// HeadVersion returns the current version without downloading the body.
	HeadVersion(ctx context.Context, modelID string) (string, error)

	// UpsertIfMatch publishes a manifest with CAS protection.
	// Empty expectedVersion means "create if absent".
	UpsertIfMatch(ctx context.Context, modelID string, manifest ModelManifest, expectedVersion string) (string, error)

	// Delete removes the manifest. Returns nil if already absent.
	Delete(ctx context.Context, modelID string) error
}

func modelManifestKey(modelID string) string {
	return "models/" + modelID + "/manifest.json"
}
