package multivec

import "errors"

var (
	// ErrEmptyCorpus is returned when a training corpus contains no tokens.
	ErrEmptyCorpus = errors.New("corpus contains no tokens")

	// ErrEmptyVocabulary is returned when pruning removes every word from
	// the vocabulary, leaving nothing to train on.
	ErrEmptyVocabulary = errors.New("vocabulary is empty")

	// ErrModelUninitialized is returned when an operation needs trained
	// weights but the model has never been trained or loaded.
	ErrModelUninitialized = errors.New("model is not initialized")

	// ErrOutOfVocabulary is returned when a single-word lookup names a word
	// the model has never seen. Aggregate operations skip unknown words
	// instead of failing.
	ErrOutOfVocabulary = errors.New("word is out of vocabulary")

	// ErrEmptySequence is returned when a sentence-level operation is given
	// a sequence with no usable tokens.
	ErrEmptySequence = errors.New("sequence contains no usable tokens")

	// ErrDimensionMismatch is returned when two sequences or vectors that
	// must have the same length do not.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEmptyDictionary is returned when mapping training is given no
	// dictionary pair present in both vocabularies.
	ErrEmptyDictionary = errors.New("dictionary contains no trainable pairs")

	// ErrMappingNotLearned is returned when a projection is requested
	// before LearnMapping has run.
	ErrMappingNotLearned = errors.New("mapping has not been learned")
)

var (
	// ErrBlobNotFound is returned when a requested blob does not exist.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrBlobVersionMismatch is returned when a conditional write fails
	// because the target changed since the expected version was read.
	ErrBlobVersionMismatch = errors.New("blob version mismatch")

	// ErrManifestNotFound is returned when a model has no published manifest.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrModelNotFound is returned when a model ID is not known to a catalog
	// or store.
	ErrModelNotFound = errors.New("model not found")

	// ErrPublishLeaseConflict is returned when another publisher holds the
	// publish lease for a model.
	ErrPublishLeaseConflict = errors.New("publish lease held by another publisher")
)
