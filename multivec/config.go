package multivec

import "fmt"

// TrainingConfig holds the hyperparameters for training a model. The zero
// value is not usable; start from DefaultTrainingConfig and override fields.
type TrainingConfig struct {
	// Dimension is the size of the embedding vectors.
	Dimension int `json:"dimension"`
	// MinCount is the minimum corpus frequency for a word to stay in the
	// vocabulary.
	MinCount int `json:"min_count"`
	// WindowSize is the maximum distance between a center word and the
	// context words trained against it. The effective window is drawn
	// uniformly from [1, WindowSize] per center word.
	WindowSize int `json:"window_size"`
	// Threads is the number of training workers. The corpus is split into
	// one chunk per worker.
	Threads int `json:"threads"`
	// Iterations is the number of passes each worker makes over its chunk.
	Iterations int `json:"iterations"`
	// Alpha is the initial learning rate. It decays linearly with training
	// progress down to a floor of Alpha/10000.
	Alpha float32 `json:"alpha"`
	// Subsampling is the frequent-word subsampling threshold. Zero disables
	// subsampling.
	Subsampling float32 `json:"subsampling"`
	// HierarchicalSoftmax enables the Huffman-tree output layer.
	HierarchicalSoftmax bool `json:"hierarchical_softmax"`
	// Negative is the number of negative samples per example. Zero disables
	// negative sampling.
	Negative int `json:"negative"`
	// SkipGram selects the skip-gram objective instead of CBOW.
	SkipGram bool `json:"skip_gram"`
	// SentVector trains one paragraph vector per corpus line alongside the
	// word vectors. Combined with SkipGram this is the DBOW objective.
	SentVector bool `json:"sent_vector"`
	// NoAverage sums context vectors in CBOW instead of averaging them.
	NoAverage bool `json:"no_average"`
	// Verbose controls progress logging. Zero is silent.
	Verbose int `json:"verbose"`
}

// DefaultTrainingConfig returns the stock hyperparameters.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Dimension:   100,
		MinCount:    5,
		WindowSize:  5,
		Threads:     4,
		Iterations:  5,
		Alpha:       0.05,
		Subsampling: 1e-03,
		Negative:    5,
	}
}

// Validate reports the first invalid hyperparameter, if any.
func (c TrainingConfig) Validate() error {
	switch {
	case c.Dimension <= 0:
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	case c.MinCount <= 0:
		return fmt.Errorf("min count must be positive, got %d", c.MinCount)
	case c.WindowSize <= 0:
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	case c.Threads <= 0:
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	case c.Iterations <= 0:
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	case c.Alpha <= 0:
		return fmt.Errorf("alpha must be positive, got %g", c.Alpha)
	case c.Subsampling < 0:
		return fmt.Errorf("subsampling must be non-negative, got %g", c.Subsampling)
	case c.Negative < 0:
		return fmt.Errorf("negative sample count must be non-negative, got %d", c.Negative)
	}
	return nil
}
