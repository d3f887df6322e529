package multivec

// TrainProgress is a point-in-time snapshot of a training run.
type TrainProgress struct {
	// WordsProcessed counts trained words across all workers and epochs.
	WordsProcessed int64
	// TargetWords is iterations times the corpus word count, the
	// denominator for progress and learning-rate decay.
	TargetWords int64
	// Alpha is the shared learning rate after the latest decay step.
	Alpha float32
}

// Fraction returns training progress in [0, 1].
func (p TrainProgress) Fraction() float64 {
	if p.TargetWords == 0 {
		return 0
	}
	return float64(p.WordsProcessed) / float64(p.TargetWords)
}

// TrainObserver receives progress snapshots during training. Snapshots are
// delivered from worker goroutines outside the progress lock, so
// implementations must be safe for concurrent use.
type TrainObserver interface {
	ObserveTrainProgress(p TrainProgress)
}

// NoopTrainObserver discards all progress snapshots.
type NoopTrainObserver struct{}

func (NoopTrainObserver) ObserveTrainProgress(TrainProgress) {}

// TrainObserverFunc adapts a plain function to the TrainObserver interface.
type TrainObserverFunc func(TrainProgress)

func (f TrainObserverFunc) ObserveTrainProgress(p TrainProgress) { f(p) }
