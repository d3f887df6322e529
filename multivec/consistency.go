package multivec

import "fmt"

// ConsistencyMode selects how concurrent workers coordinate access to the
// shared weight matrices during training.
type ConsistencyMode int

const (
	// ConsistencyHogwild lets workers read and write the weight matrices
	// without locks. Updates can race and occasionally clobber each other;
	// the result is still statistically sound and this mode is much faster.
	ConsistencyHogwild ConsistencyMode = iota

	// ConsistencyLocked serializes access to each weight matrix behind its
	// own mutex. Training is deterministic per worker schedule at the cost
	// of heavy contention.
	ConsistencyLocked
)

func (m ConsistencyMode) String() string {
	switch m {
	case ConsistencyHogwild:
		return "hogwild"
	case ConsistencyLocked:
		return "locked"
	default:
		return fmt.Sprintf("consistency(%d)", int(m))
	}
}

// ParseConsistencyMode maps the names accepted on the command line to a
// mode.
func ParseConsistencyMode(s string) (ConsistencyMode, error) {
	switch s {
	case "hogwild", "":
		return ConsistencyHogwild, nil
	case "locked", "sync":
		return ConsistencyLocked, nil
	default:
		return 0, fmt.Errorf("unknown consistency mode %q", s)
	}
}

// matrixGuard is the per-matrix lock used while training. Hogwild mode
// installs a no-op guard so the hot path stays branch-free.
type matrixGuard interface {
	Lock()
	Unlock()
}

type nopGuard struct{}

func (nopGuard) Lock()   {}
func (nopGuard) Unlock() {}
