package pool

import (
	"fmt"
	"strings"
	"time"
)

// Policy decides what a saturated pool does with a new task.
type Policy int

const (
	// CallerRuns executes the task synchronously on the submitting goroutine.
	CallerRuns Policy = iota
	// DiscardOldest evicts the head of the queue and admits the new task.
	DiscardOldest
	// Abort rejects the task with ErrRejected.
	Abort
)

// String returns the config name of the policy.
func (p Policy) String() string {
	switch p {
	case CallerRuns:
		return "caller_runs"
	case DiscardOldest:
		return "discard_oldest"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy maps a config name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "caller_runs", "caller-runs", "callerruns":
		return CallerRuns, nil
	case "discard_oldest", "discard-oldest", "discardoldest":
		return DiscardOldest, nil
	case "abort":
		return Abort, nil
	default:
		return 0, fmt.Errorf("unknown saturation policy %q", s)
	}
}

// Config holds the sizing of one worker pool.
type Config struct {
	// Name is used in logs and metrics
	Name string

	// CoreSize workers are kept alive even when idle
	CoreSize int

	// MaxSize bounds the total number of workers
	MaxSize int

	// QueueCapacity bounds the number of waiting tasks
	QueueCapacity int

	// KeepAlive is how long a worker above CoreSize may stay idle
	KeepAlive time.Duration

	// AwaitTermination bounds how long Shutdown waits for running work
	AwaitTermination time.Duration

	// Policy applies when the queue is full and MaxSize workers are busy
	Policy Policy
}

// Validate checks the pool sizing.
func (c Config) Validate() error {
	switch {
	case c.CoreSize < 0:
		return fmt.Errorf("pool %s: core size must not be negative", c.Name)
	case c.MaxSize <= 0:
		return fmt.Errorf("pool %s: max size must be positive", c.Name)
	case c.CoreSize > c.MaxSize:
		return fmt.Errorf("pool %s: core size %d exceeds max size %d", c.Name, c.CoreSize, c.MaxSize)
	case c.QueueCapacity < 0:
		return fmt.Errorf("pool %s: queue capacity must not be negative", c.Name)
	case c.KeepAlive <= 0:
		return fmt.Errorf("pool %s: keep-alive must be positive", c.Name)
	}
	return nil
}
