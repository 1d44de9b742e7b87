package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"herald/internal/channel"
)

var (
	ErrStopped  = errors.New("delivery queue stopped")
	ErrNoSender = errors.New("delivery queue has no sender")
)

// AbortedError settles a receipt when its task was cancelled by Clear or
// by shutdown, carrying the caller-supplied reason.
type AbortedError struct {
	Reason string
}

func (e *AbortedError) Error() string { return "delivery aborted: " + e.Reason }

// Config controls pacing and retry behavior.
//
// BaseDelay doubles as the pacing delay once the burst allowance is spent
// and as the base of the retry backoff (BaseDelay × Multiplier^(n−1), capped
// at MaxBackoff).
type Config struct {
	BaseDelay         time.Duration
	BurstAllowance    int
	BurstWindow       time.Duration
	MaxRetries        int
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	RateLimitBuffer   time.Duration
	ShutdownTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.BurstAllowance <= 0 {
		c.BurstAllowance = 5
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = time.Minute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.RateLimitBuffer <= 0 {
		c.RateLimitBuffer = time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

// Options tunes a single enqueue.
type Options struct {
	// Priority: higher sends first; ties preserve arrival order.
	Priority int
	// OnDone runs exactly once when the task settles (nil error = delivered).
	// It is invoked from the worker goroutine; keep it cheap.
	OnDone func(err error)
	// ContentID tags the audit trail entry for this task.
	ContentID string
}

// Receipt is the deferred completion handle for a queued announcement.
// It settles exactly once: delivered, permanently failed, or aborted.
type Receipt struct {
	id     string
	done   chan struct{}
	once   sync.Once
	err    error
	onDone func(err error)
}

// ID returns the task id.
func (r *Receipt) ID() string { return r.id }

// Done is closed when the task settles.
func (r *Receipt) Done() <-chan struct{} { return r.done }

// Err returns the terminal error. Only valid after Done is closed.
func (r *Receipt) Err() error { return r.err }

// Wait blocks until the task settles or ctx is cancelled.
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Receipt) settle(err error) {
	r.once.Do(func() {
		r.err = err
		// Completion callback runs before Done is observable, so side
		// effects (like marking content announced) are visible to waiters.
		if r.onDone != nil {
			r.onDone(err)
		}
		close(r.done)
	})
}

// Metrics is a point-in-time snapshot of queue counters.
type Metrics struct {
	TotalQueued    uint64
	Sent           uint64
	Failed         uint64
	RateLimitHits  uint64
	Retries        uint64
	Cleared        uint64
	QueueSize      int
	PeakQueueSize  int
	ImmediateSends uint64
}

// SuccessRate is Sent / (Sent + Failed); 1.0 when nothing settled yet.
func (m Metrics) SuccessRate() float64 {
	total := m.Sent + m.Failed
	if total == 0 {
		return 1.0
	}
	return float64(m.Sent) / float64(total)
}

// task is one queued announcement.
type task struct {
	id        string
	target    channel.Target
	payload   channel.Payload
	priority  int
	seq       uint64
	retries   int
	createdAt time.Time
	contentID string
	receipt   *Receipt
}
