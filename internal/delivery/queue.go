package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"herald/internal/channel"
	"herald/internal/eventbus"
	"herald/internal/storage"
	logx "herald/pkg/logx"
)

// Queue is the rate-limited delivery queue. Exactly one worker dispatches
// tasks; public entry points only insert under the queue mutex and signal
// the worker, so the worker is the sole writer of dispatch order (retries
// and rate-limit re-insertion happen inline in its loop).
type Queue struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	sender channel.Sender
	store  storage.Store // audit trail, may be nil

	tasks []*task
	seq   uint64
	wake  chan struct{}

	pausedUntil time.Time
	sendTimes   []time.Time

	running    bool
	draining   bool
	inFlight   bool
	runCtx     context.Context
	runCancel  context.CancelFunc
	stopCh     chan struct{}
	workerDone chan struct{}

	m counters
}

type counters struct {
	queued    uint64
	sent      uint64
	failed    uint64
	rlHits    uint64
	retries   uint64
	cleared   uint64
	immediate uint64
	peak      int
}

func New(cfg Config, sender channel.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Queue {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Queue{
		cfg:    cfg.withDefaults(),
		log:    log,
		bus:    bus,
		sender: sender,
		store:  store,
		wake:   make(chan struct{}, 1),
	}
}

// Apply swaps pacing/retry settings at runtime. Queued tasks are unaffected.
func (q *Queue) Apply(cfg Config) {
	q.mu.Lock()
	q.cfg = cfg.withDefaults()
	q.mu.Unlock()
}

// Start launches the worker. Idempotent while running.
func (q *Queue) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.draining = false
	q.stopCh = make(chan struct{})
	q.workerDone = make(chan struct{})
	q.runCtx, q.runCancel = context.WithCancel(ctx)
	go q.worker()
	q.log.Debug("delivery worker started")
}

// Stop drains the queue up to ShutdownTimeout (or ctx), then force-fails
// whatever is left with a shutdown reason and stops the worker.
func (q *Queue) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.draining = true
	timeout := q.cfg.ShutdownTimeout
	stopCh := q.stopCh
	cancel := q.runCancel
	done := q.workerDone
	q.mu.Unlock()

	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

drain:
	for {
		q.mu.Lock()
		empty := len(q.tasks) == 0 && !q.inFlight
		q.mu.Unlock()
		if empty {
			break drain
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			break drain
		case <-ctx.Done():
			break drain
		}
	}

	close(stopCh)
	cancel()
	<-done

	if n := q.Clear("shutdown"); n > 0 {
		q.log.Warn("delivery queue shut down with undelivered tasks", logx.Int("failed", n))
	}

	q.mu.Lock()
	q.running = false
	q.mu.Unlock()
	q.log.Info("delivery queue stopped", logx.Duration("took", time.Since(start)))
}

// Enqueue inserts a task ordered by descending priority, ties broken by
// arrival order, and returns its deferred completion handle.
func (q *Queue) Enqueue(ctx context.Context, to channel.Target, p channel.Payload, opts Options) (*Receipt, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	if q.sender == nil {
		return nil, ErrNoSender
	}

	q.mu.Lock()
	if !q.running || q.draining {
		q.mu.Unlock()
		return nil, ErrStopped
	}
	q.seq++
	t := &task{
		id:        uuid.NewString(),
		target:    to,
		payload:   p,
		priority:  opts.Priority,
		seq:       q.seq,
		createdAt: time.Now(),
		contentID: opts.ContentID,
		receipt: &Receipt{
			done:   make(chan struct{}),
			onDone: opts.OnDone,
		},
	}
	t.receipt.id = t.id
	q.insertLocked(t)
	q.m.queued++
	if len(q.tasks) > q.m.peak {
		q.m.peak = len(q.tasks)
	}
	size := len(q.tasks)
	q.mu.Unlock()

	q.signalWake()
	q.publish(eventbus.EventQueued, t, nil)
	q.log.Debug("announcement queued",
		logx.String("task", t.id), logx.Int("priority", t.priority), logx.Int("queue_size", size))
	return t.receipt, nil
}

// SendImmediate bypasses the queue for a one-off send; still counted in
// metrics.
func (q *Queue) SendImmediate(ctx context.Context, to channel.Target, p channel.Payload) error {
	if q.sender == nil {
		return ErrNoSender
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, sendTimeout)
	_, err := q.sender.Send(cctx, to, p)
	cancel()

	q.mu.Lock()
	q.m.immediate++
	if err == nil {
		q.m.sent++
	} else {
		q.m.failed++
	}
	q.mu.Unlock()
	return err
}

// Clear fails every queued (not yet dispatched) task with the given reason
// and empties the queue. Returns the number of tasks failed.
func (q *Queue) Clear(reason string) int {
	q.mu.Lock()
	dropped := q.tasks
	q.tasks = nil
	q.m.cleared += uint64(len(dropped))
	q.mu.Unlock()

	err := &AbortedError{Reason: reason}
	for _, t := range dropped {
		t.receipt.settle(err)
		q.publish(eventbus.EventCleared, t, err)
	}
	if len(dropped) > 0 {
		q.log.Debug("delivery queue cleared", logx.Int("failed", len(dropped)), logx.String("reason", reason))
	}
	return len(dropped)
}

// Size returns the number of waiting tasks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Metrics{
		TotalQueued:    q.m.queued,
		Sent:           q.m.sent,
		Failed:         q.m.failed,
		RateLimitHits:  q.m.rlHits,
		Retries:        q.m.retries,
		Cleared:        q.m.cleared,
		QueueSize:      len(q.tasks),
		PeakQueueSize:  q.m.peak,
		ImmediateSends: q.m.immediate,
	}
}

// insertLocked keeps tasks sorted by descending priority, FIFO within equal
// priority (new tasks go after existing equals).
func (q *Queue) insertLocked(t *task) {
	i := len(q.tasks)
	for j, ex := range q.tasks {
		if ex.priority < t.priority {
			i = j
			break
		}
	}
	q.tasks = append(q.tasks, nil)
	copy(q.tasks[i+1:], q.tasks[i:])
	q.tasks[i] = t
}

func (q *Queue) signalWake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) publish(typ string, t *task, err error) {
	if q.bus == nil {
		return
	}
	data := map[string]any{
		"task":     t.id,
		"priority": t.priority,
		"chat_id":  t.target.ChatID,
	}
	if t.contentID != "" {
		data["content_id"] = t.contentID
	}
	if err != nil {
		data["error"] = err.Error()
	}
	q.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
