package delivery

import (
	"context"
	"math"
	"time"

	"herald/internal/channel"
	"herald/internal/eventbus"
	"herald/internal/storage"
	logx "herald/pkg/logx"
)

// sendTimeout bounds a single outbound call so the worker can never hang.
const sendTimeout = 10 * time.Second

func (q *Queue) worker() {
	defer close(q.workerDone)
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			select {
			case <-q.stopCh:
				return
			case <-q.wake:
			}
			continue
		}
		// A hard rate limit pauses the whole queue: nothing dispatches
		// until the window elapses, so the head task cannot be overtaken.
		if wait := time.Until(q.pausedUntil); wait > 0 {
			q.mu.Unlock()
			if !q.sleep(wait) {
				return
			}
			continue
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.inFlight = true
		q.mu.Unlock()

		q.process(t)

		q.mu.Lock()
		q.inFlight = false
		q.mu.Unlock()
	}
}

// process attempts delivery of one task until it settles, is re-queued by a
// rate limit, or the queue is force-stopped.
func (q *Queue) process(t *task) {
	for {
		if d := q.pacingDelay(time.Now()); d > 0 {
			q.log.Debug("pacing delay", logx.String("task", t.id), logx.Duration("delay", d))
			if !q.sleep(d) {
				t.receipt.settle(&AbortedError{Reason: "shutdown"})
				return
			}
		}
		q.noteSend(time.Now())

		ctx, cancel := context.WithTimeout(q.runCtx, sendTimeout)
		_, err := q.sender.Send(ctx, t.target, t.payload)
		cancel()

		if err == nil {
			q.succeed(t)
			return
		}
		if q.runCtx.Err() != nil {
			t.receipt.settle(&AbortedError{Reason: "shutdown"})
			return
		}

		if retryAfter, ok := channel.IsRateLimit(err); ok {
			q.mu.Lock()
			q.m.rlHits++
			q.pausedUntil = time.Now().Add(retryAfter + q.cfg.RateLimitBuffer)
			// Head re-insert, retry count untouched: a rate limit is not a
			// task failure.
			q.tasks = append([]*task{t}, q.tasks...)
			until := q.pausedUntil
			q.mu.Unlock()
			q.signalWake()
			q.publish(eventbus.EventRateLimited, t, err)
			q.log.Debug("hard rate limit; queue paused",
				logx.String("task", t.id), logx.Duration("retry_after", retryAfter), logx.Time("until", until))
			return
		}

		if channel.IsPermanent(err) {
			q.fail(t, err)
			return
		}

		// Transient (network-class, 5xx, or unclassified).
		t.retries++
		q.mu.Lock()
		maxRetries := q.cfg.MaxRetries
		q.mu.Unlock()
		if t.retries > maxRetries {
			q.fail(t, &channel.PermanentError{Reason: "retries exhausted", Err: err})
			return
		}
		q.mu.Lock()
		q.m.retries++
		q.mu.Unlock()

		delay := q.backoff(t.retries)
		q.publish(eventbus.EventRetried, t, err)
		q.log.Debug("transient send failure; retry scheduled",
			logx.String("task", t.id), logx.Int("attempt", t.retries+1), logx.Duration("delay", delay), logx.Err(err))
		if !q.sleep(delay) {
			t.receipt.settle(&AbortedError{Reason: "shutdown"})
			return
		}
	}
}

func (q *Queue) succeed(t *task) {
	q.mu.Lock()
	q.m.sent++
	q.mu.Unlock()
	t.receipt.settle(nil)
	q.publish(eventbus.EventSent, t, nil)
	q.audit(t, "sent", nil)
	q.log.Debug("announcement sent", logx.String("task", t.id), logx.Int("attempts", t.retries+1))
}

func (q *Queue) fail(t *task, err error) {
	q.mu.Lock()
	q.m.failed++
	q.mu.Unlock()
	t.receipt.settle(err)
	q.publish(eventbus.EventFailed, t, err)
	q.audit(t, "failed", err)
	// Permanent delivery failures are one of the two failure classes that
	// reach the operator at error severity.
	q.log.Error("announcement permanently failed",
		logx.String("task", t.id), logx.Int("attempts", t.retries+1), logx.Err(err))
}

// pacingDelay implements the rolling-window burst allowance: the first
// BurstAllowance sends per BurstWindow proceed undelayed; later sends in the
// same window wait BaseDelay.
func (q *Queue) pacingDelay(now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := now.Add(-q.cfg.BurstWindow)
	keep := q.sendTimes[:0]
	for _, ts := range q.sendTimes {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	q.sendTimes = keep
	if len(q.sendTimes) < q.cfg.BurstAllowance {
		return 0
	}
	return q.cfg.BaseDelay
}

func (q *Queue) noteSend(now time.Time) {
	q.mu.Lock()
	q.sendTimes = append(q.sendTimes, now)
	q.mu.Unlock()
}

// backoff returns BaseDelay × Multiplier^(n−1), capped at MaxBackoff.
func (q *Queue) backoff(retry int) time.Duration {
	q.mu.Lock()
	base := q.cfg.BaseDelay
	mult := q.cfg.BackoffMultiplier
	limit := q.cfg.MaxBackoff
	q.mu.Unlock()

	d := time.Duration(float64(base) * math.Pow(mult, float64(retry-1)))
	if d > limit || d <= 0 {
		d = limit
	}
	return d
}

// sleep waits d unless the queue is force-stopped first.
func (q *Queue) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	select {
	case <-t.C:
		return true
	case <-q.stopCh:
		if !t.Stop() {
			<-t.C
		}
		return false
	}
}

// audit appends a best-effort delivery outcome row.
func (q *Queue) audit(t *task, outcome string, err error) {
	st := q.store
	if st == nil {
		return
	}
	e := storage.AnnounceEntry{
		At:        time.Now(),
		ContentID: t.contentID,
		ChatID:    t.target.ChatID,
		ThreadID:  t.target.ThreadID,
		Outcome:   outcome,
		Attempts:  t.retries + 1,
		TookMS:    time.Since(t.createdAt).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if aerr := st.AppendAnnounce(ctx, e); aerr != nil {
			q.log.Debug("announce audit write failed", logx.Err(aerr))
		}
	}()
}
