package reminder

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Job is a deferred reminder armed under Key
type Job struct {
	Key     string    `json:"key"`
	FireAt  time.Time `json:"fire_at"`
	Payload Payload   `json:"payload"`
}

// JobHandler runs a fired job. It is never interrupted once started.
type JobHandler func(ctx context.Context, job Job)

type armedJob struct {
	job   Job
	timer *time.Timer
	seq   uint64
}

// TimerQueue holds one-shot deferred jobs keyed by string. Enqueueing under
// an armed key replaces the earlier job.
type TimerQueue struct {
	handler JobHandler
	now     func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	timers map[string]*armedJob
	seq    uint64
	closed bool

	wg sync.WaitGroup
}

// NewTimerQueue creates a queue whose handlers run with ctx. Delays are
// measured against now.
func NewTimerQueue(ctx context.Context, now func() time.Time, handler JobHandler) *TimerQueue {
	if now == nil {
		now = time.Now
	}
	return &TimerQueue{
		handler: handler,
		now:     now,
		ctx:     ctx,
		timers:  make(map[string]*armedJob),
	}
}

// Enqueue arms job, replacing any job armed under the same key. It reports
// whether a previous job was replaced.
func (q *TimerQueue) Enqueue(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	replaced := false
	if existing, ok := q.timers[job.Key]; ok {
		existing.timer.Stop()
		replaced = true
	}
	q.arm(job)
	return replaced
}

// EnqueueIfAbsent arms job only when nothing is armed under its key
func (q *TimerQueue) EnqueueIfAbsent(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, ok := q.timers[job.Key]; ok {
		return false
	}
	q.arm(job)
	return true
}

func (q *TimerQueue) arm(job Job) {
	q.seq++
	seq := q.seq
	delay := job.FireAt.Sub(q.now())
	if delay < 0 {
		delay = 0
	}
	q.timers[job.Key] = &armedJob{
		job:   job,
		seq:   seq,
		timer: time.AfterFunc(delay, func() { q.fire(job.Key, seq) }),
	}
}

func (q *TimerQueue) fire(key string, seq uint64) {
	q.mu.Lock()
	entry, ok := q.timers[key]
	if !ok || entry.seq != seq || q.closed {
		// replaced or cancelled after the timer already started
		q.mu.Unlock()
		return
	}
	delete(q.timers, key)
	ctx := q.ctx
	q.wg.Add(1)
	q.mu.Unlock()

	defer q.wg.Done()
	q.handler(ctx, entry.job)
}

// Cancel retracts the job armed under key
func (q *TimerQueue) Cancel(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.timers[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(q.timers, key)
	return true
}

// CancelAll retracts every armed job and returns how many were removed
func (q *TimerQueue) CancelAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.timers)
	for key, entry := range q.timers {
		entry.timer.Stop()
		delete(q.timers, key)
	}
	return n
}

// Pending lists armed jobs ordered by fire time
func (q *TimerQueue) Pending() []Job {
	q.mu.Lock()
	out := make([]Job, 0, len(q.timers))
	for _, entry := range q.timers {
		out = append(out, entry.job)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

// Close retracts armed jobs and waits for running handlers to finish
func (q *TimerQueue) Close() {
	q.mu.Lock()
	q.closed = true
	for key, entry := range q.timers {
		entry.timer.Stop()
		delete(q.timers, key)
	}
	q.mu.Unlock()

	q.wg.Wait()
}
