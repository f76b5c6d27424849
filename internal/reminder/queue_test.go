package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedJobs struct {
	mu   sync.Mutex
	jobs []Job
}

func (f *firedJobs) handle(_ context.Context, job Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
}

func (f *firedJobs) snapshot() []Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Job(nil), f.jobs...)
}

func TestTimerQueue_Fires(t *testing.T) {
	fired := &firedJobs{}
	q := NewTimerQueue(context.Background(), nil, fired.handle)
	defer q.Close()

	q.Enqueue(Job{Key: "a", FireAt: time.Now().Add(20 * time.Millisecond)})

	require.Eventually(t, func() bool { return len(fired.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, q.Pending())
}

func TestTimerQueue_ReplaceOnConflict(t *testing.T) {
	fired := &firedJobs{}
	q := NewTimerQueue(context.Background(), nil, fired.handle)
	defer q.Close()

	at := time.Now().Add(30 * time.Millisecond)
	assert.False(t, q.Enqueue(Job{Key: "morning", FireAt: at, Payload: Payload{PrescriptionID: "P1"}}))
	assert.True(t, q.Enqueue(Job{Key: "morning", FireAt: at, Payload: Payload{PrescriptionID: "P2"}}))
	require.Len(t, q.Pending(), 1)

	require.Eventually(t, func() bool { return len(fired.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	got := fired.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "P2", got[0].Payload.PrescriptionID)
}

func TestTimerQueue_EnqueueIfAbsent(t *testing.T) {
	q := NewTimerQueue(context.Background(), nil, func(context.Context, Job) {})
	defer q.Close()

	at := time.Now().Add(time.Hour)
	assert.True(t, q.EnqueueIfAbsent(Job{Key: "k", FireAt: at, Payload: Payload{PrescriptionID: "P1"}}))
	assert.False(t, q.EnqueueIfAbsent(Job{Key: "k", FireAt: at, Payload: Payload{PrescriptionID: "P2"}}))

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "P1", pending[0].Payload.PrescriptionID)
}

func TestTimerQueue_CancelAndCancelAll(t *testing.T) {
	fired := &firedJobs{}
	q := NewTimerQueue(context.Background(), nil, fired.handle)
	defer q.Close()

	soon := time.Now().Add(20 * time.Millisecond)
	q.Enqueue(Job{Key: "a", FireAt: soon})
	q.Enqueue(Job{Key: "b", FireAt: soon})
	q.Enqueue(Job{Key: "c", FireAt: soon})

	assert.True(t, q.Cancel("a"))
	assert.False(t, q.Cancel("a"))
	assert.Equal(t, 2, q.CancelAll())

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, fired.snapshot())
	assert.Empty(t, q.Pending())
}

func TestTimerQueue_PendingOrdered(t *testing.T) {
	q := NewTimerQueue(context.Background(), nil, func(context.Context, Job) {})
	defer q.Close()

	now := time.Now()
	q.Enqueue(Job{Key: "late", FireAt: now.Add(3 * time.Hour)})
	q.Enqueue(Job{Key: "early", FireAt: now.Add(time.Hour)})
	q.Enqueue(Job{Key: "mid", FireAt: now.Add(2 * time.Hour)})

	pending := q.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"early", "mid", "late"}, []string{pending[0].Key, pending[1].Key, pending[2].Key})
}

func TestTimerQueue_CloseWaitsForRunningHandler(t *testing.T) {
	started := make(chan struct{})
	finished := false
	q := NewTimerQueue(context.Background(), nil, func(context.Context, Job) {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished = true
	})

	q.Enqueue(Job{Key: "a", FireAt: time.Now()})
	<-started
	q.Close()

	assert.True(t, finished)
	assert.False(t, q.Enqueue(Job{Key: "b", FireAt: time.Now()}))
}
