package extension

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueueRunsInOrder(t *testing.T) {
	q := newJobQueue()
	defer q.shutdown()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		require.True(t, q.enqueue(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestJobQueueNeverOverlaps(t *testing.T) {
	q := newJobQueue()
	defer q.shutdown()

	var running, overlaps int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.True(t, q.enqueue(func() {
			defer wg.Done()
			if atomic.AddInt32(&running, 1) > 1 {
				atomic.AddInt32(&overlaps, 1)
			}
			atomic.AddInt32(&running, -1)
		}))
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlaps))
}

func TestJobQueueShutdownRejectsNewJobs(t *testing.T) {
	q := newJobQueue()
	q.shutdown()

	assert.False(t, q.enqueue(func() {}))
}

func TestJobQueueShutdownWaitsForRunningJob(t *testing.T) {
	q := newJobQueue()

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	require.True(t, q.enqueue(func() {
		close(started)
		<-release
		finished.Store(true)
	}))

	<-started
	go func() { close(release) }()
	q.shutdown()

	assert.True(t, finished.Load())
}
