package extension

import "sync"

// jobQueue runs jobs one at a time, in submission order. Reload cycles are
// serialized through it so two cycles can never race on the shared
// registries or leave the host bus partially torn down.
type jobQueue struct {
	jobs chan func()
	quit chan struct{}
	stop sync.Once
	wg   sync.WaitGroup
}

func newJobQueue() *jobQueue {
	q := &jobQueue{
		jobs: make(chan func(), 64),
		quit: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *jobQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case job := <-q.jobs:
			job()
		case <-q.quit:
			return
		}
	}
}

// enqueue submits a job. It reports false when the queue has shut down or is
// saturated; an in-flight job is never cancelled.
func (q *jobQueue) enqueue(job func()) bool {
	select {
	case <-q.quit:
		return false
	default:
	}

	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

// shutdown stops the worker after the current job finishes. Queued jobs are
// dropped.
func (q *jobQueue) shutdown() {
	q.stop.Do(func() { close(q.quit) })
	q.wg.Wait()
}
