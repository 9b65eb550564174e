package smbus

import (
	"context"
	"sync"
)

type job struct {
	fn  func() error
	res chan error
}

// workQueue runs jobs one at a time in submission order on its own
// goroutine
type workQueue struct {
	jobs chan job
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		jobs: make(chan job),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *workQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		case j := <-q.jobs:
			j.res <- j.fn()
		}
	}
}

// Do runs fn on the queue and returns its result. A job that has started
// always runs to completion; ctx only bounds the wait for a slot.
func (q *workQueue) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j := job{fn: fn, res: make(chan error, 1)}
	select {
	case q.jobs <- j:
	case <-q.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-j.res
}

// stop ends the queue after the running job, if any
func (q *workQueue) stop() {
	q.once.Do(func() { close(q.quit) })
	<-q.done
}
