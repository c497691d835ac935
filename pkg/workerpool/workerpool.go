package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/andrej220/devcheck/internal/lg"
	"github.com/andrej220/devcheck/pkg/gate"
)

type JobFunc[T any] func(context.Context, T) error

type Job[T any] struct {
	Payload     T
	Fn          JobFunc[T]
	Ctx         context.Context
	CleanupFunc func()
}

// Pool runs one goroutine per submitted job, with the number of running
// jobs capped by a gate. Every submitted job is joined by Wait.
type Pool[T any] struct {
	gate          *gate.Gate
	activeWorkers int32
	submitted     int32
	wg            sync.WaitGroup
}

func NewPool[T any](g *gate.Gate) *Pool[T] {
	if g == nil {
		g = gate.New(gate.DefaultLimit)
	}
	return &Pool[T]{gate: g}
}

// Submit blocks until the gate admits the job, then starts it. The slot is
// released by the worker on its way out, whatever Fn does.
func (p *Pool[T]) Submit(job Job[T]) error {
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	slot, err := p.gate.Acquire(job.Ctx)
	if err != nil {
		if job.CleanupFunc != nil {
			job.CleanupFunc()
		}
		return fmt.Errorf("job not admitted: %w", err)
	}
	p.wg.Add(1)
	atomic.AddInt32(&p.submitted, 1)
	atomic.AddInt32(&p.activeWorkers, 1)
	go p.worker(job, slot)
	return nil
}

func (p *Pool[T]) worker(job Job[T], slot *gate.Slot) {
	defer p.wg.Done()
	defer slot.Release()
	defer atomic.AddInt32(&p.activeWorkers, -1)
	defer func() {
		if job.CleanupFunc != nil {
			job.CleanupFunc()
		}
	}()

	logger := lg.FromContext(job.Ctx).With(lg.Any("job", job.Payload))
	logger.Debug("Worker started", lg.Int("workers", int(atomic.LoadInt32(&p.activeWorkers))))

	if err := run(job); err != nil {
		logger.Debug("Worker finished with error", lg.Err(err))
		return
	}
	logger.Debug("Worker finished")
}

// run calls Fn, turning a panic into an error so the worker's deferred
// teardown still happens in order.
func run[T any](job Job[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Fn(job.Ctx, job.Payload)
}

// Wait blocks until every submitted job has returned.
func (p *Pool[T]) Wait() {
	p.wg.Wait()
}

func (p *Pool[T]) ActiveWorkers() int32 {
	return atomic.LoadInt32(&p.activeWorkers)
}

func (p *Pool[T]) Submitted() int {
	return int(atomic.LoadInt32(&p.submitted))
}
