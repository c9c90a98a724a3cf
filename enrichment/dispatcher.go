package enrichment

import (
	"context"
	"sync"

	"hyodream/api/logging"
	"hyodream/api/metrics"
)

// Task is one unit of background work. ctx is the dispatcher's lifetime.
type Task func(ctx context.Context)

// Dispatcher is a bounded worker pool. Submit never blocks.
type Dispatcher struct {
	queue   chan Task
	workers int
}

func NewDispatcher(workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Dispatcher{queue: make(chan Task, queueSize), workers: workers}
}

// Submit enqueues t, returning false when the queue is full.
func (d *Dispatcher) Submit(t Task) bool {
	select {
	case d.queue <- t:
		metrics.EnrichmentQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		return false
	}
}

// Serve implements suture.Service. Running tasks see ctx cancel on shutdown;
// queued tasks are dropped and picked up later by the stuck-claim watchdog.
func (d *Dispatcher) Serve(ctx context.Context) error {
	log := logging.With("enrichment-dispatcher")
	log.Info().Int("workers", d.workers).Int("queue", cap(d.queue)).Msg("dispatcher started")

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-d.queue:
					metrics.EnrichmentQueueDepth.Set(float64(len(d.queue)))
					d.run(ctx, t)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (d *Dispatcher) String() string { return "enrichment-dispatcher" }

func (d *Dispatcher) run(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("enrichment task panicked")
		}
	}()
	t(ctx)
}
