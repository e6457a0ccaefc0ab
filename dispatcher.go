package issuance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"goflare.io/issuance/models"
)

const (
	minTickerInterval = 5 * time.Second
	maxTickerInterval = 30 * time.Second
)

// Processor handles one webhook delivery on a context detached from the HTTP request.
type Processor func(ctx context.Context, delivery *models.Delivery) error

// Dispatcher hands queued deliveries to a fixed set of workers.
type Dispatcher struct {
	WorkerPool chan chan WorkRequest
	maxWorkers int
	jobQueue   chan WorkRequest
	process    Processor
	timeout    time.Duration
	workers    []Worker
	workerWG   sync.WaitGroup
	stop       chan struct{}
	done       chan struct{}
	mu         sync.RWMutex
	stopped    bool
	logger     *zap.Logger
}

func NewDispatcher(maxWorkers, jobQueueSize int, timeout time.Duration, process Processor, logger *zap.Logger) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if jobQueueSize <= 0 {
		jobQueueSize = 1
	}
	return &Dispatcher{
		WorkerPool: make(chan chan WorkRequest, maxWorkers),
		maxWorkers: maxWorkers,
		jobQueue:   make(chan WorkRequest, jobQueueSize),
		process:    process,
		timeout:    timeout,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Named("dispatcher"),
	}
}

func (d *Dispatcher) Run() {
	d.mu.Lock()
	for i := 0; i < d.maxWorkers; i++ {
		worker := NewWorker(i+1, d.WorkerPool, d.process, d.timeout, d.logger)
		d.workerWG.Add(1)
		worker.Start(&d.workerWG)
		d.workers = append(d.workers, worker)
	}
	d.mu.Unlock()

	go d.dispatch()
}

// Submit enqueues a delivery without blocking. It fails with ErrQueueFull when the queue
// is at capacity or the dispatcher is stopping.
func (d *Dispatcher) Submit(delivery *models.Delivery) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return fmt.Errorf("%w: dispatcher is stopping", ErrQueueFull)
	}

	select {
	case d.jobQueue <- WorkRequest{Delivery: delivery, EnqueuedAt: time.Now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) QueueLength() int {
	return len(d.jobQueue)
}

func (d *Dispatcher) dispatch() {
	defer close(d.done)

	tickerInterval := 10 * time.Second
	ticker := time.NewTicker(tickerInterval)
	defer ticker.Stop()

	for {
		select {
		case job := <-d.jobQueue:
			d.assign(job)

		case <-ticker.C:
			jobQueueLength := len(d.jobQueue)
			if jobQueueLength > 50 {
				d.logger.Warn("webhook backlog is growing", zap.Int("queued", jobQueueLength))
				tickerInterval = minTickerInterval
			} else if jobQueueLength > 20 {
				tickerInterval = 10 * time.Second
			} else {
				tickerInterval = maxTickerInterval
			}

			ticker.Reset(tickerInterval)

		case <-d.stop:
			// 把剩餘的工作交給 worker 後再結束
			for {
				select {
				case job := <-d.jobQueue:
					d.assign(job)
				default:
					return
				}
			}
		}
	}
}

// assign blocks until a worker is idle.
func (d *Dispatcher) assign(job WorkRequest) {
	jobChannel := <-d.WorkerPool
	jobChannel <- job
}

// Stop rejects new submissions, lets the workers finish every queued delivery and then
// stops them. It returns ctx.Err() if draining outlives ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.stop)
	workers := d.workers
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, worker := range workers {
		worker.Stop()
	}

	finished := make(chan struct{})
	go func() {
		d.workerWG.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		d.logger.Info("dispatcher stopped", zap.Int("workers", len(workers)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
