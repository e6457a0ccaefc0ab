package issuance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"goflare.io/issuance/models"
)

type Worker struct {
	ID         int
	WorkerPool chan chan WorkRequest
	JobChannel chan WorkRequest
	quit       chan struct{}
	process    Processor
	timeout    time.Duration
	logger     *zap.Logger
}

type WorkRequest struct {
	Delivery   *models.Delivery
	EnqueuedAt time.Time
}

func NewWorker(id int, workerPool chan chan WorkRequest, process Processor, timeout time.Duration, logger *zap.Logger) Worker {
	return Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan WorkRequest),
		quit:       make(chan struct{}),
		process:    process,
		timeout:    timeout,
		logger:     logger.With(zap.Int("worker_id", id)),
	}
}

func (w Worker) Start(wg *sync.WaitGroup) {
	go func() {
		defer wg.Done()
		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.handle(job)
			case <-w.quit:
				return
			}
		}
	}()
}

func (w Worker) handle(job WorkRequest) {
	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	fields := []zap.Field{
		zap.String("provider", job.Delivery.Provider),
		zap.Duration("queued_for", time.Since(job.EnqueuedAt)),
	}
	w.logger.Debug("開始處理事件", fields...)

	err := w.safeProcess(ctx, job.Delivery)
	if err != nil {
		w.logger.Warn("處理事件時發生錯誤", append(fields, zap.Error(err))...)
		return
	}
	w.logger.Debug("事件處理完成", fields...)
}

func (w Worker) safeProcess(ctx context.Context, delivery *models.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing delivery: %v", r)
		}
	}()
	return w.process(ctx, delivery)
}

func (w Worker) Stop() {
	close(w.quit)
}
