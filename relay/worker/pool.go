// Package worker provides an asynchronous worker pool that persists relayed
// exchanges with the provided storage.Driver and announces them with the
// provided eventstream.Publisher.
//
// The pool decouples storage operations from the relay's HTTP hot path so that
// the client-relay-orchestrator interaction is fully transparent.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/chatline/pkg/eventstream"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Exchange *storage.Exchange
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting exchanges.
	Driver storage.Driver

	// Publisher optionally emits an event for every newly stored exchange.
	Publisher eventstream.Publisher

	// Component names the relay in published events.
	Component string

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed. Enqueue holds it for reading while it sends so
	// that Close cannot close the queue underneath it.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("storage driver is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	if job.Exchange == nil {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed, job dropped",
			"exchange_id", job.Exchange.ID,
			"session_id", job.Exchange.SessionID,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"exchange_id", job.Exchange.ID,
			"session_id", job.Exchange.SessionID,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"exchange_id", job.Exchange.ID,
			"session_id", job.Exchange.SessionID,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain. Jobs
// enqueued afterwards are dropped. Close may be called more than once.
// Call this during graceful shutdown after the relay HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", "worker_id", id)
}

// processJob stores the exchange and, if it was new, publishes it.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()
	ex := job.Exchange

	isNew, err := p.config.Driver.Put(ctx, ex)
	if err != nil {
		p.logger.Error("async exchange storage failed",
			"exchange_id", ex.ID,
			"error", err,
		)
		return
	}

	p.logger.Info("exchange stored",
		"exchange_id", ex.ID,
		"session_id", ex.SessionID,
		"answer_bytes", len(ex.Answer),
		"is_new", isNew,
	)

	if !isNew || p.config.Publisher == nil {
		return
	}

	event := eventstream.NewExchangeRecordedEvent(p.config.Component, ex)
	if err := p.config.Publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish exchange event",
			"exchange_id", ex.ID,
			"error", err,
		)
	}
}
