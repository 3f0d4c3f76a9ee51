// Package dispatch runs background jobs on a bounded set of workers so inbound
// handlers can acknowledge immediately.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull = errors.New("dispatch queue is full")
	ErrStopped   = errors.New("dispatch pool is stopped")
)

// Job is one unit of background work. The context carries the per-job timeout.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool coordinates a fixed number of workers draining a bounded queue.
type Pool interface {
	Start(ctx context.Context)
	Submit(job Job) error
	Shutdown()
}

type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Logger     *logrus.Logger
}

type pool struct {
	cfg   Config
	queue chan Job

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	started bool
	stopped bool
}

func NewPool(cfg Config) Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &pool{
		cfg:   cfg,
		queue: make(chan Job, cfg.QueueSize),
	}
}

func (p *pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.cfg.Logger.Infof("dispatch pool started with %d workers", p.cfg.Workers)
}

// Submit enqueues job without blocking.
func (p *pool) Submit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run func", job.Name)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queue <- job:
		return nil
	default:
		p.cfg.Logger.WithField("job", job.Name).Warn("dispatch queue full, dropping job")
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs, lets workers finish what is queued and waits for them.
func (p *pool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		return
	}
	p.wg.Wait()
	p.cancel()
	p.cfg.Logger.Info("dispatch pool stopped")
}

func (p *pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.queue {
		p.run(id, job)
	}
}

func (p *pool) run(worker int, job Job) {
	logger := p.cfg.Logger.WithFields(logrus.Fields{"job": job.Name, "worker": worker})
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("job panicked: %v", r)
		}
	}()

	started := time.Now()
	if err := job.Run(ctx); err != nil {
		logger.WithError(err).Error("job failed")
		return
	}
	logger.Debugf("job done in %s", time.Since(started).Round(time.Millisecond))
}

var _ Pool = (*pool)(nil)
