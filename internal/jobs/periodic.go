package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// PeriodicConfig configures a Periodic job.
type PeriodicConfig struct {
	JobType  string
	Interval time.Duration
	// Timeout bounds a single run. Zero means Interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Metrics *Metrics
	Logger  *slog.Logger
}

// Periodic runs a function on a fixed interval until stopped, recording
// each run in the background job metrics.
type Periodic struct {
	config PeriodicConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPeriodic creates a Periodic job. It does not start it.
func NewPeriodic(config PeriodicConfig) *Periodic {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = config.Interval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Periodic{config: config}
}

// Start begins running the job in a goroutine. Calling Start on a running
// job is a no-op.
func (p *Periodic) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.loop(ctx, p.stopCh, p.doneCh)

	p.config.Logger.Info("periodic job started",
		slog.String("job_type", p.config.JobType),
		slog.Duration("interval", p.config.Interval))
}

// Stop halts the job and waits for an in-flight run to finish.
func (p *Periodic) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	<-done
	p.config.Logger.Info("periodic job stopped", slog.String("job_type", p.config.JobType))
}

// IsRunning reports whether the job is started.
func (p *Periodic) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Periodic) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single run synchronously and records its outcome.
func (p *Periodic) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	err := p.config.Run(ctx)
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		errorType := "run_error"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			errorType = "timeout"
		}
		if p.config.Metrics != nil {
			p.config.Metrics.IncJobErrors(p.config.JobType, errorType)
		}
		p.config.Logger.WarnContext(ctx, "periodic job failed",
			slog.String("job_type", p.config.JobType),
			slog.String("error", err.Error()))
	}
	if p.config.Metrics != nil {
		p.config.Metrics.IncJobsTotal(p.config.JobType, status)
		p.config.Metrics.ObserveJobDuration(p.config.JobType, time.Since(start).Seconds())
	}
	return err
}
