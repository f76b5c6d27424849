// Package cron runs the periodic prescription jobs
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is the body of a scheduled job
type JobFunc func(ctx context.Context) error

// Config holds cron runner configuration
type Config struct {
	JobTimeout time.Duration // Upper bound for a single job run
}

// JobInfo describes a registered job
type JobInfo struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	NextRunAt time.Time `json:"next_run_at"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	RunCount  int       `json:"run_count"`
}

type job struct {
	id   cron.EntryID
	info JobInfo
}

// Runner manages scheduled job execution
type Runner struct {
	config Config
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	running bool
	jobs    map[string]*job
}

// NewRunner creates a new cron runner
func NewRunner(config Config, logger *zap.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	if config.JobTimeout <= 0 {
		config.JobTimeout = 5 * time.Minute
	}

	return &Runner{
		config: config,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// AddJob registers fn under name. spec is a standard five field cron
// expression or a descriptor such as "@every 30m".
func (r *Runner) AddJob(name, spec string, fn JobFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	j := &job{info: JobInfo{Name: name, Spec: spec}}
	id, err := r.cron.AddFunc(spec, func() { r.execute(j, fn) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	j.id = id
	r.jobs[name] = j

	r.logger.Info("Scheduled job added",
		zap.String("name", name),
		zap.String("spec", spec),
	)
	return nil
}

// RemoveJob unregisters a job
func (r *Runner) RemoveJob(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	r.cron.Remove(j.id)
	delete(r.jobs, name)
	return nil
}

// RunNow executes a registered job synchronously
func (r *Runner) RunNow(name string) error {
	r.mu.RLock()
	j, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}

	entry := r.cron.Entry(j.id)
	if entry.Job == nil {
		return fmt.Errorf("job %q has no entry", name)
	}
	entry.Job.Run()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if j.info.LastError != "" {
		return fmt.Errorf("%s", j.info.LastError)
	}
	return nil
}

// Start starts the cron runner
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	r.running = true
	r.cron.Start()
	r.logger.Info("Cron runner started", zap.Int("jobs", len(r.jobs)))
	return nil
}

// Stop stops the cron runner and waits for running jobs
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Cron runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// ListJobs returns all scheduled jobs sorted by name
func (r *Runner) ListJobs() []JobInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]JobInfo, 0, len(r.jobs))
	for _, j := range r.jobs {
		info := j.info
		info.NextRunAt = r.cron.Entry(j.id).Next
		out = append(out, info)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// execute runs a single job with a timeout and panic recovery
func (r *Runner) execute(j *job, fn JobFunc) {
	name := j.info.Name
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.ctx, r.config.JobTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("job panicked: %v", p)
			}
		}()
		return fn(ctx)
	}()

	r.mu.Lock()
	j.info.LastRunAt = start
	j.info.RunCount++
	j.info.LastError = ""
	if err != nil {
		j.info.LastError = err.Error()
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("Job execution failed",
			zap.String("name", name),
			zap.Error(err),
		)
		return
	}
	r.logger.Info("Job completed",
		zap.String("name", name),
		zap.Duration("duration", time.Since(start)),
	)
}
