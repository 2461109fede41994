package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ipsix/geopolis/internal/logging"
)

// Task is the unit of work a job runs on every tick.
type Task func(ctx context.Context) error

type JobConfig struct {
	Name       string
	Schedule   string
	Timeout    time.Duration
	RunOnStart bool
	Task       Task
}

type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Next      time.Time `json:"next"`
	LastRun   time.Time `json:"last_run"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
}

type Scheduler struct {
	logger *logging.Logger
	cron   *cron.Cron
	chain  cron.Chain

	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	started bool
	wg      sync.WaitGroup
}

type job struct {
	cfg     JobConfig
	entry   cron.EntryID
	wrapped cron.Job

	lastRun   time.Time
	runs      int
	failures  int
	lastError string
}

func New(logger *logging.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		logger: logger,
		cron:   cron.New(cron.WithLogger(cl)),
		chain:  cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		jobs:   make(map[string]*job),
		ctx:    context.Background(),
	}
}

func (s *Scheduler) AddJob(cfg JobConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if cfg.Task == nil {
		return fmt.Errorf("job %q has no task", cfg.Name)
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", cfg.Name, cfg.Schedule, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[cfg.Name]; exists {
		return fmt.Errorf("job %q already exists", cfg.Name)
	}

	j := &job{cfg: cfg}
	j.wrapped = s.chain.Then(cron.FuncJob(func() { s.execute(j) }))
	j.entry = s.cron.Schedule(schedule, j.wrapped)
	s.jobs[cfg.Name] = j
	return nil
}

// Start begins ticking. Jobs flagged RunOnStart fire once immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx = ctx
	for _, j := range s.jobs {
		if j.cfg.RunOnStart {
			s.wg.Add(1)
			go func(j *job) {
				defer s.wg.Done()
				j.wrapped.Run()
			}(j)
		}
	}
	s.cron.Start()
}

// Stop halts the ticker and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
}

func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobStatus{
			Name:      j.cfg.Name,
			Schedule:  j.cfg.Schedule,
			Next:      s.cron.Entry(j.entry).Next,
			LastRun:   j.lastRun,
			Runs:      j.runs,
			Failures:  j.failures,
			LastError: j.lastError,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (s *Scheduler) execute(j *job) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, j.cfg.Timeout)
	defer cancel()

	started := time.Now()
	err := s.runTask(ctx, j)
	elapsed := time.Since(started)

	s.mu.Lock()
	j.lastRun = started
	j.runs++
	if err != nil {
		j.failures++
		j.lastError = err.Error()
	} else {
		j.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			logging.Field{Key: "job", Value: j.cfg.Name},
			logging.Field{Key: "error", Value: err.Error()},
			logging.Field{Key: "duration", Value: elapsed.String()},
		)
		return
	}
	s.logger.Info("job completed",
		logging.Field{Key: "job", Value: j.cfg.Name},
		logging.Field{Key: "duration", Value: elapsed.String()},
	)
}

func (s *Scheduler) runTask(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panic recovered",
				logging.Field{Key: "job", Value: j.cfg.Name},
				logging.Field{Key: "panic", Value: r},
				logging.Field{Key: "stack", Value: string(debug.Stack())},
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.cfg.Task(ctx)
}

type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(fields(keysAndValues), logging.Field{Key: "error", Value: err})...)
}

func fields(keysAndValues []interface{}) []logging.Field {
	out := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, logging.Field{Key: fmt.Sprint(keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return out
}
