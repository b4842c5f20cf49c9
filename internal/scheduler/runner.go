package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is how often the runner checks its schedules.
const DefaultInterval = time.Minute

// Job binds a schedule to the side effect it dispatches.
type Job struct {
	Schedule Schedule
	Run      func(ctx context.Context) error
}

// FireHook observes a fire decision, before the side effect runs.
type FireHook func(action string, key DateKey)

// FailureHook observes a side effect that returned an error.
type FailureHook func(action string, err error)

// ActionStatus describes one action for status reporting.
type ActionStatus struct {
	Action     string   `json:"action"`
	Times      []string `json:"times"`
	LastFired  string   `json:"last_fired,omitempty"`
	FiredToday bool     `json:"fired_today"`
}

// Runner drives CheckAndFire for a set of jobs on a fixed tick.
//
// Ticks never overlap. Side effects run detached: a tick only decides and
// records the fire, then hands the job to its own goroutine.
type Runner struct {
	jobs     []Job
	marks    *Watermarks
	store    WatermarkStore
	loc      *time.Location
	now      func() time.Time
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	onFire   []FireHook
	onFail   []FailureHook

	tickMu   sync.Mutex
	inflight sync.WaitGroup
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLocation sets the zone wall-clock time is read in. Defaults to UTC.
func WithLocation(loc *time.Location) RunnerOption {
	return func(r *Runner) { r.loc = loc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.interval = d }
}

// WithTimeout bounds each side effect.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// WithStore persists watermarks through store.
func WithStore(store WatermarkStore) RunnerOption {
	return func(r *Runner) { r.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithFireHook registers a hook called on every fire.
func WithFireHook(h FireHook) RunnerOption {
	return func(r *Runner) { r.onFire = append(r.onFire, h) }
}

// WithFailureHook registers a hook called when a side effect fails.
func WithFailureHook(h FailureHook) RunnerOption {
	return func(r *Runner) { r.onFail = append(r.onFail, h) }
}

// NewRunner creates a runner with fresh watermarks.
func NewRunner(jobs []Job, opts ...RunnerOption) *Runner {
	r := &Runner{
		jobs:     jobs,
		marks:    NewWatermarks(),
		loc:      time.UTC,
		now:      time.Now,
		interval: DefaultInterval,
		timeout:  2 * time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore seeds the watermarks from the configured store.
func (r *Runner) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	saved, err := r.store.LoadWatermarks(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: load watermarks: %w", err)
	}
	for action, key := range saved {
		r.marks.Seed(action, DateKey(key))
	}
	r.logger.Info("scheduler: watermarks restored", slog.Int("count", len(saved)))
	return nil
}

// Tick evaluates every job once at the current instant and returns the
// actions that fired.
func (r *Runner) Tick(ctx context.Context) []string {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	now := r.now().In(r.loc)
	var fired []string
	for _, job := range r.jobs {
		if CheckAndFire(now, job.Schedule, r.marks, func() {
			r.dispatch(ctx, job, DateKeyOf(now))
		}) {
			fired = append(fired, job.Schedule.Action)
		}
	}
	return fired
}

func (r *Runner) dispatch(ctx context.Context, job Job, key DateKey) {
	action := job.Schedule.Action

	if r.store != nil {
		if err := r.store.SaveWatermark(ctx, action, string(key)); err != nil {
			r.logger.Error("scheduler: persist watermark failed",
				slog.String("action", action),
				slog.String("date", string(key)),
				slog.String("error", err.Error()))
		}
	}

	r.logger.Info("scheduler: firing", slog.String("action", action), slog.String("date", string(key)))
	for _, h := range r.onFire {
		h(action, key)
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		if err := job.Run(runCtx); err != nil {
			r.logger.Error("scheduler: action failed",
				slog.String("action", action),
				slog.String("error", err.Error()))
			for _, h := range r.onFail {
				h(action, err)
			}
			return
		}
		r.logger.Debug("scheduler: action done", slog.String("action", action))
	}()
}

// Wait blocks until every dispatched side effect has returned.
func (r *Runner) Wait() {
	r.inflight.Wait()
}

// Run ticks immediately and then every interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(r.logger.Handler(), slog.LevelWarn))
	c := cron.New(
		cron.WithLocation(r.loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	c.Schedule(cron.Every(r.interval), cron.FuncJob(func() {
		r.Tick(ctx)
	}))

	r.Tick(ctx)
	c.Start()
	r.logger.Info("scheduler: started",
		slog.Int("jobs", len(r.jobs)),
		slog.String("interval", r.interval.String()),
		slog.String("location", r.loc.String()))

	<-ctx.Done()
	<-c.Stop().Done()
	r.Wait()
	r.logger.Info("scheduler: stopped")
	return nil
}

// Status reports every action's trigger times and last fire date.
func (r *Runner) Status() []ActionStatus {
	today := DateKeyOf(r.now().In(r.loc))
	marks := r.marks.Snapshot()
	out := make([]ActionStatus, 0, len(r.jobs))
	for _, job := range r.jobs {
		st := ActionStatus{
			Action: job.Schedule.Action,
			Times:  append([]string(nil), job.Schedule.Times...),
		}
		if k, ok := marks[job.Schedule.Action]; ok {
			st.LastFired = string(k)
			st.FiredToday = k == today
		}
		out = append(out, st)
	}
	return out
}
