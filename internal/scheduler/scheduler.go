package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is a recurring job. Run receives the runner's notion of now.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) error
}

// Runner ticks each task on its own interval until Stop.
type Runner struct {
	mu      sync.Mutex
	tasks   []Task
	clock   func() time.Time
	logger  zerolog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewRunner(logger zerolog.Logger, clock func() time.Time) *Runner {
	if clock == nil {
		clock = time.Now
	}
	return &Runner{
		clock:  clock,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Add registers a task. Tasks added after Start run from the next Start.
func (r *Runner) Add(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
}

// Start launches one goroutine per task with a positive interval.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	for _, t := range r.tasks {
		if t.Interval <= 0 {
			r.logger.Info().Str("task", t.Name).Msg("task disabled")
			continue
		}
		r.wg.Add(1)
		go r.loop(ctx, t)
	}
}

func (r *Runner) loop(ctx context.Context, t Task) {
	defer r.wg.Done()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	r.logger.Info().Str("task", t.Name).Dur("interval", t.Interval).Msg("task scheduled")
	for {
		select {
		case <-ticker.C:
			r.execute(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) execute(ctx context.Context, t Task) {
	start := r.clock()
	err := t.Run(ctx, start.UTC())
	if err != nil {
		r.logger.Error().Err(err).Str("task", t.Name).Msg("task failed")
		return
	}
	r.logger.Debug().Str("task", t.Name).Dur("duration", time.Since(start)).Msg("task completed")
}

// Stop cancels every loop and waits for in-flight runs.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
}

// RunOnce runs the named task immediately and returns its error.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	r.mu.Lock()
	var task *Task
	for i := range r.tasks {
		if r.tasks[i].Name == name {
			task = &r.tasks[i]
			break
		}
	}
	r.mu.Unlock()

	if task == nil {
		return fmt.Errorf("unknown task %q", name)
	}
	return task.Run(ctx, r.clock().UTC())
}
