package schedule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// AgentRunner executes a named agent with an optional prompt and returns
// its textual output.
type AgentRunner interface {
	Run(ctx context.Context, agent, prompt string) (string, error)
}

// Runner executes due tasks: one lock file per task id serializes
// concurrent runs, a timeout bounds each execution, and every completed
// run is recorded in the history.
type Runner struct {
	store   *Store
	history *History
	agents  AgentRunner
	lockDir string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner creates a runner writing lock files under dataDir/locks.
func NewRunner(store *Store, history *History, agents AgentRunner, dataDir string, timeout time.Duration, logger *zap.Logger) (*Runner, error) {
	lockDir := filepath.Join(dataDir, "locks")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Runner{
		store:   store,
		history: history,
		agents:  agents,
		lockDir: lockDir,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// ErrLocked is returned when another run of the same task holds the lock.
var ErrLocked = fmt.Errorf("task already running")

func (r *Runner) lockPath(taskID int) string {
	return filepath.Join(r.lockDir, fmt.Sprintf("task-%d.lock", taskID))
}

// acquireLock takes the per-task lease. O_EXCL makes creation atomic, so
// exactly one concurrent caller wins. A lock older than the run timeout
// cannot belong to a live run, so it is reclaimed; a crashed process must
// not block its task forever.
func (r *Runner) acquireLock(taskID int) (func(), error) {
	path := r.lockPath(taskID)
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		info, statErr := os.Stat(path)
		if statErr != nil {
			// Released between open and stat, retry.
			continue
		}
		if time.Since(info.ModTime()) <= r.timeout+time.Minute {
			return nil, ErrLocked
		}
		r.logger.Warn("reclaiming stale task lock",
			zap.Int("task", taskID),
			zap.Time("held_since", info.ModTime()))
		os.Remove(path)
	}
	return nil, ErrLocked
}

// Run executes one task now, regardless of its schedule. A held lock skips
// the run and records nothing. The execution outcome, success or failure,
// is always recorded.
func (r *Runner) Run(ctx context.Context, taskID int) (*ExecutionRecord, error) {
	task, err := r.store.Get(taskID)
	if err != nil {
		return nil, err
	}

	release, err := r.acquireLock(taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := ExecutionRecord{TaskID: taskID, StartedAt: time.Now().UTC()}
	output, runErr := r.execute(ctx, task)
	rec.FinishedAt = time.Now().UTC()
	if runErr != nil {
		rec.Error = runErr.Error()
	} else {
		rec.Success = true
		rec.Output = output
	}

	if err := r.history.Append(rec); err != nil {
		r.logger.Warn("history append failed", zap.Int("task", taskID), zap.Error(err))
	}
	now := rec.FinishedAt
	if _, err := r.store.Update(taskID, func(t *Task) { t.LastRun = &now }); err != nil {
		r.logger.Warn("last_run update failed", zap.Int("task", taskID), zap.Error(err))
	}

	r.logger.Info("task executed",
		zap.Int("task", taskID),
		zap.String("agent", task.Agent),
		zap.Bool("success", rec.Success),
		zap.Duration("elapsed", rec.FinishedAt.Sub(rec.StartedAt)))
	return &rec, nil
}

// execute runs the agent under the configured timeout, converting panics
// into recorded failures. The agent goroutine is signalled through context
// cancellation; a run that ignores it keeps its goroutine until it
// returns.
func (r *Runner) execute(ctx context.Context, task *Task) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("agent %s panicked: %v", task.Agent, p)}
			}
		}()
		out, err := r.agents.Run(ctx, task.Agent, task.Prompt)
		done <- outcome{output: out, err: err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-ctx.Done():
		return "", fmt.Errorf("agent %s timed out after %s", task.Agent, r.timeout)
	}
}

// TickResult summarizes one scheduler pass.
type TickResult struct {
	Due     []int             `json:"due"`
	Ran     []ExecutionRecord `json:"ran"`
	Skipped []int             `json:"skipped,omitempty"`
}

// Tick evaluates every enabled task against now and runs the due ones
// sequentially. Locked tasks are skipped and reported as such.
func (r *Runner) Tick(ctx context.Context, now time.Time) (*TickResult, error) {
	tasks, err := r.store.List(false)
	if err != nil {
		return nil, err
	}

	result := &TickResult{}
	for _, task := range tasks {
		if !task.IsDue(now) {
			continue
		}
		result.Due = append(result.Due, task.ID)
		rec, err := r.Run(ctx, task.ID)
		if err != nil {
			if err == ErrLocked {
				result.Skipped = append(result.Skipped, task.ID)
				continue
			}
			return result, fmt.Errorf("tick task %d: %w", task.ID, err)
		}
		result.Ran = append(result.Ran, *rec)
	}
	return result, nil
}
