// Package task implements the scheduler core: commands, tasks, task
// groups and the environment that owns them.
package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/chronod/internal/log"
	"firestige.xyz/chronod/internal/metrics"
)

// TaskConfig describes one task: the command to run, an optional cap on
// concurrent executions, and the capture directories assigned by the
// owning environment once a log root is known.
type TaskConfig struct {
	Command       `mapstructure:",squash"`
	MaxConcurrent *int   `json:"max_concurrent_execution,omitempty" mapstructure:"max_concurrent_execution"`
	StdoutPath    string `json:"stdout_path,omitempty" mapstructure:"stdout_path"`
	StderrPath    string `json:"stderr_path,omitempty" mapstructure:"stderr_path"`
}

// TaskStatistic accumulates per-task execution counters.
type TaskStatistic struct {
	Count           int
	ErrorCount      int
	AverageDuration time.Duration
}

func (s TaskStatistic) String() string {
	rate := 0.0
	if s.Count > 0 {
		rate = 100 * float64(s.ErrorCount) / float64(s.Count)
	}
	return fmt.Sprintf("=== Statistics ===\nExecution count: %d\nError rate: %g%%\nAverage execution time: %s",
		s.Count, rate, s.AverageDuration)
}

// worker tracks one in-flight execution. The goroutine stores its result
// and flips done; the owning task probes done and never blocks on it.
type worker struct {
	slot int
	done atomic.Bool
	res  TaskOutput
}

func (w *worker) finished() bool {
	return w.done.Load()
}

// Task owns the execution history of one command. Launch and reap run on
// the scheduler goroutine; only the config is shared with workers, behind
// its own reader-writer lock.
type Task struct {
	mu     sync.RWMutex // guards config
	config TaskConfig

	label string

	executions []TaskOutput
	running    []*worker
	stats      TaskStatistic
}

// New creates a task with an empty execution history. An unset chdir
// defaults to the process working directory at construction time.
func New(cfg TaskConfig) *Task {
	if cfg.Chdir == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.Chdir = wd
		}
	}

	var running []*worker
	if cfg.MaxConcurrent != nil {
		running = make([]*worker, 0, *cfg.MaxConcurrent)
	}

	return &Task{
		config:  cfg,
		label:   cfg.Program,
		running: running,
	}
}

// SetLabel names the task in log and metric output.
func (t *Task) SetLabel(label string) {
	t.label = label
}

// Config snapshots the current configuration.
func (t *Task) Config() TaskConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}

// SetLogPath creates dir, dir/out and dir/err and records the capture
// directories into the config. Safe to call repeatedly.
func (t *Task) SetLogPath(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir %s: %w", dir, err)
	}
	stdoutPath := filepath.Join(dir, "out")
	if err := os.MkdirAll(stdoutPath, 0o755); err != nil {
		return fmt.Errorf("create log dir %s: %w", stdoutPath, err)
	}
	stderrPath := filepath.Join(dir, "err")
	if err := os.MkdirAll(stderrPath, 0o755); err != nil {
		return fmt.Errorf("create log dir %s: %w", stderrPath, err)
	}

	t.mu.Lock()
	t.config.StdoutPath = stdoutPath
	t.config.StderrPath = stderrPath
	t.mu.Unlock()
	return nil
}

// Run launches a new execution. The slot is reserved up front; a launch
// rejected by the concurrency cap still consumes its slot and is recorded
// as TooManyThreadsError.
func (t *Task) Run() {
	idx := len(t.executions)
	log.GetLogger().WithFields(map[string]interface{}{
		"task": t.label,
		"slot": idx,
	}).Debug("starting execution")
	t.executions = append(t.executions, waiting())

	t.mu.RLock()
	max := t.config.MaxConcurrent
	t.mu.RUnlock()
	if max != nil {
		n := len(t.running)
		if n >= *max {
			t.setOutput(idx, tooManyThreads())
			log.GetLogger().WithFields(map[string]interface{}{
				"task": t.label,
				"slot": idx,
			}).Error("cannot start execution: too many concurrent executions")
			return
		}
		if n >= 9*(*max)/10 {
			log.GetLogger().WithField("task", t.label).
				Warn("more than 90% of allowed executions are running concurrently")
		}
	}

	w := &worker{slot: idx}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.res = threadError(r)
			}
			w.done.Store(true)
		}()
		// Hold a read lease on the config for the whole run, so the
		// task stays writable only between executions.
		t.mu.RLock()
		res := t.config.Command.Run()
		t.mu.RUnlock()
		w.res = res
	}()

	t.running = append(t.running, w)
	metrics.RunningExecutions.WithLabelValues(t.label).Inc()
}

// Update reaps every worker that has finished since the last call and
// reports whether at least one did. It never blocks on a running worker.
func (t *Task) Update() bool {
	reaped := false
	n := len(t.running)
	i := 0

	for i < n {
		w := t.running[i]
		if !w.finished() {
			i++
			continue
		}
		t.running[i] = t.running[n-1]
		t.running = t.running[:n-1]
		n--

		metrics.RunningExecutions.WithLabelValues(t.label).Dec()
		t.setOutput(w.slot, w.res)
		reaped = true
	}

	return reaped
}

// NbRunning returns the number of unreaped workers.
func (t *Task) NbRunning() int {
	return len(t.running)
}

// Executions snapshots the slot history.
func (t *Task) Executions() []TaskOutput {
	out := make([]TaskOutput, len(t.executions))
	copy(out, t.executions)
	return out
}

// Stats returns the accumulated statistics.
func (t *Task) Stats() TaskStatistic {
	return t.stats
}

// setOutput persists captured streams, folds the final state into the
// statistics and records it in the slot.
func (t *Task) setOutput(idx int, out TaskOutput) {
	log.GetLogger().WithFields(map[string]interface{}{
		"task":   t.label,
		"slot":   idx,
		"result": out.Summary(),
	}).Debug("execution finished")

	out = t.persistLogs(idx, out)
	t.updateStats(out)
	t.executions[idx] = out

	metrics.ExecutionsTotal.WithLabelValues(t.label).Inc()
	if out.IsError() {
		metrics.ExecutionErrorsTotal.WithLabelValues(t.label, string(out.State)).Inc()
	} else if out.Outcome != nil {
		metrics.ExecutionDurationSeconds.WithLabelValues(t.label).
			Observe(out.Outcome.Duration.Seconds())
	}
}

// persistLogs writes buffered captures into the configured directories,
// replacing each buffer with the file path. A write failure turns the
// whole slot into an IOError; the successful outcome is discarded.
func (t *Task) persistLogs(idx int, out TaskOutput) TaskOutput {
	if out.State != StateNoError {
		return out
	}
	cfg := t.Config()
	res := out.Outcome

	if cfg.StdoutPath != "" && res.Stdout.State == LogBuffer {
		path := filepath.Join(cfg.StdoutPath, strconv.Itoa(idx))
		if err := os.WriteFile(path, res.Stdout.Buffer, 0o644); err != nil {
			return ioError(err)
		}
		res.Stdout = ExecLog{State: LogFile, Path: path}
	}

	if cfg.StderrPath != "" && res.Stderr.State == LogBuffer {
		path := filepath.Join(cfg.StderrPath, strconv.Itoa(idx))
		if err := os.WriteFile(path, res.Stderr.Buffer, 0o644); err != nil {
			return ioError(err)
		}
		res.Stderr = ExecLog{State: LogFile, Path: path}
	}

	return out
}

func (t *Task) updateStats(out TaskOutput) {
	if out.State == StateNoError {
		n := float64(t.stats.Count - t.stats.ErrorCount)
		t.stats.AverageDuration = time.Duration(
			float64(t.stats.AverageDuration)*(n/(n+1)) +
				float64(out.Outcome.Duration)/(n+1))
	} else {
		t.stats.ErrorCount++
	}
	t.stats.Count++
}
