package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"firestige.xyz/chronod/internal/log"
	"firestige.xyz/chronod/internal/metrics"
	"firestige.xyz/chronod/internal/timespec"
)

// timeNow is overridden in tests to pin the scheduler clock.
var timeNow = time.Now

// GroupConfig is the serialized form of a task group, used both in the
// configuration file and on the wire. The schedule strings are kept
// verbatim so that wildcard timestamps survive a round trip.
type GroupConfig struct {
	Name      string       `json:"name" mapstructure:"name"`
	StartsAt  *string      `json:"starts_at,omitempty" mapstructure:"starts_at"`
	Period    *string      `json:"period,omitempty" mapstructure:"period"`
	Processes []TaskConfig `json:"processes" mapstructure:"processes"`
}

// TaskGroup owns a set of tasks sharing one schedule.
type TaskGroup struct {
	name string

	startsAt    *time.Time
	startsAtStr *string
	period      *timespec.Period
	periodStr   *string

	processes []*Task

	nextExecution *time.Time
}

// NewTaskGroup builds a group from its serialized form. The schedule
// strings are parsed eagerly; a group with no start timestamp never
// fires on its own.
func NewTaskGroup(cfg GroupConfig) (*TaskGroup, error) {
	g := &TaskGroup{
		name:        cfg.Name,
		startsAtStr: cfg.StartsAt,
		periodStr:   cfg.Period,
	}

	if cfg.StartsAt != nil {
		start, err := timespec.ParseStart(*cfg.StartsAt)
		if err != nil {
			return nil, fmt.Errorf("group %q: invalid date: %w", cfg.Name, err)
		}
		g.startsAt = &start
	}
	if cfg.Period != nil {
		period, err := timespec.ParsePeriod(*cfg.Period)
		if err != nil {
			return nil, fmt.Errorf("group %q: invalid period: %w", cfg.Name, err)
		}
		g.period = &period
	}

	for i, tc := range cfg.Processes {
		t := New(tc)
		t.SetLabel(cfg.Name + "/" + strconv.Itoa(i))
		g.processes = append(g.processes, t)
	}

	// The first update tick catches up from here; a start in the past
	// with a period fires exactly one wave and advances past now.
	if g.startsAt != nil {
		next := *g.startsAt
		g.nextExecution = &next
	}

	return g, nil
}

// Config returns the serialized form, with the schedule strings verbatim
// and the current config of every task.
func (g *TaskGroup) Config() GroupConfig {
	cfg := GroupConfig{
		Name:     g.name,
		StartsAt: g.startsAtStr,
		Period:   g.periodStr,
	}
	for _, t := range g.processes {
		cfg.Processes = append(cfg.Processes, t.Config())
	}
	return cfg
}

// Name returns the group name.
func (g *TaskGroup) Name() string {
	return g.name
}

// Tasks returns the owned tasks in insertion order.
func (g *TaskGroup) Tasks() []*Task {
	return g.processes
}

// AddProcess appends a task to the group. Its slot in the log directory
// layout is the task index at the time of the call.
func (g *TaskGroup) AddProcess(t *Task) {
	g.processes = append(g.processes, t)
}

// NextExecution returns the next scheduled firing, if any.
func (g *TaskGroup) NextExecution() *time.Time {
	if g.nextExecution == nil {
		return nil
	}
	next := *g.nextExecution
	return &next
}

// SetLogPath creates dir and hands each task its indexed subdirectory.
func (g *TaskGroup) SetLogPath(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create group log dir %s: %w", dir, err)
	}
	for id, t := range g.processes {
		if err := t.SetLogPath(filepath.Join(dir, strconv.Itoa(id))); err != nil {
			return err
		}
	}
	return nil
}

// updateNextExecution advances the schedule after a firing at last.
// Without a period the group fires at most once; with one, the period is
// added repeatedly until the result is strictly after now, so waves
// skipped while the scheduler was away are caught up without backfill.
func (g *TaskGroup) updateNextExecution(last, now time.Time) {
	if g.period == nil {
		if last.After(now) {
			g.nextExecution = &last
		} else {
			g.nextExecution = nil
		}
		return
	}

	next := last
	for !next.After(now) {
		advanced := g.period.AddTo(next)
		if !advanced.After(next) {
			log.GetLogger().WithFields(map[string]interface{}{
				"group":  g.name,
				"period": *g.periodStr,
			}).Error("period does not advance the schedule, disabling group")
			g.nextExecution = nil
			return
		}
		next = advanced
	}
	g.nextExecution = &next
}

// Update reaps finished executions in every task and, when the scheduled
// moment has arrived, dispatches a fresh wave. Reports whether anything
// changed.
func (g *TaskGroup) Update() bool {
	now := timeNow().UTC()
	changed := false

	log.GetLogger().WithField("group", g.name).Debug("updating")
	for _, t := range g.processes {
		if t.Update() {
			changed = true
		}
	}

	if g.nextExecution == nil {
		return changed
	}
	if g.nextExecution.After(now) {
		log.GetLogger().WithFields(map[string]interface{}{
			"group": g.name,
			"next":  g.nextExecution.Format(time.RFC3339),
		}).Debug("not yet time")
		return changed
	}

	log.GetLogger().WithField("group", g.name).Info("launching new tasks")
	g.updateNextExecution(*g.nextExecution, now)
	for _, t := range g.processes {
		t.Run()
	}
	metrics.WavesTotal.WithLabelValues(g.name).Inc()

	return true
}
