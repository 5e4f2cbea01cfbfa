package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"firestige.xyz/chronod/internal/log"
	"firestige.xyz/chronod/internal/metrics"
)

// SnapshotPath is where the environment persists its configuration when
// the group list changed.
const SnapshotPath = "config.json"

// Environment owns every task group. The scheduler tick and the ingestion
// handlers share it behind one writer lock; a tick is atomic with respect
// to a concurrently submitted group.
type Environment struct {
	mu     sync.RWMutex
	groups []*TaskGroup
	log    string // log root; empty means captures stay in memory
	dirty  bool
}

// NewEnvironment creates an environment owning groups. When logRoot is
// non-empty the whole directory layout is allocated immediately.
func NewEnvironment(logRoot string, groups []*TaskGroup) (*Environment, error) {
	e := &Environment{groups: groups}
	if logRoot != "" {
		if err := e.setLogPathLocked(logRoot); err != nil {
			return nil, err
		}
	}
	metrics.TaskGroups.Set(float64(len(groups)))
	return e, nil
}

// Update runs one scheduler tick: every group reaps and possibly fires,
// and a dirty environment is snapshotted to disk. The writer lock is held
// for the whole tick.
func (e *Environment) Update() {
	e.mu.Lock()
	defer e.mu.Unlock()

	log.GetLogger().Debug("environment update")
	for _, g := range e.groups {
		g.Update()
	}

	e.persistIfDirtyLocked()
}

// PersistIfDirty writes the snapshot now if the group list changed since
// the last successful write.
func (e *Environment) PersistIfDirty() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistIfDirtyLocked()
}

func (e *Environment) persistIfDirtyLocked() {
	if !e.dirty {
		return
	}
	if err := e.writeSnapshotLocked(); err != nil {
		log.GetLogger().WithError(err).Error("unable to save the config")
		return
	}
	log.GetLogger().Info("successfully saved the configuration")
	e.dirty = false
}

// snapshot is the persisted shape: the group list plus the log root.
type snapshot struct {
	Groups []GroupConfig `json:"groups"`
	Log    *string       `json:"log"`
}

func (e *Environment) writeSnapshotLocked() error {
	snap := snapshot{Groups: make([]GroupConfig, 0, len(e.groups))}
	for _, g := range e.groups {
		snap.Groups = append(snap.Groups, g.Config())
	}
	if e.log != "" {
		root := e.log
		snap.Log = &root
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}

	// Write-then-rename keeps the snapshot whole even if we crash
	// mid-write.
	tmp := SnapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, SnapshotPath)
}

// AddNewGroup splices a group into the environment, allocating its log
// directory from its index, and marks the environment dirty.
func (e *Environment) AddNewGroup(g *TaskGroup) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := len(e.groups)
	if e.log != "" {
		if err := g.SetLogPath(groupLogPath(e.log, id)); err != nil {
			return err
		}
	}
	e.groups = append(e.groups, g)
	e.dirty = true
	metrics.TaskGroups.Set(float64(len(e.groups)))

	log.GetLogger().WithFields(map[string]interface{}{
		"group": g.Name(),
		"index": id,
	}).Info("new task group added")
	return nil
}

// SetLogPath creates the log root and assigns every existing group its
// indexed subdirectory.
func (e *Environment) SetLogPath(root string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setLogPathLocked(root)
}

func (e *Environment) setLogPathLocked(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create log root %s: %w", root, err)
	}
	for id, g := range e.groups {
		if err := g.SetLogPath(groupLogPath(root, id)); err != nil {
			return err
		}
	}
	e.log = root
	return nil
}

// GroupConfigs snapshots the serialized form of every group.
func (e *Environment) GroupConfigs() []GroupConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]GroupConfig, 0, len(e.groups))
	for _, g := range e.groups {
		out = append(out, g.Config())
	}
	return out
}

// NbGroups returns the number of owned groups.
func (e *Environment) NbGroups() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.groups)
}

func groupLogPath(root string, id int) string {
	return filepath.Join(root, strconv.Itoa(id))
}
