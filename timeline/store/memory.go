// Package store provides in-memory timeline.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/timeline-engine/timeline"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps schedules, tasks and sweep runs in maps. Values are copied on
// the way in and out so callers never share state with the store.
type Memory struct {
	mu        sync.RWMutex
	schedules map[string]timeline.Schedule
	tasks     map[string]timeline.Task
	runs      []timeline.SweepRun

	// FailSave, when set, is consulted before every save. Tests use it to
	// inject per-entity failures.
	FailSave func(id string) error
}

func NewMemory() *Memory {
	return &Memory{
		schedules: make(map[string]timeline.Schedule),
		tasks:     make(map[string]timeline.Task),
	}
}

func (m *Memory) SaveSchedule(_ context.Context, s timeline.Schedule) error {
	if err := m.failSave(s.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s.Clone()
	return nil
}

func (m *Memory) GetSchedule(_ context.Context, id string) (*timeline.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, timeline.ErrScheduleNotFound
	}
	out := s.Clone()
	return &out, nil
}

func (m *Memory) ListSchedules(_ context.Context) ([]timeline.Schedule, error) {
	return m.filterSchedules(func(timeline.Schedule) bool { return true }), nil
}

func (m *Memory) LoadActiveSchedules(_ context.Context) ([]timeline.Schedule, error) {
	return m.filterSchedules(timeline.Schedule.IsActive), nil
}

func (m *Memory) filterSchedules(keep func(timeline.Schedule) bool) []timeline.Schedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []timeline.Schedule
	for _, s := range m.schedules {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return createdBefore(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

func (m *Memory) SaveTask(_ context.Context, t timeline.Task) error {
	if err := m.failSave(t.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *Memory) GetTask(_ context.Context, id string) (*timeline.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, timeline.ErrTaskNotFound
	}
	return &t, nil
}

func (m *Memory) ListTasks(_ context.Context) ([]timeline.Task, error) {
	return m.filterTasks(func(timeline.Task) bool { return true }), nil
}

func (m *Memory) LoadActiveTasks(_ context.Context) ([]timeline.Task, error) {
	return m.filterTasks(timeline.Task.IsActive), nil
}

func (m *Memory) filterTasks(keep func(timeline.Task) bool) []timeline.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []timeline.Task
	for _, t := range m.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return createdBefore(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

// =============================================================================
// SWEEP RUNS (timeline.RunStore)
// =============================================================================

// SaveSweepRun inserts or replaces a run by ID.
func (m *Memory) SaveSweepRun(_ context.Context, run timeline.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

// ListSweepRuns returns the newest runs first.
func (m *Memory) ListSweepRuns(_ context.Context, limit int) ([]timeline.SweepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]timeline.SweepRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, m.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) failSave(id string) error {
	if m.FailSave == nil {
		return nil
	}
	return m.FailSave(id)
}

// createdBefore orders by creation time, then ID for a stable listing.
func createdBefore(a, b time.Time, idA, idB string) bool {
	if a.Equal(b) {
		return idA < idB
	}
	return a.Before(b)
}
