package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/job"
	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
)

// Memory is the ephemeral in-memory JobStore backend, selected by the
// memory:// scheme. It guards a plain map with a mutex the way the
// teacher's InMemoryVectorStore does, plus an insertion-order slice for
// List's stable ordering.
type Memory struct {
	mu      sync.Mutex
	jobs    map[string]*job.Job
	order   []string // insertion order, for List
	leases  map[string]time.Time
}

// NewMemory creates an empty ephemeral store.
func NewMemory() *Memory {
	return &Memory{
		jobs:   make(map[string]*job.Job),
		leases: make(map[string]time.Time),
	}
}

func (m *Memory) Put(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	j.UpdatedAt = now
	if _, exists := m.jobs[j.ID]; !exists {
		m.order = append(m.order, j.ID)
		if j.CreatedAt.IsZero() {
			j.CreatedAt = now
		}
	}
	delete(m.leases, j.ID)
	m.jobs[j.ID] = j.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, jobserr.NotFound("job " + id)
	}
	return j.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return jobserr.NotFound("job " + id)
	}
	delete(m.jobs, id)
	delete(m.leases, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) List(_ context.Context) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*job.Job, 0, len(m.order))
	for _, id := range m.order {
		if j, ok := m.jobs[id]; ok {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (m *Memory) PeekEarliest(_ context.Context) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var earliest *job.Job
	for _, j := range m.jobs {
		if j.NextFireTime == nil {
			continue
		}
		if earliest == nil || j.NextFireTime.Before(*earliest.NextFireTime) ||
			(j.NextFireTime.Equal(*earliest.NextFireTime) && j.ID < earliest.ID) {
			earliest = j
		}
	}
	if earliest == nil {
		return nil, nil
	}
	return earliest.Clone(), nil
}

func (m *Memory) AcquireDueJobs(_ context.Context, now time.Time, maxN int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*job.Job
	for _, j := range m.jobs {
		if j.NextFireTime == nil || j.NextFireTime.After(now) {
			continue
		}
		if leasedUntil, ok := m.leases[j.ID]; ok && leasedUntil.After(now) {
			continue
		}
		due = append(due, j)
	}

	sort.Slice(due, func(i, k int) bool {
		if !due[i].NextFireTime.Equal(*due[k].NextFireTime) {
			return due[i].NextFireTime.Before(*due[k].NextFireTime)
		}
		return due[i].ID < due[k].ID
	})

	if len(due) > maxN {
		due = due[:maxN]
	}

	out := make([]*job.Job, len(due))
	for i, j := range due {
		m.leases[j.ID] = now.Add(leaseDuration)
		out[i] = j.Clone()
	}
	return out, nil
}

func (m *Memory) CountJobs(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), nil
}

func (m *Memory) Health(_ context.Context) HealthStatus {
	return HealthStatus{Healthy: true, Version: "memory"}
}

func (m *Memory) Close() error { return nil }
