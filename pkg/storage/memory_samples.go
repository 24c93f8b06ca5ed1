package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
)

// MemorySampleStore implements SampleStore in memory, keyed by workspace.
type MemorySampleStore struct {
	mu      sync.RWMutex
	samples map[string][]models.MetricSample
}

func NewMemorySampleStore() *MemorySampleStore {
	return &MemorySampleStore{samples: map[string][]models.MetricSample{}}
}

func (m *MemorySampleStore) AppendSamples(_ context.Context, samples []models.MetricSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		m.samples[s.Workspace] = append(m.samples[s.Workspace], s)
	}
	return nil
}

// ListSamples returns the workspace's samples at or after since, oldest first.
func (m *MemorySampleStore) ListSamples(_ context.Context, workspace string, since time.Time) ([]models.MetricSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.MetricSample{}
	for _, s := range m.samples[workspace] {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// PruneSamples drops samples older than before and returns how many were removed.
func (m *MemorySampleStore) PruneSamples(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for ws, samples := range m.samples {
		kept := samples[:0:0]
		for _, s := range samples {
			if s.Timestamp.Before(before) {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		m.samples[ws] = kept
	}
	return removed, nil
}
