package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRunStore implements RunStore for tests and the MCP server when no
// store directory is configured.
type InMemoryRunStore struct {
	mu     sync.RWMutex
	runs   map[string]Run
	traces map[string][]Iteration
}

// NewInMemoryRunStore creates an empty store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs:   make(map[string]Run),
		traces: make(map[string][]Iteration),
	}
}

// SaveRun stores a copy of run and trace.
func (s *InMemoryRunStore) SaveRun(ctx context.Context, run Run, trace []Iteration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, exists := s.runs[run.ID]; exists {
		return "", fmt.Errorf("run %s already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.Values = run.Values.Clone()
	run.Overrides = maps.Clone(run.Overrides)
	run.Params = maps.Clone(run.Params)

	s.runs[run.ID] = run
	s.traces[run.ID] = slices.Clone(trace)
	return run.ID, nil
}

// GetRun returns a run by ID or unique ID prefix.
func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fullID, err := s.resolveID(id)
	if err != nil {
		return nil, err
	}
	run := s.runs[fullID]
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *InMemoryRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := slices.Collect(maps.Values(s.runs))
	slices.SortFunc(runs, func(a, b Run) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Trace returns the iterations of a run.
func (s *InMemoryRunStore) Trace(ctx context.Context, id string) ([]Iteration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fullID, err := s.resolveID(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(s.traces[fullID]), nil
}

// DeleteRun removes a run and its trace.
func (s *InMemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullID, err := s.resolveID(id)
	if err != nil {
		return err
	}
	delete(s.runs, fullID)
	delete(s.traces, fullID)
	return nil
}

// Close is a no-op.
func (s *InMemoryRunStore) Close() error {
	return nil
}

func (s *InMemoryRunStore) resolveID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	if _, ok := s.runs[id]; ok {
		return id, nil
	}
	var match string
	for candidate := range s.runs {
		if !strings.HasPrefix(candidate, id) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("ambiguous run id prefix %q", id)
		}
		match = candidate
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}
