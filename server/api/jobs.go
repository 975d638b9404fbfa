package api

import (
	"context"
	"sync"
	"time"

	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/job"
)

type entry struct {
	job *job.Job

	done chan struct{}

	artifact *assembler.Artifact
	err      error

	finished time.Time
}

// Jobs keeps document jobs in memory until they expire after finishing.
type Jobs struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttl time.Duration
}

func NewJobs(ttl time.Duration) *Jobs {
	return &Jobs{
		entries: make(map[string]*entry),

		ttl: ttl,
	}
}

// Start registers the job and runs it in the background.
func (s *Jobs) Start(ctx context.Context, j *job.Job, run func(ctx context.Context, j *job.Job) (*assembler.Artifact, error)) {
	e := &entry{
		job:  j,
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.sweep()
	s.entries[j.ID] = e
	s.mu.Unlock()

	go func() {
		artifact, err := run(ctx, j)

		s.mu.Lock()
		e.artifact = artifact
		e.err = err
		e.finished = time.Now()
		s.mu.Unlock()

		close(e.done)
	}()
}

func (s *Jobs) Get(id string) (*job.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]

	if !ok {
		return nil, false
	}

	return e.job, true
}

// Result returns the outcome of a finished job. finished is false while the
// job is still running.
func (s *Jobs) Result(id string) (artifact *assembler.Artifact, finished bool, err error) {
	s.mu.RLock()
	e, found := s.entries[id]
	s.mu.RUnlock()

	if !found {
		return nil, false, nil
	}

	select {
	case <-e.done:
	default:
		return nil, false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return e.artifact, true, e.err
}

// Wait blocks until the job finished or ctx is done.
func (s *Jobs) Wait(ctx context.Context, id string) error {
	s.mu.RLock()
	e, found := s.entries[id]
	s.mu.RUnlock()

	if !found {
		return nil
	}

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Jobs) sweep() {
	if s.ttl <= 0 {
		return
	}

	for id, e := range s.entries {
		if e.finished.IsZero() {
			continue
		}

		if time.Since(e.finished) > s.ttl {
			delete(s.entries, id)
		}
	}
}
