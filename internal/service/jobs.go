package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/limaJavier/campus-timetabling/pkg/model"
)

type job struct {
	schedule model.Schedule
	cancel   context.CancelFunc
}

// jobStore tracks the runs started by this process, running or finished
type jobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*job
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[uuid.UUID]*job)}
}

func (s *jobStore) start(schedule model.Schedule, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[schedule.Id] = &job{schedule: schedule, cancel: cancel}
}

// finish keeps the header of the final schedule; entries are served by the repository
func (s *jobStore) finish(schedule model.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	header := schedule
	header.Entries = []model.ScheduleEntry{}
	s.jobs[schedule.Id] = &job{schedule: header}
}

func (s *jobStore) get(id uuid.UUID) (model.Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.Schedule{}, false
	}
	return job.schedule, true
}

// cancel aborts a running job and reports whether there was one
func (s *jobStore) cancel(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok || job.cancel == nil {
		return false
	}
	job.cancel()
	return true
}
