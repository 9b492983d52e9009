package scheduler

import (
	"fmt"
	"sync"

	"meshgate/internal/utils"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler manages named timer jobs
type Scheduler struct {
	cron      *cron.Cron
	jobMap    map[string]cron.EntryID // Maps job name to cron entry ID
	jobFuncs  map[string]func()
	jobMapMux sync.RWMutex // Protects jobMap and jobFuncs
	log       *zerolog.Logger
}

// NewScheduler creates a scheduler. Jobs still running when their next
// tick arrives are skipped.
func NewScheduler() *Scheduler {
	l := utils.Logger("scheduler")
	cl := cronLogger{l}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobMap:   make(map[string]cron.EntryID),
		jobFuncs: make(map[string]func()),
		log:      l,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", s.GetScheduledJobCount()).Msg("cron scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("cron scheduler stopped")
}

// AddJob schedules fn under name, replacing a job of the same name
func (s *Scheduler) AddJob(name, spec string, fn func()) error {
	s.RemoveJob(name)
	entryID, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("schedule %s with %q: %w", name, spec, err)
	}

	s.jobMapMux.Lock()
	s.jobMap[name] = entryID
	s.jobFuncs[name] = fn
	s.jobMapMux.Unlock()

	s.log.Info().Str("job", name).Str("spec", spec).Int("entry", int(entryID)).Msg("job scheduled")
	return nil
}

// RemoveJob removes a job by name
func (s *Scheduler) RemoveJob(name string) {
	s.jobMapMux.Lock()
	defer s.jobMapMux.Unlock()

	if entryID, exists := s.jobMap[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobMap, name)
		delete(s.jobFuncs, name)
		s.log.Info().Str("job", name).Int("entry", int(entryID)).Msg("job removed")
	}
}

// RunNow runs a job synchronously outside its schedule
func (s *Scheduler) RunNow(name string) bool {
	s.jobMapMux.RLock()
	fn, ok := s.jobFuncs[name]
	s.jobMapMux.RUnlock()
	if !ok {
		return false
	}
	fn()
	return true
}

// GetScheduledJobCount returns the number of currently scheduled jobs
func (s *Scheduler) GetScheduledJobCount() int {
	s.jobMapMux.RLock()
	defer s.jobMapMux.RUnlock()
	return len(s.jobMap)
}

// cronLogger routes cron's logging to zerolog
type cronLogger struct {
	l *zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
