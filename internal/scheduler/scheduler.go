// Package scheduler maintains the registry of daily heating jobs. The
// registry is rebuilt from the persisted schedule entries at startup, after
// every save and at midnight, and swapped in atomically: a failed rebuild
// leaves the previous jobs running.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/clambin/go-common/set"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/pkg/scheduler"
)

// ErrNoMaster indicates the schedules collection has no master record. The
// registry cannot be built without one.
var ErrNoMaster = errors.New("no master schedule record")

// overrideSkipName marks entries that only fire when the children are due
// home.
const overrideSkipName = "Return from school"

type Store interface {
	ListSchedules(ctx context.Context) ([]model.ScheduleEntry, error)
}

type Oracle interface {
	AtHomeToday(ctx context.Context) (bool, error)
	KidsAtHomeToday(ctx context.Context) (bool, error)
	OnHolidayToday(ctx context.Context) (bool, error)
}

// A Runner executes a firing schedule entry.
type Runner interface {
	ApplySchedule(ctx context.Context, entry model.ScheduleEntry) error
}

// A RegisteredJob describes one pending job in the registry.
type RegisteredJob struct {
	Schedule int
	Name     string
	EcoMode  bool
	Due      time.Time
}

type registeredJob struct {
	entry model.ScheduleEntry
	job   *scheduler.Job
}

type jobSet struct {
	jobs []registeredJob
}

func (s *jobSet) cancel() {
	for _, j := range s.jobs {
		j.job.Cancel()
	}
}

type Scheduler struct {
	store   Store
	oracle  Oracle
	runner  Runner
	logger  *slog.Logger
	current atomic.Pointer[jobSet]
	cached  atomic.Pointer[[]model.ScheduleEntry]
	baseCtx atomic.Pointer[context.Context]
}

func New(store Store, oracle Oracle, runner Runner, logger *slog.Logger) *Scheduler {
	s := Scheduler{
		store:  store,
		oracle: oracle,
		runner: runner,
		logger: logger,
	}
	s.current.Store(&jobSet{})
	background := context.Background()
	s.baseCtx.Store(&background)
	return &s
}

// Run builds the registry and rebuilds it at the start of every day, so each
// entry's qualification is re-evaluated against the new day's context.
func (s *Scheduler) Run(ctx context.Context) error {
	s.baseCtx.Store(&ctx)
	s.logger.Debug("started")
	defer s.logger.Debug("stopped")

	if err := s.Rebuild(ctx); err != nil {
		s.logger.Error("failed to build schedule registry", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.current.Load().cancel()
			return nil
		case <-time.After(untilMidnight(time.Now())):
			if err := s.Rebuild(ctx); err != nil {
				s.logger.Error("failed to rebuild schedule registry", "err", err)
			}
		}
	}
}

// Rebuild replaces the registry with a fresh set of jobs derived from the
// stored entries. When the store read fails, the jobs are re-registered from
// the last successfully read entries instead: the registry holds one-shot
// timers, so keeping a set whose jobs already fired would leave the schedule
// dark until the next rebuild.
func (s *Scheduler) Rebuild(ctx context.Context) error {
	entries, err := s.store.ListSchedules(ctx)
	if err != nil {
		if cached := s.cached.Load(); cached != nil {
			s.logger.Warn("failed to read schedules, re-registering the last known entries", "err", err)
			if rerr := s.rebuildFrom(ctx, *cached); rerr != nil {
				s.logger.Error("failed to re-register the last known entries", "err", rerr)
			}
		}
		return fmt.Errorf("list schedules: %w", err)
	}

	if err = s.rebuildFrom(ctx, entries); err != nil {
		return err
	}
	s.cached.Store(&entries)
	return nil
}

func (s *Scheduler) rebuildFrom(ctx context.Context, entries []model.ScheduleEntry) error {
	var master *model.ScheduleEntry
	for i, entry := range entries {
		if entry.IsMaster() {
			master = &entries[i]
			break
		}
	}
	if master == nil {
		return ErrNoMaster
	}
	if master.EcoMode {
		s.logger.Info("master eco mode active, skipping schedule setup")
		s.swap(&jobSet{})
		return nil
	}

	holiday, err := s.oracle.OnHolidayToday(ctx)
	if err != nil {
		return fmt.Errorf("holiday check: %w", err)
	}

	next := jobSet{}
	seen := set.New[int]()
	for _, entry := range entries {
		if !entry.Active || entry.IsMaster() {
			continue
		}
		if seen.Contains(entry.ScheduleNumber) {
			s.logger.Warn("duplicate schedule number, skipping entry", "schedule", entry.ScheduleNumber, "name", entry.Name)
			continue
		}
		seen.Add(entry.ScheduleNumber)

		qualified, err := s.qualify(ctx, &entry, holiday)
		if err != nil {
			return err
		}
		if !qualified {
			continue
		}
		next.jobs = append(next.jobs, s.schedule(entry))
	}

	s.swap(&next)
	s.logger.Info("schedule registry rebuilt", "jobs", len(next.jobs))
	return nil
}

// qualify decides whether the entry gets a job today. It may modify the
// entry: a holiday forces eco mode regardless of what the entry wants.
func (s *Scheduler) qualify(ctx context.Context, entry *model.ScheduleEntry, holiday bool) (bool, error) {
	if entry.Hour == nil || entry.Minute == nil {
		s.logger.Error("schedule entry has no trigger time, skipping", "schedule", entry.ScheduleNumber, "name", entry.Name)
		return false, nil
	}

	if holiday {
		s.logger.Info("on holiday, overriding schedule to eco mode", "name", entry.Name)
		entry.EcoMode = true
		return true, nil
	}

	if !entry.Override {
		return true, nil
	}

	atHome, err := s.oracle.AtHomeToday(ctx)
	if err != nil {
		return false, fmt.Errorf("presence check: %w", err)
	}
	if atHome {
		s.logger.Info("at home today, skipping schedule", "name", entry.Name)
		return false, nil
	}

	if strings.Contains(entry.Name, overrideSkipName) {
		kidsAtHome, err := s.oracle.KidsAtHomeToday(ctx)
		if err != nil {
			return false, fmt.Errorf("presence check: %w", err)
		}
		if !kidsAtHome {
			s.logger.Info("kids not at home, skipping schedule", "name", entry.Name)
			return false, nil
		}
	}

	return true, nil
}

func (s *Scheduler) schedule(entry model.ScheduleEntry) registeredJob {
	delay := delayUntil(time.Now(), *entry.Hour, *entry.Minute)
	job := scheduler.Schedule(*s.baseCtx.Load(), scheduler.RunFunc(func(ctx context.Context) error {
		if err := s.runner.ApplySchedule(ctx, entry); err != nil {
			s.logger.Error("schedule failed", "name", entry.Name, "err", err)
			return err
		}
		return nil
	}), delay, nil)
	s.logger.Debug("job registered", "name", entry.Name, "due", job.Due())
	return registeredJob{entry: entry, job: job}
}

func (s *Scheduler) swap(next *jobSet) {
	if old := s.current.Swap(next); old != nil {
		old.cancel()
	}
}

// Jobs returns a snapshot of the pending jobs.
func (s *Scheduler) Jobs() []RegisteredJob {
	current := s.current.Load()
	jobs := make([]RegisteredJob, 0, len(current.jobs))
	for _, j := range current.jobs {
		if done, _ := j.job.Result(); done {
			continue
		}
		jobs = append(jobs, RegisteredJob{
			Schedule: j.entry.ScheduleNumber,
			Name:     j.entry.Name,
			EcoMode:  j.entry.EcoMode,
			Due:      j.job.Due(),
		})
	}
	return jobs
}

// delayUntil returns the time until the next occurrence of hour:minute.
func delayUntil(now time.Time, hour, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.Local)
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func untilMidnight(now time.Time) time.Duration {
	return delayUntil(now, 0, 0)
}
