package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	entries []model.ScheduleEntry
	err     error
}

func (f *fakeStore) ListSchedules(_ context.Context) ([]model.ScheduleEntry, error) {
	return f.entries, f.err
}

type fakeOracle struct {
	atHome  bool
	kids    bool
	holiday bool
}

func (f *fakeOracle) AtHomeToday(_ context.Context) (bool, error)     { return f.atHome, nil }
func (f *fakeOracle) KidsAtHomeToday(_ context.Context) (bool, error) { return f.kids, nil }
func (f *fakeOracle) OnHolidayToday(_ context.Context) (bool, error)  { return f.holiday, nil }

type fakeRunner struct{}

func (f *fakeRunner) ApplySchedule(_ context.Context, _ model.ScheduleEntry) error { return nil }

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func master(eco bool) model.ScheduleEntry {
	return model.ScheduleEntry{ScheduleNumber: 0, Name: "master", EcoMode: eco, DayTemp: floatPtr(18), NightTemp: floatPtr(16)}
}

func entry(number int, name string, override bool) model.ScheduleEntry {
	return model.ScheduleEntry{
		ScheduleNumber: number,
		Name:           name,
		Hour:           intPtr(6),
		Minute:         intPtr(30),
		Override:       override,
		Active:         true,
	}
}

func TestScheduler_Rebuild(t *testing.T) {
	inactive := entry(3, "evening", false)
	inactive.Active = false
	noTrigger := entry(4, "broken", false)
	noTrigger.Hour = nil

	store := fakeStore{entries: []model.ScheduleEntry{
		master(false),
		entry(1, "morning", false),
		entry(2, "afternoon", false),
		inactive,
		noTrigger,
	}}

	s := scheduler.New(&store, &fakeOracle{atHome: true}, &fakeRunner{}, slog.Default())
	require.NoError(t, s.Rebuild(context.Background()))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "morning", jobs[0].Name)
	assert.Equal(t, "afternoon", jobs[1].Name)
	for _, job := range jobs {
		assert.False(t, job.Due.IsZero())
	}
}

func TestScheduler_Rebuild_Holiday(t *testing.T) {
	heat := entry(1, "morning", false)
	heat.EcoMode = false

	store := fakeStore{entries: []model.ScheduleEntry{master(false), heat}}
	s := scheduler.New(&store, &fakeOracle{holiday: true}, &fakeRunner{}, slog.Default())
	require.NoError(t, s.Rebuild(context.Background()))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	// a holiday overrides the entry to eco mode
	assert.True(t, jobs[0].EcoMode)
}

func TestScheduler_Rebuild_Override(t *testing.T) {
	testCases := []struct {
		name   string
		oracle fakeOracle
		entry  model.ScheduleEntry
		want   int
	}{
		{
			name:   "at home skips an override entry",
			oracle: fakeOracle{atHome: true},
			entry:  entry(1, "morning", true),
			want:   0,
		},
		{
			name:   "away registers an override entry",
			oracle: fakeOracle{atHome: false},
			entry:  entry(1, "morning", true),
			want:   1,
		},
		{
			name:   "kids away skips the school run",
			oracle: fakeOracle{atHome: false, kids: false},
			entry:  entry(1, "Return from school", true),
			want:   0,
		},
		{
			name:   "kids home registers the school run",
			oracle: fakeOracle{atHome: false, kids: true},
			entry:  entry(1, "Return from school", true),
			want:   1,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			store := fakeStore{entries: []model.ScheduleEntry{master(false), tt.entry}}
			s := scheduler.New(&store, &tt.oracle, &fakeRunner{}, slog.Default())
			require.NoError(t, s.Rebuild(context.Background()))
			assert.Len(t, s.Jobs(), tt.want)
		})
	}
}

func TestScheduler_Rebuild_Duplicates(t *testing.T) {
	store := fakeStore{entries: []model.ScheduleEntry{
		master(false),
		entry(1, "morning", false),
		entry(1, "morning again", false),
	}}

	s := scheduler.New(&store, &fakeOracle{}, &fakeRunner{}, slog.Default())
	require.NoError(t, s.Rebuild(context.Background()))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "morning", jobs[0].Name)
}

func TestScheduler_Rebuild_MasterEcoMode(t *testing.T) {
	store := fakeStore{entries: []model.ScheduleEntry{master(true), entry(1, "morning", false)}}

	s := scheduler.New(&store, &fakeOracle{}, &fakeRunner{}, slog.Default())
	require.NoError(t, s.Rebuild(context.Background()))
	assert.Empty(t, s.Jobs())
}

func TestScheduler_Rebuild_Failure(t *testing.T) {
	store := fakeStore{entries: []model.ScheduleEntry{master(false), entry(1, "morning", false)}}

	s := scheduler.New(&store, &fakeOracle{}, &fakeRunner{}, slog.Default())
	require.NoError(t, s.Rebuild(context.Background()))
	require.Len(t, s.Jobs(), 1)

	// a failed rebuild keeps the schedule alive
	store.err = errors.New("database down")
	require.Error(t, s.Rebuild(context.Background()))
	assert.Len(t, s.Jobs(), 1)

	store.err = nil
	store.entries = []model.ScheduleEntry{entry(1, "morning", false)}
	assert.ErrorIs(t, s.Rebuild(context.Background()), scheduler.ErrNoMaster)
	assert.Len(t, s.Jobs(), 1)
}

func TestScheduler_Rebuild_FallsBackToCachedEntries(t *testing.T) {
	store := fakeStore{entries: []model.ScheduleEntry{master(false), entry(1, "morning", false)}}
	o := fakeOracle{}

	s := scheduler.New(&store, &o, &fakeRunner{}, slog.Default())
	require.NoError(t, s.Rebuild(context.Background()))
	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].EcoMode)

	// with the store down, the jobs are re-registered from the last good
	// read and re-qualified against the new day's context
	store.err = errors.New("database down")
	o.holiday = true
	require.Error(t, s.Rebuild(context.Background()))

	jobs = s.Jobs()
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].EcoMode)
}

func TestScheduler_Run(t *testing.T) {
	store := fakeStore{entries: []model.ScheduleEntry{master(false), entry(1, "morning", false)}}

	s := scheduler.New(&store, &fakeOracle{}, &fakeRunner{}, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error)
	go func() {
		errCh <- s.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return len(s.Jobs()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-errCh)
}
