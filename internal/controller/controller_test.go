package controller_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/controller"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/controller/notifier"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/dispatcher"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/engine"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/nest"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/oracle"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/poller"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/poller/testutils"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/pkg/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	lock     sync.Mutex
	master   engine.Master
	failFor  string
	readings []model.DeviceReading
}

func (f *fakeStore) InsertReading(_ context.Context, reading model.DeviceReading) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.failFor != "" && reading.Location == f.failFor {
		return errors.New("database down")
	}
	f.readings = append(f.readings, reading)
	return nil
}

func (f *fakeStore) Master(_ context.Context) (engine.Master, error) {
	return f.master, nil
}

func (f *fakeStore) persisted() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.readings)
}

type fakeOracle struct {
	holiday    bool
	atHome     bool
	forecast   oracle.Forecast
	houseTemps []model.RoomTemperature
}

func (f *fakeOracle) AtHomeToday(_ context.Context) (bool, error)    { return f.atHome, nil }
func (f *fakeOracle) OnHolidayToday(_ context.Context) (bool, error) { return f.holiday, nil }
func (f *fakeOracle) TodayForecast(_ context.Context) (oracle.Forecast, error) {
	return f.forecast, nil
}
func (f *fakeOracle) CurrentHouseTemps(_ context.Context) ([]model.RoomTemperature, error) {
	return f.houseTemps, nil
}

type appliedCommand struct {
	deviceID string
	desired  engine.HeatingState
}

type fakeCommander struct {
	lock    sync.Mutex
	applied []appliedCommand
}

func (f *fakeCommander) Apply(_ context.Context, deviceID string, current dispatcher.State, desired engine.HeatingState) (dispatcher.Result, error) {
	if current.EcoMode == desired.EcoMode && (desired.HeatTemperature == nil || *desired.HeatTemperature == current.SetPoint) {
		return dispatcher.NoOp, nil
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.applied = append(f.applied, appliedCommand{deviceID: deviceID, desired: desired})
	return dispatcher.Applied, nil
}

func (f *fakeCommander) commands() []appliedCommand {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]appliedCommand(nil), f.applied...)
}

type fakeDevices struct {
	devices []nest.Device
}

func (f *fakeDevices) GetDevices(_ context.Context) ([]nest.Device, error) {
	return f.devices, nil
}

type recordingNotifier struct {
	lock    sync.Mutex
	changes []notifier.Change
}

func (r *recordingNotifier) Notify(change notifier.Change) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recordingNotifier) recorded() []notifier.Change {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]notifier.Change(nil), r.changes...)
}

func thermostat(name string, ecoMode string) nest.Device {
	device := nest.Device{Name: name, Type: "sdm.devices.types.THERMOSTAT"}
	device.Traits.ThermostatEco.Mode = ecoMode
	return device
}

func TestController_Run(t *testing.T) {
	store := fakeStore{master: engine.Master{DayTemp: 18, NightTemp: 16}}
	o := fakeOracle{atHome: true, houseTemps: []model.RoomTemperature{
		{Location: "Lounge", Temperature: 15.5},
		{Location: "Garden", Temperature: 5},
	}}
	commander := fakeCommander{}
	notifications := recordingNotifier{}
	p := pubsub.New[poller.Update](slog.Default())

	c := controller.New(&store, &o, &commander, &fakeDevices{}, p, &notifications, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		errCh <- c.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return p.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	p.Publish(testutils.Update(testutils.WithThermostat("t-1", "Lounge", 19.5, model.EcoOn)))

	// the house is colder than the master set-point: heating goes on
	assert.Eventually(t, func() bool { return len(commander.commands()) == 1 }, time.Second, 10*time.Millisecond)
	cmd := commander.commands()[0]
	assert.Equal(t, "t-1", cmd.deviceID)
	assert.Equal(t, model.EcoOff, cmd.desired.EcoMode)
	require.NotNil(t, cmd.desired.HeatTemperature)
	assert.Equal(t, 18.0, *cmd.desired.HeatTemperature)

	assert.Equal(t, 1, store.persisted())

	changes := notifications.recorded()
	require.Len(t, changes, 1)
	assert.Equal(t, "Lounge", changes[0].Location)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestController_Run_PersistFailure(t *testing.T) {
	store := fakeStore{master: engine.Master{DayTemp: 18, NightTemp: 16}, failFor: "Kitchen"}
	o := fakeOracle{atHome: true, houseTemps: []model.RoomTemperature{{Location: "Lounge", Temperature: 15}}}
	commander := fakeCommander{}
	p := pubsub.New[poller.Update](slog.Default())

	c := controller.New(&store, &o, &commander, &fakeDevices{}, p, notifier.Notifiers{}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		errCh <- c.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return p.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	p.Publish(testutils.Update(
		testutils.WithThermostat("t-1", "Lounge", 19.5, model.EcoOn),
		testutils.WithThermostat("t-2", "Kitchen", 19.5, model.EcoOn),
	))

	assert.Eventually(t, func() bool { return store.persisted() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-errCh)

	// only the persisted reading got a decision
	cmds := commander.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "t-1", cmds[0].deviceID)
}

func TestController_Run_MasterEcoMode(t *testing.T) {
	store := fakeStore{master: engine.Master{EcoMode: true, DayTemp: 18, NightTemp: 16}}
	o := fakeOracle{atHome: true}
	commander := fakeCommander{}
	p := pubsub.New[poller.Update](slog.Default())

	c := controller.New(&store, &o, &commander, &fakeDevices{}, p, notifier.Notifiers{}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		errCh <- c.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return p.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	// already in eco mode: nothing to do
	p.Publish(testutils.Update(testutils.WithThermostat("t-1", "Lounge", 19.5, model.EcoOn)))
	assert.Eventually(t, func() bool { return store.persisted() == 1 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, commander.commands())

	// heating on: master eco mode turns it off
	p.Publish(testutils.Update(testutils.WithThermostat("t-1", "Lounge", 19.5, model.EcoOff)))
	assert.Eventually(t, func() bool { return len(commander.commands()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, model.EcoOn, commander.commands()[0].desired.EcoMode)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestController_ApplySchedule(t *testing.T) {
	temp := 19.0

	testCases := []struct {
		name      string
		master    engine.Master
		forecast  float64
		entry     model.ScheduleEntry
		deviceEco string
		wantCmds  int
		wantEco   model.EcoMode
	}{
		{
			name:      "eco entry applied",
			master:    engine.Master{DayTemp: 18, NightTemp: 16},
			forecast:  20,
			entry:     model.ScheduleEntry{ScheduleNumber: 1, EcoMode: true},
			deviceEco: "OFF",
			wantCmds:  1,
			wantEco:   model.EcoOn,
		},
		{
			name:      "eco entry suppressed by cold forecast",
			master:    engine.Master{DayTemp: 18, NightTemp: 16},
			forecast:  10,
			entry:     model.ScheduleEntry{ScheduleNumber: 1, EcoMode: true},
			deviceEco: "OFF",
			wantCmds:  0,
		},
		{
			name:      "heat entry suppressed by warm forecast",
			master:    engine.Master{DayTemp: 18, NightTemp: 16},
			forecast:  22,
			entry:     model.ScheduleEntry{ScheduleNumber: 2, Temperature: &temp},
			deviceEco: "MANUAL_ECO",
			wantCmds:  0,
		},
		{
			name:      "heat entry applied on a cold day",
			master:    engine.Master{DayTemp: 18, NightTemp: 16},
			forecast:  10,
			entry:     model.ScheduleEntry{ScheduleNumber: 2, Temperature: &temp},
			deviceEco: "MANUAL_ECO",
			wantCmds:  1,
			wantEco:   model.EcoOff,
		},
		{
			name:      "master eco mode skips the schedule",
			master:    engine.Master{EcoMode: true, DayTemp: 18, NightTemp: 16},
			forecast:  10,
			entry:     model.ScheduleEntry{ScheduleNumber: 2, Temperature: &temp},
			deviceEco: "MANUAL_ECO",
			wantCmds:  0,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			store := fakeStore{master: tt.master}
			o := fakeOracle{atHome: true, forecast: oracle.Forecast{TemperatureHigh: tt.forecast}}
			commander := fakeCommander{}
			devices := fakeDevices{devices: []nest.Device{thermostat("t-1", tt.deviceEco)}}
			p := pubsub.New[poller.Update](slog.Default())

			c := controller.New(&store, &o, &commander, &devices, p, notifier.Notifiers{}, slog.Default())

			require.NoError(t, c.ApplySchedule(context.Background(), tt.entry))
			cmds := commander.commands()
			require.Len(t, cmds, tt.wantCmds)
			if tt.wantCmds > 0 {
				assert.Equal(t, tt.wantEco, cmds[0].desired.EcoMode)
			}
		})
	}
}

func TestController_SetHeating(t *testing.T) {
	store := fakeStore{master: engine.Master{DayTemp: 18, NightTemp: 16}}
	commander := fakeCommander{}
	devices := fakeDevices{devices: []nest.Device{
		thermostat("t-1", "OFF"),
		{Name: "cam-1", Type: "sdm.devices.types.CAMERA"},
	}}
	p := pubsub.New[poller.Update](slog.Default())

	c := controller.New(&store, &fakeOracle{}, &commander, &devices, p, notifier.Notifiers{}, slog.Default())

	updated, err := c.SetHeating(context.Background(), engine.HeatingState{EcoMode: model.EcoOn})
	require.NoError(t, err)
	assert.True(t, updated)
	require.Len(t, commander.commands(), 1)
	assert.Equal(t, "t-1", commander.commands()[0].deviceID)

	// already in the requested state
	updated, err = c.SetHeating(context.Background(), engine.HeatingState{EcoMode: model.EcoOff})
	require.NoError(t, err)
	assert.False(t, updated)
}
