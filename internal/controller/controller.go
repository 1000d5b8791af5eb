// Package controller reacts to thermostat updates. It persists every
// reading, evaluates the heating rules against the household's context and
// sends the resulting commands to the device. It also exposes the two entry
// points used outside the polling loop: applying a firing schedule entry and
// applying a manually requested heating state.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/controller/notifier"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/dispatcher"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/engine"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/nest"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/oracle"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/poller"
	"golang.org/x/sync/errgroup"
)

type Store interface {
	InsertReading(ctx context.Context, reading model.DeviceReading) error
	Master(ctx context.Context) (engine.Master, error)
}

type Oracle interface {
	AtHomeToday(ctx context.Context) (bool, error)
	OnHolidayToday(ctx context.Context) (bool, error)
	TodayForecast(ctx context.Context) (oracle.Forecast, error)
	CurrentHouseTemps(ctx context.Context) ([]model.RoomTemperature, error)
}

type Commander interface {
	Apply(ctx context.Context, deviceID string, current dispatcher.State, desired engine.HeatingState) (dispatcher.Result, error)
}

type DeviceGetter interface {
	GetDevices(ctx context.Context) ([]nest.Device, error)
}

type Publisher[T any] interface {
	Subscribe() chan T
	Unsubscribe(ch chan T)
}

// A Controller receives updates from a Poller, persists the readings and
// applies the heating rules to each thermostat.
type Controller struct {
	store     Store
	oracle    Oracle
	commander Commander
	devices   DeviceGetter
	poller    Publisher[poller.Update]
	notifier  notifier.Notifier
	logger    *slog.Logger
}

func New(store Store, o Oracle, commander Commander, devices DeviceGetter, p Publisher[poller.Update], n notifier.Notifier, logger *slog.Logger) *Controller {
	return &Controller{
		store:     store,
		oracle:    o,
		commander: commander,
		devices:   devices,
		poller:    p,
		notifier:  n,
		logger:    logger,
	}
}

// Run subscribes to the poller and processes each update until the context
// is canceled.
func (c *Controller) Run(ctx context.Context) error {
	ch := c.poller.Subscribe()
	defer c.poller.Unsubscribe(ch)

	c.logger.Debug("started")
	defer c.logger.Debug("stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			c.processUpdate(ctx, update)
		}
	}
}

// processUpdate persists all readings, then evaluates the heating rules per
// persisted thermostat. One failing device does not stop the others; a
// reading that could not be persisted gets no decision either.
func (c *Controller) processUpdate(ctx context.Context, update poller.Update) {
	persisted := make([]bool, len(update.Devices))
	var g errgroup.Group
	for i, device := range update.Devices {
		g.Go(func() error {
			if err := c.store.InsertReading(ctx, device.Reading); err != nil {
				c.logger.Error("failed to persist reading", "device", device.Reading.Location, "err", err)
				return nil
			}
			persisted[i] = true
			return nil
		})
	}
	_ = g.Wait()

	master, err := c.store.Master(ctx)
	if err != nil {
		c.logger.Error("failed to get master record, skipping decisions", "err", err)
		return
	}
	snapshot, err := c.snapshot(ctx, update.Time, nil)
	if err != nil {
		c.logger.Error("failed to get household context, skipping decisions", "err", err)
		return
	}

	for i, device := range update.Devices {
		if !persisted[i] {
			continue
		}
		c.decide(ctx, device.Device.Name, device.Reading, master, snapshot)
	}
}

func (c *Controller) decide(ctx context.Context, deviceID string, reading model.DeviceReading, master engine.Master, snapshot engine.Snapshot) {
	decision, err := engine.Decide(reading, master, snapshot)
	if errors.Is(err, engine.ErrNoData) {
		c.logger.Debug("no indoor temperatures available, leaving device unchanged", "device", reading.Location)
		return
	}
	if err != nil {
		c.logger.Error("failed to evaluate heating rules", "device", reading.Location, "err", err)
		return
	}
	c.logger.Debug("decision", "device", reading.Location, "decision", decision)
	if decision.NoOp {
		return
	}

	result, err := c.commander.Apply(ctx, deviceID, dispatcher.State{EcoMode: reading.EcoMode, SetPoint: reading.SetPoint}, decision.State)
	if err != nil {
		c.logger.Error("failed to apply heating state", "device", reading.Location, "err", err)
		return
	}
	if result == dispatcher.Applied {
		c.notifier.Notify(notifier.Change{
			Location: reading.Location,
			State:    decision.State.String(),
			Reason:   decision.Reason,
		})
	}
}

// ApplySchedule applies a firing schedule entry. The device state is fetched
// fresh: the entry carries the intent, the thermostat the current state.
func (c *Controller) ApplySchedule(ctx context.Context, entry model.ScheduleEntry) error {
	master, err := c.store.Master(ctx)
	if err != nil {
		return err
	}
	if master.EcoMode {
		c.logger.Info("master eco mode active, skipping schedule", "schedule", entry.ScheduleNumber)
		return nil
	}

	intent := intentFromEntry(entry, master)
	snapshot, err := c.snapshot(ctx, time.Now(), &intent)
	if err != nil {
		return err
	}

	devices, err := c.devices.GetDevices(ctx)
	if err != nil {
		return err
	}
	for _, device := range devices {
		reading, ok := device.Reading(time.Now())
		if !ok {
			continue
		}
		c.decide(ctx, device.Name, reading, master, snapshot)
	}
	return nil
}

// SetHeating applies a manually requested heating state to all thermostats,
// bypassing the rules. It reports whether any device was changed.
func (c *Controller) SetHeating(ctx context.Context, desired engine.HeatingState) (bool, error) {
	devices, err := c.devices.GetDevices(ctx)
	if err != nil {
		return false, err
	}

	var updated bool
	var errs error
	for _, device := range devices {
		if !device.IsThermostat() {
			continue
		}
		result, err := c.commander.Apply(ctx, device.Name, dispatcher.State{EcoMode: device.EcoMode(), SetPoint: device.SetPoint()}, desired)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if result == dispatcher.Applied {
			updated = true
		}
	}
	return updated, errs
}

// intentFromEntry translates a schedule entry to the state it wants. An
// entry without its own temperature heats to the master's day set-point.
func intentFromEntry(entry model.ScheduleEntry, master engine.Master) engine.HeatingState {
	if entry.EcoMode {
		return engine.HeatingState{EcoMode: model.EcoOn}
	}
	temperature := master.DayTemp
	if entry.Temperature != nil {
		temperature = *entry.Temperature
	}
	return engine.HeatingState{EcoMode: model.EcoOff, HeatTemperature: &temperature}
}

// snapshot collects the context oracles' answers. The forecast is only
// needed when a scheduled intent is in play.
func (c *Controller) snapshot(ctx context.Context, now time.Time, intent *engine.HeatingState) (engine.Snapshot, error) {
	holiday, err := c.oracle.OnHolidayToday(ctx)
	if err != nil {
		return engine.Snapshot{}, err
	}
	someoneHome, err := c.oracle.AtHomeToday(ctx)
	if err != nil {
		return engine.Snapshot{}, err
	}

	snapshot := engine.Snapshot{
		Holiday:     holiday,
		SomeoneHome: someoneHome,
		Hour:        now.Hour(),
		Intent:      intent,
	}

	if intent != nil {
		forecast, err := c.oracle.TodayForecast(ctx)
		if err != nil {
			return engine.Snapshot{}, err
		}
		snapshot.Forecast = &forecast.TemperatureHigh
	}

	temps, err := c.oracle.CurrentHouseTemps(ctx)
	if err != nil {
		c.logger.Warn("failed to get house temperatures", "err", err)
	} else {
		snapshot.HouseTemps = temps
	}
	return snapshot, nil
}
