// Package poller periodically reads the state of all thermostats and
// publishes it to all subscribers.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/nest"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/pkg/pubsub"
)

type Poller interface {
	Subscribe() chan Update
	Unsubscribe(ch chan Update)
	Refresh()
}

type DeviceGetter interface {
	GetDevices(ctx context.Context) ([]nest.Device, error)
}

var _ Poller = &NestPoller{}

type NestPoller struct {
	Client DeviceGetter
	*pubsub.Publisher[Update]
	interval time.Duration
	logger   *slog.Logger
	refresh  chan struct{}
}

func New(client DeviceGetter, interval time.Duration, logger *slog.Logger) *NestPoller {
	return &NestPoller{
		Client:    client,
		Publisher: pubsub.New[Update](logger.With(slog.String("component", "registry"))),
		interval:  interval,
		logger:    logger,
		refresh:   make(chan struct{}),
	}
}

func (p *NestPoller) Run(ctx context.Context) error {
	p.logger.Debug("started", slog.Duration("interval", p.interval))
	defer p.logger.Debug("stopped")

	timer := time.NewTicker(p.interval)
	defer timer.Stop()

	// subscribers need data before the first tick
	if err := p.poll(ctx); err != nil {
		p.logger.Error("failed to get thermostat state", slog.Any("err", err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-p.refresh:
		}

		if err := p.poll(ctx); err != nil {
			p.logger.Error("failed to get thermostat state", slog.Any("err", err))
		}
	}
}

// Refresh triggers an immediate poll, without waiting for the next tick.
func (p *NestPoller) Refresh() {
	p.refresh <- struct{}{}
}

func (p *NestPoller) poll(ctx context.Context) error {
	start := time.Now()
	update, err := p.update(ctx)
	if err == nil {
		p.Publisher.Publish(update)
		p.logger.Debug("poll completed", slog.Duration("duration", time.Since(start)))
	}
	return err
}

func (p *NestPoller) update(ctx context.Context) (Update, error) {
	devices, err := p.Client.GetDevices(ctx)
	if err != nil {
		return Update{}, err
	}

	update := Update{Time: time.Now()}
	for _, device := range devices {
		if !device.IsThermostat() {
			continue
		}
		reading, ok := device.Reading(update.Time)
		if !ok {
			p.logger.Warn("thermostat reported no usable traits", slog.String("device", device.Name))
			continue
		}
		update.Devices = append(update.Devices, DeviceState{Device: device, Reading: reading})
	}
	return update, nil
}
