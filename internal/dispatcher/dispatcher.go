// Package dispatcher applies desired heating states to physical devices. It
// serializes commands per device, skips commands the device is already in,
// and enforces the vendor's ordering constraint: eco mode is set and
// confirmed before a set-point command is attempted.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/engine"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
)

// Adapter executes vendor commands on a single device.
type Adapter interface {
	SetEcoMode(ctx context.Context, deviceID string, mode model.EcoMode) error
	SetHeatpoint(ctx context.Context, deviceID string, celsius float64) error
}

type Result int

const (
	NoOp Result = iota
	Applied
)

func (r Result) String() string {
	if r == Applied {
		return "applied"
	}
	return "noop"
}

type Dispatcher struct {
	adapter  Adapter
	logger   *slog.Logger
	commands *prometheus.CounterVec
	lock     sync.Mutex
	devices  map[string]*sync.Mutex
}

func New(adapter Adapter, registry prometheus.Registerer, logger *slog.Logger) *Dispatcher {
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nest",
		Subsystem: "collector",
		Name:      "commands_total",
		Help:      "device commands by result",
	},
		[]string{"result"},
	)
	registry.MustRegister(commands)

	return &Dispatcher{
		adapter:  adapter,
		logger:   logger,
		commands: commands,
		devices:  make(map[string]*sync.Mutex),
	}
}

// State is a device's last-known heating state: the eco mode and set-point
// it currently reports.
type State struct {
	EcoMode  model.EcoMode
	SetPoint float64
}

// Apply brings the device to the desired state. Commands the device already
// reflects are skipped. Commands to the same device are serialized: a second
// Apply for the device waits for the in-flight one to finish.
func (d *Dispatcher) Apply(ctx context.Context, deviceID string, current State, desired engine.HeatingState) (Result, error) {
	lock := d.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	result := NoOp
	mode := current.EcoMode

	if desired.EcoMode != current.EcoMode {
		if err := d.adapter.SetEcoMode(ctx, deviceID, desired.EcoMode); err != nil {
			d.commands.WithLabelValues("error").Inc()
			return NoOp, err
		}
		d.logger.Info("eco mode changed",
			slog.String("device", deviceID),
			slog.String("mode", desired.EcoMode.String()),
		)
		mode = desired.EcoMode
		result = Applied
	}

	// the vendor rejects a set-point while eco mode is active
	if desired.HeatTemperature != nil && mode == model.EcoOff && *desired.HeatTemperature != current.SetPoint {
		if err := d.adapter.SetHeatpoint(ctx, deviceID, *desired.HeatTemperature); err != nil {
			d.commands.WithLabelValues("error").Inc()
			return result, err
		}
		d.logger.Info("heatpoint changed",
			slog.String("device", deviceID),
			slog.Float64("temperature", *desired.HeatTemperature),
		)
		result = Applied
	}

	d.commands.WithLabelValues(result.String()).Inc()
	return result, nil
}

func (d *Dispatcher) deviceLock(deviceID string) *sync.Mutex {
	d.lock.Lock()
	defer d.lock.Unlock()
	lock, ok := d.devices[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		d.devices[deviceID] = lock
	}
	return lock
}
