package poller_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/nest"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/poller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeviceGetter struct {
	devices []nest.Device
	err     error
	calls   atomic.Int32
}

func (f *fakeDeviceGetter) GetDevices(_ context.Context) ([]nest.Device, error) {
	f.calls.Add(1)
	return f.devices, f.err
}

func thermostat(name, location string, temperature float64, ecoMode string) nest.Device {
	device := nest.Device{
		Name:            name,
		Type:            "sdm.devices.types.THERMOSTAT",
		ParentRelations: []nest.ParentRelation{{DisplayName: location}},
	}
	device.Traits.Temperature.AmbientTemperatureCelsius = temperature
	device.Traits.ThermostatEco.Mode = ecoMode
	device.Traits.Connectivity.Status = "ONLINE"
	device.Traits.ThermostatMode.Mode = "HEAT"
	return device
}

func TestNestPoller_Run(t *testing.T) {
	client := fakeDeviceGetter{devices: []nest.Device{
		thermostat("enterprises/p/devices/t-1", "Lounge", 19.5, "MANUAL_ECO"),
		{Name: "enterprises/p/devices/cam-1", Type: "sdm.devices.types.CAMERA"},
	}}

	p := poller.New(&client, time.Minute, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	ch := p.Subscribe()
	errCh := make(chan error)
	go func() {
		errCh <- p.Run(ctx)
	}()

	// the poller publishes once at startup, without waiting for the first tick
	update := <-ch

	require.Len(t, update.Devices, 1)
	assert.Equal(t, "Lounge", update.Devices[0].Reading.Location)
	assert.Equal(t, 19.5, update.Devices[0].Reading.Temperature)
	assert.Equal(t, model.EcoOn, update.Devices[0].Reading.EcoMode)
	assert.False(t, update.Time.IsZero())

	state, ok := update.GetDevice("enterprises/p/devices/t-1")
	require.True(t, ok)
	assert.Equal(t, "Lounge", state.Reading.Location)
	_, ok = update.GetDevice("enterprises/p/devices/cam-1")
	assert.False(t, ok)

	go p.Refresh()
	update = <-ch
	assert.Len(t, update.Devices, 1)
	assert.Equal(t, int32(2), client.calls.Load())

	p.Unsubscribe(ch)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestNestPoller_Run_Error(t *testing.T) {
	client := fakeDeviceGetter{err: errors.New("api down")}

	p := poller.New(&client, time.Minute, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error)
	go func() {
		errCh <- p.Run(ctx)
	}()

	// a failed poll must not kill the loop
	assert.Eventually(t, func() bool { return client.calls.Load() > 0 }, time.Second, 10*time.Millisecond)
	p.Refresh()

	cancel()
	assert.NoError(t, <-errCh)
}
