package poller

import (
	"log/slog"
	"time"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/nest"
)

// An Update is one poll of all thermostats in the household.
type Update struct {
	Time    time.Time
	Devices []DeviceState
}

// A DeviceState pairs a thermostat with the reading derived from its traits.
type DeviceState struct {
	Device  nest.Device
	Reading model.DeviceReading
}

// GetDevice returns the state of the named thermostat.
func (u Update) GetDevice(name string) (DeviceState, bool) {
	for _, device := range u.Devices {
		if device.Device.Name == name {
			return device, true
		}
	}
	return DeviceState{}, false
}

func (u Update) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(u.Devices)+1)
	attrs = append(attrs, slog.Time("time", u.Time))
	for _, device := range u.Devices {
		attrs = append(attrs, slog.Any(device.Reading.Location, device.Reading))
	}
	return slog.GroupValue(attrs...)
}
