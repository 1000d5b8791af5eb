// Package testutils builds poller updates for tests.
package testutils

import (
	"time"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/nest"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/poller"
)

func Update(options ...UpdateOption) poller.Update {
	u := poller.Update{Time: time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)}
	for _, option := range options {
		option(&u)
	}
	return u
}

type UpdateOption func(*poller.Update)

func WithTime(t time.Time) UpdateOption {
	return func(u *poller.Update) {
		u.Time = t
	}
}

func WithThermostat(name, location string, temperature float64, ecoMode model.EcoMode, options ...ThermostatOption) UpdateOption {
	return func(u *poller.Update) {
		state := poller.DeviceState{
			Device: nest.Device{Name: name},
			Reading: model.DeviceReading{
				Time:         u.Time,
				Device:       name,
				Location:     location,
				Temperature:  temperature,
				Connectivity: "ONLINE",
				Mode:         "HEAT",
				EcoMode:      ecoMode,
			},
		}
		for _, option := range options {
			option(&state)
		}
		u.Devices = append(u.Devices, state)
	}
}

type ThermostatOption func(*poller.DeviceState)

func WithSetPoint(setPoint float64) ThermostatOption {
	return func(d *poller.DeviceState) {
		d.Reading.SetPoint = setPoint
	}
}

func WithHumidity(humidity float64) ThermostatOption {
	return func(d *poller.DeviceState) {
		d.Reading.Humidity = humidity
	}
}

func WithHvac(status string) ThermostatOption {
	return func(d *poller.DeviceState) {
		d.Reading.HvacStatus = status
	}
}

func WithConnectivity(status string) ThermostatOption {
	return func(d *poller.DeviceState) {
		d.Reading.Connectivity = status
	}
}
