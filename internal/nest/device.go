package nest

import (
	"time"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
)

const thermostatType = "sdm.devices.types.THERMOSTAT"

// vendor eco mode values. These never leave this package.
const (
	vendorEcoOn  = "MANUAL_ECO"
	vendorEcoOff = "OFF"
)

// A Device is one entry of the SDM device list. Name is the vendor's fully
// qualified device identifier (enterprises/<project>/devices/<id>).
type Device struct {
	Name            string           `json:"name"`
	Type            string           `json:"type"`
	Traits          Traits           `json:"traits"`
	ParentRelations []ParentRelation `json:"parentRelations"`
}

type ParentRelation struct {
	Parent      string `json:"parent"`
	DisplayName string `json:"displayName"`
}

type Traits struct {
	Temperature struct {
		AmbientTemperatureCelsius float64 `json:"ambientTemperatureCelsius"`
	} `json:"sdm.devices.traits.Temperature"`
	Humidity struct {
		AmbientHumidityPercent float64 `json:"ambientHumidityPercent"`
	} `json:"sdm.devices.traits.Humidity"`
	Connectivity struct {
		Status string `json:"status"`
	} `json:"sdm.devices.traits.Connectivity"`
	ThermostatMode struct {
		Mode string `json:"mode"`
	} `json:"sdm.devices.traits.ThermostatMode"`
	ThermostatEco struct {
		Mode string `json:"mode"`
	} `json:"sdm.devices.traits.ThermostatEco"`
	ThermostatTemperatureSetpoint struct {
		HeatCelsius float64 `json:"heatCelsius"`
	} `json:"sdm.devices.traits.ThermostatTemperatureSetpoint"`
	ThermostatHvac struct {
		Status string `json:"status"`
	} `json:"sdm.devices.traits.ThermostatHvac"`
}

func (d Device) IsThermostat() bool {
	return d.Type == thermostatType
}

// EcoMode translates the vendor's eco trait to the internal enum.
func (d Device) EcoMode() model.EcoMode {
	return d.Traits.ThermostatEco.Mode == vendorEcoOn
}

// SetPoint returns the device's heating set-point trait.
func (d Device) SetPoint() float64 {
	return d.Traits.ThermostatTemperatureSetpoint.HeatCelsius
}

func (d Device) location() string {
	if len(d.ParentRelations) == 0 {
		return ""
	}
	return d.ParentRelations[0].DisplayName
}

// Reading maps the device's traits to a DeviceReading. ok is false when the
// device is not a thermostat.
func (d Device) Reading(now time.Time) (model.DeviceReading, bool) {
	if !d.IsThermostat() {
		return model.DeviceReading{}, false
	}
	return model.DeviceReading{
		Time:         now,
		Device:       d.Name,
		Location:     d.location(),
		Temperature:  d.Traits.Temperature.AmbientTemperatureCelsius,
		Humidity:     d.Traits.Humidity.AmbientHumidityPercent,
		Connectivity: d.Traits.Connectivity.Status,
		Mode:         d.Traits.ThermostatMode.Mode,
		EcoMode:      d.EcoMode(),
		SetPoint:     d.SetPoint(),
		HvacStatus:   d.Traits.ThermostatHvac.Status,
	}, true
}
