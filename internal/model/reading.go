package model

import (
	"log/slog"
	"time"
)

// EcoMode is the device's energy-saving state. The vendor's wire values
// ("MANUAL_ECO", "OFF") are translated at the device adapter boundary and
// never appear outside it.
type EcoMode bool

const (
	EcoOn  EcoMode = true
	EcoOff EcoMode = false
)

func (e EcoMode) String() string {
	if e {
		return "eco"
	}
	return "heat"
}

// A DeviceReading is one poll of one physical device. Readings are
// append-only: they are written once by the telemetry loop and only ever
// read afterwards.
type DeviceReading struct {
	Time         time.Time `bson:"time" json:"time"`
	Device       string    `bson:"device" json:"device"`
	Location     string    `bson:"location" json:"location"`
	Temperature  float64   `bson:"temperature" json:"temperature"`
	Humidity     float64   `bson:"humidity" json:"humidity"`
	Connectivity string    `bson:"connectivity" json:"connectivity"`
	Mode         string    `bson:"mode" json:"mode"`
	EcoMode      EcoMode   `bson:"ecoMode" json:"ecoMode"`
	SetPoint     float64   `bson:"setPoint" json:"setPoint"`
	HvacStatus   string    `bson:"hvac" json:"hvac"`
}

func (r DeviceReading) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("location", r.Location),
		slog.Float64("temperature", r.Temperature),
		slog.String("ecoMode", r.EcoMode.String()),
		slog.Float64("setPoint", r.SetPoint),
		slog.String("hvac", r.HvacStatus),
	)
}

// A ReadingAggregate is one bucket of a /sensors report: the last reading in
// the bucket, keyed by the aggregation's group identifier (hour, day, month
// or device, depending on the requested duration).
type ReadingAggregate struct {
	Bucket       any       `bson:"_id" json:"bucket"`
	Time         time.Time `bson:"time,omitempty" json:"time,omitempty"`
	Device       string    `bson:"device" json:"device"`
	Location     string    `bson:"location" json:"location"`
	Temperature  float64   `bson:"temperature" json:"temperature"`
	Humidity     float64   `bson:"humidity" json:"humidity"`
	Connectivity string    `bson:"connectivity" json:"connectivity"`
	Mode         string    `bson:"mode" json:"mode"`
	EcoMode      EcoMode   `bson:"ecoMode" json:"ecoMode"`
	SetPoint     float64   `bson:"setPoint" json:"setPoint"`
	HvacStatus   string    `bson:"hvac" json:"hvac"`
}

// A RoomTemperature is one indoor sensor's current temperature, as reported
// by the household sensor service.
type RoomTemperature struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
}
