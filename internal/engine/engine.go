// Package engine computes the desired heating state from the master
// override, the day's context (presence, holidays, weather) and live
// telemetry. It is pure: all I/O happens in its callers.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
)

// CosyOutsideTemp is the forecast high (°C) above which the house is warm
// enough that heating against the schedule would only flap the mode.
const CosyOutsideTemp = 17.0

// ErrNoData indicates no indoor temperature reading was available for the
// fallback rule. The caller must fail closed: no command, state unchanged.
var ErrNoData = errors.New("no recent house temperature found")

// HeatingState is the desired command: eco mode on, or heating to a
// set-point. HeatTemperature is nil when no set-point change is wanted.
type HeatingState struct {
	EcoMode         model.EcoMode
	HeatTemperature *float64
}

func (s HeatingState) String() string {
	if s.EcoMode == model.EcoOn {
		return "eco mode on"
	}
	if s.HeatTemperature != nil {
		return "heating to " + strconv.FormatFloat(*s.HeatTemperature, 'f', 1, 64) + "º"
	}
	return "eco mode off"
}

// Master is the master override record (schedule 0). DayTemp doubles as the
// fallback rule's threshold and target set-point.
type Master struct {
	EcoMode   bool
	DayTemp   float64
	NightTemp float64
}

// A Snapshot captures the context oracles' answers for "today". Intent is
// only set on the scheduled path: it carries the firing schedule entry's
// desired state and enables the weather override rule.
type Snapshot struct {
	Holiday     bool
	SomeoneHome bool
	Hour        int
	Forecast    *float64
	HouseTemps  []model.RoomTemperature
	Intent      *HeatingState
}

// A Decision is the engine's output. NoOp means the device is already in the
// desired state (or a rule suppressed the change): nothing is to be sent.
type Decision struct {
	State  HeatingState
	Reason string
	NoOp   bool
}

func (d Decision) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("state", d.State.String()),
		slog.String("reason", d.Reason),
		slog.Bool("noop", d.NoOp),
	)
}

// GardenLocation is excluded from the indoor minimum: it is an outdoor
// sensor and would keep the heating on all winter.
const GardenLocation = "Garden"

// Decide computes the desired heating state. Rules are evaluated in priority
// order; the first matching rule wins.
func Decide(current model.DeviceReading, master Master, snapshot Snapshot) (Decision, error) {
	// 1. master eco mode suppresses everything
	if master.EcoMode {
		return Decision{
			State:  HeatingState{EcoMode: model.EcoOn},
			Reason: "master eco mode active",
			NoOp:   current.EcoMode == model.EcoOn,
		}, nil
	}

	// 2. on holiday: eco mode on
	if snapshot.Holiday {
		return Decision{
			State:  HeatingState{EcoMode: model.EcoOn},
			Reason: "on holiday",
			NoOp:   current.EcoMode == model.EcoOn,
		}, nil
	}

	// 3. nobody home during the working day: eco mode on
	if !snapshot.SomeoneHome && snapshot.Hour >= 9 && snapshot.Hour <= 15 {
		return Decision{
			State:  HeatingState{EcoMode: model.EcoOn},
			Reason: "not at home today",
			NoOp:   current.EcoMode == model.EcoOn,
		}, nil
	}

	// 4. weather override of a scheduled intent
	if snapshot.Intent != nil && snapshot.Forecast != nil {
		if d, ok := weatherOverride(*snapshot.Forecast, *snapshot.Intent); ok {
			return d, nil
		}
	}

	// a scheduled intent that survives the weather gate is applied as-is
	if snapshot.Intent != nil {
		return Decision{State: *snapshot.Intent, Reason: "scheduled"}, nil
	}

	// 5. fallback: compare the coldest indoor sensor against the master
	// set-point
	return decideFromHouseTemps(current, master, snapshot.HouseTemps)
}

// weatherOverride suppresses a scheduled intent that contradicts today's
// forecast. Returns false when the forecast and intent agree.
func weatherOverride(forecastHigh float64, intent HeatingState) (Decision, bool) {
	baseReason := "today's high will be " + strconv.FormatFloat(forecastHigh, 'f', 1, 64) + "º"

	// too cold outside: keep heating on even if the schedule wants eco
	if forecastHigh < CosyOutsideTemp && intent.EcoMode == model.EcoOn {
		return Decision{
			State:  HeatingState{EcoMode: model.EcoOff},
			Reason: baseReason + ", so will keep heating on",
			NoOp:   true,
		}, true
	}

	// warm enough outside: keep eco on even if the schedule wants heat
	if forecastHigh >= CosyOutsideTemp && intent.EcoMode == model.EcoOff {
		return Decision{
			State:  HeatingState{EcoMode: model.EcoOn},
			Reason: baseReason + ", so will keep eco mode on",
			NoOp:   true,
		}, true
	}

	return Decision{}, false
}

func decideFromHouseTemps(current model.DeviceReading, master Master, houseTemps []model.RoomTemperature) (Decision, error) {
	indoor := make([]model.RoomTemperature, 0, len(houseTemps))
	for _, t := range houseTemps {
		if t.Location != GardenLocation {
			indoor = append(indoor, t)
		}
	}
	if len(indoor) == 0 {
		return Decision{}, ErrNoData
	}

	minTemp := indoor[0].Temperature
	for _, t := range indoor[1:] {
		minTemp = math.Min(minTemp, t.Temperature)
	}
	minTemp = math.Floor(minTemp)

	if minTemp < master.DayTemp {
		return Decision{
			State:  HeatingState{EcoMode: model.EcoOff, HeatTemperature: &master.DayTemp},
			Reason: fmt.Sprintf("house at %.0fº is colder than the %.1fº minimum", minTemp, master.DayTemp),
			NoOp:   current.EcoMode == model.EcoOff,
		}, nil
	}

	return Decision{
		State:  HeatingState{EcoMode: model.EcoOn},
		Reason: fmt.Sprintf("house at %.0fº is warmer than the %.1fº minimum", minTemp, master.DayTemp),
		NoOp:   current.EcoMode == model.EcoOn,
	}, nil
}
