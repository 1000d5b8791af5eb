package model

import (
	"strconv"
)

// MasterScheduleNumber identifies the singleton master override record. All
// ordinary timed entries carry a number greater than zero.
const MasterScheduleNumber = 0

// A ScheduleEntry pairs a time-of-day trigger with a desired heating state.
// The master record (ScheduleNumber 0) holds the day/night set-points and the
// master eco mode flag instead of a trigger time.
type ScheduleEntry struct {
	ScheduleNumber int      `bson:"schedule" json:"schedule" yaml:"schedule"`
	Name           string   `bson:"name" json:"name" yaml:"name"`
	Hour           *int     `bson:"hour" json:"hour" yaml:"hour"`
	Minute         *int     `bson:"minute" json:"minute" yaml:"minute"`
	EcoMode        bool     `bson:"ecoMode" json:"ecoMode" yaml:"ecoMode"`
	Temperature    *float64 `bson:"temperature,omitempty" json:"temperature,omitempty" yaml:"temperature,omitempty"`
	DayTemp        *float64 `bson:"dayTemp,omitempty" json:"dayTemp,omitempty" yaml:"dayTemp,omitempty"`
	NightTemp      *float64 `bson:"nightTemp,omitempty" json:"nightTemp,omitempty" yaml:"nightTemp,omitempty"`
	Override       bool     `bson:"override" json:"override" yaml:"override"`
	Active         bool     `bson:"active" json:"active" yaml:"active"`
}

func (e ScheduleEntry) IsMaster() bool {
	return e.ScheduleNumber == MasterScheduleNumber
}

// A ScheduleUpdate is a partial update of a ScheduleEntry's mutable fields.
// Nil fields are left untouched.
type ScheduleUpdate struct {
	Name        *string  `json:"name,omitempty"`
	Hour        *int     `json:"hour,omitempty"`
	Minute      *int     `json:"minute,omitempty"`
	EcoMode     *bool    `json:"ecoMode,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Override    *bool    `json:"override,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

// Validate checks the update's fields. It is called at the administrative
// boundary: an invalid update never reaches the store or the scheduler.
func (u ScheduleUpdate) Validate() error {
	if u.Hour != nil && (*u.Hour < 0 || *u.Hour > 23) {
		return &ValidationError{Field: "hour", Reason: "must be between 0 and 23, got " + strconv.Itoa(*u.Hour)}
	}
	if u.Minute != nil && (*u.Minute < 0 || *u.Minute > 59) {
		return &ValidationError{Field: "minute", Reason: "must be between 0 and 59, got " + strconv.Itoa(*u.Minute)}
	}
	if u.Name != nil && *u.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return nil
}

// Apply merges the update into an existing entry.
func (u ScheduleUpdate) Apply(e ScheduleEntry) ScheduleEntry {
	if u.Name != nil {
		e.Name = *u.Name
	}
	if u.Hour != nil {
		e.Hour = u.Hour
	}
	if u.Minute != nil {
		e.Minute = u.Minute
	}
	if u.EcoMode != nil {
		e.EcoMode = *u.EcoMode
	}
	if u.Temperature != nil {
		e.Temperature = u.Temperature
	}
	if u.Override != nil {
		e.Override = *u.Override
	}
	if u.Active != nil {
		e.Active = *u.Active
	}
	return e
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}
