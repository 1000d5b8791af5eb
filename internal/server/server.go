// Package server implements the administrative REST API: schedule
// management, sensor reports and the heating controls.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/engine"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/store"
)

type Store interface {
	ListSchedules(ctx context.Context) ([]model.ScheduleEntry, error)
	GetSchedule(ctx context.Context, scheduleNumber int) (model.ScheduleEntry, error)
	SaveSchedule(ctx context.Context, scheduleNumber int, update model.ScheduleUpdate) (model.ScheduleEntry, error)
	Master(ctx context.Context) (engine.Master, error)
	SetMasterEcoMode(ctx context.Context, ecoMode bool) error
	Readings(ctx context.Context, duration string) ([]model.ReadingAggregate, error)
	CurrentReadings(ctx context.Context) ([]model.DeviceReading, error)
}

// A Heater applies a desired heating state to the thermostats.
type Heater interface {
	SetHeating(ctx context.Context, desired engine.HeatingState) (bool, error)
}

// A Rebuilder rebuilds the schedule job registry.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

type Server struct {
	store     Store
	heater    Heater
	rebuilder Rebuilder
	logger    *slog.Logger
}

func New(s Store, heater Heater, rebuilder Rebuilder, logger *slog.Logger) *Server {
	return &Server{store: s, heater: heater, rebuilder: rebuilder, logger: logger}
}

// Router returns the API routes.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /schedules", s.listSchedules)
	mux.HandleFunc("GET /schedules/{id}", s.getSchedule)
	mux.HandleFunc("PUT /schedules/{id}", s.saveSchedule)
	mux.HandleFunc("GET /sensors", s.sensors)
	mux.HandleFunc("GET /sensors/current", s.currentSensors)
	mux.HandleFunc("PUT /sensors/heating", s.heating)
	mux.HandleFunc("GET /masterEcoMode", s.masterEcoMode)
	mux.HandleFunc("PUT /masterEcoMode", s.updateMasterEcoMode)
	return mux
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListSchedules(r.Context())
	if err != nil {
		s.serverError(w, "failed to list schedules", err)
		return
	}
	if entries == nil {
		entries = []model.ScheduleEntry{}
	}
	s.respond(w, http.StatusOK, entries)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid schedule number")
		return
	}

	entry, err := s.store.GetSchedule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.respond(w, http.StatusOK, []model.ScheduleEntry{})
		return
	}
	if err != nil {
		s.serverError(w, "failed to get schedule", err)
		return
	}
	s.respond(w, http.StatusOK, []model.ScheduleEntry{entry})
}

func (s *Server) saveSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid schedule number")
		return
	}

	var update model.ScheduleUpdate
	if err = json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err = update.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err = s.store.SaveSchedule(r.Context(), id, update); err != nil {
		s.serverError(w, "failed to save schedule", err)
		return
	}

	// the new entry takes effect before the caller gets its response
	if err = s.rebuilder.Rebuild(r.Context()); err != nil {
		s.logger.Error("failed to rebuild schedule registry", "err", err)
	}
	s.respond(w, http.StatusOK, map[string]string{"state": "saved"})
}

func (s *Server) sensors(w http.ResponseWriter, r *http.Request) {
	duration := r.URL.Query().Get("duration")
	if duration == "" {
		duration = "hour"
	}
	readings, err := s.store.Readings(r.Context(), duration)
	if err != nil {
		s.serverError(w, "failed to get readings", err)
		return
	}
	if readings == nil {
		readings = []model.ReadingAggregate{}
	}
	s.respond(w, http.StatusOK, readings)
}

func (s *Server) currentSensors(w http.ResponseWriter, r *http.Request) {
	readings, err := s.store.CurrentReadings(r.Context())
	if err != nil {
		s.serverError(w, "failed to get current readings", err)
		return
	}
	if readings == nil {
		readings = []model.DeviceReading{}
	}

	master, err := s.store.Master(r.Context())
	if err != nil {
		s.serverError(w, "failed to get master record", err)
		return
	}

	s.respond(w, http.StatusOK, struct {
		Readings        []model.DeviceReading `json:"readings"`
		EcoModeOverride masterResponse        `json:"ecoModeOverride"`
	}{
		Readings:        readings,
		EcoModeOverride: masterResponseFrom(master),
	})
}

func (s *Server) heating(w http.ResponseWriter, r *http.Request) {
	var request struct {
		EcoMode         bool     `json:"ecoMode"`
		HeatTemperature *float64 `json:"heatTemperature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	desired := engine.HeatingState{EcoMode: model.EcoMode(request.EcoMode)}
	if !request.EcoMode {
		desired.HeatTemperature = request.HeatTemperature
	}

	updated, err := s.heater.SetHeating(r.Context(), desired)
	if err != nil {
		s.serverError(w, "failed to set heating", err)
		return
	}

	state := "Nothing to update"
	if updated {
		state = "updated"
	}
	s.respond(w, http.StatusOK, map[string]string{"state": state})
}

type masterResponse struct {
	EcoMode          bool    `json:"ecoMode"`
	DayTemperature   float64 `json:"dayTemperature"`
	NightTemperature float64 `json:"nightTemperature"`
}

func masterResponseFrom(master engine.Master) masterResponse {
	return masterResponse{
		EcoMode:          master.EcoMode,
		DayTemperature:   master.DayTemp,
		NightTemperature: master.NightTemp,
	}
}

func (s *Server) masterEcoMode(w http.ResponseWriter, r *http.Request) {
	master, err := s.store.Master(r.Context())
	if err != nil {
		s.serverError(w, "failed to get master record", err)
		return
	}
	s.respond(w, http.StatusOK, masterResponseFrom(master))
}

func (s *Server) updateMasterEcoMode(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MasterEcoMode *bool `json:"masterEcoMode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if request.MasterEcoMode == nil {
		s.respondError(w, http.StatusBadRequest, "masterEcoMode is missing")
		return
	}

	master, err := s.store.Master(r.Context())
	if err != nil {
		s.serverError(w, "failed to get master record", err)
		return
	}
	if master.EcoMode == *request.MasterEcoMode {
		s.respond(w, http.StatusOK, map[string]string{"state": "un-changed"})
		return
	}

	if err = s.store.SetMasterEcoMode(r.Context(), *request.MasterEcoMode); err != nil {
		s.serverError(w, "failed to save master eco mode", err)
		return
	}

	// the new override applies to the device and the registry right away
	if _, err = s.heater.SetHeating(r.Context(), engine.HeatingState{EcoMode: model.EcoMode(*request.MasterEcoMode)}); err != nil {
		s.logger.Error("failed to apply master eco mode to devices", "err", err)
	}
	if err = s.rebuilder.Rebuild(r.Context()); err != nil {
		s.logger.Error("failed to rebuild schedule registry", "err", err)
	}

	s.respond(w, http.StatusOK, map[string]string{"state": "saved"})
}

func (s *Server) respond(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write response", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, map[string]string{"error": message})
}

func (s *Server) serverError(w http.ResponseWriter, message string, err error) {
	s.logger.Error(message, "err", err)
	s.respondError(w, http.StatusInternalServerError, message)
}
