// Package server exposes the HTTP configuration API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/matthewidavis/ResponsiveBOXES/internal/config"
	"github.com/matthewidavis/ResponsiveBOXES/internal/events"
	"github.com/matthewidavis/ResponsiveBOXES/internal/logger"
	"github.com/matthewidavis/ResponsiveBOXES/internal/store"
	"github.com/matthewidavis/ResponsiveBOXES/internal/surveillance"
	"github.com/matthewidavis/ResponsiveBOXES/internal/trigger"
	"github.com/matthewidavis/ResponsiveBOXES/internal/zones"
)

// Options are the optional collaborators of a Server.
type Options struct {
	// ConfigPath is where PUT /api/config saves the configuration. Empty
	// disables saving.
	ConfigPath string
	History    store.History
	// Events serves GET /api/events.
	Events http.Handler
}

type Server struct {
	cfg        *config.Config
	mgr        *surveillance.Manager
	zones      *zones.Registry
	dispatcher *trigger.Dispatcher
	opts       Options
	srv        *http.Server
}

func New(cfg *config.Config, mgr *surveillance.Manager, reg *zones.Registry, disp *trigger.Dispatcher, opts Options) *Server {
	return &Server{
		cfg:        cfg,
		mgr:        mgr,
		zones:      reg,
		dispatcher: disp,
		opts:       opts,
	}
}

// Handler returns the API routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)

	mux.HandleFunc("/api/zones", s.handleZones)
	mux.HandleFunc("/api/zones/{id}", s.handleZone)
	mux.HandleFunc("/api/zones/{id}/enable", s.handleZoneEnable)
	mux.HandleFunc("/api/zones/{id}/disable", s.handleZoneDisable)
	mux.HandleFunc("/api/zones/{id}/test", s.handleZoneTest)

	mux.HandleFunc("/api/cameras", s.handleCameras)
	mux.HandleFunc("/api/cameras/{id}", s.handleCamera)
	mux.HandleFunc("/api/cameras/{id}/live", s.handleCameraLive)

	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/state", s.handleState)
	if s.opts.Events != nil {
		mux.Handle("/api/events", s.opts.Events)
	}

	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	return s.corsMiddleware(mux)
}

func (s *Server) Start() error {
	snap := s.cfg.Get()
	addr := fmt.Sprintf("%s:%d", snap.Server.Host, snap.Server.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting API server")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// CORS middleware for browser clients
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps package errors to HTTP status codes.
func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, zones.ErrNotFound),
		errors.Is(err, surveillance.ErrCameraNotFound),
		errors.Is(err, surveillance.ErrNotRunning):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, zones.ErrInvalidZone),
		errors.Is(err, surveillance.ErrInvalidCamera),
		errors.Is(err, surveillance.ErrCameraExists):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// persist saves state after a successful mutation. A failed save is logged,
// the mutation itself stands.
func (s *Server) persist() {
	if err := s.mgr.Persist(); err != nil {
		log.Error().Err(err).Msg("Failed to persist state")
	}
}

// handleHealth godoc
// @Summary Liveness probe
// @Tags System
// @Produce plain
// @Success 200 {string} string "OK"
// @Router /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleStatus godoc
// @Summary Get detector, camera and dispatch status
// @Tags System
// @Produce json
// @Success 200 {object} surveillance.Status
// @Router /api/status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	respondJSON(w, http.StatusOK, s.mgr.Status())
}

// configUpdate is the subset of the configuration that can change at runtime.
type configUpdate struct {
	LogLevel *string               `json:"log_level"`
	Motion   *config.MotionConfig  `json:"motion"`
	Trigger  *config.TriggerConfig `json:"trigger"`
	Health   *config.HealthConfig  `json:"health"`
}

// handleConfig godoc
// @Summary Get or update configuration
// @Description PUT accepts log_level, motion, trigger and health sections. Motion tuning applies from the next cycle.
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} config.Snapshot
// @Failure 400 {object} map[string]string
// @Router /api/config [get]
// @Router /api/config [put]
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, s.cfg.Get())

	case http.MethodPut:
		var upd configUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}

		next := s.cfg.Get()
		if upd.LogLevel != nil {
			next.LogLevel = *upd.LogLevel
		}
		if upd.Motion != nil {
			next.Motion = *upd.Motion
		}
		if upd.Trigger != nil {
			next.Trigger = *upd.Trigger
		}
		if upd.Health != nil {
			next.Health = *upd.Health
		}
		if err := next.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.cfg.Update(func(c *config.Config) {
			c.LogLevel = next.LogLevel
			c.Motion = next.Motion
			c.Trigger = next.Trigger
			c.Health = next.Health
		})
		zerolog.SetGlobalLevel(logger.ParseLevel(next.LogLevel))

		if s.opts.ConfigPath != "" {
			if err := s.cfg.Save(s.opts.ConfigPath); err != nil {
				log.Warn().Err(err).Str("path", s.opts.ConfigPath).Msg("Failed to save config")
			}
		}
		respondJSON(w, http.StatusOK, s.cfg.Get())

	default:
		methodNotAllowed(w)
	}
}

// handleZones godoc
// @Summary List or create trigger zones
// @Tags Zones
// @Accept json
// @Produce json
// @Param zone body zones.Zone false "Zone to create"
// @Success 200 {array} zones.Zone
// @Success 201 {object} zones.Zone
// @Failure 400 {object} map[string]string
// @Router /api/zones [get]
// @Router /api/zones [post]
func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, s.zones.Snapshot())

	case http.MethodPost:
		var z zones.Zone
		if err := json.NewDecoder(r.Body).Decode(&z); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		id, err := s.zones.Add(z)
		if err != nil {
			respondErr(w, err)
			return
		}
		s.persist()

		created, err := s.zones.Get(id)
		if err != nil {
			respondErr(w, err)
			return
		}
		log.Info().Str("zone", id).Str("command", created.Command).Msg("Zone created")
		respondJSON(w, http.StatusCreated, created)

	default:
		methodNotAllowed(w)
	}
}

// handleZone godoc
// @Summary Get, update or delete a zone
// @Tags Zones
// @Accept json
// @Produce json
// @Param id path string true "Zone ID"
// @Param update body zones.Update false "Fields to change"
// @Success 200 {object} zones.Zone
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/zones/{id} [get]
// @Router /api/zones/{id} [put]
// @Router /api/zones/{id} [delete]
func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		z, err := s.zones.Get(id)
		if err != nil {
			respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, z)

	case http.MethodPut:
		var upd zones.Update
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if err := s.zones.Update(id, upd); err != nil {
			respondErr(w, err)
			return
		}
		s.persist()
		z, _ := s.zones.Get(id)
		respondJSON(w, http.StatusOK, z)

	case http.MethodDelete:
		if err := s.zones.Remove(id); err != nil {
			respondErr(w, err)
			return
		}
		s.persist()
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) setZoneEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := r.PathValue("id")
	if err := s.zones.SetEnabled(id, enabled); err != nil {
		respondErr(w, err)
		return
	}
	s.persist()

	status := "disabled"
	if enabled {
		status = "enabled"
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": status,
		"id":     id,
		"state":  string(s.mgr.State()),
	})
}

// handleZoneEnable godoc
// @Summary Arm a zone
// @Tags Zones
// @Param id path string true "Zone ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/zones/{id}/enable [post]
func (s *Server) handleZoneEnable(w http.ResponseWriter, r *http.Request) {
	s.setZoneEnabled(w, r, true)
}

// handleZoneDisable godoc
// @Summary Disarm a zone
// @Tags Zones
// @Param id path string true "Zone ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/zones/{id}/disable [post]
func (s *Server) handleZoneDisable(w http.ResponseWriter, r *http.Request) {
	s.setZoneEnabled(w, r, false)
}

// handleZoneTest godoc
// @Summary Send a zone's command now
// @Tags Zones
// @Param id path string true "Zone ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/zones/{id}/test [post]
func (s *Server) handleZoneTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	z, err := s.zones.Get(r.PathValue("id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := s.dispatcher.Fire(r.Context(), z); err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("command failed: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent", "id": z.ID})
}

// handleCameras godoc
// @Summary List or add cameras
// @Description New cameras are enabled unless "enabled": false is sent.
// @Tags Cameras
// @Accept json
// @Produce json
// @Param camera body config.CameraConfig false "Camera to add"
// @Success 200 {array} config.CameraConfig
// @Success 201 {object} config.CameraConfig
// @Failure 400 {object} map[string]string
// @Router /api/cameras [get]
// @Router /api/cameras [post]
func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, s.mgr.Cameras())

	case http.MethodPost:
		cam := config.CameraConfig{Enabled: true}
		if err := json.NewDecoder(r.Body).Decode(&cam); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		added, err := s.mgr.AddCamera(cam)
		if err != nil {
			respondErr(w, err)
			return
		}
		s.persist()
		respondJSON(w, http.StatusCreated, added)

	default:
		methodNotAllowed(w)
	}
}

// handleCamera godoc
// @Summary Get or remove a camera
// @Tags Cameras
// @Param id path string true "Camera ID"
// @Success 200 {object} config.CameraConfig
// @Failure 404 {object} map[string]string
// @Router /api/cameras/{id} [get]
// @Router /api/cameras/{id} [delete]
func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		for _, c := range s.mgr.Cameras() {
			if c.ID == id {
				respondJSON(w, http.StatusOK, c)
				return
			}
		}
		respondErr(w, fmt.Errorf("%w: %s", surveillance.ErrCameraNotFound, id))

	case http.MethodDelete:
		if err := s.mgr.RemoveCamera(id); err != nil {
			respondErr(w, err)
			return
		}
		s.persist()
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})

	default:
		methodNotAllowed(w)
	}
}

// handleCameraLive godoc
// @Summary Stream live MJPEG video
// @Tags Cameras
// @Param id path string true "Camera ID"
// @Produce multipart/x-mixed-replace
// @Success 200
// @Failure 404 {object} map[string]string
// @Router /api/cameras/{id}/live [get]
func (s *Server) handleCameraLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stream, err := s.mgr.Live(r.PathValue("id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	stream.ServeHTTP(w, r)
}

// handleHistory godoc
// @Summary Recent trigger history
// @Tags System
// @Produce json
// @Param limit query int false "Maximum entries" default(100)
// @Success 200 {array} events.Event
// @Failure 404 {object} map[string]string
// @Router /api/history [get]
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.opts.History == nil {
		respondError(w, http.StatusNotFound, "history requires the sqlite storage driver")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.opts.History.Recent(r.Context(), limit)
	if err != nil {
		respondErr(w, err)
		return
	}
	if entries == nil {
		entries = []events.Event{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// handleState godoc
// @Summary Clear all saved zones and cameras
// @Tags System
// @Success 200 {object} map[string]string
// @Router /api/state [delete]
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.mgr.ClearState(); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
