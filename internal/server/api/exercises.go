// Package api provides HTTP API handlers for the repcount service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/repcount/internal/app"
	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/store"
)

// maxBody bounds request bodies accepted by the API.
const maxBody = 1 << 20

// ExerciseHandler handles HTTP requests for exercise resources.
// Listing shows the whole catalog; changes are persisted in the store.
type ExerciseHandler struct {
	session *app.Session
}

// NewExerciseHandler creates a new ExerciseHandler for the given session.
func NewExerciseHandler(s *app.Session) *ExerciseHandler {
	return &ExerciseHandler{session: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *ExerciseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/exercises or /api/exercises/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/exercises")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type exerciseResponse struct {
	ID        string          `json:"id,omitempty"`
	Source    string          `json:"source"`
	Config    exercise.Config `json:"config"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

type listExercisesResponse struct {
	Exercises []exerciseResponse `json:"exercises"`
}

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// storedResponse describes a stored exercise, including its ID and timestamps.
func storedResponse(e *store.Exercise) exerciseResponse {
	return exerciseResponse{
		ID:        e.ID,
		Source:    exercise.SourceStore,
		Config:    e.Config,
		CreatedAt: e.CreatedAt.Format(timeLayout),
		UpdatedAt: e.UpdatedAt.Format(timeLayout),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeConfigError reports every validation problem of an exercise definition.
func writeConfigError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: "Invalid exercise definition"}
	var cfgErr *exercise.ConfigError
	if errors.As(err, &cfgErr) {
		for _, p := range cfgErr.Problems() {
			resp.Problems = append(resp.Problems, p.Error())
		}
	} else {
		resp.Problems = []string{err.Error()}
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// decodeExercise reads and validates a JSON definition from the request body.
func decodeExercise(r *http.Request) (exercise.Config, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return exercise.Config{}, err
	}
	return exercise.DecodeJSON(data)
}

// list handles GET /api/exercises and returns the whole catalog.
func (h *ExerciseHandler) list(w http.ResponseWriter, r *http.Request) {
	stored := make(map[string]*store.Exercise)
	if st := h.session.Store(); st != nil {
		exercises, err := st.Exercises().List()
		if err != nil {
			log.WithError(err).Error("failed to list stored exercises")
			writeError(w, http.StatusInternalServerError, "Failed to list exercises")
			return
		}
		for _, e := range exercises {
			stored[e.Config.Name] = e
		}
	}

	// Only entries the catalog took from the store carry an ID
	entries := h.session.Catalog().List()
	response := listExercisesResponse{
		Exercises: make([]exerciseResponse, 0, len(entries)),
	}
	for _, e := range entries {
		if s, ok := stored[e.Config.Name]; ok && e.Source == exercise.SourceStore {
			response.Exercises = append(response.Exercises, storedResponse(s))
			continue
		}
		response.Exercises = append(response.Exercises, exerciseResponse{Source: e.Source, Config: e.Config})
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/exercises/{id}. The id is either a stored exercise ID
// or the name of a catalog entry.
func (h *ExerciseHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	if st := h.session.Store(); st != nil {
		e, err := st.Exercises().GetByID(id)
		if err == nil {
			writeJSON(w, http.StatusOK, storedResponse(e))
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "Failed to get exercise")
			return
		}
	}

	// Fall back to built-in and discovered exercises by name
	for _, e := range h.session.Catalog().List() {
		if e.Config.Name == id {
			writeJSON(w, http.StatusOK, exerciseResponse{Source: e.Source, Config: e.Config})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Exercise not found")
}

// create handles POST /api/exercises and stores a new exercise definition.
func (h *ExerciseHandler) create(w http.ResponseWriter, r *http.Request) {
	st := h.session.Store()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "Exercise store not configured")
		return
	}

	cfg, err := decodeExercise(r)
	if err != nil {
		writeConfigError(w, err)
		return
	}

	// Persist first, then make it available to the session
	e := &store.Exercise{Config: cfg}
	if err := st.Exercises().Create(e); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Exercise already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create exercise")
		return
	}

	if err := h.session.ApplyExercise(e.Config); err != nil {
		log.WithError(err).WithField("exercise", cfg.Name).Error("failed to apply exercise")
	}

	writeJSON(w, http.StatusCreated, storedResponse(e))
}

// update handles PUT /api/exercises/{id} and replaces a stored definition.
func (h *ExerciseHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	st := h.session.Store()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "Exercise store not configured")
		return
	}

	e, err := st.Exercises().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get exercise")
		return
	}

	cfg, err := decodeExercise(r)
	if err != nil {
		writeConfigError(w, err)
		return
	}

	previous := e.Config.Name
	e.Config = cfg
	if err := st.Exercises().Update(e); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Exercise already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update exercise")
		return
	}

	if err := h.session.ApplyExercise(cfg); err != nil {
		log.WithError(err).WithField("exercise", cfg.Name).Error("failed to apply exercise")
	}
	// A rename leaves the old name behind in the catalog
	if previous != cfg.Name {
		if err := h.session.ForgetExercise(previous); err != nil {
			log.WithError(err).WithField("exercise", previous).Error("failed to forget renamed exercise")
		}
	}

	writeJSON(w, http.StatusOK, storedResponse(e))
}

// delete handles DELETE /api/exercises/{id} and removes a stored definition.
func (h *ExerciseHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	st := h.session.Store()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "Exercise store not configured")
		return
	}

	// The name is needed to update the catalog afterwards
	e, err := st.Exercises().GetByID(id)
	if err == nil {
		err = st.Exercises().Delete(id)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete exercise")
		return
	}

	if err := h.session.ForgetExercise(e.Config.Name); err != nil {
		log.WithError(err).WithField("exercise", e.Config.Name).Error("failed to forget exercise")
	}

	w.WriteHeader(http.StatusNoContent)
}
