package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ayusman/repcount/internal/app"
	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/pose"
)

// SessionHandler exposes the rep counting session.
type SessionHandler struct {
	session *app.Session
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(s *app.Session) *SessionHandler {
	return &SessionHandler{session: s}
}

type selectExerciseRequest struct {
	Name string `json:"name"`
}

// Snapshot handles GET /api/session.
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Reset handles POST /api/session/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Reset())
}

// SelectExercise handles PUT /api/session/exercise.
func (h *SessionHandler) SelectExercise(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req selectExerciseRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	snap, err := h.session.SelectExercise(req.Name)
	if err != nil {
		if errors.Is(err, exercise.ErrUnknownExercise) {
			writeError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to select exercise")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Frames handles POST /api/frames. The body is one pose frame; the response
// is what the tick produced.
func (h *SessionHandler) Frames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var frame pose.Frame
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&frame); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid frame")
		return
	}

	writeJSON(w, http.StatusOK, h.session.Process(frame))
}
