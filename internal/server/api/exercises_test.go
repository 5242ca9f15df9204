package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/repcount/internal/app"
	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/store"
)

// newTestSession creates a session backed by a store in a temporary directory.
func newTestSession(t *testing.T) (*app.Session, *store.Store) {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	sess, err := app.New(app.Config{Store: s})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return sess, s
}

func plank() exercise.Config {
	cfg := exercise.PushUp()
	cfg.Name = "plank_pushup"
	cfg.Title = "Plank push-ups"
	cfg.Kind = exercise.KindGeneric
	return cfg
}

func body(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(data)
}

func do(h http.Handler, method, path string, b *bytes.Buffer) *httptest.ResponseRecorder {
	var req *http.Request
	if b == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, b)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestExerciseHandler_List(t *testing.T) {
	sess, s := newTestSession(t)
	handler := NewExerciseHandler(sess)

	stored := &store.Exercise{Config: plank()}
	require.NoError(t, s.Exercises().Create(stored))
	require.NoError(t, sess.ApplyExercise(stored.Config))

	rec := do(handler, http.MethodGet, "/api/exercises", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response listExercisesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.Len(t, response.Exercises, 3)

	byName := make(map[string]exerciseResponse)
	for _, e := range response.Exercises {
		byName[e.Config.Name] = e
	}
	assert.Equal(t, exercise.SourceBuiltin, byName["pushup"].Source)
	assert.Empty(t, byName["pushup"].ID)
	assert.Equal(t, exercise.SourceStore, byName["plank_pushup"].Source)
	assert.Equal(t, stored.ID, byName["plank_pushup"].ID)
	assert.NotEmpty(t, byName["plank_pushup"].CreatedAt)
}

func TestExerciseHandler_Get(t *testing.T) {
	sess, s := newTestSession(t)
	handler := NewExerciseHandler(sess)

	stored := &store.Exercise{Config: plank()}
	require.NoError(t, s.Exercises().Create(stored))

	t.Run("by stored id", func(t *testing.T) {
		rec := do(handler, http.MethodGet, "/api/exercises/"+stored.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var response exerciseResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, "plank_pushup", response.Config.Name)
	})

	t.Run("by catalog name", func(t *testing.T) {
		rec := do(handler, http.MethodGet, "/api/exercises/squat", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var response exerciseResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, exercise.KindSquat, response.Config.Kind)
		assert.Equal(t, exercise.SourceBuiltin, response.Source)
	})

	t.Run("not found", func(t *testing.T) {
		rec := do(handler, http.MethodGet, "/api/exercises/nonexistent", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestExerciseHandler_Create(t *testing.T) {
	sess, s := newTestSession(t)
	handler := NewExerciseHandler(sess)

	rec := do(handler, http.MethodPost, "/api/exercises", body(t, plank()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var response exerciseResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.NotEmpty(t, response.ID)

	stored, err := s.Exercises().GetByID(response.ID)
	require.NoError(t, err)
	assert.Equal(t, "plank_pushup", stored.Config.Name)

	// the catalog sees it right away
	_, err = sess.Catalog().Get("plank_pushup")
	assert.NoError(t, err)

	t.Run("duplicate", func(t *testing.T) {
		rec := do(handler, http.MethodPost, "/api/exercises", body(t, plank()))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid definition lists problems", func(t *testing.T) {
		broken := plank()
		broken.Name = "broken"
		broken.Phases = nil
		broken.Thresholds.Top = 10

		rec := do(handler, http.MethodPost, "/api/exercises", body(t, broken))
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var response errorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.GreaterOrEqual(t, len(response.Problems), 2)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		rec := do(handler, http.MethodPost, "/api/exercises", bytes.NewBufferString("{oops"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestExerciseHandler_Update(t *testing.T) {
	sess, s := newTestSession(t)
	handler := NewExerciseHandler(sess)

	stored := &store.Exercise{Config: plank()}
	require.NoError(t, s.Exercises().Create(stored))

	updated := plank()
	updated.Thresholds.Bottom = 80
	rec := do(handler, http.MethodPut, "/api/exercises/"+stored.ID, body(t, updated))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cfg, err := sess.Catalog().Get("plank_pushup")
	require.NoError(t, err)
	assert.Equal(t, 80.0, cfg.Thresholds.Bottom)

	t.Run("rename drops the old name", func(t *testing.T) {
		renamed := plank()
		renamed.Name = "wide_pushup"
		rec := do(handler, http.MethodPut, "/api/exercises/"+stored.ID, body(t, renamed))
		require.Equal(t, http.StatusOK, rec.Code)

		_, err := sess.Catalog().Get("plank_pushup")
		assert.ErrorIs(t, err, exercise.ErrUnknownExercise)
		_, err = sess.Catalog().Get("wide_pushup")
		assert.NoError(t, err)
	})

	t.Run("not found", func(t *testing.T) {
		rec := do(handler, http.MethodPut, "/api/exercises/nonexistent", body(t, updated))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestExerciseHandler_Delete(t *testing.T) {
	sess, s := newTestSession(t)
	handler := NewExerciseHandler(sess)

	calibrated := exercise.Squat()
	calibrated.Thresholds.Bottom = 85
	stored := &store.Exercise{Config: calibrated}
	require.NoError(t, s.Exercises().Create(stored))
	require.NoError(t, sess.ApplyExercise(calibrated))

	rec := do(handler, http.MethodDelete, "/api/exercises/"+stored.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := s.Exercises().GetByID(stored.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// the built-in squat is back
	cfg, err := sess.Catalog().Get("squat")
	require.NoError(t, err)
	assert.Equal(t, 100.0, cfg.Thresholds.Bottom)

	rec = do(handler, http.MethodDelete, "/api/exercises/"+stored.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExerciseHandler_WithoutStore(t *testing.T) {
	sess, err := app.New(app.Config{})
	require.NoError(t, err)
	handler := NewExerciseHandler(sess)

	rec := do(handler, http.MethodGet, "/api/exercises", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(handler, http.MethodPost, "/api/exercises", body(t, plank()))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExerciseHandler_MethodNotAllowed(t *testing.T) {
	sess, _ := newTestSession(t)
	handler := NewExerciseHandler(sess)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPatch, "/api/exercises"},
		{http.MethodDelete, "/api/exercises"},
		{http.MethodPost, "/api/exercises/some-id"},
	}
	for _, tt := range tests {
		rec := do(handler, tt.method, tt.path, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, http.StatusMethodNotAllowed, rec.Code)
		}
	}
}
