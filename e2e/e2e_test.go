package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/repcount/internal/app"
	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/feed"
	"github.com/ayusman/repcount/internal/pose"
	"github.com/ayusman/repcount/internal/server"
	"github.com/ayusman/repcount/internal/store"
	"github.com/ayusman/repcount/internal/telemetry"
)

// steadyRep is one push-up slow enough for the built-in five frame window.
var steadyRep = []float64{
	170, 170, 170, 168, 166, 164, 162, 160, 150, 140, 130, 120, 110, 100, 95,
	100, 110, 120, 130, 140, 150, 160, 165, 170, 170,
}

// writeRecording renders angles as push-up frames 33ms apart into an NDJSON file.
func writeRecording(t *testing.T, path string, angles []float64) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create recording: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.WriteString("# synthetic push-up session\n")
	enc := json.NewEncoder(w)
	for i, a := range angles {
		frame := pose.PushUpPose(a)
		frame.Timestamp = int64(i+1) * 33
		if err := enc.Encode(frame); err != nil {
			t.Fatalf("encode frame: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush recording: %v", err)
	}
}

func TestE2E_RecordingThroughServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()

	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	metrics, reg := telemetry.NewTestManagerAndRegistry()
	sess, err := app.New(app.Config{Store: s, Telemetry: metrics})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	ts := httptest.NewServer(server.New(server.Config{Session: sess, Gatherer: reg}))
	defer ts.Close()

	client := ts.Client()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	// two reps with an occlusion in between
	var angles []float64
	angles = append(angles, steadyRep...)
	angles = append(angles, steadyRep...)
	recording := filepath.Join(tmpDir, "session.ndjson")
	writeRecording(t, recording, angles)

	// the occluded frame has no landmarks at all
	f, _ := os.OpenFile(recording, os.O_APPEND|os.O_WRONLY, 0644)
	f.WriteString(`{"timestamp": 5000, "landmarks": []}` + "\n")
	f.Close()

	t.Run("Replay", func(t *testing.T) {
		src, err := feed.Open(recording)
		if err != nil {
			t.Fatalf("feed.Open() error = %v", err)
		}
		defer src.Close()

		if err := sess.Run(context.Background(), src); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	})

	t.Run("EventsStream", func(t *testing.T) {
		var reps []int
		var last exercise.Phase
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			var msg struct {
				Type string    `json:"type"`
				Data app.Event `json:"data"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("read event: %v", err)
			}
			if msg.Type != "tick" {
				continue
			}
			if msg.Data.Rep != nil {
				reps = append(reps, msg.Data.Rep.Count)
			}
			last = msg.Data.Phase
			if last == exercise.NotVisible {
				break
			}
		}

		if len(reps) != 2 || reps[0] != 1 || reps[1] != 2 {
			t.Errorf("rep counts = %v, want [1 2]", reps)
		}
	})

	t.Run("SessionSnapshot", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/session")
		if err != nil {
			t.Fatalf("GET /api/session error = %v", err)
		}
		defer resp.Body.Close()

		var snap app.Snapshot
		json.NewDecoder(resp.Body).Decode(&snap)

		if snap.Stats.ValidReps != 2 || snap.Stats.TotalAttempts != 2 {
			t.Errorf("stats = %+v, want 2 valid reps in 2 attempts", snap.Stats)
		}
		if snap.Phase != exercise.NotVisible {
			t.Errorf("phase = %s, want %s", snap.Phase, exercise.NotVisible)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics error = %v", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		want := `repcount_test_reps{exercise="pushup",result="valid"} 2`
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	})

	t.Run("ResetOverHTTP", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/session/reset", "application/json", nil)
		if err != nil {
			t.Fatalf("POST /api/session/reset error = %v", err)
		}
		resp.Body.Close()

		if got := sess.Snapshot().Stats.ValidReps; got != 0 {
			t.Errorf("valid reps after reset = %d, want 0", got)
		}
	})

	t.Run("APIStillWorks", func(t *testing.T) {
		resp, _ := client.Get(ts.URL + "/api/health")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("health check failed after replay")
		}
		resp.Body.Close()
	})
}

func TestE2E_CalibratedExerciseSurvivesRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	dbPath := filepath.Join(t.TempDir(), "data.db")

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	sess, _ := app.New(app.Config{Store: s})
	ts := httptest.NewServer(server.New(server.Config{Session: sess}))

	cfg := exercise.Squat()
	cfg.Name = "deep_squat"
	cfg.Thresholds.Bottom = 80
	body, _ := json.Marshal(cfg)

	resp, err := ts.Client().Post(ts.URL+"/api/exercises", "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("create exercise error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/session/exercise", strings.NewReader(`{"name": "deep_squat"}`))
	resp, _ = ts.Client().Do(req)
	resp.Body.Close()

	ts.Close()
	s.Close()

	// restart on the same database
	s, err = store.New(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	restarted, err := app.New(app.Config{Store: s})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	snap := restarted.Snapshot()
	if snap.Exercise != "deep_squat" {
		t.Errorf("exercise after restart = %s, want deep_squat", snap.Exercise)
	}
	got, err := restarted.Catalog().Get("deep_squat")
	if err != nil || got.Thresholds.Bottom != 80 {
		t.Errorf("deep_squat bottom = %v (%v), want 80", got.Thresholds.Bottom, err)
	}
}
