package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/satindergrewal/songwheel/internal/musician"
	"github.com/satindergrewal/songwheel/internal/score"
	"github.com/satindergrewal/songwheel/internal/session"
	"github.com/satindergrewal/songwheel/internal/stream"
	"github.com/satindergrewal/songwheel/internal/wheel"
)

const maxScoreBytes = 1 << 20

type server struct {
	manager *session.Manager
	frames  *stream.Frames
	events  *stream.Broadcaster[musician.Actuation]
	webrtc  *stream.WebRTCHandler
	baseKey int // MIDI key of pick 1
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleTestRun)

	// Audio streams
	mux.Handle("/stream", stream.NewHTTPHandler(s.frames, "songwheel"))
	mux.Handle("/offer", s.webrtc)
	mux.Handle("/events", stream.NewEventsHandler(s.events, "actuation"))

	// API endpoints
	mux.HandleFunc("/api/play", s.handlePlay)
	mux.HandleFunc("/api/play/midi", s.handlePlayMIDI)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/status", s.handleStatus)

	return logRequests(mux)
}

// handleTestRun plays the built-in test score and replies once it is done.
func (s *server) handleTestRun(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "GET required", http.StatusMethodNotAllowed)
		return
	}

	done := make(chan session.Summary, 1)
	if _, err := s.manager.Start(score.NewTestQueue(), 0, func(sum session.Summary) { done <- sum }); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	select {
	case <-done:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("complete"))
	case <-r.Context().Done():
		log.Printf("Test run client went away; session keeps playing")
	}
}

func (s *server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Groups []score.NoteGroup `json:"groups"`
		BPM    float64           `json:"bpm"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScoreBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Groups) == 0 {
		http.Error(w, "groups required", http.StatusBadRequest)
		return
	}
	q, err := score.FromGroups(req.Groups)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.start(w, q, req.BPM)
}

// handlePlayMIDI plays a Standard MIDI File posted as the request body. The
// bpm query parameter overrides the file's tempo.
func (s *server) handlePlayMIDI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	sc, err := score.ReadMIDI(http.MaxBytesReader(w, r.Body, maxScoreBytes), s.baseKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	bpm := sc.BPM
	if v := r.URL.Query().Get("bpm"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			http.Error(w, "invalid bpm", http.StatusBadRequest)
			return
		}
		bpm = f
	}
	q, err := sc.Queue()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.start(w, q, bpm)
}

func (s *server) start(w http.ResponseWriter, q *score.Queue, bpm float64) {
	size := q.Len()
	if _, err := s.manager.Start(q, bpm, nil); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, session.ErrBusy):
			status = http.StatusConflict
		case errors.Is(err, wheel.ErrTempo):
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":         true,
		"queue_size": size,
		"bpm":        s.manager.Status().BPM,
	})
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if err := s.manager.Stop(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session":          s.manager.Status(),
		"http_listeners":   s.frames.ListenerCount(),
		"webrtc_listeners": s.webrtc.PeerCount(),
		"event_listeners":  s.events.ListenerCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// logRequests logs one line per request once it has been served.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%v)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}
