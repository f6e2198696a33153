package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/fieldlog/trackexport/internal/replay"
	"github.com/fieldlog/trackexport/internal/stream"
)

// monitor holds what /api/status reports.
type monitor struct {
	sessionID   string
	pacer       *replay.Pacer
	live        *stream.LiveSink
	broadcaster *stream.Broadcaster
	webrtc      *stream.WebRTCHandler

	mu      sync.Mutex
	done    bool
	lastErr string
}

func (m *monitor) finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = true
	if err != nil {
		m.lastErr = err.Error()
	}
}

func (m *monitor) status() map[string]any {
	released, pos := m.pacer.Status()
	live := m.live.Status()

	m.mu.Lock()
	done, lastErr := m.done, m.lastErr
	m.mu.Unlock()

	webrtcPeers := 0
	if m.webrtc != nil {
		webrtcPeers = m.webrtc.PeerCount()
	}

	return map[string]any{
		"session_id":       m.sessionID,
		"speed":            m.pacer.Speed(),
		"position":         pos.Seconds(),
		"released":         released,
		"queue_size":       m.pacer.QueueLen(),
		"cue":              live.Cue,
		"has_cue":          live.HasCue,
		"segments":         live.Segments,
		"audio_seconds":    live.AudioSeconds,
		"video_frames":     live.VideoFrames,
		"frames":           m.broadcaster.Frames(),
		"http_listeners":   m.broadcaster.ListenerCount(),
		"webrtc_listeners": webrtcPeers,
		"done":             done,
		"error":            lastErr,
	}
}

func (m *monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(m.status())
}
