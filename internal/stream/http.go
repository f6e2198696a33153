package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/fieldlog/trackexport/internal/audio"
)

// HTTPHandler serves the live audio track as a chunked MP3 stream.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	ffmpeg      string
	name        string
	log         *zap.SugaredLogger
}

// HTTPOption configures an HTTPHandler.
type HTTPOption func(*HTTPHandler)

// WithFFmpeg sets the ffmpeg binary used for encoding.
func WithFFmpeg(path string) HTTPOption {
	return func(h *HTTPHandler) {
		if path != "" {
			h.ffmpeg = path
		}
	}
}

// WithStreamName sets the ICY-Name announced to players.
func WithStreamName(name string) HTTPOption {
	return func(h *HTTPHandler) { h.name = name }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(log *zap.SugaredLogger) HTTPOption {
	return func(h *HTTPHandler) { h.log = log }
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		broadcaster: b,
		ffmpeg:      "ffmpeg",
		name:        "trackexport monitor",
		log:         zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// encoderArgs returns the ffmpeg arguments for mono s16le in, MP3 out.
func encoderArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "128k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, h.ffmpeg, encoderArgs()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.log.Errorw("http stream: stdin pipe", "error", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.log.Errorw("http stream: stdout pipe", "error", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		h.log.Errorw("http stream: ffmpeg start", "ffmpeg", h.ffmpeg, "error", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	defer cmd.Wait()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", h.name)

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	h.log.Infow("http listener connected", "remote", r.RemoteAddr, "listeners", h.broadcaster.ListenerCount())
	defer h.log.Infow("http listener disconnected", "remote", r.RemoteAddr)

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.done:
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				cancel()
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				h.log.Warnw("http stream: ffmpeg read", "error", err)
			}
			break
		}
	}
}
