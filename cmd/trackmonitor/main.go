// Command trackmonitor replays a recorded measurement in real time (or
// faster) and serves its audio over HTTP and WebRTC with the current
// subtitle cue as JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/fieldlog/trackexport/internal/audio"
	"github.com/fieldlog/trackexport/internal/config"
	"github.com/fieldlog/trackexport/internal/download"
	"github.com/fieldlog/trackexport/internal/geocode"
	"github.com/fieldlog/trackexport/internal/logging"
	"github.com/fieldlog/trackexport/internal/measurement"
	"github.com/fieldlog/trackexport/internal/notify"
	"github.com/fieldlog/trackexport/internal/replay"
	"github.com/fieldlog/trackexport/internal/stream"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.FileEnv), "YAML config file")
	input := flag.String("input", "", "measurement dump (JSON Lines)")
	speed := flag.Float64("speed", 0, "replay speed (default from config, 1 = real time)")
	port := flag.Int("port", 0, "HTTP port (default from config)")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trackmonitor: %v\n", err)
		os.Exit(2)
	}
	if *speed > 0 {
		cfg.Speed = *speed
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if *input == "" {
		fmt.Fprintln(os.Stderr, "trackmonitor: --input is required")
		os.Exit(2)
	}

	log := logging.Must(cfg.LogLevel)
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracks, err := download.ParseTracks(cfg.TrackList())
	if err != nil {
		log.Fatalw("invalid tracks", "error", err)
	}
	// Only PCM can be played live.
	tracks.AAC, tracks.PCM = false, true

	jsrc, err := measurement.OpenJSONL(*input)
	if err != nil {
		log.Fatalw("open measurement", "error", err)
	}
	pacer, err := replay.NewPacer(measurement.Filter(jsrc, tracks.DataNames()...), cfg.Speed, replay.WithLogger(log))
	if err != nil {
		log.Fatalw("replay", "error", err)
	}
	defer pacer.Close()

	sessionID := uuid.NewString()
	log = log.With("session", sessionID)
	log.Infow("trackmonitor starting up", "input", *input, "speed", cfg.Speed, "tracks", tracks.String())

	// Audio pipeline: resampled blocks -> 20 ms frames at replay speed.
	pipeline := audio.NewPipeline(cfg.Speed)
	go pipeline.Run(ctx)

	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, pipeline.Frames())

	live := stream.NewLiveSink(ctx, pipeline, audio.SampleRate)
	sinks := []download.Sink{live}
	if cfg.MQTTBroker != "" {
		pub, err := notify.Connect(ctx, notify.Options{Broker: cfg.MQTTBroker, TopicPrefix: cfg.MQTTTopicPrefix}, sessionID, log)
		if err != nil {
			log.Warnw("mqtt unavailable, cues will not be published", "error", err)
		} else {
			sinks = append(sinks, pub)
		}
	}

	var geocoder geocode.Geocoder
	if cfg.GMapAPIKey != "" {
		geocoder = geocode.NewGoogleGeocoder(cfg.GMapAPIKey, geocode.WithLanguage(cfg.GeocodeLanguage), geocode.WithLogger(log))
	}

	svc := download.NewService(download.Config{
		Tracks:      tracks,
		SampleRate:  audio.SampleRate,
		InputRate:   cfg.InputRate,
		QuantMeters: cfg.QuantMeters,
		SessionID:   sessionID,
	}, geocoder, log, sinks...)

	webrtcHandler := stream.NewWebRTCHandler(broadcaster, log)
	defer webrtcHandler.Close()

	mon := &monitor{
		sessionID:   sessionID,
		pacer:       pacer,
		live:        live,
		broadcaster: broadcaster,
		webrtc:      webrtcHandler,
	}

	go func() {
		res, err := svc.Run(ctx, pacer)
		mon.finish(err)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("replay failed", "error", err)
			return
		}
		log.Infow("replay finished", "duration_s", res.Duration, "segments", res.Counts.Segments)
	}()

	mux := http.NewServeMux()
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster,
		stream.WithFFmpeg(cfg.FFmpegPath),
		stream.WithHTTPLogger(log),
	))
	mux.Handle("/offer", webrtcHandler)
	mux.HandleFunc("/api/status", mon.handleStatus)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		log.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Infow("trackmonitor live", "addr", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatalw("http server error", "error", err)
	}
}
