// Command trackexport rebuilds the audio, video and subtitle tracks of a
// recorded vehicle measurement and optionally muxes them into an MP4.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldlog/trackexport/internal/download"
	"github.com/fieldlog/trackexport/internal/geocode"
	"github.com/fieldlog/trackexport/internal/logging"
	"github.com/fieldlog/trackexport/internal/measurement"
	"github.com/fieldlog/trackexport/internal/media"
	"github.com/fieldlog/trackexport/internal/notify"
	"github.com/fieldlog/trackexport/internal/summary"
)

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "trackexport: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(opts.cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trackexport: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, log); err != nil {
		log.Errorw("export failed", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

// openSource opens the dump named by opts, "-" meaning stdin.
func openSource(opts options) (*measurement.JSONLSource, error) {
	var jopts []measurement.JSONLOption
	if !opts.basetime.IsZero() {
		jopts = append(jopts, measurement.WithBasetime(opts.basetime))
	}
	if opts.input == "-" {
		return measurement.NewJSONLSource(os.Stdin, jopts...), nil
	}
	return measurement.OpenJSONL(opts.input, jopts...)
}

func run(ctx context.Context, opts options, log *zap.SugaredLogger) error {
	cfg := opts.cfg
	tracks, err := download.ParseTracks(cfg.TrackList())
	if err != nil {
		return err
	}

	jsrc, err := openSource(opts)
	if err != nil {
		return err
	}
	defer jsrc.Close()
	src := measurement.Between(measurement.Filter(jsrc, tracks.DataNames()...), opts.start, opts.end)

	sessionID := uuid.NewString()
	log = log.With("session", sessionID)
	log.Infow("processing",
		"input", opts.input,
		"outdir", cfg.OutputDir,
		"tracks", tracks.String(),
		"fps", cfg.FPS,
		"mux", cfg.Mux,
	)

	files, err := download.NewFileSink(cfg.OutputDir, tracks, download.FileSinkOptions{
		SampleRate:     cfg.SampleRate,
		SubtitleFormat: cfg.SubtitleFormat,
	})
	if err != nil {
		return err
	}
	sinks := []download.Sink{files}

	if cfg.MQTTBroker != "" && tracks.Subtitle {
		pub, err := notify.Connect(ctx, notify.Options{
			Broker:      cfg.MQTTBroker,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, sessionID, log)
		if err != nil {
			// Cue publishing is best effort.
			log.Warnw("mqtt unavailable, cues will not be published", "error", err)
		} else {
			sinks = append(sinks, pub)
			log.Infow("publishing cues", "topic", pub.Topic())
		}
	}

	// A nil *GoogleGeocoder must not end up inside the interface.
	var geocoder geocode.Geocoder
	var google *geocode.GoogleGeocoder
	if cfg.GMapAPIKey != "" && tracks.Subtitle {
		gopts := []geocode.Option{geocode.WithLanguage(cfg.GeocodeLanguage), geocode.WithLogger(log)}
		if cfg.GeocodeCache != "" {
			entries, err := geocode.LoadCache(cfg.GeocodeCache)
			if err != nil {
				log.Warnw("ignoring geocode cache", "path", cfg.GeocodeCache, "error", err)
			} else {
				gopts = append(gopts, geocode.WithCache(entries))
			}
		}
		google = geocode.NewGoogleGeocoder(cfg.GMapAPIKey, gopts...)
		geocoder = google
	}

	svc := download.NewService(download.Config{
		Tracks:      tracks,
		SampleRate:  cfg.SampleRate,
		InputRate:   cfg.InputRate,
		QuantMeters: cfg.QuantMeters,
		SessionID:   sessionID,
	}, geocoder, log, sinks...)

	res, err := svc.Run(ctx, src)
	if google != nil && cfg.GeocodeCache != "" {
		if serr := geocode.SaveCache(cfg.GeocodeCache, google.Entries()); serr != nil {
			log.Warnw("save geocode cache", "error", serr)
		}
	}
	if err != nil {
		return err
	}
	log.Infow("tracks written",
		"dir", files.Dir(),
		"points", res.Counts.Points,
		"skipped", res.Counts.Skipped,
		"segments", res.Counts.Segments,
		"lookups", res.Counts.Lookups,
	)

	if cfg.Mux {
		out := filepath.Join(cfg.OutputDir, download.MP4Name)
		mopts := media.DefaultOptions()
		mopts.FPS = cfg.FPS
		mopts.VideoOffset, mopts.AudioOffset, mopts.SubtitleOffset = res.Starts.Mux()
		if err := media.NewMuxer(cfg.FFmpegPath, log).Mux(ctx, out, files.Inputs(), mopts); err != nil {
			return err
		}
		log.Infow("muxed", "out", out)
	}

	if cfg.OllamaModel != "" && tracks.Subtitle {
		writeSummary(ctx, cfg.OllamaURL, cfg.OllamaModel, res, files, log)
	}
	return nil
}

// writeSummary writes summary.md. A model failure still produces the cue
// list.
func writeSummary(ctx context.Context, url, model string, res download.Result, files *download.FileSink, log *zap.SugaredLogger) {
	report := summary.Report{
		SessionID: res.SessionID,
		Basetime:  res.Basetime,
		Duration:  res.Duration,
		Segments:  files.Segments(),
	}

	s, err := summary.New(url, model, summary.WithLogger(log))
	if err != nil {
		log.Warnw("summary disabled", "error", err)
	} else {
		readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		ready := s.WaitForReady(readyCtx)
		cancel()
		if !ready {
			log.Warnw("ollama not available, writing cue list only", "url", url)
		} else if text, err := s.Summarize(ctx, report.Segments); err != nil {
			log.Warnw("summary failed", "error", err)
		} else {
			report.Summary = text
			report.Model = model
		}
	}

	path := filepath.Join(files.Dir(), download.SummaryName)
	if err := os.WriteFile(path, []byte(report.Markdown()), 0o644); err != nil {
		log.Warnw("write summary", "path", path, "error", err)
		return
	}
	log.Infow("summary written", "path", path)
}
