package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fieldlog/trackexport/internal/config"
)

// options is the parsed command line.
type options struct {
	cfg      config.Config
	input    string
	basetime time.Time
	start    time.Time
	end      time.Time
}

// parseArgs loads the config file (--config or TRACKEXPORT_CONFIG), then
// applies only the flags that were set explicitly.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("trackexport", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: trackexport --input dump.jsonl [flags]")
		fmt.Fprintln(stderr, "Rebuilds audio (.wav/.aac), video (.h264) and subtitle (.srt/.vtt) tracks from a recorded measurement.")
		fs.PrintDefaults()
	}

	def := config.Defaults()
	var (
		configPath = fs.String("config", os.Getenv(config.FileEnv), "YAML config file")
		input      = fs.String("input", "", "measurement dump (JSON Lines), - for stdin")
		basetime   = fs.String("basetime", "", "measurement basetime, RFC3339 (default: --start or first data point)")
		start      = fs.String("start", "", "skip data points before this time, RFC3339")
		end        = fs.String("end", "", "stop at this time, RFC3339")
		outdir     = fs.String("outdir", def.OutputDir, "output directory")
		tracks     = fs.String("tracks", def.Tracks, "tracks to export: audio|pcm|aac, video, subtitle")
		fps        = fs.Float64("fps", def.FPS, "frame rate of the recorded H.264 stream")
		mux        = fs.Bool("mux", false, "mux tracks into out.mp4 with ffmpeg")
		format     = fs.String("subtitle-format", def.SubtitleFormat, "subtitle format: srt or vtt")
		quant      = fs.Float64("quant-meters", def.QuantMeters, "coordinate cell size for address lookups, 0 disables")
		apiKey     = fs.String("gmap-api-key", "", "Google Maps API key for subtitle addresses")
		cache      = fs.String("geocode-cache", "", "address cache file (msgpack)")
		model      = fs.String("summary-model", "", "Ollama model for summary.md")
		broker     = fs.String("mqtt-broker", "", "publish cues to this MQTT broker (host:port)")
		logLevel   = fs.String("log-level", def.LogLevel, "debug, info, warn or error")
	)
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return options{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "outdir":
			cfg.OutputDir = *outdir
		case "tracks":
			cfg.Tracks = *tracks
		case "fps":
			cfg.FPS = *fps
		case "mux":
			cfg.Mux = *mux
		case "subtitle-format":
			cfg.SubtitleFormat = *format
		case "quant-meters":
			cfg.QuantMeters = *quant
		case "gmap-api-key":
			cfg.GMapAPIKey = *apiKey
		case "geocode-cache":
			cfg.GeocodeCache = *cache
		case "summary-model":
			cfg.OllamaModel = *model
		case "mqtt-broker":
			cfg.MQTTBroker = *broker
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return options{}, err
	}

	opts := options{cfg: cfg, input: *input}
	if opts.input == "" {
		fs.Usage()
		return options{}, errors.New("--input is required")
	}
	for _, t := range []struct {
		name string
		val  string
		dst  *time.Time
	}{
		{"basetime", *basetime, &opts.basetime},
		{"start", *start, &opts.start},
		{"end", *end, &opts.end},
	} {
		if t.val == "" {
			continue
		}
		v, err := time.Parse(time.RFC3339Nano, t.val)
		if err != nil {
			return options{}, fmt.Errorf("--%s: %w", t.name, err)
		}
		*t.dst = v
	}
	if !opts.start.IsZero() && !opts.end.IsZero() && !opts.end.After(opts.start) {
		return options{}, errors.New("--end must be after --start")
	}
	if opts.basetime.IsZero() {
		opts.basetime = opts.start
	}
	return opts, nil
}
