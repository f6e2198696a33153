// Package config loads runtime settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at a YAML config file.
const FileEnv = "TRACKEXPORT_CONFIG"

// Config holds all runtime configuration.
type Config struct {
	// Export
	OutputDir      string  `yaml:"output_dir"`
	Tracks         string  `yaml:"tracks"` // comma separated: audio|pcm|aac, video, subtitle
	SampleRate     int     `yaml:"sample_rate"`
	InputRate      int     `yaml:"input_rate"` // nominal rate of recorded PCM
	QuantMeters    float64 `yaml:"quant_meters"`
	SubtitleFormat string  `yaml:"subtitle_format"` // srt or vtt
	FPS            float64 `yaml:"fps"`
	Mux            bool    `yaml:"mux"`
	FFmpegPath     string  `yaml:"ffmpeg_path"`

	// Reverse geocoding
	GMapAPIKey      string `yaml:"gmap_api_key"`
	GeocodeLanguage string `yaml:"geocode_language"`
	GeocodeCache    string `yaml:"geocode_cache"` // msgpack file, empty disables

	// Cue publishing
	MQTTBroker      string `yaml:"mqtt_broker"` // empty disables
	MQTTTopicPrefix string `yaml:"mqtt_topic_prefix"`

	// Trip summary
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"` // empty disables

	// Live monitor
	Port  int     `yaml:"port"`
	Speed float64 `yaml:"speed"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		OutputDir:      "./out",
		Tracks:         "audio,video,subtitle",
		SampleRate:     48000,
		InputRate:      48000,
		QuantMeters:    100,
		SubtitleFormat: "srt",
		FPS:            15,
		FFmpegPath:     "ffmpeg",

		GeocodeLanguage: "ja",

		MQTTTopicPrefix: "trackexport",

		OllamaURL: "http://localhost:11434",

		Port:  8080,
		Speed: 1,

		LogLevel: "info",
	}
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile overlays the YAML file at path on the defaults, then applies
// environment variables. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv loads the file named by TRACKEXPORT_CONFIG, if any.
func FromEnv() (Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

func (c *Config) applyEnv() {
	c.OutputDir = envStr("TRACKEXPORT_OUTPUT_DIR", c.OutputDir)
	c.Tracks = envStr("TRACKEXPORT_TRACKS", c.Tracks)
	c.SampleRate = envInt("TRACKEXPORT_SAMPLE_RATE", c.SampleRate)
	c.InputRate = envInt("TRACKEXPORT_INPUT_RATE", c.InputRate)
	c.QuantMeters = envFloat("TRACKEXPORT_QUANT_METERS", c.QuantMeters)
	c.SubtitleFormat = envStr("TRACKEXPORT_SUBTITLE_FORMAT", c.SubtitleFormat)
	c.FPS = envFloat("TRACKEXPORT_FPS", c.FPS)
	c.Mux = envBool("TRACKEXPORT_MUX", c.Mux)
	c.FFmpegPath = envStr("FFMPEG_PATH", c.FFmpegPath)

	c.GMapAPIKey = envStr("GMAP_API_KEY", c.GMapAPIKey)
	c.GeocodeLanguage = envStr("GEOCODE_LANGUAGE", c.GeocodeLanguage)
	c.GeocodeCache = envStr("GEOCODE_CACHE", c.GeocodeCache)

	c.MQTTBroker = envStr("MQTT_BROKER", c.MQTTBroker)
	c.MQTTTopicPrefix = envStr("MQTT_TOPIC_PREFIX", c.MQTTTopicPrefix)

	c.OllamaURL = envStr("OLLAMA_URL", c.OllamaURL)
	c.OllamaModel = envStr("OLLAMA_MODEL", c.OllamaModel)

	c.Port = envInt("MONITOR_PORT", c.Port)
	c.Speed = envFloat("MONITOR_SPEED", c.Speed)

	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
}

// TrackList splits Tracks on commas.
func (c Config) TrackList() []string {
	var out []string
	for _, t := range strings.Split(c.Tracks, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.InputRate <= 0 {
		errs = append(errs, fmt.Errorf("input_rate must be positive, got %d", c.InputRate))
	}
	if c.QuantMeters < 0 {
		errs = append(errs, fmt.Errorf("quant_meters must not be negative, got %v", c.QuantMeters))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %v", c.FPS))
	}
	if c.Speed <= 0 {
		errs = append(errs, fmt.Errorf("speed must be positive, got %v", c.Speed))
	}
	switch strings.ToLower(c.SubtitleFormat) {
	case "srt", "vtt":
	default:
		errs = append(errs, fmt.Errorf("subtitle_format must be srt or vtt, got %q", c.SubtitleFormat))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
