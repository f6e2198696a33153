// Package download rebuilds audio, video and subtitle tracks from a
// recorded measurement.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldlog/trackexport/internal/audio"
	"github.com/fieldlog/trackexport/internal/geocode"
	"github.com/fieldlog/trackexport/internal/measurement"
	"github.com/fieldlog/trackexport/internal/subtitle"
)

// Sink receives reconstructed track data in time order.
type Sink interface {
	Audio(t float64, samples []float32) error
	AAC(t float64, data []byte) error
	Video(t float64, data []byte) error
	Segment(seg subtitle.Segment) error
	Close() error
}

// NopSink ignores everything. Embed it to implement part of Sink.
type NopSink struct{}

func (NopSink) Audio(float64, []float32) error { return nil }
func (NopSink) AAC(float64, []byte) error { return nil }
func (NopSink) Video(float64, []byte) error { return nil }
func (NopSink) Segment(subtitle.Segment) error { return nil }
func (NopSink) Close() error { return nil }

// Config controls one export session.
type Config struct {
	Tracks      Tracks
	SampleRate  int     // output rate of the audio track
	InputRate   int     // nominal rate of recorded PCM blocks
	QuantMeters float64 // coordinate cell size for subtitle addresses
	SessionID   string  // empty means a fresh UUID per run
}

// DefaultConfig matches the recorder: 48 kHz mono PCM and 100 m cells.
func DefaultConfig() Config {
	return Config{
		Tracks:      DefaultTracks(),
		SampleRate:  audio.SampleRate,
		InputRate:   audio.SampleRate,
		QuantMeters: subtitle.DefaultQuantMeters,
	}
}

// Starts holds the first timestamp of each track, relative to basetime.
type Starts struct {
	Audio, Video, Subtitle          float64
	HasAudio, HasVideo, HasSubtitle bool
}

// Mux returns per-track offsets relative to the earliest track start.
// Absent tracks get zero.
func (s Starts) Mux() (videoOff, audioOff, subOff float64) {
	tMin := math.Inf(1)
	for _, p := range []struct {
		t  float64
		ok bool
	}{{s.Video, s.HasVideo}, {s.Audio, s.HasAudio}, {s.Subtitle, s.HasSubtitle}} {
		if p.ok && p.t < tMin {
			tMin = p.t
		}
	}
	if math.IsInf(tMin, 1) {
		return 0, 0, 0
	}
	if s.HasVideo {
		videoOff = s.Video - tMin
	}
	if s.HasAudio {
		audioOff = s.Audio - tMin
	}
	if s.HasSubtitle {
		subOff = s.Subtitle - tMin
	}
	return videoOff, audioOff, subOff
}

// Counts summarizes what a session produced.
type Counts struct {
	Points       int
	Skipped      int // points before basetime or with short payloads
	AudioSamples int
	AACFrames    int
	VideoFrames  int
	Segments     int
	Lookups      int
}

// Result is returned by Run.
type Result struct {
	SessionID string
	Basetime  time.Time
	Duration  float64 // last relative timestamp seen, seconds
	Starts    Starts
	Counts    Counts
}

// Service turns a measurement into tracks and hands them to sinks.
type Service struct {
	cfg      Config
	geocoder geocode.Geocoder
	sinks    []Sink
	log      *zap.SugaredLogger
}

// NewService creates a Service. geocoder may be nil.
func NewService(cfg Config, geocoder geocode.Geocoder, log *zap.SugaredLogger, sinks ...Sink) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{cfg: cfg, geocoder: geocoder, sinks: sinks, log: log}
}

// session is the per-run state.
type session struct {
	*Service
	res       Result
	resampler *audio.Resampler
	agg       *subtitle.Aggregator
}

// Run reads src to the end, feeding audio blocks to a fresh Resampler and
// GNSS updates to a fresh Aggregator. Altitude updates drive the subtitle
// tick. Sinks are closed when Run returns.
func (s *Service) Run(ctx context.Context, src measurement.Source) (res Result, err error) {
	id := s.cfg.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	sess := &session{
		Service: s,
		res:     Result{SessionID: id},
		agg:     subtitle.NewAggregator(s.cfg.QuantMeters),
	}
	log := s.log.With("session", sess.res.SessionID)

	defer func() {
		if cerr := s.closeSinks(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if s.cfg.Tracks.PCM {
		sess.resampler, err = audio.NewResampler(float64(s.cfg.SampleRate), audio.WithInputRate(float64(s.cfg.InputRate)))
		if err != nil {
			return sess.res, fmt.Errorf("audio track: %w", err)
		}
	}

	basetime, err := src.Basetime(ctx)
	if err != nil {
		return sess.res, fmt.Errorf("basetime: %w", err)
	}
	sess.res.Basetime = basetime
	log.Infow("export started", "basetime", basetime, "tracks", s.cfg.Tracks.String())

	for {
		p, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sess.res, fmt.Errorf("read data point: %w", err)
		}
		sess.res.Counts.Points++

		tRel := p.Elapsed(basetime)
		if tRel < 0 {
			sess.res.Counts.Skipped++
			continue
		}
		if err := sess.dispatch(ctx, tRel, p); err != nil {
			return sess.res, err
		}
		sess.res.Duration = math.Max(sess.res.Duration, tRel)
	}

	if s.cfg.Tracks.Subtitle {
		if seg, ok := sess.agg.Finalize(sess.res.Duration); ok {
			if err := sess.segment(seg); err != nil {
				return sess.res, err
			}
		}
	}

	c := sess.res.Counts
	log.Infow("export finished",
		"duration_s", sess.res.Duration,
		"points", c.Points,
		"audio_samples", c.AudioSamples,
		"video_frames", c.VideoFrames,
		"segments", c.Segments,
	)
	return sess.res, nil
}

func (s *session) dispatch(ctx context.Context, tRel float64, p measurement.DataPoint) error {
	tracks := s.cfg.Tracks
	switch p.DataName {
	case measurement.NamePCM:
		if !tracks.PCM {
			return nil
		}
		out := s.resampler.PushBlock(tRel, audio.DecodePCM16LE(p.Data))
		if len(out) == 0 {
			return nil
		}
		start := s.resampler.OutputStart()
		if !s.res.Starts.HasAudio {
			s.res.Starts.Audio, s.res.Starts.HasAudio = start, true
		}
		s.res.Counts.AudioSamples += len(out)
		return s.each(func(k Sink) error { return k.Audio(start, out) })

	case measurement.NameAAC:
		if !tracks.AAC {
			return nil
		}
		if !s.res.Starts.HasAudio {
			s.res.Starts.Audio, s.res.Starts.HasAudio = tRel, true
		}
		s.res.Counts.AACFrames++
		return s.each(func(k Sink) error { return k.AAC(tRel, p.Data) })

	case measurement.NameH264:
		if !tracks.Video {
			return nil
		}
		if !s.res.Starts.HasVideo {
			s.res.Starts.Video, s.res.Starts.HasVideo = tRel, true
		}
		s.res.Counts.VideoFrames++
		return s.each(func(k Sink) error { return k.Video(tRel, p.Data) })

	case measurement.NameSpeed:
		if !tracks.Subtitle {
			return nil
		}
		v, ok := measurement.Float64BE(p.Data)
		if !ok {
			s.res.Counts.Skipped++
			return nil
		}
		s.agg.UpdateSpeed(roundTenth(v))

	case measurement.NameAltitude:
		if !tracks.Subtitle {
			return nil
		}
		v, ok := measurement.Float64BE(p.Data)
		if !ok {
			s.res.Counts.Skipped++
			return nil
		}
		s.agg.UpdateAltitude(roundTenth(v))
		// Altitude arrives at about 1 Hz and serves as the subtitle clock.
		if seg, ok := s.agg.Tick(tRel); ok {
			return s.segment(seg)
		}

	case measurement.NameCoordinates:
		if !tracks.Subtitle {
			return nil
		}
		lat, lon, ok := measurement.LatLonBE(p.Data)
		if !ok {
			s.res.Counts.Skipped++
			return nil
		}
		changed, latQ, lonQ := s.agg.UpdateLatLon(lat, lon)
		if changed && s.geocoder != nil {
			s.res.Counts.Lookups++
			if addr := s.geocoder.Lookup(ctx, latQ, lonQ); addr != "" {
				s.agg.UpdateAddress(addr)
			}
		}
	}
	return nil
}

func (s *session) segment(seg subtitle.Segment) error {
	if !s.res.Starts.HasSubtitle {
		s.res.Starts.Subtitle, s.res.Starts.HasSubtitle = seg.Start, true
	}
	s.res.Counts.Segments++
	s.log.Debugw("segment", "start", seg.Start, "end", seg.End, "line1", seg.Line1, "line2", seg.Line2)
	return s.each(func(k Sink) error { return k.Segment(seg) })
}

func (s *Service) each(fn func(Sink) error) error {
	for _, k := range s.sinks {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) closeSinks() error {
	var errs []error
	for _, k := range s.sinks {
		if err := k.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// roundTenth rounds v to one decimal, correctly rounded from its exact
// binary value.
func roundTenth(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if err != nil {
		return v
	}
	return r
}
