package download

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fieldlog/trackexport/internal/media"
	"github.com/fieldlog/trackexport/internal/subtitle"
	"github.com/fieldlog/trackexport/internal/writer"
)

// Output file names inside the export directory.
const (
	AudioWAVName = "audio.wav"
	AudioAACName = "audio.aac"
	VideoName    = "video.h264"
	SubtitleName = "subtitle"
	MP4Name      = "out.mp4"
	SummaryName  = "summary.md"
)

// FileSinkOptions configures a FileSink.
type FileSinkOptions struct {
	SampleRate     int
	SubtitleFormat string // "srt" (default) or "vtt"
}

// FileSink writes the enabled tracks into a directory and keeps the
// subtitle segments for later use.
type FileSink struct {
	dir      string
	wav      *writer.WAVWriter
	aac      *writer.BinWriter
	video    *writer.BinWriter
	cues     writer.CueWriter
	segments []subtitle.Segment
	closed   bool
}

// NewFileSink opens one file per enabled track in dir.
func NewFileSink(dir string, tracks Tracks, opts FileSinkOptions) (*FileSink, error) {
	f := &FileSink{dir: dir}
	var err error
	if tracks.PCM {
		if f.wav, err = writer.CreateWAV(filepath.Join(dir, AudioWAVName), opts.SampleRate); err != nil {
			return nil, f.abort(err)
		}
	}
	if tracks.AAC {
		if f.aac, err = writer.CreateBin(filepath.Join(dir, AudioAACName)); err != nil {
			return nil, f.abort(err)
		}
	}
	if tracks.Video {
		if f.video, err = writer.CreateBin(filepath.Join(dir, VideoName)); err != nil {
			return nil, f.abort(err)
		}
	}
	if tracks.Subtitle {
		format := strings.ToLower(opts.SubtitleFormat)
		if format == "" {
			format = writer.FormatSRT
		}
		path := filepath.Join(dir, SubtitleName+"."+format)
		if f.cues, err = writer.CreateCues(path, format); err != nil {
			return nil, f.abort(err)
		}
	}
	return f, nil
}

func (f *FileSink) abort(err error) error {
	f.Close()
	return fmt.Errorf("open outputs: %w", err)
}

func (f *FileSink) Audio(_ float64, samples []float32) error {
	if f.wav == nil {
		return nil
	}
	return f.wav.Write(samples)
}

func (f *FileSink) AAC(_ float64, data []byte) error {
	if f.aac == nil {
		return nil
	}
	_, err := f.aac.Write(data)
	return err
}

func (f *FileSink) Video(_ float64, data []byte) error {
	if f.video == nil {
		return nil
	}
	_, err := f.video.Write(data)
	return err
}

func (f *FileSink) Segment(seg subtitle.Segment) error {
	f.segments = append(f.segments, seg)
	if f.cues == nil {
		return nil
	}
	return writer.WriteSegment(f.cues, seg)
}

// Segments returns every segment received so far.
func (f *FileSink) Segments() []subtitle.Segment { return f.segments }

// Inputs returns the written track files for the muxer.
func (f *FileSink) Inputs() media.Inputs {
	var in media.Inputs
	if f.wav != nil {
		in.Audio = f.wav.Path()
	} else if f.aac != nil {
		in.Audio = f.aac.Path()
	}
	if f.video != nil {
		in.Video = f.video.Path()
	}
	if f.cues != nil {
		in.Subtitle = f.cues.Path()
	}
	return in
}

// Dir returns the output directory.
func (f *FileSink) Dir() string { return f.dir }

// Close closes every open file. Paths stay available for Inputs.
func (f *FileSink) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	var closers []io.Closer
	if f.wav != nil {
		closers = append(closers, f.wav)
	}
	if f.aac != nil {
		closers = append(closers, f.aac)
	}
	if f.video != nil {
		closers = append(closers, f.video)
	}
	if f.cues != nil {
		closers = append(closers, f.cues)
	}
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
