// Package media muxes exported tracks into an MP4 with ffmpeg.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrNoInputs is returned when none of the track files exist.
var ErrNoInputs = errors.New("no inputs to mux")

// Inputs names the track files to mux. Empty or missing files are skipped.
type Inputs struct {
	Video    string // .h264 elementary stream or any container ffmpeg reads
	Audio    string // .wav is converted to AAC, anything else is copied
	Subtitle string // .srt or .vtt, embedded as mov_text
}

// Options controls track placement and codecs.
type Options struct {
	VideoOffset    float64 // seconds from the start of the output
	AudioOffset    float64
	SubtitleOffset float64

	FPS           float64 // frame rate for raw .h264 input
	ReencodeVideo bool    // libx264 instead of stream copy
	AudioBitrate  string
	SubtitleTitle string
	SubtitleLang  string
}

// DefaultOptions returns the options used by the export CLI.
func DefaultOptions() Options {
	return Options{
		FPS:           15,
		AudioBitrate:  "128k",
		SubtitleTitle: "GNSS",
		SubtitleLang:  "jpn",
	}
}

// Muxer runs ffmpeg.
type Muxer struct {
	ffmpeg string
	log    *zap.SugaredLogger
}

// NewMuxer creates a Muxer using the given ffmpeg binary ("ffmpeg" if empty).
func NewMuxer(ffmpeg string, log *zap.SugaredLogger) *Muxer {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Muxer{ffmpeg: ffmpeg, log: log}
}

// TempPath returns the path ffmpeg writes to before the final rename.
func TempPath(out string) string {
	return strings.TrimSuffix(out, filepath.Ext(out)) + ".tmp.mp4"
}

// Args builds the ffmpeg argument list (without the binary) for muxing the
// existing inputs into TempPath(out).
func Args(out string, in Inputs, opts Options) ([]string, error) {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	idx := 0
	vIdx, aIdx, sIdx := -1, -1, -1
	offset := func(sec float64) []string {
		return []string{"-itsoffset", fmt.Sprintf("%.6f", sec)}
	}

	if exists(in.Video) {
		vIdx = idx
		idx++
		if strings.EqualFold(filepath.Ext(in.Video), ".h264") {
			args = append(args, "-r", fmt.Sprintf("%.6f", opts.FPS), "-fflags", "+genpts")
		}
		args = append(args, offset(opts.VideoOffset)...)
		args = append(args, "-i", in.Video)
	}
	if exists(in.Audio) {
		aIdx = idx
		idx++
		args = append(args, offset(opts.AudioOffset)...)
		args = append(args, "-i", in.Audio)
	}
	if exists(in.Subtitle) {
		sIdx = idx
		idx++
		args = append(args, offset(opts.SubtitleOffset)...)
		args = append(args, "-i", in.Subtitle)
	}
	if idx == 0 {
		return nil, ErrNoInputs
	}

	var maps, codecs []string
	if vIdx >= 0 {
		maps = append(maps, "-map", fmt.Sprintf("%d:v:0", vIdx))
		vcodec := "copy"
		if opts.ReencodeVideo {
			vcodec = "libx264"
		}
		codecs = append(codecs, "-c:v", vcodec)
	}
	if aIdx >= 0 {
		maps = append(maps, "-map", fmt.Sprintf("%d:a:0", aIdx))
		if strings.EqualFold(filepath.Ext(in.Audio), ".wav") {
			bitrate := opts.AudioBitrate
			if bitrate == "" {
				bitrate = "128k"
			}
			codecs = append(codecs, "-c:a", "aac", "-b:a", bitrate)
		} else {
			codecs = append(codecs, "-c:a", "copy")
		}
	}
	if sIdx >= 0 {
		maps = append(maps, "-map", fmt.Sprintf("%d:0", sIdx))
		codecs = append(codecs,
			"-c:s", "mov_text",
			"-metadata:s:s:0", "language="+opts.SubtitleLang,
			"-metadata:s:s:0", "title="+opts.SubtitleTitle,
			"-disposition:s:0", "default",
		)
	}

	args = append(args, maps...)
	args = append(args, codecs...)
	args = append(args, "-movflags", "+use_metadata_tags", TempPath(out))
	return args, nil
}

// Mux writes out from the given inputs. ffmpeg writes a temporary file that
// replaces out only on success.
func (m *Muxer) Mux(ctx context.Context, out string, in Inputs, opts Options) error {
	args, err := Args(out, in, opts)
	if err != nil {
		return err
	}
	tmp := TempPath(out)
	os.Remove(tmp)

	m.log.Infow("muxing", "out", out, "cmd", m.ffmpeg+" "+strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.ffmpeg, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ffmpeg mux: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
