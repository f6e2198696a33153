// Package writer writes reconstructed tracks to files.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fieldlog/trackexport/internal/subtitle"
)

// CueWriter writes subtitle cues in some text format.
type CueWriter interface {
	WriteCue(start, end float64, line1, line2 string) error
	Path() string
	Close() error
}

// WriteSegment writes seg to w.
func WriteSegment(w CueWriter, seg subtitle.Segment) error {
	return w.WriteCue(seg.Start, seg.End, seg.Line1, seg.Line2)
}

// Subtitle formats.
const (
	FormatSRT = "srt"
	FormatVTT = "vtt"
)

// CreateCues opens a cue writer for the given format.
func CreateCues(path, format string) (CueWriter, error) {
	switch strings.ToLower(format) {
	case "", FormatSRT:
		w, err := CreateSRT(path)
		if err != nil {
			return nil, err
		}
		return w, nil
	case FormatVTT:
		w, err := CreateVTT(path)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unknown subtitle format %q", format)
	}
}

// create opens path for writing, creating parent directories.
func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// oneLine replaces line breaks inside cue text with spaces.
func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// cueEnd keeps zero-length cues visible for half a second.
func cueEnd(start, end float64) float64 {
	if end <= start {
		return start + 0.5
	}
	return end
}
