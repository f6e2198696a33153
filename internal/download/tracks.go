package download

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fieldlog/trackexport/internal/measurement"
)

// Tracks selects which tracks an export produces.
type Tracks struct {
	PCM      bool // resampled audio written as WAV
	AAC      bool // AAC payloads written verbatim
	Video    bool
	Subtitle bool
}

// DefaultTracks is audio (PCM), video and subtitle.
func DefaultTracks() Tracks {
	return Tracks{PCM: true, Video: true, Subtitle: true}
}

// ErrAudioConflict is returned when both PCM and AAC audio are requested.
var ErrAudioConflict = errors.New("specify either pcm (or audio) or aac, not both")

// ParseTracks reads a track list such as "audio,video,subtitle". "audio" is
// an alias of "pcm".
func ParseTracks(names []string) (Tracks, error) {
	var t Tracks
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "":
			case "audio", "pcm":
				t.PCM = true
			case "aac":
				t.AAC = true
			case "video":
				t.Video = true
			case "subtitle":
				t.Subtitle = true
			default:
				return Tracks{}, fmt.Errorf("unknown track %q", name)
			}
		}
	}
	if t.PCM && t.AAC {
		return Tracks{}, ErrAudioConflict
	}
	return t, nil
}

// DataNames returns the measurement data names the tracks need.
func (t Tracks) DataNames() []string {
	var names []string
	if t.PCM {
		names = append(names, measurement.NamePCM)
	}
	if t.AAC {
		names = append(names, measurement.NameAAC)
	}
	if t.Video {
		names = append(names, measurement.NameH264)
	}
	if t.Subtitle {
		names = append(names, measurement.NameAltitude, measurement.NameSpeed, measurement.NameCoordinates)
	}
	return names
}

func (t Tracks) String() string {
	var parts []string
	if t.PCM {
		parts = append(parts, "pcm")
	}
	if t.AAC {
		parts = append(parts, "aac")
	}
	if t.Video {
		parts = append(parts, "video")
	}
	if t.Subtitle {
		parts = append(parts, "subtitle")
	}
	return strings.Join(parts, ",")
}
