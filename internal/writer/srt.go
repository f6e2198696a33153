package writer

import (
	"bufio"
	"fmt"
	"math"
	"os"
)

const crlf = "\r\n"

// SRTWriter writes SubRip cues with CRLF line endings.
type SRTWriter struct {
	f    *os.File
	w    *bufio.Writer
	path string
	idx  int
}

// CreateSRT creates an SRT file at path.
func CreateSRT(path string) (*SRTWriter, error) {
	f, err := create(path)
	if err != nil {
		return nil, err
	}
	return &SRTWriter{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// WriteCue appends one numbered cue. line2 is omitted when empty.
func (s *SRTWriter) WriteCue(start, end float64, line1, line2 string) error {
	end = cueEnd(start, end)
	s.idx++

	fmt.Fprintf(s.w, "%d%s", s.idx, crlf)
	fmt.Fprintf(s.w, "%s --> %s%s", FormatSRTTime(start), FormatSRTTime(end), crlf)
	s.w.WriteString(oneLine(line1) + crlf)
	if line2 != "" {
		s.w.WriteString(oneLine(line2) + crlf)
	}
	_, err := s.w.WriteString(crlf)
	return err
}

// Count returns the number of cues written.
func (s *SRTWriter) Count() int { return s.idx }

// Path returns the output file path.
func (s *SRTWriter) Path() string { return s.path }

// Close flushes and closes the file.
func (s *SRTWriter) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("flush srt: %w", err)
	}
	return s.f.Close()
}

// FormatSRTTime renders seconds as HH:MM:SS,mmm rounded to the millisecond.
// Negative times render as zero.
func FormatSRTTime(sec float64) string {
	h, m, s, ms := splitMillis(sec)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func splitMillis(sec float64) (h, m, s, ms int64) {
	if sec < 0 {
		sec = 0
	}
	total := int64(math.RoundToEven(sec * 1000))
	h, total = total/3600000, total%3600000
	m, total = total/60000, total%60000
	s, ms = total/1000, total%1000
	return h, m, s, ms
}
