package writer

import (
	"bufio"
	"fmt"
	"os"
)

// VTTWriter writes WebVTT cues.
type VTTWriter struct {
	f    *os.File
	w    *bufio.Writer
	path string
	idx  int
}

// CreateVTT creates a WebVTT file at path and writes the header.
func CreateVTT(path string) (*VTTWriter, error) {
	f, err := create(path)
	if err != nil {
		return nil, err
	}
	v := &VTTWriter{f: f, w: bufio.NewWriter(f), path: path}
	v.w.WriteString("WEBVTT\n\n")
	return v, nil
}

// WriteCue appends one cue. line2 is omitted when empty.
func (v *VTTWriter) WriteCue(start, end float64, line1, line2 string) error {
	end = cueEnd(start, end)
	v.idx++

	fmt.Fprintf(v.w, "%d\n", v.idx)
	fmt.Fprintf(v.w, "%s --> %s\n", FormatVTTTime(start), FormatVTTTime(end))
	v.w.WriteString(oneLine(line1) + "\n")
	if line2 != "" {
		v.w.WriteString(oneLine(line2) + "\n")
	}
	_, err := v.w.WriteString("\n")
	return err
}

// Path returns the output file path.
func (v *VTTWriter) Path() string { return v.path }

// Close flushes and closes the file.
func (v *VTTWriter) Close() error {
	if err := v.w.Flush(); err != nil {
		v.f.Close()
		return fmt.Errorf("flush vtt: %w", err)
	}
	return v.f.Close()
}

// FormatVTTTime renders seconds as HH:MM:SS.mmm.
func FormatVTTTime(sec float64) string {
	h, m, s, ms := splitMillis(sec)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
