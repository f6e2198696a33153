package summary

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldlog/trackexport/internal/subtitle"
)

const systemPrompt = `You write short trip reports for vehicle recordings.

You get a list of subtitle cues. Each cue has a time range, the altitude and
speed at that time, and where known the address or coordinates.

Write 3-6 sentences of plain markdown:
- where the trip started and ended
- the places passed through, in order
- notable climbs, descents, stops or fast stretches

Use only facts from the cues. No preamble, no headings, no lists of raw numbers.

/no_think`

// Prompt renders segments as the user message, one cue per line.
func Prompt(segments []subtitle.Segment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cues (%d):\n", len(segments))
	for _, s := range segments {
		fmt.Fprintf(&b, "[%s-%s] %s", Clock(s.Start), Clock(s.End), s.Line1)
		if s.Line2 != "" {
			fmt.Fprintf(&b, " | %s", s.Line2)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Clock formats seconds as mm:ss, or hh:mm:ss past the hour.
func Clock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	d := time.Duration(sec * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// clean strips common LLM artifacts from output.
func clean(s string) string {
	s = strings.TrimSpace(s)
	// Reasoning models may leak a <think> block.
	if i := strings.Index(s, "</think>"); i >= 0 {
		s = strings.TrimSpace(s[i+len("</think>"):])
	}
	for _, p := range []string{"here is the summary:", "here's the summary:", "summary:"} {
		if strings.HasPrefix(strings.ToLower(s), p) {
			s = strings.TrimSpace(s[len(p):])
		}
	}
	return s
}

// Report is the content of summary.md.
type Report struct {
	Title     string
	SessionID string
	Basetime  time.Time
	Duration  float64
	Model     string
	Summary   string // may be empty when no model is configured
	Segments  []subtitle.Segment
}

// Markdown renders the report with the cue list appended.
func (r Report) Markdown() string {
	var b strings.Builder
	if r.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", r.Title)
	} else {
		b.WriteString("# Trip Summary\n\n")
	}
	if r.SessionID != "" {
		fmt.Fprintf(&b, "- Session: `%s`\n", r.SessionID)
	}
	if !r.Basetime.IsZero() {
		fmt.Fprintf(&b, "- Basetime: %s\n", r.Basetime.UTC().Format(time.RFC3339Nano))
	}
	if r.Duration > 0 {
		fmt.Fprintf(&b, "- Duration: %s\n", Clock(r.Duration))
	}
	if r.Model != "" {
		fmt.Fprintf(&b, "- Model: `%s`\n", r.Model)
	}
	b.WriteString("\n---\n\n")

	if r.Summary != "" {
		b.WriteString(r.Summary)
		b.WriteString("\n\n")
	}
	if len(r.Segments) > 0 {
		b.WriteString("## Cues\n\n")
		for _, s := range r.Segments {
			fmt.Fprintf(&b, "- [%s-%s] %s", Clock(s.Start), Clock(s.End), s.Line1)
			if s.Line2 != "" {
				fmt.Fprintf(&b, " / %s", s.Line2)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
