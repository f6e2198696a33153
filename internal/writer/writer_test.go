package writer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gopxl/beep/wav"

	"github.com/fieldlog/trackexport/internal/subtitle"
)

func TestFormatSRTTime(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "00:00:00,000"},
		{-3, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{0.0104, "00:00:00,010"},
		{59.9996, "00:01:00,000"},
		{3661.007, "01:01:01,007"},
		{36000, "10:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatSRTTime(tt.sec); got != tt.want {
			t.Errorf("FormatSRTTime(%v) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestFormatVTTTime(t *testing.T) {
	if got := FormatVTTTime(62.25); got != "00:01:02.250" {
		t.Errorf("FormatVTTTime(62.25) = %q, want 00:01:02.250", got)
	}
}

func TestSRTWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "subtitle.srt")
	w, err := CreateSRT(path)
	if err != nil {
		t.Fatalf("CreateSRT error: %v", err)
	}
	if err := WriteSegment(w, subtitle.Segment{Start: 0.01, End: 1.023, Line1: "Altitude: 0.0 m  Speed: 0.0 km/h", Line2: "Tokyo\nJapan"}); err != nil {
		t.Fatalf("WriteSegment error: %v", err)
	}
	if err := w.WriteCue(2, 2, "only one line", ""); err != nil {
		t.Fatalf("WriteCue error: %v", err)
	}
	if w.Count() != 2 {
		t.Errorf("Count = %d, want 2", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "1\r\n" +
		"00:00:00,010 --> 00:00:01,023\r\n" +
		"Altitude: 0.0 m  Speed: 0.0 km/h\r\n" +
		"Tokyo Japan\r\n" +
		"\r\n" +
		"2\r\n" +
		"00:00:02,000 --> 00:00:02,500\r\n" +
		"only one line\r\n" +
		"\r\n"
	if string(got) != want {
		t.Errorf("srt content =\n%q\nwant\n%q", got, want)
	}
}

func TestVTTWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subtitle.vtt")
	w, err := CreateCues(path, "VTT")
	if err != nil {
		t.Fatalf("CreateCues error: %v", err)
	}
	w.WriteCue(1, 3, "line one", "line two")
	if err := w.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	got, _ := os.ReadFile(path)
	want := "WEBVTT\n\n1\n00:00:01.000 --> 00:00:03.000\nline one\nline two\n\n"
	if string(got) != want {
		t.Errorf("vtt content = %q, want %q", got, want)
	}
	if strings.Contains(string(got), "\r") {
		t.Error("vtt output contains CR")
	}
}

func TestCreateCuesUnknownFormat(t *testing.T) {
	if _, err := CreateCues(filepath.Join(t.TempDir(), "x.ass"), "ass"); err == nil {
		t.Error("CreateCues(ass) error = nil, want error")
	}
}

func TestBinWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.h264")
	w, err := CreateBin(path)
	if err != nil {
		t.Fatalf("CreateBin error: %v", err)
	}
	w.Write([]byte{0, 0, 0, 1, 0x67})
	w.Write([]byte{0, 0, 0, 1, 0x65, 0x88})
	if w.Size() != 11 {
		t.Errorf("Size = %d, want 11", w.Size())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, []byte{0, 0, 0, 1, 0x67, 0, 0, 0, 1, 0x65, 0x88}) {
		t.Errorf("content = %x", got)
	}
}

func TestWAVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.wav")
	w, err := CreateWAV(path, 48000)
	if err != nil {
		t.Fatalf("CreateWAV error: %v", err)
	}

	var total int
	for i := 0; i < 10; i++ {
		block := make([]float32, 700)
		for j := range block {
			block[j] = 0.5
		}
		if err := w.Write(block); err != nil {
			t.Fatalf("Write error: %v", err)
		}
		total += len(block)
	}
	w.Write(nil)
	if w.Samples() != int64(total) {
		t.Errorf("Samples = %d, want %d", w.Samples(), total)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
	if err := w.Write([]float32{0.1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close error = %v, want ErrClosed", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		t.Fatalf("header = %q, want RIFF/WAVE", raw[:12])
	}
	if len(raw) != 44+2*total {
		t.Errorf("file size = %d, want %d", len(raw), 44+2*total)
	}
	if v := int16(binary.LittleEndian.Uint16(raw[44:46])); v != 16383 {
		t.Errorf("first sample = %d, want 16383", v)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	s, format, err := wav.Decode(f)
	if err != nil {
		t.Fatalf("wav.Decode error: %v", err)
	}
	if format.SampleRate != 48000 || format.NumChannels != 1 || format.Precision != 2 {
		t.Errorf("format = %+v, want 48000 Hz mono 16-bit", format)
	}
	if s.Len() != total {
		t.Errorf("decoded length = %d, want %d", s.Len(), total)
	}
}

func TestCreateWAVInvalidRate(t *testing.T) {
	if _, err := CreateWAV(filepath.Join(t.TempDir(), "a.wav"), 0); err == nil {
		t.Error("CreateWAV(rate 0) error = nil, want error")
	}
}
