package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTempPath(t *testing.T) {
	if got := TempPath("/out/trip.mp4"); got != "/out/trip.tmp.mp4" {
		t.Errorf("TempPath = %q, want /out/trip.tmp.mp4", got)
	}
}

func TestArgsAllTracks(t *testing.T) {
	dir := t.TempDir()
	in := Inputs{
		Video:    touch(t, dir, "video.h264"),
		Audio:    touch(t, dir, "audio.wav"),
		Subtitle: touch(t, dir, "subtitle.srt"),
	}
	opts := DefaultOptions()
	opts.AudioOffset = 0.25
	opts.SubtitleOffset = 1

	args, err := Args(filepath.Join(dir, "out.mp4"), in, opts)
	if err != nil {
		t.Fatalf("Args error: %v", err)
	}
	got := strings.Join(args, " ")

	wants := []string{
		"-r 15.000000 -fflags +genpts -itsoffset 0.000000 -i " + in.Video,
		"-itsoffset 0.250000 -i " + in.Audio,
		"-itsoffset 1.000000 -i " + in.Subtitle,
		"-map 0:v:0 -map 1:a:0 -map 2:0",
		"-c:v copy -c:a aac -b:a 128k",
		"-c:s mov_text -metadata:s:s:0 language=jpn -metadata:s:s:0 title=GNSS -disposition:s:0 default",
		"-movflags +use_metadata_tags " + filepath.Join(dir, "out.tmp.mp4"),
	}
	for _, w := range wants {
		if !strings.Contains(got, w) {
			t.Errorf("args missing %q\ngot: %s", w, got)
		}
	}
	if args[len(args)-1] != filepath.Join(dir, "out.tmp.mp4") {
		t.Errorf("last arg = %q, want temp output", args[len(args)-1])
	}
}

func TestArgsSkipsMissingInputs(t *testing.T) {
	dir := t.TempDir()
	in := Inputs{
		Video: filepath.Join(dir, "missing.h264"),
		Audio: touch(t, dir, "audio.aac"),
	}
	opts := DefaultOptions()
	opts.ReencodeVideo = true

	args, err := Args(filepath.Join(dir, "out.mp4"), in, opts)
	if err != nil {
		t.Fatalf("Args error: %v", err)
	}
	got := strings.Join(args, " ")
	if strings.Contains(got, "missing.h264") || strings.Contains(got, "-c:v") {
		t.Errorf("args reference missing video: %s", got)
	}
	if !strings.Contains(got, "-map 0:a:0") || !strings.Contains(got, "-c:a copy") {
		t.Errorf("audio should be input 0 and copied: %s", got)
	}
	if strings.Contains(got, "-fflags") {
		t.Errorf("non-h264 input got genpts flags: %s", got)
	}
}

func TestArgsNoInputs(t *testing.T) {
	_, err := Args("out.mp4", Inputs{Audio: "/does/not/exist.wav"}, DefaultOptions())
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("Args error = %v, want ErrNoInputs", err)
	}
}

func TestMuxRenamesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as ffmpeg")
	}
	dir := t.TempDir()
	fake := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\nfor a; do last=$a; done\necho muxed > \"$last\"\n"
	if err := os.WriteFile(fake, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out.mp4")
	m := NewMuxer(fake, nil)
	err := m.Mux(context.Background(), out, Inputs{Subtitle: touch(t, dir, "s.srt")}, DefaultOptions())
	if err != nil {
		t.Fatalf("Mux error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if strings.TrimSpace(string(data)) != "muxed" {
		t.Errorf("output = %q, want muxed", data)
	}
	if _, err := os.Stat(TempPath(out)); !os.IsNotExist(err) {
		t.Errorf("temp file still present: %v", err)
	}
}

func TestMuxFailureKeepsNoOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as ffmpeg")
	}
	dir := t.TempDir()
	fake := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\necho boom >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.mp4")
	err := NewMuxer(fake, nil).Mux(context.Background(), out, Inputs{Subtitle: touch(t, dir, "s.srt")}, DefaultOptions())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Mux error = %v, want ffmpeg stderr", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output exists after failure")
	}
}
