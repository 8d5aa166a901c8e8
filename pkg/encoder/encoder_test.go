package encoder

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"
)

// fakeBinary writes a shell script standing in for ffmpeg.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script encoder fake needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestRenditionArgs(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	r := Rendition{Name: "720p", Width: 1280, Height: 720, VideoBitrate: "2800k", MaxBitrate: "2996k", BufferSize: "4200k"}
	out := filepath.Join("media", "hls", "id", "720p")
	args := RenditionArgs(s, "/uploads/source file; rm -rf.mp4", r, out)

	pairs := map[string]string{
		"-i":                    "/uploads/source file; rm -rf.mp4",
		"-vf":                   "scale=w=1280:h=720:force_original_aspect_ratio=decrease:force_divisible_by=2,pad=w=1280:h=720:x=(ow-iw)/2:y=(oh-ih)/2,setsar=1",
		"-b:v":                  "2800k",
		"-maxrate":              "2996k",
		"-bufsize":              "4200k",
		"-crf":                  "22",
		"-g":                    "48",
		"-keyint_min":           "48",
		"-hls_time":             "6",
		"-hls_playlist_type":    "vod",
		"-c:a":                  "copy",
		"-hls_segment_filename": filepath.Join(out, "segment_%03d.ts"),
	}
	for flag, want := range pairs {
		i := slices.Index(args, flag)
		if i < 0 || i+1 >= len(args) {
			t.Errorf("flag %s missing", flag)
			continue
		}
		if args[i+1] != want {
			t.Errorf("%s = %q, want %q", flag, args[i+1], want)
		}
	}
	if !slices.Contains(args, "-y") {
		t.Error("expected force-overwrite flag")
	}
	if got := args[len(args)-1]; got != filepath.Join(out, "index.m3u8") {
		t.Errorf("output = %q", got)
	}
}

func TestRenditionArgsIdenticalExceptLadder(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	a := RenditionArgs(s, "src.mp4", Rendition{Name: "480p", Width: 854, VideoBitrate: "1k", MaxBitrate: "1k", BufferSize: "1k"}, "out")
	b := RenditionArgs(s, "src.mp4", Rendition{Name: "1080p", Width: 1920, VideoBitrate: "9k", MaxBitrate: "9k", BufferSize: "9k"}, "out")
	if len(a) != len(b) {
		t.Fatalf("arg count differs: %d vs %d", len(a), len(b))
	}
	var diff []string
	for i := range a {
		if a[i] != b[i] {
			diff = append(diff, a[i-1])
		}
	}
	want := []string{"-vf", "-b:v", "-maxrate", "-bufsize"}
	if !slices.Equal(diff, want) {
		t.Errorf("differing flags = %v, want %v", diff, want)
	}
}

func TestThumbnailArgs(t *testing.T) {
	t.Parallel()

	args := ThumbnailArgs("in.mp4", "out.jpg")
	if i := slices.Index(args, "-vf"); i < 0 || args[i+1] != "thumbnail" {
		t.Errorf("expected thumbnail filter, got %v", args)
	}
	if i := slices.Index(args, "-frames:v"); i < 0 || args[i+1] != "1" {
		t.Errorf("expected single frame, got %v", args)
	}
	if args[len(args)-1] != "out.jpg" {
		t.Errorf("output = %q", args[len(args)-1])
	}
}

func TestRunSuccessPassesArgumentsVerbatim(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	record := filepath.Join(dir, "args")
	bin := fakeBinary(t, `for a in "$@"; do printf '%s\n' "$a"; done > "`+record+`"`)
	f := New(Settings{Binary: bin, Timeout: 10 * time.Second})

	src := filepath.Join(dir, "my video $(id).mp4")
	if err := f.Thumbnail(context.Background(), src, filepath.Join(dir, "t.jpg")); err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	data, err := os.ReadFile(record)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n"+src+"\n") {
		t.Errorf("source path not passed as a single argument:\n%s", data)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	t.Parallel()

	bin := fakeBinary(t, `echo "Invalid data found when processing input" >&2; exit 3`)
	f := New(Settings{Binary: bin, Timeout: 10 * time.Second})

	err := f.Rendition(context.Background(), "in.mp4", Rendition{Name: "480p", Width: 854}, t.TempDir())
	var failure *EncodeFailure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v, want *EncodeFailure", err)
	}
	if failure.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", failure.ExitCode)
	}
	if !strings.Contains(failure.Output, "Invalid data found") {
		t.Errorf("Output = %q", failure.Output)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("Error() lacks diagnostic: %q", err.Error())
	}
}

func TestRunSpawnFailure(t *testing.T) {
	t.Parallel()

	f := New(Settings{Binary: filepath.Join(t.TempDir(), "does-not-exist")})
	err := f.Thumbnail(context.Background(), "in.mp4", "out.jpg")
	var failure *EncodeFailure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v, want *EncodeFailure", err)
	}
	if failure.Err == nil {
		t.Error("expected underlying spawn error")
	}
	var execErr *exec.Error
	var pathErr *os.PathError
	if !errors.As(err, &execErr) && !errors.As(err, &pathErr) {
		t.Errorf("underlying error %T not a spawn error", failure.Err)
	}
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	bin := fakeBinary(t, `exec sleep 30`)
	f := New(Settings{Binary: bin, Timeout: 200 * time.Millisecond})

	start := time.Now()
	err := f.Thumbnail(context.Background(), "in.mp4", "out.jpg")
	var failure *EncodeFailure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v, want *EncodeFailure", err)
	}
	if !failure.TimedOut {
		t.Errorf("TimedOut = false, err = %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("timeout not enforced, took %s", time.Since(start))
	}
}

func TestTail(t *testing.T) {
	t.Parallel()

	if got := tail([]byte("abcdef"), 3); got != "def" {
		t.Errorf("tail = %q", got)
	}
	if got := tail([]byte("ab"), 3); got != "ab" {
		t.Errorf("tail = %q", got)
	}
}
