package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"video-pipeline/constant"
	"video-pipeline/entities"
	"video-pipeline/pkg/encoder"
)

// TestJobWithFFmpeg runs the whole job against a real ffmpeg on a short
// generated clip.
func TestJobWithFFmpeg(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ffmpeg integration test in short mode")
	}
	binary, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}

	f := newFixture(t)
	src := filepath.Join(f.root, "uploads", "clip.mp4")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	gen := exec.CommandContext(ctx, binary, "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=duration=3:size=480x360:rate=24",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=3",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac", "-shortest", src)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate test clip: %v\n%s", err, out)
	}

	renditions := []encoder.Rendition{
		{Name: "240p", Width: 426, Height: 240, VideoBitrate: "300k", MaxBitrate: "320k", BufferSize: "450k"},
		{Name: "360p", Width: 640, Height: 360, VideoBitrate: "600k", MaxBitrate: "640k", BufferSize: "900k"},
	}
	ffmpeg := encoder.New(encoder.Settings{Binary: binary, Timeout: time.Minute, SegmentSeconds: 1})
	job := NewJob(f.repo, f.layout, ffmpeg, JobOptions{Renditions: renditions, ThumbnailWidth: 320})

	video := &entities.Video{Title: "generated", SourcePath: "uploads/clip.mp4"}
	if err := f.repo.CreateWithOutbox(f.ctx, video); err != nil {
		t.Fatal(err)
	}

	outcome, err := job.Run(f.ctx, video.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := f.reload(t, video.ID)
	if outcome != OutcomeCompleted || got.ConversionStatus != constant.ConversionStatusCompleted {
		t.Fatalf("outcome = %s, status = %s, error = %s", outcome, got.ConversionStatus, got.ErrorMessage)
	}
	for _, r := range renditions {
		if !exists(f.layout.ManifestPath(video.ID, r.Name)) {
			t.Errorf("missing manifest for %s", r.Name)
		}
		if !exists(f.layout.SegmentPath(video.ID, r.Name, "segment_000.ts")) {
			t.Errorf("missing first segment for %s", r.Name)
		}
	}
	if !exists(f.layout.ThumbnailPath(video.ID)) {
		t.Error("missing thumbnail")
	}

	// A 4:3 source is letterboxed into each 16:9 box, matching the
	// RESOLUTION the master manifest advertises.
	probe, err := exec.LookPath("ffprobe")
	if err != nil {
		return
	}
	for _, r := range renditions {
		out, err := exec.Command(probe, "-v", "error", "-select_streams", "v:0",
			"-show_entries", "stream=width,height", "-of", "csv=p=0",
			f.layout.SegmentPath(video.ID, r.Name, "segment_000.ts")).Output()
		if err != nil {
			t.Fatalf("ffprobe %s: %v", r.Name, err)
		}
		want := fmt.Sprintf("%d,%d", r.Width, r.Height)
		if got := strings.TrimSpace(string(out)); got != want {
			t.Errorf("%s dimensions = %s, want %s", r.Name, got, want)
		}
	}
}
