package service

import (
	"errors"
	"github.com/google/uuid"
	"os"
	"path/filepath"
	"testing"
	"video-pipeline/constant"
	"video-pipeline/entities"
	"video-pipeline/pkg/layout"
	"video-pipeline/repository"
)

func newVideoService(f *fixture, mirror *fakeMirror) VideoService {
	var cleaner *Cleaner
	if mirror != nil {
		cleaner = NewCleaner(f.layout, mirror)
	} else {
		cleaner = NewCleaner(f.layout, nil)
	}
	return NewVideoService(f.repo, f.layout, "uploads", cleaner)
}

func writeUpload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Holiday.MP4")
	if err := os.WriteFile(path, []byte("upload"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestCreatesProcessingVideo(t *testing.T) {
	f := newFixture(t)
	videos := newVideoService(f, nil)

	video, err := videos.Ingest(f.ctx, IngestRequest{Title: "Holiday", Category: "family", File: writeUpload(t)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if want := "uploads/" + video.ID.String() + ".mp4"; video.SourcePath != want {
		t.Errorf("SourcePath = %q, want %q", video.SourcePath, want)
	}
	data, err := os.ReadFile(filepath.Join(f.root, video.SourcePath))
	if err != nil || string(data) != "upload" {
		t.Errorf("stored upload = %q, %v", data, err)
	}
	if got := f.reload(t, video.ID); got.ConversionStatus != constant.ConversionStatusProcessing {
		t.Errorf("status = %s, want processing", got.ConversionStatus)
	}
	entries, err := f.repo.PendingOutbox(f.ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].VideoId != video.ID {
		t.Errorf("outbox = %+v", entries)
	}
}

func TestIngestRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	videos := newVideoService(f, nil)

	if _, err := videos.Ingest(f.ctx, IngestRequest{File: writeUpload(t)}); err == nil {
		t.Error("Ingest without title succeeded")
	}
	if _, err := videos.Ingest(f.ctx, IngestRequest{Title: "x", File: filepath.Join(t.TempDir(), "missing.mp4")}); err == nil {
		t.Error("Ingest of a missing file succeeded")
	}

	entries, err := f.repo.PendingOutbox(f.ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("outbox = %+v, want empty", entries)
	}
	stored, _ := os.ReadDir(filepath.Join(f.root, "uploads"))
	if len(stored) != 0 {
		t.Errorf("uploads left behind: %v", stored)
	}
}

func TestDeleteRemovesArtifacts(t *testing.T) {
	f := newFixture(t)
	mirror := &fakeMirror{}
	videos := newVideoService(f, mirror)
	video := f.createVideo(t)
	if outcome, err := f.job.Run(f.ctx, video.ID); err != nil || outcome != OutcomeCompleted {
		t.Fatalf("Run = %s, %v", outcome, err)
	}

	if err := videos.Delete(f.ctx, video.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, path := range []string{
		filepath.Join(f.root, video.SourcePath),
		f.layout.VideoDir(video.ID),
		f.layout.ThumbnailPath(video.ID),
	} {
		if exists(path) {
			t.Errorf("%s survived deletion", path)
		}
	}
	if _, err := f.repo.FindVideoById(f.ctx, video.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("record still present: %v", err)
	}
	if len(mirror.removed) != 2 {
		t.Errorf("mirror prefixes removed = %v", mirror.removed)
	}

	if err := videos.Delete(f.ctx, video.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestDeleteSucceedsWhenFilesAreGone(t *testing.T) {
	f := newFixture(t)
	videos := newVideoService(f, nil)
	video := f.createVideo(t)
	if err := os.Remove(filepath.Join(f.root, video.SourcePath)); err != nil {
		t.Fatal(err)
	}

	if err := videos.Delete(f.ctx, video.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestCleanerReportsEscapingSource(t *testing.T) {
	f := newFixture(t)
	outside := filepath.Join(filepath.Dir(f.root), "keep-"+uuid.NewString()+".mp4")
	if err := os.WriteFile(outside, []byte("not ours"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(outside) })

	video := &entities.Video{ID: uuid.New(), SourcePath: filepath.Join("..", filepath.Base(outside))}
	failure := NewCleaner(f.layout, nil).Remove(f.ctx, video)
	if failure == nil {
		t.Fatal("Remove accepted a source outside the media root")
	}
	if !errors.Is(failure, layout.ErrInvalidPath) {
		t.Errorf("failure = %v, want ErrInvalidPath", failure)
	}
	if !exists(outside) {
		t.Error("file outside the media root was removed")
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	videos := newVideoService(f, nil)
	video := f.createVideo(t)
	if _, err := f.job.Run(f.ctx, video.ID); err != nil {
		t.Fatal(err)
	}

	status, err := videos.Status(f.ctx, video.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.ConversionStatus != "completed" {
		t.Errorf("ConversionStatus = %q", status.ConversionStatus)
	}
	if status.ThumbnailUrl == nil || *status.ThumbnailUrl != "/thumbnail/"+video.ID.String()+".jpg" {
		t.Errorf("ThumbnailUrl = %v", status.ThumbnailUrl)
	}

	if _, err := videos.Status(f.ctx, uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
}
