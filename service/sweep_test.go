package service

import (
	"testing"
	"time"
)

func TestSweepRequeuesStuckVideos(t *testing.T) {
	f := newFixture(t)
	stuck := f.createVideo(t)
	queued := f.createVideo(t)

	entries, err := f.repo.PendingOutbox(f.ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.VideoId == stuck.ID {
			if err := f.repo.DeleteOutbox(f.ctx, e.ID); err != nil {
				t.Fatal(err)
			}
		}
	}

	sweeper := NewSweeper(f.repo, 6*time.Hour)
	sweeper.now = func() time.Time { return time.Now().Add(7 * time.Hour) }

	n, err := sweeper.Sweep(f.ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued %d, want 1", n)
	}

	entries, err = f.repo.PendingOutbox(f.ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]int{}
	for _, e := range entries {
		seen[e.VideoId.String()]++
	}
	if seen[stuck.ID.String()] != 1 || seen[queued.ID.String()] != 1 {
		t.Errorf("outbox after sweep = %v", seen)
	}

	if n, err := sweeper.Sweep(f.ctx); err != nil || n != 0 {
		t.Errorf("second Sweep = %d, %v, want nothing to requeue", n, err)
	}
}

func TestSweepIgnoresFreshVideos(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t)
	entries, err := f.repo.PendingOutbox(f.ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.repo.DeleteOutbox(f.ctx, entries[0].ID); err != nil {
		t.Fatal(err)
	}

	n, err := NewSweeper(f.repo, 6*time.Hour).Sweep(f.ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("requeued %d fresh video(s), first %s", n, video.ID)
	}
}
