package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
	"video-pipeline/dto"
	"video-pipeline/pkg/queue"
)

type failingPublisher struct {
	attempts int
}

func (p *failingPublisher) Publish(context.Context, string, []byte) error {
	p.attempts++
	return errors.New("broker unavailable")
}

func TestRelayFlushPublishesAndDeletes(t *testing.T) {
	f := newFixture(t)
	first := f.createVideo(t)
	second := f.createVideo(t)

	memory := queue.NewMemory(10)
	relay := NewRelay(f.repo, memory, time.Second, 10)

	n, err := relay.Flush(f.ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 2 {
		t.Fatalf("published %d, want 2", n)
	}

	var got []dto.TranscodeMessage
	consumer := queue.NewMemoryConsumer(memory, 1, func(_ context.Context, body []byte, _ struct{}) error {
		var m dto.TranscodeMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return err
		}
		got = append(got, m)
		if len(got) == 2 {
			memory.Close()
		}
		return nil
	})
	if err := consumer.Consume(context.Background(), struct{}{}); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(got) != 2 || got[0].VideoId != first.ID || got[1].VideoId != second.ID {
		t.Errorf("messages = %+v, want %s then %s", got, first.ID, second.ID)
	}

	entries, err := f.repo.PendingOutbox(f.ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("outbox still holds %d entries", len(entries))
	}
}

func TestRelayFlushKeepsEntryOnPublishFailure(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t)
	publisher := &failingPublisher{}
	relay := NewRelay(f.repo, publisher, time.Second, 10)

	n, err := relay.Flush(f.ctx)
	if err == nil {
		t.Fatal("Flush succeeded with a failing publisher")
	}
	if n != 0 {
		t.Errorf("published %d, want 0", n)
	}
	if publisher.attempts != 3 {
		t.Errorf("publish attempts = %d, want 3", publisher.attempts)
	}

	entries, err := f.repo.PendingOutbox(f.ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].VideoId != video.ID {
		t.Errorf("outbox = %+v, want the entry kept", entries)
	}
}
