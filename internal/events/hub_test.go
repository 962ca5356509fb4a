package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSnapshotSinceRingOverwrite(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(JobStarted, map[string]any{"n": i})
	}

	all := h.SnapshotSince(0)
	if len(all) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(all))
	}
	if all[0].ID != 3 || all[2].ID != 5 {
		t.Fatalf("snapshot ids = %d..%d, want 3..5", all[0].ID, all[2].ID)
	}

	since := h.SnapshotSince(4)
	if len(since) != 1 || since[0].ID != 5 {
		t.Fatalf("SnapshotSince(4) = %+v", since)
	}

	var payload struct {
		N int `json:"n"`
	}
	if err := json.Unmarshal(since[0].Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.N != 4 {
		t.Fatalf("payload n = %d, want 4", payload.N)
	}
}

func TestSubscribePrefixFilter(t *testing.T) {
	h := NewHub(10)
	jobs, cancelJobs := h.Subscribe("job.")
	defer cancelJobs()
	all, cancelAll := h.Subscribe()
	defer cancelAll()

	h.Publish(ShellCreated, nil)
	h.Publish(JobCompleted, map[string]any{"code": 0})

	select {
	case ev := <-jobs:
		if ev.Type != JobCompleted {
			t.Fatalf("filtered subscriber got %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no job event delivered")
	}

	for _, want := range []string{ShellCreated, JobCompleted} {
		select {
		case ev := <-all:
			if ev.Type != want {
				t.Fatalf("got %q, want %q", ev.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %q", want)
		}
	}
}

func TestNilPayloadIsEmptyObject(t *testing.T) {
	h := NewHub(1)
	h.Publish(ShellEvicted, nil)
	ev := h.SnapshotSince(0)[0]
	if string(ev.Data) != "{}" {
		t.Fatalf("data = %s, want {}", ev.Data)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}
	// Publishing after cancel must not panic.
	h.Publish(JobStarted, nil)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			h.Publish(JobStarted, nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on full subscriber")
	}
}
