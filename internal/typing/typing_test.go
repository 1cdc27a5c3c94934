package typing

import (
	"context"
	"errors"
	"io"
	"socketd/internal/logging"
	"socketd/internal/models"
	"socketd/internal/store"
	"testing"
	"time"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type relayed struct {
	channel, except string
	event           models.TypingEvent
}

type fakeEmitter struct {
	out []relayed
}

func (f *fakeEmitter) EmitChannel(_ context.Context, channelID, event string, payload any, exceptConn string) error {
	if event != models.EventUserTyping {
		return errors.New("unexpected event " + event)
	}
	f.out = append(f.out, relayed{channelID, exceptConn, payload.(models.TypingEvent)})
	return nil
}

type brokenStore struct{}

func (brokenStore) SetTyping(context.Context, string, string) error { return errors.New("down") }
func (brokenStore) ClearTyping(context.Context, string, string) error {
	return errors.New("down")
}
func (brokenStore) IsTyping(context.Context, string, string) (bool, error) {
	return false, errors.New("down")
}

func TestTracker_SetAndClear(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	em := &fakeEmitter{}
	tr := New(store.NewMemoryTyping(ctx, time.Minute), em)

	if err := tr.SetTyping(ctx, "c1", "u1", "conv1", true); err != nil {
		t.Fatal(err)
	}
	if !tr.IsTyping(ctx, "u1", "conv1") {
		t.Error("expected u1 typing in conv1")
	}
	if len(em.out) != 1 || em.out[0].except != "c1" || !em.out[0].event.IsTyping || em.out[0].event.ConversationID != "conv1" {
		t.Errorf("unexpected relay %+v", em.out)
	}

	tr.Clear(ctx, "u1", "conv1")
	if tr.IsTyping(ctx, "u1", "conv1") {
		t.Error("Clear should reset typing")
	}
	if len(em.out) != 1 {
		t.Error("Clear must not broadcast")
	}
}

func TestTracker_BroadcastsWhenStoreFails(t *testing.T) {
	em := &fakeEmitter{}
	tr := New(brokenStore{}, em)

	if err := tr.SetTyping(context.Background(), "c1", "u1", "conv1", true); err != nil {
		t.Fatal(err)
	}
	if len(em.out) != 1 {
		t.Error("typing must be relayed regardless of the store outcome")
	}
	if tr.IsTyping(context.Background(), "u1", "conv1") {
		t.Error("store errors read as not typing")
	}
}

func TestTracker_ClearConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	em := &fakeEmitter{}
	tr := New(store.NewMemoryTyping(ctx, time.Minute), em)

	_ = tr.SetTyping(ctx, "c1", "u1", "a", true)
	_ = tr.SetTyping(ctx, "c1", "u1", "b", true)
	em.out = nil

	tr.ClearConnection(ctx, "c1", "u1", []string{"a", "b"})

	if len(em.out) != 2 {
		t.Fatalf("expected a stop notice per channel, got %d", len(em.out))
	}
	for _, r := range em.out {
		if r.event.IsTyping || r.except != "c1" {
			t.Errorf("unexpected notice %+v", r)
		}
	}
	if tr.IsTyping(ctx, "u1", "a") || tr.IsTyping(ctx, "u1", "b") {
		t.Error("typing should be cleared on disconnect")
	}
}
