package rooms

import (
	"context"
	"io"
	"slices"
	"socketd/internal/logging"
	"socketd/internal/models"
	"sync"
	"testing"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type emitted struct {
	channel, event, except string
	payload                any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (f *fakeEmitter) EmitChannel(_ context.Context, channelID, event string, payload any, exceptConn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{channelID, event, exceptConn, payload})
	return nil
}

func TestManager_JoinLeave(t *testing.T) {
	ctx := context.Background()
	em := &fakeEmitter{}
	reg := NewRegistry()
	m := NewManager(reg, em)

	if err := m.Join(ctx, "c1", "u1", "room1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Join(ctx, "c2", "u2", "room1"); err != nil {
		t.Fatal(err)
	}

	members := m.Members("room1")
	slices.Sort(members)
	if !slices.Equal(members, []string{"c1", "c2"}) {
		t.Errorf("members = %v", members)
	}

	if len(em.events) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(em.events))
	}
	last := em.events[1]
	if last.event != models.EventUserJoined || last.except != "c2" || last.channel != "room1" {
		t.Errorf("unexpected notice %+v", last)
	}
	if n, ok := last.payload.(models.MembershipNotice); !ok || n.UserID != "u2" {
		t.Errorf("unexpected payload %+v", last.payload)
	}

	if err := m.Leave(ctx, "c1", "u1", "room1"); err != nil {
		t.Fatal(err)
	}
	if got := em.events[2]; got.event != models.EventUserLeft || got.except != "c1" {
		t.Errorf("unexpected leave notice %+v", got)
	}
}

func TestManager_DuplicateJoinRenotifies(t *testing.T) {
	ctx := context.Background()
	em := &fakeEmitter{}
	m := NewManager(NewRegistry(), em)

	_ = m.Join(ctx, "c1", "u1", "room1")
	_ = m.Join(ctx, "c1", "u1", "room1")

	if len(em.events) != 2 {
		t.Errorf("duplicate join should notify again, got %d notices", len(em.events))
	}
	if members := m.Members("room1"); len(members) != 1 {
		t.Errorf("duplicate join should not duplicate membership: %v", members)
	}
}

func TestManager_LeaveNotJoinedIsNoop(t *testing.T) {
	ctx := context.Background()
	em := &fakeEmitter{}
	reg := NewRegistry()
	m := NewManager(reg, em)

	_ = m.Join(ctx, "c1", "u1", "room1")
	before := len(em.events)

	if err := m.Leave(ctx, "c2", "u2", "room1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Leave(ctx, "c1", "u1", "other"); err != nil {
		t.Fatal(err)
	}
	if len(em.events) != before {
		t.Error("leaving a channel not joined must not notify")
	}
	if members := m.Members("room1"); len(members) != 1 {
		t.Errorf("membership changed: %v", members)
	}
}

func TestRegistry_PruneAndLeaveAll(t *testing.T) {
	reg := NewRegistry()
	m := NewManager(reg, &fakeEmitter{})

	reg.Add("c1", "a")
	reg.Add("c1", "b")
	reg.Add("c2", "b")

	if got := reg.Channels("c1"); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("channels = %v", got)
	}

	left := m.LeaveAll("c1")
	if !slices.Equal(left, []string{"a", "b"}) {
		t.Errorf("LeaveAll = %v", left)
	}
	if reg.Len() != 1 {
		t.Errorf("empty channel a should be pruned, have %d channels", reg.Len())
	}
	if got := reg.Members("b"); !slices.Equal(got, []string{"c2"}) {
		t.Errorf("members of b = %v", got)
	}
	if got := m.LeaveAll("c1"); len(got) != 0 {
		t.Errorf("second LeaveAll should be empty, got %v", got)
	}
}
