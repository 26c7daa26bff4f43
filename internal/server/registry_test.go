package server

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient() *Client {
	return NewClient(nil, nil, "127.0.0.1:12345", zerolog.Nop(), 512)
}

// TestRegistryJoinLeave verifies that membership and session metadata stay in
// lockstep through a join/leave cycle.
func TestRegistryJoinLeave(t *testing.T) {
	reg := NewRegistry()
	c := newTestClient()

	reg.Join(c, 5, 1, "alice")

	if got := reg.ConnectionCount(); got != 1 {
		t.Fatalf("expected 1 connection, got %d", got)
	}
	sess, ok := reg.SessionOf(c)
	if !ok {
		t.Fatal("expected session metadata after join")
	}
	if sess.UserID != 1 || sess.Username != "alice" || sess.RoomID != 5 {
		t.Errorf("unexpected session: %+v", sess)
	}
	if members := reg.MembersOf(5); len(members) != 1 || members[0] != c {
		t.Errorf("expected room 5 to contain exactly the joined client")
	}

	left, ok := reg.Leave(c)
	if !ok {
		t.Fatal("expected leave to return the session")
	}
	if left != sess {
		t.Errorf("leave returned %+v, want %+v", left, sess)
	}
	if _, ok := reg.SessionOf(c); ok {
		t.Error("session should be deleted after leave")
	}
	if got := reg.ConnectionCount(); got != 0 {
		t.Errorf("expected 0 connections after leave, got %d", got)
	}
}

// TestRegistryDoubleLeave verifies that leaving twice, or leaving without
// joining, is a no-op that reports no metadata.
func TestRegistryDoubleLeave(t *testing.T) {
	reg := NewRegistry()
	a := newTestClient()
	b := newTestClient()

	reg.Join(a, 1, 1, "alice")
	reg.Join(b, 1, 2, "bob")

	if _, ok := reg.Leave(a); !ok {
		t.Fatal("first leave should return metadata")
	}
	if _, ok := reg.Leave(a); ok {
		t.Error("second leave should report no metadata")
	}

	never := newTestClient()
	if _, ok := reg.Leave(never); ok {
		t.Error("leaving an unjoined connection should report no metadata")
	}
	if got := len(reg.MembersOf(1)); got != 1 {
		t.Errorf("room membership disturbed by no-op leaves: %d members", got)
	}
}

// TestRegistryEmptyRoomRemoved verifies that the last leave deletes the room
// entry entirely, keeping registry size bounded by live occupancy.
func TestRegistryEmptyRoomRemoved(t *testing.T) {
	reg := NewRegistry()
	c := newTestClient()

	reg.Join(c, 7, 1, "alice")
	if got := reg.RoomCount(); got != 1 {
		t.Fatalf("expected 1 room, got %d", got)
	}

	reg.Leave(c)
	if got := reg.RoomCount(); got != 0 {
		t.Errorf("expected empty room to be removed, still have %d rooms", got)
	}
}

// TestRegistrySnapshotIsolation verifies that the slice returned by MembersOf
// is unaffected by later membership changes.
func TestRegistrySnapshotIsolation(t *testing.T) {
	reg := NewRegistry()
	a := newTestClient()
	b := newTestClient()

	reg.Join(a, 3, 1, "alice")
	reg.Join(b, 3, 2, "bob")

	snapshot := reg.MembersOf(3)
	reg.Leave(b)

	if len(snapshot) != 2 {
		t.Errorf("snapshot changed after leave: %d members", len(snapshot))
	}
	if got := len(reg.MembersOf(3)); got != 1 {
		t.Errorf("live membership should be 1, got %d", got)
	}
}

// TestRegistryConcurrentJoinLeave hammers the registry from many goroutines
// and checks that the final state is exactly the connections that joined and
// did not leave.
func TestRegistryConcurrentJoinLeave(t *testing.T) {
	reg := NewRegistry()

	const perRoom = 20
	var wg sync.WaitGroup
	stayers := make([]*Client, 0, perRoom)
	var mu sync.Mutex

	for room := int64(1); room <= 3; room++ {
		for i := 0; i < perRoom; i++ {
			wg.Add(1)
			go func(room int64, i int) {
				defer wg.Done()
				c := newTestClient()
				reg.Join(c, room, int64(i), "user")
				if i%2 == 0 {
					reg.Leave(c)
					return
				}
				if room == 1 {
					mu.Lock()
					stayers = append(stayers, c)
					mu.Unlock()
				}
			}(room, i)
		}
	}
	wg.Wait()

	if got := reg.ConnectionCount(); got != 3*perRoom/2 {
		t.Errorf("expected %d connections, got %d", 3*perRoom/2, got)
	}
	if got := len(reg.MembersOf(1)); got != len(stayers) {
		t.Errorf("room 1 has %d members, expected %d", got, len(stayers))
	}
	for _, c := range stayers {
		if _, ok := reg.SessionOf(c); !ok {
			t.Error("stayer lost its session metadata")
		}
	}
}
