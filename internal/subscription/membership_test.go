package subscription

import (
	"fmt"
	"sync"
	"testing"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/protocol"
)

type fakeHandle struct{ id string }

func (f *fakeHandle) ID() string                   { return f.id }
func (f *fakeHandle) Send(protocol.Outbound) error { return nil }
func (f *fakeHandle) Close() error                 { return nil }

func countOf(handles []connection.Handle, h connection.Handle) int {
	n := 0
	for _, x := range handles {
		if x.ID() == h.ID() {
			n++
		}
	}
	return n
}

func TestJoinIsIdempotent(t *testing.T) {
	m := NewRoomMembership()
	h := &fakeHandle{"h1"}

	if !m.Join("r1", h) {
		t.Fatal("first join should report a new subscription")
	}
	if m.Join("r1", h) {
		t.Fatal("second join should be a no-op")
	}
	if n := countOf(m.Subscribers("r1"), h); n != 1 {
		t.Fatalf("expected handle once, got %d", n)
	}
}

func TestLeave(t *testing.T) {
	m := NewRoomMembership()
	a, b := &fakeHandle{"a"}, &fakeHandle{"b"}
	m.Join("r1", a)
	m.Join("r1", b)

	if !m.Leave("r1", a) {
		t.Fatal("leave should report removal")
	}
	if m.Leave("r1", a) {
		t.Fatal("second leave should be a no-op")
	}
	if subs := m.Subscribers("r1"); len(subs) != 1 || subs[0].ID() != "b" {
		t.Fatalf("unexpected subscribers %v", subs)
	}
	m.Leave("r1", b)
	if m.RoomCount() != 0 {
		t.Fatal("empty room should be pruned")
	}
	if subs := m.Subscribers("r1"); len(subs) != 0 {
		t.Fatal("pruned room must have no subscribers")
	}
}

func TestLeaveAll(t *testing.T) {
	m := NewRoomMembership()
	a, b := &fakeHandle{"a"}, &fakeHandle{"b"}
	m.Join("r1", a)
	m.Join("r2", a)
	m.Join("r2", b)

	left := m.LeaveAll(a)
	if fmt.Sprint(left) != "[r1 r2]" {
		t.Fatalf("unexpected rooms left %v", left)
	}
	for _, room := range []string{"r1", "r2"} {
		if countOf(m.Subscribers(room), a) != 0 {
			t.Fatalf("handle still subscribed to %s", room)
		}
	}
	if len(m.RoomsOf(a)) != 0 {
		t.Fatal("reverse index not cleared")
	}
	if countOf(m.Subscribers("r2"), b) != 1 {
		t.Fatal("other handle must remain subscribed")
	}
	if len(m.LeaveAll(a)) != 0 {
		t.Fatal("second LeaveAll should be a no-op")
	}
}

func TestSubscribersIsSnapshot(t *testing.T) {
	m := NewRoomMembership()
	a := &fakeHandle{"a"}
	m.Join("r1", a)

	snapshot := m.Subscribers("r1")
	m.Join("r1", &fakeHandle{"b"})
	m.Leave("r1", a)

	if len(snapshot) != 1 || snapshot[0].ID() != "a" {
		t.Fatalf("snapshot changed after mutation: %v", snapshot)
	}
}

// 并发 join 其他连接时，LeaveAll 之后目标连接不会出现在任何房间
func TestLeaveAllWithConcurrentJoins(t *testing.T) {
	m := NewRoomMembership()
	target := &fakeHandle{"target"}
	rooms := []string{"r1", "r2", "r3", "r4"}
	for _, room := range rooms {
		m.Join(room, target)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := &fakeHandle{fmt.Sprintf("other-%d", i)}
			for _, room := range rooms {
				m.Join(room, h)
				_ = m.Subscribers(room)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.LeaveAll(target)
	}()
	wg.Wait()

	for _, room := range rooms {
		if countOf(m.Subscribers(room), target) != 0 {
			t.Fatalf("target resurrected in %s", room)
		}
		if len(m.Subscribers(room)) != 20 {
			t.Fatalf("expected 20 other subscribers in %s, got %d", room, len(m.Subscribers(room)))
		}
	}
}

func TestRoomsOf(t *testing.T) {
	m := NewRoomMembership()
	h := &fakeHandle{"h"}
	m.Join("b", h)
	m.Join("a", h)
	if fmt.Sprint(m.RoomsOf(h)) != "[a b]" {
		t.Fatalf("unexpected rooms %v", m.RoomsOf(h))
	}
}
