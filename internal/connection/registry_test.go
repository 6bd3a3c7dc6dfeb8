package connection

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/protocol"
)

type fakeHandle struct{ id string }

func (f *fakeHandle) ID() string                   { return f.id }
func (f *fakeHandle) Send(protocol.Outbound) error { return nil }
func (f *fakeHandle) Close() error                 { return nil }

func TestBindLookupUnbind(t *testing.T) {
	r := NewRegistry()
	h1 := &fakeHandle{"h1"}

	if _, ok := r.Lookup("alice"); ok {
		t.Fatal("empty registry returned a handle")
	}
	if prev := r.Bind("alice", h1); prev != nil {
		t.Fatalf("unexpected previous handle %v", prev)
	}
	if got, ok := r.Lookup("alice"); !ok || got != h1 {
		t.Fatalf("expected h1, got %v", got)
	}

	if userID, ok := r.Unbind(h1); !ok || userID != "alice" {
		t.Fatalf("unbind returned %q %v", userID, ok)
	}
	if _, ok := r.Lookup("alice"); ok {
		t.Fatal("lookup returned an unbound handle")
	}
	// 幂等
	if _, ok := r.Unbind(h1); ok {
		t.Fatal("second unbind should be a no-op")
	}
}

func TestRebindReplacesAndStaleUnbindKeepsNewest(t *testing.T) {
	r := NewRegistry()
	oldHandle, newHandle := &fakeHandle{"old"}, &fakeHandle{"new"}

	r.Bind("alice", oldHandle)
	if prev := r.Bind("alice", newHandle); prev != oldHandle {
		t.Fatalf("expected old handle to be returned, got %v", prev)
	}
	if got, _ := r.Lookup("alice"); got != newHandle {
		t.Fatal("lookup must return the newest handle")
	}

	// 旧连接断开不能删除新绑定
	if _, ok := r.Unbind(oldHandle); ok {
		t.Fatal("stale handle should no longer be bound")
	}
	if got, ok := r.Lookup("alice"); !ok || got != newHandle {
		t.Fatal("newest binding was removed by stale unbind")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Count())
	}
}

func TestRebindSameHandleIsNoop(t *testing.T) {
	r := NewRegistry()
	h := &fakeHandle{"h"}
	r.Bind("alice", h)
	if prev := r.Bind("alice", h); prev != nil {
		t.Fatal("re-binding the same handle must not report a previous handle")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Count())
	}
}

func TestHandleBoundToAnotherUserIsMoved(t *testing.T) {
	r := NewRegistry()
	h := &fakeHandle{"h"}
	r.Bind("alice", h)
	r.Bind("bob", h)

	if _, ok := r.Lookup("alice"); ok {
		t.Fatal("handle must map to at most one user")
	}
	if userID, _ := r.UserOf(h); userID != "bob" {
		t.Fatalf("expected bob, got %s", userID)
	}
}

func TestOnlineSorted(t *testing.T) {
	r := NewRegistry()
	r.Bind("carol", &fakeHandle{"3"})
	r.Bind("alice", &fakeHandle{"1"})
	r.Bind("bob", &fakeHandle{"2"})

	online := r.Online()
	if fmt.Sprint(online) != "[alice bob carol]" {
		t.Fatalf("unexpected online list %v", online)
	}
}

// 随机的 bind/unbind 序列：lookup 永远不会返回已解绑且未重新绑定的连接
func TestRandomBindUnbindSequences(t *testing.T) {
	r := NewRegistry()
	rng := rand.New(rand.NewSource(42))
	handles := make([]*fakeHandle, 8)
	for i := range handles {
		handles[i] = &fakeHandle{fmt.Sprintf("h%d", i)}
	}
	bound := map[string]*fakeHandle{} // 期望模型

	for step := 0; step < 2000; step++ {
		h := handles[rng.Intn(len(handles))]
		if rng.Intn(2) == 0 {
			for u, bh := range bound {
				if bh == h {
					delete(bound, u)
				}
			}
			r.Bind("alice", h)
			bound["alice"] = h
		} else {
			r.Unbind(h)
			if bound["alice"] == h {
				delete(bound, "alice")
			}
		}

		got, ok := r.Lookup("alice")
		want, wantOK := bound["alice"]
		if ok != wantOK || (ok && got != want) {
			t.Fatalf("step %d: lookup=%v,%v model=%v,%v", step, got, ok, want, wantOK)
		}
	}
}

func TestConcurrentBindUnbind(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := &fakeHandle{fmt.Sprintf("h%d", i)}
			user := fmt.Sprintf("user%d", i%5)
			r.Bind(user, h)
			r.Lookup(user)
			r.Unbind(h)
		}(i)
	}
	wg.Wait()

	// 每个用户的最终绑定只能指向一个仍登记的连接
	for _, user := range r.Online() {
		h, _ := r.Lookup(user)
		if owner, ok := r.UserOf(h); !ok || owner != user {
			t.Fatalf("inconsistent reverse index for %s", user)
		}
	}
}
