package directory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/database"
)

type countingDirectory struct {
	userCalls  atomic.Int32
	groupCalls atomic.Int32
	err        error
}

func (d *countingDirectory) ListUsers(context.Context) ([]database.User, error) {
	d.userCalls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return []database.User{{ID: "u1", Username: "alice"}}, nil
}

func (d *countingDirectory) ListGroupsFor(_ context.Context, userID string) ([]database.Group, error) {
	d.groupCalls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return []database.Group{{ID: "g-" + userID, Name: "team", Members: []string{userID}}}, nil
}

func TestCacheServesRepeatedReads(t *testing.T) {
	source := &countingDirectory{}
	cache := NewCache(source, 8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		users, err := cache.ListUsers(ctx)
		if err != nil || len(users) != 1 {
			t.Fatalf("unexpected users %v %v", users, err)
		}
		groups, err := cache.ListGroupsFor(ctx, "u1")
		if err != nil || len(groups) != 1 || groups[0].ID != "g-u1" {
			t.Fatalf("unexpected groups %v %v", groups, err)
		}
	}
	if source.userCalls.Load() != 1 || source.groupCalls.Load() != 1 {
		t.Fatalf("expected one source call each, got %d/%d", source.userCalls.Load(), source.groupCalls.Load())
	}

	_, _ = cache.ListGroupsFor(ctx, "u2")
	if source.groupCalls.Load() != 2 {
		t.Fatal("groups must be cached per user")
	}
}

func TestCacheExpires(t *testing.T) {
	source := &countingDirectory{}
	cache := NewCache(source, 8, 20*time.Millisecond)
	ctx := context.Background()

	_, _ = cache.ListUsers(ctx)
	time.Sleep(60 * time.Millisecond)
	_, _ = cache.ListUsers(ctx)
	if source.userCalls.Load() != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", source.userCalls.Load())
	}
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	source := &countingDirectory{err: errors.New("down")}
	cache := NewCache(source, 8, time.Minute)
	ctx := context.Background()

	if _, err := cache.ListUsers(ctx); err == nil {
		t.Fatal("expected error")
	}
	source.err = nil
	if users, err := cache.ListUsers(ctx); err != nil || len(users) != 1 {
		t.Fatalf("unexpected users %v %v", users, err)
	}
}

func TestReturnedSliceIsCopy(t *testing.T) {
	cache := NewCache(&countingDirectory{}, 8, time.Minute)
	users, _ := cache.ListUsers(context.Background())
	users[0].Username = "mallory"
	again, _ := cache.ListUsers(context.Background())
	if again[0].Username != "alice" {
		t.Fatal("caller mutation leaked into cache")
	}
}
