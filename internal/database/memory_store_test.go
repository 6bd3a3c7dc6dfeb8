package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, r := range []Record{
		{Sender: "alice", Receiver: "bob", Content: "1"},
		{Sender: "bob", Receiver: "alice", Content: "2"},
		{Sender: "alice", Receiver: "carol", Content: "other"},
		{Sender: "alice", Receiver: "r1", Kind: KindGroup, Content: "group"},
		{Sender: "alice", Receiver: "bob", Content: "3"},
	} {
		saved, err := store.Save(ctx, r)
		if err != nil {
			t.Fatal(err)
		}
		if saved.ID == "" || saved.CreatedAt.IsZero() {
			t.Fatalf("record not completed: %+v", saved)
		}
	}

	history, err := store.History(ctx, DirectChat("bob", "alice"))
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 records, got %d", len(history))
	}
	for i, want := range []string{"1", "2", "3"} {
		if history[i].Content != want {
			t.Fatalf("record %d: got %q", i, history[i].Content)
		}
	}

	group, err := store.History(ctx, RoomChat("r1"))
	if err != nil || len(group) != 1 || group[0].Content != "group" {
		t.Fatalf("unexpected group history %+v %v", group, err)
	}

	empty, err := store.History(ctx, RoomChat("nobody"))
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil history, got %v %v", empty, err)
	}
}

func TestMemoryStoreOrdersByCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	late := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	early := late.Add(-time.Hour)

	_, _ = store.Save(ctx, Record{Sender: "a", Receiver: "b", Content: "late", CreatedAt: late})
	_, _ = store.Save(ctx, Record{Sender: "a", Receiver: "b", Content: "early", CreatedAt: early})

	history, _ := store.History(ctx, DirectChat("a", "b"))
	if history[0].Content != "early" || history[1].Content != "late" {
		t.Fatalf("history not ordered by created_at: %+v", history)
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Save(context.Background(), Record{Sender: "a", Receiver: "b"}); !errors.Is(err, ErrEmptyField) {
		t.Fatalf("expected ErrEmptyField, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Save(ctx, Record{Sender: "a", Receiver: "b", Content: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryStoreDirectory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.AddUser(User{ID: "u2", Username: "bob"})
	_ = store.AddUser(User{ID: "u1", Username: "alice"})
	_ = store.AddGroup(Group{ID: "g1", Name: "team", Members: []string{"u2", "u1"}})
	_ = store.AddGroup(Group{ID: "g2", Name: "admins", Members: []string{"u1"}})

	users, err := store.ListUsers(ctx)
	if err != nil || len(users) != 2 || users[0].Username != "alice" {
		t.Fatalf("unexpected users %+v %v", users, err)
	}

	groups, err := store.ListGroupsFor(ctx, "u1")
	if err != nil || len(groups) != 2 || groups[0].Name != "admins" {
		t.Fatalf("unexpected groups %+v %v", groups, err)
	}
	groups, _ = store.ListGroupsFor(ctx, "u2")
	if len(groups) != 1 || groups[0].ID != "g1" || groups[0].Members[0] != "u1" {
		t.Fatalf("unexpected groups for u2 %+v", groups)
	}

	if _, err := store.ListGroupsFor(ctx, ""); !errors.Is(err, ErrEmptyField) {
		t.Fatalf("expected ErrEmptyField, got %v", err)
	}
	if err := store.AddUser(User{}); !errors.Is(err, ErrEmptyField) {
		t.Fatalf("expected ErrEmptyField, got %v", err)
	}
}
