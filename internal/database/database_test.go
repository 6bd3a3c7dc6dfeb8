package database

import (
	"context"
	"errors"
	"testing"
	"time"

	c "github.com/life-stream-dev/life-stream-go-chat-relay/internal/config"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDirectChatIsOrderIndependent(t *testing.T) {
	if DirectChat("alice", "bob") != DirectChat("bob", "alice") {
		t.Fatal("direct chat id depends on argument order")
	}
	if DirectChat("alice", "bob").String() != "dm:alice:bob" {
		t.Fatalf("unexpected key %s", DirectChat("alice", "bob"))
	}
	if RoomChat("r1").String() != "room:r1" {
		t.Fatalf("unexpected key %s", RoomChat("r1"))
	}
}

func TestChatValidate(t *testing.T) {
	tests := []struct {
		name string
		chat ChatID
		ok   bool
	}{
		{"direct", DirectChat("a", "b"), true},
		{"room", RoomChat("r"), true},
		{"empty peer", DirectChat("a", ""), false},
		{"empty room", RoomChat(""), false},
		{"zero", ChatID{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chat.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrEmptyField) {
				t.Fatalf("expected ErrEmptyField, got %v", err)
			}
		})
	}
}

func TestRecordValidate(t *testing.T) {
	valid := Record{Sender: "a", Receiver: "b", Kind: KindDirect, Content: "hi"}
	if err := valid.Validate(); err != nil {
		t.Fatal(err)
	}
	for _, r := range []Record{
		{Receiver: "b", Kind: KindDirect, Content: "hi"},
		{Sender: "a", Kind: KindDirect, Content: "hi"},
		{Sender: "a", Receiver: "b", Kind: KindDirect},
		{Sender: "a", Receiver: "b", Kind: "broadcast", Content: "hi"},
	} {
		if err := r.Validate(); !errors.Is(err, ErrEmptyField) {
			t.Fatalf("%+v: expected ErrEmptyField, got %v", r, err)
		}
	}
}

func TestPrepareFillsDefaults(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	record, err := prepare(Record{Sender: "a", Receiver: "b", Content: "hi"},
		func() string { return "id-1" },
		func() time.Time { return fixed })
	if err != nil {
		t.Fatal(err)
	}
	if record.ID != "id-1" || record.Kind != KindDirect {
		t.Fatalf("defaults not applied: %+v", record)
	}
	if !record.CreatedAt.Equal(fixed) || record.CreatedAt.Location() != time.UTC {
		t.Fatalf("created_at not normalised: %v", record.CreatedAt)
	}
}

func TestHistoryFilter(t *testing.T) {
	group := historyFilter(RoomChat("r1"))
	if group.Map()["receiver"] != "r1" || group.Map()["kind"] != KindGroup {
		t.Fatalf("unexpected group filter %v", group)
	}
	direct := historyFilter(DirectChat("b", "a"))
	or, ok := direct.Map()["$or"].(bson.A)
	if !ok || len(or) != 2 {
		t.Fatalf("unexpected direct filter %v", direct)
	}
}

func TestRecordFromStream(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	record := recordFromStream(redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"id":         "m1",
			"sender":     "a",
			"receiver":   "r1",
			"kind":       KindGroup,
			"content":    "hello",
			"created_at": "1704164645000000006",
		},
	})
	if record.ID != "m1" || record.Receiver != "r1" || record.Content != "hello" || !record.CreatedAt.Equal(created) {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestMongoURI(t *testing.T) {
	anonymous := mongoURI(c.DatabaseConfig{Host: "db", Port: 27017})
	if anonymous != "mongodb://db:27017/" {
		t.Fatalf("unexpected uri %s", anonymous)
	}
	auth := mongoURI(c.DatabaseConfig{Host: "db", Port: 1, Username: "u@x", Password: "p:w"})
	if auth != "mongodb://u%40x:p%3Aw@db:1/?authSource=admin" {
		t.Fatalf("unexpected uri %s", auth)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := c.Default()
	cfg.Storage.Driver = "sqlite"
	if _, err := Open(cfg); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestOpenMemory(t *testing.T) {
	cfg := c.Default()
	cfg.Storage.Driver = c.StorageMemory
	store, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	if err := store.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
