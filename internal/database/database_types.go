package database

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	MessageCollectionName = "messages"
	UserCollectionName    = "users"
	GroupCollectionName   = "groups"
)

const (
	KindDirect = "direct"
	KindGroup  = "group"
)

var (
	ErrEmptyField    = errors.New("required field is empty")
	ErrNotConfigured = errors.New("storage is not configured")
)

// Record 持久化的一条消息，私聊时 Receiver 为用户，群聊时为群 ID
type Record struct {
	ID        string    `bson:"_id" json:"id"`
	Sender    string    `bson:"sender" json:"sender"`
	Receiver  string    `bson:"receiver" json:"receiver"`
	Kind      string    `bson:"kind" json:"kind"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

func (r Record) Validate() error {
	switch {
	case r.Sender == "":
		return fmt.Errorf("%w: sender", ErrEmptyField)
	case r.Receiver == "":
		return fmt.Errorf("%w: receiver", ErrEmptyField)
	case r.Content == "":
		return fmt.Errorf("%w: content", ErrEmptyField)
	case r.Kind != KindDirect && r.Kind != KindGroup:
		return fmt.Errorf("%w: unknown kind %q", ErrEmptyField, r.Kind)
	}
	return nil
}

// Chat 返回记录所属的会话
func (r Record) Chat() ChatID {
	if r.Kind == KindGroup {
		return RoomChat(r.Receiver)
	}
	return DirectChat(r.Sender, r.Receiver)
}

type User struct {
	ID       string `bson:"_id" json:"id"`
	Username string `bson:"username" json:"username"`
}

type Group struct {
	ID      string   `bson:"_id" json:"id"`
	Name    string   `bson:"name" json:"name"`
	Members []string `bson:"members" json:"members"`
}

// ChatID 标识一段会话：两人私聊（与顺序无关）或一个群
type ChatID struct {
	Kind  string
	Peers [2]string
	Room  string
}

func DirectChat(a, b string) ChatID {
	peers := []string{a, b}
	slices.Sort(peers)
	return ChatID{Kind: KindDirect, Peers: [2]string{peers[0], peers[1]}}
}

func RoomChat(roomID string) ChatID {
	return ChatID{Kind: KindGroup, Room: roomID}
}

func (c ChatID) Validate() error {
	if c.Kind == KindGroup {
		if c.Room == "" {
			return fmt.Errorf("%w: room id", ErrEmptyField)
		}
		return nil
	}
	if c.Kind != KindDirect {
		return fmt.Errorf("%w: unknown chat kind %q", ErrEmptyField, c.Kind)
	}
	if c.Peers[0] == "" || c.Peers[1] == "" {
		return fmt.Errorf("%w: chat peer", ErrEmptyField)
	}
	return nil
}

func (c ChatID) String() string {
	if c.Kind == KindGroup {
		return "room:" + c.Room
	}
	return "dm:" + c.Peers[0] + ":" + c.Peers[1]
}

// MessageStore 消息持久化，与实时投递互相独立
type MessageStore interface {
	Save(ctx context.Context, record Record) (Record, error)
	// History 按 CreatedAt 升序返回会话的全部消息
	History(ctx context.Context, chat ChatID) ([]Record, error)
}

// Directory 用户与群组目录，只读快照
type Directory interface {
	ListUsers(ctx context.Context) ([]User, error)
	ListGroupsFor(ctx context.Context, userID string) ([]Group, error)
}

type Store interface {
	MessageStore
	Directory
	Close(ctx context.Context) error
}

// prepare 校验并补全待保存的记录
func prepare(record Record, newID func() string, now func() time.Time) (Record, error) {
	if record.Kind == "" {
		record.Kind = KindDirect
	}
	if err := record.Validate(); err != nil {
		return Record{}, err
	}
	if record.ID == "" {
		record.ID = newID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now()
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}
