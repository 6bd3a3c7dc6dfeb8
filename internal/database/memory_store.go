package database

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 进程内实现，用于测试和本地运行
type MemoryStore struct {
	mu      sync.RWMutex
	history map[string][]Record
	users   map[string]User
	groups  map[string]Group
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history: make(map[string][]Record),
		users:   make(map[string]User),
		groups:  make(map[string]Group),
		now:     time.Now,
	}
}

func (ms *MemoryStore) Save(ctx context.Context, record Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	record, err := prepare(record, uuid.NewString, ms.now)
	if err != nil {
		return Record{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	key := record.Chat().String()
	ms.history[key] = append(ms.history[key], record)
	return record, nil
}

func (ms *MemoryStore) History(ctx context.Context, chat ChatID) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := chat.Validate(); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	records := slices.Clone(ms.history[chat.String()])
	ms.mu.RUnlock()

	if records == nil {
		records = []Record{}
	}
	slices.SortStableFunc(records, func(a, b Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return records, nil
}

// AddUser 写入目录用户
func (ms *MemoryStore) AddUser(user User) error {
	if user.ID == "" {
		return fmt.Errorf("%w: user id", ErrEmptyField)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.users[user.ID] = user
	return nil
}

// AddGroup 写入群组及其持久成员
func (ms *MemoryStore) AddGroup(group Group) error {
	if group.ID == "" {
		return fmt.Errorf("%w: group id", ErrEmptyField)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	group.Members = slices.Clone(group.Members)
	slices.Sort(group.Members)
	ms.groups[group.ID] = group
	return nil
}

func (ms *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	users := make([]User, 0, len(ms.users))
	for _, user := range ms.users {
		users = append(users, user)
	}
	ms.mu.RUnlock()

	slices.SortFunc(users, func(a, b User) int {
		if n := strings.Compare(a.Username, b.Username); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return users, nil
}

func (ms *MemoryStore) ListGroupsFor(ctx context.Context, userID string) ([]Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", ErrEmptyField)
	}
	ms.mu.RLock()
	groups := make([]Group, 0)
	for _, group := range ms.groups {
		if slices.Contains(group.Members, userID) {
			group.Members = slices.Clone(group.Members)
			groups = append(groups, group)
		}
	}
	ms.mu.RUnlock()

	slices.SortFunc(groups, func(a, b Group) int {
		if n := strings.Compare(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return groups, nil
}

func (ms *MemoryStore) Close(context.Context) error {
	return nil
}
