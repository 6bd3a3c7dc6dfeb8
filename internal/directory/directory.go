// Package directory 为用户和群组目录提供带过期的 LRU 快照缓存
package directory

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
)

const usersKey = "users"

// Cache 包装 database.Directory。目录本身是最终一致的快照，短暂过期可以接受
type Cache struct {
	source database.Directory
	users  *expirable.LRU[string, []database.User]
	groups *expirable.LRU[string, []database.Group]
}

var _ database.Directory = (*Cache)(nil)

func NewCache(source database.Directory, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 1024
	}
	return &Cache{
		source: source,
		users:  expirable.NewLRU[string, []database.User](1, nil, ttl),
		groups: expirable.NewLRU[string, []database.Group](size, nil, ttl),
	}
}

func (c *Cache) ListUsers(ctx context.Context) ([]database.User, error) {
	if users, ok := c.users.Get(usersKey); ok {
		return slices.Clone(users), nil
	}

	startTime := time.Now()
	users, err := c.source.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	logger.DebugF("directory users query cost: %v", time.Since(startTime))

	c.users.Add(usersKey, users)
	return slices.Clone(users), nil
}

func (c *Cache) ListGroupsFor(ctx context.Context, userID string) ([]database.Group, error) {
	if groups, ok := c.groups.Get(userID); ok {
		return slices.Clone(groups), nil
	}

	startTime := time.Now()
	groups, err := c.source.ListGroupsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	logger.DebugF("directory groups query for %s cost: %v", userID, time.Since(startTime))

	c.groups.Add(userID, groups)
	return slices.Clone(groups), nil
}
