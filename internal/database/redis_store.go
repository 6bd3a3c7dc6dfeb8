package database

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	c "github.com/life-stream-dev/life-stream-go-chat-relay/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Redis 键布局：
//
//	chat:history:<chat>        每个会话一个 Stream
//	chat:users                 Hash，user id -> username
//	chat:groups                Hash，group id -> name
//	chat:group:<id>:members    Set
//	chat:user:<id>:groups      Set，反向索引
const (
	redisUsersKey  = "chat:users"
	redisGroupsKey = "chat:groups"
)

func historyKey(chat ChatID) string { return "chat:history:" + chat.String() }

func groupMembersKey(groupID string) string { return "chat:group:" + groupID + ":members" }

func userGroupsKey(userID string) string { return "chat:user:" + userID + ":groups" }

type RedisStore struct {
	rdb       *redis.Client
	timeout   time.Duration
	streamMax int64
}

// ConnectRedis 创建 Redis 客户端并验证连接
func ConnectRedis(config c.Config) (*RedisStore, error) {
	logger.DebugF("Connecting to redis...")
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("error occured while pinging redis: %w", err)
	}
	logger.InfoF("Connected to redis at %s", config.Redis.Addr)
	return NewRedisStore(rdb, config.Database.OperationTimeoutDuration(), config.Redis.StreamMax), nil
}

func NewRedisStore(rdb *redis.Client, timeout time.Duration, streamMax int64) *RedisStore {
	return &RedisStore{rdb: rdb, timeout: timeout, streamMax: streamMax}
}

func (rs *RedisStore) Save(ctx context.Context, record Record) (Record, error) {
	record, err := prepare(record, uuid.NewString, time.Now)
	if err != nil {
		return Record{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: historyKey(record.Chat()),
		Values: map[string]any{
			"id":         record.ID,
			"sender":     record.Sender,
			"receiver":   record.Receiver,
			"kind":       record.Kind,
			"content":    record.Content,
			"created_at": record.CreatedAt.UnixNano(),
		},
	}
	if rs.streamMax > 0 {
		args.MaxLen = rs.streamMax
		args.Approx = true
	}
	if err := rs.rdb.XAdd(ctx, args).Err(); err != nil {
		return Record{}, fmt.Errorf("redis operation failed: %w", err)
	}
	return record, nil
}

func recordFromStream(msg redis.XMessage) Record {
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}
	record := Record{
		ID:       str("id"),
		Sender:   str("sender"),
		Receiver: str("receiver"),
		Kind:     str("kind"),
		Content:  str("content"),
	}
	if nanos, err := strconv.ParseInt(str("created_at"), 10, 64); err == nil {
		record.CreatedAt = time.Unix(0, nanos).UTC()
	}
	return record
}

func (rs *RedisStore) History(ctx context.Context, chat ChatID) ([]Record, error) {
	if err := chat.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	messages, err := rs.rdb.XRange(ctx, historyKey(chat), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redis operation failed: %w", err)
	}
	records := make([]Record, 0, len(messages))
	for _, msg := range messages {
		records = append(records, recordFromStream(msg))
	}
	// Stream ID 已按写入顺序排列，客户端指定的 CreatedAt 可能乱序
	slices.SortStableFunc(records, func(a, b Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return records, nil
}

func (rs *RedisStore) ListUsers(ctx context.Context) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	entries, err := rs.rdb.HGetAll(ctx, redisUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis operation failed: %w", err)
	}
	users := make([]User, 0, len(entries))
	for id, name := range entries {
		users = append(users, User{ID: id, Username: name})
	}
	slices.SortFunc(users, func(a, b User) int {
		if n := strings.Compare(a.Username, b.Username); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return users, nil
}

func (rs *RedisStore) ListGroupsFor(ctx context.Context, userID string) ([]Group, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", ErrEmptyField)
	}

	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	ids, err := rs.rdb.SMembers(ctx, userGroupsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis operation failed: %w", err)
	}
	if len(ids) == 0 {
		return []Group{}, nil
	}
	slices.Sort(ids)

	pipe := rs.rdb.Pipeline()
	names := pipe.HMGet(ctx, redisGroupsKey, ids...)
	members := make([]*redis.StringSliceCmd, len(ids))
	for i, id := range ids {
		members[i] = pipe.SMembers(ctx, groupMembersKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis operation failed: %w", err)
	}

	groups := make([]Group, 0, len(ids))
	for i, id := range ids {
		name, _ := names.Val()[i].(string)
		memberList := members[i].Val()
		slices.Sort(memberList)
		groups = append(groups, Group{ID: id, Name: name, Members: memberList})
	}
	return groups, nil
}

func (rs *RedisStore) Close(_ context.Context) error {
	logger.InfoF("Closing redis connection")
	return rs.rdb.Close()
}
