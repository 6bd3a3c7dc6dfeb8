package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	c "github.com/life-stream-dev/life-stream-go-chat-relay/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func mongoURI(cfg c.DatabaseConfig) string {
	if cfg.Username == "" {
		return fmt.Sprintf("mongodb://%s:%d/", cfg.Host, cfg.Port)
	}
	// 编码特殊字符
	encodedUser := url.QueryEscape(cfg.Username)
	encodedPass := url.QueryEscape(cfg.Password)
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		encodedUser, encodedPass,
		cfg.Host,
		cfg.Port,
	)
}

func mongoClientOptions(config c.Config) *options.ClientOptions {
	dbConfig := config.Database
	clientOptions := options.Client().ApplyURI(mongoURI(dbConfig)).SetAppName(config.AppName)
	// 连接池配置
	clientOptions.SetMinPoolSize(dbConfig.MinPoolSize)
	clientOptions.SetMaxPoolSize(dbConfig.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(utils.ParseStringTimeOr(dbConfig.ConnectIdleTimeout, 5*time.Minute))
	// 超时限制
	clientOptions.SetConnectTimeout(utils.ParseStringTimeOr(dbConfig.ConnectTimeout, 10*time.Second))
	clientOptions.SetSocketTimeout(utils.ParseStringTimeOr(dbConfig.SocketTimeout, 30*time.Second))
	// 心跳包
	clientOptions.SetHeartbeatInterval(utils.ParseStringTimeOr(dbConfig.Heartbeat, 10*time.Second))
	if dbConfig.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{InsecureSkipVerify: false})
	}
	// 连接池监控
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: address=%s id=%d", evt.Address, evt.ConnectionID)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: address=%s id=%d reason=%s", evt.Address, evt.ConnectionID, evt.Reason)
			}
		},
	})
	return clientOptions
}

// ConnectDatabase 连接 MongoDB 并创建消息与群组索引
func ConnectDatabase(config c.Config) (*MongoStore, error) {
	logger.DebugF("Connecting to database...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, mongoClientOptions(config))
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}

	// 验证连接
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	db := client.Database(config.Database.Database)
	if err := ensureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logger.InfoF("Connected to database %s at %s:%d", config.Database.Database, config.Database.Host, config.Database.Port)
	return newMongoStore(client, db, config.Database.OperationTimeoutDuration()), nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(MessageCollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("messages_sender_receiver_created_at"),
		},
		{
			Keys:    bson.D{{Key: "receiver", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("messages_receiver_created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("error occured while creating message indexes: %w", err)
	}

	_, err = db.Collection(GroupCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "members", Value: 1}},
		Options: options.Index().SetName("groups_members"),
	})
	if err != nil {
		return fmt.Errorf("error occured while creating group indexes: %w", err)
	}
	return nil
}
