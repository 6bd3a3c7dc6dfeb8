package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/utils"
)

const (
	StorageMongo  = "mongo"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type ServerConfig struct {
	AllowedOrigins []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize int64    `json:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	SendQueueSize  int      `json:"send_queue_size" env:"SEND_QUEUE_SIZE"`
	RateLimitBurst int      `json:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	RateLimitEvery string   `json:"rate_limit_every" env:"RATE_LIMIT_EVERY"`
	PingInterval   string   `json:"ping_interval" env:"PING_INTERVAL"`
	PongTimeout    string   `json:"pong_timeout" env:"PONG_TIMEOUT"`
	WriteTimeout   string   `json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownWait   string   `json:"shutdown_wait" env:"SHUTDOWN_WAIT"`
}

type RouterConfig struct {
	EchoToSender bool `json:"echo_to_sender" env:"ECHO_TO_SENDER"`
}

type SessionConfig struct {
	CloseSuperseded bool `json:"close_superseded" env:"CLOSE_SUPERSEDED"`
	PersistOnSend   bool `json:"persist_on_send" env:"PERSIST_ON_SEND"`
	HistoryLimit    int  `json:"history_limit" env:"HISTORY_LIMIT"`
}

type StorageConfig struct {
	Driver string `json:"driver" env:"DRIVER"`
}

type DatabaseConfig struct {
	Host               string `json:"host" env:"HOST"`
	Port               uint64 `json:"port" env:"PORT"`
	Username           string `json:"username" env:"USERNAME"`
	Password           string `json:"password" env:"PASSWORD"`
	Database           string `json:"database" env:"NAME"`
	UseTLS             bool   `json:"use_tls" env:"USE_TLS"`
	ConnectTimeout     string `json:"connect_timeout" env:"CONNECT_TIMEOUT"`
	SocketTimeout      string `json:"socket_timeout" env:"SOCKET_TIMEOUT"`
	ConnectIdleTimeout string `json:"connect_idle_timeout" env:"CONNECT_IDLE_TIMEOUT"`
	OperationTimeout   string `json:"operation_timeout" env:"OPERATION_TIMEOUT"`
	Heartbeat          string `json:"heartbeat" env:"HEARTBEAT"`
	MinPoolSize        uint64 `json:"min_pool_size" env:"MIN_POOL_SIZE"`
	MaxPoolSize        uint64 `json:"max_pool_size" env:"MAX_POOL_SIZE"`
}

type RedisConfig struct {
	Addr      string `json:"addr" env:"ADDR"`
	Password  string `json:"password" env:"PASSWORD"`
	DB        int    `json:"db" env:"DB"`
	PoolSize  int    `json:"pool_size" env:"POOL_SIZE"`
	StreamMax int64  `json:"stream_max" env:"STREAM_MAX"`
}

type DirectoryConfig struct {
	CacheSize int    `json:"cache_size" env:"CACHE_SIZE"`
	CacheTTL  string `json:"cache_ttl" env:"CACHE_TTL"`
}

type Config struct {
	AppName   string          `json:"app_name" env:"APP_NAME"`
	AppPort   int             `json:"app_port" env:"APP_PORT"`
	DebugMode bool            `json:"debug_mode" env:"DEBUG_MODE"`
	LogPath   string          `json:"log_path" env:"LOG_PATH"`
	Server    ServerConfig    `json:"server" envPrefix:"SERVER_"`
	Router    RouterConfig    `json:"router" envPrefix:"ROUTER_"`
	Session   SessionConfig   `json:"session" envPrefix:"SESSION_"`
	Storage   StorageConfig   `json:"storage" envPrefix:"STORAGE_"`
	Database  DatabaseConfig  `json:"database" envPrefix:"DATABASE_"`
	Redis     RedisConfig     `json:"redis" envPrefix:"REDIS_"`
	Directory DirectoryConfig `json:"directory" envPrefix:"DIRECTORY_"`
}

// EnvPrefix 所有环境变量覆盖项的前缀
const EnvPrefix = "CHAT_"

var (
	// File 配置文件路径，可通过 CHAT_CONFIG_FILE 覆盖
	File        = "config.json"
	config      Config
	initialized = false

	ErrConfigCreated = errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")
)

func Default() Config {
	return Config{
		AppName:   "life-stream-chat-relay",
		AppPort:   5000,
		DebugMode: false,
		LogPath:   "logs",
		Server: ServerConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			MaxMessageSize: 4096,
			SendQueueSize:  256,
			RateLimitBurst: 10,
			RateLimitEvery: "1s",
			PingInterval:   "54s",
			PongTimeout:    "60s",
			WriteTimeout:   "10s",
			ShutdownWait:   "10s",
		},
		Router:  RouterConfig{EchoToSender: true},
		Session: SessionConfig{CloseSuperseded: false, PersistOnSend: false, HistoryLimit: 200},
		Storage: StorageConfig{Driver: StorageMongo},
		Database: DatabaseConfig{
			Host:               "localhost",
			Port:               27017,
			Database:           "chat",
			ConnectTimeout:     "10s",
			SocketTimeout:      "30s",
			ConnectIdleTimeout: "5m",
			OperationTimeout:   "5s",
			Heartbeat:          "10s",
			MinPoolSize:        2,
			MaxPoolSize:        50,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  20,
			StreamMax: 100_000,
		},
		Directory: DirectoryConfig{CacheSize: 1024, CacheTTL: "30s"},
	}
}

// ReadConfig 读取配置文件并应用环境变量覆盖
func ReadConfig() (Config, error) {
	if path := os.Getenv(EnvPrefix + "CONFIG_FILE"); path != "" {
		File = path
	}
	cfg, err := ReadConfigFrom(File)
	if err != nil {
		return cfg, err
	}
	config = cfg
	initialized = true
	return config, nil
}

// ReadConfigFrom 从指定路径读取配置；文件不存在时写入默认配置并返回 ErrConfigCreated
func ReadConfigFrom(path string) (Config, error) {
	cfg := Default()
	bytes, err := os.ReadFile(path)

	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read configuration file: %w", err)
		}
		data, _ := json.MarshalIndent(cfg, "", "\t")
		if writeErr := os.WriteFile(path, data, 0644); writeErr != nil {
			return cfg, fmt.Errorf("create configuration file: %w", writeErr)
		}
		return cfg, ErrConfigCreated
	}

	if err = json.Unmarshal(bytes, &cfg); err != nil {
		return cfg, errors.New("the configuration file does not contain valid JSON")
	}

	if err = env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	cfg.ApplyDefaults()
	if err = cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func GetConfig() (Config, error) {
	if initialized {
		return config, nil
	}
	return ReadConfig()
}

// SetConfig 直接替换当前配置，主要用于测试与嵌入式启动
func SetConfig(cfg Config) {
	cfg.ApplyDefaults()
	config = cfg
	initialized = true
}

// ApplyDefaults 对缺失或非法的字段回退到默认值
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.AppName == "" {
		c.AppName = def.AppName
	}
	if c.AppPort <= 0 {
		c.AppPort = def.AppPort
	}
	if c.LogPath == "" {
		c.LogPath = def.LogPath
	}
	if c.Server.MaxMessageSize <= 0 {
		c.Server.MaxMessageSize = def.Server.MaxMessageSize
	}
	if c.Server.SendQueueSize <= 0 {
		c.Server.SendQueueSize = def.Server.SendQueueSize
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = def.Server.RateLimitBurst
	}
	if c.Session.HistoryLimit <= 0 {
		c.Session.HistoryLimit = def.Session.HistoryLimit
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Directory.CacheSize <= 0 {
		c.Directory.CacheSize = def.Directory.CacheSize
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMongo, StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.AppPort > 65535 {
		return fmt.Errorf("app_port %d out of range", c.AppPort)
	}
	if c.Storage.Driver == StorageMongo && c.Database.Host == "" {
		return errors.New("database.host is required for the mongo driver")
	}
	if c.Storage.Driver == StorageRedis && c.Redis.Addr == "" {
		return errors.New("redis.addr is required for the redis driver")
	}
	return nil
}

func (s ServerConfig) RateLimitInterval() time.Duration {
	return utils.ParseStringTimeOr(s.RateLimitEvery, time.Second)
}

func (s ServerConfig) PingPeriod() time.Duration {
	return utils.ParseStringTimeOr(s.PingInterval, 54*time.Second)
}

func (s ServerConfig) PongWait() time.Duration {
	return utils.ParseStringTimeOr(s.PongTimeout, 60*time.Second)
}

func (s ServerConfig) WriteWait() time.Duration {
	return utils.ParseStringTimeOr(s.WriteTimeout, 10*time.Second)
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return utils.ParseStringTimeOr(s.ShutdownWait, 10*time.Second)
}

func (d DatabaseConfig) OperationTimeoutDuration() time.Duration {
	return utils.ParseStringTimeOr(d.OperationTimeout, 5*time.Second)
}

func (d DirectoryConfig) CacheTTLDuration() time.Duration {
	return utils.ParseStringTimeOr(d.CacheTTL, 30*time.Second)
}
