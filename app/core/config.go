package core

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

func MustLoadBaseConfig(path string) CoreConfig {
	if path == "" {
		return LoadBaseConfigFromENV()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	conf := &CoreConfig{}
	if err = toml.Unmarshal(raw, conf); err != nil {
		panic(err)
	}
	conf.ApplyDefaults()

	return *conf
}

func LoadBaseConfigFromENV() CoreConfig {
	var c CoreConfig
	c.FromENV()
	c.ApplyDefaults()
	return c
}

type CoreConfig struct {
	Addr     string      `toml:"addr"`
	Log      Log         `toml:"log"`
	Postgres PGConfig    `toml:"postgres"`
	Redis    RedisConfig `toml:"redis"`
	Security Security    `toml:"security"`
	Chat     ChatConfig  `toml:"chat"`
}

type Security struct {
	// JWTSecret signs login tokens. Required.
	JWTSecret string `toml:"jwt_secret"`
	// TokenTTLHours bounds how long an issued token stays valid. Default 24.
	TokenTTLHours int `toml:"token_ttl_hours"`
}

// ChatConfig tunes the session orchestration loop.
type ChatConfig struct {
	// WaitingPushIntervalSeconds is the waiting-queue reconciliation period
	// per agent connection. Default 60.
	WaitingPushIntervalSeconds int `toml:"waiting_push_interval_seconds"`
	// WaitingPushLimit bounds one reconciliation query. Default 50.
	WaitingPushLimit uint64 `toml:"waiting_push_limit"`
	// BacklogLimit bounds the pending-notification replay on identify.
	// Default 100.
	BacklogLimit uint64 `toml:"backlog_limit"`
	// ReconnectHistoryLimit is how many recent messages ride along with
	// session_reconnected. Default 10.
	ReconnectHistoryLimit uint64 `toml:"reconnect_history_limit"`
}

func (c *ChatConfig) ApplyDefaults() {
	if c.WaitingPushIntervalSeconds <= 0 {
		c.WaitingPushIntervalSeconds = 60
	}
	if c.WaitingPushLimit == 0 {
		c.WaitingPushLimit = 50
	}
	if c.BacklogLimit == 0 {
		c.BacklogLimit = 100
	}
	if c.ReconnectHistoryLimit == 0 {
		c.ReconnectHistoryLimit = 10
	}
}

func (c *CoreConfig) ApplyDefaults() {
	c.Chat.ApplyDefaults()
	if c.Security.TokenTTLHours <= 0 {
		c.Security.TokenTTLHours = 24
	}
}

func (c *CoreConfig) FromENV() {
	c.Addr = os.Getenv("CHATDESK_SERVICE_ADDRESS")
	c.Security.JWTSecret = os.Getenv("CHATDESK_JWT_SECRET")
	c.Log.FromENV()
	c.Postgres.FromENV()
	c.Redis.FromENV()
}

type PGConfig struct {
	DSN string `toml:"dsn"`
}

func (m *PGConfig) FromENV() {
	m.DSN = os.Getenv("CHATDESK_POSTGRESQL_DSN")
}

func (c PGConfig) FormatDSN() string {
	return c.DSN
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`

	Cluster       bool     `toml:"cluster"`
	ClusterAddrs  []string `toml:"cluster_addrs"`
	ClusterPasswd string   `toml:"cluster_passwd"`

	PoolSize     int `toml:"pool_size"`
	MinIdleConns int `toml:"min_idle_conns"`
	MaxRetries   int `toml:"max_retries"`
}

func (r *RedisConfig) FromENV() {
	r.Addr = os.Getenv("CHATDESK_REDIS_ADDR")
	r.Password = os.Getenv("CHATDESK_REDIS_PASSWORD")
	if dbStr := os.Getenv("CHATDESK_REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
}

type Log struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

func (l *Log) FromENV() {
	l.Level = os.Getenv("CHATDESK_LOG_LEVEL")
	l.Path = os.Getenv("CHATDESK_LOG_PATH")
}

func (l *Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
