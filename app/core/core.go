package core

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chatdesk/chatdesk/app/store"
	"github.com/chatdesk/chatdesk/app/store/sqlstore"
	"github.com/chatdesk/chatdesk/pkg/socket/hub"
	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/utils"
)

type Core struct {
	cfg CoreConfig

	stores     func() *sqlstore.Provider
	httpEngine *gin.Engine
	hub        *hub.Hub
	redis      redis.UniversalClient

	metrics *Metrics
}

func MustSetupCore(cfg CoreConfig) *Core {
	{
		var writer io.Writer = os.Stdout
		if cfg.Log.Path != "" {
			writer = &lumberjack.Logger{
				Filename:   cfg.Log.Path,
				MaxSize:    500, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}
		}
		l := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level: cfg.Log.SlogLevel(),
		}))
		slog.SetDefault(l)
	}

	utils.SetupIDWorker(1)

	core := &Core{
		cfg:        cfg,
		httpEngine: gin.New(),
		hub:        hub.NewHub(),
		metrics:    NewMetrics("chatdesk", "core"),
	}

	setupSqlStore(core)
	setupRedis(core)

	return core
}

func setupSqlStore(core *Core) {
	core.stores = sqlstore.MustSetup(core.cfg.Postgres)
	if err := core.stores().Install(); err != nil {
		panic(err)
	}
}

// setupRedis is optional. Without redis the HTTP middleware falls back to
// pure JWT verification.
func setupRedis(core *Core) {
	cfg := core.cfg.Redis
	if cfg.Addr == "" && len(cfg.ClusterAddrs) == 0 {
		return
	}

	if cfg.Cluster {
		core.redis = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.ClusterPasswd,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	} else {
		core.redis = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	}
}

func (s *Core) Cfg() CoreConfig {
	return s.cfg
}

func (s *Core) Store() store.Store {
	return s.stores()
}

func (s *Core) HttpEngine() *gin.Engine {
	return s.httpEngine
}

func (s *Core) Hub() *hub.Hub {
	return s.hub
}

func (s *Core) Metrics() *Metrics {
	return s.metrics
}

func (s *Core) Redis() redis.UniversalClient {
	return s.redis
}

// Cache returns the redis-backed token cache, nil when redis is not
// configured.
func (s *Core) Cache() types.Cache {
	if s.redis == nil {
		return nil
	}
	return &Cache{redis: s.redis}
}

type Cache struct {
	redis redis.UniversalClient
}

func (c *Cache) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.redis.Expire(ctx, key, expiration).Err()
}

func (c *Cache) SetEx(ctx context.Context, key, value string, expiresAt time.Duration) error {
	return c.redis.SetEx(ctx, key, value, expiresAt).Err()
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	return c.redis.Get(ctx, key).Result()
}
