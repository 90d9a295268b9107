package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/shopapp/internal/api"
	"github.com/charlesng35/shopapp/internal/app"
	"github.com/charlesng35/shopapp/internal/app/maintenance"
	iauth "github.com/charlesng35/shopapp/internal/auth"
	"github.com/charlesng35/shopapp/internal/cache"
	"github.com/charlesng35/shopapp/internal/database"
	"github.com/charlesng35/shopapp/internal/middleware"
	"github.com/charlesng35/shopapp/internal/monitoring"
	"github.com/charlesng35/shopapp/internal/monitoring/checks"
	"github.com/charlesng35/shopapp/internal/services"
	"github.com/charlesng35/shopapp/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Redis    *cache.RedisStore
	Sessions *iauth.SessionManager
	Users    *services.UserService
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	gin.SetMode(ginMode(cfg.Server.Mode))

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	var shared cache.Store = dbStore

	if cfg.Cache.Redis.Enabled {
		stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig())
		if err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
		} else {
			shared = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	codec, err := iauth.NewTokenCodec(cfg.Auth.TokenCodecConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token codec: %w", err)
	}

	gormStore, err := iauth.NewGormSessionStore(stack.DB, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise session store: %w", err)
	}

	var sessionStore iauth.SessionStore = gormStore
	if cfg.Auth.Session.CacheEnabled {
		if stack.Redis != nil {
			sessionStore = iauth.WithSessionCache(gormStore, iauth.NewSessionCache(stack.Redis), nil)
		} else {
			log.Warn("session cache requires redis; serving sessions from the database")
		}
	}

	stack.Sessions, err = iauth.NewSessionManager(sessionStore, codec, cfg.Auth.SessionManagerConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session manager: %w", err)
	}

	stack.Users, err = services.NewUserService(stack.DB, stack.Sessions)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}
	stack.Sessions.SetResolver(stack.Users)

	if cfg.Auth.BootstrapAdmin() {
		admin, err := stack.Users.EnsureAdmin(ctx, cfg.Auth.Admin.PhoneNumber, cfg.Auth.Admin.Password)
		if err != nil {
			return nil, fmt.Errorf("ensure admin account: %w", err)
		}
		log.Info("admin account ready", zap.String("user_id", admin.ID))
	}

	// Redis expires its own keys; only the database cache needs sweeping.
	var cachePurger maintenance.CachePurger
	if stack.Redis == nil {
		cachePurger = dbStore
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Sessions, cachePurger,
		maintenance.WithSessionSchedule(cfg.Maintenance.SessionCleanup),
		maintenance.WithCacheSchedule(cfg.Maintenance.CacheCleanup),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	health := monitoring.NewHealth(checks.Database(stack.DB))
	if cfg.Cache.Redis.Enabled {
		var pinger checks.Pinger
		if stack.Redis != nil {
			pinger = stack.Redis
		}
		health.Register(checks.Redis(pinger))
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:        stack.DB,
		Codec:     codec,
		Sessions:  stack.Sessions,
		Users:     stack.Users,
		RateStore: middleware.NewCacheRateStore(shared),
		RateLimit: cfg.RateLimit,
		Health:    health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}

	return errs
}

func ginMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case gin.DebugMode:
		return gin.DebugMode
	case gin.TestMode:
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseConnConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", strings.ToLower(dbCfg.Driver)))
	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
