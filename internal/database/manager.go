package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fixmate/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database connection manager
type Manager struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *logrus.Logger
}

// Database configuration
type Config struct {
	DatabaseURL string
	RedisURL    string
	LogLevel    string
}

// NewManager creates a new database manager with connection pooling
func NewManager(config *Config, log *logrus.Logger) (*Manager, error) {
	gormLogger := logger.Default.LogMode(logger.Silent)
	if config.LogLevel == "debug" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	// Open database connection with pooling
	db, err := gorm.Open(postgres.Open(config.DatabaseURL), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Connect to Redis
	redisOpts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.PoolSize = 20
	redisOpts.MinIdleConns = 5
	redisOpts.MaxConnAge = time.Hour
	redisOpts.IdleTimeout = 30 * time.Minute
	redisOpts.IdleCheckFrequency = 30 * time.Second

	redisClient := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Database and Redis connections established successfully")

	return &Manager{
		DB:     db,
		Redis:  redisClient,
		logger: log,
	}, nil
}

// Migrate runs database migrations
func (m *Manager) Migrate() error {
	m.logger.Info("Running database migrations...")

	return m.DB.AutoMigrate(
		&models.QAEntry{},
		&models.ManualChunk{},
		&models.SafetyRule{},
		&models.UserContextRecord{},
		&models.ResolveLog{},
		&models.PopularQuery{},
		&models.SystemHealth{},
	)
}

// Close closes all database connections
func (m *Manager) Close() error {
	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			m.logger.WithError(err).Error("Failed to close Redis connection")
		}
	}

	if m.DB != nil {
		sqlDB, err := m.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return nil
}

// Health check methods
func (m *Manager) PingDatabase() error {
	sqlDB, err := m.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (m *Manager) PingRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Redis.Ping(ctx).Err()
}

// Cache implementation
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCache(client *redis.Client, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger,
	}
}

// Cache key constants
const (
	ResolveResultKey = "resolve:result:%s"
	UserContextKey   = "context:requester:%s"
	SystemHealthKey  = "system:health"
)

// CacheResolveResult caches a resolution for a normalized query hash.
func (c *Cache) CacheResolveResult(ctx context.Context, queryHash string, result interface{}, expiration time.Duration) error {
	key := fmt.Sprintf(ResolveResultKey, queryHash)

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal resolve result: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedResolveResult retrieves a cached resolution.
func (c *Cache) GetCachedResolveResult(ctx context.Context, queryHash string, result interface{}) error {
	key := fmt.Sprintf(ResolveResultKey, queryHash)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), result)
}

// CacheUserContext caches a requester's context.
func (c *Cache) CacheUserContext(ctx context.Context, requesterID string, uctx *models.UserContext, expiration time.Duration) error {
	key := fmt.Sprintf(UserContextKey, requesterID)

	data, err := json.Marshal(uctx)
	if err != nil {
		return fmt.Errorf("failed to marshal user context: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedUserContext retrieves a cached requester context.
func (c *Cache) GetCachedUserContext(ctx context.Context, requesterID string) (*models.UserContext, error) {
	key := fmt.Sprintf(UserContextKey, requesterID)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var uctx models.UserContext
	if err := json.Unmarshal([]byte(data), &uctx); err != nil {
		return nil, err
	}

	return &uctx, nil
}

// InvalidateUserContext removes a requester's cached context.
func (c *Cache) InvalidateUserContext(ctx context.Context, requesterID string) error {
	key := fmt.Sprintf(UserContextKey, requesterID)
	return c.client.Del(ctx, key).Err()
}

// CacheSystemHealth caches system health status
func (c *Cache) CacheSystemHealth(ctx context.Context, health []models.SystemHealth, expiration time.Duration) error {
	data, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("failed to marshal system health: %w", err)
	}

	return c.client.Set(ctx, SystemHealthKey, data, expiration).Err()
}

// GetCachedSystemHealth retrieves cached system health
func (c *Cache) GetCachedSystemHealth(ctx context.Context) ([]models.SystemHealth, error) {
	data, err := c.client.Get(ctx, SystemHealthKey).Result()
	if err != nil {
		return nil, err
	}

	var health []models.SystemHealth
	err = json.Unmarshal([]byte(data), &health)
	return health, err
}
