package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nkorzh/psyassist/backend/internal/models"
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

// NewManager creates a new database manager with connection pooling.
// The returned handle is meant to be constructed once per process and
// shared; individual units of work go through Session().
func NewManager(config *Config, logger *logrus.Logger) (*Manager, error) {
	gormLogger := gormlogger.Default.LogMode(gormlogger.Silent)
	if config.LogLevel == "debug" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
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

	redisClient := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Database and Redis connections established successfully")

	return &Manager{
		DB:     db,
		Redis:  redisClient,
		logger: logger,
	}, nil
}

// Migrate materializes the bot schema. AutoMigrate is idempotent: tables
// that already exist are left alone, missing ones are created.
func (m *Manager) Migrate() error {
	m.logger.Info("Running database migrations...")

	return m.DB.AutoMigrate(
		&models.KnowledgeItem{},
		&models.UserState{},
		&models.UserAction{},
		&models.ExerciseFeedback{},
	)
}

// Session returns a fresh unit-of-work handle bound to the shared engine.
// Sessions are independent and must not be shared across goroutines.
func (m *Manager) Session() *gorm.DB {
	return m.DB.Session(&gorm.Session{})
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
	KnowledgeCommandKey  = "knowledge:command:%s"
	KnowledgeCategoryKey = "knowledge:category:%s"
	UserStateKey         = "user:state:%d"
)

// CacheKnowledgeItem caches a knowledge article keyed by its bot command
func (c *Cache) CacheKnowledgeItem(ctx context.Context, item *models.KnowledgeItem, expiration time.Duration) error {
	key := fmt.Sprintf(KnowledgeCommandKey, item.Command)

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge item: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedKnowledgeItem retrieves a cached knowledge article by command
func (c *Cache) GetCachedKnowledgeItem(ctx context.Context, command string) (*models.KnowledgeItem, error) {
	key := fmt.Sprintf(KnowledgeCommandKey, command)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var item models.KnowledgeItem
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, err
	}

	return &item, nil
}

// CacheCategoryItems caches the article list for one category
func (c *Cache) CacheCategoryItems(ctx context.Context, category string, items []models.KnowledgeItem, expiration time.Duration) error {
	key := fmt.Sprintf(KnowledgeCategoryKey, category)

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal category items: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedCategoryItems retrieves the cached article list for a category
func (c *Cache) GetCachedCategoryItems(ctx context.Context, category string) ([]models.KnowledgeItem, error) {
	key := fmt.Sprintf(KnowledgeCategoryKey, category)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var items []models.KnowledgeItem
	err = json.Unmarshal([]byte(data), &items)
	return items, err
}

// CacheUserState caches the current conversational state for a user
func (c *Cache) CacheUserState(ctx context.Context, state *models.UserState, expiration time.Duration) error {
	key := fmt.Sprintf(UserStateKey, state.UserID)

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal user state: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedUserState retrieves a cached user state
func (c *Cache) GetCachedUserState(ctx context.Context, userID int64) (*models.UserState, error) {
	key := fmt.Sprintf(UserStateKey, userID)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var state models.UserState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}

	return &state, nil
}

// InvalidateKnowledge removes cached entries touched by a knowledge write
func (c *Cache) InvalidateKnowledge(ctx context.Context, command, category string) error {
	keys := []string{fmt.Sprintf(KnowledgeCommandKey, command)}
	if category != "" {
		keys = append(keys, fmt.Sprintf(KnowledgeCategoryKey, category))
	}
	return c.client.Del(ctx, keys...).Err()
}

// InvalidateUserState removes the cached state for a user
func (c *Cache) InvalidateUserState(ctx context.Context, userID int64) error {
	key := fmt.Sprintf(UserStateKey, userID)
	return c.client.Del(ctx, key).Err()
}

// ClearAllCache clears all cache data
func (c *Cache) ClearAllCache(ctx context.Context) error {
	return c.client.FlushDB(ctx).Err()
}

// Cache statistics
func (c *Cache) GetCacheStats(ctx context.Context) (map[string]interface{}, error) {
	info := c.client.Info(ctx, "stats").Val()

	stats := map[string]interface{}{
		"keyspace_hits":     c.extractStat(info, "keyspace_hits"),
		"keyspace_misses":   c.extractStat(info, "keyspace_misses"),
		"used_memory":       c.extractStat(info, "used_memory"),
		"connected_clients": c.extractStat(info, "connected_clients"),
	}

	return stats, nil
}

func (c *Cache) extractStat(info, key string) string {
	lines := strings.Split(info, "\r\n")
	for _, line := range lines {
		if strings.HasPrefix(line, key+":") {
			return strings.TrimPrefix(line, key+":")
		}
	}
	return "0"
}
