package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/driftpanel/backend/internal/config"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	connectAttempts = 20
	connectBackoff  = 3 * time.Second
)

var (
	DB    *gorm.DB
	Redis *redis.Client
)

// Connect opens the Postgres and Redis connections. Postgres is retried for
// a while so the API can come up before the database container finishes
// starting.
func Connect(cfg *config.Config) error {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)

	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
			DisableForeignKeyConstraintWhenMigrating: true,
		})
		if err == nil {
			break
		}
		log.Printf("Postgres not ready (attempt %d/%d): %v", attempt, connectAttempts, err)
		time.Sleep(connectBackoff)
	}
	if err != nil {
		return fmt.Errorf("postgres connect failed after %d attempts: %w", connectAttempts, err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Println("Connected to Postgres")

	// System preferences table lives in this package to avoid an import
	// cycle with models, so it is migrated here
	if err := DB.AutoMigrate(&SystemPreference{}); err != nil {
		return fmt.Errorf("failed to migrate system preferences: %w", err)
	}

	Redis = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Redis.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("redis connect failed: %w", err)
	}

	log.Println("Connected to Redis")
	return nil
}

func Close() {
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if Redis != nil {
		Redis.Close()
	}
}
