package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"edumarket_bff/internals/configs"
	cbtmodel "edumarket_bff/internals/features/cbt/model"
	paymodel "edumarket_bff/internals/features/payments/model"
	"edumarket_bff/internals/helpers/logger"
)

var (
	DB    *gorm.DB
	Redis *redis.Client
)

// ConnectDB opens the postgres pool. With DB_HOST unset DB stays nil and the
// repositories run in memory.
func ConnectDB() error {
	if configs.DBHost == "" {
		logger.Log.Warn("DB_HOST not set, attempts and payment intents are kept in memory")
		return nil
	}
	logger.Log.Info("🔌 Connecting to PostgreSQL...")

	// PreferSimpleProtocol keeps PgBouncer in transaction mode happy
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  configs.DatabaseDSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: configs.NewGormLogger(logger.Log),
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	DB = db
	logger.Log.Info("✅ DB connected.")
	return nil
}

func TunePool() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		logger.Log.WithError(err).Warn("pool tune failed")
		return
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

// Migrate creates the tables this service owns.
func Migrate() error {
	if DB == nil {
		return nil
	}
	if err := DB.AutoMigrate(&cbtmodel.ExamAttemptModel{}, &paymodel.PaymentIntentModel{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func WarmUpQueries() {
	if DB == nil {
		return
	}
	go func() {
		time.Sleep(500 * time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := PingDB(ctx); err != nil {
			logger.Log.WithError(err).Warn("warm-up ping failed")
		}
	}()
}

// ConnectRedis dials REDIS_URL. An empty URL leaves Redis nil.
func ConnectRedis(ctx context.Context) error {
	if configs.RedisURL == "" {
		logger.Log.Warn("REDIS_URL not set, sessions are kept in memory")
		return nil
	}
	opt, err := redis.ParseURL(configs.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	Redis = client
	logger.Log.Info("✅ Redis connected.")
	return nil
}

var errNoDB = errors.New("database not configured")

func PingDB(ctx context.Context) error {
	if DB == nil {
		return errNoDB
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the postgres pool. Redis is closed by the session store that owns it.
func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
