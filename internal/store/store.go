package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dushixiang/beacon/internal/config"
	"github.com/dushixiang/beacon/internal/errs"
	"github.com/dushixiang/beacon/internal/migrate"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open 打开数据库、等待连接可用并同步表结构。
// 连接描述错误、数据库不可达或迁移失败都返回 *errs.ConfigurationError。
// 每次调用都会新建连接池，表结构同步是幂等的。
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	dsn, err := cfg.BuildDSN()
	if err != nil {
		return nil, errs.Configuration("build dsn", err)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, errs.Configurationf("open database", "不支持的数据库驱动: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               NewGormLogger(logger, cfg.Logging),
		TranslateError:       true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, errs.Configuration("open database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errs.Configuration("open database", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite 只允许单写，单连接让写事务串行执行，避免 database is locked
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := ping(ctx, logger, sqlDB, cfg.ConnectTimeoutDuration()); err != nil {
		_ = sqlDB.Close()
		return nil, errs.Configuration("ping database", err)
	}

	if err := migrate.Run(logger, db.WithContext(ctx)); err != nil {
		_ = sqlDB.Close()
		return nil, errs.Configuration("migrate", err)
	}

	logger.Info("数据库已就绪", zap.String("driver", cfg.Driver))
	return db, nil
}

// Close 关闭连接池
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ping 以指数退避重试，直到连接成功或超时
func ping(ctx context.Context, logger *zap.Logger, sqlDB *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for {
		err := sqlDB.PingContext(ctx)
		if err == nil {
			return nil
		}

		wait := b.Duration()
		logger.Warn("数据库连接失败，等待重试",
			zap.Float64("attempt", b.Attempt()),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ctx.Err(), err)
		case <-time.After(wait):
		}
	}
}
