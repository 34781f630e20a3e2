package config

import (
	"os"
	"strconv"

	"github.com/dushixiang/beacon/internal/errs"
	"github.com/dushixiang/beacon/internal/validation"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// 环境变量覆盖
const (
	EnvServerAddr = "BEACON_SERVER_ADDR"
	EnvDBDriver   = "BEACON_DB_DRIVER"
	EnvDBDSN      = "BEACON_DB_DSN"
	EnvDBLogging  = "BEACON_DB_LOGGING"
	EnvJWTSecret  = "BEACON_JWT_SECRET"
	EnvLogLevel   = "BEACON_LOG_LEVEL"
)

// Load 读取并校验配置文件
func Load(fs afero.Fs, path string) (*AppConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errs.Configuration("read config", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置，应用默认值和环境变量后校验
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Configuration("parse config", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置，包括数据库连接描述
func Validate(cfg *AppConfig) error {
	if err := validation.Struct(cfg); err != nil {
		return errs.Configuration("validate config", err)
	}
	if _, err := cfg.Database.BuildDSN(); err != nil {
		return errs.Configuration("validate database", err)
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.JWT.ExpiresHours <= 0 {
		cfg.JWT.ExpiresHours = 24
	}
	if cfg.Retention.Cron == "" {
		cfg.Retention.Cron = "0 0 3 * * *" // 每天凌晨 3 点
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 2
	}
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv(EnvServerAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvDBDriver); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv(EnvDBDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvDBLogging); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.Logging = b
		}
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
}
