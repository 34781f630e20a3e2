package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AppConfig 应用配置
type AppConfig struct {
	Server    ServerConfig    `yaml:"Server"`
	Database  DatabaseConfig  `yaml:"Database"`
	Log       LogConfig       `yaml:"Log"`
	JWT       JWTConfig       `yaml:"JWT"`
	Users     []UserConfig    `yaml:"Users" validate:"dive"` // 可登录的用户
	Retention RetentionConfig `yaml:"Retention"`             // 指标保留策略（可选）
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr string `yaml:"Addr" validate:"required"`
}

// DatabaseConfig 数据库连接描述
type DatabaseConfig struct {
	Driver         string `yaml:"Driver" validate:"required,oneof=sqlite postgres"`
	DSN            string `yaml:"DSN"`            // 完整连接串，优先于下面的字段
	Host           string `yaml:"Host"`           // postgres 主机
	Port           int    `yaml:"Port"`           // postgres 端口
	User           string `yaml:"User"`           // 用户名
	Password       string `yaml:"Password"`       // 密码
	Name           string `yaml:"Name"`           // 数据库名
	SSLMode        string `yaml:"SSLMode"`        // postgres sslmode
	Logging        bool   `yaml:"Logging"`        // 是否输出 SQL 日志
	MaxOpenConns   int    `yaml:"MaxOpenConns"`   // 最大连接数
	MaxIdleConns   int    `yaml:"MaxIdleConns"`   // 最大空闲连接数
	ConnectTimeout int    `yaml:"ConnectTimeout"` // 连接超时（秒）
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"Level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `yaml:"Format" validate:"omitempty,oneof=console json"`
	File       string `yaml:"File"`       // 日志文件，为空输出到标准输出
	MaxSize    int    `yaml:"MaxSize"`    // MB
	MaxBackups int    `yaml:"MaxBackups"` // 保留的旧日志文件数
	MaxAge     int    `yaml:"MaxAge"`     // 天数
	Compress   bool   `yaml:"Compress"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret       string `yaml:"Secret" validate:"required,min=8"`
	ExpiresHours int    `yaml:"ExpiresHours"`
}

// UserConfig 用户配置
type UserConfig struct {
	Username    string   `yaml:"Username" validate:"required"`
	Password    string   `yaml:"Password" validate:"required"` // bcrypt 加密后的密码
	Admin       bool     `yaml:"Admin"`
	Permissions []string `yaml:"Permissions"` // 如 metrics:read
}

// RetentionConfig 指标保留配置
type RetentionConfig struct {
	Days int    `yaml:"Days" validate:"gte=0"` // 0 表示不清理
	Cron string `yaml:"Cron"`                  // 秒级 cron 表达式
}

// ConnectTimeoutDuration 连接超时
func (c DatabaseConfig) ConnectTimeoutDuration() time.Duration {
	if c.ConnectTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ConnectTimeout) * time.Second
}

// BuildDSN 根据驱动生成连接串
func (c DatabaseConfig) BuildDSN() (string, error) {
	switch c.Driver {
	case "sqlite":
		if c.DSN == "" {
			return "", fmt.Errorf("sqlite 需要配置 DSN")
		}
		return withSQLiteForeignKeys(c.DSN), nil
	case "postgres":
		if c.DSN != "" {
			return c.DSN, nil
		}
		if c.Host == "" || c.Name == "" {
			return "", fmt.Errorf("postgres 需要配置 Host 和 Name")
		}
		port := c.Port
		if port == 0 {
			port = 5432
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		// URL 形式由 net/url 负责转义，用户名和密码可以包含空格、引号等字符
		query := url.Values{}
		query.Set("sslmode", sslMode)
		query.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeoutDuration().Seconds())))
		u := url.URL{
			Scheme:   "postgres",
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(port)),
			Path:     "/" + c.Name,
			RawQuery: query.Encode(),
		}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("不支持的数据库驱动: %q", c.Driver)
	}
}

// withSQLiteForeignKeys 为每个 sqlite 连接打开外键约束
func withSQLiteForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	params := url.Values{}
	params.Set("_foreign_keys", "1")
	params.Set("_busy_timeout", "5000")
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params.Encode()
	}
	return dsn + "?" + params.Encode()
}

// FindUser 根据用户名查找用户
func (c *AppConfig) FindUser(username string) (UserConfig, bool) {
	for _, user := range c.Users {
		if user.Username == username {
			return user, true
		}
	}
	return UserConfig{}, false
}
