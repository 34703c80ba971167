// Package config 定义 colorm 运行配置，并负责从文件/环境变量加载。
package config

import (
	"time"

	"colorm/logging"
)

// Config 顶层配置
type Config struct {
	Log      logging.ZapConfig `mapstructure:"log"`
	Database DatabaseConfig    `mapstructure:"database"`
	Mongo    MongoConfig       `mapstructure:"mongo"`
	Redis    RedisConfig       `mapstructure:"redis"`
	NATS     NATSConfig        `mapstructure:"nats"`
	Merge    MergeConfig       `mapstructure:"merge"`
}

// DatabaseConfig SQL 行存储配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite / pgx
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"` // 首次使用实体时建表
}

// MongoConfig 文档存储配置
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig 计数器存储配置
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// NATSConfig 变更通知配置
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// MergeConfig 合并行为配置
type MergeConfig struct {
	// RestoreDirtyOnFailure 刷写中途失败时，把尚未确认写入的脏属性放回脏集合
	RestoreDirtyOnFailure bool `mapstructure:"restore_dirty_on_failure"`
	// CycleGuard 级联合并时按 (类型, 主键) 去重，防止环形关联无限递归
	CycleGuard bool `mapstructure:"cycle_guard"`
}

// Default 返回默认配置
func Default() Config {
	return Config{
		Log: logging.ZapConfig{
			Level:      "info",
			Name:       "colorm",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:colorm.db",
			MaxOpenConns:    1,
			ConnMaxLifetime: time.Hour,
		},
		Mongo: MongoConfig{
			Database:       "colorm",
			ConnectTimeout: 3 * time.Second,
		},
		Redis: RedisConfig{
			Addr:      "127.0.0.1:6379",
			KeyPrefix: "colorm:",
		},
		NATS: NATSConfig{
			SubjectPrefix: "colorm",
		},
		Merge: MergeConfig{
			CycleGuard: true,
		},
	}
}
