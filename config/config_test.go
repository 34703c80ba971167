package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_DefaultsOnly 测试无配置文件时使用默认值
func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Database.Driver, cfg.Database.Driver)
	assert.Equal(t, def.Redis.KeyPrefix, cfg.Redis.KeyPrefix)
	assert.True(t, cfg.Merge.CycleGuard)
}

// TestLoad_YAMLFile 测试 YAML 覆盖默认值
func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colorm.yaml")
	content := `
database:
  driver: postgres
  dsn: postgres://localhost/orm
  conn_max_lifetime: 90s
merge:
  restore_dirty_on_failure: true
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/orm", cfg.Database.DSN)
	assert.Equal(t, 90*time.Second, cfg.Database.ConnMaxLifetime)
	assert.True(t, cfg.Merge.RestoreDirtyOnFailure)
	assert.True(t, cfg.Merge.CycleGuard)
	assert.Equal(t, "debug", cfg.Log.Level)
}

// TestLoad_EnvOverride 测试环境变量覆盖
func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("COLORM_REDIS_ADDR", "redis:6380")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

// TestLoad_MissingFile 测试文件不存在
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// TestLoader_Watch 文件变更后配置快照随之更新
func TestLoader_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colorm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  key_prefix: \"a:\"\n"), 0o600))

	l, err := NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, "a:", l.Config().Redis.KeyPrefix)

	changed := make(chan Config, 16)
	l.Watch(func(cfg Config, err error) {
		if err != nil {
			return
		}
		select {
		case changed <- cfg:
		default:
		}
	})
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  key_prefix: \"b:\"\n"), 0o600))

	// 写文件可能触发多次事件，中间态可能读到截断的内容
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Redis.KeyPrefix == "b:" {
				assert.Equal(t, "b:", l.Config().Redis.KeyPrefix)
				return
			}
		case <-timeout:
			t.Fatal("config change not observed")
		}
	}
}
