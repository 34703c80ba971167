package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 COLORM_DATABASE_DSN
const EnvPrefix = "COLORM"

// Loader 持有 viper 实例，支持重新加载与监听
type Loader struct {
	v    *viper.Viper
	path string

	mu  sync.RWMutex
	cfg Config
}

// Load 读取配置文件（按扩展名识别 yaml/toml/json），叠加默认值与环境变量
func Load(path string) (Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return Config{}, err
	}
	return l.Config(), nil
}

// NewLoader 创建并完成首次加载；path 为空时仅使用默认值与环境变量
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not exist, path=%s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	l := &Loader{v: v, path: path}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.cfg = cfg
	return l, nil
}

// Config 返回当前配置快照
func (l *Loader) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch 监听配置文件变更；解码失败时保留旧配置并把错误交给回调
func (l *Loader) Watch(onChange func(Config, error)) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err == nil {
			l.mu.Lock()
			l.cfg = cfg
			l.mu.Unlock()
		}
		if onChange != nil {
			onChange(l.Config(), err)
		}
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := l.v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults 把默认配置逐键注册到 viper，使环境变量可以覆盖文件中缺失的键
func setDefaults(v *viper.Viper, cfg Config) {
	var m map[string]any
	if err := mapstructure.Decode(cfg, &m); err != nil {
		return
	}
	flatten("", m, func(key string, val any) { v.SetDefault(key, val) })
}

func flatten(prefix string, m map[string]any, set func(string, any)) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			flatten(key, nested, set)
			continue
		}
		set(key, val)
	}
}
