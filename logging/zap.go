package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig zap 日志配置
type ZapConfig struct {
	Level      string `mapstructure:"level"`       // debug/info/warn/error
	Name       string `mapstructure:"name"`        // logger 名称
	FilePath   string `mapstructure:"file_path"`   // 为空则只输出到控制台
	MaxSize    int    `mapstructure:"max_size"`    // 单个文件最大大小（MB）
	MaxBackups int    `mapstructure:"max_backups"` // 最多保留旧文件个数
	MaxAge     int    `mapstructure:"max_age"`     // 最多保留天数
	Compress   bool   `mapstructure:"compress"`
	Dev        bool   `mapstructure:"dev"` // 开发模式：warn 及以上带堆栈
}

// NewZap 按配置构建 zap.Logger：控制台彩色输出，配置了文件路径时另写一路 JSON 文件（lumberjack 切割）
func NewZap(cfg ZapConfig) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			lvl = zapcore.InfoLevel
		}
	}
	atomicLevel := zap.NewAtomicLevelAt(lvl)

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	consoleCfg := encoderCfg
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), atomicLevel)

	if cfg.FilePath != "" {
		var fileWriter io.Writer = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    max(1, cfg.MaxSize),
			MaxBackups: max(0, cfg.MaxBackups),
			MaxAge:     max(0, cfg.MaxAge),
			Compress:   cfg.Compress,
		}
		// 文件一路不带颜色，避免 ANSI 转义写入日志文件
		fileCfg := encoderCfg
		fileCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		core = zapcore.NewTee(
			core,
			zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(fileWriter), atomicLevel),
		)
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if cfg.Dev {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}

	l := zap.New(core, opts...)
	if cfg.Name != "" {
		l = l.Named(cfg.Name)
	}
	return l, nil
}

// ZapLogger 将 zap.Logger 适配为 Logger
type ZapLogger struct {
	l *zap.Logger
}

// NewZapLogger 适配已有的 zap.Logger；nil 时使用 zap.NewNop()
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{l: l}
}

// Zap 返回底层 zap.Logger
func (z *ZapLogger) Zap() *zap.Logger { return z.l }

func (z *ZapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	z.l.Debug(msg, toZapFields(fields)...)
}

func (z *ZapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	z.l.Info(msg, toZapFields(fields)...)
}

func (z *ZapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	z.l.Warn(msg, toZapFields(fields)...)
}

func (z *ZapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	z.l.Error(msg, toZapFields(fields)...)
}

func (z *ZapLogger) WithFields(fields ...Field) Logger {
	return &ZapLogger{l: z.l.With(toZapFields(fields)...)}
}

// Sync 刷新缓冲
func (z *ZapLogger) Sync() error { return z.l.Sync() }

func toZapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok && f.Key == "error" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
