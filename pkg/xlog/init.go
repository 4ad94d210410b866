package xlog

import (
	"io"
	"os"

	"go.elastic.co/ecszap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FieldTimestamp ECS时间字段
const FieldTimestamp = "@timestamp"

// Config 日志配置, 由调用方显式传入, 不存在进程级可变等级
type Config struct {
	Level  zapcore.Level
	JSON   bool      // true: json格式(prod), false: 彩色终端格式(dev)
	Output io.Writer // 默认os.Stdout
}

// 未绑定context时使用的默认logger(info), 创建后不再修改
var gLogger = New(Config{Level: zapcore.InfoLevel})

func getEncoder(isProd bool) zapcore.Encoder {
	withColor := !isProd
	config := ecsCompatibleEncoder(withColor)
	config.TimeKey = FieldTimestamp
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	if isProd {
		return zapcore.NewJSONEncoder(config)
	}
	return zapcore.NewConsoleEncoder(config)
}

// Elastic Common Schema (ECS) 兼容的encoder格式, 便于日志被ELK归档
func ecsCompatibleEncoder(withColor bool) zapcore.EncoderConfig {
	return ecszap.EncoderConfig{
		EnableName:       true,
		EncodeName:       zapcore.FullNameEncoder,
		EnableStackTrace: true,
		EnableCaller:     true,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      customLevelEncoder(withColor),
		EncodeDuration:   zapcore.StringDurationEncoder,
	}.ToZapCoreEncoderConfig()
}

func defaultOptions() []zap.Option {
	return []zap.Option{
		zap.WithCaller(true),
		// DPanic时自动增加Stacktrace
		zap.AddStacktrace(zap.NewAtomicLevelAt(zap.DPanicLevel)),
	}
}

// New 根据配置创建logger
func New(cfg Config) Logger {
	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}
	writerSinker := zapcore.Lock(zapcore.AddSync(out))
	logLvl := cfg.Level
	core := zapcore.NewCore(getEncoder(cfg.JSON), writerSinker, zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= logLvl
	}))
	return newLogger(zap.New(core, defaultOptions()...))
}

// Nop 丢弃全部日志, 测试使用
func Nop() Logger {
	return newLogger(zap.NewNop())
}
