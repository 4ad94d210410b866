package xlog

import (
	"context"

	"go.uber.org/zap/zapcore"
)

type loggerKeyType int

const loggerKey loggerKeyType = iota

// WithLogger 绑定logger到context, 由main根据配置调用一次
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// NewContext 子logger附加字段(run id, path名等)后绑定到ctx
func NewContext(ctx context.Context, fields ...zapcore.Field) context.Context {
	return WithLogger(ctx, Get(ctx).With(fields...))
}

// FromContext 取srcCtx的logger绑定到destCtx, 用于脱离调用方生命周期的goroutine
func FromContext(srcCtx, destCtx context.Context, fields ...zapcore.Field) context.Context {
	return WithLogger(destCtx, Get(srcCtx).With(fields...))
}

// context获取logger
func Get(ctx context.Context) Logger {
	if ctx == nil {
		return gLogger
	}
	if ctxLogger, ok := ctx.Value(loggerKey).(Logger); ok {
		return ctxLogger
	}
	return gLogger
}
