package xcommon

import (
	"context"
	"dstaping/pkg/xlog"
	"os/signal"
	"syscall"
)

// SignalContext 收到SIGINT/SIGTERM时取消
func SignalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// UntilSignal 阻塞到收到退出信号或done关闭, done可为nil
func UntilSignal(ctx context.Context, done <-chan struct{}) {
	ctx, stop := SignalContext(ctx)
	defer stop()

	select {
	case <-ctx.Done():
		xlog.Get(ctx).Info("Recv exit signal")
	case <-done:
	}
}
