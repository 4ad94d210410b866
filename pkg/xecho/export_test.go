package xecho

import (
	"context"
	"dstaping/pkg/xnet"
)

// HandleReceive 直接驱动一次接收完成
func (svr *Server) HandleReceive(ctx context.Context, req *xnet.Request) bool {
	return svr.onReceive(ctx, req)
}
