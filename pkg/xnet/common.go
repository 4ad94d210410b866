package xnet

import (
	"context"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

const (
	udpNetwork  = "udp"
	udp4Network = "udp4"

	defaultWorkers    = 4    // 完成回调worker数量
	writeChanLimit    = 2000 // 写队列大小
	maxPostedBuffers  = 4096 // 接收buffer上限
	defaultBufCount   = 16
	defaultProbeWait  = 5 * time.Second // 单次连通性探测等待, 重试一次共10s
	connectivityTries = 2
)

// Completion 完成回调, 在worker协程执行, 可能并发
// 接收请求返回true时由reactor重新投递同一buffer; 发送请求忽略返回值
type Completion func(ctx context.Context, req *Request) bool

// OnFatal 致命错误上报, 不可在其中关闭reactor
type OnFatal func(ctx context.Context, err error)

// RecoverableReceiveError 接收完成的系统错误中只有ICMP端口不可达(ECONNREFUSED)可恢复, 其余为致命错误
func RecoverableReceiveError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
