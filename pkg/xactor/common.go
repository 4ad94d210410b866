package xactor

import (
	"context"
	"time"
)

const (
	syncMail  mailType = 0 // 同步mail
	asyncMail mailType = 1 // 异步mail
)

var (
	mailMaxCount = 100 // 最大mail数量
)

type mailType int

// 模块
type ActorState interface {
	InitArg() ActorHandlerArgs // 初始化参数,用于注册
	Name() string              // 名称,用于日志
	Close(ctx context.Context) // 关闭, 在actor协程执行
}

// 无ticker时使用的间隔
const noTicker time.Duration = 0
