package xtimer

import (
	"context"
	"dstaping/pkg/xcommon"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xlog"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// OnTick 返回false时不再重新调度
type OnTick func(ctx context.Context) bool

type PeriodicArgs struct {
	Interval time.Duration
	OnTick   OnTick
}

// Periodic 周期触发器
// 下一次触发时间 = 上一次计划触发时间 + interval, 回调耗时不会累积漂移;
// 回调超时(剩余等待<=0)时立即触发下一次.
// 回调串行执行, 永不并发.
type Periodic struct {
	interval time.Duration
	onTick   OnTick

	armOnce  sync.Once
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	armed    int32

	ticks    int64
	overruns int64

	wg xcommon.WaitGroup
}

func NewPeriodic(ctx context.Context, arg PeriodicArgs) (*Periodic, error) {
	if arg.Interval <= 0 {
		return nil, xerr.Fatalf(xerr.InvalidConfig, "interval %v", arg.Interval)
	}
	if arg.OnTick == nil {
		return nil, xerr.Fatalf(xerr.InvalidConfig, "on tick is nil")
	}
	return &Periodic{
		interval: arg.Interval,
		onTick:   arg.OnTick,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Schedule 启动定时器, 首次触发在interval之后, 重复调用无效
func (p *Periodic) Schedule(ctx context.Context) {
	p.armOnce.Do(func() {
		select {
		case <-p.stopCh:
			// 已Stop, 不再启动
			return
		default:
		}
		atomic.StoreInt32(&p.armed, 1)
		p.wg.Add(1)
		go p.loop(ctx, time.Now().Add(p.interval))
	})
}

func (p *Periodic) loop(ctx context.Context, deadline time.Time) {
	defer close(p.doneCh)
	defer p.wg.Done(ctx)

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
		case <-p.stopCh:
			return
		}

		for {
			atomic.AddInt64(&p.ticks, 1)
			if !p.onTick(ctx) {
				return
			}

			deadline = deadline.Add(p.interval)
			wait := time.Until(deadline)
			if wait > 0 {
				timer.Reset(wait)
				break
			}

			// 回调超时, 立即触发
			atomic.AddInt64(&p.overruns, 1)
			select {
			case <-p.stopCh:
				return
			default:
			}
		}
	}
}

// Stop 解除定时器, 幂等, 不阻塞, 可在回调内调用
func (p *Periodic) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		// 从未启动时直接结束
		p.armOnce.Do(func() {})
		if atomic.LoadInt32(&p.armed) == 0 {
			close(p.doneCh)
		}
	})
}

// Close 停止并阻塞等待正在执行的回调返回, 不可在回调内调用
func (p *Periodic) Close(ctx context.Context) {
	p.Stop()
	p.wg.Wait()
	xlog.Get(ctx).Debug("Periodic closed", zap.Int64("ticks", p.Ticks()), zap.Int64("overruns", p.Overruns()))
}

// Done 定时循环退出后关闭
func (p *Periodic) Done() <-chan struct{} {
	return p.doneCh
}

func (p *Periodic) Ticks() int64 {
	return atomic.LoadInt64(&p.ticks)
}

func (p *Periodic) Overruns() int64 {
	return atomic.LoadInt64(&p.overruns)
}
