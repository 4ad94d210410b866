package xactor

import (
	"context"
	"dstaping/pkg/xcommon"
	"dstaping/pkg/xlog"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrClosed   = errors.New("actor closed")
	ErrMailFull = errors.New("actor mailbox full")
)

// Actor 单协程串行处理消息, 由创建方持有和关闭
// 特性: 同步/异步消息处理, 业务代码无锁, 可选ticker
type Actor struct {
	state ActorState // 数据状态
	box   *mailBox   // 消息分发
	*actorHandler

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        xcommon.WaitGroup
}

func NewActor(ctx context.Context, state ActorState) (*Actor, error) {
	handler, err := newActorHandler(state.InitArg())
	if err != nil {
		return nil, err
	}
	actor := &Actor{
		state:        state,
		actorHandler: handler,
		closeCh:      make(chan struct{}),
	}
	actor.box = newMailBox(actor.closeCh)

	actor.wg.Add(1)
	go actor.logicLoop(xlog.NewContext(ctx, zap.String("actor", state.Name())))
	return actor, nil
}

// 业务循环
func (actor *Actor) logicLoop(ctx context.Context) {
	defer actor.wg.Done(ctx)

	var tickCh <-chan time.Time
	if actor.tickerDuration > 0 {
		ticker := time.NewTicker(actor.tickerDuration)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	defer func() {
		// 关闭业务模块
		actor.state.Close(ctx)
	}()

	for {
		select {
		case m := <-actor.box.recvMail():
			actor.handle(ctx, m)
		case <-tickCh:
			// 触发定时任务
			actor.actorHandler.tick(ctx)
		case <-actor.closeCh:
			actor.drain(ctx)
			return
		}
	}
}

func (actor *Actor) handle(ctx context.Context, m *mail) {
	switch m.t {
	case syncMail:
		resp, err := actor.handleSync(m.ctx, m.req)
		m.resultCh <- &result{resp: resp, err: err}
	case asyncMail:
		if err := actor.handleAsync(m.ctx, m.req); err != nil {
			xlog.Get(ctx).Warn("Async mail dropped.", zap.Any("err", err))
		}
	default:
		xlog.Get(ctx).Warn("Mail type invalid", zap.Any("type", m.t))
	}
}

// 关闭时同步请求直接返回错误, 异步消息丢弃
func (actor *Actor) drain(ctx context.Context) {
	for {
		select {
		case m := <-actor.box.recvMail():
			if m.t == syncMail {
				m.resultCh <- &result{err: ErrClosed}
			}
		default:
			return
		}
	}
}

// 同步请求
func (actor *Actor) syncRequest(ctx context.Context, req interface{}) (interface{}, error) {
	m := newMail(ctx, syncMail, req)
	if !actor.box.sendMail(ctx, m) {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "cancel request")
		}
		return nil, ErrClosed
	}
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "cancel request")
	case r := <-m.resultCh:
		return r.resp, r.err
	case <-actor.closeCh:
		select {
		case r := <-m.resultCh:
			return r.resp, r.err
		default:
			return nil, ErrClosed
		}
	}
}

// SyncRequest 同步请求(模板)
func SyncRequest[M1 any, M2 any](ctx context.Context, actor *Actor, req *M1) (*M2, error) {
	result, err := actor.syncRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, ok := result.(*M2)
	if !ok {
		return nil, fmt.Errorf("result [%v] not type [%v]", reflect.TypeOf(result), reflect.TypeOf(new(M2)))
	}
	return resp, nil
}

// AsyncRequest 异步请求, 不阻塞; 邮箱满或已关闭时返回错误
func (actor *Actor) AsyncRequest(ctx context.Context, req interface{}) error {
	if !actor.box.trySendMail(newMail(ctx, asyncMail, req)) {
		select {
		case <-actor.closeCh:
			return ErrClosed
		default:
			return ErrMailFull
		}
	}
	return nil
}

func (actor *Actor) Name() string {
	return actor.state.Name()
}

// Close 关闭并等待业务循环退出, 不可在actor自身的handler内调用
func (actor *Actor) Close(ctx context.Context) {
	actor.closeOnce.Do(func() {
		close(actor.closeCh)
	})
	actor.wg.Wait()
}
