package xactor

import (
	"context"
	"reflect"
	"time"

	"dstaping/pkg/xerr"
	"dstaping/pkg/xlog"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNoHandler 请求类型未注册
var ErrNoHandler = errors.New("actor handler not found")

type (
	SyncHandler  func(ctx context.Context, req interface{}) (interface{}, error) // 同步handler
	AsyncHandler func(ctx context.Context, req interface{})                      // 异步handler
	TickHandler  func(ctx context.Context)                                       // 定时器handler
)

type SyncHandlerArgs struct {
	H SyncHandler
	T reflect.Type
}

type AsyncHandlerArgs struct {
	H AsyncHandler
	T reflect.Type
}

type ActorHandlerArgs struct {
	Syncs          []SyncHandlerArgs  // 同步handlers(阻塞等待结果)
	Asyncs         []AsyncHandlerArgs // 异步handlers(投递即返回)
	Tickers        []TickHandler      // 定时handlers
	TickerDuration time.Duration      // 定时间隔, 有Tickers时必填
}

func keyOf[M any]() reflect.Type {
	return reflect.TypeOf(new(M))
}

// SyncHandlerWrap M1请求, M2响应
func SyncHandlerWrap[M1 any, M2 any](fn func(ctx context.Context, r *M1) (*M2, error)) SyncHandlerArgs {
	return SyncHandlerArgs{H: func(ctx context.Context, req interface{}) (interface{}, error) {
		r, ok := req.(*M1)
		if !ok {
			return nil, errors.Wrapf(ErrNoHandler, "sync req %T", req)
		}
		return fn(ctx, r)
	}, T: keyOf[M1]()}
}

// AsyncHandlerWrap M1请求
func AsyncHandlerWrap[M1 any](fn func(ctx context.Context, r *M1)) AsyncHandlerArgs {
	return AsyncHandlerArgs{H: func(ctx context.Context, req interface{}) {
		r, ok := req.(*M1)
		if !ok {
			xlog.Get(ctx).Warn("Async req type mismatch.", zap.String("req", reflect.TypeOf(req).String()))
			return
		}
		fn(ctx, r)
	}, T: keyOf[M1]()}
}

// 同一请求类型可同时注册同步与异步处理
type route struct {
	sync  SyncHandler
	async AsyncHandler
}

type actorHandler struct {
	routes         map[reflect.Type]*route
	tickFns        []TickHandler
	tickerDuration time.Duration
}

func newActorHandler(arg ActorHandlerArgs) (*actorHandler, error) {
	if len(arg.Tickers) > 0 && arg.TickerDuration <= 0 {
		return nil, xerr.Fatalf(xerr.InvalidConfig, "ticker duration %v", arg.TickerDuration)
	}
	h := &actorHandler{
		routes:         make(map[reflect.Type]*route),
		tickFns:        append([]TickHandler(nil), arg.Tickers...),
		tickerDuration: noTicker,
	}
	if len(arg.Tickers) > 0 {
		h.tickerDuration = arg.TickerDuration
	}
	for _, s := range arg.Syncs {
		r := h.routeOf(s.T)
		if r.sync != nil {
			return nil, xerr.Fatalf(xerr.InvalidConfig, "sync request %v registered twice", s.T)
		}
		r.sync = s.H
	}
	for _, a := range arg.Asyncs {
		r := h.routeOf(a.T)
		if r.async != nil {
			return nil, xerr.Fatalf(xerr.InvalidConfig, "async request %v registered twice", a.T)
		}
		r.async = a.H
	}
	return h, nil
}

func (h *actorHandler) routeOf(t reflect.Type) *route {
	r, ok := h.routes[t]
	if !ok {
		r = &route{}
		h.routes[t] = r
	}
	return r
}

func (h *actorHandler) handleSync(ctx context.Context, req interface{}) (interface{}, error) {
	r, ok := h.routes[reflect.TypeOf(req)]
	if !ok || r.sync == nil {
		return nil, errors.Wrapf(ErrNoHandler, "sync req %T", req)
	}
	return r.sync(ctx, req)
}

func (h *actorHandler) handleAsync(ctx context.Context, req interface{}) error {
	r, ok := h.routes[reflect.TypeOf(req)]
	if !ok || r.async == nil {
		return errors.Wrapf(ErrNoHandler, "async req %T", req)
	}
	r.async(ctx, req)
	return nil
}

func (h *actorHandler) tick(ctx context.Context) {
	for _, fn := range h.tickFns {
		fn(ctx)
	}
}
