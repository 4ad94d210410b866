package xclient

import (
	"context"
	"dstaping/pkg/xactor"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xlog"
	"dstaping/pkg/xnet"
	"dstaping/pkg/xnetwatch"
	"dstaping/pkg/xstats"

	"go.uber.org/zap"
)

type networkChangedReq struct{}

type networkChangedResp struct {
	Status xnet.AdapterStatus
}

// secondaryState 副路径状态机, 只在actor协程内执行
//
//	Disabled: 没有可用的副接口
//	Connecting: 副接口存在, 等待其联网或连通性检测通过
//	Ready: 副路径参与发送
type secondaryState struct {
	c        *Client
	observer xnetwatch.Observer
	path     *xnet.MeasuredSocket

	primaryID string
	adapter   xnetwatch.Adapter
	status    xnet.AdapterStatus
}

func newSecondaryState(c *Client, observer xnetwatch.Observer) *secondaryState {
	return &secondaryState{
		c:        c,
		observer: observer,
		path:     c.secondary,
		status:   xnet.Disabled,
	}
}

func (s *secondaryState) InitArg() xactor.ActorHandlerArgs {
	return xactor.ActorHandlerArgs{
		Syncs:  []xactor.SyncHandlerArgs{xactor.SyncHandlerWrap(s.syncNetworkChanged)},
		Asyncs: []xactor.AsyncHandlerArgs{xactor.AsyncHandlerWrap(s.asyncNetworkChanged)},
	}
}

func (s *secondaryState) Name() string {
	return "secondary-" + s.c.id
}

func (s *secondaryState) Close(ctx context.Context) {
	xlog.Get(ctx).Debug("Secondary state closed.", zap.Stringer("status", s.status), zap.String("adapter", s.adapter.ID))
}

func (s *secondaryState) syncNetworkChanged(ctx context.Context, req *networkChangedReq) (*networkChangedResp, error) {
	s.OnNetworkChanged(ctx)
	return &networkChangedResp{Status: s.status}, nil
}

func (s *secondaryState) asyncNetworkChanged(ctx context.Context, req *networkChangedReq) {
	s.OnNetworkChanged(ctx)
}

// OnNetworkChanged 网络变化: 主接口变化时重建副路径, 副接口联网后检测连通性
func (s *secondaryState) OnNetworkChanged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	primary, err := s.observer.PreferredPrimary(ctx)
	if err != nil {
		xlog.Get(ctx).Warn("Resolve primary adapter failed.", zap.Any("err", err))
		return
	}

	if primary.ID != s.primaryID {
		if s.primaryID != "" {
			xlog.Get(ctx).Info("Primary adapter changed.", zap.String("from", s.primaryID), zap.String("to", primary.ID))
		}
		s.teardown(ctx, xnet.Disabled)
		s.primaryID = primary.ID
	}
	if s.status == xnet.Disabled {
		s.lookup(ctx, primary)
	}

	switch s.status {
	case xnet.Connecting:
		if s.observer.IsConnected(ctx, s.adapter.ID) {
			s.connect(ctx)
		}
	case xnet.Ready:
		if !s.observer.IsConnected(ctx, s.adapter.ID) {
			xlog.Get(ctx).Warn("Secondary adapter lost connectivity.", zap.String("adapter", s.adapter.ID))
			s.teardown(ctx, xnet.Connecting)
		}
	}
}

func (s *secondaryState) lookup(ctx context.Context, primary xnetwatch.Adapter) {
	adapter, ok, err := s.observer.SecondaryFor(ctx, primary)
	if err != nil {
		xlog.Get(ctx).Warn("Lookup secondary adapter failed.", zap.String("primary", primary.ID), zap.Any("err", err))
		return
	}
	if !ok || !adapter.Valid() {
		return
	}
	s.adapter = adapter
	s.setStatus(ctx, xnet.Connecting)
}

func (s *secondaryState) connect(ctx context.Context) {
	if err := s.path.Setup(ctx, s.c.setupArgs(s.adapter.Index)); err != nil {
		xlog.Get(ctx).Warn("Secondary path setup failed.", zap.String("adapter", s.adapter.ID), zap.Any("err", err))
		return
	}
	if err := s.path.CheckConnectivity(ctx); err != nil {
		// 不可达时保持Connecting, 等待下次通知
		xlog.Get(ctx).Warn("Secondary path unreachable.", zap.String("adapter", s.adapter.ID), zap.Any("err", err))
		s.path.Cancel(ctx)
		return
	}
	if err := s.path.PrepareToReceive(ctx, s.c.onRecv(xstats.Secondary)); err != nil {
		s.path.Cancel(ctx)
		if xerr.CodeOf(err) != xerr.Closed {
			s.c.abort(ctx, xerr.Escalate(err))
		}
		return
	}
	s.setStatus(ctx, xnet.Ready)
}

// teardown 关闭副路径并回到指定状态
func (s *secondaryState) teardown(ctx context.Context, to xnet.AdapterStatus) {
	if s.status == xnet.Ready || s.path.Status() == xnet.Ready {
		// 先停止发送再关闭socket
		s.c.setSecondaryStatus(to)
		s.path.Cancel(ctx)
	}
	if to == xnet.Disabled {
		s.adapter = xnetwatch.Adapter{}
	}
	s.setStatus(ctx, to)
}

func (s *secondaryState) setStatus(ctx context.Context, to xnet.AdapterStatus) {
	if s.status == to {
		return
	}
	xlog.Get(ctx).Info("Secondary status changed.", zap.Stringer("from", s.status), zap.Stringer("to", to),
		zap.String("adapter", s.adapter.ID))
	s.status = to
	s.c.setSecondaryStatus(to)
}
