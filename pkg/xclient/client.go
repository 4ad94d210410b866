package xclient

import (
	"context"
	"dstaping/pkg/xactor"
	"dstaping/pkg/xcommon"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xlog"
	"dstaping/pkg/xnet"
	"dstaping/pkg/xnetwatch"
	"dstaping/pkg/xstats"
	"dstaping/pkg/xtimer"
	"dstaping/pkg/xwire"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultDrainTimeout = time.Second
	drainPollInterval   = 10 * time.Millisecond
)

// 会话状态
const (
	stateIdle int32 = iota
	stateStarting
	stateRunning
	stateStopping
	stateStopped
)

type ClientArgs struct {
	Target           string // host:port
	DatagramSize     int
	BufferCount      int // 每条路径预投递接收buffer数量
	Workers          int
	PrimaryInterface string // 主路径出接口名, 为空使用默认路由
	Secondary        bool   // 是否尝试副路径
	Observer         xnetwatch.Observer
	ProbeTimeout     time.Duration // 单次连通性探测等待
	DrainTimeout     time.Duration // Stop时等待在途数据包
}

type StartArgs struct {
	Bitrate         int64 // bit/s
	FrameRate       int   // 每次调度发送的数据包数
	DurationSeconds int64
}

// Session 一次运行的参数与记录表
type Session struct {
	RunID           string
	Target          string
	Bitrate         int64
	FrameRate       int
	DurationSeconds int64
	TickInterval    time.Duration
	FinalSequence   int64

	table   *xstats.Table
	nextSeq int64
}

// Client 双路径发送端
// Start之后由调度器按固定间隔在所有Ready路径上发送, 发送完成与接收完成写入记录表;
// 完成回调只通过abort上报致命错误, 由run协程执行Stop.
type Client struct {
	arg ClientArgs
	id  string
	ctx context.Context // 绑定run id的logger

	mu      sync.Mutex // Start与Stop互斥
	state   int32
	session *Session

	primary   *xnet.MeasuredSocket
	secondary *xnet.MeasuredSocket
	// 副路径状态, 只有Ready时参与发送
	secondaryStatus int32

	periodic    *xtimer.Periodic
	actor       *xactor.Actor
	unsubscribe func()
	// 取消副路径处理中的连通性探测
	cancelSecondary context.CancelFunc

	abortOnce sync.Once
	abortCh   chan struct{}
	fatalErr  atomic.Value // error

	stopOnce   sync.Once
	finishOnce sync.Once
	doneCh     chan struct{}
	result     *Result
}

func NewClient(ctx context.Context, arg ClientArgs) (*Client, error) {
	if arg.Target == "" {
		return nil, xerr.Fatalf(xerr.InvalidConfig, "target is empty")
	}
	if arg.DatagramSize <= 0 {
		arg.DatagramSize = xwire.DefaultDatagramSize
	}
	if arg.DatagramSize < xwire.HeaderSize {
		return nil, xerr.Fatalf(xerr.InvalidConfig, "datagram size %v smaller than header %v", arg.DatagramSize, xwire.HeaderSize)
	}
	if arg.DrainTimeout <= 0 {
		arg.DrainTimeout = defaultDrainTimeout
	}
	if arg.Secondary && arg.Observer == nil {
		return nil, xerr.Fatalf(xerr.InvalidConfig, "secondary path requires a network observer")
	}

	id := uuid.NewString()
	return &Client{
		arg:             arg,
		id:              id,
		ctx:             xlog.NewContext(ctx, zap.String("run", id)),
		primary:         xnet.NewMeasuredSocket("primary"),
		secondary:       xnet.NewMeasuredSocket("secondary"),
		secondaryStatus: int32(xnet.Disabled),
		abortCh:         make(chan struct{}),
		doneCh:          make(chan struct{}),
	}, nil
}

func (c *Client) RunID() string {
	return c.id
}

// Start 计算发送参数, 建立主路径(失败为致命错误), 尝试副路径, 启动调度
func (c *Client) Start(ctx context.Context, arg StartArgs) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !atomic.CompareAndSwapInt32(&c.state, stateIdle, stateStarting) {
		return xerr.Fatalf(xerr.InvalidConfig, "client already started or stopped")
	}
	ctx = xlog.FromContext(c.ctx, ctx)

	session, err := c.newSession(arg)
	if err != nil {
		c.finish(ctx, err)
		return err
	}
	c.session = session

	if err := c.setupPrimary(ctx); err != nil {
		c.finish(ctx, err)
		return err
	}

	periodic, err := xtimer.NewPeriodic(ctx, xtimer.PeriodicArgs{Interval: session.TickInterval, OnTick: c.tick})
	if err != nil {
		c.primary.Cancel(ctx)
		err = xerr.Escalate(err)
		c.finish(ctx, err)
		return err
	}
	c.periodic = periodic

	// 探测可能持续数秒, 使用可取消的context
	secondaryCtx, cancel := context.WithCancel(xlog.FromContext(ctx, context.Background()))
	c.cancelSecondary = cancel
	if c.arg.Secondary {
		if err := c.startSecondary(secondaryCtx); err != nil {
			xlog.Get(ctx).Warn("Secondary path unavailable.", zap.Any("err", err))
		}
	}

	atomic.StoreInt32(&c.state, stateRunning)
	go c.run(ctx)
	c.periodic.Schedule(ctx)

	xlog.Get(ctx).Info("Client started.", zap.String("target", session.Target), zap.Int64("bitrate", session.Bitrate),
		zap.Int("frame_rate", session.FrameRate), zap.Duration("interval", session.TickInterval),
		zap.Int64("final", session.FinalSequence), zap.Stringer("secondary", c.SecondaryStatus()))
	return nil
}

func (c *Client) newSession(arg StartArgs) (*Session, error) {
	interval, err := TickInterval(c.arg.DatagramSize, arg.FrameRate, arg.Bitrate)
	if err != nil {
		return nil, err
	}
	final, err := FinalSequence(arg.DurationSeconds, arg.Bitrate, c.arg.DatagramSize)
	if err != nil {
		return nil, err
	}
	table, err := xstats.NewTable(final)
	if err != nil {
		return nil, err
	}
	return &Session{
		RunID:           c.id,
		Target:          c.arg.Target,
		Bitrate:         arg.Bitrate,
		FrameRate:       arg.FrameRate,
		DurationSeconds: arg.DurationSeconds,
		TickInterval:    interval,
		FinalSequence:   final,
		table:           table,
	}, nil
}

func (c *Client) setupPrimary(ctx context.Context) error {
	ifIndex := 0
	if c.arg.PrimaryInterface != "" {
		iface, err := net.InterfaceByName(c.arg.PrimaryInterface)
		if err != nil {
			return xerr.NewFatal(xerr.SetupFailed, errors.Wrapf(err, "primary interface %v", c.arg.PrimaryInterface))
		}
		ifIndex = iface.Index
	}
	if err := c.primary.Setup(ctx, c.setupArgs(ifIndex)); err != nil {
		return xerr.Escalate(err)
	}
	c.primary.SetSequenceLimit(c.session.FinalSequence)
	if err := c.primary.CheckConnectivity(ctx); err != nil {
		c.primary.Cancel(ctx)
		return xerr.Escalate(err)
	}
	if err := c.primary.PrepareToReceive(ctx, c.onRecv(xstats.Primary)); err != nil {
		c.primary.Cancel(ctx)
		return xerr.Escalate(err)
	}
	return nil
}

func (c *Client) setupArgs(ifIndex int) xnet.SetupArgs {
	return xnet.SetupArgs{
		Target:         c.arg.Target,
		BufferCount:    c.arg.BufferCount,
		InterfaceIndex: ifIndex,
		DatagramSize:   c.arg.DatagramSize,
		Workers:        c.arg.Workers,
		ProbeTimeout:   c.arg.ProbeTimeout,
		OnFatal:        c.abort,
	}
}

func (c *Client) startSecondary(ctx context.Context) error {
	c.secondary.SetSequenceLimit(c.session.FinalSequence)
	state := newSecondaryState(c, c.arg.Observer)
	actor, err := xactor.NewActor(ctx, state)
	if err != nil {
		return err
	}
	c.actor = actor
	c.unsubscribe = c.arg.Observer.Subscribe(func(context.Context) {
		if err := actor.AsyncRequest(ctx, &networkChangedReq{}); err != nil {
			xlog.Get(ctx).Debug("Network event dropped.", zap.Any("err", err))
		}
	})
	// 启动时同步评估一次
	_, err = xactor.SyncRequest[networkChangedReq, networkChangedResp](ctx, actor, &networkChangedReq{})
	return err
}

// 调度回调: 在每条Ready路径上发送frameRate个连续序号
func (c *Client) tick(ctx context.Context) bool {
	if atomic.LoadInt32(&c.state) != stateRunning {
		return false
	}
	s := c.session
	useSecondary := c.SecondaryStatus() == xnet.Ready

	for i := 0; i < s.FrameRate; i++ {
		seq := atomic.LoadInt64(&s.nextSeq)
		if seq >= s.FinalSequence {
			break
		}
		if _, ok := xcommon.AddInt64(seq, 1); !ok {
			c.abort(ctx, xerr.Fatalf(xerr.SequenceOverflow, "sequence %v", seq))
			return false
		}
		atomic.StoreInt64(&s.nextSeq, seq+1)

		c.primary.SendDatagram(ctx, seq, c.onSent(xstats.Primary))
		if useSecondary {
			c.secondary.SendDatagram(ctx, seq, c.onSent(xstats.Secondary))
		}
	}
	return atomic.LoadInt64(&s.nextSeq) < s.FinalSequence
}

func (c *Client) onSent(p xstats.Path) xnet.OnSent {
	return func(ctx context.Context, seq int64, sendTs int64, err error) {
		if err != nil || atomic.LoadInt32(&c.state) == stateStopped {
			return
		}
		c.session.table.SetSend(p, seq, sendTs)
	}
}

func (c *Client) onRecv(p xstats.Path) xnet.OnRecv {
	return func(ctx context.Context, res xnet.RecvResult) {
		if atomic.LoadInt32(&c.state) == stateStopped {
			return
		}
		if !c.session.table.SetReceive(p, res.Seq, res.EchoTs, res.RecvTs) {
			xlog.Get(ctx).Debug("Duplicate datagram.", zap.Stringer("path", p), zap.Int64("seq", res.Seq))
		}
	}
}

// abort 上报致命错误, 不阻塞, 可在完成回调中调用
func (c *Client) abort(ctx context.Context, err error) {
	c.abortOnce.Do(func() {
		c.fatalErr.Store(err)
		xlog.Get(ctx).Error("Run aborted.", zap.Any("err", err))
		close(c.abortCh)
	})
}

func (c *Client) run(ctx context.Context) {
	select {
	case <-c.periodic.Done():
		xlog.Get(ctx).Info("All datagrams scheduled.", zap.Int64("sent", atomic.LoadInt64(&c.session.nextSeq)))
	case <-c.abortCh:
	case <-ctx.Done():
		xlog.Get(ctx).Info("Run canceled.", zap.Any("err", ctx.Err()))
	}
	c.Stop(xlog.FromContext(ctx, context.Background()))
}

// Stop 停止调度, 等待在途数据包, 关闭全部路径; 幂等, 阻塞到关闭完成
// 不可在完成回调内调用
func (c *Client) Stop(ctx context.Context) {
	c.stopOnce.Do(func() {
		c.stop(xlog.FromContext(c.ctx, ctx))
	})
	<-c.doneCh
}

func (c *Client) stop(ctx context.Context) {
	// 等待进行中的Start
	c.mu.Lock()
	defer c.mu.Unlock()
	if !atomic.CompareAndSwapInt32(&c.state, stateRunning, stateStopping) {
		// 未启动或启动失败
		c.finish(ctx, nil)
		return
	}

	c.periodic.Close(ctx)
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.cancelSecondary != nil {
		c.cancelSecondary()
	}
	if c.actor != nil {
		c.actor.Close(ctx)
	}

	c.drain(ctx)
	atomic.StoreInt32(&c.state, stateStopped)
	c.primary.Cancel(ctx)
	c.secondary.Cancel(ctx)
	atomic.StoreInt32(&c.secondaryStatus, int32(xnet.Disabled))

	var err error
	if v := c.fatalErr.Load(); v != nil {
		err = v.(error)
	}
	c.finish(ctx, err)
}

// drain 等待在途数据包: 发送队列清空且回显全部收到, 或超时; 致命错误时不等待
func (c *Client) drain(ctx context.Context) {
	deadline := time.Now().Add(c.arg.DrainTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-c.abortCh:
			return
		default:
		}
		if c.inflight() == 0 {
			return
		}
		time.Sleep(drainPollInterval)
	}
	xlog.Get(ctx).Info("Drain timeout.", zap.Int64("inflight", c.inflight()), zap.Duration("timeout", c.arg.DrainTimeout))
}

func (c *Client) inflight() int64 {
	var n int64
	for _, p := range []*xnet.MeasuredSocket{c.primary, c.secondary} {
		if p.Status() != xnet.Ready {
			continue
		}
		sends, echoes := p.Pending()
		n += sends + echoes
	}
	return n
}

func (c *Client) finish(ctx context.Context, err error) {
	c.finishOnce.Do(func() {
		atomic.StoreInt32(&c.state, stateStopped)
		c.result = c.buildResult(err)
		xlog.Get(ctx).Info("Client stopped.", zap.Any("err", err))
		close(c.doneCh)
	})
}

// Done 运行结束后关闭
func (c *Client) Done() <-chan struct{} {
	return c.doneCh
}

// Wait 阻塞到运行结束, 返回结果与致命错误
func (c *Client) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-c.doneCh:
		return c.result, c.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) SecondaryStatus() xnet.AdapterStatus {
	return xnet.AdapterStatus(atomic.LoadInt32(&c.secondaryStatus))
}

func (c *Client) setSecondaryStatus(s xnet.AdapterStatus) {
	atomic.StoreInt32(&c.secondaryStatus, int32(s))
}

// Sequence 已调度的数据包数
func (c *Client) Sequence() int64 {
	if atomic.LoadInt32(&c.state) < stateRunning || c.session == nil {
		return 0
	}
	return atomic.LoadInt64(&c.session.nextSeq)
}

// Counters 路径计数, 运行中可并发读取
func (c *Client) Counters() (primary xnet.PathCounters, secondary xnet.PathCounters) {
	return c.primary.Counters(), c.secondary.Counters()
}
