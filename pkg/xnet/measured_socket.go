package xnet

import (
	"context"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xlog"
	"dstaping/pkg/xwire"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type SetupArgs struct {
	Target         string // host:port
	BufferCount    int    // 预投递接收buffer数量
	InterfaceIndex int    // 出接口, 0为默认路由
	DatagramSize   int    // 数据包长度
	Workers        int
	ProbeTimeout   time.Duration // 单次探测等待
	OnFatal        OnFatal
}

// RecvResult 一次有效接收
type RecvResult struct {
	Seq    int64
	SendTs int64
	EchoTs int64
	RecvTs int64
}

type OnRecv func(ctx context.Context, res RecvResult)

// OnSent 发送完成, err不为nil时该数据包已丢弃
type OnSent func(ctx context.Context, seq int64, sendTs int64, err error)

// PathCounters 路径计数, 不含探测包
type PathCounters struct {
	Posted     int64 // 已进入发送队列
	Sent       int64
	SendFailed int64
	Received   int64
	Corrupt    int64
	RecvErrors int64
}

// MeasuredSocket 绑定单一出接口的UDP路径
// 状态: Disabled --Setup--> Ready --Cancel--> Disabled
type MeasuredSocket struct {
	name   string
	status int32

	mu      sync.RWMutex // 保护reactor, 防止与关闭并发使用socket
	reactor *Reactor

	bufMgr       *bufferManager
	recvReqs     []*Request
	datagramSize int
	probeTimeout time.Duration
	onFatal      OnFatal

	receiving int32
	seqLimit  int64
	onRecv    atomic.Value // OnRecv
	probeCh   chan int64

	posted     int64
	released   int64 // 已结束(完成或取消)的发送请求
	sent       int64
	sendFailed int64
	received   int64
	corrupt    int64
	recvErrors int64
}

func NewMeasuredSocket(name string) *MeasuredSocket {
	return &MeasuredSocket{
		name:     name,
		status:   int32(Disabled),
		seqLimit: math.MaxInt64,
		probeCh:  make(chan int64, 4),
	}
}

func (s *MeasuredSocket) Name() string {
	return s.name
}

func (s *MeasuredSocket) Status() AdapterStatus {
	return AdapterStatus(atomic.LoadInt32(&s.status))
}

// SetSequenceLimit 超出[0, limit)的序号视为损坏
func (s *MeasuredSocket) SetSequenceLimit(limit int64) {
	atomic.StoreInt64(&s.seqLimit, limit)
}

// Setup 创建socket, 绑定出接口, 连接目标, 分配接收buffer; 失败为致命错误, 不重试
func (s *MeasuredSocket) Setup(ctx context.Context, arg SetupArgs) error {
	if arg.DatagramSize <= 0 {
		arg.DatagramSize = xwire.DefaultDatagramSize
	}
	if arg.DatagramSize < xwire.HeaderSize {
		return xerr.Fatalf(xerr.SetupFailed, "datagram size %v smaller than header %v", arg.DatagramSize, xwire.HeaderSize)
	}
	if arg.BufferCount <= 0 {
		arg.BufferCount = defaultBufCount
	}
	if arg.BufferCount > maxPostedBuffers {
		arg.BufferCount = maxPostedBuffers
	}
	if arg.ProbeTimeout <= 0 {
		arg.ProbeTimeout = defaultProbeWait
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reactor != nil {
		return xerr.Fatalf(xerr.SetupFailed, "path %v already setup", s.name)
	}

	conn, err := DialUDP(ctx, arg.Target, arg.InterfaceIndex)
	if err != nil {
		return err
	}
	reactor, err := NewReactor(ctx, ReactorArgs{
		Conn:      conn,
		Connected: true,
		Workers:   arg.Workers,
		RecvQueue: arg.BufferCount,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}

	s.reactor = reactor
	s.datagramSize = arg.DatagramSize
	s.bufMgr = newBufferManager(arg.DatagramSize)
	s.probeTimeout = arg.ProbeTimeout
	s.onFatal = arg.OnFatal
	s.recvReqs = make([]*Request, 0, arg.BufferCount)
	for i := 0; i < arg.BufferCount; i++ {
		s.recvReqs = append(s.recvReqs, NewRequest(make([]byte, arg.DatagramSize), s.onReceive))
	}
	atomic.StoreInt32(&s.receiving, 0)
	atomic.StoreInt32(&s.status, int32(Ready))

	xlog.Get(ctx).Info("Path setup success.", zap.String("path", s.name), zap.String("target", arg.Target),
		zap.Int("ifindex", arg.InterfaceIndex), zap.Any("local", conn.LocalAddr()), zap.Int("buffers", arg.BufferCount))
	return nil
}

// LocalAddr socket本地地址, 未Setup时为nil
func (s *MeasuredSocket) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reactor == nil {
		return nil
	}
	return s.reactor.LocalAddr()
}

// CheckConnectivity 发送探测包(Seq=-1)等待回显, 失败重试一次
func (s *MeasuredSocket) CheckConnectivity(ctx context.Context) error {
	if err := s.ensureReceiving(ctx); err != nil {
		return err
	}
	for attempt := 1; attempt <= connectivityTries; attempt++ {
		ok, err := s.probeOnce(ctx)
		if err != nil {
			return err
		}
		if ok {
			xlog.Get(ctx).Info("Path connectivity ok.", zap.String("path", s.name), zap.Int("attempt", attempt))
			return nil
		}
		xlog.Get(ctx).Warn("Path probe timeout.", zap.String("path", s.name), zap.Int("attempt", attempt))
	}
	return xerr.Recoverablef(xerr.Unreachable, "path %v: no probe echo after %v attempts", s.name, connectivityTries)
}

func (s *MeasuredSocket) probeOnce(ctx context.Context) (bool, error) {
	// 丢弃上一次迟到的回显
	for len(s.probeCh) > 0 {
		<-s.probeCh
	}

	sendTs := xwire.Now()
	if err := s.send(ctx, xwire.ProbeSeq, sendTs, nil); err != nil {
		if xerr.CodeOf(err) == xerr.Closed {
			return false, xerr.NewRecoverable(xerr.Unreachable, err)
		}
		xlog.Get(ctx).Warn("Send probe failed.", zap.String("path", s.name), zap.Any("err", err))
		return false, nil
	}

	timer := time.NewTimer(s.probeTimeout)
	defer timer.Stop()
	for {
		select {
		case ts := <-s.probeCh:
			if ts == sendTs {
				return true, nil
			}
		case <-timer.C:
			return false, nil
		case <-ctx.Done():
			return false, xerr.NewRecoverable(xerr.Unreachable, ctx.Err())
		}
	}
}

// SendDatagram 异步发送, socket已关闭时仅记录日志
func (s *MeasuredSocket) SendDatagram(ctx context.Context, seq int64, onComplete OnSent) {
	if err := s.send(ctx, seq, xwire.Now(), onComplete); err != nil {
		if xerr.CodeOf(err) == xerr.Closed {
			xlog.Get(ctx).Debug("Send on closed path ignored.", zap.String("path", s.name), zap.Int64("seq", seq))
			return
		}
		atomic.AddInt64(&s.sendFailed, 1)
		xlog.Get(ctx).Warn("Send datagram failed.", zap.String("path", s.name), zap.Int64("seq", seq), zap.Any("err", err))
	}
}

func (s *MeasuredSocket) send(ctx context.Context, seq int64, sendTs int64, onComplete OnSent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reactor == nil || s.Status() != Ready {
		return xerr.NewRecoverable(xerr.Closed, nil)
	}

	buf := s.bufMgr.get()
	if _, err := xwire.Encode(buf, seq, sendTs); err != nil {
		s.bufMgr.put(buf)
		return err
	}
	bufMgr := s.bufMgr
	data := seq != xwire.ProbeSeq
	req := NewRequest(buf, func(ctx context.Context, req *Request) bool {
		s.onSendComplete(ctx, req, onComplete)
		return false
	}).WithRelease(func(req *Request) {
		bufMgr.put(req.Buf)
		if data {
			atomic.AddInt64(&s.released, 1)
		}
	})
	req.Seq, req.SendTs = seq, sendTs

	// 入队前计数, 保证完成回调看到的posted不小于released
	if data {
		atomic.AddInt64(&s.posted, 1)
	}
	if err := s.reactor.Send(req); err != nil {
		if data {
			atomic.AddInt64(&s.posted, -1)
		}
		bufMgr.put(buf)
		return err
	}
	return nil
}

func (s *MeasuredSocket) onSendComplete(ctx context.Context, req *Request, onComplete OnSent) {
	if req.Err != nil {
		atomic.AddInt64(&s.sendFailed, 1)
		xlog.Get(ctx).Warn("Datagram dropped.", zap.String("path", s.name), zap.Int64("seq", req.Seq), zap.Any("err", req.Err))
	} else if req.Seq != xwire.ProbeSeq {
		atomic.AddInt64(&s.sent, 1)
	}
	if onComplete != nil {
		onComplete(ctx, req.Seq, req.SendTs, req.Err)
	}
}

// PrepareToReceive 投递全部接收buffer, 每次完成后由reactor重新投递
func (s *MeasuredSocket) PrepareToReceive(ctx context.Context, onRecv OnRecv) error {
	if onRecv != nil {
		s.onRecv.Store(onRecv)
	}
	return s.ensureReceiving(ctx)
}

func (s *MeasuredSocket) ensureReceiving(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reactor == nil {
		return xerr.NewRecoverable(xerr.Closed, errors.Errorf("path %v not setup", s.name))
	}
	if !atomic.CompareAndSwapInt32(&s.receiving, 0, 1) {
		return nil
	}
	for _, req := range s.recvReqs {
		if err := s.reactor.Receive(req); err != nil {
			return err
		}
	}
	xlog.Get(ctx).Debug("Receive buffers posted.", zap.String("path", s.name), zap.Int("count", len(s.recvReqs)))
	return nil
}

// 接收完成: 返回true重新投递buffer
func (s *MeasuredSocket) onReceive(ctx context.Context, req *Request) bool {
	if s.Status() != Ready {
		return false
	}
	if req.Err != nil {
		return s.onReceiveError(ctx, req.Err)
	}

	h, err := xwire.Decode(req.Bytes())
	if err != nil {
		atomic.AddInt64(&s.corrupt, 1)
		xlog.Get(ctx).Debug("Corrupt datagram.", zap.String("path", s.name), zap.Int("bytes", req.N))
		return true
	}
	if h.Seq == xwire.ProbeSeq {
		select {
		case s.probeCh <- h.SendTs:
		default:
		}
		return true
	}
	if h.Seq < 0 || h.Seq >= atomic.LoadInt64(&s.seqLimit) {
		atomic.AddInt64(&s.corrupt, 1)
		xlog.Get(ctx).Debug("Sequence out of range.", zap.String("path", s.name), zap.Int64("seq", h.Seq))
		return true
	}

	if fn, ok := s.onRecv.Load().(OnRecv); ok && fn != nil {
		fn(ctx, RecvResult{Seq: h.Seq, SendTs: h.SendTs, EchoTs: h.EchoTs, RecvTs: req.At})
	}
	// 回调结束后计数, Received反映已写入的记录
	atomic.AddInt64(&s.received, 1)
	return true
}

func (s *MeasuredSocket) onReceiveError(ctx context.Context, err error) bool {
	atomic.AddInt64(&s.recvErrors, 1)
	// ICMP端口不可达反映在已连接socket上, 对端未启动时常见
	if RecoverableReceiveError(err) {
		xlog.Get(ctx).Debug("Receive refused.", zap.String("path", s.name))
		return true
	}
	fatal := xerr.NewFatal(xerr.ReceiveFailed, errors.Wrapf(err, "path %v", s.name))
	xlog.Get(ctx).Error("Receive failed.", zap.String("path", s.name), zap.Any("err", err))
	if s.onFatal != nil {
		s.onFatal(ctx, fatal)
	}
	return false
}

// Cancel 状态置为Disabled, 持锁关闭socket, 然后等待reactor全部回调结束
func (s *MeasuredSocket) Cancel(ctx context.Context) {
	atomic.StoreInt32(&s.status, int32(Disabled))

	s.mu.Lock()
	reactor := s.reactor
	s.reactor = nil
	if reactor != nil {
		reactor.Shutdown(ctx)
	}
	s.mu.Unlock()

	if reactor != nil {
		reactor.Close(ctx)
		xlog.Get(ctx).Info("Path canceled.", zap.String("path", s.name), zap.Any("counters", s.Counters()))
	}
}

// Pending 在途数据: sends为已入队但请求尚未结束的数量, echoes为发送成功但尚未收到回显的数量
func (s *MeasuredSocket) Pending() (sends int64, echoes int64) {
	sends = atomic.LoadInt64(&s.posted) - atomic.LoadInt64(&s.released)
	echoes = atomic.LoadInt64(&s.sent) - atomic.LoadInt64(&s.received)
	if sends < 0 {
		sends = 0
	}
	if echoes < 0 {
		echoes = 0
	}
	return sends, echoes
}

func (s *MeasuredSocket) Counters() PathCounters {
	return PathCounters{
		Posted:     atomic.LoadInt64(&s.posted),
		Sent:       atomic.LoadInt64(&s.sent),
		SendFailed: atomic.LoadInt64(&s.sendFailed),
		Received:   atomic.LoadInt64(&s.received),
		Corrupt:    atomic.LoadInt64(&s.corrupt),
		RecvErrors: atomic.LoadInt64(&s.recvErrors),
	}
}
