package xnet

import (
	"context"
	"dstaping/pkg/xcommon"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xlog"
	"dstaping/pkg/xwire"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"
)

type ReactorArgs struct {
	Conn      *net.UDPConn
	Connected bool // 已连接socket, 发送忽略目标地址
	// RoutedReply 仅IPv4: 读取入接口信息, Reply从同一地址/接口发出
	RoutedReply bool
	Workers     int // 完成回调worker数量
	RecvQueue   int // 可投递接收请求上限
	SendQueue   int // 写队列大小
}

// Reactor 单socket异步I/O
// Send/Receive只入队不阻塞; readLoop/writeLoop执行I/O, 完成回调交给worker池.
type Reactor struct {
	conn packetConn

	recvCh       chan *Request
	writeCh      chan *Request
	completionCh chan *Request

	mu     sync.RWMutex // 保护closed, 入队与关闭互斥
	closed bool

	closeOnce      sync.Once
	completionOnce sync.Once
	closeCh        chan struct{}
	loopWg         xcommon.WaitGroup
	workerWg       xcommon.WaitGroup
}

func NewReactor(ctx context.Context, arg ReactorArgs) (*Reactor, error) {
	if arg.Conn == nil {
		return nil, xerr.Fatalf(xerr.SetupFailed, "conn is nil")
	}
	if arg.Workers <= 0 {
		arg.Workers = defaultWorkers
	}
	if arg.RecvQueue <= 0 {
		arg.RecvQueue = defaultBufCount
	}
	if arg.RecvQueue > maxPostedBuffers {
		arg.RecvQueue = maxPostedBuffers
	}
	if arg.SendQueue <= 0 {
		arg.SendQueue = writeChanLimit
	}

	var conn packetConn = &udpConn{conn: arg.Conn, connected: arg.Connected}
	if arg.RoutedReply {
		if c, err := newIPv4Conn(arg.Conn); err == nil {
			conn = c
		} else {
			xlog.Get(ctx).Warn("IPv4 control message unsupported, reply from default route.", zap.Any("err", err))
		}
	}

	r := &Reactor{
		conn:         conn,
		recvCh:       make(chan *Request, arg.RecvQueue),
		writeCh:      make(chan *Request, arg.SendQueue),
		completionCh: make(chan *Request, arg.RecvQueue+arg.SendQueue),
		closeCh:      make(chan struct{}),
	}

	r.loopWg.Add(2)
	go r.readLoop(ctx)
	go r.writeLoop(ctx)

	for i := 0; i < arg.Workers; i++ {
		r.workerWg.Add(1)
		go r.workerLoop(ctx)
	}
	return r, nil
}

// Send 异步发送, 入队失败时返回错误且不会触发回调, 请求仍归调用方
func (r *Reactor) Send(req *Request) error {
	return r.post(req, r.writeCh)
}

// Receive 投递接收buffer
func (r *Reactor) Receive(req *Request) error {
	return r.post(req, r.recvCh)
}

func (r *Reactor) post(req *Request, ch chan *Request) error {
	if !req.arm() {
		return xerr.Recoverablef(xerr.Overflow, "request busy")
	}
	if err := r.enqueue(req, ch); err != nil {
		req.cas(reqPending, reqIdle)
		return err
	}
	return nil
}

func (r *Reactor) enqueue(req *Request, ch chan *Request) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return xerr.NewRecoverable(xerr.Closed, nil)
	}
	select {
	case ch <- req:
		return nil
	default:
		return xerr.Recoverablef(xerr.Overflow, "msg overflow")
	}
}

// Cancel 取消请求, 完成回调已在执行时也安全; 释放回调恰好执行一次
func (r *Reactor) Cancel(req *Request) {
	req.cancel()
}

// Reply 同步回复接收请求的数据到其来源地址(IPv4下从原入接口发出)
func (r *Reactor) Reply(req *Request) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return xerr.NewRecoverable(xerr.Closed, nil)
	}
	if _, err := r.conn.writeTo(req.Bytes(), req.Addr, req.cm); err != nil {
		return xerr.NewRecoverable(xerr.SendFailed, err)
	}
	return nil
}

func (r *Reactor) LocalAddr() net.Addr {
	return r.conn.localAddr()
}

func (r *Reactor) readLoop(ctx context.Context) {
	defer r.loopWg.Done(ctx)

	for {
		var req *Request
		select {
		case req = <-r.recvCh:
		case <-r.closeCh:
			return
		}
		if !req.cas(reqPending, reqInflight) {
			// 已取消
			continue
		}

		n, addr, cm, err := r.conn.readFrom(req.Buf)
		req.At = xwire.Now()
		if err != nil && r.isClosed() {
			req.finish()
			return
		}
		req.N, req.Addr, req.cm, req.Err = n, addr, cm, err
		r.dispatch(req)
	}
}

func (r *Reactor) writeLoop(ctx context.Context) {
	defer r.loopWg.Done(ctx)

	for {
		var req *Request
		select {
		case req = <-r.writeCh:
		case <-r.closeCh:
			return
		}
		if !req.cas(reqPending, reqInflight) {
			continue
		}

		n, err := r.conn.writeTo(req.Buf, req.Addr, nil)
		req.At = xwire.Now()
		req.N, req.Err = n, err
		if err != nil {
			req.Err = xerr.NewRecoverable(xerr.SendFailed, err)
		}
		r.dispatch(req)
	}
}

func (r *Reactor) dispatch(req *Request) {
	if !req.cas(reqInflight, reqDone) {
		// I/O期间被取消
		req.finish()
		return
	}
	r.completionCh <- req
}

func (r *Reactor) workerLoop(ctx context.Context) {
	defer r.workerWg.Done(ctx)

	for req := range r.completionCh {
		r.complete(ctx, req)
	}
}

func (r *Reactor) complete(ctx context.Context, req *Request) {
	repost := false
	if req.onComplete != nil {
		repost = req.onComplete(ctx, req)
	}
	if !repost || !req.cas(reqDone, reqPending) {
		req.finish()
		return
	}
	// 重新投递同一buffer, 由readLoop驱动, 无递归
	if err := r.enqueue(req, r.recvCh); err != nil {
		req.finish()
	}
}

func (r *Reactor) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Shutdown 关闭socket, 后续Send/Receive返回Closed, 不等待回调
func (r *Reactor) Shutdown(ctx context.Context) {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.closeCh)
		if err := r.conn.close(); err != nil && !errors.Is(err, net.ErrClosed) {
			xlog.Get(ctx).Warn("Close socket failed.", zap.Any("err", err))
		}
	})
}

// Close 关闭并阻塞等待全部完成回调结束, 未执行的请求全部释放
// 不可在完成回调内调用
func (r *Reactor) Close(ctx context.Context) {
	r.Shutdown(ctx)
	r.loopWg.Wait()

	r.completionOnce.Do(func() {
		close(r.completionCh)
	})
	r.workerWg.Wait()

	drain(r.recvCh)
	drain(r.writeCh)
}

func drain(ch chan *Request) {
	for {
		select {
		case req := <-ch:
			req.cancel()
		default:
			return
		}
	}
}
