package xecho

import (
	"context"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xlog"
	"dstaping/pkg/xnet"
	"dstaping/pkg/xwire"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const defaultBufferCount = 64

type ServerArgs struct {
	Addr            string // 监听地址, 如":5000"
	BufferCount     int    // 预投递接收buffer数量
	Workers         int
	MaxDatagramSize int // 接收buffer长度, 0为UDP最大负载
}

// Counters 回显服务计数
type Counters struct {
	Received    int64
	Echoed      int64
	Corrupt     int64
	ReplyFailed int64
	RecvErrors  int64
	Truncated   int64 // 填满接收buffer, 可能被截断
}

// Server 无状态回显: 只改写EchoTs, 原样发回来源地址
type Server struct {
	reactor *xnet.Reactor
	reqs    []*xnet.Request

	bufSize int

	startOnce sync.Once
	closeOnce sync.Once
	closed    int32

	// 接收出现致命错误或Close后关闭
	doneOnce sync.Once
	doneCh   chan struct{}
	fatalErr atomic.Value // error

	received    int64
	echoed      int64
	corrupt     int64
	replyFailed int64
	recvErrors  int64
	truncated   int64
}

func NewServer(ctx context.Context, arg ServerArgs) (*Server, error) {
	if arg.BufferCount <= 0 {
		arg.BufferCount = defaultBufferCount
	}
	if arg.MaxDatagramSize <= 0 || arg.MaxDatagramSize > xwire.MaxDatagramSize {
		arg.MaxDatagramSize = xwire.MaxDatagramSize
	}
	if arg.MaxDatagramSize < xwire.HeaderSize {
		return nil, xerr.Fatalf(xerr.InvalidConfig, "max datagram size %v smaller than header %v", arg.MaxDatagramSize, xwire.HeaderSize)
	}
	bufSize := arg.MaxDatagramSize

	conn, routed, err := xnet.ListenUDP(ctx, arg.Addr)
	if err != nil {
		return nil, err
	}
	reactor, err := xnet.NewReactor(ctx, xnet.ReactorArgs{
		Conn:        conn,
		RoutedReply: routed,
		Workers:     arg.Workers,
		RecvQueue:   arg.BufferCount,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	svr := &Server{reactor: reactor, bufSize: bufSize, doneCh: make(chan struct{})}
	svr.reqs = make([]*xnet.Request, 0, arg.BufferCount)
	for i := 0; i < arg.BufferCount; i++ {
		svr.reqs = append(svr.reqs, xnet.NewRequest(make([]byte, bufSize), svr.onReceive))
	}
	xlog.Get(ctx).Info("Echo server listen.", zap.Any("addr", reactor.LocalAddr()), zap.Bool("routed", routed),
		zap.Int("buffers", arg.BufferCount), zap.Int("buffer_size", bufSize))
	return svr, nil
}

// Start 投递全部接收buffer
func (svr *Server) Start(ctx context.Context) error {
	var err error
	svr.startOnce.Do(func() {
		for _, req := range svr.reqs {
			if err = svr.reactor.Receive(req); err != nil {
				return
			}
		}
	})
	return err
}

func (svr *Server) Addr() net.Addr {
	return svr.reactor.LocalAddr()
}

func (svr *Server) onReceive(ctx context.Context, req *xnet.Request) bool {
	if atomic.LoadInt32(&svr.closed) == 1 || svr.Err() != nil {
		return false
	}
	if req.Err != nil {
		atomic.AddInt64(&svr.recvErrors, 1)
		if xnet.RecoverableReceiveError(req.Err) {
			xlog.Get(ctx).Debug("Echo receive refused.", zap.Any("err", req.Err))
			return true
		}
		// 不再投递, 由持有方关闭
		svr.fail(ctx, xerr.NewFatal(xerr.ReceiveFailed, req.Err))
		return false
	}

	msg := req.Bytes()
	if req.N >= svr.bufSize && svr.bufSize < xwire.MaxDatagramSize {
		atomic.AddInt64(&svr.truncated, 1)
		xlog.Get(ctx).Warn("Datagram fills receive buffer, may be truncated.", zap.Any("from", req.Addr),
			zap.Int("buffer_size", svr.bufSize))
	}
	if err := xwire.StampEcho(msg, xwire.Now()); err != nil {
		atomic.AddInt64(&svr.corrupt, 1)
		xlog.Get(ctx).Debug("Corrupt datagram.", zap.Any("from", req.Addr), zap.Int("bytes", req.N))
		return true
	}
	atomic.AddInt64(&svr.received, 1)

	if err := svr.reactor.Reply(req); err != nil {
		if xerr.CodeOf(err) != xerr.Closed {
			atomic.AddInt64(&svr.replyFailed, 1)
			xlog.Get(ctx).Warn("Echo reply failed.", zap.Any("to", req.Addr), zap.Any("err", err))
		}
		return true
	}
	atomic.AddInt64(&svr.echoed, 1)
	return true
}

func (svr *Server) Counters() Counters {
	return Counters{
		Received:    atomic.LoadInt64(&svr.received),
		Echoed:      atomic.LoadInt64(&svr.echoed),
		Corrupt:     atomic.LoadInt64(&svr.corrupt),
		ReplyFailed: atomic.LoadInt64(&svr.replyFailed),
		RecvErrors:  atomic.LoadInt64(&svr.recvErrors),
		Truncated:   atomic.LoadInt64(&svr.truncated),
	}
}

func (svr *Server) fail(ctx context.Context, err error) {
	svr.doneOnce.Do(func() {
		svr.fatalErr.Store(err)
		xlog.Get(ctx).Error("Echo server failed.", zap.Any("err", err))
		close(svr.doneCh)
	})
}

// Done 接收出现致命错误或Close后关闭
func (svr *Server) Done() <-chan struct{} {
	return svr.doneCh
}

// Err 致命错误, 正常运行或正常关闭时为nil
func (svr *Server) Err() error {
	if v := svr.fatalErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Close 关闭socket并等待回调结束
func (svr *Server) Close(ctx context.Context) {
	svr.closeOnce.Do(func() {
		atomic.StoreInt32(&svr.closed, 1)
		svr.reactor.Close(ctx)
		svr.doneOnce.Do(func() { close(svr.doneCh) })
		xlog.Get(ctx).Info("Echo server closed.", zap.Any("counters", svr.Counters()))
	})
}
