package xnet

import (
	"net"
	"sync/atomic"

	"golang.org/x/net/ipv4"
)

// 请求状态
// idle -> pending -> inflight -> done -> (pending: 重新投递 | released)
// 任意未完成状态下Cancel: pending直接released, inflight/done标记cancelling, 由持有方释放
const (
	reqIdle int32 = iota
	reqPending
	reqInflight
	reqDone
	reqCancelling
	reqReleased
)

// Request 一次异步发送/接收
type Request struct {
	Buf  []byte   // 完整buffer
	N    int      // 传输字节数
	Addr net.Addr // 接收: 来源地址; 发送: 目标地址(已连接socket为nil)
	Err  error    // 完成结果
	At   int64    // I/O完成时刻(xwire.Now)

	Seq    int64 // 调用方数据
	SendTs int64 // 调用方数据

	cm         *ipv4.ControlMessage
	state      int32
	onComplete Completion
	release    func(req *Request)
}

func NewRequest(buf []byte, onComplete Completion) *Request {
	return &Request{Buf: buf, onComplete: onComplete}
}

// WithRelease 设置释放回调, 保证恰好执行一次
func (req *Request) WithRelease(fn func(req *Request)) *Request {
	req.release = fn
	return req
}

// Bytes 已传输数据
func (req *Request) Bytes() []byte {
	return req.Buf[:req.N]
}

func (req *Request) cas(from, to int32) bool {
	return atomic.CompareAndSwapInt32(&req.state, from, to)
}

func (req *Request) load() int32 {
	return atomic.LoadInt32(&req.state)
}

// 投递: idle/done -> pending
func (req *Request) arm() bool {
	if req.cas(reqIdle, reqPending) {
		return true
	}
	return req.cas(reqDone, reqPending)
}

// 释放, 至多执行一次
func (req *Request) finish() {
	if atomic.SwapInt32(&req.state, reqReleased) == reqReleased {
		return
	}
	if req.release != nil {
		req.release(req)
	}
}

// 取消, 返回是否由本次调用完成释放
func (req *Request) cancel() bool {
	for {
		s := req.load()
		switch s {
		case reqIdle, reqPending:
			if req.cas(s, reqReleased) {
				if req.release != nil {
					req.release(req)
				}
				return true
			}
		case reqInflight, reqDone:
			if req.cas(s, reqCancelling) {
				return false
			}
		default:
			return false
		}
	}
}

// Released 是否已释放
func (req *Request) Released() bool {
	return req.load() == reqReleased
}
