package xnet_test

import (
	"context"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xnet"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func newLoopbackPair(t *testing.T) (*net.UDPConn, *net.UDPConn) {
	a, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b, err := net.DialUDP("udp4", nil, a.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return a, b
}

func TestReactorSendReceive(t *testing.T) {
	ctx := context.Background()
	srv, cli := newLoopbackPair(t)
	defer cli.Close()

	r, err := xnet.NewReactor(ctx, xnet.ReactorArgs{Conn: srv, Workers: 2, RecvQueue: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close(ctx)

	got := make(chan string, 8)
	var released int32
	for i := 0; i < 4; i++ {
		req := xnet.NewRequest(make([]byte, 64), func(ctx context.Context, req *xnet.Request) bool {
			if req.Err == nil {
				got <- string(req.Bytes())
			}
			return true
		}).WithRelease(func(req *xnet.Request) {
			atomic.AddInt32(&released, 1)
		})
		if err := r.Receive(req); err != nil {
			t.Fatal(err)
		}
	}

	// 投递buffer数量小于报文数量, 依赖重新投递
	for _, msg := range []string{"a", "b", "c", "d", "e", "f"} {
		if _, err := cli.Write([]byte(msg)); err != nil {
			t.Fatal(err)
		}
	}
	seen := map[string]bool{}
	for len(seen) < 6 {
		select {
		case m := <-got:
			seen[m] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("received %v of 6", len(seen))
		}
	}

	r.Close(ctx)
	if n := atomic.LoadInt32(&released); n != 4 {
		t.Fatalf("released %v buffers, want 4", n)
	}
}

func TestReactorSendCompletion(t *testing.T) {
	ctx := context.Background()
	srv, cli := newLoopbackPair(t)
	defer srv.Close()

	r, err := xnet.NewReactor(ctx, xnet.ReactorArgs{Conn: cli, Connected: true})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan *xnet.Request, 1)
	var released int32
	req := xnet.NewRequest([]byte("ping"), func(ctx context.Context, req *xnet.Request) bool {
		done <- req
		return true // 发送请求忽略
	}).WithRelease(func(*xnet.Request) { atomic.AddInt32(&released, 1) })
	if err := r.Send(req); err != nil {
		t.Fatal(err)
	}

	select {
	case req := <-done:
		if req.Err != nil || req.N != 4 {
			t.Fatalf("send result n=%v err=%v", req.N, req.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send completion missing")
	}

	buf := make([]byte, 16)
	_ = srv.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := srv.ReadFromUDP(buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("peer read %q %v", buf[:n], err)
	}

	r.Close(ctx)
	if atomic.LoadInt32(&released) != 1 {
		t.Fatalf("released = %v", released)
	}
	if err := r.Send(xnet.NewRequest([]byte("x"), nil)); xerr.CodeOf(err) != xerr.Closed {
		t.Fatalf("send after close err = %v", err)
	}
}

func TestReactorCancelReleasesOnce(t *testing.T) {
	ctx := context.Background()
	srv, cli := newLoopbackPair(t)
	defer cli.Close()

	r, err := xnet.NewReactor(ctx, xnet.ReactorArgs{Conn: srv, RecvQueue: 2})
	if err != nil {
		t.Fatal(err)
	}

	var released, completed int32
	reqs := make([]*xnet.Request, 2)
	for i := range reqs {
		reqs[i] = xnet.NewRequest(make([]byte, 16), func(ctx context.Context, req *xnet.Request) bool {
			atomic.AddInt32(&completed, 1)
			return true
		}).WithRelease(func(*xnet.Request) { atomic.AddInt32(&released, 1) })
		if err := r.Receive(reqs[i]); err != nil {
			t.Fatal(err)
		}
	}

	// 重复取消只释放一次
	for i := 0; i < 3; i++ {
		r.Cancel(reqs[0])
		r.Cancel(reqs[1])
	}
	r.Close(ctx)
	r.Cancel(reqs[0])

	if atomic.LoadInt32(&released) != 2 {
		t.Fatalf("released = %v, want 2", released)
	}
	if atomic.LoadInt32(&completed) != 0 {
		t.Fatalf("completed = %v", completed)
	}
	for _, req := range reqs {
		if !req.Released() {
			t.Fatal("request not released")
		}
	}
}

func TestReactorCloseWaitsForCompletion(t *testing.T) {
	ctx := context.Background()
	srv, cli := newLoopbackPair(t)
	defer cli.Close()

	r, err := xnet.NewReactor(ctx, xnet.ReactorArgs{Conn: srv, RecvQueue: 1})
	if err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	var finished int32
	req := xnet.NewRequest(make([]byte, 16), func(ctx context.Context, req *xnet.Request) bool {
		close(entered)
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
		return true
	})
	if err := r.Receive(req); err != nil {
		t.Fatal(err)
	}
	if _, err := cli.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	<-entered
	r.Close(ctx)
	if atomic.LoadInt32(&finished) != 1 {
		t.Fatal("close returned before completion finished")
	}
	if !req.Released() {
		t.Fatal("reposted request not released on close")
	}
}

func TestReactorBusyRequest(t *testing.T) {
	ctx := context.Background()
	srv, cli := newLoopbackPair(t)
	defer cli.Close()

	r, err := xnet.NewReactor(ctx, xnet.ReactorArgs{Conn: srv, RecvQueue: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close(ctx)

	req := xnet.NewRequest(make([]byte, 16), nil)
	if err := r.Receive(req); err != nil {
		t.Fatal(err)
	}
	if err := r.Receive(req); xerr.CodeOf(err) != xerr.Overflow {
		t.Fatalf("double post err = %v", err)
	}
}
