package xecho_test

import (
	"context"
	"dstaping/pkg/xecho"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xnet"
	"dstaping/pkg/xwire"
	"net"
	"os"
	"syscall"
	"testing"
	"time"
)

func newServer(t *testing.T) (*xecho.Server, *net.UDPConn) {
	ctx := context.Background()
	svr, err := xecho.NewServer(ctx, xecho.ServerArgs{Addr: "127.0.0.1:0", BufferCount: 4})
	if err != nil {
		t.Fatal(err)
	}
	if err := svr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cli, err := net.DialUDP("udp4", nil, svr.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	return svr, cli
}

func roundTrip(t *testing.T, cli *net.UDPConn, msg []byte) []byte {
	if _, err := cli.Write(msg); err != nil {
		t.Fatal(err)
	}
	_ = cli.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, xwire.MaxDatagramSize)
	n, err := cli.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	return buf[:n]
}

func TestEchoIdempotence(t *testing.T) {
	ctx := context.Background()
	svr, cli := newServer(t)
	defer svr.Close(ctx)
	defer cli.Close()

	msg := xwire.EncodeHeader(42, 1234)
	first := roundTrip(t, cli, msg)
	time.Sleep(time.Millisecond)
	second := roundTrip(t, cli, msg)

	if len(first) != len(msg) || len(second) != len(msg) {
		t.Fatalf("echo length %v %v", len(first), len(second))
	}
	h1, err := xwire.Decode(first)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := xwire.Decode(second)
	if err != nil {
		t.Fatal(err)
	}
	if h1.Seq != 42 || h2.Seq != 42 || h1.SendTs != 1234 || h2.SendTs != 1234 {
		t.Fatalf("header mutated %+v %+v", h1, h2)
	}
	if h1.EchoTs == xwire.Unset || h2.EchoTs <= h1.EchoTs {
		t.Fatalf("echo timestamps %v %v", h1.EchoTs, h2.EchoTs)
	}
	// 包头之后的数据原样返回
	if string(first[xwire.HeaderSize:]) != string(msg[xwire.HeaderSize:]) {
		t.Fatal("payload mutated")
	}
}

func TestEchoProbe(t *testing.T) {
	ctx := context.Background()
	svr, cli := newServer(t)
	defer svr.Close(ctx)
	defer cli.Close()

	h, err := xwire.Decode(roundTrip(t, cli, xwire.EncodeHeader(xwire.ProbeSeq, 7)))
	if err != nil {
		t.Fatal(err)
	}
	if h.Seq != xwire.ProbeSeq || h.SendTs != 7 {
		t.Fatalf("probe echo %+v", h)
	}
}

func TestEchoCorrupt(t *testing.T) {
	ctx := context.Background()
	svr, cli := newServer(t)
	defer cli.Close()

	// 缓冲区只有4个, 连续发送的短包不能耗尽接收
	for i := 0; i < 10; i++ {
		if _, err := cli.Write([]byte{1, 2, 3}); err != nil {
			t.Fatal(err)
		}
	}
	h, err := xwire.Decode(roundTrip(t, cli, xwire.EncodeHeader(1, 1)))
	if err != nil || h.Seq != 1 {
		t.Fatalf("echo after corrupt %+v %v", h, err)
	}

	svr.Close(ctx)
	c := svr.Counters()
	if c.Corrupt != 10 || c.Received != 1 || c.Echoed != 1 {
		t.Fatalf("counters %+v", c)
	}
	// 重复关闭
	svr.Close(ctx)
}

func readError(errno syscall.Errno) error {
	return &net.OpError{Op: "read", Net: "udp", Err: os.NewSyscallError("recvfrom", errno)}
}

func TestEchoReceiveError(t *testing.T) {
	ctx := context.Background()
	svr, cli := newServer(t)
	defer svr.Close(ctx)
	defer cli.Close()

	// ICMP端口不可达可恢复, 继续投递
	refused := xnet.NewRequest(make([]byte, 64), nil)
	refused.Err = readError(syscall.ECONNREFUSED)
	if !svr.HandleReceive(ctx, refused) {
		t.Fatal("refused receive not re-posted")
	}
	select {
	case <-svr.Done():
		t.Fatal("server failed on refused receive")
	default:
	}
	if h, err := xwire.Decode(roundTrip(t, cli, xwire.EncodeHeader(3, 3))); err != nil || h.Seq != 3 {
		t.Fatalf("echo after refused %+v %v", h, err)
	}

	// 其余系统错误为致命错误, buffer不再投递
	broken := xnet.NewRequest(make([]byte, 64), nil)
	broken.Err = readError(syscall.EIO)
	if svr.HandleReceive(ctx, broken) {
		t.Fatal("buffer re-posted after receive failure")
	}
	select {
	case <-svr.Done():
	case <-time.After(time.Second):
		t.Fatal("server not failed")
	}
	if err := svr.Err(); !xerr.IsFatal(err) || xerr.CodeOf(err) != xerr.ReceiveFailed {
		t.Fatalf("server err %v", err)
	}
	// 失败后的完成一律不再投递
	if svr.HandleReceive(ctx, xnet.NewRequest(make([]byte, 64), nil)) {
		t.Fatal("receive re-posted after failure")
	}
	if c := svr.Counters(); c.RecvErrors != 2 {
		t.Fatalf("counters %+v", c)
	}
}

func TestEchoCloseDone(t *testing.T) {
	ctx := context.Background()
	svr, cli := newServer(t)
	defer cli.Close()

	svr.Close(ctx)
	select {
	case <-svr.Done():
	default:
		t.Fatal("done not closed")
	}
	if svr.Err() != nil {
		t.Fatalf("err after close %v", svr.Err())
	}
}

func TestEchoLargeDatagram(t *testing.T) {
	ctx := context.Background()
	svr, cli := newServer(t)
	defer svr.Close(ctx)
	defer cli.Close()

	// 默认buffer按UDP最大负载分配, 大于客户端配置的数据包不截断
	msg := make([]byte, 8192)
	if _, err := xwire.Encode(msg, 5, 5); err != nil {
		t.Fatal(err)
	}
	if echo := roundTrip(t, cli, msg); len(echo) != len(msg) {
		t.Fatalf("echo length %v, want %v", len(echo), len(msg))
	}
	if c := svr.Counters(); c.Truncated != 0 {
		t.Fatalf("counters %+v", c)
	}
}

func TestEchoTruncated(t *testing.T) {
	ctx := context.Background()
	svr, err := xecho.NewServer(ctx, xecho.ServerArgs{Addr: "127.0.0.1:0", BufferCount: 2, MaxDatagramSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	defer svr.Close(ctx)
	if err := svr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cli, err := net.DialUDP("udp4", nil, svr.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	msg := make([]byte, 128)
	if _, err := xwire.Encode(msg, 9, 9); err != nil {
		t.Fatal(err)
	}
	echo := roundTrip(t, cli, msg)
	h, err := xwire.Decode(echo)
	if err != nil || h.Seq != 9 || len(echo) != 64 {
		t.Fatalf("echo %+v len %v err %v", h, len(echo), err)
	}
	// 关闭后回调全部结束, 计数稳定
	svr.Close(ctx)
	if c := svr.Counters(); c.Truncated != 1 || c.Echoed != 1 {
		t.Fatalf("counters %+v", c)
	}
}

func TestNewServerInvalid(t *testing.T) {
	_, err := xecho.NewServer(context.Background(), xecho.ServerArgs{Addr: "127.0.0.1:0", MaxDatagramSize: 8})
	if xerr.CodeOf(err) != xerr.InvalidConfig {
		t.Fatalf("err = %v", err)
	}
}
