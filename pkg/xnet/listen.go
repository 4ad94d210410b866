package xnet

import (
	"context"
	"dstaping/pkg/xerr"
	"net"

	"github.com/pkg/errors"
)

// ListenUDP 创建未连接的监听socket; 地址为IPv4或未指定主机时使用udp4, 返回是否可使用IPv4控制信息
func ListenUDP(ctx context.Context, addr string) (*net.UDPConn, bool, error) {
	network := udpNetwork
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, false, xerr.NewFatal(xerr.SetupFailed, errors.Wrapf(err, "listen addr %v", addr))
	}
	ip := net.ParseIP(host)
	if host == "" || (ip != nil && ip.To4() != nil) {
		network = udp4Network
	}

	lc := net.ListenConfig{Control: listenControl}
	pc, err := lc.ListenPacket(ctx, network, addr)
	if err != nil {
		return nil, false, xerr.NewFatal(xerr.SetupFailed, errors.Wrapf(err, "listen %v %v", network, addr))
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, false, xerr.Fatalf(xerr.SetupFailed, "listen %v: not udp", addr)
	}
	return conn, network == udp4Network, nil
}

// DialUDP 创建连接到目标的socket, ifIndex>0时绑定出接口
func DialUDP(ctx context.Context, target string, ifIndex int) (*net.UDPConn, error) {
	control, err := bindControl(ifIndex)
	if err != nil {
		return nil, xerr.NewFatal(xerr.SetupFailed, err)
	}
	d := net.Dialer{Control: control}
	c, err := d.DialContext(ctx, udpNetwork, target)
	if err != nil {
		return nil, xerr.NewFatal(xerr.SetupFailed, errors.Wrapf(err, "dial %v", target))
	}
	conn, ok := c.(*net.UDPConn)
	if !ok {
		_ = c.Close()
		return nil, xerr.Fatalf(xerr.SetupFailed, "dial %v: not udp", target)
	}
	return conn, nil
}
