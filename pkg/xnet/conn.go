package xnet

import (
	"net"

	"golang.org/x/net/ipv4"
)

// 底层数据包读写
type packetConn interface {
	readFrom(b []byte) (int, net.Addr, *ipv4.ControlMessage, error)
	writeTo(b []byte, addr net.Addr, cm *ipv4.ControlMessage) (int, error)
	close() error
	localAddr() net.Addr
}

// 普通UDP socket, connected为true时忽略目标地址
type udpConn struct {
	conn      *net.UDPConn
	connected bool
}

func (c *udpConn) readFrom(b []byte) (int, net.Addr, *ipv4.ControlMessage, error) {
	n, addr, err := c.conn.ReadFromUDP(b)
	if addr == nil {
		return n, nil, nil, err
	}
	return n, addr, nil, err
}

func (c *udpConn) writeTo(b []byte, addr net.Addr, _ *ipv4.ControlMessage) (int, error) {
	if c.connected || addr == nil {
		return c.conn.Write(b)
	}
	return c.conn.WriteTo(b, addr)
}

func (c *udpConn) close() error {
	return c.conn.Close()
}

func (c *udpConn) localAddr() net.Addr {
	return c.conn.LocalAddr()
}

// IPv4 socket, 读取目的地址/入接口, 回复时从同一地址/接口发出
type ipv4Conn struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
}

func newIPv4Conn(conn *net.UDPConn) (*ipv4Conn, error) {
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
		return nil, err
	}
	return &ipv4Conn{conn: conn, pc: pc}, nil
}

func (c *ipv4Conn) readFrom(b []byte) (int, net.Addr, *ipv4.ControlMessage, error) {
	n, cm, addr, err := c.pc.ReadFrom(b)
	return n, addr, cm, err
}

func (c *ipv4Conn) writeTo(b []byte, addr net.Addr, cm *ipv4.ControlMessage) (int, error) {
	return c.pc.WriteTo(b, replyControl(cm), addr)
}

func (c *ipv4Conn) close() error {
	return c.pc.Close()
}

func (c *ipv4Conn) localAddr() net.Addr {
	return c.conn.LocalAddr()
}

// 回复控制信息: 源地址=收到时的目的地址
func replyControl(cm *ipv4.ControlMessage) *ipv4.ControlMessage {
	if cm == nil || cm.Dst == nil {
		return nil
	}
	if cm.Dst.IsMulticast() || cm.Dst.Equal(net.IPv4bcast) {
		return nil
	}
	return &ipv4.ControlMessage{Src: cm.Dst, IfIndex: cm.IfIndex}
}
