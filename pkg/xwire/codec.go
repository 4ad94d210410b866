package xwire

import (
	"bytes"
	"encoding/binary"

	"dstaping/pkg/xerr"
)

const (
	// ProbeSeq 连通性探测包序号, 回显但不记录
	ProbeSeq int64 = -1
	// Unset 未观测的时间戳
	Unset int64 = -1

	// DefaultDatagramSize 默认数据包总长度(header + filler)
	DefaultDatagramSize = 1024
	// MaxDatagramSize IPv4下UDP最大负载
	MaxDatagramSize = 65507

	echoOffset = 16
)

var byteOrder = binary.LittleEndian

// HeaderSize 固定包头长度
var HeaderSize = binary.Size(Header{})

// 数据包头, 位于buffer偏移0
type Header struct {
	Seq    int64 // 序号, 每次发送递增, -1为探测包
	SendTs int64 // 发送端单调时钟
	EchoTs int64 // 服务端回显时写入
}

// Encode 写入header并填充剩余部分, buf长度即数据包长度
func Encode(buf []byte, seq int64, sendTs int64) (int, error) {
	if len(buf) < HeaderSize {
		return 0, xerr.Recoverablef(xerr.MalformedDatagram, "buffer %v shorter than header %v", len(buf), HeaderSize)
	}
	byteOrder.PutUint64(buf[0:8], uint64(seq))
	byteOrder.PutUint64(buf[8:16], uint64(sendTs))
	unset := Unset
	byteOrder.PutUint64(buf[echoOffset:echoOffset+8], uint64(unset))
	fill(buf[HeaderSize:], seq)
	return len(buf), nil
}

// EncodeHeader 生成默认长度的数据包
func EncodeHeader(seq int64, sendTs int64) []byte {
	buf := make([]byte, DefaultDatagramSize)
	_, _ = Encode(buf, seq, sendTs)
	return buf
}

// Decode 解析包头, 长度不足时返回MalformedDatagram
func Decode(msg []byte) (Header, error) {
	var h Header
	if len(msg) < HeaderSize {
		return h, xerr.Recoverablef(xerr.MalformedDatagram, "msg %v not enough %v", len(msg), HeaderSize)
	}
	if err := binary.Read(bytes.NewReader(msg[0:HeaderSize]), byteOrder, &h); err != nil {
		return h, xerr.NewRecoverable(xerr.MalformedDatagram, err)
	}
	return h, nil
}

// StampEcho 仅原地改写EchoTs, 不读取也不改写Seq/SendTs
func StampEcho(msg []byte, echoTs int64) error {
	if len(msg) < HeaderSize {
		return xerr.Recoverablef(xerr.MalformedDatagram, "msg %v not enough %v", len(msg), HeaderSize)
	}
	byteOrder.PutUint64(msg[echoOffset:echoOffset+8], uint64(echoTs))
	return nil
}

// 填充内容无意义, 用序号低位避免全零
func fill(b []byte, seq int64) {
	v := byte(seq)
	for i := range b {
		b[i] = v
	}
}
