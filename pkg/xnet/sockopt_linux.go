//go:build linux

package xnet

import (
	"net"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// 出接口绑定: SO_BINDTODEVICE, index为0时使用系统默认路由
func bindControl(ifIndex int) (func(network, address string, c syscall.RawConn) error, error) {
	if ifIndex <= 0 {
		return nil, nil
	}
	ifi, err := net.InterfaceByIndex(ifIndex)
	if err != nil {
		return nil, errors.Wrapf(err, "interface index %v", ifIndex)
	}
	name := ifi.Name
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, name)
		})
		if err != nil {
			return err
		}
		return errors.Wrapf(sockErr, "bind to device %v", name)
	}, nil
}

// 服务端监听socket选项
func listenControl(network, address string, c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
}
