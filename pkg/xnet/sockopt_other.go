//go:build !linux

package xnet

import (
	"syscall"

	"github.com/pkg/errors"
)

func bindControl(ifIndex int) (func(network, address string, c syscall.RawConn) error, error) {
	if ifIndex <= 0 {
		return nil, nil
	}
	return nil, errors.Errorf("binding to interface index %v unsupported on this platform", ifIndex)
}

func listenControl(network, address string, c syscall.RawConn) error {
	return nil
}
