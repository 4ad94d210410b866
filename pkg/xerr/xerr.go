// Package xerr 区分致命错误(终止整个run)与可恢复错误(由所在组件消化).
package xerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind 错误类别
type Kind int

const (
	Recoverable Kind = iota // 组件内部处理, 不影响调度
	Fatal                   // 唯一处理方式: 终止run
)

func (k Kind) String() string {
	if k == Fatal {
		return "fatal"
	}
	return "recoverable"
}

// Code 错误码
type Code int

const (
	Unknown           Code = iota
	MalformedDatagram      // 数据包长度不足/序号越界
	SetupFailed            // socket创建/绑定/连接失败
	Unreachable            // 连通性检测失败
	SequenceOverflow       // 序号计算溢出
	TableTooLarge          // 记录表超出上限
	ReceiveFailed          // 接收完成回调返回系统错误
	SendFailed             // 单个数据包发送失败
	Overflow               // reactor队列已满
	Closed                 // socket已关闭
	InvalidConfig          // 配置错误
)

var codeNames = map[Code]string{
	Unknown:           "unknown",
	MalformedDatagram: "malformed datagram",
	SetupFailed:       "setup failed",
	Unreachable:       "unreachable",
	SequenceOverflow:  "sequence overflow",
	TableTooLarge:     "table too large",
	ReceiveFailed:     "receive failed",
	SendFailed:        "send failed",
	Overflow:          "queue overflow",
	Closed:            "closed",
	InvalidConfig:     "invalid config",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error 带类别和错误码的错误
type Error struct {
	Kind  Kind
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Code)
	}
	return fmt.Sprintf("%v: %v: %v", e.Kind, e.Code, e.cause)
}

// Cause 兼容pkg/errors.Cause
func (e *Error) Cause() error { return e.cause }

func (e *Error) Unwrap() error { return e.cause }

// Is 按错误码匹配, errors.Is(err, xerr.New(xerr.Fatal, xerr.Unreachable, nil))
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(kind Kind, code Code, cause error) *Error {
	return &Error{Kind: kind, Code: code, cause: cause}
}

// NewFatal 致命错误, cause可为nil
func NewFatal(code Code, cause error) error {
	return New(Fatal, code, cause)
}

// NewRecoverable 可恢复错误, cause可为nil
func NewRecoverable(code Code, cause error) error {
	return New(Recoverable, code, cause)
}

// Fatalf 致命错误, 附带格式化描述
func Fatalf(code Code, format string, args ...interface{}) error {
	return New(Fatal, code, errors.Errorf(format, args...))
}

// Recoverablef 可恢复错误, 附带格式化描述
func Recoverablef(code Code, format string, args ...interface{}) error {
	return New(Recoverable, code, errors.Errorf(format, args...))
}

func as(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsFatal 未分类的错误不视为致命
func IsFatal(err error) bool {
	if e, ok := as(err); ok {
		return e.Kind == Fatal
	}
	return false
}

// CodeOf 获取错误码, 非xerr错误返回Unknown
func CodeOf(err error) Code {
	if e, ok := as(err); ok {
		return e.Code
	}
	return Unknown
}

// Escalate 将错误提升为致命错误(如主路径的Unreachable)
func Escalate(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := as(err); ok {
		if e.Kind == Fatal {
			return err
		}
		return New(Fatal, e.Code, e.cause)
	}
	return New(Fatal, Unknown, err)
}
