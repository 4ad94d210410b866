package xnet

// AdapterStatus 路径状态
type AdapterStatus int32

const (
	Disabled AdapterStatus = iota
	Connecting
	Ready
)

func (s AdapterStatus) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}
