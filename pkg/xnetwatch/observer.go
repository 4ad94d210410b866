package xnetwatch

import "context"

// Adapter 网络接口
type Adapter struct {
	ID    string // 接口标识, 当前实现为接口名
	Name  string
	Index int
}

func (a Adapter) Valid() bool {
	return a.ID != ""
}

// OnChanged 网络状态变化通知, 在观察者协程执行, 不可阻塞
type OnChanged func(ctx context.Context)

// Observer 网络状态来源
type Observer interface {
	// Subscribe 订阅变化通知, 返回取消订阅函数
	Subscribe(fn OnChanged) (unsubscribe func())
	// PreferredPrimary 当前首选主接口
	PreferredPrimary(ctx context.Context) (Adapter, error)
	// SecondaryFor 主接口对应的副接口, 不存在时ok=false
	SecondaryFor(ctx context.Context, primary Adapter) (Adapter, bool, error)
	// IsConnected 接口是否可用
	IsConnected(ctx context.Context, id string) bool
}

// 订阅者列表, 供各实现复用
type subscribers struct {
	next int
	fns  map[int]OnChanged
}

func (s *subscribers) add(fn OnChanged) int {
	if s.fns == nil {
		s.fns = make(map[int]OnChanged)
	}
	s.next++
	s.fns[s.next] = fn
	return s.next
}

func (s *subscribers) remove(id int) {
	delete(s.fns, id)
}

func (s *subscribers) list() []OnChanged {
	fns := make([]OnChanged, 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	return fns
}
