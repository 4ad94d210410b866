package xnetwatch

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Manual 手动控制的观察者, 接口状态由调用方设置
type Manual struct {
	mu        sync.Mutex
	subs      subscribers
	primary   Adapter
	secondary map[string]Adapter // primary id -> secondary
	connected map[string]bool
}

func NewManual(primary Adapter) *Manual {
	return &Manual{
		primary:   primary,
		secondary: make(map[string]Adapter),
		connected: map[string]bool{primary.ID: true},
	}
}

func (m *Manual) Subscribe(fn OnChanged) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.subs.add(fn)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs.remove(id)
	}
}

func (m *Manual) PreferredPrimary(ctx context.Context) (Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.primary.Valid() {
		return Adapter{}, errors.New("no primary adapter")
	}
	return m.primary, nil
}

func (m *Manual) SecondaryFor(ctx context.Context, primary Adapter) (Adapter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.secondary[primary.ID]
	return a, ok, nil
}

func (m *Manual) IsConnected(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected[id]
}

// SetPrimary 修改首选主接口
func (m *Manual) SetPrimary(a Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primary = a
}

// SetSecondary 设置主接口对应的副接口, secondary无效时删除
func (m *Manual) SetSecondary(primaryID string, secondary Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !secondary.Valid() {
		delete(m.secondary, primaryID)
		return
	}
	m.secondary[primaryID] = secondary
}

func (m *Manual) SetConnected(id string, connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected[id] = connected
}

// Notify 同步通知全部订阅者
func (m *Manual) Notify(ctx context.Context) {
	m.mu.Lock()
	fns := m.subs.list()
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// Subscribers 当前订阅数量
func (m *Manual) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs.fns)
}
