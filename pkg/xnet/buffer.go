package xnet

import "sync"

// 固定长度数据包buffer对象池
type bufferManager struct {
	size int
	pool *sync.Pool
}

func newBufferManager(size int) *bufferManager {
	return &bufferManager{
		size: size,
		pool: &sync.Pool{
			New: func() interface{} {
				bs := make([]byte, size)
				return &bs
			},
		},
	}
}

func (mgr *bufferManager) get() []byte {
	return *mgr.pool.Get().(*[]byte)
}

// 仅回收本对象池长度的buffer
func (mgr *bufferManager) put(b []byte) {
	if cap(b) < mgr.size {
		return
	}
	b = b[:mgr.size]
	mgr.pool.Put(&b)
}
