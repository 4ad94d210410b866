package xstats

import (
	"dstaping/pkg/xerr"
	"sync/atomic"
)

// MaxTableSize 记录表容量上限, 每条记录48字节
const MaxTableSize int64 = 1 << 24

// Table 按序号预分配的记录表, 运行中不扩容
// 每个字段只由一个完成回调写入一次, 不加锁; 读取必须在会话停止之后
type Table struct {
	records []ProbeRecord
}

func NewTable(n int64) (*Table, error) {
	if n < 0 {
		return nil, xerr.Fatalf(xerr.InvalidConfig, "table size %v", n)
	}
	if n > MaxTableSize {
		return nil, xerr.Fatalf(xerr.TableTooLarge, "table size %v exceeds %v", n, MaxTableSize)
	}
	records := make([]ProbeRecord, n)
	for i := range records {
		records[i] = NewProbeRecord()
	}
	return &Table{records: records}, nil
}

func (t *Table) Len() int64 {
	return int64(len(t.records))
}

func (t *Table) valid(seq int64) bool {
	return seq >= 0 && seq < int64(len(t.records))
}

// SetSend 记录发送时间, 字段已写过或序号越界返回false
func (t *Table) SetSend(p Path, seq int64, sendTs int64) bool {
	if !t.valid(seq) || sendTs < 0 {
		return false
	}
	return atomic.CompareAndSwapInt64(t.records[seq].sendField(p), Unset, sendTs)
}

// SetReceive 记录回显与接收时间, 重复包不覆盖
func (t *Table) SetReceive(p Path, seq int64, echoTs int64, recvTs int64) bool {
	if !t.valid(seq) || recvTs < 0 {
		return false
	}
	echo, recv := t.records[seq].echoFields(p)
	if !atomic.CompareAndSwapInt64(recv, Unset, recvTs) {
		return false
	}
	if echoTs >= 0 {
		atomic.StoreInt64(echo, echoTs)
	}
	return true
}

func (t *Table) Record(seq int64) (ProbeRecord, bool) {
	if !t.valid(seq) {
		return ProbeRecord{}, false
	}
	return t.records[seq].load(), true
}

// Snapshot 拷贝全部记录
func (t *Table) Snapshot() []ProbeRecord {
	out := make([]ProbeRecord, len(t.records))
	for i := range t.records {
		out[i] = t.records[i].load()
	}
	return out
}
