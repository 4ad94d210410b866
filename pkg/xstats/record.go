package xstats

import "sync/atomic"

// Unset 未观测到的时间戳
const Unset int64 = -1

type Path int

const (
	Primary Path = iota
	Secondary
)

func (p Path) String() string {
	switch p {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	}
	return "unknown"
}

// ProbeRecord 单个序号的观测结果, 时间戳单位为纳秒
type ProbeRecord struct {
	PrimarySend      int64
	PrimaryEcho      int64
	PrimaryReceive   int64
	SecondarySend    int64
	SecondaryEcho    int64
	SecondaryReceive int64
}

func NewProbeRecord() ProbeRecord {
	return ProbeRecord{
		PrimarySend:      Unset,
		PrimaryEcho:      Unset,
		PrimaryReceive:   Unset,
		SecondarySend:    Unset,
		SecondaryEcho:    Unset,
		SecondaryReceive: Unset,
	}
}

// Latency 路径往返时延, ok=false表示该路径没有完整观测
func (r ProbeRecord) Latency(p Path) (int64, bool) {
	send, recv := r.PrimarySend, r.PrimaryReceive
	if p == Secondary {
		send, recv = r.SecondarySend, r.SecondaryReceive
	}
	if send < 0 || recv < 0 {
		return 0, false
	}
	return recv - send, true
}

// Sent 该路径是否发出
func (r ProbeRecord) Sent(p Path) bool {
	if p == Secondary {
		return r.SecondarySend >= 0
	}
	return r.PrimarySend >= 0
}

func (r *ProbeRecord) sendField(p Path) *int64 {
	if p == Secondary {
		return &r.SecondarySend
	}
	return &r.PrimarySend
}

func (r *ProbeRecord) echoFields(p Path) (*int64, *int64) {
	if p == Secondary {
		return &r.SecondaryEcho, &r.SecondaryReceive
	}
	return &r.PrimaryEcho, &r.PrimaryReceive
}

func (r *ProbeRecord) load() ProbeRecord {
	return ProbeRecord{
		PrimarySend:      atomic.LoadInt64(&r.PrimarySend),
		PrimaryEcho:      atomic.LoadInt64(&r.PrimaryEcho),
		PrimaryReceive:   atomic.LoadInt64(&r.PrimaryReceive),
		SecondarySend:    atomic.LoadInt64(&r.SecondarySend),
		SecondaryEcho:    atomic.LoadInt64(&r.SecondaryEcho),
		SecondaryReceive: atomic.LoadInt64(&r.SecondaryReceive),
	}
}
