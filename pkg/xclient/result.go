package xclient

import (
	"dstaping/pkg/xnet"
	"dstaping/pkg/xstats"
	"sync/atomic"
)

// Result 运行结果, 在全部回调结束后生成
type Result struct {
	Session   Session
	Records   []xstats.ProbeRecord
	Report    xstats.Report
	Scheduled int64 // 已调度的序号数
	Primary   xnet.PathCounters
	Secondary xnet.PathCounters
	Overruns  int64 // 调度回调超时次数
	Err       error // 致命错误
}

func (c *Client) buildResult(err error) *Result {
	r := &Result{Err: err}
	r.Primary, r.Secondary = c.Counters()
	if c.periodic != nil {
		r.Overruns = c.periodic.Overruns()
	}
	if c.session == nil {
		return r
	}

	r.Session = Session{
		RunID:           c.session.RunID,
		Target:          c.session.Target,
		Bitrate:         c.session.Bitrate,
		FrameRate:       c.session.FrameRate,
		DurationSeconds: c.session.DurationSeconds,
		TickInterval:    c.session.TickInterval,
		FinalSequence:   c.session.FinalSequence,
	}
	r.Scheduled = atomic.LoadInt64(&c.session.nextSeq)
	r.Records = c.session.table.Snapshot()
	r.Report = xstats.Compute(r.Records, xstats.Corrupt{Primary: r.Primary.Corrupt, Secondary: r.Secondary.Corrupt})
	return r
}
