package xstats_test

import (
	"dstaping/pkg/xerr"
	"dstaping/pkg/xstats"
	"math"
	"sync"
	"testing"
)

func record(ps, pr, ss, sr int64) xstats.ProbeRecord {
	r := xstats.NewProbeRecord()
	r.PrimarySend, r.PrimaryReceive = ps, pr
	r.SecondarySend, r.SecondaryReceive = ss, sr
	return r
}

func TestAggregateFormulas(t *testing.T) {
	// 时延: 10 20 30 40
	records := []xstats.ProbeRecord{
		record(0, 30, -1, -1),
		record(100, 110, -1, -1),
		record(200, 240, -1, -1),
		record(300, 320, -1, -1),
	}
	r := xstats.Compute(records, xstats.Corrupt{})
	p := r.Primary
	if p.Count != 4 || p.Lost != 0 || p.Sum != 100 || p.Min != 10 || p.Max != 40 {
		t.Fatalf("primary %+v", p)
	}
	if p.Average != 25 {
		t.Fatalf("average %v", p.Average)
	}
	// sqrt(mean(x²) - mean²) = sqrt(750 - 625)
	if math.Abs(p.StdDev-math.Sqrt(125)) > 1e-9 {
		t.Fatalf("stddev %v", p.StdDev)
	}
	if p.Median != 30 || p.IQR != 40-20 {
		t.Fatalf("median %v iqr %v", p.Median, p.IQR)
	}
}

func TestPrimaryOnlyDegradation(t *testing.T) {
	table, err := xstats.NewTable(5)
	if err != nil {
		t.Fatal(err)
	}
	for seq := int64(0); seq < 5; seq++ {
		table.SetSend(xstats.Primary, seq, seq*1000)
		if seq != 2 {
			table.SetReceive(xstats.Primary, seq, seq*1000+5, seq*1000+10+seq)
		}
	}

	records := table.Snapshot()
	for _, rec := range records {
		if rec.SecondarySend != -1 || rec.SecondaryEcho != -1 || rec.SecondaryReceive != -1 {
			t.Fatalf("secondary touched %+v", rec)
		}
	}
	r := xstats.Compute(records, xstats.Corrupt{})
	if r.Effective != r.Primary {
		t.Fatalf("effective %+v != primary %+v", r.Effective, r.Primary)
	}
	if r.Secondary.Count != 0 || r.Secondary.Lost != 0 {
		t.Fatalf("secondary %+v", r.Secondary)
	}
	if r.SecondaryTimeSaved != 0 || r.FramesSavedBySecondary != 0 || r.ReceivedFirstOnSecondary != 0 {
		t.Fatalf("report %+v", r)
	}
}

func TestRedundancyBenefit(t *testing.T) {
	records := []xstats.ProbeRecord{
		record(0, -1, 0, 50),       // 主路径丢失
		record(100, 130, 100, 120), // 副路径更快
		record(200, 210, 200, -1),  // 副路径丢失
		record(300, -1, 300, -1),   // 全部丢失
	}
	r := xstats.Compute(records, xstats.Corrupt{Primary: 1})
	if r.Effective.Count != 3 || r.Effective.Lost != 1 {
		t.Fatalf("effective %+v", r.Effective)
	}
	if r.FramesSavedBySecondary != 1 {
		t.Fatalf("frames saved %v", r.FramesSavedBySecondary)
	}
	if r.ReceivedFirstOnSecondary != 2 {
		t.Fatalf("received first %v", r.ReceivedFirstOnSecondary)
	}
	// primary sum 40, effective 50+20+10
	if r.Primary.Sum != 40 || r.Effective.Sum != 80 || r.SecondaryTimeSaved != 0 {
		t.Fatalf("sums %v %v saved %v", r.Primary.Sum, r.Effective.Sum, r.SecondaryTimeSaved)
	}
	if r.Corrupt.Primary != 1 {
		t.Fatal("corrupt not carried")
	}
}

func TestSecondaryTimeSaved(t *testing.T) {
	records := []xstats.ProbeRecord{
		record(0, 100, 0, 40),
		record(10, 50, 10, 60),
	}
	r := xstats.Compute(records, xstats.Corrupt{})
	// primary 100+40, effective 40+40
	if r.SecondaryTimeSaved != 60 {
		t.Fatalf("saved %v", r.SecondaryTimeSaved)
	}
}

func TestLossCounting(t *testing.T) {
	const n = 1000
	table, err := xstats.NewTable(n + 10)
	if err != nil {
		t.Fatal(err)
	}
	for seq := int64(0); seq < n; seq++ {
		table.SetSend(xstats.Primary, seq, seq)
		if seq%7 != 0 {
			table.SetReceive(xstats.Primary, seq, -1, seq+3)
		}
	}
	r := xstats.Compute(table.Snapshot(), xstats.Corrupt{})
	if r.Primary.Lost+r.Primary.Count != n {
		t.Fatalf("lost %v + received %v != %v", r.Primary.Lost, r.Primary.Count, n)
	}
	if r.Primary.LossRate() <= 0 || r.Primary.LossRate() >= 1 {
		t.Fatalf("loss rate %v", r.Primary.LossRate())
	}
}

func TestTableSetOnce(t *testing.T) {
	table, err := xstats.NewTable(2)
	if err != nil {
		t.Fatal(err)
	}
	if !table.SetSend(xstats.Secondary, 1, 10) || table.SetSend(xstats.Secondary, 1, 20) {
		t.Fatal("send field written twice")
	}
	if !table.SetReceive(xstats.Secondary, 1, 12, 15) || table.SetReceive(xstats.Secondary, 1, 13, 16) {
		t.Fatal("receive field written twice")
	}
	if table.SetSend(xstats.Primary, 2, 1) || table.SetSend(xstats.Primary, -1, 1) {
		t.Fatal("out of range write accepted")
	}
	rec, ok := table.Record(1)
	if !ok || rec.SecondarySend != 10 || rec.SecondaryEcho != 12 || rec.SecondaryReceive != 15 || rec.PrimarySend != -1 {
		t.Fatalf("record %+v", rec)
	}
}

func TestTableConcurrentPaths(t *testing.T) {
	const n = 4096
	table, err := xstats.NewTable(n)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for _, p := range []xstats.Path{xstats.Primary, xstats.Secondary} {
		wg.Add(2)
		go func(p xstats.Path) {
			defer wg.Done()
			for seq := int64(0); seq < n; seq++ {
				table.SetSend(p, seq, seq)
			}
		}(p)
		go func(p xstats.Path) {
			defer wg.Done()
			for seq := int64(0); seq < n; seq++ {
				table.SetReceive(p, seq, seq+1, seq+2)
			}
		}(p)
	}
	wg.Wait()
	r := xstats.Compute(table.Snapshot(), xstats.Corrupt{})
	if r.Primary.Count != n || r.Secondary.Count != n || r.Primary.Max != 2 {
		t.Fatalf("report %+v", r)
	}
}

func TestTableLimits(t *testing.T) {
	if _, err := xstats.NewTable(xstats.MaxTableSize + 1); xerr.CodeOf(err) != xerr.TableTooLarge {
		t.Fatalf("err = %v", err)
	}
	table, err := xstats.NewTable(0)
	if err != nil || table.Len() != 0 {
		t.Fatalf("empty table %v %v", table, err)
	}
	r := xstats.Compute(table.Snapshot(), xstats.Corrupt{})
	if r.Effective.Count != 0 || r.Effective.StdDev != 0 {
		t.Fatalf("empty report %+v", r)
	}
}
