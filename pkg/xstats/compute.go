package xstats

import (
	"math"
	"sort"
)

// Aggregate 一组时延的统计值, 单位纳秒
type Aggregate struct {
	Count   int64 // 收到的帧
	Lost    int64 // 发出未收到的帧
	Average float64
	StdDev  float64
	Median  int64
	IQR     int64
	Min     int64
	Max     int64
	Sum     int64
}

// Corrupt 各路径损坏帧计数
type Corrupt struct {
	Primary   int64
	Secondary int64
}

type Report struct {
	Records   int64
	Primary   Aggregate
	Secondary Aggregate
	Effective Aggregate // 每个序号取各路径最小时延

	SecondaryTimeSaved       int64 // max(sum(primary) - sum(effective), 0)
	ReceivedFirstOnSecondary int64
	FramesSavedBySecondary   int64 // 主路径丢失而副路径收到
	Corrupt                  Corrupt
}

// Compute 统计记录表, 调用方保证没有并发写入
func Compute(records []ProbeRecord, corrupt Corrupt) Report {
	report := Report{Records: int64(len(records)), Corrupt: corrupt}

	var primary, secondary, effective []int64
	var primaryLost, secondaryLost, effectiveLost int64
	for _, r := range records {
		pl, pok := r.Latency(Primary)
		sl, sok := r.Latency(Secondary)

		if pok {
			primary = append(primary, pl)
		} else if r.Sent(Primary) {
			primaryLost++
		}
		if sok {
			secondary = append(secondary, sl)
		} else if r.Sent(Secondary) {
			secondaryLost++
		}

		if !r.Sent(Primary) && !r.Sent(Secondary) {
			continue
		}
		switch {
		case pok && sok:
			effective = append(effective, min64(pl, sl))
		case pok:
			effective = append(effective, pl)
		case sok:
			effective = append(effective, sl)
		default:
			effectiveLost++
		}

		if sok && !pok {
			report.FramesSavedBySecondary++
		}
		if r.SecondaryReceive >= 0 && (r.PrimaryReceive < 0 || r.SecondaryReceive < r.PrimaryReceive) {
			report.ReceivedFirstOnSecondary++
		}
	}

	report.Primary = aggregate(primary, primaryLost)
	report.Secondary = aggregate(secondary, secondaryLost)
	report.Effective = aggregate(effective, effectiveLost)
	if saved := report.Primary.Sum - report.Effective.Sum; saved > 0 {
		report.SecondaryTimeSaved = saved
	}
	return report
}

func aggregate(latencies []int64, lost int64) Aggregate {
	agg := Aggregate{Count: int64(len(latencies)), Lost: lost}
	n := len(latencies)
	if n == 0 {
		return agg
	}

	sorted := make([]int64, n)
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	var sumSq float64
	for _, v := range sorted {
		sum += v
		sumSq += float64(v) * float64(v)
	}
	mean := float64(sum) / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}

	agg.Sum = sum
	agg.Average = mean
	agg.StdDev = math.Sqrt(variance)
	agg.Median = sorted[n/2]
	agg.IQR = sorted[3*n/4] - sorted[n/4]
	agg.Min = sorted[0]
	agg.Max = sorted[n-1]
	return agg
}

// LossRate 丢包率 0~1
func (a Aggregate) LossRate() float64 {
	total := a.Count + a.Lost
	if total == 0 {
		return 0
	}
	return float64(a.Lost) / float64(total)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
