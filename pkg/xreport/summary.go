package xreport

import (
	"context"
	"dstaping/pkg/xcommon"
	"dstaping/pkg/xstats"
	"fmt"
	"io"
	"time"
)

var summaryKeys = []string{"path", "received", "lost", "loss", "avg", "stddev", "median", "iqr", "min", "max"}

// SummaryRows 每条路径一行
func SummaryRows(r xstats.Report) [][]string {
	return [][]string{
		aggregateRow("primary", r.Primary),
		aggregateRow("secondary", r.Secondary),
		aggregateRow("effective", r.Effective),
	}
}

func aggregateRow(name string, a xstats.Aggregate) []string {
	return []string{
		name,
		xcommon.ToString(a.Count),
		xcommon.ToString(a.Lost),
		fmt.Sprintf("%.2f%%", a.LossRate()*100),
		duration(a.Average),
		duration(a.StdDev),
		duration(float64(a.Median)),
		duration(float64(a.IQR)),
		duration(float64(a.Min)),
		duration(float64(a.Max)),
	}
}

// 纳秒转可读时长, 保留微秒
func duration(ns float64) string {
	return time.Duration(ns).Round(time.Microsecond).String()
}

// RedundancyRows 副路径收益
func RedundancyRows(r xstats.Report) [][]string {
	return [][]string{
		{"secondary time saved", duration(float64(r.SecondaryTimeSaved))},
		{"received first on secondary", xcommon.ToString(r.ReceivedFirstOnSecondary)},
		{"frames saved by secondary", xcommon.ToString(r.FramesSavedBySecondary)},
		{"corrupt primary", xcommon.ToString(r.Corrupt.Primary)},
		{"corrupt secondary", xcommon.ToString(r.Corrupt.Secondary)},
	}
}

// PrintSummary 输出统计表格
func PrintSummary(ctx context.Context, w io.Writer, r xstats.Report) {
	xcommon.PrintTable(ctx, w, summaryKeys, SummaryRows(r))
	xcommon.PrintTable(ctx, w, []string{"metric", "value"}, RedundancyRows(r))
}
