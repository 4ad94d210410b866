package xcommon

import (
	"context"
	"dstaping/pkg/xlog"
	"fmt"
	"io"

	"github.com/liushuochen/gotable"
	"go.uber.org/zap"
)

// RenderTable 渲染表格文本
func RenderTable(keys []string, values [][]string) (string, error) {
	table, err := gotable.CreateSafeTable(keys...)
	if err != nil {
		return "", err
	}
	for _, vs := range values {
		if err := table.AddRow(vs); err != nil {
			return "", err
		}
	}
	return fmt.Sprint(table), nil
}

// PrintTable 输出表格, 失败仅告警
func PrintTable(ctx context.Context, w io.Writer, keys []string, values [][]string) {
	str, err := RenderTable(keys, values)
	if err != nil {
		xlog.Get(ctx).Warn("Print table failed.", zap.Any("err", err))
		return
	}
	fmt.Fprintln(w, str)
}

func ToString(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
