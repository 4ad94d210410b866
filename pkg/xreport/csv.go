package xreport

import (
	"dstaping/pkg/xstats"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

var csvHeader = []string{
	"seq",
	"primary_send", "primary_echo", "primary_receive",
	"secondary_send", "secondary_echo", "secondary_receive",
}

// WriteCSV 每个序号一行, 时间戳为纳秒, -1表示未观测到
func WriteCSV(w io.Writer, records []xstats.ProbeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	row := make([]string, len(csvHeader))
	for seq, r := range records {
		row[0] = strconv.Itoa(seq)
		for i, v := range []int64{r.PrimarySend, r.PrimaryEcho, r.PrimaryReceive, r.SecondarySend, r.SecondaryEcho, r.SecondaryReceive} {
			row[i+1] = strconv.FormatInt(v, 10)
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "write csv seq %v", seq)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// SaveCSV 写入文件
func SaveCSV(path string, records []xstats.ProbeRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %v", path)
	}
	if err := WriteCSV(f, records); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %v", path)
}
