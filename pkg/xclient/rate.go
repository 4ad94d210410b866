package xclient

import (
	"dstaping/pkg/xcommon"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xstats"
	"dstaping/pkg/xwire"
	"time"
)

// TickInterval 两次调度之间的等待: datagramSize * frameRate * TicksPerSecond / (bitrate/8)
func TickInterval(datagramSize int, frameRate int, bitrate int64) (time.Duration, error) {
	bytesPerSecond := bitrate / 8
	if datagramSize <= 0 || frameRate <= 0 || bytesPerSecond <= 0 {
		return 0, xerr.Fatalf(xerr.InvalidConfig, "datagram size %v frame rate %v bitrate %v", datagramSize, frameRate, bitrate)
	}
	bytesPerTick, ok := xcommon.MulInt64(int64(datagramSize), int64(frameRate))
	if !ok {
		return 0, xerr.Fatalf(xerr.SequenceOverflow, "datagram size %v * frame rate %v", datagramSize, frameRate)
	}
	ticks, ok := xcommon.MulInt64(bytesPerTick, xwire.TicksPerSecond)
	if !ok {
		return 0, xerr.Fatalf(xerr.SequenceOverflow, "tick interval overflow, %v bytes per tick", bytesPerTick)
	}
	interval := time.Duration(ticks / bytesPerSecond)
	if interval <= 0 {
		return 0, xerr.Fatalf(xerr.InvalidConfig, "bitrate %v too high for %v bytes per tick", bitrate, bytesPerTick)
	}
	return interval, nil
}

// FinalSequence 本次运行发送的数据包总数: durationSeconds * (bitrate/8) / datagramSize
func FinalSequence(durationSeconds int64, bitrate int64, datagramSize int) (int64, error) {
	bytesPerSecond := bitrate / 8
	if durationSeconds <= 0 || bytesPerSecond <= 0 || datagramSize <= 0 {
		return 0, xerr.Fatalf(xerr.InvalidConfig, "duration %vs bitrate %v datagram size %v", durationSeconds, bitrate, datagramSize)
	}
	total, ok := xcommon.MulInt64(durationSeconds, bytesPerSecond)
	if !ok {
		return 0, xerr.Fatalf(xerr.SequenceOverflow, "duration %vs * %v bytes/s", durationSeconds, bytesPerSecond)
	}
	final := total / int64(datagramSize)
	if final <= 0 {
		return 0, xerr.Fatalf(xerr.InvalidConfig, "nothing to send in %vs at %v bit/s", durationSeconds, bitrate)
	}
	if final > xstats.MaxTableSize {
		return 0, xerr.Fatalf(xerr.TableTooLarge, "%v datagrams exceeds table size %v", final, xstats.MaxTableSize)
	}
	return final, nil
}
