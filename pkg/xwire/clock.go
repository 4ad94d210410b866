package xwire

import "time"

// TicksPerSecond 时间戳单位为纳秒
const TicksPerSecond = int64(time.Second)

var epoch = time.Now()

// Now 进程内单调时钟(纳秒), 不受墙上时间调整影响
func Now() int64 {
	return int64(time.Since(epoch))
}
