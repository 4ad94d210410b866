package xmetrics

import (
	"dstaping/pkg/xecho"
	"dstaping/pkg/xnet"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace       = "dsta"
	subsystemClient = "client"
	subsystemEcho   = "echo"
)

// ClientSource 客户端计数来源, 读取必须是并发安全的
type ClientSource interface {
	Counters() (primary xnet.PathCounters, secondary xnet.PathCounters)
	SecondaryStatus() xnet.AdapterStatus
	Sequence() int64
}

// ServerSource 回显服务计数来源
type ServerSource interface {
	Counters() xecho.Counters
}

// Registry 指标注册, 采集时直接读取原子计数
type Registry struct {
	registry *prometheus.Registry
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Registry{registry: reg}
}

func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler /metrics
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) RegisterClient(src ClientSource) error {
	makeCounter := func(name, help, path string, valueFn func(xnet.PathCounters) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystemClient,
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"path": path},
		}, func() float64 {
			primary, secondary := src.Counters()
			if path == "secondary" {
				return float64(valueFn(secondary))
			}
			return float64(valueFn(primary))
		})
	}

	cs := make([]prometheus.Collector, 0)
	for _, path := range []string{"primary", "secondary"} {
		cs = append(cs,
			makeCounter("datagrams_sent_total", "Datagrams handed to the socket.", path,
				func(c xnet.PathCounters) int64 { return c.Sent }),
			makeCounter("datagrams_received_total", "Echoed datagrams received.", path,
				func(c xnet.PathCounters) int64 { return c.Received }),
			makeCounter("send_failed_total", "Datagrams dropped by a failed send.", path,
				func(c xnet.PathCounters) int64 { return c.SendFailed }),
			makeCounter("corrupt_total", "Received datagrams rejected as corrupt.", path,
				func(c xnet.PathCounters) int64 { return c.Corrupt }),
		)
	}
	cs = append(cs,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemClient,
			Name:      "secondary_status",
			Help:      "Secondary path status: 0 disabled, 1 connecting, 2 ready.",
		}, func() float64 { return float64(src.SecondaryStatus()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemClient,
			Name:      "sequence",
			Help:      "Sequence numbers scheduled so far.",
		}, func() float64 { return float64(src.Sequence()) }),
	)
	return r.register(cs)
}

func (r *Registry) RegisterServer(src ServerSource) error {
	makeCounter := func(name, help string, valueFn func(xecho.Counters) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemEcho,
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(valueFn(src.Counters()))
		})
	}
	return r.register([]prometheus.Collector{
		makeCounter("received_total", "Valid datagrams received.", func(c xecho.Counters) int64 { return c.Received }),
		makeCounter("echoed_total", "Datagrams echoed back.", func(c xecho.Counters) int64 { return c.Echoed }),
		makeCounter("corrupt_total", "Datagrams shorter than the header.", func(c xecho.Counters) int64 { return c.Corrupt }),
		makeCounter("reply_failed_total", "Echo replies that failed.", func(c xecho.Counters) int64 { return c.ReplyFailed }),
		makeCounter("recv_errors_total", "Receive completions reporting an OS error.", func(c xecho.Counters) int64 { return c.RecvErrors }),
		makeCounter("truncated_total", "Datagrams that filled the receive buffer.", func(c xecho.Counters) int64 { return c.Truncated }),
	})
}

func (r *Registry) register(cs []prometheus.Collector) error {
	for _, c := range cs {
		if err := r.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
