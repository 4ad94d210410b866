// Package xconf 客户端/服务端配置: 默认值 < yaml文件 < 环境变量(DSTA_) < 命令行参数
package xconf

import (
	"dstaping/pkg/xenv"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xlog"
	"dstaping/pkg/xwire"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	maxBuffers = 4096
	maxPort    = 65535
)

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
	JSON  bool   `yaml:"json" env:"LOG_JSON"`
}

// Logger 按配置创建logger
func (c LogConfig) Logger() (xlog.Logger, error) {
	lvl, err := c.level()
	if err != nil {
		return nil, err
	}
	return xlog.New(xlog.Config{Level: lvl, JSON: c.JSON}), nil
}

func (c LogConfig) level() (zapcore.Level, error) {
	lvl, err := xlog.ParseLevel(c.Level)
	if err != nil {
		return lvl, xerr.NewFatal(xerr.InvalidConfig, err)
	}
	return lvl, nil
}

type ClientConfig struct {
	Target             string        `yaml:"target" env:"TARGET"`
	Port               int           `yaml:"port" env:"PORT"`
	Bitrate            int64         `yaml:"bitrate" env:"BITRATE"`       // bit/s
	FrameRate          int           `yaml:"frame_rate" env:"FRAME_RATE"` // 每次调度的数据包数
	Duration           int64         `yaml:"duration" env:"DURATION"`     // 秒
	Buffers            int           `yaml:"buffers" env:"BUFFERS"`
	Workers            int           `yaml:"workers" env:"WORKERS"`
	DatagramSize       int           `yaml:"datagram_size" env:"DATAGRAM_SIZE"`
	Secondary          bool          `yaml:"secondary" env:"SECONDARY"`
	PrimaryInterface   string        `yaml:"primary_interface" env:"PRIMARY_INTERFACE"`
	SecondaryInterface string        `yaml:"secondary_interface" env:"SECONDARY_INTERFACE"`
	PollInterval       time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	DrainTimeout       time.Duration `yaml:"drain_timeout" env:"DRAIN_TIMEOUT"`
	CSV                string        `yaml:"csv" env:"CSV"` // 记录表输出文件, 为空不输出
	MetricsAddr        string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
	Log                LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Listen  string `yaml:"listen" env:"LISTEN"`
	Port    int    `yaml:"port" env:"PORT"`
	Buffers int    `yaml:"buffers" env:"BUFFERS"`
	Workers int    `yaml:"workers" env:"WORKERS"`
	// 接收buffer长度, 0为UDP最大负载
	MaxDatagramSize int       `yaml:"max_datagram_size" env:"MAX_DATAGRAM_SIZE"`
	MetricsAddr     string    `yaml:"metrics_addr" env:"METRICS_ADDR"`
	Log             LogConfig `yaml:"log"`
}

func DefaultClient() ClientConfig {
	return ClientConfig{
		Port:         5000,
		Bitrate:      1000000,
		FrameRate:    1,
		Duration:     10,
		Buffers:      64,
		Workers:      4,
		DatagramSize: xwire.DefaultDatagramSize,
		PollInterval: time.Second,
		ProbeTimeout: 5 * time.Second,
		DrainTimeout: time.Second,
		Log:          LogConfig{Level: "info"},
	}
}

func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:    5000,
		Buffers: 64,
		Workers: 4,
		Log:     LogConfig{Level: "info"},
	}
}

// LoadClient 默认值, 然后文件(path非空), 然后环境变量
func LoadClient(path string) (ClientConfig, error) {
	conf := DefaultClient()
	if err := load(path, &conf); err != nil {
		return conf, err
	}
	return conf, nil
}

func LoadServer(path string) (ServerConfig, error) {
	conf := DefaultServer()
	if err := load(path, &conf); err != nil {
		return conf, err
	}
	return conf, nil
}

func load(path string, conf interface{}) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return xerr.NewFatal(xerr.InvalidConfig, errors.Wrapf(err, "read config %v", path))
		}
		if err := yaml.Unmarshal(data, conf); err != nil {
			return xerr.NewFatal(xerr.InvalidConfig, errors.Wrapf(err, "parse config %v", path))
		}
	}
	if err := xenv.EnvLoad(conf); err != nil {
		return xerr.NewFatal(xerr.InvalidConfig, errors.Wrap(err, "parse environment"))
	}
	return nil
}

// Addr 目标地址 host:port
func (c ClientConfig) Addr() string {
	return net.JoinHostPort(c.Target, strconv.Itoa(c.Port))
}

func (c ClientConfig) Validate() error {
	switch {
	case c.Target == "":
		return xerr.Fatalf(xerr.InvalidConfig, "target is empty")
	case c.Port <= 0 || c.Port > maxPort:
		return xerr.Fatalf(xerr.InvalidConfig, "port %v out of range", c.Port)
	case c.Bitrate < 8:
		return xerr.Fatalf(xerr.InvalidConfig, "bitrate %v below 8 bit/s", c.Bitrate)
	case c.FrameRate <= 0:
		return xerr.Fatalf(xerr.InvalidConfig, "frame rate %v", c.FrameRate)
	case c.Duration <= 0:
		return xerr.Fatalf(xerr.InvalidConfig, "duration %v", c.Duration)
	case c.Buffers <= 0 || c.Buffers > maxBuffers:
		return xerr.Fatalf(xerr.InvalidConfig, "buffers %v out of range [1, %v]", c.Buffers, maxBuffers)
	case c.DatagramSize < xwire.HeaderSize || c.DatagramSize > xwire.MaxDatagramSize:
		return xerr.Fatalf(xerr.InvalidConfig, "datagram size %v out of range [%v, %v]", c.DatagramSize, xwire.HeaderSize, xwire.MaxDatagramSize)
	case c.Secondary && c.SecondaryInterface == c.PrimaryInterface && c.SecondaryInterface != "":
		return xerr.Fatalf(xerr.InvalidConfig, "secondary interface equals primary %v", c.PrimaryInterface)
	}
	_, err := c.Log.level()
	return err
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Listen, strconv.Itoa(c.Port))
}

func (c ServerConfig) Validate() error {
	switch {
	case c.Port < 0 || c.Port > maxPort:
		return xerr.Fatalf(xerr.InvalidConfig, "port %v out of range", c.Port)
	case c.Buffers <= 0 || c.Buffers > maxBuffers:
		return xerr.Fatalf(xerr.InvalidConfig, "buffers %v out of range [1, %v]", c.Buffers, maxBuffers)
	case c.MaxDatagramSize != 0 && (c.MaxDatagramSize < xwire.HeaderSize || c.MaxDatagramSize > xwire.MaxDatagramSize):
		return xerr.Fatalf(xerr.InvalidConfig, "max datagram size %v out of range [%v, %v]", c.MaxDatagramSize, xwire.HeaderSize, xwire.MaxDatagramSize)
	}
	_, err := c.Log.level()
	return err
}
