package xconf_test

import (
	"dstaping/pkg/xconf"
	"dstaping/pkg/xenv"
	"dstaping/pkg/xerr"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const clientYAML = `
target: 192.0.2.10
port: 6000
bitrate: 2000000
frame_rate: 4
duration: 30
secondary: true
secondary_interface: wlan1
probe_timeout: 2s
log:
  level: debug
  json: true
`

func TestLoadClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(path, []byte(clientYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DSTA_PORT", "7000")
	t.Setenv("DSTA_LOG_LEVEL", "warn")

	conf, err := xconf.LoadClient(path)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Target != "192.0.2.10" || conf.Bitrate != 2000000 || conf.FrameRate != 4 || conf.Duration != 30 {
		t.Fatalf("file values %+v", conf)
	}
	if conf.Port != 7000 || conf.Log.Level != "warn" || !conf.Log.JSON {
		t.Fatalf("env override %+v", conf)
	}
	if conf.ProbeTimeout != 2*time.Second || conf.DrainTimeout != time.Second || conf.Buffers != 64 {
		t.Fatalf("defaults %+v", conf)
	}
	if !conf.Secondary || conf.SecondaryInterface != "wlan1" {
		t.Fatalf("secondary %+v", conf)
	}
	if conf.Addr() != "192.0.2.10:7000" {
		t.Fatalf("addr %v", conf.Addr())
	}
	if err := conf.Validate(); err != nil {
		t.Fatal(err)
	}
	if _, err := conf.Log.Logger(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := xconf.LoadClient(filepath.Join(t.TempDir(), "missing.yaml")); xerr.CodeOf(err) != xerr.InvalidConfig {
		t.Fatalf("missing file err = %v", err)
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := xconf.LoadServer(path); xerr.CodeOf(err) != xerr.InvalidConfig {
		t.Fatalf("bad yaml err = %v", err)
	}
	t.Setenv("DSTA_PORT", "not-a-number")
	if _, err := xconf.LoadServer(""); xerr.CodeOf(err) != xerr.InvalidConfig {
		t.Fatalf("bad env err = %v", err)
	}
}

func TestEnvLoadWith(t *testing.T) {
	conf := xconf.DefaultServer()
	if err := xenv.EnvLoadWith(&conf, map[string]string{"DSTA_LISTEN": "127.0.0.1", "DSTA_BUFFERS": "8"}); err != nil {
		t.Fatal(err)
	}
	if conf.Addr() != "127.0.0.1:5000" || conf.Buffers != 8 {
		t.Fatalf("server %+v", conf)
	}
}

func TestValidate(t *testing.T) {
	valid := xconf.DefaultClient()
	valid.Target = "127.0.0.1"
	if err := valid.Validate(); err != nil {
		t.Fatal(err)
	}

	cases := map[string]func(c *xconf.ClientConfig){
		"no target":  func(c *xconf.ClientConfig) { c.Target = "" },
		"port":       func(c *xconf.ClientConfig) { c.Port = 70000 },
		"bitrate":    func(c *xconf.ClientConfig) { c.Bitrate = 7 },
		"frame rate": func(c *xconf.ClientConfig) { c.FrameRate = 0 },
		"duration":   func(c *xconf.ClientConfig) { c.Duration = 0 },
		"buffers":    func(c *xconf.ClientConfig) { c.Buffers = 5000 },
		"datagram":   func(c *xconf.ClientConfig) { c.DatagramSize = 16 },
		"jumbo":      func(c *xconf.ClientConfig) { c.DatagramSize = 70000 },
		"same interface": func(c *xconf.ClientConfig) {
			c.Secondary, c.PrimaryInterface, c.SecondaryInterface = true, "wlan0", "wlan0"
		},
		"log level": func(c *xconf.ClientConfig) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		c := valid
		mutate(&c)
		if err := c.Validate(); xerr.CodeOf(err) != xerr.InvalidConfig {
			t.Errorf("%v: err = %v", name, err)
		}
	}

	svr := xconf.DefaultServer()
	if err := svr.Validate(); err != nil {
		t.Fatal(err)
	}
	svr.Buffers = 0
	if err := svr.Validate(); err == nil {
		t.Fatal("zero buffers accepted")
	}
	svr = xconf.DefaultServer()
	svr.MaxDatagramSize = 16
	if err := svr.Validate(); xerr.CodeOf(err) != xerr.InvalidConfig {
		t.Fatalf("max datagram size 16: err = %v", err)
	}
}
