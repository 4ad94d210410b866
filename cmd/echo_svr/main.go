package main

import (
	"context"
	"dstaping/pkg/xcommon"
	"dstaping/pkg/xconf"
	"dstaping/pkg/xecho"
	"dstaping/pkg/xlog"
	"dstaping/pkg/xmetrics"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()
	defer xcommon.Recover(ctx)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	flagConf := xconf.DefaultServer()

	cmd := &cobra.Command{
		Use:           "echo_svr",
		Short:         "Stateless UDP echo server stamping an echo timestamp",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := xconf.LoadServer(configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd.Flags(), &conf, &flagConf)
			if err := conf.Validate(); err != nil {
				return err
			}
			logger, err := conf.Log.Logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := xlog.WithLogger(cmd.Context(), logger)
			if err := run(ctx, conf); err != nil {
				xlog.Get(ctx).Error("Server failed.", zap.Any("err", err))
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "yaml config file")
	f.StringVarP(&flagConf.Listen, "listen", "l", flagConf.Listen, "listen address, empty for all IPv4 addresses")
	f.IntVarP(&flagConf.Port, "port", "p", flagConf.Port, "listen port")
	f.IntVar(&flagConf.Buffers, "buffers", flagConf.Buffers, "receive buffers posted")
	f.IntVar(&flagConf.Workers, "workers", flagConf.Workers, "completion workers")
	f.IntVar(&flagConf.MaxDatagramSize, "max-datagram-size", flagConf.MaxDatagramSize, "receive buffer size in bytes, 0 for the UDP maximum")
	f.StringVar(&flagConf.MetricsAddr, "metrics-addr", flagConf.MetricsAddr, "serve prometheus metrics on this address")
	f.StringVar(&flagConf.Log.Level, "log-level", flagConf.Log.Level, "debug, info, warn or error")
	f.BoolVar(&flagConf.Log.JSON, "log-json", flagConf.Log.JSON, "json log output")
	return cmd
}

// 命令行参数只覆盖显式设置的项
func applyFlags(f *pflag.FlagSet, conf *xconf.ServerConfig, flagConf *xconf.ServerConfig) {
	set := map[string]func(){
		"listen":            func() { conf.Listen = flagConf.Listen },
		"port":              func() { conf.Port = flagConf.Port },
		"buffers":           func() { conf.Buffers = flagConf.Buffers },
		"workers":           func() { conf.Workers = flagConf.Workers },
		"max-datagram-size": func() { conf.MaxDatagramSize = flagConf.MaxDatagramSize },
		"metrics-addr":      func() { conf.MetricsAddr = flagConf.MetricsAddr },
		"log-level":         func() { conf.Log.Level = flagConf.Log.Level },
		"log-json":          func() { conf.Log.JSON = flagConf.Log.JSON },
	}
	f.Visit(func(flag *pflag.Flag) {
		if fn, ok := set[flag.Name]; ok {
			fn()
		}
	})
}

func run(ctx context.Context, conf xconf.ServerConfig) error {
	svr, err := xecho.NewServer(ctx, xecho.ServerArgs{
		Addr:            conf.Addr(),
		BufferCount:     conf.Buffers,
		Workers:         conf.Workers,
		MaxDatagramSize: conf.MaxDatagramSize,
	})
	if err != nil {
		return err
	}
	defer svr.Close(ctx)

	if conf.MetricsAddr != "" {
		reg := xmetrics.NewRegistry()
		if err := reg.RegisterServer(svr); err != nil {
			return err
		}
		msvr, err := xmetrics.Serve(ctx, conf.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer msvr.Close(ctx)
	}

	if err := svr.Start(ctx); err != nil {
		return err
	}
	// 收到退出信号, 或接收出现致命错误
	xcommon.UntilSignal(ctx, svr.Done())
	return svr.Err()
}
