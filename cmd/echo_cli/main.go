package main

import (
	"context"
	"dstaping/pkg/xclient"
	"dstaping/pkg/xcommon"
	"dstaping/pkg/xconf"
	"dstaping/pkg/xlog"
	"dstaping/pkg/xmetrics"
	"dstaping/pkg/xnetwatch"
	"dstaping/pkg/xreport"
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
	flagConf := xconf.DefaultClient()

	cmd := &cobra.Command{
		Use:           "echo_cli",
		Short:         "Measure UDP echo latency over a primary and an optional secondary path",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := xconf.LoadClient(configPath)
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
				xlog.Get(ctx).Error("Run failed.", zap.Any("err", err))
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "yaml config file")
	f.StringVarP(&flagConf.Target, "target", "t", flagConf.Target, "echo server address")
	f.IntVarP(&flagConf.Port, "port", "p", flagConf.Port, "echo server port")
	f.Int64VarP(&flagConf.Bitrate, "bitrate", "b", flagConf.Bitrate, "target bitrate in bit/s")
	f.IntVarP(&flagConf.FrameRate, "frame-rate", "f", flagConf.FrameRate, "datagrams per scheduler tick")
	f.Int64VarP(&flagConf.Duration, "duration", "d", flagConf.Duration, "run duration in seconds")
	f.IntVar(&flagConf.Buffers, "buffers", flagConf.Buffers, "receive buffers posted per path")
	f.IntVar(&flagConf.Workers, "workers", flagConf.Workers, "completion workers per path")
	f.IntVar(&flagConf.DatagramSize, "datagram-size", flagConf.DatagramSize, "datagram size in bytes")
	f.BoolVarP(&flagConf.Secondary, "secondary", "s", flagConf.Secondary, "use a secondary path")
	f.StringVar(&flagConf.PrimaryInterface, "primary-interface", flagConf.PrimaryInterface, "bind the primary path to this interface")
	f.StringVar(&flagConf.SecondaryInterface, "secondary-interface", flagConf.SecondaryInterface, "interface used for the secondary path")
	f.DurationVar(&flagConf.PollInterval, "poll-interval", flagConf.PollInterval, "network change polling interval")
	f.DurationVar(&flagConf.ProbeTimeout, "probe-timeout", flagConf.ProbeTimeout, "connectivity probe timeout per attempt")
	f.DurationVar(&flagConf.DrainTimeout, "drain-timeout", flagConf.DrainTimeout, "wait for in-flight datagrams on stop")
	f.StringVar(&flagConf.CSV, "csv", flagConf.CSV, "write per-sequence records to this csv file")
	f.StringVar(&flagConf.MetricsAddr, "metrics-addr", flagConf.MetricsAddr, "serve prometheus metrics on this address")
	f.StringVar(&flagConf.Log.Level, "log-level", flagConf.Log.Level, "debug, info, warn or error")
	f.BoolVar(&flagConf.Log.JSON, "log-json", flagConf.Log.JSON, "json log output")
	return cmd
}

// 命令行参数只覆盖显式设置的项
func applyFlags(f *pflag.FlagSet, conf *xconf.ClientConfig, flagConf *xconf.ClientConfig) {
	set := map[string]func(){
		"target":              func() { conf.Target = flagConf.Target },
		"port":                func() { conf.Port = flagConf.Port },
		"bitrate":             func() { conf.Bitrate = flagConf.Bitrate },
		"frame-rate":          func() { conf.FrameRate = flagConf.FrameRate },
		"duration":            func() { conf.Duration = flagConf.Duration },
		"buffers":             func() { conf.Buffers = flagConf.Buffers },
		"workers":             func() { conf.Workers = flagConf.Workers },
		"datagram-size":       func() { conf.DatagramSize = flagConf.DatagramSize },
		"secondary":           func() { conf.Secondary = flagConf.Secondary },
		"primary-interface":   func() { conf.PrimaryInterface = flagConf.PrimaryInterface },
		"secondary-interface": func() { conf.SecondaryInterface = flagConf.SecondaryInterface },
		"poll-interval":       func() { conf.PollInterval = flagConf.PollInterval },
		"probe-timeout":       func() { conf.ProbeTimeout = flagConf.ProbeTimeout },
		"drain-timeout":       func() { conf.DrainTimeout = flagConf.DrainTimeout },
		"csv":                 func() { conf.CSV = flagConf.CSV },
		"metrics-addr":        func() { conf.MetricsAddr = flagConf.MetricsAddr },
		"log-level":           func() { conf.Log.Level = flagConf.Log.Level },
		"log-json":            func() { conf.Log.JSON = flagConf.Log.JSON },
	}
	f.Visit(func(flag *pflag.Flag) {
		if fn, ok := set[flag.Name]; ok {
			fn()
		}
	})
}

func run(ctx context.Context, conf xconf.ClientConfig) error {
	ctx, stop := xcommon.SignalContext(ctx)
	defer stop()

	var observer xnetwatch.Observer
	if conf.Secondary {
		poller := xnetwatch.NewPoller(ctx, xnetwatch.PollerArgs{
			Target:    conf.Addr(),
			Primary:   conf.PrimaryInterface,
			Secondary: conf.SecondaryInterface,
			Interval:  conf.PollInterval,
		})
		defer poller.Close(ctx)
		observer = poller
		if conf.SecondaryInterface == "" {
			xlog.Get(ctx).Warn("No secondary interface configured, running primary only.")
		}
	}

	client, err := xclient.NewClient(ctx, xclient.ClientArgs{
		Target:           conf.Addr(),
		DatagramSize:     conf.DatagramSize,
		BufferCount:      conf.Buffers,
		Workers:          conf.Workers,
		PrimaryInterface: conf.PrimaryInterface,
		Secondary:        conf.Secondary,
		Observer:         observer,
		ProbeTimeout:     conf.ProbeTimeout,
		DrainTimeout:     conf.DrainTimeout,
	})
	if err != nil {
		return err
	}

	if conf.MetricsAddr != "" {
		reg := xmetrics.NewRegistry()
		if err := reg.RegisterClient(client); err != nil {
			return err
		}
		svr, err := xmetrics.Serve(ctx, conf.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer svr.Close(ctx)
	}

	if err := client.Start(ctx, xclient.StartArgs{
		Bitrate:         conf.Bitrate,
		FrameRate:       conf.FrameRate,
		DurationSeconds: conf.Duration,
	}); err != nil {
		return err
	}

	// ctx取消时client自行停止, 这里等待结果
	res, err := client.Wait(context.Background())
	if res == nil {
		return err
	}
	xlog.Get(ctx).Info("Run finished.", zap.String("run", client.RunID()), zap.Int64("scheduled", res.Scheduled),
		zap.Int64("overruns", res.Overruns), zap.Any("primary", res.Primary), zap.Any("secondary", res.Secondary))
	xreport.PrintSummary(ctx, os.Stdout, res.Report)

	if conf.CSV != "" {
		if cerr := xreport.SaveCSV(conf.CSV, res.Records); cerr != nil {
			xlog.Get(ctx).Warn("Save csv failed.", zap.String("path", conf.CSV), zap.Any("err", cerr))
		} else {
			xlog.Get(ctx).Info("Records saved.", zap.String("path", conf.CSV), zap.Int("records", len(res.Records)))
		}
	}
	return err
}
