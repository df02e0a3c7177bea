package main

import (
	"context"
	"io"

	"github.com/on-the-ground/reactive_ive_go/config"
	"github.com/on-the-ground/reactive_ive_go/effect"
	"github.com/on-the-ground/reactive_ive_go/log"
	"github.com/urfave/cli/v3"
)

const (
	configKey     = "config"
	logLevelKey   = "log-level"
	policyKey     = "policy"
	incrementsKey = "increments"
	failEveryKey  = "fail-every"
	widthKey      = "width"
	heightKey     = "height"
	iterationsKey = "iterations"
)

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "rxdemo",
		Usage: "Exercise the reactive runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  configKey,
				Usage: "Path to a TOML configuration file",
			},
			&cli.StringFlag{
				Name:  logLevelKey,
				Usage: "Log level: debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "counter",
				Usage: "Run the counter scenario: an action drives a store, a sync effect saves every count",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: policyKey, Usage: "Save effect policy: exhaust, switch, merge or concat"},
					&cli.IntFlag{Name: incrementsKey, Usage: "Number of increments"},
					&cli.IntFlag{Name: failEveryKey, Usage: "Fail saving every n-th count"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					logger := log.New(cfg.LogLevel, cfg.Development)
					defer log.Sync(logger)
					return runCounter(log.WithLogger(ctx, logger), out, cfg)
				},
			},
			{
				Name:  "bench",
				Usage: "Measure propagation through chains of derived queries",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: widthKey, Usage: "Number of query chains"},
					&cli.IntFlag{Name: heightKey, Usage: "Length of each chain"},
					&cli.IntFlag{Name: iterationsKey, Usage: "Number of commits to measure"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return runBench(out, cfg.Bench)
				},
			},
		},
	}
}

// loadConfig reads the configuration file and applies the flags set on the
// command line on top of it.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String(configKey))
	if err != nil {
		return config.Config{}, err
	}

	if cmd.IsSet(logLevelKey) {
		cfg.LogLevel = log.ParseLevel(cmd.String(logLevelKey))
	}
	if cmd.IsSet(policyKey) {
		if cfg.Policy, err = effect.ParsePolicy(cmd.String(policyKey)); err != nil {
			return config.Config{}, err
		}
	}
	setInt(cmd, incrementsKey, &cfg.Counter.Increments)
	setInt(cmd, failEveryKey, &cfg.Counter.FailEvery)
	setInt(cmd, widthKey, &cfg.Bench.Width)
	setInt(cmd, heightKey, &cfg.Bench.Height)
	setInt(cmd, iterationsKey, &cfg.Bench.Iterations)
	return cfg, nil
}

func setInt(cmd *cli.Command, name string, dst *int) {
	if cmd.IsSet(name) {
		*dst = int(cmd.Int(name))
	}
}
