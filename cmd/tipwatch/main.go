package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/archerdao/archerswap/internal/config"
	"github.com/archerdao/archerswap/internal/tips"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	interval := flag.Duration("interval", 30*time.Second, "poll interval")
	quantile := flag.String("quantile", "median", "gas price quantile to watch")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	client := tips.New(cfg.Tips.TipsURL, cfg.Tips.GasURL, logger)

	t := time.NewTicker(*interval)
	defer t.Stop()
	for {
		tiers := client.Tiers(ctx)
		names := make([]string, 0, len(tiers))
		for name := range tiers {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := make([]zap.Field, 0, len(names)+1)
		for _, name := range names {
			fields = append(fields, zap.String(name, tiers[name]))
		}
		fields = append(fields, zap.String("gas_"+*quantile, client.GasPrice(ctx, *quantile).String()))
		logger.Info("current miner tips", fields...)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
