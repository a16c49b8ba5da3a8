package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/archerdao/archerswap/internal/chain"
	"github.com/archerdao/archerswap/internal/config"
	"github.com/archerdao/archerswap/internal/feed"
	"github.com/archerdao/archerswap/internal/metrics"
	"github.com/archerdao/archerswap/internal/relay"
	"github.com/archerdao/archerswap/internal/txstate"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	logger, err := newLogger()
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

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("received signal, shutting down...")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.Addr, nil, logger)

	ec, err := ethclient.Dial(cfg.Chain.RPCHTTP)
	if err != nil {
		logger.Fatal("dial rpc", zap.Error(err))
	}

	var publisher *relay.Publisher
	if cfg.Relay.URI != "" {
		publisher, err = relay.NewPublisher(cfg.Relay.URI, cfg.Relay.APIKey, cfg.Relay.MaxRetries, logger)
		if err != nil {
			logger.Fatal("init relay publisher", zap.Error(err))
		}
	} else {
		logger.Warn("no relay URI configured, pending bundles will not be re-posted")
	}

	var events *feed.Publisher
	if cfg.Redis.Addr != "" {
		events = feed.NewPublisher(cfg)
		defer events.Close()
	}

	store := txstate.NewStore()
	notify := func(n txstate.Notification) {
		logger.Info("transaction confirmed",
			zap.String("hash", n.Hash.Hex()),
			zap.Bool("success", n.Success),
			zap.String("summary", n.Summary))
		if events != nil {
			_ = events.Publish(ctx, feed.Event{
				Hash:    n.Hash.Hex(),
				ChainID: cfg.Chain.ID,
				Kind:    "finalized",
				Success: n.Success,
				Summary: n.Summary,
				TsMs:    time.Now().UnixMilli(),
			})
		}
	}

	var poster txstate.BundlePoster
	if publisher != nil {
		poster = publisher
	}
	tracker := txstate.NewTracker(cfg.Chain.ID, store, ec, poster, notify, logger)

	var heads chain.HeadSource
	if cfg.Chain.RPCWS != "" {
		heads = chain.NewWSHeads(cfg.Chain.RPCWS, logger)
	} else {
		heads = chain.NewPolledHeads(ec, cfg.HeadPoll(), logger)
	}

	blocks, err := heads.Subscribe(ctx)
	if err != nil {
		logger.Fatal("subscribe to new heads", zap.Error(err))
	}
	logger.Info("tracking transactions", zap.Uint64("chain_id", cfg.Chain.ID))

	for {
		select {
		case <-ctx.Done():
			logger.Info("archerswapd finished")
			return
		case block, ok := <-blocks:
			if !ok {
				logger.Error("head stream closed, exiting")
				return
			}
			tracker.OnNewBlock(ctx, block)
		}
	}
}
