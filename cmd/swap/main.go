package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/archerdao/archerswap/internal/chain"
	"github.com/archerdao/archerswap/internal/config"
	"github.com/archerdao/archerswap/internal/relay"
	"github.com/archerdao/archerswap/internal/swap"
	"github.com/archerdao/archerswap/internal/txstate"
	"github.com/archerdao/archerswap/internal/wallet"
)

func main() {
	var (
		cfgPath     = flag.String("config", "./config.yaml", "path to config file")
		tokenIn     = flag.String("token-in", "", "input token address")
		tokenOut    = flag.String("token-out", "", "output token address")
		symbolIn    = flag.String("symbol-in", "TOKA", "input token symbol")
		symbolOut   = flag.String("symbol-out", "TOKB", "output token symbol")
		decimalsIn  = flag.Int("decimals-in", 18, "input token decimals")
		decimalsOut = flag.Int("decimals-out", 18, "output token decimals")
		amountIn    = flag.String("amount-in", "", "input amount in token units")
		amountOut   = flag.String("amount-out", "", "expected output amount in token units")
		exactOut    = flag.Bool("exact-output", false, "treat the output amount as fixed")
		recipient   = flag.String("recipient", "", "recipient address, empty for sender")
		useRelay    = flag.Bool("relay", false, "submit through the private relay")
		tipEth      = flag.String("tip-eth", "0.01", "miner tip in ETH (relay mode)")
		wait        = flag.Bool("wait", false, "poll until the transaction finalizes")
	)
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

	ec, err := ethclient.Dial(cfg.Chain.RPCHTTP)
	if err != nil {
		logger.Fatal("dial rpc", zap.Error(err))
	}

	w, err := wallet.NewLocalWallet(cfg.Chain.WalletPK, new(big.Int).SetUint64(cfg.Chain.ID))
	if err != nil {
		logger.Fatal("init wallet", zap.Error(err))
	}

	var publisher *relay.Publisher
	if cfg.Relay.URI != "" {
		publisher, err = relay.NewPublisher(cfg.Relay.URI, cfg.Relay.APIKey, cfg.Relay.MaxRetries, logger)
		if err != nil {
			logger.Fatal("init relay publisher", zap.Error(err))
		}
	}

	store := txstate.NewStore()
	submitter, err := swap.NewSubmitter(cfg, ec, w, store, publisher, logger)
	if err != nil {
		logger.Fatal("init submitter", zap.Error(err))
	}

	trade := &swap.Trade{
		Type: swap.ExactInput,
		InputAmount: swap.NewCurrencyAmount(
			swap.Token{Address: common.HexToAddress(*tokenIn), Symbol: *symbolIn, Decimals: int32(*decimalsIn)},
			parseAmount(logger, *amountIn, int32(*decimalsIn)),
		),
		OutputAmount: swap.NewCurrencyAmount(
			swap.Token{Address: common.HexToAddress(*tokenOut), Symbol: *symbolOut, Decimals: int32(*decimalsOut)},
			parseAmount(logger, *amountOut, int32(*decimalsOut)),
		),
		Path: []common.Address{common.HexToAddress(*tokenIn), common.HexToAddress(*tokenOut)},
	}
	if *exactOut {
		trade.Type = swap.ExactOutput
	}

	req := swap.SwapRequest{Trade: trade, Recipient: common.HexToAddress(*recipient)}
	if *useRelay {
		req.Mode = swap.RouteRelay
		req.EthTip = parseAmount(logger, *tipEth, 18)
	}

	hash, err := submitter.Swap(ctx, req)
	if err != nil {
		logger.Fatal("swap failed", zap.Error(err))
	}
	logger.Info("swap submitted", zap.String("hash", hash.Hex()))

	if !*wait {
		return
	}

	var poster txstate.BundlePoster
	if publisher != nil {
		poster = publisher
	}
	tracker := txstate.NewTracker(cfg.Chain.ID, store, ec, poster, nil, logger)
	heads := chain.NewPolledHeads(ec, cfg.HeadPoll(), logger)
	blocks, err := heads.Subscribe(ctx)
	if err != nil {
		logger.Fatal("subscribe to new heads", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-blocks:
			if !ok {
				return
			}
			tracker.OnNewBlock(ctx, block)
			rec, _ := store.Get(cfg.Chain.ID, hash)
			st := txstate.DeriveStatus(rec, time.Now())
			switch {
			case st.Success:
				logger.Info("swap confirmed", zap.String("hash", hash.Hex()))
				return
			case st.Mined:
				logger.Warn("swap reverted on chain", zap.String("hash", hash.Hex()))
				return
			case st.Expired:
				logger.Warn("relay deadline passed without inclusion", zap.String("hash", hash.Hex()))
				return
			default:
				logger.Info("still pending",
					zap.Uint64("block", block),
					zap.String("remaining", txstate.FormatRemaining(st.SecondsUntilDeadline)))
			}
		}
	}
}

func parseAmount(logger *zap.Logger, s string, decimals int32) *big.Int {
	if s == "" {
		logger.Fatal("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		logger.Fatal("bad amount", zap.String("amount", s), zap.Error(err))
	}
	return d.Shift(decimals).BigInt()
}
