package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/archerdao/archerswap/internal/config"
	imetrics "github.com/archerdao/archerswap/internal/metrics"
	"github.com/archerdao/archerswap/internal/txstate"
	"github.com/archerdao/archerswap/internal/wallet"
)

type txClient interface {
	ethCaller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type relayPublisher interface {
	SubmitTx(ctx context.Context, rawTx hexutil.Bytes, deadline uint64) error
	CancelTx(ctx context.Context, rawTx hexutil.Bytes) error
}

// SwapRequest is one user-level swap intent.
type SwapRequest struct {
	Trade     *Trade
	Recipient common.Address // zero means "back to the sender"
	Mode      RoutingMode
	EthTip    *big.Int      // relay only, wei
	RelayTTL  time.Duration // relay only, 0 means configured default
}

// Submitter turns a trade into a signed transaction and a tracked record:
// direct broadcast through the connected client, or relay packaging where
// the record is dispatched before the relay ever sees the bundle.
type Submitter struct {
	cfg       *config.Config
	client    txClient
	wallet    wallet.Wallet
	builder   *Builder
	estimator *Estimator
	store     *txstate.Store
	publisher relayPublisher
	log       *zap.Logger

	underlyingRouter common.Address
	relayRouter      common.Address
}

func NewSubmitter(
	cfg *config.Config,
	client txClient,
	w wallet.Wallet,
	store *txstate.Store,
	publisher relayPublisher,
	log *zap.Logger,
) (*Submitter, error) {
	builder, err := NewBuilder()
	if err != nil {
		return nil, err
	}
	return &Submitter{
		cfg:              cfg,
		client:           client,
		wallet:           w,
		builder:          builder,
		estimator:        NewEstimator(client, log),
		store:            store,
		publisher:        publisher,
		log:              log,
		underlyingRouter: common.HexToAddress(cfg.Routers.Underlying),
		relayRouter:      common.HexToAddress(cfg.Routers.Relay),
	}, nil
}

// Swap builds, estimates, selects, signs and submits one trade, and
// returns the transaction hash of the record it created.
func (s *Submitter) Swap(ctx context.Context, req SwapRequest) (common.Hash, error) {
	if req.Mode == RouteRelay && (s.relayRouter == (common.Address{}) || s.publisher == nil) {
		return common.Hash{}, ErrUnknownChain
	}

	account := s.wallet.Address()
	recipient := req.Recipient
	if recipient == (common.Address{}) {
		recipient = account
	}

	calls, err := s.builder.BuildSwapCalls(CallParams{
		Trade:            req.Trade,
		SlippageBps:      s.cfg.Swap.SlippageBps,
		Account:          account,
		Recipient:        recipient,
		DeadlineUnix:     uint64(time.Now().Add(s.cfg.SwapDeadline()).Unix()),
		Mode:             req.Mode,
		EthTip:           req.EthTip,
		UnderlyingRouter: s.underlyingRouter,
		RelayRouter:      s.relayRouter,
	})
	if err != nil {
		return common.Hash{}, err
	}
	if len(calls) == 0 {
		return common.Hash{}, ErrNotReady
	}

	start := time.Now()
	estimates := s.estimator.EstimateAll(ctx, account, calls)
	imetrics.EstimateLatency.Observe(time.Since(start).Seconds())

	best, err := SelectBestCall(estimates)
	if err != nil {
		return common.Hash{}, err
	}

	summary := summarize(req.Trade, account, recipient, req.Mode)

	if req.Mode == RouteRelay {
		return s.submitRelay(ctx, req, best, summary, account)
	}
	return s.submitDirect(ctx, best, summary, account)
}

func (s *Submitter) submitDirect(ctx context.Context, best SuccessfulCall, summary string, account common.Address) (common.Hash, error) {
	nonce, err := s.client.PendingNonceAt(ctx, account)
	if err != nil {
		return common.Hash{}, &SubmissionError{Err: fmt.Errorf("get nonce: %w", err)}
	}

	gasLimit := s.gasLimit(best.GasEstimate)
	var tx *types.Transaction
	if s.cfg.Chain.EIP1559 {
		tx, err = s.dynamicFeeTx(ctx, best.Call, nonce, gasLimit)
		if err != nil {
			return common.Hash{}, &SubmissionError{Err: err}
		}
	} else {
		gasPrice, err := s.legacyGasPrice(ctx)
		if err != nil {
			return common.Hash{}, &SubmissionError{Err: err}
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &best.Call.Target,
			Value:    best.Call.Value,
			Data:     best.Call.Calldata,
		})
	}

	signed, err := s.wallet.SignTx(ctx, tx)
	if err != nil {
		return common.Hash{}, s.signError(err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, &SubmissionError{Err: fmt.Errorf("%s", userReadableError(err))}
	}

	hash := signed.Hash()
	s.store.Add(&txstate.Record{
		Hash:    hash,
		ChainID: s.cfg.Chain.ID,
		From:    account,
		Summary: summary,
	})
	imetrics.SwapsSubmitted.Inc()
	s.log.Info("swap broadcast", zap.String("hash", hash.Hex()), zap.String("summary", summary))
	return hash, nil
}

// submitRelay signs the winning call for private relay inclusion. The
// record is dispatched before the relay post: a failed or interrupted
// submission still leaves a reconcilable record behind.
func (s *Submitter) submitRelay(ctx context.Context, req SwapRequest, best SuccessfulCall, summary string, account common.Address) (common.Hash, error) {
	nonce, err := s.client.PendingNonceAt(ctx, account)
	if err != nil {
		return common.Hash{}, &SubmissionError{Err: fmt.Errorf("get nonce: %w", err)}
	}

	// Zero gas price marks the transaction as relay-only: it must not
	// compete in the public gas auction.
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: new(big.Int),
		Gas:      s.gasLimit(best.GasEstimate),
		To:       &best.Call.Target,
		Value:    best.Call.Value,
		Data:     best.Call.Calldata,
	})

	signed, err := s.wallet.SignTx(ctx, tx)
	if err != nil {
		return common.Hash{}, s.signError(err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, &SubmissionError{Err: fmt.Errorf("serialize transaction: %w", err)}
	}

	ttl := req.RelayTTL
	if ttl == 0 {
		ttl = s.cfg.RelayTTL()
	}
	payload := &txstate.RelayPayload{
		RawTransaction: raw,
		Deadline:       uint64(time.Now().Add(ttl).Unix()),
		Nonce:          nonce,
		EthTip:         req.EthTip.String(),
	}

	hash := signed.Hash()
	s.store.Add(&txstate.Record{
		Hash:    hash,
		ChainID: s.cfg.Chain.ID,
		From:    account,
		Summary: summary,
		Relay:   payload,
	})
	imetrics.SwapsSubmitted.Inc()

	if err := s.publisher.SubmitTx(ctx, raw, payload.Deadline); err != nil {
		// The record exists and the tracker re-posts every block; a failed
		// first submission is not fatal.
		s.log.Warn("relay submission failed", zap.String("hash", hash.Hex()), zap.Error(err))
	}
	s.log.Info("swap packaged for relay", zap.String("hash", hash.Hex()),
		zap.Uint64("deadline", payload.Deadline), zap.String("summary", summary))
	return hash, nil
}

// Cancel asks the relay to drop a pending transaction and finalizes the
// record with the cancellation sentinel. This is optimistic: the relay
// acknowledges receipt of the cancel, not that inclusion is impossible.
func (s *Submitter) Cancel(ctx context.Context, hash common.Hash) error {
	rec, ok := s.store.Get(s.cfg.Chain.ID, hash)
	if !ok {
		return fmt.Errorf("unknown transaction %s", hash.Hex())
	}
	if rec.Relay == nil {
		return fmt.Errorf("transaction %s was not relayed, cannot cancel", hash.Hex())
	}
	if rec.Receipt != nil {
		return fmt.Errorf("transaction %s already finalized", hash.Hex())
	}

	if err := s.publisher.CancelTx(ctx, rec.Relay.RawTransaction); err != nil {
		return err
	}
	s.store.Finalize(s.cfg.Chain.ID, hash, txstate.CancellationReceipt())
	s.log.Info("transaction cancelled via relay", zap.String("hash", hash.Hex()))
	return nil
}

func (s *Submitter) signError(err error) error {
	if errors.Is(err, wallet.ErrRejected) {
		return ErrRejected
	}
	return &SubmissionError{Err: err}
}

// gasLimit grows the estimate by a 10% safety margin, bounded by the
// configured cap when one is set.
func (s *Submitter) gasLimit(estimate *big.Int) uint64 {
	withMargin := new(big.Int).Mul(estimate, big.NewInt(bipsBase+1000))
	withMargin.Div(withMargin, big.NewInt(bipsBase))
	limit := withMargin.Uint64()
	if max := s.cfg.Chain.GasLimitCap; max > 0 && limit > max {
		limit = max
	}
	return limit
}

func (s *Submitter) legacyGasPrice(ctx context.Context) (*big.Int, error) {
	if wei := s.cfg.Chain.LegacyGasPriceWei; wei > 0 {
		return new(big.Int).SetUint64(wei), nil
	}
	price, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	return price, nil
}

func (s *Submitter) dynamicFeeTx(ctx context.Context, call CandidateCall, nonce, gasLimit uint64) (*types.Transaction, error) {
	gasTipCap, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil || header.BaseFee == nil {
		return nil, fmt.Errorf("get header/base fee: %w", err)
	}
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(header.BaseFee, big.NewInt(2)),
		gasTipCap,
	)
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(s.cfg.Chain.ID),
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &call.Target,
		Value:     call.Value,
		Data:      call.Calldata,
	}), nil
}

func summarize(t *Trade, account, recipient common.Address, mode RoutingMode) string {
	base := fmt.Sprintf("Swap %s %s for %s %s",
		t.InputAmount.ToSignificant(4), t.InputAmount.Token.Symbol,
		t.OutputAmount.ToSignificant(4), t.OutputAmount.Token.Symbol)
	if recipient != account {
		base += " to " + shortenAddress(recipient)
	}
	if mode == RouteRelay {
		base += " via relay"
	}
	return base
}

func shortenAddress(a common.Address) string {
	s := a.Hex()
	return s[:6] + "..." + s[len(s)-4:]
}
