package swap

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/archerdao/archerswap/internal/config"
	"github.com/archerdao/archerswap/internal/txstate"
	"github.com/archerdao/archerswap/internal/wallet"
)

// Hardhat's first development account.
const testPK = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeClient struct {
	gas     uint64
	gasErr  error
	callErr error
	nonce   uint64
	sent    []*types.Transaction
	sendErr error
}

func (f *fakeClient) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	return f.gas, f.gasErr
}

func (f *fakeClient) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return nil, f.callErr
}

func (f *fakeClient) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeClient) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_500_000_000), nil
}

func (f *fakeClient) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(20_000_000_000)}, nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return f.sendErr
}

// fakeRelay checks at submit time whether the record already exists, so
// tests can prove the record-first ordering.
type fakeRelay struct {
	store          *txstate.Store
	chainID        uint64
	submitErr      error
	submitted      []hexutil.Bytes
	deadlines      []uint64
	cancelled      []hexutil.Bytes
	recordAtSubmit bool
}

func (f *fakeRelay) SubmitTx(_ context.Context, rawTx hexutil.Bytes, deadline uint64) error {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(rawTx); err == nil {
		_, f.recordAtSubmit = f.store.Get(f.chainID, tx.Hash())
	}
	f.submitted = append(f.submitted, rawTx)
	f.deadlines = append(f.deadlines, deadline)
	return f.submitErr
}

func (f *fakeRelay) CancelTx(_ context.Context, rawTx hexutil.Bytes) error {
	f.cancelled = append(f.cancelled, rawTx)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Chain.ID = 1
	cfg.Chain.LegacyGasPriceWei = 2_000_000_000
	cfg.Routers.Underlying = testRouter.Hex()
	cfg.Routers.Relay = testTipRouter.Hex()
	cfg.Relay.TTLSeconds = 180
	cfg.Swap.SlippageBps = 50
	cfg.Swap.DeadlineSeconds = 1200
	return cfg
}

func testSubmitter(t *testing.T, cfg *config.Config, ec *fakeClient, pub relayPublisher) (*Submitter, *txstate.Store) {
	t.Helper()
	w, err := wallet.NewLocalWallet(testPK, new(big.Int).SetUint64(cfg.Chain.ID))
	require.NoError(t, err)
	store := txstate.NewStore()
	sub, err := NewSubmitter(cfg, ec, w, store, pub, zap.NewNop())
	require.NoError(t, err)
	return sub, store
}

func TestSwap_DirectLegacy(t *testing.T) {
	cfg := testConfig()
	ec := &fakeClient{gas: 150_000, nonce: 7}
	sub, store := testSubmitter(t, cfg, ec, nil)

	hash, err := sub.Swap(context.Background(), SwapRequest{Trade: testTrade(ExactInput)})
	require.NoError(t, err)
	require.Len(t, ec.sent, 1)

	tx := ec.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, testRouter, *tx.To())
	assert.Equal(t, big.NewInt(2_000_000_000), tx.GasPrice())
	// 10% margin on the estimate.
	assert.Equal(t, uint64(165_000), tx.Gas())

	rec, ok := store.Get(cfg.Chain.ID, hash)
	require.True(t, ok)
	assert.Equal(t, "Swap 1.234 TOKA for 5.678 TOKB", rec.Summary)
	assert.Nil(t, rec.Relay)
}

func TestSwap_GasLimitCap(t *testing.T) {
	cfg := testConfig()
	cfg.Chain.GasLimitCap = 160_000
	ec := &fakeClient{gas: 150_000}
	sub, _ := testSubmitter(t, cfg, ec, nil)

	_, err := sub.Swap(context.Background(), SwapRequest{Trade: testTrade(ExactInput)})
	require.NoError(t, err)
	require.Len(t, ec.sent, 1)
	assert.Equal(t, uint64(160_000), ec.sent[0].Gas())
}

func TestSwap_RelayRecordBeforePublish(t *testing.T) {
	cfg := testConfig()
	ec := &fakeClient{gas: 200_000, nonce: 3}
	store := txstate.NewStore()
	pub := &fakeRelay{store: store, chainID: cfg.Chain.ID}

	w, err := wallet.NewLocalWallet(testPK, new(big.Int).SetUint64(cfg.Chain.ID))
	require.NoError(t, err)
	sub, err := NewSubmitter(cfg, ec, w, store, pub, zap.NewNop())
	require.NoError(t, err)

	before := time.Now()
	hash, err := sub.Swap(context.Background(), SwapRequest{
		Trade:  testTrade(ExactInput),
		Mode:   RouteRelay,
		EthTip: big.NewInt(10_000_000_000_000_000),
	})
	require.NoError(t, err)
	require.Len(t, pub.submitted, 1)

	assert.True(t, pub.recordAtSubmit, "record must exist before the relay post")
	assert.Empty(t, ec.sent, "relay transactions are never broadcast")

	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(pub.submitted[0]))
	assert.Equal(t, hash, tx.Hash())
	assert.Zero(t, tx.GasPrice().Sign(), "relay transactions carry a zero gas price")
	assert.Equal(t, testTipRouter, *tx.To())

	rec, ok := store.Get(cfg.Chain.ID, hash)
	require.True(t, ok)
	require.NotNil(t, rec.Relay)
	assert.Equal(t, "10000000000000000", rec.Relay.EthTip)
	assert.Equal(t, uint64(3), rec.Relay.Nonce)
	assert.Equal(t, rec.Relay.Deadline, pub.deadlines[0])
	wantDeadline := uint64(before.Add(cfg.RelayTTL()).Unix())
	assert.InDelta(t, wantDeadline, rec.Relay.Deadline, 2)
	assert.Contains(t, rec.Summary, "via relay")
}

func TestSwap_RelayPublishFailureIsNotFatal(t *testing.T) {
	cfg := testConfig()
	ec := &fakeClient{gas: 200_000}
	store := txstate.NewStore()
	pub := &fakeRelay{store: store, chainID: cfg.Chain.ID, submitErr: errors.New("relay unreachable")}

	w, err := wallet.NewLocalWallet(testPK, new(big.Int).SetUint64(cfg.Chain.ID))
	require.NoError(t, err)
	sub, err := NewSubmitter(cfg, ec, w, store, pub, zap.NewNop())
	require.NoError(t, err)

	hash, err := sub.Swap(context.Background(), SwapRequest{
		Trade:  testTrade(ExactInput),
		Mode:   RouteRelay,
		EthTip: big.NewInt(10_000_000_000_000_000),
	})
	require.NoError(t, err, "the tracker re-posts, a failed first post is not fatal")
	_, ok := store.Get(cfg.Chain.ID, hash)
	assert.True(t, ok)
}

func TestSwap_RelayWithoutPublisher(t *testing.T) {
	cfg := testConfig()
	sub, _ := testSubmitter(t, cfg, &fakeClient{gas: 200_000}, nil)

	_, err := sub.Swap(context.Background(), SwapRequest{
		Trade:  testTrade(ExactInput),
		Mode:   RouteRelay,
		EthTip: big.NewInt(1),
	})
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestSwap_EstimationFailureAborts(t *testing.T) {
	cfg := testConfig()
	ec := &fakeClient{
		gasErr:  errors.New("always failing transaction"),
		callErr: errors.New("execution reverted: UniswapV2Router: EXPIRED"),
	}
	sub, store := testSubmitter(t, cfg, ec, nil)

	_, err := sub.Swap(context.Background(), SwapRequest{Trade: testTrade(ExactInput)})
	var estErr *EstimationError
	require.ErrorAs(t, err, &estErr)
	assert.Contains(t, estErr.Reason, "deadline has passed")
	assert.Empty(t, ec.sent)
	assert.Empty(t, store.All(cfg.Chain.ID))
}

func TestSwap_WalletRejection(t *testing.T) {
	cfg := testConfig()
	ec := &fakeClient{gas: 150_000}
	w := wallet.NewRawSignWallet(testAccount, big.NewInt(1), func(_ context.Context, _ []byte) ([]byte, error) {
		return nil, wallet.ErrRejected
	})
	sub, err := NewSubmitter(cfg, ec, w, txstate.NewStore(), nil, zap.NewNop())
	require.NoError(t, err)

	_, err = sub.Swap(context.Background(), SwapRequest{Trade: testTrade(ExactInput)})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Empty(t, ec.sent)
}

func TestCancel(t *testing.T) {
	cfg := testConfig()
	ec := &fakeClient{gas: 200_000}
	store := txstate.NewStore()
	pub := &fakeRelay{store: store, chainID: cfg.Chain.ID}

	w, err := wallet.NewLocalWallet(testPK, new(big.Int).SetUint64(cfg.Chain.ID))
	require.NoError(t, err)
	sub, err := NewSubmitter(cfg, ec, w, store, pub, zap.NewNop())
	require.NoError(t, err)

	hash, err := sub.Swap(context.Background(), SwapRequest{
		Trade:  testTrade(ExactInput),
		Mode:   RouteRelay,
		EthTip: big.NewInt(10_000_000_000_000_000),
	})
	require.NoError(t, err)

	require.NoError(t, sub.Cancel(context.Background(), hash))
	require.Len(t, pub.cancelled, 1)

	rec, _ := store.Get(cfg.Chain.ID, hash)
	require.NotNil(t, rec.Receipt)
	assert.Equal(t, uint64(txstate.StatusCancelled), rec.Receipt.Status)

	// A finalized record cannot be cancelled again.
	assert.Error(t, sub.Cancel(context.Background(), hash))
	// Nor can an unknown hash.
	assert.Error(t, sub.Cancel(context.Background(), common.HexToHash("0xdead")))
}
