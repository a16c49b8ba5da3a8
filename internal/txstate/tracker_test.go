package txstate

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShouldCheck(t *testing.T) {
	now := time.Now()
	pendingFor := func(d time.Duration, lastChecked uint64, relay bool) *Record {
		rec := &Record{AddedTime: now.Add(-d), LastCheckedBlock: lastChecked}
		if relay {
			rec.Relay = &RelayPayload{}
		}
		return rec
	}

	cases := []struct {
		name    string
		rec     *Record
		current uint64
		want    bool
	}{
		{"never checked", pendingFor(2*time.Hour, 0, false), 100, true},
		{"finalized", &Record{LastCheckedBlock: 0, Receipt: &Receipt{Status: 1}}, 100, false},
		{"relay new block", pendingFor(2*time.Hour, 99, true), 100, true},
		{"relay same block", pendingFor(time.Minute, 100, true), 100, false},
		{"fresh every block", pendingFor(2*time.Minute, 99, false), 100, true},
		{"stale two blocks", pendingFor(10*time.Minute, 98, false), 100, false},
		{"stale three blocks", pendingFor(10*time.Minute, 97, false), 100, true},
		{"old nine blocks", pendingFor(61*time.Minute, 91, false), 100, false},
		{"old ten blocks", pendingFor(61*time.Minute, 90, false), 100, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ShouldCheck(now, c.rec, c.current), c.name)
	}
}

type fakeReceipts struct {
	mu       sync.Mutex
	receipts map[common.Hash]*types.Receipt
}

func (f *fakeReceipts) set(hash common.Hash, r *types.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipts == nil {
		f.receipts = make(map[common.Hash]*types.Receipt)
	}
	f.receipts[hash] = r
}

func (f *fakeReceipts) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

type fakePoster struct {
	mu     sync.Mutex
	blocks []uint64
	raws   []hexutil.Bytes
}

func (f *fakePoster) PostBundle(_ context.Context, rawTx hexutil.Bytes, targetBlock uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raws = append(f.raws, rawTx)
	f.blocks = append(f.blocks, targetBlock)
	return nil
}

func TestTracker_RelayLifecycle(t *testing.T) {
	const chainID = 1
	hash := common.HexToHash("0xabc1")
	raw := hexutil.Bytes{0xf8, 0x01, 0x02}

	store := NewStore()
	store.Add(&Record{
		Hash:    hash,
		ChainID: chainID,
		Summary: "Swap 1 TOKA for 2 TOKB via relay",
		Relay:   &RelayPayload{RawTransaction: raw, Deadline: uint64(time.Now().Add(time.Hour).Unix())},
	})

	receipts := &fakeReceipts{}
	poster := &fakePoster{}
	var notes []Notification
	tracker := NewTracker(chainID, store, receipts, poster, func(n Notification) {
		notes = append(notes, n)
	}, zap.NewNop())

	ctx := context.Background()
	for block := uint64(1); block <= 5; block++ {
		tracker.OnNewBlock(ctx, block)
		rec, _ := store.Get(chainID, hash)
		assert.Equal(t, block, rec.LastCheckedBlock)
	}
	// While pending, the bundle is re-posted for the next block every time.
	require.Equal(t, []uint64{2, 3, 4, 5, 6}, poster.blocks)
	for _, posted := range poster.raws {
		assert.Equal(t, raw, posted)
	}

	receipts.set(hash, &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: big.NewInt(6),
	})
	tracker.OnNewBlock(ctx, 6)

	rec, _ := store.Get(chainID, hash)
	require.NotNil(t, rec.Receipt)
	assert.Equal(t, uint64(1), rec.Receipt.Status)
	assert.Equal(t, uint64(6), rec.Receipt.BlockNumber)
	assert.Equal(t, uint64(5), rec.LastCheckedBlock, "a finalized record is not re-marked")

	require.Len(t, notes, 1)
	assert.Equal(t, hash, notes[0].Hash)
	assert.True(t, notes[0].Success)
	assert.Contains(t, notes[0].Summary, "via relay")

	// Nothing further happens once finalized.
	tracker.OnNewBlock(ctx, 7)
	assert.Len(t, poster.blocks, 5)
	assert.Len(t, notes, 1)
}

func TestTracker_FailedReceiptNotifiesFailure(t *testing.T) {
	const chainID = 1
	hash := common.HexToHash("0xabc2")

	store := NewStore()
	store.Add(&Record{Hash: hash, ChainID: chainID, Summary: "Swap 1 TOKA for 2 TOKB"})

	receipts := &fakeReceipts{}
	receipts.set(hash, &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: hash, BlockNumber: big.NewInt(9)})

	var notes []Notification
	tracker := NewTracker(chainID, store, receipts, nil, func(n Notification) {
		notes = append(notes, n)
	}, zap.NewNop())

	tracker.OnNewBlock(context.Background(), 9)

	rec, _ := store.Get(chainID, hash)
	require.NotNil(t, rec.Receipt)
	assert.Equal(t, uint64(0), rec.Receipt.Status)
	require.Len(t, notes, 1)
	assert.False(t, notes[0].Success)
}
