package txstate

import (
	"context"
	"errors"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	imetrics "github.com/archerdao/archerswap/internal/metrics"
)

// ShouldCheck decides whether a pending record is due for a receipt
// lookup at the given block. Relay-bearing records are checked every
// block; everything else backs off as it goes stale.
func ShouldCheck(now time.Time, rec *Record, currentBlock uint64) bool {
	if rec.Receipt != nil {
		return false
	}
	if rec.LastCheckedBlock == 0 {
		return true
	}
	if currentBlock <= rec.LastCheckedBlock {
		return false
	}
	if rec.Relay != nil {
		return true
	}
	blocksSinceCheck := currentBlock - rec.LastCheckedBlock
	switch minutesPending := rec.PendingFor(now).Minutes(); {
	case minutesPending > 60:
		// every 10 blocks if pending for longer than an hour
		return blocksSinceCheck > 9
	case minutesPending > 5:
		// every 3 blocks if pending more than 5 minutes
		return blocksSinceCheck > 2
	default:
		return true
	}
}

type receiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// BundlePoster re-submits a raw relay transaction for a target block.
type BundlePoster interface {
	PostBundle(ctx context.Context, rawTx hexutil.Bytes, targetBlock uint64) error
}

// Notification reports a terminal receipt to whoever is watching.
type Notification struct {
	Hash    common.Hash
	Summary string
	Success bool
}

// Tracker drives the pending set from new-block events: it polls for
// receipts on due records, re-posts still-pending relay bundles and
// finalizes records as receipts arrive.
type Tracker struct {
	chainID  uint64
	store    *Store
	receipts receiptReader
	poster   BundlePoster
	notify   func(Notification)
	log      *zap.Logger
}

func NewTracker(chainID uint64, store *Store, receipts receiptReader, poster BundlePoster, notify func(Notification), log *zap.Logger) *Tracker {
	return &Tracker{
		chainID:  chainID,
		store:    store,
		receipts: receipts,
		poster:   poster,
		notify:   notify,
		log:      log,
	}
}

// OnNewBlock checks every due pending record for the block. Records are
// checked independently and concurrently; one record's lookup failure
// never affects its siblings.
func (t *Tracker) OnNewBlock(ctx context.Context, block uint64) {
	now := time.Now()
	pending := t.store.Pending(t.chainID)
	imetrics.PendingTxs.Set(float64(len(pending)))

	var wg sync.WaitGroup
	for _, rec := range pending {
		if !ShouldCheck(now, rec, block) {
			continue
		}
		wg.Add(1)
		go func(rec *Record) {
			defer wg.Done()
			t.checkRecord(ctx, rec, block)
		}(rec)
	}
	wg.Wait()
}

func (t *Tracker) checkRecord(ctx context.Context, rec *Record, block uint64) {
	imetrics.ReceiptChecks.Inc()

	receipt, err := t.receipts.TransactionReceipt(ctx, rec.Hash)
	switch {
	case err == nil && receipt != nil:
		stored := &Receipt{
			From:             rec.From,
			ContractAddress:  receipt.ContractAddress,
			TransactionIndex: receipt.TransactionIndex,
			BlockHash:        receipt.BlockHash,
			TransactionHash:  receipt.TxHash,
			Status:           receipt.Status,
		}
		if receipt.BlockNumber != nil {
			stored.BlockNumber = receipt.BlockNumber.Uint64()
		}
		if t.store.Finalize(rec.ChainID, rec.Hash, stored) {
			imetrics.TxFinalized.Inc()
			t.log.Info("transaction finalized",
				zap.String("hash", rec.Hash.Hex()),
				zap.Uint64("status", receipt.Status),
				zap.Uint64("block", stored.BlockNumber))
			if t.notify != nil {
				t.notify(Notification{
					Hash:    rec.Hash,
					Summary: rec.Summary,
					Success: receipt.Status == types.ReceiptStatusSuccessful,
				})
			}
		}

	case errors.Is(err, ethereum.NotFound) || (err == nil && receipt == nil):
		if rec.Relay != nil && t.poster != nil {
			if postErr := t.poster.PostBundle(ctx, rec.Relay.RawTransaction, block+1); postErr != nil {
				t.log.Warn("bundle re-post failed",
					zap.String("hash", rec.Hash.Hex()), zap.Error(postErr))
			}
		}
		t.store.MarkChecked(rec.ChainID, rec.Hash, block)

	default:
		t.log.Error("failed to check transaction",
			zap.String("hash", rec.Hash.Hex()), zap.Error(err))
	}
}
