package txstate

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// StatusCancelled is the synthetic receipt status written after a relay
// cancellation. It never occurs on chain, which keeps it distinguishable
// from a real failure (0) or success (1).
const StatusCancelled = 1337

// Receipt carries the subset of a transaction receipt this package stores.
type Receipt struct {
	To               common.Address `json:"to"`
	From             common.Address `json:"from"`
	ContractAddress  common.Address `json:"contractAddress"`
	TransactionIndex uint           `json:"transactionIndex"`
	BlockHash        common.Hash    `json:"blockHash"`
	TransactionHash  common.Hash    `json:"transactionHash"`
	BlockNumber      uint64         `json:"blockNumber"`
	Status           uint64         `json:"status"`
}

// CancellationReceipt is the synthetic receipt written by an optimistic
// relay cancel.
func CancellationReceipt() *Receipt {
	return &Receipt{Status: StatusCancelled}
}

// RelayPayload is the privately relayed form of a signed transaction.
type RelayPayload struct {
	RawTransaction hexutil.Bytes `json:"rawTransaction"`
	Deadline       uint64        `json:"deadline"` // unix seconds
	Nonce          uint64        `json:"nonce"`
	EthTip         string        `json:"ethTip"` // wei, decimal string
}

// Record tracks one submitted transaction from signing to its terminal
// receipt. The hash is assigned at signing time and never changes; the
// receipt, once set, is terminal.
type Record struct {
	Hash             common.Hash
	ChainID          uint64
	From             common.Address
	Summary          string
	AddedTime        time.Time
	LastCheckedBlock uint64 // 0 means never checked
	Relay            *RelayPayload
	Receipt          *Receipt
}

// PendingFor reports how long the record has been waiting for a receipt.
func (r *Record) PendingFor(now time.Time) time.Duration {
	return now.Sub(r.AddedTime)
}
