package txstate

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Store is the per-chain transaction set. The submitter is the only
// creator and the tracker the only mutator after creation; entries are
// never removed outside the explicit clear operations, so the set doubles
// as an audit history.
type Store struct {
	mu sync.RWMutex
	m  map[uint64]map[common.Hash]*Record
}

func NewStore() *Store {
	return &Store{m: make(map[uint64]map[common.Hash]*Record)}
}

// Add inserts a freshly signed transaction. Re-adding an existing hash is
// a no-op: the hash is the immutable identity of the record.
func (s *Store) Add(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.m[rec.ChainID]
	if chain == nil {
		chain = make(map[common.Hash]*Record)
		s.m[rec.ChainID] = chain
	}
	if _, exists := chain[rec.Hash]; exists {
		return
	}
	if rec.AddedTime.IsZero() {
		rec.AddedTime = time.Now()
	}
	chain[rec.Hash] = rec
}

func (s *Store) Get(chainID uint64, hash common.Hash) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m[chainID][hash]
	return rec, ok
}

// MarkChecked records that the transaction was looked up at the given
// block. The checked block never moves backwards.
func (s *Store) MarkChecked(chainID uint64, hash common.Hash, block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[chainID][hash]
	if !ok {
		return
	}
	if block > rec.LastCheckedBlock {
		rec.LastCheckedBlock = block
	}
}

// Finalize writes the terminal receipt. A receipt already present wins;
// finalization is one-shot.
func (s *Store) Finalize(chainID uint64, hash common.Hash, receipt *Receipt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[chainID][hash]
	if !ok || rec.Receipt != nil {
		return false
	}
	rec.Receipt = receipt
	return true
}

// Pending returns the records still waiting for a receipt on a chain.
func (s *Store) Pending(chainID uint64) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, rec := range s.m[chainID] {
		if rec.Receipt == nil {
			out = append(out, rec)
		}
	}
	return out
}

// All returns a chain's records newest first.
func (s *Store) All(chainID uint64) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.m[chainID]))
	for _, rec := range s.m[chainID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AddedTime.After(out[j].AddedTime)
	})
	return out
}

// Clear drops every record for a chain.
func (s *Store) Clear(chainID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, chainID)
}

// ClearHashes drops the named records only.
func (s *Store) ClearHashes(chainID uint64, hashes []common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.m[chainID]
	for _, h := range hashes {
		delete(chain, h)
	}
}
