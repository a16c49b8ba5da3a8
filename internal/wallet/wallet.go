package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrRejected is returned by a wallet when its owner declined to sign.
var ErrRejected = errors.New("signing rejected by wallet owner")

// Wallet signs transactions for one account. Implementations either sign
// natively or fall back to raw-digest signing; callers never need to know
// which.
type Wallet interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// LocalWallet holds an in-process secp256k1 key and signs natively.
type LocalWallet struct {
	pk     *ecdsa.PrivateKey
	addr   common.Address
	signer types.Signer
}

func NewLocalWallet(pkHex string, chainID *big.Int) (*LocalWallet, error) {
	pk, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		return nil, fmt.Errorf("bad private key: %w", err)
	}
	return &LocalWallet{
		pk:     pk,
		addr:   crypto.PubkeyToAddress(pk.PublicKey),
		signer: types.LatestSignerForChainID(chainID),
	}, nil
}

func (w *LocalWallet) Address() common.Address { return w.addr }

func (w *LocalWallet) SignTx(_ context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, w.signer, w.pk)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// RawSigner produces a 65-byte [R || S || V] signature over a digest.
type RawSigner func(ctx context.Context, digest []byte) ([]byte, error)

// RawSignWallet is the fallback for wallets without a native
// transaction-signing path: the transaction sighash is signed out of band
// and stitched back onto the transaction.
type RawSignWallet struct {
	addr   common.Address
	signer types.Signer
	sign   RawSigner
}

func NewRawSignWallet(addr common.Address, chainID *big.Int, sign RawSigner) *RawSignWallet {
	return &RawSignWallet{
		addr:   addr,
		signer: types.LatestSignerForChainID(chainID),
		sign:   sign,
	}
}

func (w *RawSignWallet) Address() common.Address { return w.addr }

func (w *RawSignWallet) SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	digest := w.signer.Hash(tx)
	sig, err := w.sign(ctx, digest.Bytes())
	if err != nil {
		return nil, err
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("raw signer returned %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	signed, err := tx.WithSignature(w.signer, sig)
	if err != nil {
		return nil, fmt.Errorf("apply signature: %w", err)
	}
	return signed, nil
}
