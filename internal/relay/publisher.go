package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	imetrics "github.com/archerdao/archerswap/internal/metrics"
)

// Identity is the ephemeral key pair that authenticates bundle re-posts.
// It is generated once per publisher, never touches funds, and exists
// only so the relay can rate-limit callers.
type Identity struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewIdentity() (*Identity, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate bundle identity: %w", err)
	}
	return &Identity{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// SignPayload produces the X-Flashbots-Signature header value for a body:
// the EIP-191 signature over the hex keccak hash of the payload, prefixed
// with the signer address.
func (id *Identity) SignPayload(body []byte) (string, error) {
	hashed := crypto.Keccak256Hash(body).Hex()
	sig, err := crypto.Sign(accounts.TextHash([]byte(hashed)), id.key)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return id.addr.Hex() + ":" + hexutil.Encode(sig), nil
}

// Publisher posts signed transactions to the private relay. Callers that
// already hold a transaction record treat every method here as advisory:
// errors are for logs and metrics, the record stays authoritative.
type Publisher struct {
	uri      string
	apiKey   string
	httpc    *http.Client
	identity *Identity
	maxTries uint
	log      *zap.Logger
}

func NewPublisher(uri, apiKey string, maxTries int, log *zap.Logger) (*Publisher, error) {
	if uri == "" {
		return nil, fmt.Errorf("relay URI is not configured")
	}
	identity, err := NewIdentity()
	if err != nil {
		return nil, err
	}
	if maxTries <= 0 {
		maxTries = 1
	}
	return &Publisher{
		uri:      uri,
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		identity: identity,
		maxTries: uint(maxTries),
		log:      log,
	}, nil
}

type relayRequest struct {
	Method   string `json:"method"`
	Tx       string `json:"tx"`
	Deadline string `json:"deadline,omitempty"`
}

// SubmitTx posts a freshly signed transaction for private inclusion.
// Transient failures are retried with exponential backoff; the relay
// treats repeated submissions of the same transaction as idempotent.
func (p *Publisher) SubmitTx(ctx context.Context, rawTx hexutil.Bytes, deadline uint64) error {
	body, err := json.Marshal(relayRequest{
		Method:   "archer_submitTx",
		Tx:       rawTx.String(),
		Deadline: strconv.FormatUint(deadline, 10),
	})
	if err != nil {
		return fmt.Errorf("marshal submit request: %w", err)
	}

	op := func() (struct{}, error) {
		return struct{}{}, p.post(ctx, body, p.authHeader())
	}
	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(p.maxTries),
	)
	if err != nil {
		imetrics.RelayErrors.Inc()
		return fmt.Errorf("relay submit: %w", err)
	}
	imetrics.RelayPosts.Inc()
	p.log.Info("transaction submitted to relay", zap.Uint64("deadline", deadline))
	return nil
}

// CancelTx asks the relay to stop including the transaction. This is a
// request, not a guarantee: the underlying transaction may still be
// minable, and callers finalize their record optimistically.
func (p *Publisher) CancelTx(ctx context.Context, rawTx hexutil.Bytes) error {
	body, err := json.Marshal(relayRequest{
		Method: "archer_cancelTx",
		Tx:     rawTx.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal cancel request: %w", err)
	}
	if err := p.post(ctx, body, p.authHeader()); err != nil {
		imetrics.RelayErrors.Inc()
		return fmt.Errorf("relay cancel: %w", err)
	}
	p.log.Info("cancel posted to relay")
	return nil
}

// PostBundle re-submits a pending transaction as a bundle targeting the
// given block. Relays only consider bundles per target block, so the
// tracker calls this once per qualifying poll.
func (p *Publisher) PostBundle(ctx context.Context, rawTx hexutil.Bytes, targetBlock uint64) error {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_sendBundle",
		"params":  []string{rawTx.String(), hexutil.EncodeUint64(targetBlock)},
	})
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	sig, err := p.identity.SignPayload(body)
	if err != nil {
		return err
	}
	headers := map[string]string{"X-Flashbots-Signature": sig}
	if err := p.post(ctx, body, headers); err != nil {
		imetrics.RelayErrors.Inc()
		return fmt.Errorf("bundle re-post: %w", err)
	}
	imetrics.BundleReposts.Inc()
	p.log.Debug("bundle re-posted", zap.Uint64("target_block", targetBlock))
	return nil
}

func (p *Publisher) authHeader() map[string]string {
	if p.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": p.apiKey}
}

func (p *Publisher) post(ctx context.Context, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uri, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned %s", resp.Status)
	}
	return nil
}
