package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HeadSource emits new block numbers. The tracker only needs the number,
// not the full header.
type HeadSource interface {
	Subscribe(ctx context.Context) (<-chan uint64, error)
}

// WSHeads subscribes to newHeads over a websocket JSON-RPC endpoint.
type WSHeads struct {
	URL    string
	Dialer *websocket.Dialer
	conn   *websocket.Conn
	mu     sync.Mutex
	log    *zap.Logger
}

func NewWSHeads(url string, log *zap.Logger) *WSHeads {
	return &WSHeads{
		URL: url,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		log: log,
	}
}

func (w *WSHeads) connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return nil
	}
	c, _, err := w.Dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return err
	}
	w.conn = c
	_ = w.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	return nil
}

func (w *WSHeads) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}

func (w *WSHeads) Subscribe(ctx context.Context) (<-chan uint64, error) {
	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	sub := struct {
		ID      int      `json:"id"`
		JSONRPC string   `json:"jsonrpc"`
		Method  string   `json:"method"`
		Params  []string `json:"params"`
	}{ID: 1, JSONRPC: "2.0", Method: "eth_subscribe", Params: []string{"newHeads"}}

	if err := w.conn.WriteJSON(sub); err != nil {
		return nil, fmt.Errorf("subscribe newHeads: %w", err)
	}

	out := make(chan uint64, 64)

	go func() {
		defer close(out)
		defer w.Close()

		type notification struct {
			Method string `json:"method"`
			Params struct {
				Result struct {
					Number string `json:"number"`
				} `json:"result"`
			} `json:"params"`
		}

		var last uint64
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, data, err := w.conn.ReadMessage()
			if err != nil {
				w.log.Warn("newHeads stream closed", zap.Error(err))
				return
			}
			_ = w.conn.SetReadDeadline(time.Now().Add(90 * time.Second))

			var n notification
			if err := json.Unmarshal(data, &n); err != nil || n.Method != "eth_subscription" {
				continue
			}
			num, err := hexutil.DecodeUint64(n.Params.Result.Number)
			if err != nil || num <= last {
				continue
			}
			last = num

			select {
			case out <- num:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

type blockNumberReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// PolledHeads is the HTTP fallback when no websocket endpoint is
// configured: it polls the block number at a fixed interval and emits
// only increases.
type PolledHeads struct {
	ec       blockNumberReader
	interval time.Duration
	log      *zap.Logger
}

func NewPolledHeads(ec blockNumberReader, interval time.Duration, log *zap.Logger) *PolledHeads {
	return &PolledHeads{ec: ec, interval: interval, log: log}
}

func (p *PolledHeads) Subscribe(ctx context.Context) (<-chan uint64, error) {
	out := make(chan uint64, 64)

	go func() {
		defer close(out)
		t := time.NewTicker(p.interval)
		defer t.Stop()

		var last uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				num, err := p.ec.BlockNumber(ctx)
				if err != nil {
					p.log.Debug("block number poll failed", zap.Error(err))
					continue
				}
				if num <= last {
					continue
				}
				last = num
				select {
				case out <- num:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
