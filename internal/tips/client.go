package tips

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTiers is the fallback tip table, wei per tier, used whenever the
// oracle is unreachable.
var DefaultTiers = map[string]string{
	"immediate": "2000000000000",
	"rapid":     "800000000000",
	"fast":      "300000000000",
	"standard":  "140000000000",
	"slow":      "100000000000",
	"slower":    "70000000000",
	"slowest":   "60000000000",
}

// Client fetches miner-tip tiers and competitive gas prices from the
// oracle endpoints. Both calls degrade to defaults instead of failing:
// tip selection is advisory configuration, never a hard dependency.
type Client struct {
	tipsURL string
	gasURL  string
	httpc   *http.Client
	log     *zap.Logger
}

func New(tipsURL, gasURL string, log *zap.Logger) *Client {
	return &Client{
		tipsURL: tipsURL,
		gasURL:  gasURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Tiers returns the current tip ladder, falling back to DefaultTiers on
// any transport or decode failure.
func (c *Client) Tiers(ctx context.Context) map[string]string {
	var payload struct {
		Data map[string]string `json:"data"`
	}
	if err := c.getJSON(ctx, c.tipsURL, &payload); err != nil || len(payload.Data) == 0 {
		c.log.Debug("tip oracle unavailable, using defaults", zap.Error(err))
		out := make(map[string]string, len(DefaultTiers))
		for k, v := range DefaultTiers {
			out[k] = v
		}
		return out
	}
	return payload.Data
}

// GasPrice returns the oracle's wei price for a quantile ("min", "q10",
// "q25", "median", "q75", "q90" or "max"), or the default standard tier
// when the oracle cannot be reached.
func (c *Client) GasPrice(ctx context.Context, quantile string) *big.Int {
	if quantile == "" {
		quantile = "median"
	}
	var payload struct {
		EffectiveGasPrice map[string]string `json:"effectiveGasPrice"`
	}
	if err := c.getJSON(ctx, c.gasURL, &payload); err == nil {
		if raw, ok := payload.EffectiveGasPrice[quantile]; ok {
			if price, ok := new(big.Int).SetString(raw, 10); ok {
				c.log.Debug("using oracle gas price",
					zap.String("quantile", quantile), zap.String("wei", raw))
				return price
			}
		}
	}
	c.log.Debug("gas oracle unavailable, using default", zap.String("quantile", quantile))
	fallback, _ := new(big.Int).SetString(DefaultTiers["standard"], 10)
	return fallback
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	if url == "" {
		return fmt.Errorf("oracle URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
