package swap

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ABI for the underlying V2-style router.
const routerABI = `[
    {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
    {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokensSupportingFeeOnTransferTokens","outputs":[],"stateMutability":"nonpayable","type":"function"},
    {"inputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint256","name":"amountInMax","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapTokensForExactTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

// Minimal ABI for the tip router. The underlying router rides along as the
// first argument and the miner tip as the call value.
const tipRouterABI = `[
    {"inputs":[{"internalType":"address","name":"router","type":"address"},{"components":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"internalType":"struct IArcherSwapRouter.Trade","name":"trade","type":"tuple"}],"name":"swapExactTokensForTokensAndTipAmount","outputs":[],"stateMutability":"payable","type":"function"},
    {"inputs":[{"internalType":"address","name":"router","type":"address"},{"components":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint256","name":"amountInMax","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"internalType":"struct IArcherSwapRouter.Trade","name":"trade","type":"tuple"}],"name":"swapTokensForExactTokensAndTipAmount","outputs":[],"stateMutability":"payable","type":"function"}
]`

type RoutingMode int

const (
	RouteDirect RoutingMode = iota
	RouteRelay
)

// CandidateCall is one possible on-chain encoding of a trade. Immutable
// once built; the slice order is the selector's priority order.
type CandidateCall struct {
	Target   common.Address
	Calldata []byte
	Value    *big.Int
}

type CallParams struct {
	Trade            *Trade
	SlippageBps      int
	Account          common.Address
	Recipient        common.Address
	DeadlineUnix     uint64
	Mode             RoutingMode
	EthTip           *big.Int
	UnderlyingRouter common.Address
	RelayRouter      common.Address
}

type Builder struct {
	rabi abi.ABI
	tabi abi.ABI
}

func NewBuilder() (*Builder, error) {
	rabi, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	tabi, err := abi.JSON(strings.NewReader(tipRouterABI))
	if err != nil {
		return nil, fmt.Errorf("parse tip router abi: %w", err)
	}
	return &Builder{rabi: rabi, tabi: tabi}, nil
}

// BuildSwapCalls produces the ordered candidate list for a trade. A nil,
// nil return means some prerequisite is missing and no call can be built
// yet; that is not a fault.
func (b *Builder) BuildSwapCalls(p CallParams) ([]CandidateCall, error) {
	if !p.ready() {
		return nil, nil
	}

	deadline := new(big.Int).SetUint64(p.DeadlineUnix)

	if p.Mode == RouteRelay {
		tradeArg := relayTradeTuple(p.Trade, p.SlippageBps, p.Recipient, deadline)
		method := "swapExactTokensForTokensAndTipAmount"
		if p.Trade.Type == ExactOutput {
			method = "swapTokensForExactTokensAndTipAmount"
		}
		data, err := b.tabi.Pack(method, p.UnderlyingRouter, tradeArg)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		return []CandidateCall{{
			Target:   p.RelayRouter,
			Calldata: data,
			Value:    new(big.Int).Set(p.EthTip),
		}}, nil
	}

	var calls []CandidateCall
	if p.Trade.Type == ExactInput {
		data, err := b.rabi.Pack("swapExactTokensForTokens",
			p.Trade.InputAmount.Raw, p.Trade.MinimumAmountOut(p.SlippageBps),
			p.Trade.Path, p.Recipient, deadline)
		if err != nil {
			return nil, fmt.Errorf("pack swapExactTokensForTokens: %w", err)
		}
		calls = append(calls, CandidateCall{Target: p.UnderlyingRouter, Calldata: data, Value: big.NewInt(0)})

		// Second candidate assumes the token charges a fee on transfer.
		data, err = b.rabi.Pack("swapExactTokensForTokensSupportingFeeOnTransferTokens",
			p.Trade.InputAmount.Raw, p.Trade.MinimumAmountOut(p.SlippageBps),
			p.Trade.Path, p.Recipient, deadline)
		if err != nil {
			return nil, fmt.Errorf("pack swapExactTokensForTokensSupportingFeeOnTransferTokens: %w", err)
		}
		calls = append(calls, CandidateCall{Target: p.UnderlyingRouter, Calldata: data, Value: big.NewInt(0)})
	} else {
		data, err := b.rabi.Pack("swapTokensForExactTokens",
			p.Trade.OutputAmount.Raw, p.Trade.MaximumAmountIn(p.SlippageBps),
			p.Trade.Path, p.Recipient, deadline)
		if err != nil {
			return nil, fmt.Errorf("pack swapTokensForExactTokens: %w", err)
		}
		calls = append(calls, CandidateCall{Target: p.UnderlyingRouter, Calldata: data, Value: big.NewInt(0)})
	}
	return calls, nil
}

func (p *CallParams) ready() bool {
	if p.Trade == nil || len(p.Trade.Path) < 2 {
		return false
	}
	if p.Account == (common.Address{}) || p.Recipient == (common.Address{}) {
		return false
	}
	if p.DeadlineUnix == 0 {
		return false
	}
	if p.UnderlyingRouter == (common.Address{}) {
		return false
	}
	if p.Mode == RouteRelay && (p.RelayRouter == (common.Address{}) || p.EthTip == nil) {
		return false
	}
	return true
}

func relayTradeTuple(t *Trade, slippageBps int, recipient common.Address, deadline *big.Int) interface{} {
	if t.Type == ExactOutput {
		return struct {
			AmountOut   *big.Int
			AmountInMax *big.Int
			Path        []common.Address
			To          common.Address
			Deadline    *big.Int
		}{
			AmountOut:   t.OutputAmount.Raw,
			AmountInMax: t.MaximumAmountIn(slippageBps),
			Path:        t.Path,
			To:          recipient,
			Deadline:    deadline,
		}
	}
	return struct {
		AmountIn     *big.Int
		AmountOutMin *big.Int
		Path         []common.Address
		To           common.Address
		Deadline     *big.Int
	}{
		AmountIn:     t.InputAmount.Raw,
		AmountOutMin: t.MinimumAmountOut(slippageBps),
		Path:         t.Path,
		To:           recipient,
		Deadline:     deadline,
	}
}
