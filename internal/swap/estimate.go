package swap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// EstimatedSwapCall is the two-variant result of estimating one candidate:
// SuccessfulCall or FailedCall, nothing else.
type EstimatedSwapCall interface {
	estimatedSwapCall()
}

type SuccessfulCall struct {
	Call        CandidateCall
	GasEstimate *big.Int
}

type FailedCall struct {
	Call   CandidateCall
	Reason error
}

func (SuccessfulCall) estimatedSwapCall() {}
func (FailedCall) estimatedSwapCall()     {}

type ethCaller interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Estimator struct {
	ec  ethCaller
	log *zap.Logger
}

func NewEstimator(ec ethCaller, log *zap.Logger) *Estimator {
	return &Estimator{ec: ec, log: log}
}

// Estimate attempts a gas estimation for one candidate. A failed estimate
// is retried as a read-only call with identical parameters: estimation
// errors carry no revert data, the simulation surfaces the reason.
func (e *Estimator) Estimate(ctx context.Context, from common.Address, call CandidateCall) EstimatedSwapCall {
	msg := ethereum.CallMsg{
		From: from,
		To:   &call.Target,
		Data: call.Calldata,
	}
	if call.Value != nil && call.Value.Sign() > 0 {
		msg.Value = call.Value
	}

	gas, err := e.ec.EstimateGas(ctx, msg)
	if err == nil {
		return SuccessfulCall{Call: call, GasEstimate: new(big.Int).SetUint64(gas)}
	}

	e.log.Debug("gas estimate failed, trying eth_call to extract error",
		zap.String("target", call.Target.Hex()), zap.Error(err))

	if _, callErr := e.ec.CallContract(ctx, msg, nil); callErr != nil {
		return FailedCall{Call: call, Reason: fmt.Errorf("%s", userReadableError(callErr))}
	}

	e.log.Debug("unexpected successful call after failed estimate",
		zap.String("target", call.Target.Hex()))
	return FailedCall{Call: call, Reason: fmt.Errorf("unexpected issue with estimating the gas, please try again")}
}

// EstimateAll fans out over all candidates and joins before returning.
// The result slice preserves the candidate order.
func (e *Estimator) EstimateAll(ctx context.Context, from common.Address, calls []CandidateCall) []EstimatedSwapCall {
	out := make([]EstimatedSwapCall, len(calls))
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(i int, c CandidateCall) {
			defer wg.Done()
			out[i] = e.Estimate(ctx, from, c)
		}(i, c)
	}
	wg.Wait()
	return out
}

// userReadableError maps known router revert reasons onto actionable
// messages; unknown reasons pass through behind a generic prefix.
func userReadableError(err error) string {
	reason := err.Error()
	if i := strings.Index(reason, "execution reverted: "); i >= 0 {
		reason = reason[i+len("execution reverted: "):]
	}

	switch reason {
	case "UniswapV2Router: EXPIRED":
		return "the transaction could not be sent because the deadline has passed"
	case "UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT", "UniswapV2Router: EXCESSIVE_INPUT_AMOUNT":
		return "this transaction will not succeed either due to price movement or fee on transfer, try increasing your slippage tolerance"
	case "TransferHelper: TRANSFER_FROM_FAILED":
		return "the input token cannot be transferred, there may be an issue with the input token"
	case "UniswapV2: TRANSFER_FAILED", "TF":
		return "the output token cannot be transferred, there may be an issue with the output token"
	case "UniswapV2: K":
		return "the invariant x*y=k was not satisfied by the swap, one of the tokens likely has custom transfer behavior"
	case "Too little received", "Too much requested", "STF":
		return "this transaction will not succeed due to price movement, try increasing your slippage tolerance"
	default:
		return fmt.Sprintf("unknown error: %q, try increasing your slippage tolerance", reason)
	}
}
