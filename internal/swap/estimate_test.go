package swap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCaller struct {
	gas       uint64
	gasErr    error
	callErr   error
	callsMade int
	simsMade  int
}

func (s *stubCaller) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	s.callsMade++
	return s.gas, s.gasErr
}

func (s *stubCaller) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.simsMade++
	return nil, s.callErr
}

func TestEstimate_Success(t *testing.T) {
	ec := &stubCaller{gas: 150_000}
	e := NewEstimator(ec, zap.NewNop())

	res := e.Estimate(context.Background(), testAccount, CandidateCall{Target: testRouter})
	s, ok := res.(SuccessfulCall)
	require.True(t, ok)
	assert.Equal(t, int64(150_000), s.GasEstimate.Int64())
	assert.Zero(t, ec.simsMade, "no simulation after a clean estimate")
}

func TestEstimate_FailureSimulatesForReason(t *testing.T) {
	ec := &stubCaller{
		gasErr:  errors.New("gas required exceeds allowance"),
		callErr: errors.New("execution reverted: UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT"),
	}
	e := NewEstimator(ec, zap.NewNop())

	res := e.Estimate(context.Background(), testAccount, CandidateCall{Target: testRouter})
	f, ok := res.(FailedCall)
	require.True(t, ok)
	assert.Contains(t, f.Reason.Error(), "price movement or fee on transfer")
	assert.Equal(t, 1, ec.simsMade)
}

func TestEstimate_UnexpectedSimulationSuccess(t *testing.T) {
	ec := &stubCaller{gasErr: errors.New("out of gas")}
	e := NewEstimator(ec, zap.NewNop())

	res := e.Estimate(context.Background(), testAccount, CandidateCall{Target: testRouter})
	f, ok := res.(FailedCall)
	require.True(t, ok)
	assert.Contains(t, f.Reason.Error(), "unexpected issue with estimating the gas")
}

func TestEstimateAll_PreservesOrder(t *testing.T) {
	ec := &stubCaller{gas: 90_000}
	e := NewEstimator(ec, zap.NewNop())

	calls := []CandidateCall{
		{Target: testRouter, Calldata: []byte{1}},
		{Target: testRouter, Calldata: []byte{2}},
	}
	results := e.EstimateAll(context.Background(), testAccount, calls)
	require.Len(t, results, 2)
	for i, r := range results {
		s, ok := r.(SuccessfulCall)
		require.True(t, ok)
		assert.Equal(t, calls[i].Calldata, s.Call.Calldata)
	}
}

func TestUserReadableError(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"execution reverted: UniswapV2Router: EXPIRED", "deadline has passed"},
		{"execution reverted: UniswapV2Router: EXCESSIVE_INPUT_AMOUNT", "price movement or fee on transfer"},
		{"execution reverted: TransferHelper: TRANSFER_FROM_FAILED", "input token cannot be transferred"},
		{"execution reverted: UniswapV2: TRANSFER_FAILED", "output token cannot be transferred"},
		{"execution reverted: TF", "output token cannot be transferred"},
		{"execution reverted: UniswapV2: K", "invariant x*y=k"},
		{"execution reverted: STF", "due to price movement"},
		{"execution reverted: Too little received", "due to price movement"},
		{"execution reverted: something odd", `unknown error: "something odd"`},
		{"connection refused", "unknown error"},
	}
	for _, c := range cases {
		assert.Contains(t, userReadableError(errors.New(c.raw)), c.want, c.raw)
	}
}
