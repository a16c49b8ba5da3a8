package swap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type TradeType int

const (
	ExactInput TradeType = iota
	ExactOutput
)

type Token struct {
	Address  common.Address
	Symbol   string
	Decimals int32
}

// CurrencyAmount is a raw on-chain amount paired with its token, used for
// slippage math and display formatting.
type CurrencyAmount struct {
	Token Token
	Raw   *big.Int
}

func NewCurrencyAmount(token Token, raw *big.Int) CurrencyAmount {
	return CurrencyAmount{Token: token, Raw: new(big.Int).Set(raw)}
}

// ToSignificant renders the amount in token units rounded to the given
// number of significant digits, trailing zeros stripped.
func (a CurrencyAmount) ToSignificant(digits int32) string {
	if a.Raw == nil || a.Raw.Sign() == 0 {
		return "0"
	}
	d := decimal.NewFromBigInt(a.Raw, -a.Token.Decimals)
	abs := d.Abs()
	one := decimal.New(1, 0)
	ten := decimal.New(1, 1)
	// Exponent of the leading digit: 0 for 1..9, 1 for 10..99, -1 for 0.1..0.9.
	var exp int32
	switch {
	case abs.GreaterThanOrEqual(ten):
		for abs.GreaterThanOrEqual(ten) {
			abs = abs.Shift(-1)
			exp++
		}
	case abs.LessThan(one):
		for abs.LessThan(one) {
			abs = abs.Shift(1)
			exp--
		}
	}
	return d.Round(digits - 1 - exp).String()
}

// Trade describes the desired swap. The AMM math that produced the route
// and quoted amounts lives outside this package; the lifecycle core only
// needs the amounts, the path and the trade type.
type Trade struct {
	Type         TradeType
	InputAmount  CurrencyAmount
	OutputAmount CurrencyAmount
	Path         []common.Address
}

const bipsBase = 10_000

// MaximumAmountIn is the input amount grown by the slippage tolerance,
// meaningful for exact-output trades.
func (t *Trade) MaximumAmountIn(slippageBps int) *big.Int {
	if t.Type == ExactInput {
		return new(big.Int).Set(t.InputAmount.Raw)
	}
	v := new(big.Int).Mul(t.InputAmount.Raw, big.NewInt(int64(bipsBase+slippageBps)))
	return v.Div(v, big.NewInt(bipsBase))
}

// MinimumAmountOut is the output amount shrunk by the slippage tolerance,
// meaningful for exact-input trades.
func (t *Trade) MinimumAmountOut(slippageBps int) *big.Int {
	if t.Type == ExactOutput {
		return new(big.Int).Set(t.OutputAmount.Raw)
	}
	v := new(big.Int).Mul(t.OutputAmount.Raw, big.NewInt(int64(bipsBase-slippageBps)))
	return v.Div(v, big.NewInt(bipsBase))
}
