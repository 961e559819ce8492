package asset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrNilAsset        = errors.New("asset: nil asset")
	ErrNegativeAmount  = errors.New("asset: negative amount")
	ErrTooManyDecimals = errors.New("asset: too many decimal places for asset")
)

// Amount is an immutable quantity of a token in raw units.
type Amount struct {
	raw   *big.Int
	asset *Asset
}

// NewAmount creates an Amount from raw units.
func NewAmount(a *Asset, raw *big.Int) (Amount, error) {
	if a == nil {
		return Amount{}, ErrNilAsset
	}
	if raw == nil || raw.Sign() < 0 {
		return Amount{}, ErrNegativeAmount
	}
	return Amount{raw: new(big.Int).Set(raw), asset: a}, nil
}

// Raw returns a copy of the raw value.
func (a Amount) Raw() *big.Int {
	if a.raw == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.raw)
}

// Asset returns the token.
func (a Amount) Asset() *Asset {
	return a.asset
}

// IsZero reports a zero amount.
func (a Amount) IsZero() bool {
	return a.raw == nil || a.raw.Sign() == 0
}

// ToDecimal converts to whole-token units.
func (a Amount) ToDecimal() decimal.Decimal {
	if a.raw == nil || a.asset == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.raw, -int32(a.asset.Decimals()))
}

// ToFloat64 converts to whole-token units as float64.
func (a Amount) ToFloat64() float64 {
	if a.asset == nil {
		return 0
	}
	return RawToFloat(a.raw, a.asset.Decimals())
}

// String returns e.g. "1.5 WETH".
func (a Amount) String() string {
	if a.asset == nil {
		return "0 ???"
	}
	return fmt.Sprintf("%s %s", a.ToDecimal().String(), a.asset.Symbol())
}

// StringFixed returns a string with fixed decimal places.
func (a Amount) StringFixed(places int32) string {
	if a.asset == nil {
		return "0 ???"
	}
	return fmt.Sprintf("%s %s", a.ToDecimal().StringFixed(places), a.asset.Symbol())
}

// ParseDecimal scales a whole-unit decimal into raw units.
func ParseDecimal(a *Asset, d decimal.Decimal) (Amount, error) {
	if a == nil {
		return Amount{}, ErrNilAsset
	}
	if d.IsNegative() {
		return Amount{}, ErrNegativeAmount
	}
	scaled := d.Shift(int32(a.Decimals()))
	if !scaled.Equal(scaled.Truncate(0)) {
		return Amount{}, ErrTooManyDecimals
	}
	return NewAmount(a, scaled.BigInt())
}

// ParseString parses a whole-unit decimal string.
func ParseString(a *Asset, s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("asset: invalid decimal string: %w", err)
	}
	return ParseDecimal(a, d)
}

// RawToFloat converts raw units to whole-token float64. Values beyond float64 precision are
// rounded; this is the accepted approximation when reserves enter constraint building.
func RawToFloat(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetPrec(128).SetInt(raw)
	if decimals > 0 {
		scale := new(big.Float).SetPrec(128).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		f.Quo(f, scale)
	}
	out, _ := f.Float64()
	return out
}

