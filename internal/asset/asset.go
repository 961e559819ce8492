// Package asset holds ERC20 token metadata and raw-unit conversions.
// Reserves stay big.Int in raw units; decimal.Decimal and float64 are boundary formats
// (display, parsing, constraint building).
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MaxDecimals guards against obviously broken metadata.
const MaxDecimals = 36

// Asset is token metadata. The address is the identity; the symbol is display only.
type Asset struct {
	address  common.Address
	symbol   string
	name     string
	decimals uint8
}

// NewAsset creates token metadata.
func NewAsset(address common.Address, symbol string, decimals uint8) (*Asset, error) {
	if symbol == "" {
		return nil, fmt.Errorf("asset: empty symbol for %s", address.Hex())
	}
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("asset: suspicious decimals %d for %s", decimals, symbol)
	}
	return &Asset{address: address, symbol: symbol, decimals: decimals}, nil
}

// MustNewAsset is NewAsset that panics, for package-level well-known tokens.
func MustNewAsset(address common.Address, symbol, name string, decimals uint8) *Asset {
	a, err := NewAsset(address, symbol, decimals)
	if err != nil {
		panic(err)
	}
	a.name = name
	return a
}

// Unknown returns placeholder metadata for an unregistered token (short hex symbol, 18 decimals).
func Unknown(address common.Address) *Asset {
	return &Asset{address: address, symbol: address.Hex()[:8], decimals: 18}
}

// Address returns the token contract address.
func (a *Asset) Address() common.Address {
	return a.address
}

// Symbol returns the ticker symbol.
func (a *Asset) Symbol() string {
	return a.symbol
}

// Name returns the human-readable name, falling back to the symbol.
func (a *Asset) Name() string {
	if a.name == "" {
		return a.symbol
	}
	return a.name
}

// Decimals returns the number of decimal places.
func (a *Asset) Decimals() uint8 {
	return a.decimals
}

func (a *Asset) String() string {
	return a.symbol
}
