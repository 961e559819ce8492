package asset_test

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/cfmm-arb/internal/asset"
)

func TestAmount_Basic(t *testing.T) {
	oneWETH, err := asset.NewAmount(asset.WETH, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("NewAmount: %v", err)
	}

	if oneWETH.IsZero() {
		t.Error("expected non-zero amount")
	}
	if !oneWETH.ToDecimal().Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1, got %s", oneWETH.ToDecimal())
	}
	if oneWETH.String() != "1 WETH" {
		t.Errorf("String = %q", oneWETH.String())
	}
	if oneWETH.ToFloat64() != 1 {
		t.Errorf("ToFloat64 = %v", oneWETH.ToFloat64())
	}
}

func TestNewAmount_RejectsNegative(t *testing.T) {
	if _, err := asset.NewAmount(asset.USDC, big.NewInt(-1)); err == nil {
		t.Error("expected error for negative raw value")
	}
	if _, err := asset.NewAmount(nil, big.NewInt(1)); err == nil {
		t.Error("expected error for nil asset")
	}
}

func TestParseString(t *testing.T) {
	tests := []struct {
		name    string
		asset   *asset.Asset
		in      string
		wantRaw string
		wantErr bool
	}{
		{"usdc whole", asset.USDC, "2500", "2500000000", false},
		{"usdc fraction", asset.USDC, "1.5", "1500000", false},
		{"usdc too precise", asset.USDC, "0.0000001", "", true},
		{"wbtc", asset.WBTC, "0.01", "1000000", false},
		{"negative", asset.WETH, "-1", "", true},
		{"garbage", asset.WETH, "abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amt, err := asset.ParseString(tt.asset, tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", amt)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if amt.Raw().String() != tt.wantRaw {
				t.Errorf("raw = %s, want %s", amt.Raw(), tt.wantRaw)
			}
		})
	}
}

func TestRawToFloat(t *testing.T) {
	raw, _ := new(big.Int).SetString("1234500000000000000000", 10)
	if got := asset.RawToFloat(raw, 18); math.Abs(got-1234.5) > 1e-9 {
		t.Errorf("RawToFloat = %v", got)
	}
	if got := asset.RawToFloat(big.NewInt(100), 0); got != 100 {
		t.Errorf("RawToFloat(100, 0) = %v", got)
	}
	if got := asset.RawToFloat(nil, 6); got != 0 {
		t.Errorf("RawToFloat(nil) = %v", got)
	}
}

func TestRegistry(t *testing.T) {
	r := asset.DefaultRegistry()

	if r.Count() != 5 {
		t.Errorf("Count = %d", r.Count())
	}
	if a, ok := r.BySymbol("usdc"); !ok || a.Decimals() != 6 {
		t.Errorf("BySymbol(usdc) = %v, %v", a, ok)
	}

	unknown := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	if got := r.Resolve(unknown); got.Decimals() != 18 || got.Symbol() != unknown.Hex()[:8] {
		t.Errorf("Resolve(unknown) = %s/%d", got.Symbol(), got.Decimals())
	}

	custom, err := asset.NewAsset(unknown, "TKA", 9)
	if err != nil {
		t.Fatalf("NewAsset: %v", err)
	}
	r.Register(custom)
	if r.Symbol(unknown) != "TKA" {
		t.Errorf("Symbol = %q", r.Symbol(unknown))
	}
}
