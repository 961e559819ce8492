package snapshot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
	"github.com/fd1az/cfmm-arb/internal/asset"
	"github.com/fd1az/cfmm-arb/internal/httpclient"
	"github.com/fd1az/cfmm-arb/internal/logger"
)

const yamlSnapshot = `
block: 19000000
tokens:
  - address: "0x00000000000000000000000000000000000000a1"
    symbol: TKA
    decimals: 6
pools:
  - id: p1
    kind: constant_product
    tokens: ["0x00000000000000000000000000000000000000a1", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"]
    reserves: ["100000000", "0x008ac7230489e80000"]
  - id: w1
    kind: weighted
    tokens: ["0x00000000000000000000000000000000000000a1", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"]
    reserves: ["5000000", "1000000000000000000"]
    fee: "0.998"
    tax: "0.01"
    weights: ["0.8", "0.2"]
`

const jsonSnapshot = `{
  "pools": [
    {"id": "s1", "kind": "constant_sum", "tokens": ["0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "0xdAC17F958D2ee523a2206206994597C13D831ec7"],
     "reserves": ["1000000", "2000000"], "decimals": [6, 6]}
  ]
}`

var fee = decimal.RequireFromString("0.997")

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestSource_LoadYAML(t *testing.T) {
	assets := asset.DefaultRegistry()
	src, err := NewSource(writeTemp(t, "pools.yaml", yamlSnapshot), nil, assets, fee, logger.Nop())
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	pools, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("pools = %d", len(pools))
	}

	p1 := pools[0]
	if p1.Kind != domain.ConstantProduct || !p1.Fee.Equal(fee) {
		t.Errorf("p1 kind/fee = %v/%s", p1.Kind, p1.Fee)
	}
	if p1.Decimals[0] != 6 || p1.Decimals[1] != 18 {
		t.Errorf("decimals = %v, want token table and well-known values", p1.Decimals)
	}
	if p1.Reserves[1].String() != "10000000000000000000" {
		t.Errorf("hex reserve = %s", p1.Reserves[1])
	}
	if p1.ReserveFloat(0) != 100 || p1.ReserveFloat(1) != 10 {
		t.Errorf("reserve floats = %v, %v", p1.ReserveFloat(0), p1.ReserveFloat(1))
	}

	w1 := pools[1]
	if w1.Kind != domain.WeightedGeometricMean || len(w1.Weights) != 2 || !w1.Tax.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("w1 = %+v", w1)
	}
	if err := w1.Validate(); err != nil {
		t.Errorf("w1 should validate: %v", err)
	}

	if a, ok := assets.Get(common.HexToAddress("0x00000000000000000000000000000000000000a1")); !ok || a.Symbol() != "TKA" {
		t.Error("token table not registered")
	}
}

func TestSource_LoadJSONOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(jsonSnapshot))
	}))
	defer srv.Close()

	client, err := httpclient.New(httpclient.WithProviderName("snapshot"))
	if err != nil {
		t.Fatalf("httpclient: %v", err)
	}
	src, err := NewSource(srv.URL+"/pools.json", client, nil, fee, logger.Nop())
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	pools, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(pools) != 1 || pools[0].Kind != domain.ConstantSum || pools[0].ReserveFloat(1) != 2 {
		t.Errorf("pools = %+v", pools)
	}
}

func TestSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad json", "pools.json", `{"pools": [`},
		{"bad address", "pools.json", `{"pools":[{"id":"x","tokens":["0x1","0x2"],"reserves":["1","1"]}]}`},
		{"bad reserve", "pools.json", `{"pools":[{"id":"x","tokens":["0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48","0xdAC17F958D2ee523a2206206994597C13D831ec7"],"reserves":["1.5","1"]}]}`},
		{"reserve count", "pools.json", `{"pools":[{"id":"x","tokens":["0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48","0xdAC17F958D2ee523a2206206994597C13D831ec7"],"reserves":["1"]}]}`},
		{"unknown kind", "pools.yaml", "pools:\n  - id: x\n    kind: curve\n    tokens: []\n    reserves: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(writeTemp(t, tt.file, tt.content), nil, nil, fee, logger.Nop())
			if err != nil {
				t.Fatalf("NewSource: %v", err)
			}
			_, err = src.Load(context.Background())
			if !apperror.HasCode(err, apperror.CodeSnapshotLoadFailed) {
				t.Errorf("expected SNAPSHOT_LOAD_FAILED, got %v", err)
			}
		})
	}

	src, _ := NewSource(filepath.Join(t.TempDir(), "missing.json"), nil, nil, fee, logger.Nop())
	if _, err := src.Load(context.Background()); !apperror.HasCode(err, apperror.CodeSnapshotLoadFailed) {
		t.Errorf("missing file: %v", err)
	}
	if _, err := NewSource("https://example.invalid/pools.json", nil, nil, fee, logger.Nop()); err == nil {
		t.Error("expected remote source without client to fail")
	}
}

func TestParseReserve(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0", "0", false},
		{"123456789012345678901234567890", "123456789012345678901234567890", false},
		{"0x00ff", "255", false},
		{"0x0", "0", false},
		{"-1", "", true},
		{"0xzz", "", true},
		{"0x10000000000000000000000000000000000000000000000000000000000000000", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReserve(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil || got.String() != tt.want {
				t.Errorf("ParseReserve(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestRoundTripDocument(t *testing.T) {
	doc, err := Parse([]byte(yamlSnapshot), FormatYAML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	assets := asset.DefaultRegistry()
	if err := doc.RegisterTokens(assets); err != nil {
		t.Fatalf("RegisterTokens: %v", err)
	}
	pools, err := doc.ToPools(assets, fee)
	if err != nil {
		t.Fatalf("ToPools: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dump.json")
	if err := WriteFile(path, FromPools(doc.Block, pools, assets)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src, _ := NewSource(path, nil, asset.DefaultRegistry(), fee, logger.Nop())
	again, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(again) != 2 || again[0].Reserves[1].Cmp(pools[0].Reserves[1]) != 0 || again[1].Kind != domain.WeightedGeometricMean {
		t.Errorf("reloaded pools differ")
	}
}
