package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const weth = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
liquidity:
  source: snapshot
  snapshot_path: testdata/pools.yaml
search:
  start_tokens: ["`+weth+`"]
  formulation: soc
  market_values:
    "`+weth+`": 1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "cfmm-arb" {
		t.Errorf("App.Name = %q", cfg.App.Name)
	}
	if cfg.Search.Formulation != FormulationSOC {
		t.Errorf("Formulation = %q", cfg.Search.Formulation)
	}
	if cfg.Search.MaxCycleLength != 4 {
		t.Errorf("MaxCycleLength = %d", cfg.Search.MaxCycleLength)
	}
	if cfg.Solver.Timeout != 2*time.Second {
		t.Errorf("Solver.Timeout = %v", cfg.Solver.Timeout)
	}
	if got := cfg.Search.TradeCapDecimal().String(); got != "0.1" {
		t.Errorf("TradeCap = %s", got)
	}

	starts := cfg.Search.StartTokenAddresses()
	if len(starts) != 1 || starts[0] != common.HexToAddress(weth) {
		t.Errorf("StartTokenAddresses = %v", starts)
	}
	if v := cfg.Search.MarketValueMap()[common.HexToAddress(weth)]; v != 1 {
		t.Errorf("market value = %v", v)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Liquidity: LiquidityConfig{Source: SourceSnapshot, SnapshotPath: "pools.json", Fee: 0.997},
			Search: SearchConfig{
				StartTokens:    []string{weth},
				MaxCycleLength: 4,
				Workers:        2,
				Formulation:    FormulationTangent,
				Linking:        LinkingStrict,
				TradeCap:       0.1,
				MaxSelected:    1,
			},
			Solver: SolverConfig{
				Tolerance:     1e-9,
				ConeTolerance: 1e-9,
				MaxIterations: 100,
				Timeout:       time.Second,
				RetryRelaxed:  true,
				RelaxFactor:   10,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown source", func(c *Config) { c.Liquidity.Source = "csv" }, "unknown liquidity.source"},
		{"uniswap without node", func(c *Config) {
			c.Liquidity.Source = SourceUniswapV2
			c.Liquidity.Pairs = []string{weth}
		}, "ethereum endpoint"},
		{"no start tokens", func(c *Config) { c.Search.StartTokens = nil }, "start_tokens"},
		{"bad start token", func(c *Config) { c.Search.StartTokens = []string{"eth"} }, "invalid start token"},
		{"bad formulation", func(c *Config) { c.Search.Formulation = "exact" }, "formulation"},
		{"bad linking", func(c *Config) { c.Search.Linking = "loose" }, "linking"},
		{"cycle length one", func(c *Config) { c.Search.MaxCycleLength = 1 }, "max_cycle_length"},
		{"zero workers", func(c *Config) { c.Search.Workers = 0 }, "workers"},
		{"trade cap above one", func(c *Config) { c.Search.TradeCap = 2 }, "trade_cap"},
		{"fee zero", func(c *Config) { c.Liquidity.Fee = 0 }, "liquidity.fee"},
		{"negative market value", func(c *Config) { c.Search.MarketValues = map[string]float64{weth: -1} }, "negative"},
		{"relax factor", func(c *Config) { c.Solver.RelaxFactor = 1 }, "relax_factor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
