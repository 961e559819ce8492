package arbitrage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fd1az/cfmm-arb/business/arbitrage"
	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arb/internal/config"
)

func loadConfig(t *testing.T, search string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
liquidity:
  source: snapshot
  snapshot_path: pools.yaml
search:
  start_tokens: ["0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"]
` + search
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestSearchSettings(t *testing.T) {
	tests := []struct {
		name     string
		search   string
		wantCap  float64
		wantForm domain.Formulation
		wantLink domain.Linking
	}{
		{"defaults", "", 0, domain.Tangent, domain.Strict},
		{"budget caps every cycle", "  budget: 2\n  formulation: soc\n  linking: relaxed\n", 2, domain.SecondOrderCone, domain.Relaxed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, asm, err := arbitrage.SearchSettings(loadConfig(t, tt.search))
			if err != nil {
				t.Fatal(err)
			}
			if sc.Budget != tt.wantCap || asm.InputCap != tt.wantCap {
				t.Errorf("budget %v input cap %v, want %v", sc.Budget, asm.InputCap, tt.wantCap)
			}
			if asm.Builder.Formulation != tt.wantForm || asm.Linking != tt.wantLink {
				t.Errorf("formulation %v linking %v", asm.Builder.Formulation, asm.Linking)
			}
		})
	}
}
