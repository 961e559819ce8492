package main

import (
	"testing"

	"github.com/fd1az/cfmm-arb/internal/asset"
)

func TestResolveStart(t *testing.T) {
	tests := []struct {
		name    string
		list    string
		want    []string
		wantErr bool
	}{
		{"symbols", "weth, USDC", []string{asset.AddrWETH.Hex(), asset.AddrUSDC.Hex()}, false},
		{"address is checksummed", "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", []string{asset.AddrWETH.Hex()}, false},
		{"unknown symbol", "WETH,NOPE", nil, true},
		{"empty", " , ", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveStart(tt.list, asset.DefaultRegistry())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}
