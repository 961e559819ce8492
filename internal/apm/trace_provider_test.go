package apm

import (
	"context"
	"testing"

	"github.com/fd1az/cfmm-arb/internal/config"
	"github.com/fd1az/cfmm-arb/internal/logger"
)

func TestNewTraceProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TelemetryConfig
		wantErr bool
	}{
		{name: "disabled", cfg: config.TelemetryConfig{Enabled: false, TraceProvider: "zipkin"}},
		{name: "none", cfg: config.TelemetryConfig{Enabled: true, TraceProvider: "none"}},
		{name: "console", cfg: config.TelemetryConfig{Enabled: true, TraceProvider: "console", ServiceName: "test"}},
		{name: "unknown", cfg: config.TelemetryConfig{Enabled: true, TraceProvider: "jaeger"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, err := NewTraceProvider(context.Background(), tt.cfg, logger.Nop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if err := tp.Stop(); err != nil {
					t.Errorf("Stop: %v", err)
				}
			}
		})
	}
}
