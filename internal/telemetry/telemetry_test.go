package telemetry

import (
	"context"
	"testing"

	"github.com/nvandessel/sfcsim/internal/config"
)

func TestSetup_Disabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TelemetryConfig
	}{
		{"disabled", config.TelemetryConfig{Enabled: false, Endpoint: "http://localhost:4318"}},
		{"no endpoint", config.TelemetryConfig{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), tt.cfg)
			if err != nil {
				t.Fatalf("Setup() error = %v", err)
			}
			if shutdown == nil {
				t.Fatal("Setup() returned nil shutdown")
			}
			if err := shutdown(context.Background()); err != nil {
				t.Errorf("shutdown() error = %v", err)
			}
		})
	}
}

func TestSetup_Enabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		Endpoint: "http://127.0.0.1:1/v1/traces",
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	// Nothing was exported, so shutdown has nothing to flush.
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}
