package config

import (
	"testing"
)

func TestInitializeMetrics_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()

	result := InitializeMetrics(cfg, nil)
	if result.Server != nil {
		t.Error("Expected no server when metrics are disabled")
	}
	if result.VaultMetrics != nil || result.ContentMetrics != nil {
		t.Error("Expected nil collectors when metrics are disabled")
	}
}

func TestInitializeMetrics_Enabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9191

	result := InitializeMetrics(cfg, func() any { return nil })
	if result.Server == nil {
		t.Fatal("Expected a metrics server")
	}
	if result.Server.Port() != 9191 {
		t.Errorf("Expected port 9191, got %d", result.Server.Port())
	}
	if result.VaultMetrics == nil || result.ContentMetrics == nil {
		t.Error("Expected Prometheus collectors when metrics are enabled")
	}
}
