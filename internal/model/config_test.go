package model

import (
	"slices"
	"testing"
)

func TestFilterConfig_Resolution(t *testing.T) {
	cfg := FilterConfig{
		ConflictResolution: true,
		Strategies:         []string{"widen-size", " Drop-Strict "},
	}
	got := cfg.Resolution()
	if !got.Enabled {
		t.Error("expected resolution enabled")
	}
	want := []RelaxationStrategy{RelaxSize, RelaxDropStrict}
	if !slices.Equal(got.Strategies, want) {
		t.Errorf("Strategies = %v, want %v", got.Strategies, want)
	}

	if (FilterConfig{}).Resolution().Enabled {
		t.Error("zero config must leave resolution off")
	}
}

func TestConfig_ValidateProviderRefreshRates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Health.ProviderRefreshRates = map[string]float64{"rd": 2}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid rates rejected: %v", err)
	}

	cfg.Health.ProviderRefreshRates["tpb"] = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected a non-positive rate to be rejected")
	}
}
