package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleAgentsYAML = `agents:
  - id: general
    name: Concierge
    endpoint: https://chat.example.com/webhook/concierge
  - id: rate
    name: Rate Desk
    endpoint: https://chat.example.com/webhook/rate-desk
    payload: prompt
  - id: forecast
    name: Availability Forecast
    endpoint: https://chat.example.com/webhook/forecast
    payload: envelope
    disabled: true
`

func writeAgentsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write agents file: %v", err)
	}
	return path
}

func TestLoadAgentsFile(t *testing.T) {
	defs, err := LoadAgentsFile(writeAgentsFile(t, sampleAgentsYAML))
	if err != nil {
		t.Fatalf("LoadAgentsFile() failed: %v", err)
	}

	if len(defs) != 3 {
		t.Fatalf("Expected 3 agents, got %d", len(defs))
	}
	if defs[0].ID != "general" || defs[0].Name != "Concierge" {
		t.Errorf("Unexpected first agent: %+v", defs[0])
	}
	if defs[1].Payload != "prompt" {
		t.Errorf("Expected prompt payload for rate agent, got '%s'", defs[1].Payload)
	}
	if !defs[2].Disabled {
		t.Error("Expected forecast agent to be disabled")
	}
}

func TestLoadAgentsFileErrors(t *testing.T) {
	if _, err := LoadAgentsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := LoadAgentsFile(writeAgentsFile(t, "agents: []\n")); err == nil {
		t.Error("Expected error for empty agent list")
	}
	if _, err := LoadAgentsFile(writeAgentsFile(t, "{not yaml")); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestBuildRegistryFromFile(t *testing.T) {
	settings := GetDefaultSettings()
	settings.Agents.File = writeAgentsFile(t, sampleAgentsYAML)

	registry, err := BuildRegistry(settings)
	if err != nil {
		t.Fatalf("BuildRegistry() failed: %v", err)
	}

	cfg, err := registry.Resolve("rate")
	if err != nil {
		t.Fatalf("Resolve(rate) failed: %v", err)
	}
	payload, ok := cfg.Shape("how much?", "sess-1").(map[string]any)
	if !ok {
		t.Fatal("Expected map payload")
	}
	if payload["prompt"] != "how much?" {
		t.Errorf("Expected prompt payload shape, got %v", payload)
	}
}

func TestBuildRegistryDefaults(t *testing.T) {
	registry, err := BuildRegistry(GetDefaultSettings())
	if err != nil {
		t.Fatalf("BuildRegistry() failed: %v", err)
	}

	if registry.FirstEnabled() != "general" {
		t.Errorf("Expected 'general' as first enabled agent, got '%s'", registry.FirstEnabled())
	}
	if _, err := registry.Resolve("forecast"); err != nil {
		t.Errorf("Built-in forecast agent should resolve even when disabled: %v", err)
	}
}
