package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/harborview/guestchat/pkg/agent"
)

// AgentDefinition is one agent backend entry in an agents YAML file.
type AgentDefinition struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	Payload  string `yaml:"payload,omitempty"` // "standard", "prompt", or "envelope"
	Disabled bool   `yaml:"disabled,omitempty"`
}

type agentsFile struct {
	Agents []AgentDefinition `yaml:"agents"`
}

// LoadAgentsFile reads agent backend definitions from a YAML file.
func LoadAgentsFile(path string) ([]AgentDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read agents file %s", path)
	}

	var doc agentsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse agents file %s", path)
	}
	if len(doc.Agents) == 0 {
		return nil, errors.Errorf("agents file %s defines no agents", path)
	}
	return doc.Agents, nil
}

// BuildRegistry assembles the agent registry for the configured settings: the
// YAML file when one is configured, the built-in agent set otherwise.
func BuildRegistry(settings *Settings) (*agent.Registry, error) {
	if settings.Agents.File == "" {
		return agent.NewRegistry(agent.DefaultConfigs(settings.Agents.BaseURL)...)
	}

	defs, err := LoadAgentsFile(settings.Agents.File)
	if err != nil {
		return nil, err
	}

	configs := make([]agent.Config, 0, len(defs))
	for _, def := range defs {
		configs = append(configs, agent.Config{
			ID:       def.ID,
			Name:     def.Name,
			Endpoint: def.Endpoint,
			Disabled: def.Disabled,
			Shape:    agent.ShapeByName(def.Payload),
		})
	}
	return agent.NewRegistry(configs...)
}
