package agent

import (
	"github.com/pkg/errors"
)

// ErrUnknownAgent is returned when an agent id does not resolve to a
// configured agent.
var ErrUnknownAgent = errors.New("unknown agent")

// PayloadFunc shapes the wire payload for one agent backend. Each webhook
// expects a slightly different body, so the shape travels with the config.
type PayloadFunc func(text, sessionID string) any

// Config is the static description of one deliverable agent backend.
// Configs are defined once at startup and never mutated at runtime.
type Config struct {
	ID       string
	Name     string
	Endpoint string
	Disabled bool
	Shape    PayloadFunc
}

// Registry is an immutable lookup table of agent configs, preserving
// registration order. It is constructed once at process start and passed by
// reference to whoever needs to resolve agents.
type Registry struct {
	order []string
	byID  map[string]Config
}

// NewRegistry builds a registry from the given configs. Configs without a
// payload shape get StandardShape. Duplicate or empty ids and missing
// endpoints are configuration errors.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(configs)),
		byID:  make(map[string]Config, len(configs)),
	}

	for _, cfg := range configs {
		if cfg.ID == "" {
			return nil, errors.New("agent config requires an id")
		}
		if _, exists := r.byID[cfg.ID]; exists {
			return nil, errors.Errorf("duplicate agent id: %s", cfg.ID)
		}
		if cfg.Endpoint == "" {
			return nil, errors.Errorf("agent %s requires an endpoint", cfg.ID)
		}
		if cfg.Shape == nil {
			cfg.Shape = StandardShape
		}
		r.order = append(r.order, cfg.ID)
		r.byID[cfg.ID] = cfg
	}

	return r, nil
}

// Resolve returns the config for the given agent id.
func (r *Registry) Resolve(id string) (Config, error) {
	cfg, ok := r.byID[id]
	if !ok {
		return Config{}, errors.Wrapf(ErrUnknownAgent, "%q", id)
	}
	return cfg, nil
}

// List returns all configured agents in registration order, including
// disabled ones. Callers that offer a selection are responsible for
// filtering by Disabled.
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// FirstEnabled returns the id of the first enabled agent in registration
// order, or empty string if every agent is disabled.
func (r *Registry) FirstEnabled() string {
	for _, id := range r.order {
		if !r.byID[id].Disabled {
			return id
		}
	}
	return ""
}
