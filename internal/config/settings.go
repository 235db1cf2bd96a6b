package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harborview/guestchat/internal/infra"
	"github.com/harborview/guestchat/internal/repository"
	pkgLogger "github.com/harborview/guestchat/pkg/logger"
)

// DefaultRequestTimeoutSeconds is the per-attempt delivery timeout applied
// when a request carries no deadline of its own.
const DefaultRequestTimeoutSeconds = 60

// Settings represents the main application settings
type Settings struct {
	Agents    AgentsSettings    `json:"agents"`
	Transport TransportSettings `json:"transport"`
	App       AppSettings       `json:"app"`

	// Repository for persistence (nil for in-memory only)
	settingsRepository repository.SettingsRepository `json:"-"`
}

// AgentsSettings configures the agent backends messages are delivered to.
type AgentsSettings struct {
	BaseURL string `json:"base_url"`           // base URL the built-in agent endpoints hang off
	File    string `json:"file,omitempty"`     // optional YAML file replacing the built-in agent set
	Default string `json:"default,omitempty"`  // agent selected when no prior selection is stored
}

// TransportSettings configures delivery attempts over the wire.
type TransportSettings struct {
	TimeoutSeconds          int            `json:"timeout_seconds,omitempty"`
	SlowAgentTimeoutSeconds map[string]int `json:"slow_agent_timeout_seconds,omitempty"` // per-agent overrides keyed by agent id
}

// AppSettings contains general application behavior configuration.
type AppSettings struct {
	LogLevel string `json:"log_level"`
	StateDir string `json:"state_dir,omitempty"`
}

// NewSettings creates new settings with in-memory repository
func NewSettings() *Settings {
	return NewSettingsWithRepository(infra.NewInMemorySettingsRepository())
}

// NewSettingsWithRepository creates new settings with injected repository
func NewSettingsWithRepository(settingsRepository repository.SettingsRepository) *Settings {
	settings := GetDefaultSettings()
	settings.settingsRepository = settingsRepository
	return settings
}

// NewSettingsWithPath creates new settings with file-based repository
func NewSettingsWithPath(configPath string) *Settings {
	repo := infra.NewFileSettingsRepository(configPath)
	return NewSettingsWithRepository(repo)
}

// Load loads settings from the repository
func (s *Settings) Load() error {
	if s.settingsRepository == nil {
		return fmt.Errorf("no settings repository configured")
	}

	data, err := s.settingsRepository.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}

	// Apply defaults for missing fields
	applyDefaults(s)
	return nil
}

// Save saves settings to the repository
func (s *Settings) Save() error {
	if s.settingsRepository == nil {
		return fmt.Errorf("no settings repository configured")
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return s.settingsRepository.Save(data)
}

// RequestTimeout returns the per-attempt timeout as a duration.
func (s *Settings) RequestTimeout() time.Duration {
	secs := s.Transport.TimeoutSeconds
	if secs <= 0 {
		secs = DefaultRequestTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// AgentTimeout returns the per-agent timeout override for id, or zero when
// the agent has no override and the transport default applies.
func (s *Settings) AgentTimeout(id string) time.Duration {
	if secs, ok := s.Transport.SlowAgentTimeoutSeconds[id]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// StateDir returns the configured state directory, falling back to the
// per-user default.
func (s *Settings) StateDir() string {
	if s.App.StateDir != "" {
		return s.App.StateDir
	}
	return infra.DefaultStateDir()
}

// LoadSettings loads application settings from a JSON file
func LoadSettings(configPath string) (*Settings, error) {
	settings := NewSettingsWithPath(configPath)

	// If config path is empty, search for existing settings file
	if configPath == "" {
		foundPath, _ := settings.settingsRepository.FindSettingsFile()
		if foundPath == "" {
			// No settings file found, create default one and return defaults
			return createDefaultSettingsFile()
		}
	}

	err := settings.Load()
	if err != nil {
		// If file doesn't exist and a specific path was provided, create it
		if configPath != "" {
			createdSettings, _ := createSettingsFileAtPath(configPath)
			return createdSettings, nil
		}
		// Otherwise return defaults
		return GetDefaultSettings(), nil
	}

	return settings, nil
}

// GetDefaultSettings returns default application settings
func GetDefaultSettings() *Settings {
	return &Settings{
		Agents: AgentsSettings{
			BaseURL: "http://localhost:5678",
			Default: "general",
		},
		Transport: TransportSettings{
			TimeoutSeconds: DefaultRequestTimeoutSeconds,
		},
		App: AppSettings{
			LogLevel: "info",
		},
	}
}

// applyDefaults fills in missing fields with default values
func applyDefaults(settings *Settings) {
	defaults := GetDefaultSettings()

	if settings.Agents.BaseURL == "" {
		settings.Agents.BaseURL = defaults.Agents.BaseURL
	}
	if settings.Agents.Default == "" {
		settings.Agents.Default = defaults.Agents.Default
	}
	if settings.Transport.TimeoutSeconds == 0 {
		settings.Transport.TimeoutSeconds = defaults.Transport.TimeoutSeconds
	}
	if settings.App.LogLevel == "" {
		settings.App.LogLevel = defaults.App.LogLevel
	}
}

// ValidateSettings validates the settings configuration
func ValidateSettings(settings *Settings) error {
	if settings.Agents.BaseURL == "" {
		return fmt.Errorf("agents base_url is required")
	}
	if !strings.HasPrefix(settings.Agents.BaseURL, "http://") && !strings.HasPrefix(settings.Agents.BaseURL, "https://") {
		return fmt.Errorf("agents base_url must be an http or https URL: %s", settings.Agents.BaseURL)
	}

	if settings.Transport.TimeoutSeconds < 0 {
		return fmt.Errorf("transport timeout_seconds must not be negative")
	}
	for id, secs := range settings.Transport.SlowAgentTimeoutSeconds {
		if secs <= 0 {
			return fmt.Errorf("slow agent timeout for %s must be positive", id)
		}
	}

	switch settings.App.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s (must be 'debug', 'info', 'warn', or 'error')", settings.App.LogLevel)
	}

	return nil
}

// createDefaultSettingsFile creates a default settings.json file in ~/.guestchat/
func createDefaultSettingsFile() (*Settings, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return GetDefaultSettings(), nil // Fall back to defaults without file creation
	}

	settingsPath := filepath.Join(homeDir, ".guestchat", "settings.json")
	return createSettingsFileAtPath(settingsPath)
}

// createSettingsFileAtPath creates a default settings file at the specified path
func createSettingsFileAtPath(settingsPath string) (*Settings, error) {
	settings := NewSettingsWithPath(settingsPath)

	if err := settings.Save(); err != nil {
		// Return defaults without repository if saving fails
		return GetDefaultSettings(), nil
	}

	pkgLogger.NewComponentLogger("settings").InfoWithIntention(pkgLogger.IntentionConfig, "Created default settings file", "path", settingsPath)
	pkgLogger.NewComponentLogger("settings").InfoWithIntention(pkgLogger.IntentionStatus, "You can edit this file to customize your configuration")

	return settings, nil
}
