package repository

// SettingsRepository abstracts settings persistence. Load/Save operate on the
// raw serialized document; FindSettingsFile reports where settings would be
// read from when no explicit path is configured.
type SettingsRepository interface {
	Load() ([]byte, error)
	Save(data []byte) error
	FindSettingsFile() (string, error)
}
