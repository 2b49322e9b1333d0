package driven

// ConfigStore holds raw configuration values under dotted keys such as
// "retrieval.max_results". Typing, defaults and validation happen when the
// values are mapped onto domain.Settings.
type ConfigStore interface {
	// Get returns the raw value for key and whether it is set.
	Get(key string) (any, bool)

	// Set stores a value and persists the file.
	Set(key string, value any) error

	// Save persists the current values.
	Save() error

	// Load re-reads the file, discarding unsaved values.
	Load() error

	// Path returns the configuration file path.
	Path() string

	// Dir returns the directory holding the configuration and .env files.
	Dir() string
}
