// Package file keeps recall's configuration on disk.
//
// ConfigStore reads and writes config.toml, PromptStore serves the editable
// prompt templates, and LoadSettings turns a ConfigStore into validated
// domain.Settings with API keys taken from the environment or a .env file.
package file
