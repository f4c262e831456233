package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appDirName       = "KindleSend"
	configFileName   = "config.json"
	settingsFileName = "settings.yaml"
	keyringService   = "keen-sender"

	defaultSMTPHost = "smtp.gmail.com"
	defaultSMTPPort = 587
)

//go:embed config/settings.yaml
var defaultSettings string

// FetchSettings controls how article pages are downloaded
type FetchSettings struct {
	Timeout               time.Duration `yaml:"timeout"`
	MaxBodyBytes          int64         `yaml:"max_body_bytes"`
	MaxRedirects          int           `yaml:"max_redirects"`
	UserAgent             string        `yaml:"user_agent"`
	BlockPrivateAddresses bool          `yaml:"block_private_addresses"`
}

// SMTPSettings controls the delivery session
type SMTPSettings struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	Fetch FetchSettings `yaml:"fetch"`
	SMTP  SMTPSettings  `yaml:"smtp"`
}

// appConfigDir returns the per-user directory holding config.json and
// settings.yaml (~/Library/Application Support/KindleSend on macOS).
func appConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(dir, appDirName), nil
}

// embeddedSettings parses the defaults compiled into the binary.
func embeddedSettings() (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal([]byte(defaultSettings), &settings); err != nil {
		return nil, fmt.Errorf("parsing embedded settings: %w", err)
	}
	return &settings, nil
}

// loadSettings loads settings from a YAML file layered over the embedded
// defaults. A missing file yields the defaults.
func loadSettings(settingsPath string) (*Settings, error) {
	settings, err := embeddedSettings()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(settingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", settingsPath, err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", settingsPath, err)
	}
	return settings, settings.validate()
}

// loadSettingsRequired loads settings from YAML file, failing if file doesn't exist
func loadSettingsRequired(settingsPath string) (*Settings, error) {
	if _, err := os.Stat(settingsPath); err != nil {
		return nil, fmt.Errorf("settings file %s: %w", settingsPath, err)
	}
	return loadSettings(settingsPath)
}

func (s *Settings) validate() error {
	if s.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if s.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be positive")
	}
	if s.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must not be negative")
	}
	if s.SMTP.ConnectTimeout <= 0 {
		return fmt.Errorf("smtp.connect_timeout must be positive")
	}
	return nil
}

// ensureSettingsFile writes the embedded settings.yaml into dir if the user
// has none yet, so the knobs are discoverable.
func ensureSettingsFile(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	settingsPath := filepath.Join(dir, settingsFileName)
	if _, err := os.Stat(settingsPath); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", settingsFileName, err)
		}
	}
	return nil
}
