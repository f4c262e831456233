package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ConfigRecord is the non-secret configuration persisted in config.json.
// LegacyPassword is only ever read: files written by old releases kept the
// SMTP password in plaintext and it is migrated to the secret store.
type ConfigRecord struct {
	KindleEmail    string `json:"kindle_email"`
	SMTPEmail      string `json:"smtp_email"`
	SMTPServer     string `json:"smtp_server,omitempty"`
	SMTPPort       int    `json:"smtp_port,omitempty"`
	LegacyPassword string `json:"smtp_password,omitempty"`
}

// ConfigStore loads and saves the configuration record
type ConfigStore interface {
	Load() (*ConfigRecord, error)
	Save(rec *ConfigRecord) error
}

// ConfigFile stores the record as indented JSON at a fixed path
type ConfigFile struct {
	path string
}

// NewConfigFile creates a config store backed by path
func NewConfigFile(path string) *ConfigFile {
	return &ConfigFile{path: path}
}

// Path returns the location of the config file.
func (f *ConfigFile) Path() string {
	return f.path
}

// Load reads the record. A missing file yields an empty record.
func (f *ConfigFile) Load() (*ConfigRecord, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ConfigRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rec ConfigRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", f.path, err)
	}
	return &rec, nil
}

// Save atomically replaces the file. The plaintext password is never written.
func (f *ConfigFile) Save(rec *ConfigRecord) error {
	clean := *rec
	clean.LegacyPassword = ""

	data, err := json.MarshalIndent(&clean, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("creating temporary config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temporary config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary config: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}
