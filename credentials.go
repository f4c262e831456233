package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variables read in CLI mode
const (
	envKindleEmail  = "KINDLE_EMAIL"
	envSMTPEmail    = "SMTP_EMAIL"
	envSMTPPassword = "SMTP_PASSWORD"
	envSMTPServer   = "SMTP_SERVER"
	envSMTPPort     = "SMTP_PORT"
)

// CredentialResolver produces the credentials for one delivery
type CredentialResolver interface {
	Resolve(ctx context.Context) (Credentials, error)
}

// EnvSource resolves credentials from the process environment, optionally
// seeded from a dotenv file. Variables already set in the environment win.
type EnvSource struct {
	envFile string
}

// NewEnvSource creates an environment resolver. An empty envFile loads
// ./.env when it exists.
func NewEnvSource(envFile string) *EnvSource {
	return &EnvSource{envFile: envFile}
}

func (s *EnvSource) Resolve(ctx context.Context) (Credentials, error) {
	if err := loadEnvFile(s.envFile); err != nil {
		return Credentials{}, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(envSMTPServer, defaultSMTPHost)
	v.SetDefault(envSMTPPort, strconv.Itoa(defaultSMTPPort))

	for _, key := range []string{envKindleEmail, envSMTPEmail, envSMTPPassword} {
		if strings.TrimSpace(v.GetString(key)) == "" {
			return Credentials{}, &MissingCredentialsError{Field: key}
		}
	}

	port, err := parsePort(v.GetString(envSMTPPort))
	if err != nil {
		return Credentials{}, &MissingCredentialsError{Field: envSMTPPort, Reason: err.Error()}
	}

	return Credentials{
		KindleAddress: strings.TrimSpace(v.GetString(envKindleEmail)),
		SenderAddress: strings.TrimSpace(v.GetString(envSMTPEmail)),
		SenderSecret:  v.GetString(envSMTPPassword),
		SMTPHost:      strings.TrimSpace(v.GetString(envSMTPServer)),
		SMTPPort:      port,
	}, nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("is not a valid port: %q", raw)
	}
	return port, nil
}

// AppSource resolves credentials from the config record and the OS secret
// store, migrating a legacy plaintext password on first read.
// It is not safe for concurrent use against the same config file.
type AppSource struct {
	config  ConfigStore
	secrets SecretStore
	logger  *slog.Logger
}

// NewAppSource creates an app-mode resolver
func NewAppSource(config ConfigStore, secrets SecretStore, logger *slog.Logger) *AppSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppSource{config: config, secrets: secrets, logger: logger}
}

func (s *AppSource) Resolve(ctx context.Context) (Credentials, error) {
	rec, err := s.config.Load()
	if err != nil {
		return Credentials{}, err
	}

	secret, _, err := s.migrate(rec)
	if err != nil {
		// The plaintext password still works for this run; the next
		// read retries the migration.
		s.logger.Warn("failed to migrate smtp password to secret store", Err(err))
	}

	if rec.KindleEmail == "" {
		return Credentials{}, &MissingCredentialsError{Field: "kindle_email"}
	}
	if rec.SMTPEmail == "" {
		return Credentials{}, &MissingCredentialsError{Field: "smtp_email"}
	}

	if secret == "" {
		secret, err = s.secrets.Get(keyringService, rec.SMTPEmail)
		if errors.Is(err, ErrSecretNotFound) || (err == nil && secret == "") {
			return Credentials{}, &MissingCredentialsError{Field: "smtp_password", Reason: "is not in the secret store"}
		}
		if err != nil {
			return Credentials{}, fmt.Errorf("reading smtp password from secret store: %w", err)
		}
	}

	creds := Credentials{
		KindleAddress: rec.KindleEmail,
		SenderAddress: rec.SMTPEmail,
		SenderSecret:  secret,
		SMTPHost:      rec.SMTPServer,
		SMTPPort:      rec.SMTPPort,
	}
	if creds.SMTPHost == "" {
		creds.SMTPHost = defaultSMTPHost
	}
	if creds.SMTPPort == 0 {
		creds.SMTPPort = defaultSMTPPort
	}
	return creds, nil
}

// Migrate moves a legacy plaintext password into the secret store and
// reports whether anything was moved.
func (s *AppSource) Migrate(ctx context.Context) (bool, error) {
	rec, err := s.config.Load()
	if err != nil {
		return false, err
	}
	_, migrated, err := s.migrate(rec)
	return migrated, err
}

// migrate returns the legacy secret when one was found, whether or not it
// could be moved. The record is rewritten only after the secret store
// accepted the password.
func (s *AppSource) migrate(rec *ConfigRecord) (string, bool, error) {
	secret := rec.LegacyPassword
	if secret == "" {
		return "", false, nil
	}
	if rec.SMTPEmail == "" {
		return secret, false, fmt.Errorf("config has a plaintext password but no smtp_email to key it by")
	}

	if err := s.secrets.Set(keyringService, rec.SMTPEmail, secret); err != nil {
		return secret, false, fmt.Errorf("storing password in secret store: %w", err)
	}

	clean := *rec
	clean.LegacyPassword = ""
	if err := s.config.Save(&clean); err != nil {
		return secret, false, fmt.Errorf("rewriting config without password: %w", err)
	}

	rec.LegacyPassword = ""
	s.logger.Info("migrated smtp password from config file to secret store",
		slog.String("account", MaskEmail(rec.SMTPEmail)))
	return secret, true, nil
}

// SettingsInput is what the settings dialog collects
type SettingsInput struct {
	KindleEmail string
	SMTPEmail   string
	SMTPServer  string
	SMTPPort    int
	// Password is stored in the secret store; empty keeps the current one.
	Password string
}

// Current returns the stored record and whether a password is on file for
// its sender address.
func (s *AppSource) Current(ctx context.Context) (*ConfigRecord, bool, error) {
	rec, err := s.config.Load()
	if err != nil {
		return nil, false, err
	}
	if _, _, err := s.migrate(rec); err != nil {
		s.logger.Warn("failed to migrate smtp password to secret store", Err(err))
	}
	if rec.SMTPEmail == "" {
		return rec, false, nil
	}
	secret, err := s.secrets.Get(keyringService, rec.SMTPEmail)
	return rec, err == nil && secret != "", nil
}

// SaveSettings persists the non-secret fields to the config file and the
// password, when given, to the secret store.
func (s *AppSource) SaveSettings(ctx context.Context, in SettingsInput) error {
	rec, err := s.config.Load()
	if err != nil {
		return err
	}
	if _, _, err := s.migrate(rec); err != nil {
		return err
	}

	previousSender := rec.SMTPEmail
	rec.KindleEmail = strings.TrimSpace(in.KindleEmail)
	rec.SMTPEmail = strings.TrimSpace(in.SMTPEmail)
	if in.SMTPServer != "" {
		rec.SMTPServer = strings.TrimSpace(in.SMTPServer)
	}
	if in.SMTPPort != 0 {
		rec.SMTPPort = in.SMTPPort
	}

	if in.Password != "" {
		if rec.SMTPEmail == "" {
			return &MissingCredentialsError{Field: "smtp_email", Reason: "is required to store a password"}
		}
		if err := s.secrets.Set(keyringService, rec.SMTPEmail, in.Password); err != nil {
			return fmt.Errorf("storing password in secret store: %w", err)
		}
	}

	if err := s.config.Save(rec); err != nil {
		return err
	}

	// The old account's entry is orphaned once the sender changes.
	if previousSender != "" && previousSender != rec.SMTPEmail {
		err := s.secrets.Delete(keyringService, previousSender)
		if err != nil && !errors.Is(err, ErrSecretNotFound) {
			s.logger.Warn("failed to remove old smtp password from secret store", Err(err))
		}
	}
	return nil
}
