package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSecretStore is an in-memory SecretStore that counts writes
type memSecretStore struct {
	secrets map[string]string
	setErr  error
	getErr  error
	sets    int
	deletes int
}

func newMemSecretStore() *memSecretStore {
	return &memSecretStore{secrets: make(map[string]string)}
}

func (m *memSecretStore) key(service, account string) string {
	return service + "/" + account
}

func (m *memSecretStore) Get(service, account string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	secret, ok := m.secrets[m.key(service, account)]
	if !ok {
		return "", ErrSecretNotFound
	}
	return secret, nil
}

func (m *memSecretStore) Set(service, account, secret string) error {
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.secrets[m.key(service, account)] = secret
	return nil
}

func (m *memSecretStore) Delete(service, account string) error {
	m.deletes++
	if _, ok := m.secrets[m.key(service, account)]; !ok {
		return ErrSecretNotFound
	}
	delete(m.secrets, m.key(service, account))
	return nil
}

// countingConfig wraps a ConfigFile and counts saves
type countingConfig struct {
	*ConfigFile
	saves int
}

func (c *countingConfig) Save(rec *ConfigRecord) error {
	c.saves++
	return c.ConfigFile.Save(rec)
}

func writeConfig(t *testing.T, body string) *countingConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), configFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return &countingConfig{ConfigFile: NewConfigFile(path)}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

const legacyConfig = `{
  "kindle_email": "reader@kindle.com",
  "smtp_email": "sender@gmail.com",
  "smtp_password": "legacy-secret"
}`

const migratedConfig = `{
  "kindle_email": "reader@kindle.com",
  "smtp_email": "sender@gmail.com"
}`

// clearEnv unsets the credential variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envKindleEmail, envSMTPEmail, envSMTPPassword, envSMTPServer, envSMTPPort} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	// No stray .env from the working directory.
	t.Chdir(t.TempDir())
}

func TestEnvSourceResolve(t *testing.T) {
	clearEnv(t)
	t.Setenv(envKindleEmail, "reader@kindle.com")
	t.Setenv(envSMTPEmail, "sender@gmail.com")
	t.Setenv(envSMTPPassword, "app-password")

	creds, err := NewEnvSource("").Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Credentials{
		KindleAddress: "reader@kindle.com",
		SenderAddress: "sender@gmail.com",
		SenderSecret:  "app-password",
		SMTPHost:      defaultSMTPHost,
		SMTPPort:      defaultSMTPPort,
	}, creds)
}

func TestEnvSourceOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(envKindleEmail, "reader@kindle.com")
	t.Setenv(envSMTPEmail, "sender@example.org")
	t.Setenv(envSMTPPassword, "pw")
	t.Setenv(envSMTPServer, "mail.example.org")
	t.Setenv(envSMTPPort, "465")

	creds, err := NewEnvSource("").Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mail.example.org", creds.SMTPHost)
	assert.Equal(t, 465, creds.SMTPPort)
}

func TestEnvSourceMissingVariables(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		missing string
	}{
		{"nothing set", map[string]string{}, envKindleEmail},
		{"no sender", map[string]string{envKindleEmail: "reader@kindle.com"}, envSMTPEmail},
		{"no password", map[string]string{envKindleEmail: "reader@kindle.com", envSMTPEmail: "sender@gmail.com"}, envSMTPPassword},
		{"blank kindle", map[string]string{envKindleEmail: "  ", envSMTPEmail: "sender@gmail.com", envSMTPPassword: "pw"}, envKindleEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := NewEnvSource("").Resolve(context.Background())

			var missing *MissingCredentialsError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tt.missing, missing.Field)
			assert.Equal(t, OutcomeMissingCredentials, classifyError(err, OutcomeSendFailed))
		})
	}
}

func TestEnvSourceInvalidPort(t *testing.T) {
	for _, port := range []string{"abc", "0", "70000", "-1"} {
		t.Run(port, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(envKindleEmail, "reader@kindle.com")
			t.Setenv(envSMTPEmail, "sender@gmail.com")
			t.Setenv(envSMTPPassword, "pw")
			t.Setenv(envSMTPPort, port)

			_, err := NewEnvSource("").Resolve(context.Background())

			var missing *MissingCredentialsError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, envSMTPPort, missing.Field)
		})
	}
}

func TestEnvSourceEnvFile(t *testing.T) {
	clearEnv(t)
	t.Cleanup(func() {
		for _, key := range []string{envKindleEmail, envSMTPEmail, envSMTPPassword} {
			os.Unsetenv(key)
		}
	})

	path := filepath.Join(t.TempDir(), "kindle.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"KINDLE_EMAIL=file@kindle.com\nSMTP_EMAIL=file@gmail.com\nSMTP_PASSWORD=file-secret\n"), 0o600))

	// Already-set variables take precedence over the file.
	t.Setenv(envSMTPEmail, "env@gmail.com")

	creds, err := NewEnvSource(path).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "file@kindle.com", creds.KindleAddress)
	assert.Equal(t, "env@gmail.com", creds.SenderAddress)
	assert.Equal(t, "file-secret", creds.SenderSecret)
}

func TestEnvSourceMissingExplicitEnvFile(t *testing.T) {
	clearEnv(t)
	_, err := NewEnvSource(filepath.Join(t.TempDir(), "missing.env")).Resolve(context.Background())
	assert.Error(t, err)
}

func TestAppSourceMigratesLegacyPassword(t *testing.T) {
	config := writeConfig(t, legacyConfig)
	secrets := newMemSecretStore()
	src := NewAppSource(config, secrets, nil)

	creds, err := src.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "legacy-secret", creds.SenderSecret)
	assert.Equal(t, "reader@kindle.com", creds.KindleAddress)
	assert.Equal(t, defaultSMTPHost, creds.SMTPHost)
	assert.Equal(t, defaultSMTPPort, creds.SMTPPort)

	assert.Equal(t, "legacy-secret", secrets.secrets[keyringService+"/sender@gmail.com"])
	assert.Equal(t, 1, secrets.sets)
	assert.Equal(t, 1, config.saves)
	assert.NotContains(t, readFile(t, config.Path()), "smtp_password")
	assert.NotContains(t, readFile(t, config.Path()), "legacy-secret")

	// A second read finds nothing left to migrate.
	creds, err = src.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "legacy-secret", creds.SenderSecret)
	assert.Equal(t, 1, secrets.sets)
	assert.Equal(t, 1, config.saves)
}

func TestAppSourceMigrationSecretStoreFailure(t *testing.T) {
	config := writeConfig(t, legacyConfig)
	secrets := newMemSecretStore()
	secrets.setErr = errors.New("keychain locked")
	src := NewAppSource(config, secrets, nil)

	creds, err := src.Resolve(context.Background())
	require.NoError(t, err, "plaintext password still serves this run")
	assert.Equal(t, "legacy-secret", creds.SenderSecret)

	assert.Zero(t, config.saves, "record must stay untouched when the secret store fails")
	assert.Equal(t, legacyConfig, readFile(t, config.Path()))

	migrated, err := src.Migrate(context.Background())
	assert.Error(t, err)
	assert.False(t, migrated)
}

func TestAppSourceMigrate(t *testing.T) {
	config := writeConfig(t, legacyConfig)
	src := NewAppSource(config, newMemSecretStore(), nil)

	migrated, err := src.Migrate(context.Background())
	require.NoError(t, err)
	assert.True(t, migrated)

	migrated, err = src.Migrate(context.Background())
	require.NoError(t, err)
	assert.False(t, migrated)
}

func TestAppSourceResolveFromSecretStore(t *testing.T) {
	config := writeConfig(t, `{
  "kindle_email": "reader@kindle.com",
  "smtp_email": "sender@example.org",
  "smtp_server": "mail.example.org",
  "smtp_port": 465
}`)
	secrets := newMemSecretStore()
	secrets.secrets[keyringService+"/sender@example.org"] = "stored-secret"

	creds, err := NewAppSource(config, secrets, nil).Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Credentials{
		KindleAddress: "reader@kindle.com",
		SenderAddress: "sender@example.org",
		SenderSecret:  "stored-secret",
		SMTPHost:      "mail.example.org",
		SMTPPort:      465,
	}, creds)
	assert.Zero(t, config.saves)
	assert.Zero(t, secrets.sets)
}

func TestAppSourceMissingCredentials(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		field   string
		secrets map[string]string
	}{
		{"empty config", `{}`, "kindle_email", nil},
		{"no sender", `{"kindle_email": "reader@kindle.com"}`, "smtp_email", nil},
		{"no password anywhere", migratedConfig, "smtp_password", nil},
		{"password stored for another account", migratedConfig, "smtp_password",
			map[string]string{keyringService + "/other@gmail.com": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secrets := newMemSecretStore()
			for k, v := range tt.secrets {
				secrets.secrets[k] = v
			}

			_, err := NewAppSource(writeConfig(t, tt.config), secrets, nil).Resolve(context.Background())

			var missing *MissingCredentialsError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tt.field, missing.Field)
		})
	}
}

func TestAppSourceMissingConfigFile(t *testing.T) {
	config := &countingConfig{ConfigFile: NewConfigFile(filepath.Join(t.TempDir(), "nope", configFileName))}

	_, err := NewAppSource(config, newMemSecretStore(), nil).Resolve(context.Background())

	var missing *MissingCredentialsError
	assert.ErrorAs(t, err, &missing)
}

func TestAppSourceSecretStoreUnavailable(t *testing.T) {
	secrets := newMemSecretStore()
	secrets.getErr = errors.New("dbus: no session bus")

	_, err := NewAppSource(writeConfig(t, migratedConfig), secrets, nil).Resolve(context.Background())

	require.Error(t, err)
	var missing *MissingCredentialsError
	assert.False(t, errors.As(err, &missing))
	assert.Contains(t, err.Error(), "no session bus")
}

func TestAppSourceSaveSettings(t *testing.T) {
	config := &countingConfig{ConfigFile: NewConfigFile(filepath.Join(t.TempDir(), "KindleSend", configFileName))}
	secrets := newMemSecretStore()
	src := NewAppSource(config, secrets, nil)

	err := src.SaveSettings(context.Background(), SettingsInput{
		KindleEmail: " reader@kindle.com ",
		SMTPEmail:   "sender@gmail.com",
		Password:    "new-secret",
	})
	require.NoError(t, err)

	rec, hasSecret, err := src.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, hasSecret)
	assert.Equal(t, "reader@kindle.com", rec.KindleEmail)
	assert.Equal(t, "sender@gmail.com", rec.SMTPEmail)
	assert.NotContains(t, readFile(t, config.Path()), "new-secret")

	// A blank password keeps the stored one.
	err = src.SaveSettings(context.Background(), SettingsInput{
		KindleEmail: "other@kindle.com",
		SMTPEmail:   "sender@gmail.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, secrets.sets)

	creds, err := src.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "other@kindle.com", creds.KindleAddress)
	assert.Equal(t, "new-secret", creds.SenderSecret)
}

func TestAppSourceSaveSettingsChangesSender(t *testing.T) {
	config := writeConfig(t, migratedConfig)
	secrets := newMemSecretStore()
	secrets.secrets[keyringService+"/sender@gmail.com"] = "old-secret"
	src := NewAppSource(config, secrets, nil)

	err := src.SaveSettings(context.Background(), SettingsInput{
		KindleEmail: "reader@kindle.com",
		SMTPEmail:   "new@gmail.com",
		SMTPServer:  "smtp.example.org",
		SMTPPort:    2525,
		Password:    "new-secret",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{keyringService + "/new@gmail.com": "new-secret"}, secrets.secrets)

	creds, err := src.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.org", creds.SMTPHost)
	assert.Equal(t, 2525, creds.SMTPPort)
}

func TestAppSourceSaveSettingsMigratesFirst(t *testing.T) {
	config := writeConfig(t, legacyConfig)
	secrets := newMemSecretStore()
	src := NewAppSource(config, secrets, nil)

	err := src.SaveSettings(context.Background(), SettingsInput{
		KindleEmail: "reader@kindle.com",
		SMTPEmail:   "sender@gmail.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "legacy-secret", secrets.secrets[keyringService+"/sender@gmail.com"])
	assert.NotContains(t, readFile(t, config.Path()), "legacy-secret")
}

func TestAppSourceSaveSettingsPasswordNeedsSender(t *testing.T) {
	src := NewAppSource(writeConfig(t, `{}`), newMemSecretStore(), nil)

	err := src.SaveSettings(context.Background(), SettingsInput{KindleEmail: "reader@kindle.com", Password: "pw"})

	var missing *MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "smtp_email", missing.Field)
}
