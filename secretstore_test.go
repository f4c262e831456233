package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	store := KeyringStore{}

	_, err := store.Get(keyringService, "sender@gmail.com")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, store.Set(keyringService, "sender@gmail.com", "app-password"))

	secret, err := store.Get(keyringService, "sender@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "app-password", secret)

	require.NoError(t, store.Delete(keyringService, "sender@gmail.com"))
	assert.ErrorIs(t, store.Delete(keyringService, "sender@gmail.com"), ErrSecretNotFound)
}

func TestAppSourceWithKeyring(t *testing.T) {
	keyring.MockInit()
	config := writeConfig(t, legacyConfig)

	creds, err := NewAppSource(config, KeyringStore{}, nil).Resolve(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "legacy-secret", creds.SenderSecret)

	stored, err := keyring.Get(keyringService, "sender@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "legacy-secret", stored)
}
