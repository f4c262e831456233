package main

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// ErrSecretNotFound is returned when the store has no entry for an account
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore persists the SMTP app password outside the config file
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, secret string) error
	Delete(service, account string) error
}

// KeyringStore keeps secrets in the OS credential store (macOS Keychain,
// Secret Service, Windows Credential Manager)
type KeyringStore struct{}

func (KeyringStore) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrSecretNotFound
	}
	return secret, err
}

func (KeyringStore) Set(service, account, secret string) error {
	return keyring.Set(service, account, secret)
}

func (KeyringStore) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrSecretNotFound
	}
	return err
}
