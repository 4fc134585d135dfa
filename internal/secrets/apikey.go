package secrets

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService groups the engine's secrets in the OS keychain.
	KeyringService = "gmaps-engine"
	placesAccount  = "google-places-api-key"
)

var ErrNoPlacesKey = errors.New("places API key not found (set it in keychain or via env)")

func GetPlacesKey() (string, error) {
	key, err := keyring.Get(KeyringService, placesAccount)
	if err == nil && strings.TrimSpace(key) != "" {
		return strings.TrimSpace(key), nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", err
	}
	return "", ErrNoPlacesKey
}

func SetPlacesKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("api key is empty")
	}
	return keyring.Set(KeyringService, placesAccount, strings.TrimSpace(key))
}

func DeletePlacesKey() error {
	err := keyring.Delete(KeyringService, placesAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// KeyResolver returns the keychain key, falling back to env().
func KeyResolver(env func() string) func() (string, error) {
	return func() (string, error) {
		key, err := GetPlacesKey()
		if err == nil {
			return key, nil
		}
		if env != nil {
			if k := env(); k != "" {
				return k, nil
			}
		}
		return "", err
	}
}
