// Package credentials persists platform login credentials in the system keyring.
package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	service      = "afreeca-dl"
	usernameUser = "afreecatv-username"
	passwordUser = "afreecatv-password"
)

// Credentials is a platform username and password pair
type Credentials struct {
	Username string
	Password string
}

// Save stores the credentials in the keyring
func Save(creds Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return fmt.Errorf("username and password are required")
	}
	if err := keyring.Set(service, usernameUser, creds.Username); err != nil {
		return fmt.Errorf("failed to store username: %w", err)
	}
	if err := keyring.Set(service, passwordUser, creds.Password); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}
	return nil
}

// Load reads the stored credentials. It returns keyring.ErrNotFound when
// nothing is stored.
func Load() (Credentials, error) {
	username, err := keyring.Get(service, usernameUser)
	if err != nil {
		return Credentials{}, err
	}
	password, err := keyring.Get(service, passwordUser)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: username, Password: password}, nil
}

// Delete removes the stored credentials
func Delete() error {
	errUser := keyring.Delete(service, usernameUser)
	errPass := keyring.Delete(service, passwordUser)
	if errors.Is(errUser, keyring.ErrNotFound) && errors.Is(errPass, keyring.ErrNotFound) {
		return keyring.ErrNotFound
	}
	if errUser != nil && !errors.Is(errUser, keyring.ErrNotFound) {
		return errUser
	}
	if errPass != nil && !errors.Is(errPass, keyring.ErrNotFound) {
		return errPass
	}
	return nil
}

// Resolve returns the configured credentials when both are set, and the
// stored ones otherwise. A missing or unavailable keyring yields empty
// credentials.
func Resolve(username, password string) Credentials {
	if username != "" && password != "" {
		return Credentials{Username: username, Password: password}
	}

	stored, err := Load()
	if err != nil {
		return Credentials{Username: username, Password: password}
	}
	if username != "" && username != stored.Username {
		return Credentials{Username: username, Password: password}
	}
	return stored
}
