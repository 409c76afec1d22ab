package credentials

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestSaveLoadDelete(t *testing.T) {
	keyring.MockInit()

	if _, err := Load(); !errors.Is(err, keyring.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := Save(Credentials{Username: "user", Password: "pass"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	creds, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if creds.Username != "user" || creds.Password != "pass" {
		t.Errorf("Unexpected credentials %+v", creds)
	}

	if err := Delete(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := Delete(); !errors.Is(err, keyring.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSaveRequiresBothFields(t *testing.T) {
	keyring.MockInit()

	if err := Save(Credentials{Username: "user"}); err == nil {
		t.Error("Expected error without password")
	}
}

func TestResolve(t *testing.T) {
	keyring.MockInit()

	if got := Resolve("", ""); got.Username != "" {
		t.Errorf("Expected empty credentials, got %+v", got)
	}

	if err := Save(Credentials{Username: "stored", Password: "secret"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	tests := []struct {
		username string
		password string
		expected Credentials
	}{
		{"", "", Credentials{"stored", "secret"}},
		{"config", "pw", Credentials{"config", "pw"}},
		{"stored", "", Credentials{"stored", "secret"}},
		{"other", "", Credentials{"other", ""}},
	}

	for _, test := range tests {
		if got := Resolve(test.username, test.password); got != test.expected {
			t.Errorf("Resolve(%q, %q) = %+v, expected %+v", test.username, test.password, got, test.expected)
		}
	}
}
