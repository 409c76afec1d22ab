package afreecatv

import (
	"context"
	"testing"

	"afreeca-dl/pkg/models"
)

func TestLoginErrorMessage(t *testing.T) {
	tests := []struct {
		code     int64
		expected string
	}{
		{-1, "The username does not exist or you have entered the wrong password."},
		{0, "The username does not exist or you have entered the wrong password."},
		{-3, "You have entered your username/password incorrectly."},
		{-7, "You cannot use your Global AfreecaTV account to access Korean AfreecaTV."},
		{-32008, "You have failed to log in. Please contact our Help Center."},
		{-99, "You have failed to log in."},
	}

	for _, test := range tests {
		if got := LoginErrorMessage(test.code); got != test.expected {
			t.Errorf("LoginErrorMessage(%d) = %q, expected %q", test.code, got, test.expected)
		}
	}
}

func TestLogin(t *testing.T) {
	requester := newScriptedRequester().on("login", `{"RESULT":1}`)
	client := newTestClient(requester, nil, models.ExtractorConfig{})

	if err := client.Login(context.Background(), "user", "pass"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	form := requester.find("login")[0].Form
	if form.Get("szUid") != "user" || form.Get("szPassword") != "pass" || form.Get("szWork") != "login" {
		t.Errorf("Unexpected login form %v", form)
	}
}

func TestLoginFailure(t *testing.T) {
	tests := []struct {
		body     string
		expected string
	}{
		{`{"RESULT":-3}`, "afreecatv said: You have entered your username/password incorrectly."},
		{`{"RESULT":"-10"}`, "afreecatv said: " + LoginErrorMessage(-10)},
		{`{}`, "afreecatv said: You have failed to log in."},
	}

	for _, test := range tests {
		requester := newScriptedRequester().on("login", test.body)
		client := newTestClient(requester, nil, models.ExtractorConfig{})

		err := client.Login(context.Background(), "user", "pass")
		if !models.IsKind(err, models.ErrAuthenticationFailed) {
			t.Errorf("Body %s: expected authentication failure, got %v", test.body, err)
			continue
		}
		if err.Error() != test.expected {
			t.Errorf("Body %s: expected %q, got %q", test.body, test.expected, err.Error())
		}
	}
}
