package afreecatv

import (
	"context"
	"net/http"
	"net/url"

	"afreeca-dl/pkg/models"
)

const loginURL = "https://login.afreecatv.com/app/LoginAction.php"

const defaultLoginError = "You have failed to log in."

var loginErrors = map[int64]string{
	-4:     "Your account has been suspended due to a violation of our terms and policies.",
	-5:     "https://member.afreecatv.com/app/user_delete_progress.php",
	-6:     "https://login.afreecatv.com/membership/changeMember.php",
	-8:     "Hello! AfreecaTV here.\nThe username you have entered belongs to \n an account that requires a legal guardian's consent. \nIf you wish to use our services without restriction, \nplease make sure to go through the necessary verification process.",
	-9:     "https://member.afreecatv.com/app/pop_login_block.php",
	-11:    "https://login.afreecatv.com/afreeca/second_login.php",
	-12:    "https://member.afreecatv.com/app/user_security.php",
	0:      "The username does not exist or you have entered the wrong password.",
	-1:     "The username does not exist or you have entered the wrong password.",
	-3:     "You have entered your username/password incorrectly.",
	-7:     "You cannot use your Global AfreecaTV account to access Korean AfreecaTV.",
	-10:    "Sorry for the inconvenience. \nYour account has been blocked due to an unauthorized access. \nPlease contact our Help Center for assistance.",
	-32008: "You have failed to log in. Please contact our Help Center.",
}

// LoginErrorMessage returns the user facing message for a login result code
func LoginErrorMessage(code int64) string {
	if msg, ok := loginErrors[code]; ok {
		return msg
	}
	return defaultLoginError
}

// Login submits the login form. The session cookies end up in the
// requester's cookie jar.
func (c *Client) Login(ctx context.Context, username, password string) error {
	resp, err := c.requester.JSON(ctx, models.Request{
		Method: http.MethodPost,
		URL:    loginURL,
		Form: url.Values{
			"szWork":      {"login"},
			"szType":      {"json"},
			"szUid":       {username},
			"szPassword":  {password},
			"isSaveId":    {"false"},
			"szScriptVar": {"oLoginRet"},
			"szAction":    {""},
		},
		Note:     "Logging in",
		Endpoint: "login",
	})
	if err != nil {
		return requestError("unable to login", err)
	}

	result := resp.Get("RESULT")
	if result.Exists() && result.Int() == 1 {
		c.logger.Info().Str("user", username).Msg("Logged in")
		return nil
	}

	msg := defaultLoginError
	if result.Exists() {
		msg = LoginErrorMessage(result.Int())
	}
	return expectedError(models.ErrAuthenticationFailed, models.ExtractorVOD, "%s", msg)
}
