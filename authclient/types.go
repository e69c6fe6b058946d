package authclient

import (
	"github.com/yeiniel/authfacade/oidc"
	"golang.org/x/text/language"
)

// Profile is the set of claims describing the signed in user.
type Profile map[string]interface{}

// Subject returns the "sub" claim.
func (p Profile) Subject() string {
	s, _ := p["sub"].(string)
	return s
}

// LoginOptions customizes one login.  Empty fields fall back to the
// ClientOptions.
type LoginOptions struct {
	// AppState is returned by HandleRedirectCallback once the user is back.
	AppState interface{}

	RedirectURI string
	Audience    string
	Scope       string
	Prompt      oidc.Prompt
	MaxAge      uint
	UILocales   []language.Tag

	// ExtraParams are added to the authorize URL.
	ExtraParams map[string]string
}

// LogoutOptions customizes a logout.
type LogoutOptions struct {
	// ClientID is sent to the provider's logout endpoint.  Defaults to
	// ClientOptions.ClientID.
	ClientID string

	// ReturnTo is where the provider sends the user after logging out.
	ReturnTo string

	// LocalOnly clears the session without navigating to the provider.
	LocalOnly bool
}

// RedirectLoginResult is the outcome of a redirect callback.
type RedirectLoginResult struct {
	AppState interface{}
}
