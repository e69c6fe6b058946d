package authclient

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"github.com/yeiniel/authfacade/oidc"
)

const (
	// DefaultScope is requested when ClientOptions.Scope is empty.
	DefaultScope = "openid profile email"

	// DefaultLogoutPath is used to build the logout URL when the provider
	// doesn't advertise an end_session_endpoint.
	DefaultLogoutPath = "/v2/logout"

	// DefaultTransactionTimeout is how long a login transaction waits for its
	// redirect callback.
	DefaultTransactionTimeout = 10 * time.Minute

	// EnvPrefix prefixes every environment variable read by OptionsFromEnv.
	EnvPrefix = "AUTH_"
)

// ClientOptions is the configuration of a Client.  It's supplied once and
// must not change after the Client is created.
type ClientOptions struct {
	// Domain is the provider's domain, for example "tenant.auth0.com".
	Domain string `env:"DOMAIN"`

	// Issuer overrides the issuer derived from Domain ("https://<Domain>/").
	Issuer string `env:"ISSUER"`

	// ClientID is the relying party id.
	ClientID string `env:"CLIENT_ID"`

	// ClientSecret is optional.  Without it the client is a public client and
	// relies on PKCE only.
	ClientSecret oidc.ClientSecret `env:"CLIENT_SECRET"`

	// RedirectURI is where the provider sends the user back to.
	RedirectURI string `env:"REDIRECT_URI"`

	// Audience is the optional API audience requested with the login.
	Audience string `env:"AUDIENCE"`

	// Scope is a space separated list of scopes.
	Scope string `env:"SCOPE"`

	// ProviderCA is an optional PEM encoded CA used when calling the provider.
	ProviderCA string `env:"PROVIDER_CA"`

	// SigningAlgs lists the accepted id_token signing algorithms.  Defaults to
	// RS256.
	SigningAlgs []string `env:"SIGNING_ALGS" envSeparator:","`

	// LogoutPath is appended to the issuer when the provider has no
	// end_session_endpoint.
	LogoutPath string `env:"LOGOUT_PATH"`

	// TransactionTimeout bounds the time between the login redirect and its
	// callback.
	TransactionTimeout time.Duration `env:"TRANSACTION_TIMEOUT"`

	// FetchUserInfo merges the provider's userinfo claims into the profile
	// when handling the redirect callback.
	FetchUserInfo bool `env:"FETCH_USERINFO"`
}

// OptionsFromEnv reads ClientOptions from AUTH_ prefixed environment
// variables (AUTH_DOMAIN, AUTH_CLIENT_ID, ...).
func OptionsFromEnv() (ClientOptions, error) {
	const op = "authclient.OptionsFromEnv"
	var opts ClientOptions
	if err := env.ParseWithOptions(&opts, env.Options{Prefix: EnvPrefix}); err != nil {
		return ClientOptions{}, fmt.Errorf("%s: %w", op, err)
	}
	return opts, nil
}

// IssuerURL returns the configured issuer, or the issuer derived from Domain.
func (o ClientOptions) IssuerURL() string {
	if o.Issuer != "" {
		return o.Issuer
	}
	if o.Domain == "" {
		return ""
	}
	if strings.HasPrefix(o.Domain, "https://") || strings.HasPrefix(o.Domain, "http://") {
		return strings.TrimSuffix(o.Domain, "/") + "/"
	}
	return "https://" + strings.TrimSuffix(o.Domain, "/") + "/"
}

// Algs returns the accepted signing algorithms with the RS256 default.
func (o ClientOptions) Algs() []oidc.Alg {
	if len(o.SigningAlgs) == 0 {
		return []oidc.Alg{oidc.RS256}
	}
	algs := make([]oidc.Alg, 0, len(o.SigningAlgs))
	for _, a := range o.SigningAlgs {
		algs = append(algs, oidc.Alg(strings.TrimSpace(a)))
	}
	return algs
}

// withDefaults returns a copy with the zero values replaced by defaults.
func (o ClientOptions) withDefaults() ClientOptions {
	if o.Scope == "" {
		o.Scope = DefaultScope
	}
	if o.LogoutPath == "" {
		o.LogoutPath = DefaultLogoutPath
	}
	if o.TransactionTimeout == 0 {
		o.TransactionTimeout = DefaultTransactionTimeout
	}
	return o
}

// Validate reports every problem with the options at once.
func (o ClientOptions) Validate() error {
	const op = "ClientOptions.Validate"
	var result *multierror.Error
	if o.Domain == "" && o.Issuer == "" {
		result = multierror.Append(result, fmt.Errorf("domain and issuer are both empty: %w", ErrInvalidParameter))
	}
	if o.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	switch u, err := url.Parse(o.RedirectURI); {
	case o.RedirectURI == "":
		result = multierror.Append(result, fmt.Errorf("redirect uri is empty: %w", ErrInvalidParameter))
	case err != nil:
		result = multierror.Append(result, fmt.Errorf("redirect uri %q is invalid: %s: %w", o.RedirectURI, err, ErrInvalidParameter))
	case !u.IsAbs():
		result = multierror.Append(result, fmt.Errorf("redirect uri %q is not absolute: %w", o.RedirectURI, ErrInvalidParameter))
	}
	if o.TransactionTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("transaction timeout %s is negative: %w", o.TransactionTimeout, ErrInvalidParameter))
	}
	for _, a := range o.Algs() {
		if !a.IsSupported() {
			result = multierror.Append(result, fmt.Errorf("signing alg %q is not supported: %w", a, ErrInvalidParameter))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidOptions, err)
	}
	return nil
}
