package oidc

import (
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/text/language"
)

// Request basically represents one OIDC authentication flow for a user. It
// contains the data needed to uniquely represent that one-time flow across the
// multiple interactions needed to complete the OIDC flow the user is
// attempting.
//
// Request() is passed throughout the OIDC interactions to uniquely identify the
// flow's request. The Request.State() and Request.Nonce() cannot be equal, and
// will be used during the OIDC flow to prevent CSRF and replay attacks (see the
// oidc spec for specifics).
type Request interface {
	// State is a unique identifier and an opaque value used to maintain request
	// between the oidc request and the callback. State cannot equal the Nonce.
	// See https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest.
	State() string

	// Nonce is a unique nonce and a string value used to associate a Client
	// session with an ID Token, and to mitigate replay attacks. Nonce cannot
	// equal the ID.
	// See https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
	// and https://openid.net/specs/openid-connect-core-1_0.html#NonceNotes.
	Nonce() string

	// IsExpired returns true if the request has expired. Implementations should
	// support a time skew (perhaps RequestExpirySkew) when checking expiration.
	IsExpired() bool

	// RedirectURL is a URL where providers will redirect responses to
	// authentication requests.
	RedirectURL() string

	// Audiences is an specific authentication attempt's list of optional
	// case-sensitive strings to use when verifying an id_token's "aud" claim
	// (which is also a list). If provided, the audiences of an id_token must
	// match one of the configured audiences.  If a Request does not have
	// audiences, then the configured list of default audiences will be used.
	Audiences() []string

	// Scopes is a specific authentication attempt's list of optional
	// scopes to request of the provider. The required "oidc" scope is requested
	// by default, and does not need to be part of this optional list. If a
	// Request does not have Scopes, then the configured list of default
	// requested scopes will be used.
	Scopes() []string

	// PKCEVerifier returns the code verifier used for the PKCE challenge, when
	// the request uses one.
	PKCEVerifier() CodeVerifier

	// UILocales optionally specifies End-User's preferred languages via the
	// "ui_locales" parameter.
	UILocales() []language.Tag

	// Prompts optionally defines a list of values that specifies whether the
	// Authorization Server prompts the End-User for reauthentication and
	// consent.
	Prompts() []Prompt

	// MaxAge returns the "max_age" request parameter.  A zero value means it
	// was not set.
	MaxAge() uint

	// AuthParams returns additional parameters added to the authorization URL
	// (for example an API "audience").
	AuthParams() map[string]string
}

// Prompt is a string values that specifies whether the Authorization Server
// prompts the End-User for reauthentication and consent.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
type Prompt string

const (
	None          Prompt = "none"
	Login         Prompt = "login"
	Consent       Prompt = "consent"
	SelectAccount Prompt = "select_account"
)

// Req represents the oidc request used for oidc flows and implements the
// Request interface.
type Req struct {
	state       string
	nonce       string
	expiration  time.Time
	redirectURL string
	audiences   []string
	scopes      []string
	verifier    CodeVerifier
	uiLocales   []language.Tag
	prompts     []Prompt
	maxAge      uint
	authParams  map[string]string

	// nowFunc is an optional function that returns the current time
	nowFunc func() time.Time
}

// ensure that Request implements the Request interface.
var _ Request = (*Req)(nil)

// NewRequest creates a new Request (*Req).
//
//	Supports the options:
//	 * WithNow
//	 * WithAudiences
//	 * WithScopes
//	 * WithPKCE
//	 * WithUILocales
//	 * WithPrompts
//	 * WithMaxAge
//	 * WithAuthParam
func NewRequest(expireIn time.Duration, redirectURL string, opt ...Option) (*Req, error) {
	const op = "oidc.NewRequest"
	opts := getReqOpts(opt...)
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
	}

	state, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
	}

	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	for _, p := range opts.withPrompts {
		if p == None && len(opts.withPrompts) > 1 {
			return nil, fmt.Errorf("%s: prompts (%s) includes \"none\" with other values: %w", op, opts.withPrompts, ErrInvalidParameter)
		}
	}

	var scopes []string
	if len(opts.withScopes) > 0 {
		scopes = append([]string{oidc.ScopeOpenID}, opts.withScopes...)
	}
	r := &Req{
		state:       state,
		nonce:       nonce,
		redirectURL: redirectURL,
		nowFunc:     opts.withNowFunc,
		audiences:   opts.withAudiences,
		scopes:      scopes,
		verifier:    opts.withVerifier,
		uiLocales:   opts.withUILocales,
		prompts:     opts.withPrompts,
		maxAge:      opts.withMaxAge,
		authParams:  opts.withAuthParams,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// State implements the Request.State() interface function.
func (r *Req) State() string { return r.state }

// Nonce implements the Request.Nonce() interface function.
func (r *Req) Nonce() string { return r.nonce }

// Audiences implements the Request.Audiences() interface function and returns a
// copy of the audiences.
func (r *Req) Audiences() []string {
	if r.audiences == nil {
		return nil
	}
	cp := make([]string, len(r.audiences))
	copy(cp, r.audiences)
	return cp
}

// Scopes implements the Request.Scopes() interface function and returns a copy of
// the scopes.
func (r *Req) Scopes() []string {
	if r.scopes == nil {
		return nil
	}
	cp := make([]string, len(r.scopes))
	copy(cp, r.scopes)
	return cp
}

// RedirectURL implements the Request.RedirectURL() interface function.
func (r *Req) RedirectURL() string { return r.redirectURL }

// PKCEVerifier implements the Request.PKCEVerifier() interface function and
// returns a copy of the CodeVerifier.
func (r *Req) PKCEVerifier() CodeVerifier {
	if r.verifier == nil {
		return nil
	}
	return r.verifier.Copy()
}

// UILocales implements the Request.UILocales() interface function.
func (r *Req) UILocales() []language.Tag { return r.uiLocales }

// Prompts implements the Request.Prompts() interface function.
func (r *Req) Prompts() []Prompt { return r.prompts }

// MaxAge implements the Request.MaxAge() interface function.
func (r *Req) MaxAge() uint { return r.maxAge }

// AuthParams implements the Request.AuthParams() interface function and
// returns a copy of the params.
func (r *Req) AuthParams() map[string]string {
	if r.authParams == nil {
		return nil
	}
	cp := make(map[string]string, len(r.authParams))
	for k, v := range r.authParams {
		cp[k] = v
	}
	return cp
}

// RequestExpirySkew defines a time skew when checking a Request's expiration.
const RequestExpirySkew = 1 * time.Second

// IsExpired returns true if the request has expired.
func (r *Req) IsExpired() bool {
	return r.expiration.Before(r.now().Add(RequestExpirySkew))
}

// now returns the current time using the optional timeFn
func (r *Req) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now() // fallback to this default
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withNowFunc    func() time.Time
	withScopes     []string
	withAudiences  []string
	withVerifier   CodeVerifier
	withUILocales  []language.Tag
	withPrompts    []Prompt
	withMaxAge     uint
	withAuthParams map[string]string
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPKCE provides an option to use a CodeVerifier with the authorization
// code flow with PKCE.
//
// Valid for: Req
//
// See: https://tools.ietf.org/html/rfc7636
func WithPKCE(v CodeVerifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withVerifier = v
		}
	}
}

// WithPrompts provides an optional list of values that specifies whether the
// Authorization Server prompts the End-User for reauthentication and consent.
//
// Valid for: Req
func WithPrompts(prompts ...Prompt) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withPrompts = prompts
		}
	}
}

// WithMaxAge provides an optional "max_age" parameter, the allowable elapsed
// time in seconds since the last time the End-User was actively
// authenticated by the provider.
//
// Valid for: Req
func WithMaxAge(seconds uint) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withMaxAge = seconds
		}
	}
}

// WithAuthParam adds an additional parameter to the authorization URL.  The
// reserved oauth/oidc parameters cannot be overridden this way.
//
// Valid for: Req
func WithAuthParam(key, value string) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			if o.withAuthParams == nil {
				o.withAuthParams = map[string]string{}
			}
			o.withAuthParams[key] = value
		}
	}
}
