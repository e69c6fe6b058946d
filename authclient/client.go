package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/yeiniel/authfacade/oidc"
	"gopkg.in/square/go-jose.v2/jwt"
)

// Client is a redirect based OIDC authentication client for one user agent.
type Client struct {
	opts     ClientOptions
	provider *oidc.Provider

	logger    hclog.Logger
	navigator Navigator
	cache     Cache
	txs       TransactionStore
	nowFunc   func() time.Time
}

// New validates the options and creates a Client.  It makes an http request
// to the issuer's discovery endpoint.  See Client.Close() which must be
// called to release the client's resources.
//
// Supported options:
//   - WithLogger
//   - WithNavigator
//   - WithCache
//   - WithTransactionStore
//   - WithNow
func New(ctx context.Context, opts ClientOptions, opt ...Option) (*Client, error) {
	const op = "authclient.New"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts = opts.withDefaults()
	o := getClientOpts(opt...)

	cfgOpts := []oidc.Option{
		oidc.WithScopes(strings.Fields(opts.Scope)...),
		oidc.WithNow(o.withNowFunc),
	}
	if opts.ProviderCA != "" {
		cfgOpts = append(cfgOpts, oidc.WithProviderCA(opts.ProviderCA))
	}
	cfg, err := oidc.NewConfig(opts.IssuerURL(), opts.ClientID, opts.ClientSecret, opts.Algs(), nil, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := oidc.NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := &Client{
		opts:      opts,
		provider:  p,
		logger:    o.withLogger.Named("authclient"),
		navigator: o.withNavigator,
		cache:     o.withCache,
		txs:       o.withTransactionStore,
		nowFunc:   o.withNowFunc,
	}
	c.logger.Debug("client created", "issuer", cfg.Issuer, "client_id", opts.ClientID)
	return c, nil
}

// Options returns the options the client was created with, including
// defaults.
func (c *Client) Options() ClientOptions { return c.opts }

// Close releases the provider's resources.
func (c *Client) Close() error {
	c.provider.Done()
	return nil
}

// LoginURL starts a login transaction and returns the provider's authorize
// URL for it.
func (c *Client) LoginURL(ctx context.Context, lo LoginOptions) (string, error) {
	const op = "Client.LoginURL"
	redirect := lo.RedirectURI
	if redirect == "" {
		redirect = c.opts.RedirectURI
	}
	verifier, err := oidc.NewCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	reqOpts := []oidc.Option{
		oidc.WithPKCE(verifier),
		oidc.WithNow(c.nowFunc),
	}
	if lo.Scope != "" {
		reqOpts = append(reqOpts, oidc.WithScopes(strings.Fields(lo.Scope)...))
	}
	if len(lo.UILocales) > 0 {
		reqOpts = append(reqOpts, oidc.WithUILocales(lo.UILocales...))
	}
	if lo.Prompt != "" {
		reqOpts = append(reqOpts, oidc.WithPrompts(lo.Prompt))
	}
	if lo.MaxAge > 0 {
		reqOpts = append(reqOpts, oidc.WithMaxAge(lo.MaxAge))
	}
	audience := lo.Audience
	if audience == "" {
		audience = c.opts.Audience
	}
	if audience != "" {
		reqOpts = append(reqOpts, oidc.WithAuthParam("audience", audience))
	}
	for k, v := range lo.ExtraParams {
		reqOpts = append(reqOpts, oidc.WithAuthParam(k, v))
	}
	req, err := oidc.NewRequest(c.opts.TransactionTimeout, redirect, reqOpts...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	authURL, err := c.provider.AuthURL(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := c.txs.Save(ctx, &Transaction{Request: req, AppState: lo.AppState}); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return authURL, nil
}

// LoginWithRedirect starts a login transaction and navigates the user agent
// to the provider's authorize URL.
func (c *Client) LoginWithRedirect(ctx context.Context, lo LoginOptions) error {
	const op = "Client.LoginWithRedirect"
	authURL, err := c.LoginURL(ctx, lo)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := navigatorFromContext(ctx, c.navigator).Navigate(ctx, authURL); err != nil {
		return fmt.Errorf("%s: unable to navigate: %w", op, err)
	}
	return nil
}

// HandleRedirectCallback completes the login transaction identified by the
// "state" parameter of the callback URL.  The url may be absolute or just the
// path and query.  Parameters are read from the query, or from the fragment
// when the query has none.
func (c *Client) HandleRedirectCallback(ctx context.Context, callbackURL string) (*RedirectLoginResult, error) {
	const op = "Client.HandleRedirectCallback"
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse callback url: %s: %w", op, err, ErrInvalidParameter)
	}
	params := u.Query()
	if len(params) == 0 && u.Fragment != "" {
		if params, err = url.ParseQuery(u.Fragment); err != nil {
			return nil, fmt.Errorf("%s: unable to parse callback fragment: %s: %w", op, err, ErrInvalidParameter)
		}
	}

	state := params.Get("state")
	if code := params.Get("error"); code != "" {
		authErr := &AuthenticationError{
			Code:        code,
			Description: params.Get("error_description"),
			State:       state,
		}
		if state != "" {
			if tx, err := c.txs.Take(ctx, state); err == nil {
				authErr.AppState = tx.AppState
			}
		}
		return nil, fmt.Errorf("%s: %w", op, authErr)
	}
	if state == "" {
		return nil, fmt.Errorf("%s: callback is missing state: %w", op, ErrInvalidState)
	}
	code := params.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%s: callback is missing code: %w", op, ErrInvalidParameter)
	}

	tx, err := c.txs.Take(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("%s: no login transaction for state: %w: %w", op, ErrInvalidState, err)
	}
	tk, err := c.provider.Exchange(ctx, tx.Request, state, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var claims Profile
	if err := tk.IDToken().Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if c.opts.FetchUserInfo {
		var info map[string]interface{}
		switch err := c.provider.UserInfo(ctx, tk.StaticTokenSource(), claims.Subject(), &info); {
		case err != nil:
			// the id_token claims are enough for a session
			c.logger.Warn("unable to fetch userinfo", "error", err)
		default:
			for k, v := range info {
				if _, ok := claims[k]; !ok {
					claims[k] = v
				}
			}
		}
	}

	var std jwt.Claims
	if err := tk.IDToken().Claims(&std); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s := &Session{Token: tk, Claims: claims}
	if std.Expiry != nil {
		s.ExpiresAt = std.Expiry.Time()
	}
	if err := c.cache.Set(ctx, s); err != nil {
		return nil, fmt.Errorf("%s: unable to store session: %w", op, err)
	}
	c.logger.Debug("user signed in", "sub", claims.Subject())
	return &RedirectLoginResult{AppState: tx.AppState}, nil
}

// IsAuthenticated reports whether there is a session whose id_token has not
// expired.
func (c *Client) IsAuthenticated(ctx context.Context) (bool, error) {
	const op = "Client.IsAuthenticated"
	s, err := c.session(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return s != nil, nil
}

// User returns the signed in user's claims, or nil when nobody is signed in.
func (c *Client) User(ctx context.Context) (Profile, error) {
	const op = "Client.User"
	s, err := c.session(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s == nil {
		return nil, nil
	}
	p := make(Profile, len(s.Claims))
	for k, v := range s.Claims {
		p[k] = v
	}
	return p, nil
}

// LogoutURL returns the provider's logout URL.  It uses the discovered
// end_session_endpoint and falls back to the issuer's LogoutPath.
func (c *Client) LogoutURL(ctx context.Context, lo LogoutOptions) (string, error) {
	const op = "Client.LogoutURL"
	clientID := lo.ClientID
	if clientID == "" {
		clientID = c.opts.ClientID
	}
	u, err := c.provider.EndSessionURL()
	switch {
	case err == nil:
		q := u.Query()
		q.Set("client_id", clientID)
		if lo.ReturnTo != "" {
			q.Set("post_logout_redirect_uri", lo.ReturnTo)
		}
		s, err := c.cache.Get(ctx)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if s != nil && s.Token != nil {
			q.Set("id_token_hint", string(s.Token.IDToken()))
		}
		u.RawQuery = q.Encode()
	case errors.Is(err, oidc.ErrMissingEndSession):
		u, err = url.Parse(strings.TrimSuffix(c.opts.IssuerURL(), "/") + c.opts.LogoutPath)
		if err != nil {
			return "", fmt.Errorf("%s: invalid logout path: %w", op, err)
		}
		q := u.Query()
		q.Set("client_id", clientID)
		if lo.ReturnTo != "" {
			q.Set("returnTo", lo.ReturnTo)
		}
		u.RawQuery = q.Encode()
	default:
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u.String(), nil
}

// Logout clears the session and, unless LocalOnly is set, navigates the user
// agent to the provider's logout URL.
func (c *Client) Logout(ctx context.Context, lo LogoutOptions) error {
	const op = "Client.Logout"
	var logoutURL string
	if !lo.LocalOnly {
		var err error
		if logoutURL, err = c.LogoutURL(ctx, lo); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := c.cache.Clear(ctx); err != nil {
		return fmt.Errorf("%s: unable to clear session: %w", op, err)
	}
	if lo.LocalOnly {
		return nil
	}
	if err := navigatorFromContext(ctx, c.navigator).Navigate(ctx, logoutURL); err != nil {
		return fmt.Errorf("%s: unable to navigate: %w", op, err)
	}
	return nil
}

func (c *Client) session(ctx context.Context) (*Session, error) {
	s, err := c.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	if !s.ExpiresAt.IsZero() && !c.now().Before(s.ExpiresAt) {
		return nil, nil
	}
	return s, nil
}

func (c *Client) now() time.Time {
	if c.nowFunc != nil {
		return c.nowFunc()
	}
	return time.Now() // fallback to this default
}
