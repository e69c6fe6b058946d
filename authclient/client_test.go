package authclient

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeiniel/authfacade/oidc"
	"golang.org/x/text/language"
)

func testNewClient(t *testing.T, tp *oidc.TestProvider, opts ClientOptions, opt ...Option) (*Client, *TestNavigator) {
	t.Helper()
	nav := &TestNavigator{}
	opt = append([]Option{WithNavigator(nav), WithLogger(hclog.NewNullLogger())}, opt...)
	c, err := New(context.Background(), opts, opt...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, nav
}

func testLogin(t *testing.T, tp *oidc.TestProvider, c *Client, nav *TestNavigator, lo LoginOptions) string {
	t.Helper()
	require.NoError(t, c.LoginWithRedirect(context.Background(), lo))
	return TestAuthorize(t, tp, nav.Last())
}

func TestNew(t *testing.T) {
	t.Parallel()
	tp := oidc.StartTestProvider(t)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name      string
		ctx       context.Context
		opts      func() ClientOptions
		wantErrIs error
	}{
		{
			name: "valid",
			ctx:  context.Background(),
			opts: func() ClientOptions { return TestClientOptions(t, tp) },
		},
		{
			name: "public-client",
			ctx:  context.Background(),
			opts: func() ClientOptions {
				o := TestClientOptions(t, tp)
				o.ClientSecret = ""
				return o
			},
		},
		{
			name: "missing-client-id",
			ctx:  context.Background(),
			opts: func() ClientOptions {
				o := TestClientOptions(t, tp)
				o.ClientID = ""
				return o
			},
			wantErrIs: ErrInvalidOptions,
		},
		{
			name: "bad-ca",
			ctx:  context.Background(),
			opts: func() ClientOptions {
				o := TestClientOptions(t, tp)
				o.ProviderCA = "not a pem"
				return o
			},
			wantErrIs: oidc.ErrInvalidCACert,
		},
		{
			name:      "canceled",
			ctx:       canceled,
			opts:      func() ClientOptions { return TestClientOptions(t, tp) },
			wantErrIs: context.Canceled,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			c, err := New(tt.ctx, tt.opts())
			if tt.wantErrIs != nil {
				require.Error(err)
				assert.Nil(c)
				assert.ErrorIs(err, tt.wantErrIs)
				return
			}
			require.NoError(err)
			defer c.Close()
			assert.Equal(DefaultScope, c.Options().Scope)
			assert.Equal(DefaultLogoutPath, c.Options().LogoutPath)
			assert.Equal(DefaultTransactionTimeout, c.Options().TransactionTimeout)
		})
	}
}

func TestClient_LoginWithRedirect(t *testing.T) {
	t.Parallel()
	tp := oidc.StartTestProvider(t)

	t.Run("authorize-url", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		opts := TestClientOptions(t, tp)
		opts.Audience = "https://api.example.com"
		c, nav := testNewClient(t, tp, opts)

		err := c.LoginWithRedirect(context.Background(), LoginOptions{
			AppState:    "state",
			Prompt:      oidc.Login,
			MaxAge:      60,
			UILocales:   []language.Tag{language.English},
			ExtraParams: map[string]string{"screen_hint": "signup"},
		})
		require.NoError(err)
		require.Len(nav.URLs(), 1)

		u, err := url.Parse(nav.Last())
		require.NoError(err)
		assert.Equal(tp.Addr()+"/authorize", u.Scheme+"://"+u.Host+u.Path)
		q := u.Query()
		assert.Equal(oidc.DefaultTestClientID, q.Get("client_id"))
		assert.Equal(oidc.DefaultTestRedirectURI, q.Get("redirect_uri"))
		assert.Equal("code", q.Get("response_type"))
		assert.Equal("openid profile email", q.Get("scope"))
		assert.Equal("https://api.example.com", q.Get("audience"))
		assert.Equal("login", q.Get("prompt"))
		assert.Equal("60", q.Get("max_age"))
		assert.Equal("en", q.Get("ui_locales"))
		assert.Equal("signup", q.Get("screen_hint"))
		assert.Equal("S256", q.Get("code_challenge_method"))
		assert.NotEmpty(q.Get("code_challenge"))
		assert.NotEmpty(q.Get("state"))
		assert.NotEmpty(q.Get("nonce"))
	})
	t.Run("scope-override", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, nav := testNewClient(t, tp, TestClientOptions(t, tp))
		require.NoError(c.LoginWithRedirect(context.Background(), LoginOptions{Scope: "email"}))
		u, err := url.Parse(nav.Last())
		require.NoError(err)
		assert.Equal("openid email", u.Query().Get("scope"))
	})
	t.Run("reserved-param", func(t *testing.T) {
		assert := assert.New(t)
		c, nav := testNewClient(t, tp, TestClientOptions(t, tp))
		err := c.LoginWithRedirect(context.Background(), LoginOptions{ExtraParams: map[string]string{"state": "mine"}})
		assert.ErrorIs(err, oidc.ErrInvalidParameter)
		assert.Empty(nav.URLs())
	})
	t.Run("context-navigator", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, nav := testNewClient(t, tp, TestClientOptions(t, tp))
		var got string
		ctx := NavigatorContext(context.Background(), NavigatorFunc(func(_ context.Context, u string) error {
			got = u
			return nil
		}))
		require.NoError(c.LoginWithRedirect(ctx, LoginOptions{}))
		assert.NotEmpty(got)
		assert.Empty(nav.URLs())
	})
	t.Run("navigate-error", func(t *testing.T) {
		assert := assert.New(t)
		c, _ := testNewClient(t, tp, TestClientOptions(t, tp))
		boom := errors.New("boom")
		ctx := NavigatorContext(context.Background(), NavigatorFunc(func(context.Context, string) error { return boom }))
		assert.ErrorIs(c.LoginWithRedirect(ctx, LoginOptions{}), boom)
	})
}

func TestClient_HandleRedirectCallback(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		ctx := context.Background()
		tp := oidc.StartTestProvider(t)
		c, _ := testNewClient(t, tp, TestClientOptions(t, tp))

		ok, err := c.IsAuthenticated(ctx)
		require.NoError(err)
		assert.False(ok)
		p, err := c.User(ctx)
		require.NoError(err)
		assert.Nil(p)

		type appState struct{ Target string }
		callback := testLogin(t, tp, c, nav(c), LoginOptions{AppState: appState{Target: "/foo"}})
		assert.Contains(callback, "code=")
		assert.Contains(callback, "state=")

		res, err := c.HandleRedirectCallback(ctx, callback)
		require.NoError(err)
		assert.Equal(appState{Target: "/foo"}, res.AppState)
		assert.Equal(1, tp.TokenRequests())

		ok, err = c.IsAuthenticated(ctx)
		require.NoError(err)
		assert.True(ok)
		p, err = c.User(ctx)
		require.NoError(err)
		assert.Equal(oidc.DefaultTestSubject, p.Subject())
		assert.NotContains(p, "flavor")

		// the transaction is gone
		_, err = c.HandleRedirectCallback(ctx, callback)
		assert.ErrorIs(err, ErrInvalidState)
		assert.ErrorIs(err, ErrNotFound)
		assert.Equal(1, tp.TokenRequests())
	})
	t.Run("absolute-url", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		tp := oidc.StartTestProvider(t)
		c, _ := testNewClient(t, tp, TestClientOptions(t, tp))
		callback := testLogin(t, tp, c, nav(c), LoginOptions{})
		_, err := c.HandleRedirectCallback(context.Background(), "https://example.com"+callback)
		require.NoError(err)
	})
	t.Run("fragment", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		tp := oidc.StartTestProvider(t)
		c, _ := testNewClient(t, tp, TestClientOptions(t, tp))
		callback := testLogin(t, tp, c, nav(c), LoginOptions{})
		u, err := url.Parse(callback)
		require.NoError(err)
		_, err = c.HandleRedirectCallback(context.Background(), u.Path+"#"+u.RawQuery)
		require.NoError(err)
	})
	t.Run("public-client", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		tp.SetClientCreds(oidc.DefaultTestClientID, "")
		opts := TestClientOptions(t, tp)
		opts.ClientSecret = ""
		c, _ := testNewClient(t, tp, opts)
		callback := testLogin(t, tp, c, nav(c), LoginOptions{})
		_, err := c.HandleRedirectCallback(context.Background(), callback)
		require.NoError(err)
		ok, err := c.IsAuthenticated(context.Background())
		require.NoError(err)
		assert.True(ok)
	})
	t.Run("userinfo", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		opts := TestClientOptions(t, tp)
		opts.FetchUserInfo = true
		c, _ := testNewClient(t, tp, opts)
		callback := testLogin(t, tp, c, nav(c), LoginOptions{})
		_, err := c.HandleRedirectCallback(context.Background(), callback)
		require.NoError(err)
		p, err := c.User(context.Background())
		require.NoError(err)
		assert.Equal("umami", p["flavor"])
		assert.Equal("alice smith", p["name"])
	})
	t.Run("provider-error", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		c, n := testNewClient(t, tp, TestClientOptions(t, tp))
		require.NoError(c.LoginWithRedirect(context.Background(), LoginOptions{AppState: "/after"}))
		u, err := url.Parse(n.Last())
		require.NoError(err)
		state := u.Query().Get("state")

		_, err = c.HandleRedirectCallback(context.Background(), "/callback?error=access_denied&error_description=nope&state="+url.QueryEscape(state))
		require.Error(err)
		assert.ErrorIs(err, ErrAuthentication)
		var authErr *AuthenticationError
		require.True(errors.As(err, &authErr))
		assert.Equal("access_denied", authErr.Code)
		assert.Equal("nope", authErr.Description)
		assert.Equal(state, authErr.State)
		assert.Equal("/after", authErr.AppState)
		assert.Equal(0, tp.TokenRequests())
	})
	t.Run("missing-params", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		tp := oidc.StartTestProvider(t)
		c, _ := testNewClient(t, tp, TestClientOptions(t, tp))
		_, err := c.HandleRedirectCallback(context.Background(), "/callback?code=abc")
		assert.ErrorIs(err, ErrInvalidState)
		_, err = c.HandleRedirectCallback(context.Background(), "/callback?state=xyz")
		assert.ErrorIs(err, ErrInvalidParameter)
		_, err = c.HandleRedirectCallback(context.Background(), "/callback?code=abc&state=unknown")
		assert.ErrorIs(err, ErrInvalidState)
		assert.Equal(0, tp.TokenRequests())
	})
	t.Run("expired-transaction", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		tp := oidc.StartTestProvider(t)
		clock := clockwork.NewFakeClockAt(time.Now())
		opts := TestClientOptions(t, tp)
		opts.TransactionTimeout = time.Minute
		c, _ := testNewClient(t, tp, opts, WithNow(clock.Now))
		callback := testLogin(t, tp, c, nav(c), LoginOptions{})
		clock.Advance(2 * time.Minute)
		_, err := c.HandleRedirectCallback(context.Background(), callback)
		assert.ErrorIs(err, oidc.ErrExpiredRequest)
		assert.Equal(0, tp.TokenRequests())
	})
	t.Run("missing-id-token", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		tp.OmitIDTokens()
		c, _ := testNewClient(t, tp, TestClientOptions(t, tp))
		callback := testLogin(t, tp, c, nav(c), LoginOptions{})
		_, err := c.HandleRedirectCallback(context.Background(), callback)
		assert.ErrorIs(err, oidc.ErrMissingIDToken)
		ok, err := c.IsAuthenticated(context.Background())
		require.NoError(err)
		assert.False(ok)
	})
	t.Run("session-expiry", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		clock := clockwork.NewFakeClockAt(time.Now())
		c, _ := testNewClient(t, tp, TestClientOptions(t, tp), WithNow(clock.Now))
		callback := testLogin(t, tp, c, nav(c), LoginOptions{})
		_, err := c.HandleRedirectCallback(context.Background(), callback)
		require.NoError(err)
		ok, err := c.IsAuthenticated(context.Background())
		require.NoError(err)
		assert.True(ok)

		clock.Advance(10 * time.Minute)
		ok, err = c.IsAuthenticated(context.Background())
		require.NoError(err)
		assert.False(ok)
		p, err := c.User(context.Background())
		require.NoError(err)
		assert.Nil(p)
	})
}

func TestClient_Logout(t *testing.T) {
	t.Parallel()

	t.Run("end-session", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		ctx := context.Background()
		tp := oidc.StartTestProvider(t)
		c, n := testNewClient(t, tp, TestClientOptions(t, tp))
		_, err := c.HandleRedirectCallback(ctx, testLogin(t, tp, c, n, LoginOptions{}))
		require.NoError(err)

		require.NoError(c.Logout(ctx, LogoutOptions{ReturnTo: "https://app.example.com"}))
		u, err := url.Parse(n.Last())
		require.NoError(err)
		assert.Equal(tp.Addr()+"/logout", u.Scheme+"://"+u.Host+u.Path)
		q := u.Query()
		assert.Equal(oidc.DefaultTestClientID, q.Get("client_id"))
		assert.Equal("https://app.example.com", q.Get("post_logout_redirect_uri"))
		assert.NotEmpty(q.Get("id_token_hint"))

		ok, err := c.IsAuthenticated(ctx)
		require.NoError(err)
		assert.False(ok)

		// the provider sends the user agent back
		resp, err := tp.HTTPClient().Get(n.Last())
		require.NoError(err)
		defer resp.Body.Close()
		assert.Equal("https://app.example.com", resp.Header.Get("Location"))
		assert.Equal(q.Get("id_token_hint"), tp.LastEndSessionRequest().Get("id_token_hint"))
	})
	t.Run("logout-path", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		tp.DisableEndSession()
		c, n := testNewClient(t, tp, TestClientOptions(t, tp))

		require.NoError(c.Logout(context.Background(), LogoutOptions{ClientID: "other", ReturnTo: "https://app.example.com"}))
		u, err := url.Parse(n.Last())
		require.NoError(err)
		assert.Equal(tp.Addr()+DefaultLogoutPath, u.Scheme+"://"+u.Host+u.Path)
		assert.Equal("other", u.Query().Get("client_id"))
		assert.Equal("https://app.example.com", u.Query().Get("returnTo"))
	})
	t.Run("local-only", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		ctx := context.Background()
		tp := oidc.StartTestProvider(t)
		c, n := testNewClient(t, tp, TestClientOptions(t, tp))
		_, err := c.HandleRedirectCallback(ctx, testLogin(t, tp, c, n, LoginOptions{}))
		require.NoError(err)
		navigated := len(n.URLs())

		require.NoError(c.Logout(ctx, LogoutOptions{LocalOnly: true}))
		assert.Len(n.URLs(), navigated)
		ok, err := c.IsAuthenticated(ctx)
		require.NoError(err)
		assert.False(ok)
	})
}

func TestClient_LogoutURL(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := oidc.StartTestProvider(t)
	tp.DisableEndSession()
	opts := TestClientOptions(t, tp)
	opts.LogoutPath = "/oidc/logout"
	c, _ := testNewClient(t, tp, opts)
	got, err := c.LogoutURL(context.Background(), LogoutOptions{})
	require.NoError(err)
	assert.True(strings.HasPrefix(got, tp.Addr()+"/oidc/logout?"), got)
	assert.NotContains(got, "returnTo")
}

// nav returns the client's configured TestNavigator.
func nav(c *Client) *TestNavigator {
	return c.navigator.(*TestNavigator)
}
