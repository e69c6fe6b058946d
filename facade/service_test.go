package facade

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeiniel/authfacade/authclient"
)

const testOrigin = "https://app.example.com"

var testOpts = authclient.ClientOptions{
	Domain:      "tenant.example.com",
	ClientID:    "client",
	RedirectURI: testOrigin + "/callback",
}

func testService(t *testing.T, f *TestFactory, opt ...Option) *Service {
	t.Helper()
	opt = append([]Option{WithFactory(f.Factory())}, opt...)
	s, err := New(testOpts, StaticLocation(testOrigin), opt...)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	t.Parallel()
	t.Run("nil-location", func(t *testing.T) {
		assert := assert.New(t)
		s, err := New(testOpts, nil)
		assert.ErrorIs(err, ErrNilParameter)
		assert.Nil(s)
	})
	t.Run("lazy", func(t *testing.T) {
		assert := assert.New(t)
		f := &TestFactory{Client: &TestClient{}}
		s := testService(t, f)
		assert.Equal(HandleIdle, s.State())
		assert.Equal(0, f.Builds())
		assert.NoError(s.Close())
	})
	t.Run("default-factory", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, err := New(authclient.ClientOptions{}, StaticLocation(testOrigin))
		require.NoError(err)
		_, err = s.Client(context.Background())
		assert.ErrorIs(err, authclient.ErrInvalidOptions)
		assert.Equal(HandleFailed, s.State())
	})
}

func TestService_Client(t *testing.T) {
	t.Parallel()

	t.Run("built-once-from-options", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		ctx := context.Background()
		c := &TestClient{}
		f := &TestFactory{Client: c}
		s := testService(t, f)

		for i := 0; i < 3; i++ {
			got, err := s.Client(ctx)
			require.NoError(err)
			assert.Same(c, got)
		}
		_, err := s.IsAuthenticated(ctx)
		require.NoError(err)
		_, err = s.Profile(ctx)
		require.NoError(err)

		assert.Equal(1, f.Builds())
		assert.Equal([]authclient.ClientOptions{testOpts}, f.Options())
		assert.Equal(HandleReady, s.State())
	})
	t.Run("concurrent", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c := &TestClient{IsAuthenticatedFn: func(context.Context) (bool, error) { return true, nil }}
		f := &TestFactory{Client: c, Release: make(chan struct{})}
		s := testService(t, f)

		const callers = 50
		var wg sync.WaitGroup
		results := make(chan bool, callers)
		errs := make(chan error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.IsAuthenticated(context.Background())
				if err != nil {
					errs <- err
					return
				}
				results <- ok
			}()
		}
		require.Eventually(func() bool { return f.Builds() == 1 }, time.Second, time.Millisecond)
		assert.Equal(HandlePending, s.State())
		close(f.Release)
		wg.Wait()
		close(results)
		close(errs)

		assert.Empty(errs)
		assert.Len(results, callers)
		for ok := range results {
			assert.True(ok)
		}
		assert.Equal(1, f.Builds())
		assert.Len(c.CallsTo("IsAuthenticated"), callers)
	})
	t.Run("failure-is-memoized", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		ctx := context.Background()
		boom := errors.New("boom")
		f := &TestFactory{Err: boom}
		s := testService(t, f)

		_, err := s.Client(ctx)
		assert.Same(boom, err)
		_, err = s.IsAuthenticated(ctx)
		assert.Same(boom, err)
		_, err = s.Profile(ctx)
		assert.Same(boom, err)
		_, err = s.HandleRedirectCallback(ctx, "/cb?code=abc&state=xyz")
		assert.Same(boom, err)
		s.Login(ctx, nil)
		s.Logout(ctx, "")

		assert.Equal(1, f.Builds())
		assert.Equal(HandleFailed, s.State())
		assert.NoError(s.Close())
	})
	t.Run("nil-client", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		s := testService(t, &TestFactory{})
		_, err := s.Client(context.Background())
		assert.ErrorIs(err, ErrNilClient)
	})
	t.Run("typed-nil-client", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		s, err := New(testOpts, StaticLocation(testOrigin), WithFactory(func(context.Context, authclient.ClientOptions) (Client, error) {
			var c *authclient.Client
			return c, nil
		}))
		require.NoError(err)
		_, err = s.IsAuthenticated(context.Background())
		assert.ErrorIs(err, ErrNilClient)
		assert.Equal(HandleFailed, s.State())
	})
	t.Run("factory-panic", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		s, err := New(testOpts, StaticLocation(testOrigin), WithFactory(func(context.Context, authclient.ClientOptions) (Client, error) {
			panic("nope")
		}))
		require.NoError(t, err)
		_, err = s.Client(context.Background())
		require.Error(t, err)
		assert.Contains(err.Error(), "panicked")
		assert.Equal(HandleFailed, s.State())
	})
	t.Run("caller-gives-up", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c := &TestClient{}
		f := &TestFactory{Client: c, Release: make(chan struct{})}
		s := testService(t, f)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			_, err := s.Client(ctx)
			errCh <- err
		}()
		require.Eventually(func() bool { return f.Builds() == 1 }, time.Second, time.Millisecond)
		cancel()
		assert.ErrorIs(<-errCh, context.Canceled)
		assert.Equal(HandlePending, s.State())

		close(f.Release)
		got, err := s.Client(context.Background())
		require.NoError(err)
		assert.Same(c, got)
		assert.Equal(1, f.Builds())
	})
}

func TestService_HandleRedirectCallback(t *testing.T) {
	t.Parallel()

	t.Run("not-a-callback", func(t *testing.T) {
		t.Parallel()
		for _, path := range []string{"", "/cb", "/cb?state=xyz", "/cb?code=abc", "/cb?codes"} {
			assert, require := assert.New(t), require.New(t)
			c := &TestClient{}
			f := &TestFactory{Client: c}
			s := testService(t, f)
			got, err := s.HandleRedirectCallback(context.Background(), path)
			require.NoError(err, path)
			assert.Equal(&RedirectResult{IsAuthenticated: false, AppState: nil}, got, path)
			assert.Equal(0, f.Builds(), path)
			assert.Empty(c.Calls(), path)
		}
	})
	t.Run("exchange", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		const path = "/cb?code=abc&state=xyz"
		c := &TestClient{
			HandleRedirectCallbackFn: func(context.Context, string) (*authclient.RedirectLoginResult, error) {
				return &authclient.RedirectLoginResult{AppState: AppState{Target: "/foo"}}, nil
			},
			IsAuthenticatedFn: func(context.Context) (bool, error) { return true, nil },
		}
		s := testService(t, &TestFactory{Client: c})

		got, err := s.HandleRedirectCallback(context.Background(), path)
		require.NoError(err)
		assert.Equal(&RedirectResult{IsAuthenticated: true, AppState: AppState{Target: "/foo"}}, got)
		assert.Equal([]TestCall{
			{Method: "HandleRedirectCallback", Arg: path},
			{Method: "IsAuthenticated"},
		}, c.Calls())
	})
	t.Run("exchange-error", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		boom := errors.New("boom")
		c := &TestClient{
			HandleRedirectCallbackFn: func(context.Context, string) (*authclient.RedirectLoginResult, error) {
				return nil, boom
			},
		}
		s := testService(t, &TestFactory{Client: c})
		got, err := s.HandleRedirectCallback(context.Background(), "/cb?state=xyz&code=abc")
		assert.Same(boom, err)
		assert.Nil(got)
		assert.Empty(c.CallsTo("IsAuthenticated"))
	})
	t.Run("auth-check-error", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		boom := errors.New("boom")
		c := &TestClient{IsAuthenticatedFn: func(context.Context) (bool, error) { return false, boom }}
		s := testService(t, &TestFactory{Client: c})
		_, err := s.HandleRedirectCallback(context.Background(), "/cb?code=abc&state=xyz")
		assert.Same(boom, err)
	})
}

func TestService_Logout(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		loc      Location
		returnTo string
		want     string
	}{
		{name: "origin", loc: StaticLocation(testOrigin), want: testOrigin},
		{name: "location-func", loc: LocationFunc(func() string { return "https://other.example.com" }), want: "https://other.example.com"},
		{name: "return-to", loc: StaticLocation(testOrigin), returnTo: "https://x/y", want: "https://x/y"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			c := &TestClient{}
			f := &TestFactory{Client: c}
			s, err := New(testOpts, tt.loc, WithFactory(f.Factory()))
			require.NoError(err)
			s.Logout(context.Background(), tt.returnTo)
			assert.Equal([]TestCall{
				{Method: "Logout", Arg: authclient.LogoutOptions{ClientID: testOpts.ClientID, ReturnTo: tt.want}},
			}, c.Calls())
		})
	}
}

func TestService_Login(t *testing.T) {
	t.Parallel()

	t.Run("app-state", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		c := &TestClient{}
		s := testService(t, &TestFactory{Client: c})
		s.Login(context.Background(), AppState{Target: "/foo"})
		assert.Equal([]TestCall{
			{Method: "LoginWithRedirect", Arg: authclient.LoginOptions{AppState: AppState{Target: "/foo"}}},
		}, c.Calls())
	})
	t.Run("errors-are-logged", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		var buf bytes.Buffer
		logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Warn})
		c := &TestClient{
			LoginWithRedirectFn: func(context.Context, authclient.LoginOptions) error { return errors.New("no network") },
		}
		s := testService(t, &TestFactory{Client: c}, WithLogger(logger))
		s.Login(context.Background(), nil)
		assert.Len(c.CallsTo("LoginWithRedirect"), 1)
		assert.Contains(buf.String(), "login failed")
		assert.Contains(buf.String(), "no network")
	})
}

func TestService_Queries(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	authenticated := false
	c := &TestClient{
		IsAuthenticatedFn: func(context.Context) (bool, error) { return authenticated, nil },
		UserFn: func(context.Context) (authclient.Profile, error) {
			if !authenticated {
				return nil, nil
			}
			return authclient.Profile{"sub": "alice"}, nil
		},
	}
	s := testService(t, &TestFactory{Client: c})

	ok, err := s.IsAuthenticated(ctx)
	require.NoError(err)
	assert.False(ok)
	p, err := s.Profile(ctx)
	require.NoError(err)
	assert.Nil(p)

	authenticated = true
	ok, err = s.IsAuthenticated(ctx)
	require.NoError(err)
	assert.True(ok)
	p, err = s.Profile(ctx)
	require.NoError(err)
	assert.Equal("alice", p.Subject())

	assert.Len(c.CallsTo("IsAuthenticated"), 2)
	assert.Len(c.CallsTo("User"), 2)
}

func TestService_Close(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	boom := errors.New("boom")
	c := &TestClient{CloseFn: func() error { return boom }}
	s := testService(t, &TestFactory{Client: c})

	require.NoError(s.Close())
	assert.Empty(c.Calls())

	_, err := s.Client(context.Background())
	require.NoError(err)
	assert.ErrorIs(s.Close(), boom)
	assert.Len(c.CallsTo("Close"), 1)
	assert.Equal(HandleClosed, s.State())

	_, err = s.Client(context.Background())
	assert.ErrorIs(err, ErrClosed)
	_, err = s.IsAuthenticated(context.Background())
	assert.ErrorIs(err, ErrClosed)
	require.NoError(s.Close())
	assert.Len(c.CallsTo("Close"), 1)
	assert.Len(c.CallsTo("IsAuthenticated"), 0)
}

func TestHandleState_String(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal("idle", HandleIdle.String())
	assert.Equal("pending", HandlePending.String())
	assert.Equal("ready", HandleReady.String())
	assert.Equal("failed", HandleFailed.String())
	assert.Equal("closed", HandleClosed.String())
	assert.Equal("HandleState(9)", HandleState(9).String())
}
