package facade

import (
	"context"
	"sync"

	"github.com/yeiniel/authfacade/authclient"
)

// TestCall is one call recorded by a TestClient.
type TestCall struct {
	Method string
	Arg    interface{}
}

// TestClient is a Client which records its calls.  Each method delegates to
// the matching func field when it's set and returns zero values otherwise.
type TestClient struct {
	IsAuthenticatedFn        func(ctx context.Context) (bool, error)
	UserFn                   func(ctx context.Context) (authclient.Profile, error)
	LoginWithRedirectFn      func(ctx context.Context, opts authclient.LoginOptions) error
	LogoutFn                 func(ctx context.Context, opts authclient.LogoutOptions) error
	HandleRedirectCallbackFn func(ctx context.Context, url string) (*authclient.RedirectLoginResult, error)
	CloseFn                  func() error

	mu    sync.Mutex
	calls []TestCall
}

var _ Client = (*TestClient)(nil)

func (c *TestClient) record(method string, arg interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, TestCall{Method: method, Arg: arg})
}

// Calls returns every recorded call in order.
func (c *TestClient) Calls() []TestCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TestCall(nil), c.calls...)
}

// CallsTo returns the recorded calls to method.
func (c *TestClient) CallsTo(method string) []TestCall {
	var out []TestCall
	for _, call := range c.Calls() {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

// IsAuthenticated implements Client.
func (c *TestClient) IsAuthenticated(ctx context.Context) (bool, error) {
	c.record("IsAuthenticated", nil)
	if c.IsAuthenticatedFn != nil {
		return c.IsAuthenticatedFn(ctx)
	}
	return false, nil
}

// User implements Client.
func (c *TestClient) User(ctx context.Context) (authclient.Profile, error) {
	c.record("User", nil)
	if c.UserFn != nil {
		return c.UserFn(ctx)
	}
	return nil, nil
}

// LoginWithRedirect implements Client.
func (c *TestClient) LoginWithRedirect(ctx context.Context, opts authclient.LoginOptions) error {
	c.record("LoginWithRedirect", opts)
	if c.LoginWithRedirectFn != nil {
		return c.LoginWithRedirectFn(ctx, opts)
	}
	return nil
}

// Logout implements Client.
func (c *TestClient) Logout(ctx context.Context, opts authclient.LogoutOptions) error {
	c.record("Logout", opts)
	if c.LogoutFn != nil {
		return c.LogoutFn(ctx, opts)
	}
	return nil
}

// HandleRedirectCallback implements Client.
func (c *TestClient) HandleRedirectCallback(ctx context.Context, url string) (*authclient.RedirectLoginResult, error) {
	c.record("HandleRedirectCallback", url)
	if c.HandleRedirectCallbackFn != nil {
		return c.HandleRedirectCallbackFn(ctx, url)
	}
	return &authclient.RedirectLoginResult{}, nil
}

// Close records the call and delegates to CloseFn.
func (c *TestClient) Close() error {
	c.record("Close", nil)
	if c.CloseFn != nil {
		return c.CloseFn()
	}
	return nil
}

// TestFactory counts the builds of its Client.  When Release is set, builds
// wait for it to be closed.
type TestFactory struct {
	Client  Client
	Err     error
	Release chan struct{}

	mu      sync.Mutex
	builds  int
	options []authclient.ClientOptions
}

// Factory returns the Factory to hand to WithFactory.
func (f *TestFactory) Factory() Factory {
	return func(ctx context.Context, opts authclient.ClientOptions) (Client, error) {
		f.mu.Lock()
		f.builds++
		f.options = append(f.options, opts)
		f.mu.Unlock()
		if f.Release != nil {
			<-f.Release
		}
		if f.Err != nil {
			return nil, f.Err
		}
		return f.Client, nil
	}
}

// Builds returns how many times the factory was called.
func (f *TestFactory) Builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

// Options returns the options of every build.
func (f *TestFactory) Options() []authclient.ClientOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]authclient.ClientOptions(nil), f.options...)
}
