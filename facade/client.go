package facade

import (
	"context"

	"github.com/yeiniel/authfacade/authclient"
)

// Client is the authentication client wrapped by a Service.
// *authclient.Client satisfies it.
type Client interface {
	IsAuthenticated(ctx context.Context) (bool, error)
	User(ctx context.Context) (authclient.Profile, error)
	LoginWithRedirect(ctx context.Context, opts authclient.LoginOptions) error
	Logout(ctx context.Context, opts authclient.LogoutOptions) error
	HandleRedirectCallback(ctx context.Context, url string) (*authclient.RedirectLoginResult, error)
}

var _ Client = (*authclient.Client)(nil)

// Factory builds the Client from the Service's options.  It's called at most
// once per Service.
type Factory func(ctx context.Context, opts authclient.ClientOptions) (Client, error)

// DefaultFactory returns a Factory which builds an *authclient.Client with the
// options provided.
func DefaultFactory(opt ...authclient.Option) Factory {
	return func(ctx context.Context, opts authclient.ClientOptions) (Client, error) {
		c, err := authclient.New(ctx, opts, opt...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
