package authclient

import (
	"context"

	"github.com/hashicorp/go-hclog"
)

// Navigator sends the user agent to a URL: the provider's authorize endpoint
// when logging in, the logout endpoint when logging out.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts an ordinary function to a Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(ctx context.Context, url string) error {
	return f(ctx, url)
}

type navigatorKey struct{}

// NavigatorContext returns a new Context that carries the Navigator.  A
// Client uses it instead of its configured Navigator for calls made with the
// returned context.
func NavigatorContext(ctx context.Context, n Navigator) context.Context {
	return context.WithValue(ctx, navigatorKey{}, n)
}

// NavigatorFromContext returns the Navigator carried by ctx, or nil.
func NavigatorFromContext(ctx context.Context) Navigator {
	n, _ := ctx.Value(navigatorKey{}).(Navigator)
	return n
}

func navigatorFromContext(ctx context.Context, fallback Navigator) Navigator {
	if n := NavigatorFromContext(ctx); n != nil {
		return n
	}
	return fallback
}

func logNavigator(logger hclog.Logger) Navigator {
	return NavigatorFunc(func(_ context.Context, url string) error {
		logger.Info("navigate", "url", url)
		return nil
	})
}
