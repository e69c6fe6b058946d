package facade

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/yeiniel/authfacade/authclient"
)

// AppState is the application state carried through a login.
type AppState struct {
	// Target is where the application wants to go after the login.
	Target string `json:"target,omitempty"`
}

// RedirectResult is the outcome of HandleRedirectCallback.
type RedirectResult struct {
	IsAuthenticated bool
	AppState        interface{}
}

// Service is the authentication facade.  It's safe for concurrent use.
type Service struct {
	opts    authclient.ClientOptions
	loc     Location
	factory Factory
	logger  hclog.Logger

	h handle
}

// New creates a Service.  The client isn't built until an operation needs
// it.
//
// Supported options:
//   - WithFactory
//   - WithLogger
//   - WithClientOptions
func New(opts authclient.ClientOptions, loc Location, opt ...Option) (*Service, error) {
	const op = "facade.New"
	if loc == nil {
		return nil, fmt.Errorf("%s: location is nil: %w", op, ErrNilParameter)
	}
	o := getServiceOpts(opt...)
	factory := o.withFactory
	if factory == nil {
		clientOpts := append([]authclient.Option{authclient.WithLogger(o.withLogger)}, o.withClientOptions...)
		factory = DefaultFactory(clientOpts...)
	}
	return &Service{
		opts:    opts,
		loc:     loc,
		factory: factory,
		logger:  o.withLogger.Named("facade"),
	}, nil
}

// Client returns the shared client, building it on the first call.  A build
// error is returned as is, to this and every later caller.  A caller whose
// ctx is done stops waiting with ctx.Err() while the build carries on.
func (s *Service) Client(ctx context.Context) (Client, error) {
	return s.h.get(ctx, s.build)
}

func (s *Service) build(ctx context.Context) (Client, error) {
	s.logger.Debug("building client", "client_id", s.opts.ClientID)
	c, err := s.factory(ctx, s.opts)
	if err != nil {
		s.logger.Error("unable to build client", "error", err)
		return nil, err
	}
	return c, nil
}

// State returns the state of the client handle.
func (s *Service) State() HandleState {
	st, _ := s.h.current()
	return st
}

// IsAuthenticated asks the client whether the user is signed in.
func (s *Service) IsAuthenticated(ctx context.Context) (bool, error) {
	c, err := s.Client(ctx)
	if err != nil {
		return false, err
	}
	return c.IsAuthenticated(ctx)
}

// Profile asks the client for the signed in user's profile.  It's nil when
// nobody is signed in.
func (s *Service) Profile(ctx context.Context) (authclient.Profile, error) {
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	return c.User(ctx)
}

// Login starts a login carrying appState.  Errors are logged and dropped.
func (s *Service) Login(ctx context.Context, appState interface{}) {
	c, err := s.Client(ctx)
	if err != nil {
		s.logger.Warn("login failed", "error", err)
		return
	}
	if err := c.LoginWithRedirect(ctx, authclient.LoginOptions{AppState: appState}); err != nil {
		s.logger.Warn("login failed", "error", err)
	}
}

// Logout signs the user out and sends the user agent to returnTo, or to the
// location's origin when returnTo is empty.  Errors are logged and dropped.
func (s *Service) Logout(ctx context.Context, returnTo string) {
	if returnTo == "" {
		returnTo = s.loc.Origin()
	}
	c, err := s.Client(ctx)
	if err != nil {
		s.logger.Warn("logout failed", "error", err)
		return
	}
	err = c.Logout(ctx, authclient.LogoutOptions{
		ClientID: s.opts.ClientID,
		ReturnTo: returnTo,
	})
	if err != nil {
		s.logger.Warn("logout failed", "error", err, "return_to", returnTo)
	}
}

// HandleRedirectCallback completes a login from the callback path.  Paths
// without both "code=" and "state=" are not callbacks: the result is
// unauthenticated and the client is not used.
func (s *Service) HandleRedirectCallback(ctx context.Context, path string) (*RedirectResult, error) {
	if !strings.Contains(path, "code=") || !strings.Contains(path, "state=") {
		return &RedirectResult{}, nil
	}
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.HandleRedirectCallback(ctx, path)
	if err != nil {
		return nil, err
	}
	ok, err := c.IsAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	r := &RedirectResult{IsAuthenticated: ok}
	if res != nil {
		r.AppState = res.AppState
	}
	return r, nil
}

// Close closes the client when it was built and has a Close method.  A
// closed Service stays closed: every later operation fails with ErrClosed.
func (s *Service) Close() error {
	const op = "Service.Close"
	c := s.h.close()
	if c == nil {
		return nil
	}
	if closer, ok := c.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
