package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/yeiniel/authfacade/authclient"
	"github.com/yeiniel/authfacade/facade"
)

var ErrInvalidParameter = errors.New("invalid parameter")

// Service is the part of *facade.Service used by the handlers.
type Service interface {
	IsAuthenticated(ctx context.Context) (bool, error)
	Profile(ctx context.Context) (authclient.Profile, error)
	Login(ctx context.Context, appState interface{})
	Logout(ctx context.Context, returnTo string)
	HandleRedirectCallback(ctx context.Context, path string) (*facade.RedirectResult, error)
}

var _ Service = (*facade.Service)(nil)

// redirector is a Navigator answering the request with a 302.
type redirector struct {
	w         http.ResponseWriter
	req       *http.Request
	navigated bool
}

func (r *redirector) Navigate(_ context.Context, url string) error {
	if r.navigated {
		return fmt.Errorf("handler.redirector: response already redirected")
	}
	r.navigated = true
	http.Redirect(r.w, r.req, url, http.StatusFound)
	return nil
}

// Login creates a handler which starts a login and redirects to the provider.
// The optional "returnTo" form value becomes the login's facade.AppState
// target.
func Login(svc Service, opt ...Option) http.HandlerFunc {
	opts := getHandlerOpts(opt...)
	logger := opts.withLogger.Named("login")
	return func(w http.ResponseWriter, req *http.Request) {
		nav := &redirector{w: w, req: req}
		ctx := authclient.NavigatorContext(req.Context(), nav)
		svc.Login(ctx, facade.AppState{Target: req.FormValue("returnTo")})
		if !nav.navigated {
			logger.Error("login did not redirect")
			http.Error(w, "login failed", http.StatusInternalServerError)
		}
	}
}

// Logout creates a handler which signs the user out and redirects to the
// provider's logout URL.  The optional "returnTo" form value is where the
// provider sends the user afterwards.
func Logout(svc Service, opt ...Option) http.HandlerFunc {
	opts := getHandlerOpts(opt...)
	logger := opts.withLogger.Named("logout")
	return func(w http.ResponseWriter, req *http.Request) {
		nav := &redirector{w: w, req: req}
		ctx := authclient.NavigatorContext(req.Context(), nav)
		svc.Logout(ctx, req.FormValue("returnTo"))
		if !nav.navigated {
			logger.Error("logout did not redirect")
			http.Error(w, "logout failed", http.StatusInternalServerError)
		}
	}
}

// Callback creates a handler for the provider's redirect.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func Callback(svc Service, sFn SuccessResponseFunc, eFn ErrorResponseFunc, opt ...Option) (http.HandlerFunc, error) {
	const op = "handler.Callback"
	switch {
	case svc == nil:
		return nil, fmt.Errorf("%s: service is nil: %w", op, ErrInvalidParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, ErrInvalidParameter)
	}
	opts := getHandlerOpts(opt...)
	logger := opts.withLogger.Named("callback")
	return func(w http.ResponseWriter, req *http.Request) {
		state := req.FormValue("state")
		if code := req.FormValue("error"); code != "" {
			authErr := &authclient.AuthenticationError{
				Code:        code,
				Description: req.FormValue("error_description"),
				State:       state,
			}
			logger.Warn("provider error response", "error", authErr)
			eFn(state, authErr, nil, w, req)
			return
		}
		res, err := svc.HandleRedirectCallback(req.Context(), req.URL.RequestURI())
		if err != nil {
			logger.Error("unable to handle callback", "error", err)
			var authErr *authclient.AuthenticationError
			_ = errors.As(err, &authErr)
			eFn(state, authErr, err, w, req)
			return
		}
		sFn(state, res, w, req)
	}, nil
}

// Profile creates a handler which writes the user's authentication state and
// profile as JSON.  The user is whoever the client's Cache returns for the
// request context; see the package doc for serving more than one user agent.
func Profile(svc Service, opt ...Option) http.HandlerFunc {
	opts := getHandlerOpts(opt...)
	logger := opts.withLogger.Named("profile")
	return func(w http.ResponseWriter, req *http.Request) {
		ok, err := svc.IsAuthenticated(req.Context())
		if err != nil {
			logger.Error("unable to check authentication", "error", err)
			http.Error(w, "profile unavailable", http.StatusInternalServerError)
			return
		}
		var p authclient.Profile
		if ok {
			if p, err = svc.Profile(req.Context()); err != nil {
				logger.Error("unable to read profile", "error", err)
				http.Error(w, "profile unavailable", http.StatusInternalServerError)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			IsAuthenticated bool               `json:"isAuthenticated"`
			Profile         authclient.Profile `json:"profile"`
		}{ok, p})
	}
}
