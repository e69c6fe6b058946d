package handler

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/yeiniel/authfacade/authclient"
	"github.com/yeiniel/authfacade/facade"
)

// SuccessResponseFunc is used by Callback to create a http response when the
// callback is successful.
//
// The state is the "state" parameter of the callback, and res is the outcome
// of the login.  The function should use the http.ResponseWriter to send back
// whatever content (headers, html, JSON, etc) it wishes to the user agent.
type SuccessResponseFunc func(state string, res *facade.RedirectResult, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by Callback to create a http response when the
// callback fails.
//
// authErr is set when the provider answered with an oauth error response.  e
// is the error raised while handling the callback, it may be nil when authErr
// is set.
type ErrorResponseFunc func(state string, authErr *authclient.AuthenticationError, e error, w http.ResponseWriter, req *http.Request)

var successTmpl = template.Must(template.New("success").Parse(`<!doctype html>
<html>
<head><title>Signed in</title></head>
<body>
<h1 id="status">{{ if .Authenticated }}Signed in{{ else }}Not signed in{{ end }}</h1>
<p><a id="continue" href="{{ .Target }}">Continue</a></p>
</body>
</html>
`))

// DefaultSuccessFunc renders a page linking to the login's target.
func DefaultSuccessFunc() SuccessResponseFunc {
	return func(_ string, res *facade.RedirectResult, w http.ResponseWriter, _ *http.Request) {
		data := struct {
			Authenticated bool
			Target        string
		}{Target: "/"}
		if res != nil {
			data.Authenticated = res.IsAuthenticated
			data.Target = Target(res.AppState)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = successTmpl.Execute(w, data)
	}
}

// DefaultErrorFunc writes 401 for provider error responses and 500 for every
// other error.
func DefaultErrorFunc() ErrorResponseFunc {
	return func(_ string, authErr *authclient.AuthenticationError, e error, w http.ResponseWriter, _ *http.Request) {
		if authErr != nil {
			http.Error(w, authErr.Error(), http.StatusUnauthorized)
			return
		}
		if errors.Is(e, authclient.ErrInvalidState) {
			http.Error(w, "invalid or expired login", http.StatusBadRequest)
			return
		}
		http.Error(w, "login failed", http.StatusInternalServerError)
	}
}

// Target returns the local path carried by an app state, or "/".  Absolute
// and protocol relative URLs are rejected.
func Target(appState interface{}) string {
	var t string
	switch v := appState.(type) {
	case facade.AppState:
		t = v.Target
	case *facade.AppState:
		if v != nil {
			t = v.Target
		}
	case string:
		t = v
	}
	if !strings.HasPrefix(t, "/") || strings.HasPrefix(t, "//") || strings.HasPrefix(t, "/\\") {
		return "/"
	}
	return t
}
