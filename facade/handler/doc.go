// Package handler exposes a facade.Service over net/http.
//
// Login and Logout turn the client's navigation into a redirect of the
// current response.  Callback completes a login from the provider's redirect
// and hands the outcome to a SuccessResponseFunc or an ErrorResponseFunc.
//
// The handlers keep no per user state themselves; the session lives in the
// client's authclient.Cache.  The default MemoryCache holds one session for
// the whole process, so every user agent of the server sees whoever signed in
// last.  A server with more than one user agent must build its client with
// authclient.WithCache (via facade.WithClientOptions) and a Cache that keys
// sessions by something carried in the request context, such as a session
// cookie.
package handler
