// Package authclient provides a redirect based OIDC authentication client for
// a single user agent.
//
// A Client keeps the state of one user: the in-flight login transactions and
// the signed in session.  Starting a login or logging out "navigates" the
// user agent, which is delegated to a Navigator.  The default Navigator only
// logs the destination; an http handler can carry a per request Navigator in
// the context (see NavigatorContext) to turn the navigation into a redirect.
//
// The token exchange, PKCE and id_token verification are provided by the
// oidc package.
package authclient
