// authfacade provides a small authentication facade over an OIDC relying
// party client.
//
//   - facade: the lazily built, shared client handle with IsAuthenticated,
//     Profile, Login, Logout and HandleRedirectCallback.
//   - facade/handler: net/http handlers for the facade.
//   - authclient: the redirect based OIDC client the facade wraps.
//   - oidc: OIDC relying party primitives (discovery, PKCE, code exchange,
//     id_token verification).
//
// See examples/spa for a runnable server.
package authfacade
