/*
oidc is a package for writing clients that integrate with OIDC Providers using
OIDC flows.

Primary types provided by the package:

* Request: represents one OIDC authentication flow for a user.  It contains the
data needed to uniquely represent that one-time flow across the multiple
interactions needed to complete the OIDC flow the user is attempting.  All
Requests contain an expiration for the user's OIDC flow. Optionally, Requests may
contain overrides of configured provider defaults for audiences and scopes and
a PKCE code verifier.

* Token: represents an OIDC id_token, as well as an Oauth2 access_token and
refresh_token (including the the access_token expiry)

* Config: provides the configuration for OIDC provider used by a relying
party (for example: client ID/Secret, allowed redirect URLs, supported signing
algorithms, additional scopes requested, etc)

* Provider: provides integration with a provider. The provider provides
capabilities like: generating an auth URL, exchanging codes for tokens,
verifying tokens, making user info requests and building end session URLs.

* Alg: represents asymmetric signing algorithms

* TestProvider: a local https OIDC provider for tests.
*/
package oidc
