package authclient

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yeiniel/authfacade/oidc"
)

// TestClientOptions returns ClientOptions for a client of the TestProvider.
func TestClientOptions(t *testing.T, tp *oidc.TestProvider) ClientOptions {
	t.Helper()
	return ClientOptions{
		Issuer:       tp.Addr(),
		ClientID:     oidc.DefaultTestClientID,
		ClientSecret: oidc.DefaultTestClientSecret,
		RedirectURI:  oidc.DefaultTestRedirectURI,
		ProviderCA:   tp.CACert(),
		SigningAlgs:  []string{string(oidc.ES256)},
	}
}

// TestAuthorize sends the user agent to the TestProvider's authorize URL and
// returns the path and query of the callback it redirects to.
func TestAuthorize(t *testing.T, tp *oidc.TestProvider, authURL string) string {
	t.Helper()
	require := require.New(t)
	resp, err := tp.HTTPClient().Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	return loc.RequestURI()
}

// TestNavigator is a Navigator which records the URLs it was sent to.
type TestNavigator struct {
	mu   sync.Mutex
	urls []string
}

var _ Navigator = (*TestNavigator)(nil)

// Navigate records the url.
func (n *TestNavigator) Navigate(_ context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, url)
	return nil
}

// URLs returns every recorded url.
func (n *TestNavigator) URLs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.urls...)
}

// Last returns the last recorded url, or an empty string.
func (n *TestNavigator) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.urls) == 0 {
		return ""
	}
	return n.urls[len(n.urls)-1]
}
