package facade

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeiniel/authfacade/authclient"
	"github.com/yeiniel/authfacade/oidc"
)

func TestService_DefaultFactory(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	tp := oidc.StartTestProvider(t)
	nav := &authclient.TestNavigator{}

	s, err := New(authclient.TestClientOptions(t, tp), StaticLocation(testOrigin), WithClientOptions(authclient.WithNavigator(nav)))
	require.NoError(err)
	defer s.Close()

	ok, err := s.IsAuthenticated(ctx)
	require.NoError(err)
	assert.False(ok)

	s.Login(ctx, AppState{Target: "/foo"})
	require.Len(nav.URLs(), 1)
	callback := authclient.TestAuthorize(t, tp, nav.Last())

	res, err := s.HandleRedirectCallback(ctx, callback)
	require.NoError(err)
	assert.True(res.IsAuthenticated)
	assert.Equal(AppState{Target: "/foo"}, res.AppState)

	p, err := s.Profile(ctx)
	require.NoError(err)
	assert.Equal(oidc.DefaultTestSubject, p.Subject())

	s.Logout(ctx, "")
	u, err := url.Parse(nav.Last())
	require.NoError(err)
	assert.Equal(testOrigin, u.Query().Get("post_logout_redirect_uri"))
	ok, err = s.IsAuthenticated(ctx)
	require.NoError(err)
	assert.False(ok)

	_, err = s.Client(ctx)
	require.NoError(err)
	assert.Equal(HandleReady, s.State())
}
