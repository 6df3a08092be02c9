package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
)

func TestRegisterNamedApp(t *testing.T) {
	env := newTestEnv()

	app, err := env.app.Register(context.Background(), 77, strptr("Cool Game"), []string{"https://example.com/cb", "", "  "})
	require.NoError(t, err)
	require.Positive(t, app.ClientID)
	require.Len(t, app.ClientSecret, 64)
	require.Equal(t, "Cool Game", *app.AppName)
	require.False(t, app.Approved)
	require.Equal(t, []string{"https://example.com/cb"}, app.RedirectURIs)
}

func TestRegisterNamelessAppIsApproved(t *testing.T) {
	env := newTestEnv()

	app, err := env.app.Register(context.Background(), 77, nil, nil)
	require.NoError(t, err)
	require.Nil(t, app.AppName)
	require.True(t, app.Approved)
	require.Equal(t, []string{}, app.RedirectURIs)
}

func TestGetRedactsSecret(t *testing.T) {
	env := newTestEnv()
	created, err := env.app.Register(context.Background(), 77, nil, nil)
	require.NoError(t, err)

	got, err := env.app.Get(context.Background(), created.ClientID, 77)
	require.NoError(t, err)
	require.Empty(t, got.ClientSecret)

	// Owner scoping: another user sees nothing.
	_, err = env.app.Get(context.Background(), created.ClientID, 78)
	requireOAuthStatus(t, err, http.StatusNotFound)
}

func TestUpdateNameClearsApproval(t *testing.T) {
	env := newTestEnv()
	created, err := env.app.Register(context.Background(), 77, nil, nil)
	require.NoError(t, err)
	require.True(t, created.Approved)

	updated, err := env.app.Update(context.Background(), created.ClientID, 77, UpdateAppParams{
		AppName:    strptr("New Name"),
		AppNameSet: true,
	})
	require.NoError(t, err)
	require.False(t, updated.Approved)
	require.Empty(t, updated.ClientSecret)

	// Clearing the name restores automatic approval.
	updated, err = env.app.Update(context.Background(), created.ClientID, 77, UpdateAppParams{
		AppName:    nil,
		AppNameSet: true,
	})
	require.NoError(t, err)
	require.True(t, updated.Approved)
}

func TestUpdateResetSecret(t *testing.T) {
	env := newTestEnv()
	created, err := env.app.Register(context.Background(), 77, nil, nil)
	require.NoError(t, err)

	updated, err := env.app.Update(context.Background(), created.ClientID, 77, UpdateAppParams{ResetSecret: true})
	require.NoError(t, err)
	require.Len(t, updated.ClientSecret, 64)
	require.NotEqual(t, created.ClientSecret, updated.ClientSecret)

	// The old secret no longer authenticates.
	stored, err := env.apps.Get(context.Background(), created.ClientID, 0)
	require.NoError(t, err)
	require.Equal(t, updated.ClientSecret, stored.ClientSecret)
}

func TestUpdateReplacesRedirectURIs(t *testing.T) {
	env := newTestEnv()
	created, err := env.app.Register(context.Background(), 77, nil, []string{"https://a.example/cb"})
	require.NoError(t, err)

	updated, err := env.app.Update(context.Background(), created.ClientID, 77, UpdateAppParams{
		RedirectURIs:    []string{"https://b.example/cb"},
		RedirectURIsSet: true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"https://b.example/cb"}, updated.RedirectURIs)
}

func TestListAndDelete(t *testing.T) {
	env := newTestEnv()
	first, err := env.app.Register(context.Background(), 77, strptr("One"), nil)
	require.NoError(t, err)
	_, err = env.app.Register(context.Background(), 78, strptr("Other Owner"), nil)
	require.NoError(t, err)

	partials, err := env.app.List(context.Background(), 77)
	require.NoError(t, err)
	require.Len(t, partials, 1)
	require.Equal(t, first.ClientID, partials[0].ClientID)

	err = env.app.Delete(context.Background(), first.ClientID, 78)
	requireOAuthStatus(t, err, http.StatusNotFound)

	require.NoError(t, env.app.Delete(context.Background(), first.ClientID, 77))
	_, err = env.apps.Get(context.Background(), first.ClientID, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
