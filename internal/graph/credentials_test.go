package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCredentialProvider_RequiresSecrets(t *testing.T) {
	_, err := NewCredentialProvider(CredentialConfig{ClientID: "id"}, nil)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAccessToken_ClientCredentialsGrant(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/tenant-a/oauth2/v2.0/token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-id", r.PostForm.Get("client_id"))
		assert.Equal(t, DefaultScope, r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	p, err := NewCredentialProvider(CredentialConfig{
		ClientID:     "app-id",
		ClientSecret: "secret",
		AuthorityURL: srv.URL,
	}, srv.Client())
	require.NoError(t, err)

	tok, err := p.AccessToken(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "graph-token", tok)

	// Second call reuses the cached token.
	_, err = p.AccessToken(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAccessToken_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}))
	defer srv.Close()

	p, err := NewCredentialProvider(CredentialConfig{
		ClientID:     "app-id",
		ClientSecret: "wrong",
		AuthorityURL: srv.URL,
	}, srv.Client())
	require.NoError(t, err)

	_, err = p.AccessToken(context.Background(), "tenant-a")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAccessToken_EmptyTenant(t *testing.T) {
	p, err := NewCredentialProvider(CredentialConfig{ClientID: "a", ClientSecret: "b"}, nil)
	require.NoError(t, err)

	_, err = p.AccessToken(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrAuthFailed)
}
