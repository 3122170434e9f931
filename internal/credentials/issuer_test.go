package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCredentialsIssuer_AcquireToken(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"scope":         r.PostForm.Get("scope"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-abc","expires_in":3600}`))
	}))
	defer server.Close()

	issuer := NewClientCredentialsIssuer(server.URL, "client-1", "s3cret")

	before := time.Now()
	token, expiry, err := issuer.AcquireToken(context.Background(), "tenant-1", "https://edr.example.com/.default")
	require.NoError(t, err)

	assert.Equal(t, "tok-abc", token)
	assert.WithinRange(t, expiry, before.Add(59*time.Minute), before.Add(61*time.Minute))

	assert.Equal(t, "client_credentials", gotForm["grant_type"])
	assert.Equal(t, "client-1", gotForm["client_id"])
	assert.Equal(t, "s3cret", gotForm["client_secret"])
	assert.Equal(t, "https://edr.example.com/.default", gotForm["scope"])
}

func TestClientCredentialsIssuer_TenantPlaceholder(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":600}`))
	}))
	defer server.Close()

	issuer := NewClientCredentialsIssuer(server.URL+"/{tenant}/oauth2/token", "c", "s")

	_, _, err := issuer.AcquireToken(context.Background(), "tenant-42", "scope")
	require.NoError(t, err)
	assert.Equal(t, "/tenant-42/oauth2/token", gotPath)
}

func TestClientCredentialsIssuer_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_client", http.StatusUnauthorized)
	}))
	defer server.Close()

	issuer := NewClientCredentialsIssuer(server.URL, "c", "wrong")

	_, _, err := issuer.AcquireToken(context.Background(), "tenant-1", "scope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
