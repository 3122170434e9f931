package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientCredentialsIssuer acquires tokens from an OAuth2-style token
// endpoint using the client credentials grant. A {tenant} placeholder
// in the token URL is replaced with the tenant id, for identity
// providers with per-tenant token endpoints.
type ClientCredentialsIssuer struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewClientCredentialsIssuer creates a token issuer.
func NewClientCredentialsIssuer(tokenURL, clientID, clientSecret string) *ClientCredentialsIssuer {
	return &ClientCredentialsIssuer{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AcquireToken requests a fresh token scoped to the resource.
func (i *ClientCredentialsIssuer) AcquireToken(ctx context.Context, tenantID, resource string) (string, time.Time, error) {
	endpoint := strings.ReplaceAll(i.tokenURL, "{tenant}", tenantID)

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {i.clientID},
		"client_secret": {i.clientSecret},
		"scope":         {resource},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", time.Time{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token endpoint returned empty access_token")
	}

	return tr.AccessToken, time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second), nil
}
