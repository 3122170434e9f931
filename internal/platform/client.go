// Package platform provides workers that execute remediation actions
// against external security platform APIs.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opsforge/remediator/internal/credentials"
	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/resilience"
)

// Call describes one platform API invocation.
type Call struct {
	Platform   domain.Platform
	Action     domain.Action
	TenantID   string
	Parameters map[string]any
}

// APIClient performs platform API calls. Implementations must be
// idempotent with respect to the remote platform: the orchestration
// engine may re-invoke a call after a crash.
type APIClient interface {
	Do(ctx context.Context, call Call) (map[string]any, error)
}

// Endpoint describes where a platform's remediation API lives and
// which identity resource its tokens are scoped to.
type Endpoint struct {
	BaseURL  string
	Resource string
}

// HTTPClient is the production APIClient: bearer tokens from the
// credential cache, outbound calls through the resilient caller.
type HTTPClient struct {
	httpClient *http.Client
	creds      *credentials.Cache
	caller     *resilience.Caller
	endpoints  map[domain.Platform]Endpoint
}

// NewHTTPClient creates a platform API client.
func NewHTTPClient(creds *credentials.Cache, caller *resilience.Caller, endpoints map[domain.Platform]Endpoint) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		creds:      creds,
		caller:     caller,
		endpoints:  endpoints,
	}
}

// Do executes the call against the platform's remediation endpoint.
func (c *HTTPClient) Do(ctx context.Context, call Call) (map[string]any, error) {
	ep, ok := c.endpoints[call.Platform]
	if !ok {
		return nil, resilience.Permanent(fmt.Errorf("no endpoint configured for platform %s", call.Platform))
	}

	token, err := c.creds.Get(ctx, call.TenantID, ep.Resource)
	if err != nil {
		return nil, fmt.Errorf("get credentials: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"action":     call.Action,
		"tenantId":   call.TenantID,
		"parameters": call.Parameters,
	})
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("marshal request body: %w", err))
	}

	var details map[string]any
	err = c.caller.Call(ctx, string(call.Platform), func(ctx context.Context) error {
		url := fmt.Sprintf("%s/remediation/%s", ep.BaseURL, call.Action)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return resilience.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("call %s: %w", call.Platform, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return resilience.ErrRateLimited
		case resp.StatusCode == http.StatusUnauthorized:
			c.creds.Invalidate(call.TenantID, ep.Resource)
			return fmt.Errorf("platform %s rejected credentials", call.Platform)
		case resp.StatusCode >= 500:
			return fmt.Errorf("platform %s returned %d", call.Platform, resp.StatusCode)
		case resp.StatusCode >= 400:
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return resilience.Permanent(fmt.Errorf("platform %s returned %d: %s",
				call.Platform, resp.StatusCode, bytes.TrimSpace(payload)))
		}

		details = nil
		if decodeErr := json.NewDecoder(resp.Body).Decode(&details); decodeErr != nil && decodeErr != io.EOF {
			// Outcome is committed at this point; a malformed body only
			// loses details.
			details = map[string]any{"raw_decode_error": decodeErr.Error()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return details, nil
}
