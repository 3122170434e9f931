package platform

import (
	"context"
	"testing"

	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	calls []Call
	err   error
}

func (c *recordingClient) Do(_ context.Context, call Call) (map[string]any, error) {
	c.calls = append(c.calls, call)
	if c.err != nil {
		return nil, c.err
	}
	return map[string]any{"actionId": "a-1"}, nil
}

func TestWorker_ResolvesOnlyCatalogActions(t *testing.T) {
	client := &recordingClient{}
	w := NewWorker(domain.PlatformEndpointProtection,
		routing.Catalog[domain.PlatformEndpointProtection], client)

	_, ok := w.Resolve(domain.ActionIsolateDevice)
	assert.True(t, ok)

	_, ok = w.Resolve(domain.ActionWipeDevice) // device-management action
	assert.False(t, ok)
}

func TestWorker_OperationInvokesClient(t *testing.T) {
	client := &recordingClient{}
	w := NewWorker(domain.PlatformEndpointProtection,
		routing.Catalog[domain.PlatformEndpointProtection], client)

	op, ok := w.Resolve(domain.ActionIsolateDevice)
	require.True(t, ok)

	req := &domain.RemediationRequest{
		RequestID:  "req-1",
		TenantID:   "tenant-a",
		Platform:   domain.PlatformEndpointProtection,
		Action:     domain.ActionIsolateDevice,
		Parameters: map[string]any{"deviceId": "dev-1"},
	}

	resp, err := op(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, domain.StatusCompleted, resp.Status)
	assert.Equal(t, map[string]any{"actionId": "a-1"}, resp.Details)

	require.Len(t, client.calls, 1)
	assert.Equal(t, domain.ActionIsolateDevice, client.calls[0].Action)
	assert.Equal(t, "tenant-a", client.calls[0].TenantID)
}

func TestNewWorkersFromCatalog_CoversAllPlatforms(t *testing.T) {
	workers := NewWorkersFromCatalog(routing.Catalog, &recordingClient{})

	assert.Len(t, workers, len(routing.Catalog))

	seen := make(map[domain.Platform]bool)
	for _, w := range workers {
		seen[w.Platform()] = true
	}
	for _, p := range domain.Platforms() {
		assert.True(t, seen[p], "missing worker for %s", p)
	}
}
