//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/orchestration"
	orchestrationpostgres "github.com/opsforge/remediator/internal/orchestration/postgres"
)

func newInstance(state domain.InstanceState) *domain.OrchestrationInstance {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.OrchestrationInstance{
		ID: uuid.NewString(),
		Request: domain.RemediationRequest{
			RequestID:   uuid.NewString(),
			TenantID:    uuid.NewString(),
			IncidentID:  "INC-55",
			Platform:    domain.PlatformEndpointProtection,
			Action:      domain.ActionIsolateDevice,
			Parameters:  map[string]any{"deviceId": "dev-9"},
			InitiatedBy: "analyst@example.com",
			Priority:    domain.PriorityHigh,
			Timestamp:   now,
		},
		State:         state,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

func TestJournal_SaveAndRecoverInstances(t *testing.T) {
	truncateAll(t)
	journal := orchestrationpostgres.NewJournal(testDB)
	ctx := context.Background()

	running := newInstance(domain.InstanceExecuting)
	finished := newInstance(domain.InstanceCompleted)
	finished.Output = &domain.RemediationResponse{
		RequestID:   finished.Request.RequestID,
		Success:     true,
		Status:      domain.StatusCompleted,
		CompletedAt: time.Now().UTC(),
	}

	require.NoError(t, journal.SaveInstance(ctx, running))
	require.NoError(t, journal.SaveInstance(ctx, finished))

	open, err := journal.LoadOpenInstances(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, running.ID, open[0].ID)
	assert.Equal(t, running.Request.RequestID, open[0].Request.RequestID)
	assert.Equal(t, "dev-9", open[0].Request.Parameters["deviceId"])

	// Checkpoint update changes state in place.
	running.State = domain.InstanceFailed
	require.NoError(t, journal.SaveInstance(ctx, running))

	open, err = journal.LoadOpenInstances(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestJournal_LoadInstanceIncludesTerminal(t *testing.T) {
	truncateAll(t)
	journal := orchestrationpostgres.NewJournal(testDB)
	ctx := context.Background()

	finished := newInstance(domain.InstanceCompleted)
	finished.Output = &domain.RemediationResponse{
		RequestID: finished.Request.RequestID,
		Success:   true,
		Status:    domain.StatusCompleted,
	}
	require.NoError(t, journal.SaveInstance(ctx, finished))

	loaded, err := journal.LoadInstance(ctx, finished.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceCompleted, loaded.State)
	require.NotNil(t, loaded.Output)
	assert.Equal(t, domain.StatusCompleted, loaded.Output.Status)

	_, err = journal.LoadInstance(ctx, uuid.NewString())
	assert.ErrorIs(t, err, orchestration.ErrInstanceNotFound)
}

func TestJournal_PurgeInstances(t *testing.T) {
	truncateAll(t)
	journal := orchestrationpostgres.NewJournal(testDB)
	ctx := context.Background()

	cutoff := time.Now().UTC()

	oldDone := newInstance(domain.InstanceCompleted)
	oldDone.CreatedAt = cutoff.Add(-48 * time.Hour)
	oldOpen := newInstance(domain.InstanceExecuting)
	oldOpen.CreatedAt = cutoff.Add(-48 * time.Hour)
	recentDone := newInstance(domain.InstanceFailed)

	for _, inst := range []*domain.OrchestrationInstance{oldDone, oldOpen, recentDone} {
		require.NoError(t, journal.SaveInstance(ctx, inst))
	}
	require.NoError(t, journal.RecordOutcome(ctx, &orchestration.StepOutcome{
		InstanceID: oldDone.ID,
		Step:       orchestration.StepExecute,
		Payload:    json.RawMessage(`{"attempted":true}`),
		RecordedAt: cutoff.Add(-48 * time.Hour),
	}))

	removed, err := journal.PurgeInstances(ctx, cutoff.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = journal.LoadInstance(ctx, oldDone.ID)
	assert.ErrorIs(t, err, orchestration.ErrInstanceNotFound)

	// Step outcomes cascade with their instance.
	outcomes, err := journal.LoadOutcomes(ctx, oldDone.ID)
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	_, err = journal.LoadInstance(ctx, oldOpen.ID)
	assert.NoError(t, err, "open instances survive any cutoff")
	_, err = journal.LoadInstance(ctx, recentDone.ID)
	assert.NoError(t, err)
}

func TestJournal_StepOutcomes(t *testing.T) {
	truncateAll(t)
	journal := orchestrationpostgres.NewJournal(testDB)
	ctx := context.Background()

	inst := newInstance(domain.InstanceExecuting)
	require.NoError(t, journal.SaveInstance(ctx, inst))

	payload, err := json.Marshal(map[string]any{"attempted": true})
	require.NoError(t, err)

	outcome := &orchestration.StepOutcome{
		InstanceID: inst.ID,
		Step:       orchestration.StepExecute,
		Payload:    payload,
		RecordedAt: time.Now().UTC(),
	}
	require.NoError(t, journal.RecordOutcome(ctx, outcome))

	// A replayed write of the same step does not overwrite.
	dup := *outcome
	dup.Payload = json.RawMessage(`{"attempted":false}`)
	require.NoError(t, journal.RecordOutcome(ctx, &dup))

	outcomes, err := journal.LoadOutcomes(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, orchestration.StepExecute, outcomes[0].Step)
	assert.JSONEq(t, string(payload), string(outcomes[0].Payload))

	require.NoError(t, journal.DeleteInstance(ctx, inst.ID))

	outcomes, err = journal.LoadOutcomes(ctx, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	open, err := journal.LoadOpenInstances(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}
