package memory

import (
	"context"
	"testing"
	"time"

	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(tenantID, requestID string, status domain.ResponseStatus, initiated time.Time) *domain.HistoryEntry {
	return &domain.HistoryEntry{
		TenantID:    tenantID,
		RequestID:   requestID,
		IncidentID:  "INC-1",
		Platform:    domain.PlatformEndpointProtection,
		Action:      domain.ActionIsolateDevice,
		Status:      status,
		Success:     status == domain.StatusCompleted,
		InitiatedBy: "analyst@example.com",
		Priority:    domain.PriorityMedium,
		InitiatedAt: initiated,
	}
}

func completedEntry(tenantID, requestID string, initiated time.Time, took time.Duration) *domain.HistoryEntry {
	e := entry(tenantID, requestID, domain.StatusCompleted, initiated)
	completed := initiated.Add(took)
	e.CompletedAt = &completed
	e.Duration = took
	return e
}

func TestRepository_AppendIsUpsert(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	now := time.Now()

	first := entry("tenant-a", "req-1", domain.StatusFailed, now)
	require.NoError(t, repo.Append(ctx, first))

	second := entry("tenant-a", "req-1", domain.StatusCompleted, now)
	require.NoError(t, repo.Append(ctx, second))

	got, err := repo.Get(ctx, "tenant-a", "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status, "last write wins")

	page, err := repo.Search(ctx, history.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount, "upsert must not duplicate")
}

func TestRepository_GetUnknownKey(t *testing.T) {
	repo := NewRepository()

	_, err := repo.Get(context.Background(), "tenant-a", "nope")
	assert.ErrorIs(t, err, history.ErrEntryNotFound)

	require.NoError(t, repo.Append(context.Background(), entry("tenant-a", "req-1", domain.StatusCompleted, time.Now())))
	_, err = repo.Get(context.Background(), "tenant-b", "req-1")
	assert.ErrorIs(t, err, history.ErrEntryNotFound, "keys are scoped per tenant")
}

func TestRepository_SearchFiltersAndPaginates(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e := entry("tenant-a", string(rune('a'+i)), domain.StatusCompleted, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.Append(ctx, e))
	}
	require.NoError(t, repo.Append(ctx, entry("tenant-b", "other", domain.StatusFailed, base)))

	tenantA := "tenant-a"
	page, err := repo.Search(ctx, history.Query{
		TenantID:   &tenantA,
		SortBy:     history.SortByInitiatedAt,
		SortDesc:   true,
		PageSize:   2,
		PageNumber: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Entries, 2)
	assert.True(t, page.Entries[0].InitiatedAt.After(page.Entries[1].InitiatedAt))

	// Last page is the remainder.
	page, err = repo.Search(ctx, history.Query{TenantID: &tenantA, PageSize: 2, PageNumber: 3})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 1)

	// Out of range pages are empty, not an error.
	page, err = repo.Search(ctx, history.Query{TenantID: &tenantA, PageSize: 2, PageNumber: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
}

func TestRepository_SearchDateRange(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, entry("tenant-a", "early", domain.StatusCompleted, base)))
	require.NoError(t, repo.Append(ctx, entry("tenant-a", "late", domain.StatusCompleted, base.AddDate(0, 0, 10))))

	from := base.AddDate(0, 0, 5)
	page, err := repo.Search(ctx, history.Query{From: &from})
	require.NoError(t, err)

	require.Len(t, page.Entries, 1)
	assert.Equal(t, "late", page.Entries[0].RequestID)
}

func TestRepository_StatisticsEmptyStore(t *testing.T) {
	repo := NewRepository()

	stats, err := repo.Statistics(context.Background(), history.StatsFilter{})
	require.NoError(t, err)

	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.SuccessRate, "success rate must be 0 with no entries")
	assert.Zero(t, stats.AverageCompletionTime)
}

func TestRepository_StatisticsCountsAndRate(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Append(ctx, completedEntry("tenant-a", "ok-1", now, 10*time.Second)))
	require.NoError(t, repo.Append(ctx, completedEntry("tenant-a", "ok-2", now, 20*time.Second)))
	require.NoError(t, repo.Append(ctx, entry("tenant-a", "failed", domain.StatusFailed, now)))
	require.NoError(t, repo.Append(ctx, entry("tenant-a", "running", "", now)))

	stats, err := repo.Statistics(ctx, history.StatsFilter{})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.InProgress)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.0001)

	// Entries without a completion are excluded from the average.
	assert.Equal(t, 15*time.Second, stats.AverageCompletionTime)

	assert.Equal(t, 4, stats.ByPlatform[string(domain.PlatformEndpointProtection)])
	assert.Equal(t, 4, stats.ByTenant["tenant-a"])
}

func TestRepository_StatisticsTenantFilter(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Append(ctx, completedEntry("tenant-a", "a-1", now, time.Second)))
	require.NoError(t, repo.Append(ctx, completedEntry("tenant-b", "b-1", now, time.Second)))

	stats, err := repo.Statistics(ctx, history.StatsFilter{TenantID: "tenant-a"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByTenant["tenant-a"])
	assert.Zero(t, stats.ByTenant["tenant-b"])
}

func TestRepository_MarkCancelled(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	now := time.Now().Add(-time.Minute)

	require.NoError(t, repo.Append(ctx, entry("tenant-a", "req-1", "", now)))

	updated, err := repo.MarkCancelled(ctx, "tenant-a", "req-1", "admin@example.com", "no longer needed")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, updated.Status)
	assert.Equal(t, "admin@example.com", updated.CancelledBy)
	assert.Equal(t, "no longer needed", updated.CancellationReason)
	require.NotNil(t, updated.CancelledAt)
	require.NotNil(t, updated.CompletedAt)
	assert.Greater(t, updated.Duration, time.Duration(0))

	stored, err := repo.Get(ctx, "tenant-a", "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

func TestRepository_MarkCancelledUnknownEntry(t *testing.T) {
	repo := NewRepository()

	_, err := repo.MarkCancelled(context.Background(), "tenant-a", "missing", "actor", "reason")
	assert.ErrorIs(t, err, history.ErrEntryNotFound)
}

func TestRepository_PurgeRemovesOnlyOldTerminalEntries(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, entry("tenant-a", "old-done", domain.StatusCompleted, cutoff.AddDate(0, -1, 0))))
	require.NoError(t, repo.Append(ctx, entry("tenant-a", "old-failed", domain.StatusFailed, cutoff.AddDate(0, -2, 0))))
	require.NoError(t, repo.Append(ctx, entry("tenant-a", "old-running", "", cutoff.AddDate(0, -3, 0))))
	require.NoError(t, repo.Append(ctx, entry("tenant-a", "new-done", domain.StatusCompleted, cutoff.AddDate(0, 1, 0))))
	require.NoError(t, repo.Append(ctx, entry("tenant-a", "at-cutoff", domain.StatusCompleted, cutoff)))

	removed, err := repo.Purge(ctx, cutoff)
	require.NoError(t, err)

	assert.Equal(t, 2, removed)

	_, err = repo.Get(ctx, "tenant-a", "old-done")
	assert.ErrorIs(t, err, history.ErrEntryNotFound)
	_, err = repo.Get(ctx, "tenant-a", "old-running")
	assert.NoError(t, err, "running entries are never purged")
	_, err = repo.Get(ctx, "tenant-a", "new-done")
	assert.NoError(t, err)
	_, err = repo.Get(ctx, "tenant-a", "at-cutoff")
	assert.NoError(t, err, "cutoff is strict")
}
