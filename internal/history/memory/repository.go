// Package memory provides an in-memory history repository, used when no
// database is configured and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/history"
)

// tenantShard holds one tenant's entries behind its own lock so
// unrelated tenants never contend.
type tenantShard struct {
	mu      sync.RWMutex
	entries map[string]*domain.HistoryEntry // keyed by request id
}

// Repository implements history.Repository in memory.
type Repository struct {
	mu     sync.RWMutex
	shards map[string]*tenantShard

	now func() time.Time
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		shards: make(map[string]*tenantShard),
		now:    time.Now,
	}
}

// Append upserts the entry, last write wins.
func (r *Repository) Append(_ context.Context, entry *domain.HistoryEntry) error {
	shard := r.shardFor(entry.TenantID)

	cp := *entry
	shard.mu.Lock()
	shard.entries[entry.RequestID] = &cp
	shard.mu.Unlock()
	return nil
}

// Get returns the entry for (tenantID, requestID).
func (r *Repository) Get(_ context.Context, tenantID, requestID string) (*domain.HistoryEntry, error) {
	shard, ok := r.lookupShard(tenantID)
	if !ok {
		return nil, history.ErrEntryNotFound
	}

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, ok := shard.entries[requestID]
	if !ok {
		return nil, history.ErrEntryNotFound
	}
	cp := *entry
	return &cp, nil
}

// Search returns a filtered, sorted page of entries.
func (r *Repository) Search(_ context.Context, q history.Query) (*history.Page, error) {
	q.Normalize()

	matched := make([]*domain.HistoryEntry, 0)
	r.forEachEntry(func(e *domain.HistoryEntry) {
		if q.Matches(e) {
			cp := *e
			matched = append(matched, &cp)
		}
	})

	sortEntries(matched, q.SortBy, q.SortDesc)

	total := len(matched)
	start := (q.PageNumber - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	return &history.Page{
		Entries:    matched[start:end],
		TotalCount: total,
		PageSize:   q.PageSize,
		PageNumber: q.PageNumber,
		TotalPages: history.TotalPagesFor(total, q.PageSize),
	}, nil
}

// Statistics aggregates entries matching the filter.
func (r *Repository) Statistics(_ context.Context, f history.StatsFilter) (*history.Statistics, error) {
	stats := &history.Statistics{
		ByPlatform: make(map[string]int),
		ByAction:   make(map[string]int),
		ByTenant:   make(map[string]int),
	}

	var completedTotal time.Duration
	var completedCount int

	r.forEachEntry(func(e *domain.HistoryEntry) {
		if f.TenantID != "" && e.TenantID != f.TenantID {
			return
		}
		if f.From != nil && e.InitiatedAt.Before(*f.From) {
			return
		}
		if f.To != nil && e.InitiatedAt.After(*f.To) {
			return
		}

		stats.Total++
		stats.ByPlatform[string(e.Platform)]++
		stats.ByAction[string(e.Action)]++
		stats.ByTenant[e.TenantID]++

		switch {
		case e.Status == domain.StatusCancelled:
			stats.Cancelled++
		case e.Success:
			stats.Successful++
		case e.Status.IsTerminal():
			stats.Failed++
		default:
			stats.InProgress++
		}

		if e.CompletedAt != nil {
			completedTotal += e.CompletedAt.Sub(e.InitiatedAt)
			completedCount++
		}
	})

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	if completedCount > 0 {
		stats.AverageCompletionTime = completedTotal / time.Duration(completedCount)
	}

	return stats, nil
}

// MarkCancelled records cancellation on the keyed entry.
func (r *Repository) MarkCancelled(_ context.Context, tenantID, requestID, actor, reason string) (*domain.HistoryEntry, error) {
	shard, ok := r.lookupShard(tenantID)
	if !ok {
		return nil, history.ErrEntryNotFound
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[requestID]
	if !ok {
		return nil, history.ErrEntryNotFound
	}

	now := r.now()
	entry.Status = domain.StatusCancelled
	entry.Success = false
	entry.CancelledAt = &now
	entry.CancelledBy = actor
	entry.CancellationReason = reason
	entry.CompletedAt = &now
	entry.Duration = now.Sub(entry.InitiatedAt)

	cp := *entry
	return &cp, nil
}

// Purge removes terminal entries initiated strictly before the cutoff.
func (r *Repository) Purge(_ context.Context, before time.Time) (int, error) {
	r.mu.RLock()
	shards := make([]*tenantShard, 0, len(r.shards))
	for _, s := range r.shards {
		shards = append(shards, s)
	}
	r.mu.RUnlock()

	removed := 0
	for _, shard := range shards {
		shard.mu.Lock()
		for id, entry := range shard.entries {
			if entry.Status.IsTerminal() && entry.InitiatedAt.Before(before) {
				delete(shard.entries, id)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed, nil
}

func (r *Repository) shardFor(tenantID string) *tenantShard {
	r.mu.RLock()
	shard, ok := r.shards[tenantID]
	r.mu.RUnlock()
	if ok {
		return shard
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if shard, ok = r.shards[tenantID]; ok {
		return shard
	}
	shard = &tenantShard{entries: make(map[string]*domain.HistoryEntry)}
	r.shards[tenantID] = shard
	return shard
}

func (r *Repository) lookupShard(tenantID string) (*tenantShard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	shard, ok := r.shards[tenantID]
	return shard, ok
}

func (r *Repository) forEachEntry(fn func(e *domain.HistoryEntry)) {
	r.mu.RLock()
	shards := make([]*tenantShard, 0, len(r.shards))
	for _, s := range r.shards {
		shards = append(shards, s)
	}
	r.mu.RUnlock()

	for _, shard := range shards {
		shard.mu.RLock()
		for _, e := range shard.entries {
			fn(e)
		}
		shard.mu.RUnlock()
	}
}

func sortEntries(entries []*domain.HistoryEntry, field history.SortField, desc bool) {
	less := func(a, b *domain.HistoryEntry) bool {
		switch field {
		case history.SortByCompletedAt:
			at, bt := time.Time{}, time.Time{}
			if a.CompletedAt != nil {
				at = *a.CompletedAt
			}
			if b.CompletedAt != nil {
				bt = *b.CompletedAt
			}
			if !at.Equal(bt) {
				return at.Before(bt)
			}
		case history.SortByPlatform:
			if a.Platform != b.Platform {
				return a.Platform < b.Platform
			}
		default:
			if !a.InitiatedAt.Equal(b.InitiatedAt) {
				return a.InitiatedAt.Before(b.InitiatedAt)
			}
		}
		// Stable tiebreaker for deterministic pages.
		return a.RequestID < b.RequestID
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if desc {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}
