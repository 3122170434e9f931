// Package history stores the durable, queryable record of remediation
// requests and their outcomes.
package history

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/opsforge/remediator/internal/domain"
)

// Errors returned by repositories.
var (
	// ErrEntryNotFound indicates no entry exists for the key.
	ErrEntryNotFound = errors.New("history entry not found")
)

// SortField selects the ordering of query results.
type SortField string

// Sort fields.
const (
	SortByInitiatedAt SortField = "initiated_at"
	SortByCompletedAt SortField = "completed_at"
	SortByPlatform    SortField = "platform"
)

// Query holds filter, sort and pagination options for listing entries.
// Nil filters are ignored.
type Query struct {
	TenantID    *string
	IncidentID  *string
	Platform    *domain.Platform
	Action      *domain.Action
	Status      *domain.ResponseStatus
	InitiatedBy *string
	From        *time.Time
	To          *time.Time

	SortBy   SortField
	SortDesc bool

	PageSize   int
	PageNumber int
}

// Normalize applies pagination and sort defaults.
func (q *Query) Normalize() {
	if q.PageSize <= 0 {
		q.PageSize = 50
	}
	if q.PageNumber <= 0 {
		q.PageNumber = 1
	}
	if q.SortBy == "" {
		q.SortBy = SortByInitiatedAt
	}
}

// Matches reports whether the entry passes the query's filters.
func (q *Query) Matches(e *domain.HistoryEntry) bool {
	if q.TenantID != nil && e.TenantID != *q.TenantID {
		return false
	}
	if q.IncidentID != nil && e.IncidentID != *q.IncidentID {
		return false
	}
	if q.Platform != nil && e.Platform != *q.Platform {
		return false
	}
	if q.Action != nil && e.Action != *q.Action {
		return false
	}
	if q.Status != nil && e.Status != *q.Status {
		return false
	}
	if q.InitiatedBy != nil && e.InitiatedBy != *q.InitiatedBy {
		return false
	}
	if q.From != nil && e.InitiatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && e.InitiatedAt.After(*q.To) {
		return false
	}
	return true
}

// Page is one page of query results.
type Page struct {
	Entries    []*domain.HistoryEntry `json:"entries"`
	TotalCount int                    `json:"total_count"`
	PageSize   int                    `json:"page_size"`
	PageNumber int                    `json:"page_number"`
	TotalPages int                    `json:"total_pages"`
}

// TotalPagesFor computes ceil(total / pageSize).
func TotalPagesFor(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

// StatsFilter narrows statistics to a tenant and/or date range. Zero
// values mean unbounded.
type StatsFilter struct {
	TenantID string
	From     *time.Time
	To       *time.Time
}

// Statistics aggregates remediation history.
type Statistics struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	InProgress int `json:"in_progress"`

	ByPlatform map[string]int `json:"by_platform"`
	ByAction   map[string]int `json:"by_action"`
	ByTenant   map[string]int `json:"by_tenant"`

	// SuccessRate is successful/total*100, zero when total is zero.
	SuccessRate float64 `json:"success_rate"`

	// AverageCompletionTime is the mean of completed_at - initiated_at
	// over entries that have completed; entries without a completion
	// are excluded, not counted as zero.
	AverageCompletionTime time.Duration `json:"average_completion_time"`
}

// Repository stores history entries keyed by (tenant_id, request_id).
type Repository interface {
	// Append upserts the entry, last write wins.
	Append(ctx context.Context, entry *domain.HistoryEntry) error

	// Get returns the entry for the key or ErrEntryNotFound.
	Get(ctx context.Context, tenantID, requestID string) (*domain.HistoryEntry, error)

	// Search returns a filtered, sorted, paginated view of entries.
	Search(ctx context.Context, q Query) (*Page, error)

	// Statistics aggregates entries matching the filter.
	Statistics(ctx context.Context, f StatsFilter) (*Statistics, error)

	// MarkCancelled records cancellation on the keyed entry and
	// returns the updated entry.
	MarkCancelled(ctx context.Context, tenantID, requestID, actor, reason string) (*domain.HistoryEntry, error)

	// Purge removes terminal entries initiated strictly before the
	// cutoff and returns how many were removed. Non-terminal entries
	// are retained regardless of age.
	Purge(ctx context.Context, before time.Time) (int, error)
}
