// Package postgres provides the PostgreSQL implementation of the
// history repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/history"
)

// terminalStatuses is the closed set of statuses eligible for purging.
var terminalStatuses = []string{
	string(domain.StatusCompleted),
	string(domain.StatusFailed),
	string(domain.StatusCancelled),
	string(domain.StatusValidationFailed),
	string(domain.StatusPlatformNotSupported),
	string(domain.StatusActionNotSupported),
	string(domain.StatusOrchestrationFailed),
}

// Repository implements history.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Append upserts the entry keyed by (tenant_id, request_id).
func (r *Repository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	query := `
		INSERT INTO remediation_history (
			tenant_id, request_id, incident_id, platform, action,
			status, success, message, parameters, initiated_by,
			priority, justification, initiated_at, completed_at,
			duration_ms, cancelled_at, cancelled_by, cancellation_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (tenant_id, request_id) DO UPDATE SET
			incident_id = EXCLUDED.incident_id,
			platform = EXCLUDED.platform,
			action = EXCLUDED.action,
			status = EXCLUDED.status,
			success = EXCLUDED.success,
			message = EXCLUDED.message,
			parameters = EXCLUDED.parameters,
			initiated_by = EXCLUDED.initiated_by,
			priority = EXCLUDED.priority,
			justification = EXCLUDED.justification,
			initiated_at = EXCLUDED.initiated_at,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			cancelled_at = EXCLUDED.cancelled_at,
			cancelled_by = EXCLUDED.cancelled_by,
			cancellation_reason = EXCLUDED.cancellation_reason
	`
	_, err := r.db.Exec(ctx, query,
		entry.TenantID,
		entry.RequestID,
		entry.IncidentID,
		entry.Platform,
		entry.Action,
		entry.Status,
		entry.Success,
		entry.Message,
		entry.Parameters,
		entry.InitiatedBy,
		entry.Priority,
		entry.Justification,
		entry.InitiatedAt,
		entry.CompletedAt,
		entry.Duration.Milliseconds(),
		entry.CancelledAt,
		entry.CancelledBy,
		entry.CancellationReason,
	)
	if err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

const selectColumns = `
	tenant_id, request_id, incident_id, platform, action,
	status, success, message, parameters, initiated_by,
	priority, justification, initiated_at, completed_at,
	duration_ms, cancelled_at, cancelled_by, cancellation_reason
`

// Get retrieves the entry for (tenantID, requestID).
func (r *Repository) Get(ctx context.Context, tenantID, requestID string) (*domain.HistoryEntry, error) {
	query := `SELECT ` + selectColumns + `
		FROM remediation_history
		WHERE tenant_id = $1 AND request_id = $2
	`
	entry, err := scanEntry(r.db.QueryRow(ctx, query, tenantID, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, history.ErrEntryNotFound
		}
		return nil, fmt.Errorf("get history entry: %w", err)
	}
	return entry, nil
}

// Search returns a filtered, sorted, paginated view of entries.
func (r *Repository) Search(ctx context.Context, q history.Query) (*history.Page, error) {
	q.Normalize()

	where := " WHERE 1=1"
	args := []any{}
	argNum := 1

	addFilter := func(column string, value any) {
		where += fmt.Sprintf(" AND %s = $%d", column, argNum)
		args = append(args, value)
		argNum++
	}

	if q.TenantID != nil {
		addFilter("tenant_id", *q.TenantID)
	}
	if q.IncidentID != nil {
		addFilter("incident_id", *q.IncidentID)
	}
	if q.Platform != nil {
		addFilter("platform", *q.Platform)
	}
	if q.Action != nil {
		addFilter("action", *q.Action)
	}
	if q.Status != nil {
		addFilter("status", *q.Status)
	}
	if q.InitiatedBy != nil {
		addFilter("initiated_by", *q.InitiatedBy)
	}
	if q.From != nil {
		where += fmt.Sprintf(" AND initiated_at >= $%d", argNum)
		args = append(args, *q.From)
		argNum++
	}
	if q.To != nil {
		where += fmt.Sprintf(" AND initiated_at <= $%d", argNum)
		args = append(args, *q.To)
		argNum++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM remediation_history" + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count history entries: %w", err)
	}

	// Sort column comes from a fixed whitelist, never from user input.
	sortColumn := "initiated_at"
	switch q.SortBy {
	case history.SortByCompletedAt:
		sortColumn = "completed_at"
	case history.SortByPlatform:
		sortColumn = "platform"
	}
	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}

	listQuery := "SELECT " + selectColumns + " FROM remediation_history" + where +
		fmt.Sprintf(" ORDER BY %s %s, request_id ASC LIMIT $%d OFFSET $%d", sortColumn, direction, argNum, argNum+1)
	args = append(args, q.PageSize, (q.PageNumber-1)*q.PageSize)

	rows, err := r.db.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search history entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.HistoryEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history entries: %w", err)
	}

	return &history.Page{
		Entries:    entries,
		TotalCount: total,
		PageSize:   q.PageSize,
		PageNumber: q.PageNumber,
		TotalPages: history.TotalPagesFor(total, q.PageSize),
	}, nil
}

// Statistics aggregates entries matching the filter.
func (r *Repository) Statistics(ctx context.Context, f history.StatsFilter) (*history.Statistics, error) {
	where := " WHERE 1=1"
	args := []any{}
	argNum := 1

	if f.TenantID != "" {
		where += fmt.Sprintf(" AND tenant_id = $%d", argNum)
		args = append(args, f.TenantID)
		argNum++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND initiated_at >= $%d", argNum)
		args = append(args, *f.From)
		argNum++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND initiated_at <= $%d", argNum)
		args = append(args, *f.To)
		argNum++
	}

	stats := &history.Statistics{
		ByPlatform: make(map[string]int),
		ByAction:   make(map[string]int),
		ByTenant:   make(map[string]int),
	}

	countsQuery := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success AND status = ANY($` + fmt.Sprint(argNum) + `) AND status <> 'Cancelled'),
			COUNT(*) FILTER (WHERE status = 'Cancelled'),
			COUNT(*) FILTER (WHERE NOT (status = ANY($` + fmt.Sprint(argNum) + `))),
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - initiated_at))) FILTER (WHERE completed_at IS NOT NULL), 0)
		FROM remediation_history` + where
	countArgs := append(append([]any{}, args...), terminalStatuses)

	var avgSeconds float64
	err := r.db.QueryRow(ctx, countsQuery, countArgs...).Scan(
		&stats.Total,
		&stats.Successful,
		&stats.Failed,
		&stats.Cancelled,
		&stats.InProgress,
		&avgSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate history counts: %w", err)
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	stats.AverageCompletionTime = time.Duration(avgSeconds * float64(time.Second))

	for column, target := range map[string]map[string]int{
		"platform":  stats.ByPlatform,
		"action":    stats.ByAction,
		"tenant_id": stats.ByTenant,
	} {
		query := fmt.Sprintf("SELECT %s, COUNT(*) FROM remediation_history%s GROUP BY %s", column, where, column)
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("aggregate history by %s: %w", column, err)
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s aggregate: %w", column, err)
			}
			target[key] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate %s aggregate: %w", column, err)
		}
	}

	return stats, nil
}

// MarkCancelled records cancellation on the keyed entry.
func (r *Repository) MarkCancelled(ctx context.Context, tenantID, requestID, actor, reason string) (*domain.HistoryEntry, error) {
	query := `
		UPDATE remediation_history SET
			status = 'Cancelled',
			success = FALSE,
			cancelled_at = NOW(),
			cancelled_by = $3,
			cancellation_reason = $4,
			completed_at = NOW(),
			duration_ms = (EXTRACT(EPOCH FROM (NOW() - initiated_at)) * 1000)::BIGINT
		WHERE tenant_id = $1 AND request_id = $2
		RETURNING ` + selectColumns + `
	`
	entry, err := scanEntry(r.db.QueryRow(ctx, query, tenantID, requestID, actor, reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, history.ErrEntryNotFound
		}
		return nil, fmt.Errorf("mark history entry cancelled: %w", err)
	}
	return entry, nil
}

// Purge removes terminal entries initiated strictly before the cutoff.
func (r *Repository) Purge(ctx context.Context, before time.Time) (int, error) {
	query := `
		DELETE FROM remediation_history
		WHERE status = ANY($1) AND initiated_at < $2
	`
	tag, err := r.db.Exec(ctx, query, terminalStatuses, before)
	if err != nil {
		return 0, fmt.Errorf("purge history entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanEntry(row pgx.Row) (*domain.HistoryEntry, error) {
	var entry domain.HistoryEntry
	var durationMs int64
	err := row.Scan(
		&entry.TenantID,
		&entry.RequestID,
		&entry.IncidentID,
		&entry.Platform,
		&entry.Action,
		&entry.Status,
		&entry.Success,
		&entry.Message,
		&entry.Parameters,
		&entry.InitiatedBy,
		&entry.Priority,
		&entry.Justification,
		&entry.InitiatedAt,
		&entry.CompletedAt,
		&durationMs,
		&entry.CancelledAt,
		&entry.CancelledBy,
		&entry.CancellationReason,
	)
	if err != nil {
		return nil, err
	}
	entry.Duration = time.Duration(durationMs) * time.Millisecond
	return &entry, nil
}
