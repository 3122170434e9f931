// Package postgres provides the PostgreSQL implementation of the
// orchestration journal store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/orchestration"
)

// Journal implements orchestration.JournalStore using PostgreSQL. The
// request and output are stored as JSON documents; the state column is
// kept relational so recovery can select open instances by index.
type Journal struct {
	db *pgxpool.Pool
}

// NewJournal creates a new PostgreSQL journal store.
func NewJournal(db *pgxpool.Pool) *Journal {
	return &Journal{db: db}
}

// SaveInstance upserts the instance checkpoint.
func (j *Journal) SaveInstance(ctx context.Context, inst *domain.OrchestrationInstance) error {
	request, err := json.Marshal(inst.Request)
	if err != nil {
		return fmt.Errorf("marshal instance request: %w", err)
	}

	var output []byte
	if inst.Output != nil {
		output, err = json.Marshal(inst.Output)
		if err != nil {
			return fmt.Errorf("marshal instance output: %w", err)
		}
	}

	query := `
		INSERT INTO orchestration_instances (
			id, tenant_id, request, state, output, created_at, last_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			request = EXCLUDED.request,
			state = EXCLUDED.state,
			output = EXCLUDED.output,
			last_updated_at = EXCLUDED.last_updated_at
	`
	_, err = j.db.Exec(ctx, query,
		inst.ID,
		inst.Request.TenantID,
		request,
		inst.State,
		output,
		inst.CreatedAt,
		inst.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save instance: %w", err)
	}
	return nil
}

// LoadInstance returns the checkpoint by id, terminal or not.
func (j *Journal) LoadInstance(ctx context.Context, instanceID string) (*domain.OrchestrationInstance, error) {
	query := `
		SELECT id, request, state, output, created_at, last_updated_at
		FROM orchestration_instances
		WHERE id = $1
	`
	var (
		inst    domain.OrchestrationInstance
		request []byte
		output  []byte
	)
	err := j.db.QueryRow(ctx, query, instanceID).
		Scan(&inst.ID, &request, &inst.State, &output, &inst.CreatedAt, &inst.LastUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, orchestration.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if err := json.Unmarshal(request, &inst.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request for instance %s: %w", inst.ID, err)
	}
	if len(output) > 0 {
		inst.Output = &domain.RemediationResponse{}
		if err := json.Unmarshal(output, inst.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output for instance %s: %w", inst.ID, err)
		}
	}
	return &inst, nil
}

// LoadOpenInstances returns every non-terminal instance for recovery.
func (j *Journal) LoadOpenInstances(ctx context.Context) ([]*domain.OrchestrationInstance, error) {
	query := `
		SELECT id, request, state, output, created_at, last_updated_at
		FROM orchestration_instances
		WHERE state NOT IN ($1, $2, $3, $4)
		ORDER BY created_at
	`
	rows, err := j.db.Query(ctx, query,
		domain.InstanceCompleted,
		domain.InstanceFailed,
		domain.InstanceCancelled,
		domain.InstanceTerminated,
	)
	if err != nil {
		return nil, fmt.Errorf("load open instances: %w", err)
	}
	defer rows.Close()

	var open []*domain.OrchestrationInstance
	for rows.Next() {
		var (
			inst    domain.OrchestrationInstance
			request []byte
			output  []byte
		)
		if err := rows.Scan(&inst.ID, &request, &inst.State, &output, &inst.CreatedAt, &inst.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		if err := json.Unmarshal(request, &inst.Request); err != nil {
			return nil, fmt.Errorf("unmarshal request for instance %s: %w", inst.ID, err)
		}
		if len(output) > 0 {
			inst.Output = &domain.RemediationResponse{}
			if err := json.Unmarshal(output, inst.Output); err != nil {
				return nil, fmt.Errorf("unmarshal output for instance %s: %w", inst.ID, err)
			}
		}
		open = append(open, &inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open instances: %w", err)
	}
	return open, nil
}

// RecordOutcome appends one step outcome. A replayed write of the same
// step is a no-op: the first recorded outcome wins.
func (j *Journal) RecordOutcome(ctx context.Context, outcome *orchestration.StepOutcome) error {
	query := `
		INSERT INTO orchestration_steps (instance_id, step, payload, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instance_id, step) DO NOTHING
	`
	_, err := j.db.Exec(ctx, query,
		outcome.InstanceID,
		outcome.Step,
		[]byte(outcome.Payload),
		outcome.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("record step outcome: %w", err)
	}
	return nil
}

// LoadOutcomes returns the instance's recorded outcomes in recording
// order.
func (j *Journal) LoadOutcomes(ctx context.Context, instanceID string) ([]*orchestration.StepOutcome, error) {
	query := `
		SELECT instance_id, step, payload, recorded_at
		FROM orchestration_steps
		WHERE instance_id = $1
		ORDER BY recorded_at
	`
	rows, err := j.db.Query(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load step outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*orchestration.StepOutcome
	for rows.Next() {
		var (
			o       orchestration.StepOutcome
			payload []byte
		)
		if err := rows.Scan(&o.InstanceID, &o.Step, &payload, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan step outcome: %w", err)
		}
		o.Payload = json.RawMessage(payload)
		outcomes = append(outcomes, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step outcomes: %w", err)
	}
	return outcomes, nil
}

// PurgeInstances deletes terminal instances created before the cutoff.
// The steps table cascades on the instance foreign key.
func (j *Journal) PurgeInstances(ctx context.Context, before time.Time) (int, error) {
	query := `
		DELETE FROM orchestration_instances
		WHERE state IN ($1, $2, $3, $4) AND created_at < $5
	`
	tag, err := j.db.Exec(ctx, query,
		domain.InstanceCompleted,
		domain.InstanceFailed,
		domain.InstanceCancelled,
		domain.InstanceTerminated,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("purge instances: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteInstance removes the instance checkpoint and its outcomes. The
// steps table cascades on the instance foreign key.
func (j *Journal) DeleteInstance(ctx context.Context, instanceID string) error {
	_, err := j.db.Exec(ctx, `DELETE FROM orchestration_instances WHERE id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	return nil
}
