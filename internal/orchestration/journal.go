package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opsforge/remediator/internal/domain"
)

// StepName identifies one workflow step.
type StepName string

// Workflow steps, in execution order.
const (
	StepValidate      StepName = "validate"
	StepExecute       StepName = "execute"
	StepAudit         StepName = "audit"
	StepNotify        StepName = "notify"
	StepRecordHistory StepName = "record-history"
)

// StepOutcome is the persisted result of one completed step. Outcomes
// are written before the workflow advances; on replay after a crash,
// steps with a persisted outcome are skipped instead of re-executed.
type StepOutcome struct {
	InstanceID string          `json:"instance_id"`
	Step       StepName        `json:"step"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// JournalStore persists orchestration instances and their step
// outcomes. It is the engine's durability boundary.
type JournalStore interface {
	// SaveInstance upserts the instance checkpoint.
	SaveInstance(ctx context.Context, inst *domain.OrchestrationInstance) error

	// LoadInstance returns the checkpoint for the id, terminal or not,
	// or ErrInstanceNotFound. Terminal instances stay loadable until
	// purged.
	LoadInstance(ctx context.Context, instanceID string) (*domain.OrchestrationInstance, error)

	// LoadOpenInstances returns every instance not in a terminal state,
	// for crash recovery.
	LoadOpenInstances(ctx context.Context) ([]*domain.OrchestrationInstance, error)

	// RecordOutcome appends one step outcome for the instance.
	RecordOutcome(ctx context.Context, outcome *StepOutcome) error

	// LoadOutcomes returns the instance's recorded outcomes.
	LoadOutcomes(ctx context.Context, instanceID string) ([]*StepOutcome, error)

	// PurgeInstances deletes terminal instances created before the
	// cutoff, with their step outcomes. Returns the number removed.
	PurgeInstances(ctx context.Context, before time.Time) (int, error)
}

// journal is the per-instance view over the store: recorded outcomes
// loaded once, new outcomes written through.
type journal struct {
	store      JournalStore
	instanceID string
	outcomes   map[StepName]json.RawMessage
}

func openJournal(ctx context.Context, store JournalStore, instanceID string) (*journal, error) {
	recorded, err := store.LoadOutcomes(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load journal for instance %s: %w", instanceID, err)
	}

	outcomes := make(map[StepName]json.RawMessage, len(recorded))
	for _, o := range recorded {
		outcomes[o.Step] = o.Payload
	}

	return &journal{store: store, instanceID: instanceID, outcomes: outcomes}, nil
}

// runStep executes fn once per instance lifetime. A step whose outcome
// is already journaled is replayed from the journal without invoking
// fn; otherwise fn runs and its result is persisted before the
// workflow advances. A failed fn leaves no outcome, so the step
// re-runs on the next replay.
func runStep[T any](ctx context.Context, j *journal, step StepName, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T

	if payload, ok := j.outcomes[step]; ok {
		if err := json.Unmarshal(payload, &result); err != nil {
			return result, fmt.Errorf("replay step %s: %w", step, err)
		}
		recordStepReplayed(step)
		return result, nil
	}

	result, err := fn(ctx)
	if err != nil {
		return result, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return result, fmt.Errorf("marshal outcome of step %s: %w", step, err)
	}

	outcome := &StepOutcome{
		InstanceID: j.instanceID,
		Step:       step,
		Payload:    payload,
		RecordedAt: time.Now(),
	}
	if err := j.store.RecordOutcome(ctx, outcome); err != nil {
		return result, fmt.Errorf("record outcome of step %s: %w", step, err)
	}
	j.outcomes[step] = payload

	return result, nil
}

// MemoryJournal implements JournalStore in memory. Durability then
// reduces to the process lifetime; used when no database is configured
// and by tests.
type MemoryJournal struct {
	mu        sync.RWMutex
	instances map[string]*domain.OrchestrationInstance
	outcomes  map[string][]*StepOutcome
}

// NewMemoryJournal creates an empty in-memory journal store.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		instances: make(map[string]*domain.OrchestrationInstance),
		outcomes:  make(map[string][]*StepOutcome),
	}
}

// SaveInstance upserts the instance checkpoint.
func (m *MemoryJournal) SaveInstance(_ context.Context, inst *domain.OrchestrationInstance) error {
	cp := *inst
	m.mu.Lock()
	m.instances[inst.ID] = &cp
	m.mu.Unlock()
	return nil
}

// LoadInstance returns the checkpoint by id.
func (m *MemoryJournal) LoadInstance(_ context.Context, instanceID string) (*domain.OrchestrationInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	cp := *inst
	return &cp, nil
}

// LoadOpenInstances returns every non-terminal instance.
func (m *MemoryJournal) LoadOpenInstances(_ context.Context) ([]*domain.OrchestrationInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	open := make([]*domain.OrchestrationInstance, 0)
	for _, inst := range m.instances {
		if !inst.State.IsTerminal() {
			cp := *inst
			open = append(open, &cp)
		}
	}
	return open, nil
}

// RecordOutcome appends one step outcome.
func (m *MemoryJournal) RecordOutcome(_ context.Context, outcome *StepOutcome) error {
	m.mu.Lock()
	m.outcomes[outcome.InstanceID] = append(m.outcomes[outcome.InstanceID], outcome)
	m.mu.Unlock()
	return nil
}

// LoadOutcomes returns the instance's recorded outcomes.
func (m *MemoryJournal) LoadOutcomes(_ context.Context, instanceID string) ([]*StepOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*StepOutcome(nil), m.outcomes[instanceID]...), nil
}

// PurgeInstances deletes terminal instances created before the cutoff.
func (m *MemoryJournal) PurgeInstances(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, inst := range m.instances {
		if inst.State.IsTerminal() && inst.CreatedAt.Before(before) {
			delete(m.instances, id)
			delete(m.outcomes, id)
			removed++
		}
	}
	return removed, nil
}

// DeleteInstance removes the instance and its outcomes.
func (m *MemoryJournal) DeleteInstance(_ context.Context, instanceID string) error {
	m.mu.Lock()
	delete(m.instances, instanceID)
	delete(m.outcomes, instanceID)
	m.mu.Unlock()
	return nil
}
