// Package orchestration runs the durable remediation workflow: validate,
// route, execute, then audit/notify/record, with step outcomes journaled
// so a crashed instance replays without repeating completed steps.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opsforge/remediator/internal/audit"
	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/history"
	"github.com/opsforge/remediator/internal/notify"
	"github.com/opsforge/remediator/internal/validation"
)

// Errors returned by the engine's boundary operations.
var (
	// ErrInstanceNotFound indicates no instance exists for the id.
	ErrInstanceNotFound = errors.New("orchestration instance not found")

	// ErrInstanceTerminal indicates the instance already reached a
	// terminal state; cancellation conflicts instead of silently
	// succeeding.
	ErrInstanceTerminal = errors.New("orchestration instance already terminal")
)

// Validator checks a request before any handler is invoked.
type Validator interface {
	Validate(ctx context.Context, req *domain.RemediationRequest) validation.Result
}

// Dispatcher routes a request to its platform handler. The returned
// response is never nil.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *domain.RemediationRequest) *domain.RemediationResponse
}

// sideEffect is the journaled outcome of a best-effort step. The error
// text is retained for diagnostics but never escalates.
type sideEffect struct {
	Attempted bool   `json:"attempted"`
	Error     string `json:"error,omitempty"`
}

// instanceHandle pairs an instance with its cancellation controls. The
// handle mutex guards instance mutation and cancel flags; the run
// goroutine and Cancel are its only writers.
type instanceHandle struct {
	mu           sync.Mutex
	inst         *domain.OrchestrationInstance
	cancelRun    context.CancelFunc
	cancelled    bool
	terminate    bool
	cancelledBy  string
	cancelReason string
}

func (h *instanceHandle) snapshot() domain.OrchestrationInstance {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *h.inst
	if h.inst.Output != nil {
		out := *h.inst.Output
		cp.Output = &out
	}
	return cp
}

// Engine owns orchestration instances. Each instance executes on its
// own goroutine; steps within one instance run strictly sequentially.
type Engine struct {
	validator   Validator
	dispatcher  Dispatcher
	historyRepo history.Repository
	auditSink   audit.Sink
	notifySink  notify.Sink
	journal     JournalStore

	mu        sync.Mutex
	instances map[string]*instanceHandle

	wg         sync.WaitGroup
	baseCtx    context.Context
	baseCancel context.CancelFunc

	now func() time.Time
}

// NewEngine creates an orchestration engine.
func NewEngine(validator Validator, dispatcher Dispatcher, historyRepo history.Repository, auditSink audit.Sink, notifySink notify.Sink, journal JournalStore) *Engine {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Engine{
		validator:   validator,
		dispatcher:  dispatcher,
		historyRepo: historyRepo,
		auditSink:   auditSink,
		notifySink:  notifySink,
		journal:     journal,
		instances:   make(map[string]*instanceHandle),
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		now:         time.Now,
	}
}

// Submit creates an orchestration instance for the request and starts
// its execution. The returned id addresses the instance in GetStatus
// and Cancel.
func (e *Engine) Submit(ctx context.Context, req domain.RemediationRequest) (string, error) {
	req.EnsureRequestID()
	if req.Timestamp.IsZero() {
		req.Timestamp = e.now()
	}

	inst := &domain.OrchestrationInstance{
		ID:            uuid.NewString(),
		Request:       req,
		State:         domain.InstancePending,
		CreatedAt:     e.now(),
		LastUpdatedAt: e.now(),
	}

	if err := e.journal.SaveInstance(ctx, inst); err != nil {
		return "", fmt.Errorf("persist instance: %w", err)
	}

	slog.Info("orchestration submitted",
		"instance_id", inst.ID,
		"request_id", req.RequestID,
		"tenant_id", req.TenantID,
		"platform", req.Platform,
		"action", req.Action,
	)

	e.start(inst)
	return inst.ID, nil
}

// BatchRequest fans one action out over many targets.
type BatchRequest struct {
	Platform      domain.Platform
	Action        domain.Action
	TenantID      string
	IncidentID    string
	InitiatedBy   string
	Priority      domain.Priority
	Justification string
	Targets       []map[string]any
}

// SubmitBatch creates one independent instance per target. There is no
// cross-target atomicity: each instance validates and executes on its
// own, and one target's failure never alters another's outcome.
func (e *Engine) SubmitBatch(ctx context.Context, br BatchRequest) ([]string, error) {
	ids := make([]string, 0, len(br.Targets))
	for _, target := range br.Targets {
		req := domain.RemediationRequest{
			TenantID:      br.TenantID,
			IncidentID:    br.IncidentID,
			Platform:      br.Platform,
			Action:        br.Action,
			Parameters:    target,
			InitiatedBy:   br.InitiatedBy,
			Priority:      br.Priority,
			Justification: br.Justification,
		}

		id, err := e.Submit(ctx, req)
		if err != nil {
			slog.Error("batch target submission failed", "tenant_id", br.TenantID, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// InstanceStatus is a point-in-time snapshot of one instance.
type InstanceStatus struct {
	InstanceID    string                       `json:"instance_id"`
	Status        domain.InstanceState         `json:"status"`
	CreatedAt     time.Time                    `json:"created_at"`
	LastUpdatedAt time.Time                    `json:"last_updated_at"`
	Input         domain.RemediationRequest   `json:"input"`
	Output        *domain.RemediationResponse `json:"output,omitempty"`
}

// GetStatus returns a snapshot of the instance. Terminal instances
// that predate this process are served from the journal: an instance
// leaves the query surface only when purged.
func (e *Engine) GetStatus(ctx context.Context, instanceID string) (*InstanceStatus, error) {
	var inst domain.OrchestrationInstance
	if h, ok := e.handle(instanceID); ok {
		inst = h.snapshot()
	} else {
		loaded, err := e.journal.LoadInstance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		inst = *loaded
	}

	return &InstanceStatus{
		InstanceID:    inst.ID,
		Status:        inst.State,
		CreatedAt:     inst.CreatedAt,
		LastUpdatedAt: inst.LastUpdatedAt,
		Input:         inst.Request,
		Output:        inst.Output,
	}, nil
}

// CancelRequest identifies an instance to cancel and who asked.
type CancelRequest struct {
	InstanceID string
	Actor      string
	Reason     string
	// Terminate selects the Terminated terminal state instead of
	// Cancelled. History records both as Cancelled.
	Terminate bool
}

// Cancel delivers an out-of-band cancellation to the instance. A
// terminal instance rejects it with ErrInstanceTerminal; the stored
// history entry is left untouched in that case. The signal interrupts
// any in-flight outbound call; the instance does not cooperatively
// poll for it.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) error {
	h, ok := e.handle(req.InstanceID)
	if !ok {
		return e.cancelDetached(ctx, req)
	}

	// The lock is held through the history write so it serializes with
	// the run goroutine's own history step: either that step lands
	// first and MarkCancelled updates it, or the cancel flag is set
	// first and the step skips its append.
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.inst.State.IsTerminal() {
		return ErrInstanceTerminal
	}
	h.cancelled = true
	h.terminate = req.Terminate
	h.cancelledBy = req.Actor
	h.cancelReason = req.Reason

	h.cancelRun()

	slog.Info("orchestration cancelled",
		"instance_id", req.InstanceID,
		"actor", req.Actor,
		"reason", req.Reason,
		"terminate", req.Terminate,
	)

	return e.markHistoryCancelled(ctx, h.inst, req.Actor, req.Reason)
}

// cancelDetached cancels an instance known only to the journal. A
// terminal checkpoint conflicts; an open one (persisted but not
// recovered into this process) is finalized directly.
func (e *Engine) cancelDetached(ctx context.Context, req CancelRequest) error {
	inst, err := e.journal.LoadInstance(ctx, req.InstanceID)
	if err != nil {
		return err
	}
	if inst.State.IsTerminal() {
		return ErrInstanceTerminal
	}

	now := e.now()
	inst.State = domain.InstanceCancelled
	if req.Terminate {
		inst.State = domain.InstanceTerminated
	}
	inst.LastUpdatedAt = now
	inst.Output = &domain.RemediationResponse{
		RequestID:   inst.Request.RequestID,
		Success:     false,
		Status:      domain.StatusCancelled,
		Message:     fmt.Sprintf("cancelled by %s: %s", req.Actor, req.Reason),
		CompletedAt: now,
		Duration:    now.Sub(inst.CreatedAt),
	}
	if err := e.journal.SaveInstance(ctx, inst); err != nil {
		return fmt.Errorf("checkpoint cancelled instance: %w", err)
	}

	slog.Info("orchestration cancelled",
		"instance_id", req.InstanceID,
		"actor", req.Actor,
		"reason", req.Reason,
		"terminate", req.Terminate,
	)

	return e.markHistoryCancelled(ctx, inst, req.Actor, req.Reason)
}

// markHistoryCancelled records the cancellation on the history entry.
// Direct keyed lookup: the entry is addressed by (tenant_id,
// request_id), never resolved through a history query.
func (e *Engine) markHistoryCancelled(ctx context.Context, inst *domain.OrchestrationInstance, actor, reason string) error {
	_, err := e.historyRepo.MarkCancelled(ctx, inst.Request.TenantID, inst.Request.RequestID, actor, reason)
	if err != nil {
		if errors.Is(err, history.ErrEntryNotFound) {
			// Instance had not reached its history step yet; create the
			// cancelled record directly.
			return e.appendCancelledEntry(ctx, inst, actor, reason)
		}
		return fmt.Errorf("mark history cancelled: %w", err)
	}
	return nil
}

func (e *Engine) appendCancelledEntry(ctx context.Context, inst *domain.OrchestrationInstance, actor, reason string) error {
	now := e.now()
	var entry domain.HistoryEntry
	entry.FromInstance(inst)
	entry.Status = domain.StatusCancelled
	entry.Success = false
	entry.CancelledAt = &now
	entry.CancelledBy = actor
	entry.CancellationReason = reason
	entry.CompletedAt = &now
	entry.Duration = now.Sub(inst.CreatedAt)

	if err := e.historyRepo.Append(ctx, &entry); err != nil {
		return fmt.Errorf("append cancelled history entry: %w", err)
	}
	return nil
}

// Purge removes terminal history entries and instances created before
// the cutoff. Non-terminal work is retained regardless of age. Returns
// the number of history entries removed.
func (e *Engine) Purge(ctx context.Context, before time.Time) (int, error) {
	count, err := e.historyRepo.Purge(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}

	e.mu.Lock()
	for id, h := range e.instances {
		inst := h.snapshot()
		if inst.State.IsTerminal() && inst.CreatedAt.Before(before) {
			delete(e.instances, id)
		}
	}
	e.mu.Unlock()

	// The journal sweep also catches terminal instances from previous
	// processes that were never registered here.
	removed, err := e.journal.PurgeInstances(ctx, before)
	if err != nil {
		slog.Error("failed to purge instance journal", "error", err)
	}

	slog.Info("purge completed", "history_removed", count, "instances_removed", removed)
	return count, nil
}

// Recover reloads non-terminal instances from the journal store and
// resumes them. Replay skips every step whose outcome is already
// journaled, so completed side effects are not repeated.
func (e *Engine) Recover(ctx context.Context) error {
	open, err := e.journal.LoadOpenInstances(ctx)
	if err != nil {
		return fmt.Errorf("load open instances: %w", err)
	}

	for _, inst := range open {
		slog.Info("recovering orchestration instance",
			"instance_id", inst.ID,
			"state", inst.State,
		)
		e.start(inst)
	}

	if len(open) > 0 {
		slog.Info("orchestration recovery started", "instances", len(open))
	}
	return nil
}

// StateCounts returns the number of registered instances per state.
func (e *Engine) StateCounts() map[domain.InstanceState]int {
	e.mu.Lock()
	handles := make([]*instanceHandle, 0, len(e.instances))
	for _, h := range e.instances {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	counts := make(map[domain.InstanceState]int)
	for _, h := range handles {
		inst := h.snapshot()
		counts[inst.State]++
	}
	return counts
}

// Stop waits for in-flight instances to finish, aborting them when the
// context expires.
func (e *Engine) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.baseCancel()
		<-done
		return ctx.Err()
	}
}

func (e *Engine) handle(instanceID string) (*instanceHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.instances[instanceID]
	return h, ok
}

func (e *Engine) start(inst *domain.OrchestrationInstance) {
	runCtx, cancel := context.WithCancel(e.baseCtx)
	h := &instanceHandle{inst: inst, cancelRun: cancel}

	e.mu.Lock()
	e.instances[inst.ID] = h
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(runCtx, h)
	}()
}

// run executes the workflow for one instance. Steps are strictly
// sequential; any unexpected failure falls through to the
// OrchestrationFailed catch-all.
func (e *Engine) run(ctx context.Context, h *instanceHandle) {
	started := e.now()

	defer func() {
		if r := recover(); r != nil {
			e.failInstance(ctx, h, fmt.Sprintf("panic: %v", r))
		}
	}()

	j, err := openJournal(ctx, e.journal, h.inst.ID)
	if err != nil {
		e.failInstance(ctx, h, err.Error())
		return
	}

	if !e.setState(h, domain.InstanceValidating) {
		return
	}
	res, err := runStep(ctx, j, StepValidate, func(ctx context.Context) (validation.Result, error) {
		return e.validator.Validate(ctx, &h.inst.Request), nil
	})
	if err != nil {
		e.stepFailed(ctx, h, err)
		return
	}
	if !res.IsValid {
		// Terminal before execution: no audit, notification or history
		// side effects.
		e.finish(h, &domain.RemediationResponse{
			RequestID:   h.inst.Request.RequestID,
			Success:     false,
			Status:      domain.StatusValidationFailed,
			Message:     res.Message,
			CompletedAt: e.now(),
			Duration:    e.now().Sub(started),
		})
		return
	}

	if !e.setState(h, domain.InstanceRouting) {
		return
	}
	if !e.setState(h, domain.InstanceExecuting) {
		return
	}
	resp, err := runStep(ctx, j, StepExecute, func(ctx context.Context) (*domain.RemediationResponse, error) {
		return e.dispatcher.Dispatch(ctx, &h.inst.Request), nil
	})
	if err != nil {
		e.stepFailed(ctx, h, err)
		return
	}

	if !e.setState(h, domain.InstanceFinalizing) {
		return
	}
	h.mu.Lock()
	h.inst.Output = resp
	h.mu.Unlock()

	// Side effects are best-effort: a failure is journaled and logged
	// but never alters the instance's own outcome.
	if _, err := runStep(ctx, j, StepAudit, func(ctx context.Context) (sideEffect, error) {
		return e.writeAudit(ctx, h.inst, resp), nil
	}); err != nil {
		e.stepFailed(ctx, h, err)
		return
	}

	if h.inst.Request.Priority.AtLeast(domain.PriorityHigh) {
		if _, err := runStep(ctx, j, StepNotify, func(ctx context.Context) (sideEffect, error) {
			return e.sendNotification(ctx, h.inst, resp), nil
		}); err != nil {
			e.stepFailed(ctx, h, err)
			return
		}
	}

	if _, err := runStep(ctx, j, StepRecordHistory, func(ctx context.Context) (sideEffect, error) {
		return e.recordHistory(ctx, h), nil
	}); err != nil {
		e.stepFailed(ctx, h, err)
		return
	}

	e.finish(h, resp)
}

// setState advances the instance state, checkpointing the transition.
// Returns false when a cancellation was requested, after finalizing
// the instance as cancelled.
func (e *Engine) setState(h *instanceHandle, state domain.InstanceState) bool {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		e.finalizeCancelled(h)
		return false
	}
	h.inst.State = state
	h.inst.LastUpdatedAt = e.now()
	inst := *h.inst
	h.mu.Unlock()

	// The step journal is the replay source; a lost checkpoint only
	// costs a redundant state write on recovery.
	if err := e.journal.SaveInstance(context.Background(), &inst); err != nil {
		slog.Error("failed to checkpoint instance", "instance_id", inst.ID, "error", err)
	}
	return true
}

func (e *Engine) stepFailed(ctx context.Context, h *instanceHandle, err error) {
	h.mu.Lock()
	cancelled := h.cancelled
	h.mu.Unlock()

	if cancelled {
		e.finalizeCancelled(h)
		return
	}
	e.failInstance(ctx, h, err.Error())
}

// failInstance is the OrchestrationFailed catch-all path.
func (e *Engine) failInstance(ctx context.Context, h *instanceHandle, diagnostic string) {
	slog.Error("orchestration failed",
		"instance_id", h.inst.ID,
		"request_id", h.inst.Request.RequestID,
		"error", diagnostic,
	)

	e.finish(h, &domain.RemediationResponse{
		RequestID:   h.inst.Request.RequestID,
		Success:     false,
		Status:      domain.StatusOrchestrationFailed,
		Message:     "orchestration failed",
		Errors:      []string{diagnostic},
		CompletedAt: e.now(),
	})

	// Best-effort record so the failure is visible in history.
	h.mu.Lock()
	inst := *h.inst
	h.mu.Unlock()
	var entry domain.HistoryEntry
	entry.FromInstance(&inst)
	if err := e.historyRepo.Append(context.WithoutCancel(ctx), &entry); err != nil {
		slog.Error("failed to record orchestration failure", "instance_id", inst.ID, "error", err)
	}
}

func (e *Engine) finalizeCancelled(h *instanceHandle) {
	h.mu.Lock()
	state := domain.InstanceCancelled
	if h.terminate {
		state = domain.InstanceTerminated
	}
	now := e.now()
	h.inst.State = state
	h.inst.LastUpdatedAt = now
	h.inst.Output = &domain.RemediationResponse{
		RequestID:   h.inst.Request.RequestID,
		Success:     false,
		Status:      domain.StatusCancelled,
		Message:     fmt.Sprintf("cancelled by %s: %s", h.cancelledBy, h.cancelReason),
		CompletedAt: now,
		Duration:    now.Sub(h.inst.CreatedAt),
	}
	inst := *h.inst
	h.mu.Unlock()

	recordInstanceFinished(string(state), inst.LastUpdatedAt.Sub(inst.CreatedAt))

	if err := e.journal.SaveInstance(context.Background(), &inst); err != nil {
		slog.Error("failed to checkpoint cancelled instance", "instance_id", inst.ID, "error", err)
	}
}

func (e *Engine) finish(h *instanceHandle, resp *domain.RemediationResponse) {
	h.mu.Lock()
	if h.cancelled && !h.inst.State.IsTerminal() {
		h.mu.Unlock()
		e.finalizeCancelled(h)
		return
	}

	state := domain.InstanceFailed
	if resp.Success {
		state = domain.InstanceCompleted
	}
	h.inst.Output = resp
	h.inst.State = state
	h.inst.LastUpdatedAt = e.now()
	inst := *h.inst
	h.mu.Unlock()

	recordInstanceFinished(string(state), inst.LastUpdatedAt.Sub(inst.CreatedAt))

	if err := e.journal.SaveInstance(context.Background(), &inst); err != nil {
		slog.Error("failed to checkpoint finished instance", "instance_id", inst.ID, "error", err)
	}

	slog.Info("orchestration finished",
		"instance_id", inst.ID,
		"request_id", inst.Request.RequestID,
		"state", state,
		"status", resp.Status,
	)
}

func (e *Engine) writeAudit(ctx context.Context, inst *domain.OrchestrationInstance, resp *domain.RemediationResponse) sideEffect {
	entry := &audit.Entry{
		InstanceID:  inst.ID,
		TenantID:    inst.Request.TenantID,
		RequestID:   inst.Request.RequestID,
		IncidentID:  inst.Request.IncidentID,
		Platform:    inst.Request.Platform,
		Action:      inst.Request.Action,
		Status:      resp.Status,
		Success:     resp.Success,
		Message:     resp.Message,
		InitiatedBy: inst.Request.InitiatedBy,
		RecordedAt:  e.now(),
	}

	if err := e.auditSink.Write(ctx, entry); err != nil {
		slog.Error("audit write failed", "instance_id", inst.ID, "error", err)
		return sideEffect{Attempted: true, Error: err.Error()}
	}
	return sideEffect{Attempted: true}
}

func (e *Engine) sendNotification(ctx context.Context, inst *domain.OrchestrationInstance, resp *domain.RemediationResponse) sideEffect {
	outcome := "completed"
	if !resp.Success {
		outcome = "failed"
	}
	n := notify.Notification{
		TenantID:  inst.Request.TenantID,
		RequestID: inst.Request.RequestID,
		Priority:  inst.Request.Priority,
		Subject:   fmt.Sprintf("%s remediation %s", inst.Request.Priority, outcome),
		Body: fmt.Sprintf("Action %s on %s for incident %s %s: %s",
			inst.Request.Action, inst.Request.Platform, inst.Request.IncidentID, outcome, resp.Message),
	}

	if err := e.notifySink.Send(ctx, n); err != nil {
		slog.Error("notification failed", "instance_id", inst.ID, "error", err)
		return sideEffect{Attempted: true, Error: err.Error()}
	}
	return sideEffect{Attempted: true}
}

// recordHistory appends the instance's history entry. The append runs
// under the handle lock and re-checks the cancel flag there, so it
// cannot land after Cancel already wrote the cancelled record.
func (e *Engine) recordHistory(ctx context.Context, h *instanceHandle) sideEffect {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancelled {
		return sideEffect{Attempted: false}
	}

	var entry domain.HistoryEntry
	entry.FromInstance(h.inst)

	if err := e.historyRepo.Append(ctx, &entry); err != nil {
		slog.Error("history record failed", "instance_id", h.inst.ID, "error", err)
		return sideEffect{Attempted: true, Error: err.Error()}
	}
	return sideEffect{Attempted: true}
}
