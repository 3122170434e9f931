package platform

import (
	"context"
	"fmt"

	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/routing"
)

// Worker executes the actions one platform supports. It implements
// routing.Worker; unsupported actions are a lookup miss handled by the
// dispatcher, not by the worker.
type Worker struct {
	platform   domain.Platform
	operations map[domain.Action]routing.Operation
}

// NewWorker builds a worker for the platform from the declared action
// set, binding every action to an API call through the client.
func NewWorker(p domain.Platform, actions []domain.Action, client APIClient) *Worker {
	ops := make(map[domain.Action]routing.Operation, len(actions))
	for _, action := range actions {
		ops[action] = operationFor(p, action, client)
	}
	return &Worker{platform: p, operations: ops}
}

// NewWorkersFromCatalog builds one worker per platform in the catalog.
func NewWorkersFromCatalog(catalog map[domain.Platform][]domain.Action, client APIClient) []routing.Worker {
	workers := make([]routing.Worker, 0, len(catalog))
	for p, actions := range catalog {
		workers = append(workers, NewWorker(p, actions, client))
	}
	return workers
}

// Platform returns the platform this worker serves.
func (w *Worker) Platform() domain.Platform {
	return w.platform
}

// Resolve returns the operation bound to the action.
func (w *Worker) Resolve(action domain.Action) (routing.Operation, bool) {
	op, ok := w.operations[action]
	return op, ok
}

func operationFor(p domain.Platform, action domain.Action, client APIClient) routing.Operation {
	return func(ctx context.Context, req *domain.RemediationRequest) (*domain.RemediationResponse, error) {
		details, err := client.Do(ctx, Call{
			Platform:   p,
			Action:     action,
			TenantID:   req.TenantID,
			Parameters: req.Parameters,
		})
		if err != nil {
			return nil, err
		}

		return &domain.RemediationResponse{
			Success: true,
			Status:  domain.StatusCompleted,
			Message: fmt.Sprintf("action %s completed on %s", action, p),
			Details: details,
		}, nil
	}
}
