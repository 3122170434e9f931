// Package routing maps (platform, action) pairs to platform workers
// through a declarative table.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsforge/remediator/internal/domain"
)

// Operation executes one remediation action against its platform.
type Operation func(ctx context.Context, req *domain.RemediationRequest) (*domain.RemediationResponse, error)

// Worker is the handler set for one external security platform.
type Worker interface {
	Platform() domain.Platform
	// Resolve returns the operation for the action, or false when the
	// worker does not support it.
	Resolve(action domain.Action) (Operation, bool)
}

// Dispatcher routes a request to the worker registered for its
// platform. Unknown platform/action combinations produce a negative
// response, never an error.
type Dispatcher struct {
	workers map[domain.Platform]Worker
}

// NewDispatcher creates a dispatcher over the given workers.
func NewDispatcher(workers ...Worker) *Dispatcher {
	m := make(map[domain.Platform]Worker, len(workers))
	for _, w := range workers {
		m[w.Platform()] = w
	}
	return &Dispatcher{workers: m}
}

// Dispatch executes the request's action on its platform. The returned
// response is never nil; a lookup miss yields success=false with a
// PlatformNotSupported or ActionNotSupported status.
func (d *Dispatcher) Dispatch(ctx context.Context, req *domain.RemediationRequest) *domain.RemediationResponse {
	started := time.Now()

	worker, ok := d.workers[req.Platform]
	if !ok {
		slog.Warn("no worker for platform", "platform", req.Platform, "request_id", req.RequestID)
		return negativeResponse(req, started, domain.StatusPlatformNotSupported,
			fmt.Sprintf("platform %s is not supported", req.Platform))
	}

	op, ok := worker.Resolve(req.Action)
	if !ok {
		slog.Warn("no operation for action",
			"platform", req.Platform,
			"action", req.Action,
			"request_id", req.RequestID,
		)
		return negativeResponse(req, started, domain.StatusActionNotSupported,
			fmt.Sprintf("action %s is not supported on platform %s", req.Action, req.Platform))
	}

	resp, err := op(ctx, req)
	if err != nil {
		return &domain.RemediationResponse{
			RequestID:   req.RequestID,
			Success:     false,
			Status:      domain.StatusFailed,
			Message:     fmt.Sprintf("action %s failed", req.Action),
			Errors:      []string{err.Error()},
			CompletedAt: time.Now(),
			Duration:    time.Since(started),
		}
	}

	resp.RequestID = req.RequestID
	resp.CompletedAt = time.Now()
	resp.Duration = time.Since(started)
	return resp
}

func negativeResponse(req *domain.RemediationRequest, started time.Time, status domain.ResponseStatus, message string) *domain.RemediationResponse {
	return &domain.RemediationResponse{
		RequestID:   req.RequestID,
		Success:     false,
		Status:      status,
		Message:     message,
		CompletedAt: time.Now(),
		Duration:    time.Since(started),
	}
}
