package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/opsforge/remediator/internal/pkg/ctxlog"
)

// ErrorMapping pairs a sentinel error with the status it should
// surface as. With an empty Message the sentinel's own text is used.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// HandleError resolves err against the mappings, in order, via
// errors.Is. An unmapped error is a bug or an infrastructure failure:
// it is logged with the request's logger and answered as a bare 500
// so internals never leak to the caller.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}

	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
