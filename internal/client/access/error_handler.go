package access

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openmined/trackd/internal/trackapi"
)

// ErrorHandler records the access restriction implied by a fatal api error
type ErrorHandler struct {
	storage  *Storage
	apiToken string
}

func NewErrorHandler(storage *Storage, apiToken string) *ErrorHandler {
	return &ErrorHandler{
		storage:  storage,
		apiToken: apiToken,
	}
}

// TryHandleDeprecationError reports whether err is a deprecation error, and
// records it if so.
func (h *ErrorHandler) TryHandleDeprecationError(ctx context.Context, err error) bool {
	var clientErr *trackapi.ClientDeprecatedError
	if errors.As(err, &clientErr) {
		h.record(h.storage.SetClientOutdated(ctx))
		return true
	}

	var apiErr *trackapi.ApiDeprecatedError
	if errors.As(err, &apiErr) {
		h.record(h.storage.SetApiOutdated(ctx))
		return true
	}

	return false
}

// TryHandleUnauthorizedError reports whether err is an unauthorized error,
// and records it if so.
func (h *ErrorHandler) TryHandleUnauthorizedError(ctx context.Context, err error) bool {
	if !trackapi.IsUnauthorized(err) {
		return false
	}
	h.record(h.storage.SetUnauthorizedAccess(ctx, h.apiToken))
	return true
}

func (h *ErrorHandler) record(err error) {
	if err != nil {
		slog.Error("access restriction not saved", "error", err)
	}
}
