package docstore

import (
	"errors"

	"github.com/keyxmakerx/tabletop/internal/apperror"
)

// AsAppError maps store errors onto API errors so handlers can return them
// directly. AppErrors pass through unchanged.
func AsAppError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrNotFound):
		return apperror.NewNotFound("document not found")
	case errors.Is(err, ErrInvalidKey):
		return apperror.NewValidation(err.Error())
	case errors.Is(err, ErrQuotaExceeded):
		return apperror.NewQuotaExceeded("document is too large for local storage")
	case errors.Is(err, ErrOffline):
		return apperror.NewUnavailable("saved locally, but the remote store could not be reached", err)
	default:
		return apperror.NewInternal(err)
	}
}
