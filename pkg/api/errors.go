package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/larder/pkg/accounts"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/validation"
)

// apiError maps a domain error onto the error body contract. It returns nil
// for unexpected errors.
func apiError(err error) *httputil.APIError {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return httputil.NewAPIError(httputil.CodeValidation, verr.Error())
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return httputil.NewAPIError(httputil.CodeInvalidCredentials, "Invalid credentials")
	case errors.Is(err, accounts.ErrNoMembership):
		return httputil.NewAPIError(httputil.CodeForbidden, "You are not a member of any family space")
	case errors.Is(err, accounts.ErrInvalidMasterKey):
		return httputil.NewAPIError(httputil.CodeBadRequest, "Invalid Family Master Key")
	case errors.Is(err, accounts.ErrWrongPassword):
		return httputil.NewAPIError(httputil.CodeBadRequest, "Current password is incorrect")
	case errors.Is(err, membership.ErrLoginTaken):
		return httputil.NewAPIError(httputil.CodeConflict, "Email or username already taken")
	case errors.Is(err, membership.ErrSoleOwner):
		return httputil.NewAPIError(httputil.CodeConflict, "The family space must keep an owner")
	case errors.Is(err, membership.ErrNotFound):
		return httputil.NewAPIError(httputil.CodeNotFound, "Not found")
	}
	return nil
}

// writeError writes err as an error response. Unexpected errors are logged
// and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	if apiErr := apiError(err); apiErr != nil {
		httputil.WriteAPIError(w, apiErr)
		return
	}

	observability.FromContext(r.Context(), logger).
		WithError(err).
		WithField("path", r.URL.Path).
		Error("request failed")
	httputil.WriteAPIError(w, err)
}
