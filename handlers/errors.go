package handlers

import (
	"errors"
	"net/http"

	"github.com/openmeet/ai-router/providers"
	"github.com/openmeet/ai-router/routing"
	"github.com/openmeet/ai-router/utils"
)

// writeRouteError maps routing and provider failures onto HTTP statuses.
// Caller faults come back 4xx; backend trouble is 502/503 so clients can
// distinguish their own mistakes from upstream weather.
func writeRouteError(w http.ResponseWriter, err error) {
	if errors.Is(err, providers.ErrProviderNotFound) {
		_ = utils.WriteNotFound(w, err.Error())
		return
	}
	if errors.Is(err, routing.ErrNoProviderAvailable) {
		_ = utils.WriteServiceUnavailable(w, err.Error())
		return
	}
	if providers.IsUnsupported(err) {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	var allFailed *routing.AllProvidersFailedError
	if errors.As(err, &allFailed) {
		_ = utils.WriteBadGateway(w, allFailed.Error())
		return
	}

	var perr *providers.ProviderError
	if errors.As(err, &perr) {
		switch perr.Code {
		case providers.CodeInvalidRequest:
			_ = utils.WriteBadRequest(w, perr.Message, nil)
		case providers.CodeRateLimited:
			_ = utils.WriteJSON(w, http.StatusTooManyRequests, utils.ErrorResponse{
				Error:   "rate_limited",
				Message: perr.Message,
			})
		case providers.CodeTimeout:
			_ = utils.WriteJSON(w, http.StatusGatewayTimeout, utils.ErrorResponse{
				Error:   "timeout",
				Message: perr.Message,
			})
		default:
			_ = utils.WriteBadGateway(w, perr.Message)
		}
		return
	}

	_ = utils.WriteInternalError(w, "")
}
