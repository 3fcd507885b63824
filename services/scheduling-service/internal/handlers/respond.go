package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/himsog/himsog/libs/auth"
	"github.com/himsog/himsog/libs/httpx"
	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidRequest:
		return http.StatusBadRequest
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.SlotUnavailable, apperr.AlreadyTerminal:
		return http.StatusConflict
	case apperr.ConfigurationMissing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respond writes the success or failure envelope for (v, err). Unclassified
// errors are logged and reported as a generic internal error.
func respond[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, v T, err error) {
	if err == nil {
		httpx.WriteJSON(w, status, apperr.ResultOf(v, nil))
		return
	}
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"route", r.Pattern,
			"err", err,
		)
	}
	httpx.WriteJSON(w, statusFor(kind), apperr.ResultOf[any](nil, err))
}

func fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	respond[any](w, r, logger, 0, nil, err)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalid("request body exceeds %d bytes", tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("request body is empty")
		}
		return apperr.Invalid("invalid json body: %v", err)
	}
	return nil
}

// principal converts the verified token identity into the core's caller.
func principal(r *http.Request) (model.Principal, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return model.Principal{}, apperr.Denied("authentication required")
	}
	role, err := model.ParseRole(id.Role)
	if err != nil {
		return model.Principal{}, apperr.Denied("unsupported role %q", id.Role)
	}
	return model.Principal{UserID: id.Subject, Role: role, ProviderID: id.ProviderID}, nil
}
