package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"token-presale/internal/custody"
	"token-presale/internal/presale"
	"token-presale/internal/storage"
)

var errBadRequest = errors.New("bad request")

// statusFor maps engine and collaborator errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, presale.ErrInvalidWindow),
		errors.Is(err, presale.ErrInvalidStage),
		errors.Is(err, presale.ErrInvalidIdentity),
		errors.Is(err, presale.ErrInvalidRate),
		errors.Is(err, presale.ErrInvalidParams),
		errors.Is(err, presale.ErrZeroPurchase),
		errors.Is(err, presale.ErrZeroTokens),
		errors.Is(err, presale.ErrZeroAmount),
		errors.Is(err, presale.ErrMathOverflow),
		errors.Is(err, custody.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, presale.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, presale.ErrNotInitialized),
		errors.Is(err, presale.ErrAllocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, presale.ErrSalePaused),
		errors.Is(err, presale.ErrSaleNotStarted),
		errors.Is(err, presale.ErrSaleEnded),
		errors.Is(err, presale.ErrSaleExhausted),
		errors.Is(err, presale.ErrNothingToClaim),
		errors.Is(err, presale.ErrClaimNotOpen),
		errors.Is(err, presale.ErrInsufficientCustody),
		errors.Is(err, presale.ErrSaleNotConcluded),
		errors.Is(err, presale.ErrInsufficientUnsold),
		errors.Is(err, presale.ErrStageLocked),
		errors.Is(err, presale.ErrAlreadyInitialized),
		errors.Is(err, custody.ErrInsufficientBalance),
		errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		writeError(w, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := strings.TrimSpace(err.Error())
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload, _ := json.Marshal(map[string]string{"error": message})
	_, _ = w.Write(payload)
}

// decodeBody reads a JSON request body, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
