// Package httputil maps service results and errors onto HTTP responses.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	domainerrors "chronicle/pkg/domain-errors"
	"chronicle/pkg/platform/sentinel"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError translates err into an HTTP error response. Domain errors map
// by code; infrastructure sentinels map to their natural statuses; anything
// else is an internal error. Internal errors never leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeInternal
	message := ""

	var domainErr *domainerrors.Error
	switch {
	case errors.As(err, &domainErr):
		code = domainErr.Code
		message = domainErr.Message
	case errors.Is(err, sentinel.ErrNotFound):
		code = domainerrors.CodeNotFound
		message = "not found"
	case errors.Is(err, sentinel.ErrConflict):
		code = domainerrors.CodeConflict
		message = "conflict"
	}

	body := errorBody{Error: string(code)}
	if code != domainerrors.CodeInternal {
		body.Description = message
	}
	WriteJSON(w, statusFor(code), body)
}

func statusFor(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeBadRequest:
		return http.StatusBadRequest
	case domainerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case domainerrors.CodeForbidden:
		return http.StatusForbidden
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
