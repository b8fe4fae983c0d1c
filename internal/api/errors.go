// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/mitabo/mitabo/internal/log"
)

// Error codes returned in the "error" field.
const (
	codeBadRequest       = "bad_request"
	codeMissingFile      = "missing_file"
	codeUnsupportedExt   = "unsupported_extension"
	codePayloadTooLarge  = "payload_too_large"
	codeNotFound         = "not_found"
	codeStorageError     = "storage_error"
	codeInternalError    = "internal_error"
	codeMethodNotAllowed = "method_not_allowed"
)

// apiError is the JSON error body.
type apiError struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error correlated with the request id.
func writeError(w http.ResponseWriter, r *http.Request, code int, errCode, detail string) {
	writeJSON(w, code, apiError{
		Error:     errCode,
		Detail:    detail,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

func writeNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, codeNotFound, "video not found")
}
