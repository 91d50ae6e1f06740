// Package httputil writes JSON responses and maps coded domain errors to the
// wire error body {"kind": ..., "message": ...}.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
)

// Error kinds exposed on the wire.
const (
	KindInvalidRequest  = "INVALID_REQUEST"
	KindInvalidSubject  = "INVALID_SUBJECT"
	KindInvalidValidity = "INVALID_VALIDITY"
	KindNotFound        = "NOT_FOUND"
	KindInternal        = "INTERNAL"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and kind. Internal causes are never echoed.
func WriteError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	msg := "internal error"
	if kind != KindInternal {
		var de *dErrors.Error
		if dErrors.As(err, &de) {
			msg = de.Message
		}
	}
	WriteJSON(w, status, ErrorBody{Kind: kind, Message: msg})
}

func classify(err error) (int, string) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation:
		return http.StatusBadRequest, KindInvalidRequest
	case dErrors.CodeInvalidSubject:
		return http.StatusBadRequest, KindInvalidSubject
	case dErrors.CodeInvalidValidity:
		return http.StatusBadRequest, KindInvalidValidity
	case dErrors.CodeNotFound:
		return http.StatusNotFound, KindNotFound
	default:
		return http.StatusInternalServerError, KindInternal
	}
}
