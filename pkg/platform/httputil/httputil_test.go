package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{"bad request", dErrors.New(dErrors.CodeBadRequest, "invalid body"), http.StatusBadRequest, KindInvalidRequest, "invalid body"},
		{"validation", dErrors.New(dErrors.CodeValidation, "subjectId is required"), http.StatusBadRequest, KindInvalidRequest, "subjectId is required"},
		{"invalid subject", dErrors.New(dErrors.CodeInvalidSubject, "unknown namespace"), http.StatusBadRequest, KindInvalidSubject, "unknown namespace"},
		{"invalid validity", dErrors.New(dErrors.CodeInvalidValidity, "must be positive"), http.StatusBadRequest, KindInvalidValidity, "must be positive"},
		{"internal hides cause", dErrors.Wrap(errors.New("pq: connection reset"), dErrors.CodeInternal, "store failed"), http.StatusInternalServerError, KindInternal, "internal error"},
		{"uncoded error is internal", errors.New("boom"), http.StatusInternalServerError, KindInternal, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var body ErrorBody
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tc.kind, body.Kind)
			assert.Equal(t, tc.message, body.Message)
		})
	}
}
