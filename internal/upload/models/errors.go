package models

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"

	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
)

// ErrorKind is the closed set of failure classes the retry scheduler and the
// user-facing layer both switch on.
type ErrorKind string

const (
	ErrorNetwork       ErrorKind = "network"
	ErrorTimeout       ErrorKind = "timeout"
	ErrorServer        ErrorKind = "server"
	ErrorValidation    ErrorKind = "validation"
	ErrorAuthorization ErrorKind = "authorization"
	ErrorQuota         ErrorKind = "quota"
	ErrorIntegrity     ErrorKind = "integrity"
	ErrorUnknown       ErrorKind = "unknown"
)

// Retryable reports whether the kind re-enters the backoff schedule.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorNetwork, ErrorTimeout, ErrorServer, ErrorUnknown:
		return true
	}
	return false
}

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Classify maps a raw failure to its kind. Checks run from most to least
// specific: explicit status codes, domain codes, then stdlib error shapes.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatus())
	}

	var de *dErrors.Error
	if errors.As(err, &de) {
		switch {
		case dErrors.HasCode(err, dErrors.CodeIntegrity):
			return ErrorIntegrity
		case dErrors.HasCode(err, dErrors.CodeQuotaExceeded):
			return ErrorQuota
		}
		switch de.Code {
		case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeNotFound:
			return ErrorValidation
		case dErrors.CodeUnauthorized, dErrors.CodeForbidden:
			return ErrorAuthorization
		case dErrors.CodeTimeout:
			return ErrorTimeout
		case dErrors.CodeUnavailable:
			return ErrorNetwork
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return ErrorValidation
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTimeout
		}
		return ErrorNetwork
	}
	return ErrorUnknown
}

func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorAuthorization
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrorTimeout
	case code == http.StatusTooManyRequests:
		return ErrorServer
	case code == http.StatusPaymentRequired:
		return ErrorQuota
	case code >= 500:
		return ErrorServer
	case code >= 400:
		return ErrorValidation
	}
	return ErrorUnknown
}
