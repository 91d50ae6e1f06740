// Package client talks to the signature authority over HTTP.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/httpclient"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/httputil"
)

// Client obtains permits from the authority's POST /v1/permits.
type Client struct {
	http *httpclient.Client
}

func New(hc *httpclient.Client) (*Client, error) {
	if hc == nil {
		return nil, fmt.Errorf("http client is required")
	}
	return &Client{http: hc}, nil
}

// Issue requests a permit for subject. The intent is sent as the
// Idempotency-Key so the client's own retries collapse on the authority.
func (c *Client) Issue(ctx context.Context, subject id.SubjectID, intent id.IntentID) (*models.Grant, error) {
	var resp models.IssuePermitResponse
	err := c.http.DoJSON(ctx, http.MethodPost, "/v1/permits",
		map[string]string{"Idempotency-Key": intent.String()},
		models.IssuePermitRequest{SubjectID: subject.String()},
		&resp,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &models.Grant{Permit: resp.QuotaPermit, ReportedUsage: resp.ReportedUsage}, nil
}

func translate(err error) error {
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "signature authority unreachable")
	}
	switch httpErr.Kind {
	case httputil.KindInvalidSubject:
		return dErrors.Wrap(err, dErrors.CodeInvalidSubject, httpErr.Message)
	case httputil.KindInvalidValidity:
		return dErrors.Wrap(err, dErrors.CodeInvalidValidity, httpErr.Message)
	case httputil.KindInvalidRequest:
		return dErrors.Wrap(err, dErrors.CodeBadRequest, httpErr.Message)
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "signature authority failed")
}
