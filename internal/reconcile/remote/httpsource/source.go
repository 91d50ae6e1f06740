// Package httpsource fetches the remote snapshot from the record service's
// HTTP API.
package httpsource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/httpclient"
)

type Source struct {
	http *httpclient.Client
}

func New(hc *httpclient.Client) (*Source, error) {
	if hc == nil {
		return nil, fmt.Errorf("http client is required")
	}
	return &Source{http: hc}, nil
}

type listResponse struct {
	Records []models.Record `json:"records"`
}

// Fetch calls GET /v1/subjects/{subject}/transactions?from=&to=.
func (s *Source) Fetch(ctx context.Context, subject id.SubjectID, rng *models.DateRange) ([]models.Record, error) {
	path := "/v1/subjects/" + url.PathEscape(subject.String()) + "/transactions"
	q := url.Values{}
	if rng != nil {
		if rng.From != "" {
			q.Set("from", rng.From)
		}
		if rng.To != "" {
			q.Set("to", rng.To)
		}
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp listResponse
	if err := s.http.DoJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch remote records: %w", err)
	}
	return resp.Records, nil
}
