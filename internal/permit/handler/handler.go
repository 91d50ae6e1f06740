package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/httputil"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/requestcontext"
)

// IdempotencyKeyHeader names the optional request header that makes issuance
// replay-safe.
const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

// Service issues permits.
type Service interface {
	Issue(ctx context.Context, subject string, validityDays *int) (*models.QuotaPermit, error)
}

// Handler serves the signature authority's HTTP API.
type Handler struct {
	logger   *slog.Logger
	service  Service
	ledger   *intent.Ledger
	validate *validator.Validate
}

// New creates a permit Handler. A nil ledger disables Idempotency-Key replay.
func New(service Service, ledger *intent.Ledger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		ledger:   ledger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts the permit routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/v1/permits", h.handleIssue)
	})
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := requestcontext.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))

	var req models.IssuePermitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid issue permit request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, validationMessage(err)))
		return
	}
	ctx = requestcontext.WithSubjectID(ctx, id.SubjectID(req.SubjectID))

	issue := func(ctx context.Context) (models.IssuePermitResponse, error) {
		permit, err := h.service.Issue(ctx, req.SubjectID, req.ValidityDays)
		if err != nil {
			return models.IssuePermitResponse{}, err
		}
		return models.IssuePermitResponse{QuotaPermit: *permit}, nil
	}

	var (
		resp     models.IssuePermitResponse
		replayed bool
		err      error
	)
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key != "" && h.ledger != nil {
		intentID := id.IntentID("permit:" + req.SubjectID + ":" + key)
		ctx = requestcontext.WithIntentID(ctx, intentID)
		resp, replayed, err = intent.Do(ctx, h.ledger, intentID, issue)
	} else {
		resp, err = issue(ctx)
	}
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "failed to issue permit",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Field() {
	case "SubjectID":
		if fe.Tag() == "required" {
			return "subjectId is required"
		}
		return "subjectId is too long"
	}
	return "invalid " + fe.Field()
}
