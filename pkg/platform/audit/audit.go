// Package audit writes significant domain events to the structured log with
// log_type=audit so they can be filtered out of the daily JSONL files.
package audit

import (
	"context"
	"log/slog"

	"github.com/aifuun/yorutsuke-v2-sub006/pkg/requestcontext"
)

// Event names shared across modules.
const (
	EventPermitIssued       = "permit_issued"
	EventPermitRejected     = "permit_rejected"
	EventPermitRefreshed    = "permit_refreshed"
	EventQuotaExhausted     = "quota_exhausted"
	EventUploadCompleted    = "upload_completed"
	EventUploadFailed       = "upload_failed"
	EventIntentReplayed     = "intent_replayed"
	EventSyncCompleted      = "sync_completed"
	EventConflictResolved   = "conflict_resolved"
	EventSourceDeleteFailed = "source_delete_failed"
)

// Log emits event with the request and subject ids from ctx. A nil logger is a no-op.
func Log(ctx context.Context, logger *slog.Logger, event string, attrList ...any) {
	if logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	if intent := requestcontext.IntentID(ctx); intent != "" && !hasKey(attrList, "intent_id") {
		attrList = append(attrList, "intent_id", string(intent))
	}
	if !hasKey(attrList, "subject_id") {
		if subject := requestcontext.SubjectID(ctx); !subject.IsNil() {
			attrList = append(attrList, "subject_id", subject.String())
		}
	}
	args := append(attrList, "event", event, "log_type", "audit")
	logger.InfoContext(ctx, event, args...)
}

// hasKey reports whether key appears in a key/value attribute list.
func hasKey(attrList []any, key string) bool {
	for i := 0; i+1 < len(attrList); i += 2 {
		if k, ok := attrList[i].(string); ok && k == key {
			return true
		}
	}
	return false
}
