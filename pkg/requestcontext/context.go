// Package requestcontext provides transport-independent context accessors for
// request-scoped values.
//
// Handlers set values; services and audit logging read them:
//
//	ctx = requestcontext.WithRequestID(ctx, middleware.GetReqID(r.Context()))
//	requestID := requestcontext.RequestID(ctx)
package requestcontext

import (
	"context"

	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

type (
	requestIDKey struct{}
	subjectIDKey struct{}
	intentIDKey  struct{}
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation id, or "" when none was set.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

func WithSubjectID(ctx context.Context, subject id.SubjectID) context.Context {
	return context.WithValue(ctx, subjectIDKey{}, subject)
}

func SubjectID(ctx context.Context) id.SubjectID {
	v, _ := ctx.Value(subjectIDKey{}).(id.SubjectID)
	return v
}

// WithIntentID records the intent token an operation runs under so downstream
// calls (transport headers, audit lines) can carry it.
func WithIntentID(ctx context.Context, intent id.IntentID) context.Context {
	return context.WithValue(ctx, intentIDKey{}, intent)
}

func IntentID(ctx context.Context) id.IntentID {
	v, _ := ctx.Value(intentIDKey{}).(id.IntentID)
	return v
}
