package requestcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.True(t, SubjectID(ctx).IsNil())
	assert.Empty(t, IntentID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSubjectID(ctx, id.SubjectID("user-abc"))
	ctx = WithIntentID(ctx, id.IntentID("upload:1"))

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, id.SubjectID("user-abc"), SubjectID(ctx))
	assert.Equal(t, id.IntentID("upload:1"), IntentID(ctx))
}
