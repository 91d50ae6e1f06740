package minio

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/config"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "uploads/user-1/upload-abc/receipt.webp", ObjectKey("user-1", "receipt.webp", "upload:abc"))
	assert.Equal(t, "uploads/user-1/upload-abc/receipt.webp", ObjectKey("user-1", "../../receipt.webp", "upload:abc"))
}

func TestRequestLocation(t *testing.T) {
	p, err := New(config.MinIO{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "receipts",
		URLExpiry: 5 * time.Minute,
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	// With the region pinned, presigning is a local computation.
	loc, err := p.RequestLocation(context.Background(), "user-1", "r.webp", "upload:t1")
	require.NoError(t, err)

	u, err := url.Parse(loc.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.True(t, strings.HasSuffix(u.Path, "/receipts/uploads/user-1/upload-t1/r.webp"), u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.Equal(t, "upload:t1", loc.Token)
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(config.MinIO{})
	assert.Error(t, err)
}
