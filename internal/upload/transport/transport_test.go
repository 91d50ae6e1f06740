package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

type fakePresigner struct {
	err error
}

func (f fakePresigner) RequestLocation(_ context.Context, subject id.SubjectID, fileName string, intent id.IntentID) (Location, error) {
	if f.err != nil {
		return Location{}, f.err
	}
	return Location{URL: "http://store/put", Token: intent.String(), ObjectKey: subject.String() + "/" + fileName}, nil
}

type recordingWriter struct {
	body        string
	size        int64
	contentType string
}

func (w *recordingWriter) Write(_ context.Context, _ Location, body io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(body)
	w.body, w.size, w.contentType = string(b), size, contentType
	return err
}

func TestUploader(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "r1.webp")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0o600))
	task := models.Task{SubjectID: "user-1", SourceLocation: src, FileName: "r1.webp"}

	t.Run("streams the file", func(t *testing.T) {
		w := &recordingWriter{}
		u, err := NewUploader(fakePresigner{}, w)
		require.NoError(t, err)

		receipt, err := u.Upload(context.Background(), task, "upload:x")
		require.NoError(t, err)
		assert.Equal(t, "user-1/r1.webp", receipt.ObjectKey)
		assert.Equal(t, "abc", w.body)
		assert.EqualValues(t, 3, w.size)
		assert.Equal(t, "image/webp", w.contentType)
	})

	t.Run("missing source is a validation failure", func(t *testing.T) {
		u, _ := NewUploader(fakePresigner{}, &recordingWriter{})
		missing := task
		missing.SourceLocation = filepath.Join(dir, "gone.webp")
		_, err := u.Upload(context.Background(), missing, "upload:y")
		assert.Equal(t, models.ErrorValidation, models.Classify(err))
	})

	t.Run("presign failure propagates", func(t *testing.T) {
		boom := errors.New("presign down")
		u, _ := NewUploader(fakePresigner{err: boom}, &recordingWriter{})
		_, err := u.Upload(context.Background(), task, "upload:z")
		assert.ErrorIs(t, err, boom)
	})
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/webp", ContentType("a.WEBP"))
	assert.Equal(t, "image/jpeg", ContentType("a.jpeg"))
	assert.Equal(t, "application/octet-stream", ContentType("a"))
}
