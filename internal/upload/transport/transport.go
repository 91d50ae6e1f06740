// Package transport moves an artifact's bytes to remote storage: a
// presigner hands out a short-lived write location, a writer puts the bytes
// there.
package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

// Location is a single-use write target.
type Location struct {
	URL       string
	Token     string
	ObjectKey string
	ExpiresAt time.Time
}

type Presigner interface {
	RequestLocation(ctx context.Context, subject id.SubjectID, fileName string, intent id.IntentID) (Location, error)
}

type Writer interface {
	Write(ctx context.Context, loc Location, body io.Reader, size int64, contentType string) error
}

// Uploader reads a task's source artifact and pushes it through a presigned
// location.
type Uploader struct {
	presigner Presigner
	writer    Writer
	clock     func() time.Time
}

func NewUploader(presigner Presigner, writer Writer) (*Uploader, error) {
	if presigner == nil {
		return nil, fmt.Errorf("presigner is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("writer is required")
	}
	return &Uploader{presigner: presigner, writer: writer, clock: time.Now}, nil
}

func (u *Uploader) Upload(ctx context.Context, task models.Task, intent id.IntentID) (models.Receipt, error) {
	f, err := os.Open(task.SourceLocation)
	if err != nil {
		return models.Receipt{}, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return models.Receipt{}, fmt.Errorf("stat source: %w", err)
	}

	loc, err := u.presigner.RequestLocation(ctx, task.SubjectID, task.FileName, intent)
	if err != nil {
		return models.Receipt{}, fmt.Errorf("request write location: %w", err)
	}
	if err := u.writer.Write(ctx, loc, f, info.Size(), ContentType(task.FileName)); err != nil {
		return models.Receipt{}, fmt.Errorf("write artifact: %w", err)
	}
	return models.Receipt{ObjectKey: loc.ObjectKey, UploadedAt: u.clock().UTC()}, nil
}

// ContentType guesses from the artifact's extension; captures are webp.
func ContentType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}
