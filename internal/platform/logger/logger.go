package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/config"
)

// New builds the process logger: JSON records to stdout and, when cfg.Dir is
// set, to a daily JSONL file. The returned closer releases the file sink.
func New(cfg config.Log) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if cfg.Dir != "" {
		daily, err := NewDailyFile(cfg.Dir, time.Now)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, daily)
		closer = daily
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	return slog.New(handler), closer, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
