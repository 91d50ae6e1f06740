package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

var dailyFileName = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.jsonl$`)

// DailyFile is an io.Writer appending to <dir>/YYYY-MM-DD.jsonl, switching
// files when the local date changes. Each Write is expected to be one record.
type DailyFile struct {
	dir   string
	clock func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewDailyFile creates the log directory if needed.
func NewDailyFile(dir string, clock func() time.Time) (*DailyFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if clock == nil {
		clock = time.Now
	}
	return &DailyFile{dir: dir, clock: clock}, nil
}

func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.clock().Format(dateLayout)
	if d.file == nil || day != d.day {
		if d.file != nil {
			_ = d.file.Close()
		}
		f, err := os.OpenFile(filepath.Join(d.dir, day+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			d.file = nil
			return 0, fmt.Errorf("open log file: %w", err)
		}
		d.file = f
		d.day = day
	}
	return d.file.Write(p)
}

// Path returns today's log file path.
func (d *DailyFile) Path() string {
	return filepath.Join(d.dir, d.clock().Format(dateLayout)+".jsonl")
}

func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// Cleanup deletes daily log files dated before now minus retentionDays and
// returns how many were removed. Files not named YYYY-MM-DD.jsonl are left
// alone. A non-positive retention falls back to 7 days.
func Cleanup(dir string, retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	cutoff := now.AddDate(0, 0, -retentionDays).Format(dateLayout)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read log dir: %w", err)
	}
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !dailyFileName.MatchString(name) {
			continue
		}
		// ISO dates sort lexically.
		if name[:len(dateLayout)] < cutoff {
			if err := os.Remove(filepath.Join(dir, name)); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}
