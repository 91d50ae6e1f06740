package domain

import (
	"regexp"
	"strings"

	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"

	"github.com/google/uuid"
)

const maxIdentifierLength = 128

// subjectPattern is "<namespace>-<opaque>" with a lowercase namespace.
var subjectPattern = regexp.MustCompile(`^[a-z]+-[A-Za-z0-9_-]+$`)

// SubjectID identifies the user (or device) whose quota and records are managed.
// The namespace prefix selects the quota tier.
type SubjectID string

// ParseSubjectID validates a subject identifier at a trust boundary.
func ParseSubjectID(s string) (SubjectID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidSubject, "subject id cannot be empty")
	}
	if len(s) > maxIdentifierLength {
		return "", dErrors.New(dErrors.CodeInvalidSubject, "subject id is too long")
	}
	if !subjectPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidSubject, "subject id must be <namespace>-<id>")
	}
	return SubjectID(s), nil
}

// Namespace returns the prefix before the first '-'.
func (s SubjectID) Namespace() string {
	ns, _, found := strings.Cut(string(s), "-")
	if !found {
		return ""
	}
	return ns
}

func (s SubjectID) String() string { return string(s) }

func (s SubjectID) IsNil() bool { return s == "" }

// TaskID identifies an upload task. It doubles as the seed of the task's
// intent token.
type TaskID uuid.UUID

// NewTaskID returns a fresh random task id.
func NewTaskID() TaskID { return TaskID(uuid.New()) }

// ParseTaskID validates a task identifier.
func ParseTaskID(s string) (TaskID, error) {
	if s == "" {
		return TaskID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "task id cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return TaskID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "task id must be a uuid")
	}
	if parsed == uuid.Nil {
		return TaskID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "task id cannot be nil")
	}
	return TaskID(parsed), nil
}

func (t TaskID) String() string { return uuid.UUID(t).String() }

func (t TaskID) IsNil() bool { return uuid.UUID(t) == uuid.Nil }

// RecordID identifies a domain record (a transaction) in both replicas.
type RecordID string

// ParseRecordID validates a record identifier.
func ParseRecordID(s string) (RecordID, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "record id cannot be empty")
	}
	if len(trimmed) > maxIdentifierLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "record id is too long")
	}
	return RecordID(trimmed), nil
}

func (r RecordID) String() string { return string(r) }

// IntentID is a caller-generated token making a side effect safely retryable.
type IntentID string

// ParseIntentID validates an intent token.
func ParseIntentID(s string) (IntentID, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "intent id cannot be empty")
	}
	if len(s) > maxIdentifierLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "intent id is too long")
	}
	return IntentID(s), nil
}

// NewIntentID returns a random intent token.
func NewIntentID() IntentID { return IntentID(uuid.NewString()) }

func (i IntentID) String() string { return string(i) }

func (t TaskID) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TaskID) UnmarshalText(b []byte) error {
	parsed, err := ParseTaskID(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
