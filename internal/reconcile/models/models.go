// Package models holds the domain record reconciled between the local and
// remote replicas.
package models

import (
	"time"

	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
)

// DateLayout is the calendar-date format of Record.Date and DateRange bounds.
const DateLayout = "2006-01-02"

type RecordType string

const (
	RecordIncome  RecordType = "income"
	RecordExpense RecordType = "expense"
)

// Record is one transaction. Amount is in the currency's minor unit.
type Record struct {
	ID          id.RecordID  `json:"id"`
	SubjectID   id.SubjectID `json:"subjectId"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	ConfirmedAt *time.Time   `json:"confirmedAt,omitempty"`
	Type        RecordType   `json:"type"`
	Amount      int64        `json:"amount"`
	Currency    string       `json:"currency"`
	Category    string       `json:"category,omitempty"`
	Merchant    string       `json:"merchant,omitempty"`
	Description string       `json:"description,omitempty"`
	Date        string       `json:"date"`
	ImageID     string       `json:"imageId,omitempty"`
}

func (r *Record) Confirmed() bool {
	return r.ConfirmedAt != nil && !r.ConfirmedAt.IsZero()
}

// Validate rejects records missing required fields.
func (r *Record) Validate() error {
	if _, err := id.ParseRecordID(r.ID.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeIntegrity, "record id is missing")
	}
	if r.SubjectID.IsNil() {
		return dErrors.New(dErrors.CodeIntegrity, "record subject is missing")
	}
	if r.UpdatedAt.IsZero() {
		return dErrors.New(dErrors.CodeIntegrity, "record updatedAt is missing")
	}
	if r.Type != RecordIncome && r.Type != RecordExpense {
		return dErrors.New(dErrors.CodeIntegrity, "record type must be income or expense")
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return dErrors.New(dErrors.CodeIntegrity, "record date must be YYYY-MM-DD")
	}
	return nil
}

// Equal compares every field. Timestamps compare by instant.
func (r *Record) Equal(o *Record) bool {
	if r.ID != o.ID || r.SubjectID != o.SubjectID || r.Type != o.Type ||
		r.Amount != o.Amount || r.Currency != o.Currency || r.Category != o.Category ||
		r.Merchant != o.Merchant || r.Description != o.Description ||
		r.Date != o.Date || r.ImageID != o.ImageID {
		return false
	}
	if !r.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	if r.Confirmed() != o.Confirmed() {
		return false
	}
	return !r.Confirmed() || r.ConfirmedAt.Equal(*o.ConfirmedAt)
}

// DateRange bounds records by Date, inclusive on both ends. An empty bound is open.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

func (d *DateRange) Validate() error {
	if d == nil {
		return nil
	}
	for _, bound := range []string{d.From, d.To} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, bound); err != nil {
			return dErrors.New(dErrors.CodeValidation, "date range bounds must be YYYY-MM-DD")
		}
	}
	if d.From != "" && d.To != "" && d.From > d.To {
		return dErrors.New(dErrors.CodeValidation, "date range starts after it ends")
	}
	return nil
}

// Contains reports whether date falls inside the range. A nil range contains everything.
func (d *DateRange) Contains(date string) bool {
	if d == nil {
		return true
	}
	if d.From != "" && date < d.From {
		return false
	}
	if d.To != "" && date > d.To {
		return false
	}
	return true
}
