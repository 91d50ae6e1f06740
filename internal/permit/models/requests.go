package models

// IssuePermitRequest is the body of POST /v1/permits.
type IssuePermitRequest struct {
	SubjectID    string `json:"subjectId" validate:"required,max=128"`
	ValidityDays *int   `json:"validityDays,omitempty"`
}

// IssuePermitResponse is the permit plus the usage the authority has on record.
type IssuePermitResponse struct {
	QuotaPermit
	ReportedUsage int `json:"reportedUsage"`
}
