package store

import "time"

// Job is the persisted row shape of a report job.
type Job struct {
	ID                  string
	ClientID            string
	SourceKind          string
	FilePath            string
	SubscriptionID      string
	FilterCategory      string
	FilterImpact        string
	FilterResourceGroup string
	ReportType          string
	Status              string
	Attempts            int
	CreatedAt           time.Time
	StartedAt           *time.Time
	CompletedAt         *time.Time
	LeaseExpiresAt      *time.Time
	ErrorKind           *string
	ErrorMessage        *string
	ResultReportID      *string
}
