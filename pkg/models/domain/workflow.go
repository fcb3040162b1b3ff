package domain

import "time"

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition may leave this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Ordinal gives the position of the status in the lifecycle walk.
func (s JobStatus) Ordinal() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusRunning:
		return 1
	default:
		return 2
	}
}

type SourceKind string

const (
	SourceKindCSVUpload SourceKind = "csv_upload"
	SourceKindAzureAPI  SourceKind = "azure_api"
)

type ReportType string

const (
	ReportTypeCost       ReportType = "cost"
	ReportTypeSecurity   ReportType = "security"
	ReportTypeOperations ReportType = "operations"
	ReportTypeDetailed   ReportType = "detailed"
	ReportTypeExecutive  ReportType = "executive"
)

var ReportTypes = []ReportType{
	ReportTypeCost,
	ReportTypeSecurity,
	ReportTypeOperations,
	ReportTypeDetailed,
	ReportTypeExecutive,
}

func (t ReportType) Valid() bool {
	for _, rt := range ReportTypes {
		if rt == t {
			return true
		}
	}
	return false
}

type AzureFilters struct {
	Category      Category
	Impact        Impact
	ResourceGroup string
}

// SourceRef identifies where a job reads its rows from. FilePath is used by
// CSV uploads, SubscriptionID and Filters by Azure API pulls.
type SourceRef struct {
	FilePath       string
	SubscriptionID string
	Filters        AzureFilters
}

type JobError struct {
	Kind    ErrorKind
	Message string
}

// ReportJob is the unit of work that turns a source into a Report.
type ReportJob struct {
	ID             string
	ClientID       string
	SourceKind     SourceKind
	SourceRef      SourceRef
	ReportType     ReportType
	Status         JobStatus
	Attempts       int
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	LeaseExpiresAt *time.Time
	Error          *JobError
	ResultReportID *string
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (j *ReportJob) Clone() *ReportJob {
	if j == nil {
		return nil
	}
	c := *j
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.LeaseExpiresAt = cloneTime(j.LeaseExpiresAt)
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.ResultReportID != nil {
		id := *j.ResultReportID
		c.ResultReportID = &id
	}
	return &c
}

// GenerationTime is the duration from start to completion, zero until both are set.
func (j *ReportJob) GenerationTime() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

type JobFilter struct {
	ClientID string
	Statuses []JobStatus
}

// JobEvent is published whenever a job reaches a terminal status.
type JobEvent struct {
	JobID          string
	ClientID       string
	SubscriptionID string
	ReportType     ReportType
	Status         JobStatus
	ErrorKind      ErrorKind
	ResultReportID string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Event snapshots the job for subscribers.
func (j *ReportJob) Event() JobEvent {
	e := JobEvent{
		JobID:          j.ID,
		ClientID:       j.ClientID,
		SubscriptionID: j.SourceRef.SubscriptionID,
		ReportType:     j.ReportType,
		Status:         j.Status,
		CreatedAt:      j.CreatedAt,
		StartedAt:      cloneTime(j.StartedAt),
		CompletedAt:    cloneTime(j.CompletedAt),
	}
	if j.Error != nil {
		e.ErrorKind = j.Error.Kind
	}
	if j.ResultReportID != nil {
		e.ResultReportID = *j.ResultReportID
	}
	return e
}
