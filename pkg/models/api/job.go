package api

import "time"

type AzureFilters struct {
	Category      string `json:"category,omitempty"`
	Impact        string `json:"impact,omitempty"`
	ResourceGroup string `json:"resource_group,omitempty"`
}

type SubmitJobRequest struct {
	ClientID       string        `json:"client_id"`
	SourceKind     string        `json:"source_kind"`
	FilePath       string        `json:"file_path,omitempty"`
	SubscriptionID string        `json:"subscription_id,omitempty"`
	Filters        *AzureFilters `json:"filters,omitempty"`
	ReportType     string        `json:"report_type"`
}

type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Job struct {
	ID             string     `json:"id"`
	ClientID       string     `json:"client_id"`
	SourceKind     string     `json:"source_kind"`
	ReportType     string     `json:"report_type"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Error          *JobError  `json:"error,omitempty"`
	ResultReportID *string    `json:"result_report_id,omitempty"`
}

type JobsResponse struct {
	Jobs []Job `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
