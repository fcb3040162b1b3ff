package adapters

import (
	"github.com/de-tools/advisor-reports/pkg/models/api"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/models/store"
)

func MapStoreJobToDomain(j *store.Job) *domain.ReportJob {
	if j == nil {
		return nil
	}

	job := &domain.ReportJob{
		ID:         j.ID,
		ClientID:   j.ClientID,
		SourceKind: domain.SourceKind(j.SourceKind),
		SourceRef: domain.SourceRef{
			FilePath:       j.FilePath,
			SubscriptionID: j.SubscriptionID,
			Filters: domain.AzureFilters{
				Category:      domain.Category(j.FilterCategory),
				Impact:        domain.Impact(j.FilterImpact),
				ResourceGroup: j.FilterResourceGroup,
			},
		},
		ReportType:     domain.ReportType(j.ReportType),
		Status:         domain.JobStatus(j.Status),
		Attempts:       j.Attempts,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		LeaseExpiresAt: j.LeaseExpiresAt,
		ResultReportID: j.ResultReportID,
	}
	if j.ErrorKind != nil {
		job.Error = &domain.JobError{Kind: domain.ErrorKind(*j.ErrorKind)}
		if j.ErrorMessage != nil {
			job.Error.Message = *j.ErrorMessage
		}
	}
	return job
}

func MapDomainJobToStore(j *domain.ReportJob) *store.Job {
	row := &store.Job{
		ID:                  j.ID,
		ClientID:            j.ClientID,
		SourceKind:          string(j.SourceKind),
		FilePath:            j.SourceRef.FilePath,
		SubscriptionID:      j.SourceRef.SubscriptionID,
		FilterCategory:      string(j.SourceRef.Filters.Category),
		FilterImpact:        string(j.SourceRef.Filters.Impact),
		FilterResourceGroup: j.SourceRef.Filters.ResourceGroup,
		ReportType:          string(j.ReportType),
		Status:              string(j.Status),
		Attempts:            j.Attempts,
		CreatedAt:           j.CreatedAt,
		StartedAt:           j.StartedAt,
		CompletedAt:         j.CompletedAt,
		LeaseExpiresAt:      j.LeaseExpiresAt,
		ResultReportID:      j.ResultReportID,
	}
	if j.Error != nil {
		kind, msg := string(j.Error.Kind), j.Error.Message
		row.ErrorKind = &kind
		row.ErrorMessage = &msg
	}
	return row
}

func MapJobDomainToApi(j *domain.ReportJob) api.Job {
	out := api.Job{
		ID:             j.ID,
		ClientID:       j.ClientID,
		SourceKind:     string(j.SourceKind),
		ReportType:     string(j.ReportType),
		Status:         string(j.Status),
		Attempts:       j.Attempts,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		ResultReportID: j.ResultReportID,
	}
	if j.Error != nil {
		out.Error = &api.JobError{Kind: string(j.Error.Kind), Message: j.Error.Message}
	}
	return out
}

func MapSubmitRequestApiToDomain(req api.SubmitJobRequest) (string, domain.SourceKind, domain.SourceRef, domain.ReportType) {
	ref := domain.SourceRef{
		FilePath:       req.FilePath,
		SubscriptionID: req.SubscriptionID,
	}
	if req.Filters != nil {
		ref.Filters = domain.AzureFilters{
			Category:      domain.Category(req.Filters.Category),
			Impact:        domain.Impact(req.Filters.Impact),
			ResourceGroup: req.Filters.ResourceGroup,
		}
	}
	return req.ClientID, domain.SourceKind(req.SourceKind), ref, domain.ReportType(req.ReportType)
}
