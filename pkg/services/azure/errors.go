package azure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
)

// ClassifyError maps an Azure SDK failure onto the pipeline error taxonomy.
func ClassifyError(service string, err error) *domain.PipelineError {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return domain.NewError(domain.ErrorKindAuthenticationFailed,
				fmt.Sprintf("%s rejected the configured credentials", service), err)
		case code == http.StatusTooManyRequests:
			return domain.NewError(domain.ErrorKindRateLimited,
				fmt.Sprintf("%s is throttling requests, try again later", service), err)
		case code == http.StatusRequestTimeout || code >= http.StatusInternalServerError:
			return domain.NewError(domain.ErrorKindTimeout,
				fmt.Sprintf("%s did not answer in time", service), err)
		case code == http.StatusBadRequest || code == http.StatusNotFound:
			return domain.NewError(domain.ErrorKindInvalidFormat,
				fmt.Sprintf("%s rejected the request, check the subscription and filters", service), err)
		}
		return domain.NewError(domain.ErrorKindInternal, fmt.Sprintf("%s request failed", service), err)
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return domain.NewError(domain.ErrorKindAuthenticationFailed,
			"could not obtain an Azure access token", err)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return domain.NewError(domain.ErrorKindCancelled, "report generation was cancelled", err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return domain.NewError(domain.ErrorKindTimeout, fmt.Sprintf("%s did not answer in time", service), err)
	}
	return domain.NewError(domain.ErrorKindInternal, fmt.Sprintf("%s request failed", service), err)
}
