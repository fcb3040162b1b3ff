package ingest

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/advisor/armadvisor"
	"github.com/cenkalti/backoff/v5"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/services/azure"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const advisorService = "azure advisor"

// RecommendationsPager is satisfied by *runtime.Pager[armadvisor.RecommendationsClientListResponse].
type RecommendationsPager interface {
	More() bool
	NextPage(ctx context.Context) (armadvisor.RecommendationsClientListResponse, error)
}

type PagerFactory func(
	subscriptionID string,
	options *armadvisor.RecommendationsClientListOptions,
) (RecommendationsPager, error)

func NewARMPagerFactory(credential azcore.TokenCredential, options *arm.ClientOptions) PagerFactory {
	return func(subscriptionID string, listOptions *armadvisor.RecommendationsClientListOptions) (RecommendationsPager, error) {
		client, err := armadvisor.NewRecommendationsClient(subscriptionID, credential, options)
		if err != nil {
			return nil, fmt.Errorf("create advisor client: %w", err)
		}
		return client.NewListPager(listOptions), nil
	}
}

type AzureAdapterConfig struct {
	RequestsPerSecond float64
	Burst             int
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

func DefaultAzureAdapterConfig() AzureAdapterConfig {
	return AzureAdapterConfig{
		RequestsPerSecond: 5,
		Burst:             5,
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
	}
}

type AzureAdapter struct {
	pagers  PagerFactory
	limiter *rate.Limiter
	config  AzureAdapterConfig
}

func NewAzureAdapter(pagers PagerFactory, config AzureAdapterConfig) *AzureAdapter {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &AzureAdapter{
		pagers:  pagers,
		limiter: rate.NewLimiter(limit, burst),
		config:  config,
	}
}

func (a *AzureAdapter) Kind() domain.SourceKind {
	return domain.SourceKindAzureAPI
}

func (a *AzureAdapter) Fetch(ctx context.Context, ref domain.SourceRef) iter.Seq2[domain.SourceRow, error] {
	return func(yield func(domain.SourceRow, error) bool) {
		if ref.SubscriptionID == "" {
			yield(domain.SourceRow{}, domain.Errorf(domain.ErrorKindInvalidFormat, "azure source requires a subscription id"))
			return
		}

		options := &armadvisor.RecommendationsClientListOptions{}
		if filter := odataFilter(ref.Filters); filter != "" {
			options.Filter = to.Ptr(filter)
		}

		pager, err := a.pagers(ref.SubscriptionID, options)
		if err != nil {
			yield(domain.SourceRow{}, azure.ClassifyError(advisorService, err))
			return
		}

		origin := "azure:" + ref.SubscriptionID
		index := 0
		for page := 1; pager.More(); page++ {
			resp, err := a.nextPage(ctx, pager, page)
			if err != nil {
				yield(domain.SourceRow{}, err)
				return
			}

			for _, item := range resp.Value {
				fields, ok := recommendationFields(item, ref)
				if !ok {
					continue
				}
				if !yield(domain.SourceRow{Origin: origin, Index: index, Fields: fields}, nil) {
					return
				}
				index++
			}
		}
	}
}

// nextPage fetches one page, retrying throttling and timeouts up to MaxAttempts.
func (a *AzureAdapter) nextPage(
	ctx context.Context,
	pager RecommendationsPager,
	page int,
) (armadvisor.RecommendationsClientListResponse, error) {
	logger := zerolog.Ctx(ctx)

	operation := func() (armadvisor.RecommendationsClientListResponse, error) {
		var zero armadvisor.RecommendationsClientListResponse
		if err := a.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(azure.ClassifyError(advisorService, err))
		}
		resp, err := pager.NextPage(ctx)
		if err == nil {
			return resp, nil
		}
		classified := azure.ClassifyError(advisorService, err)
		if !classified.Kind.Retryable() {
			return zero, backoff.Permanent(classified)
		}
		return zero, classified
	}

	policy := backoff.NewExponentialBackOff()
	if a.config.InitialBackoff > 0 {
		policy.InitialInterval = a.config.InitialBackoff
	}
	if a.config.MaxBackoff > 0 {
		policy.MaxInterval = a.config.MaxBackoff
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(a.config.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn().
				Err(err).
				Int("page", page).
				Dur("retry_in", wait).
				Msg("advisor page request failed, retrying")
		}),
	)
	if err != nil {
		return resp, azure.ClassifyError(advisorService, err)
	}
	return resp, nil
}

// Advisor names reliability findings HighAvailability.
func advisorCategory(c domain.Category) armadvisor.Category {
	switch c {
	case domain.CategoryReliability:
		return armadvisor.CategoryHighAvailability
	default:
		return armadvisor.Category(c)
	}
}

func odataFilter(f domain.AzureFilters) string {
	var clauses []string
	if f.Category != "" {
		clauses = append(clauses, fmt.Sprintf("Category eq '%s'", advisorCategory(f.Category)))
	}
	if f.ResourceGroup != "" {
		clauses = append(clauses, fmt.Sprintf("ResourceGroup eq '%s'", strings.ReplaceAll(f.ResourceGroup, "'", "''")))
	}
	return strings.Join(clauses, " and ")
}

// recommendationFields flattens an Advisor recommendation into canonical row
// fields. It reports false for empty items and items outside the filters.
func recommendationFields(item *armadvisor.ResourceRecommendationBase, ref domain.SourceRef) (map[string]string, bool) {
	if item == nil || item.Properties == nil {
		return nil, false
	}
	p := item.Properties

	category := ""
	if p.Category != nil {
		category = string(*p.Category)
	}
	impact := ""
	if p.Impact != nil {
		impact = string(*p.Impact)
	}

	f := ref.Filters
	if f.Category != "" && !strings.EqualFold(category, string(advisorCategory(f.Category))) {
		return nil, false
	}
	if f.Impact != "" && !strings.EqualFold(impact, string(f.Impact)) {
		return nil, false
	}

	fields := map[string]string{
		domain.FieldCategory:       category,
		domain.FieldBusinessImpact: impact,
		domain.FieldRecommendation: description(p),
		domain.FieldSubscriptionID: ref.SubscriptionID,
		domain.FieldResourceType:   deref(p.ImpactedField),
		domain.FieldResourceName:   deref(p.ImpactedValue),
	}

	if id := impactedResourceID(item); id != "" {
		if rid, err := arm.ParseResourceID(id); err == nil {
			if rid.SubscriptionID != "" {
				fields[domain.FieldSubscriptionID] = rid.SubscriptionID
			}
			fields[domain.FieldResourceGroup] = rid.ResourceGroupName
			if fields[domain.FieldResourceName] == "" {
				fields[domain.FieldResourceName] = rid.Name
			}
			if fields[domain.FieldResourceType] == "" {
				fields[domain.FieldResourceType] = rid.ResourceType.String()
			}
		}
	}

	if f.ResourceGroup != "" && !strings.EqualFold(fields[domain.FieldResourceGroup], f.ResourceGroup) {
		return nil, false
	}

	if amount, ok := extendedProperty(p, "annualSavingsAmount", "savingsAmount"); ok {
		fields[domain.FieldPotentialSavings] = amount
		if currency, ok := extendedProperty(p, "savingsCurrency"); ok {
			fields[domain.FieldCurrency] = currency
		}
	}
	return fields, true
}

func description(p *armadvisor.RecommendationProperties) string {
	if p.ShortDescription != nil {
		if s := deref(p.ShortDescription.Problem); s != "" {
			return s
		}
		return deref(p.ShortDescription.Solution)
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func impactedResourceID(item *armadvisor.ResourceRecommendationBase) string {
	if md := item.Properties.ResourceMetadata; md != nil && deref(md.ResourceID) != "" {
		return deref(md.ResourceID)
	}
	id := deref(item.ID)
	if i := strings.Index(strings.ToLower(id), "/providers/microsoft.advisor/recommendations/"); i > 0 {
		return id[:i]
	}
	return ""
}

func extendedProperty(p *armadvisor.RecommendationProperties, keys ...string) (string, bool) {
	for _, key := range keys {
		v, ok := p.ExtendedProperties[key]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(*v)
		if s != "" {
			return s, true
		}
	}
	return "", false
}
