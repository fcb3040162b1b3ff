package costs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/cenkalti/backoff/v5"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/services/azure"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const costService = "Azure Cost Management"

// UsageQuerier is the slice of armcostmanagement.QueryClient the source needs.
type UsageQuerier interface {
	Usage(
		ctx context.Context,
		scope string,
		parameters armcostmanagement.QueryDefinition,
		options *armcostmanagement.QueryClientUsageOptions,
	) (armcostmanagement.QueryClientUsageResponse, error)
}

// AzureCostSource reads actual daily pre-tax cost per subscription.
type AzureCostSource struct {
	client      UsageQuerier
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

func NewAzureCostSource(client UsageQuerier) *AzureCostSource {
	return &AzureCostSource{
		client:      client,
		maxAttempts: 3,
		newBackOff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

func NewARMCostSource(credential azcore.TokenCredential, options *arm.ClientOptions) (*AzureCostSource, error) {
	factory, err := armcostmanagement.NewClientFactory(credential, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost management client factory: %w", err)
	}
	return NewAzureCostSource(factory.NewQueryClient()), nil
}

func (s *AzureCostSource) Pull(ctx context.Context, subscriptionID string, from, until time.Time) ([]domain.CostDataPoint, error) {
	logger := zerolog.Ctx(ctx)
	scope := fmt.Sprintf("/subscriptions/%s", subscriptionID)
	query := dailyCostQuery(from, until)

	operation := func() (armcostmanagement.QueryClientUsageResponse, error) {
		resp, err := s.client.Usage(ctx, scope, query, nil)
		if err == nil {
			return resp, nil
		}
		classified := azure.ClassifyError(costService, err)
		if !classified.Kind.Retryable() {
			return resp, backoff.Permanent(classified)
		}
		return resp, classified
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.maxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn().
				Err(err).
				Str("subscription_id", subscriptionID).
				Dur("retry_in", wait).
				Msg("cost query failed, retrying")
		}),
	)
	if err != nil {
		return nil, azure.ClassifyError(costService, err)
	}
	return parseUsage(subscriptionID, resp.QueryResult)
}

func dailyCostQuery(from, until time.Time) armcostmanagement.QueryDefinition {
	exportType := armcostmanagement.ExportTypeActualCost
	granularity := armcostmanagement.GranularityTypeDaily
	timeframe := armcostmanagement.TimeframeTypeCustom
	sum := armcostmanagement.FunctionTypeSum

	return armcostmanagement.QueryDefinition{
		Type:      &exportType,
		Timeframe: &timeframe,
		TimePeriod: &armcostmanagement.QueryTimePeriod{
			From: &from,
			To:   &until,
		},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: &granularity,
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				"totalCost": {
					Name:     to.Ptr("PreTaxCost"),
					Function: &sum,
				},
			},
		},
	}
}

// parseUsage maps result rows by column name; Cost Management does not
// guarantee column order.
func parseUsage(subscriptionID string, result armcostmanagement.QueryResult) ([]domain.CostDataPoint, error) {
	if result.Properties == nil {
		return nil, nil
	}

	costCol, dateCol, currencyCol := -1, -1, -1
	for i, c := range result.Properties.Columns {
		if c == nil || c.Name == nil {
			continue
		}
		switch strings.ToLower(*c.Name) {
		case "totalcost", "pretaxcost", "cost":
			costCol = i
		case "usagedate":
			dateCol = i
		case "currency":
			currencyCol = i
		}
	}
	if costCol < 0 || dateCol < 0 {
		return nil, domain.Errorf(domain.ErrorKindInvalidFormat, "%s response is missing the cost or date column", costService)
	}

	byDay := make(map[time.Time]int)
	var points []domain.CostDataPoint
	for n, row := range result.Properties.Rows {
		if len(row) <= costCol || len(row) <= dateCol {
			continue
		}
		day, err := usageDate(row[dateCol])
		if err != nil {
			return nil, domain.NewError(domain.ErrorKindInvalidFormat, fmt.Sprintf("row %d has an unreadable usage date", n), err)
		}
		amount, err := usageAmount(row[costCol])
		if err != nil {
			return nil, domain.NewError(domain.ErrorKindInvalidFormat, fmt.Sprintf("row %d has an unreadable cost", n), err)
		}
		currency := ""
		if currencyCol >= 0 && currencyCol < len(row) {
			currency, _ = row[currencyCol].(string)
		}

		if i, ok := byDay[day]; ok {
			points[i].Amount = points[i].Amount.Add(amount)
			continue
		}
		byDay[day] = len(points)
		points = append(points, domain.CostDataPoint{
			SubscriptionID: subscriptionID,
			Date:           day,
			Amount:         amount,
			Currency:       currency,
		})
	}
	return points, nil
}

// usageDate accepts the numeric yyyymmdd form and RFC 3339 / date-only strings.
func usageDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case float64:
		return time.Parse("20060102", strconv.FormatInt(int64(d), 10))
	case string:
		if t, err := time.Parse(time.RFC3339, d); err == nil {
			return domain.Day(t), nil
		}
		if t, err := time.Parse("2006-01-02T15:04:05", d); err == nil {
			return domain.Day(t), nil
		}
		if t, err := time.Parse(time.DateOnly, d); err == nil {
			return t, nil
		}
		return time.Parse("20060102", d)
	default:
		return time.Time{}, fmt.Errorf("unexpected usage date type %T", v)
	}
}

func usageAmount(v any) (decimal.Decimal, error) {
	switch a := v.(type) {
	case float64:
		return decimal.NewFromFloat(a), nil
	case string:
		return decimal.NewFromString(a)
	default:
		return decimal.Zero, fmt.Errorf("unexpected cost type %T", v)
	}
}
