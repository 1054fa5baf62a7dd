package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/austat/austat/internal/store"
)

// Metric names the collectors publish and the tools consume.
const (
	MetricCashRate         = "cash_rate"
	MetricVariableRate     = "mortgage_rate_variable"
	MetricLoanSizeTotal    = "avg_loan_size_total"
	MetricLoanSizeHouses   = "avg_loan_size_houses"
	MetricLoanSizeUnits    = "avg_loan_size_units"
	MetricWeeklyEarnings   = "avg_weekly_earnings"
	MetricBuildingApproval = "building_approvals_total"
	MetricPriceIndex       = "residential_property_price_index"
	MetricInflationAnnual  = "inflation_cpi_annual"
	MetricUnemployment     = "unemployment_rate"
)

// KeyMetrics are the headline series used by summaries and prefetch.
var KeyMetrics = []string{
	MetricCashRate,
	MetricVariableRate,
	MetricLoanSizeTotal,
	MetricWeeklyEarnings,
	MetricBuildingApproval,
	MetricPriceIndex,
	MetricInflationAnnual,
	MetricUnemployment,
}

// Document types stored by the collectors.
const (
	DocTypeRBAMinutes   = "rba_minutes"
	DocTypeRBAStatement = "rba_statement"
)

type latestMetricInput struct {
	MetricName string `json:"metric_name" jsonschema_description:"Name of the metric, e.g. cash_rate"`
	Geography  string `json:"geography,omitempty" jsonschema_description:"Geography filter, e.g. AUS or NSW. Empty matches any"`
}

type timeseriesInput struct {
	MetricName string `json:"metric_name" jsonschema_description:"Name of the metric"`
	Limit      int    `json:"limit,omitempty" jsonschema_description:"Maximum observations to return, newest kept (default 24)"`
	Geography  string `json:"geography,omitempty" jsonschema_description:"Geography filter. Empty matches any"`
}

type periodRangeInput struct {
	MetricName  string `json:"metric_name" jsonschema_description:"Name of the metric"`
	StartPeriod string `json:"start_period" jsonschema_description:"Inclusive start period, e.g. 2023-01"`
	EndPeriod   string `json:"end_period" jsonschema_description:"Inclusive end period, e.g. 2024-12"`
}

type emptyInput struct{}

type growthInput struct {
	MetricName string `json:"metric_name" jsonschema_description:"Name of the metric to analyze"`
	Periods    int    `json:"periods,omitempty" jsonschema_description:"Number of recent observations to analyze (default 24)"`
}

type affordabilityInput struct {
	DwellingType string `json:"dwelling_type,omitempty" jsonschema_description:"houses, units, or total (default total)"`
	DualIncome   bool   `json:"dual_income,omitempty" jsonschema_description:"Assume a dual-income household"`
}

type compareInput struct {
	MetricNames string `json:"metric_names" jsonschema_description:"Comma-separated metric names to compare, e.g. cash_rate,inflation_cpi_annual,unemployment_rate"`
	Periods     int    `json:"periods,omitempty" jsonschema_description:"Number of recent periods per metric (default 12)"`
}

type minutesInput struct {
	Limit int `json:"limit,omitempty" jsonschema_description:"Number of recent minutes to return (default 3)"`
}

type searchInput struct {
	Query string `json:"query" jsonschema_description:"Text to search for in RBA minutes"`
	Limit int    `json:"limit,omitempty" jsonschema_description:"Maximum matches (default 5)"`
}

type sqlInput struct {
	SQL string `json:"sql" jsonschema_description:"A single read-only SELECT or WITH query over data_points, documents, document_chunks, or collection_runs"`
}

// register builds the full catalogue. Order matters only for presentation.
func (k *Kit) register() {
	define(k, "get_latest_metric",
		"Get the most recent value of an economic metric.",
		k.getLatestMetric)

	define(k, "get_metric_timeseries",
		"Get a chronological series of observations for a metric.",
		k.getTimeseries)

	define(k, "query_metric_by_period",
		"Get observations of a metric between two periods, inclusive.",
		k.queryByPeriod)

	define(k, "list_available_metrics",
		"List every metric in the store with its latest period and observation count.",
		k.listMetrics)

	define(k, "get_metrics_summary",
		"Get the latest value of each headline housing and economy metric.",
		k.metricsSummary)

	define(k, "analyze_metric_growth",
		"Analyze growth of a metric: total and percentage change, compound annual growth rate, recent period-over-period changes, min and max.",
		k.analyzeGrowth)

	define(k, "calculate_affordability",
		"Calculate mortgage affordability from current loan sizes, earnings, and the variable rate, with a serviceability stress band.",
		k.calculateAffordability)

	define(k, "compare_metrics",
		"Compare metrics side by side over their recent periods. Takes a comma-separated list; metrics without data are reported inline.",
		k.compareMetrics)

	define(k, "get_rba_minutes",
		"Get the most recent RBA board meeting minutes with summaries.",
		k.getMinutes)

	define(k, "search_rba_minutes",
		"Search the text of collected RBA minutes for a phrase.",
		k.searchMinutes)

	define(k, "query_database",
		"Escape hatch: run a single read-only SQL query against the statistics database. Only SELECT/WITH; writes are rejected.",
		k.queryDatabase)
}

func (k *Kit) getLatestMetric(ctx context.Context, in latestMetricInput) Result {
	if in.MetricName == "" {
		return errorResult("InvalidArguments", "metric_name is required")
	}
	p, err := k.metrics.Latest(ctx, in.MetricName, in.Geography)
	if err != nil {
		return errorResult("MetricNotFound", err.Error())
	}
	return okResult(pointFields(*p))
}

func (k *Kit) getTimeseries(ctx context.Context, in timeseriesInput) Result {
	if in.MetricName == "" {
		return errorResult("InvalidArguments", "metric_name is required")
	}
	points, err := k.metrics.Timeseries(ctx, in.MetricName, in.Limit, in.Geography)
	if err != nil {
		return errorResult("QueryFailed", err.Error())
	}
	if len(points) == 0 {
		return errorResult("MetricNotFound", fmt.Sprintf("no data for metric %q", in.MetricName))
	}
	return okResult(map[string]any{
		"metric_name": in.MetricName,
		"count":       len(points),
		"points":      pointList(points),
	})
}

func (k *Kit) queryByPeriod(ctx context.Context, in periodRangeInput) Result {
	if in.MetricName == "" || in.StartPeriod == "" || in.EndPeriod == "" {
		return errorResult("InvalidArguments", "metric_name, start_period and end_period are required")
	}
	points, err := k.metrics.Range(ctx, in.MetricName, in.StartPeriod, in.EndPeriod)
	if err != nil {
		return errorResult("QueryFailed", err.Error())
	}
	return okResult(map[string]any{
		"metric_name":  in.MetricName,
		"start_period": in.StartPeriod,
		"end_period":   in.EndPeriod,
		"count":        len(points),
		"points":       pointList(points),
	})
}

func (k *Kit) listMetrics(ctx context.Context, _ emptyInput) Result {
	infos, err := k.metrics.ListMetrics(ctx)
	if err != nil {
		return errorResult("QueryFailed", err.Error())
	}
	list := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		list = append(list, map[string]any{
			"metric_name":   info.Name,
			"latest_period": info.LatestPeriod,
			"observations":  info.PointCount,
		})
	}
	return okResult(map[string]any{"metrics": list, "count": len(list)})
}

func (k *Kit) metricsSummary(ctx context.Context, _ emptyInput) Result {
	points, err := k.metrics.Summary(ctx, KeyMetrics)
	if err != nil {
		return errorResult("QueryFailed", err.Error())
	}
	summary := make(map[string]any, len(points))
	for _, p := range points {
		summary[p.MetricName] = map[string]any{
			"value":  p.Value,
			"unit":   p.Unit,
			"period": p.Period,
			"source": p.Source,
		}
	}
	return okResult(map[string]any{"summary": summary})
}

func (k *Kit) analyzeGrowth(ctx context.Context, in growthInput) Result {
	if in.MetricName == "" {
		return errorResult("InvalidArguments", "metric_name is required")
	}
	limit := in.Periods
	if limit <= 0 {
		limit = 24
	}
	points, err := k.metrics.Timeseries(ctx, in.MetricName, limit, "")
	if err != nil {
		return errorResult("QueryFailed", err.Error())
	}
	return growthAnalysis(in.MetricName, points)
}

func (k *Kit) calculateAffordability(ctx context.Context, in affordabilityInput) Result {
	loanMetric := MetricLoanSizeTotal
	switch in.DwellingType {
	case "houses":
		loanMetric = MetricLoanSizeHouses
	case "units":
		loanMetric = MetricLoanSizeUnits
	case "", "total":
	default:
		return errorResult("InvalidArguments",
			fmt.Sprintf("dwelling_type must be houses, units, or total, got %q", in.DwellingType))
	}

	loan, err := k.metrics.Latest(ctx, loanMetric, "")
	if err != nil {
		return errorResult("MissingMetric", fmt.Sprintf("no data for %s", loanMetric))
	}
	earnings, err := k.metrics.Latest(ctx, MetricWeeklyEarnings, "")
	if err != nil {
		return errorResult("MissingMetric", fmt.Sprintf("no data for %s", MetricWeeklyEarnings))
	}
	rate, err := k.metrics.Latest(ctx, MetricVariableRate, "")
	if err != nil {
		return errorResult("MissingMetric", fmt.Sprintf("no data for %s", MetricVariableRate))
	}

	return affordability(affordabilityInputs{
		LoanMetric:     loanMetric,
		LoanThousands:  loan.Value,
		WeeklyEarnings: earnings.Value,
		AnnualRatePct:  rate.Value,
		DualIncome:     in.DualIncome,
		LoanPeriod:     loan.Period,
		EarningsPeriod: earnings.Period,
		RatePeriod:     rate.Period,
	})
}

func (k *Kit) compareMetrics(ctx context.Context, in compareInput) Result {
	var names []string
	for _, n := range strings.Split(in.MetricNames, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return errorResult("InvalidArguments", "metric_names must list at least one metric")
	}
	limit := in.Periods
	if limit <= 0 {
		limit = 12
	}

	series := make([]metricSeries, 0, len(names))
	for _, name := range names {
		points, err := k.metrics.Timeseries(ctx, name, limit, "")
		switch {
		case err != nil:
			series = append(series, metricSeries{Name: name, Err: err.Error()})
		case len(points) == 0:
			series = append(series, metricSeries{Name: name, Err: fmt.Sprintf("no data for metric %q", name)})
		default:
			series = append(series, metricSeries{Name: name, Points: points})
		}
	}
	return compareSeries(series)
}

func (k *Kit) getMinutes(ctx context.Context, in minutesInput) Result {
	limit := in.Limit
	if limit <= 0 {
		limit = 3
	}
	docs, err := k.docs.Recent(ctx, DocTypeRBAMinutes, limit)
	if err != nil {
		return errorResult("QueryFailed", err.Error())
	}
	list := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		entry := map[string]any{
			"title":       d.Title,
			"external_id": d.ExternalID,
			"url":         d.URL,
			"summary":     d.Summary,
		}
		if d.PublishedAt != nil {
			entry["published_at"] = d.PublishedAt.Format(time.RFC3339)
		}
		list = append(list, entry)
	}
	return okResult(map[string]any{"minutes": list, "count": len(list)})
}

func (k *Kit) searchMinutes(ctx context.Context, in searchInput) Result {
	if in.Query == "" {
		return errorResult("InvalidArguments", "query is required")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 5
	}
	matches, err := k.docs.SearchChunks(ctx, in.Query, limit)
	if err != nil {
		return errorResult("QueryFailed", err.Error())
	}
	list := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		entry := map[string]any{
			"title":   m.Title,
			"section": m.SectionName,
			"excerpt": m.Content,
		}
		if m.PublishedAt != nil {
			entry["published_at"] = m.PublishedAt.Format(time.RFC3339)
		}
		list = append(list, entry)
	}
	return okResult(map[string]any{"matches": list, "count": len(list)})
}

func (k *Kit) queryDatabase(ctx context.Context, in sqlInput) Result {
	if in.SQL == "" {
		return errorResult("InvalidArguments", "sql is required")
	}
	res, err := k.adhoc.Query(ctx, in.SQL)
	if err != nil {
		return errorResult("QueryRejected", err.Error())
	}
	return okResult(map[string]any{
		"columns":   res.Columns,
		"rows":      res.Rows,
		"row_count": res.RowCount,
		"truncated": res.Truncated,
	})
}

func pointFields(p store.DataPoint) map[string]any {
	return map[string]any{
		"metric_name":  p.MetricName,
		"value":        p.Value,
		"unit":         p.Unit,
		"period":       p.Period,
		"geography":    p.Geography,
		"source":       p.Source,
		"collected_at": p.CollectedAt.Format(time.RFC3339),
	}
}

func pointList(points []store.DataPoint) []map[string]any {
	out := make([]map[string]any, 0, len(points))
	for _, p := range points {
		out = append(out, map[string]any{
			"period": p.Period,
			"value":  p.Value,
			"unit":   p.Unit,
		})
	}
	return out
}
