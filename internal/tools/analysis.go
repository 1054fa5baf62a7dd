package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/austat/austat/internal/store"
)

const (
	// mortgageYears is the standard loan term assumed by the
	// affordability calculation.
	mortgageYears = 30

	// recentChangesReturned caps how many trailing period-over-period
	// changes the growth analysis reports.
	recentChangesReturned = 6
)

// growthAnalysis computes growth statistics over a chronological series.
func growthAnalysis(metric string, points []store.DataPoint) Result {
	if len(points) < 2 {
		return errorResult("InsufficientData",
			fmt.Sprintf("need at least 2 observations of %s, have %d", metric, len(points)))
	}

	first, last := points[0], points[len(points)-1]
	totalChange := last.Value - first.Value

	fields := map[string]any{
		"metric_name":  metric,
		"observations": len(points),
		"first_period": first.Period,
		"last_period":  last.Period,
		"first_value":  first.Value,
		"last_value":   last.Value,
		"total_change": totalChange,
	}

	if first.Value != 0 {
		fields["percent_change"] = totalChange / first.Value * 100
	}

	// CAGR over the elapsed calendar span; when periods don't parse, fall
	// back to one interval per observation.
	years := yearsBetween(first.Period, last.Period)
	if years <= 0 {
		years = float64(len(points) - 1)
	}
	if years > 0 && first.Value > 0 {
		fields["cagr_percent"] = (math.Pow(last.Value/first.Value, 1/years) - 1) * 100
		fields["years"] = years
	}

	fields["recent_changes"] = recentChanges(points)

	minP, maxP := points[0], points[0]
	for _, p := range points[1:] {
		if p.Value < minP.Value {
			minP = p
		}
		if p.Value > maxP.Value {
			maxP = p
		}
	}
	fields["min"] = map[string]any{"value": minP.Value, "period": minP.Period}
	fields["max"] = map[string]any{"value": maxP.Value, "period": maxP.Period}

	return okResult(fields)
}

// recentChanges reports the newest period-over-period changes, newest first,
// capped at recentChangesReturned.
func recentChanges(points []store.DataPoint) []map[string]any {
	out := make([]map[string]any, 0, recentChangesReturned)
	for i := len(points) - 1; i > 0 && len(out) < recentChangesReturned; i-- {
		from, to := points[i-1], points[i]
		entry := map[string]any{
			"from_period": from.Period,
			"to_period":   to.Period,
			"change":      to.Value - from.Value,
		}
		if from.Value != 0 {
			entry["percent"] = (to.Value - from.Value) / from.Value * 100
		}
		out = append(out, entry)
	}
	return out
}

// yearsBetween returns the fractional years between two periods formatted as
// "YYYY" or "YYYY-MM" (longer forms use their first 7 characters). Returns 0
// when either period does not parse.
func yearsBetween(first, last string) float64 {
	f, okF := periodToYears(first)
	l, okL := periodToYears(last)
	if !okF || !okL {
		return 0
	}
	return l - f
}

func periodToYears(period string) (float64, bool) {
	if len(period) > 7 {
		period = period[:7]
	}
	parts := strings.SplitN(period, "-", 2)

	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1000 || year > 9999 {
		return 0, false
	}
	if len(parts) == 1 {
		return float64(year), true
	}

	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, false
	}
	return float64(year) + float64(month-1)/12, true
}

// affordabilityInputs carries the resolved metric values into the pure
// affordability calculation.
type affordabilityInputs struct {
	LoanMetric     string
	LoanThousands  float64 // loan size metric is published in $ thousands
	WeeklyEarnings float64
	AnnualRatePct  float64
	DualIncome     bool
	LoanPeriod     string
	EarningsPeriod string
	RatePeriod     string
}

func affordability(in affordabilityInputs) Result {
	loan := in.LoanThousands * 1000
	annualIncome := in.WeeklyEarnings * 52
	if in.DualIncome {
		annualIncome *= 2
	}
	if loan <= 0 || annualIncome <= 0 {
		return errorResult("InsufficientData", "loan size and earnings must be positive")
	}

	monthly := monthlyPayment(loan, in.AnnualRatePct)
	monthlyIncome := annualIncome / 12
	ratio := monthly / monthlyIncome * 100

	return okResult(map[string]any{
		"loan_metric":           in.LoanMetric,
		"loan_amount":           loan,
		"loan_period":           in.LoanPeriod,
		"annual_income":         annualIncome,
		"earnings_period":       in.EarningsPeriod,
		"dual_income":           in.DualIncome,
		"interest_rate_percent": in.AnnualRatePct,
		"rate_period":           in.RatePeriod,
		"term_years":            mortgageYears,
		"monthly_payment":       monthly,
		"payment_to_income_pct": ratio,
		"stress_level":          stressLevel(ratio),
	})
}

// monthlyPayment is the standard principal-and-interest amortization
// payment for a loan at an annual percentage rate over mortgageYears.
func monthlyPayment(loan, annualRatePct float64) float64 {
	n := float64(mortgageYears * 12)
	r := annualRatePct / 100 / 12
	if r == 0 {
		return loan / n
	}
	factor := math.Pow(1+r, n)
	return loan * r * factor / (factor - 1)
}

// stressLevel bands the payment-to-income ratio. The 30% line is the common
// definition of mortgage stress; 25 and 35 bracket it.
func stressLevel(ratioPct float64) string {
	switch {
	case ratioPct < 25:
		return "LOW"
	case ratioPct < 30:
		return "MODERATE"
	case ratioPct < 35:
		return "HIGH"
	default:
		return "SEVERE"
	}
}

// metricSeries is one metric's slice of a comparison: its recent points, or
// the reason they could not be loaded.
type metricSeries struct {
	Name   string
	Points []store.DataPoint
	Err    string
}

// compareSeries builds the side-by-side comparison. A metric that failed to
// load is reported inline under its name without failing the others; series
// that did load are additionally aligned on the periods they all share.
func compareSeries(series []metricSeries) Result {
	metrics := make(map[string]any, len(series))
	var loaded []metricSeries
	for _, s := range series {
		if s.Err != "" {
			metrics[s.Name] = map[string]any{"error": s.Err}
			continue
		}
		last := s.Points[len(s.Points)-1]
		metrics[s.Name] = map[string]any{
			"points": pointList(s.Points),
			"unit":   last.Unit,
			"latest": map[string]any{"period": last.Period, "value": last.Value},
		}
		loaded = append(loaded, s)
	}

	fields := map[string]any{
		"metrics": metrics,
		"count":   len(series),
	}
	if len(loaded) >= 2 {
		rows := alignedRows(loaded)
		fields["rows"] = rows
		fields["shared_periods"] = len(rows)
	}
	return okResult(fields)
}

// alignedRows joins the series on periods present in every one, in the
// first series' chronological order.
func alignedRows(series []metricSeries) []map[string]any {
	rows := []map[string]any{}
	for _, p := range series[0].Points {
		row := map[string]any{"period": p.Period, series[0].Name: p.Value}
		shared := true
		for _, s := range series[1:] {
			v, ok := valueAt(s.Points, p.Period)
			if !ok {
				shared = false
				break
			}
			row[s.Name] = v
		}
		if shared {
			rows = append(rows, row)
		}
	}
	return rows
}

func valueAt(points []store.DataPoint, period string) (float64, bool) {
	for _, p := range points {
		if p.Period == period {
			return p.Value, true
		}
	}
	return 0, false
}
