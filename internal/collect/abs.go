package collect

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/store"
	"github.com/austat/austat/internal/tools"
)

// absDataset describes one CSV download: the first column is the period,
// every other recognized column feeds a metric.
type absDataset struct {
	path    string
	unit    string
	columns map[string]string // CSV header -> metric name
}

var absDatasets = []absDataset{
	{
		path: "/statistics/economy/finance/lending-indicators/latest.csv",
		unit: "AUD thousands",
		columns: map[string]string{
			"avg_loan_size_total":  tools.MetricLoanSizeTotal,
			"avg_loan_size_houses": tools.MetricLoanSizeHouses,
			"avg_loan_size_units":  tools.MetricLoanSizeUnits,
		},
	},
	{
		path: "/statistics/labour/earnings-and-working-conditions/average-weekly-earnings/latest.csv",
		unit: "AUD",
		columns: map[string]string{
			"avg_weekly_earnings": tools.MetricWeeklyEarnings,
		},
	},
	{
		path: "/statistics/industry/building-and-construction/building-approvals/latest.csv",
		unit: "dwellings",
		columns: map[string]string{
			"building_approvals_total": tools.MetricBuildingApproval,
		},
	},
	{
		path: "/statistics/economy/price-indexes-and-inflation/residential-property-price-indexes/latest.csv",
		unit: "index",
		columns: map[string]string{
			"residential_property_price_index": tools.MetricPriceIndex,
		},
	},
}

// ABSConfig configures the ABS collector.
type ABSConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Logger    log.Logger
}

// ABS downloads housing, earnings, approvals, and price-index series as CSV
// from the Bureau of Statistics.
type ABS struct {
	base   string
	ua     string
	client *http.Client
	logger log.Logger
}

// NewABS creates the collector.
func NewABS(cfg ABSConfig) *ABS {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ABS{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		ua:     cfg.UserAgent,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *ABS) Name() string { return "abs_datasets" }

// Collect downloads every dataset. A missing dataset fails the whole source:
// ABS publishes these together, so absence means the layout changed.
func (c *ABS) Collect(ctx context.Context) (*Harvest, error) {
	harvest := &Harvest{}
	for _, ds := range absDatasets {
		points, err := c.fetchDataset(ctx, ds)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", ds.path, err)
		}
		harvest.Points = append(harvest.Points, points...)
	}
	return harvest, nil
}

func (c *ABS) fetchDataset(ctx context.Context, ds absDataset) ([]store.DataPoint, error) {
	dsURL := c.base + ds.path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dsURL, nil)
	if err != nil {
		return nil, err
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return parseDataset(resp.Body, ds)
}

// parseDataset reads a CSV whose header names the period column first and
// metric columns after it. Blank cells are skipped, not errors: ABS leaves
// trailing periods empty until revision.
func parseDataset(r io.Reader, ds absDataset) ([]store.DataPoint, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "period") {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	metricByCol := make(map[int]string, len(header))
	for i, col := range header[1:] {
		if metric, ok := ds.columns[strings.TrimSpace(col)]; ok {
			metricByCol[i+1] = metric
		}
	}
	if len(metricByCol) == 0 {
		return nil, fmt.Errorf("no recognized columns in header %v", header)
	}

	var points []store.DataPoint
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		period := strings.TrimSpace(record[0])
		if period == "" {
			continue
		}
		for i, metric := range metricByCol {
			if i >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[i])
			if cell == "" {
				continue
			}
			value, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("row %s column %d: %w", period, i, err)
			}
			points = append(points, store.DataPoint{
				MetricName: metric,
				Value:      value,
				Unit:       ds.unit,
				Period:     period,
				Geography:  "AUS",
				Source:     "ABS",
			})
		}
	}
	return points, nil
}
