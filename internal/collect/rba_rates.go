package collect

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/store"
	"github.com/austat/austat/internal/tools"
)

// captionedTable maps a table caption fragment to the metric its rows feed.
type captionedTable struct {
	caption string
	metric  string
}

// rbaTableSet is one RBA page of captioned statistic tables.
type rbaTableSet struct {
	name   string
	path   string
	tables []captionedTable
}

var rbaRateTables = rbaTableSet{
	name: "rba_rates",
	path: "/statistics/interest-rates/",
	tables: []captionedTable{
		{caption: "Cash Rate", metric: tools.MetricCashRate},
		{caption: "Housing Loans", metric: tools.MetricVariableRate},
	},
}

var rbaEconomyTables = rbaTableSet{
	name: "rba_economy",
	path: "/snapshots/economy-indicators-snapshot/",
	tables: []captionedTable{
		{caption: "Inflation", metric: tools.MetricInflationAnnual},
		{caption: "Unemployment", metric: tools.MetricUnemployment},
	},
}

// RBATablesConfig configures a captioned-table collector.
type RBATablesConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Logger    log.Logger
}

// RBATables parses percentage statistics from an RBA page of captioned
// tables. Each table row is one dated observation.
type RBATables struct {
	set    rbaTableSet
	base   string
	ua     string
	client *http.Client
	logger log.Logger
}

// NewRBARates collects the policy and housing lending rates from the RBA
// interest rates page.
func NewRBARates(cfg RBATablesConfig) *RBATables {
	return newRBATables(rbaRateTables, cfg)
}

// NewRBAEconomy collects headline inflation and unemployment from the RBA
// economy indicators snapshot.
func NewRBAEconomy(cfg RBATablesConfig) *RBATables {
	return newRBATables(rbaEconomyTables, cfg)
}

func newRBATables(set rbaTableSet, cfg RBATablesConfig) *RBATables {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RBATables{
		set:    set,
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		ua:     cfg.UserAgent,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *RBATables) Name() string { return c.set.name }

// Collect fetches the page and extracts every recognized table.
func (c *RBATables) Collect(ctx context.Context) (*Harvest, error) {
	pageURL := c.base + c.set.path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	harvest := &Harvest{}
	for _, table := range c.set.tables {
		points := c.tablePoints(doc, table.caption, table.metric)
		if len(points) == 0 {
			c.logger.Warn("statistic table missing or empty", "caption", table.caption)
			continue
		}
		harvest.Points = append(harvest.Points, points...)
	}
	if len(harvest.Points) == 0 {
		return nil, fmt.Errorf("no statistic tables found at %s", pageURL)
	}
	return harvest, nil
}

// tablePoints reads rows of a captioned table: a date header cell and a
// percentage value cell.
func (c *RBATables) tablePoints(doc *goquery.Document, caption, metric string) []store.DataPoint {
	var points []store.DataPoint
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		text := strings.TrimSpace(table.Find("caption").Text())
		if !strings.Contains(text, caption) {
			return
		}
		table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
			dateText := strings.TrimSpace(row.Find("th").First().Text())
			valueText := strings.TrimSpace(row.Find("td").First().Text())
			if dateText == "" || valueText == "" {
				return
			}
			period, err := parseRBADate(dateText)
			if err != nil {
				c.logger.Warn("unparseable table date", "caption", caption, "date", dateText)
				return
			}
			value, err := strconv.ParseFloat(strings.TrimSuffix(valueText, "%"), 64)
			if err != nil {
				c.logger.Warn("unparseable table value", "caption", caption, "value", valueText)
				return
			}
			points = append(points, store.DataPoint{
				MetricName: metric,
				Value:      value,
				Unit:       "percent",
				Period:     period,
				Geography:  "AUS",
				Source:     "RBA",
			})
		})
	})
	return points
}

// parseRBADate converts the site's "4 Aug 2026" dates to a monthly period.
func parseRBADate(s string) (string, error) {
	for _, layout := range []string{"2 Jan 2006", "2 January 2006", "Jan 2006", "January 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}
