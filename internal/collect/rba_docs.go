package collect

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/austat/austat/internal/chunk"
	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/store"
	"github.com/austat/austat/internal/tools"
)

// datedPage matches RBA document pages named by meeting date.
var datedPage = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\.html$`)

const (
	minutesIndexPath    = "/monetary-policy/rba-board-minutes/"
	statementsIndexPath = "/media-releases/monetary-policy/"

	summaryLimit = 400

	// docsPerType caps how many documents one run pulls per crawl, newest
	// first. Older documents arrive over successive runs anyway.
	docsPerType = 6
)

type rbaCrawl struct {
	docType   string
	indexPath string
	title     string // fallback when the page has no h1
}

var rbaCrawls = []rbaCrawl{
	{docType: tools.DocTypeRBAMinutes, indexPath: minutesIndexPath, title: "Minutes of the Monetary Policy Board Meeting"},
	{docType: tools.DocTypeRBAStatement, indexPath: statementsIndexPath, title: "Statement by the Monetary Policy Board"},
}

// RBADocsConfig configures the RBA document collector.
type RBADocsConfig struct {
	BaseURL   string
	UserAgent string
	Delay     time.Duration
	Timeout   time.Duration
	Logger    log.Logger
}

// RBADocs scrapes board minutes and post-meeting statements from the RBA
// site: an index page per document type, then one dated page per meeting.
type RBADocs struct {
	base    string
	ua      string
	delay   time.Duration
	timeout time.Duration
	logger  log.Logger
}

// NewRBADocs creates the collector.
func NewRBADocs(cfg RBADocsConfig) *RBADocs {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &RBADocs{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		ua:      cfg.UserAgent,
		delay:   cfg.Delay,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

func (c *RBADocs) Name() string { return "rba_documents" }

// Collect crawls each index, then fetches the newest dated pages.
func (c *RBADocs) Collect(ctx context.Context) (*Harvest, error) {
	harvest := &Harvest{}
	for _, crawl := range rbaCrawls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := c.collectType(ctx, crawl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", crawl.docType, err)
		}
		harvest.Documents = append(harvest.Documents, docs...)
	}
	return harvest, nil
}

func (c *RBADocs) collectType(ctx context.Context, crawl rbaCrawl) ([]Doc, error) {
	links, err := c.discover(crawl.indexPath)
	if err != nil {
		return nil, err
	}
	// Newest first; dated names sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(links)))
	if len(links) > docsPerType {
		links = links[:docsPerType]
	}

	docs := make([]Doc, 0, len(links))
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := c.fetchDoc(crawl, link)
		if err != nil {
			c.logger.Warn("document fetch failed", "url", link, "error", err)
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// discover extracts dated page links from an index page.
func (c *RBADocs) discover(indexPath string) ([]string, error) {
	var links []string
	seen := map[string]bool{}

	col := c.newCollector()
	col.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if !datedPage.MatchString(href) || seen[href] {
			return
		}
		seen[href] = true
		links = append(links, href)
	})

	if err := col.Visit(c.base + indexPath); err != nil {
		return nil, fmt.Errorf("index %s: %w", indexPath, err)
	}
	return links, nil
}

func (c *RBADocs) fetchDoc(crawl rbaCrawl, pageURL string) (*Doc, error) {
	var (
		body     []byte
		title    string
		sections []chunk.Section
	)

	col := c.newCollector()
	col.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	col.OnHTML("html", func(e *colly.HTMLElement) {
		title = strings.TrimSpace(e.DOM.Find("h1").First().Text())
		sections = extractSections(e.DOM)
	})

	if err := col.Visit(pageURL); err != nil {
		return nil, err
	}

	if len(sections) == 0 {
		// Page structure we don't recognize: let readability pull the body
		// text as a single section.
		parsed, perr := url.Parse(pageURL)
		if perr != nil {
			return nil, fmt.Errorf("page url %q: %w", pageURL, perr)
		}
		article, err := readability.FromReader(bytes.NewReader(body), parsed)
		if err != nil || strings.TrimSpace(article.TextContent) == "" {
			return nil, fmt.Errorf("no extractable content in %s", pageURL)
		}
		sections = []chunk.Section{{Name: "Body", Content: strings.TrimSpace(article.TextContent)}}
		if title == "" {
			title = article.Title
		}
	}
	if title == "" {
		title = crawl.title
	}

	date := datedPage.FindStringSubmatch(pageURL)[1]
	published, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("page date %q: %w", date, err)
	}

	var full strings.Builder
	for _, s := range sections {
		full.WriteString(s.Content)
		full.WriteString("\n\n")
	}
	content := strings.TrimSpace(full.String())

	return &Doc{
		Document: store.Document{
			DocumentType: crawl.docType,
			ExternalID:   date,
			Title:        title,
			URL:          pageURL,
			PublishedAt:  &published,
			Content:      content,
			Summary:      summarize(sections[0].Content),
		},
		Sections: sections,
	}, nil
}

func (c *RBADocs) newCollector() *colly.Collector {
	opts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if c.ua != "" {
		opts = append(opts, colly.UserAgent(c.ua))
	}
	col := colly.NewCollector(opts...)
	if c.timeout > 0 {
		col.SetRequestTimeout(c.timeout)
	}
	if c.delay > 0 {
		if err := col.Limit(&colly.LimitRule{DomainGlob: "*", Delay: c.delay}); err != nil {
			c.logger.Warn("crawl rate limit not applied", "error", err)
		}
	}
	return col
}

// extractSections splits the page body on h2 headings. RBA minutes use one h2
// per agenda item (International Economic Conditions, Domestic Economic
// Conditions, Considerations for Monetary Policy, The Decision).
func extractSections(doc *goquery.Selection) []chunk.Section {
	root := doc.Find("#content").First()
	if root.Length() == 0 {
		root = doc.Find("main, article").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}

	var sections []chunk.Section
	root.Find("h2").Each(func(_ int, h *goquery.Selection) {
		name := strings.TrimSpace(h.Text())
		if name == "" {
			return
		}
		var b strings.Builder
		h.NextUntil("h2").Each(func(_ int, sib *goquery.Selection) {
			text := strings.TrimSpace(sib.Text())
			if text == "" {
				return
			}
			b.WriteString(text)
			b.WriteString("\n\n")
		})
		content := strings.TrimSpace(b.String())
		if content == "" {
			return
		}
		sections = append(sections, chunk.Section{Name: name, Content: content})
	})
	return sections
}

// summarize takes the opening of a section, cut at a sentence end when one
// falls inside the window.
func summarize(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= summaryLimit {
		return string(runes)
	}
	s := string(runes[:summaryLimit])
	if i := strings.LastIndex(s, ". "); i > summaryLimit/2 {
		return s[:i+1]
	}
	return s + "..."
}
