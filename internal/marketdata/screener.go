package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/config"
	"github.com/wonny/seedrank/backend/pkg/httputil"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// quoteFields maps screener column names to Quote fields.
// Any other data-field is stored as an indicator.
var quoteFields = map[string]func(q *contracts.Quote, v float64){
	"price":      func(q *contracts.Quote, v float64) { q.Price = v },
	"prev_close": func(q *contracts.Quote, v float64) { q.PrevClose = v },
	"open":       func(q *contracts.Quote, v float64) { q.Open = v },
	"high":       func(q *contracts.Quote, v float64) { q.High = v },
	"low":        func(q *contracts.Quote, v float64) { q.Low = v },
	"volume":     func(q *contracts.Quote, v float64) { q.Volume = v },
	"avg_volume": func(q *contracts.Quote, v float64) { q.AvgVolume = v },
	"change_pct": func(q *contracts.Quote, v float64) { q.ChangePct = v },
}

// ScreenerClient reads the external stock screener's HTML result table
// ⭐ SSOT: 외부 스크리너 호출은 이 클라이언트에서만
type ScreenerClient struct {
	httpClient *httputil.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
	baseURL    string
	scanPath   string
	quotePath  string
	now        func() time.Time
}

// NewScreenerClient creates a screener client
func NewScreenerClient(cfg config.MarketConfig, httpClient *httputil.Client, log *logger.Logger) *ScreenerClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &ScreenerClient{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		logger:     log,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		scanPath:   cfg.ScanPath,
		quotePath:  cfg.QuotePath,
		now:        time.Now,
	}
}

// FetchUniverse scans the screener for the family's candidate universe
func (c *ScreenerClient) FetchUniverse(ctx context.Context, q contracts.UniverseQuery) (*contracts.Universe, error) {
	params := url.Values{}
	params.Set("family", string(q.Family))
	if q.Market != "" {
		params.Set("market", q.Market)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	quotes, err := c.fetchTable(ctx, c.scanPath, params)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: screener returned no rows for %s", contracts.ErrDataUnavailable, q.Family)
	}

	c.logger.WithFields(map[string]interface{}{
		"family": q.Family,
		"market": q.Market,
		"count":  len(quotes),
	}).Debug("Fetched universe")

	return &contracts.Universe{
		AsOf:   c.now().UTC(),
		Source: "screener",
		Quotes: quotes,
	}, nil
}

// FetchQuotes returns current quotes for the given symbols.
// Symbols the screener does not know are absent from the map.
func (c *ScreenerClient) FetchQuotes(ctx context.Context, symbols []string) (map[string]contracts.Quote, error) {
	out := make(map[string]contracts.Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	quotes, err := c.fetchTable(ctx, c.quotePath, params)
	if err != nil {
		return nil, err
	}
	for _, q := range quotes {
		out[q.Symbol] = q
	}
	return out, nil
}

func (c *ScreenerClient) fetchTable(ctx context.Context, path string, params url.Values) ([]contracts.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	fullURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: HTTP request failed: %v", contracts.ErrDataUnavailable, err)
	}

	body, err := httputil.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrDataUnavailable, err)
	}

	quotes, err := parseScreenerHTML(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrDataUnavailable, err)
	}
	return quotes, nil
}

// parseScreenerHTML reads rows of the form
//
//	<table class="screener"><tr data-symbol="AAPL"><td data-field="price">191.2</td>...</tr></table>
//
// Rows without a symbol are skipped; unparseable cells are left unset so the
// seeds can treat the quote as corrupt.
func parseScreenerHTML(body []byte) ([]contracts.Quote, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table.screener")
	if table.Length() == 0 {
		return nil, fmt.Errorf("screener table not found")
	}

	quotes := make([]contracts.Quote, 0)
	table.Find("tr[data-symbol]").Each(func(i int, row *goquery.Selection) {
		symbol := strings.ToUpper(strings.TrimSpace(row.AttrOr("data-symbol", "")))
		if symbol == "" {
			return
		}

		q := contracts.Quote{
			Symbol: symbol,
			Name:   strings.TrimSpace(row.AttrOr("data-name", "")),
			Sector: strings.TrimSpace(row.AttrOr("data-sector", "")),
		}

		row.Find("td[data-field]").Each(func(j int, cell *goquery.Selection) {
			field := strings.TrimSpace(cell.AttrOr("data-field", ""))
			v, ok := parseNumber(cell.Text())
			if field == "" || !ok {
				return
			}
			if set, known := quoteFields[field]; known {
				set(&q, v)
				return
			}
			if q.Indicators == nil {
				q.Indicators = make(map[string]float64)
			}
			q.Indicators[field] = v
		})

		quotes = append(quotes, q)
	})

	return quotes, nil
}

// parseNumber accepts "1,234.5", "+3.2%", "-0.4" and K/M/B suffixes
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimPrefix(s, "+")
	if s == "" || s == "-" || s == "—" {
		return 0, false
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1e3
	case 'M', 'm':
		mult = 1e6
	case 'B', 'b':
		mult = 1e9
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}
