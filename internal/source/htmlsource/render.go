package htmlsource

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-ledger/internal/resilience"
	"github.com/sells-group/listing-ledger/pkg/firecrawl"
)

// Page is one rendered document.
type Page struct {
	// URL is the final address after redirects.
	URL  string
	HTML []byte
}

// Renderer turns a target URL into HTML. scrolls asks the renderer to scroll
// the result list that many times before capture; renderers that cannot
// scroll ignore it.
type Renderer interface {
	Render(ctx context.Context, target string, scrolls int) (*Page, error)
}

// DirectRenderer fetches pages with a plain HTTP GET.
type DirectRenderer struct {
	http *resty.Client
}

// NewDirectRenderer returns a DirectRenderer sending userAgent.
func NewDirectRenderer(userAgent string, timeout time.Duration) *DirectRenderer {
	client := resty.New()
	if userAgent != "" {
		client.SetHeader("user-agent", userAgent)
	}
	client.SetHeader("accept-language", "en")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &DirectRenderer{http: client}
}

func (r *DirectRenderer) Render(ctx context.Context, target string, _ int) (*Page, error) {
	res, err := r.http.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		return nil, eris.Wrapf(err, "htmlsource: get %s", target)
	}
	if res.IsError() {
		err := eris.Errorf("htmlsource: get %s: HTTP %d", target, res.StatusCode())
		if resilience.IsTransientHTTPStatus(res.StatusCode()) {
			return nil, resilience.NewTransientError(err, res.StatusCode())
		}
		return nil, err
	}

	final := target
	if raw := res.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		final = raw.Request.URL.String()
	}
	return &Page{URL: final, HTML: res.Body()}, nil
}

// FirecrawlRenderer renders pages in a headless browser through Firecrawl,
// which can scroll the result list before capture.
type FirecrawlRenderer struct {
	client     firecrawl.Client
	waitFor    time.Duration
	scrollWait time.Duration
}

// NewFirecrawlRenderer returns a FirecrawlRenderer. waitFor is the render
// delay before capture; scrollWait follows each scroll.
func NewFirecrawlRenderer(client firecrawl.Client, waitFor, scrollWait time.Duration) *FirecrawlRenderer {
	return &FirecrawlRenderer{client: client, waitFor: waitFor, scrollWait: scrollWait}
}

func (r *FirecrawlRenderer) Render(ctx context.Context, target string, scrolls int) (*Page, error) {
	req := firecrawl.ScrapeRequest{
		URL:     target,
		Formats: []string{firecrawl.FormatRawHTML},
		WaitFor: int(r.waitFor / time.Millisecond),
	}
	for i := 0; i < scrolls; i++ {
		req.Actions = append(req.Actions, firecrawl.ScrollDown(int(r.scrollWait/time.Millisecond))...)
	}

	resp, err := r.client.Scrape(ctx, req)
	if err != nil {
		var apiErr *firecrawl.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, err
	}
	if code := resp.Data.Metadata.StatusCode; code >= http.StatusBadRequest {
		err := eris.Errorf("htmlsource: render %s: HTTP %d", target, code)
		if resilience.IsTransientHTTPStatus(code) {
			return nil, resilience.NewTransientError(err, code)
		}
		return nil, err
	}

	final := resp.Data.FinalURL()
	if final == "" {
		final = target
	}
	return &Page{URL: final, HTML: []byte(resp.Data.RawHTML)}, nil
}
