package firecrawl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
)

// Default base URL for the Firecrawl v2 API.
const defaultBaseURL = "https://api.firecrawl.dev/v2"

// Output formats accepted by Scrape.
const (
	FormatMarkdown = "markdown"
	FormatRawHTML  = "rawHtml"
)

// Client defines the Firecrawl API operations used for page rendering.
type Client interface {
	Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error)
}

// ScrapeRequest is the body for POST /scrape.
type ScrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats,omitempty"`
	// WaitFor is a render delay in milliseconds before capture.
	WaitFor int      `json:"waitFor,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

// Action is a browser action run before capture, e.g. a scroll.
type Action struct {
	Type         string `json:"type"`
	Direction    string `json:"direction,omitempty"`
	Milliseconds int    `json:"milliseconds,omitempty"`
}

// ScrollDown returns a scroll action followed by a wait of ms.
func ScrollDown(ms int) []Action {
	return []Action{{Type: "scroll", Direction: "down"}, {Type: "wait", Milliseconds: ms}}
}

// ScrapeResponse is the response from POST /scrape.
type ScrapeResponse struct {
	Success bool     `json:"success"`
	Data    PageData `json:"data"`
}

// PageData represents a single page result from Firecrawl.
type PageData struct {
	URL        string   `json:"url"`
	Markdown   string   `json:"markdown"`
	RawHTML    string   `json:"rawHtml"`
	Title      string   `json:"title"`
	StatusCode int      `json:"statusCode"`
	Metadata   Metadata `json:"metadata"`
}

// Metadata describes the captured page.
type Metadata struct {
	Title      string `json:"title"`
	SourceURL  string `json:"sourceURL"`
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
}

// FinalURL is the page URL after redirects, when Firecrawl reports one.
func (p PageData) FinalURL() string {
	switch {
	case p.Metadata.URL != "":
		return p.Metadata.URL
	case p.URL != "":
		return p.URL
	default:
		return p.Metadata.SourceURL
	}
}

// APIError is returned when Firecrawl responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firecrawl: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*options)

type options struct {
	baseURL string
	hc      *http.Client
}

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithHTTPClient sets the *http.Client requests go through.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.hc = hc }
}

// httpClient implements Client on a resty client.
type httpClient struct {
	http *resty.Client
}

// NewClient creates a new Firecrawl client.
func NewClient(apiKey string, opts ...Option) Client {
	o := options{
		baseURL: defaultBaseURL,
		hc:      &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &httpClient{
		http: resty.NewWithClient(o.hc).
			SetBaseURL(o.baseURL).
			SetAuthToken(apiKey).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *httpClient) Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/scrape")
	if err != nil {
		return nil, eris.Wrapf(err, "firecrawl: scrape %s", req.URL)
	}
	if res.IsError() {
		return nil, &APIError{StatusCode: res.StatusCode(), Body: res.String()}
	}

	var resp ScrapeResponse
	if err := json.Unmarshal(res.Body(), &resp); err != nil {
		return nil, eris.Wrapf(err, "firecrawl: scrape %s: decode response", req.URL)
	}
	if !resp.Success {
		return nil, eris.Errorf("firecrawl: scrape %s: unsuccessful", req.URL)
	}
	return &resp, nil
}
