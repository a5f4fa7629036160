// Package places drives the Google Places API as a listing source.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/listing-ledger/internal/model"
	"github.com/sells-group/listing-ledger/internal/resilience"
	"github.com/sells-group/listing-ledger/internal/source"
	"github.com/sells-group/listing-ledger/pkg/google"
)

const mapsSearchURL = "https://www.google.com/maps/search/"

// Options configures a Source.
type Options struct {
	PageSize     int
	LanguageCode string
	RegionCode   string
	// RateLimit is the sustained request rate per second. Zero means
	// unlimited.
	RateLimit float64
	Retry     resilience.RetryConfig
	// Breaker, when set, fails calls fast while the API keeps failing.
	Breaker *resilience.Breaker
}

// Source pages through Places Text Search results. The listing grows one
// API page at a time on Scroll, or is replaced by the next page on Next.
type Source struct {
	client  google.Client
	opts    Options
	limiter *rate.Limiter

	query     string
	places    []google.Place
	nextToken string
	current   *google.Place
	log       *zap.Logger
}

var (
	_ source.Source      = (*Source)(nil)
	_ source.Snapshotter = (*Source)(nil)
)

// New returns a Source backed by client.
func New(client google.Client, opts Options) *Source {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return &Source{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     zap.L().With(zap.String("component", "source.places")),
	}
}

func (s *Source) Search(ctx context.Context, query string) error {
	resp, err := s.page(ctx, query, "")
	if err != nil {
		return eris.Wrapf(err, "places: search %q", query)
	}
	s.query = query
	s.places = resp.Places
	s.nextToken = resp.NextPageToken
	s.current = nil
	s.log.Debug("search", zap.String("query", query), zap.Int("places", len(resp.Places)), zap.Bool("more", resp.NextPageToken != ""))
	return nil
}

func (s *Source) Count(context.Context) (int, error) {
	return len(s.places), nil
}

func (s *Source) Candidate(_ context.Context, index int) (model.CandidateItem, error) {
	if index < 0 || index >= len(s.places) {
		return model.CandidateItem{}, source.ErrNoCandidate
	}
	p := s.places[index]
	return model.CandidateItem{
		Index:     index,
		ID:        p.ID,
		Name:      p.DisplayName.Text,
		Reference: p.GoogleMapsURI,
	}, nil
}

func (s *Source) Open(ctx context.Context, c model.CandidateItem) error {
	s.current = nil
	p, err := resilience.DoVal(ctx, s.retry("place_details"), func(ctx context.Context) (*google.Place, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return resilience.Guard(ctx, s.opts.Breaker, func(ctx context.Context) (*google.Place, error) {
			p, err := s.client.PlaceDetails(ctx, c.ID)
			return p, classify(err)
		})
	})
	if err != nil {
		return eris.Wrapf(err, "places: details %s", c.ID)
	}
	if p.DisplayName.Text == "" {
		p.DisplayName.Text = c.Name
	}
	s.current = p
	return nil
}

func (s *Source) Probe(_ context.Context, p source.Probe) (string, bool) {
	if s.current == nil {
		return "", false
	}
	var v string
	switch p {
	case source.ProbeTelLink:
		if d := compactPhone(s.current.InternationalPhoneNumber); d != "" {
			v = "tel:" + d
		}
	case source.ProbePhoneControl:
		v = compactPhone(s.current.NationalPhoneNumber)
	case source.ProbeAddressControl:
		v = s.current.FormattedAddress
	case source.ProbeStatus:
		v = s.current.BusinessStatus
	}
	return v, v != ""
}

// Share renders the text of a share panel: name, address and a place link
// pinned by coordinates and place ID.
func (s *Source) Share(context.Context) (string, bool) {
	if s.current == nil {
		return "", false
	}
	link := PlaceURL(s.current)
	if link == "" {
		return "", false
	}
	parts := []string{s.current.DisplayName.Text}
	if s.current.FormattedAddress != "" {
		parts = append(parts, s.current.FormattedAddress)
	}
	return strings.Join(append(parts, link), "\n"), true
}

// PlaceURL returns a maps link for p pinned by coordinates and place ID, or
// the API's maps URI when no coordinates are known.
func PlaceURL(p *google.Place) string {
	if p.Location == nil || p.ID == "" {
		return p.GoogleMapsURI
	}
	q := url.Values{}
	q.Set("api", "1")
	q.Set("query", fmt.Sprintf("%.7f,%.7f", p.Location.Latitude, p.Location.Longitude))
	q.Set("query_place_id", p.ID)
	return mapsSearchURL + "?" + q.Encode()
}

// CurrentReference returns the opened place's maps URI, or a search page
// reference while the listing holds results.
func (s *Source) CurrentReference(context.Context) string {
	if s.current != nil {
		return s.current.GoogleMapsURI
	}
	if s.query == "" || len(s.places) == 0 {
		return ""
	}
	return mapsSearchURL + url.PathEscape(s.query)
}

func (s *Source) Next(ctx context.Context) (bool, error) {
	if s.nextToken == "" {
		return false, nil
	}
	resp, err := s.page(ctx, s.query, s.nextToken)
	if err != nil {
		return false, eris.Wrap(err, "places: next page")
	}
	s.places = resp.Places
	s.nextToken = resp.NextPageToken
	s.current = nil
	return true, nil
}

// Scroll appends the next API page to the listing. Without a page token
// the listing stays as is.
func (s *Source) Scroll(ctx context.Context) error {
	if s.nextToken == "" {
		return nil
	}
	resp, err := s.page(ctx, s.query, s.nextToken)
	if err != nil {
		return eris.Wrap(err, "places: scroll")
	}
	s.places = append(s.places, resp.Places...)
	s.nextToken = resp.NextPageToken
	return nil
}

func (s *Source) Reload(ctx context.Context) error {
	if s.query == "" {
		return eris.New("places: reload before search")
	}
	return s.Search(ctx, s.query)
}

// Wait only observes ctx. API responses are complete when returned, so
// there is nothing to settle.
func (s *Source) Wait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Snapshot captures the opened place's details as JSON.
func (s *Source) Snapshot(context.Context) ([]byte, string, error) {
	if s.current == nil {
		return nil, "", eris.New("places: nothing opened")
	}
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return nil, "", eris.Wrap(err, "places: marshal snapshot")
	}
	return data, "json", nil
}

func (s *Source) page(ctx context.Context, query, token string) (*google.SearchTextResponse, error) {
	return resilience.DoVal(ctx, s.retry("search_text"), func(ctx context.Context) (*google.SearchTextResponse, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return resilience.Guard(ctx, s.opts.Breaker, func(ctx context.Context) (*google.SearchTextResponse, error) {
			resp, err := s.client.SearchText(ctx, google.SearchTextRequest{
				TextQuery:    query,
				PageSize:     s.opts.PageSize,
				PageToken:    token,
				LanguageCode: s.opts.LanguageCode,
				RegionCode:   s.opts.RegionCode,
			})
			return resp, classify(err)
		})
	})
}

func (s *Source) retry(op string) resilience.RetryConfig {
	cfg := s.opts.Retry
	cfg.OnRetry = resilience.RetryLogger("google", op)
	return cfg
}

// classify marks retryable API statuses as transient.
func classify(err error) error {
	var apiErr *google.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}

func compactPhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
