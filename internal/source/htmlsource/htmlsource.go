// Package htmlsource drives a rendered maps search page as a listing source.
// Pages come from a Renderer and are read with CSS selectors.
package htmlsource

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-ledger/internal/model"
	"github.com/sells-group/listing-ledger/internal/resilience"
	"github.com/sells-group/listing-ledger/internal/source"
)

// Selectors locate listing parts in rendered HTML.
type Selectors struct {
	Card    string
	Name    string
	Link    string
	Tel     string
	Phone   string
	Address string
	Info    string
	Status  string
	Next    string
}

// DefaultSelectors match the public maps search and place pages.
func DefaultSelectors() Selectors {
	return Selectors{
		Card:    "div.Nv2PK",
		Name:    "div.qBF1Pd",
		Link:    "a.hfpxzc",
		Tel:     `a[href^="tel:"]`,
		Phone:   `button[data-item-id^="phone:"]`,
		Address: `button[data-item-id="address"]`,
		Info:    "div.m6QErb div.rogA2c",
		Status:  "span.fCEvvc, div.o0Svhf",
		Next:    `a[aria-label='Next'], button[aria-label='Next page']`,
	}
}

// Options configures a Source.
type Options struct {
	// SearchURL is prefixed to the escaped query.
	SearchURL string
	Selectors Selectors
	Retry     resilience.RetryConfig
	// Breaker, when set, fails renders fast while the renderer keeps failing.
	Breaker *resilience.Breaker
}

// document is a rendered page with its parsed tree.
type document struct {
	url  string
	html []byte
	doc  *goquery.Document
}

// Source reads listings from rendered search pages.
type Source struct {
	renderer Renderer
	opts     Options

	query   string
	target  string
	scrolls int
	listing *document
	opened  *document
	log     *zap.Logger
}

var (
	_ source.Source      = (*Source)(nil)
	_ source.Snapshotter = (*Source)(nil)
)

// New returns a Source rendering pages with r. Empty selectors fall back to
// DefaultSelectors.
func New(r Renderer, opts Options) *Source {
	if opts.Selectors == (Selectors{}) {
		opts.Selectors = DefaultSelectors()
	}
	return &Source{
		renderer: r,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "source.html")),
	}
}

// SearchTarget returns the search page URL for query.
func (s *Source) SearchTarget(query string) string {
	return s.opts.SearchURL + url.PathEscape(query)
}

func (s *Source) Search(ctx context.Context, query string) error {
	target := s.SearchTarget(query)
	d, err := s.render(ctx, target, 0)
	if err != nil {
		return eris.Wrapf(err, "htmlsource: search %q", query)
	}
	s.query = query
	s.target = target
	s.scrolls = 0
	s.listing = d
	s.opened = nil
	s.log.Debug("search", zap.String("query", query), zap.String("url", d.url), zap.Int("cards", s.cards().Length()))
	return nil
}

func (s *Source) cards() *goquery.Selection {
	if s.listing == nil {
		return &goquery.Selection{}
	}
	return s.listing.doc.Find(s.opts.Selectors.Card)
}

func (s *Source) Count(context.Context) (int, error) {
	return s.cards().Length(), nil
}

func (s *Source) Candidate(_ context.Context, index int) (model.CandidateItem, error) {
	cards := s.cards()
	if index < 0 || index >= cards.Length() {
		return model.CandidateItem{}, source.ErrNoCandidate
	}
	card := cards.Eq(index)
	link := card.Find(s.opts.Selectors.Link).First()

	name := strings.TrimSpace(card.Find(s.opts.Selectors.Name).First().Text())
	if name == "" {
		name = strings.TrimSpace(link.AttrOr("aria-label", ""))
	}
	href := resolve(s.listing.url, link.AttrOr("href", ""))
	return model.CandidateItem{Index: index, ID: href, Name: name, Reference: href}, nil
}

func (s *Source) Open(ctx context.Context, c model.CandidateItem) error {
	s.opened = nil
	if c.Reference == "" {
		return eris.Errorf("htmlsource: candidate %d has no link", c.Index)
	}
	d, err := s.render(ctx, c.Reference, 0)
	if err != nil {
		return eris.Wrapf(err, "htmlsource: open %q", c.Name)
	}
	s.opened = d
	return nil
}

func (s *Source) Probe(_ context.Context, p source.Probe) (string, bool) {
	if s.opened == nil {
		return "", false
	}
	doc := s.opened.doc
	sel := s.opts.Selectors

	var v string
	switch p {
	case source.ProbeTelLink:
		v = doc.Find(sel.Tel).First().AttrOr("href", "")
	case source.ProbePhoneControl:
		b := doc.Find(sel.Phone).First()
		if b.Length() > 0 {
			v = b.AttrOr("data-item-id", "") + " " + b.Text()
		}
	case source.ProbeAddressControl:
		b := doc.Find(sel.Address).First()
		v = strings.TrimSpace(b.Text())
		if v == "" {
			v = strings.TrimPrefix(b.AttrOr("aria-label", ""), "Address: ")
		}
	case source.ProbeInfoPane:
		v = doc.Find(sel.Info).First().Text()
	case source.ProbeStatus:
		v = doc.Find(sel.Status).First().Text()
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Share returns the page's share metadata: its title and canonical link.
func (s *Source) Share(context.Context) (string, bool) {
	if s.opened == nil {
		return "", false
	}
	doc := s.opened.doc
	var parts []string
	for _, prop := range []string{"og:title", "og:url"} {
		if v, ok := doc.Find(`meta[property="` + prop + `"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

func (s *Source) CurrentReference(context.Context) string {
	switch {
	case s.opened != nil:
		return s.opened.url
	case s.listing != nil:
		return s.listing.url
	default:
		return ""
	}
}

func (s *Source) Next(ctx context.Context) (bool, error) {
	if s.listing == nil {
		return false, nil
	}
	href := resolve(s.listing.url, s.listing.doc.Find(s.opts.Selectors.Next).First().AttrOr("href", ""))
	if href == "" {
		return false, nil
	}
	d, err := s.render(ctx, href, 0)
	if err != nil {
		return false, eris.Wrap(err, "htmlsource: next page")
	}
	s.target = href
	s.scrolls = 0
	s.listing = d
	s.opened = nil
	return true, nil
}

// Scroll re-renders the current listing page scrolled one step further.
func (s *Source) Scroll(ctx context.Context) error {
	if s.target == "" {
		return nil
	}
	d, err := s.render(ctx, s.target, s.scrolls+1)
	if err != nil {
		return eris.Wrap(err, "htmlsource: scroll")
	}
	s.scrolls++
	s.listing = d
	return nil
}

func (s *Source) Reload(ctx context.Context) error {
	if s.query == "" {
		return eris.New("htmlsource: reload before search")
	}
	return s.Search(ctx, s.query)
}

func (s *Source) Wait(ctx context.Context, d time.Duration) error {
	return source.Sleep(ctx, d)
}

// Snapshot captures the opened page's HTML.
func (s *Source) Snapshot(context.Context) ([]byte, string, error) {
	if s.opened == nil {
		return nil, "", eris.New("htmlsource: nothing opened")
	}
	return s.opened.html, "html", nil
}

func (s *Source) render(ctx context.Context, target string, scrolls int) (*document, error) {
	cfg := s.opts.Retry
	cfg.OnRetry = resilience.RetryLogger("html", "render")
	page, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*Page, error) {
		return resilience.Guard(ctx, s.opts.Breaker, func(ctx context.Context) (*Page, error) {
			return s.renderer.Render(ctx, target, scrolls)
		})
	})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page.HTML))
	if err != nil {
		return nil, eris.Wrapf(err, "htmlsource: parse %s", page.URL)
	}
	return &document{url: page.URL, html: page.HTML, doc: doc}, nil
}

// resolve makes href absolute against base. Unparseable links resolve to "".
func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}
