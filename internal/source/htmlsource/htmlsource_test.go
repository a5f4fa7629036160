package htmlsource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-ledger/internal/extract"
	"github.com/sells-group/listing-ledger/internal/model"
	"github.com/sells-group/listing-ledger/internal/resilience"
	"github.com/sells-group/listing-ledger/internal/source"
	"github.com/sells-group/listing-ledger/pkg/firecrawl"
)

const listingHTML = `<html><body><div role="feed">
<div class="Nv2PK"><a class="hfpxzc" aria-label="Chips Corner" href="/maps/place/Chips+Corner/@12.97,77.64,17z"></a><div class="qBF1Pd">Chips Corner</div></div>
<div class="Nv2PK"><a class="hfpxzc" aria-label="Hot Chips" href="/maps/place/Hot+Chips/@12.98,77.65,17z"></a></div>
</div>
<a aria-label="Next" href="/page2">Next</a>
</body></html>`

const page2HTML = `<html><body>
<div class="Nv2PK"><a class="hfpxzc" href="/maps/place/Banana+Chips/@12.99,77.66,17z"></a><div class="qBF1Pd">Banana Chips</div></div>
</body></html>`

const placeHTML = `<html><head>
<meta property="og:title" content="Chips Corner">
<meta property="og:url" content="https://maps.app.goo.gl/abc123">
</head><body>
<a href="tel:+919845012345">Call</a>
<button data-item-id="phone:tel:09845012345"><div>098450 12345</div></button>
<button data-item-id="address" aria-label="Address: 12 CMH Road"><div>12 CMH Road, Indiranagar</div></button>
<span class="fCEvvc">Permanently closed</span>
</body></html>`

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

type mapsServer struct {
	*httptest.Server
	mu        sync.Mutex
	searches  []string
	failFirst atomic.Int32
	hits      atomic.Int32
}

func newMapsServer(t *testing.T) *mapsServer {
	t.Helper()
	ms := &mapsServer{}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ms.hits.Add(1)
		if n <= ms.failFirst.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/maps/search/"):
			ms.mu.Lock()
			ms.searches = append(ms.searches, strings.TrimPrefix(r.URL.Path, "/maps/search/"))
			ms.mu.Unlock()
			if strings.Contains(r.URL.Path, "Atlantis") {
				_, _ = w.Write([]byte("<html><body></body></html>"))
				return
			}
			_, _ = w.Write([]byte(listingHTML))
		case r.URL.Path == "/page2":
			_, _ = w.Write([]byte(page2HTML))
		case strings.HasPrefix(r.URL.Path, "/maps/place/"):
			_, _ = w.Write([]byte(placeHTML))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ms.Close)
	return ms
}

func (ms *mapsServer) source() *Source {
	return New(NewDirectRenderer("test-agent", 5*time.Second), Options{
		SearchURL: ms.URL + "/maps/search/",
		Retry:     fastRetry,
	})
}

func TestSource_SearchListsCandidates(t *testing.T) {
	ms := newMapsServer(t)
	s := ms.source()
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, "Indiranagar hot chips"))
	ms.mu.Lock()
	assert.Equal(t, []string{"Indiranagar hot chips"}, ms.searches)
	ms.mu.Unlock()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c0, err := s.Candidate(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Chips Corner", c0.Name)
	assert.Equal(t, ms.URL+"/maps/place/Chips+Corner/@12.97,77.64,17z", c0.Reference)
	assert.Equal(t, c0.Reference, c0.ID)

	c1, err := s.Candidate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Hot Chips", c1.Name, "falls back to the link label")

	_, err = s.Candidate(ctx, 2)
	assert.ErrorIs(t, err, source.ErrNoCandidate)

	assert.Contains(t, s.CurrentReference(ctx), "/maps/search/")
}

func TestSource_EmptyListing(t *testing.T) {
	ms := newMapsServer(t)
	s := ms.source()
	require.NoError(t, s.Search(context.Background(), "Atlantis"))
	n, _ := s.Count(context.Background())
	assert.Zero(t, n)
}

func TestSource_BeforeSearch(t *testing.T) {
	s := New(NewDirectRenderer("", 0), Options{})
	ctx := context.Background()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, s.CurrentReference(ctx))
	advanced, err := s.Next(ctx)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.NoError(t, s.Scroll(ctx))
	assert.Error(t, s.Reload(ctx))
	_, _, err = s.Snapshot(ctx)
	assert.Error(t, err)
}

func TestSource_NextFollowsLink(t *testing.T) {
	ms := newMapsServer(t)
	s := ms.source()
	ctx := context.Background()
	require.NoError(t, s.Search(ctx, "q"))

	advanced, err := s.Next(ctx)
	require.NoError(t, err)
	assert.True(t, advanced)
	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)
	c, _ := s.Candidate(ctx, 0)
	assert.Equal(t, "Banana Chips", c.Name)

	advanced, err = s.Next(ctx)
	require.NoError(t, err)
	assert.False(t, advanced, "last page has no next link")
}

func TestSource_OpenAndProbe(t *testing.T) {
	ms := newMapsServer(t)
	s := ms.source()
	ctx := context.Background()
	require.NoError(t, s.Search(ctx, "q"))
	c, _ := s.Candidate(ctx, 0)

	_, ok := s.Probe(ctx, source.ProbeTelLink)
	assert.False(t, ok, "nothing opened yet")

	require.NoError(t, s.Open(ctx, c))

	tel, ok := s.Probe(ctx, source.ProbeTelLink)
	require.True(t, ok)
	assert.Equal(t, "tel:+919845012345", tel)

	phone, ok := s.Probe(ctx, source.ProbePhoneControl)
	require.True(t, ok)
	assert.Equal(t, "phone:tel:09845012345 098450 12345", phone)

	addr, ok := s.Probe(ctx, source.ProbeAddressControl)
	require.True(t, ok)
	assert.Equal(t, "12 CMH Road, Indiranagar", addr)

	_, ok = s.Probe(ctx, source.ProbeInfoPane)
	assert.False(t, ok)

	status, ok := s.Probe(ctx, source.ProbeStatus)
	require.True(t, ok)
	assert.Equal(t, "Permanently closed", status)

	share, ok := s.Share(ctx)
	require.True(t, ok)
	assert.Equal(t, "Chips Corner\nhttps://maps.app.goo.gl/abc123", share)

	assert.Contains(t, s.CurrentReference(ctx), "@12.97,77.64")

	data, ext, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "html", ext)
	assert.Contains(t, string(data), "og:url")
}

func TestSource_OpenWithoutLink(t *testing.T) {
	s := New(NewDirectRenderer("", 0), Options{})
	err := s.Open(context.Background(), model.CandidateItem{Index: 3, Name: "No Link"})
	assert.Error(t, err)
}

func TestSource_ExtractsEntry(t *testing.T) {
	ms := newMapsServer(t)
	s := ms.source()
	ctx := context.Background()
	require.NoError(t, s.Search(ctx, "q"))
	c, _ := s.Candidate(ctx, 0)

	e, err := extract.New(s, extract.Options{}).Extract(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "919845012345", e.Phone)
	assert.Equal(t, "12 CMH Road, Indiranagar", e.LocationText)
	assert.Contains(t, e.LocationReference, "@12.97,77.64")

	_, err = extract.New(s, extract.Options{SkipClosed: true}).Extract(ctx, c)
	assert.ErrorIs(t, err, extract.ErrClosed)
}

func TestSource_RetriesTransientStatus(t *testing.T) {
	ms := newMapsServer(t)
	ms.failFirst.Store(2)
	s := ms.source()
	require.NoError(t, s.Search(context.Background(), "q"))
	assert.Equal(t, int32(3), ms.hits.Load())
}

func TestSource_DoesNotRetryNotFound(t *testing.T) {
	ms := newMapsServer(t)
	s := New(NewDirectRenderer("", time.Second), Options{SearchURL: ms.URL + "/missing/", Retry: fastRetry})
	err := s.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), ms.hits.Load())
}

func TestDirectRenderer_SendsUserAgent(t *testing.T) {
	agent := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	t.Cleanup(srv.Close)

	page, err := NewDirectRenderer("ledger-test/1.0", time.Second).Render(context.Background(), srv.URL+"/x", 3)
	require.NoError(t, err)
	assert.Equal(t, "ledger-test/1.0", <-agent)
	assert.Equal(t, srv.URL+"/x", page.URL)
	assert.Equal(t, "<p>ok</p>", string(page.HTML))
}

// fakeScraper renders one card per scroll action plus one.
type fakeScraper struct {
	reqs []firecrawl.ScrapeRequest
	errs []error
}

func (f *fakeScraper) Scrape(_ context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	f.reqs = append(f.reqs, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	scrolls := 0
	for _, a := range req.Actions {
		if a.Type == "scroll" {
			scrolls++
		}
	}
	var b strings.Builder
	for i := 0; i <= scrolls; i++ {
		fmt.Fprintf(&b, `<div class="Nv2PK"><a class="hfpxzc" href="/maps/place/p%d/@1,2,3z"></a><div class="qBF1Pd">Shop %d</div></div>`, i, i)
	}
	return &firecrawl.ScrapeResponse{Success: true, Data: firecrawl.PageData{
		RawHTML:  b.String(),
		Metadata: firecrawl.Metadata{URL: "https://www.google.com/maps/search/q/@12.9,77.6,14z", StatusCode: 200},
	}}, nil
}

func TestFirecrawlRenderer_ScrollGrowsListing(t *testing.T) {
	fs := &fakeScraper{}
	s := New(NewFirecrawlRenderer(fs, 2*time.Second, 1500*time.Millisecond), Options{
		SearchURL: "https://www.google.com/maps/search/",
		Retry:     fastRetry,
	})
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, "Indiranagar hot chips"))
	require.Len(t, fs.reqs, 1)
	assert.Equal(t, "https://www.google.com/maps/search/Indiranagar%20hot%20chips", fs.reqs[0].URL)
	assert.Equal(t, []string{firecrawl.FormatRawHTML}, fs.reqs[0].Formats)
	assert.Equal(t, 2000, fs.reqs[0].WaitFor)
	assert.Empty(t, fs.reqs[0].Actions)

	require.NoError(t, s.Scroll(ctx))
	require.NoError(t, s.Scroll(ctx))
	assert.Len(t, fs.reqs[2].Actions, 4)
	assert.Equal(t, 1500, fs.reqs[2].Actions[1].Milliseconds)

	n, _ := s.Count(ctx)
	assert.Equal(t, 3, n)
	c, _ := s.Candidate(ctx, 2)
	assert.Equal(t, "https://www.google.com/maps/place/p2/@1,2,3z", c.Reference)

	require.NoError(t, s.Reload(ctx))
	n, _ = s.Count(ctx)
	assert.Equal(t, 1, n, "reload starts from the top")
}

func TestFirecrawlRenderer_RetriesRateLimit(t *testing.T) {
	fs := &fakeScraper{errs: []error{&firecrawl.APIError{StatusCode: 429, Body: "slow down"}}}
	s := New(NewFirecrawlRenderer(fs, 0, 0), Options{SearchURL: "https://www.google.com/maps/search/", Retry: fastRetry})
	require.NoError(t, s.Search(context.Background(), "q"))
	assert.Len(t, fs.reqs, 2)
}

func TestFirecrawlRenderer_PageStatus(t *testing.T) {
	fs := &fakeScraper{}
	r := NewFirecrawlRenderer(fs, 0, 0)
	page, err := r.Render(context.Background(), "https://example.com", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://www.google.com/maps/search/q/@12.9,77.6,14z", page.URL)

	fs.errs = []error{&firecrawl.APIError{StatusCode: 402, Body: "payment required"}}
	_, err = r.Render(context.Background(), "https://example.com", 0)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "https://a.test/maps/place/x", resolve("https://a.test/maps/search/q", "/maps/place/x"))
	assert.Equal(t, "https://b.test/y", resolve("https://a.test/", "https://b.test/y"))
	assert.Empty(t, resolve("https://a.test/", "  "))
}

func TestSource_BreakerStopsRenders(t *testing.T) {
	ms := newMapsServer(t)
	ms.failFirst.Store(100)
	s := New(NewDirectRenderer("", time.Second), Options{
		SearchURL: ms.URL + "/maps/search/",
		Retry:     fastRetry,
		Breaker:   resilience.NewBreaker("html", 2, time.Minute),
	})

	err := s.Search(context.Background(), "q")
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.Equal(t, int32(2), ms.hits.Load())

	err = s.Search(context.Background(), "q")
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.Equal(t, int32(2), ms.hits.Load(), "no request while open")
}
