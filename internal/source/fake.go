package source

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-ledger/internal/model"
)

// Listing is one canned listing served by Fake.
type Listing struct {
	ID        string
	Name      string
	Reference string
	TelHref   string
	PhoneText string
	Address   string
	Info      string
	ShareText string
	Status    string
	OpenErr   error
}

// Paging selects how Fake reveals further pages.
type Paging int

const (
	// PagingNext replaces the listing with the next page on Next.
	PagingNext Paging = iota
	// PagingScroll appends the next page to the listing on Scroll.
	PagingScroll
)

// FakeOptions configures a Fake.
type FakeOptions struct {
	Pages  [][]Listing
	Paging Paging
	// EmptyCounts is how many Count calls report zero before the listing shows.
	EmptyCounts int
	// SearchFailures is how many Search calls fail before one succeeds.
	SearchFailures int
	Snapshot       []byte
}

// Fake is a deterministic in-memory Source. It never sleeps; waits are
// recorded instead.
type Fake struct {
	opts       FakeOptions
	page       int
	visible    []Listing
	current    *Listing
	zeroLeft   int
	failLeft   int
	lastQuery  string
	Queries    []string
	Waits      []time.Duration
	Opened     []string
	Scrolls    int
	Reloads    int
	NextCalls  int
	CountCalls int
}

// NewFake returns a Fake serving opts.
func NewFake(opts FakeOptions) *Fake {
	return &Fake{opts: opts, zeroLeft: opts.EmptyCounts, failLeft: opts.SearchFailures}
}

func (f *Fake) Search(_ context.Context, query string) error {
	f.Queries = append(f.Queries, query)
	if f.failLeft > 0 {
		f.failLeft--
		return eris.Errorf("fake: search %q failed", query)
	}
	f.lastQuery = query
	f.reset()
	return nil
}

func (f *Fake) reset() {
	f.page = 0
	f.current = nil
	f.visible = nil
	if len(f.opts.Pages) > 0 {
		f.visible = append(f.visible, f.opts.Pages[0]...)
	}
}

func (f *Fake) Count(_ context.Context) (int, error) {
	f.CountCalls++
	if f.zeroLeft > 0 {
		f.zeroLeft--
		return 0, nil
	}
	return len(f.visible), nil
}

func (f *Fake) Candidate(_ context.Context, index int) (model.CandidateItem, error) {
	if index < 0 || index >= len(f.visible) {
		return model.CandidateItem{}, ErrNoCandidate
	}
	l := f.visible[index]
	return model.CandidateItem{Index: index, ID: l.ID, Name: l.Name, Reference: l.Reference}, nil
}

func (f *Fake) Open(_ context.Context, c model.CandidateItem) error {
	f.Opened = append(f.Opened, c.ID)
	for i := range f.visible {
		if f.visible[i].ID == c.ID {
			f.current = &f.visible[i]
			return f.current.OpenErr
		}
	}
	return eris.Errorf("fake: unknown candidate %q", c.ID)
}

func (f *Fake) Probe(_ context.Context, p Probe) (string, bool) {
	if f.current == nil {
		return "", false
	}
	var v string
	switch p {
	case ProbeTelLink:
		v = f.current.TelHref
	case ProbePhoneControl:
		v = f.current.PhoneText
	case ProbeAddressControl:
		v = f.current.Address
	case ProbeInfoPane:
		v = f.current.Info
	case ProbeStatus:
		v = f.current.Status
	}
	return v, v != ""
}

func (f *Fake) Share(_ context.Context) (string, bool) {
	if f.current == nil || f.current.ShareText == "" {
		return "", false
	}
	return f.current.ShareText, true
}

func (f *Fake) CurrentReference(_ context.Context) string {
	if f.current != nil && f.current.Reference != "" {
		return f.current.Reference
	}
	if f.lastQuery == "" {
		return ""
	}
	return "https://fake.local/search/" + url.PathEscape(f.lastQuery)
}

func (f *Fake) Next(_ context.Context) (bool, error) {
	f.NextCalls++
	if f.opts.Paging != PagingNext || f.page+1 >= len(f.opts.Pages) {
		return false, nil
	}
	f.page++
	f.visible = append([]Listing(nil), f.opts.Pages[f.page]...)
	f.current = nil
	return true, nil
}

func (f *Fake) Scroll(_ context.Context) error {
	f.Scrolls++
	if f.opts.Paging != PagingScroll || f.page+1 >= len(f.opts.Pages) {
		return nil
	}
	f.page++
	f.visible = append(f.visible, f.opts.Pages[f.page]...)
	return nil
}

func (f *Fake) Reload(_ context.Context) error {
	f.Reloads++
	f.reset()
	return nil
}

func (f *Fake) Wait(ctx context.Context, d time.Duration) error {
	f.Waits = append(f.Waits, d)
	return ctx.Err()
}

func (f *Fake) Snapshot(_ context.Context) ([]byte, string, error) {
	if f.opts.Snapshot == nil {
		return nil, "", eris.New("fake: no snapshot")
	}
	return f.opts.Snapshot, "html", nil
}
