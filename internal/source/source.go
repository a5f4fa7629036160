// Package source defines the capability set the harvester drives against an
// external, dynamically rendered listing surface. Drivers live in subpackages.
package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-ledger/internal/model"
)

// Probe names a selector set evaluated against the opened listing. Each driver
// maps a Probe onto its own concrete selectors.
type Probe string

const (
	// ProbeTelLink is a direct telephone affordance, e.g. a tel: link.
	ProbeTelLink Probe = "tel_link"
	// ProbePhoneControl is a labeled phone button or field.
	ProbePhoneControl Probe = "phone_control"
	// ProbeAddressControl is an address-labeled button or field.
	ProbeAddressControl Probe = "address_control"
	// ProbeInfoPane is the free-text block of the listing's info pane.
	ProbeInfoPane Probe = "info_pane"
	// ProbeStatus is the listing's operating-status text.
	ProbeStatus Probe = "status"
)

// Source is the external content source. Every method is a blocking call;
// callers settle with Wait after each interaction. Probe and Share report a
// miss with ok=false rather than an error.
type Source interface {
	// Search issues a query and replaces the current listing.
	Search(ctx context.Context, query string) error
	// Count returns how many candidates the listing currently shows.
	Count(ctx context.Context) (int, error)
	// Candidate returns the candidate at index in the current listing.
	Candidate(ctx context.Context, index int) (model.CandidateItem, error)
	// Open focuses a candidate so probes resolve against it.
	Open(ctx context.Context, c model.CandidateItem) error
	// Probe evaluates a selector set against the opened candidate.
	Probe(ctx context.Context, p Probe) (string, bool)
	// Share triggers a share-style affordance and returns its panel text.
	Share(ctx context.Context) (string, bool)
	// CurrentReference returns the reference of the current page or listing.
	CurrentReference(ctx context.Context) string
	// Next follows an explicit next-page affordance. advanced is false when
	// the source offers none.
	Next(ctx context.Context) (advanced bool, err error)
	// Scroll asks the listing to reveal more candidates.
	Scroll(ctx context.Context) error
	// Reload re-issues the last search.
	Reload(ctx context.Context) error
	// Wait blocks for d or until ctx is done.
	Wait(ctx context.Context, d time.Duration) error
}

// Snapshotter is implemented by sources that can capture the opened listing
// for later inspection. ext is the file extension without a dot.
type Snapshotter interface {
	Snapshot(ctx context.Context) (data []byte, ext string, err error)
}

// ErrNoCandidate is returned by Candidate for an index outside the listing.
var ErrNoCandidate = eris.New("source: no candidate at index")

// Sleep blocks for d or until ctx is done. Drivers use it to implement Wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
