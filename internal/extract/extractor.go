// Package extract resolves the fields of one opened listing through ordered
// fallback probes.
package extract

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-ledger/internal/model"
	"github.com/sells-group/listing-ledger/internal/source"
)

// ErrClosed is returned for a listing whose status probe reports it
// permanently closed, when closed listings are skipped.
var ErrClosed = eris.New("extract: listing permanently closed")

// Options configures an Extractor.
type Options struct {
	// SettleOpen is waited after opening a candidate.
	SettleOpen time.Duration
	// SkipClosed drops listings reported permanently closed.
	SkipClosed bool
	// SnapshotDir receives diagnostic captures. Empty disables them.
	SnapshotDir string
	// RunStamp prefixes snapshot file names.
	RunStamp string
	// Now supplies the capture date. Defaults to time.Now.
	Now func() time.Time
}

// Extractor resolves Entries from candidates of one source.
type Extractor struct {
	src  source.Source
	opts Options
}

// New returns an Extractor over src.
func New(src source.Source, opts Options) *Extractor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Extractor{src: src, opts: opts}
}

// phoneProbes is the priority order of direct phone affordances. The share
// panel text is tried after these.
var phoneProbes = []source.Probe{source.ProbeTelLink, source.ProbePhoneControl}

var addressProbes = []source.Probe{source.ProbeAddressControl, source.ProbeInfoPane}

// Extract opens c and resolves its phone, location reference and address.
// Missing fields resolve to sentinels and set diagnostic flags; only a failure
// to open the candidate, or a closed listing, is an error.
func (x *Extractor) Extract(ctx context.Context, c model.CandidateItem) (model.Entry, error) {
	name := c.DisplayName()
	if err := x.src.Open(ctx, c); err != nil {
		return model.Entry{}, eris.Wrapf(err, "extract: open %q", name)
	}
	if err := x.src.Wait(ctx, x.opts.SettleOpen); err != nil {
		return model.Entry{}, eris.Wrap(err, "extract: settle after open")
	}

	if x.opts.SkipClosed {
		if status, ok := x.src.Probe(ctx, source.ProbeStatus); ok && isPermanentlyClosed(status) {
			return model.Entry{}, eris.Wrapf(ErrClosed, "extract: %q", name)
		}
	}

	r := &resolver{ctx: ctx, src: x.src}
	e := model.Entry{
		Date:  x.opts.Now().Format(model.DateLayout),
		Name:  name,
		Phone: r.phone(),
	}
	e.LocationReference = r.reference()

	if addr, ok := r.address(); ok {
		e.LocationText = addr
	} else {
		e.LocationText = e.LocationReference
		e.Diagnostics |= model.AddressMissing
	}
	if e.Phone == model.Unknown {
		e.Diagnostics |= model.PhoneMissing
	}

	if e.Diagnostics != 0 {
		x.snapshot(ctx, c, e)
	}
	return e, nil
}

// resolver caches the share panel so it is triggered at most once per candidate.
type resolver struct {
	ctx       context.Context
	src       source.Source
	shared    bool
	shareText string
}

func (r *resolver) share() string {
	if !r.shared {
		r.shared = true
		if text, ok := r.src.Share(r.ctx); ok {
			r.shareText = text
		}
	}
	return r.shareText
}

func (r *resolver) phone() string {
	for _, p := range phoneProbes {
		if raw, ok := r.src.Probe(r.ctx, p); ok {
			if phone := ValidatePhone(raw); phone != model.Unknown {
				return phone
			}
		}
	}
	return ValidatePhone(r.share())
}

// exactRefRe matches references pinned to a coordinate or place id.
var exactRefRe = regexp.MustCompile(`@-?\d+(\.\d+)?,-?\d+(\.\d+)?|!3d-?\d+(\.\d+)?!4d-?\d+(\.\d+)?|[?&]query_place_id=|[?&]q=-?\d+(\.\d+)?,-?\d+(\.\d+)?|place_id:`)

var urlTokenRe = regexp.MustCompile(`https?://[^\s"'<>]+`)

// IsExactReference reports whether ref already pins a coordinate or place.
func IsExactReference(ref string) bool {
	return exactRefRe.MatchString(ref)
}

// URLToken returns the first URL-shaped token in text.
func URLToken(text string) (string, bool) {
	tok := urlTokenRe.FindString(text)
	tok = strings.TrimRight(tok, ".,;:)]}")
	return tok, tok != ""
}

func (r *resolver) reference() string {
	current := strings.TrimSpace(r.src.CurrentReference(r.ctx))
	if current != "" && IsExactReference(current) {
		return current
	}
	if tok, ok := URLToken(r.share()); ok {
		return tok
	}
	if current != "" {
		return current
	}
	return model.Unknown
}

func (r *resolver) address() (string, bool) {
	for _, p := range addressProbes {
		if v, ok := r.src.Probe(r.ctx, p); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func isPermanentlyClosed(status string) bool {
	s := strings.ToLower(status)
	return strings.Contains(s, "permanently closed") || strings.Contains(s, "closed_permanently")
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SnapshotName returns the diagnostic file name for a candidate.
func SnapshotName(stamp string, index int, name, ext string) string {
	safe := strings.Trim(unsafeNameRe.ReplaceAllString(name, "_"), "_")
	if len(safe) > 40 {
		safe = safe[:40]
	}
	if safe == "" {
		safe = "unnamed"
	}
	return stamp + "_" + strconv.Itoa(index) + "_" + safe + "." + ext
}

func (x *Extractor) snapshot(ctx context.Context, c model.CandidateItem, e model.Entry) {
	log := zap.L().With(zap.String("component", "extract"), zap.String("name", e.Name))
	log.Debug("field resolution fell back", zap.String("diagnostics", e.Diagnostics.String()))

	if x.opts.SnapshotDir == "" {
		return
	}
	snap, ok := x.src.(source.Snapshotter)
	if !ok {
		return
	}
	data, ext, err := snap.Snapshot(ctx)
	if err != nil {
		log.Warn("snapshot failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(x.opts.SnapshotDir, 0o755); err != nil {
		log.Warn("snapshot dir", zap.Error(err))
		return
	}
	path := filepath.Join(x.opts.SnapshotDir, SnapshotName(x.opts.RunStamp, c.Index, e.Name, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn("snapshot write failed", zap.Error(err))
		return
	}
	log.Info("saved diagnostic snapshot", zap.String("path", path))
}
