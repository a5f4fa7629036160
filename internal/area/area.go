// Package area validates the area name a run is scoped to.
package area

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-ledger/internal/source"
)

var (
	// ErrInvalid is wrapped by Check for names rejected without a probe.
	ErrInvalid = eris.New("area: invalid name")
	// ErrNotFound is returned when the source probe cannot confirm an area.
	ErrNotFound = eris.New("area: not found on source")
	// ErrFatalPrecondition is returned once the attempt budget is spent. It
	// is the only error that stops a run before extraction starts.
	ErrFatalPrecondition = eris.New("area: validation failed")
)

// Check applies the local rules: non-empty, not purely numeric, and at least
// two letters.
func Check(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return eris.Wrap(ErrInvalid, "area name is empty")
	}

	letters, digits, others := 0, 0, 0
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		case !unicode.IsSpace(r):
			others++
		}
	}
	if letters == 0 && others == 0 && digits > 0 {
		return eris.Wrapf(ErrInvalid, "area name %q is numeric", name)
	}
	if letters < 2 {
		return eris.Wrapf(ErrInvalid, "area name %q needs at least two letters", name)
	}
	return nil
}

// Prompt asks for a replacement name after a rejected attempt.
type Prompt func(ctx context.Context, attempt int, reason error) (string, error)

// Options configures a Validator.
type Options struct {
	// MaxAttempts bounds how many names are tried. Defaults to 2.
	MaxAttempts int
	// Region is appended to the probe query to disambiguate the area.
	Region string
	// Settle is waited after the probe search.
	Settle time.Duration
	// Prompt supplies the next name. Nil means a single attempt.
	Prompt Prompt
}

// Validator checks names locally and confirms them with a source probe.
type Validator struct {
	src  source.Source
	opts Options
}

// NewValidator returns a Validator probing src.
func NewValidator(src source.Source, opts Options) *Validator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 2
	}
	return &Validator{src: src, opts: opts}
}

// Validate returns the first accepted name, starting from name. When every
// attempt is rejected it returns an error wrapping ErrFatalPrecondition.
func (v *Validator) Validate(ctx context.Context, name string) (string, error) {
	log := zap.L().With(zap.String("component", "area"))

	var last error
	for attempt := 1; attempt <= v.opts.MaxAttempts; attempt++ {
		last = v.Confirm(ctx, name)
		if last == nil {
			name = strings.TrimSpace(name)
			log.Info("area confirmed", zap.String("area", name), zap.Int("attempt", attempt))
			return name, nil
		}
		log.Warn("area rejected", zap.String("area", name), zap.Int("attempt", attempt), zap.Error(last))

		if attempt == v.opts.MaxAttempts || v.opts.Prompt == nil {
			break
		}
		next, err := v.opts.Prompt(ctx, attempt, last)
		if err != nil {
			return "", eris.Wrapf(ErrFatalPrecondition, "area: prompt: %v", err)
		}
		name = next
	}
	return "", eris.Wrapf(ErrFatalPrecondition, "area: %v", last)
}

// Confirm runs the local checks and, if they pass, probes the source.
func (v *Validator) Confirm(ctx context.Context, name string) error {
	if err := Check(name); err != nil {
		return err
	}

	query := strings.TrimSpace(name)
	if v.opts.Region != "" {
		query += ", " + v.opts.Region
	}
	if err := v.src.Search(ctx, query); err != nil {
		return eris.Wrapf(ErrNotFound, "area: probe %q: %v", query, err)
	}
	if err := v.src.Wait(ctx, v.opts.Settle); err != nil {
		return eris.Wrap(err, "area: settle after probe")
	}

	if n, err := v.src.Count(ctx); err == nil && n > 0 {
		return nil
	}
	if ref := v.src.CurrentReference(ctx); strings.Contains(ref, "/search/") || strings.Contains(ref, "/place/") {
		return nil
	}
	return eris.Wrapf(ErrNotFound, "area: %q", query)
}
