package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Unknown is written in place of a phone number or location reference that
// could not be resolved.
const Unknown = "NA"

// UnnamedListing is the name recorded for a listing that exposed no title.
const UnnamedListing = "N/A"

// DateLayout is the calendar-day format of Entry.Date.
const DateLayout = "2006-01-02"

// StampLayout is the capture-timestamp format embedded in ledger file names.
const StampLayout = "2006_01_02_15_04_05"

// Diagnostic flags a field that fell back to a sentinel during extraction.
type Diagnostic uint8

const (
	// PhoneMissing marks an entry whose phone resolved to Unknown.
	PhoneMissing Diagnostic = 1 << iota
	// AddressMissing marks an entry whose address fell back to the location reference.
	AddressMissing
)

// Has reports whether all bits of flag are set.
func (d Diagnostic) Has(flag Diagnostic) bool { return d&flag == flag }

// String returns a comma-separated list of set flags.
func (d Diagnostic) String() string {
	var parts []string
	if d.Has(PhoneMissing) {
		parts = append(parts, "phone_missing")
	}
	if d.Has(AddressMissing) {
		parts = append(parts, "address_missing")
	}
	return strings.Join(parts, ",")
}

// Entry is one resolved business listing.
type Entry struct {
	Date              string     `json:"date"`
	Name              string     `json:"name"`
	Phone             string     `json:"phone"`
	LocationText      string     `json:"location_text"`
	LocationReference string     `json:"location_reference"`
	Diagnostics       Diagnostic `json:"-"`
}

// Key returns the identity key of the entry.
func (e Entry) Key() IdentityKey {
	return NewIdentityKey(e.Name, e.LocationReference)
}

// IdentityKey decides whether two observations are the same real-world
// listing. It is the composite of the normalized name and the trimmed
// location reference, so same-named branches at different places coexist.
type IdentityKey struct {
	Name      string
	Reference string
}

// NewIdentityKey normalizes name and reference into an IdentityKey.
func NewIdentityKey(name, reference string) IdentityKey {
	return IdentityKey{
		Name:      NormalizeName(name),
		Reference: strings.TrimSpace(reference),
	}
}

// NormalizeName applies NFC composition, trims surrounding whitespace, and lowercases.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(name)))
}

// IsZero reports whether both key parts are empty.
func (k IdentityKey) IsZero() bool {
	return k.Name == "" && k.Reference == ""
}

func (k IdentityKey) String() string {
	return k.Name + " @ " + k.Reference
}

// KeySet is a set of identity keys.
type KeySet map[IdentityKey]struct{}

// NewKeySet returns a set holding keys.
func NewKeySet(keys ...IdentityKey) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts k.
func (s KeySet) Add(k IdentityKey) { s[k] = struct{}{} }

// Has reports whether k is present.
func (s KeySet) Has(k IdentityKey) bool {
	_, ok := s[k]
	return ok
}

// Len returns the number of keys.
func (s KeySet) Len() int { return len(s) }

// CandidateItem is a discovered listing whose fields have not been resolved yet.
// ID is an opaque handle owned by the source that produced it.
type CandidateItem struct {
	Index     int
	ID        string
	Name      string
	Reference string
}

// DisplayName returns the trimmed candidate name or UnnamedListing.
func (c CandidateItem) DisplayName() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	return UnnamedListing
}
