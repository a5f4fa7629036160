package extract

import (
	"regexp"

	"github.com/sells-group/listing-ledger/internal/model"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 13
)

var digitRunRe = regexp.MustCompile(`\d+`)

// ValidatePhone returns the first digit run in raw whose length is within
// [10, 13], or model.Unknown. Shorter runs are prices or counts; longer ones
// are identifiers.
func ValidatePhone(raw string) string {
	for _, run := range digitRunRe.FindAllString(raw, -1) {
		if n := len(run); n >= minPhoneDigits && n <= maxPhoneDigits {
			return run
		}
	}
	return model.Unknown
}
