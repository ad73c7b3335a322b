package invoice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`^([A-Z][A-Z0-9]*)-(\d{4})-(\d{4,})$`)

// PrefixFor returns the numbering prefix for an issuing entity.
func PrefixFor(e EntityCode) string {
	switch e {
	case EntityKD, EntityKTS, EntityKR:
		return strings.ToUpper(string(e))
	}
	return "INV"
}

// FormatNumber renders PREFIX-YYYY-NNNN, zero padded to four digits.
func FormatNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%04d", strings.ToUpper(prefix), year, seq)
}

// ParseNumber splits an invoice number into its parts.
func ParseNumber(number string) (prefix string, year int, seq int64, err error) {
	m := numberPattern.FindStringSubmatch(number)
	if m == nil {
		return "", 0, 0, fmt.Errorf("invoice: malformed number %q", number)
	}
	year, _ = strconv.Atoi(m[2])
	seq, err = strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invoice: malformed sequence in %q: %w", number, err)
	}
	return m[1], year, seq, nil
}
