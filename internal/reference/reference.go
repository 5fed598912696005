// Package reference encodes and decodes the payment reference printed on
// bank statements. The format is FLEET-{RENTALID}-{NORMALIZEDCUSTOMERNAME}.
// Only the rental id is recovered on decode; the name token is for humans.
package reference

import "strings"

// Prefix is the literal first segment of every reference
const Prefix = "FLEET"

// Decoded is the result of parsing a reference string
type Decoded struct {
	Valid    bool   `json:"valid"`
	RentalID string `json:"rental_id,omitempty"`
}

// Encode builds the reference for a rental. It never fails: an empty
// customer name leaves an empty trailing segment.
func Encode(rentalID, customerName string) string {
	return Prefix + "-" + strings.ToUpper(rentalID) + "-" + NormalizeName(customerName)
}

// NormalizeName keeps ASCII letters and digits and upper-cases them
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Decode parses FLEET-<rentalId>-<token>. The prefix is matched
// case-insensitively and the rental id is returned in its original case.
// The name token never contains a hyphen, so the rental id runs from the
// first hyphen to the last one. That keeps hyphenated ids (uuids) lossless.
func Decode(ref string) Decoded {
	ref = strings.TrimSpace(ref)
	first := strings.IndexByte(ref, '-')
	if first < 0 || !strings.EqualFold(ref[:first], Prefix) {
		return Decoded{}
	}
	rest := ref[first+1:]
	last := strings.LastIndexByte(rest, '-')
	if last <= 0 {
		// fewer than three segments, or an empty rental id
		return Decoded{}
	}
	return Decoded{Valid: true, RentalID: rest[:last]}
}
