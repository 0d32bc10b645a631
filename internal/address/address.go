// Package address locates a postal address inside flattened OCR text.
//
// Extraction is a fixed, ordered list of matchers. The first matcher that
// accepts the text wins; later matchers are never consulted. The default
// list recognises two renderer layouts:
//
//   - labeled: "... Address <address> Coordinates <lat,lng> ..."
//   - bare:    "... 123 Main St, Springfield, IL 62704 ..."
//
// Extraction never fails. Text without a recognisable address yields None.
package address

// Sentinel is the wire form of an address that could not be located.
const Sentinel = "null"

// Address is the outcome of one extraction: either a located value or None.
type Address struct {
	value string
	found bool
}

// None is the Address for "no address located".
var None = Address{}

// Found returns a located address.
func Found(value string) Address {
	return Address{value: value, found: true}
}

// Value returns the located address and whether one was found.
func (a Address) Value() (string, bool) {
	return a.value, a.found
}

// IsFound reports whether an address was located.
func (a Address) IsFound() bool {
	return a.found
}

// String returns the located address, or Sentinel for None.
// A located address may legitimately be the empty string.
func (a Address) String() string {
	if !a.found {
		return Sentinel
	}
	return a.value
}

// Strings serialises addresses for the response and record boundary.
func Strings(addrs []Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
