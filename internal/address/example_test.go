package address_test

import (
	"fmt"

	"ingest/internal/address"
)

// Example shows both built-in layouts and the not-found case.
func Example() {
	ext := address.Default()

	for _, text := range []string{
		"Apple Park Address 1 Infinite Loop, Cupertino, CA 95014 Coordinates 37.33,-122.03",
		"Visit us at 456 Oak Ave, Metropolis, NY 10001 for details",
		"Thank you for your purchase",
	} {
		fmt.Println(ext.Extract(text))
	}
	// Output:
	// 1 Infinite Loop, Cupertino, CA 95014
	// 456 Oak Ave, Metropolis, NY 10001
	// null
}
