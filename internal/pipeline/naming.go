package pipeline

import (
	"fmt"
	"time"
)

// batchTimeLayout renders as MM/DD/YY-HH-MM-SS.
const batchTimeLayout = "01/02/06-15-04-05"

// BatchName returns "Batch <first 8 chars of id> - <UTC timestamp>".
func BatchName(id string, now time.Time) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Batch %s - %s", id, now.UTC().Format(batchTimeLayout))
}

// RawPrefix is the hot-storage folder holding a batch's original uploads.
func RawPrefix(batchName string) string {
	return batchName + "/raw/"
}

// CompressedPrefix is the archive folder holding a batch's compressed copies.
func CompressedPrefix(batchName string) string {
	return batchName + "/compressed/"
}
