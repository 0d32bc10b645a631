package models

import "time"

// BatchItem is one image submitted as part of a batch request.
type BatchItem struct {
	FileName string `json:"fileName"` // Object name under the batch's raw and compressed prefixes
	File     string `json:"file"`     // Standard base64 encoded image bytes
	OCR      bool   `json:"ocr"`      // Run text detection and address extraction
}

// HasPayload reports whether both the file name and the payload are present.
func (i BatchItem) HasPayload() bool {
	return i.FileName != "" && i.File != ""
}

// BatchSummary is the record persisted once per batch.
type BatchSummary struct {
	// Core identifiers
	ID        string `json:"_id" bson:"-"`                 // Generated by the record store
	BatchName string `json:"batch_name" bson:"batch_name"` // Human-readable, unique per batch

	// Addresses holds one entry per submitted item, in input order.
	// Items without an address carry the literal "null".
	Addresses []string `json:"addresses" bson:"addresses"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
