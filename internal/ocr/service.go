// Package ocr detects text in images that are already stored in Cloud Storage.
//
// Two backends are available:
//   - Google Cloud Vision DOCUMENT_TEXT_DETECTION (VisionDetector)
//   - a Google Document AI OCR processor (DocumentAIDetector)
//
// Both read the object directly from gs://bucket/key, so the image bytes are
// never re-uploaded. Results are returned as ordered blocks; JoinLines
// flattens the LINE blocks into the single text blob address extraction
// works on.
//
// Credentials are resolved in this order:
//   - GOOGLE_CREDENTIALS: inline JSON credentials string
//   - GOOGLE_APPLICATION_CREDENTIALS: path to service account JSON file
//   - Application Default Credentials
package ocr

import (
	"context"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"google.golang.org/api/option"
)

// BlockType classifies a detected text block.
type BlockType string

const (
	BlockPage BlockType = "PAGE"
	BlockLine BlockType = "LINE"
	BlockWord BlockType = "WORD"
)

// Block is one unit of detected text, in reading order.
type Block struct {
	Type BlockType `json:"type"`
	Text string    `json:"text"`
}

// TextDetector detects text in a stored image.
type TextDetector interface {
	// DetectText runs text detection on bucket/key and returns the detected
	// blocks in reading order. An image without text yields ErrEmptyDocument.
	DetectText(ctx context.Context, bucket, key string) ([]Block, error)
}

// JoinLines joins the text of all LINE blocks with single spaces and
// applies Normalize to the result.
func JoinLines(blocks []Block) string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == BlockLine {
			lines = append(lines, b.Text)
		}
	}
	return Normalize(strings.Join(lines, " "))
}

// Normalize applies NFKC so OCR artefacts such as non-breaking spaces and
// full-width digits compare as their ASCII forms. Text handed to address
// extraction goes through it.
func Normalize(text string) string {
	return norm.NFKC.String(text)
}

// ClientOptions returns Google client options for the credentials found in
// the environment. An empty result means Application Default Credentials.
func ClientOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

// splitLines turns a newline separated full text annotation into LINE blocks,
// dropping blank lines.
func splitLines(text string) []Block {
	var blocks []Block
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		blocks = append(blocks, Block{Type: BlockLine, Text: line})
	}
	return blocks
}
