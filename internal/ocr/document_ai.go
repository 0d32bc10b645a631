package ocr

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"ingest/internal/logger"
)

// documentProcessor is the subset of the Document AI client the detector needs.
type documentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIConfig holds configuration for Google Document AI processing.
type DocumentAIConfig struct {
	// ProjectID is the Google Cloud project ID where Document AI is enabled.
	ProjectID string

	// Location is the processing location (e.g., "us", "eu").
	// Should match where the OCR processor is created.
	Location string

	// ProcessorID is the Document AI OCR processor ID.
	ProcessorID string

	// ProcessorVersion pins a processor version. Empty uses the default version.
	ProcessorVersion string

	// Timeout bounds a single ProcessDocument call. Default: 60 seconds.
	Timeout time.Duration
}

// supportedMimeTypes lists the image types the OCR processor accepts, by extension.
var supportedMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".pdf":  "application/pdf",
}

// DocumentAIDetector implements TextDetector using a Document AI OCR processor.
type DocumentAIDetector struct {
	client documentProcessor
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIDetector creates a Document AI client for config.
func NewDocumentAIDetector(ctx context.Context, config DocumentAIConfig) (*DocumentAIDetector, error) {
	const op = "NewDocumentAIDetector"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "project ID and processor ID are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	clientOptions := ClientOptions()
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAIDetectorWithClient(config, client), nil
}

// NewDocumentAIDetectorWithClient creates a detector with an explicit client (for testing).
func NewDocumentAIDetectorWithClient(config DocumentAIConfig, client documentProcessor) *DocumentAIDetector {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &DocumentAIDetector{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

// DetectText implements TextDetector.
func (d *DocumentAIDetector) DetectText(ctx context.Context, bucket, key string) ([]Block, error) {
	const op = "DetectText"

	mimeType, ok := supportedMimeTypes[strings.ToLower(path.Ext(key))]
	if !ok {
		return nil, WrapOCRError(op, ErrUnsupportedFormat, fmt.Sprintf("cannot determine MIME type of %q", key))
	}

	processCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: d.processorName(),
		Source: &documentaipb.ProcessRequest_GcsDocument{
			GcsDocument: &documentaipb.GcsDocument{
				GcsUri:   fmt.Sprintf("gs://%s/%s", bucket, key),
				MimeType: mimeType,
			},
		},
	}

	resp, err := d.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Document AI call failed: %v", err))
	}
	if resp.GetDocument() == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	blocks := documentBlocks(resp.GetDocument())
	if len(blocks) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, fmt.Sprintf("gs://%s/%s", bucket, key))
	}

	d.log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int("pages", len(resp.GetDocument().GetPages())).
		Int("blocks", len(blocks)).
		Msg("Text detected")
	return blocks, nil
}

// processorName constructs the full processor name for Document AI API.
func (d *DocumentAIDetector) processorName() string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
	if d.config.ProcessorVersion != "" {
		name += "/processorVersions/" + d.config.ProcessorVersion
	}
	return name
}

// documentBlocks emits one PAGE block per page followed by that page's lines.
// Documents without line layout fall back to splitting the full text.
func documentBlocks(doc *documentaipb.Document) []Block {
	text := doc.GetText()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var blocks []Block
	for _, page := range doc.GetPages() {
		var pageLines []Block
		for _, line := range page.GetLines() {
			if s := strings.TrimSpace(anchorText(text, line.GetLayout().GetTextAnchor())); s != "" {
				pageLines = append(pageLines, Block{Type: BlockLine, Text: s})
			}
		}
		if len(pageLines) == 0 {
			continue
		}
		pageText := anchorText(text, page.GetLayout().GetTextAnchor())
		blocks = append(blocks, Block{Type: BlockPage, Text: pageText})
		blocks = append(blocks, pageLines...)
	}

	if len(blocks) == 0 {
		lines := splitLines(text)
		if len(lines) == 0 {
			return nil
		}
		blocks = append([]Block{{Type: BlockPage, Text: text}}, lines...)
	}
	return blocks
}

// anchorText resolves a text anchor against the document text.
func anchorText(text string, anchor *documentaipb.Document_TextAnchor) string {
	var sb strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end > int64(len(text)) || start >= end {
			continue
		}
		sb.WriteString(text[start:end])
	}
	return sb.String()
}

// Close closes the underlying Document AI client.
func (d *DocumentAIDetector) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
