package ocr

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"

	"ingest/internal/logger"
)

// imageAnnotator is the subset of the Vision client the detector needs.
type imageAnnotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// VisionDetector implements TextDetector using Google Cloud Vision API.
type VisionDetector struct {
	client imageAnnotator
	log    zerolog.Logger
}

// NewVisionDetector creates a Vision client with credentials from environment.
func NewVisionDetector(ctx context.Context) (*VisionDetector, error) {
	const op = "NewVisionDetector"

	opts := ClientOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return NewVisionDetectorWithClient(client), nil
}

// NewVisionDetectorWithClient creates a detector with an explicit client (for testing).
func NewVisionDetectorWithClient(client imageAnnotator) *VisionDetector {
	return &VisionDetector{
		client: client,
		log:    logger.WithComponent("vision"),
	}
}

// DetectText implements TextDetector.
func (v *VisionDetector) DetectText(ctx context.Context, bucket, key string) ([]Block, error) {
	const op = "DetectText"

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{
					Source: &visionpb.ImageSource{
						GcsImageUri: fmt.Sprintf("gs://%s/%s", bucket, key),
					},
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	imgResp := resp.Responses[0]
	if imgResp.Error != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", imgResp.Error.Message))
	}

	blocks := v.processVisionResponse(imgResp)
	if len(blocks) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, fmt.Sprintf("gs://%s/%s", bucket, key))
	}

	v.log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int("blocks", len(blocks)).
		Msg("Text detected")
	return blocks, nil
}

// processVisionResponse converts a Vision response into a PAGE block followed
// by LINE blocks and WORD blocks.
func (v *VisionDetector) processVisionResponse(resp *visionpb.AnnotateImageResponse) []Block {
	full := resp.GetFullTextAnnotation().GetText()
	if full == "" && len(resp.TextAnnotations) > 0 {
		// The first text annotation spans the whole image.
		full = resp.TextAnnotations[0].GetDescription()
	}

	lines := splitLines(full)
	if len(lines) == 0 {
		return nil
	}

	blocks := make([]Block, 0, 1+len(lines)+len(resp.TextAnnotations))
	blocks = append(blocks, Block{Type: BlockPage, Text: full})
	blocks = append(blocks, lines...)
	for i, ann := range resp.TextAnnotations {
		if i == 0 {
			continue
		}
		blocks = append(blocks, Block{Type: BlockWord, Text: ann.GetDescription()})
	}
	return blocks
}

// Close closes the underlying Vision client.
func (v *VisionDetector) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
