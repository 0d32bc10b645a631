package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ingest/internal/blob"
	"ingest/internal/config"
	"ingest/internal/logger"
	"ingest/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [gs://bucket/key | image-file]",
	Short: "Detect text in an image and extract its address",
	Long: `Run text detection on a stored object or a local image and print the detected
lines, the joined text and the extracted address.

A local image is uploaded to RAW_BUCKET under ocr-check/ for detection and
removed afterwards.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  RAW_BUCKET - Bucket used for local images
  DOCUMENT_AI_PROCESSOR_ID - OCR processor ID (OCR_PROVIDER=documentai)`,
	Example: `  # Detect text in a stored object
  ingest ocr "gs://raw-images/Batch 1a2b3c4d - 07/04/24-09-30-15/raw/site.png"

  # Upload a local image and print JSON
  ingest ocr ./site.png --json

  # Use Document AI instead of Vision
  ingest ocr ./site.png --provider documentai`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Source             string   `json:"source"`
	Lines              []string `json:"lines"`
	Text               string   `json:"text"`
	Address            string   `json:"address"`
	Rule               string   `json:"rule,omitempty"`
	ProcessingDuration string   `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().String("provider", "", "OCR provider: vision or documentai (default: OCR_PROVIDER)")
	ocrCmd.Flags().String("rules", "", "YAML address rules file (default: ADDRESS_RULES_FILE)")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	provider, _ := cmd.Flags().GetString("provider")
	rulesPath, _ := cmd.Flags().GetString("rules")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if provider != "" {
		cfg.OCRProvider = provider
	}
	switch cfg.OCRProvider {
	case config.OCRVision, config.OCRDocumentAI:
	default:
		return fmt.Errorf("OCR provider %q cannot detect text; choose vision or documentai with --provider", cfg.OCRProvider)
	}
	if rulesPath == "" {
		rulesPath = cfg.AddressRulesFile
	}

	extractor, err := createExtractor(rulesPath)
	if err != nil {
		return fmt.Errorf("failed to load address rules: %w", err)
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	if err := checkCredentials(log); err != nil {
		return err
	}

	detector, closeDetector, err := createTextDetector(ctx, cfg)
	if err != nil {
		return handleOCRError(err, log)
	}
	defer closeDetector(context.Background())

	bucket, key, cleanup, err := resolveOCRSource(ctx, cfg, args[0], log)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info().
		Str("provider", cfg.OCRProvider).
		Str("uri", blob.URI(bucket, key)).
		Msg("Starting text detection")

	startTime := time.Now()
	blocks, err := detector.DetectText(ctx, bucket, key)
	if err != nil {
		return handleOCRError(err, log)
	}

	var lines []string
	for _, b := range blocks {
		if b.Type == ocr.BlockLine {
			lines = append(lines, b.Text)
		}
	}
	text := ocr.JoinLines(blocks)
	addr, rule := extractor.ExtractWithRule(text)

	log.Info().
		Int("blocks", len(blocks)).
		Int("lines", len(lines)).
		Bool("address_found", addr.IsFound()).
		Dur("duration", time.Since(startTime)).
		Msg("Text detection completed successfully")

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(OCROutput{
			Source:             args[0],
			Lines:              lines,
			Text:               text,
			Address:            addr.String(),
			Rule:               rule,
			ProcessingDuration: time.Since(startTime).String(),
		})
	}

	fmt.Fprintf(out, "=== Lines (%d) ===\n", len(lines))
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	fmt.Fprintln(out, "\n=== Text ===")
	fmt.Fprintln(out, text)
	fmt.Fprintln(out, "\n=== Address ===")
	fmt.Fprintln(out, addr.String())
	return nil
}

// resolveOCRSource returns the bucket and key to run detection on. Local
// files are uploaded first; cleanup removes that upload.
func resolveOCRSource(ctx context.Context, cfg *config.Config, src string, log zerolog.Logger) (string, string, func(), error) {
	if rest, ok := strings.CutPrefix(src, "gs://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return "", "", nil, fmt.Errorf("invalid object URI %q: expected gs://bucket/key", src)
		}
		return bucket, key, func() {}, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return "", "", nil, fmt.Errorf("image file is empty: %s", src)
	}

	blobs, closeBlobs, err := createBlobStore(ctx, cfg)
	if err != nil {
		return "", "", nil, err
	}

	key := fmt.Sprintf("ocr-check/%s/%s", uuid.NewString(), filepath.Base(src))
	if err := blobs.Put(ctx, cfg.RawBucket, key, data); err != nil {
		_ = closeBlobs(ctx)
		return "", "", nil, fmt.Errorf("failed to upload image: %w", err)
	}

	cleanup := func() {
		if err := blobs.Delete(context.Background(), cfg.RawBucket, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to remove uploaded image")
		}
		_ = closeBlobs(context.Background())
	}
	return cfg.RawBucket, key, cleanup, nil
}

// checkCredentials fails early when no Google credentials are configured
// and Application Default Credentials are unlikely to be present.
func checkCredentials(log zerolog.Logger) error {
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" || os.Getenv("GOOGLE_CREDENTIALS") != "" {
		return nil
	}
	home, _ := os.UserHomeDir()
	if _, err := os.Stat(filepath.Join(home, ".config", "gcloud", "application_default_credentials.json")); err == nil {
		log.Debug().Msg("Using Application Default Credentials")
		return nil
	}

	log.Error().Msg("Google Cloud credentials not configured")
	return fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
		"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
		"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
		"2. Export GOOGLE_CREDENTIALS with inline JSON\n\n" +
		"3. Use Application Default Credentials:\n" +
		"   gcloud auth application-default login")
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Text detection failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("text detection timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("text detection was canceled")
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the image")
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		return fmt.Errorf("unsupported image format: %w", err)
	case errors.Is(err, ocr.ErrInvalidConfiguration):
		return fmt.Errorf("OCR is not configured correctly: %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Check GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. The service account needs read access to the bucket and the OCR API user role")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") ||
		strings.Contains(errStr, "quota"):
		return fmt.Errorf("OCR API quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("text detection failed. This may be due to network issues or service unavailability: %w", err)
	default:
		return fmt.Errorf("text detection failed: %w", err)
	}
}
