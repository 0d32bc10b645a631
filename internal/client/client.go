// Package client submits local images to a running batch endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ingest/internal/logger"
	"ingest/pkg/models"
)

// ImageExtensions are the file suffixes picked up when walking a folder.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// ErrRejected is returned when the endpoint answers with a non-2xx status.
var ErrRejected = errors.New("batch rejected")

// Client posts batches to one endpoint.
type Client struct {
	url  string
	http *http.Client
	log  zerolog.Logger
}

// New creates a Client for url. A nil httpClient gets a 2 minute timeout.
func New(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{url: url, http: httpClient, log: logger.WithComponent("client")}
}

// Submit posts items as one batch and returns the stored summary.
func (c *Client) Submit(ctx context.Context, items []models.BatchItem) (*models.BatchSummary, error) {
	reqID := uuid.NewString()
	start := time.Now()

	body, err := json.Marshal(map[string]any{"batch": items})
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("request_id", reqID).Msg("Batch request failed")
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log.Info().
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Int("items", len(items)).
		Dur("elapsed", time.Since(start)).
		Msg("Batch response received")

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%w (%d): %s", ErrRejected, resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("%w (%d)", ErrRejected, resp.StatusCode)
	}

	var summary models.BatchSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &summary, nil
}

// FindImages expands paths into image files. Directories are walked
// recursively; files are taken as given.
func FindImages(paths []string) ([]string, error) {
	var images []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			images = append(images, p)
			continue
		}

		err = filepath.Walk(p, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && isImage(info.Name()) {
				images = append(images, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return images, nil
}

func isImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadItem reads path into a batch item named after its base name.
func LoadItem(path string, ocr bool) (models.BatchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.BatchItem{}, err
	}
	return models.BatchItem{
		FileName: filepath.Base(path),
		File:     base64.StdEncoding.EncodeToString(data),
		OCR:      ocr,
	}, nil
}

// Chunk splits items into batches of at most size items.
func Chunk(items []models.BatchItem, size int) [][]models.BatchItem {
	if size < 1 {
		size = 1
	}
	var chunks [][]models.BatchItem
	for len(items) > 0 {
		n := min(size, len(items))
		chunks = append(chunks, items[:n])
		items = items[n:]
	}
	return chunks
}
