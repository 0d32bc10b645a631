// Package server exposes batch processing over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"ingest/internal/logger"
	"ingest/internal/pipeline"
	"ingest/pkg/models"
)

const (
	// DefaultMaxBodyBytes bounds request bodies when Options.MaxBodyBytes is unset.
	DefaultMaxBodyBytes = 6 << 20

	// DefaultRequestTimeout bounds batch processing when Options.RequestTimeout is unset.
	DefaultRequestTimeout = 60 * time.Second

	requestIDHeader = "X-Request-ID"
)

// Processor runs one batch.
type Processor interface {
	Process(ctx context.Context, items []models.BatchItem) (*models.BatchSummary, error)
}

// Options configures a Server.
type Options struct {
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// Server handles batch submissions.
type Server struct {
	processor Processor
	schema    *jsonschema.Schema
	opts      Options
	log       zerolog.Logger
}

type batchRequest struct {
	Batch []json.RawMessage `json:"batch"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates a Server backed by processor.
func New(processor Processor, opts Options) (*Server, error) {
	if processor == nil {
		return nil, errors.New("server: processor is required")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	schema, err := compileRequestSchema()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	return &Server{
		processor: processor,
		schema:    schema,
		opts:      opts,
		log:       logger.WithComponent("server"),
	}, nil
}

// Handler returns the HTTP routes: GET /healthz and the batch endpoint at /.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleBatch)
	return s.withCORS(s.withRecover(mux))
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "OPTIONS, POST")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// withRecover turns a panic in a handler into a 400 general error.
func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Recovered from handler panic")
				writeError(w, http.StatusBadRequest, fmt.Sprintf("General error: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)
	log := logger.WithRequestID("server", requestID)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed.")
		return
	}

	start := time.Now()

	items, err := s.decodeRequest(w, r)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected malformed request")
		writeError(w, http.StatusBadRequest, "General error: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	summary, err := s.processor.Process(ctx, items)
	if err != nil {
		msg := errorMessage(err)
		log.Warn().Err(err).Int("items", len(items)).Msg(msg)
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	log.Info().
		Str("batch_name", summary.BatchName).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Batch request completed")
	writeJSON(w, http.StatusOK, summary)
}

// decodeRequest reads the body and returns one BatchItem per entry. Entries
// are decoded field by field; see decodeItem.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) ([]models.BatchItem, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if err := validateEnvelope(s.schema, body); err != nil {
		return nil, err
	}

	var req batchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	items := make([]models.BatchItem, len(req.Batch))
	for i, raw := range req.Batch {
		items[i] = decodeItem(raw)
	}
	return items, nil
}

// wireItem holds the raw fields of one batch entry.
type wireItem struct {
	FileName json.RawMessage `json:"fileName"`
	File     json.RawMessage `json:"file"`
	OCR      json.RawMessage `json:"ocr"`
}

// decodeItem decodes each field on its own. A fileName or file that is not
// a string is left empty; ocr follows JSON truthiness, so "ocr": "yes" or
// "ocr": 1 request detection and a bad ocr value never drops the file.
func decodeItem(raw json.RawMessage) models.BatchItem {
	var w wireItem
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.BatchItem{}
	}

	var item models.BatchItem
	_ = json.Unmarshal(w.FileName, &item.FileName)
	_ = json.Unmarshal(w.File, &item.File)
	item.OCR = truthy(w.OCR)
	return item
}

// truthy reports whether a JSON value is non-empty: true, a non-zero
// number, a non-empty string, array or object.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return false
	}
}

// errorMessage maps a processing error to the client-facing message.
func errorMessage(err error) string {
	if errors.Is(err, pipeline.ErrEmptyBatch) {
		return "No files provided."
	}
	var batchErr *pipeline.BatchError
	if errors.Is(err, pipeline.ErrBatchTooLarge) && errors.As(err, &batchErr) {
		return fmt.Sprintf("Max batch size is %d.", batchErr.Limit)
	}
	return "General error: " + err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// ListenAndServe serves Handler on addr until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.opts.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
