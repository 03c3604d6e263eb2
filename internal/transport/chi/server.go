// Package chi exposes the /kb HTTP API on a go-chi router.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/extract"
	"github.com/kailas-cloud/docdex/internal/splitter"
	collectionuc "github.com/kailas-cloud/docdex/internal/usecase/collection"
	documentuc "github.com/kailas-cloud/docdex/internal/usecase/document"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/docdex/internal/usecase/ingest"
	queryuc "github.com/kailas-cloud/docdex/internal/usecase/query"
	"github.com/kailas-cloud/docdex/internal/version"
)

// Error codes returned in the JSON error body.
const (
	codeBadRequest        = "bad_request"
	codeUnauthorized      = "unauthorized"
	codeValidationFailed  = "validation_failed"
	codeNotFound          = "collection_not_found"
	codeAlreadyExists     = "collection_already_exists"
	codeNameConflict      = "name_conflict"
	codeUnsupportedFile   = "unsupported_file_type"
	codeDimensionMismatch = "dimension_mismatch"
	codeEmbeddingUpstream = "embedding_unavailable"
	codeInternalError     = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server hosts the /kb API handlers.
type Server struct {
	collections    *collectionuc.Service
	ingest         *ingestuc.Service
	query          *queryuc.Service
	documents      *documentuc.Service
	health         *healthuc.Service
	logger         *zap.Logger
	maxUploadBytes int64
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	collections *collectionuc.Service,
	ingest *ingestuc.Service,
	query *queryuc.Service,
	documents *documentuc.Service,
	health *healthuc.Service,
	maxUploadBytes int64,
	logger *zap.Logger,
) *Server {
	s := &Server{
		collections:    collections,
		ingest:         ingest,
		query:          query,
		documents:      documents,
		health:         health,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, codeAlreadyExists),
		sentinelHandler(domain.ErrNameConflict, http.StatusConflict, codeNameConflict),
		sentinelHandler(domain.ErrInvalidParameter, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrUnsupportedFileType, http.StatusBadRequest, codeUnsupportedFile),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeDimensionMismatch),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, codeEmbeddingUpstream),
	}
	return s
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/", s.Banner)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/kb/split-strategies", s.SplitStrategies)

	r.Post("/kb/create", s.CreateKB)
	r.Get("/kb/list", s.ListKB)
	r.Post("/kb/{name}/upload", s.Upload)
	r.Post("/kb/{name}/query", s.Query)
	r.Get("/kb/{name}/docs", s.ListDocs)
	r.Delete("/kb/{name}/docs", s.DeleteDocs)
	r.Delete("/kb/{name}", s.DeleteKB)
}

// Banner handles GET /.
func (s *Server) Banner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "docdex",
		"version": version.Version,
	})
}

// SplitStrategies handles GET /kb/split-strategies.
func (s *Server) SplitStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"strategies": splitter.Strategies(),
	})
}

// CreateKB handles POST /kb/create.
func (s *Server) CreateKB(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "name is required")
		return
	}

	result, err := s.collections.Create(r.Context(), req.Name)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := map[string]any{
		"kb_name":        result.StorageID,
		"name_converted": result.Converted,
	}
	if result.Converted {
		resp["original_name"] = result.DisplayName
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListKB handles GET /kb/list.
func (s *Server) ListKB(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.collections.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]map[string]any, len(summaries))
	for i, c := range summaries {
		items[i] = map[string]any{
			"kb_name":       c.StorageID,
			"display_name":  c.DisplayName,
			"dimension":     c.Dimension,
			"fragments":     c.Fragments,
			"created_at_ms": c.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"knowledge_bases": items,
		"count":           len(items),
	})
}

// Upload handles POST /kb/{name}/upload.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	strategy := splitter.Fixed
	if v := r.URL.Query().Get("split_strategy"); v != "" {
		strategy = splitter.Strategy(v)
	}
	chunkSize, err := queryInt(r, "chunk_size", splitter.DefaultChunkSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	overlap, err := queryInt(r, "chunk_overlap", splitter.DefaultOverlap)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "file field is required: "+err.Error())
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "read file: "+err.Error())
		return
	}

	filename := filepath.Base(header.Filename)
	extracted, err := extract.Extract(filename, data)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	summary, err := s.ingest.Ingest(r.Context(), ingestuc.Params{
		Collection: name,
		Filename:   filename,
		FileType:   extracted.FileType,
		Strategy:   strategy,
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		Extra:      extracted.Extra,
	}, extracted.Text)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kb_name":       name,
		"filename":      filename,
		"chunks_count":  summary.Total,
		"inserted":      summary.Inserted,
		"skipped":       summary.Skipped,
		"file_metadata": fileMetadata(filename, extracted),
	})
}

// Query handles POST /kb/{name}/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	results, err := s.query.Query(r.Context(), name, req.Query, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]map[string]any, len(results))
	for i, res := range results {
		items[i] = map[string]any{
			"id":       res.ID,
			"text":     res.Text,
			"score":    res.Score,
			"distance": res.Distance,
			"metadata": map[string]any{
				"filename":     res.Meta.Filename,
				"file_type":    res.Meta.FileType,
				"strategy":     res.Meta.Strategy,
				"chunk_index":  res.Meta.ChunkIndex,
				"total_chunks": res.Meta.TotalChunks,
			},
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kb_name": name,
		"query":   req.Query,
		"results": items,
		"count":   len(items),
	})
}

// ListDocs handles GET /kb/{name}/docs.
func (s *Server) ListDocs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	maxPreview, err := queryInt(r, "max_preview_chunks", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	includePreview := r.URL.Query().Get("include_preview") != "false"

	listing, err := s.documents.List(r.Context(), name, documentuc.ListParams{
		Limit:            limit,
		IncludePreview:   includePreview,
		MaxPreviewChunks: maxPreview,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	files := make([]map[string]any, len(listing.Files))
	for i, f := range listing.Files {
		entry := map[string]any{
			"filename":     f.Filename,
			"chunks_count": f.Chunks,
			"file_metadata": map[string]any{
				"file_type": f.FileType,
				"strategy":  f.Strategy,
				"extra":     f.Extra,
			},
		}
		if includePreview {
			chunks := make([]map[string]any, len(f.Previews))
			for j, p := range f.Previews {
				chunks[j] = map[string]any{
					"id":           p.ID,
					"chunk_index":  p.ChunkIndex,
					"text_preview": p.Text,
				}
			}
			entry["chunks"] = chunks
		}
		files[i] = entry
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kb_name":         name,
		"total_documents": listing.TotalFragments,
		"files":           files,
	})
}

// DeleteDocs handles DELETE /kb/{name}/docs. The body selects fragments by
// explicit ids, by source filename, or clears the whole collection.
func (s *Server) DeleteDocs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		DocIDs   []string `json:"doc_ids"`
		Filename string   `json:"filename"`
		All      bool     `json:"all"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	var deleted int
	var err error
	switch {
	case req.All:
		deleted, err = s.documents.Clear(r.Context(), name)
	case req.Filename != "":
		deleted, err = s.documents.DeleteByFilename(r.Context(), name, req.Filename)
	default:
		deleted, err = s.documents.DeleteByIDs(r.Context(), name, req.DocIDs)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted_count": deleted,
	})
}

// DeleteKB handles DELETE /kb/{name}.
func (s *Server) DeleteKB(w http.ResponseWriter, r *http.Request) {
	if err := s.collections.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func fileMetadata(filename string, res extract.Result) map[string]any {
	meta := map[string]any{
		"filename":  filename,
		"file_type": res.FileType,
	}
	for k, v := range res.Extra {
		meta[k] = v
	}
	return meta
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// Domain errors carry messages safe for clients, so they are passed through.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			s.logger.Warn("request rejected", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
