package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/ingestion"
	"github.com/poiesic/sheetvec/search"
	"github.com/poiesic/sheetvec/storage"
)

// Public failure messages.
const (
	msgFailedCrawling   = "Failed crawling"
	msgFailedRetrieving = "Failed retrieving context"
	msgInvalidBody      = "Invalid request body"
	msgUnauthorized     = "Unauthorized"
	msgRunNotFound      = "Run not found"
	msgFailedListing    = "Failed listing runs"
)

const maxBodyBytes = 1 << 20

type ingestOptions struct {
	SplittingMethod string `json:"splittingMethod"`
	ChunkSize       *int   `json:"chunkSize"`
	ChunkOverlap    *int   `json:"chunkOverlap"`
}

type ingestRequest struct {
	URL       string         `json:"url"`
	Limit     int            `json:"limit"`
	IndexName string         `json:"indexName"`
	Options   *ingestOptions `json:"options"`
}

type ingestResponse struct {
	Success   bool            `json:"success"`
	Documents []core.Document `json:"documents"`
}

type contextRequest struct {
	Query string `json:"query"`
}

type contextResponse struct {
	Success bool   `json:"success"`
	Context string `json:"context"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("requestId", middleware.GetReqID(r.Context()))

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid ingest request", "err", err)
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit: must not be negative")
		return
	}

	opts, err := s.resolveOptions(req.Options)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.ingester.Ingest(r.Context(), ingestion.IngestRequest{
		URL:       req.URL,
		Limit:     req.Limit,
		Namespace: req.IndexName,
		Options:   opts,
	})
	if err != nil {
		var validation *core.ValidationError
		if errors.As(err, &validation) {
			writeError(w, http.StatusBadRequest, validation.Error())
			return
		}
		logger.Error("ingestion failed", "url", req.URL, "err", err)
		writeError(w, http.StatusInternalServerError, msgFailedCrawling)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{Success: true, Documents: result.Documents})
}

// resolveOptions fills the fields a request omits from the server defaults.
func (s *Server) resolveOptions(in *ingestOptions) (core.IngestOptions, error) {
	opts := s.config.DefaultOptions
	if in == nil {
		return opts, nil
	}
	if in.SplittingMethod != "" {
		method, err := core.ParseSplittingMethod(in.SplittingMethod)
		if err != nil {
			return opts, err
		}
		opts.SplittingMethod = method
	}
	if in.ChunkSize != nil {
		opts.ChunkSize = *in.ChunkSize
	}
	if in.ChunkOverlap != nil {
		opts.ChunkOverlap = *in.ChunkOverlap
	}
	return opts, opts.Validate()
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("requestId", middleware.GetReqID(r.Context()))

	var req contextRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid context request", "err", err)
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	text, err := s.retriever.Context(r.Context(), req.Query)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, search.ErrEmptyQuery) {
			status = http.StatusBadRequest
		}
		logger.Error("context retrieval failed", "err", err)
		writeError(w, status, msgFailedRetrieving)
		return
	}

	writeJSON(w, http.StatusOK, contextResponse{Success: true, Context: text})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context(), 50)
	if err != nil {
		s.logger.Error("listing runs failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgFailedListing)
		return
	}
	if runs == nil {
		runs = []*core.IngestionRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgRunNotFound)
		return
	}
	if err != nil {
		s.logger.Error("loading run failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgFailedListing)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "run": run})
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return sonic.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false,"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}
