package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wayfare-app/wayfare/internal/gateway"
	"github.com/wayfare-app/wayfare/internal/log"
	"github.com/wayfare-app/wayfare/internal/rag"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// resolver answers content queries.
type resolver interface {
	Resolve(ctx context.Context, q rag.Query) (rag.Result, error)
}

// Content is a resolved content record returned by search.
type Content struct {
	ID        string   `json:"id"`
	Title     string   `json:"title,omitempty"`
	Body      string   `json:"body,omitempty"`
	MediaURLs []string `json:"mediaUrls,omitempty"`
}

// ContentFinder resolves content ids into full records. It belongs to
// the persistence layer; search only needs this one lookup.
type ContentFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]Content, error)
}

// searchHandler serves the RAG query endpoint.
type searchHandler struct {
	resolver resolver
	finder   ContentFinder // optional: nil returns ids only
	logger   log.Logger
}

type searchRequest struct {
	Query    string `json:"query"`
	ImageURL string `json:"imageUrl"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

type searchResponse struct {
	ContentIDs []string  `json:"contentIds"`
	Items      []Content `json:"items,omitempty"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	Total      int       `json:"total"`
}

func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	result, err := h.resolver.Resolve(r.Context(), rag.Query{Text: req.Query, ImageURL: req.ImageURL})
	if err != nil {
		h.logger.Error("search resolution failed", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, gateway.ErrModelBuild) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, modelErrorCode(err, "internal_error"), "search failed", h.logger)
		return
	}

	ids := paginate(result.ContentIDs, page, size)
	resp := searchResponse{
		ContentIDs: ids,
		Page:       page,
		PageSize:   size,
		Total:      len(result.ContentIDs),
	}

	if h.finder != nil && len(ids) > 0 {
		items, err := h.finder.FindByIDs(r.Context(), ids)
		if err != nil {
			h.logger.Error("resolving content records failed", "error", err)
			writeError(w, http.StatusInternalServerError, "lookup_failed", "resolving content failed", h.logger)
			return
		}
		resp.Items = items
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}

// paginate returns the page-th slice of size ids (1-based page).
func paginate(ids []string, page, size int) []string {
	start := (page - 1) * size
	if start >= len(ids) {
		return []string{}
	}
	end := start + size
	if end > len(ids) {
		end = len(ids)
	}
	return ids[start:end]
}
