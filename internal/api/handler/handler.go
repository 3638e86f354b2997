package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"fcgift/internal/models"
	"fcgift/internal/neynar"
	"fcgift/internal/pager"
	"fcgift/internal/selection"
)

const (
	defaultAnomalyLimit = 50
	maxAnomalyLimit     = 500
	outOfStorage        = "Out of storage!"
)

// CandidateService answers candidate, profile and gift lookups.
type CandidateService interface {
	SelectCandidate(ctx context.Context, req selection.Request) (*selection.Result, error)
	Profile(ctx context.Context, fid int64) (*models.Account, error)
	GiftTarget(ctx context.Context, fid int64) (*models.Candidate, error)
}

// AnomalyStore lists recorded over-capacity accounts.
type AnomalyStore interface {
	Ping(ctx context.Context) error
	ListOverCapacity(ctx context.Context, limit int) ([]*models.OverCapacityReport, error)
}

// UpstreamHealth reports upstream endpoint failures.
type UpstreamHealth interface {
	Stats() (failing int, suspended int)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	service   CandidateService
	anomalies AnomalyStore
	upstream  UpstreamHealth
	logger    *zap.SugaredLogger
}

// New creates a new Handler instance
func New(service CandidateService, anomalies AnomalyStore, upstream UpstreamHealth, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		service:   service,
		anomalies: anomalies,
		upstream:  upstream,
		logger:    logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	Database          string    `json:"database"`
	UpstreamFailing   int       `json:"upstream_failing"`
	UpstreamSuspended int       `json:"upstream_suspended"`
}

// CandidateView is a ranked account as rendered to clients.
type CandidateView struct {
	FID          int64  `json:"fid"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	PfpURL       string `json:"pfp_url"`
	Remaining    int64  `json:"remaining"`
	OverCapacity bool   `json:"over_capacity"`
	Status       string `json:"status"`
}

// CandidatesResponse represents the candidate selection response
type CandidatesResponse struct {
	Candidate   *CandidateView  `json:"candidate"`
	Page        []CandidateView `json:"page"`
	CurrentPage int             `json:"current_page"`
	TotalPages  int             `json:"total_pages"`
	HasNext     bool            `json:"has_next"`
	HasBack     bool            `json:"has_back"`
	Cursor      string          `json:"cursor,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Retry   bool   `json:"retry,omitempty"`
}

// Health handles GET /health requests
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.anomalies.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Database:  "connected",
	}
	if h.upstream != nil {
		response.UpstreamFailing, response.UpstreamSuspended = h.upstream.Stats()
	}

	writeJSON(w, http.StatusOK, response)
}

// Candidates handles GET /candidates/{fid}?nav=&cursor=&page_size= requests
func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	fid, ok := parseFID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	nav, err := pager.ParseNavigation(query.Get("nav"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Navigation must be 'next', 'back' or empty")
		return
	}

	pageSize := 0
	if raw := query.Get("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid page_size")
			return
		}
	}

	result, err := h.service.SelectCandidate(r.Context(), selection.Request{
		Viewer:     fid,
		Navigation: nav,
		PageSize:   pageSize,
		Cursor:     query.Get("cursor"),
	})
	if err != nil {
		h.logger.Errorw("Candidate selection failed", "viewer", fid, "request_id", RequestID(r.Context()), "err", err)
		writeRetry(w)
		return
	}

	response := CandidatesResponse{
		Page:        make([]CandidateView, 0, len(result.Page)),
		CurrentPage: result.CurrentPage,
		TotalPages:  result.TotalPages,
		HasNext:     result.HasNext,
		HasBack:     result.HasBack,
		Cursor:      result.Cursor,
	}
	if result.Candidate != nil {
		view := buildCandidateView(result.Candidate)
		response.Candidate = &view
	}
	for i := range result.Page {
		response.Page = append(response.Page, buildCandidateView(&result.Page[i]))
	}

	writeJSON(w, http.StatusOK, response)
}

// Account handles GET /accounts/{fid} requests
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	fid, ok := parseFID(w, r)
	if !ok {
		return
	}

	account, err := h.service.Profile(r.Context(), fid)
	if errors.Is(err, neynar.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}
	if err != nil {
		h.logger.Errorw("Account lookup failed", "fid", fid, "request_id", RequestID(r.Context()), "err", err)
		writeRetry(w)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// Gift handles GET /gift/{fid} requests
func (h *Handler) Gift(w http.ResponseWriter, r *http.Request) {
	fid, ok := parseFID(w, r)
	if !ok {
		return
	}

	target, err := h.service.GiftTarget(r.Context(), fid)
	switch {
	case errors.Is(err, neynar.ErrNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
		return
	case errors.Is(err, selection.ErrIncompleteProfile):
		writeError(w, http.StatusUnprocessableEntity, "Account profile is incomplete")
		return
	case err != nil:
		h.logger.Errorw("Gift target lookup failed", "fid", fid, "request_id", RequestID(r.Context()), "err", err)
		writeRetry(w)
		return
	}

	writeJSON(w, http.StatusOK, buildCandidateView(target))
}

// Anomalies handles GET /anomalies?limit= requests
func (h *Handler) Anomalies(w http.ResponseWriter, r *http.Request) {
	limit := defaultAnomalyLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = min(parsedLimit, maxAnomalyLimit)
		}
	}

	reports, err := h.anomalies.ListOverCapacity(r.Context(), limit)
	if err != nil {
		h.logger.Errorw("Listing over-capacity accounts failed", "request_id", RequestID(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list over-capacity accounts")
		return
	}

	writeJSON(w, http.StatusOK, reports)
}

func parseFID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(mux.Vars(r)["fid"])
	fid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || fid <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid fid")
		return 0, false
	}
	return fid, true
}

func buildCandidateView(c *models.Candidate) CandidateView {
	var status string
	switch {
	case c.Remaining < 0:
		status = fmt.Sprintf("Over capacity by %d", -c.Remaining)
	case c.Remaining == 0:
		status = outOfStorage
	default:
		status = fmt.Sprintf("%d storage left!", c.Remaining)
	}
	return CandidateView{
		FID:          c.Account.FID,
		Username:     c.Account.Username,
		DisplayName:  c.Account.DisplayName,
		PfpURL:       c.Account.PfpURL,
		Remaining:    c.Remaining,
		OverCapacity: c.OverCapacity,
		Status:       status,
	}
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	writeJSON(w, status, response)
}

// writeRetry writes the generic failure shown when a request could not be served.
func writeRetry(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadGateway, ErrorResponse{
		Error:   http.StatusText(http.StatusBadGateway),
		Message: "Something went wrong, please try again",
		Retry:   true,
	})
}
