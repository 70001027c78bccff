package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, apiErr APIError) {
	s.writeJSON(w, status, apiErr)
}

// writeDomainError maps domain errors to HTTP status codes. Conflicts and
// unknown items get dedicated codes so callers can react; everything else
// is an opaque 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var conflict *common.ConcurrencyConflictError
	var validation *common.ValidationError

	switch {
	case errors.As(err, &conflict):
		s.writeError(w, http.StatusConflict, conflictError(conflict.Error()))
	case errors.Is(err, common.ErrAlreadyResolved):
		s.writeError(w, http.StatusConflict, conflictError(err.Error()))
	case errors.Is(err, common.ErrUnknownItem), errors.Is(err, common.ErrNotFound):
		s.writeError(w, http.StatusNotFound, notFoundError("review item"))
	case errors.As(err, &validation):
		s.writeError(w, http.StatusUnprocessableEntity, validationError(validation.Error()))
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, internalError())
	}
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListReview handles GET /api/review - the pending queue, highest
// priority first.
func (s *Server) handleListReview(w http.ResponseWriter, r *http.Request) {
	filter := service.ReviewFilter{
		ClientID:   r.URL.Query().Get("client_id"),
		Type:       model.ReviewItemType(r.URL.Query().Get("type")),
		AssignedTo: r.URL.Query().Get("assigned_to"),
		Limit:      parseIntParam(r, "limit", 50),
		Offset:     parseIntParam(r, "offset", 0),
	}

	items, err := s.manager.ListPending(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := ReviewListResponse{
		Items:  make([]ReviewItemResponse, 0, len(items)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for i := range items {
		resp.Items = append(resp.Items, toReviewItemResponse(&items[i]))
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleGetReview handles GET /api/review/{id}.
func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	if itemID == "" {
		s.writeError(w, http.StatusBadRequest, badRequestError("item ID is required"))
		return
	}

	item, err := s.manager.GetDetail(r.Context(), itemID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toReviewItemResponse(item))
}

// handleApprove handles POST /api/review/{id}/approve.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	actor := reviewerFrom(r)

	var req ApproveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, badRequestError("invalid request body"))
		return
	}

	voucher, err := s.manager.Approve(r.Context(), itemID, actor, req.Notes)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ResolveResponse{
		ItemID:  itemID,
		Status:  string(model.ReviewApproved),
		Voucher: toVoucherResponse(voucher),
	})
}

// handleReject handles POST /api/review/{id}/reject. With corrected lines in
// the body the booking posts as CORRECTED; without them it is discarded.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	actor := reviewerFrom(r)

	var req RejectRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, badRequestError("invalid request body"))
		return
	}

	var lines []model.VoucherLine
	for _, lr := range req.CorrectedLines {
		line, err := lr.toModel()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, badRequestError("invalid amount in corrected lines"))
			return
		}
		lines = append(lines, line)
	}

	voucher, err := s.manager.Reject(r.Context(), itemID, actor, lines, req.Reason)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	status := model.ReviewRejected
	if voucher != nil {
		status = model.ReviewCorrected
	}
	s.writeJSON(w, http.StatusOK, ResolveResponse{
		ItemID:  itemID,
		Status:  string(status),
		Voucher: toVoucherResponse(voucher),
	})
}

// handleAcceptMatch handles POST /api/review/{id}/accept-match.
func (s *Server) handleAcceptMatch(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	actor := reviewerFrom(r)

	var req AcceptMatchRequest
	if err := decodeBody(r, &req); err != nil || req.VoucherID == "" {
		s.writeError(w, http.StatusBadRequest, badRequestError("voucher_id is required"))
		return
	}

	match, err := s.manager.AcceptMatch(r.Context(), itemID, actor, req.VoucherID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ResolveResponse{
		ItemID: itemID,
		Status: string(model.ReviewApproved),
		Match:  match,
	})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		s.writeError(w, http.StatusBadRequest, badRequestError("client_id is required"))
		return
	}

	stats, err := s.store.GetQueueStats(r.Context(), clientID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := StatsResponse{
		ClientID:       clientID,
		PendingByType:  make(map[string]int, len(stats.PendingByType)),
		PostedVouchers: stats.PostedVouchers,
		UnmatchedBank:  stats.UnmatchedBank,
		MatchedBank:    stats.MatchedBank,
	}
	for itemType, count := range stats.PendingByType {
		resp.PendingByType[string(itemType)] = count
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// decodeBody decodes a JSON request body, tolerating an empty body.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

// reviewerFrom identifies the acting reviewer. There is no auth layer;
// callers self-identify via header.
func reviewerFrom(r *http.Request) string {
	if reviewer := r.Header.Get("X-Reviewer"); reviewer != "" {
		return reviewer
	}
	return "api"
}
