package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/model"
)

// APIError is the structured error body every failing endpoint returns.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeNotFound      = "not_found"
	errCodeBadRequest    = "bad_request"
	errCodeConflict      = "conflict"
	errCodeValidation    = "validation_error"
	errCodeInternalError = "internal_error"
)

func notFoundError(resource string) APIError {
	return APIError{Code: errCodeNotFound, Message: resource + " not found"}
}

func badRequestError(message string) APIError {
	return APIError{Code: errCodeBadRequest, Message: message}
}

func conflictError(message string) APIError {
	return APIError{Code: errCodeConflict, Message: message}
}

func validationError(message string) APIError {
	return APIError{Code: errCodeValidation, Message: message}
}

func internalError() APIError {
	return APIError{Code: errCodeInternalError, Message: "an internal error occurred"}
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ReviewItemResponse is the API view of a review queue item.
type ReviewItemResponse struct {
	ID         string                  `json:"id"`
	ClientID   string                  `json:"client_id"`
	SourceRef  string                  `json:"source_ref"`
	Type       string                  `json:"type"`
	Status     string                  `json:"status"`
	Priority   int                     `json:"priority"`
	AssignedTo string                  `json:"assigned_to,omitempty"`
	Notes      string                  `json:"notes,omitempty"`
	ResolvedBy string                  `json:"resolved_by,omitempty"`
	VoucherID  string                  `json:"voucher_id,omitempty"`
	CreatedAt  string                  `json:"created_at"`
	ResolvedAt string                  `json:"resolved_at,omitempty"`
	Confidence *ConfidenceResponse     `json:"confidence,omitempty"`
	Candidate  *model.InvoiceCandidate `json:"candidate,omitempty"`
	Candidates []model.MatchCandidate  `json:"candidates,omitempty"`
}

// ConfidenceResponse exposes the score with its factor breakdown.
type ConfidenceResponse struct {
	Score       int            `json:"score"`
	Factors     map[string]int `json:"factors"`
	Escalations []string       `json:"escalations,omitempty"`
}

// ReviewListResponse is a page of pending review items.
type ReviewListResponse struct {
	Items  []ReviewItemResponse `json:"items"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// VoucherResponse is the API view of a posted voucher.
type VoucherResponse struct {
	ID             string                `json:"id"`
	ClientID       string                `json:"client_id"`
	Series         string                `json:"series"`
	FiscalYear     int                   `json:"fiscal_year"`
	SequenceNumber int64                 `json:"sequence_number"`
	Date           string                `json:"date"`
	Description    string                `json:"description,omitempty"`
	SourceRef      string                `json:"source_ref"`
	ReversesID     string                `json:"reverses_id,omitempty"`
	Status         string                `json:"status"`
	Total          string                `json:"total"`
	Lines          []VoucherLineResponse `json:"lines"`
}

// VoucherLineResponse is a single posting line.
type VoucherLineResponse struct {
	LineNumber int    `json:"line_number"`
	Account    string `json:"account"`
	Debit      string `json:"debit"`
	Credit     string `json:"credit"`
	TaxCode    string `json:"tax_code,omitempty"`
	TaxAmount  string `json:"tax_amount"`
}

// ResolveResponse is returned by approve/reject/accept-match endpoints.
type ResolveResponse struct {
	ItemID  string           `json:"item_id"`
	Status  string           `json:"status"`
	Voucher *VoucherResponse `json:"voucher,omitempty"`
	Match   *model.Match     `json:"match,omitempty"`
}

// RejectRequest optionally carries corrected lines; with them the item posts
// as CORRECTED instead of being discarded.
type RejectRequest struct {
	Reason         string             `json:"reason"`
	CorrectedLines []LineRequest      `json:"corrected_lines,omitempty"`
}

// ApproveRequest carries reviewer metadata for an approval.
type ApproveRequest struct {
	Notes string `json:"notes,omitempty"`
}

// AcceptMatchRequest selects one candidate voucher for a bank_match item.
type AcceptMatchRequest struct {
	VoucherID string `json:"voucher_id"`
}

// LineRequest is a posting line supplied by the reviewer.
type LineRequest struct {
	Account   string `json:"account"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
	TaxCode   string `json:"tax_code,omitempty"`
	TaxAmount string `json:"tax_amount,omitempty"`
}

// StatsResponse summarizes one client's pipeline state.
type StatsResponse struct {
	ClientID       string         `json:"client_id"`
	PendingByType  map[string]int `json:"pending_by_type"`
	PostedVouchers int            `json:"posted_vouchers"`
	UnmatchedBank  int            `json:"unmatched_bank"`
	MatchedBank    int            `json:"matched_bank"`
}

func toReviewItemResponse(item *model.ReviewItem) ReviewItemResponse {
	resp := ReviewItemResponse{
		ID:         item.ID,
		ClientID:   item.ClientID,
		SourceRef:  item.SourceRef,
		Type:       string(item.Type),
		Status:     string(item.Status),
		Priority:   item.Priority,
		AssignedTo: item.AssignedTo,
		Notes:      item.Notes,
		ResolvedBy: item.ResolvedBy,
		VoucherID:  item.VoucherID,
		CreatedAt:  item.CreatedAt.Format(time.RFC3339),
		Candidate:  item.Candidate,
		Candidates: item.Candidates,
	}
	if item.ResolvedAt != nil {
		resp.ResolvedAt = item.ResolvedAt.Format(time.RFC3339)
	}
	if item.Confidence != nil {
		resp.Confidence = &ConfidenceResponse{
			Score:       item.Confidence.Score,
			Factors:     item.Confidence.Factors,
			Escalations: item.Confidence.Escalations,
		}
	}
	return resp
}

func toVoucherResponse(v *model.Voucher) *VoucherResponse {
	if v == nil {
		return nil
	}
	resp := &VoucherResponse{
		ID:             v.ID,
		ClientID:       v.ClientID,
		Series:         v.Series,
		FiscalYear:     v.FiscalYear,
		SequenceNumber: v.SequenceNumber,
		Date:           v.Date.Format("2006-01-02"),
		Description:    v.Description,
		SourceRef:      v.SourceRef,
		ReversesID:     v.ReversesID,
		Status:         string(v.Status),
		Total:          v.Total().StringFixed(2),
		Lines:          make([]VoucherLineResponse, 0, len(v.Lines)),
	}
	for _, line := range v.Lines {
		resp.Lines = append(resp.Lines, VoucherLineResponse{
			LineNumber: line.LineNumber,
			Account:    line.Account,
			Debit:      line.Debit.StringFixed(2),
			Credit:     line.Credit.StringFixed(2),
			TaxCode:    line.TaxCode,
			TaxAmount:  line.TaxAmount.StringFixed(2),
		})
	}
	return resp
}

func (r LineRequest) toModel() (model.VoucherLine, error) {
	line := model.VoucherLine{
		Account: r.Account,
		TaxCode: r.TaxCode,
		Debit:   decimal.Zero,
		Credit:  decimal.Zero,
	}
	var err error
	if r.Debit != "" {
		if line.Debit, err = decimal.NewFromString(r.Debit); err != nil {
			return line, err
		}
	}
	if r.Credit != "" {
		if line.Credit, err = decimal.NewFromString(r.Credit); err != nil {
			return line, err
		}
	}
	if r.TaxAmount != "" {
		if line.TaxAmount, err = decimal.NewFromString(r.TaxAmount); err != nil {
			return line, err
		}
	}
	return line, nil
}
