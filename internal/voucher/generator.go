package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
)

// Config holds voucher generation settings.
type Config struct {
	// Tolerance is the maximum acceptable |Σdebit - Σcredit|. It is
	// currency/precision dependent and therefore configurable.
	Tolerance decimal.Decimal
	// DefaultSeries is used when a request does not name a series.
	DefaultSeries string
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() Config {
	return Config{
		Tolerance:     decimal.NewFromFloat(0.01),
		DefaultSeries: "A",
	}
}

// CreateRequest describes one voucher creation attempt.
type CreateRequest struct {
	Date           time.Time
	ClientID       string
	SourceRef      string
	StructuredRef  string
	DocumentNumber string
	Description    string
	Series         string
	Actor          string
	ReversesID     string
	Lines          []model.VoucherLine
}

// Generator creates balanced, immutable ledger vouchers.
type Generator struct {
	store  service.Storage
	config Config
}

// NewGenerator creates a voucher generator over the given storage.
func NewGenerator(store service.Storage, config Config) *Generator {
	return &Generator{
		store:  store,
		config: config,
	}
}

// Create validates and posts a voucher as a single atomic unit. On any
// validation failure nothing is written and the caller receives the exact
// diagnostic, including the imbalance amount where applicable.
func (g *Generator) Create(ctx context.Context, req CreateRequest) (*model.Voucher, error) {
	tx, err := g.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	voucher, err := g.CreateInTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit voucher: %w", err)
	}

	slog.Info("Posted voucher",
		"voucher_id", voucher.ID,
		"client", voucher.ClientID,
		"series", voucher.Series,
		"sequence", voucher.SequenceNumber,
		"source_ref", voucher.SourceRef)

	return voucher, nil
}

// CreateInTx runs the creation sequence inside a caller-owned transaction so
// callers can make voucher creation atomic with their own writes (review
// item resolution in particular). The caller commits or rolls back.
func (g *Generator) CreateInTx(ctx context.Context, tx service.Transaction, req CreateRequest) (*model.Voucher, error) {
	if req.ClientID == "" || req.SourceRef == "" {
		return nil, &common.ValidationError{
			SourceRef: req.SourceRef,
			Err:       fmt.Errorf("%w: client and source reference are required", common.ErrInvalidConfig),
		}
	}

	if err := g.ValidateLines(req.SourceRef, req.Lines); err != nil {
		return nil, err
	}

	// A source record links to at most one voucher.
	existing, err := tx.GetVoucherBySource(ctx, req.ClientID, req.SourceRef)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing posting: %w", err)
	}
	if existing != nil {
		return nil, &common.DuplicatePostingError{
			SourceRef:         req.SourceRef,
			ExistingVoucherID: existing.ID,
		}
	}

	series := req.Series
	if series == "" {
		series = g.config.DefaultSeries
	}
	date := req.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	key := service.SequenceKey{
		ClientID:   req.ClientID,
		Series:     series,
		FiscalYear: date.Year(),
	}
	sequence, err := tx.NextSequenceNumber(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence number: %w", err)
	}

	// Line numbers are assigned here, not by callers: corrected line sets
	// arrive from the API and CLI without them.
	lines := make([]model.VoucherLine, len(req.Lines))
	copy(lines, req.Lines)
	for i := range lines {
		lines[i].LineNumber = i + 1
	}

	voucher := &model.Voucher{
		ID:             uuid.NewString(),
		ClientID:       req.ClientID,
		Series:         series,
		FiscalYear:     key.FiscalYear,
		SequenceNumber: sequence,
		Date:           date,
		Description:    req.Description,
		SourceRef:      req.SourceRef,
		StructuredRef:  req.StructuredRef,
		DocumentNumber: req.DocumentNumber,
		CreatedBy:      req.Actor,
		ReversesID:     req.ReversesID,
		Status:         model.StatusPosted,
		Locked:         true,
		CreatedAt:      time.Now().UTC(),
		Lines:          lines,
	}

	if err := tx.SaveVoucher(ctx, voucher); err != nil {
		return nil, fmt.Errorf("failed to persist voucher: %w", err)
	}

	return voucher, nil
}

// ValidateLines checks the line-level and voucher-level invariants: every
// line has exactly one positive side, at least two lines exist, and debits
// equal credits within the configured tolerance.
func (g *Generator) ValidateLines(sourceRef string, lines []model.VoucherLine) error {
	if len(lines) < 2 {
		return &common.ValidationError{
			SourceRef: sourceRef,
			Err:       common.ErrTooFewLines,
		}
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for i, line := range lines {
		hasDebit := line.Debit.IsPositive()
		hasCredit := line.Credit.IsPositive()
		if hasDebit == hasCredit || line.Debit.IsNegative() || line.Credit.IsNegative() {
			return &common.ValidationError{
				SourceRef: sourceRef,
				Err:       fmt.Errorf("%w: line %d", common.ErrInvalidLine, i+1),
			}
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}

	imbalance := totalDebit.Sub(totalCredit)
	if imbalance.Abs().GreaterThan(g.config.Tolerance) {
		return &common.ValidationError{
			SourceRef: sourceRef,
			Imbalance: imbalance,
			Err:       common.ErrUnbalanced,
		}
	}

	return nil
}

// Reverse posts the offsetting voucher for an existing posted voucher.
// This is the only correction path; posted lines are never edited.
func (g *Generator) Reverse(ctx context.Context, voucherID, actor string, date time.Time) (*model.Voucher, error) {
	original, err := g.store.GetVoucherByID(ctx, voucherID)
	if err != nil {
		return nil, fmt.Errorf("failed to load voucher %s: %w", voucherID, err)
	}

	return g.Create(ctx, CreateRequest{
		ClientID:    original.ClientID,
		SourceRef:   "reversal:" + original.ID,
		Description: fmt.Sprintf("Reversal of %s/%d (%d)", original.Series, original.SequenceNumber, original.FiscalYear),
		Series:      original.Series,
		Date:        date,
		Actor:       actor,
		ReversesID:  original.ID,
		Lines:       ReversalLines(original),
	})
}
