// Package storage provides the data persistence layer for the bookkeeping pipeline.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledgerline/ledgerline/internal/model"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrEmptySlice        = errors.New("slice cannot be empty")
	ErrInvalidVoucher    = errors.New("invalid voucher")
	ErrInvalidReviewItem = errors.New("invalid review item")
	ErrInvalidBankTxn    = errors.New("invalid bank transaction")
	ErrInvalidMatch      = errors.New("invalid match")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateVoucher checks the storable shape of a voucher. Balance invariants
// are the generator's job; storage only refuses structurally broken rows.
func validateVoucher(voucher *model.Voucher) error {
	if voucher == nil {
		return fmt.Errorf("%w: voucher", ErrNilParameter)
	}
	if voucher.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidVoucher)
	}
	if voucher.ClientID == "" {
		return fmt.Errorf("%w: missing client ID", ErrInvalidVoucher)
	}
	if voucher.Series == "" {
		return fmt.Errorf("%w: missing series", ErrInvalidVoucher)
	}
	if voucher.SourceRef == "" {
		return fmt.Errorf("%w: missing source reference", ErrInvalidVoucher)
	}
	if voucher.SequenceNumber <= 0 {
		return fmt.Errorf("%w: missing sequence number", ErrInvalidVoucher)
	}
	if len(voucher.Lines) < 2 {
		return fmt.Errorf("%w: fewer than two lines", ErrInvalidVoucher)
	}
	if voucher.Status != model.StatusPosted {
		return fmt.Errorf("%w: status %s", ErrInvalidVoucher, voucher.Status)
	}
	return nil
}

// validateReviewItem validates a review item before it is written.
func validateReviewItem(item *model.ReviewItem) error {
	if item == nil {
		return fmt.Errorf("%w: review item", ErrNilParameter)
	}
	if item.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidReviewItem)
	}
	if item.ClientID == "" {
		return fmt.Errorf("%w: missing client ID", ErrInvalidReviewItem)
	}
	if item.SourceRef == "" {
		return fmt.Errorf("%w: missing source reference", ErrInvalidReviewItem)
	}
	switch item.Type {
	case model.ReviewTypeBooking, model.ReviewTypeBankMatch:
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidReviewItem, item.Type)
	}
	switch item.Status {
	case model.ReviewPending, model.ReviewApproved, model.ReviewRejected, model.ReviewCorrected:
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidReviewItem, item.Status)
	}
	return nil
}

// validateBankTransactions validates a slice of bank transactions.
func validateBankTransactions(transactions []model.BankTransaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}
	for i, txn := range transactions {
		if txn.ID == "" {
			return fmt.Errorf("%w: missing ID at index %d", ErrInvalidBankTxn, i)
		}
		if txn.ClientID == "" {
			return fmt.Errorf("%w: missing client ID at index %d", ErrInvalidBankTxn, i)
		}
		if txn.AccountID == "" {
			return fmt.Errorf("%w: missing account ID at index %d", ErrInvalidBankTxn, i)
		}
		if txn.Date.IsZero() {
			return fmt.Errorf("%w: missing date at index %d", ErrInvalidBankTxn, i)
		}
	}
	return nil
}

// validateMatch validates an accepted match pairing.
func validateMatch(match *model.Match) error {
	if match == nil {
		return fmt.Errorf("%w: match", ErrNilParameter)
	}
	if match.ID == "" || match.TransactionID == "" || match.VoucherID == "" {
		return fmt.Errorf("%w: missing identifiers", ErrInvalidMatch)
	}
	return nil
}
