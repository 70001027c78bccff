package voucher_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/testutil"
	"github.com/ledgerline/ledgerline/internal/voucher"
)

func standardLines() []model.VoucherLine {
	return voucher.BuildLines(testutil.Candidate("cand-1"))
}

func TestBuildLines(t *testing.T) {
	t.Run("payable with tax", func(t *testing.T) {
		lines := voucher.BuildLines(testutil.Candidate("cand-1"))

		require.Len(t, lines, 3)

		// Debit expense excl tax
		assert.Equal(t, "6100", lines[0].Account)
		assert.True(t, lines[0].Debit.Equal(decimal.RequireFromString("10000")))
		assert.Equal(t, "VAT25", lines[0].TaxCode)

		// Debit input tax
		assert.Equal(t, "2640", lines[1].Account)
		assert.True(t, lines[1].Debit.Equal(decimal.RequireFromString("2500")))

		// Single credit for the total
		assert.Equal(t, "2440", lines[2].Account)
		assert.True(t, lines[2].Credit.Equal(decimal.RequireFromString("12500")))

		v := model.Voucher{Lines: lines}
		assert.True(t, v.Imbalance().IsZero())
	})

	t.Run("zero tax yields two lines", func(t *testing.T) {
		candidate := testutil.Candidate("cand-2")
		candidate.AmountExclTax = decimal.RequireFromString("5000")
		candidate.TaxAmount = decimal.Zero
		candidate.Total = decimal.RequireFromString("5000")

		lines := voucher.BuildLines(candidate)

		require.Len(t, lines, 2)
		assert.True(t, lines[0].Debit.Equal(decimal.RequireFromString("5000")))
		assert.True(t, lines[1].Credit.Equal(decimal.RequireFromString("5000")))
	})

	t.Run("receivable inverts polarity", func(t *testing.T) {
		candidate := testutil.Candidate("cand-3")
		candidate.Direction = model.DirectionReceivable

		lines := voucher.BuildLines(candidate)

		require.Len(t, lines, 3)
		assert.True(t, lines[0].Credit.Equal(decimal.RequireFromString("10000")))
		assert.True(t, lines[2].Debit.Equal(decimal.RequireFromString("12500")))

		v := model.Voucher{Lines: lines}
		assert.True(t, v.Imbalance().IsZero())
	})
}

func TestValidateLines(t *testing.T) {
	gen := voucher.NewGenerator(nil, voucher.DefaultConfig())

	tests := []struct {
		name    string
		lines   []model.VoucherLine
		wantErr error
	}{
		{
			name:    "balanced three-line voucher",
			lines:   standardLines(),
			wantErr: nil,
		},
		{
			name:    "single line",
			lines:   standardLines()[:1],
			wantErr: common.ErrTooFewLines,
		},
		{
			name: "unbalanced",
			lines: []model.VoucherLine{
				{LineNumber: 1, Account: "6100", Debit: decimal.RequireFromString("100")},
				{LineNumber: 2, Account: "2440", Credit: decimal.RequireFromString("90")},
			},
			wantErr: common.ErrUnbalanced,
		},
		{
			name: "line with both sides set",
			lines: []model.VoucherLine{
				{LineNumber: 1, Account: "6100", Debit: decimal.RequireFromString("100"), Credit: decimal.RequireFromString("100")},
				{LineNumber: 2, Account: "2440", Credit: decimal.RequireFromString("100")},
			},
			wantErr: common.ErrInvalidLine,
		},
		{
			name: "line with neither side set",
			lines: []model.VoucherLine{
				{LineNumber: 1, Account: "6100"},
				{LineNumber: 2, Account: "2440", Credit: decimal.RequireFromString("100")},
			},
			wantErr: common.ErrInvalidLine,
		},
		{
			name: "negative amount",
			lines: []model.VoucherLine{
				{LineNumber: 1, Account: "6100", Debit: decimal.RequireFromString("-100")},
				{LineNumber: 2, Account: "2440", Credit: decimal.RequireFromString("-100")},
			},
			wantErr: common.ErrInvalidLine,
		},
		{
			name: "imbalance within tolerance",
			lines: []model.VoucherLine{
				{LineNumber: 1, Account: "6100", Debit: decimal.RequireFromString("100.00")},
				{LineNumber: 2, Account: "2440", Credit: decimal.RequireFromString("99.99")},
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gen.ValidateLines("src-1", tt.lines)

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var validationErr *common.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, "src-1", validationErr.SourceRef)
		})
	}
}

func TestValidateLinesReportsImbalance(t *testing.T) {
	gen := voucher.NewGenerator(nil, voucher.DefaultConfig())

	err := gen.ValidateLines("src-1", []model.VoucherLine{
		{LineNumber: 1, Account: "6100", Debit: decimal.RequireFromString("12500")},
		{LineNumber: 2, Account: "2440", Credit: decimal.RequireFromString("12000")},
	})

	var validationErr *common.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.True(t, validationErr.Imbalance.Equal(decimal.RequireFromString("500")))
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	gen := voucher.NewGenerator(db.Storage, voucher.DefaultConfig())

	req := voucher.CreateRequest{
		Date:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		ClientID:  "client-1",
		SourceRef: "cand-1",
		Actor:     "system",
		Lines:     standardLines(),
	}

	created, err := gen.Create(ctx, req)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "A", created.Series)
	assert.Equal(t, 2024, created.FiscalYear)
	assert.Equal(t, int64(1), created.SequenceNumber)
	assert.Equal(t, model.StatusPosted, created.Status)
	assert.True(t, created.Locked)

	// Round-trips with all lines intact.
	loaded, err := db.Storage.GetVoucherByID(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Lines, 3)
	assert.True(t, loaded.Imbalance().IsZero())
	assert.True(t, loaded.Total().Equal(decimal.RequireFromString("12500")))
}

func TestCreateRejectsDuplicateSource(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	gen := voucher.NewGenerator(db.Storage, voucher.DefaultConfig())

	req := voucher.CreateRequest{
		ClientID:  "client-1",
		SourceRef: "cand-1",
		Lines:     standardLines(),
	}

	first, err := gen.Create(ctx, req)
	require.NoError(t, err)

	_, err = gen.Create(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDuplicatePosting)

	var dupErr *common.DuplicatePostingError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, first.ID, dupErr.ExistingVoucherID)
}

func TestCreateWritesNothingOnValidationFailure(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	gen := voucher.NewGenerator(db.Storage, voucher.DefaultConfig())

	_, err := gen.Create(ctx, voucher.CreateRequest{
		ClientID:  "client-1",
		SourceRef: "cand-1",
		Lines: []model.VoucherLine{
			{LineNumber: 1, Account: "6100", Debit: decimal.RequireFromString("100")},
			{LineNumber: 2, Account: "2440", Credit: decimal.RequireFromString("50")},
		},
	})
	require.Error(t, err)

	_, err = db.Storage.GetVoucherBySource(ctx, "client-1", "cand-1")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestSequenceNumbersPerSeries(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	gen := voucher.NewGenerator(db.Storage, voucher.DefaultConfig())

	post := func(sourceRef, series string) *model.Voucher {
		t.Helper()
		v, err := gen.Create(ctx, voucher.CreateRequest{
			Date:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			ClientID:  "client-1",
			SourceRef: sourceRef,
			Series:    series,
			Lines:     standardLines(),
		})
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, int64(1), post("src-1", "A").SequenceNumber)
	assert.Equal(t, int64(2), post("src-2", "A").SequenceNumber)
	// Separate series and clients number independently.
	assert.Equal(t, int64(1), post("src-3", "B").SequenceNumber)
	assert.Equal(t, int64(3), post("src-4", "A").SequenceNumber)
}

func TestReverse(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	gen := voucher.NewGenerator(db.Storage, voucher.DefaultConfig())

	original, err := gen.Create(ctx, voucher.CreateRequest{
		Date:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		ClientID:  "client-1",
		SourceRef: "cand-1",
		Lines:     standardLines(),
	})
	require.NoError(t, err)

	reversal, err := gen.Reverse(ctx, original.ID, "reviewer", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, original.ID, reversal.ReversesID)
	assert.True(t, reversal.IsReversal())
	require.Len(t, reversal.Lines, 3)

	// Sides are swapped line for line.
	for i, line := range reversal.Lines {
		assert.True(t, line.Debit.Equal(original.Lines[i].Credit), "line %d debit", i+1)
		assert.True(t, line.Credit.Equal(original.Lines[i].Debit), "line %d credit", i+1)
	}

	// Reversing twice is caught by source uniqueness.
	_, err = gen.Reverse(ctx, original.ID, "reviewer", time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, common.ErrDuplicatePosting)
}

func TestCreateAssignsLineNumbers(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	gen := voucher.NewGenerator(db.Storage, voucher.DefaultConfig())

	// Corrected line sets from the API and CLI arrive unnumbered.
	lines := []model.VoucherLine{
		{Account: "6200", Debit: decimal.RequireFromString("10000"), TaxCode: "VAT25"},
		{Account: "2640", Debit: decimal.RequireFromString("2500")},
		{Account: "2440", Credit: decimal.RequireFromString("12500")},
	}

	posted, err := gen.Create(ctx, voucher.CreateRequest{
		Date:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		ClientID:  "client-1",
		SourceRef: "cand-1",
		Lines:     lines,
	})
	require.NoError(t, err)

	stored, err := db.Storage.GetVoucherByID(ctx, posted.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 3)
	for i, line := range stored.Lines {
		assert.Equal(t, i+1, line.LineNumber)
	}
	assert.Equal(t, "6200", stored.Lines[0].Account)

	// The caller's slice is left alone.
	assert.Zero(t, lines[0].LineNumber)
}

func TestConcurrentCreatesAllocateUniqueSequences(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	gen := voucher.NewGenerator(db.Storage, voucher.DefaultConfig())

	const n = 20
	sequences := make(chan int64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := gen.Create(ctx, voucher.CreateRequest{
				Date:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
				ClientID:  "client-1",
				SourceRef: fmt.Sprintf("src-%d", i),
				Lines:     standardLines(),
			})
			if err != nil {
				t.Errorf("create %d: %v", i, err)
				return
			}
			sequences <- v.SequenceNumber
		}(i)
	}
	wg.Wait()
	close(sequences)

	seen := make(map[int64]bool)
	for seq := range sequences {
		assert.False(t, seen[seq], "sequence %d allocated twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, n)
}
