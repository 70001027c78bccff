package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/model"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>EUR
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-1250.00
<FITID>2024011501
<REFNUM>RF18539007547034
<NAME>ACME SUPPLIES LTD
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Office Depot
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>500.00
<FITID>2024012501
<NAME>CUSTOMER PAYMENT INV-2024-001
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>EUR
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>CLOUD HOSTING CO
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>SAAS-TOOLS.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{
			name:          "valid bank statement",
			ofxData:       sampleBankOFX,
			expectedCount: 3,
			expectedError: false,
		},
		{
			name:          "valid credit card statement",
			ofxData:       sampleCreditCardOFX,
			expectedCount: 2,
			expectedError: false,
		},
		{
			name:          "invalid OFX data",
			ofxData:       "not valid OFX",
			expectedCount: 0,
			expectedError: true,
		},
		{
			name:          "empty OFX",
			ofxData:       "",
			expectedCount: 0,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()
			reader := strings.NewReader(tt.ofxData)

			transactions, err := parser.ParseFile(context.Background(), reader, "client-1")

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Len(t, transactions, tt.expectedCount)
			}
		})
	}
}

func TestParseBankTransactions(t *testing.T) {
	parser := NewParser()
	reader := strings.NewReader(sampleBankOFX)

	transactions, err := parser.ParseFile(context.Background(), reader, "client-1")
	require.NoError(t, err)
	require.Len(t, transactions, 3)

	// First transaction carries a structured payment reference
	tx1 := transactions[0]
	assert.NotEmpty(t, tx1.ID)
	assert.Equal(t, "client-1", tx1.ClientID)
	assert.Equal(t, "1234567890", tx1.AccountID)
	assert.Equal(t, "2024011501", tx1.FiTID)
	assert.Equal(t, "ACME SUPPLIES LTD", tx1.Description)
	assert.Equal(t, "RF18539007547034", tx1.StructuredRef)
	assert.True(t, tx1.Amount.Equal(decimal.RequireFromString("-1250.00")), "amount %s", tx1.Amount)
	assert.Equal(t, model.BankUnmatched, tx1.Status)
	assert.NotEmpty(t, tx1.Hash)
	// Compare just the date components, ignoring timezone
	assert.Equal(t, 2024, tx1.Date.Year())
	assert.Equal(t, time.January, tx1.Date.Month())
	assert.Equal(t, 15, tx1.Date.Day())

	tx2 := transactions[1]
	assert.Equal(t, "2024012001", tx2.FiTID)
	assert.Equal(t, "Office Depot", tx2.Description)
	assert.Empty(t, tx2.StructuredRef)
	assert.True(t, tx2.Amount.Equal(decimal.RequireFromString("-125")))

	// Incoming payments keep their positive sign
	tx3 := transactions[2]
	assert.Equal(t, "2024012501", tx3.FiTID)
	assert.True(t, tx3.Amount.Equal(decimal.RequireFromString("500")))
}

func TestParseCreditCardTransactions(t *testing.T) {
	parser := NewParser()
	reader := strings.NewReader(sampleCreditCardOFX)

	transactions, err := parser.ParseFile(context.Background(), reader, "client-1")
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	tx1 := transactions[0]
	assert.Equal(t, "CC2024011001", tx1.FiTID)
	assert.Equal(t, "CLOUD HOSTING CO", tx1.Description)
	assert.Equal(t, "4111111111111111", tx1.AccountID)
	assert.True(t, tx1.Amount.Equal(decimal.RequireFromString("-45.99")))

	tx2 := transactions[1]
	assert.Equal(t, "CC2024011501", tx2.FiTID)
	assert.Equal(t, "SAAS-TOOLS.COM", tx2.Description)
}

func TestExtractDescription(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "remove POS prefix",
			input:    "POS PURCHASE ACME SUPPLIES",
			expected: "ACME SUPPLIES",
		},
		{
			name:     "remove SEPA transfer prefix",
			input:    "SEPA CREDIT TRANSFER ACME SUPPLIES LTD",
			expected: "ACME SUPPLIES LTD",
		},
		{
			name:     "keep clean name",
			input:    "SAAS-TOOLS.COM",
			expected: "SAAS-TOOLS.COM",
		},
		{
			name:     "trim whitespace",
			input:    "  CLOUD HOSTING CO  ",
			expected: "CLOUD HOSTING CO",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := ofxgo.Transaction{
				Name: ofxgo.String(tt.input),
			}
			result := parser.extractDescription(tx)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTransactionDeduplication(t *testing.T) {
	tx1 := model.BankTransaction{
		ID:          "TX001",
		ClientID:    "client-1",
		AccountID:   "123456",
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "ACME SUPPLIES",
		FiTID:       "FIT-001",
		Amount:      decimal.RequireFromString("-1250.00"),
	}
	tx1.Hash = tx1.GenerateHash()

	// Same statement line imported twice gets a new internal ID but the
	// same hash, so the second import is a no-op.
	tx2 := tx1
	tx2.ID = "TX002"
	tx2.Hash = tx2.GenerateHash()
	assert.Equal(t, tx1.Hash, tx2.Hash)

	tx3 := tx1
	tx3.Amount = decimal.RequireFromString("-1300.00")
	tx3.Hash = tx3.GenerateHash()
	assert.NotEqual(t, tx1.Hash, tx3.Hash)

	tx4 := tx1
	tx4.Date = time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	tx4.Hash = tx4.GenerateHash()
	assert.NotEqual(t, tx1.Hash, tx4.Hash)
}

func TestGetAccounts(t *testing.T) {
	parser := NewParser()

	reader := strings.NewReader(sampleBankOFX)
	accounts, err := parser.GetAccounts(context.Background(), reader)
	require.NoError(t, err)
	assert.Contains(t, accounts, "1234567890")

	reader = strings.NewReader(sampleCreditCardOFX)
	accounts, err = parser.GetAccounts(context.Background(), reader)
	require.NoError(t, err)
	assert.Contains(t, accounts, "4111111111111111")
}
