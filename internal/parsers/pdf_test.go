package parsers

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bmorton/finledger/internal/models"
)

func TestPDFParseLine(t *testing.T) {
	parser := NewPDFParser(testLogger())

	tests := []struct {
		line        string
		description string
		amount      string
		balance     string // empty when absent
		txType      models.TransactionType
	}{
		{
			line:        "03/15/2024 STARBUCKS #1234 -5.75",
			description: "STARBUCKS #1234",
			amount:      "-5.75",
			txType:      models.TxDebit,
		},
		{
			line:        "03/15/2024 DIRECT DEPOSIT PAYROLL 2,500.00 3,495.50",
			description: "DIRECT DEPOSIT PAYROLL",
			amount:      "2500.00",
			balance:     "3495.50",
			txType:      models.TxCredit,
		},
		{
			line:        "2024-03-16 CHECK PAYMENT (125.00) 3,370.50",
			description: "CHECK PAYMENT",
			amount:      "-125.00",
			balance:     "3370.50",
			txType:      models.TxDebit,
		},
		{
			line:        "15-Mar-2024 ATM WITHDRAWAL $60.00",
			description: "ATM WITHDRAWAL",
			amount:      "60.00",
			txType:      models.TxCredit,
		},
	}

	for _, tt := range tests {
		txn, ok := parser.parseLine(tt.line, "stmt.pdf", 1)
		if !ok {
			t.Errorf("parseLine(%q) rejected", tt.line)
			continue
		}
		if txn.Description != tt.description {
			t.Errorf("parseLine(%q) description = %q, want %q", tt.line, txn.Description, tt.description)
		}
		if !txn.Amount.Equal(decimal.RequireFromString(tt.amount)) {
			t.Errorf("parseLine(%q) amount = %s, want %s", tt.line, txn.Amount, tt.amount)
		}
		if txn.Type != tt.txType {
			t.Errorf("parseLine(%q) type = %q, want %q", tt.line, txn.Type, tt.txType)
		}
		if tt.balance == "" {
			if txn.Balance != nil {
				t.Errorf("parseLine(%q) balance = %v, want nil", tt.line, txn.Balance)
			}
		} else if txn.Balance == nil || !txn.Balance.Equal(decimal.RequireFromString(tt.balance)) {
			t.Errorf("parseLine(%q) balance = %v, want %s", tt.line, txn.Balance, tt.balance)
		}
	}
}

func TestPDFParseLineRejections(t *testing.T) {
	parser := NewPDFParser(testLogger())

	rejected := []string{
		"",
		"Beginning balance as of 03/01/2024",  // no leading date
		"03/15/2024 NO AMOUNT HERE",           // no trailing money token
		"03/15/2024 -5.75",                    // no description between
		"Page 3 of 7",                         // nothing statement-shaped
		"Total fees this period        35.00", // summary line, no date
	}
	for _, line := range rejected {
		if _, ok := parser.parseLine(line, "stmt.pdf", 1); ok {
			t.Errorf("parseLine(%q) accepted, want rejected", line)
		}
	}
}

func TestPDFCanParseRejectsNonPDF(t *testing.T) {
	parser := NewPDFParser(testLogger())
	if parser.CanParse("statement.csv") {
		t.Error("should reject non-pdf extensions")
	}
	if parser.CanParse(writeFixture(t, "fake.pdf", "not really a pdf")) {
		t.Error("should reject files that are not valid PDFs")
	}
}
