package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType identifies the kind of financial account.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountLoan       AccountType = "loan"
	AccountInvestment AccountType = "investment"
	AccountCash       AccountType = "cash"
	AccountOther      AccountType = "other"
)

// Account represents a financial account transactions belong to.
type Account struct {
	ID           string
	Name         string
	Type         AccountType
	Institution  string
	NumberMasked string

	// OpeningBalance seeds the running-balance walk. OpeningBalanceDate,
	// when set, is a cutoff: transactions dated before it are excluded
	// from balance accumulation.
	OpeningBalance     decimal.Decimal
	OpeningBalanceDate *time.Time

	SourceFilePatterns []string
	DisplayOrder       int
	IsActive           bool
}

// MatchesFile reports whether a filename matches any of the account's
// source file patterns (case-insensitive glob).
func (a Account) MatchesFile(filename string) bool {
	nameLower := strings.ToLower(filename)
	for _, pattern := range a.SourceFilePatterns {
		ok, err := filepath.Match(strings.ToLower(pattern), nameLower)
		if err == nil && ok {
			return true
		}
	}
	return false
}
