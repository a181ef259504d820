package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// CategoryType classifies a category for P&L reporting.
type CategoryType string

const (
	CategoryIncome   CategoryType = "income"
	CategoryExpense  CategoryType = "expense"
	CategoryTransfer CategoryType = "transfer"
)

// MatchMode controls how rule keywords are matched against descriptions.
type MatchMode string

const (
	MatchSubstring    MatchMode = "substring" // "SHELL" matches "SHELLPOINT"
	MatchWordBoundary MatchMode = "word"      // "SHELL" only matches as a whole word
)

// Category is a category definition with optional parent for subcategories.
type Category struct {
	ID           string
	Name         string
	Type         CategoryType
	ParentID     string
	DisplayOrder int
	Color        string
}

// IsSubcategory reports whether this category has a parent.
func (c Category) IsSubcategory() bool { return c.ParentID != "" }

// MatchedBy identifies which rule criterion produced a match.
type MatchedBy string

const (
	MatchedByRegex   MatchedBy = "regex"
	MatchedByKeyword MatchedBy = "keyword"
	MatchedByFilter  MatchedBy = "filter"
)

// MatchResult is the outcome of a successful rule match. Confidence is
// always within [0.0, 1.0]; constructing one outside that range is a
// programming defect.
type MatchResult struct {
	Confidence   float64
	Factors      []string
	MatchedValue string
	MatchedBy    MatchedBy
}

// NewMatchResult builds a MatchResult, panicking when confidence is outside
// [0.0, 1.0]. Out-of-range confidence signals broken scoring logic and must
// never be clamped.
func NewMatchResult(confidence float64, factors []string, matchedValue string, matchedBy MatchedBy) *MatchResult {
	if confidence < 0.0 || confidence > 1.0 {
		panic(fmt.Sprintf("match confidence %v outside [0.0, 1.0]", confidence))
	}
	return &MatchResult{
		Confidence:   confidence,
		Factors:      factors,
		MatchedValue: matchedValue,
		MatchedBy:    matchedBy,
	}
}

// CategoryRule matches transactions to a category by keywords, regex
// patterns, amount window and account filter. Call Compile once after
// construction; unsafe or invalid regex patterns are dropped there, not at
// match time.
type CategoryRule struct {
	ID            string
	CategoryID    string
	SubcategoryID string

	Keywords      []string
	RegexPatterns []string
	AmountMin     *decimal.Decimal
	AmountMax     *decimal.Decimal
	AccountIDs    []string

	Priority  int
	IsActive  bool
	MatchMode MatchMode

	compiled        []compiledPattern
	compileWarnings []string
}

type compiledPattern struct {
	source string
	re     *regexp.Regexp
}

// Compile validates and compiles the rule's regex patterns, recording a
// warning for every rejected pattern. It also records a warning when the
// rule ends up with no criteria (matches everything) or when regex patterns
// were given but all rejected (matches nothing). Warnings are returned for
// the caller to log; compilation itself never fails the rule.
func (r *CategoryRule) Compile() []string {
	r.compiled = nil
	r.compileWarnings = nil

	for _, pattern := range r.RegexPatterns {
		re, reason := CompileGuarded(pattern)
		if re == nil {
			r.compileWarnings = append(r.compileWarnings,
				fmt.Sprintf("rule %q: rejecting pattern %q: %s", r.ID, pattern, reason))
			continue
		}
		r.compiled = append(r.compiled, compiledPattern{source: pattern, re: re})
	}

	hasCriteria := len(r.Keywords) > 0 || len(r.compiled) > 0 ||
		r.AmountMin != nil || r.AmountMax != nil || len(r.AccountIDs) > 0
	if !hasCriteria {
		if len(r.RegexPatterns) > 0 {
			r.compileWarnings = append(r.compileWarnings,
				fmt.Sprintf("rule %q: all regex patterns were rejected; rule will match nothing", r.ID))
		} else {
			r.compileWarnings = append(r.compileWarnings,
				fmt.Sprintf("rule %q: no matching criteria; rule will match all transactions", r.ID))
		}
	}
	return r.compileWarnings
}

// CompileWarnings returns the warnings recorded by the last Compile call.
func (r *CategoryRule) CompileWarnings() []string { return r.compileWarnings }

// Match evaluates the rule against a transaction. It returns nil when the
// rule does not apply. Keyword and regex criteria compose with OR when both
// are present; a rule whose regex patterns were all rejected matches
// nothing, while a rule with neither keywords nor patterns matches on its
// amount/account filters alone.
func (r *CategoryRule) Match(description string, amount decimal.Decimal, accountID string) *MatchResult {
	if !r.IsActive {
		return nil
	}
	if len(r.AccountIDs) > 0 && !containsString(r.AccountIDs, accountID) {
		return nil
	}

	absAmount := amount.Abs()
	if r.AmountMin != nil && absAmount.LessThan(*r.AmountMin) {
		return nil
	}
	if r.AmountMax != nil && absAmount.GreaterThan(*r.AmountMax) {
		return nil
	}

	descLower := strings.ToLower(description)

	matchedKeyword, keywordAtStart := "", false
	if len(r.Keywords) > 0 {
		matchedKeyword, keywordAtStart = r.matchKeyword(descLower)
	}

	matchedPattern := ""
	for _, cp := range r.compiled {
		if cp.re.MatchString(description) {
			matchedPattern = cp.source
			break
		}
	}

	switch {
	case len(r.Keywords) > 0 && len(r.RegexPatterns) > 0:
		if matchedPattern == "" && matchedKeyword == "" {
			return nil
		}
	case len(r.Keywords) > 0:
		if matchedKeyword == "" {
			return nil
		}
	case len(r.RegexPatterns) > 0:
		// Patterns were specified; if all were rejected, compiled is empty
		// and the rule matches nothing.
		if matchedPattern == "" {
			return nil
		}
	}

	if matchedPattern != "" {
		return r.scoreRegexMatch(matchedPattern)
	}
	if matchedKeyword != "" {
		return r.scoreKeywordMatch(matchedKeyword, keywordAtStart)
	}
	return r.scoreFilterMatch()
}

// matchKeyword returns the first matching keyword and whether the match
// starts at the beginning of the description.
func (r *CategoryRule) matchKeyword(descLower string) (string, bool) {
	for _, keyword := range r.Keywords {
		kwLower := strings.ToLower(keyword)
		if r.MatchMode == MatchWordBoundary {
			re, err := regexp.Compile(`\b` + regexp.QuoteMeta(kwLower) + `\b`)
			if err != nil {
				continue
			}
			loc := re.FindStringIndex(descLower)
			if loc != nil {
				return keyword, loc[0] == 0
			}
		} else {
			idx := strings.Index(descLower, kwLower)
			if idx >= 0 {
				return keyword, idx == 0
			}
		}
	}
	return "", false
}

func (r *CategoryRule) scoreRegexMatch(pattern string) *MatchResult {
	var confidence float64
	var factors []string

	if strings.HasPrefix(pattern, "^") {
		confidence = 0.92
		factors = append(factors, "Anchored regex match (base 0.92)")
		if len(pattern) > 10 {
			confidence += 0.04
			factors = append(factors, "Specific pattern, length > 10 (+0.04)")
		}
		if len(pattern) > 20 {
			confidence += 0.04
			factors = append(factors, "Highly specific pattern, length > 20 (+0.04)")
		}
		confidence = capAt(confidence, 1.0)
	} else {
		confidence = 0.85
		factors = append(factors, "Regex match (base 0.85)")
		if strings.Contains(pattern, `\b`) {
			confidence += 0.05
			factors = append(factors, "Pattern uses word boundary (+0.05)")
		}
		confidence = capAt(confidence, 0.98)
	}

	confidence, factors = r.applyPriorityBonus(confidence, factors)
	return NewMatchResult(confidence, factors, pattern, MatchedByRegex)
}

func (r *CategoryRule) scoreKeywordMatch(keyword string, atStart bool) *MatchResult {
	var confidence, ceiling float64
	var factors []string

	if r.MatchMode == MatchWordBoundary {
		confidence, ceiling = 0.77, 0.95
		factors = append(factors, "Whole-word keyword match (base 0.77)")
		if atStart {
			confidence += 0.10
			factors = append(factors, "Match at description start (+0.10)")
		}
		if len(keyword) > 8 {
			confidence += 0.05
			factors = append(factors, "Long keyword (+0.05)")
		}
	} else {
		confidence, ceiling = 0.70, 0.88
		factors = append(factors, "Substring keyword match (base 0.70)")
		if atStart {
			confidence += 0.10
			factors = append(factors, "Match at description start (+0.10)")
		}
		if len(keyword) > 10 {
			confidence += 0.05
			factors = append(factors, "Long keyword (+0.05)")
		}
	}
	confidence = capAt(confidence, ceiling)

	confidence, factors = r.applyPriorityBonus(confidence, factors)
	return NewMatchResult(confidence, factors, keyword, MatchedByKeyword)
}

func (r *CategoryRule) scoreFilterMatch() *MatchResult {
	confidence := 0.50
	factors := []string{"Amount/account filter match (base 0.50)"}

	if r.AmountMin != nil && r.AmountMax != nil {
		width := r.AmountMax.Sub(*r.AmountMin)
		if width.LessThan(decimal.NewFromInt(100)) {
			confidence += 0.15
			factors = append(factors, "Narrow amount window (+0.15)")
		}
	}
	confidence = capAt(confidence, 0.70)

	confidence, factors = r.applyPriorityBonus(confidence, factors)
	return NewMatchResult(confidence, factors, "", MatchedByFilter)
}

// applyPriorityBonus adds min(0.05, (priority-50)/1000) for rules with
// priority above 50, capping the overall confidence at 1.0.
func (r *CategoryRule) applyPriorityBonus(confidence float64, factors []string) (float64, []string) {
	if r.Priority > 50 {
		bonus := float64(r.Priority-50) / 1000
		if bonus > 0.05 {
			bonus = 0.05
		}
		confidence += bonus
		factors = append(factors, fmt.Sprintf("High-priority rule (+%.3f)", bonus))
	}
	return capAt(confidence, 1.0), factors
}

func capAt(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ManualOverride assigns a category to transactions matching an exact date
// and amount, optionally narrowed by description keywords.
type ManualOverride struct {
	DateStr       string // YYYY-MM-DD
	Amount        decimal.Decimal
	Keywords      []string
	CategoryID    string
	SubcategoryID string
	Priority      int
}

// Matches reports whether a transaction satisfies all specified criteria:
// exact date, exact amount, and (when keywords are given) at least one
// case-insensitive substring match in the description.
func (o ManualOverride) Matches(dateStr string, amount decimal.Decimal, description string) bool {
	if dateStr != o.DateStr {
		return false
	}
	if !amount.Equal(o.Amount) {
		return false
	}
	if len(o.Keywords) == 0 {
		return true
	}
	descLower := strings.ToLower(description)
	for _, keyword := range o.Keywords {
		if strings.Contains(descLower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// CategoryCorrection is a category assignment imported from human-reviewed
// output, keyed by transaction fingerprint. Corrections outrank every other
// categorization source.
type CategoryCorrection struct {
	Fingerprint    string
	CategoryID     string
	SubcategoryID  string
	OriginalSource string
	CorrectedAt    string
	SourceFile     string
}

// CategorySuggestion is an AI-proposed category for a transaction.
type CategorySuggestion struct {
	CategoryID string
	Confidence float64
	Reasoning  string
}
