package common

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	"github.com/bmorton/finledger/internal/models"
)

// Default keyword sets for anomaly detection.
var (
	DefaultFeeKeywords = []string{
		"FEE", "CHARGE", "PENALTY", "LATE FEE", "OVERDRAFT", "NSF", "RETURNED ITEM",
	}
	DefaultCashAdvanceKeywords = []string{
		"CASH ADVANCE", "CASH WITHDRAWAL", "ATM WITHDRAWAL", "CASINO",
	}
)

// Config holds all configuration for finledger.
type Config struct {
	Environment string

	// Optional date-range filter applied during normalization.
	StartDate *time.Time
	EndDate   *time.Time

	Accounts     map[string]models.Account
	FileMappings map[string]string

	Categories      map[string]models.Category
	CategoryRules   []models.CategoryRule   // sorted by priority desc, declaration order for ties
	ManualOverrides []models.ManualOverride // sorted by priority desc, declaration order for ties

	// Corrections are imported separately from reviewed output and merged
	// in by the caller; keyed by transaction fingerprint.
	Corrections map[string]models.CategoryCorrection

	Anomaly AnomalyConfig
	Output  OutputConfig
	Logging LoggingConfig
	AI      AIConfig
}

// AnomalyConfig holds anomaly detection thresholds and keyword lists.
type AnomalyConfig struct {
	LargeTransactionThreshold decimal.Decimal
	DateGapWarningDays        int
	DateGapAlertDays          int
	FeeKeywords               []string
	CashAdvanceKeywords       []string
	CustomPatterns            []CustomPattern
}

// CustomPattern is a user-supplied anomaly regex with its report reason.
type CustomPattern struct {
	Pattern string `toml:"pattern"`
	Reason  string `toml:"reason"`
}

// OutputConfig holds report generation settings.
type OutputConfig struct {
	Format         string `toml:"format"`
	DateFormat     string `toml:"date_format"`
	CurrencySymbol string `toml:"currency_symbol"`
	DecimalPlaces  int    `toml:"decimal_places"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AIConfig holds the optional Gemini categorization settings.
type AIConfig struct {
	APIKey    string  `toml:"api_key"`
	Model     string  `toml:"model"`
	RateLimit float64 `toml:"rate_limit"` // requests per second
}

// GetMatchingCorrection returns the correction for a fingerprint, or nil.
func (c *Config) GetMatchingCorrection(fingerprint string) *models.CategoryCorrection {
	if corr, ok := c.Corrections[fingerprint]; ok {
		return &corr
	}
	return nil
}

// CategoryIDByName resolves a category by exact id first, then by
// case-insensitive display name. Returns empty string when unknown.
func (c *Config) CategoryIDByName(name string) string {
	if _, ok := c.Categories[name]; ok {
		return name
	}
	for id, cat := range c.Categories {
		if strings.EqualFold(cat.Name, name) {
			return id
		}
	}
	return ""
}

// AccountForFile resolves which account a source file belongs to, checking
// explicit file mappings before account file patterns.
func (c *Config) AccountForFile(filename string) (models.Account, bool) {
	if accountID, ok := c.FileMappings[filename]; ok {
		account, found := c.Accounts[accountID]
		return account, found
	}
	for _, account := range c.Accounts {
		if account.MatchesFile(filename) {
			return account, true
		}
	}
	return models.Account{}, false
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment:  "development",
		Accounts:     map[string]models.Account{},
		FileMappings: map[string]string{},
		Categories:   map[string]models.Category{},
		Corrections:  map[string]models.CategoryCorrection{},
		Anomaly: AnomalyConfig{
			LargeTransactionThreshold: decimal.RequireFromString("5000.00"),
			DateGapWarningDays:        7,
			DateGapAlertDays:          30,
			FeeKeywords:               append([]string(nil), DefaultFeeKeywords...),
			CashAdvanceKeywords:       append([]string(nil), DefaultCashAdvanceKeywords...),
		},
		Output: OutputConfig{
			Format:         "csv",
			DateFormat:     "2006-01-02",
			CurrencySymbol: "$",
			DecimalPlaces:  2,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		AI:      AIConfig{Model: "gemini-3-flash-preview", RateLimit: 1},
	}
}

// --- raw TOML layer ---

type rawConfig struct {
	Environment string `toml:"environment"`
	StartDate   string `toml:"start_date"`
	EndDate     string `toml:"end_date"`

	Accounts     []rawAccount      `toml:"accounts"`
	FileMappings map[string]string `toml:"file_mappings"`
	Categories   []rawCategory     `toml:"categories"`
	Rules        []rawRule         `toml:"rules"`
	Overrides    []rawOverride     `toml:"overrides"`

	Anomaly rawAnomaly    `toml:"anomaly"`
	Output  OutputConfig  `toml:"output"`
	Logging LoggingConfig `toml:"logging"`
	AI      AIConfig      `toml:"ai"`
}

type rawAccount struct {
	ID                 string   `toml:"id"`
	Name               string   `toml:"name"`
	Type               string   `toml:"type"`
	Institution        string   `toml:"institution"`
	NumberMasked       string   `toml:"account_number_masked"`
	OpeningBalance     string   `toml:"opening_balance"`
	OpeningBalanceDate string   `toml:"opening_balance_date"`
	SourceFilePatterns []string `toml:"source_file_patterns"`
	DisplayOrder       int      `toml:"display_order"`
	IsActive           *bool    `toml:"is_active"`
}

type rawCategory struct {
	ID           string `toml:"id"`
	Name         string `toml:"name"`
	Type         string `toml:"type"`
	Parent       string `toml:"parent"`
	DisplayOrder int    `toml:"display_order"`
	Color        string `toml:"color"`
}

type rawRule struct {
	ID            string   `toml:"id"`
	Category      string   `toml:"category"`
	Subcategory   string   `toml:"subcategory"`
	Keywords      []string `toml:"keywords"`
	RegexPatterns []string `toml:"regex_patterns"`
	AmountMin     string   `toml:"amount_min"`
	AmountMax     string   `toml:"amount_max"`
	AccountIDs    []string `toml:"account_ids"`
	Priority      int      `toml:"priority"`
	IsActive      *bool    `toml:"is_active"`
	MatchMode     string   `toml:"match_mode"`
}

type rawOverride struct {
	Date        string   `toml:"date"`
	Amount      string   `toml:"amount"`
	Keywords    []string `toml:"keywords"`
	Category    string   `toml:"category"`
	Subcategory string   `toml:"subcategory"`
	Priority    int      `toml:"priority"`
}

type rawAnomaly struct {
	LargeTransactionThreshold string          `toml:"large_transaction_threshold"`
	DateGapWarningDays        *int            `toml:"date_gap_warning_days"`
	DateGapAlertDays          *int            `toml:"date_gap_alert_days"`
	FeeKeywords               []string        `toml:"fee_keywords"`
	CashAdvanceKeywords       []string        `toml:"cash_advance_keywords"`
	CustomPatterns            []CustomPattern `toml:"custom_patterns"`
}

// LoadConfig reads a TOML config file and builds the typed configuration.
// A missing file is non-fatal: defaults are returned with a warning.
// Defective config items (bad amounts, bad dates, unsafe regexes) are
// skipped with warnings; only unreadable TOML is an error.
func LoadConfig(path string, logger *Logger) (*Config, error) {
	cfg := NewDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("path", path).Msg("Config file not found, using defaults")
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if raw.Environment != "" {
		cfg.Environment = raw.Environment
	}
	cfg.StartDate = parseOptionalDate(raw.StartDate, "start_date", logger)
	cfg.EndDate = parseOptionalDate(raw.EndDate, "end_date", logger)

	if raw.FileMappings != nil {
		cfg.FileMappings = raw.FileMappings
	}
	for _, ra := range raw.Accounts {
		account, err := buildAccount(ra)
		if err != nil {
			logger.Warn().Str("account", ra.ID).Err(err).Msg("Skipping invalid account")
			continue
		}
		cfg.Accounts[account.ID] = account
	}

	for _, rc := range raw.Categories {
		cfg.Categories[rc.ID] = buildCategory(rc)
	}

	for _, rr := range raw.Rules {
		rule, err := buildRule(rr)
		if err != nil {
			logger.Warn().Str("rule", rr.ID).Err(err).Msg("Skipping invalid rule")
			continue
		}
		for _, warning := range rule.Compile() {
			logger.Warn().Msg(warning)
		}
		cfg.CategoryRules = append(cfg.CategoryRules, rule)
	}
	// Highest priority first; stable so declaration order breaks ties.
	sort.SliceStable(cfg.CategoryRules, func(i, j int) bool {
		return cfg.CategoryRules[i].Priority > cfg.CategoryRules[j].Priority
	})

	for _, ro := range raw.Overrides {
		override, err := buildOverride(ro)
		if err != nil {
			logger.Warn().Str("date", ro.Date).Err(err).Msg("Skipping invalid override")
			continue
		}
		cfg.ManualOverrides = append(cfg.ManualOverrides, override)
	}
	sort.SliceStable(cfg.ManualOverrides, func(i, j int) bool {
		return cfg.ManualOverrides[i].Priority > cfg.ManualOverrides[j].Priority
	})

	applyAnomaly(&cfg.Anomaly, raw.Anomaly, logger)
	if raw.Output.Format != "" {
		cfg.Output = raw.Output
	}
	if raw.Logging.Level != "" {
		cfg.Logging = raw.Logging
	}
	if raw.AI.Model != "" || raw.AI.APIKey != "" {
		if raw.AI.Model == "" {
			raw.AI.Model = cfg.AI.Model
		}
		if raw.AI.RateLimit == 0 {
			raw.AI.RateLimit = cfg.AI.RateLimit
		}
		cfg.AI = raw.AI
	}

	logger.Info().
		Int("accounts", len(cfg.Accounts)).
		Int("categories", len(cfg.Categories)).
		Int("rules", len(cfg.CategoryRules)).
		Int("overrides", len(cfg.ManualOverrides)).
		Msg("Configuration loaded")

	return cfg, nil
}

func buildAccount(ra rawAccount) (models.Account, error) {
	if ra.ID == "" {
		return models.Account{}, fmt.Errorf("account id is required")
	}
	account := models.Account{
		ID:                 ra.ID,
		Name:               ra.Name,
		Type:               models.AccountType(ra.Type),
		Institution:        ra.Institution,
		NumberMasked:       ra.NumberMasked,
		SourceFilePatterns: ra.SourceFilePatterns,
		DisplayOrder:       ra.DisplayOrder,
		IsActive:           ra.IsActive == nil || *ra.IsActive,
	}
	if account.Name == "" {
		account.Name = ra.ID
	}
	if account.Type == "" {
		account.Type = models.AccountOther
	}
	if ra.OpeningBalance != "" {
		bal, err := decimal.NewFromString(ra.OpeningBalance)
		if err != nil {
			return models.Account{}, fmt.Errorf("invalid opening_balance %q: %w", ra.OpeningBalance, err)
		}
		account.OpeningBalance = bal
	}
	if ra.OpeningBalanceDate != "" {
		d, err := time.Parse("2006-01-02", ra.OpeningBalanceDate)
		if err != nil {
			return models.Account{}, fmt.Errorf("invalid opening_balance_date %q: %w", ra.OpeningBalanceDate, err)
		}
		account.OpeningBalanceDate = &d
	}
	return account, nil
}

func buildCategory(rc rawCategory) models.Category {
	category := models.Category{
		ID:           rc.ID,
		Name:         rc.Name,
		Type:         models.CategoryType(rc.Type),
		ParentID:     rc.Parent,
		DisplayOrder: rc.DisplayOrder,
		Color:        rc.Color,
	}
	if category.Name == "" {
		category.Name = rc.ID
	}
	if category.Type == "" {
		category.Type = models.CategoryExpense
	}
	return category
}

func buildRule(rr rawRule) (models.CategoryRule, error) {
	if rr.ID == "" || rr.Category == "" {
		return models.CategoryRule{}, fmt.Errorf("rule id and category are required")
	}
	rule := models.CategoryRule{
		ID:            rr.ID,
		CategoryID:    rr.Category,
		SubcategoryID: rr.Subcategory,
		Keywords:      rr.Keywords,
		RegexPatterns: rr.RegexPatterns,
		AccountIDs:    rr.AccountIDs,
		Priority:      rr.Priority,
		IsActive:      rr.IsActive == nil || *rr.IsActive,
		MatchMode:     models.MatchSubstring,
	}
	if rr.MatchMode == string(models.MatchWordBoundary) {
		rule.MatchMode = models.MatchWordBoundary
	}
	if rr.AmountMin != "" {
		v, err := decimal.NewFromString(rr.AmountMin)
		if err != nil {
			return models.CategoryRule{}, fmt.Errorf("invalid amount_min %q: %w", rr.AmountMin, err)
		}
		rule.AmountMin = &v
	}
	if rr.AmountMax != "" {
		v, err := decimal.NewFromString(rr.AmountMax)
		if err != nil {
			return models.CategoryRule{}, fmt.Errorf("invalid amount_max %q: %w", rr.AmountMax, err)
		}
		rule.AmountMax = &v
	}
	return rule, nil
}

func buildOverride(ro rawOverride) (models.ManualOverride, error) {
	if ro.Date == "" || ro.Category == "" {
		return models.ManualOverride{}, fmt.Errorf("override date and category are required")
	}
	if _, err := time.Parse("2006-01-02", ro.Date); err != nil {
		return models.ManualOverride{}, fmt.Errorf("invalid date %q: %w", ro.Date, err)
	}
	amount, err := decimal.NewFromString(ro.Amount)
	if err != nil {
		return models.ManualOverride{}, fmt.Errorf("invalid amount %q: %w", ro.Amount, err)
	}
	return models.ManualOverride{
		DateStr:       ro.Date,
		Amount:        amount,
		Keywords:      ro.Keywords,
		CategoryID:    ro.Category,
		SubcategoryID: ro.Subcategory,
		Priority:      ro.Priority,
	}, nil
}

func applyAnomaly(dst *AnomalyConfig, raw rawAnomaly, logger *Logger) {
	if raw.LargeTransactionThreshold != "" {
		if v, err := decimal.NewFromString(raw.LargeTransactionThreshold); err == nil {
			dst.LargeTransactionThreshold = v
		} else {
			logger.Warn().
				Str("value", raw.LargeTransactionThreshold).
				Str("default", dst.LargeTransactionThreshold.String()).
				Msg("Invalid large_transaction_threshold, keeping default")
		}
	}
	if raw.DateGapWarningDays != nil {
		dst.DateGapWarningDays = *raw.DateGapWarningDays
	}
	if raw.DateGapAlertDays != nil {
		dst.DateGapAlertDays = *raw.DateGapAlertDays
	}
	if raw.FeeKeywords != nil {
		dst.FeeKeywords = raw.FeeKeywords
	}
	if raw.CashAdvanceKeywords != nil {
		dst.CashAdvanceKeywords = raw.CashAdvanceKeywords
	}
	dst.CustomPatterns = raw.CustomPatterns
}

func parseOptionalDate(s, field string, logger *Logger) *time.Time {
	if s == "" {
		return nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		logger.Warn().Str("field", field).Str("value", s).Msg("Invalid date in config, ignoring")
		return nil
	}
	return &d
}
