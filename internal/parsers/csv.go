package parsers

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

const (
	// maxCSVFileSize caps input files at 50 MB.
	maxCSVFileSize = 50 * 1024 * 1024

	// maxCSVRows caps row counts independently of file size.
	maxCSVRows = 500_000
)

// columnMapping maps statement fields to column indices; -1 means absent.
// A format carries either a single signed amount column or separate
// debit/credit columns.
type columnMapping struct {
	date        int
	description int
	amount      int
	debit       int
	credit      int
	balance     int
	category    int
	checkNumber int
	memo        int
}

func emptyMapping() columnMapping {
	return columnMapping{
		date: -1, description: -1, amount: -1, debit: -1, credit: -1,
		balance: -1, category: -1, checkNumber: -1, memo: -1,
	}
}

func (m columnMapping) valid() bool {
	if m.date < 0 || m.description < 0 {
		return false
	}
	return m.amount >= 0 || (m.debit >= 0 && m.credit >= 0)
}

// csvFormat is the outcome of content-based format detection.
type csvFormat struct {
	delimiter   rune
	skipRows    int
	mapping     columnMapping
	institution string
}

// knownCSVFormats are recognizable bank export layouts, tried in order. A
// format matches when at least three of its headers appear.
var knownCSVFormats = []struct {
	name        string
	institution string
	headers     []string
	build       func(cols map[string]int) columnMapping
}{
	{
		name:        "chase",
		institution: "Chase",
		headers:     []string{"transaction date", "post date", "description", "category", "type", "amount"},
		build: func(cols map[string]int) columnMapping {
			m := emptyMapping()
			m.date = colOr(cols, "transaction date", colOr(cols, "posting date", 0))
			m.description = colOr(cols, "description", 1)
			m.amount = colOr(cols, "amount", -1)
			m.category = colOr(cols, "category", -1)
			return m
		},
	},
	{
		name:        "bank_of_america",
		institution: "Bank of America",
		headers:     []string{"date", "description", "amount", "running bal."},
		build: func(cols map[string]int) columnMapping {
			m := emptyMapping()
			m.date = colOr(cols, "date", 0)
			m.description = colOr(cols, "description", 1)
			m.amount = colOr(cols, "amount", 2)
			m.balance = colOr(cols, "running bal.", -1)
			return m
		},
	},
	{
		name:        "wells_fargo",
		institution: "Wells Fargo",
		headers:     []string{"date", "amount", "description"},
		build: func(cols map[string]int) columnMapping {
			m := emptyMapping()
			m.date = colOr(cols, "date", 0)
			m.description = colOr(cols, "description", 2)
			m.amount = colOr(cols, "amount", 1)
			return m
		},
	},
	{
		name:        "capital_one",
		institution: "Capital One",
		headers:     []string{"transaction date", "posted date", "card no.", "description", "category", "debit", "credit"},
		build: func(cols map[string]int) columnMapping {
			m := emptyMapping()
			m.date = colOr(cols, "transaction date", colOr(cols, "posted date", 0))
			m.description = colOr(cols, "description", 3)
			m.debit = colOr(cols, "debit", -1)
			m.credit = colOr(cols, "credit", -1)
			m.category = colOr(cols, "category", -1)
			return m
		},
	},
	{
		name:        "discover",
		institution: "Discover",
		headers:     []string{"trans. date", "post date", "description", "amount", "category"},
		build: func(cols map[string]int) columnMapping {
			m := emptyMapping()
			m.date = colOr(cols, "trans. date", colOr(cols, "post date", 0))
			m.description = colOr(cols, "description", 2)
			m.amount = colOr(cols, "amount", 3)
			m.category = colOr(cols, "category", -1)
			return m
		},
	},
	{
		name:        "citi",
		institution: "Citi",
		headers:     []string{"date", "description", "debit", "credit"},
		build: func(cols map[string]int) columnMapping {
			m := emptyMapping()
			m.date = colOr(cols, "date", 0)
			m.description = colOr(cols, "description", 1)
			m.debit = colOr(cols, "debit", -1)
			m.credit = colOr(cols, "credit", -1)
			return m
		},
	},
	{
		name:        "ally",
		institution: "Ally Bank",
		headers:     []string{"date", "time", "amount", "type", "description"},
		build: func(cols map[string]int) columnMapping {
			m := emptyMapping()
			m.date = colOr(cols, "date", 0)
			m.description = colOr(cols, "description", 4)
			m.amount = colOr(cols, "amount", 2)
			return m
		},
	},
	{
		name:        "generic_amount",
		institution: "",
		headers:     []string{"date", "description", "amount"},
		build: func(cols map[string]int) columnMapping {
			m := emptyMapping()
			m.date = colOr(cols, "date", 0)
			m.description = colOr(cols, "description", 1)
			m.amount = colOr(cols, "amount", 2)
			return m
		},
	},
}

func colOr(cols map[string]int, name string, fallback int) int {
	if i, ok := cols[name]; ok {
		return i
	}
	return fallback
}

var (
	numericCellPattern   = regexp.MustCompile(`^[\d\$\-\.,\(\)]+$`)
	metadataLinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^account\s*(number|#|:)`),
		regexp.MustCompile(`^statement\s*(period|date)`),
		regexp.MustCompile(`^as\s*of`),
		regexp.MustCompile(`^downloaded`),
		regexp.MustCompile(`^generated`),
	}
	headerKeywords = []string{
		"date", "description", "amount", "debit", "credit", "balance",
		"type", "category", "memo", "check", "transaction", "posted",
	}
)

// CSVParser parses CSV bank statement exports. Format detection sniffs the
// delimiter, skips metadata preamble lines and maps columns by header name,
// trying known bank layouts before generic auto-detection.
type CSVParser struct {
	logger *common.Logger

	// Strict makes row-level parse failures fatal instead of skipped.
	Strict bool
}

// NewCSVParser creates a CSV parser.
func NewCSVParser(logger *common.Logger) *CSVParser {
	return &CSVParser{logger: logger}
}

func (p *CSVParser) Name() string { return "csv" }

func (p *CSVParser) SupportedExtensions() []string {
	return []string{".csv", ".tsv", ".txt"}
}

func (p *CSVParser) CanParse(path string) bool {
	if !hasExtension(path, p.SupportedExtensions()) {
		return false
	}
	fmt_, err := p.detectFormat(path)
	return err == nil && fmt_ != nil
}

// Parse reads the file into raw transactions. Unparseable rows are skipped
// with warnings unless Strict is set.
func (p *CSVParser) Parse(path string) ([]models.RawTransaction, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "cannot stat file", Err: err}
	}
	if info.Size() > maxCSVFileSize {
		return nil, &ParseError{Path: path, Msg: fmt.Sprintf("file too large (%d bytes, max %d)", info.Size(), maxCSVFileSize)}
	}

	format, err := p.detectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == nil {
		return nil, &ParseError{Path: path, Msg: "could not detect CSV format"}
	}

	institution := format.institution
	if institution == "" {
		institution = "generic"
	}
	p.logger.Info().
		Str("file", filepath.Base(path)).
		Str("format", institution).
		Msg("Parsing CSV file")

	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "cannot open file", Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = format.delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	sourceFile := filepath.Base(path)
	var transactions []models.RawTransaction
	skipped := 0
	rows := 0

	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if p.Strict {
				return nil, &ParseError{Path: path, Msg: "malformed row", Err: err}
			}
			skipped++
			continue
		}

		// Physical file line, so the preamble skip agrees with detection
		// even when the reader swallows blank lines.
		line, _ := reader.FieldPos(0)

		// Preamble and the header row itself are not data.
		if line <= format.skipRows+1 {
			continue
		}
		rows++
		if rows > maxCSVRows {
			return nil, &ParseError{Path: path, Msg: fmt.Sprintf("file exceeds maximum row limit (%d)", maxCSVRows)}
		}
		if isBlankRecord(record) {
			continue
		}

		txn, ok := parseStatementRecord(p.logger, record, format.mapping, sourceFile, line)
		if !ok {
			if p.Strict {
				return nil, &ParseError{Path: path, Msg: fmt.Sprintf("line %d: could not parse transaction", line)}
			}
			skipped++
			continue
		}
		transactions = append(transactions, txn)
	}

	p.logger.Info().
		Str("file", sourceFile).
		Int("transactions", len(transactions)).
		Int("skipped", skipped).
		Msg("Parsed CSV file")

	return transactions, nil
}

// DetectInstitution reports the bank layout the file matched, if any.
func (p *CSVParser) DetectInstitution(path string) string {
	format, err := p.detectFormat(path)
	if err != nil || format == nil {
		return ""
	}
	return format.institution
}

// parseStatementRecord turns one row of cells into a raw transaction. It is
// shared by the CSV and Excel parsers, which both reduce their input to
// string records plus a column mapping.
func parseStatementRecord(logger *common.Logger, record []string, m columnMapping, sourceFile string, line int) (models.RawTransaction, bool) {
	dateStr := cell(record, m.date)
	if dateStr == "" {
		return models.RawTransaction{}, false
	}
	date, err := ParseDate(dateStr)
	if err != nil {
		logger.Debug().Str("file", sourceFile).Int("line", line).Str("date", dateStr).Msg("Unparseable date, skipping row")
		return models.RawTransaction{}, false
	}

	description := cell(record, m.description)
	if description == "" {
		return models.RawTransaction{}, false
	}

	txn := models.RawTransaction{
		Date:        date,
		Description: description,
		SourceFile:  sourceFile,
		SourceLine:  line,
	}

	if m.amount >= 0 {
		if amountStr := cell(record, m.amount); amountStr != "" {
			if amount, err := ParseSignedAmount(amountStr, LocaleUS); err == nil {
				txn.Amount = amount
				txn.HasAmount = true
				txn.Type = models.TypeFromAmount(amount)
			}
		}
	} else {
		debitStr, creditStr := cell(record, m.debit), cell(record, m.credit)
		debit, _, debitErr := ParseAmount(debitStr, LocaleUS)
		credit, _, creditErr := ParseAmount(creditStr, LocaleUS)
		hasDebit := debitStr != "" && debitErr == nil
		hasCredit := creditStr != "" && creditErr == nil

		if hasDebit && hasCredit && !debit.IsZero() && !credit.IsZero() {
			logger.Warn().
				Str("file", sourceFile).
				Int("line", line).
				Msg("Row has both debit and credit values, using debit")
		}

		// Zero-amount rows stay: fee reversals and adjustments are real.
		switch {
		case hasDebit:
			txn.Amount = debit.Neg()
			txn.HasAmount = true
			txn.Type = models.TxDebit
		case hasCredit:
			txn.Amount = credit
			txn.HasAmount = true
			txn.Type = models.TxCredit
		}
	}

	if !txn.HasAmount {
		return models.RawTransaction{}, false
	}

	if m.balance >= 0 {
		if balanceStr := cell(record, m.balance); balanceStr != "" {
			if balance, err := ParseSignedAmount(balanceStr, LocaleUS); err == nil {
				txn.Balance = &balance
			}
		}
	}
	if m.category >= 0 {
		txn.OriginalCategory = cell(record, m.category)
	}
	if m.checkNumber >= 0 {
		txn.CheckNumber = cell(record, m.checkNumber)
	}
	if m.memo >= 0 {
		txn.Memo = cell(record, m.memo)
	}

	return txn, true
}

// detectFormat sniffs delimiter and column layout from the file's first
// lines. Returns nil when no usable layout is found.
func (p *CSVParser) detectFormat(path string) (*csvFormat, error) {
	lines, err := readFirstLines(path, 20)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "cannot read file", Err: err}
	}
	if len(lines) == 0 {
		return nil, nil
	}

	delimiter := detectDelimiter(lines)

	// Statement exports often carry a metadata preamble before the header.
	headerIdx := -1
	for i, ln := range lines {
		if isMetadataLine(ln) {
			continue
		}
		if looksLikeHeader(ln, delimiter) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, nil
	}

	headers := splitCSVLine(lines[headerIdx], delimiter)
	if len(headers) == 0 {
		return nil, nil
	}

	cols := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, exists := cols[key]; !exists {
			cols[key] = i
		}
	}

	for _, known := range knownCSVFormats {
		matches := 0
		for _, h := range known.headers {
			if _, ok := cols[h]; ok {
				matches++
			}
		}
		// At least three headers, and a strict majority of the layout's
		// headers, must be present.
		if matches < 3 || matches*2 <= len(known.headers) {
			continue
		}
		mapping := known.build(cols)
		if !mapping.valid() {
			continue
		}
		return &csvFormat{
			delimiter:   delimiter,
			skipRows:    headerIdx,
			mapping:     mapping,
			institution: known.institution,
		}, nil
	}

	if mapping, ok := autoDetectColumns(cols); ok {
		return &csvFormat{
			delimiter: delimiter,
			skipRows:  headerIdx,
			mapping:   mapping,
		}, nil
	}

	return nil, nil
}

// autoDetectColumns maps columns by header keywords when no known bank
// layout matched.
func autoDetectColumns(cols map[string]int) (columnMapping, bool) {
	m := emptyMapping()

	assign := func(target *int, header string, idx int, keywords ...string) {
		if *target >= 0 {
			return
		}
		for _, kw := range keywords {
			if strings.Contains(header, kw) {
				*target = idx
				return
			}
		}
	}

	for header, idx := range cols {
		if !strings.Contains(header, "description") {
			assign(&m.date, header, idx, "date", "posted", "trans")
		}
		assign(&m.description, header, idx, "description", "desc", "memo", "payee", "merchant")
		assign(&m.amount, header, idx, "amount")
		assign(&m.debit, header, idx, "debit", "withdrawal", "payment")
		assign(&m.credit, header, idx, "credit", "deposit")
		assign(&m.balance, header, idx, "balance", "bal", "running")
		assign(&m.checkNumber, header, idx, "check")
	}

	return m, m.valid()
}

func detectDelimiter(lines []string) rune {
	candidates := []rune{',', '\t', ';', '|'}

	best := ','
	bestScore := 0.0
	sample := lines
	if len(sample) > 10 {
		sample = sample[:10]
	}

	for _, d := range candidates {
		nonZero := 0
		total := 0
		for _, ln := range sample {
			count := strings.Count(ln, string(d))
			if count > 0 {
				nonZero++
				total += count
			}
		}
		if nonZero == 0 || nonZero*2 <= len(sample) {
			continue
		}
		avg := float64(total) / float64(nonZero)
		if avg > bestScore {
			bestScore = avg
			best = d
		}
	}

	return best
}

func looksLikeHeader(line string, delimiter rune) bool {
	parts := strings.Split(line, string(delimiter))
	if len(parts) < 2 {
		return false
	}

	textCount, keywordCount := 0, 0
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" && !numericCellPattern.MatchString(trimmed) {
			textCount++
		}
		lower := strings.ToLower(part)
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				keywordCount++
				break
			}
		}
	}

	return textCount*2 >= len(parts) && keywordCount >= 2
}

func isMetadataLine(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if lower == "" {
		return true
	}
	for _, re := range metadataLinePatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func splitCSVLine(line string, delimiter rune) []string {
	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	record, err := reader.Read()
	if err != nil {
		return strings.Split(line, string(delimiter))
	}
	return record
}

func readFirstLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() && len(lines) < n {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
