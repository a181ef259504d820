package parsers

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// maxPDFPages caps page processing per file.
const maxPDFPages = 500

var (
	// Statement lines start with a date token.
	pdfDateToken = regexp.MustCompile(`^(\d{4}-\d{1,2}-\d{1,2}|\d{1,2}/\d{1,2}/\d{2,4}|\d{1,2}-[A-Za-z]{3}-\d{2,4})\b`)

	// Trailing money tokens: the last is the running balance when two are
	// present, otherwise the transaction amount.
	pdfAmountToken = regexp.MustCompile(`(\(?-?\$?[\d,]+\.\d{2}\)?)(?:\s+(\(?-?\$?[\d,]+\.\d{2}\)?))?\s*$`)

	pdfInstitutions = []struct {
		needle string
		name   string
	}{
		{"chase", "Chase"},
		{"bank of america", "Bank of America"},
		{"wells fargo", "Wells Fargo"},
		{"american express", "American Express"},
		{"capital one", "Capital One"},
		{"discover", "Discover"},
		{"citi", "Citi"},
		{"usaa", "USAA"},
		{"ally bank", "Ally Bank"},
	}
)

// PDFParser extracts transactions from text-based PDF statements. It walks
// page text row by row and keeps lines shaped like a statement entry: a
// leading date, a description, and one or two trailing money columns. No
// OCR; image-only PDFs yield nothing.
type PDFParser struct {
	logger *common.Logger
}

// NewPDFParser creates a PDF parser.
func NewPDFParser(logger *common.Logger) *PDFParser {
	return &PDFParser{logger: logger}
}

func (p *PDFParser) Name() string { return "pdf" }

func (p *PDFParser) SupportedExtensions() []string {
	return []string{".pdf"}
}

func (p *PDFParser) CanParse(path string) bool {
	if !hasExtension(path, p.SupportedExtensions()) {
		return false
	}
	f, r, err := pdf.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return r.NumPage() > 0
}

// Parse reads the PDF into raw transactions.
func (p *PDFParser) Parse(path string) ([]models.RawTransaction, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "cannot open PDF", Err: err}
	}
	defer f.Close()

	totalPages := r.NumPage()
	if totalPages > maxPDFPages {
		return nil, &ParseError{Path: path, Msg: fmt.Sprintf("PDF has too many pages (%d, max %d)", totalPages, maxPDFPages)}
	}

	sourceFile := filepath.Base(path)
	var transactions []models.RawTransaction
	skipped := 0
	lineNum := 0

	for i := 1; i <= totalPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			p.logger.Debug().Str("file", sourceFile).Int("page", i).Err(err).Msg("Failed to extract page text")
			continue
		}

		for _, row := range rows {
			lineNum++
			line := joinRowText(row)
			if line == "" {
				continue
			}

			txn, ok := p.parseLine(line, sourceFile, lineNum)
			if !ok {
				if pdfDateToken.MatchString(line) {
					skipped++
				}
				continue
			}
			transactions = append(transactions, txn)
		}
	}

	p.logger.Info().
		Str("file", sourceFile).
		Int("transactions", len(transactions)).
		Int("skipped", skipped).
		Msg("Parsed PDF file")

	return transactions, nil
}

// DetectInstitution reports the institution named in the first page, if any.
func (p *PDFParser) DetectInstitution(path string) string {
	f, r, err := pdf.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	if r.NumPage() < 1 {
		return ""
	}
	page := r.Page(1)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}

	lower := strings.ToLower(text)
	for _, inst := range pdfInstitutions {
		if strings.Contains(lower, inst.needle) {
			return inst.name
		}
	}
	return ""
}

// parseLine interprets one extracted text line as a statement entry.
func (p *PDFParser) parseLine(line string, sourceFile string, lineNum int) (models.RawTransaction, bool) {
	dateMatch := pdfDateToken.FindString(line)
	if dateMatch == "" {
		return models.RawTransaction{}, false
	}
	date, err := ParseDate(dateMatch)
	if err != nil {
		return models.RawTransaction{}, false
	}

	rest := strings.TrimSpace(line[len(dateMatch):])
	amountMatch := pdfAmountToken.FindStringSubmatchIndex(rest)
	if amountMatch == nil {
		return models.RawTransaction{}, false
	}

	description := strings.TrimSpace(rest[:amountMatch[0]])
	if description == "" {
		return models.RawTransaction{}, false
	}

	amountStr := rest[amountMatch[2]:amountMatch[3]]
	amount, err := ParseSignedAmount(amountStr, LocaleUS)
	if err != nil {
		return models.RawTransaction{}, false
	}

	txn := models.RawTransaction{
		Date:        date,
		Description: description,
		Amount:      amount,
		HasAmount:   true,
		Type:        models.TypeFromAmount(amount),
		SourceFile:  sourceFile,
		SourceLine:  lineNum,
	}

	// Second trailing money token is the running balance column.
	if amountMatch[4] >= 0 {
		balanceStr := rest[amountMatch[4]:amountMatch[5]]
		if balance, err := ParseSignedAmount(balanceStr, LocaleUS); err == nil {
			txn.Balance = &balance
		}
	}

	return txn, true
}

// joinRowText flattens a PDF text row into one line.
func joinRowText(row *pdf.Row) string {
	var sb strings.Builder
	for _, text := range row.Content {
		sb.WriteString(text.S)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
