package parsers

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// maxOFXFileSize caps input files at 50 MB.
const maxOFXFileSize = 50 * 1024 * 1024

var (
	// DOCTYPE declarations can carry SYSTEM/PUBLIC external entity
	// references; stripped before any parsing (XXE).
	doctypePattern = regexp.MustCompile(`(?is)<!DOCTYPE\s+[^>]*>`)

	ofxEntityReplacer = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'",
	)
)

// OFXParser parses OFX and QFX statement exports. It handles both OFX 2.x
// XML and the OFX 1.x SGML variant banks still emit, where field tags have
// no closing tag: a value runs from the tag to the next tag or end of line.
type OFXParser struct {
	logger *common.Logger
}

// NewOFXParser creates an OFX parser.
func NewOFXParser(logger *common.Logger) *OFXParser {
	return &OFXParser{logger: logger}
}

func (p *OFXParser) Name() string { return "ofx" }

func (p *OFXParser) SupportedExtensions() []string {
	return []string{".ofx", ".qfx"}
}

func (p *OFXParser) CanParse(path string) bool {
	if !hasExtension(path, p.SupportedExtensions()) {
		return false
	}
	lines, err := readFirstLines(path, 20)
	if err != nil {
		return false
	}
	head := strings.ToUpper(strings.Join(lines, "\n"))
	return strings.Contains(head, "OFXHEADER") || strings.Contains(head, "<OFX>")
}

// Parse reads the file into raw transactions. Records missing a date or
// amount are skipped with warnings.
func (p *OFXParser) Parse(path string) ([]models.RawTransaction, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "cannot stat file", Err: err}
	}
	if info.Size() > maxOFXFileSize {
		return nil, &ParseError{Path: path, Msg: fmt.Sprintf("file too large (%d bytes, max %d)", info.Size(), maxOFXFileSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "cannot read file", Err: err}
	}

	content := string(doctypePattern.ReplaceAll(data, nil))
	upper := strings.ToUpper(content)
	if !strings.Contains(upper, "OFXHEADER") && !strings.Contains(upper, "<OFX>") {
		return nil, &ParseError{Path: path, Msg: "not an OFX file"}
	}

	sourceFile := filepath.Base(path)
	var transactions []models.RawTransaction
	skipped := 0

	for _, block := range stmtTrnBlocks(content, upper) {
		txn, ok := p.parseBlock(block, sourceFile)
		if !ok {
			skipped++
			continue
		}
		transactions = append(transactions, txn)
	}

	p.logger.Info().
		Str("file", sourceFile).
		Int("transactions", len(transactions)).
		Int("skipped", skipped).
		Msg("Parsed OFX file")

	return transactions, nil
}

// stmtTrnBlock is one <STMTTRN> record with the physical line it starts on.
type stmtTrnBlock struct {
	text string
	line int
}

// stmtTrnBlocks cuts the content into <STMTTRN> records. SGML exports do not
// always close the record, so a block also ends at the next opener.
func stmtTrnBlocks(content, upper string) []stmtTrnBlock {
	const openTag, closeTag = "<STMTTRN>", "</STMTTRN>"

	var blocks []stmtTrnBlock
	offset := 0
	for {
		start := strings.Index(upper[offset:], openTag)
		if start < 0 {
			break
		}
		start += offset
		bodyStart := start + len(openTag)

		end := len(content)
		if i := strings.Index(upper[bodyStart:], closeTag); i >= 0 {
			end = bodyStart + i
		}
		if i := strings.Index(upper[bodyStart:], openTag); i >= 0 && bodyStart+i < end {
			end = bodyStart + i
		}

		blocks = append(blocks, stmtTrnBlock{
			text: content[bodyStart:end],
			line: 1 + strings.Count(content[:start], "\n"),
		})
		offset = end
	}
	return blocks
}

func (p *OFXParser) parseBlock(block stmtTrnBlock, sourceFile string) (models.RawTransaction, bool) {
	upper := strings.ToUpper(block.text)

	date, ok := parseOFXDate(tagValue(block.text, upper, "DTPOSTED"))
	if !ok {
		p.logger.Warn().Str("file", sourceFile).Int("line", block.line).Msg("OFX record has no usable DTPOSTED, skipping")
		return models.RawTransaction{}, false
	}

	amountStr := tagValue(block.text, upper, "TRNAMT")
	amount, err := ParseSignedAmount(amountStr, LocaleUS)
	if err != nil {
		p.logger.Warn().Str("file", sourceFile).Int("line", block.line).Str("amount", amountStr).Msg("OFX record has no usable TRNAMT, skipping")
		return models.RawTransaction{}, false
	}

	description := tagValue(block.text, upper, "NAME")
	memo := tagValue(block.text, upper, "MEMO")
	if description == "" {
		description = memo
	}
	if description == "" {
		description = tagValue(block.text, upper, "PAYEE")
	}
	if description == "" {
		description = "Unknown Transaction"
	}

	return models.RawTransaction{
		Date:        date,
		Description: description,
		Amount:      amount,
		HasAmount:   true,
		Type:        models.TypeFromAmount(amount),
		SourceFile:  sourceFile,
		SourceLine:  block.line,
		CheckNumber: tagValue(block.text, upper, "CHECKNUM"),
		Memo:        memo,
	}, true
}

// tagValue extracts <TAG>value, reading to the closing tag, the next tag or
// end of line, whichever comes first.
func tagValue(block, upperBlock, tag string) string {
	marker := "<" + tag + ">"
	start := strings.Index(upperBlock, marker)
	if start < 0 {
		return ""
	}
	value := block[start+len(marker):]
	if end := strings.IndexAny(value, "<\r\n"); end >= 0 {
		value = value[:end]
	}
	return ofxEntityReplacer.Replace(strings.TrimSpace(value))
}

// parseOFXDate reads the leading YYYYMMDD of a DTPOSTED value, ignoring the
// time and timezone suffix variants.
func parseOFXDate(value string) (time.Time, bool) {
	digits := value
	for i, r := range digits {
		if r < '0' || r > '9' {
			digits = digits[:i]
			break
		}
	}
	if len(digits) < 8 {
		return time.Time{}, false
	}
	date, err := time.Parse("20060102", digits[:8])
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
