package parsers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmorton/finledger/internal/models"
)

// Parser reads one statement file format into raw transactions.
type Parser interface {
	// Name identifies the parser in logs.
	Name() string

	// SupportedExtensions lists handled file extensions, lowercase with dot.
	SupportedExtensions() []string

	// CanParse reports whether the file content looks parseable. Extension
	// alone is not enough: detection inspects the content.
	CanParse(path string) bool

	// Parse reads the file into raw transactions.
	Parse(path string) ([]models.RawTransaction, error)
}

// ParseError wraps a parse failure with its source file.
type ParseError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", filepath.Base(e.Path), e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", filepath.Base(e.Path), e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range extensions {
		if ext == supported {
			return true
		}
	}
	return false
}
