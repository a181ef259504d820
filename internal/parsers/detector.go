package parsers

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// Detector discovers statement files and routes each to the first parser
// whose content check accepts it.
type Detector struct {
	logger  *common.Logger
	parsers []Parser
}

// NewDetector creates a detector with the standard parser set. The
// structured formats go first; PDF text extraction is the last resort.
func NewDetector(logger *common.Logger) *Detector {
	return &Detector{
		logger: logger,
		parsers: []Parser{
			NewCSVParser(logger),
			NewOFXParser(logger),
			NewExcelParser(logger),
			NewPDFParser(logger),
		},
	}
}

// SupportedExtensions lists all extensions any parser handles, sorted.
func (d *Detector) SupportedExtensions() []string {
	set := make(map[string]bool)
	for _, parser := range d.parsers {
		for _, ext := range parser.SupportedExtensions() {
			set[ext] = true
		}
	}
	extensions := make([]string, 0, len(set))
	for ext := range set {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	return extensions
}

// DiscoverFiles walks a directory for candidate statement files, sorted by
// name for deterministic processing order. Symlinks resolving outside the
// directory are skipped.
func (d *Detector) DiscoverFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("input directory not found: %s", dir)
	}

	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		root = dir
	}

	supported := make(map[string]bool)
	for _, ext := range d.SupportedExtensions() {
		supported[ext] = true
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			d.logger.Warn().Str("path", path).Err(err).Msg("Skipping unreadable path")
			return nil
		}
		if entry.IsDir() || !supported[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			d.logger.Warn().Str("path", path).Err(err).Msg("Skipping file with unresolvable path")
			return nil
		}
		if rel, err := filepath.Rel(root, resolved); err != nil || strings.HasPrefix(rel, "..") {
			d.logger.Warn().Str("path", path).Msg("Skipping file outside input directory")
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(filepath.Base(files[i])) < strings.ToLower(filepath.Base(files[j]))
	})

	d.logger.Info().Int("files", len(files)).Str("dir", dir).Msg("Discovered statement files")
	return files, nil
}

// DetectParser returns the first parser accepting the file, or nil.
func (d *Detector) DetectParser(path string) Parser {
	for _, parser := range d.parsers {
		if parser.CanParse(path) {
			d.logger.Debug().
				Str("file", filepath.Base(path)).
				Str("parser", parser.Name()).
				Msg("Matched parser")
			return parser
		}
	}
	return nil
}

// ParseFile parses a single file with whichever parser accepts it.
func (d *Detector) ParseFile(path string) ([]models.RawTransaction, error) {
	parser := d.DetectParser(path)
	if parser == nil {
		return nil, &ParseError{Path: path, Msg: "no parser found for file"}
	}
	return parser.Parse(path)
}

// ParseDirectory parses every discovered file, keyed by base filename for
// account resolution. Failed files are collected as errors, not fatal.
func (d *Detector) ParseDirectory(dir string) (map[string][]models.RawTransaction, []string, error) {
	files, err := d.DiscoverFiles(dir)
	if err != nil {
		return nil, nil, err
	}

	byFile := make(map[string][]models.RawTransaction)
	var parseErrors []string
	total := 0

	for _, path := range files {
		transactions, err := d.ParseFile(path)
		if err != nil {
			parseErrors = append(parseErrors, err.Error())
			d.logger.Warn().Str("file", filepath.Base(path)).Err(err).Msg("Skipping unparseable file")
			continue
		}
		byFile[filepath.Base(path)] = transactions
		total += len(transactions)
	}

	d.logger.Info().
		Int("transactions", total).
		Int("files", len(byFile)).
		Int("errors", len(parseErrors)).
		Msg("Parsed input directory")

	return byFile, parseErrors, nil
}
