package parsers

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// datePatterns pairs a shape check with a Go layout. Patterns are tried in
// order, ISO first. Slash-separated dates always read as US (MM/DD/YYYY);
// period-separated dates read as European (DD.MM.YYYY).
var datePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`), "2006-1-2"},
	{regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`), "1/2/2006"},
	{regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2}$`), "1/2/06"},
	{regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`), "1-2-2006"},
	{regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{2}$`), "1-2-06"},
	{regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`), "2.1.2006"},
	{regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{2}$`), "2.1.06"},
	{regexp.MustCompile(`^\d{1,2}-[A-Za-z]{3}-\d{4}$`), "2-Jan-2006"},
	{regexp.MustCompile(`^\d{1,2}-[A-Za-z]{3}-\d{2}$`), "2-Jan-06"},
	{regexp.MustCompile(`^[A-Za-z]{3}\s+\d{1,2},?\s+\d{4}$`), "Jan 2, 2006"},
	{regexp.MustCompile(`^[A-Za-z]+\s+\d{1,2},?\s+\d{4}$`), "January 2, 2006"},
	{regexp.MustCompile(`^\d{8}$`), "20060102"},
}

// ParseDate parses a statement date in any of the recognized formats.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	for _, p := range datePatterns {
		if !p.re.MatchString(s) {
			continue
		}
		if d, err := time.Parse(p.layout, s); err == nil {
			return d, nil
		}
		// Layout variants with and without the comma.
		if strings.Contains(p.layout, ",") {
			if d, err := time.Parse(strings.Replace(p.layout, ",", "", 1), s); err == nil {
				return d, nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse date %q", raw)
}
