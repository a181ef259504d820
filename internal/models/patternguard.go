package models

import (
	"fmt"
	"regexp"
	"strings"
)

// maxPatternLength bounds user-supplied regex patterns.
const maxPatternLength = 500

// dangerousSignatures are literal substrings known to cause catastrophic
// backtracking. Checked in addition to the structural scan below.
var dangerousSignatures = []string{
	`(\w+)+`,
	`(.*)*`,
	`(.+)+`,
	`([^"]+)+`,
	`(\s+)+`,
}

// nestedQuantifier detects a quantified group that is itself quantified,
// with either a bare +, *, ? or a bounded {n,m} suffix.
var nestedQuantifier = regexp.MustCompile(
	`\([^)]*[+*?][^)]*\)[+*?]` + `|` + `\([^)]*[+*?][^)]*\)\{[0-9,]+\}`,
)

// CheckPattern reports whether a user-supplied regex pattern is safe to
// compile. It is a pure static check run once at construction time; callers
// drop rejected patterns with a warning rather than failing.
func CheckPattern(pattern string) (bool, string) {
	if len(pattern) > maxPatternLength {
		return false, fmt.Sprintf("pattern exceeds %d character limit", maxPatternLength)
	}
	if nestedQuantifier.MatchString(pattern) {
		return false, "pattern contains dangerous nested quantifier"
	}
	for _, sig := range dangerousSignatures {
		if strings.Contains(pattern, sig) {
			return false, "pattern contains known dangerous signature"
		}
	}
	return true, ""
}

// CompileGuarded validates a pattern with CheckPattern and compiles it
// case-insensitively. The returned reason is non-empty when the pattern was
// rejected or failed to compile.
func CompileGuarded(pattern string) (*regexp.Regexp, string) {
	ok, reason := CheckPattern(pattern)
	if !ok {
		return nil, reason
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Sprintf("invalid regex: %v", err)
	}
	return re, ""
}
