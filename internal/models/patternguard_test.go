package models

import (
	"strings"
	"testing"
)

func TestCheckPattern(t *testing.T) {
	safe := []string{
		`^STARBUCKS`,
		`AMAZON\.COM`,
		`\bFEE\b`,
		`^(DEPOSIT|WITHDRAWAL) `,
		`PAYMENT #\d+`,
	}
	for _, p := range safe {
		if ok, reason := CheckPattern(p); !ok {
			t.Errorf("CheckPattern(%q) rejected: %s", p, reason)
		}
	}

	dangerous := []string{
		`(\w+)+$`,
		`^(.*)*$`,
		`(.+)+X`,
		`([^"]+)+`,
		`(\s+)+`,
		`(a+)+b`,
		`(a*)* `,
		`(x+){2,10}`,
	}
	for _, p := range dangerous {
		if ok, _ := CheckPattern(p); ok {
			t.Errorf("CheckPattern(%q) accepted, want rejected", p)
		}
	}
}

func TestCheckPatternLengthLimit(t *testing.T) {
	long := strings.Repeat("a", 501)
	if ok, _ := CheckPattern(long); ok {
		t.Error("pattern over length limit should be rejected")
	}
	if ok, _ := CheckPattern(strings.Repeat("a", 500)); !ok {
		t.Error("pattern at length limit should be accepted")
	}
}

func TestCompileGuarded(t *testing.T) {
	re, reason := CompileGuarded(`^starbucks`)
	if re == nil {
		t.Fatalf("CompileGuarded rejected safe pattern: %s", reason)
	}
	// Guarded patterns compile case-insensitively.
	if !re.MatchString("STARBUCKS #123") {
		t.Error("compiled pattern should match case-insensitively")
	}

	if re, _ := CompileGuarded(`(\w+)+`); re != nil {
		t.Error("dangerous pattern should not compile")
	}
	if re, reason := CompileGuarded(`[unclosed`); re != nil || reason == "" {
		t.Error("invalid regex should return nil with a reason")
	}
}
