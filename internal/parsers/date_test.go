package parsers

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []string{
		"2024-03-15",
		"2024-3-15",
		"03/15/2024",
		"3/15/2024",
		"03/15/24",
		"03-15-2024",
		"15.03.2024", // period-separated reads as DD.MM
		"15-Mar-2024",
		"15-Mar-24",
		"Mar 15, 2024",
		"Mar 15 2024",
		"March 15, 2024",
		"20240315",
		"  2024-03-15  ",
	}
	for _, raw := range tests {
		got, err := ParseDate(raw)
		if err != nil {
			t.Errorf("ParseDate(%q) error: %v", raw, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %s, want %s", raw, got.Format("2006-01-02"), want.Format("2006-01-02"))
		}
	}
}

func TestParseDateSlashIsUS(t *testing.T) {
	got, err := ParseDate("01/02/2024")
	if err != nil {
		t.Fatal(err)
	}
	if got.Month() != time.January || got.Day() != 2 {
		t.Errorf("01/02/2024 parsed as %s, want January 2 (US order)", got.Format("2006-01-02"))
	}
}

func TestParseDateErrors(t *testing.T) {
	for _, raw := range []string{"", "not a date", "2024-13-45", "99/99/9999", "15/03/2024"} {
		if _, err := ParseDate(raw); err == nil {
			t.Errorf("ParseDate(%q) should fail", raw)
		}
	}
}
