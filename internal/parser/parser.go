package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/ud7-tracker/backend/internal/models"
)

// ParsedFile is the content of one HMI CSV file.
type ParsedFile struct {
	Name    string
	Header  []string
	Records []models.LogRecord
}

// ProgressCallback is called after each file of a merge.
type ProgressCallback func(filesDone, filesTotal int)

// Parser defines the interface for HMI log file parsers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// CanParse returns true if this parser can handle the given file.
	CanParse(filePath string) (bool, error)
	// Parse parses the entire file. A malformed row aborts with a *models.ParseError.
	Parse(filePath string) (*ParsedFile, error)
}

// FastTimestamp parses "%Y-%m-%d %H:%M:%S.%f" using manual parsing for speed.
// This is ~5x faster than time.Parse for the fixed format.
func FastTimestamp(ts string) (time.Time, error) {
	// Example: "2024-10-22 15:52:13.086000"
	if len(ts) < 19 || ts[4] != '-' || ts[7] != '-' || ts[10] != ' ' || ts[13] != ':' || ts[16] != ':' {
		return time.Time{}, fmt.Errorf("malformed timestamp: %q", ts)
	}

	year := parseInt4(ts[0:4])
	month := parseInt2(ts[5:7])
	day := parseInt2(ts[8:10])
	hour := parseInt2(ts[11:13])
	min := parseInt2(ts[14:16])
	sec := parseInt2(ts[17:19])

	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 ||
		hour < 0 || hour > 23 || min < 0 || min > 59 || sec < 0 || sec > 59 {
		// Fallback to time.Parse for edge cases
		return time.Parse("2006-01-02 15:04:05.999999999", ts)
	}

	var nsec int
	if len(ts) > 19 {
		if ts[19] != '.' || len(ts) == 20 {
			return time.Time{}, fmt.Errorf("malformed timestamp fraction: %q", ts)
		}
		frac := ts[20:]
		fracLen := len(frac)
		if fracLen > 9 {
			frac = frac[:9]
			fracLen = 9
		}
		nsec = parseIntN(frac, fracLen)
		if nsec < 0 {
			return time.Time{}, fmt.Errorf("malformed timestamp fraction: %q", ts)
		}
		// Scale up to nanoseconds
		for i := fracLen; i < 9; i++ {
			nsec *= 10
		}
	}

	t := time.Date(year, time.Month(month), day, hour, min, sec, nsec, time.UTC)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("day out of range: %q", ts)
	}
	return t, nil
}

// ParseWindowBound parses a user-supplied window bound.
// Accepts "YYYY-MM-DD HH:MM:SS" with an optional fraction, a "T" separator, or a bare date.
func ParseWindowBound(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == len("2006-01-02") {
		return time.Parse("2006-01-02", s)
	}
	if len(s) > 10 && s[10] == 'T' {
		s = s[:10] + " " + s[11:]
	}
	t, err := FastTimestamp(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want YYYY-MM-DD HH:MM:SS)", s)
	}
	return t, nil
}

// parseInt2 parses a 2-digit decimal string. Returns -1 on error.
func parseInt2(s string) int {
	if len(s) != 2 {
		return -1
	}
	d1, d2 := s[0]-'0', s[1]-'0'
	if d1 > 9 || d2 > 9 {
		return -1
	}
	return int(d1)*10 + int(d2)
}

// parseInt4 parses a 4-digit decimal string. Returns -1 on error.
func parseInt4(s string) int {
	if len(s) != 4 {
		return -1
	}
	d1, d2, d3, d4 := s[0]-'0', s[1]-'0', s[2]-'0', s[3]-'0'
	if d1 > 9 || d2 > 9 || d3 > 9 || d4 > 9 {
		return -1
	}
	return int(d1)*1000 + int(d2)*100 + int(d3)*10 + int(d4)
}

// parseIntN parses an n-digit decimal string. Returns -1 on error.
func parseIntN(s string, n int) int {
	result := 0
	for i := 0; i < n; i++ {
		d := s[i] - '0'
		if d > 9 {
			return -1
		}
		result = result*10 + int(d)
	}
	return result
}
