package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ud7-tracker/backend/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// HMICSVParser handles UD7 HMI CSV exports.
// Format: "No,Timestamp,...,...,...,Event,VFB,IFB,FREQ" with the header in the first row.
type HMICSVParser struct{}

func NewHMICSVParser() *HMICSVParser {
	return &HMICSVParser{}
}

func (p *HMICSVParser) Name() string {
	return "ud7_hmi_csv"
}

// CanParse accepts files whose first non-blank row names at least one channel tag.
func (p *HMICSVParser) CanParse(filePath string) (bool, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer file.Close()

	header, err := ReadHeader(file)
	if err != nil {
		return false, err
	}
	return HasChannelTag(header), nil
}

// ReadHeader returns the first non-blank row of an HMI export, or nil when
// the input holds no rows.
func ReadHeader(r io.Reader) ([]string, error) {
	cr := newCSVReader(r)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !isBlankRow(row) {
			return row, nil
		}
	}
}

func (p *HMICSVParser) Parse(filePath string) (*ParsedFile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.ParseReader(filepath.Base(filePath), file)
}

// ParseReader parses rows from r. name is used in error positions.
func (p *HMICSVParser) ParseReader(name string, r io.Reader) (*ParsedFile, error) {
	out := &ParsedFile{
		Name:    name,
		Records: make([]models.LogRecord, 0, 1024),
	}

	cr := newCSVReader(r)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if isBlankRow(row) {
			continue
		}
		line, _ := cr.FieldPos(0)
		if out.Header == nil {
			out.Header = row
			continue
		}

		rec, err := recordFromRow(row, name, line)
		if err != nil {
			var perr *models.ParseError
			if errors.As(err, &perr) {
				perr.Position = len(out.Records)
			}
			return nil, err
		}
		rec.Position = len(out.Records)
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func recordFromRow(row []string, source string, line int) (models.LogRecord, error) {
	rec := models.LogRecord{Source: source, Line: line}
	if len(row) < models.MinRecordFields {
		return rec, &models.ParseError{
			Source: source,
			Line:   line,
			Field:  "row",
			Value:  strings.Join(row, ","),
			Reason: fmt.Sprintf("row has %d fields, want at least %d", len(row), models.MinRecordFields),
		}
	}

	rec.RawTimestamp = strings.TrimSpace(row[models.ColumnTimestamp])
	ts, err := FastTimestamp(rec.RawTimestamp)
	if err != nil {
		return rec, &models.ParseError{
			Source: source,
			Line:   line,
			Field:  "Timestamp",
			Value:  row[models.ColumnTimestamp],
			Reason: "invalid timestamp",
		}
	}
	rec.Timestamp = ts
	rec.Event = strings.TrimSpace(row[models.ColumnEvent])
	rec.Power = field(row, models.ColumnPower)
	rec.Current = field(row, models.ColumnCurrent)
	rec.Frequency = field(row, models.ColumnFrequency)
	return rec, nil
}

// HasChannelTag reports whether a header row names FREQ, IFB or VFB.
func HasChannelTag(header []string) bool {
	return len(ChannelTags(header)) > 0
}

// ChannelTags returns the channel tags a header row names, in column order.
func ChannelTags(header []string) []string {
	var tags []string
	for _, h := range header {
		switch h = strings.TrimSpace(h); h {
		case "FREQ", "IFB", "VFB":
			tags = append(tags, h)
		}
	}
	return tags
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlankRow(row []string) bool {
	for _, f := range row {
		if f != "" {
			return false
		}
	}
	return true
}

func newCSVReader(r io.Reader) *csv.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// IsParseError reports whether err carries a row-level parse failure.
func IsParseError(err error) bool {
	var perr *models.ParseError
	return errors.As(err, &perr)
}
