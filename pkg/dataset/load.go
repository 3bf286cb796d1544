package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// DefaultDateFormat is the day-first layout used by the ads export.
const DefaultDateFormat = "%d-%m-%Y"

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrMissingColumn = errors.New("missing required column")
	ErrEmpty         = errors.New("dataset has no rows")
)

// Options controls how a dataset file is decoded.
type Options struct {
	// DateFormat is either a strftime pattern ("%d-%m-%Y") or a Go reference layout.
	DateFormat string
	// Delimiter is the field separator. Zero infers it from the file name: comma for
	// .csv, tab for everything else.
	Delimiter rune
}

// Load reads the dataset at path. Files ending in .gz are decompressed transparently.
func Load(path string, opts Options) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	name := path
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip dataset: %w", err)
		}
		defer gz.Close()
		r = gz
		name = strings.TrimSuffix(path, filepath.Ext(path))
	}

	if opts.Delimiter == 0 {
		opts.Delimiter = delimiterFor(name)
	}

	rows, err := Read(r, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func delimiterFor(name string) rune {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return ','
	}
	return '\t'
}

// Read decodes a delimited dataset with a header row.
func Read(r io.Reader, opts Options) ([]Row, error) {
	format := opts.DateFormat
	if format == "" {
		format = DefaultDateFormat
	}
	layout, err := Layout(format)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	} else {
		cr.Comma = '\t'
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	_, hasCTR := idx[ColCTR]
	_, hasROAS := idx[ColROAS]

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		if blank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)

		cell := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		rawDate := cell(ColDate)
		date, err := time.Parse(layout, rawDate)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w %q (format %s)", line, ErrInvalidDate, rawDate, format)
		}

		row := Row{
			Date:            date,
			Campaign:        cell(ColCampaign),
			AdSet:           cell(ColAdSet),
			CreativeType:    cell(ColCreativeType),
			CreativeMessage: cell(ColCreativeMessage),
			Spend:           parseNumber(cell(ColSpend)),
			Impressions:     parseNumber(cell(ColImpressions)),
			Clicks:          parseNumber(cell(ColClicks)),
			CTR:             parseNumber(cell(ColCTR)),
			Purchases:       parseNumber(cell(ColPurchases)),
			Revenue:         parseNumber(cell(ColRevenue)),
			ROAS:            parseNumber(cell(ColROAS)),
		}
		if !hasCTR {
			row.CTR = ratio(row.Clicks, row.Impressions)
		}
		if !hasROAS {
			row.ROAS = ratio(row.Revenue, row.Spend)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return rows, nil
}

// parseNumber coerces a cell to a float, returning Missing for anything non-numeric.
func parseNumber(s string) float64 {
	if s == "" {
		return Missing
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return Missing
	}
	return v
}

// ratio derives a per-row rate. A missing input stays missing; a zero denominator is 0.
func ratio(num, den float64) float64 {
	if IsMissing(num) || IsMissing(den) {
		return Missing
	}
	if den == 0 {
		return 0
	}
	if v := num / den; !math.IsInf(v, 0) {
		return v
	}
	return Missing
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var strftime = map[byte]string{
	'd': "02",
	'm': "01",
	'Y': "2006",
	'y': "06",
	'H': "15",
	'M': "04",
	'S': "05",
	'b': "Jan",
	'B': "January",
	'p': "PM",
	'%': "%",
}

// Layout converts a strftime pattern to a Go time layout. Patterns without a '%' are
// assumed to already be Go layouts and are returned unchanged.
func Layout(format string) (string, error) {
	if !strings.Contains(format, "%") {
		return format, nil
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			return "", fmt.Errorf("date format %q: trailing %%", format)
		}
		i++
		repl, ok := strftime[format[i]]
		if !ok {
			return "", fmt.Errorf("date format %q: unsupported directive %%%c", format, format[i])
		}
		b.WriteString(repl)
	}
	return b.String(), nil
}
