package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// LoadCSV reads daily bars from path. See ReadCSV for the format.
func LoadCSV(path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadCSV reads daily bar rows in one of two shapes:
//
//	date,symbol,close
//	date,symbol,open,high,low,close
//
// where date is YYYY-MM-DD. A single header row ("date,...") is allowed.
// Empty rows are skipped; anything else malformed is an error.
func ReadCSV(r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	s := NewSeries()
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "date") {
			continue
		}

		b, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := s.Add(b); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
}

func parseBarRow(row []string) (Bar, error) {
	var b Bar
	switch len(row) {
	case 3, 6:
	default:
		return b, fmt.Errorf("bad row (need date,symbol,close or date,symbol,open,high,low,close): %v", row)
	}

	day, err := ParseDay(strings.TrimSpace(row[0]))
	if err != nil {
		return b, err
	}
	b.Date = Day(day)
	b.Symbol = strings.ToUpper(strings.TrimSpace(row[1]))

	px := func(i int, name string) (decimal.Decimal, error) {
		v, err := decimal.NewFromString(strings.TrimSpace(row[i]))
		if err != nil {
			return decimal.Zero, fmt.Errorf("bad %s %q: %w", name, row[i], err)
		}
		return v, nil
	}

	if len(row) == 3 {
		b.Close, err = px(2, "close")
		return b, err
	}
	if b.Open, err = px(2, "open"); err != nil {
		return b, err
	}
	if b.High, err = px(3, "high"); err != nil {
		return b, err
	}
	if b.Low, err = px(4, "low"); err != nil {
		return b, err
	}
	b.Close, err = px(5, "close")
	return b, err
}
