package strategies

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/jsetrader/market"
)

// Scripted replays decisions recorded ahead of time, for example the output
// of an external analysis agent.
type Scripted struct {
	byDay map[time.Time]map[string]Decision
}

// NewScripted builds a provider from per-day decisions.
func NewScripted(decisions map[time.Time][]Decision) (*Scripted, error) {
	s := &Scripted{byDay: map[time.Time]map[string]Decision{}}
	for day, ds := range decisions {
		for _, d := range ds {
			if err := s.add(day, d); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Scripted) add(day time.Time, d Decision) error {
	if err := d.Validate(); err != nil {
		return err
	}
	day = market.Day(day)
	row, ok := s.byDay[day]
	if !ok {
		row = map[string]Decision{}
		s.byDay[day] = row
	}
	if _, dup := row[d.Symbol]; dup {
		return fmt.Errorf("duplicate decision for %s on %s", d.Symbol, day.Format(market.DateLayout))
	}
	row[d.Symbol] = d
	return nil
}

func (s *Scripted) Name() string { return "scripted" }

// Decide returns the recorded decisions for date restricted to symbols.
func (s *Scripted) Decide(ctx context.Context, date time.Time, symbols []string, view View) (map[string]Decision, error) {
	row := s.byDay[market.Day(date)]
	out := make(map[string]Decision, len(row))
	for _, sym := range symbols {
		if d, ok := row[sym]; ok {
			out[sym] = d
		}
	}
	return out, nil
}

// Len is the number of recorded decisions.
func (s *Scripted) Len() int {
	n := 0
	for _, row := range s.byDay {
		n += len(row)
	}
	return n
}

// LoadScripted reads a decisions CSV:
//
//	date,symbol,action[,quantity[,fraction[,reason]]]
//
// A header row ("date,...") is allowed.
func LoadScripted(path string) (*Scripted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ReadScripted(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadScripted parses the decisions CSV format from r.
func ReadScripted(r io.Reader) (*Scripted, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	s := &Scripted{byDay: map[time.Time]map[string]Decision{}}
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
		day, d, err := parseDecisionRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := s.add(day, d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
}

func parseDecisionRow(row []string) (time.Time, Decision, error) {
	var d Decision
	if len(row) < 3 {
		return time.Time{}, d, fmt.Errorf("bad row (need date,symbol,action): %v", row)
	}
	day, err := market.ParseDay(strings.TrimSpace(row[0]))
	if err != nil {
		return time.Time{}, d, err
	}
	d.Symbol = strings.ToUpper(strings.TrimSpace(row[1]))
	if d.Action, err = ParseAction(row[2]); err != nil {
		return time.Time{}, d, err
	}
	if len(row) > 3 && strings.TrimSpace(row[3]) != "" {
		if d.Quantity, err = strconv.ParseInt(strings.TrimSpace(row[3]), 10, 64); err != nil {
			return time.Time{}, d, fmt.Errorf("bad quantity %q: %w", row[3], err)
		}
	}
	if len(row) > 4 && strings.TrimSpace(row[4]) != "" {
		if d.Fraction, err = strconv.ParseFloat(strings.TrimSpace(row[4]), 64); err != nil {
			return time.Time{}, d, fmt.Errorf("bad fraction %q: %w", row[4], err)
		}
	}
	if len(row) > 5 {
		d.Reason = strings.TrimSpace(row[5])
	}
	return day, d, nil
}
