package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/finquest-app/finquest/internal/domain"
)

// ReadCSV parses "year,return" rows into a series. A header row is skipped.
// Years must be consecutive.
func ReadCSV(r io.Reader, category domain.Category) (Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	s := Series{Category: category}
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Series{}, fmt.Errorf("read csv: %w", err)
		}
		line++

		year, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			if line == 1 {
				continue // header
			}
			return Series{}, fmt.Errorf("line %d: year %q: %w", line, rec[0], err)
		}
		ret, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(rec[1]), "%"), 64)
		if err != nil {
			return Series{}, fmt.Errorf("line %d: return %q: %w", line, rec[1], err)
		}

		if len(s.AnnualReturns) == 0 {
			s.StartYear = year
		} else if year != s.EndYear()+1 {
			return Series{}, fmt.Errorf("line %d: year %d does not follow %d", line, year, s.EndYear())
		}
		s.AnnualReturns = append(s.AnnualReturns, ret)
	}

	if len(s.AnnualReturns) == 0 {
		return Series{}, fmt.Errorf("csv for %q has no rows", category)
	}
	return s, nil
}
