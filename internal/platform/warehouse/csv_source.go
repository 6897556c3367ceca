package warehouse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"stock_pipeline/internal/feature/pipeline/domain"

	"github.com/jackc/pgx/v5"
)

// csvSource streams CSV records into CopyFrom, converting each cell to its column type.
type csvSource struct {
	r      *csv.Reader
	cols   []domain.Column
	idx    []int // header position per column; -1 when the header lacks it
	line   int
	values []any
	err    error
}

var _ pgx.CopyFromSource = (*csvSource)(nil)

// newCSVSource reads the header and maps it onto cols by case-insensitive name.
// Header columns outside the schema are ignored; schema columns missing from the header load as NULL.
func newCSVSource(r io.Reader, cols []domain.Column) (*csvSource, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv has no header", domain.ErrLoad)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", domain.ErrLoad, err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}

	idx := make([]int, len(cols))
	matched := 0
	for i, c := range cols {
		j, ok := pos[strings.ToLower(c.Name)]
		if !ok {
			idx[i] = -1
			continue
		}
		idx[i] = j
		matched++
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w: csv header %v shares no column with the table", domain.ErrLoad, header)
	}

	return &csvSource{r: cr, cols: cols, idx: idx, line: 1}, nil
}

func (s *csvSource) Next() bool {
	if s.err != nil {
		return false
	}
	rec, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return false
	}
	s.line++
	if err != nil {
		s.err = fmt.Errorf("%w: read csv: %v", domain.ErrLoad, err)
		return false
	}

	vals := make([]any, len(s.cols))
	for i, c := range s.cols {
		if s.idx[i] < 0 {
			continue
		}
		v, err := convert(rec[s.idx[i]], c.Type)
		if err != nil {
			s.err = fmt.Errorf("%w: line %d column %s: %v", domain.ErrLoad, s.line, c.Name, err)
			return false
		}
		vals[i] = v
	}
	s.values = vals
	return true
}

func (s *csvSource) Values() ([]any, error) {
	return s.values, nil
}

func (s *csvSource) Err() error {
	return s.err
}

// convert parses one cell. Empty cells become NULL.
func convert(cell string, t domain.ColumnType) (any, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	switch t {
	case domain.ColumnInt:
		if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return n, nil
		}
		// some writers emit integral values in float notation ("1.7228646E9")
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return nil, fmt.Errorf("not an integer: %q", cell)
		}
		return int64(f), nil
	case domain.ColumnFloat:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", cell)
		}
		return f, nil
	default:
		return cell, nil
	}
}
