package postgres

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/Strob0t/LabCore/internal/domain"
)

// Page bounds and orders a FindMany call. A zero Limit returns every
// matching row.
type Page struct {
	Limit   uint64
	Offset  uint64
	OrderBy []string // "column" or "column ASC|DESC"
}

func (p Page) apply(b sq.SelectBuilder) (sq.SelectBuilder, error) {
	for _, o := range p.OrderBy {
		col, dir, _ := strings.Cut(strings.TrimSpace(o), " ")
		dir = strings.ToUpper(strings.TrimSpace(dir))
		if !validIdent(col) || (dir != "" && dir != "ASC" && dir != "DESC") {
			return b, fmt.Errorf("%w: invalid order %q", domain.ErrValidation, o)
		}
		if dir != "" {
			col += " " + dir
		}
		b = b.OrderBy(col)
	}
	if p.Limit > 0 {
		b = b.Limit(p.Limit)
	}
	if p.Offset > 0 {
		b = b.Offset(p.Offset)
	}
	return b, nil
}

// AggFunc is a numeric aggregate function.
type AggFunc string

const (
	Sum AggFunc = "SUM"
	Avg AggFunc = "AVG"
	Min AggFunc = "MIN"
	Max AggFunc = "MAX"
)

// Aggregation names one aggregate over one numeric column.
type Aggregation struct {
	Func   AggFunc
	Column string
}

func (a Aggregation) expr() (string, error) {
	switch a.Func {
	case Sum, Avg, Min, Max:
	default:
		return "", fmt.Errorf("%w: unknown aggregate %q", domain.ErrValidation, a.Func)
	}
	if !validIdent(a.Column) {
		return "", fmt.Errorf("%w: invalid column %q", domain.ErrValidation, a.Column)
	}
	return fmt.Sprintf("COALESCE(%s(%s), 0)::float8", a.Func, a.Column), nil
}
