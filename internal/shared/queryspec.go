package shared

import (
	"fmt"
	"strings"
	"time"
)

// Filter is a typed query predicate. Repositories compose filters into a
// WHERE clause instead of building ad-hoc condition maps.
type Filter interface {
	clause(args *[]any) string
}

// StatusFilter matches a column against a fixed set of values.
type StatusFilter struct {
	Column string
	Values []string
}

func (f StatusFilter) clause(args *[]any) string {
	if len(f.Values) == 0 {
		return ""
	}
	placeholders := make([]string, 0, len(f.Values))
	for _, v := range f.Values {
		*args = append(*args, v)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(*args)))
	}
	return fmt.Sprintf("%s IN (%s)", f.Column, strings.Join(placeholders, ","))
}

// SearchFilter matches a case-insensitive term against one or more columns.
type SearchFilter struct {
	Columns []string
	Term    string
}

func (f SearchFilter) clause(args *[]any) string {
	if f.Term == "" || len(f.Columns) == 0 {
		return ""
	}
	*args = append(*args, "%"+f.Term+"%")
	n := len(*args)
	parts := make([]string, 0, len(f.Columns))
	for _, col := range f.Columns {
		parts = append(parts, fmt.Sprintf("%s ILIKE $%d", col, n))
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// DateRangeFilter bounds a timestamp column. Either side may be nil.
type DateRangeFilter struct {
	Column string
	From   *time.Time
	To     *time.Time
}

func (f DateRangeFilter) clause(args *[]any) string {
	var parts []string
	if f.From != nil {
		*args = append(*args, *f.From)
		parts = append(parts, fmt.Sprintf("%s >= $%d", f.Column, len(*args)))
	}
	if f.To != nil {
		*args = append(*args, *f.To)
		parts = append(parts, fmt.Sprintf("%s <= $%d", f.Column, len(*args)))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " AND ")
}

// EqFilter matches a column against a single value.
type EqFilter struct {
	Column string
	Value  any
}

func (f EqFilter) clause(args *[]any) string {
	*args = append(*args, f.Value)
	return fmt.Sprintf("%s = $%d", f.Column, len(*args))
}

// QuerySpec is an ordered set of filters.
type QuerySpec struct {
	filters []Filter
}

// NewQuerySpec builds a spec from the given filters, dropping nils.
func NewQuerySpec(filters ...Filter) QuerySpec {
	spec := QuerySpec{}
	for _, f := range filters {
		if f != nil {
			spec.filters = append(spec.filters, f)
		}
	}
	return spec
}

// Where renders the spec as "WHERE ..." with positional args, or an empty
// string when no filter produced a clause.
func (s QuerySpec) Where() (string, []any) {
	var args []any
	var parts []string
	for _, f := range s.filters {
		if c := f.clause(&args); c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(parts, " AND "), args
}
