package store

import (
	"fmt"
	"strings"
)

// Order is the direction rows are returned in, by creation timestamp.
type Order int

const (
	Asc Order = iota
	Desc
)

// Filter restricts a query to rows whose indexed column equals one value
// (Eq) or is a member of a set (In).
type Filter struct {
	Column string
	Values []any
}

// Eq matches rows where column = v.
func Eq(column string, v any) Filter {
	return Filter{Column: column, Values: []any{v}}
}

// In matches rows where column is any of vs. An empty set matches nothing.
func In[T any](column string, vs ...T) Filter {
	values := make([]any, len(vs))
	for i, v := range vs {
		values[i] = v
	}
	return Filter{Column: column, Values: values}
}

// Query describes a range read over one table. The zero value returns
// every row, oldest first.
type Query struct {
	Filters []Filter
	Order   Order
	Limit   int
}

// build renders the WHERE/ORDER/LIMIT tail for table t. Ties on the
// timestamp are broken by id so results are deterministic.
func (q Query) build(t Table) (string, []any, error) {
	var (
		b    strings.Builder
		args []any
	)
	for i, f := range q.Filters {
		if err := checkColumn(t, f.Column); err != nil {
			return "", nil, err
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		switch len(f.Values) {
		case 0:
			b.WriteString("0")
		case 1:
			fmt.Fprintf(&b, "%s = ?", f.Column)
			args = append(args, f.Values[0])
		default:
			fmt.Fprintf(&b, "%s IN (%s)", f.Column, strings.TrimSuffix(strings.Repeat("?,", len(f.Values)), ","))
			args = append(args, f.Values...)
		}
	}

	dir := "ASC"
	if q.Order == Desc {
		dir = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, id COLLATE BINARY %s", t.OrderColumn(), dir, dir)

	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}

// Key renders q as a stable string for use in cache keys. Equal queries
// produce equal keys.
func (q Query) Key() string {
	var b strings.Builder
	for i, f := range q.Filters {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.Column)
		b.WriteByte('=')
		for j, v := range f.Values {
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprint(&b, v)
		}
	}
	if q.Order == Desc {
		b.WriteString("|desc")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "|limit=%d", q.Limit)
	}
	if b.Len() == 0 {
		return "all"
	}
	return b.String()
}
