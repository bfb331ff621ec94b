package query

import (
	"fmt"
	"reflect"
	"strings"
)

// predicate is a WHERE term whose placeholders are numbered at build time.
// Multi-column predicates set join and render parenthesized.
type predicate struct {
	columns []string
	op      string
	join    string
	args    []any
}

func (p predicate) render(next func() string) string {
	terms := make([]string, len(p.columns))
	for i, col := range p.columns {
		terms[i] = col + " " + p.op + " " + next()
	}
	if p.join == "" {
		return terms[0]
	}
	return "(" + strings.Join(terms, p.join) + ")"
}

// Builder assembles SELECT statements over a ProjectionMap with
// positional ($n) parameters.
type Builder struct {
	projection  *ProjectionMap
	predicates  []predicate
	sort        []SortField
	defaultSort []SortField
}

func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{
		projection:  projection,
		defaultSort: defaultSort,
	}
}

// OrderByFields replaces the default ordering.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	b.sort = fields
	return b
}

// WhereEquals filters field = value. Nil values, typed or untyped, are ignored.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	b.predicates = append(b.predicates, predicate{
		columns: []string{b.projection.Column(field)},
		op:      "=",
		args:    []any{value},
	})
	return b
}

// WhereSearch matches search as a case-insensitive substring of any of fields.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" || len(fields) == 0 {
		return b
	}

	p := predicate{op: "ILIKE", join: " OR "}
	pattern := "%" + *search + "%"
	for _, field := range fields {
		p.columns = append(p.columns, b.projection.Column(field))
		p.args = append(p.args, pattern)
	}

	b.predicates = append(b.predicates, p)
	return b
}

func (b *Builder) Build() (string, []any) {
	where, args := b.where()
	return b.selectFrom() + where + b.orderBy(), args
}

func (b *Builder) BuildCount() (string, []any) {
	where, args := b.where()
	return "SELECT COUNT(*) FROM " + b.projection.Table() + where, args
}

// BuildPage selects one 1-indexed page of pageSize rows.
func (b *Builder) BuildPage(page, pageSize int) (string, []any) {
	sql, args := b.Build()
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", sql, pageSize, (page-1)*pageSize), args
}

// BuildSingle selects the row whose idField equals id, ignoring other predicates.
func (b *Builder) BuildSingle(idField string, id any) (string, []any) {
	return b.selectFrom() + " WHERE " + b.projection.Column(idField) + " = $1", []any{id}
}

func (b *Builder) selectFrom() string {
	return "SELECT " + b.projection.Columns() + " FROM " + b.projection.Table()
}

func (b *Builder) where() (string, []any) {
	if len(b.predicates) == 0 {
		return "", nil
	}

	n := 0
	next := func() string {
		n++
		return fmt.Sprintf("$%d", n)
	}

	var args []any
	clauses := make([]string, len(b.predicates))
	for i, p := range b.predicates {
		clauses[i] = p.render(next)
		args = append(args, p.args...)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (b *Builder) orderBy() string {
	fields := b.sort
	if len(fields) == 0 {
		fields = b.defaultSort
	}

	// sort fields come from clients; unmapped names never reach the SQL
	var terms []string
	for _, f := range fields {
		if col, ok := b.projection.Lookup(f.Field); ok {
			terms = append(terms, col+" "+f.direction())
		}
	}

	if len(terms) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
