// Package query builds parameterized SELECTs over a projection of view
// field names onto table columns.
package query

import "strings"

// ProjectionMap maps view field names (e.g. "SubmittedAt") to columns
// qualified by the table alias (e.g. "e.submitted_at").
type ProjectionMap struct {
	from    string
	alias   string
	byField map[string]string
	ordered []string
}

// NewProjectionMap projects schema.table under alias.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		from:    schema + "." + table + " " + alias,
		alias:   alias,
		byField: make(map[string]string),
	}
}

// Project maps field to column and appends it to the select list.
func (p *ProjectionMap) Project(column, field string) *ProjectionMap {
	qualified := p.alias + "." + column
	p.byField[field] = qualified
	p.ordered = append(p.ordered, qualified)
	return p
}

// Table is the FROM clause target, "schema.table alias".
func (p *ProjectionMap) Table() string {
	return p.from
}

// Column returns the column for field, or field itself when unmapped.
// Use Lookup for anything derived from client input.
func (p *ProjectionMap) Column(field string) string {
	if col, ok := p.byField[field]; ok {
		return col
	}
	return field
}

func (p *ProjectionMap) Lookup(field string) (string, bool) {
	col, ok := p.byField[field]
	return col, ok
}

// Columns is the select list in projection order.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.ordered, ", ")
}
