package query

import "strings"

// SortField is one ORDER BY term, named by its projection view name.
type SortField struct {
	Field      string
	Descending bool
}

func (f SortField) direction() string {
	if f.Descending {
		return "DESC"
	}
	return "ASC"
}

// ParseSortFields reads a comma-separated sort parameter such as
// "ProductName,-SubmittedAt". A leading "-" sorts descending.
func ParseSortFields(s string) []SortField {
	var fields []SortField
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, desc := strings.CutPrefix(part, "-")
		fields = append(fields, SortField{Field: name, Descending: desc})
	}
	return fields
}
