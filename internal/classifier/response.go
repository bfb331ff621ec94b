package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JaimeStill/tayyib/internal/normalize"
	"github.com/JaimeStill/tayyib/pkg/formatting"
)

// Item is one ingredient in a classifier response. Fields other than
// name, label, confidence and category are kept verbatim in Extra.
type Item struct {
	Name       string
	Label      string
	Confidence *float64
	Category   string
	Extra      map[string]json.RawMessage
}

// UnmarshalJSON decodes an item leniently: known fields with the wrong
// JSON type are left empty so the normalizer can reject the record
// instead of failing the whole response.
func (it *Item) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	it.Name = stringField(fields, "name")
	it.Label = stringField(fields, "label")
	it.Category = stringField(fields, "category")
	it.Confidence = numberField(fields, "confidence")

	for _, k := range []string{"name", "label", "category", "confidence"} {
		delete(fields, k)
	}
	if len(fields) > 0 {
		it.Extra = fields
	}
	return nil
}

// Record converts the item for normalization.
func (it Item) Record() normalize.Record {
	r := normalize.Record{
		Name:       it.Name,
		Label:      it.Label,
		Confidence: it.Confidence,
		Category:   it.Category,
	}
	if len(it.Extra) > 0 {
		if data, err := json.Marshal(it.Extra); err == nil {
			r.Supplemental = data
		}
	}
	return r
}

// Response is a classifier response. Both {"ingredients": [...]} and a
// bare array are accepted.
type Response struct {
	Ingredients []Item `json:"ingredients"`
}

// UnmarshalJSON accepts either response shape. An element that is not
// an object decodes as an empty Item, which the normalizer rejects for
// its missing name, so one bad element cannot sink the response.
func (r *Response) UnmarshalJSON(data []byte) error {
	var elems []json.RawMessage

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return err
		}
	} else {
		var wrapped struct {
			Ingredients *[]json.RawMessage `json:"ingredients"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		if wrapped.Ingredients == nil {
			return fmt.Errorf("missing ingredients")
		}
		elems = *wrapped.Ingredients
	}

	r.Ingredients = make([]Item, len(elems))
	for i, raw := range elems {
		if err := json.Unmarshal(raw, &r.Ingredients[i]); err != nil {
			r.Ingredients[i] = Item{}
		}
	}
	return nil
}

// Records converts every item, preserving response order.
func (r Response) Records() []normalize.Record {
	records := make([]normalize.Record, len(r.Ingredients))
	for i, it := range r.Ingredients {
		records[i] = it.Record()
	}
	return records
}

// ParseResponse parses classifier output, extracting JSON from a markdown
// fence when necessary.
func ParseResponse(content string) ([]normalize.Record, error) {
	resp, err := formatting.Parse[Response](content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrTransient, ErrMalformedResponse, err)
	}
	return resp.Records(), nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func numberField(fields map[string]json.RawMessage, key string) *float64 {
	raw, ok := fields[key]
	if !ok {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}
