package repository

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Document is a free-form stored record.
type Document map[string]any

// Filter is an equality match on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Query narrows ListDocuments. The zero value returns everything in storage order.
type Query struct {
	Where   []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Increment is a merge value that adds N to the stored number instead of
// replacing it. A missing or non-numeric field counts as zero.
type Increment struct {
	N float64
}

// ID returns the document's "id" field.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Normalize returns a copy of doc as it would look after a JSON round trip:
// times become RFC 3339 strings, numbers become float64, structs become maps.
// Both backends store documents in this form so reads look the same
// regardless of where they came from.
func Normalize(doc Document) (Document, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("repository: encoding document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("repository: decoding document: %w", err)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

// FromValue converts a model value into a Document.
func FromValue(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("repository: encoding value: %w", err)
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("repository: decoding value: %w", err)
	}
	return out, nil
}

// Decode copies a Document into a model value.
func Decode(doc Document, dst any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("repository: encoding document: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("repository: decoding into %T: %w", dst, err)
	}
	return nil
}

// MergeFields applies patch on top of existing and returns the result.
// existing is not modified. Increment values are resolved here, so the
// caller must pass the un-normalized patch.
func MergeFields(existing, patch Document) (Document, error) {
	out := make(Document, len(existing)+len(patch))
	for k, v := range existing {
		out[k] = v
	}

	for k, v := range patch {
		switch pv := v.(type) {
		case Increment:
			out[k] = toFloat(out[k]) + pv.N
		case *Increment:
			out[k] = toFloat(out[k]) + pv.N
		case map[string]any:
			cur, _ := out[k].(map[string]any)
			merged, err := MergeFields(Document(cur), Document(pv))
			if err != nil {
				return nil, err
			}
			out[k] = map[string]any(merged)
		case Document:
			cur, _ := out[k].(map[string]any)
			merged, err := MergeFields(Document(cur), pv)
			if err != nil {
				return nil, err
			}
			out[k] = map[string]any(merged)
		default:
			out[k] = v
		}
	}
	return Normalize(out)
}

// ApplyQuery filters, sorts and truncates docs in memory. Backends that
// cannot express a Query natively (or only partly) finish the job with this.
func ApplyQuery(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if matches(d, q.Where) {
			out = append(out, d)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(d Document, where []Filter) bool {
	for _, f := range where {
		if compareValues(d[f.Field], f.Value) != 0 {
			return false
		}
	}
	return true
}

// compareValues orders two stored values. Strings that parse as RFC 3339
// compare as times, numbers compare numerically, everything else as strings.
// A missing value sorts first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			ta, errA := time.Parse(time.RFC3339Nano, as)
			tb, errB := time.Parse(time.RFC3339Nano, bs)
			if errA == nil && errB == nil {
				return ta.Compare(tb)
			}
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			}
			return 0
		}
	}

	if isNumber(a) && isNumber(b) {
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}

	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			}
			return 1
		}
	}

	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, int32:
		return true
	}
	return false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	}
	return 0
}
