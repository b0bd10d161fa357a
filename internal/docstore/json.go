package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// EncodeObject marshals data and checks that it is a JSON object.
func EncodeObject(data any) (json.RawMessage, error) {
	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		raw = encoded
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: document body must be a JSON object", ErrInvalid)
	}
	return json.RawMessage(raw), nil
}

// MergeJSON overlays the top-level fields of patch onto base.
func MergeJSON(base, patch json.RawMessage) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &fields); err != nil {
			return nil, fmt.Errorf("decode base document: %w", err)
		}
	}

	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	for key, value := range overlay {
		fields[key] = value
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode merged document: %w", err)
	}
	return merged, nil
}

// SortDocuments orders docs in place. Numbers compare numerically, strings
// lexically; documents missing the field sort first. Ties keep id order.
func SortDocuments(docs []Document, q Query) {
	if q.OrderBy == "" {
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
		return
	}

	keys := make(map[string]sortKey, len(docs))
	for _, doc := range docs {
		keys[doc.Path()] = fieldKey(doc.Data, q.OrderBy)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		a, b := keys[docs[i].Path()], keys[docs[j].Path()]
		if c := a.compare(b); c != 0 {
			if q.Descending {
				return c > 0
			}
			return c < 0
		}
		return docs[i].ID < docs[j].ID
	})
}

type sortKey struct {
	present bool
	isNum   bool
	num     float64
	str     string
}

func fieldKey(data json.RawMessage, field string) sortKey {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return sortKey{}
	}
	raw, ok := fields[field]
	if !ok {
		return sortKey{}
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return sortKey{present: true, isNum: true, num: num}
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return sortKey{present: true, str: str}
	}
	return sortKey{present: true, str: string(raw)}
}

func (k sortKey) compare(o sortKey) int {
	switch {
	case !k.present && !o.present:
		return 0
	case !k.present:
		return -1
	case !o.present:
		return 1
	case k.isNum && o.isNum:
		switch {
		case k.num < o.num:
			return -1
		case k.num > o.num:
			return 1
		}
		return 0
	case k.isNum != o.isNum:
		if k.isNum {
			return -1
		}
		return 1
	case k.str < o.str:
		return -1
	case k.str > o.str:
		return 1
	}
	return 0
}
