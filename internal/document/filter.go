package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Filter selects documents by exact match on top-level fields. Multiple
// keys are combined with AND. A []any value matches any of its elements
// (OR over the listed values).
type Filter map[string]any

// where builds the WHERE clause and its arguments for the filter. An
// empty filter yields an empty clause matching every document. Keys are
// iterated in sorted order so generated SQL is deterministic.
func (f Filter) where() (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	var args []any
	for _, k := range keys {
		if !collectionNameRE.MatchString(k) {
			return "", nil, fmt.Errorf("invalid filter field %q", k)
		}
		field := fmt.Sprintf("json_extract(body, '$.%s')", k)

		switch v := f[k].(type) {
		case []any:
			if len(v) == 0 {
				return "", nil, fmt.Errorf("empty value list for filter field %q", k)
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(v)), ", ")
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", field, placeholders))
			for _, e := range v {
				arg, err := normalizeArg(e)
				if err != nil {
					return "", nil, fmt.Errorf("filter field %q: %w", k, err)
				}
				args = append(args, arg)
			}
		default:
			arg, err := normalizeArg(v)
			if err != nil {
				return "", nil, fmt.Errorf("filter field %q: %w", k, err)
			}
			clauses = append(clauses, fmt.Sprintf("%s = ?", field))
			args = append(args, arg)
		}
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// normalizeArg converts a filter value to a type the SQL driver compares
// correctly against json_extract output: JSON booleans surface as 0/1
// integers, json.Number as int64 or float64.
func normalizeArg(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("non-numeric json.Number %q", x)
		}
		return f, nil
	case int:
		return int64(x), nil
	case int64, float64, string:
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported filter value type %T", v)
	}
}
