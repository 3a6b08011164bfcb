package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mesh-intelligence/studybook/internal/document"
	"github.com/mesh-intelligence/studybook/pkg/types"
)

// timeLayout is the textual timestamp form in persisted records,
// preserving microsecond precision.
const timeLayout = "2006-01-02 15:04:05.000000"

// Immutable enum translation tables. Both directions are derived from
// the same source so they cannot drift apart.
var (
	directionToWire = map[types.StudyDirection]string{
		types.DirectionNotSet:   "not_set",
		types.DirectionMinimize: "minimize",
		types.DirectionMaximize: "maximize",
	}
	wireToDirection = invert(directionToWire)

	stateToWire = map[types.TrialState]string{
		types.StateRunning:  "running",
		types.StateComplete: "complete",
		types.StatePruned:   "pruned",
		types.StateFail:     "fail",
		types.StateWaiting:  "waiting",
	}
	wireToState = invert(stateToWire)
)

func invert[K, V comparable](m map[K]V) map[V]K {
	out := make(map[V]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// encodeTime renders a timestamp for a record field; nil stays nil.
func encodeTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

// decodeTime parses a record timestamp field; nil or a missing field
// stays nil.
func decodeTime(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("timestamp field is %T, not string", v)
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return &t, nil
}

func encodeState(s types.TrialState) (string, error) {
	w, ok := stateToWire[s]
	if !ok {
		return "", fmt.Errorf("state %d: %w", int(s), types.ErrUnknownTrialState)
	}
	return w, nil
}

func decodeState(v any) (types.TrialState, error) {
	w, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("state field is %T, not string", v)
	}
	s, ok := wireToState[w]
	if !ok {
		return 0, fmt.Errorf("%q: %w", w, types.ErrUnknownTrialState)
	}
	return s, nil
}

func encodeDirections(ds []types.StudyDirection) ([]string, error) {
	out := make([]string, len(ds))
	for i, d := range ds {
		w, ok := directionToWire[d]
		if !ok {
			return nil, fmt.Errorf("direction %d: %w", int(d), types.ErrUnknownDirection)
		}
		out[i] = w
	}
	return out, nil
}

func decodeDirections(v any) ([]types.StudyDirection, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("directions field is %T, not array", v)
	}
	out := make([]types.StudyDirection, len(raw))
	for i, e := range raw {
		w, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("direction entry is %T, not string", e)
		}
		d, ok := wireToDirection[w]
		if !ok {
			return nil, fmt.Errorf("%q: %w", w, types.ErrUnknownDirection)
		}
		out[i] = d
	}
	return out, nil
}

// patchSafe reports whether a merge patch writes value verbatim at its
// key. Merge patch recurses into JSON objects, merging them with the
// stored value and dropping null-valued keys instead of replacing, and
// reads a top-level null as a key removal; such values must take the
// read-modify-write path. Scalars and arrays replace atomically.
func patchSafe(value any) (bool, error) {
	if value == nil {
		return false, nil
	}
	body, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return body[0] != '{', nil
}

// normalizeValue rewrites decoded JSON values for domain exposure:
// json.Number becomes int64 when integral, float64 otherwise, applied
// recursively through objects and arrays.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// Record field accessors. Documents decoded from the backend carry
// json.Number for numeric fields.

func docInt64(doc document.Document, field string) (int64, error) {
	switch x := doc[field].(type) {
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", field, err)
		}
		return i, nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("field %s is %T, not integer", field, doc[field])
	}
}

func docString(doc document.Document, field string) (string, error) {
	s, ok := doc[field].(string)
	if !ok {
		return "", fmt.Errorf("field %s is %T, not string", field, doc[field])
	}
	return s, nil
}

// docAnyMap returns a record's object field with normalized values. A
// missing or null field yields an empty map.
func docAnyMap(doc document.Document, field string) (map[string]any, error) {
	v := doc[field]
	if v == nil {
		return map[string]any{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %s is %T, not object", field, v)
	}
	return normalizeValue(m).(map[string]any), nil
}

// docFloatSlice returns a record's float-array field. A missing or null
// field yields nil.
func docFloatSlice(doc document.Document, field string) ([]float64, error) {
	v := doc[field]
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %s is %T, not array", field, v)
	}
	out := make([]float64, len(raw))
	for i, e := range raw {
		switch x := e.(type) {
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("field %s[%d]: %w", field, i, err)
			}
			out[i] = f
		case float64:
			out[i] = x
		default:
			return nil, fmt.Errorf("field %s[%d] is %T, not number", field, i, e)
		}
	}
	return out, nil
}

// studyRecord builds a persisted study document.
func studyRecord(studyID int64, name string, directions []types.StudyDirection,
	userAttrs, systemAttrs map[string]any, deleted bool, start *time.Time) (document.Document, error) {

	wireDirections, err := encodeDirections(directions)
	if err != nil {
		return nil, err
	}
	if userAttrs == nil {
		userAttrs = map[string]any{}
	}
	if systemAttrs == nil {
		systemAttrs = map[string]any{}
	}
	return document.Document{
		"study_id":       studyID,
		"study_name":     name,
		"directions":     wireDirections,
		"user_attrs":     userAttrs,
		"system_attrs":   systemAttrs,
		"deleted":        deleted,
		"datetime_start": encodeTime(start),
	}, nil
}

// decodeStudySummary translates a study record into its summary view.
// Trial counts and best trials are left for the caller.
func decodeStudySummary(doc document.Document) (types.StudySummary, error) {
	var sum types.StudySummary
	var err error

	if sum.StudyID, err = docInt64(doc, "study_id"); err != nil {
		return sum, err
	}
	if sum.StudyName, err = docString(doc, "study_name"); err != nil {
		return sum, err
	}
	if sum.Directions, err = decodeDirections(doc["directions"]); err != nil {
		return sum, err
	}
	if sum.UserAttrs, err = docAnyMap(doc, "user_attrs"); err != nil {
		return sum, err
	}
	if sum.SystemAttrs, err = docAnyMap(doc, "system_attrs"); err != nil {
		return sum, err
	}
	if sum.DatetimeStart, err = decodeTime(doc["datetime_start"]); err != nil {
		return sum, err
	}
	return sum, nil
}

// trialRecord builds a persisted trial document from a frozen trial,
// used when a template seeds a new trial. Identifiers are carried over
// as-is; the caller replaces them with freshly allocated ones. The
// heartbeat always starts empty.
func trialRecord(studyID int64, t *types.Trial) (document.Document, error) {
	state, err := encodeState(t.State)
	if err != nil {
		return nil, err
	}

	distributions := map[string]any{}
	for name, d := range t.Distributions {
		s, err := types.MarshalDistribution(d)
		if err != nil {
			return nil, fmt.Errorf("distribution %q: %w", name, err)
		}
		distributions[name] = s
	}

	intermediate := map[string]any{}
	for step, v := range t.IntermediateValues {
		intermediate[strconv.FormatInt(step, 10)] = v
	}

	var values any
	switch {
	case t.Values != nil:
		values = t.Values
	case t.Value != nil:
		values = []float64{*t.Value}
	}

	params := t.Params
	if params == nil {
		params = map[string]any{}
	}
	userAttrs := t.UserAttrs
	if userAttrs == nil {
		userAttrs = map[string]any{}
	}
	systemAttrs := t.SystemAttrs
	if systemAttrs == nil {
		systemAttrs = map[string]any{}
	}

	return document.Document{
		"study_id":            studyID,
		"trial_id":            t.TrialID,
		"number":              t.Number,
		"state":               state,
		"params":              params,
		"distributions":       distributions,
		"user_attrs":          userAttrs,
		"system_attrs":        systemAttrs,
		"values":              values,
		"intermediate_values": intermediate,
		"datetime_start":      encodeTime(t.DatetimeStart),
		"datetime_complete":   encodeTime(t.DatetimeComplete),
		"heartbeat":           nil,
	}, nil
}

// decodeTrial translates a trial record into a frozen trial, applying
// the single/multi objective-value convention: zero recorded values
// leave both views unset, exactly one fills Value only, two or more fill
// Values only.
func decodeTrial(doc document.Document) (*types.Trial, error) {
	var t types.Trial
	var err error

	if t.TrialID, err = docInt64(doc, "trial_id"); err != nil {
		return nil, err
	}
	if t.StudyID, err = docInt64(doc, "study_id"); err != nil {
		return nil, err
	}
	if t.Number, err = docInt64(doc, "number"); err != nil {
		return nil, err
	}
	if t.State, err = decodeState(doc["state"]); err != nil {
		return nil, err
	}
	if t.Params, err = docAnyMap(doc, "params"); err != nil {
		return nil, err
	}
	if t.UserAttrs, err = docAnyMap(doc, "user_attrs"); err != nil {
		return nil, err
	}
	if t.SystemAttrs, err = docAnyMap(doc, "system_attrs"); err != nil {
		return nil, err
	}

	rawDists, err := docAnyMap(doc, "distributions")
	if err != nil {
		return nil, err
	}
	t.Distributions = make(map[string]types.Distribution, len(rawDists))
	for name, raw := range rawDists {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("distribution %q is %T, not string", name, raw)
		}
		d, err := types.UnmarshalDistribution(s)
		if err != nil {
			return nil, fmt.Errorf("distribution %q: %w", name, err)
		}
		t.Distributions[name] = d
	}

	values, err := docFloatSlice(doc, "values")
	if err != nil {
		return nil, err
	}
	switch len(values) {
	case 0:
		// Both views unset.
	case 1:
		v := values[0]
		t.Value = &v
	default:
		t.Values = values
	}

	rawIntermediate, err := docAnyMap(doc, "intermediate_values")
	if err != nil {
		return nil, err
	}
	t.IntermediateValues = make(map[int64]float64, len(rawIntermediate))
	for key, raw := range rawIntermediate {
		step, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("intermediate step %q: %w", key, err)
		}
		switch x := raw.(type) {
		case int64:
			t.IntermediateValues[step] = float64(x)
		case float64:
			t.IntermediateValues[step] = x
		default:
			return nil, fmt.Errorf("intermediate value at step %q is %T, not number", key, raw)
		}
	}

	if t.DatetimeStart, err = decodeTime(doc["datetime_start"]); err != nil {
		return nil, err
	}
	if t.DatetimeComplete, err = decodeTime(doc["datetime_complete"]); err != nil {
		return nil, err
	}
	return &t, nil
}
