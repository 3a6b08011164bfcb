package types

import (
	"encoding/json"
	"fmt"
)

// Distribution describes the range/shape a parameter was sampled from.
// Samplers work with an internal float representation; ExternalRepr
// converts it to the value exposed in Trial.Params.
type Distribution interface {
	// Kind returns the wire name of the distribution kind.
	Kind() string

	// ExternalRepr converts the internal float representation of a
	// sampled value to its external form. Returns nil if the internal
	// value is out of the distribution's domain.
	ExternalRepr(internal float64) any
}

// Distribution kind names used in the serialized form.
const (
	KindFloat       = "float"
	KindInt         = "int"
	KindCategorical = "categorical"
)

// FloatDistribution is a bounded continuous range [Low, High].
type FloatDistribution struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
	Step float64 `json:"step,omitempty"`
	Log  bool    `json:"log,omitempty"`
}

// Kind returns "float".
func (FloatDistribution) Kind() string { return KindFloat }

// ExternalRepr returns the value unchanged; floats are their own
// external representation.
func (FloatDistribution) ExternalRepr(internal float64) any { return internal }

// IntDistribution is a bounded integer range [Low, High].
type IntDistribution struct {
	Low  int64 `json:"low"`
	High int64 `json:"high"`
	Step int64 `json:"step,omitempty"`
	Log  bool  `json:"log,omitempty"`
}

// Kind returns "int".
func (IntDistribution) Kind() string { return KindInt }

// ExternalRepr truncates the internal float to int64.
func (IntDistribution) ExternalRepr(internal float64) any { return int64(internal) }

// CategoricalDistribution is a finite set of choices. The internal
// representation of a sampled value is its index into Choices.
type CategoricalDistribution struct {
	Choices []any `json:"choices"`
}

// Kind returns "categorical".
func (CategoricalDistribution) Kind() string { return KindCategorical }

// ExternalRepr returns the choice at the internal index, or nil when the
// index is out of range.
func (d CategoricalDistribution) ExternalRepr(internal float64) any {
	i := int(internal)
	if i < 0 || i >= len(d.Choices) {
		return nil
	}
	return d.Choices[i]
}

// distributionEnvelope is the self-describing serialized form: the kind
// selects the attribute schema, so external values can be decoded without
// outside knowledge.
type distributionEnvelope struct {
	Kind       string          `json:"kind"`
	Attributes json.RawMessage `json:"attributes"`
}

// MarshalDistribution serializes a distribution to its self-describing
// JSON form, e.g. {"kind":"float","attributes":{"low":0,"high":1}}.
func MarshalDistribution(d Distribution) (string, error) {
	attrs, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshaling %s attributes: %w", d.Kind(), err)
	}
	out, err := json.Marshal(distributionEnvelope{Kind: d.Kind(), Attributes: attrs})
	if err != nil {
		return "", fmt.Errorf("marshaling distribution: %w", err)
	}
	return string(out), nil
}

// UnmarshalDistribution parses the self-describing JSON form produced by
// MarshalDistribution. Returns ErrUnknownDistribution for an unrecognized
// kind.
func UnmarshalDistribution(data string) (Distribution, error) {
	var env distributionEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, fmt.Errorf("parsing distribution: %w", err)
	}
	switch env.Kind {
	case KindFloat:
		var d FloatDistribution
		if err := json.Unmarshal(env.Attributes, &d); err != nil {
			return nil, fmt.Errorf("parsing float attributes: %w", err)
		}
		return d, nil
	case KindInt:
		var d IntDistribution
		if err := json.Unmarshal(env.Attributes, &d); err != nil {
			return nil, fmt.Errorf("parsing int attributes: %w", err)
		}
		return d, nil
	case KindCategorical:
		var d CategoricalDistribution
		if err := json.Unmarshal(env.Attributes, &d); err != nil {
			return nil, fmt.Errorf("parsing categorical attributes: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%q: %w", env.Kind, ErrUnknownDistribution)
	}
}
