package conformal

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidConfiguration reports an unusable scoring setup: an unknown
// function name, an epsilon outside (0, 1), or non-positive joint ratios.
var ErrInvalidConfiguration = errors.New("invalid conformal configuration")

// Component selects which part of a pose a scoring function measures.
type Component string

const (
	ComponentRotation    Component = "R"
	ComponentTranslation Component = "t"
	ComponentJoint       Component = "Rt"
)

// Aggregate selects how per-hypothesis distances collapse into one score.
type Aggregate string

const (
	AggregateMean Aggregate = "mean"
	AggregateMax  Aggregate = "max"
)

// Func names a nonconformity scoring function. The wire form is
// [normalized_]{mean|max}_{R|t|Rt}; Normalized divides each component
// distance by the dispersion of the hypothesis set before aggregating.
type Func struct {
	Component  Component
	Aggregate  Aggregate
	Normalized bool
}

// ParseFunc parses the wire form of a scoring function name. Parsing is
// strict: unknown components, aggregates or decorations are rejected.
func ParseFunc(s string) (Func, error) {
	var f Func
	rest := s
	if trimmed, ok := strings.CutPrefix(rest, "normalized_"); ok {
		f.Normalized = true
		rest = trimmed
	}
	agg, comp, ok := strings.Cut(rest, "_")
	if !ok {
		return Func{}, fmt.Errorf("%w: scoring function %q, want [normalized_]{mean|max}_{R|t|Rt}", ErrInvalidConfiguration, s)
	}
	f.Aggregate, f.Component = Aggregate(agg), Component(comp)
	if err := f.Validate(); err != nil {
		return Func{}, fmt.Errorf("%w: scoring function %q, want [normalized_]{mean|max}_{R|t|Rt}", ErrInvalidConfiguration, s)
	}
	return f, nil
}

// String returns the wire form of the function name.
func (f Func) String() string {
	s := string(f.Aggregate) + "_" + string(f.Component)
	if f.Normalized {
		s = "normalized_" + s
	}
	return s
}

// Validate checks that the component and aggregate are known.
func (f Func) Validate() error {
	switch f.Component {
	case ComponentRotation, ComponentTranslation, ComponentJoint:
	default:
		return fmt.Errorf("%w: unknown component %q", ErrInvalidConfiguration, f.Component)
	}
	switch f.Aggregate {
	case AggregateMean, AggregateMax:
	default:
		return fmt.Errorf("%w: unknown aggregate %q", ErrInvalidConfiguration, f.Aggregate)
	}
	return nil
}

// componentFunc returns the same function restricted to one component,
// used by the calibration pre-pass for joint functions.
func (f Func) componentFunc(c Component) Func {
	return Func{Component: c, Aggregate: f.Aggregate, Normalized: f.Normalized}
}

// Config is a fully resolved scoring setup. For joint functions the two
// ratios weight the rotation and translation distances; calibration
// derives them from the provisional per-component thresholds. Component
// functions ignore the ratios.
type Config struct {
	Func   Func
	RRatio float64
	TRatio float64
}

// Validate checks the function and, for joint scoring, the ratios.
func (c Config) Validate() error {
	if err := c.Func.Validate(); err != nil {
		return err
	}
	if c.Func.Component == ComponentJoint {
		if !(c.RRatio > 0) || math.IsInf(c.RRatio, 0) {
			return fmt.Errorf("%w: joint scoring needs a positive finite R ratio, got %v", ErrInvalidConfiguration, c.RRatio)
		}
		if !(c.TRatio > 0) || math.IsInf(c.TRatio, 0) {
			return fmt.Errorf("%w: joint scoring needs a positive finite t ratio, got %v", ErrInvalidConfiguration, c.TRatio)
		}
	}
	return nil
}
