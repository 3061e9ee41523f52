package capability

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feature is a single capability flag.
type Feature string

// Category groups related features.
type Category string

const (
	CategoryProblemClass   Category = "PROBLEM_CLASS"
	CategoryTime           Category = "TIME"
	CategoryNumbers        Category = "NUMBERS"
	CategoryTyping         Category = "TYPING"
	CategoryFluentsType    Category = "FLUENTS_TYPE"
	CategoryConditionsKind Category = "CONDITIONS_KIND"
	CategoryEffectsKind    Category = "EFFECTS_KIND"
	CategoryParameters     Category = "PARAMETERS"
)

const (
	ActionBased Feature = "ACTION_BASED"

	ContinuousTime Feature = "CONTINUOUS_TIME"

	DiscreteNumbers   Feature = "DISCRETE_NUMBERS"
	ContinuousNumbers Feature = "CONTINUOUS_NUMBERS"

	FlatTyping         Feature = "FLAT_TYPING"
	HierarchicalTyping Feature = "HIERARCHICAL_TYPING"

	NumericFluents Feature = "NUMERIC_FLUENTS"
	ObjectFluents  Feature = "OBJECT_FLUENTS"

	NegativeConditions    Feature = "NEGATIVE_CONDITIONS"
	DisjunctiveConditions Feature = "DISJUNCTIVE_CONDITIONS"
	Equality              Feature = "EQUALITY"
	ExistentialConditions Feature = "EXISTENTIAL_CONDITIONS"
	UniversalConditions   Feature = "UNIVERSAL_CONDITIONS"

	ConditionalEffects Feature = "CONDITIONAL_EFFECTS"
	IncreaseEffects    Feature = "INCREASE_EFFECTS"
	DecreaseEffects    Feature = "DECREASE_EFFECTS"

	ActionParameters Feature = "ACTION_PARAMETERS"
)

var categories = map[Feature]Category{
	ActionBased:           CategoryProblemClass,
	ContinuousTime:        CategoryTime,
	DiscreteNumbers:       CategoryNumbers,
	ContinuousNumbers:     CategoryNumbers,
	FlatTyping:            CategoryTyping,
	HierarchicalTyping:    CategoryTyping,
	NumericFluents:        CategoryFluentsType,
	ObjectFluents:         CategoryFluentsType,
	NegativeConditions:    CategoryConditionsKind,
	DisjunctiveConditions: CategoryConditionsKind,
	Equality:              CategoryConditionsKind,
	ExistentialConditions: CategoryConditionsKind,
	UniversalConditions:   CategoryConditionsKind,
	ConditionalEffects:    CategoryEffectsKind,
	IncreaseEffects:       CategoryEffectsKind,
	DecreaseEffects:       CategoryEffectsKind,
	ActionParameters:      CategoryParameters,
}

// Category returns the category the feature belongs to.
func (f Feature) Category() Category {
	return categories[f]
}

// Validate checks that the feature is part of the known vocabulary.
func (f Feature) Validate() error {
	if _, ok := categories[f]; !ok {
		return fmt.Errorf("invalid feature: %s", f)
	}
	return nil
}

// AllFeatures returns the whole vocabulary in sorted order.
func AllFeatures() []Feature {
	out := make([]Feature, 0, len(categories))
	for f := range categories {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseFeature parses a feature name, accepting lower case.
func ParseFeature(s string) (Feature, error) {
	f := Feature(strings.ToUpper(strings.TrimSpace(s)))
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}

// Kind is an immutable set of features. The zero value is the empty kind.
type Kind struct {
	features map[Feature]struct{}
}

// NewKind creates a kind holding the given features.
func NewKind(features ...Feature) Kind {
	k := Kind{features: make(map[Feature]struct{}, len(features))}
	for _, f := range features {
		k.features[f] = struct{}{}
	}
	return k
}

// Has reports whether the feature is present.
func (k Kind) Has(f Feature) bool {
	_, ok := k.features[f]
	return ok
}

// Len returns the number of features.
func (k Kind) Len() int {
	return len(k.features)
}

// IsEmpty reports whether the kind holds no feature.
func (k Kind) IsEmpty() bool {
	return len(k.features) == 0
}

// With returns a new kind with the given features added.
func (k Kind) With(features ...Feature) Kind {
	out := Kind{features: make(map[Feature]struct{}, len(k.features)+len(features))}
	for f := range k.features {
		out.features[f] = struct{}{}
	}
	for _, f := range features {
		out.features[f] = struct{}{}
	}
	return out
}

// Union returns the features present in either kind.
func (k Kind) Union(other Kind) Kind {
	return k.With(other.Features()...)
}

// IsSubsetOf reports whether every feature of k is present in other.
func (k Kind) IsSubsetOf(other Kind) bool {
	for f := range k.features {
		if !other.Has(f) {
			return false
		}
	}
	return true
}

// Missing returns the features of k that supported lacks, sorted.
func (k Kind) Missing(supported Kind) []Feature {
	var out []Feature
	for _, f := range k.Features() {
		if !supported.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Equal reports whether both kinds hold the same features.
func (k Kind) Equal(other Kind) bool {
	return k.Len() == other.Len() && k.IsSubsetOf(other)
}

// Features returns the features in sorted order.
func (k Kind) Features() []Feature {
	out := make([]Feature, 0, len(k.features))
	for f := range k.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ByCategory groups the features of k by category.
func (k Kind) ByCategory() map[Category][]Feature {
	out := make(map[Category][]Feature)
	for _, f := range k.Features() {
		out[f.Category()] = append(out[f.Category()], f)
	}
	return out
}

// Strings returns the feature names in sorted order.
func (k Kind) Strings() []string {
	fs := k.Features()
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

func (k Kind) String() string {
	return "{" + strings.Join(k.Strings(), ", ") + "}"
}

// ParseKind builds a kind from feature names, rejecting unknown names.
func ParseKind(names []string) (Kind, error) {
	k := NewKind()
	for _, n := range names {
		f, err := ParseFeature(n)
		if err != nil {
			return Kind{}, err
		}
		k.features[f] = struct{}{}
	}
	return k, nil
}

// MarshalJSON encodes the kind as a sorted list of names.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Strings())
}

// UnmarshalJSON decodes a list of feature names.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParseKind(names)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalYAML encodes the kind as a sorted list of names.
func (k Kind) MarshalYAML() (interface{}, error) {
	return k.Strings(), nil
}

// UnmarshalYAML decodes a list of feature names.
func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	if err := node.Decode(&names); err != nil {
		return err
	}
	parsed, err := ParseKind(names)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
