// Package filter decides whether a scheduled run should go ahead by comparing
// the latest tag values against configured conditions.
package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/pkg/types"
)

// Condition is a comparison between a tag value and a filter operand.
type Condition int

const (
	ConditionUnknown Condition = iota
	Contains
	Above
	Below
	Equals
	NotEquals
)

var conditionNames = map[Condition]string{
	Contains:  "Contains",
	Above:     "Above",
	Below:     "Below",
	Equals:    "Equals",
	NotEquals: "NotEquals",
}

// conditionAliases lists every spelling accepted in configuration.
var conditionAliases = map[string]Condition{
	"Contains": Contains, "contains": Contains, "in": Contains, "has": Contains,

	"Above": Above, "above": Above, ">": Above,
	"Greater": Above, "greater": Above, "greater than": Above,

	"Below": Below, "below": Below, "<": Below,
	"Less": Below, "less": Below, "less than": Below,

	"Equals": Equals, "equals": Equals, "=": Equals, "==": Equals,
	"equal": Equals, "equal to": Equals,

	"Not Equals": NotEquals, "not equals": NotEquals, "not equal": NotEquals,
	"!=": NotEquals, "~=": NotEquals, "NotEquals": NotEquals,
}

// String returns the canonical condition name.
func (c Condition) String() string {
	if n, ok := conditionNames[c]; ok {
		return n
	}
	return "Unknown"
}

// ParseCondition resolves a configured condition spelling.
func ParseCondition(s string) (Condition, bool) {
	c, ok := conditionAliases[strings.TrimSpace(s)]
	return c, ok
}

// Spec is a filter as written in configuration.
type Spec struct {
	Key       types.TagKey `json:"key" yaml:"key"`
	Condition string       `json:"condition" yaml:"condition"`
	Value     interface{}  `json:"value" yaml:"value"`
}

// Filter is a validated Spec.
type Filter struct {
	Name      string
	Key       types.TagKey
	Condition Condition
	Value     interface{}
}

// Compile validates specs and returns them ordered by name. Use
// Specs.Compile to keep configuration order.
func Compile(specs map[string]Spec) ([]Filter, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return compile(names, specs)
}

func compile(names []string, specs map[string]Spec) ([]Filter, error) {
	filters := make([]Filter, 0, len(specs))
	for _, name := range names {
		spec := specs[name]
		cond, ok := ParseCondition(spec.Condition)
		if !ok {
			return nil, palserrors.NewValidationError(
				palserrors.CodeInvalidFilter,
				fmt.Sprintf("in filter named '%s', value for filter condition not recognized: %s", name, spec.Condition),
			).WithDetails(map[string]interface{}{"filter": name})
		}
		if spec.Key == "" {
			return nil, palserrors.NewValidationError(
				palserrors.CodeInvalidFilter,
				fmt.Sprintf("filter '%s' has no key", name),
			).WithDetails(map[string]interface{}{"filter": name})
		}
		if cond != Contains {
			if _, err := toFloat(spec.Value); err != nil {
				return nil, palserrors.NewValidationError(
					palserrors.CodeInvalidFilter,
					fmt.Sprintf("filter '%s' needs a numeric value: %v", name, err),
				).WithDetails(map[string]interface{}{"filter": name})
			}
		}
		filters = append(filters, Filter{Name: name, Key: spec.Key, Condition: cond, Value: spec.Value})
	}
	return filters, nil
}

// Match reports whether the tag value satisfies f.
func (f Filter) Match(tags map[string]types.TagValue) (bool, error) {
	tag, ok := tags[string(f.Key)]
	if !ok {
		return false, palserrors.NewValidationError(
			palserrors.CodeInvalidFilter,
			fmt.Sprintf("filter '%s': tag %s not present in payload", f.Name, f.Key),
		).WithDetails(map[string]interface{}{"filter": f.Name, "key": string(f.Key)})
	}

	if f.Condition == Contains {
		return strings.Contains(toString(tag.Value), toString(f.Value)), nil
	}

	actual, err := toFloat(tag.Value)
	if err != nil {
		return false, palserrors.NewValidationError(
			palserrors.CodeInvalidFilter,
			fmt.Sprintf("filter '%s': tag %s value: %v", f.Name, f.Key, err),
		).WithDetails(map[string]interface{}{"filter": f.Name, "key": string(f.Key)})
	}
	operand, err := toFloat(f.Value)
	if err != nil {
		return false, palserrors.NewValidationError(
			palserrors.CodeInvalidFilter,
			fmt.Sprintf("filter '%s': operand: %v", f.Name, err),
		)
	}

	switch f.Condition {
	case Above:
		return actual > operand, nil
	case Below:
		return actual < operand, nil
	case Equals:
		return actual == operand, nil
	case NotEquals:
		return actual != operand, nil
	}
	return false, palserrors.NewValidationError(
		palserrors.CodeInvalidFilter,
		fmt.Sprintf("filter '%s': unknown condition", f.Name),
	)
}

// Evaluate returns true only when every filter matches. An empty filter set
// always passes.
func Evaluate(filters []Filter, tags map[string]types.TagValue) (bool, error) {
	result := true
	for _, f := range filters {
		ok, err := f.Match(tags)
		if err != nil {
			return false, err
		}
		result = result && ok
	}
	return result, nil
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("cannot compare %T numerically", v)
	}
}
