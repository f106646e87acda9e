package vectorsearch

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Comparator is a comparison operator of a structured filter.
type Comparator string

const (
	Eq      Comparator = "eq"
	Ne      Comparator = "ne"
	Gt      Comparator = "gt"
	Gte     Comparator = "gte"
	Lt      Comparator = "lt"
	Lte     Comparator = "lte"
	In      Comparator = "in"
	Nin     Comparator = "nin"
	Like    Comparator = "like"
	Contain Comparator = "contain"
)

// Operator combines filters.
type Operator string

const (
	And Operator = "and"
	Or  Operator = "or"
	Not Operator = "not"
)

var comparatorKeys = map[Comparator]string{
	Eq:      "$eq",
	Ne:      "$ne",
	Gt:      "$gt",
	Gte:     "$gte",
	Lt:      "$lt",
	Lte:     "$lte",
	In:      "$in",
	Nin:     "$nin",
	Like:    "$like",
	Contain: "$contains",
}

// Filter is a logical expression over document attributes.
type Filter interface {
	// Encode renders the filter in the index service's JSON shape.
	Encode() map[string]any
	// Match evaluates the filter against a row of attributes.
	Match(attrs map[string]any) bool
	Validate() error
}

// Comparison tests one attribute against a value.
type Comparison struct {
	Attribute  string
	Comparator Comparator
	Value      any
}

// Operation combines its arguments. Not takes exactly one argument.
type Operation struct {
	Operator  Operator
	Arguments []Filter
}

// Equal is shorthand for an equality comparison.
func Equal(attribute string, value any) Comparison {
	return Comparison{Attribute: attribute, Comparator: Eq, Value: value}
}

// AllOf joins filters with And.
func AllOf(filters ...Filter) Operation {
	return Operation{Operator: And, Arguments: filters}
}

// AnyOf joins filters with Or.
func AnyOf(filters ...Filter) Operation {
	return Operation{Operator: Or, Arguments: filters}
}

// Negate wraps f in Not.
func Negate(f Filter) Operation {
	return Operation{Operator: Not, Arguments: []Filter{f}}
}

func (c Comparison) Validate() error {
	if strings.TrimSpace(c.Attribute) == "" {
		return fmt.Errorf("comparison is missing an attribute")
	}
	if _, ok := comparatorKeys[c.Comparator]; !ok {
		return fmt.Errorf("unsupported comparator %q", c.Comparator)
	}
	return nil
}

func (c Comparison) Encode() map[string]any {
	return map[string]any{c.Attribute: map[string]any{comparatorKeys[c.Comparator]: c.Value}}
}

func (c Comparison) Match(attrs map[string]any) bool {
	actual, present := attrs[c.Attribute]
	switch c.Comparator {
	case Eq:
		return present && equalValues(actual, c.Value)
	case Ne:
		return !present || !equalValues(actual, c.Value)
	case Gt, Gte, Lt, Lte:
		if !present {
			return false
		}
		cmp, ok := compareValues(actual, c.Value)
		if !ok {
			return false
		}
		switch c.Comparator {
		case Gt:
			return cmp > 0
		case Gte:
			return cmp >= 0
		case Lt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case In:
		return present && containsValue(c.Value, actual)
	case Nin:
		return !present || !containsValue(c.Value, actual)
	case Like:
		return present && likeMatch(fmt.Sprint(actual), fmt.Sprint(c.Value))
	case Contain:
		if !present {
			return false
		}
		if list, ok := actual.([]any); ok {
			return containsValue(list, c.Value)
		}
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(c.Value))
	default:
		return false
	}
}

func (o Operation) Validate() error {
	switch o.Operator {
	case And, Or:
		if len(o.Arguments) == 0 {
			return fmt.Errorf("%s needs at least one argument", o.Operator)
		}
	case Not:
		if len(o.Arguments) != 1 {
			return fmt.Errorf("not takes exactly one argument, got %d", len(o.Arguments))
		}
	default:
		return fmt.Errorf("unsupported operator %q", o.Operator)
	}
	for _, arg := range o.Arguments {
		if arg == nil {
			return fmt.Errorf("%s has a nil argument", o.Operator)
		}
		if err := arg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o Operation) Encode() map[string]any {
	if o.Operator == Not {
		return map[string]any{"$not": o.Arguments[0].Encode()}
	}
	args := make([]any, 0, len(o.Arguments))
	for _, arg := range o.Arguments {
		args = append(args, arg.Encode())
	}
	return map[string]any{"$" + string(o.Operator): args}
}

func (o Operation) Match(attrs map[string]any) bool {
	switch o.Operator {
	case And:
		for _, arg := range o.Arguments {
			if !arg.Match(attrs) {
				return false
			}
		}
		return true
	case Or:
		for _, arg := range o.Arguments {
			if arg.Match(attrs) {
				return true
			}
		}
		return false
	case Not:
		return len(o.Arguments) == 1 && !o.Arguments[0].Match(attrs)
	default:
		return false
	}
}

// ParseFilter decodes the structured form produced by the query constructor:
//
//	{"comparator": "eq", "attribute": "source", "value": "guide.pdf"}
//	{"operator": "and", "arguments": [ ... ]}
//
// A nil input yields a nil filter.
func ParseFilter(raw any) (Filter, error) {
	if raw == nil {
		return nil, nil
	}
	node, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("filter must be an object, got %T", raw)
	}
	if len(node) == 0 {
		return nil, nil
	}

	if op, ok := node["operator"]; ok {
		operation := Operation{Operator: Operator(strings.ToLower(fmt.Sprint(op)))}
		args, _ := node["arguments"].([]any)
		for _, arg := range args {
			parsed, err := ParseFilter(arg)
			if err != nil {
				return nil, err
			}
			if parsed != nil {
				operation.Arguments = append(operation.Arguments, parsed)
			}
		}
		if err := operation.Validate(); err != nil {
			return nil, err
		}
		return operation, nil
	}

	if cmp, ok := node["comparator"]; ok {
		attribute, _ := node["attribute"].(string)
		comparison := Comparison{
			Attribute:  attribute,
			Comparator: Comparator(strings.ToLower(fmt.Sprint(cmp))),
			Value:      node["value"],
		}
		if err := comparison.Validate(); err != nil {
			return nil, err
		}
		return comparison, nil
	}

	return nil, fmt.Errorf("filter has neither operator nor comparator")
}

// Attributes lists the attribute names referenced by f, sorted.
func Attributes(f Filter) []string {
	seen := map[string]struct{}{}
	var walk func(Filter)
	walk = func(f Filter) {
		switch v := f.(type) {
		case Comparison:
			seen[v.Attribute] = struct{}{}
		case Operation:
			for _, arg := range v.Arguments {
				walk(arg)
			}
		}
	}
	if f != nil {
		walk(f)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareValues(a, b any) (int, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func containsValue(list any, want any) bool {
	items, ok := list.([]any)
	if !ok {
		if strs, isStrs := list.([]string); isStrs {
			for _, s := range strs {
				if equalValues(s, want) {
					return true
				}
			}
		}
		return false
	}
	for _, item := range items {
		if equalValues(item, want) {
			return true
		}
	}
	return false
}

// likeMatch implements SQL LIKE with % and _ wildcards, case-insensitively.
func likeMatch(text, pattern string) bool {
	t := []rune(strings.ToLower(text))
	p := []rune(strings.ToLower(pattern))
	if !strings.ContainsAny(pattern, "%_") {
		return strings.Contains(string(t), string(p))
	}
	var match func(i, j int) bool
	match = func(i, j int) bool {
		for j < len(p) {
			switch p[j] {
			case '%':
				for k := i; k <= len(t); k++ {
					if match(k, j+1) {
						return true
					}
				}
				return false
			case '_':
				if i >= len(t) {
					return false
				}
			default:
				if i >= len(t) || t[i] != p[j] {
					return false
				}
			}
			i++
			j++
		}
		return i == len(t)
	}
	return match(0, 0)
}
