package rules

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"unicode"

	"meshgate/internal/resource"
)

var (
	ErrUnknownCategory = errors.New("condition address has no known resource category")
	ErrInvalidSuffix   = errors.New("condition address does not name a known attribute")
	ErrUnknownOperator = errors.New("unknown condition operator")
	ErrMissingAddress  = errors.New("condition address missing")
)

// Operator is the comparison applied by a condition
type Operator int

const (
	OpUnknown Operator = iota
	OpEqual
	OpGreaterThan
	OpLowerThan
	OpDx
	OpDdx
)

var operatorNames = map[Operator]string{
	OpEqual:       "eq",
	OpGreaterThan: "gt",
	OpLowerThan:   "lt",
	OpDx:          "dx",
	OpDdx:         "ddx",
}

// ParseOperator maps the wire name of an operator. Unrecognized names map to OpUnknown.
func ParseOperator(s string) Operator {
	for op, name := range operatorNames {
		if name == s {
			return op
		}
	}
	return OpUnknown
}

func (o Operator) String() string {
	if n, ok := operatorNames[o]; ok {
		return n
	}
	return "unknown"
}

// IsEdge reports whether the operator fires on a change rather than a level
func (o Operator) IsEdge() bool {
	return o == OpDx || o == OpDdx
}

// Condition is a single predicate over one addressable attribute.
// Derived fields are resolved once by ParseCondition.
type Condition struct {
	address  string
	operator string
	value    any

	category   resource.Category
	id         string
	descriptor resource.Descriptor
	suffixOK   bool
	op         Operator
	num        int
}

// ParseCondition builds a condition from an untyped record with address,
// operator and value keys.
func ParseCondition(m map[string]any, registry *resource.Registry) (Condition, error) {
	var c Condition
	addr, ok := m["address"].(string)
	if !ok || addr == "" {
		return c, ErrMissingAddress
	}
	c.address = addr
	c.operator, _ = m["operator"].(string)
	c.value = m["value"]

	c.category = resource.CategoryFromAddress(addr)
	if c.category.InstanceScoped() {
		c.id = resource.SplitAddress(addr).ID
	}
	if registry != nil {
		c.descriptor, c.suffixOK = registry.Resolve(addr)
	}
	c.op = ParseOperator(c.operator)
	c.value = coerceValue(c.value)
	c.num = numericValue(c.value)
	return c, nil
}

// NewCondition is a convenience wrapper over ParseCondition
func NewCondition(address, operator string, value any, registry *resource.Registry) (Condition, error) {
	return ParseCondition(map[string]any{
		"address":  address,
		"operator": operator,
		"value":    value,
	}, registry)
}

// coerceValue turns digit-leading strings into numbers and "true"/"false" into booleans
func coerceValue(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	if unicode.IsDigit(rune(s[0])) {
		if n, err := strconv.ParseUint(s, 10, 32); err == nil {
			return float64(n)
		}
		return v
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return v
}

func numericValue(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case float32:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case uint:
		return int(t)
	case bool:
		if t {
			return 1
		}
	}
	return 0
}

func (c Condition) Address() string             { return c.address }
func (c Condition) OperatorName() string        { return c.operator }
func (c Condition) Value() any                  { return c.value }
func (c Condition) Category() resource.Category { return c.category }
func (c Condition) ResourceID() string          { return c.id }
func (c Condition) Op() Operator                { return c.op }
func (c Condition) NumericValue() int           { return c.num }

// Suffix returns the resolved attribute suffix, empty when invalid
func (c Condition) Suffix() string {
	if !c.suffixOK {
		return ""
	}
	return c.descriptor.Suffix
}

// SuffixValid reports whether the address resolved to a known attribute
func (c Condition) SuffixValid() bool { return c.suffixOK }

// Descriptor returns the resolved attribute descriptor
func (c Condition) Descriptor() resource.Descriptor { return c.descriptor }

// TypedValue returns the condition value as a resource value
func (c Condition) TypedValue() resource.Value { return resource.FromAny(c.value) }

// Satisfiable reports whether the condition can ever hold
func (c Condition) Satisfiable() bool {
	return c.category != resource.CategoryNone && c.suffixOK && c.op != OpUnknown
}

// Validate reports why the condition can never hold
func (c Condition) Validate() error {
	var errs []error
	if c.category == resource.CategoryNone {
		errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownCategory, c.address))
	}
	if !c.suffixOK {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidSuffix, c.address))
	}
	if c.op == OpUnknown {
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownOperator, c.operator))
	}
	return errors.Join(errs...)
}

// Equal compares address, operator text and value
func (c Condition) Equal(o Condition) bool {
	return c.address == o.address && c.operator == o.operator && reflect.DeepEqual(c.value, o.value)
}
