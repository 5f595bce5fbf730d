package recordstore

import "strconv"

// Op is a comparison in a query condition.
type Op string

const (
	OpEq    Op = "="
	OpIn    Op = "in"
	OpNotIn Op = "not in"
	OpGt    Op = ">"
)

// Cond compares one field with one or more values.
type Cond struct {
	Field  string
	Op     Op
	Values []string
}

// Filter is a conjunction of conditions. The empty filter matches every record.
type Filter []Cond

// Eq matches records whose field equals value.
func Eq(field, value string) Cond {
	return Cond{Field: field, Op: OpEq, Values: []string{value}}
}

// In matches records whose field equals any of values.
func In(field string, values ...string) Cond {
	return Cond{Field: field, Op: OpIn, Values: values}
}

// NotIn matches records whose field equals none of values.
func NotIn(field string, values ...string) Cond {
	return Cond{Field: field, Op: OpNotIn, Values: values}
}

// Gt matches records whose field is greater than value. Numeric values are
// compared as integers, anything else as text.
func Gt(field, value string) Cond {
	return Cond{Field: field, Op: OpGt, Values: []string{value}}
}

// Match evaluates the filter against a record.
func (f Filter) Match(r Record) bool {
	for _, c := range f {
		if !c.Match(r) {
			return false
		}
	}
	return true
}

// Match evaluates one condition against a record.
func (c Cond) Match(r Record) bool {
	v := r.String(c.Field)
	if c.Op == OpGt {
		return len(c.Values) > 0 && greater(v, c.Values[0])
	}
	found := false
	for _, want := range c.Values {
		if v == want {
			found = true
			break
		}
	}
	switch c.Op {
	case OpNotIn:
		return !found
	default:
		return found
	}
}

func greater(a, b string) bool {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return x > y
	}
	return a > b
}
