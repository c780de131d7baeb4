package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/materials-cli/internal/docpath"
)

// Op is a comparison operator in a query condition.
type Op string

const (
	OpEq     Op = "eq"
	OpIn     Op = "in"
	OpNin    Op = "nin"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpExists Op = "exists"
)

// Cond is a single field condition. Equality and membership against a list
// field match when any element of the list matches, the way document stores
// treat array fields.
type Cond struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Criteria is a conjunction of conditions. The zero value matches everything.
type Criteria []Cond

// Eq matches documents whose field equals v.
func Eq(field string, v any) Cond { return Cond{Field: field, Op: OpEq, Value: v} }

// In matches documents whose field equals any of vs.
func In[T any](field string, vs []T) Cond {
	vals := make([]any, len(vs))
	for i := range vs {
		vals[i] = vs[i]
	}
	return Cond{Field: field, Op: OpIn, Value: vals}
}

// Nin matches documents whose field equals none of vs.
func Nin[T any](field string, vs []T) Cond {
	c := In(field, vs)
	c.Op = OpNin
	return c
}

// Gt matches documents whose field is strictly greater than v.
func Gt(field string, v any) Cond { return Cond{Field: field, Op: OpGt, Value: v} }

// Gte matches documents whose field is greater than or equal to v.
func Gte(field string, v any) Cond { return Cond{Field: field, Op: OpGte, Value: v} }

// Lt matches documents whose field is strictly less than v.
func Lt(field string, v any) Cond { return Cond{Field: field, Op: OpLt, Value: v} }

// Lte matches documents whose field is less than or equal to v.
func Lte(field string, v any) Cond { return Cond{Field: field, Op: OpLte, Value: v} }

// Exists matches documents where field is present (want=true) or absent.
func Exists(field string, want bool) Cond { return Cond{Field: field, Op: OpExists, Value: want} }

// And combines criteria into one conjunction.
func And(parts ...Criteria) Criteria {
	var out Criteria
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Where builds Criteria from conditions.
func Where(conds ...Cond) Criteria { return Criteria(conds) }

// Matches reports whether doc satisfies every condition.
func (c Criteria) Matches(doc Document) bool {
	for _, cond := range c {
		if !cond.Matches(doc) {
			return false
		}
	}
	return true
}

// Matches reports whether doc satisfies the condition.
func (c Cond) Matches(doc Document) bool {
	v, present := docpath.Get(doc, c.Field)
	switch c.Op {
	case OpExists:
		want, _ := c.Value.(bool)
		return present == want
	case OpNin:
		if !present {
			return true
		}
		return !anyElement(v, func(x any) bool { return memberOf(x, c.Value) })
	}
	if !present {
		return false
	}
	switch c.Op {
	case OpEq:
		return anyElement(v, func(x any) bool { return equalValues(x, c.Value) })
	case OpIn:
		return anyElement(v, func(x any) bool { return memberOf(x, c.Value) })
	case OpGt, OpGte, OpLt, OpLte:
		return anyElement(v, func(x any) bool {
			cmp, ok := compareValues(x, c.Value)
			if !ok {
				return false
			}
			switch c.Op {
			case OpGt:
				return cmp > 0
			case OpGte:
				return cmp >= 0
			case OpLt:
				return cmp < 0
			default:
				return cmp <= 0
			}
		})
	}
	return false
}

// anyElement applies fn to v, or to each element when v is a list.
func anyElement(v any, fn func(any) bool) bool {
	if items, ok := docpath.ToSlice(v); ok {
		for _, it := range items {
			if fn(it) {
				return true
			}
		}
		return false
	}
	return fn(v)
}

func memberOf(x any, set any) bool {
	items, ok := docpath.ToSlice(set)
	if !ok {
		return equalValues(x, set)
	}
	for _, it := range items {
		if equalValues(x, it) {
			return true
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return canonicalString(a) == canonicalString(b)
}

// compareValues orders numbers, strings and timestamps. Time values compare
// as instants even when one side is an RFC 3339 string.
func compareValues(a, b any) (int, bool) {
	if fa, ok := docpath.ToFloat(a); ok {
		if fb, ok := docpath.ToFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	_, aTime := a.(time.Time)
	_, bTime := b.(time.Time)
	if aTime || bTime {
		ta, ok1 := docpath.ToTime(a)
		tb, ok2 := docpath.ToTime(b)
		if !ok1 || !ok2 {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	sa, ok1 := a.(string)
	sb, ok2 := b.(string)
	if ok1 && ok2 {
		return strings.Compare(sa, sb), true
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok && ba == bb {
			return 0, true
		}
	}
	return 0, false
}

// canonicalString renders a value deterministically for equality and
// de-duplication of composite values.
func canonicalString(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// stringValues returns the string operands of an Eq/In condition, used by
// the SQL stores to narrow scans before the exact in-memory match.
func (c Cond) stringValues() ([]string, bool) {
	switch c.Op {
	case OpEq:
		s, ok := c.Value.(string)
		if !ok {
			return nil, false
		}
		return []string{s}, true
	case OpIn:
		items, ok := docpath.ToSlice(c.Value)
		if !ok || len(items) == 0 {
			return nil, false
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// distinctValues collects the values at field across docs, flattening lists,
// and returns them de-duplicated in a stable order.
func distinctValues(docs []Document, field string) []any {
	seen := make(map[string]bool)
	var out []any
	keys := make(map[string]any)
	for _, d := range docs {
		v, ok := docpath.Get(d, field)
		if !ok {
			continue
		}
		items, isList := docpath.ToSlice(v)
		if !isList {
			items = []any{v}
		}
		for _, it := range items {
			k := canonicalString(it)
			if seen[k] {
				continue
			}
			seen[k] = true
			keys[k] = it
		}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		out = append(out, keys[k])
	}
	return out
}
