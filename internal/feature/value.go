// Package feature defines the value types and per-event record shared by
// the registry, computer, and pipeline runner.
package feature

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which arm of Value is populated.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindBool
)

// Value is a tagged union over the four shapes a feature value can take:
// an integer count, a floating ratio, a boolean, or a small integer
// category (represented as KindInt).
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
}

func Int(v int64) Value     { return Value{kind: KindInt, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func Bool(v bool) Value     { return Value{kind: KindBool, b: v} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsFloat64 widens any numeric or boolean value to a float64, for callers
// (drift recording, distribution metrics) that only care about magnitude.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("feature: value has no populated kind")
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case bool:
		*v = Bool(t)
	case float64:
		if t == float64(int64(t)) {
			*v = Int(int64(t))
		} else {
			*v = Float(t)
		}
	default:
		return fmt.Errorf("feature: unsupported value type %T", raw)
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return "<unset>"
	}
}
