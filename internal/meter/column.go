package meter

import (
	"encoding/json"
	"fmt"
)

type ColumnType int

const (
	StringColumn ColumnType = iota
	LongColumn
	IntColumn
	DoubleColumn
)

// MergePolicy decides how two values of the same column combine.
type MergePolicy int

const (
	// NonMergeable keeps the first value. A different second value is a conflict.
	NonMergeable MergePolicy = iota
	// Cover keeps the last value written.
	Cover
	// Sum adds the values. Only valid on numeric columns.
	Sum
)

type Column struct {
	Name   string
	Type   ColumnType
	Policy MergePolicy
	// Derived columns are not merged, they are recomputed from the other columns after a merge.
	Derived bool
}

// Value holds one column value. Which field is meaningful depends on the column type.
type Value struct {
	Str    string
	Long   int64
	Int    int32
	Double float64
}

func StringValue(s string) Value { return Value{Str: s} }
func LongValue(l int64) Value { return Value{Long: l} }
func IntValue(i int32) Value { return Value{Int: i} }
func DoubleValue(d float64) Value { return Value{Double: d} }

func add(column Column, a Value, b Value) Value {
	switch column.Type {
	case LongColumn:
		return LongValue(a.Long + b.Long)
	case IntColumn:
		return IntValue(a.Int + b.Int)
	case DoubleColumn:
		return DoubleValue(a.Double + b.Double)
	default:
		return b
	}
}

func encodeValue(column Column, v Value) interface{} {
	switch column.Type {
	case StringColumn:
		return v.Str
	case LongColumn:
		return v.Long
	case IntColumn:
		return v.Int
	default:
		return v.Double
	}
}

func decodeValue(column Column, raw interface{}) (Value, error) {
	switch column.Type {
	case StringColumn:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("column %s: expected string, got %T", column.Name, raw)
		}
		return StringValue(s), nil
	case LongColumn:
		n, err := toInt64(raw)
		if err != nil {
			return Value{}, fmt.Errorf("column %s: %w", column.Name, err)
		}
		return LongValue(n), nil
	case IntColumn:
		n, err := toInt64(raw)
		if err != nil {
			return Value{}, fmt.Errorf("column %s: %w", column.Name, err)
		}
		return IntValue(int32(n)), nil
	default:
		f, err := toFloat64(raw)
		if err != nil {
			return Value{}, fmt.Errorf("column %s: %w", column.Name, err)
		}
		return DoubleValue(f), nil
	}
}

func toFloat64(raw interface{}) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("expected a number, got %T", raw)
	}
}

// toInt64 keeps integers exact; json.Number is parsed as an integer before falling back to a float.
func toInt64(raw interface{}) (int64, error) {
	switch n := raw.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", raw)
	}
}
