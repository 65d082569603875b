package types

import (
	"fmt"
	"strings"
	"time"
)

// ValueType identifies the runtime type of a Value.
type ValueType int

const (
	NullType ValueType = iota
	IntType
	FloatType
	StringType
	BoolType
	TimeType
)

func (t ValueType) String() string {
	switch t {
	case NullType:
		return "NULL"
	case IntType:
		return "INT"
	case FloatType:
		return "FLOAT"
	case StringType:
		return "STRING"
	case BoolType:
		return "BOOL"
	case TimeType:
		return "TIME"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// ParseValueType maps a declared column type name to a ValueType.
func ParseValueType(name string) (ValueType, error) {
	switch strings.ToUpper(name) {
	case "INT", "INTEGER":
		return IntType, nil
	case "FLOAT", "DECIMAL", "DOUBLE":
		return FloatType, nil
	case "STRING", "TEXT", "VARCHAR":
		return StringType, nil
	case "BOOL", "BOOLEAN":
		return BoolType, nil
	case "TIME", "DATE", "TIMESTAMP":
		return TimeType, nil
	default:
		return NullType, fmt.Errorf("unknown column type %q", name)
	}
}

// Value is a tagged union over the SQL scalar types. NULL is a distinct
// value, not absence; a zero Value is NULL.
type Value struct {
	Type  ValueType
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Time  time.Time
}

func Null() Value { return Value{Type: NullType} }

func NewInt(v int64) Value { return Value{Type: IntType, Int: v} }

func NewFloat(v float64) Value { return Value{Type: FloatType, Float: v} }

func NewString(v string) Value { return Value{Type: StringType, Str: v} }

func NewBool(v bool) Value { return Value{Type: BoolType, Bool: v} }

func NewTime(v time.Time) Value { return Value{Type: TimeType, Time: v} }

func (v Value) IsNull() bool { return v.Type == NullType }

// IsNumeric reports whether the value participates in numeric promotion.
func (v Value) IsNumeric() bool { return v.Type == IntType || v.Type == FloatType }

// AsFloat returns the numeric value widened to float64.
func (v Value) AsFloat() float64 {
	if v.Type == IntType {
		return float64(v.Int)
	}
	return v.Float
}

func (v Value) String() string {
	switch v.Type {
	case NullType:
		return "NULL"
	case IntType:
		return fmt.Sprintf("%d", v.Int)
	case FloatType:
		return fmt.Sprintf("%g", v.Float)
	case StringType:
		return v.Str
	case BoolType:
		return fmt.Sprintf("%t", v.Bool)
	case TimeType:
		return v.Time.Format(time.RFC3339)
	default:
		return "?"
	}
}

// Compare orders two non-NULL values, promoting int to float when the types
// are mixed numerics. Comparing text against a numeric is ErrTypeMismatch,
// never an implicit cast. Callers handle NULL before calling; comparing a
// NULL here is also ErrTypeMismatch.
func Compare(a, b Value) (int, error) {
	if a.IsNull() || b.IsNull() {
		return 0, fmt.Errorf("%w: cannot compare NULL operand", ErrTypeMismatch)
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a.Type == IntType && b.Type == IntType {
			return compareOrdered(a.Int, b.Int), nil
		}
		return compareOrdered(a.AsFloat(), b.AsFloat()), nil
	}
	if a.Type != b.Type {
		return 0, fmt.Errorf("%w: cannot compare %s with %s", ErrTypeMismatch, a.Type, b.Type)
	}
	switch a.Type {
	case StringType:
		return strings.Compare(a.Str, b.Str), nil
	case BoolType:
		return compareBool(a.Bool, b.Bool), nil
	case TimeType:
		return a.Time.Compare(b.Time), nil
	default:
		return 0, fmt.Errorf("%w: cannot compare %s values", ErrTypeMismatch, a.Type)
	}
}

// SortCompare is the total order used by ORDER BY, index keys and group
// keys: NULL sorts after every non-NULL value, mixed numerics promote, and
// otherwise-incomparable types order by type tag so the order stays total.
func SortCompare(a, b Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return 1
	case b.IsNull():
		return -1
	}
	if c, err := Compare(a, b); err == nil {
		return c
	}
	return compareOrdered(int(a.Type), int(b.Type))
}

// Equal is value equality under grouping rules: NULL equals NULL here,
// unlike the three-valued equality comparison.
func Equal(a, b Value) bool {
	return SortCompare(a, b) == 0
}

// CompareKeys orders two composite keys element-wise; a shorter key that is
// a prefix of the longer one orders first.
func CompareKeys(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := SortCompare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareOrdered(len(a), len(b))
}

// EncodeKey builds a canonical string for a value tuple. Two tuples encode
// equal iff Equal holds element-wise, so the encoding is usable as a hash
// key for grouping, hash joins and memoization.
func EncodeKey(vals []Value) string {
	var b strings.Builder
	for _, v := range vals {
		switch v.Type {
		case NullType:
			b.WriteString("n;")
		case IntType:
			// Fold into the float form so 1 and 1.0 share a key, but
			// only when float64 represents the value exactly; large
			// ints keep a lossless encoding of their own.
			if int64(float64(v.Int)) == v.Int {
				fmt.Fprintf(&b, "f:%g;", float64(v.Int))
			} else {
				fmt.Fprintf(&b, "i:%d;", v.Int)
			}
		case FloatType:
			fmt.Fprintf(&b, "f:%g;", v.Float)
		case StringType:
			fmt.Fprintf(&b, "s:%d:%s;", len(v.Str), v.Str)
		case BoolType:
			fmt.Fprintf(&b, "b:%t;", v.Bool)
		case TimeType:
			fmt.Fprintf(&b, "t:%d;", v.Time.UnixNano())
		}
	}
	return b.String()
}

func compareOrdered[T int | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
