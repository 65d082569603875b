package exec

import (
	"fmt"

	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// eval computes one scalar expression against the current environment.
// Boolean results are three-valued: a NULL Value stands for unknown.
func (ec *execCtx) eval(e plan.Expr) (types.Value, error) {
	switch x := e.(type) {
	case *plan.Literal:
		return x.Value, nil
	case *plan.ColumnRef:
		return ec.env.resolve(x.Table, x.Name)
	case *plan.AggRef:
		return ec.env.aggValue(x.Index)
	case *plan.Compare:
		return ec.evalCompare(x)
	case *plan.Arith:
		return ec.evalArith(x)
	case *plan.And:
		return ec.evalAnd(x)
	case *plan.Or:
		return ec.evalOr(x)
	case *plan.Not:
		v, err := ec.eval(x.Input)
		if err != nil {
			return types.Value{}, err
		}
		if v.IsNull() {
			return types.Null(), nil
		}
		if v.Type != types.BoolType {
			return types.Value{}, fmt.Errorf("%w: NOT requires a boolean operand, got %s", types.ErrTypeMismatch, v.Type)
		}
		return types.NewBool(!v.Bool), nil
	case *plan.IsNull:
		v, err := ec.eval(x.Input)
		if err != nil {
			return types.Value{}, err
		}
		return types.NewBool(v.IsNull() != x.Negate), nil
	case *plan.Case:
		return ec.evalCase(x)
	case *plan.InList:
		return ec.evalInList(x)
	case *plan.ScalarSubquery:
		return ec.evalScalarSubquery(x)
	case *plan.Exists:
		return ec.evalExists(x)
	case *plan.InSubquery:
		return ec.evalInSubquery(x)
	case *plan.QuantSubquery:
		return ec.evalQuantSubquery(x)
	default:
		return types.Value{}, fmt.Errorf("unsupported expression: %T", e)
	}
}

func (ec *execCtx) evalCompare(x *plan.Compare) (types.Value, error) {
	left, err := ec.eval(x.Left)
	if err != nil {
		return types.Value{}, err
	}
	right, err := ec.eval(x.Right)
	if err != nil {
		return types.Value{}, err
	}
	return compareValues(x.Op, left, right)
}

// compareValues applies a comparison under three-valued logic: any NULL
// operand makes the result NULL, never true or false.
func compareValues(op plan.CompareOp, left, right types.Value) (types.Value, error) {
	if left.IsNull() || right.IsNull() {
		return types.Null(), nil
	}
	c, err := types.Compare(left, right)
	if err != nil {
		return types.Value{}, err
	}
	switch op {
	case plan.Eq:
		return types.NewBool(c == 0), nil
	case plan.Ne:
		return types.NewBool(c != 0), nil
	case plan.Lt:
		return types.NewBool(c < 0), nil
	case plan.Le:
		return types.NewBool(c <= 0), nil
	case plan.Gt:
		return types.NewBool(c > 0), nil
	case plan.Ge:
		return types.NewBool(c >= 0), nil
	default:
		return types.Value{}, fmt.Errorf("unsupported comparison operator: %v", op)
	}
}

func (ec *execCtx) evalArith(x *plan.Arith) (types.Value, error) {
	left, err := ec.eval(x.Left)
	if err != nil {
		return types.Value{}, err
	}
	right, err := ec.eval(x.Right)
	if err != nil {
		return types.Value{}, err
	}
	if left.IsNull() || right.IsNull() {
		return types.Null(), nil
	}
	if !left.IsNumeric() || !right.IsNumeric() {
		return types.Value{}, fmt.Errorf("%w: arithmetic requires numeric operands, got %s and %s",
			types.ErrTypeMismatch, left.Type, right.Type)
	}
	if left.Type == types.IntType && right.Type == types.IntType {
		switch x.Op {
		case plan.Add:
			return types.NewInt(left.Int + right.Int), nil
		case plan.Sub:
			return types.NewInt(left.Int - right.Int), nil
		case plan.Mul:
			return types.NewInt(left.Int * right.Int), nil
		case plan.Div:
			if right.Int == 0 {
				return types.Value{}, fmt.Errorf("division by zero")
			}
			return types.NewInt(left.Int / right.Int), nil
		}
	}
	a, b := left.AsFloat(), right.AsFloat()
	switch x.Op {
	case plan.Add:
		return types.NewFloat(a + b), nil
	case plan.Sub:
		return types.NewFloat(a - b), nil
	case plan.Mul:
		return types.NewFloat(a * b), nil
	case plan.Div:
		if b == 0 {
			return types.Value{}, fmt.Errorf("division by zero")
		}
		return types.NewFloat(a / b), nil
	}
	return types.Value{}, fmt.Errorf("unsupported arithmetic operator: %v", x.Op)
}

// evalAnd follows Kleene logic: false dominates, true passes the other
// side through, two unknowns stay unknown.
func (ec *execCtx) evalAnd(x *plan.And) (types.Value, error) {
	left, err := ec.evalBool(x.Left)
	if err != nil {
		return types.Value{}, err
	}
	if !left.IsNull() && !left.Bool {
		return types.NewBool(false), nil
	}
	right, err := ec.evalBool(x.Right)
	if err != nil {
		return types.Value{}, err
	}
	if !right.IsNull() && !right.Bool {
		return types.NewBool(false), nil
	}
	if left.IsNull() || right.IsNull() {
		return types.Null(), nil
	}
	return types.NewBool(true), nil
}

// evalOr is the dual: true dominates, false passes through.
func (ec *execCtx) evalOr(x *plan.Or) (types.Value, error) {
	left, err := ec.evalBool(x.Left)
	if err != nil {
		return types.Value{}, err
	}
	if !left.IsNull() && left.Bool {
		return types.NewBool(true), nil
	}
	right, err := ec.evalBool(x.Right)
	if err != nil {
		return types.Value{}, err
	}
	if !right.IsNull() && right.Bool {
		return types.NewBool(true), nil
	}
	if left.IsNull() || right.IsNull() {
		return types.Null(), nil
	}
	return types.NewBool(false), nil
}

// evalBool evaluates an expression expected to be boolean or NULL.
func (ec *execCtx) evalBool(e plan.Expr) (types.Value, error) {
	v, err := ec.eval(e)
	if err != nil {
		return types.Value{}, err
	}
	if v.IsNull() || v.Type == types.BoolType {
		return v, nil
	}
	return types.Value{}, fmt.Errorf("%w: expected a boolean condition, got %s", types.ErrTypeMismatch, v.Type)
}

// evalCase walks branches in order and short-circuits at the first WHEN
// that is true; false and NULL conditions both fall through.
func (ec *execCtx) evalCase(x *plan.Case) (types.Value, error) {
	for _, branch := range x.Branches {
		cond, err := ec.evalBool(branch.When)
		if err != nil {
			return types.Value{}, err
		}
		if !cond.IsNull() && cond.Bool {
			return ec.eval(branch.Then)
		}
	}
	if x.Else != nil {
		return ec.eval(x.Else)
	}
	return types.Null(), nil
}

func (ec *execCtx) evalInList(x *plan.InList) (types.Value, error) {
	input, err := ec.eval(x.Input)
	if err != nil {
		return types.Value{}, err
	}
	items := make([]types.Value, len(x.Items))
	for i, item := range x.Items {
		items[i], err = ec.eval(item)
		if err != nil {
			return types.Value{}, err
		}
	}
	return membership(input, items, x.Negate)
}

// membership implements three-valued IN: found is true; not found with a
// NULL in the set (or a NULL probe against a non-empty set) is unknown,
// not false. IN over an empty set is false no matter the probe.
func membership(input types.Value, set []types.Value, negate bool) (types.Value, error) {
	anyNull := input.IsNull() && len(set) > 0
	found := false
	for _, item := range set {
		if item.IsNull() {
			anyNull = true
			continue
		}
		if input.IsNull() {
			continue
		}
		eq, err := compareValues(plan.Eq, input, item)
		if err != nil {
			return types.Value{}, err
		}
		if !eq.IsNull() && eq.Bool {
			found = true
			break
		}
	}
	switch {
	case found:
		return types.NewBool(!negate), nil
	case anyNull:
		return types.Null(), nil
	default:
		return types.NewBool(negate), nil
	}
}

// isTrue reports whether a condition value passes a filter: NULL and
// false both reject.
func isTrue(v types.Value) bool {
	return !v.IsNull() && v.Type == types.BoolType && v.Bool
}
