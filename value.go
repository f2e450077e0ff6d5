package ilo

import (
	"fmt"
	"strconv"
	"strings"
)

// epsilon is the tolerance required for numeric equality.
const epsilon = 1e-9

// Value is the reference interpreter's runtime representation: either an
// unboxed number, nil, or bool, or a heap value — text, list, record,
// Ok, Err — here as a closed Go interface rather than a NaN-boxed cell,
// since the interpreter is the semantic reference the VM and JIT are
// checked against, not a performance path.
type Value interface {
	Type() Type
	String() string
	valueNode()
}

type NumberVal float64
type TextVal string
type BoolVal bool
type NilVal struct{}

type ListVal struct {
	Items []Value
}

type RecordVal struct {
	TypeName string
	Fields   map[string]Value
}

type OkVal struct{ Inner Value }
type ErrVal struct{ Inner Value }

func (NumberVal) valueNode() {}
func (TextVal) valueNode()   {}
func (BoolVal) valueNode()   {}
func (NilVal) valueNode()    {}
func (*ListVal) valueNode()  {}
func (*RecordVal) valueNode() {}
func (*OkVal) valueNode()    {}
func (*ErrVal) valueNode()   {}

func (NumberVal) Type() Type { return NumberType{} }
func (TextVal) Type() Type   { return TextType{} }
func (BoolVal) Type() Type   { return BoolType{} }
func (NilVal) Type() Type    { return NilType{} }
func (l *ListVal) Type() Type {
	if len(l.Items) == 0 {
		return ListType{Elem: UnknownType{}}
	}
	return ListType{Elem: l.Items[0].Type()}
}
func (r *RecordVal) Type() Type { return NamedType{Name: r.TypeName} }
func (o *OkVal) Type() Type     { return ResultType{Ok: o.Inner.Type(), Err: UnknownType{}} }
func (e *ErrVal) Type() Type    { return ResultType{Ok: UnknownType{}, Err: e.Inner.Type()} }

func (n NumberVal) String() string {
	return strconv.FormatFloat(float64(n), 'g', -1, 64)
}
func (t TextVal) String() string { return string(t) }
func (b BoolVal) String() string { return strconv.FormatBool(bool(b)) }
func (NilVal) String() string    { return "_" }
func (l *ListVal) String() string {
	parts := make([]string, len(l.Items))
	for i, it := range l.Items {
		parts[i] = it.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (r *RecordVal) String() string {
	var sb strings.Builder
	sb.WriteString(r.TypeName)
	for name, v := range r.Fields {
		fmt.Fprintf(&sb, " %s:%s", name, v.String())
	}
	return sb.String()
}
func (o *OkVal) String() string  { return "~" + o.Inner.String() }
func (e *ErrVal) String() string { return "^" + e.Inner.String() }

// Truthy implements the language's truthiness table: nil and false are
// falsy; zero numbers and empty text/list are falsy; everything else
// (including records and Ok/Err) is truthy.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case NilVal:
		return false
	case BoolVal:
		return bool(val)
	case NumberVal:
		return float64(val) != 0
	case TextVal:
		return len(val) > 0
	case *ListVal:
		return len(val.Items) > 0
	default:
		return true
	}
}

// ValuesEqual implements the language's equality rule: numeric tolerance,
// code-point text comparison, bitwise bool, nil-equals-nil, and recursive
// structural equality for heap composites.
func ValuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case NumberVal:
		bv, ok := b.(NumberVal)
		if !ok {
			return false
		}
		diff := float64(av) - float64(bv)
		if diff < 0 {
			diff = -diff
		}
		return diff < epsilon
	case TextVal:
		bv, ok := b.(TextVal)
		return ok && av == bv
	case BoolVal:
		bv, ok := b.(BoolVal)
		return ok && av == bv
	case NilVal:
		_, ok := b.(NilVal)
		return ok
	case *ListVal:
		bv, ok := b.(*ListVal)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !ValuesEqual(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *RecordVal:
		bv, ok := b.(*RecordVal)
		if !ok || av.TypeName != bv.TypeName || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for name, v := range av.Fields {
			other, ok := bv.Fields[name]
			if !ok || !ValuesEqual(v, other) {
				return false
			}
		}
		return true
	case *OkVal:
		bv, ok := b.(*OkVal)
		return ok && ValuesEqual(av.Inner, bv.Inner)
	case *ErrVal:
		bv, ok := b.(*ErrVal)
		return ok && ValuesEqual(av.Inner, bv.Inner)
	}
	return false
}

// CompareOrder implements '<'/'>'/'>='/'<=': numeric difference or
// lexicographic text comparison. ok is false for any other value pairing.
func CompareOrder(a, b Value) (cmp int, ok bool) {
	switch av := a.(type) {
	case NumberVal:
		bv, isNum := b.(NumberVal)
		if !isNum {
			return 0, false
		}
		switch {
		case float64(av) < float64(bv):
			return -1, true
		case float64(av) > float64(bv):
			return 1, true
		default:
			return 0, true
		}
	case TextVal:
		bv, isText := b.(TextVal)
		if !isText {
			return 0, false
		}
		return strings.Compare(string(av), string(bv)), true
	}
	return 0, false
}
