package ilo

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// VmState is the reusable bytecode VM handle: it binds to one
// CompiledProgram and keeps its operand stack and frame vector alive
// across calls so a long-running host doesn't pay an allocation per
// invocation. Locals and operands share the same stack — a frame's
// locals occupy stack[stackBase:stackBase+LocalCount], and its operand
// pushes grow above that — rather than a separate locals array.
type VmState struct {
	prog   *CompiledProgram
	cfg    *Config
	heap   *Heap
	stack  []NanVal
	frames []string
	logger *zap.Logger
}

// NewVmState binds a VM handle to a compiled program, ready for repeated
// Run calls. Tracing is off by default (a no-op logger), enabled by
// passing a real logger to SetLogger and flipping Config's "vm.trace"
// knob.
func NewVmState(prog *CompiledProgram, cfg *Config) *VmState {
	return &VmState{prog: prog, cfg: cfg, heap: NewHeap(), logger: zap.NewNop()}
}

// SetLogger attaches a structured logger for debug-level instruction and
// call tracing; pass nil to go back to silent.
func (vm *VmState) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	vm.logger = l
}

func (vm *VmState) traceEnabled() bool {
	return vm.cfg != nil && vm.cfg.GetBool("vm.trace")
}

func (vm *VmState) errf(code string, format string, args ...interface{}) error {
	stack := make([]string, len(vm.frames))
	copy(stack, vm.frames)
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...), Span: UnknownSpan, CallStack: stack}
}

// VmError wraps a RuntimeError with the stack trace pkg/errors captured at
// the point a VM-internal invariant broke (a poison read past a chunk's
// instruction stream, a corrupt heap index) — distinct from the ordinary
// RuntimeErrors every opcode's own checks return for a user-reachable
// fault (division by zero, wrong field). Only the panic-recover boundary
// in Run constructs one.
type VmError struct {
	*RuntimeError
	cause error
}

func (e *VmError) Unwrap() error { return e.cause }

func (vm *VmState) panicErr(r interface{}) *VmError {
	cause := errors.WithStack(errors.Errorf("vm internal error: %v", r))
	stack := make([]string, len(vm.frames))
	copy(stack, vm.frames)
	return &VmError{
		RuntimeError: &RuntimeError{Code: "R013", Message: cause.Error(), Span: UnknownSpan, CallStack: stack},
		cause:        cause,
	}
}

// Run invokes the named function with args, boxing/unboxing at the
// Value/NanVal boundary so a VmState is a drop-in alternative to
// Interpreter.Run for any already-verified program. A panic escaping the
// dispatch loop (a VM-internal invariant violation rather than a
// user-reachable fault, which opcodes already report as a plain
// RuntimeError) is recovered and reported as a VmError instead of
// crashing the host.
func (vm *VmState) Run(name string, args []Value) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, vm.panicErr(r)
		}
	}()

	// A prior call that errored out mid-frame may have left locals or
	// operands undropped; start every Run from a clean stack rather than
	// trusting that unwind, defensively dropping any residual NanVals
	// left over from a prior failed call.
	for _, v := range vm.stack {
		vm.heap.DropRC(v)
	}
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]

	chunkIdx, ok := vm.prog.Entry[name]
	if !ok {
		return nil, vm.errf("R011", "unknown function %q", name)
	}
	boxed := make([]NanVal, len(args))
	for i, a := range args {
		boxed[i] = vm.box(a)
	}
	res, callErr := vm.call(chunkIdx, boxed)
	if callErr != nil {
		return nil, callErr
	}
	out := vm.unbox(res)
	vm.heap.DropRC(res)
	return out, nil
}

func (vm *VmState) push(v NanVal) { vm.stack = append(vm.stack, v) }

func (vm *VmState) pop() NanVal {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VmState) peek() NanVal { return vm.stack[len(vm.stack)-1] }

// call runs one chunk to completion with a fetch-decode loop: a single
// switch over the opcode, with most cases falling through to a uniform
// ip++ and jumps/Call/Return short-circuiting it directly, adapted from
// a backtracking parser VM to a value-stack language VM.
func (vm *VmState) call(chunkIdx int, args []NanVal) (NanVal, error) {
	chunk := vm.prog.Chunks[chunkIdx]
	base := len(vm.stack)
	for i := 0; i < chunk.LocalCount; i++ {
		if i < len(args) {
			vm.push(args[i])
		} else {
			vm.push(BoxNil())
		}
	}
	vm.frames = append(vm.frames, chunk.Name)
	trace := vm.traceEnabled()
	if trace {
		vm.logger.Debug("vm call enter", zap.String("func", chunk.Name), zap.Int("depth", len(vm.frames)))
	}
	defer func() {
		if trace {
			vm.logger.Debug("vm call exit", zap.String("func", chunk.Name), zap.Int("depth", len(vm.frames)))
		}
		vm.frames = vm.frames[:len(vm.frames)-1]
	}()

	ip := 0
code:
	for {
		instr := chunk.Code[ip]
		if trace {
			vm.logger.Debug("vm fetch", zap.String("func", chunk.Name), zap.Int("ip", ip), zap.String("op", instr.Op().String()))
		}
		switch instr.Op() {
		case BcLoadConst:
			vm.push(vm.box(chunk.Constants[instr.Bx()]))

		case BcLoadLocal:
			v := vm.stack[base+int(instr.A())]
			vm.heap.CloneRC(v)
			vm.push(v)

		case BcStoreLocal:
			v := vm.pop()
			slot := base + int(instr.A())
			vm.heap.DropRC(vm.stack[slot])
			vm.stack[slot] = v

		case BcAdd:
			r, l := vm.pop(), vm.pop()
			res, err := vm.add(l, r)
			vm.heap.DropRC(l)
			vm.heap.DropRC(r)
			if err != nil {
				vm.drainFrame(base)
				return 0, err
			}
			vm.push(res)

		case BcSub, BcMul, BcDiv:
			r, l := vm.pop(), vm.pop()
			res, err := vm.numOp(instr.Op(), l, r)
			vm.heap.DropRC(l)
			vm.heap.DropRC(r)
			if err != nil {
				vm.drainFrame(base)
				return 0, err
			}
			vm.push(res)

		case BcEq, BcNotEq:
			r, l := vm.pop(), vm.pop()
			eq := vm.valuesEqual(l, r)
			vm.heap.DropRC(l)
			vm.heap.DropRC(r)
			vm.push(BoxBool(eq == (instr.Op() == BcEq)))

		case BcGt, BcLt, BcGe, BcLe:
			r, l := vm.pop(), vm.pop()
			res, err := vm.compareOp(instr.Op(), l, r)
			vm.heap.DropRC(l)
			vm.heap.DropRC(r)
			if err != nil {
				vm.drainFrame(base)
				return 0, err
			}
			vm.push(res)

		case BcAppend:
			r, l := vm.pop(), vm.pop()
			res, err := vm.appendOp(l, r)
			if err != nil {
				vm.heap.DropRC(l)
				vm.heap.DropRC(r)
				vm.drainFrame(base)
				return 0, err
			}
			vm.heap.DropRC(l)
			vm.push(res)

		case BcNot:
			v := vm.pop()
			vm.push(BoxBool(!vm.truthy(v)))
			vm.heap.DropRC(v)

		case BcNegate:
			v := vm.pop()
			if v.Kind() != NanNumber {
				vm.heap.DropRC(v)
				vm.drainFrame(base)
				return 0, vm.errf("T012", "negate requires a number")
			}
			vm.push(BoxNumber(-v.Number()))

		case BcWrapOk:
			v := vm.pop()
			vm.push(vm.heap.NewOk(v))
			vm.heap.DropRC(v)

		case BcWrapErr:
			v := vm.pop()
			vm.push(vm.heap.NewErr(v))
			vm.heap.DropRC(v)

		case BcIsOk:
			v := vm.peek()
			vm.push(BoxBool(v.Kind() == NanOk))

		case BcIsErr:
			v := vm.peek()
			vm.push(BoxBool(v.Kind() == NanErr))

		case BcUnwrapOkErr:
			v := vm.pop()
			switch v.Kind() {
			case NanOk, NanErr:
				inner := vm.heap.Inner(v)
				vm.heap.CloneRC(inner)
				vm.push(inner)
				vm.heap.DropRC(v)
			default:
				// Not an Ok/Err: passes through unchanged, matching
				// applyCallUnwrap's rule for other values.
				vm.push(v)
			}

		case BcJump:
			ip = int(instr.Bx())
			continue code

		case BcJumpIfTrue:
			v := vm.pop()
			t := vm.truthy(v)
			vm.heap.DropRC(v)
			if t {
				ip = int(instr.Bx())
				continue code
			}

		case BcJumpIfFalse:
			v := vm.pop()
			t := vm.truthy(v)
			vm.heap.DropRC(v)
			if !t {
				ip = int(instr.Bx())
				continue code
			}

		case BcCall:
			n := int(instr.A())
			calleeIdx := int(instr.Bx())
			callee := vm.prog.Callees[calleeIdx]
			callArgs := make([]NanVal, n)
			for i := n - 1; i >= 0; i-- {
				callArgs[i] = vm.pop()
			}
			var res NanVal
			var err error
			if callee.IsBuiltin {
				res, err = vm.callBuiltin(callee.Name, callArgs)
			} else {
				res, err = vm.call(callee.ChunkIndex, callArgs)
			}
			if err != nil {
				vm.drainFrame(base)
				return 0, err
			}
			vm.push(res)

		case BcReturn:
			v := vm.pop()
			vm.drainFrame(base)
			return v, nil

		case BcRecordNew:
			n := int(instr.A())
			desc := chunk.FieldDescs[instr.Bx()]
			typeName, names := desc[0], desc[1:]
			vals := make([]NanVal, n)
			for i := n - 1; i >= 0; i-- {
				vals[i] = vm.pop()
			}
			fields := make(map[string]NanVal, n)
			for i, name := range names {
				fields[name] = vals[i]
			}
			vm.push(vm.heap.NewRecord(typeName, fields))

		case BcRecordField:
			name := string(chunk.Constants[instr.Bx()].(TextVal))
			v := vm.pop()
			if v.Kind() != NanRecord {
				vm.heap.DropRC(v)
				vm.drainFrame(base)
				return 0, vm.errf("T018", "field access requires a record")
			}
			fv, ok := vm.heap.Fields(v)[name]
			if !ok {
				vm.heap.DropRC(v)
				vm.drainFrame(base)
				return 0, vm.errf("T019", "unknown field %q on %q", name, vm.heap.TypeName(v))
			}
			vm.heap.CloneRC(fv)
			vm.heap.DropRC(v)
			vm.push(fv)

		case BcRecordWith:
			n := int(instr.A())
			names := chunk.FieldDescs[instr.Bx()]
			vals := make([]NanVal, n)
			for i := n - 1; i >= 0; i-- {
				vals[i] = vm.pop()
			}
			base2 := vm.pop()
			if base2.Kind() != NanRecord {
				vm.heap.DropRC(base2)
				vm.drainFrame(base)
				return 0, vm.errf("T020", "`with` requires a record")
			}
			typeName := vm.heap.TypeName(base2)
			fresh := make(map[string]NanVal, len(vm.heap.Fields(base2)))
			for k, v := range vm.heap.Fields(base2) {
				vm.heap.CloneRC(v)
				fresh[k] = v
			}
			for i, name := range names {
				if old, ok := fresh[name]; ok {
					vm.heap.DropRC(old)
				}
				fresh[name] = vals[i]
			}
			vm.heap.DropRC(base2)
			vm.push(vm.heap.NewRecord(typeName, fresh))

		case BcPop:
			v := vm.pop()
			vm.heap.DropRC(v)

		case BcDup:
			v := vm.peek()
			vm.heap.CloneRC(v)
			vm.push(v)

		case BcListNew:
			n := int(instr.A())
			items := make([]NanVal, n)
			for i := n - 1; i >= 0; i-- {
				items[i] = vm.pop()
			}
			vm.push(vm.heap.NewList(items))

		case BcListIndex:
			k := int(instr.Bx())
			v := vm.pop()
			if v.Kind() != NanList {
				vm.heap.DropRC(v)
				vm.drainFrame(base)
				return 0, vm.errf("T023", "index requires a list")
			}
			items := vm.heap.Items(v)
			if k < 0 || k >= len(items) {
				vm.heap.DropRC(v)
				vm.drainFrame(base)
				return 0, vm.errf("R006", "list index %d out of bounds (length %d)", k, len(items))
			}
			el := items[k]
			vm.heap.CloneRC(el)
			vm.heap.DropRC(v)
			vm.push(el)

		case BcListGetOrEnd:
			idxV, collV := vm.pop(), vm.pop()
			idx := int(idxV.Number())
			if collV.Kind() != NanList {
				vm.heap.DropRC(idxV)
				vm.heap.DropRC(collV)
				ip = int(instr.Bx())
				continue code
			}
			items := vm.heap.Items(collV)
			vm.heap.DropRC(idxV)
			if idx < 0 || idx >= len(items) {
				vm.heap.DropRC(collV)
				ip = int(instr.Bx())
				continue code
			}
			el := items[idx]
			vm.heap.CloneRC(el)
			vm.heap.DropRC(collV)
			vm.push(el)
		}
		ip++
	}
}

// drainFrame drops every NanVal this frame's locals/operands still hold —
// used both on a clean Return (locals only remain by then) and on an
// error exit, where leftover operands are also possible.
func (vm *VmState) drainFrame(base int) {
	for i := len(vm.stack) - 1; i >= base; i-- {
		vm.heap.DropRC(vm.stack[i])
	}
	vm.stack = vm.stack[:base]
}

// callBuiltin unboxes args into Values, dispatches through the shared
// builtinFuncs table (the same one the tree-walking interpreter uses),
// and boxes the result back — builtins are defined once, against the
// Value domain, and both backends reuse them.
func (vm *VmState) callBuiltin(name string, args []NanVal) (NanVal, error) {
	bf, ok := builtinFuncs[name]
	if !ok {
		return 0, vm.errf("R011", "unknown callee %q", name)
	}
	vals := make([]Value, len(args))
	for i, a := range args {
		vals[i] = vm.unbox(a)
		vm.heap.DropRC(a)
	}
	res, err := bf(vm.cfg, vals, UnknownSpan)
	if err != nil {
		if re, ok := err.(*RuntimeError); ok {
			stack := make([]string, len(vm.frames))
			copy(stack, vm.frames)
			re.CallStack = stack
		}
		return 0, err
	}
	return vm.box(res), nil
}

func (vm *VmState) truthy(v NanVal) bool {
	switch v.Kind() {
	case NanNil, NanFalse:
		return false
	case NanNumber:
		return v.Number() != 0
	case NanString:
		return len(vm.heap.Text(v)) > 0
	case NanList:
		return len(vm.heap.Items(v)) > 0
	default:
		return true
	}
}

func (vm *VmState) add(l, r NanVal) (NanVal, error) {
	if l.Kind() == NanNumber && r.Kind() == NanNumber {
		return BoxNumber(l.Number() + r.Number()), nil
	}
	if l.Kind() == NanString && r.Kind() == NanString {
		return vm.heap.NewString(vm.heap.Text(l) + vm.heap.Text(r)), nil
	}
	if l.Kind() == NanList && r.Kind() == NanList {
		li, ri := vm.heap.Items(l), vm.heap.Items(r)
		items := make([]NanVal, 0, len(li)+len(ri))
		items = append(items, li...)
		items = append(items, ri...)
		for _, it := range items {
			vm.heap.CloneRC(it)
		}
		return vm.heap.NewList(items), nil
	}
	return 0, vm.errf("T009", "`+` requires two numbers, two texts, or two lists")
}

func (vm *VmState) numOp(op Bc, l, r NanVal) (NanVal, error) {
	if l.Kind() != NanNumber || r.Kind() != NanNumber {
		return 0, vm.errf("T009", "%q requires two numbers", op.String())
	}
	lf, rf := l.Number(), r.Number()
	switch op {
	case BcSub:
		return BoxNumber(lf - rf), nil
	case BcMul:
		return BoxNumber(lf * rf), nil
	case BcDiv:
		if rf == 0 {
			return 0, vm.errf("R003", "division by zero")
		}
		return BoxNumber(lf / rf), nil
	}
	return 0, vm.errf("T009", "unsupported operator %q", op.String())
}

func (vm *VmState) compareOp(op Bc, l, r NanVal) (NanVal, error) {
	cmp, ok := vm.compareOrder(l, r)
	if !ok {
		return 0, vm.errf("T010", "comparison requires two numbers or two texts")
	}
	switch op {
	case BcGt:
		return BoxBool(cmp > 0), nil
	case BcLt:
		return BoxBool(cmp < 0), nil
	case BcGe:
		return BoxBool(cmp >= 0), nil
	case BcLe:
		return BoxBool(cmp <= 0), nil
	}
	return BoxBool(false), nil
}

func (vm *VmState) compareOrder(a, b NanVal) (int, bool) {
	if a.Kind() == NanNumber && b.Kind() == NanNumber {
		af, bf := a.Number(), b.Number()
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if a.Kind() == NanString && b.Kind() == NanString {
		return strings.Compare(vm.heap.Text(a), vm.heap.Text(b)), true
	}
	return 0, false
}

func (vm *VmState) appendOp(l, r NanVal) (NanVal, error) {
	if l.Kind() != NanList {
		return 0, vm.errf("T011", "`+=` requires a list on the left")
	}
	items := vm.heap.Items(l)
	out := make([]NanVal, len(items)+1)
	for i, it := range items {
		vm.heap.CloneRC(it)
		out[i] = it
	}
	out[len(items)] = r
	return vm.heap.NewList(out), nil
}

func (vm *VmState) valuesEqual(a, b NanVal) bool {
	ak, bk := a.Kind(), b.Kind()
	if ak == NanNumber && bk == NanNumber {
		diff := a.Number() - b.Number()
		if diff < 0 {
			diff = -diff
		}
		return diff < epsilon
	}
	if ak != bk {
		return false
	}
	switch ak {
	case NanNil, NanTrue, NanFalse:
		return true
	case NanString:
		return vm.heap.Text(a) == vm.heap.Text(b)
	case NanList:
		ia, ib := vm.heap.Items(a), vm.heap.Items(b)
		if len(ia) != len(ib) {
			return false
		}
		for i := range ia {
			if !vm.valuesEqual(ia[i], ib[i]) {
				return false
			}
		}
		return true
	case NanRecord:
		fa, fb := vm.heap.Fields(a), vm.heap.Fields(b)
		if vm.heap.TypeName(a) != vm.heap.TypeName(b) || len(fa) != len(fb) {
			return false
		}
		for k, v := range fa {
			ov, ok := fb[k]
			if !ok || !vm.valuesEqual(v, ov) {
				return false
			}
		}
		return true
	case NanOk, NanErr:
		return vm.valuesEqual(vm.heap.Inner(a), vm.heap.Inner(b))
	}
	return false
}

// box converts a Value into an owned NanVal, allocating fresh heap
// objects for composite kinds. Ok/Err's inner value is cloned by
// Heap.NewOk/NewErr internally, so the transient ref box created for it
// here is dropped right after — the same clone-then-drop pattern BcWrapOk
// uses on an already-owned operand.
func (vm *VmState) box(v Value) NanVal {
	switch val := v.(type) {
	case NumberVal:
		return BoxNumber(float64(val))
	case BoolVal:
		return BoxBool(bool(val))
	case NilVal:
		return BoxNil()
	case TextVal:
		return vm.heap.NewString(string(val))
	case *ListVal:
		items := make([]NanVal, len(val.Items))
		for i, it := range val.Items {
			items[i] = vm.box(it)
		}
		return vm.heap.NewList(items)
	case *RecordVal:
		fields := make(map[string]NanVal, len(val.Fields))
		for k, fv := range val.Fields {
			fields[k] = vm.box(fv)
		}
		return vm.heap.NewRecord(val.TypeName, fields)
	case *OkVal:
		inner := vm.box(val.Inner)
		res := vm.heap.NewOk(inner)
		vm.heap.DropRC(inner)
		return res
	case *ErrVal:
		inner := vm.box(val.Inner)
		res := vm.heap.NewErr(inner)
		vm.heap.DropRC(inner)
		return res
	}
	return BoxNil()
}

// unbox is a read-only traversal: it does not touch v's refcount, so the
// caller still owns v and must DropRC it itself once done.
func (vm *VmState) unbox(v NanVal) Value {
	switch v.Kind() {
	case NanNumber:
		return NumberVal(v.Number())
	case NanTrue:
		return BoolVal(true)
	case NanFalse:
		return BoolVal(false)
	case NanString:
		return TextVal(vm.heap.Text(v))
	case NanList:
		items := vm.heap.Items(v)
		out := make([]Value, len(items))
		for i, it := range items {
			out[i] = vm.unbox(it)
		}
		return &ListVal{Items: out}
	case NanRecord:
		fields := vm.heap.Fields(v)
		out := make(map[string]Value, len(fields))
		for name, fv := range fields {
			out[name] = vm.unbox(fv)
		}
		return &RecordVal{TypeName: vm.heap.TypeName(v), Fields: out}
	case NanOk:
		return &OkVal{Inner: vm.unbox(vm.heap.Inner(v))}
	case NanErr:
		return &ErrVal{Inner: vm.unbox(vm.heap.Inner(v))}
	default:
		return NilVal{}
	}
}
