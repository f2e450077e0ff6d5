package ilo

import "fmt"

// CalleeRef is one entry in a CompiledProgram's callee table — a parallel
// function-name table resolved at compile time so a Call instruction
// never has to look a name up again.
type CalleeRef struct {
	Name       string
	IsBuiltin  bool
	ChunkIndex int // valid when !IsBuiltin
}

// CompiledProgram is everything the VM needs: every function's chunk, the
// shared callee table every Call instruction indexes into, and the
// function-name-to-chunk-index map Run uses to pick an entry point.
type CompiledProgram struct {
	Chunks  []*Chunk
	Callees []CalleeRef
	Entry   map[string]int
}

// compiler lowers a verified *Program into a CompiledProgram: one
// visitor-style pass per node kind, forward jumps left as placeholders
// and patched once their target is known, scoped locals pushed on
// nested constructs and popped on exit.
type compiler struct {
	cfg         *Config
	chunkIndex  map[string]int
	calleeIndex map[string]int
	callees     []CalleeRef
	cur         *chunkBuilder
}

type chunkBuilder struct {
	chunk  *Chunk
	locals []string
}

// Compile lowers every function declaration in prog into a chunk. prog is
// assumed already verified — an unresolved name or callee at this stage is
// a compiler-internal inconsistency (R010/R011), not a user-facing defect
// the verifier should have already reported.
func Compile(prog *Program, cfg *Config) (*CompiledProgram, error) {
	c := &compiler{
		cfg:         cfg,
		chunkIndex:  map[string]int{},
		calleeIndex: map[string]int{},
	}

	var funcs []*FunctionDecl
	for _, d := range prog.Decls {
		if fn, ok := d.(*FunctionDecl); ok {
			c.chunkIndex[fn.Name] = len(funcs)
			funcs = append(funcs, fn)
		}
	}
	if len(funcs) == 0 {
		return nil, &RuntimeError{Code: "R012", Message: "no functions defined"}
	}

	cp := &CompiledProgram{Entry: map[string]int{}}
	for name, idx := range c.chunkIndex {
		cp.Entry[name] = idx
	}
	for _, fn := range funcs {
		chunk, err := c.compileFunction(fn)
		if err != nil {
			return nil, err
		}
		cp.Chunks = append(cp.Chunks, chunk)
	}
	cp.Callees = c.callees
	return cp, nil
}

func (c *compiler) calleeIndexFor(name string) int {
	if idx, ok := c.calleeIndex[name]; ok {
		return idx
	}
	ref := CalleeRef{Name: name}
	if chunkIdx, ok := c.chunkIndex[name]; ok {
		ref.ChunkIndex = chunkIdx
	} else {
		ref.IsBuiltin = true
	}
	idx := len(c.callees)
	c.callees = append(c.callees, ref)
	c.calleeIndex[name] = idx
	return idx
}

func (b *chunkBuilder) emit(i Instruction) int {
	b.chunk.Code = append(b.chunk.Code, i)
	return len(b.chunk.Code) - 1
}

// emitJump appends a forward jump with a placeholder target, returning its
// index so patchJump can fill the target in once it's known.
func (b *chunkBuilder) emitJump(op Bc) int {
	return b.emit(EncodeABx(op, 0, 0))
}

func (b *chunkBuilder) patchJump(idx int) {
	old := b.chunk.Code[idx]
	b.chunk.Code[idx] = EncodeABx(old.Op(), old.A(), uint16(len(b.chunk.Code)))
}

func (b *chunkBuilder) declareLocal(name string) int {
	slot := len(b.locals)
	b.locals = append(b.locals, name)
	if len(b.locals) > b.chunk.LocalCount {
		b.chunk.LocalCount = len(b.locals)
	}
	return slot
}

// resolveLocal uses rightmost match, so a shadowing binding in a nested
// scope (a match-arm payload, a foreach binding) resolves before any
// outer local of the same name.
func (b *chunkBuilder) resolveLocal(name string) (int, bool) {
	for i := len(b.locals) - 1; i >= 0; i-- {
		if b.locals[i] == name {
			return i, true
		}
	}
	return 0, false
}

func (b *chunkBuilder) pushScope() int    { return len(b.locals) }
func (b *chunkBuilder) popScope(mark int) { b.locals = b.locals[:mark] }

// addConst dedups scalar constants (number, text, bool, nil); composite
// constants (record field-name descriptors) live in FieldDescs instead and
// are always appended verbatim.
func (b *chunkBuilder) addConst(v Value) int {
	for i, existing := range b.chunk.Constants {
		if scalarConstEqual(existing, v) {
			return i
		}
	}
	b.chunk.Constants = append(b.chunk.Constants, v)
	return len(b.chunk.Constants) - 1
}

func scalarConstEqual(a, b Value) bool {
	switch av := a.(type) {
	case NumberVal:
		bv, ok := b.(NumberVal)
		return ok && av == bv
	case TextVal:
		bv, ok := b.(TextVal)
		return ok && av == bv
	case BoolVal:
		bv, ok := b.(BoolVal)
		return ok && av == bv
	case NilVal:
		_, ok := b.(NilVal)
		return ok
	}
	return false
}

func (b *chunkBuilder) addFieldDesc(names []string) int {
	b.chunk.FieldDescs = append(b.chunk.FieldDescs, names)
	return len(b.chunk.FieldDescs) - 1
}

func litConst(kind LitKind, number float64, text string, boolean bool) Value {
	switch kind {
	case LitNumber:
		return NumberVal(number)
	case LitText:
		return TextVal(text)
	case LitBool:
		return BoolVal(boolean)
	default:
		return NilVal{}
	}
}

func (c *compiler) compileFunction(fn *FunctionDecl) (*Chunk, error) {
	b := &chunkBuilder{chunk: &Chunk{Name: fn.Name, ParamCount: len(fn.Params)}}
	c.cur = b
	for _, p := range fn.Params {
		b.declareLocal(p.Name)
	}
	if err := c.compileBody(fn.Body); err != nil {
		return nil, err
	}
	b.emit(EncodeABC(BcReturn, 0, 0, 0))
	return b.chunk, nil
}

// compileBody compiles stmts so that exactly one statement's value — the
// last one's — remains on the stack when it returns; every earlier
// statement's contributed value is popped immediately after, keeping the
// stack balanced between statements the way a plain expression-statement
// language would, while still letting the final statement's value serve
// as the function's implicit return.
func (c *compiler) compileBody(stmts []Stmt) error {
	b := c.cur
	if len(stmts) == 0 {
		b.emit(EncodeABx(BcLoadConst, 0, uint16(b.addConst(NilVal{}))))
		return nil
	}
	for i, s := range stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
		if i < len(stmts)-1 {
			b.emit(EncodeABC(BcPop, 0, 0, 0))
		}
	}
	return nil
}

func (c *compiler) compileStmt(s Stmt) error {
	b := c.cur
	switch st := s.(type) {
	case *LetStmt:
		if err := c.compileExpr(st.Expr); err != nil {
			return err
		}
		slot := b.declareLocal(st.Name)
		b.emit(EncodeABC(BcStoreLocal, uint8(slot), 0, 0))
		// Re-push the stored value: Let's contributed value (for an
		// enclosing body or guard that treats it as its tail expression)
		// is the value just assigned, not nothing.
		b.emit(EncodeABC(BcLoadLocal, uint8(slot), 0, 0))
		return nil

	case *GuardStmt:
		if err := c.compileExpr(st.Cond); err != nil {
			return err
		}
		jmpOp := BcJumpIfFalse
		if st.Negated {
			jmpOp = BcJumpIfTrue
		}
		skip := b.emitJump(jmpOp)
		mark := b.pushScope()
		if err := c.compileBody(st.Body); err != nil {
			return err
		}
		b.popScope(mark)
		// The guard "fires then returns": reaching here means the guard's
		// condition held, and the guard's body is this function's result.
		b.emit(EncodeABC(BcReturn, 0, 0, 0))
		b.patchJump(skip)
		if st.Else != nil {
			mark2 := b.pushScope()
			if err := c.compileBody(st.Else); err != nil {
				return err
			}
			b.popScope(mark2)
		} else {
			b.emit(EncodeABx(BcLoadConst, 0, uint16(b.addConst(NilVal{}))))
		}
		return nil

	case *MatchStmt:
		return c.compileMatch(st.Subject, st.Arms)

	case *ForEachStmt:
		return c.compileForEach(st)

	case *ReturnStmt:
		if err := c.compileExpr(st.Expr); err != nil {
			return err
		}
		b.emit(EncodeABC(BcReturn, 0, 0, 0))
		// compileBody may still emit a Pop after this statement if it
		// isn't last; give it something harmless to discard. ReturnStmt
		// is never produced by the parser today (see parser.go) — this
		// only guards a future desugaring pass that synthesizes one.
		b.emit(EncodeABx(BcLoadConst, 0, uint16(b.addConst(NilVal{}))))
		return nil

	case *ExprStmt:
		return c.compileExpr(st.Expr)
	}
	return nil
}

// compileMatch lowers a match expression: push the subject once, then
// for each arm Dup-and-test it, leaving the subject in place on a miss
// so the next arm can test it again. A wildcard arm is terminal — it
// pops the subject unconditionally and never falls through to a test.
func (c *compiler) compileMatch(subject Expr, arms []MatchArm) error {
	b := c.cur
	if subject != nil {
		if err := c.compileExpr(subject); err != nil {
			return err
		}
	} else {
		b.emit(EncodeABx(BcLoadConst, 0, uint16(b.addConst(NilVal{}))))
	}

	var ends []int
	wildcardHandled := false
	for _, arm := range arms {
		if _, isWild := arm.Pattern.(*WildcardPattern); isWild {
			b.emit(EncodeABC(BcPop, 0, 0, 0))
			mark := b.pushScope()
			if err := c.compileBody(arm.Body); err != nil {
				return err
			}
			b.popScope(mark)
			wildcardHandled = true
			break
		}

		b.emit(EncodeABC(BcDup, 0, 0, 0))
		switch p := arm.Pattern.(type) {
		case *LiteralPattern:
			k := b.addConst(litConst(p.Kind, p.Number, p.Text, p.Bool))
			b.emit(EncodeABx(BcLoadConst, 0, uint16(k)))
			b.emit(EncodeABC(BcEq, 0, 0, 0))
		case *OkPattern:
			b.emit(EncodeABC(BcIsOk, 0, 0, 0))
		case *ErrPattern:
			b.emit(EncodeABC(BcIsErr, 0, 0, 0))
		}
		next := b.emitJump(BcJumpIfFalse)

		mark := b.pushScope()
		switch p := arm.Pattern.(type) {
		case *LiteralPattern:
			b.emit(EncodeABC(BcPop, 0, 0, 0))
		case *OkPattern:
			b.emit(EncodeABC(BcUnwrapOkErr, 0, 0, 0))
			bindOrDiscard(b, p.Binding)
		case *ErrPattern:
			b.emit(EncodeABC(BcUnwrapOkErr, 0, 0, 0))
			bindOrDiscard(b, p.Binding)
		}
		if err := c.compileBody(arm.Body); err != nil {
			return err
		}
		b.popScope(mark)
		ends = append(ends, b.emitJump(BcJump))
		b.patchJump(next)
	}

	if !wildcardHandled {
		b.emit(EncodeABC(BcPop, 0, 0, 0))
		b.emit(EncodeABx(BcLoadConst, 0, uint16(b.addConst(NilVal{}))))
	}
	for _, e := range ends {
		b.patchJump(e)
	}
	return nil
}

func bindOrDiscard(b *chunkBuilder, binding string) {
	if binding == "_" {
		b.emit(EncodeABC(BcPop, 0, 0, 0))
		return
	}
	slot := b.declareLocal(binding)
	b.emit(EncodeABC(BcStoreLocal, uint8(slot), 0, 0))
}

// compileForEach lowers a foreach loop: a hidden collection/index/last
// triple, a loop head that asks ListGetOrEnd to either bind the next
// element or branch to exit, and a final push of the last iteration's
// body value.
func (c *compiler) compileForEach(st *ForEachStmt) error {
	b := c.cur
	if err := c.compileExpr(st.Collection); err != nil {
		return err
	}
	collSlot := b.declareLocal("$coll")
	b.emit(EncodeABC(BcStoreLocal, uint8(collSlot), 0, 0))

	idxSlot := b.declareLocal("$idx")
	b.emit(EncodeABx(BcLoadConst, 0, uint16(b.addConst(NumberVal(0)))))
	b.emit(EncodeABC(BcStoreLocal, uint8(idxSlot), 0, 0))

	lastSlot := b.declareLocal("$last")
	b.emit(EncodeABx(BcLoadConst, 0, uint16(b.addConst(NilVal{}))))
	b.emit(EncodeABC(BcStoreLocal, uint8(lastSlot), 0, 0))

	loopStart := len(b.chunk.Code)
	b.emit(EncodeABC(BcLoadLocal, uint8(collSlot), 0, 0))
	b.emit(EncodeABC(BcLoadLocal, uint8(idxSlot), 0, 0))
	exitJump := b.emitJump(BcListGetOrEnd)

	bindSlot := b.declareLocal(st.Binding)
	b.emit(EncodeABC(BcStoreLocal, uint8(bindSlot), 0, 0))

	mark := b.pushScope()
	if err := c.compileBody(st.Body); err != nil {
		return err
	}
	b.popScope(mark)
	b.emit(EncodeABC(BcStoreLocal, uint8(lastSlot), 0, 0))

	b.emit(EncodeABC(BcLoadLocal, uint8(idxSlot), 0, 0))
	b.emit(EncodeABx(BcLoadConst, 0, uint16(b.addConst(NumberVal(1)))))
	b.emit(EncodeABC(BcAdd, 0, 0, 0))
	b.emit(EncodeABC(BcStoreLocal, uint8(idxSlot), 0, 0))
	b.emit(EncodeABx(BcJump, 0, uint16(loopStart)))

	b.patchJump(exitJump)
	b.emit(EncodeABC(BcLoadLocal, uint8(lastSlot), 0, 0))
	return nil
}

func (c *compiler) compileExpr(e Expr) error {
	b := c.cur
	switch ex := e.(type) {
	case *LiteralExpr:
		k := b.addConst(litConst(ex.Kind, ex.Number, ex.Text, ex.Bool))
		b.emit(EncodeABx(BcLoadConst, 0, uint16(k)))
		return nil

	case *RefExpr:
		slot, ok := b.resolveLocal(ex.Name)
		if !ok {
			return &RuntimeError{Code: "R010", Message: fmt.Sprintf("unresolved name %q", ex.Name), Span: ex.Sp}
		}
		b.emit(EncodeABC(BcLoadLocal, uint8(slot), 0, 0))
		return nil

	case *FieldExpr:
		if err := c.compileExpr(ex.Object); err != nil {
			return err
		}
		k := b.addConst(TextVal(ex.Name))
		b.emit(EncodeABx(BcRecordField, 0, uint16(k)))
		return nil

	case *IndexExpr:
		if err := c.compileExpr(ex.Object); err != nil {
			return err
		}
		b.emit(EncodeABx(BcListIndex, 0, uint16(ex.Index)))
		return nil

	case *CallExpr:
		for _, a := range ex.Args {
			if err := c.compileExpr(a); err != nil {
				return err
			}
		}
		if _, isDeclared := c.chunkIndex[ex.Name]; !isDeclared {
			if _, isBuiltin := builtinFuncs[ex.Name]; !isBuiltin {
				return &RuntimeError{Code: "R011", Message: fmt.Sprintf("unknown callee %q", ex.Name), Span: ex.Sp}
			}
		}
		calleeIdx := c.calleeIndexFor(ex.Name)
		b.emit(EncodeABx(BcCall, uint8(len(ex.Args)), uint16(calleeIdx)))
		if ex.Unwrap {
			b.emit(EncodeABC(BcDup, 0, 0, 0))
			b.emit(EncodeABC(BcIsErr, 0, 0, 0))
			skip := b.emitJump(BcJumpIfFalse)
			b.emit(EncodeABC(BcReturn, 0, 0, 0))
			b.patchJump(skip)
			b.emit(EncodeABC(BcDup, 0, 0, 0))
			b.emit(EncodeABC(BcIsOk, 0, 0, 0))
			skipUnwrap := b.emitJump(BcJumpIfFalse)
			b.emit(EncodeABC(BcUnwrapOkErr, 0, 0, 0))
			end := b.emitJump(BcJump)
			b.patchJump(skipUnwrap)
			b.patchJump(end)
		}
		return nil

	case *BinOpExpr:
		return c.compileBinOp(ex)

	case *UnaryOpExpr:
		if err := c.compileExpr(ex.Operand); err != nil {
			return err
		}
		if ex.Op == OpNot {
			b.emit(EncodeABC(BcNot, 0, 0, 0))
		} else {
			b.emit(EncodeABC(BcNegate, 0, 0, 0))
		}
		return nil

	case *OkExpr:
		if err := c.compileExpr(ex.Inner); err != nil {
			return err
		}
		b.emit(EncodeABC(BcWrapOk, 0, 0, 0))
		return nil

	case *ErrExpr:
		if err := c.compileExpr(ex.Inner); err != nil {
			return err
		}
		b.emit(EncodeABC(BcWrapErr, 0, 0, 0))
		return nil

	case *ListExpr:
		for _, item := range ex.Items {
			if err := c.compileExpr(item); err != nil {
				return err
			}
		}
		b.emit(EncodeABC(BcListNew, uint8(len(ex.Items)), 0, 0))
		return nil

	case *RecordExpr:
		names := make([]string, len(ex.Fields))
		for i, fv := range ex.Fields {
			names[i] = fv.Name
			if err := c.compileExpr(fv.Value); err != nil {
				return err
			}
		}
		desc := b.addFieldDesc(append([]string{ex.TypeName}, names...))
		b.emit(EncodeABx(BcRecordNew, uint8(len(ex.Fields)), uint16(desc)))
		return nil

	case *MatchExpr:
		return c.compileMatch(ex.Subject, ex.Arms)

	case *WithExpr:
		if err := c.compileExpr(ex.Object); err != nil {
			return err
		}
		names := make([]string, len(ex.Updates))
		for i, u := range ex.Updates {
			names[i] = u.Name
			if err := c.compileExpr(u.Value); err != nil {
				return err
			}
		}
		desc := b.addFieldDesc(names)
		b.emit(EncodeABx(BcRecordWith, uint8(len(ex.Updates)), uint16(desc)))
		return nil
	}
	return nil
}

func (c *compiler) compileBinOp(ex *BinOpExpr) error {
	b := c.cur
	// And/Or short-circuit the right operand, so they lower to jumps
	// rather than a flat two-operand opcode (see interpreter.go's
	// evalBinOp for why this isn't just an optimization).
	if ex.Op == OpAnd || ex.Op == OpOr {
		if err := c.compileExpr(ex.Left); err != nil {
			return err
		}
		b.emit(EncodeABC(BcDup, 0, 0, 0))
		var decide Bc = BcJumpIfFalse
		if ex.Op == OpOr {
			decide = BcJumpIfTrue
		}
		short := b.emitJump(decide)
		b.emit(EncodeABC(BcPop, 0, 0, 0))
		if err := c.compileExpr(ex.Right); err != nil {
			return err
		}
		// The right operand's raw value is never the result — And/Or
		// always yield a bool, matching the interpreter's
		// BoolVal(Truthy(right)) for the non-short-circuit case. A
		// Not/Not pair coerces without a dedicated truthiness opcode.
		b.emit(EncodeABC(BcNot, 0, 0, 0))
		b.emit(EncodeABC(BcNot, 0, 0, 0))
		end := b.emitJump(BcJump)
		b.patchJump(short)
		b.emit(EncodeABC(BcPop, 0, 0, 0))
		b.emit(EncodeABx(BcLoadConst, 0, uint16(b.addConst(BoolVal(ex.Op == OpOr)))))
		b.patchJump(end)
		return nil
	}

	if err := c.compileExpr(ex.Left); err != nil {
		return err
	}
	if err := c.compileExpr(ex.Right); err != nil {
		return err
	}
	switch ex.Op {
	case OpAdd:
		b.emit(EncodeABC(BcAdd, 0, 0, 0))
	case OpSubtract:
		b.emit(EncodeABC(BcSub, 0, 0, 0))
	case OpMultiply:
		b.emit(EncodeABC(BcMul, 0, 0, 0))
	case OpDivide:
		b.emit(EncodeABC(BcDiv, 0, 0, 0))
	case OpEquals:
		b.emit(EncodeABC(BcEq, 0, 0, 0))
	case OpNotEquals:
		b.emit(EncodeABC(BcNotEq, 0, 0, 0))
	case OpGreaterThan:
		b.emit(EncodeABC(BcGt, 0, 0, 0))
	case OpLessThan:
		b.emit(EncodeABC(BcLt, 0, 0, 0))
	case OpGreaterOrEqual:
		b.emit(EncodeABC(BcGe, 0, 0, 0))
	case OpLessOrEqual:
		b.emit(EncodeABC(BcLe, 0, 0, 0))
	case OpAppend:
		b.emit(EncodeABC(BcAppend, 0, 0, 0))
	}
	return nil
}
