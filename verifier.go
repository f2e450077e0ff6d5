package ilo

import (
	"fmt"
	"sort"
)

// Verifier performs a two-phase static check: collect declarations and
// their signatures, then type-check every function body under a
// lexically scoped environment. It never halts on the first error —
// every diagnostic it finds is accumulated into Diagnostics.
type Verifier struct {
	sm    *SourceMap
	diags *Diagnostics

	types map[string]*TypeDefDecl
	funcs map[string]funcSignature
}

type funcSignature struct {
	Name   string
	Params []Param
	Return Type
	IsTool bool
	Sp     Span
}

// Verify runs both phases over prog and returns every diagnostic found.
func Verify(prog *Program, sm *SourceMap) *Diagnostics {
	v := &Verifier{
		sm:    sm,
		diags: &Diagnostics{},
		types: map[string]*TypeDefDecl{},
		funcs: map[string]funcSignature{},
	}
	v.collect(prog)
	v.checkBodies(prog)
	return v.diags
}

func (v *Verifier) diagAt(code string, sp Span, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	v.diags.Add(NewDiagnostic(code, msg, v.sm, Label{Span: sp, Primary: true}))
}

// ---- scope ----

type scope struct {
	parent *scope
	vars   map[string]Type
}

func newScope() *scope {
	return &scope{vars: map[string]Type{}}
}

func (s *scope) push() *scope {
	return &scope{parent: s, vars: map[string]Type{}}
}

func (s *scope) define(name string, t Type) {
	s.vars[name] = t
}

func (s *scope) lookup(name string) (Type, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if t, ok := sc.vars[name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (s *scope) names() []string {
	var out []string
	seen := map[string]bool{}
	for sc := s; sc != nil; sc = sc.parent {
		for name := range sc.vars {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// ---- phase 1: collect ----

func (v *Verifier) collect(prog *Program) {
	for _, d := range prog.Decls {
		switch decl := d.(type) {
		case *TypeDefDecl:
			if _, dup := v.types[decl.Name]; dup {
				v.diagAt("T001", decl.Sp, "duplicate type definition %q", decl.Name)
				continue
			}
			v.types[decl.Name] = decl
			v.checkParamDup(decl.Fields, decl.Sp, decl.Name)
		case *FunctionDecl:
			v.collectSignature(decl.Name, decl.Params, decl.Return, false, decl.Sp)
		case *ToolDecl:
			v.collectSignature(decl.Name, decl.Params, decl.Return, true, decl.Sp)
		case *ErrorDecl:
			// poison node, skip
		}
	}

	for _, d := range prog.Decls {
		switch decl := d.(type) {
		case *TypeDefDecl:
			for _, f := range decl.Fields {
				v.checkNamedTypeRef(f.Type, decl.Sp)
			}
		case *FunctionDecl:
			for _, p := range decl.Params {
				v.checkNamedTypeRef(p.Type, decl.Sp)
			}
			v.checkNamedTypeRef(decl.Return, decl.Sp)
		case *ToolDecl:
			for _, p := range decl.Params {
				v.checkNamedTypeRef(p.Type, decl.Sp)
			}
			v.checkNamedTypeRef(decl.Return, decl.Sp)
		}
	}
}

func (v *Verifier) collectSignature(name string, params []Param, ret Type, isTool bool, sp Span) {
	if _, dup := v.funcs[name]; dup {
		v.diagAt("T002", sp, "duplicate function or tool definition %q", name)
		return
	}
	v.funcs[name] = funcSignature{Name: name, Params: params, Return: ret, IsTool: isTool, Sp: sp}
	v.checkParamDup(params, sp, name)
}

// checkParamDup reports a duplicate parameter/field name. There is no
// dedicated code for this invariant, so it is folded into T002's
// "duplicate definition" family since the shape of the mistake — the
// same name bound twice in one scope — is the same kind of error.
func (v *Verifier) checkParamDup(params []Param, sp Span, ownerName string) {
	seen := map[string]bool{}
	for _, p := range params {
		if seen[p.Name] {
			v.diagAt("T002", sp, "duplicate parameter name %q in %q", p.Name, ownerName)
		}
		seen[p.Name] = true
	}
}

func (v *Verifier) checkNamedTypeRef(t Type, sp Span) {
	switch typ := t.(type) {
	case NamedType:
		if _, ok := v.types[typ.Name]; !ok {
			suggestion := nearestName(typ.Name, v.typeNames(), 3)
			v.diagAtSuggest("T003", sp, suggestion, "unknown type %q", typ.Name)
		}
	case ListType:
		v.checkNamedTypeRef(typ.Elem, sp)
	case ResultType:
		v.checkNamedTypeRef(typ.Ok, sp)
		v.checkNamedTypeRef(typ.Err, sp)
	}
}

func (v *Verifier) diagAtSuggest(code string, sp Span, suggestion, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	d := NewDiagnostic(code, msg, v.sm, Label{Span: sp, Primary: true})
	d.Suggestion = suggestion
	v.diags.Add(d)
}

func (v *Verifier) typeNames() []string {
	var out []string
	for name := range v.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (v *Verifier) callableNames() []string {
	var out []string
	for name := range v.funcs {
		out = append(out, name)
	}
	for name := range builtinSignatures {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ---- phase 2: check bodies ----

func (v *Verifier) checkBodies(prog *Program) {
	for _, d := range prog.Decls {
		fn, ok := d.(*FunctionDecl)
		if !ok {
			continue
		}
		env := newScope()
		for _, p := range fn.Params {
			env.define(p.Name, p.Type)
		}
		bodyType := v.inferBodyType(fn.Body, env)
		if !typesCompatible(bodyType, fn.Return) {
			v.diagAt("T008", fn.Sp, "function %q returns %s, declared return type is %s",
				fn.Name, bodyType.String(), fn.Return.String())
		}
	}
}

// inferBodyType threads env through stmts in order and returns the type
// contributed by the final statement — the body's implicit tail value when
// no explicit Return ever fires (see parser.go's note on why Return is
// never produced by parsing: every body's value comes from its last
// statement, or from a Guard/Match arm that fires early).
func (v *Verifier) inferBodyType(stmts []Stmt, env *scope) Type {
	var last Type = NilType{}
	for _, s := range stmts {
		last = v.checkStmt(s, env)
	}
	return last
}

func (v *Verifier) checkStmt(s Stmt, env *scope) Type {
	switch st := s.(type) {
	case *LetStmt:
		t := v.inferExpr(st.Expr, env)
		env.define(st.Name, t)
		return t
	case *GuardStmt:
		v.inferExpr(st.Cond, env)
		bodyType := v.inferBodyType(st.Body, env.push())
		if st.Else != nil {
			v.inferBodyType(st.Else, env.push())
		}
		return bodyType
	case *MatchStmt:
		return v.checkMatch(st.Subject, st.Arms, env, st.Sp)
	case *ForEachStmt:
		collType := v.inferExpr(st.Collection, env)
		elemType := Type(UnknownType{})
		if lt, ok := collType.(ListType); ok {
			elemType = lt.Elem
		}
		loopEnv := env.push()
		loopEnv.define(st.Binding, elemType)
		return v.inferBodyType(st.Body, loopEnv)
	case *ReturnStmt:
		return v.inferExpr(st.Expr, env)
	case *ExprStmt:
		return v.inferExpr(st.Expr, env)
	}
	return NilType{}
}

func (v *Verifier) checkMatch(subject Expr, arms []MatchArm, env *scope, sp Span) Type {
	var subjType Type = NilType{}
	if subject != nil {
		subjType = v.inferExpr(subject, env)
	}

	var firstType Type
	var hasWildcard, hasOk, hasErr, hasTrue, hasFalse bool

	for i, arm := range arms {
		armEnv := env.push()
		switch pat := arm.Pattern.(type) {
		case *WildcardPattern:
			hasWildcard = true
		case *OkPattern:
			hasOk = true
			payload := Type(UnknownType{})
			if rt, ok := subjType.(ResultType); ok {
				payload = rt.Ok
			}
			if pat.Binding != "_" {
				armEnv.define(pat.Binding, payload)
			}
		case *ErrPattern:
			hasErr = true
			payload := Type(UnknownType{})
			if rt, ok := subjType.(ResultType); ok {
				payload = rt.Err
			}
			if pat.Binding != "_" {
				armEnv.define(pat.Binding, payload)
			}
		case *LiteralPattern:
			if pat.Kind == LitBool {
				if pat.Bool {
					hasTrue = true
				} else {
					hasFalse = true
				}
			}
		}
		armType := v.inferBodyType(arm.Body, armEnv)
		if i == 0 {
			firstType = armType
		}
	}

	switch subjType.(type) {
	case ResultType:
		if !hasWildcard && !(hasOk && hasErr) {
			v.diagAt("T024", sp, "non-exhaustive match over a result: missing a `~` and/or `^` arm")
		}
	case BoolType:
		if !hasWildcard && !(hasTrue && hasFalse) {
			v.diagAt("T024", sp, "non-exhaustive match over a bool: missing a `true` and/or `false` arm")
		}
	case NilType:
		// subjectless match is not exhaustiveness-checked
	default:
		if !hasWildcard {
			v.diagAt("T024", sp, "non-exhaustive match: a wildcard arm is required")
		}
	}

	if firstType == nil {
		firstType = NilType{}
	}
	return firstType
}

func (v *Verifier) inferExpr(e Expr, env *scope) Type {
	switch ex := e.(type) {
	case *LiteralExpr:
		switch ex.Kind {
		case LitNumber:
			return NumberType{}
		case LitText:
			return TextType{}
		case LitBool:
			return BoolType{}
		case LitNil:
			return NilType{}
		}
		return UnknownType{}
	case *RefExpr:
		if t, ok := env.lookup(ex.Name); ok {
			return t
		}
		suggestion := nearestName(ex.Name, env.names(), 3)
		v.diagAtSuggest("T004", ex.Sp, suggestion, "unknown name %q", ex.Name)
		return UnknownType{}
	case *FieldExpr:
		return v.checkField(ex, env)
	case *IndexExpr:
		return v.checkIndex(ex, env)
	case *CallExpr:
		return v.checkCall(ex, env)
	case *BinOpExpr:
		return v.checkBinOp(ex, env)
	case *UnaryOpExpr:
		return v.checkUnaryOp(ex, env)
	case *OkExpr:
		inner := v.inferExpr(ex.Inner, env)
		return ResultType{Ok: inner, Err: UnknownType{}}
	case *ErrExpr:
		inner := v.inferExpr(ex.Inner, env)
		return ResultType{Ok: UnknownType{}, Err: inner}
	case *ListExpr:
		if len(ex.Items) == 0 {
			return ListType{Elem: UnknownType{}}
		}
		first := v.inferExpr(ex.Items[0], env)
		for _, item := range ex.Items[1:] {
			v.inferExpr(item, env)
		}
		return ListType{Elem: first}
	case *RecordExpr:
		return v.checkRecord(ex, env)
	case *MatchExpr:
		return v.checkMatch(ex.Subject, ex.Arms, env, ex.Sp)
	case *WithExpr:
		return v.checkWith(ex, env)
	}
	return UnknownType{}
}

func (v *Verifier) checkField(ex *FieldExpr, env *scope) Type {
	objType := v.inferExpr(ex.Object, env)
	named, ok := objType.(NamedType)
	if !ok {
		if !isUnknown(objType) {
			v.diagAt("T018", ex.Sp, "field access requires a named record type, got %s", objType.String())
		}
		return UnknownType{}
	}
	td, ok := v.types[named.Name]
	if !ok {
		return UnknownType{}
	}
	for _, f := range td.Fields {
		if f.Name == ex.Name {
			return f.Type
		}
	}
	v.diagAt("T019", ex.Sp, "unknown field %q on %q", ex.Name, named.Name)
	return UnknownType{}
}

func (v *Verifier) checkIndex(ex *IndexExpr, env *scope) Type {
	objType := v.inferExpr(ex.Object, env)
	lt, ok := objType.(ListType)
	if !ok {
		if !isUnknown(objType) {
			v.diagAt("T023", ex.Sp, "index requires a list, got %s", objType.String())
		}
		return UnknownType{}
	}
	return lt.Elem
}

func (v *Verifier) checkCall(ex *CallExpr, env *scope) Type {
	if sig, ok := builtinSignatures[ex.Name]; ok {
		if len(ex.Args) != len(sig.Params) {
			v.diagAt("T006", ex.Sp, "%q expects %d argument(s), got %d", ex.Name, len(sig.Params), len(ex.Args))
		}
		n := len(ex.Args)
		if len(sig.Params) < n {
			n = len(sig.Params)
		}
		for i := 0; i < n; i++ {
			at := v.inferExpr(ex.Args[i], env)
			if !typesCompatible(at, sig.Params[i]) {
				v.diagAt("T013", ex.Args[i].Span(), "argument %d to %q has type %s, expected %s",
					i+1, ex.Name, at.String(), sig.Params[i].String())
			}
		}
		for i := n; i < len(ex.Args); i++ {
			v.inferExpr(ex.Args[i], env)
		}
		return v.applyUnwrap(sig.Return, ex.Unwrap)
	}

	if sig, ok := v.funcs[ex.Name]; ok {
		if len(ex.Args) != len(sig.Params) {
			v.diagAt("T006", ex.Sp, "%q expects %d argument(s), got %d", ex.Name, len(sig.Params), len(ex.Args))
		}
		n := len(ex.Args)
		if len(sig.Params) < n {
			n = len(sig.Params)
		}
		for i := 0; i < n; i++ {
			at := v.inferExpr(ex.Args[i], env)
			if !typesCompatible(at, sig.Params[i].Type) {
				v.diagAt("T007", ex.Args[i].Span(), "argument %q to %q has type %s, expected %s",
					sig.Params[i].Name, ex.Name, at.String(), sig.Params[i].Type.String())
			}
		}
		for i := n; i < len(ex.Args); i++ {
			v.inferExpr(ex.Args[i], env)
		}
		return v.applyUnwrap(sig.Return, ex.Unwrap)
	}

	for _, a := range ex.Args {
		v.inferExpr(a, env)
	}
	suggestion := nearestName(ex.Name, v.callableNames(), 3)
	v.diagAtSuggest("T005", ex.Sp, suggestion, "unknown function or tool %q", ex.Name)
	return UnknownType{}
}

func (v *Verifier) applyUnwrap(ret Type, unwrap bool) Type {
	if !unwrap {
		return ret
	}
	if rt, ok := ret.(ResultType); ok {
		return rt.Ok
	}
	return UnknownType{}
}

func (v *Verifier) checkBinOp(ex *BinOpExpr, env *scope) Type {
	lt := v.inferExpr(ex.Left, env)
	rt := v.inferExpr(ex.Right, env)
	switch ex.Op {
	case OpAdd:
		if isNumber(lt) && isNumber(rt) {
			return NumberType{}
		}
		if isText(lt) && isText(rt) {
			return TextType{}
		}
		if llt, ok := lt.(ListType); ok {
			if rlt, ok2 := rt.(ListType); ok2 && typesCompatible(llt.Elem, rlt.Elem) {
				return ListType{Elem: llt.Elem}
			}
		}
		if !isUnknown(lt) && !isUnknown(rt) {
			v.diagAt("T009", ex.Sp, "`+` requires two numbers, two texts, or two matching lists, got %s and %s", lt.String(), rt.String())
		}
		return UnknownType{}
	case OpSubtract, OpMultiply, OpDivide:
		if (!isNumber(lt) && !isUnknown(lt)) || (!isNumber(rt) && !isUnknown(rt)) {
			v.diagAt("T009", ex.Sp, "%q requires two numbers, got %s and %s", ex.Op.String(), lt.String(), rt.String())
		}
		return NumberType{}
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		ok := (isNumber(lt) && isNumber(rt)) || (isText(lt) && isText(rt)) || isUnknown(lt) || isUnknown(rt)
		if !ok {
			v.diagAt("T010", ex.Sp, "%q requires matching numbers or texts, got %s and %s", ex.Op.String(), lt.String(), rt.String())
		}
		return BoolType{}
	case OpEquals, OpNotEquals:
		return BoolType{}
	case OpAnd, OpOr:
		return BoolType{}
	case OpAppend:
		llt, ok := lt.(ListType)
		if !ok {
			if !isUnknown(lt) {
				v.diagAt("T011", ex.Sp, "`+=` requires a list on the left, got %s", lt.String())
			}
			return UnknownType{}
		}
		if !typesCompatible(llt.Elem, rt) {
			v.diagAt("T011", ex.Sp, "`+=` right side has type %s, expected %s", rt.String(), llt.Elem.String())
		}
		return ListType{Elem: llt.Elem}
	}
	return UnknownType{}
}

func (v *Verifier) checkUnaryOp(ex *UnaryOpExpr, env *scope) Type {
	t := v.inferExpr(ex.Operand, env)
	switch ex.Op {
	case OpNegate:
		if !isNumber(t) && !isUnknown(t) {
			v.diagAt("T012", ex.Sp, "negate requires a number, got %s", t.String())
		}
		return NumberType{}
	case OpNot:
		return BoolType{}
	}
	return UnknownType{}
}

func (v *Verifier) checkRecord(ex *RecordExpr, env *scope) Type {
	td, ok := v.types[ex.TypeName]
	if !ok {
		for _, fv := range ex.Fields {
			v.inferExpr(fv.Value, env)
		}
		suggestion := nearestName(ex.TypeName, v.typeNames(), 3)
		v.diagAtSuggest("T003", ex.Sp, suggestion, "unknown type %q", ex.TypeName)
		return UnknownType{}
	}

	present := map[string]bool{}
	for _, fv := range ex.Fields {
		present[fv.Name] = true
		valType := v.inferExpr(fv.Value, env)
		found := false
		for _, f := range td.Fields {
			if f.Name == fv.Name {
				found = true
				if !typesCompatible(valType, f.Type) {
					v.diagAt("T017", fv.Value.Span(), "field %q has type %s, expected %s", fv.Name, valType.String(), f.Type.String())
				}
				break
			}
		}
		if !found {
			v.diagAt("T016", fv.Value.Span(), "unknown field %q on %q", fv.Name, ex.TypeName)
		}
	}
	for _, f := range td.Fields {
		if !present[f.Name] {
			v.diagAt("T015", ex.Sp, "missing field %q on %q", f.Name, ex.TypeName)
		}
	}
	return NamedType{Name: ex.TypeName}
}

func (v *Verifier) checkWith(ex *WithExpr, env *scope) Type {
	objType := v.inferExpr(ex.Object, env)
	named, ok := objType.(NamedType)
	if !ok {
		if !isUnknown(objType) {
			v.diagAt("T020", ex.Sp, "`with` requires a record, got %s", objType.String())
		}
		for _, u := range ex.Updates {
			v.inferExpr(u.Value, env)
		}
		return UnknownType{}
	}
	td, tdOk := v.types[named.Name]
	if !tdOk {
		return UnknownType{}
	}
	for _, u := range ex.Updates {
		valType := v.inferExpr(u.Value, env)
		found := false
		for _, f := range td.Fields {
			if f.Name == u.Name {
				found = true
				if !typesCompatible(valType, f.Type) {
					v.diagAt("T022", u.Value.Span(), "with-update %q has type %s, expected %s", u.Name, valType.String(), f.Type.String())
				}
				break
			}
		}
		if !found {
			v.diagAt("T021", u.Value.Span(), "unknown field %q in with-update", u.Name)
		}
	}
	return named
}

// ---- type compatibility ----

func isUnknown(t Type) bool {
	_, ok := t.(UnknownType)
	return ok
}

func isNumber(t Type) bool {
	_, ok := t.(NumberType)
	return ok
}

func isText(t Type) bool {
	_, ok := t.(TextType)
	return ok
}

// typesCompatible implements structural compatibility: Unknown unifies
// with anything, List/Result compare componentwise, and Named types
// compare nominally (same name).
func typesCompatible(a, b Type) bool {
	if isUnknown(a) || isUnknown(b) {
		return true
	}
	switch at := a.(type) {
	case NumberType:
		_, ok := b.(NumberType)
		return ok
	case TextType:
		_, ok := b.(TextType)
		return ok
	case BoolType:
		_, ok := b.(BoolType)
		return ok
	case NilType:
		_, ok := b.(NilType)
		return ok
	case ListType:
		bt, ok := b.(ListType)
		return ok && typesCompatible(at.Elem, bt.Elem)
	case ResultType:
		bt, ok := b.(ResultType)
		return ok && typesCompatible(at.Ok, bt.Ok) && typesCompatible(at.Err, bt.Err)
	case NamedType:
		bt, ok := b.(NamedType)
		return ok && at.Name == bt.Name
	}
	return false
}

// ---- builtins ----

// builtinSignature mirrors the language's builtin table. Return is the
// Result-or-plain type the interpreter/compiler/VM must agree on.
type builtinSignature struct {
	Params []Type
	Return Type
}

var builtinSignatures = map[string]builtinSignature{
	"len": {Params: []Type{UnknownType{}}, Return: NumberType{}},
	"str": {Params: []Type{NumberType{}}, Return: TextType{}},
	"num": {Params: []Type{TextType{}}, Return: ResultType{Ok: NumberType{}, Err: TextType{}}},
	"abs": {Params: []Type{NumberType{}}, Return: NumberType{}},
	"flr": {Params: []Type{NumberType{}}, Return: NumberType{}},
	"cel": {Params: []Type{NumberType{}}, Return: NumberType{}},
	"min": {Params: []Type{NumberType{}, NumberType{}}, Return: NumberType{}},
	"max": {Params: []Type{NumberType{}, NumberType{}}, Return: NumberType{}},
	"spl": {Params: []Type{TextType{}, TextType{}}, Return: ListType{Elem: TextType{}}},
	"get": {Params: []Type{TextType{}}, Return: ResultType{Ok: TextType{}, Err: TextType{}}},
}

// ---- Levenshtein suggestion ----

// nearestName returns the candidate closest to name by edit distance, or ""
// if nothing is within maxDist.
func nearestName(name string, candidates []string, maxDist int) string {
	best := ""
	bestDist := maxDist + 1
	for _, c := range candidates {
		d := levenshtein(name, c)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist > maxDist {
		return ""
	}
	return best
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
