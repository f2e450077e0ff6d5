package ilo

// Parser is a hand-written recursive-descent parser over a token stream.
// Recovery happens at declaration granularity: any failure inside a
// declaration unwinds (via panic/recover, see fail and parseDeclRecovered)
// to the top-level loop, which records one Diagnostic, inserts a poison
// ErrorDecl, and resynchronizes to the next plausible declaration start.
// Every later pass must skip ErrorDecl nodes without comment.
type Parser struct {
	toks  []Token
	pos   int
	sm    *SourceMap
	diags *Diagnostics
}

// ParseProgram lexes and parses source, returning the tree (always
// non-nil, possibly containing poison declarations) and the accumulated
// diagnostics (empty if parsing succeeded cleanly).
func ParseProgram(source []byte) (*Program, *Diagnostics) {
	diags := &Diagnostics{}
	sm := NewSourceMap(source)

	toks, err := Lex(source)
	if err != nil {
		diags.Add(lexErrorToDiagnostic(err, sm))
		return &Program{}, diags
	}

	filtered := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind != TokNewline {
			filtered = append(filtered, t)
		}
	}

	p := &Parser{toks: filtered, sm: sm, diags: diags}
	return p.parseProgram(), diags
}

func lexErrorToDiagnostic(err error, sm *SourceMap) Diagnostic {
	lerr, ok := err.(*LexError)
	if !ok {
		return NewDiagnostic("L001", err.Error(), sm)
	}
	sp := Span{Start: lerr.Pos, End: lerr.Pos + len(lerr.Snippet)}
	d := NewDiagnostic(lerr.Code, "unrecognized input "+lerr.Snippet, sm, Label{Span: sp, Primary: true})
	d.Suggestion = lerr.Suggestion
	return d
}

// parseBail unwinds a failed declaration up to parseDeclRecovered.
type parseBail struct {
	diag Diagnostic
}

func (p *Parser) fail(code, message string, span Span) {
	panic(parseBail{diag: NewDiagnostic(code, message, p.sm, Label{Span: span, Primary: true})})
}

// ---- token-stream primitives ----

func (p *Parser) tokAt(i int) Token {
	if i < 0 {
		i = 0
	}
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *Parser) peek() Token        { return p.tokAt(p.pos) }
func (p *Parser) peekAt(n int) Token { return p.tokAt(p.pos + n) }
func (p *Parser) at(k TokenKind) bool {
	return p.peek().Kind == k
}

func (p *Parser) advance() Token {
	t := p.peek()
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *Parser) prevEnd() int {
	if p.pos == 0 {
		return 0
	}
	return p.toks[p.pos-1].Span.End
}

func (p *Parser) expect(kind TokenKind, code, message string) Token {
	if !p.at(kind) {
		p.fail(code, message, p.peek().Span)
	}
	return p.advance()
}

func (p *Parser) expectIdent(code string) Token {
	if !p.at(TokIdent) {
		p.fail(code, "expected an identifier", p.peek().Span)
	}
	return p.advance()
}

func (p *Parser) expectText(code string) Token {
	if !p.at(TokText) {
		p.fail(code, "expected a description string", p.peek().Span)
	}
	return p.advance()
}

func (p *Parser) expectNumber(code string) Token {
	if !p.at(TokNumber) {
		p.fail(code, "expected a number literal", p.peek().Span)
	}
	return p.advance()
}

func (p *Parser) expectBindingName(code string) string {
	if p.at(TokUnderscore) {
		p.advance()
		return "_"
	}
	if p.at(TokIdent) {
		return p.advance().Text
	}
	p.fail(code, "expected a binding name", p.peek().Span)
	return ""
}

func joinSpan(start Span, end int) Span {
	return Span{Start: start.Start, End: end}
}

// ---- program / declaration level ----

func (p *Parser) parseProgram() *Program {
	var decls []Decl
	for !p.at(TokEOF) {
		decls = append(decls, p.parseDeclRecovered())
	}
	return &Program{Decls: decls}
}

func (p *Parser) parseDeclRecovered() (decl Decl) {
	startPos := p.pos
	defer func() {
		if r := recover(); r != nil {
			bail, ok := r.(parseBail)
			if !ok {
				panic(r)
			}
			p.diags.Add(bail.diag)
			sp := Span{Start: p.toks[startPos].Span.Start, End: p.peek().Span.Start}
			decl = &ErrorDecl{Sp: sp}
			p.synchronize()
		}
	}()
	return p.parseDecl()
}

// synchronize scans forward to the next ';' at bracket-nesting depth zero
// that is followed by a declaration starter (or EOF), discarding everything
// in between. This is the one recovery contract every later pass relies on:
// a broken declaration never blocks the rest of the program.
func (p *Parser) synchronize() {
	depth := 0
	for !p.at(TokEOF) {
		switch p.peek().Kind {
		case TokLParen, TokLBracket, TokLBrace:
			depth++
		case TokRParen, TokRBracket, TokRBrace:
			if depth > 0 {
				depth--
			}
		case TokSemi:
			if depth == 0 {
				p.advance()
				if p.at(TokType) || p.at(TokTool) || p.at(TokIdent) || p.at(TokEOF) {
					return
				}
				continue
			}
		}
		p.advance()
	}
}

func (p *Parser) parseDecl() Decl {
	switch p.peek().Kind {
	case TokType:
		return p.parseTypeDef()
	case TokTool:
		return p.parseTool()
	case TokIdent:
		return p.parseFunction()
	case TokEOF:
		p.fail("P002", "unexpected end of input at top level", p.peek().Span)
	default:
		p.fail("P001", "unexpected top-level token: "+p.peek().Kind.String(), p.peek().Span)
	}
	panic("unreachable")
}

func (p *Parser) parseTypeDef() Decl {
	startSpan := p.peek().Span
	p.advance() // 'type'
	name := p.expectIdent("P005").Text
	p.expect(TokLBrace, "P003", "expected '{'")
	var fields []Param
	if !p.at(TokRBrace) {
		fields = append(fields, p.parseField())
		for p.at(TokSemi) {
			p.advance()
			if p.at(TokRBrace) {
				break
			}
			fields = append(fields, p.parseField())
		}
	}
	end := p.expect(TokRBrace, "P003", "expected '}'")
	return &TypeDefDecl{Name: name, Fields: fields, Sp: joinSpan(startSpan, end.Span.End)}
}

func (p *Parser) parseField() Param {
	name := p.expectIdent("P005").Text
	p.expect(TokColon, "P003", "expected ':'")
	typ := p.parseType("P007")
	return Param{Name: name, Type: typ}
}

func (p *Parser) parseParams() []Param {
	var params []Param
	for p.at(TokIdent) && p.peekAt(1).Kind == TokColon {
		name := p.advance().Text
		p.advance() // ':'
		typ := p.parseType("P007")
		params = append(params, Param{Name: name, Type: typ})
	}
	return params
}

func (p *Parser) parseType(code string) Type {
	tok := p.peek()
	if tok.Kind == TokUnderscore {
		p.advance()
		return NilType{}
	}
	if tok.Kind != TokIdent {
		p.fail(code, "expected a type", tok.Span)
	}
	switch tok.Text {
	case "n":
		p.advance()
		return NumberType{}
	case "t":
		p.advance()
		return TextType{}
	case "b":
		p.advance()
		return BoolType{}
	case "L":
		p.advance()
		return ListType{Elem: p.parseType(code)}
	case "R":
		p.advance()
		ok := p.parseType(code)
		errT := p.parseType(code)
		return ResultType{Ok: ok, Err: errT}
	default:
		p.advance()
		return NamedType{Name: tok.Text}
	}
}

func (p *Parser) parseTool() Decl {
	startSpan := p.peek().Span
	p.advance() // 'tool'
	name := p.expectIdent("P005").Text
	desc := p.expectText("P015").Text
	params := p.parseParams()
	p.expect(TokGt, "P003", "expected '>'")
	ret := p.parseType("P008")

	var timeout, retry *float64
	for p.at(TokTimeout) || p.at(TokRetry) {
		kind := p.advance().Kind
		p.expect(TokColon, "P003", "expected ':'")
		v := p.expectNumber("P013").Number
		if kind == TokTimeout {
			timeout = &v
		} else {
			retry = &v
		}
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}

	return &ToolDecl{
		Name: name, Description: desc, Params: params, Return: ret,
		Timeout: timeout, Retry: retry, Sp: joinSpan(startSpan, p.prevEnd()),
	}
}

func (p *Parser) parseFunction() Decl {
	nameTok := p.advance()
	params := p.parseParams()
	p.expect(TokGt, "P003", "expected '>'")
	ret := p.parseType("P008")
	p.expect(TokSemi, "P003", "expected ';'")
	body := p.parseBody()
	return &FunctionDecl{
		Name: nameTok.Text, Params: params, Return: ret, Body: body,
		Sp: joinSpan(nameTok.Span, p.prevEnd()),
	}
}

// parseBody consumes statements separated by ';' until the upcoming tokens
// look like the start of a new top-level declaration (atDeclBoundary), so a
// function body with no closing delimiter correctly hands control back to
// the program-level loop. See atDeclBoundary for the lookahead rule this
// relies on.
func (p *Parser) parseBody() []Stmt {
	var stmts []Stmt
	stmts = append(stmts, p.parseStmt())
	for p.at(TokSemi) {
		p.advance()
		if p.atDeclBoundary() {
			break
		}
		stmts = append(stmts, p.parseStmt())
	}
	return stmts
}

// atDeclBoundary decides, without consuming input, whether the parser has
// reached the end of the current function body. A bare 'type'/'tool'
// keyword always starts a new declaration; an identifier only does when the
// tokens ahead actually match a full "name param* '>' type ';'" shape —
// this is what stops body parsing from misreading a trailing call statement
// as the start of the next function.
func (p *Parser) atDeclBoundary() bool {
	if p.at(TokEOF) || p.at(TokType) || p.at(TokTool) {
		return true
	}
	if p.at(TokIdent) {
		_, ok := p.matchFunctionHeader(p.pos)
		return ok
	}
	return false
}

func (p *Parser) matchFunctionHeader(pos int) (int, bool) {
	if p.tokAt(pos).Kind != TokIdent {
		return pos, false
	}
	np := p.matchParamsAhead(pos + 1)
	if p.tokAt(np).Kind != TokGt {
		return pos, false
	}
	np2, ok := p.matchTypeAhead(np + 1)
	if !ok {
		return pos, false
	}
	if p.tokAt(np2).Kind != TokSemi {
		return pos, false
	}
	return np2 + 1, true
}

func (p *Parser) matchParamsAhead(pos int) int {
	for p.tokAt(pos).Kind == TokIdent && p.tokAt(pos+1).Kind == TokColon {
		next, ok := p.matchTypeAhead(pos + 2)
		if !ok {
			break
		}
		pos = next
	}
	return pos
}

func (p *Parser) matchTypeAhead(pos int) (int, bool) {
	tok := p.tokAt(pos)
	if tok.Kind == TokUnderscore {
		return pos + 1, true
	}
	if tok.Kind != TokIdent {
		return pos, false
	}
	switch tok.Text {
	case "L":
		return p.matchTypeAhead(pos + 1)
	case "R":
		p1, ok := p.matchTypeAhead(pos + 1)
		if !ok {
			return pos, false
		}
		return p.matchTypeAhead(p1)
	default:
		return pos + 1, true
	}
}

// ---- statements ----

func (p *Parser) parseStmt() Stmt {
	tok := p.peek()
	switch {
	case tok.Kind == TokIdent && p.peekAt(1).Kind == TokEq:
		return p.parseLet()
	case tok.Kind == TokQuestion:
		return p.parseMatchStmt()
	case tok.Kind == TokAt:
		return p.parseForEach()
	case tok.Kind == TokBang:
		return p.parseBangStmt()
	case tok.Kind == TokCaret:
		return p.parseCaretStmt()
	default:
		return p.parseExprOrGuard()
	}
}

func (p *Parser) parseLet() Stmt {
	nameTok := p.advance()
	p.expect(TokEq, "P003", "expected '='")
	e := p.parseExpr()
	return &LetStmt{Name: nameTok.Text, Expr: e, Sp: joinSpan(nameTok.Span, e.Span().End)}
}

func (p *Parser) parseMatchStmt() Stmt {
	subject, arms, sp := p.parseMatchCore()
	return &MatchStmt{Subject: subject, Arms: arms, Sp: sp}
}

// parseMatchCore implements both the 'match' statement alternative and the
// 'match_expr' expr_inner alternative, which share an identical shape.
func (p *Parser) parseMatchCore() (Expr, []MatchArm, Span) {
	startSpan := p.peek().Span
	p.advance() // '?'
	var subject Expr
	if !p.at(TokLBrace) {
		subject = p.parseAtom()
	}
	p.expect(TokLBrace, "P003", "expected '{'")
	arms := p.parseArms()
	end := p.expect(TokRBrace, "P003", "expected '}'")
	return subject, arms, joinSpan(startSpan, end.Span.End)
}

func (p *Parser) parseArms() []MatchArm {
	var arms []MatchArm
	for !p.at(TokRBrace) {
		arms = append(arms, p.parseArm())
		if p.at(TokSemi) {
			p.advance()
		}
	}
	return arms
}

func (p *Parser) parseArm() MatchArm {
	pat := p.parsePattern()
	p.expect(TokColon, "P003", "expected ':'")
	var body []Stmt
	body = append(body, p.parseStmt())
	for p.at(TokSemi) && !p.armBoundaryAhead() {
		p.advance()
		body = append(body, p.parseStmt())
	}
	return MatchArm{Pattern: pat, Body: body, Sp: joinSpan(pat.Span(), p.prevEnd())}
}

// armBoundaryAhead looks past the ';' the arm-body loop is considering
// consuming: an arm body extends until the next ';' that is immediately
// followed by a new arm's pattern (or the closing '}').
func (p *Parser) armBoundaryAhead() bool {
	i := p.pos + 1
	t := p.tokAt(i)
	if t.Kind == TokRBrace {
		return true
	}
	if t.Kind == TokTilde && isIdentOrUnderscore(p.tokAt(i+1).Kind) && p.tokAt(i+2).Kind == TokColon {
		return true
	}
	if t.Kind == TokCaret && isIdentOrUnderscore(p.tokAt(i+1).Kind) && p.tokAt(i+2).Kind == TokColon {
		return true
	}
	if t.Kind == TokUnderscore && p.tokAt(i+1).Kind == TokColon {
		return true
	}
	if isLiteralStart(t.Kind) && p.tokAt(i+1).Kind == TokColon {
		return true
	}
	return false
}

func isIdentOrUnderscore(k TokenKind) bool {
	return k == TokIdent || k == TokUnderscore
}

func isLiteralStart(k TokenKind) bool {
	return k == TokNumber || k == TokText || k == TokTrue || k == TokFalse
}

func (p *Parser) parsePattern() Pattern {
	tok := p.peek()
	switch tok.Kind {
	case TokUnderscore:
		p.advance()
		return &WildcardPattern{Sp: tok.Span}
	case TokTilde:
		p.advance()
		binding := p.expectBindingName("P006")
		return &OkPattern{Binding: binding, Sp: joinSpan(tok.Span, p.prevEnd())}
	case TokCaret:
		p.advance()
		binding := p.expectBindingName("P006")
		return &ErrPattern{Binding: binding, Sp: joinSpan(tok.Span, p.prevEnd())}
	case TokNumber:
		p.advance()
		return &LiteralPattern{Kind: LitNumber, Number: tok.Number, Sp: tok.Span}
	case TokText:
		p.advance()
		return &LiteralPattern{Kind: LitText, Text: tok.Text, Sp: tok.Span}
	case TokTrue:
		p.advance()
		return &LiteralPattern{Kind: LitBool, Bool: true, Sp: tok.Span}
	case TokFalse:
		p.advance()
		return &LiteralPattern{Kind: LitBool, Bool: false, Sp: tok.Span}
	default:
		p.fail("P011", "expected a pattern", tok.Span)
	}
	panic("unreachable")
}

func (p *Parser) parseForEach() Stmt {
	startSpan := p.peek().Span
	p.advance() // '@'
	binding := p.expectIdent("P005").Text
	coll := p.parseAtom()
	body := p.parseBraceBody()
	return &ForEachStmt{Binding: binding, Collection: coll, Body: body, Sp: joinSpan(startSpan, p.prevEnd())}
}

func (p *Parser) parseBraceBody() []Stmt {
	p.expect(TokLBrace, "P003", "expected '{'")
	var stmts []Stmt
	for !p.at(TokRBrace) {
		stmts = append(stmts, p.parseStmt())
		if p.at(TokSemi) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(TokRBrace, "P003", "expected '}'")
	return stmts
}

func (p *Parser) parseBangStmt() Stmt {
	startSpan := p.peek().Span
	p.advance() // '!'
	inner := p.parseExprInner()
	if p.at(TokLBrace) {
		body := p.parseBraceBody()
		return &GuardStmt{Cond: inner, Negated: true, Body: body, Sp: joinSpan(startSpan, p.prevEnd())}
	}
	sp := joinSpan(startSpan, inner.Span().End)
	return &ExprStmt{Expr: &UnaryOpExpr{Op: OpNot, Operand: inner, Sp: sp}, Sp: sp}
}

func (p *Parser) parseCaretStmt() Stmt {
	startSpan := p.peek().Span
	p.advance() // '^'
	inner := p.parseExprInner()
	sp := joinSpan(startSpan, inner.Span().End)
	return &ExprStmt{Expr: &ErrExpr{Inner: inner, Sp: sp}, Sp: sp}
}

func (p *Parser) parseExprOrGuard() Stmt {
	e := p.parseExpr()
	if p.at(TokLBrace) {
		body := p.parseBraceBody()
		return &GuardStmt{Cond: e, Negated: false, Body: body, Sp: joinSpan(e.Span(), p.prevEnd())}
	}
	return &ExprStmt{Expr: e, Sp: e.Span()}
}

// ---- expressions ----

func (p *Parser) parseExpr() Expr {
	startSpan := p.peek().Span
	const (
		wrapNone = iota
		wrapOk
		wrapErr
	)
	wrap := wrapNone
	if p.at(TokTilde) {
		p.advance()
		wrap = wrapOk
	} else if p.at(TokCaret) {
		p.advance()
		wrap = wrapErr
	}

	inner := p.parseExprInner()
	var result Expr = inner
	switch wrap {
	case wrapOk:
		result = &OkExpr{Inner: inner, Sp: joinSpan(startSpan, inner.Span().End)}
	case wrapErr:
		result = &ErrExpr{Inner: inner, Sp: joinSpan(startSpan, inner.Span().End)}
	}

	if p.at(TokWith) {
		p.advance()
		var updates []FieldValue
		for p.at(TokIdent) && p.peekAt(1).Kind == TokColon {
			fname := p.advance().Text
			p.advance() // ':'
			fval := p.parseAtom()
			updates = append(updates, FieldValue{Name: fname, Value: fval})
		}
		result = &WithExpr{Object: result, Updates: updates, Sp: joinSpan(startSpan, p.prevEnd())}
	}
	return result
}

// parseExprInner implements expr_inner. Binary operators are written
// prefix, so the dispatch here is entirely driven by the leading token: a
// bare '-' defers to parseMinusTail for the subtract/negate disambiguation
// (the "single most subtle parser decision", per the surrounding design
// notes), any other operator token is a two-operand prefix_binop, '?'
// starts a nested match, and everything else falls to call_or_atom.
func (p *Parser) parseExprInner() Expr {
	tok := p.peek()
	switch {
	case tok.Kind == TokMinus:
		p.advance()
		return p.parseMinusTail(tok.Span)
	case tok.Kind == TokBang:
		p.advance()
		operand := p.parseOperand()
		return &UnaryOpExpr{Op: OpNot, Operand: operand, Sp: joinSpan(tok.Span, operand.Span().End)}
	case isPrefixBinOpKind(tok.Kind):
		return p.parsePrefixBinOp()
	case tok.Kind == TokQuestion:
		subject, arms, sp := p.parseMatchCore()
		return &MatchExpr{Subject: subject, Arms: arms, Sp: sp}
	default:
		return p.parseCallOrAtom()
	}
}

func isPrefixBinOpKind(k TokenKind) bool {
	switch k {
	case TokPlus, TokStar, TokSlash, TokGt, TokLt, TokGe, TokLe, TokEq, TokNeq, TokAnd, TokOr, TokPlusEq:
		return true
	}
	return false
}

func binOpForKind(k TokenKind) BinOp {
	switch k {
	case TokPlus:
		return OpAdd
	case TokStar:
		return OpMultiply
	case TokSlash:
		return OpDivide
	case TokGt:
		return OpGreaterThan
	case TokLt:
		return OpLessThan
	case TokGe:
		return OpGreaterOrEqual
	case TokLe:
		return OpLessOrEqual
	case TokEq:
		return OpEquals
	case TokNeq:
		return OpNotEquals
	case TokAnd:
		return OpAnd
	case TokOr:
		return OpOr
	case TokPlusEq:
		return OpAppend
	}
	return OpAdd
}

func (p *Parser) parsePrefixBinOp() Expr {
	opTok := p.advance()
	left := p.parseOperand()
	right := p.parseOperand()
	return &BinOpExpr{Op: binOpForKind(opTok.Kind), Left: left, Right: right, Sp: joinSpan(opTok.Span, right.Span().End)}
}

// parseMinusTail implements minus_tail: consume one operand, and if another
// operand-starter follows, the first operand was the left side of a
// subtract; otherwise it stands alone as a negation. This, combined with
// the lexer's eager "-[0-9] is a number" rule, is what lets `fac -n 1`
// parse as a single call argument Subtract(n, 1) rather than two calls.
func (p *Parser) parseMinusTail(startSpan Span) Expr {
	first := p.parseOperand()
	if p.isOperandStart(p.peek()) {
		second := p.parseOperand()
		return &BinOpExpr{Op: OpSubtract, Left: first, Right: second, Sp: joinSpan(startSpan, second.Span().End)}
	}
	return &UnaryOpExpr{Op: OpNegate, Operand: first, Sp: joinSpan(startSpan, first.Span().End)}
}

func (p *Parser) parseOperand() Expr {
	return p.parseExprInner()
}

func (p *Parser) isOperandStart(tok Token) bool {
	switch tok.Kind {
	case TokMinus, TokBang, TokQuestion,
		TokPlus, TokStar, TokSlash, TokGt, TokLt, TokGe, TokLe, TokEq, TokNeq, TokAnd, TokOr, TokPlusEq,
		TokNumber, TokText, TokTrue, TokFalse, TokUnderscore, TokLParen, TokLBracket, TokIdent:
		return true
	}
	return false
}

// parseCallOrAtom implements call_or_atom. A bare identifier is first
// checked against the two lookahead-distinguishable forms — a zero-arg
// call "name()" and a record literal "TypeName field:value ..." — before
// falling back to parseAtom, which may itself be upgraded into a call when
// it resolved to a plain Ref immediately followed by an unwrap marker or
// another operand (greedy argument list).
func (p *Parser) parseCallOrAtom() Expr {
	if p.at(TokIdent) {
		name := p.peek().Text
		nameSpan := p.peek().Span

		if p.peekAt(1).Kind == TokLParen && p.peekAt(2).Kind == TokRParen {
			p.advance()
			p.advance()
			p.advance()
			return &CallExpr{Name: name, Sp: joinSpan(nameSpan, p.prevEnd())}
		}

		if p.peekAt(1).Kind == TokIdent && p.peekAt(2).Kind == TokColon {
			p.advance() // type name
			var fields []FieldValue
			for p.at(TokIdent) && p.peekAt(1).Kind == TokColon {
				fname := p.advance().Text
				p.advance() // ':'
				fval := p.parseAtom()
				fields = append(fields, FieldValue{Name: fname, Value: fval})
			}
			return &RecordExpr{TypeName: name, Fields: fields, Sp: joinSpan(nameSpan, p.prevEnd())}
		}
	}

	atomExpr := p.parseAtom()
	ref, isRef := atomExpr.(*RefExpr)
	if !isRef {
		return atomExpr
	}

	unwrap := false
	if p.at(TokBang) {
		unwrap = true
		p.advance()
		if p.at(TokLParen) && p.peekAt(1).Kind == TokRParen {
			p.advance()
			p.advance()
			return &CallExpr{Name: ref.Name, Unwrap: true, Sp: joinSpan(ref.Sp, p.prevEnd())}
		}
	}

	if unwrap || p.isOperandStart(p.peek()) {
		var args []Expr
		for p.isOperandStart(p.peek()) {
			args = append(args, p.parseOperand())
		}
		return &CallExpr{Name: ref.Name, Args: args, Unwrap: unwrap, Sp: joinSpan(ref.Sp, p.prevEnd())}
	}
	return ref
}

func (p *Parser) parseAtom() Expr {
	tok := p.peek()
	switch tok.Kind {
	case TokNumber:
		p.advance()
		return &LiteralExpr{Kind: LitNumber, Number: tok.Number, Sp: tok.Span}
	case TokText:
		p.advance()
		return &LiteralExpr{Kind: LitText, Text: tok.Text, Sp: tok.Span}
	case TokTrue:
		p.advance()
		return &LiteralExpr{Kind: LitBool, Bool: true, Sp: tok.Span}
	case TokFalse:
		p.advance()
		return &LiteralExpr{Kind: LitBool, Bool: false, Sp: tok.Span}
	case TokUnderscore:
		p.advance()
		return &LiteralExpr{Kind: LitNil, Sp: tok.Span}
	case TokLParen:
		p.advance()
		e := p.parseExpr()
		p.expect(TokRParen, "P003", "expected ')'")
		return e
	case TokLBracket:
		return p.parseListLiteral()
	case TokIdent:
		p.advance()
		var e Expr = &RefExpr{Name: tok.Text, Sp: tok.Span}
		for p.at(TokDot) {
			p.advance()
			if p.at(TokNumber) {
				idxTok := p.advance()
				e = &IndexExpr{Object: e, Index: int(idxTok.Number), Sp: joinSpan(tok.Span, idxTok.Span.End)}
			} else if p.at(TokIdent) {
				fTok := p.advance()
				e = &FieldExpr{Object: e, Name: fTok.Text, Sp: joinSpan(tok.Span, fTok.Span.End)}
			} else {
				p.fail("P005", "expected a field name or index after '.'", p.peek().Span)
			}
		}
		return e
	default:
		p.fail("P009", "expected an expression", tok.Span)
	}
	panic("unreachable")
}

func (p *Parser) parseListLiteral() Expr {
	start := p.peek().Span
	p.advance() // '['
	var items []Expr
	if !p.at(TokRBracket) {
		items = append(items, p.parseExpr())
		for p.at(TokComma) {
			p.advance()
			if p.at(TokRBracket) {
				break
			}
			items = append(items, p.parseExpr())
		}
	}
	end := p.expect(TokRBracket, "P003", "expected ']'")
	return &ListExpr{Items: items, Sp: joinSpan(start, end.Span.End)}
}
