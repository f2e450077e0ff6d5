package ilo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOK(t *testing.T, src string) *Program {
	t.Helper()
	prog, diags := ParseProgram([]byte(src))
	require.False(t, diags.HasErrors(), "unexpected parse errors: %v", diags.Items())
	return prog
}

func TestParseSimpleFunction(t *testing.T) {
	prog := parseOK(t, `tot p:n q:n r:n>n;s=*p q;t=*s r;+s t`)
	require.Len(t, prog.Decls, 1)
	fn, ok := prog.Decls[0].(*FunctionDecl)
	require.True(t, ok)
	assert.Equal(t, "tot", fn.Name)
	require.Len(t, fn.Params, 3)
	assert.Equal(t, NumberType{}, fn.Params[0].Type)
	require.Len(t, fn.Body, 3)
}

func TestParseTypeDef(t *testing.T) {
	prog := parseOK(t, `type Point{x:n;y:n}`)
	require.Len(t, prog.Decls, 1)
	td, ok := prog.Decls[0].(*TypeDefDecl)
	require.True(t, ok)
	assert.Equal(t, "Point", td.Name)
	require.Len(t, td.Fields, 2)
}

func TestParseToolWithTimeoutAndRetry(t *testing.T) {
	prog := parseOK(t, `tool fetch "fetches a url" u:t>R t t timeout:5,retry:3`)
	require.Len(t, prog.Decls, 1)
	tool, ok := prog.Decls[0].(*ToolDecl)
	require.True(t, ok)
	assert.Equal(t, "fetch", tool.Name)
	assert.Equal(t, "fetches a url", tool.Description)
	require.NotNil(t, tool.Timeout)
	assert.Equal(t, float64(5), *tool.Timeout)
	require.NotNil(t, tool.Retry)
	assert.Equal(t, float64(3), *tool.Retry)
}

func TestParseGuardWithElse(t *testing.T) {
	prog := parseOK(t, `cls sp:n>t;>=sp 1000{"gold"};>=sp 500{"silver"};"bronze"`)
	fn := prog.Decls[0].(*FunctionDecl)
	require.Len(t, fn.Body, 3)
	g, ok := fn.Body[0].(*GuardStmt)
	require.True(t, ok)
	assert.False(t, g.Negated)
}

func TestParseMatchStmt(t *testing.T) {
	prog := parseOK(t, `f x:R n t>n;?x{~v:v;^e:0}`)
	fn := prog.Decls[0].(*FunctionDecl)
	m, ok := fn.Body[0].(*MatchStmt)
	require.True(t, ok)
	require.Len(t, m.Arms, 2)
	_, okPat := m.Arms[0].Pattern.(*OkPattern)
	assert.True(t, okPat)
	_, errPat := m.Arms[1].Pattern.(*ErrPattern)
	assert.True(t, errPat)
}

func TestParseMinusTailDisambiguation(t *testing.T) {
	prog := parseOK(t, `f n:n>n;r=fac -n 1;*n r`)
	fn := prog.Decls[0].(*FunctionDecl)
	let := fn.Body[0].(*LetStmt)
	call, ok := let.Expr.(*CallExpr)
	require.True(t, ok)
	require.Len(t, call.Args, 1)
	sub, ok := call.Args[0].(*BinOpExpr)
	require.True(t, ok)
	assert.Equal(t, OpSubtract, sub.Op)
}

func TestParseNegationWithoutSecondOperand(t *testing.T) {
	prog := parseOK(t, `f n:n>n;-n`)
	fn := prog.Decls[0].(*FunctionDecl)
	st := fn.Body[0].(*ExprStmt)
	neg, ok := st.Expr.(*UnaryOpExpr)
	require.True(t, ok)
	assert.Equal(t, OpNegate, neg.Op)
}

func TestParseRecordConstructionAndWith(t *testing.T) {
	prog := parseOK(t, `f>n;r=point x:1 y:2;r2=r with y:10;r2.y`)
	fn := prog.Decls[0].(*FunctionDecl)
	let1 := fn.Body[0].(*LetStmt)
	rec, ok := let1.Expr.(*RecordExpr)
	require.True(t, ok)
	assert.Equal(t, "point", rec.TypeName)
	require.Len(t, rec.Fields, 2)

	let2 := fn.Body[1].(*LetStmt)
	_, withOK := let2.Expr.(*WithExpr)
	assert.True(t, withOK)
}

func TestParseListLiteralAndIndex(t *testing.T) {
	prog := parseOK(t, `f>n;xs=[1,2,3];xs.0`)
	fn := prog.Decls[0].(*FunctionDecl)
	let := fn.Body[0].(*LetStmt)
	list, ok := let.Expr.(*ListExpr)
	require.True(t, ok)
	require.Len(t, list.Items, 3)

	st := fn.Body[1].(*ExprStmt)
	idx, ok := st.Expr.(*IndexExpr)
	require.True(t, ok)
	assert.Equal(t, 0, idx.Index)
}

func TestParseForEach(t *testing.T) {
	prog := parseOK(t, `f xs:L n>n;acc=0;@x xs{acc}`)
	fn := prog.Decls[0].(*FunctionDecl)
	fe, ok := fn.Body[1].(*ForEachStmt)
	require.True(t, ok)
	assert.Equal(t, "x", fe.Binding)
}

func TestParseUnexpectedTokenRecovers(t *testing.T) {
	prog, diags := ParseProgram([]byte(`* ; f n:n>n;n`))
	require.True(t, diags.HasErrors())
	require.Len(t, prog.Decls, 2)
	_, isErrorDecl := prog.Decls[0].(*ErrorDecl)
	assert.True(t, isErrorDecl)
	fn, ok := prog.Decls[1].(*FunctionDecl)
	require.True(t, ok)
	assert.Equal(t, "f", fn.Name)
}

func TestParseCallWithUnwrap(t *testing.T) {
	prog := parseOK(t, `f>n;x=num!"4"`)
	fn := prog.Decls[0].(*FunctionDecl)
	let := fn.Body[0].(*LetStmt)
	call, ok := let.Expr.(*CallExpr)
	require.True(t, ok)
	assert.True(t, call.Unwrap)
}
