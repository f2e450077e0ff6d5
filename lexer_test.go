package ilo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []Token) []TokenKind {
	ks := make([]TokenKind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}

func TestLexOperatorsAndPunctuation(t *testing.T) {
	toks, err := Lex([]byte("+= >= <= != + - * / > < = & | ? @ ! ^ ~ ( ) { } [ ] : ; , ."))
	require.NoError(t, err)
	require.Equal(t, []TokenKind{
		TokPlusEq, TokGe, TokLe, TokNeq, TokPlus, TokMinus, TokStar, TokSlash,
		TokGt, TokLt, TokEq, TokAnd, TokOr, TokQuestion, TokAt, TokBang,
		TokCaret, TokTilde, TokLParen, TokRParen, TokLBrace, TokRBrace,
		TokLBracket, TokRBracket, TokColon, TokSemi, TokComma, TokDot, TokEOF,
	}, kinds(toks))
}

func TestLexIdentifierAndKeyword(t *testing.T) {
	toks, err := Lex([]byte("my-func type tool"))
	require.NoError(t, err)
	require.Equal(t, []TokenKind{TokIdent, TokType, TokTool, TokEOF}, kinds(toks))
	assert.Equal(t, "my-func", toks[0].Text)
}

func TestLexWildcardUnderscore(t *testing.T) {
	toks, err := Lex([]byte("_"))
	require.NoError(t, err)
	require.Equal(t, TokUnderscore, toks[0].Kind)
}

func TestLexNumberAndNegative(t *testing.T) {
	toks, err := Lex([]byte("42 3.14 -5"))
	require.NoError(t, err)
	require.Len(t, toks, 4)
	assert.Equal(t, float64(42), toks[0].Number)
	assert.Equal(t, 3.14, toks[1].Number)
	assert.Equal(t, float64(-5), toks[2].Number)
}

func TestLexTextWithEscapes(t *testing.T) {
	toks, err := Lex([]byte(`"a\nb\"c"`))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\"c", toks[0].Text)
}

func TestLexUnterminatedTextErrors(t *testing.T) {
	_, err := Lex([]byte(`"unterminated`))
	require.Error(t, err)
	le, ok := err.(*LexError)
	require.True(t, ok)
	assert.Equal(t, "L001", le.Code)
}

func TestLexUnderscoreIdentifierSuggestsHyphen(t *testing.T) {
	_, err := Lex([]byte("my_func"))
	require.Error(t, err)
	le, ok := err.(*LexError)
	require.True(t, ok)
	assert.Equal(t, "L002", le.Code)
	assert.Contains(t, le.Suggestion, "my-func")
}

func TestLexUppercaseIdentifierSuggestsLowercase(t *testing.T) {
	_, err := Lex([]byte("Thing"))
	require.Error(t, err)
	le, ok := err.(*LexError)
	require.True(t, ok)
	assert.Equal(t, "L003", le.Code)
	assert.Contains(t, le.Suggestion, "thing")
}

func TestLexCommentsAreSkipped(t *testing.T) {
	toks, err := Lex([]byte("a -- a comment\nb"))
	require.NoError(t, err)
	require.Equal(t, []TokenKind{TokIdent, TokNewline, TokIdent, TokEOF}, kinds(toks))
}

func TestLexSingleCapitalLetterIsValidIdent(t *testing.T) {
	toks, err := Lex([]byte("R"))
	require.NoError(t, err)
	require.Equal(t, TokIdent, toks[0].Kind)
}
