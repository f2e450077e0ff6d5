package ilo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifyErrCodes(t *testing.T, src string) []string {
	t.Helper()
	prog, diags := ParseProgram([]byte(src))
	require.False(t, diags.HasErrors(), "unexpected parse errors: %v", diags.Items())
	sm := NewSourceMap([]byte(src))
	vdiags := Verify(prog, sm)
	codes := make([]string, 0, len(vdiags.Items()))
	for _, d := range vdiags.Items() {
		codes = append(codes, d.Code)
	}
	return codes
}

func TestVerifyWellFormedProgramHasNoErrors(t *testing.T) {
	codes := verifyErrCodes(t, `tot p:n q:n r:n>n;s=*p q;t=*s r;+s t`)
	assert.Empty(t, codes)
}

func TestVerifyDuplicateFunctionDefinition(t *testing.T) {
	codes := verifyErrCodes(t, `f>n;1 g>n;2 f>n;3`)
	assert.Contains(t, codes, "T002")
}

func TestVerifyUnknownTypeName(t *testing.T) {
	codes := verifyErrCodes(t, `f x:Bogus>n;1`)
	assert.Contains(t, codes, "T003")
}

func TestVerifyUnknownName(t *testing.T) {
	codes := verifyErrCodes(t, `f>n;missing`)
	assert.Contains(t, codes, "T004")
}

func TestVerifyUnknownCallee(t *testing.T) {
	codes := verifyErrCodes(t, `f>n;g()`)
	assert.Contains(t, codes, "T005")
}

func TestVerifyWrongArgumentCount(t *testing.T) {
	codes := verifyErrCodes(t, `g n:n>n;n f>n;g 1 2`)
	assert.Contains(t, codes, "T006")
}

func TestVerifyArgumentTypeMismatch(t *testing.T) {
	codes := verifyErrCodes(t, `g n:n>n;n f>n;g "x"`)
	assert.Contains(t, codes, "T007")
}

func TestVerifyArithmeticRequiresNumbers(t *testing.T) {
	codes := verifyErrCodes(t, `f>n;+"a" "b"`)
	assert.Contains(t, codes, "T009")
}

func TestVerifyNonExhaustiveMatch(t *testing.T) {
	codes := verifyErrCodes(t, `f x:R n t>n;?x{~v:v}`)
	assert.Contains(t, codes, "T024")
}

func TestVerifyMissingRecordField(t *testing.T) {
	codes := verifyErrCodes(t, `type Point{x:n;y:n} f>Point;point x:1`)
	assert.Contains(t, codes, "T015")
}

func TestVerifyUnknownRecordField(t *testing.T) {
	codes := verifyErrCodes(t, `type Point{x:n;y:n} f>Point;point x:1 y:2 z:3`)
	assert.Contains(t, codes, "T016")
}

func TestVerifyDuplicateParam(t *testing.T) {
	codes := verifyErrCodes(t, `f n:n n:n>n;n`)
	assert.Contains(t, codes, "T002")
}
