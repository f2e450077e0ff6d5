package ilo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkOf builds a minimal single-chunk CompiledProgram so the VM can be
// exercised directly against hand-built bytecode, independent of whether
// the compiler itself has any bugs.
func programOf(name string, chunk *Chunk) *CompiledProgram {
	return &CompiledProgram{
		Chunks: []*Chunk{chunk},
		Entry:  map[string]int{name: 0},
	}
}

func TestVmStateArithmetic(t *testing.T) {
	// fn add2(a, b) = a + b
	chunk := &Chunk{
		Name: "add2",
		Code: []Instruction{
			EncodeABx(BcLoadLocal, 0, 0),
			EncodeABx(BcLoadLocal, 1, 0),
			EncodeABC(BcAdd, 0, 0, 0),
			EncodeABC(BcReturn, 0, 0, 0),
		},
		ParamCount: 2,
		LocalCount: 2,
	}
	vm := NewVmState(programOf("add2", chunk), NewConfig())
	result, err := vm.Run("add2", []Value{NumberVal(2), NumberVal(3)})
	require.NoError(t, err)
	assert.Equal(t, NumberVal(5), result)

	// VM state is reusable across calls, dropping leftover stack state
	// from the previous run first.
	result, err = vm.Run("add2", []Value{NumberVal(10), NumberVal(-4)})
	require.NoError(t, err)
	assert.Equal(t, NumberVal(6), result)
}

func TestVmStateDivisionByZero(t *testing.T) {
	chunk := &Chunk{
		Name: "div0",
		Code: []Instruction{
			EncodeABx(BcLoadLocal, 0, 0),
			EncodeABx(BcLoadConst, 0, 0),
			EncodeABC(BcDiv, 0, 0, 0),
			EncodeABC(BcReturn, 0, 0, 0),
		},
		Constants:  []Value{NumberVal(0)},
		ParamCount: 1,
		LocalCount: 1,
	}
	vm := NewVmState(programOf("div0", chunk), NewConfig())
	_, err := vm.Run("div0", []Value{NumberVal(1)})
	require.Error(t, err)
	re, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Equal(t, "R003", re.Code)
}

func TestVmStateStringConcatAndLists(t *testing.T) {
	// fn cat(a, b) = a + b, where a and b are strings compiled in via constants
	chunk := &Chunk{
		Name: "cat",
		Code: []Instruction{
			EncodeABx(BcLoadConst, 0, 0),
			EncodeABx(BcLoadConst, 0, 1),
			EncodeABC(BcAdd, 0, 0, 0),
			EncodeABC(BcReturn, 0, 0, 0),
		},
		Constants: []Value{TextVal("foo"), TextVal("bar")},
	}
	vm := NewVmState(programOf("cat", chunk), NewConfig())
	result, err := vm.Run("cat", nil)
	require.NoError(t, err)
	assert.Equal(t, TextVal("foobar"), result)
}

func TestVmStateListNewAndIndex(t *testing.T) {
	// fn first() = [1, 2, 3][0]
	chunk := &Chunk{
		Name: "first",
		Code: []Instruction{
			EncodeABx(BcLoadConst, 0, 0),
			EncodeABx(BcLoadConst, 0, 1),
			EncodeABx(BcLoadConst, 0, 2),
			EncodeABC(BcListNew, 3, 0, 0),
			EncodeABx(BcListIndex, 0, 0),
			EncodeABC(BcReturn, 0, 0, 0),
		},
		Constants: []Value{NumberVal(1), NumberVal(2), NumberVal(3)},
	}
	vm := NewVmState(programOf("first", chunk), NewConfig())
	result, err := vm.Run("first", nil)
	require.NoError(t, err)
	assert.Equal(t, NumberVal(1), result)
}

func TestVmStateRecordNewAndField(t *testing.T) {
	// fn x() = Point{x: 1, y: 2}.x
	chunk := &Chunk{
		Name: "x",
		Code: []Instruction{
			EncodeABx(BcLoadConst, 0, 0),
			EncodeABx(BcLoadConst, 0, 1),
			EncodeABC(BcRecordNew, 2, 0, 0),
			EncodeABx(BcRecordField, 0, 2),
			EncodeABC(BcReturn, 0, 0, 0),
		},
		Constants:  []Value{NumberVal(1), NumberVal(2), TextVal("x")},
		FieldDescs: [][]string{{"Point", "x", "y"}},
	}
	vm := NewVmState(programOf("x", chunk), NewConfig())
	result, err := vm.Run("x", nil)
	require.NoError(t, err)
	assert.Equal(t, NumberVal(1), result)
}

func TestVmStateWrapAndUnwrapOk(t *testing.T) {
	chunk := &Chunk{
		Name: "okOf",
		Code: []Instruction{
			EncodeABx(BcLoadLocal, 0, 0),
			EncodeABC(BcWrapOk, 0, 0, 0),
			EncodeABC(BcUnwrapOkErr, 0, 0, 0),
			EncodeABC(BcReturn, 0, 0, 0),
		},
		ParamCount: 1,
		LocalCount: 1,
	}
	vm := NewVmState(programOf("okOf", chunk), NewConfig())
	result, err := vm.Run("okOf", []Value{NumberVal(42)})
	require.NoError(t, err)
	assert.Equal(t, NumberVal(42), result)
}

func TestVmStateCallBuiltin(t *testing.T) {
	// fn strLen() = len("hello")
	chunk := &Chunk{
		Name: "strLen",
		Code: []Instruction{
			EncodeABx(BcLoadConst, 0, 0),
			EncodeABx(BcCall, 1, 0),
			EncodeABC(BcReturn, 0, 0, 0),
		},
		Constants: []Value{TextVal("hello")},
	}
	prog := programOf("strLen", chunk)
	prog.Callees = []CalleeRef{{Name: "len", IsBuiltin: true}}
	vm := NewVmState(prog, NewConfig())
	result, err := vm.Run("strLen", nil)
	require.NoError(t, err)
	assert.Equal(t, NumberVal(5), result)
}

func TestVmStateCallUserFunction(t *testing.T) {
	// fn inc(n) = n + 1
	// fn callsInc() = inc(41)
	inc := &Chunk{
		Name: "inc",
		Code: []Instruction{
			EncodeABx(BcLoadLocal, 0, 0),
			EncodeABx(BcLoadConst, 0, 0),
			EncodeABC(BcAdd, 0, 0, 0),
			EncodeABC(BcReturn, 0, 0, 0),
		},
		Constants:  []Value{NumberVal(1)},
		ParamCount: 1,
		LocalCount: 1,
	}
	callsInc := &Chunk{
		Name: "callsInc",
		Code: []Instruction{
			EncodeABx(BcLoadConst, 0, 0),
			EncodeABx(BcCall, 1, 0),
			EncodeABC(BcReturn, 0, 0, 0),
		},
		Constants: []Value{NumberVal(41)},
	}
	prog := &CompiledProgram{
		Chunks:  []*Chunk{inc, callsInc},
		Callees: []CalleeRef{{Name: "inc", ChunkIndex: 0}},
		Entry:   map[string]int{"inc": 0, "callsInc": 1},
	}
	vm := NewVmState(prog, NewConfig())
	result, err := vm.Run("callsInc", nil)
	require.NoError(t, err)
	assert.Equal(t, NumberVal(42), result)
}

func TestVmStateUnknownFunction(t *testing.T) {
	vm := NewVmState(&CompiledProgram{Entry: map[string]int{}}, NewConfig())
	_, err := vm.Run("nope", nil)
	require.Error(t, err)
	re, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Equal(t, "R011", re.Code)
}

func TestVmStateListGetOrEndPastBounds(t *testing.T) {
	// fn peek(xs) = xs[5] via the ForEach loop-head opcode directly: out
	// of range jumps straight past the push, landing on Return with
	// nothing on the stack — we instead jump to a LoadConst sentinel to
	// keep the chunk well-formed.
	chunk := &Chunk{
		Name: "peek",
		Code: []Instruction{
			EncodeABx(BcLoadLocal, 0, 0),     // 0: push xs
			EncodeABx(BcLoadConst, 0, 0),     // 1: push index 5
			EncodeABx(BcListGetOrEnd, 0, 3),  // 2: push el or jump to 3 (sentinel)
			EncodeABx(BcLoadConst, 0, 1),     // 3: sentinel value
			EncodeABC(BcReturn, 0, 0, 0),     // 4
		},
		Constants:  []Value{NumberVal(5), NumberVal(-1)},
		ParamCount: 1,
		LocalCount: 1,
	}
	vm := NewVmState(programOf("peek", chunk), NewConfig())
	result, err := vm.Run("peek", []Value{&ListVal{Items: []Value{NumberVal(1), NumberVal(2)}}})
	require.NoError(t, err)
	assert.Equal(t, NumberVal(-1), result)
}
