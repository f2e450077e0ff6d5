package ilo

// Bc is a single bytecode instruction's opcode, packed with its operands
// into a 32-bit Instruction — an 8-bit op plus either three 8-bit operand
// fields or one 16-bit field, adapted here for a stack machine rather
// than a register machine: operand A is still "the interesting slot" (a
// local index) when one is needed, and Bx is the 16-bit constant/jump-
// target field used whenever A alone can't hold the operand. Named Bc
// (bytecode), not Op, since ast.go already owns the BinOp/UnaryOp
// constant names this set would otherwise collide with (And, Or, Not,
// Negate, Append all appear on both sides).
type Bc uint8

const (
	BcLoadConst  Bc = iota // LoadConst k          push constants[k]
	BcLoadLocal            // LoadLocal s          push locals[s]
	BcStoreLocal           // StoreLocal s         locals[s] = pop()

	BcAdd // Add                  push(pop() + pop())
	BcSub
	BcMul
	BcDiv
	BcEq
	BcNotEq
	BcGt
	BcLt
	BcGe
	BcLe
	BcAppend
	BcNot
	BcNegate

	BcWrapOk      // WrapOk               push(Ok(pop()))
	BcWrapErr     // WrapErr              push(Err(pop()))
	BcIsOk        // IsOk                 pop, push (was it Ok?)
	BcIsErr       // IsErr                pop, push (was it Err?)
	BcUnwrapOkErr // UnwrapOkErr          push(pop().inner)

	BcJump        // Jump t               pc = t
	BcJumpIfTrue  // JumpIfTrue t         if truthy(pop()) pc = t
	BcJumpIfFalse // JumpIfFalse t        if !truthy(pop()) pc = t

	BcCall   // Call callee_index n   pops n args, pushes result
	BcReturn // Return               return pop() from the current frame

	BcRecordNew   // RecordNew desc n     pop n values, push Record(desc)
	BcRecordField // RecordField k        push pop().field[constants[k]]
	BcRecordWith  // RecordWith desc n    pop n values + base, push updated Record

	BcPop // Pop                  discard top of stack
	BcDup // Dup                  duplicate top of stack

	BcListNew      // ListNew n            pop n values, push List
	BcListIndex    // ListIndex k          pop list, push list[k] (literal index)
	BcListGetOrEnd // ListGetOrEnd t       iterate-or-branch (see ForEach lowering)
)

var bcNames = [...]string{
	BcLoadConst: "LoadConst", BcLoadLocal: "LoadLocal", BcStoreLocal: "StoreLocal",
	BcAdd: "Add", BcSub: "Sub", BcMul: "Mul", BcDiv: "Div",
	BcEq: "Eq", BcNotEq: "NotEq", BcGt: "Gt", BcLt: "Lt", BcGe: "Ge", BcLe: "Le",
	BcAppend: "Append", BcNot: "Not", BcNegate: "Negate",
	BcWrapOk: "WrapOk", BcWrapErr: "WrapErr", BcIsOk: "IsOk", BcIsErr: "IsErr",
	BcUnwrapOkErr: "UnwrapOkErr",
	BcJump:        "Jump",
	BcJumpIfTrue:  "JumpIfTrue",
	BcJumpIfFalse: "JumpIfFalse",
	BcCall:        "Call",
	BcReturn:      "Return",
	BcRecordNew:   "RecordNew", BcRecordField: "RecordField", BcRecordWith: "RecordWith",
	BcPop: "Pop", BcDup: "Dup",
	BcListNew: "ListNew", BcListIndex: "ListIndex", BcListGetOrEnd: "ListGetOrEnd",
}

func (op Bc) String() string {
	if int(op) < len(bcNames) && bcNames[op] != "" {
		return bcNames[op]
	}
	return "Unknown"
}

// Instruction packs one opcode and its operands into 32 bits: the opcode
// in the low byte, slot A next, then either two more 8-bit fields (B, C)
// or one 16-bit field (Bx) — the same layout shape as the pack's
// register-bytecode reference, trimmed to what a stack machine needs.
type Instruction uint32

const (
	posOp = 0
	posA  = 8
	posB  = 16
	posC  = 24

	maskByte = 0xFF
	maskBx   = 0xFFFF
)

// EncodeABC packs a three-operand instruction (two 8-bit operands plus the
// destination/source slot A). Only RecordNew/RecordWith/ListNew (A unused,
// B = count) and the zero-operand ops use this form today.
func EncodeABC(op Bc, a, b, c uint8) Instruction {
	return Instruction(op) | Instruction(a)<<posA | Instruction(b)<<posB | Instruction(c)<<posC
}

// EncodeABx packs an instruction with one wide 16-bit operand — used for
// constant/local/field indices and jump targets, any of which can exceed a
// byte once a function has more than 255 constants or locals.
func EncodeABx(op Bc, a uint8, bx uint16) Instruction {
	return Instruction(op) | Instruction(a)<<posA | Instruction(bx)<<posB
}

func (i Instruction) Op() Bc    { return Bc(i & maskByte) }
func (i Instruction) A() uint8  { return uint8((i >> posA) & maskByte) }
func (i Instruction) B() uint8  { return uint8((i >> posB) & maskByte) }
func (i Instruction) C() uint8  { return uint8((i >> posC) & maskByte) }
func (i Instruction) Bx() uint16 { return uint16((i >> posB) & maskBx) }

// Chunk is one compiled function: its instruction stream, its constant
// pool (deduplicated for scalar kinds — number, text, bool, nil — and
// appended verbatim for composite descriptors, i.e. record field-name
// lists, kept in FieldDescs instead of crowding the scalar pool), and its
// parameter count, which doubles as the slot offset of the first
// non-parameter local.
type Chunk struct {
	Name       string
	Code       []Instruction
	Constants  []Value
	FieldDescs [][]string
	ParamCount int
	LocalCount int
}
