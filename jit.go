package ilo

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// jitEligibleOps is the numeric-only opcode whitelist the native path
// commits to: arithmetic, negate, constant/local load and store, and
// return. Any other opcode — calls, jumps, records, lists, strings, Ok/Err
// — takes the chunk out of consideration and the VM runs it instead.
var jitEligibleOps = map[Bc]bool{
	BcLoadConst: true, BcLoadLocal: true, BcStoreLocal: true,
	BcAdd: true, BcSub: true, BcMul: true, BcDiv: true, BcNegate: true,
	BcReturn: true,
}

// jitMaxVReg bounds how many live values a chunk's straight-line arithmetic
// can juggle at once: one physical XMM register per virtual register,
// xmm0 through xmm7, the same eight SysV reserves for floating-point
// arguments. A chunk whose expression nests deeper than this falls back to
// the VM rather than spilling — the whole point of the JIT path is
// trivial numeric leaves, not a general register allocator.
const jitMaxVReg = 8

const jitMaxArity = 8

// eligibleForJIT reports whether chunk only touches numbers through the
// opcode whitelist above and has no more than jitMaxArity parameters.
// LoadConst is checked against the constant pool directly: the pool is
// shared across scalar kinds, so a chunk can carry a LoadConst indexing a
// text or bool constant despite this particular instruction stream never
// reaching it — disqualify on the declared constant's type rather than
// trying to prove the index unreachable.
func eligibleForJIT(chunk *Chunk) bool {
	if chunk.ParamCount > jitMaxArity {
		return false
	}
	for _, instr := range chunk.Code {
		op := instr.Op()
		if !jitEligibleOps[op] {
			return false
		}
		if op == BcLoadConst {
			if _, ok := chunk.Constants[instr.Bx()].(NumberVal); !ok {
				return false
			}
		}
	}
	return true
}

// regOp is one instruction in the register-based lowering IR: unlike
// Chunk's stack machine, every operand here names a virtual register
// directly, which is what makes straight-line mapping onto physical XMM
// registers possible without a runtime operand stack.
type regOp struct {
	kind     regKind
	op       Bc // for regBinOp: which arithmetic opcode
	dst      int
	a, b     int
	constant float64
	slot     int
}

type regKind uint8

const (
	regLoadConst regKind = iota
	regLoadLocal
	regStoreLocal
	regBinOp
	regNegate
	regReturn
)

// regChunk is the lowered form of one eligible Chunk: a flat list of regOp
// plus how many of the leading virtual registers are the function's own
// parameters (vreg i holds local slot i on entry, matching Chunk's own
// convention that parameters occupy the first ParamCount local slots).
type regChunk struct {
	ops        []regOp
	numVRegs   int
	arity      int
	localCount int
}

// lowerToRegisters simulates chunk's operand stack at compile time,
// assigning each pushed value the next unused virtual register instead of
// a runtime stack slot — valid because eligibleForJIT has already ruled
// out everything but straight-line arithmetic (no jumps, no branching
// stack shapes to reconcile). Returns false if the expression's live-value
// count would exceed jitMaxVReg.
func lowerToRegisters(chunk *Chunk) (*regChunk, bool) {
	rc := &regChunk{arity: chunk.ParamCount, localCount: chunk.LocalCount}
	var vstack []int
	next := 0
	alloc := func() (int, bool) {
		if next >= jitMaxVReg {
			return 0, false
		}
		v := next
		next++
		return v, true
	}

	for _, instr := range chunk.Code {
		switch instr.Op() {
		case BcLoadConst:
			v, ok := alloc()
			if !ok {
				return nil, false
			}
			num := float64(chunk.Constants[instr.Bx()].(NumberVal))
			rc.ops = append(rc.ops, regOp{kind: regLoadConst, dst: v, constant: num})
			vstack = append(vstack, v)

		case BcLoadLocal:
			v, ok := alloc()
			if !ok {
				return nil, false
			}
			rc.ops = append(rc.ops, regOp{kind: regLoadLocal, dst: v, slot: int(instr.A())})
			vstack = append(vstack, v)

		case BcStoreLocal:
			if len(vstack) == 0 {
				return nil, false
			}
			src := vstack[len(vstack)-1]
			vstack = vstack[:len(vstack)-1]
			rc.ops = append(rc.ops, regOp{kind: regStoreLocal, a: src, slot: int(instr.A())})

		case BcAdd, BcSub, BcMul, BcDiv:
			if len(vstack) < 2 {
				return nil, false
			}
			r := vstack[len(vstack)-1]
			l := vstack[len(vstack)-2]
			vstack = vstack[:len(vstack)-2]
			dst, ok := alloc()
			if !ok {
				return nil, false
			}
			rc.ops = append(rc.ops, regOp{kind: regBinOp, op: instr.Op(), dst: dst, a: l, b: r})
			vstack = append(vstack, dst)

		case BcNegate:
			if len(vstack) == 0 {
				return nil, false
			}
			src := vstack[len(vstack)-1]
			vstack = vstack[:len(vstack)-1]
			dst, ok := alloc()
			if !ok {
				return nil, false
			}
			rc.ops = append(rc.ops, regOp{kind: regNegate, dst: dst, a: src})
			vstack = append(vstack, dst)

		case BcReturn:
			if len(vstack) == 0 {
				return nil, false
			}
			src := vstack[len(vstack)-1]
			vstack = vstack[:len(vstack)-1]
			rc.ops = append(rc.ops, regOp{kind: regReturn, a: src})

		default:
			return nil, false
		}
	}
	rc.numVRegs = next
	return rc, true
}

// jitEmit is set by the architecture-specific file compiled into the
// build (jit_amd64.go, jit_arm64.go) or left nil by jit_stub.go on any
// other target, in which case CompileJIT always reports ineligible and
// every call runs through the VM instead.
var jitEmit func(rc *regChunk) ([]byte, bool)

// nativeTrampoline is implemented in assembly per architecture
// (jit_amd64.s, jit_arm64.s): it loads up to jitMaxArity float64 values
// from args into the platform's native floating-point argument registers
// and calls fn, which follows the platform C calling convention directly
// (the same convention the JIT-compiled body was generated to honor).
// Compiled code with fewer parameters simply never reads the unused
// leading registers, so one fixed-width trampoline covers every arity
// from 0 to jitMaxArity rather than nine separate stubs.
var nativeTrampoline func(fn uintptr, args *float64) float64

// JitFunction is a compiled chunk's native entry point: an executable
// memory page plus the arity needed to call into it through
// nativeTrampoline. The zero value is not usable; build one with
// CompileJIT.
type JitFunction struct {
	code  []byte
	fn    uintptr
	arity int
}

// CompileJIT attempts to lower chunk to native machine code. It reports
// false whenever the chunk falls outside the numeric-only eligible
// subset, the config has disabled the JIT or capped its arity
// below chunk's own, the current architecture has no emitter wired in, or
// code generation fails for any reason — in every one of those cases the
// caller is expected to fall back to the bytecode VM, exactly as if the
// JIT did not exist.
func CompileJIT(chunk *Chunk, cfg *Config) (*JitFunction, bool) {
	if cfg != nil && !cfg.GetBool("jit.enable") {
		return nil, false
	}
	maxArity := jitMaxArity
	if cfg != nil {
		if n := cfg.GetInt("jit.max-arity"); n >= 0 && n < maxArity {
			maxArity = n
		}
	}
	if jitEmit == nil || nativeTrampoline == nil {
		return nil, false
	}
	if chunk.ParamCount > maxArity || !eligibleForJIT(chunk) {
		return nil, false
	}
	rc, ok := lowerToRegisters(chunk)
	if !ok {
		return nil, false
	}
	return compileJITSafely(rc)
}

// compileJITSafely isolates jitEmit behind a recover the same way the
// pack's own JIT compiler guards unsupported constructs during lowering:
// any panic during code generation is treated as "this chunk didn't
// compile", never as a crash that should reach the caller.
func compileJITSafely(rc *regChunk) (jf *JitFunction, ok bool) {
	defer func() {
		if recover() != nil {
			jf, ok = nil, false
		}
	}()

	code, emitted := jitEmit(rc)
	if !emitted || len(code) == 0 {
		return nil, false
	}

	mem, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, false
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, false
	}

	return &JitFunction{code: mem, fn: uintptr(unsafe.Pointer(&mem[0])), arity: rc.arity}, true
}

// Close releases the executable page. A host caching a JitFunction per
// chunk should close every one it compiled once the owning program (and
// any VmState that might still be mid-call into it) is done running.
func (jf *JitFunction) Close() error {
	if jf == nil || jf.code == nil {
		return nil
	}
	err := unix.Munmap(jf.code)
	jf.code = nil
	return err
}

// Invoke calls into the compiled native code with args in parameter
// order. Extra trampoline slots beyond jf.arity are left zeroed; the
// compiled body never reads past its own parameter count.
func (jf *JitFunction) Invoke(args []float64) (float64, error) {
	if jf == nil || jf.code == nil {
		return 0, fmt.Errorf("jit: function not compiled")
	}
	if len(args) > jitMaxArity {
		return 0, fmt.Errorf("jit: %d arguments exceeds trampoline width %d", len(args), jitMaxArity)
	}
	var slots [jitMaxArity]float64
	copy(slots[:], args)
	return nativeTrampoline(jf.fn, &slots[0]), nil
}
