//go:build amd64

package ilo

import (
	"encoding/binary"
	"math"
)

// amd64 code generation, in the same raw-byte-emission style as the
// pack's own Scheme JIT: fixed instruction encodings written directly
// into a []byte, with any multi-byte immediate patched in afterward
// rather than routed through an assembler. Every regOp maps onto SSE2
// scalar-double instructions operating straight on the physical XMM
// registers its virtual register was assigned to — no spilling, since
// eligibleForJIT/lowerToRegisters already bounded live values to the
// eight the ABI gives us.
//
// Calling convention: compiled code is a plain SysV function, float64
// parameters in XMM0..XMM7, float64 result in XMM0. nativeTrampoline
// (jit_amd64.s) is what actually calls it — this file only emits the
// body.

func init() {
	jitEmit = amd64Emit
	nativeTrampoline = trampolineAMD64
}

// trampolineAMD64 is implemented in jit_amd64.s.
func trampolineAMD64(fn uintptr, args *float64) float64

type amd64Asm struct {
	code []byte
	// constPatches records a LoadConst's RIP-relative disp32 operand
	// offset so it can be filled in once the constant pool's final
	// position (right after the code) is known.
	constPatches []amd64ConstPatch
	consts       []float64
}

type amd64ConstPatch struct {
	instrEnd int // byte offset immediately after the 4-byte disp32 field
	constIdx int
}

func (a *amd64Asm) emit(b ...byte) { a.code = append(a.code, b...) }

func (a *amd64Asm) emitU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	a.emit(buf[:]...)
}

// modrmReg encodes a register-direct ModRM byte (mod=11).
func modrmReg(dst, src int) byte {
	return 0xC0 | byte(dst&7)<<3 | byte(src&7)
}

// movsdRegReg: MOVSD xmmDst, xmmSrc  (F2 0F 10 /r)
func (a *amd64Asm) movsdRegReg(dst, src int) {
	a.emit(0xF2, 0x0F, 0x10, modrmReg(dst, src))
}

// movsdLoadRSP: MOVSD xmmDst, [RSP+disp8]  (needs a SIB byte since RSP is
// the base register: mod=01 disp8, rm=100, SIB=00_100_100 no index).
func (a *amd64Asm) movsdLoadRSP(dst int, disp8 byte) {
	a.emit(0xF2, 0x0F, 0x10, 0x44|byte(dst&7)<<3, 0x24, disp8)
}

// movsdStoreRSP: MOVSD [RSP+disp8], xmmSrc  (F2 0F 11 /r)
func (a *amd64Asm) movsdStoreRSP(src int, disp8 byte) {
	a.emit(0xF2, 0x0F, 0x11, 0x44|byte(src&7)<<3, 0x24, disp8)
}

// movsdLoadRIP: MOVSD xmmDst, [RIP+disp32] — mod=00, rm=101 signals
// RIP-relative addressing with no SIB byte. disp32 is patched once the
// constant pool's offset from this instruction's end is known.
func (a *amd64Asm) movsdLoadRIP(dst int, constIdx int) {
	a.emit(0xF2, 0x0F, 0x10, 0x05|byte(dst&7)<<3)
	a.emitU32(0) // placeholder, patched in amd64Emit
	a.constPatches = append(a.constPatches, amd64ConstPatch{instrEnd: len(a.code), constIdx: constIdx})
}

func (a *amd64Asm) addsd(dst, src int) { a.emit(0xF2, 0x0F, 0x58, modrmReg(dst, src)) }
func (a *amd64Asm) subsd(dst, src int) { a.emit(0xF2, 0x0F, 0x5C, modrmReg(dst, src)) }
func (a *amd64Asm) mulsd(dst, src int) { a.emit(0xF2, 0x0F, 0x59, modrmReg(dst, src)) }
func (a *amd64Asm) divsd(dst, src int) { a.emit(0xF2, 0x0F, 0x5E, modrmReg(dst, src)) }

// xorps dst,dst zeroes an XMM register — used ahead of a SUBSD to
// implement negation (0 - x) without needing a separate sign-mask
// constant.
func (a *amd64Asm) xorpsZero(reg int) { a.emit(0x0F, 0x57, modrmReg(reg, reg)) }

// subRSP/addRSP: SUB/ADD RSP, imm32 (48 81 /5 and 48 81 /0; REX.W since
// RSP is a 64-bit operand).
func (a *amd64Asm) subRSP(imm uint32) {
	a.emit(0x48, 0x81, 0xEC)
	a.emitU32(imm)
}
func (a *amd64Asm) addRSP(imm uint32) {
	a.emit(0x48, 0x81, 0xC4)
	a.emitU32(imm)
}

func (a *amd64Asm) ret() { a.emit(0xC3) }

// amd64Emit lowers a regChunk to a standalone SysV function body: spill
// incoming XMM parameters into a small stack frame sized for
// chunk.LocalCount, execute every regOp on the XMM register its virtual
// register was assigned (vreg N <-> XMM N), then tear the frame down and
// return. Falls back to the VM (emitted=false) on anything it doesn't
// recognize, matching the rest of the toolchain's bail-to-fallback
// contract — in practice unreachable here since eligibleForJIT already
// filtered the input, but kept defensive rather than panicking on a
// lowering bug.
func amd64Emit(rc *regChunk) ([]byte, bool) {
	a := &amd64Asm{}

	frameBytes := uint32(rc.localCount * 8)
	// Align the frame to 16 bytes; harmless when already aligned, and
	// keeps any future extension (e.g. spilling to memory) on safe
	// ground without needing a second pass.
	if frameBytes%16 != 0 {
		frameBytes += 16 - frameBytes%16
	}
	if frameBytes > 0 {
		a.subRSP(frameBytes)
	}
	for i := 0; i < rc.arity; i++ {
		a.movsdStoreRSP(i, byte(i*8))
	}

	for _, op := range rc.ops {
		switch op.kind {
		case regLoadConst:
			idx := len(a.consts)
			a.consts = append(a.consts, op.constant)
			a.movsdLoadRIP(op.dst, idx)

		case regLoadLocal:
			if op.slot*8 > 255 {
				return nil, false
			}
			a.movsdLoadRSP(op.dst, byte(op.slot*8))

		case regStoreLocal:
			if op.slot*8 > 255 {
				return nil, false
			}
			a.movsdStoreRSP(op.a, byte(op.slot*8))

		case regBinOp:
			if op.dst != op.a {
				a.movsdRegReg(op.dst, op.a)
			}
			switch op.op {
			case BcAdd:
				a.addsd(op.dst, op.b)
			case BcSub:
				a.subsd(op.dst, op.b)
			case BcMul:
				a.mulsd(op.dst, op.b)
			case BcDiv:
				a.divsd(op.dst, op.b)
			default:
				return nil, false
			}

		case regNegate:
			if op.dst != op.a {
				a.xorpsZero(op.dst)
				a.subsd(op.dst, op.a)
			} else {
				// dst==a: can't zero dst without losing the operand: use
				// a scratch register outside the live set instead.
				scratch := (op.dst + 1) % jitMaxVReg
				a.movsdRegReg(scratch, op.a)
				a.xorpsZero(op.dst)
				a.subsd(op.dst, scratch)
			}

		case regReturn:
			if op.a != 0 {
				a.movsdRegReg(0, op.a)
			}
			if frameBytes > 0 {
				a.addRSP(frameBytes)
			}
			a.ret()

		default:
			return nil, false
		}
	}

	// Append the constant pool right after the code and patch every
	// RIP-relative load now that each constant's final offset is known.
	codeLen := len(a.code)
	for _, c := range a.consts {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(c))
		a.code = append(a.code, buf[:]...)
	}
	for _, p := range a.constPatches {
		constOffset := codeLen + p.constIdx*8
		disp := int64(constOffset) - int64(p.instrEnd)
		if disp < -(1 << 31) || disp >= (1<<31) {
			return nil, false
		}
		binary.LittleEndian.PutUint32(a.code[p.instrEnd-4:p.instrEnd], uint32(int32(disp)))
	}

	if len(a.code) == 0 {
		return nil, false
	}
	return a.code, true
}
