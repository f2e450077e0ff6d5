//go:build arm64

package ilo

import (
	"encoding/binary"
	"math"
)

// arm64 code generation. The pack carries no AArch64 JIT reference —
// 64f2f987_launix-de-memcp__scm-jit_amd64.go.go only emits x86-64 — so
// this file's instruction encodings are hand-derived directly from the
// AArch64 architecture reference rather than grounded on a pack example;
// the design it implements (regOp -> one physical D register per virtual
// register, no spilling) is the same as jit_amd64.go's, just retargeted.
// Calling convention: AAPCS64 passes float64 arguments in D0..D7 and
// returns in D0, the exact AArch64 analog of SysV's XMM0..XMM7.

func init() {
	jitEmit = arm64Emit
	nativeTrampoline = trampolineARM64
}

// trampolineARM64 is implemented in jit_arm64.s.
func trampolineARM64(fn uintptr, args *float64) float64

type arm64Asm struct {
	instrs []uint32
	// litPatches records a literal D-register load's instruction index
	// so its imm19 field can be filled in once the constant pool's
	// offset (appended as 4-byte-aligned words after the code) is known.
	litPatches []arm64LitPatch
	consts     []float64
}

type arm64LitPatch struct {
	instrIdx int
	constIdx int
	dst      int
}

func (a *arm64Asm) emit(instr uint32) { a.instrs = append(a.instrs, instr) }

// ldrDImm: LDR Dt, [Xn, #imm] — unsigned offset scaled by 8 (imm must be
// a non-negative multiple of 8, 0..32760).
func ldrDImm(rt, rn int, imm int) uint32 {
	return 0xFD400000 | uint32((imm/8)&0xFFF)<<10 | uint32(rn&31)<<5 | uint32(rt&31)
}

// strDImm: STR Dt, [Xn, #imm] — same addressing shape as ldrDImm.
func strDImm(rt, rn int, imm int) uint32 {
	return 0xFD000000 | uint32((imm/8)&0xFFF)<<10 | uint32(rn&31)<<5 | uint32(rt&31)
}

func fmovDD(rd, rn int) uint32 { return 0x1E604000 | uint32(rn&31)<<5 | uint32(rd&31) }
func faddD(rd, rn, rm int) uint32 {
	return 0x1E602800 | uint32(rm&31)<<16 | uint32(rn&31)<<5 | uint32(rd&31)
}
func fsubD(rd, rn, rm int) uint32 {
	return 0x1E603800 | uint32(rm&31)<<16 | uint32(rn&31)<<5 | uint32(rd&31)
}
func fmulD(rd, rn, rm int) uint32 {
	return 0x1E600800 | uint32(rm&31)<<16 | uint32(rn&31)<<5 | uint32(rd&31)
}
func fdivD(rd, rn, rm int) uint32 {
	return 0x1E601800 | uint32(rm&31)<<16 | uint32(rn&31)<<5 | uint32(rd&31)
}
func fnegD(rd, rn int) uint32 { return 0x1E614000 | uint32(rn&31)<<5 | uint32(rd&31) }

// subSPImm/addSPImm: SUB/ADD SP, SP, #imm12 (imm in 0..4095; the small
// frames this JIT ever builds never need the shifted-imm12 form).
func subSPImm(imm int) uint32 { return 0xD10003FF | uint32(imm&0xFFF)<<10 }
func addSPImm(imm int) uint32 { return 0x910003FF | uint32(imm&0xFFF)<<10 }

func ret() uint32 { return 0xD65F03C0 }

// ldrDLit: LDR Dt, label — PC-relative literal load, imm19 in units of 4
// bytes, patched once the constant pool's offset is known.
func ldrDLit(rt int, imm19 int32) uint32 {
	return 0x5C000000 | (uint32(imm19)&0x7FFFF)<<5 | uint32(rt&31)
}

const arm64SP = 31

func arm64Emit(rc *regChunk) ([]byte, bool) {
	a := &arm64Asm{}

	frameBytes := rc.localCount * 8
	if frameBytes%16 != 0 {
		frameBytes += 16 - frameBytes%16
	}
	if frameBytes > 0 {
		a.emit(subSPImm(frameBytes))
	}
	for i := 0; i < rc.arity; i++ {
		a.emit(strDImm(i, arm64SP, i*8))
	}

	for _, op := range rc.ops {
		switch op.kind {
		case regLoadConst:
			idx := len(a.consts)
			a.consts = append(a.consts, op.constant)
			a.litPatches = append(a.litPatches, arm64LitPatch{instrIdx: len(a.instrs), constIdx: idx, dst: op.dst})
			a.emit(0) // placeholder, patched below

		case regLoadLocal:
			if op.slot*8 > 32760 {
				return nil, false
			}
			a.emit(ldrDImm(op.dst, arm64SP, op.slot*8))

		case regStoreLocal:
			if op.slot*8 > 32760 {
				return nil, false
			}
			a.emit(strDImm(op.a, arm64SP, op.slot*8))

		case regBinOp:
			switch op.op {
			case BcAdd:
				a.emit(faddD(op.dst, op.a, op.b))
			case BcSub:
				a.emit(fsubD(op.dst, op.a, op.b))
			case BcMul:
				a.emit(fmulD(op.dst, op.a, op.b))
			case BcDiv:
				a.emit(fdivD(op.dst, op.a, op.b))
			default:
				return nil, false
			}

		case regNegate:
			a.emit(fnegD(op.dst, op.a))

		case regReturn:
			if op.a != 0 {
				a.emit(fmovDD(0, op.a))
			}
			if frameBytes > 0 {
				a.emit(addSPImm(frameBytes))
			}
			a.emit(ret())

		default:
			return nil, false
		}
	}

	if len(a.instrs) == 0 {
		return nil, false
	}

	// Constants land right after the code, as a run of naturally-aligned
	// 8-byte doubles; each literal load's imm19 counts 4-byte words from
	// that instruction's own address.
	codeWords := len(a.instrs)
	for _, p := range a.litPatches {
		constWordOffset := codeWords + p.constIdx*2 // 8 bytes = 2 words, per constant
		imm19 := int32(constWordOffset - p.instrIdx)
		a.instrs[p.instrIdx] = ldrDLit(p.dst, imm19)
	}

	buf := make([]byte, len(a.instrs)*4+len(a.consts)*8)
	for i, instr := range a.instrs {
		binary.LittleEndian.PutUint32(buf[i*4:], instr)
	}
	base := len(a.instrs) * 4
	for i, c := range a.consts {
		binary.LittleEndian.PutUint64(buf[base+i*8:], math.Float64bits(c))
	}
	return buf, true
}
