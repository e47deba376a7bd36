package x86

// Operand encoding specs, stored one byte each inside an insnSpec. Values
// below 0x80 are the generic forms from Intel Reference, Volume 2,
// Appendix A.2 (addressing method + data type). 0x80-0x8F encode a literal
// immediate whose value is the low nibble. 0x90 and above name a specific
// register, grouped by 0x10.
type oprSpec byte

const (
	oNone oprSpec = iota

	oAp
	oEb
	oEp
	oEv
	oEw
	oFv
	oGb
	oGv
	oGw
	oGz
	oIb
	oIv
	oIw
	oIz
	oJb
	oJz
	oMa
	oMp
	oMw
	oOb
	oOv
	oRv
	oSw
	oXb
	oXv
	oXz
	oYb
	oYv
	oYz
)

const (
	// literal immediates
	oImmN oprSpec = 0x80
	oImm1 oprSpec = oImmN + 1
	oImm3 oprSpec = oImmN + 3

	// segment registers
	oSegReg oprSpec = 0x90
	oES     oprSpec = oSegReg + 0
	oCS     oprSpec = oSegReg + 1
	oSS     oprSpec = oSegReg + 2
	oDS     oprSpec = oSegReg + 3

	// byte registers; +4 selects the high-byte forms
	oByteReg oprSpec = 0xa0
	oAL      oprSpec = oByteReg + 0
	oCL      oprSpec = oByteReg + 1
	oDL      oprSpec = oByteReg + 2
	oBL      oprSpec = oByteReg + 3
	oAH      oprSpec = oByteReg + 4
	oCH      oprSpec = oByteReg + 5
	oDH      oprSpec = oByteReg + 6
	oBH      oprSpec = oByteReg + 7

	// 16-bit registers
	oWordReg oprSpec = 0xb0
	oAX      oprSpec = oWordReg + 0
	oCX      oprSpec = oWordReg + 1
	oDX      oprSpec = oWordReg + 2
	oBX      oprSpec = oWordReg + 3
	oSP      oprSpec = oWordReg + 4
	oBP      oprSpec = oWordReg + 5
	oSI      oprSpec = oWordReg + 6
	oDI      oprSpec = oWordReg + 7

	// XX in 16-bit mode, EXX in 32- or 64-bit mode
	oNativeReg oprSpec = 0xc0
	oeAX       oprSpec = oNativeReg + 0
	oeCX       oprSpec = oNativeReg + 1
	oeDX       oprSpec = oNativeReg + 2
	oeBX       oprSpec = oNativeReg + 3
	oeSP       oprSpec = oNativeReg + 4
	oeBP       oprSpec = oNativeReg + 5
	oeSI       oprSpec = oNativeReg + 6
	oeDI       oprSpec = oNativeReg + 7

	// XX / EXX / RXX depending on mode
	oPtrReg oprSpec = 0xd0
	orAX    oprSpec = oPtrReg + 0
	orCX    oprSpec = oPtrReg + 1
	orDX    oprSpec = oPtrReg + 2
	orBX    oprSpec = oPtrReg + 3
	orSP    oprSpec = oPtrReg + 4
	orBP    oprSpec = oPtrReg + 5
	orSI    oprSpec = oPtrReg + 6
	orDI    oprSpec = oPtrReg + 7
)

// insnSpec packs one opcode-table entry into a 64-bit value:
//
//	byte 0-1: mnemonic as a signed 16-bit integer. Positive is a Mnemonic,
//	          zero is an invalid or prefix byte, negative selects an
//	          opcode-extension group.
//	byte 2-5: operand specs 1-4; zero means unused.
//
// The packing keeps the table a flat constant-like array.
type insnSpec uint64

// Opcode-extension group sentinels, stored as negative mnemonics.
const (
	extGroup1  Mnemonic = -1
	extGroup1A Mnemonic = -2
	extGroup2  Mnemonic = -3
	extGroup3  Mnemonic = -4
	extGroup4  Mnemonic = -5
	extGroup5  Mnemonic = -6
	extGroup11 Mnemonic = -7
)

func op3(m Mnemonic, a, b, c oprSpec) insnSpec {
	return insnSpec(uint16(m)) | insnSpec(a)<<16 | insnSpec(b)<<24 | insnSpec(c)<<32
}

func op2(m Mnemonic, a, b oprSpec) insnSpec { return op3(m, a, b, oNone) }

func op1(m Mnemonic, a oprSpec) insnSpec { return op2(m, a, oNone) }

func op0(m Mnemonic) insnSpec { return op1(m, oNone) }

const opEmpty insnSpec = 0

func (s insnSpec) mnemonic() Mnemonic { return Mnemonic(int16(s & 0xffff)) }

func (s insnSpec) operand(i int) oprSpec { return oprSpec(s >> (16 + i*8) & 0xff) }

// operands strips the mnemonic so the spec can be merged with a group
// entry that supplies only the mnemonic.
func (s insnSpec) operands() insnSpec { return s &^ 0xffff }

func (s insnSpec) merge(t insnSpec) insnSpec { return s | t }

// opcodeMap maps each one-byte opcode to its encoding spec.
// See Table A-2 in Intel Reference, Volume 2, Appendix A. Empty entries
// are prefixes, escape bytes, or unassigned opcodes.
var opcodeMap = [256]insnSpec{
	0x00: op2(IADD, oEb, oGb),
	0x01: op2(IADD, oEv, oGv),
	0x02: op2(IADD, oGb, oEb),
	0x03: op2(IADD, oGv, oEv),
	0x04: op2(IADD, oAL, oIb),
	0x05: op2(IADD, orAX, oIz),
	0x06: op1(IPUSH, oES),
	0x07: op1(IPOP, oES),
	0x08: op2(IOR, oEb, oGb),
	0x09: op2(IOR, oEv, oGv),
	0x0A: op2(IOR, oGb, oEb),
	0x0B: op2(IOR, oGv, oEv),
	0x0C: op2(IOR, oAL, oIb),
	0x0D: op2(IOR, orAX, oIz),
	0x0E: op1(IPUSH, oCS),
	0x0F: opEmpty, // 2-byte escape

	0x10: op2(IADC, oEb, oGb),
	0x11: op2(IADC, oEv, oGv),
	0x12: op2(IADC, oGb, oEb),
	0x13: op2(IADC, oGv, oEv),
	0x14: op2(IADC, oAL, oIb),
	0x15: op2(IADC, orAX, oIz),
	0x16: op1(IPUSH, oSS),
	0x17: op1(IPOP, oSS),
	0x18: op2(ISBB, oEb, oGb),
	0x19: op2(ISBB, oEv, oGv),
	0x1A: op2(ISBB, oGb, oEb),
	0x1B: op2(ISBB, oGv, oEv),
	0x1C: op2(ISBB, oAL, oIb),
	0x1D: op2(ISBB, orAX, oIz),
	0x1E: op1(IPUSH, oDS),
	0x1F: op1(IPOP, oDS),

	0x20: op2(IAND, oEb, oGb),
	0x21: op2(IAND, oEv, oGv),
	0x22: op2(IAND, oGb, oEb),
	0x23: op2(IAND, oGv, oEv),
	0x24: op2(IAND, oAL, oIb),
	0x25: op2(IAND, orAX, oIz),
	0x26: opEmpty, // SEG=ES (prefix)
	0x27: op0(IDAA),
	0x28: op2(ISUB, oEb, oGb),
	0x29: op2(ISUB, oEv, oGv),
	0x2A: op2(ISUB, oGb, oEb),
	0x2B: op2(ISUB, oGv, oEv),
	0x2C: op2(ISUB, oAL, oIb),
	0x2D: op2(ISUB, orAX, oIz),
	0x2E: opEmpty, // SEG=CS (prefix)
	0x2F: op0(IDAS),

	0x30: op2(IXOR, oEb, oGb),
	0x31: op2(IXOR, oEv, oGv),
	0x32: op2(IXOR, oGb, oEb),
	0x33: op2(IXOR, oGv, oEv),
	0x34: op2(IXOR, oAL, oIb),
	0x35: op2(IXOR, orAX, oIz),
	0x36: opEmpty, // SEG=SS (prefix)
	0x37: op0(IAAA),
	0x38: op2(ICMP, oEb, oGb),
	0x39: op2(ICMP, oEv, oGv),
	0x3A: op2(ICMP, oGb, oEb),
	0x3B: op2(ICMP, oGv, oEv),
	0x3C: op2(ICMP, oAL, oIb),
	0x3D: op2(ICMP, orAX, oIz),
	0x3E: opEmpty, // SEG=DS (prefix)
	0x3F: op0(IAAS),

	// 40-4F double as REX prefixes in 64-bit mode.
	0x40: op1(IINC, oeAX),
	0x41: op1(IINC, oeCX),
	0x42: op1(IINC, oeDX),
	0x43: op1(IINC, oeBX),
	0x44: op1(IINC, oeSP),
	0x45: op1(IINC, oeBP),
	0x46: op1(IINC, oeSI),
	0x47: op1(IINC, oeDI),
	0x48: op1(IDEC, oeAX),
	0x49: op1(IDEC, oeCX),
	0x4A: op1(IDEC, oeDX),
	0x4B: op1(IDEC, oeBX),
	0x4C: op1(IDEC, oeSP),
	0x4D: op1(IDEC, oeBP),
	0x4E: op1(IDEC, oeSI),
	0x4F: op1(IDEC, oeDI),

	0x50: op1(IPUSH, orAX),
	0x51: op1(IPUSH, orCX),
	0x52: op1(IPUSH, orDX),
	0x53: op1(IPUSH, orBX),
	0x54: op1(IPUSH, orSP),
	0x55: op1(IPUSH, orBP),
	0x56: op1(IPUSH, orSI),
	0x57: op1(IPUSH, orDI),
	0x58: op1(IPOP, orAX),
	0x59: op1(IPOP, orCX),
	0x5A: op1(IPOP, orDX),
	0x5B: op1(IPOP, orBX),
	0x5C: op1(IPOP, orSP),
	0x5D: op1(IPOP, orBP),
	0x5E: op1(IPOP, orSI),
	0x5F: op1(IPOP, orDI),

	0x60: op0(IPUSHA),
	0x61: op0(IPOPA),
	0x62: op2(IBOUND, oGv, oMa),
	0x63: op2(IARPL, oEw, oGw),
	0x64: opEmpty, // SEG=FS (prefix)
	0x65: opEmpty, // SEG=GS (prefix)
	0x66: opEmpty, // operand size (prefix)
	0x67: opEmpty, // address size (prefix)
	0x68: op1(IPUSH, oIz),
	0x69: op3(IIMUL, oGv, oEv, oIz),
	0x6A: op1(IPUSH, oIb),
	0x6B: op3(IIMUL, oGv, oEv, oIb),
	0x6C: op2(IINS, oYb, oDX),
	0x6D: op2(IINS, oYz, oDX),
	0x6E: op2(IOUTS, oDX, oXb),
	0x6F: op2(IOUTS, oDX, oXz),

	0x70: op1(IJO, oJb),
	0x71: op1(IJNO, oJb),
	0x72: op1(IJB, oJb),
	0x73: op1(IJNB, oJb),
	0x74: op1(IJE, oJb),
	0x75: op1(IJNE, oJb),
	0x76: op1(IJBE, oJb),
	0x77: op1(IJNBE, oJb),
	0x78: op1(IJS, oJb),
	0x79: op1(IJNS, oJb),
	0x7A: op1(IJP, oJb),
	0x7B: op1(IJNP, oJb),
	0x7C: op1(IJL, oJb),
	0x7D: op1(IJNL, oJb),
	0x7E: op1(IJLE, oJb),
	0x7F: op1(IJNLE, oJb),

	0x80: op2(extGroup1, oEb, oIb),
	0x81: op2(extGroup1, oEv, oIz),
	0x82: op2(extGroup1, oEb, oIb),
	0x83: op2(extGroup1, oEv, oIb),
	0x84: op2(ITEST, oEb, oGb),
	0x85: op2(ITEST, oEv, oGv),
	0x86: op2(IXCHG, oEb, oGb),
	0x87: op2(IXCHG, oEv, oGv),
	0x88: op2(IMOV, oEb, oGb),
	0x89: op2(IMOV, oEv, oGv),
	0x8A: op2(IMOV, oGb, oEb),
	0x8B: op2(IMOV, oGv, oEv),
	0x8C: op2(IMOV, oEv, oSw),
	0x8D: op2(ILEA, oGv, oMp),
	0x8E: op2(IMOV, oSw, oEw),
	0x8F: op0(extGroup1A), // POP Ev; no operand specs, so POP decodes bare

	0x90: op0(INOP), // also XCHG r8, rAX / PAUSE (F3)
	0x91: op2(IXCHG, orCX, orAX),
	0x92: op2(IXCHG, orDX, orAX),
	0x93: op2(IXCHG, orBX, orAX),
	0x94: op2(IXCHG, orSP, orAX),
	0x95: op2(IXCHG, orBP, orAX),
	0x96: op2(IXCHG, orSI, orAX),
	0x97: op2(IXCHG, orDI, orAX),
	0x98: op0(ICBW),
	0x99: op0(ICWD),
	0x9A: op1(ICALLF, oAp),
	0x9B: op0(IFWAIT),
	0x9C: op1(IPUSHF, oFv),
	0x9D: op1(IPOPF, oFv),
	0x9E: op0(ISAHF),
	0x9F: op0(ILAHF),

	0xA0: op2(IMOV, oAL, oOb),
	0xA1: op2(IMOV, orAX, oOv),
	0xA2: op2(IMOV, oOb, oAL),
	0xA3: op2(IMOV, oOv, orAX),
	0xA4: op2(IMOVS, oYb, oXb),
	0xA5: op2(IMOVS, oYv, oXv),
	0xA6: op2(ICMPS, oXb, oYb),
	0xA7: op2(ICMPS, oXv, oYv),
	0xA8: op2(ITEST, oAL, oIb),
	0xA9: op2(ITEST, orAX, oIz),
	0xAA: op2(ISTOS, oYb, oAL),
	0xAB: op2(ISTOS, oYv, orAX),
	0xAC: op2(ILODS, oAL, oXb),
	0xAD: op2(ILODS, orAX, oXv),
	0xAE: op2(ISCAS, oAL, oYb),
	0xAF: op2(ISCAS, orAX, oXv),

	0xB0: op2(IMOV, oAL, oIb),
	0xB1: op2(IMOV, oCL, oIb),
	0xB2: op2(IMOV, oDL, oIb),
	0xB3: op2(IMOV, oBL, oIb),
	0xB4: op2(IMOV, oAH, oIb),
	0xB5: op2(IMOV, oCH, oIb),
	0xB6: op2(IMOV, oDH, oIb),
	0xB7: op2(IMOV, oBH, oIb),
	0xB8: op2(IMOV, orAX, oIv),
	0xB9: op2(IMOV, orCX, oIv),
	0xBA: op2(IMOV, orDX, oIv),
	0xBB: op2(IMOV, orBX, oIv),
	0xBC: op2(IMOV, orSP, oIv),
	0xBD: op2(IMOV, orBP, oIv),
	0xBE: op2(IMOV, orSI, oIv),
	0xBF: op2(IMOV, orDI, oIv),

	0xC0: op2(extGroup2, oEb, oIb),
	0xC1: op2(extGroup2, oEv, oIb),
	0xC2: op1(IRETN, oIw),
	0xC3: op0(IRETN),
	0xC4: op2(ILES, oGz, oMp),
	0xC5: op2(ILDS, oGz, oMp),
	0xC6: op2(extGroup11, oEb, oIb),
	0xC7: op2(extGroup11, oEv, oIz),
	0xC8: op2(IENTER, oIw, oIb),
	0xC9: op0(ILEAVE),
	0xCA: op1(IRETF, oIw),
	0xCB: op0(IRETF),
	0xCC: op1(IINT, oImm3),
	0xCD: op1(IINT, oIb),
	0xCE: op0(IINTO),
	0xCF: op0(IIRET),

	0xD0: op2(extGroup2, oEb, oImm1),
	0xD1: op2(extGroup2, oEv, oImm1),
	0xD2: op2(extGroup2, oEb, oCL),
	0xD3: op2(extGroup2, oEv, oCL),
	0xD4: op1(IAAM, oIb),
	0xD5: op1(IAAD, oIb),
	0xD6: opEmpty,
	0xD7: op0(IXLAT),
	// D8-DF escape to x87 fpu
	0xD8: opEmpty,
	0xD9: opEmpty,
	0xDA: opEmpty,
	0xDB: opEmpty,
	0xDC: opEmpty,
	0xDD: opEmpty,
	0xDE: opEmpty,
	0xDF: opEmpty,

	0xE0: op1(ILOOPNE, oJb),
	0xE1: op1(ILOOPE, oJb),
	0xE2: op1(ILOOP, oJb),
	0xE3: op1(IJCXZ, oJb),
	0xE4: op2(IIN, oAL, oIb),
	0xE5: op2(IIN, oeAX, oIb),
	0xE6: op2(IOUT, oIb, oAL),
	0xE7: op2(IOUT, oIb, oeAX),
	0xE8: op1(ICALL, oJz),
	0xE9: op1(IJMP, oJz), // near
	0xEA: op1(IJMP, oAp), // far
	0xEB: op1(IJMP, oJb), // short
	0xEC: op2(IIN, oAL, oDX),
	0xED: op2(IIN, oeAX, oDX),
	0xEE: op2(IOUT, oDX, oAL),
	0xEF: op2(IOUT, oDX, oeAX),

	0xF0: opEmpty, // LOCK (prefix)
	0xF1: opEmpty,
	0xF2: opEmpty, // REPNE (prefix)
	0xF3: opEmpty, // REPE (prefix)
	0xF4: op0(IHLT),
	0xF5: op0(ICMC),
	0xF6: op1(extGroup3, oEb),
	0xF7: op1(extGroup3, oEv),
	0xF8: op0(ICLC),
	0xF9: op0(ISTC),
	0xFA: op0(ICLI),
	0xFB: op0(ISTI),
	0xFC: op0(ICLD),
	0xFD: op0(ISTD),
	0xFE: op0(extGroup4), // INC/DEC
	0xFF: op0(extGroup5),
}

// Per-group tables indexed by the reg field of ModR/M. Groups 1, 1A and 2
// supply only the mnemonic; the operand specs come from the primary entry.
var (
	group1Map = [8]insnSpec{
		op0(IADD), op0(IOR), op0(IADC), op0(ISBB),
		op0(IAND), op0(ISUB), op0(IXOR), op0(ICMP),
	}

	group1AMap = [8]insnSpec{op0(IPOP)}

	group2Map = [8]insnSpec{
		op0(IROL), op0(IROR), op0(IRCL), op0(IRCR),
		op0(ISHL), op0(ISHR), opEmpty, op0(ISAR),
	}

	// Group 3 replaces the whole spec; the two base opcodes carry
	// different widths.
	group3MapF6 = [8]insnSpec{
		op2(ITEST, oEb, oIb),
		opEmpty,
		op1(INOT, oEb),
		op1(INEG, oEb),
		op2(IMUL, oEb, oAL),
		op2(IIMUL, oEb, oAL),
		op2(IDIV, oEb, oAL),
		op2(IIDIV, oEb, oAL),
	}
	group3MapF7 = [8]insnSpec{
		op2(ITEST, oEv, oIz),
		opEmpty,
		op1(INOT, oEv),
		op1(INEG, oEv),
		op2(IMUL, oEv, orAX),
		op2(IIMUL, oEv, orAX),
		op2(IDIV, oEv, orAX),
		op2(IIDIV, oEv, orAX),
	}

	group4Map = [8]insnSpec{
		op1(IINC, oEb), op1(IDEC, oEb),
	}

	group5Map = [8]insnSpec{
		op1(IINC, oEb), op1(IDEC, oEb), op1(ICALLN, oEv), op1(ICALLF, oEp),
		op1(IJMPN, oEv), op1(IJMPF, oMp), op1(IPUSH, oEv), opEmpty,
	}
)

// resolveGroup maps a group-sentinel spec to the concrete spec selected by
// the reg field of the ModR/M byte. An invalid slot yields a spec whose
// mnemonic is zero.
func resolveGroup(spec insnSpec, opcode, modrm byte) insnSpec {
	reg := modrmReg(modrm)
	oprs := spec.operands()

	switch spec.mnemonic() {
	case extGroup1:
		return group1Map[reg].merge(oprs)
	case extGroup1A:
		return group1AMap[reg].merge(oprs)
	case extGroup2:
		return group2Map[reg].merge(oprs)
	case extGroup3:
		if opcode == 0xF6 {
			return group3MapF6[reg]
		}
		return group3MapF7[reg]
	case extGroup4:
		return group4Map[reg]
	case extGroup5:
		return group5Map[reg]
	case extGroup11:
		if reg == 0 {
			if opcode == 0xC6 {
				return op2(IMOV, oEb, oIb)
			}
			return op2(IMOV, oEv, oIz)
		}
		if modrm == 0xF8 {
			if opcode == 0xC6 {
				return op1(IXABORT, oIb)
			}
			return op1(IXBEGIN, oJz)
		}
		return opEmpty
	}
	return opEmpty
}
