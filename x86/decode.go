package x86

import "github.com/pkg/errors"

// ErrInvalidInstruction is the single decoder-level failure. It covers
// duplicate prefixes, unassigned opcodes, empty group-extension slots,
// register forms where only memory is allowed, operand specs that are not
// implemented for the decoding mode, and byte streams that end
// mid-instruction.
var ErrInvalidInstruction = errors.New("invalid instruction")

// reader tracks four cursors over the bytes of one instruction. When
// fewer than 20 bytes remain in the caller's slice the bytes are copied
// into a local buffer padded with 0xCC, so reads never run off the slice;
// the consumed length is validated against the real byte count at the
// end of decoding instead.
type reader struct {
	buf   [20]byte
	src   []byte
	avail int // bytes genuinely present in the caller's slice

	prefix int // beginning of the instruction
	opcode int // first opcode byte
	modrm  int // ModR/M byte candidate
	end    int // one past the last byte consumed
}

func (rd *reader) init(code []byte) {
	if len(code) < len(rd.buf) {
		for i := range rd.buf {
			rd.buf[i] = 0xcc
		}
		copy(rd.buf[:], code)
		rd.src = rd.buf[:]
	} else {
		rd.src = code
	}
	rd.avail = len(code)
	rd.prefix, rd.opcode, rd.modrm, rd.end = 0, 0, 0, 0
}

func (rd *reader) peekByte() byte { return rd.src[rd.end] }

func (rd *reader) readByte() byte {
	b := rd.src[rd.end]
	rd.end++
	return b
}

func (rd *reader) readWord() uint16 {
	p := rd.src[rd.end:]
	rd.end += 2
	return uint16(p[0]) | uint16(p[1])<<8
}

func (rd *reader) readDword() uint32 {
	p := rd.src[rd.end:]
	rd.end += 4
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
}

func (rd *reader) readImm(size Size) uint32 {
	switch size {
	case Size8:
		return uint32(rd.readByte())
	case Size16:
		return uint32(rd.readWord())
	case Size32:
		return rd.readDword()
	}
	return 0
}

// readModRM returns the ModR/M byte, consuming it on first read only.
// Group resolution peeks it before the operand phase reads it again.
func (rd *reader) readModRM() byte {
	if rd.end == rd.modrm {
		rd.end++
	}
	return rd.src[rd.modrm]
}

func (rd *reader) markModRM() { rd.modrm = rd.end }

func modrmMod(b byte) int { return int(b>>6) & 3 }
func modrmReg(b byte) int { return int(b>>3) & 7 }
func modrmRM(b byte) int  { return int(b) & 7 }

// prefixGroup[c] is the legacy prefix group of byte c (1-4), 5 for the
// REX range (a prefix only in 64-bit mode), or 0 for non-prefix bytes.
var prefixGroup = [256]byte{
	0x26: 2, 0x2E: 2, 0x36: 2, 0x3E: 2, // segment overrides / branch hints
	0x40: 5, 0x41: 5, 0x42: 5, 0x43: 5, 0x44: 5, 0x45: 5, 0x46: 5, 0x47: 5,
	0x48: 5, 0x49: 5, 0x4A: 5, 0x4B: 5, 0x4C: 5, 0x4D: 5, 0x4E: 5, 0x4F: 5,
	0x64: 2, 0x65: 2,
	0x66: 3, // operand size
	0x67: 4, // address size
	0xF0: 1, // LOCK
	0xF2: 1, // REPNE
	0xF3: 1, // REPE
}

// segOverride maps a group-2 prefix byte to the segment register it
// selects.
var segOverride = map[byte]Reg{
	PrefixES: ES,
	PrefixCS: CS,
	PrefixSS: SS,
	PrefixDS: DS,
	PrefixFS: FS,
	PrefixGS: GS,
}

// decodePrefix walks the prefix bytes, storing at most one per group.
// A duplicate within a group fails the instruction.
func decodePrefix(rd *reader, insn *Insn, opt Options) error {
	for {
		c := rd.peekByte()
		grp := prefixGroup[c]
		if grp == 0 {
			return nil
		}
		if grp == 5 {
			// REX only exists in 64-bit mode; in 16-bit mode these
			// bytes are INC/DEC opcodes.
			if opt.Mode != Size64 {
				return nil
			}
			rd.readByte()
			insn.Prefix[grp-1] = c
			return nil
		}
		if insn.Prefix[grp-1] != 0 {
			return ErrInvalidInstruction
		}
		insn.Prefix[grp-1] = c
		rd.readByte()
	}
}

// decodeOpcode reads the opcode byte and resolves the encoding spec,
// consulting the ModR/M byte for opcode-extension groups.
func decodeOpcode(rd *reader, opt Options) insnSpec {
	c := rd.readByte()
	rd.markModRM()
	spec := opcodeMap[c]

	if spec.mnemonic() > 0 {
		return spec
	}
	if spec.mnemonic() < 0 {
		return resolveGroup(spec, c, rd.readModRM())
	}
	return opEmpty
}

// regConvertByte maps a machine-encoded byte register number (0-7) to its
// logical identifier; 4-7 become the high-byte views AH-BH.
func regConvertByte(number int) Reg {
	return MakeReg(RegTypeGeneral, number&3, Size8, number>>2)
}

// decodeMemOperand decodes a ModR/M-encoded register-or-memory operand.
// If regType is zero the operand must be a memory reference. Only the
// 16-bit addressing forms are implemented; the 32-bit ModR/M + SIB forms
// fail as invalid.
func decodeMemOperand(opr *Operand, rd *reader, size Size, regType int, mode Size) error {
	if mode != Size16 {
		return ErrInvalidInstruction
	}
	modrm := rd.readModRM()

	if modrmMod(modrm) == 3 {
		if regType == 0 {
			return ErrInvalidInstruction
		}
		if regType == RegTypeGeneral && size == Size8 {
			opr.Reg = regConvertByte(modrmRM(modrm))
		} else {
			opr.Reg = MakeReg(regType, modrmRM(modrm), size, 0)
		}
		opr.Type = OprReg
		opr.Size = size
		return nil
	}

	opr.Type = OprMem
	opr.Size = size
	opr.Mem.Scaling = 1

	// MOD = 00, RM = 110 is a pure disp16 reference.
	if modrmMod(modrm) == 0 && modrmRM(modrm) == 6 {
		opr.Mem.Segment = DS
		opr.Mem.Disp = int32(rd.readWord())
		return nil
	}

	// The eight base/index combinations. BP-based addressing defaults
	// to SS, everything else to DS.
	switch modrmRM(modrm) {
	case 0:
		opr.Mem.Segment, opr.Mem.Base, opr.Mem.Index = DS, BX, SI
	case 1:
		opr.Mem.Segment, opr.Mem.Base, opr.Mem.Index = DS, BX, DI
	case 2:
		opr.Mem.Segment, opr.Mem.Base, opr.Mem.Index = SS, BP, SI
	case 3:
		opr.Mem.Segment, opr.Mem.Base, opr.Mem.Index = SS, BP, DI
	case 4:
		opr.Mem.Segment, opr.Mem.Base = DS, SI
	case 5:
		opr.Mem.Segment, opr.Mem.Base = DS, DI
	case 6:
		opr.Mem.Segment, opr.Mem.Base = SS, BP
	case 7:
		opr.Mem.Segment, opr.Mem.Base = DS, BX
	}
	switch modrmMod(modrm) {
	case 1:
		opr.Mem.Disp = int32(int8(rd.readByte()))
	case 2:
		opr.Mem.Disp = int32(rd.readWord())
	}
	return nil
}

// decodeOperand decodes one operand according to its encoding spec.
func decodeOperand(opr *Operand, rd *reader, spec oprSpec, opt Options) error {
	mode := opt.Mode

	// Named registers.
	if spec >= oSegReg {
		var reg Reg
		number := int(spec & 0xf)
		switch spec & 0xf0 {
		case oSegReg:
			reg = MakeReg(RegTypeSegment, number, Size16, 0)
		case oByteReg:
			if number < 4 {
				reg = MakeReg(RegTypeGeneral, number, Size8, 0)
			} else {
				reg = MakeReg(RegTypeGeneral, number-4, Size8, RegOffsetHiByte)
			}
		case oWordReg:
			reg = MakeReg(RegTypeGeneral, number, Size16, 0)
		case oNativeReg:
			size := Size16
			if mode != Size16 {
				size = Size32
			}
			reg = MakeReg(RegTypeGeneral, number, size, 0)
		case oPtrReg:
			reg = MakeReg(RegTypeGeneral, number, mode, 0)
		default:
			return ErrInvalidInstruction
		}
		opr.Type = OprReg
		opr.Size = reg.Size()
		opr.Reg = reg
		return nil
	}

	// Literal immediates.
	if spec >= oImmN {
		opr.Type = OprImm
		opr.Size = Size8
		opr.Imm = uint32(spec - oImmN)
		return nil
	}

	switch spec {
	case oGb:
		opr.Type = OprReg
		opr.Size = Size8
		opr.Reg = regConvertByte(modrmReg(rd.readModRM()))

	case oGv:
		opr.Type = OprReg
		opr.Size = mode
		opr.Reg = MakeReg(RegTypeGeneral, modrmReg(rd.readModRM()), mode, 0)

	case oGw:
		opr.Type = OprReg
		opr.Size = Size16
		opr.Reg = MakeReg(RegTypeGeneral, modrmReg(rd.readModRM()), Size16, 0)

	case oGz:
		size := Size16
		if mode != Size16 {
			size = Size32
		}
		opr.Type = OprReg
		opr.Size = size
		opr.Reg = MakeReg(RegTypeGeneral, modrmReg(rd.readModRM()), size, 0)

	case oEb:
		return decodeMemOperand(opr, rd, Size8, RegTypeGeneral, mode)

	case oEv:
		return decodeMemOperand(opr, rd, mode, RegTypeGeneral, mode)

	case oEw:
		return decodeMemOperand(opr, rd, Size16, RegTypeGeneral, mode)

	case oSw:
		opr.Type = OprReg
		opr.Size = Size16
		opr.Reg = MakeReg(RegTypeSegment, modrmReg(rd.readModRM()), Size16, 0)

	case oIb:
		opr.Type = OprImm
		opr.Size = Size8
		opr.Imm = uint32(rd.readByte())

	case oIw:
		opr.Type = OprImm
		opr.Size = Size16
		opr.Imm = uint32(rd.readWord())

	case oIv:
		opr.Type = OprImm
		opr.Size = mode
		opr.Imm = rd.readImm(mode)

	case oIz:
		if mode == Size16 {
			opr.Type = OprImm
			opr.Size = Size16
			opr.Imm = uint32(rd.readWord())
		} else {
			opr.Type = OprImm
			opr.Size = Size32
			opr.Imm = rd.readDword()
		}

	case oJb:
		opr.Type = OprRel
		opr.Size = Size8
		opr.Rel = int32(int8(rd.readByte()))

	case oJz:
		if mode == Size16 {
			opr.Type = OprRel
			opr.Size = Size16
			opr.Rel = int32(int16(rd.readWord()))
		} else {
			opr.Type = OprRel
			opr.Size = Size32
			opr.Rel = int32(rd.readDword())
		}

	case oOb:
		// Direct memory address, no ModR/M; displacement is a word in
		// 16-bit mode.
		opr.Type = OprMem
		opr.Size = Size8
		opr.Mem = Mem{Segment: DS, Scaling: 1}
		if mode == Size16 {
			opr.Mem.Disp = int32(rd.readWord())
		} else {
			opr.Mem.Disp = int32(rd.readDword())
		}

	case oOv:
		opr.Type = OprMem
		opr.Size = mode
		opr.Mem = Mem{Segment: DS, Scaling: 1}
		if mode == Size16 {
			opr.Mem.Disp = int32(rd.readWord())
		} else {
			opr.Mem.Disp = int32(rd.readDword())
		}

	case oMp:
		return decodeMemOperand(opr, rd, mode, 0, mode)

	case oMa:
		return decodeMemOperand(opr, rd, mode, 0, mode)

	case oMw:
		return decodeMemOperand(opr, rd, Size16, 0, mode)

	case oAp:
		// Far pointer literal: offset (native size) then segment word.
		opr.Type = OprPtr
		opr.Size = mode
		opr.Off = rd.readImm(mode)
		opr.Seg = rd.readWord()

	default:
		// Fv, Ep, Rv, Xb/v/z, Yb/v/z and anything unassigned are not
		// implemented for this mode.
		return ErrInvalidInstruction
	}
	return nil
}

// Decode parses one instruction from the start of code. It returns the
// decoded instruction and the number of bytes consumed, or
// ErrInvalidInstruction. Decode is pure: the same bytes and mode always
// produce the same result.
func Decode(code []byte, opt Options) (Insn, int, error) {
	var insn Insn
	var rd reader

	if len(code) == 0 {
		return insn, 0, ErrInvalidInstruction
	}
	rd.init(code)

	if err := decodePrefix(&rd, &insn, opt); err != nil {
		return Insn{}, 0, err
	}
	rd.prefix = 0
	rd.opcode = rd.end

	spec := decodeOpcode(&rd, opt)
	if spec.mnemonic() <= 0 {
		return Insn{}, 0, ErrInvalidInstruction
	}
	insn.Op = spec.mnemonic()

	for i := 0; i < MaxOperands; i++ {
		s := spec.operand(i)
		if s == oNone {
			break
		}
		if err := decodeOperand(&insn.Opr[i], &rd, s, opt); err != nil {
			return Insn{}, 0, err
		}
	}

	// A group-2 prefix overrides the default segment of every memory
	// operand; the analyzer relies on seeing CS here when recognising
	// jump tables.
	if p := insn.Prefix[1]; p != 0 {
		if seg, ok := segOverride[p]; ok {
			for i := range insn.Opr {
				if insn.Opr[i].Type == OprMem {
					insn.Opr[i].Mem.Segment = seg
				}
			}
		}
	}

	count := rd.end - rd.prefix
	if count > rd.avail {
		// The byte slice ended mid-instruction; the padded buffer was
		// decoded past the real data.
		return Insn{}, 0, ErrInvalidInstruction
	}
	return insn, count, nil
}
