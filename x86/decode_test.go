package x86

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mode16 = Options{Mode: Size16}

func decode16(t *testing.T, code ...byte) (Insn, int) {
	t.Helper()
	insn, count, err := Decode(code, mode16)
	require.NoError(t, err)
	return insn, count
}

func TestDecodeShortJump(t *testing.T) {
	insn, count := decode16(t, 0xEB, 0x05)

	assert.Equal(t, IJMP, insn.Op)
	assert.Equal(t, 2, count)
	assert.Equal(t, OprRel, insn.Opr[0].Type)
	assert.Equal(t, int32(5), insn.Opr[0].Rel)
	assert.Equal(t, Size8, insn.Opr[0].Size)
}

func TestDecodeBackwardJump(t *testing.T) {
	insn, count := decode16(t, 0xEB, 0xFE) // jmp $
	assert.Equal(t, 2, count)
	assert.Equal(t, int32(-2), insn.Opr[0].Rel)

	insn, count = decode16(t, 0xE8, 0xFD, 0xFF) // call $
	assert.Equal(t, ICALL, insn.Op)
	assert.Equal(t, 3, count)
	assert.Equal(t, OprRel, insn.Opr[0].Type)
	assert.Equal(t, int32(-3), insn.Opr[0].Rel)
}

func TestDecodeFarCall(t *testing.T) {
	insn, count := decode16(t, 0x9A, 0x00, 0x10, 0x00, 0x20)

	assert.Equal(t, ICALLF, insn.Op)
	assert.Equal(t, 5, count)
	assert.Equal(t, OprPtr, insn.Opr[0].Type)
	assert.Equal(t, uint16(0x2000), insn.Opr[0].Seg)
	assert.Equal(t, uint32(0x1000), insn.Opr[0].Off)
}

func TestDecodeFarJump(t *testing.T) {
	insn, count := decode16(t, 0xEA, 0x00, 0x10, 0x00, 0x20)

	assert.Equal(t, IJMP, insn.Op)
	assert.Equal(t, 5, count)
	assert.Equal(t, OprPtr, insn.Opr[0].Type)
}

func TestDecodeGroup1Immediate(t *testing.T) {
	// add ax, 5 through the group-1 extension at reg=0
	insn, count := decode16(t, 0x83, 0xC0, 0x05)

	require.Equal(t, IADD, insn.Op)
	assert.Equal(t, 3, count)
	assert.Equal(t, OprReg, insn.Opr[0].Type)
	assert.Equal(t, AX, insn.Opr[0].Reg)
	assert.Equal(t, OprImm, insn.Opr[1].Type)
	assert.Equal(t, uint32(5), insn.Opr[1].Imm)
}

func TestDecodeGroup1AllSlots(t *testing.T) {
	want := []Mnemonic{IADD, IOR, IADC, ISBB, IAND, ISUB, IXOR, ICMP}
	for reg, m := range want {
		modrm := byte(0xC0 | reg<<3) // mod=3, rm=0
		insn, count := decode16(t, 0x80, modrm, 0x01)
		assert.Equal(t, m, insn.Op, "reg=%d", reg)
		assert.Equal(t, 3, count)
		assert.Equal(t, AL, insn.Opr[0].Reg)
	}
}

func TestDecodeGroup2(t *testing.T) {
	insn, count := decode16(t, 0xD0, 0xE0) // shl al, 1
	assert.Equal(t, ISHL, insn.Op)
	assert.Equal(t, 2, count)
	assert.Equal(t, AL, insn.Opr[0].Reg)
	assert.Equal(t, uint32(1), insn.Opr[1].Imm)

	insn, _ = decode16(t, 0xD2, 0xF8) // sar al, cl
	assert.Equal(t, ISAR, insn.Op)
	assert.Equal(t, CL, insn.Opr[1].Reg)

	// slot 6 is empty
	_, _, err := Decode([]byte{0xD0, 0xF0}, mode16)
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestDecodeGroup3WidthSplit(t *testing.T) {
	insn, _ := decode16(t, 0xF6, 0xD8) // neg al
	assert.Equal(t, INEG, insn.Op)
	assert.Equal(t, AL, insn.Opr[0].Reg)

	insn, _ = decode16(t, 0xF7, 0xD8) // neg ax
	assert.Equal(t, INEG, insn.Op)
	assert.Equal(t, AX, insn.Opr[0].Reg)

	insn, count := decode16(t, 0xF7, 0xC0, 0x34, 0x12) // test ax, 1234h
	assert.Equal(t, ITEST, insn.Op)
	assert.Equal(t, 4, count)
	assert.Equal(t, uint32(0x1234), insn.Opr[1].Imm)

	// slot 1 is empty in both tables
	_, _, err := Decode([]byte{0xF6, 0xC8}, mode16)
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestDecodeGroup4(t *testing.T) {
	insn, count := decode16(t, 0xFE, 0xC0) // inc al
	assert.Equal(t, IINC, insn.Op)
	assert.Equal(t, 2, count)
	assert.Equal(t, AL, insn.Opr[0].Reg)

	insn, _ = decode16(t, 0xFE, 0xC8) // dec al
	assert.Equal(t, IDEC, insn.Op)

	// group 4 has only the byte forms
	_, _, err := Decode([]byte{0xFE, 0xD0}, mode16)
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestDecodeGroup5(t *testing.T) {
	insn, count := decode16(t, 0xFF, 0x26, 0x34, 0x12) // jmpn word ptr [1234h]
	assert.Equal(t, IJMPN, insn.Op)
	assert.Equal(t, 4, count)
	assert.Equal(t, OprMem, insn.Opr[0].Type)
	assert.Equal(t, int32(0x1234), insn.Opr[0].Mem.Disp)

	insn, _ = decode16(t, 0xFF, 0xE0) // jmpn ax
	assert.Equal(t, IJMPN, insn.Op)
	assert.Equal(t, AX, insn.Opr[0].Reg)

	insn, _ = decode16(t, 0xFF, 0x30) // push word ptr [bx+si]
	assert.Equal(t, IPUSH, insn.Op)

	// slot 7 is empty
	_, _, err := Decode([]byte{0xFF, 0xF8}, mode16)
	assert.ErrorIs(t, err, ErrInvalidInstruction)

	// slot 3 (callf Ep) is not implemented in 16-bit mode
	_, _, err = Decode([]byte{0xFF, 0x1E, 0x34, 0x12}, mode16)
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestDecodeGroup11(t *testing.T) {
	insn, count := decode16(t, 0xC6, 0x06, 0x34, 0x12, 0x7F) // mov byte ptr [1234h], 7fh
	assert.Equal(t, IMOV, insn.Op)
	assert.Equal(t, 5, count)
	assert.Equal(t, uint32(0x7F), insn.Opr[1].Imm)

	insn, count = decode16(t, 0xC6, 0xF8, 0x05) // xabort 5
	assert.Equal(t, IXABORT, insn.Op)
	assert.Equal(t, 3, count)

	insn, count = decode16(t, 0xC7, 0xF8, 0x10, 0x20) // xbegin +2010h
	assert.Equal(t, IXBEGIN, insn.Op)
	assert.Equal(t, 4, count)
	assert.Equal(t, OprRel, insn.Opr[0].Type)

	_, _, err := Decode([]byte{0xC6, 0xC8, 0x01}, mode16)
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestDecodeModRM16Forms(t *testing.T) {
	cases := []struct {
		name string
		code []byte
		mem  Mem
	}{
		{"bx+si", []byte{0x8B, 0x00}, Mem{Segment: DS, Base: BX, Index: SI, Scaling: 1}},
		{"bx+di", []byte{0x8B, 0x01}, Mem{Segment: DS, Base: BX, Index: DI, Scaling: 1}},
		{"bp+si", []byte{0x8B, 0x02}, Mem{Segment: SS, Base: BP, Index: SI, Scaling: 1}},
		{"bp+di", []byte{0x8B, 0x03}, Mem{Segment: SS, Base: BP, Index: DI, Scaling: 1}},
		{"si", []byte{0x8B, 0x04}, Mem{Segment: DS, Base: SI, Scaling: 1}},
		{"di", []byte{0x8B, 0x05}, Mem{Segment: DS, Base: DI, Scaling: 1}},
		{"direct", []byte{0x8B, 0x06, 0x34, 0x12}, Mem{Segment: DS, Scaling: 1, Disp: 0x1234}},
		{"bx", []byte{0x8B, 0x07}, Mem{Segment: DS, Base: BX, Scaling: 1}},
		{"bp+disp8", []byte{0x8B, 0x46, 0xFE}, Mem{Segment: SS, Base: BP, Scaling: 1, Disp: -2}},
		{"bx+disp8", []byte{0x8B, 0x47, 0x08}, Mem{Segment: DS, Base: BX, Scaling: 1, Disp: 8}},
		{"bx+disp16", []byte{0x8B, 0x87, 0x00, 0x80}, Mem{Segment: DS, Base: BX, Scaling: 1, Disp: 0x8000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			insn, count := decode16(t, tc.code...)
			require.Equal(t, IMOV, insn.Op)
			assert.Equal(t, len(tc.code), count)
			require.Equal(t, OprMem, insn.Opr[1].Type)
			assert.Equal(t, tc.mem, insn.Opr[1].Mem)
		})
	}
}

func TestDecodeModRMRegisterForms(t *testing.T) {
	insn, _ := decode16(t, 0x8B, 0xC3) // mov ax, bx
	assert.Equal(t, AX, insn.Opr[0].Reg)
	assert.Equal(t, BX, insn.Opr[1].Reg)

	// byte registers 4-7 map to the AH-BH high-byte views
	insn, _ = decode16(t, 0x8A, 0xE5) // mov ah, ch
	assert.Equal(t, AH, insn.Opr[0].Reg)
	assert.Equal(t, CH, insn.Opr[1].Reg)
}

func TestDecodeSegmentOverride(t *testing.T) {
	insn, count := decode16(t, 0x2E, 0x8B, 0x07) // mov ax, word ptr cs:[bx]
	assert.Equal(t, 3, count)
	assert.Equal(t, byte(PrefixCS), insn.Prefix[1])
	require.Equal(t, OprMem, insn.Opr[1].Type)
	assert.Equal(t, CS, insn.Opr[1].Mem.Segment)

	insn, _ = decode16(t, 0x26, 0x8B, 0x46, 0x02) // es overrides the ss default
	assert.Equal(t, ES, insn.Opr[1].Mem.Segment)
}

func TestDecodeSegmentRegisterMove(t *testing.T) {
	insn, _ := decode16(t, 0x8E, 0xD8) // mov ds, ax
	assert.Equal(t, IMOV, insn.Op)
	assert.Equal(t, DS, insn.Opr[0].Reg)
	assert.Equal(t, AX, insn.Opr[1].Reg)
}

func TestDecodeDirectOffsetForms(t *testing.T) {
	insn, count := decode16(t, 0xA0, 0x34, 0x12) // mov al, byte ptr [1234h]
	assert.Equal(t, 3, count)
	assert.Equal(t, AL, insn.Opr[0].Reg)
	require.Equal(t, OprMem, insn.Opr[1].Type)
	assert.Equal(t, Size8, insn.Opr[1].Size)
	assert.Equal(t, int32(0x1234), insn.Opr[1].Mem.Disp)
	assert.Equal(t, RegNone, insn.Opr[1].Mem.Base)

	insn, _ = decode16(t, 0xA3, 0x34, 0x12) // mov word ptr [1234h], ax
	assert.Equal(t, Size16, insn.Opr[0].Size)
}

func TestDecodeImmediateForms(t *testing.T) {
	insn, count := decode16(t, 0xB8, 0x34, 0x12) // mov ax, 1234h
	assert.Equal(t, 3, count)
	assert.Equal(t, uint32(0x1234), insn.Opr[1].Imm)

	insn, count = decode16(t, 0xB4, 0x09) // mov ah, 9
	assert.Equal(t, 2, count)
	assert.Equal(t, AH, insn.Opr[0].Reg)

	insn, count = decode16(t, 0xCC) // int 3 (literal immediate)
	assert.Equal(t, IINT, insn.Op)
	assert.Equal(t, 1, count)
	assert.Equal(t, uint32(3), insn.Opr[0].Imm)

	insn, count = decode16(t, 0xC2, 0x04, 0x00) // retn 4
	assert.Equal(t, IRETN, insn.Op)
	assert.Equal(t, 3, count)
	assert.Equal(t, uint32(4), insn.Opr[0].Imm)
}

func TestDecodeMemoryOnlyOperands(t *testing.T) {
	insn, count := decode16(t, 0xC4, 0x07) // les ax..bx pair from [bx]
	assert.Equal(t, ILES, insn.Op)
	assert.Equal(t, 2, count)

	// mod=3 is illegal for an M-form operand
	_, _, err := Decode([]byte{0xC4, 0xC0}, mode16)
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestDecodeGroup1AQuirk(t *testing.T) {
	// The 8F entry carries no operand specs, so POP decodes bare.
	insn, count := decode16(t, 0x8F, 0xC0)
	assert.Equal(t, IPOP, insn.Op)
	assert.Equal(t, 2, count)
	assert.Equal(t, OprNone, insn.Opr[0].Type)
}

func TestDecodeDuplicatePrefixFails(t *testing.T) {
	_, _, err := Decode([]byte{0xF0, 0xF0, 0x90}, mode16)
	assert.ErrorIs(t, err, ErrInvalidInstruction)

	// two group-2 prefixes, even different ones
	_, _, err = Decode([]byte{0x26, 0x2E, 0x8B, 0x07}, mode16)
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestDecodePrefixedInstruction(t *testing.T) {
	insn, count := decode16(t, 0xF0, 0x80, 0x0E, 0x34, 0x12, 0x01) // lock or byte ptr [1234h], 1
	assert.Equal(t, IOR, insn.Op)
	assert.Equal(t, 6, count)
	assert.Equal(t, byte(PrefixLOCK), insn.Prefix[0])
}

func TestDecodeRexBytesAreOpcodesIn16BitMode(t *testing.T) {
	insn, count := decode16(t, 0x40) // inc ax
	assert.Equal(t, IINC, insn.Op)
	assert.Equal(t, 1, count)
	assert.Equal(t, AX, insn.Opr[0].Reg)

	insn, _ = decode16(t, 0x4B) // dec bx
	assert.Equal(t, IDEC, insn.Op)
	assert.Equal(t, BX, insn.Opr[0].Reg)
}

func TestDecodeInvalidOpcodes(t *testing.T) {
	for _, code := range [][]byte{
		{0x0F, 0x00}, // two-byte escape is not implemented
		{0xD6},
		{0xD8, 0xC0}, // x87 escape
		{0xF1},
	} {
		_, _, err := Decode(code, mode16)
		assert.ErrorIs(t, err, ErrInvalidInstruction, "% X", code)
	}
}

func TestDecodeUnimplementedOperandSpecs(t *testing.T) {
	for _, code := range [][]byte{
		{0x9C}, // pushf (Fv)
		{0xA4}, // movs (Yb, Xb)
		{0x6C}, // ins
	} {
		_, _, err := Decode(code, mode16)
		assert.ErrorIs(t, err, ErrInvalidInstruction, "% X", code)
	}
}

func TestDecodeTruncatedInput(t *testing.T) {
	for _, code := range [][]byte{
		{},
		{0x8B},             // mov gv, ev without modrm
		{0x83, 0xC0},       // group 1 missing the immediate
		{0x9A, 0x00, 0x10}, // far call missing the segment
		{0xB8, 0x34},       // mov ax, imm16 with one byte
		{0xF0},             // lone prefix
	} {
		_, _, err := Decode(code, mode16)
		assert.ErrorIs(t, err, ErrInvalidInstruction, "% X", code)
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	code := []byte{0x2E, 0xFF, 0xA7, 0x05, 0x03}
	a, na, erra := Decode(code, mode16)
	b, nb, errb := Decode(code, mode16)
	require.NoError(t, erra)
	require.NoError(t, errb)
	assert.Equal(t, a, b)
	assert.Equal(t, na, nb)
}

func TestDecodeConditionalJumps(t *testing.T) {
	opcodes := map[byte]Mnemonic{
		0x70: IJO, 0x71: IJNO, 0x72: IJB, 0x73: IJNB,
		0x74: IJE, 0x75: IJNE, 0x76: IJBE, 0x77: IJNBE,
		0x78: IJS, 0x79: IJNS, 0x7A: IJP, 0x7B: IJNP,
		0x7C: IJL, 0x7D: IJNL, 0x7E: IJLE, 0x7F: IJNLE,
		0xE3: IJCXZ,
	}
	for op, m := range opcodes {
		insn, count := decode16(t, op, 0x10)
		assert.Equal(t, m, insn.Op, "opcode %02X", op)
		assert.Equal(t, 2, count)
		assert.Equal(t, OprRel, insn.Opr[0].Type)
		assert.Equal(t, int32(0x10), insn.Opr[0].Rel)
	}
}
