package x86

import "strings"

// FmtFlags selects the output syntax and case of Format.
type FmtFlags uint

const (
	FmtIntel FmtFlags = 0
	FmtATT   FmtFlags = 1 // accepted but rendered as Intel
	FmtLower FmtFlags = 0
	FmtUpper FmtFlags = 2
)

// appendImm renders an immediate: decimal when below 10, otherwise hex
// with an 'H' suffix and a leading 0 when the leading nibble is a letter.
func appendImm(sb *strings.Builder, imm uint32) {
	if imm < 10 {
		sb.WriteByte(byte('0' + imm))
		return
	}

	shift := 28
	for imm>>shift == 0 {
		shift -= 4
	}
	if (imm>>shift)&0xf >= 0xa {
		sb.WriteByte('0')
	}
	for ; shift >= 0; shift -= 4 {
		d := (imm >> shift) & 0xf
		if d < 10 {
			sb.WriteByte(byte('0' + d))
		} else {
			sb.WriteByte(byte('A' + d - 10))
		}
	}
	sb.WriteByte('H')
}

func appendRel(sb *strings.Builder, rel int32) {
	if rel >= 0 {
		sb.WriteByte('+')
	} else {
		sb.WriteByte('-')
		rel = -rel
	}
	var digits [10]byte
	i := len(digits)
	for {
		i--
		digits[i] = byte('0' + rel%10)
		rel /= 10
		if rel == 0 {
			break
		}
	}
	sb.Write(digits[i:])
}

func sizeName(size Size) string {
	switch size {
	case Size8:
		return "BYTE"
	case Size16:
		return "WORD"
	case Size32:
		return "DWORD"
	case Size64:
		return "QWORD"
	case Size128:
		return "DQWORD"
	}
	return ""
}

func appendMem(sb *strings.Builder, opr *Operand) {
	mem := &opr.Mem

	sb.WriteString(sizeName(opr.Size))
	sb.WriteString(" PTR ")
	sb.WriteString(mem.Segment.String())
	sb.WriteString(":[")
	if mem.Base != RegNone {
		sb.WriteString(mem.Base.String())
		if mem.Index != RegNone {
			sb.WriteByte('+')
			sb.WriteString(mem.Index.String())
			if mem.Scaling > 1 {
				sb.WriteByte('*')
				appendImm(sb, uint32(mem.Scaling))
			}
		}
	}
	if mem.Disp != 0 || mem.Base == RegNone {
		if mem.Base != RegNone {
			if mem.Disp < 0 {
				sb.WriteByte('-')
				appendImm(sb, uint32(-mem.Disp))
			} else {
				sb.WriteByte('+')
				appendImm(sb, uint32(mem.Disp))
			}
		} else {
			appendImm(sb, uint32(mem.Disp))
		}
	}
	sb.WriteByte(']')
}

func appendOperand(sb *strings.Builder, opr *Operand) {
	switch opr.Type {
	case OprReg:
		sb.WriteString(opr.Reg.String())
	case OprMem:
		appendMem(sb, opr)
	case OprImm:
		appendImm(sb, opr.Imm)
	case OprRel:
		appendRel(sb, opr.Rel)
	case OprPtr:
		appendImm(sb, uint32(opr.Seg))
		sb.WriteByte(':')
		appendImm(sb, opr.Off)
	}
}

// Format renders a decoded instruction as text: mnemonic, then operands
// separated by ", ", preceded by the group-1 prefix word when present.
// Format is stateless and side-effect-free.
func Format(insn *Insn, flags FmtFlags) string {
	var sb strings.Builder

	switch insn.Prefix[0] {
	case PrefixLOCK:
		sb.WriteString("LOCK ")
	case PrefixREPNZ:
		sb.WriteString("REPNZ ")
	case PrefixREP:
		sb.WriteString("REP ")
	}

	sb.WriteString(insn.Op.String())

	for i := 0; i < MaxOperands; i++ {
		if insn.Opr[i].Type == OprNone {
			break
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte(' ')
		appendOperand(&sb, &insn.Opr[i])
	}

	if flags&FmtUpper != 0 {
		return sb.String()
	}
	return strings.ToLower(sb.String())
}
