package x86

// Mnemonic enumerates instruction operations. The zero value marks an
// uninitialised or invalid instruction.
type Mnemonic int16

const (
	INone Mnemonic = iota

	IAAA
	IAAD
	IAAM
	IAAS
	IADC
	IADD
	IAND
	IARPL
	IBOUND
	ICALL
	ICALLF
	ICALLN
	ICBW
	ICLC
	ICLD
	ICLI
	ICMC
	ICMP
	ICMPS
	ICWD
	IDAA
	IDAS
	IDEC
	IDIV
	IENTER
	IFWAIT
	IHLT
	IIDIV
	IIMUL
	IIN
	IINC
	IINS
	IINT
	IINTO
	IIRET
	IJB
	IJBE
	IJCXZ
	IJE
	IJL
	IJLE
	IJMP
	IJMPF
	IJMPN
	IJNB
	IJNBE
	IJNE
	IJNL
	IJNLE
	IJNO
	IJNP
	IJNS
	IJO
	IJP
	IJS
	ILAHF
	ILDS
	ILEA
	ILEAVE
	ILES
	ILODS
	ILOOP
	ILOOPE
	ILOOPNE
	IMOV
	IMOVS
	IMUL
	INEG
	INOP
	INOT
	IOR
	IOUT
	IOUTS
	IPOP
	IPOPA
	IPOPF
	IPUSH
	IPUSHA
	IPUSHF
	IRCL
	IRCR
	IRETF
	IRETN
	IROL
	IROR
	ISAHF
	ISAR
	ISBB
	ISCAS
	ISHL
	ISHR
	ISTC
	ISTD
	ISTI
	ISTOS
	ISUB
	ITEST
	IXABORT
	IXBEGIN
	IXCHG
	IXLAT
	IXOR

	mnemonicCount
)

var mnemonicNames = [mnemonicCount]string{
	INone:    "NONE",
	IAAA:     "AAA",
	IAAD:     "AAD",
	IAAM:     "AAM",
	IAAS:     "AAS",
	IADC:     "ADC",
	IADD:     "ADD",
	IAND:     "AND",
	IARPL:    "ARPL",
	IBOUND:   "BOUND",
	ICALL:    "CALL",
	ICALLF:   "CALLF",
	ICALLN:   "CALLN",
	ICBW:     "CBW",
	ICLC:     "CLC",
	ICLD:     "CLD",
	ICLI:     "CLI",
	ICMC:     "CMC",
	ICMP:     "CMP",
	ICMPS:    "CMPS",
	ICWD:     "CWD",
	IDAA:     "DAA",
	IDAS:     "DAS",
	IDEC:     "DEC",
	IDIV:     "DIV",
	IENTER:   "ENTER",
	IFWAIT:   "FWAIT",
	IHLT:     "HLT",
	IIDIV:    "IDIV",
	IIMUL:    "IMUL",
	IIN:      "IN",
	IINC:     "INC",
	IINS:     "INS",
	IINT:     "INT",
	IINTO:    "INTO",
	IIRET:    "IRET",
	IJB:      "JB",
	IJBE:     "JBE",
	IJCXZ:    "JCXZ",
	IJE:      "JE",
	IJL:      "JL",
	IJLE:     "JLE",
	IJMP:     "JMP",
	IJMPF:    "JMPF",
	IJMPN:    "JMPN",
	IJNB:     "JNB",
	IJNBE:    "JNBE",
	IJNE:     "JNE",
	IJNL:     "JNL",
	IJNLE:    "JNLE",
	IJNO:     "JNO",
	IJNP:     "JNP",
	IJNS:     "JNS",
	IJO:      "JO",
	IJP:      "JP",
	IJS:      "JS",
	ILAHF:    "LAHF",
	ILDS:     "LDS",
	ILEA:     "LEA",
	ILEAVE:   "LEAVE",
	ILES:     "LES",
	ILODS:    "LODS",
	ILOOP:    "LOOP",
	ILOOPE:   "LOOPE",
	ILOOPNE:  "LOOPNE",
	IMOV:     "MOV",
	IMOVS:    "MOVS",
	IMUL:     "MUL",
	INEG:     "NEG",
	INOP:     "NOP",
	INOT:     "NOT",
	IOR:      "OR",
	IOUT:     "OUT",
	IOUTS:    "OUTS",
	IPOP:     "POP",
	IPOPA:    "POPA",
	IPOPF:    "POPF",
	IPUSH:    "PUSH",
	IPUSHA:   "PUSHA",
	IPUSHF:   "PUSHF",
	IRCL:     "RCL",
	IRCR:     "RCR",
	IRETF:    "RETF",
	IRETN:    "RETN",
	IROL:     "ROL",
	IROR:     "ROR",
	ISAHF:    "SAHF",
	ISAR:     "SAR",
	ISBB:     "SBB",
	ISCAS:    "SCAS",
	ISHL:     "SHL",
	ISHR:     "SHR",
	ISTC:     "STC",
	ISTD:     "STD",
	ISTI:     "STI",
	ISTOS:    "STOS",
	ISUB:     "SUB",
	ITEST:    "TEST",
	IXABORT:  "XABORT",
	IXBEGIN:  "XBEGIN",
	IXCHG:    "XCHG",
	IXLAT:    "XLAT",
	IXOR:     "XOR",
}

// String returns the canonical (upper case) mnemonic name.
func (m Mnemonic) String() string {
	if m > INone && m < mnemonicCount {
		return mnemonicNames[m]
	}
	return "NONE"
}
