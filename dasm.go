// Package dosdisasm is a static recursive-traversal disassembler for
// 16-bit real-mode x86 programs packaged as DOS MZ executables. Starting
// from an entry point it follows control-flow edges, classifies every
// byte of the image as code, data, or unknown, and records
// cross-references between instructions.
package dosdisasm

import (
	"os"

	"github.com/sirupsen/logrus"

	"dos-disasm/x86"
)

// Per-byte attribute bits.
const (
	attrTypeMask byte = 0x03
	typeUnknown  byte = 0x00
	typePending  byte = 0x01
	typeCode     byte = 0x02
	typeData     byte = 0x03

	attrProcessed byte = 0x04 // classified as code or data
	attrBoundary  byte = 0x08 // first byte of an instruction or data item
)

// addressSpace covers every linear address a 16-bit far pointer can
// produce: 0xFFFF:0xFFFF reaches just past the 20-bit boundary.
const addressSpace = 0x110000

// jumpTable records a recognised near-indirect-jump table: the jump
// instruction, the first table entry, and the next unexamined entry.
type jumpTable struct {
	insnPos FarPtr
	start   FarPtr
	current FarPtr
}

// Disassembler analyzes one executable image. The attribute map and the
// xref list are owned by the instance and grow monotonically; the image
// slice is borrowed read-only from the loader. Not safe for concurrent
// use.
type Disassembler struct {
	image      []byte
	attr       []byte
	xrefs      []Xref
	jumpTables []jumpTable
	log        *logrus.Logger
}

// New creates a disassembler for the given image. Images larger than the
// address space a far pointer can reach (0x110000 bytes) are truncated.
func New(image []byte) *Disassembler {
	if len(image) > addressSpace {
		image = image[:addressSpace]
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return &Disassembler{
		image: image,
		attr:  make([]byte, addressSpace),
		log:   log,
	}
}

// Logger exposes the diagnostics logger so callers can adjust its level
// or output.
func (d *Disassembler) Logger() *logrus.Logger {
	return d.log
}

// ByteAttr reports how the byte at the given linear address was
// classified, plus the processed and boundary flags.
func (d *Disassembler) ByteAttr(offset uint32) (typ byte, processed, boundary bool) {
	a := d.attr[offset]
	return a & attrTypeMask, a&attrProcessed != 0, a&attrBoundary != 0
}

// IsCode reports whether the byte at the linear address is classified as
// code, and whether it starts an instruction.
func (d *Disassembler) IsCode(offset uint32) (code, boundary bool) {
	a := d.attr[offset]
	return a&attrTypeMask == typeCode, a&attrBoundary != 0
}

// IsData reports whether the byte at the linear address is classified as
// data.
func (d *Disassembler) IsData(offset uint32) bool {
	return d.attr[offset]&attrTypeMask == typeData
}

// status of one decode step during traversal.
type status int

const (
	stOK status = iota
	stAlreadyAnalyzed // the byte is the known start of an instruction
	stUnexpectedData  // the byte or instruction runs into data
	stUnexpectedCode  // the byte or instruction runs into mid-instruction code
	stBadInstruction  // the bytes do not form a valid instruction
)

// decodeInstruction decodes one instruction at pos and commits its bytes
// to the attribute map, unless the location conflicts with an earlier
// classification.
func (d *Disassembler) decodeInstruction(pos FarPtr) (x86.Insn, int, status) {
	b := pos.Linear()

	switch {
	case d.attr[b]&attrTypeMask == typeData:
		return x86.Insn{}, 0, stUnexpectedData
	case d.attr[b]&attrTypeMask == typeCode:
		if d.attr[b]&attrBoundary != 0 {
			return x86.Insn{}, 0, stAlreadyAnalyzed
		}
		return x86.Insn{}, 0, stUnexpectedCode
	}

	if b >= uint32(len(d.image)) {
		return x86.Insn{}, 0, stBadInstruction
	}
	insn, count, err := x86.Decode(d.image[b:], x86.Options{Mode: x86.Size16})
	if err != nil {
		return x86.Insn{}, 0, stBadInstruction
	}

	// The whole instruction must cover unprocessed bytes; running into
	// an existing classified region is a conflict, not an overwrite.
	for i := 1; i < count; i++ {
		if d.attr[b+uint32(i)]&attrProcessed != 0 {
			if d.attr[b+uint32(i)]&attrTypeMask == typeCode {
				return x86.Insn{}, 0, stUnexpectedCode
			}
			return x86.Insn{}, 0, stUnexpectedData
		}
	}

	for i := 0; i < count; i++ {
		d.attr[b+uint32(i)] = attrProcessed | typeCode
	}
	d.attr[b] |= attrBoundary

	return insn, count, stOK
}

// flowResult of inspecting one decoded instruction.
type flowResult int

const (
	flowContinue flowResult = iota
	flowFinishBlock
	flowDynamicJump
	flowDynamicCall
	flowFailed
)

func incrementFarPtr(p FarPtr, n uint16) FarPtr {
	// The offset may wrap past 0xFFFF; the segment is never
	// re-normalised.
	return FarPtr{Seg: p.Seg, Off: p.Off + n}
}

// analyzeFlow inspects a decoded instruction for control transfers,
// queueing xrefs and jump tables as needed.
func (d *Disassembler) analyzeFlow(pos FarPtr, count int, insn *x86.Insn) flowResult {
	opr := &insn.Opr[0]

	switch insn.Op {
	case x86.IJMP, x86.IJMPN, x86.IJMPF:
		switch opr.Type {
		case x86.OprRel:
			d.xrefs = append(d.xrefs, Xref{
				Source: pos,
				Target: incrementFarPtr(pos, uint16(count)+uint16(opr.Rel)),
				Kind:   XrefUnconditionalJump,
			})
			return flowFinishBlock
		case x86.OprPtr:
			d.xrefs = append(d.xrefs, Xref{
				Source: pos,
				Target: FarPtr{Seg: opr.Seg, Off: uint16(opr.Off)},
				Kind:   XrefUnconditionalJump,
			})
			return flowFinishBlock
		}

		// A near jump table is recognised heuristically from the form
		//
		//	jmpn word ptr cs:[bx+3782h]
		//
		// where bx may be any base register and 3782h must be the
		// address immediately after this instruction. An ill-formed
		// executable can defeat the rule in either direction. Far
		// jumps are excluded: their table entries would be 4 bytes.
		if insn.Op != x86.IJMPF &&
			opr.Type == x86.OprMem &&
			opr.Size == x86.Size16 &&
			opr.Mem.Segment == x86.CS &&
			opr.Mem.Base != x86.RegNone &&
			opr.Mem.Index == x86.RegNone &&
			opr.Mem.Disp == int32(uint32(pos.Off)+uint32(count)) {
			start := incrementFarPtr(pos, uint16(count))
			d.jumpTables = append(d.jumpTables, jumpTable{
				insnPos: pos,
				start:   start,
				current: start,
			})
			return flowFinishBlock
		}
		return flowDynamicJump

	case x86.IRETN, x86.IRETF, x86.IIRET, x86.IHLT:
		return flowFinishBlock

	case x86.ICALL, x86.ICALLF:
		// Assume the callee returns and continue past the call.
		switch opr.Type {
		case x86.OprRel:
			d.xrefs = append(d.xrefs, Xref{
				Source: pos,
				Target: incrementFarPtr(pos, uint16(count)+uint16(opr.Rel)),
				Kind:   XrefFunctionCall,
			})
			return flowContinue
		case x86.OprPtr:
			d.xrefs = append(d.xrefs, Xref{
				Source: pos,
				Target: FarPtr{Seg: opr.Seg, Off: uint16(opr.Off)},
				Kind:   XrefFunctionCall,
			})
			return flowContinue
		}
		return flowDynamicCall

	case x86.IJO, x86.IJNO, x86.IJB, x86.IJNB, x86.IJE, x86.IJNE,
		x86.IJBE, x86.IJNBE, x86.IJS, x86.IJNS, x86.IJP, x86.IJNP,
		x86.IJL, x86.IJNL, x86.IJLE, x86.IJNLE, x86.IJCXZ:
		// Queue the branch target and follow the fall-through edge.
		if opr.Type == x86.OprRel {
			d.xrefs = append(d.xrefs, Xref{
				Source: pos,
				Target: incrementFarPtr(pos, uint16(count)+uint16(opr.Rel)),
				Kind:   XrefConditionalJump,
			})
			return flowContinue
		}
		// A valid Jcc must jump to a relative address.
		return flowFailed
	}

	return flowContinue
}

// analyzeCodeBlock traverses code reachable from entry. The xref list is
// its own worklist: jump and call targets discovered on the way are
// appended and processed in order, so recursion depth stays constant.
func (d *Disassembler) analyzeCodeBlock(entry Xref) {
	i := len(d.xrefs)
	d.xrefs = append(d.xrefs, entry)

	for ; i < len(d.xrefs); i++ {
		pos := d.xrefs[i].Target

		d.log.WithFields(logrus.Fields{
			"pos":  pos.String(),
			"kind": d.xrefs[i].Kind.String(),
			"from": d.xrefs[i].Source.String(),
		}).Debug("analyzing block")

		// Decode linearly from this entry until a block terminator,
		// a conflict, or a bad instruction.
		for {
			insn, count, st := d.decodeInstruction(pos)
			switch st {
			case stAlreadyAnalyzed:
				d.log.WithField("pos", pos.String()).Debug("already analyzed")
			case stUnexpectedData:
				d.log.WithField("pos", pos.String()).Warn("Jump into data!")
			case stUnexpectedCode:
				d.log.WithField("pos", pos.String()).Warn("Jump into the middle of code!")
			case stBadInstruction:
				d.log.WithField("pos", pos.String()).Warn("Bad instruction!")
			}
			if st != stOK {
				break
			}

			text := x86.Format(&insn, x86.FmtIntel|x86.FmtLower)
			d.log.WithField("pos", pos.String()).Debug(text)

			res := d.analyzeFlow(pos, count, &insn)
			if res == flowFinishBlock {
				break
			}
			if res == flowDynamicJump {
				d.log.WithFields(logrus.Fields{
					"pos":  pos.String(),
					"insn": text,
				}).Warn("dynamic jump; dynamic analysis required")
				break
			}
			if res == flowDynamicCall {
				d.log.WithFields(logrus.Fields{
					"pos":  pos.String(),
					"insn": text,
				}).Warn("dynamic call; dynamic analysis required")
				break
			}
			if res == flowFailed {
				d.log.WithField("pos", pos.String()).Warn("flow analysis failed")
				break
			}

			pos.Off += uint16(count)
		}
	}
}

// Analyze traverses the image from the given entry point, populating the
// attribute map and the xref list. It may be called more than once; a
// repeated entry performs no new work. When it returns, the xref list is
// sorted by (target, source).
func (d *Disassembler) Analyze(entry FarPtr) {
	i := len(d.jumpTables)

	d.analyzeCodeBlock(Xref{
		Source: userSource,
		Target: entry,
		Kind:   XrefUserSpecified,
	})

	// Walk jump tables found above. Traversing a table entry may find
	// more tables, so the list is re-measured every iteration.
	for ; i < len(d.jumpTables); i++ {
		insnPos := d.jumpTables[i].insnPos
		cur := d.jumpTables[i].start

		// Each entry is assumed to hold the address of a code block.
		// Stop as soon as an entry would overlap classified bytes.
		for {
			off := cur.Linear()
			if off+1 >= uint32(len(d.image)) ||
				d.attr[off]&attrProcessed != 0 ||
				d.attr[off+1]&attrProcessed != 0 {
				break
			}
			target := uint16(d.image[off]) | uint16(d.image[off+1])<<8

			d.attr[off] = attrProcessed | typeData | attrBoundary
			d.attr[off+1] = attrProcessed | typeData

			d.analyzeCodeBlock(Xref{
				Source: insnPos,
				Target: FarPtr{Seg: insnPos.Seg, Off: target},
				Kind:   XrefIndirectJump,
			})

			cur = incrementFarPtr(cur, 2)
			d.jumpTables[i].current = cur
		}
	}

	sortXrefs(d.xrefs)
}

// Stats summarises the byte classification after analysis.
type Stats struct {
	Total      int
	Code       int
	Data       int
	Insns      int
	JumpTables int
}

// Stat computes classification statistics over the image and logs them.
func (d *Disassembler) Stat() Stats {
	s := Stats{Total: len(d.image), JumpTables: len(d.jumpTables)}
	for b := 0; b < len(d.image); b++ {
		switch d.attr[b] & attrTypeMask {
		case typeCode:
			s.Code++
			if d.attr[b]&attrBoundary != 0 {
				s.Insns++
			}
		case typeData:
			s.Data++
		}
	}

	d.log.WithFields(logrus.Fields{
		"image_size":   s.Total,
		"code_bytes":   s.Code,
		"data_bytes":   s.Data,
		"instructions": s.Insns,
		"jump_tables":  s.JumpTables,
	}).Info("analysis statistics")
	return s
}
