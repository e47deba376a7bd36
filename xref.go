package dosdisasm

import (
	"fmt"
	"sort"
)

// FarPtr is a segment:offset pair as seen by the CPU. Two distinct far
// pointers may refer to the same linear address; the analyzer keeps the
// pair as written by the code and never canonicalizes.
type FarPtr struct {
	Seg uint16
	Off uint16
}

// Linear returns the 20-bit linear address (segment << 4) + offset.
func (p FarPtr) Linear() uint32 {
	return uint32(p.Seg)<<4 + uint32(p.Off)
}

func (p FarPtr) String() string {
	return fmt.Sprintf("%04X:%04X", p.Seg, p.Off)
}

// XrefKind classifies a cross-reference edge.
type XrefKind int

const (
	XrefUserSpecified XrefKind = iota
	XrefFunctionCall
	XrefConditionalJump
	XrefUnconditionalJump
	XrefIndirectJump
)

func (k XrefKind) String() string {
	switch k {
	case XrefUserSpecified:
		return "XREF_USER_SPECIFIED"
	case XrefFunctionCall:
		return "XREF_FUNCTION_CALL"
	case XrefConditionalJump:
		return "XREF_CONDITIONAL_JUMP"
	case XrefUnconditionalJump:
		return "XREF_UNCONDITIONAL_JUMP"
	case XrefIndirectJump:
		return "XREF_INDIRECT_JUMP"
	}
	return "XREF_UNKNOWN"
}

// userSource is the sentinel source of a user-specified xref.
var userSource = FarPtr{Seg: 0xFFFF, Off: 0xFFFF}

// Xref is one source → target control-flow edge. A user-specified entry
// point carries the sentinel source (FFFF:FFFF).
type Xref struct {
	Source FarPtr
	Target FarPtr
	Kind   XrefKind
}

// sortXrefs orders the list by (target linear, source linear) ascending
// so a listing pass can walk xrefs in physical order.
func sortXrefs(xrefs []Xref) {
	sort.Slice(xrefs, func(i, j int) bool {
		ti, tj := xrefs[i].Target.Linear(), xrefs[j].Target.Linear()
		if ti != tj {
			return ti < tj
		}
		return xrefs[i].Source.Linear() < xrefs[j].Source.Linear()
	})
}

// AnyTarget makes EnumXrefs walk the whole list without filtering.
const AnyTarget = ^uint32(0)

// Xrefs returns the xref list. After Analyze it is sorted by
// (target, source).
func (d *Disassembler) Xrefs() []Xref {
	return d.xrefs
}

// EnumXrefs walks the xrefs whose target equals the given linear address.
// prev is the cursor returned by the previous call, or a negative value
// to start the walk; the result is the index of the next matching xref,
// or -1 when there are no more. Valid only after Analyze has sorted the
// list.
func (d *Disassembler) EnumXrefs(target uint32, prev int) int {
	if target == AnyTarget {
		next := prev + 1
		if prev < 0 {
			next = 0
		}
		if next < len(d.xrefs) {
			return next
		}
		return -1
	}

	if prev < 0 {
		// Binary search lands on the first of possibly several xrefs
		// with this target.
		i := sort.Search(len(d.xrefs), func(i int) bool {
			return d.xrefs[i].Target.Linear() >= target
		})
		if i < len(d.xrefs) && d.xrefs[i].Target.Linear() == target {
			return i
		}
		return -1
	}

	next := prev + 1
	if next < len(d.xrefs) && d.xrefs[next].Target.Linear() == target {
		return next
	}
	return -1
}
