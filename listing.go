package dosdisasm

import (
	"fmt"
	"io"
	"strings"

	"dos-disasm/x86"
)

// Listing writes a linear disassembly of the analyzed image: formatted
// instructions at code boundaries, jump-table entries as dw items, and
// skip markers over unknown regions. Targets that have recorded xrefs
// are annotated with their incoming edges.
func (d *Disassembler) Listing(w io.Writer) error {
	b := 0
	for b < len(d.image) {
		a := d.attr[b]

		switch {
		case a&attrTypeMask == typeCode && a&attrBoundary != 0:
			n, err := d.writeInsnLine(w, uint32(b))
			if err != nil {
				return err
			}
			b += n

		case a&attrTypeMask == typeData && a&attrBoundary != 0 && b+1 < len(d.image):
			if err := d.writeXrefNotes(w, uint32(b)); err != nil {
				return err
			}
			word := uint16(d.image[b]) | uint16(d.image[b+1])<<8
			if _, err := fmt.Fprintf(w, "%05X  %-24s dw %04Xh\n",
				b, hexBytes(d.image[b:b+2]), word); err != nil {
				return err
			}
			b += 2

		default:
			// Skip a run of unclassified bytes in one marker line.
			run := 0
			for b+run < len(d.image) {
				a := d.attr[b+run]
				if a&attrProcessed != 0 && a&attrBoundary != 0 {
					break
				}
				run++
			}
			if run == 0 {
				// A lone classified byte at the end of the image.
				run = 1
			}
			if _, err := fmt.Fprintf(w, "%05X  ...%d bytes not analyzed\n", b, run); err != nil {
				return err
			}
			b += run
		}
	}
	return nil
}

func (d *Disassembler) writeInsnLine(w io.Writer, b uint32) (int, error) {
	if err := d.writeXrefNotes(w, b); err != nil {
		return 0, err
	}

	insn, count, err := x86.Decode(d.image[b:], x86.Options{Mode: x86.Size16})
	if err != nil {
		// The analyzer only marks a boundary after a successful
		// decode, so this should not happen; emit the byte as data.
		_, werr := fmt.Fprintf(w, "%05X  %-24s db %02Xh\n", b, hexBytes(d.image[b:b+1]), d.image[b])
		return 1, werr
	}

	text := x86.Format(&insn, x86.FmtIntel|x86.FmtLower)
	_, err = fmt.Fprintf(w, "%05X  %-24s %s\n", b, hexBytes(d.image[b:b+uint32(count)]), text)
	return count, err
}

func (d *Disassembler) writeXrefNotes(w io.Writer, target uint32) error {
	for cur := d.EnumXrefs(target, -1); cur >= 0; cur = d.EnumXrefs(target, cur) {
		x := d.xrefs[cur]
		if x.Kind == XrefUserSpecified {
			if _, err := fmt.Fprintf(w, "%31s; entry point\n", ""); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%31s; %s from %s\n", "", x.Kind, x.Source); err != nil {
			return err
		}
	}
	return nil
}

func hexBytes(p []byte) string {
	var sb strings.Builder
	for i, c := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}
