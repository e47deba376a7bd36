package dosdisasm

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// ErrFormatNotSupported reports that a file is not a DOS MZ executable.
var ErrFormatNotSupported = errors.New("file format not supported")

const mzHeaderSize = 28

// mzHeader is the fixed part of a DOS MZ executable header.
type mzHeader struct {
	signature    uint16 // 0x5A4D ('MZ') or 0x4D5A ('ZM')
	lastPageSize uint16 // size of last 512-byte page; 0 means full
	pageCount    uint16 // number of 512-byte pages, including the last
	relocCount   uint16 // number of relocation entries; may be 0
	headerSize   uint16 // header size in 16-byte paragraphs
	minAlloc     uint16
	maxAlloc     uint16
	regSS        uint16
	regSP        uint16
	checksum     uint16
	regIP        uint16 // initial IP
	regCS        uint16 // initial CS, relative to the image base
	relocOff     uint16 // byte offset of the relocation table
	overlay      uint16
}

// MZFile is a loaded DOS MZ executable. The file is memory-mapped
// read-only; the image slice stays valid until Close.
type MZFile struct {
	f      *os.File
	m      mmap.MMap
	data   []byte // used portion of the file
	start  int    // offset of the executable image
	header mzHeader
}

func readWord(p []byte) uint16 {
	return uint16(p[0]) | uint16(p[1])<<8
}

// OpenMZ maps the named file and parses its MZ header. Any validation
// failure reports ErrFormatNotSupported.
func OpenMZ(filename string) (*MZFile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open executable")
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "map executable")
	}

	file := &MZFile{f: f, m: m}
	if err := file.parse(m); err != nil {
		file.Close()
		return nil, err
	}
	return file, nil
}

// ParseMZ parses an MZ executable already held in memory.
func ParseMZ(data []byte) (*MZFile, error) {
	file := &MZFile{}
	if err := file.parse(data); err != nil {
		return nil, err
	}
	return file, nil
}

func (file *MZFile) parse(data []byte) error {
	if len(data) < mzHeaderSize {
		return errors.Wrap(ErrFormatNotSupported, "file too short")
	}

	h := &file.header
	h.signature = readWord(data[0:])
	h.lastPageSize = readWord(data[2:])
	h.pageCount = readWord(data[4:])
	h.relocCount = readWord(data[6:])
	h.headerSize = readWord(data[8:])
	h.minAlloc = readWord(data[10:])
	h.maxAlloc = readWord(data[12:])
	h.regSS = readWord(data[14:])
	h.regSP = readWord(data[16:])
	h.checksum = readWord(data[18:])
	h.regIP = readWord(data[20:])
	h.regCS = readWord(data[22:])
	h.relocOff = readWord(data[24:])
	h.overlay = readWord(data[26:])

	// Both 'MZ' and 'ZM' are in circulation.
	if h.signature != 0x5A4D && h.signature != 0x4D5A {
		return errors.Wrap(ErrFormatNotSupported, "bad signature")
	}
	if h.pageCount == 0 {
		return errors.Wrap(ErrFormatNotSupported, "empty page count")
	}

	used := int(h.pageCount) * 512
	if h.lastPageSize != 0 {
		used -= 512 - int(h.lastPageSize)
	}
	if used < 0 || used > len(data) {
		return errors.Wrap(ErrFormatNotSupported, "used size exceeds file")
	}

	start := int(h.headerSize) * 16
	if start > used {
		return errors.Wrap(ErrFormatNotSupported, "header size exceeds file")
	}
	if int(h.relocOff)+int(h.relocCount)*4 > start {
		return errors.Wrap(ErrFormatNotSupported, "relocation table out of range")
	}

	file.data = data[:used]
	file.start = start
	return nil
}

// Image returns the executable image (the file after the header). The
// slice is read-only: it may alias a memory-mapped file.
func (file *MZFile) Image() []byte {
	return file.data[file.start:]
}

// ImageSize returns the size of the executable image in bytes.
func (file *MZFile) ImageSize() int {
	return len(file.data) - file.start
}

// Entry returns the program entry point (initial CS:IP) as stored in the
// header. CS is relative to the segment the image is loaded at.
func (file *MZFile) Entry() FarPtr {
	return FarPtr{Seg: file.header.regCS, Off: file.header.regIP}
}

// RelocCount returns the number of relocation entries.
func (file *MZFile) RelocCount() int {
	return int(file.header.relocCount)
}

// Reloc returns the i-th relocation entry as a linear offset relative to
// the start of the image. The module loader would add the load segment to
// the word at this location; this disassembler only surfaces the entries.
func (file *MZFile) Reloc(i int) uint32 {
	p := file.data[int(file.header.relocOff)+i*4:]
	off := readWord(p)
	seg := readWord(p[2:])
	return uint32(seg)*16 + uint32(off)
}

// Close releases the mapping and the underlying file. Image slices must
// not be used afterwards.
func (file *MZFile) Close() error {
	var err error
	if file.m != nil {
		err = file.m.Unmap()
		file.m = nil
	}
	if file.f != nil {
		if cerr := file.f.Close(); err == nil {
			err = cerr
		}
		file.f = nil
	}
	file.data = nil
	return err
}
