// SPDX-License-Identifier: EPL-2.0

// Package elfreloc rewrites the runtime library search path embedded in an
// ELF binary's dynamic section.
//
// The rewrite operates on an in-memory copy of the binary: it locates the
// PT_DYNAMIC segment, resolves the dynamic string table through the PT_LOAD
// address map, and overwrites the existing DT_RPATH/DT_RUNPATH string in
// place. All other bytes of the binary are left untouched, which keeps the
// operation safe for section-stripped binaries and makes it reproducible.
//
// Only 64-bit little-endian ELF images are supported; that covers the
// x86_64 and aarch64 build targets this tool packages for. Callers are
// expected to treat every error other than I/O failures as a warning: a
// file that is not ELF, or has no dynamic section, is simply not a
// dynamically linked binary and needs no rewrite.
package elfreloc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNotELF indicates the input bytes do not start with an ELF header.
	ErrNotELF = errors.New("not an ELF image")

	// ErrUnsupportedFormat indicates an ELF image that is not 64-bit
	// little-endian.
	ErrUnsupportedFormat = errors.New("unsupported ELF format")

	// ErrNoDynamic indicates the image has no PT_DYNAMIC segment (a
	// statically linked binary or a relocatable object).
	ErrNoDynamic = errors.New("no dynamic section")

	// ErrNoRunPath indicates the dynamic section carries neither a
	// DT_RPATH nor a DT_RUNPATH entry, so there is no string slot to
	// overwrite in place.
	ErrNoRunPath = errors.New("no run path entry in dynamic section")

	// ErrRunPathTooLong indicates the replacement path does not fit in
	// the string table slot occupied by the current run path.
	ErrRunPathTooLong = errors.New("replacement run path longer than existing slot")
)

// ELF constants used below. Only the subset needed for dynamic-section
// surgery is spelled out; everything else is treated as opaque bytes.
const (
	headerSize     = 64
	progHeaderSize = 56

	ptLoad    = 1
	ptDynamic = 2

	dtNull    = 0
	dtNeeded  = 1
	dtStrtab  = 5
	dtStrsz   = 10
	dtRPath   = 15
	dtRunPath = 29
)

// segment is a loadable region's file-offset/virtual-address mapping.
type segment struct {
	vaddr  uint64
	off    uint64
	filesz uint64
}

// image is a minimally parsed 64-bit little-endian ELF byte image.
type image struct {
	data  []byte
	loads []segment

	dynOff  uint64
	dynSize uint64
}

// IsELF reports whether data begins with an ELF magic number.
func IsELF(data []byte) bool {
	return len(data) >= 4 && data[0] == 0x7f && data[1] == 'E' && data[2] == 'L' && data[3] == 'F'
}

// parse validates the header and locates the PT_DYNAMIC segment and the
// PT_LOAD address map.
func parse(data []byte) (*image, error) {
	if !IsELF(data) {
		return nil, ErrNotELF
	}
	if len(data) < headerSize {
		return nil, ErrNotELF
	}
	// EI_CLASS must be ELFCLASS64, EI_DATA must be ELFDATA2LSB.
	if data[4] != 2 || data[5] != 1 {
		return nil, ErrUnsupportedFormat
	}

	le := binary.LittleEndian
	phoff := le.Uint64(data[32:40])
	phentsize := uint64(le.Uint16(data[54:56]))
	phnum := uint64(le.Uint16(data[56:58]))

	if phentsize < progHeaderSize {
		return nil, fmt.Errorf("%w: program header entry size %d", ErrUnsupportedFormat, phentsize)
	}
	end := phoff + phnum*phentsize
	if end < phoff || end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: program header table out of bounds", ErrUnsupportedFormat)
	}

	img := &image{data: data}
	for i := uint64(0); i < phnum; i++ {
		ph := data[phoff+i*phentsize:]
		ptype := le.Uint32(ph[0:4])
		off := le.Uint64(ph[8:16])
		vaddr := le.Uint64(ph[16:24])
		filesz := le.Uint64(ph[32:40])

		switch ptype {
		case ptLoad:
			img.loads = append(img.loads, segment{vaddr: vaddr, off: off, filesz: filesz})
		case ptDynamic:
			img.dynOff = off
			img.dynSize = filesz
		}
	}

	if img.dynSize == 0 {
		return nil, ErrNoDynamic
	}
	if img.dynOff+img.dynSize > uint64(len(data)) {
		return nil, fmt.Errorf("%w: dynamic segment out of bounds", ErrUnsupportedFormat)
	}
	return img, nil
}

// fileOffset maps a virtual address to a file offset through the PT_LOAD
// segments.
func (img *image) fileOffset(vaddr uint64) (uint64, bool) {
	for _, s := range img.loads {
		if vaddr >= s.vaddr && vaddr < s.vaddr+s.filesz {
			return s.off + (vaddr - s.vaddr), true
		}
	}
	return 0, false
}

// runPathSlot describes where the current run path lives inside the image:
// the file offset of the dynamic entry's tag field, and the file offset and
// NUL-terminated capacity of its string in the dynamic string table.
type runPathSlot struct {
	tagOff uint64
	strOff uint64
	cap    int
}

// findRunPath locates the DT_RUNPATH (preferred) or DT_RPATH entry and its
// backing string. The scan stops at the DT_NULL terminator.
func (img *image) findRunPath() (*runPathSlot, error) {
	le := binary.LittleEndian

	var strtabAddr uint64
	var haveStrtab bool
	var entryOff uint64
	var entryVal uint64
	var haveEntry, entryIsRunPath bool

	for off := img.dynOff; off+16 <= img.dynOff+img.dynSize; off += 16 {
		tag := int64(le.Uint64(img.data[off : off+8]))
		val := le.Uint64(img.data[off+8 : off+16])
		if tag == dtNull {
			break
		}
		switch tag {
		case dtStrtab:
			strtabAddr = val
			haveStrtab = true
		case dtRunPath:
			entryOff, entryVal = off, val
			haveEntry, entryIsRunPath = true, true
		case dtRPath:
			// DT_RUNPATH wins when both are present.
			if !entryIsRunPath {
				entryOff, entryVal = off, val
				haveEntry = true
			}
		}
	}

	if !haveEntry {
		return nil, ErrNoRunPath
	}
	if !haveStrtab {
		return nil, fmt.Errorf("%w: dynamic section has no string table", ErrUnsupportedFormat)
	}

	strtabOff, ok := img.fileOffset(strtabAddr)
	if !ok {
		return nil, fmt.Errorf("%w: string table address not covered by any load segment", ErrUnsupportedFormat)
	}

	strOff := strtabOff + entryVal
	if strOff >= uint64(len(img.data)) {
		return nil, fmt.Errorf("%w: run path string out of bounds", ErrUnsupportedFormat)
	}

	// Capacity is the distance to the terminating NUL of the current value.
	capacity := 0
	for int(strOff)+capacity < len(img.data) && img.data[int(strOff)+capacity] != 0 {
		capacity++
	}

	return &runPathSlot{tagOff: entryOff, strOff: strOff, cap: capacity}, nil
}

// ReadRunPath returns the current DT_RUNPATH (or DT_RPATH) value of an ELF
// image, without modifying it.
func ReadRunPath(data []byte) (string, error) {
	img, err := parse(data)
	if err != nil {
		return "", err
	}
	slot, err := img.findRunPath()
	if err != nil {
		return "", err
	}
	return string(data[slot.strOff : slot.strOff+uint64(slot.cap)]), nil
}

// Rewrite returns a copy of data with the embedded run path replaced by
// runpath. The new value entirely replaces the old one; the remainder of
// the old string slot is NUL-padded so no stale path fragment survives. A
// DT_RPATH entry is converted to DT_RUNPATH, matching modern loader
// semantics. The input slice is never modified.
func Rewrite(data []byte, runpath string) ([]byte, error) {
	img, err := parse(data)
	if err != nil {
		return nil, err
	}
	slot, err := img.findRunPath()
	if err != nil {
		return nil, err
	}
	if len(runpath) > slot.cap {
		return nil, fmt.Errorf("%w: need %d bytes, slot holds %d", ErrRunPathTooLong, len(runpath), slot.cap)
	}

	out := make([]byte, len(data))
	copy(out, data)

	copy(out[slot.strOff:], runpath)
	for i := len(runpath); i < slot.cap; i++ {
		out[slot.strOff+uint64(i)] = 0
	}

	binary.LittleEndian.PutUint64(out[slot.tagOff:slot.tagOff+8], dtRunPath)

	return out, nil
}
