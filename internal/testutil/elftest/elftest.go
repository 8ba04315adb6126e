// SPDX-License-Identifier: MPL-2.0

// Package elftest builds minimal 64-bit little-endian ELF shared objects in
// memory for use as test fixtures.
//
// The generated images carry a real program header table (PT_LOAD covering
// the whole file plus PT_DYNAMIC), a dynamic section with configurable
// DT_NEEDED and run path entries, and a section header table so the images
// are also parseable by debug/elf. They contain no machine code: every
// consumer under test only inspects the dynamic section.
package elftest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// SharedObject describes the dynamic section of a fixture image.
type SharedObject struct {
	// Needed lists the DT_NEEDED dependency names, in order.
	Needed []string

	// RunPath is the DT_RUNPATH value. Ignored when NoRunPath is set.
	RunPath string

	// UseRPath stores the run path under the legacy DT_RPATH tag instead
	// of DT_RUNPATH.
	UseRPath bool

	// NoRunPath omits the run path entry entirely.
	NoRunPath bool
}

const (
	headerSize     = 64
	progHeaderSize = 56
	sectHeaderSize = 64

	ptLoad    = 1
	ptDynamic = 2

	dtNull    = 0
	dtNeeded  = 1
	dtStrtab  = 5
	dtStrsz   = 10
	dtRPath   = 15
	dtRunPath = 29

	shtStrtab  = 3
	shtDynamic = 6
)

// Build assembles the fixture image. Virtual addresses equal file offsets,
// so a single PT_LOAD at vaddr 0 maps the whole image.
func Build(so SharedObject) []byte {
	le := binary.LittleEndian

	// Dynamic string table: leading NUL, then needed names, then run path.
	dynstr := []byte{0}
	neededOffs := make([]uint64, len(so.Needed))
	for i, name := range so.Needed {
		neededOffs[i] = uint64(len(dynstr))
		dynstr = append(dynstr, name...)
		dynstr = append(dynstr, 0)
	}
	runPathOff := uint64(len(dynstr))
	if !so.NoRunPath {
		dynstr = append(dynstr, so.RunPath...)
		dynstr = append(dynstr, 0)
	}

	dynstrOff := uint64(headerSize + 2*progHeaderSize)
	dynOff := align8(dynstrOff + uint64(len(dynstr)))

	// Dynamic entries.
	type dyn struct{ tag, val uint64 }
	var dyns []dyn
	for _, off := range neededOffs {
		dyns = append(dyns, dyn{dtNeeded, off})
	}
	dyns = append(dyns, dyn{dtStrtab, dynstrOff}, dyn{dtStrsz, uint64(len(dynstr))})
	if !so.NoRunPath {
		tag := uint64(dtRunPath)
		if so.UseRPath {
			tag = dtRPath
		}
		dyns = append(dyns, dyn{tag, runPathOff})
	}
	dyns = append(dyns, dyn{dtNull, 0})
	dynSize := uint64(len(dyns) * 16)

	shstrtab := []byte("\x00.dynstr\x00.dynamic\x00.shstrtab\x00")
	shstrtabOff := dynOff + dynSize
	shoff := align8(shstrtabOff + uint64(len(shstrtab)))
	total := shoff + 4*sectHeaderSize

	img := make([]byte, total)

	// ELF header.
	copy(img, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	le.PutUint16(img[16:], 3)  // e_type ET_DYN
	le.PutUint16(img[18:], 62) // e_machine EM_X86_64
	le.PutUint32(img[20:], 1)  // e_version
	le.PutUint64(img[32:], headerSize)
	le.PutUint64(img[40:], shoff)
	le.PutUint16(img[52:], headerSize)
	le.PutUint16(img[54:], progHeaderSize)
	le.PutUint16(img[56:], 2)
	le.PutUint16(img[58:], sectHeaderSize)
	le.PutUint16(img[60:], 4)
	le.PutUint16(img[62:], 3) // e_shstrndx -> .shstrtab

	// PT_LOAD covering the whole file at vaddr 0.
	ph := img[headerSize:]
	le.PutUint32(ph[0:], ptLoad)
	le.PutUint32(ph[4:], 5) // R+X
	le.PutUint64(ph[8:], 0)
	le.PutUint64(ph[16:], 0)
	le.PutUint64(ph[24:], 0)
	le.PutUint64(ph[32:], total)
	le.PutUint64(ph[40:], total)
	le.PutUint64(ph[48:], 0x1000)

	// PT_DYNAMIC.
	ph = img[headerSize+progHeaderSize:]
	le.PutUint32(ph[0:], ptDynamic)
	le.PutUint32(ph[4:], 6) // R+W
	le.PutUint64(ph[8:], dynOff)
	le.PutUint64(ph[16:], dynOff)
	le.PutUint64(ph[24:], dynOff)
	le.PutUint64(ph[32:], dynSize)
	le.PutUint64(ph[40:], dynSize)
	le.PutUint64(ph[48:], 8)

	copy(img[dynstrOff:], dynstr)

	for i, d := range dyns {
		off := dynOff + uint64(i*16)
		le.PutUint64(img[off:], d.tag)
		le.PutUint64(img[off+8:], d.val)
	}

	copy(img[shstrtabOff:], shstrtab)

	// Section headers: NULL, .dynstr, .dynamic, .shstrtab. The table exists
	// so debug/elf (which resolves DT_NEEDED through sections) accepts the
	// image; the production rewriter never reads it.
	sh := func(idx int, name, typ, flags, addr, off, size, link, entsize, addralign uint64) {
		base := shoff + uint64(idx)*sectHeaderSize
		le.PutUint32(img[base:], uint32(name))
		le.PutUint32(img[base+4:], uint32(typ))
		le.PutUint64(img[base+8:], flags)
		le.PutUint64(img[base+16:], addr)
		le.PutUint64(img[base+24:], off)
		le.PutUint64(img[base+32:], size)
		le.PutUint32(img[base+40:], uint32(link))
		le.PutUint32(img[base+44:], 0)
		le.PutUint64(img[base+48:], addralign)
		le.PutUint64(img[base+56:], entsize)
	}
	sh(1, 1, shtStrtab, 2, dynstrOff, dynstrOff, uint64(len(dynstr)), 0, 0, 1)
	sh(2, 9, shtDynamic, 3, dynOff, dynOff, dynSize, 1, 16, 8)
	sh(3, 18, shtStrtab, 0, 0, shstrtabOff, uint64(len(shstrtab)), 0, 0, 1)

	return img
}

// Write builds the fixture and writes it to dir/name with the executable
// bit set, returning the full path.
func Write(t *testing.T, dir, name string, so SharedObject) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(so), 0o755); err != nil {
		t.Fatalf("writing ELF fixture %s: %v", name, err)
	}
	return path
}

func align8(v uint64) uint64 {
	return (v + 7) &^ 7
}
