//go:build amd64

package objfcn

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZenLiuCN/fn"
)

// in-memory builder for minimal relocatable objects, laid out the same way the
// loader reads them back

type testSection struct {
	name    string
	typ     elf.SectionType
	flags   elf.SectionFlag
	data    []byte
	size    uint64 // NOBITS only
	align   uint64
	link    uint32
	info    uint32
	entsize uint64
}

type testSym struct {
	name  string
	info  uint8
	shndx uint16
	value uint64
}

type relaEnt struct {
	off    uint64
	sym    int
	kind   uint32
	addend int64
}

type objBuilder struct {
	secs []testSection
}

func newObjBuilder() *objBuilder {
	return &objBuilder{secs: []testSection{{}}}
}

func (b *objBuilder) section(s testSection) int {
	b.secs = append(b.secs, s)
	return len(b.secs) - 1
}

// symtab appends .symtab plus its .strtab; listed symbols get indices starting
// at 1 (entry 0 is the null symbol). Returns the symtab section index.
func (b *objBuilder) symtab(syms []testSym) int {
	strs := []byte{0}
	body := new(bytes.Buffer)
	fn.Panic(binary.Write(body, binary.LittleEndian, sym{}))
	for _, ts := range syms {
		var off uint32
		if ts.name != "" {
			off = uint32(len(strs))
			strs = append(strs, ts.name...)
			strs = append(strs, 0)
		}
		fn.Panic(binary.Write(body, binary.LittleEndian, sym{
			Name:  off,
			Info:  ts.info,
			Shndx: ts.shndx,
			Value: ts.value,
		}))
	}
	idx := b.section(testSection{
		name:    ".symtab",
		typ:     elf.SHT_SYMTAB,
		data:    body.Bytes(),
		link:    uint32(len(b.secs) + 1),
		info:    1,
		align:   8,
		entsize: symSize,
	})
	b.section(testSection{name: ".strtab", typ: elf.SHT_STRTAB, data: strs, align: 1})
	return idx
}

func relaBody(entries ...relaEnt) []byte {
	b := new(bytes.Buffer)
	for _, e := range entries {
		fn.Panic(binary.Write(b, binary.LittleEndian, e.off))
		fn.Panic(binary.Write(b, binary.LittleEndian, uint64(e.sym)<<32|uint64(e.kind)))
		fn.Panic(binary.Write(b, binary.LittleEndian, e.addend))
	}
	return b.Bytes()
}

func relBody(entries ...relaEnt) []byte {
	b := new(bytes.Buffer)
	for _, e := range entries {
		fn.Panic(binary.Write(b, binary.LittleEndian, e.off))
		fn.Panic(binary.Write(b, binary.LittleEndian, uint64(e.sym)<<32|uint64(e.kind)))
	}
	return b.Bytes()
}

func (b *objBuilder) bytes() []byte {
	secs := append([]testSection{}, b.secs...)
	shstr := []byte{0}
	names := make([]uint32, len(secs)+1)
	for i := 1; i < len(secs); i++ {
		if secs[i].name == "" {
			continue
		}
		names[i] = uint32(len(shstr))
		shstr = append(shstr, secs[i].name...)
		shstr = append(shstr, 0)
	}
	names[len(secs)] = uint32(len(shstr))
	shstr = append(shstr, ".shstrtab"...)
	shstr = append(shstr, 0)
	shstrndx := len(secs)
	secs = append(secs, testSection{name: ".shstrtab", typ: elf.SHT_STRTAB, data: shstr, align: 1})

	cur := uint64(ehdrSize)
	offsets := make([]uint64, len(secs))
	for i := 1; i < len(secs); i++ {
		s := &secs[i]
		if s.typ == elf.SHT_NOBITS || len(s.data) == 0 {
			offsets[i] = cur
			continue
		}
		cur = (cur + 7) &^ 7
		offsets[i] = cur
		cur += uint64(len(s.data))
	}
	shoff := (cur + 7) &^ 7

	hdr := ehdr{
		Type:      uint16(elf.ET_REL),
		Machine:   machineType,
		Version:   1,
		Shoff:     shoff,
		Ehsize:    ehdrSize,
		Shentsize: shdrSize,
		Shnum:     uint16(len(secs)),
		Shstrndx:  uint16(shstrndx),
	}
	copy(hdr.Ident[:], elfMagic)
	hdr.Ident[elf.EI_CLASS] = elfClass
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = 1

	out := new(bytes.Buffer)
	fn.Panic(binary.Write(out, binary.LittleEndian, hdr))
	for i := 1; i < len(secs); i++ {
		s := &secs[i]
		if s.typ == elf.SHT_NOBITS || len(s.data) == 0 {
			continue
		}
		for uint64(out.Len()) < offsets[i] {
			out.WriteByte(0)
		}
		out.Write(s.data)
	}
	for uint64(out.Len()) < shoff {
		out.WriteByte(0)
	}
	for i := range secs {
		s := &secs[i]
		size := uint64(len(s.data))
		if s.typ == elf.SHT_NOBITS {
			size = s.size
		}
		fn.Panic(binary.Write(out, binary.LittleEndian, shdr{
			Name:      names[i],
			Type:      uint32(s.typ),
			Flags:     uint64(s.flags),
			Offset:    offsets[i],
			Size:      size,
			Link:      s.link,
			Info:      s.info,
			Addralign: s.align,
			Entsize:   s.entsize,
		}))
	}
	return out.Bytes()
}

func (b *objBuilder) write(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.o")
	fn.Panic(os.WriteFile(path, b.bytes(), 0o644))
	return path
}
