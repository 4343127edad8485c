package objfcn

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// image is the byte-view over an input object: typed, bounds-checked accessors
// over one contiguous buffer. The buffer is never mutated; the parsed symbol
// records are, once their final addresses are known.
type image struct {
	data   []byte
	hdr    ehdr
	shdrs  []shdr
	symtab []sym
	strtab []byte
	shstr  []byte
}

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// relocEntry is one decoded REL/RELA record; decodeReloc fills it from the
// word-size specific wire layout.
type relocEntry struct {
	off    uintptr
	sym    int
	kind   uint32
	addend int64
}

func read[T any](b []byte) (v T, err error) {
	err = binary.Read(bytes.NewReader(b), binary.LittleEndian, &v)
	return
}

func parseImage(data []byte) (*image, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], elfMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrNotELF)
	}
	if len(data) < ehdrSize {
		return nil, fmt.Errorf("%w: truncated header", ErrBadObject)
	}
	if data[elf.EI_CLASS] != elfClass {
		return nil, fmt.Errorf("%w: wrong ELF class %d", ErrBadObject, data[elf.EI_CLASS])
	}
	if data[elf.EI_DATA] != byte(elf.ELFDATA2LSB) {
		return nil, fmt.Errorf("%w: wrong byte order", ErrBadObject)
	}
	m := &image{data: data}
	var err error
	if m.hdr, err = read[ehdr](data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadObject, err)
	}
	if elf.Type(m.hdr.Type) != elf.ET_REL {
		return nil, fmt.Errorf("%w: not a relocatable object (type %d)", ErrBadObject, m.hdr.Type)
	}
	if m.hdr.Machine != machineType {
		return nil, fmt.Errorf("%w: wrong machine %d", ErrBadObject, m.hdr.Machine)
	}
	n := uint64(m.hdr.Shnum)
	if n == 0 {
		return nil, fmt.Errorf("%w: no section table", ErrBadObject)
	}
	shoff := uint64(m.hdr.Shoff)
	if shoff > uint64(len(data)) || n*shdrSize > uint64(len(data))-shoff {
		return nil, fmt.Errorf("%w: section table out of range", ErrBadObject)
	}
	m.shdrs = make([]shdr, 0, n)
	for i := uint64(0); i < n; i++ {
		sh, err := read[shdr](data[shoff+i*shdrSize:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadObject, err)
		}
		if sh.Type != uint32(elf.SHT_NOBITS) && sh.Size != 0 &&
			(uint64(sh.Offset) > uint64(len(data)) ||
				uint64(sh.Size) > uint64(len(data))-uint64(sh.Offset)) {
			return nil, fmt.Errorf("%w: section %d out of range", ErrBadObject, i)
		}
		m.shdrs = append(m.shdrs, sh)
	}
	if err = m.loadSymtab(); err != nil {
		return nil, err
	}
	if x := int(m.hdr.Shstrndx); x > 0 && x < len(m.shdrs) &&
		m.shdrs[x].Type == uint32(elf.SHT_STRTAB) {
		m.shstr, _ = m.sectionBytes(x)
	}
	return m, nil
}

func (m *image) loadSymtab() error {
	for i := range m.shdrs {
		sh := &m.shdrs[i]
		if sh.Type != uint32(elf.SHT_SYMTAB) {
			continue
		}
		link := int(sh.Link)
		if link <= 0 || link >= len(m.shdrs) || m.shdrs[link].Type != uint32(elf.SHT_STRTAB) {
			return fmt.Errorf("%w: symtab has no linked strtab", ErrBadObject)
		}
		body, err := m.sectionBytes(i)
		if err != nil {
			return err
		}
		count := len(body) / symSize
		m.symtab = make([]sym, 0, count)
		for count > 0 {
			s, err := read[sym](body)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBadObject, err)
			}
			m.symtab = append(m.symtab, s)
			body = body[symSize:]
			count--
		}
		m.strtab, err = m.sectionBytes(link)
		return err
	}
	return fmt.Errorf("%w: no symbol table", ErrBadObject)
}

func (m *image) sectionBytes(i int) ([]byte, error) {
	sh := &m.shdrs[i]
	start := uint64(sh.Offset)
	end := start + uint64(sh.Size)
	if end > uint64(len(m.data)) {
		return nil, fmt.Errorf("%w: section %d out of range", ErrBadObject, i)
	}
	return m.data[start:end], nil
}

// name reads a NUL-terminated string out of the symbol string table.
func (m *image) name(off uint32) string {
	return nameAt(m.strtab, off)
}

func (m *image) sectionName(sh *shdr) string {
	return nameAt(m.shstr, sh.Name)
}

func nameAt(strs []byte, off uint32) string {
	if int64(off) >= int64(len(strs)) {
		return ""
	}
	b := strs[off:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func (sh *shdr) allocated() bool {
	return sh.Flags&word(elf.SHF_ALLOC) != 0
}
