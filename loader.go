package objfcn

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"log"
)

// Sections below 16-byte alignment are raised to it; a larger declared
// sh_addralign is honored.
const minAlign = 16

// loader carries the per-load state: the parsed image, the arena and the
// placement map from section index to assigned base address.
type loader struct {
	obj   *object
	img   *image
	addrs []uintptr
}

func (o *object) load(bin []byte) error {
	img, err := parseImage(bin)
	if err != nil {
		return err
	}
	ld := &loader{obj: o, img: img, addrs: make([]uintptr, len(img.shdrs))}

	// Size the arena up-front: placed sections plus the trampoline and GOT
	// space the relocation walk will claim. The arena must never grow, a
	// grown arena would invalidate every address already handed out.
	payload := ld.payloadSize()
	extra, err := ld.relocate(true)
	if err != nil {
		return err
	}
	if o.arena, err = newArena(payload + extra); err != nil {
		return err
	}
	if o.debug {
		log.Printf("objfcn: %s arena %#x..%#x payload %#x reloc %#x",
			o.path, o.arena.base, o.arena.base+o.arena.size(), payload, extra)
	}
	if err = ld.place(); err != nil {
		return err
	}
	ld.buildIndex()
	_, err = ld.relocate(false)
	return err
}

func sectionAlign(sh *shdr) uintptr {
	if a := uintptr(sh.Addralign); a > minAlign {
		return a
	}
	return minAlign
}

// payloadSize simulates the placement walk so the layout is known before the
// arena exists.
func (ld *loader) payloadSize() uintptr {
	var n uintptr
	for i := range ld.img.shdrs {
		sh := &ld.img.shdrs[i]
		if !sh.allocated() {
			continue
		}
		n = alignUp(n, sectionAlign(sh))
		n += uintptr(sh.Size)
	}
	return n
}

// place assigns every allocated section a base address in the arena, copying
// PROGBITS payloads and leaving NOBITS regions on the zeroed pages.
func (ld *loader) place() error {
	for i := range ld.img.shdrs {
		sh := &ld.img.shdrs[i]
		if !sh.allocated() {
			continue
		}
		ld.obj.arena.alignTo(sectionAlign(sh))
		addr, err := ld.obj.arena.alloc(uintptr(sh.Size))
		if err != nil {
			return err
		}
		ld.addrs[i] = addr
		if sh.Type != uint32(elf.SHT_NOBITS) && sh.Size != 0 {
			src, err := ld.img.sectionBytes(i)
			if err != nil {
				return err
			}
			dst, err := ld.obj.arena.at(addr, len(src))
			if err != nil {
				return err
			}
			copy(dst, src)
		}
		if ld.obj.debug {
			log.Printf("objfcn: section %d %s at %#x+%#x", i, ld.img.sectionName(sh), addr, sh.Size)
		}
	}
	return nil
}

// buildIndex publishes every defined FUNC and OBJECT symbol and rewrites its
// in-memory record with the final absolute address, so relocations against it
// read the record directly.
func (ld *loader) buildIndex() {
	for i := range ld.img.symtab {
		s := &ld.img.symtab[i]
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_FUNC, elf.STT_OBJECT:
		default:
			continue
		}
		if s.Shndx == uint16(elf.SHN_UNDEF) || int(s.Shndx) >= len(ld.addrs) {
			continue
		}
		addr := ld.addrs[s.Shndx] + uintptr(s.Value)
		s.Value = word(addr)
		name := ld.img.name(s.Name)
		ld.obj.index = append(ld.obj.index, entry{name: name, addr: addr})
		if ld.obj.debug {
			log.Printf("objfcn: symbol %s => %#x", name, addr)
		}
	}
}

// relocate walks every REL/RELA section whose target section is allocated.
// With sizeOnly it only sums the trampoline and GOT space the entries will
// need; otherwise it resolves each referent and patches the site.
func (ld *loader) relocate(sizeOnly bool) (uintptr, error) {
	var extra uintptr
	for i := range ld.img.shdrs {
		sh := &ld.img.shdrs[i]
		withAddend := sh.Type == uint32(elf.SHT_RELA)
		if sh.Type != uint32(elf.SHT_REL) && !withAddend {
			continue
		}
		ti := int(sh.Info)
		if ti >= len(ld.img.shdrs) {
			return 0, fmt.Errorf("%w: relocation target %d out of range", ErrBadObject, ti)
		}
		if !ld.img.shdrs[ti].allocated() {
			continue
		}
		body, err := ld.img.sectionBytes(i)
		if err != nil {
			return 0, err
		}
		esz := relSize
		if withAddend {
			esz = relaSize
		}
		for off := 0; off+esz <= len(body); off += esz {
			r := decodeReloc(body[off:], withAddend)
			if sizeOnly {
				n, err := relocBudget(r.kind)
				if err != nil {
					return 0, err
				}
				extra += n
				continue
			}
			if r.sym >= len(ld.img.symtab) {
				return 0, fmt.Errorf("%w: relocation sym %d out of range", ErrBadObject, r.sym)
			}
			target := ld.addrs[ti] + r.off
			s, err := ld.resolveSym(r.sym)
			if err != nil {
				return 0, err
			}
			if err = ld.apply(r.kind, target, s, r.addend); err != nil {
				return 0, err
			}
		}
	}
	return extra, nil
}

// resolveSym computes S, the resolved referent address, by symbol type.
func (ld *loader) resolveSym(idx int) (uintptr, error) {
	s := &ld.img.symtab[idx]
	switch elf.ST_TYPE(s.Info) {
	case elf.STT_SECTION:
		return ld.sectionAddr(s.Shndx)
	case elf.STT_FUNC, elf.STT_OBJECT:
		// Rewritten to the absolute address by buildIndex.
		return uintptr(s.Value), nil
	case elf.STT_NOTYPE:
		if s.Shndx == uint16(elf.SHN_UNDEF) {
			name := ld.img.name(s.Name)
			if addr, ok := ld.obj.resolve(name); ok {
				if ld.obj.debug {
					log.Printf("objfcn: host symbol %s => %#x", name, addr)
				}
				return addr, nil
			}
			return 0, fmt.Errorf("%w: failed to resolve %s", ErrUnresolvedSymbol, name)
		}
		return ld.sectionAddr(s.Shndx)
	default:
		return 0, fmt.Errorf("%w %d", ErrBadSymbolType, elf.ST_TYPE(s.Info))
	}
}

func (ld *loader) sectionAddr(shndx uint16) (uintptr, error) {
	if int(shndx) >= len(ld.addrs) {
		return 0, fmt.Errorf("%w: symbol section %d out of range", ErrBadObject, shndx)
	}
	return ld.addrs[shndx], nil
}

// patch32 adds delta to the 32-bit patch site; the pre-stored bytes carry the
// implicit addend of REL entries.
func (ld *loader) patch32(target uintptr, delta uint32) error {
	b, err := ld.obj.arena.at(target, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, binary.LittleEndian.Uint32(b)+delta)
	return nil
}

func (ld *loader) patch64(target uintptr, delta uint64) error {
	b, err := ld.obj.arena.at(target, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, binary.LittleEndian.Uint64(b)+delta)
	return nil
}
