//go:build amd64

package objfcn

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// PC-relative-32 displacements only reach ±2 GiB. Host symbols usually live
// much farther from the arena, so PLT32 calls bounce through a synthesized
// arena-resident trampoline and GOTPCRELX loads read an arena-resident slot.
const (
	pltSlotSize = 14 // ff 25 00 00 00 00 + 8-byte absolute target
	gotSlotSize = 8
)

func relocBudget(kind uint32) (uintptr, error) {
	switch elf.R_X86_64(kind) {
	case elf.R_X86_64_64, elf.R_X86_64_PC32:
		return 0, nil
	case elf.R_X86_64_PLT32:
		return pltSlotSize, nil
	case elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
		return gotSlotSize, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownReloc, kind)
	}
}

func (ld *loader) apply(kind uint32, target, s uintptr, addend int64) error {
	switch elf.R_X86_64(kind) {
	case elf.R_X86_64_64:
		return ld.patch64(target, uint64(s)+uint64(addend))
	case elf.R_X86_64_PC32:
		return ld.patch32(target, uint32(uint64(s-target)+uint64(addend)))
	case elf.R_X86_64_PLT32:
		tr, err := ld.emitTrampoline(s)
		if err != nil {
			return err
		}
		return ld.patch32(target, uint32(uint64(tr-target)+uint64(addend)))
	case elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
		slot, err := ld.emitGotSlot(s)
		if err != nil {
			return err
		}
		return ld.patch32(target, uint32(uint64(slot-target)+uint64(addend)))
	default:
		return fmt.Errorf("%w: %d", ErrUnknownReloc, kind)
	}
}

// emitTrampoline writes an indirect far jump to dest:
//
//	ff 25 00 00 00 00    jmp *0(%rip)
//	<8-byte dest>
func (ld *loader) emitTrampoline(dest uintptr) (uintptr, error) {
	addr, err := ld.obj.arena.alloc(pltSlotSize)
	if err != nil {
		return 0, err
	}
	b, err := ld.obj.arena.at(addr, pltSlotSize)
	if err != nil {
		return 0, err
	}
	b[0], b[1] = 0xff, 0x25
	binary.LittleEndian.PutUint32(b[2:], 0)
	binary.LittleEndian.PutUint64(b[6:], uint64(dest))
	return addr, nil
}

func (ld *loader) emitGotSlot(dest uintptr) (uintptr, error) {
	addr, err := ld.obj.arena.alloc(gotSlotSize)
	if err != nil {
		return 0, err
	}
	b, err := ld.obj.arena.at(addr, gotSlotSize)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint64(b, uint64(dest))
	return addr, nil
}
