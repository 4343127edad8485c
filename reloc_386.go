//go:build 386

package objfcn

import (
	"debug/elf"
	"fmt"
)

// On x86-32 every address is reachable by a 32-bit displacement or absolute
// word, so no trampoline or GOT space is ever claimed.

func relocBudget(kind uint32) (uintptr, error) {
	switch elf.R_386(kind) {
	case elf.R_386_32, elf.R_386_PC32:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownReloc, kind)
	}
}

func (ld *loader) apply(kind uint32, target, s uintptr, addend int64) error {
	switch elf.R_386(kind) {
	case elf.R_386_32:
		return ld.patch32(target, uint32(uint64(s)+uint64(addend)))
	case elf.R_386_PC32:
		return ld.patch32(target, uint32(uint64(s-target)+uint64(addend)))
	default:
		return fmt.Errorf("%w: %d", ErrUnknownReloc, kind)
	}
}
