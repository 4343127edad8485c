package objfcn

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// arena is one anonymous mapping, readable, writable and executable at once so
// relocations can patch code in place. A bump cursor hands out subranges; the
// cursor never rewinds and the region never grows, so every address handed out
// stays valid until release.
type arena struct {
	mem  []byte
	base uintptr
	used uintptr
}

// liveArenas counts mapped arenas; load-failure tests assert it drops back.
var liveArenas int

func newArena(size uintptr) (*arena, error) {
	page := uintptr(os.Getpagesize())
	n := alignUp(size, page)
	if n == 0 {
		n = page
	}
	mem, err := unix.Mmap(-1, 0, int(n),
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap failed: %v", ErrArena, err)
	}
	liveArenas++
	return &arena{mem: mem, base: uintptr(unsafe.Pointer(&mem[0]))}, nil
}

func (a *arena) size() uintptr {
	return uintptr(len(a.mem))
}

func (a *arena) alloc(n uintptr) (uintptr, error) {
	if n > a.size()-a.used {
		return 0, fmt.Errorf("%w: arena exhausted (%#x used of %#x)", ErrArena, a.used, a.size())
	}
	addr := a.base + a.used
	a.used += n
	return addr, nil
}

func (a *arena) alignTo(n uintptr) {
	a.used = alignUp(a.used, n)
}

// at returns a writable view of n bytes at an absolute address inside the
// arena. Patch sites from untrusted relocation offsets go through here.
func (a *arena) at(addr uintptr, n int) ([]byte, error) {
	off := addr - a.base
	if off >= a.size() || uintptr(n) > a.size()-off {
		return nil, fmt.Errorf("%w: address %#x outside arena", ErrBadObject, addr)
	}
	return a.mem[off : off+uintptr(n)], nil
}

func (a *arena) contains(addr uintptr) bool {
	return addr >= a.base && addr < a.base+a.size()
}

// protect drops write permission once loading is done, for callers with W^X
// requirements. Irreversible for the lifetime of the arena.
func (a *arena) protect() error {
	return unix.Mprotect(a.mem, unix.PROT_READ|unix.PROT_EXEC)
}

func (a *arena) release() error {
	if a.mem == nil {
		return nil
	}
	mem := a.mem
	a.mem = nil
	liveArenas--
	return unix.Munmap(mem)
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
