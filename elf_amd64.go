//go:build amd64

package objfcn

import (
	"debug/elf"
	"encoding/binary"
)

// 64-bit ELF layouts. Field names match the 32-bit variant so the loader is
// word-size agnostic.

type (
	word  = uint64
	sword = int64

	ehdr struct {
		Ident     [16]byte
		Type      uint16
		Machine   uint16
		Version   uint32
		Entry     uint64
		Phoff     uint64
		Shoff     uint64
		Flags     uint32
		Ehsize    uint16
		Phentsize uint16
		Phnum     uint16
		Shentsize uint16
		Shnum     uint16
		Shstrndx  uint16
	}

	shdr struct {
		Name      uint32
		Type      uint32
		Flags     uint64
		Addr      uint64
		Offset    uint64
		Size      uint64
		Link      uint32
		Info      uint32
		Addralign uint64
		Entsize   uint64
	}

	sym struct {
		Name  uint32
		Info  uint8
		Other uint8
		Shndx uint16
		Value uint64
		Size  uint64
	}
)

const (
	ehdrSize = 64
	shdrSize = 64
	symSize  = 24
	relSize  = 16
	relaSize = 24

	elfClass    = byte(elf.ELFCLASS64)
	machineType = uint16(elf.EM_X86_64)
)

func decodeReloc(b []byte, withAddend bool) (r relocEntry) {
	r.off = uintptr(binary.LittleEndian.Uint64(b))
	info := binary.LittleEndian.Uint64(b[8:])
	r.sym = int(info >> 32)
	r.kind = uint32(info)
	if withAddend {
		r.addend = int64(binary.LittleEndian.Uint64(b[16:]))
	}
	return
}

func relocKindName(kind uint32) string {
	return elf.R_X86_64(kind).String()
}
