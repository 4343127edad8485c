//go:build 386

package objfcn

import (
	"debug/elf"
	"encoding/binary"
)

// 32-bit ELF layouts. Field names match the 64-bit variant so the loader is
// word-size agnostic.

type (
	word  = uint32
	sword = int32

	ehdr struct {
		Ident     [16]byte
		Type      uint16
		Machine   uint16
		Version   uint32
		Entry     uint32
		Phoff     uint32
		Shoff     uint32
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
		Flags     uint32
		Addr      uint32
		Offset    uint32
		Size      uint32
		Link      uint32
		Info      uint32
		Addralign uint32
		Entsize   uint32
	}

	sym struct {
		Name  uint32
		Value uint32
		Size  uint32
		Info  uint8
		Other uint8
		Shndx uint16
	}
)

const (
	ehdrSize = 52
	shdrSize = 40
	symSize  = 16
	relSize  = 8
	relaSize = 12

	elfClass    = byte(elf.ELFCLASS32)
	machineType = uint16(elf.EM_386)
)

func decodeReloc(b []byte, withAddend bool) (r relocEntry) {
	r.off = uintptr(binary.LittleEndian.Uint32(b))
	info := binary.LittleEndian.Uint32(b[4:])
	r.sym = int(info >> 8)
	r.kind = info & 0xff
	if withAddend {
		r.addend = int64(int32(binary.LittleEndian.Uint32(b[8:])))
	}
	return
}

func relocKindName(kind uint32) string {
	return elf.R_386(kind).String()
}
