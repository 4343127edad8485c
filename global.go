package objfcn

import (
	"debug/elf"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ZenLiuCN/fn"
)

// host is the process-wide symbol registry the default resolver consults for
// undefined references. Seeded from the host executable at startup, extended
// by RegisterLibrary and RegisterSymbol.
var host map[string]uintptr

const selfExe = "/proc/self/exe"

func init() {
	host = make(map[string]uintptr)
	fn.Panic(registerImage(host, selfExe))
}

// RegisterLibrary adds the dynamic symbols of an already mapped shared object
// to the process registry.
func RegisterLibrary(path string) error {
	return registerImage(host, path)
}

// RegisterSymbol adds one name to the process registry, overriding any
// previous entry.
func RegisterSymbol(name string, addr uintptr) {
	host[name] = addr
}

// RegisterSymbols adds a batch of names to the process registry.
func RegisterSymbols(symbols map[string]uintptr) {
	for name, addr := range symbols {
		host[name] = addr
	}
}

// HostSymbols dump symbol names inside the process registry
func HostSymbols() []string {
	return fn.MapKeys(host)
}

// Registry returns a copy of the process registry, for callers that layer
// their own resolution scope on top (see the pool subpackage).
func Registry() map[string]uintptr {
	return maps.Clone(host)
}

func hostResolve(name string) (uintptr, bool) {
	addr, ok := host[name]
	return addr, ok
}

// registerImage walks the symtab and dynsym of a mapped ELF file and records
// each defined symbol at its run-time address.
func registerImage(tbl map[string]uintptr, path string) error {
	f, err := elf.Open(path)
	if err != nil {
		return err
	}
	defer fn.IgnoreClose(f)
	base, err := imageBase(f, path)
	if err != nil {
		return err
	}
	add := func(syms []elf.Symbol, err error) error {
		if err != nil {
			if errors.Is(err, elf.ErrNoSymbols) {
				return nil
			}
			return err
		}
		for _, s := range syms {
			if s.Name == "" || s.Section == elf.SHN_UNDEF {
				continue
			}
			switch elf.ST_TYPE(s.Info) {
			case elf.STT_FUNC, elf.STT_OBJECT, elf.STT_NOTYPE:
			default:
				continue
			}
			if _, ok := tbl[s.Name]; ok {
				continue
			}
			tbl[s.Name] = base + uintptr(s.Value)
		}
		return nil
	}
	if err = add(f.Symbols()); err != nil {
		return err
	}
	return add(f.DynamicSymbols())
}

// imageBase computes the load bias of a mapped file: zero for fixed-address
// executables, mapping start minus the lowest PT_LOAD vaddr for ET_DYN.
func imageBase(f *elf.File, path string) (uintptr, error) {
	if f.Type == elf.ET_EXEC {
		return 0, nil
	}
	start, err := mappingStart(path)
	if err != nil {
		return 0, err
	}
	min := ^uint64(0)
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD && p.Vaddr < min {
			min = p.Vaddr
		}
	}
	if min == ^uint64(0) {
		min = 0
	}
	return start - uintptr(min), nil
}

// mappingStart finds the lowest address the file is mapped at in this process.
func mappingStart(path string) (uintptr, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	data, err := os.ReadFile("/proc/self/maps")
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 || fields[5] != path {
			continue
		}
		lo, _, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		start, err := strconv.ParseUint(lo, 16, 64)
		if err != nil {
			continue
		}
		return uintptr(start), nil
	}
	return 0, fmt.Errorf("%s is not mapped", path)
}
