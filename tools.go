package objfcn

import (
	"debug/elf"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Compile C sources into relocatable objects in the working directory. The
// output is compiled without PIC so the loader's relocation subset suffices.
func Compile(debug bool, sources []string) error {
	cc := os.Getenv("CC")
	if cc == "" {
		cc = "cc"
	}
	cmd := exec.Command(cc, append([]string{"-c", "-fno-pic", "-fno-stack-protector"}, sources...)...)
	if debug {
		log.Printf("execute: %v", cmd.Args)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Inspect display defined global symbols inside an object file without
// loading it.
func Inspect(file string) ([]string, error) {
	img, err := parseFile(file)
	if err != nil {
		return nil, err
	}
	var names []string
	for i := range img.symtab {
		s := &img.symtab[i]
		if elf.ST_BIND(s.Info) != elf.STB_GLOBAL || s.Shndx == uint16(elf.SHN_UNDEF) {
			continue
		}
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_FUNC, elf.STT_OBJECT:
			names = append(names, img.name(s.Name))
		}
	}
	return names, nil
}

// SectionInfos is a stringer slice of SectionInfo
type SectionInfos []SectionInfo

func (v SectionInfos) String() string {
	s := strings.Builder{}
	for _, i := range v {
		s.WriteString(i.String())
		s.WriteByte('\n')
	}
	return s.String()
}

// SectionInfo describes one section of an object file
type SectionInfo struct {
	Index int
	Name  string
	Type  string
	Size  uint64
	Align uint64
	Alloc bool
}

func (i SectionInfo) String() string {
	flag := ' '
	if i.Alloc {
		flag = 'A'
	}
	return fmt.Sprintf("\t%2d %c %-20s %-12s size=%#x align=%d", i.Index, flag, i.Name, i.Type, i.Size, i.Align)
}

// Sections lists the section table of an object file.
func Sections(file string) (SectionInfos, error) {
	img, err := parseFile(file)
	if err != nil {
		return nil, err
	}
	v := make(SectionInfos, 0, len(img.shdrs))
	for i := range img.shdrs {
		sh := &img.shdrs[i]
		v = append(v, SectionInfo{
			Index: i,
			Name:  img.sectionName(sh),
			Type:  elf.SectionType(sh.Type).String(),
			Size:  uint64(sh.Size),
			Align: uint64(sh.Addralign),
			Alloc: sh.allocated(),
		})
	}
	return v, nil
}

// RelocInfos is a stringer slice of RelocInfo
type RelocInfos []RelocInfo

func (v RelocInfos) String() string {
	s := strings.Builder{}
	for _, i := range v {
		s.WriteString(i.String())
		s.WriteByte('\n')
	}
	return s.String()
}

// RelocInfo describes one relocation entry of an object file
type RelocInfo struct {
	Target string
	Off    uint64
	Kind   string
	Symbol string
	Addend int64
}

func (i RelocInfo) String() string {
	return fmt.Sprintf("\t%s+%#x %-24s %s%+d", i.Target, i.Off, i.Kind, i.Symbol, i.Addend)
}

// Relocs lists every relocation of an object file, including those against
// non-allocated targets the loader would skip.
func Relocs(file string) (RelocInfos, error) {
	img, err := parseFile(file)
	if err != nil {
		return nil, err
	}
	var v RelocInfos
	for i := range img.shdrs {
		sh := &img.shdrs[i]
		withAddend := sh.Type == uint32(elf.SHT_RELA)
		if sh.Type != uint32(elf.SHT_REL) && !withAddend {
			continue
		}
		ti := int(sh.Info)
		if ti >= len(img.shdrs) {
			return nil, fmt.Errorf("%w: relocation target %d out of range", ErrBadObject, ti)
		}
		body, err := img.sectionBytes(i)
		if err != nil {
			return nil, err
		}
		esz := relSize
		if withAddend {
			esz = relaSize
		}
		target := img.sectionName(&img.shdrs[ti])
		for off := 0; off+esz <= len(body); off += esz {
			r := decodeReloc(body[off:], withAddend)
			ri := RelocInfo{
				Target: target,
				Off:    uint64(r.off),
				Kind:   relocKindName(r.kind),
				Addend: r.addend,
			}
			if r.sym < len(img.symtab) {
				s := &img.symtab[r.sym]
				if elf.ST_TYPE(s.Info) == elf.STT_SECTION && int(s.Shndx) < len(img.shdrs) {
					ri.Symbol = img.sectionName(&img.shdrs[s.Shndx])
				} else {
					ri.Symbol = img.name(s.Name)
				}
			}
			v = append(v, ri)
		}
	}
	return v, nil
}

func parseFile(file string) (*image, error) {
	bin, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return parseImage(bin)
}
