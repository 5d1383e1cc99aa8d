// elf.go
package main

import (
	"debug/elf"
	"fmt"
	"sort"
	"strings"

	"sigview/flirt"
	"sigview/types"
)

// ELFBinary adapts an on-disk ELF executable into the address space and
// function directory the matching pipeline consumes. Functions come from
// the symbol table; nameless entries get a placeholder name so the
// pipeline considers them for renaming.
type ELFBinary struct {
	path     string
	arch     string
	os       string
	file     *elf.File
	segments []flirt.Segment
	loads    []*elf.Prog
	funcs    []*types.Function
	byAddr   map[uint64]*types.Function
}

var (
	_ flirt.AddressSpace      = (*ELFBinary)(nil)
	_ flirt.FunctionDirectory = (*ELFBinary)(nil)
)

// OpenELFBinary parses path and builds the loaded-segment map and the
// function list. The file stays open because segment reads go through
// the program header readers; release it with Close.
func OpenELFBinary(path string) (*ELFBinary, error) {
	elfFile, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF binary: %v", err)
	}

	b := &ELFBinary{
		path:   path,
		arch:   archName(elfFile.Machine),
		os:     osName(elfFile.OSABI),
		file:   elfFile,
		byAddr: make(map[uint64]*types.Function),
	}

	// Keep only loadable segments; everything else is invisible at runtime
	for _, prog := range elfFile.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		b.loads = append(b.loads, prog)
		b.segments = append(b.segments, flirt.Segment{
			Base:     prog.Vaddr,
			FileSize: prog.Filesz,
			MemSize:  prog.Memsz,
		})
	}

	if err := b.collectFunctions(elfFile); err != nil {
		elfFile.Close()
		return nil, err
	}
	return b, nil
}

func (b *ELFBinary) Close() error {
	return b.file.Close()
}

// collectFunctions builds the function list from the symbol table.
func (b *ELFBinary) collectFunctions(elfFile *elf.File) error {
	symbols, err := elfFile.Symbols()
	if err != nil {
		// A fully stripped binary has no symbol table; the caller decides
		// whether an empty function list is useful.
		symbols = nil
	}

	// Section names of PLT-style trampolines
	pltSections := make(map[elf.SectionIndex]bool)
	for i, section := range elfFile.Sections {
		if strings.HasPrefix(section.Name, ".plt") {
			pltSections[elf.SectionIndex(i)] = true
		}
	}

	for _, sym := range symbols {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		if sym.Section == elf.SHN_UNDEF || sym.Value == 0 {
			continue
		}

		fn := &types.Function{
			Addr:   sym.Value,
			IsStub: pltSections[sym.Section],
			Name:   sym.Name,
		}
		if fn.Name == "" || strings.HasPrefix(fn.Name, "sub_") {
			fn.Name = fmt.Sprintf("sub_%x", sym.Value)
			fn.HasDefaultName = true
		}

		// Without a disassembler the whole symbol extent is one block
		size := sym.Size
		if size == 0 {
			size = 16
		}
		fn.Blocks = []types.Block{{Addr: sym.Value, Size: size}}

		if _, dup := b.byAddr[fn.Addr]; dup {
			continue
		}
		b.funcs = append(b.funcs, fn)
		b.byAddr[fn.Addr] = fn
	}

	sort.Slice(b.funcs, func(i, j int) bool { return b.funcs[i].Addr < b.funcs[j].Addr })
	return nil
}

// Arch returns the lower-cased architecture name used to select catalog
// signatures.
func (b *ELFBinary) Arch() string {
	return b.arch
}

// OS returns the target OS tag derived from the ELF OSABI byte.
func (b *ELFBinary) OS() string {
	return b.os
}

func (b *ELFBinary) Path() string {
	return b.path
}

func (b *ELFBinary) Segments() []flirt.Segment {
	return b.segments
}

// LoadBytes reads up to n bytes at addr from the containing loadable
// segment. Bytes past the file-backed extent read as zero, matching what
// the loader would map; bytes past the segment end are simply not
// returned.
func (b *ELFBinary) LoadBytes(addr uint64, n int) []byte {
	for _, prog := range b.loads {
		if addr < prog.Vaddr || addr >= prog.Vaddr+prog.Memsz {
			continue
		}

		avail := prog.Vaddr + prog.Memsz - addr
		if uint64(n) > avail {
			n = int(avail)
		}
		buf := make([]byte, n)

		fileOff := addr - prog.Vaddr
		if fileOff < prog.Filesz {
			fileN := prog.Filesz - fileOff
			if uint64(n) < fileN {
				fileN = uint64(n)
			}
			if _, err := prog.ReadAt(buf[:fileN], int64(fileOff)); err != nil {
				return nil
			}
		}
		return buf
	}
	return nil
}

func (b *ELFBinary) Functions() []*types.Function {
	return b.funcs
}

func (b *ELFBinary) FunctionAt(addr uint64) (*types.Function, bool) {
	fn, ok := b.byAddr[addr]
	return fn, ok
}

// archName maps an ELF machine to the lower-case architecture names used
// in signature metadata.
// osName maps the ELF OSABI byte to the lower-case OS names used in
// signature metadata. Linux toolchains emit ELFOSABI_NONE, so that maps
// to linux too.
func osName(abi elf.OSABI) string {
	switch abi {
	case elf.ELFOSABI_FREEBSD:
		return "freebsd"
	case elf.ELFOSABI_NETBSD:
		return "netbsd"
	case elf.ELFOSABI_OPENBSD:
		return "openbsd"
	case elf.ELFOSABI_SOLARIS:
		return "solaris"
	default:
		return "linux"
	}
}

func archName(machine elf.Machine) string {
	switch machine {
	case elf.EM_386:
		return "x86"
	case elf.EM_X86_64:
		return "amd64"
	case elf.EM_ARM:
		return "armel"
	case elf.EM_AARCH64:
		return "aarch64"
	case elf.EM_MIPS:
		return "mips"
	case elf.EM_PPC64:
		return "ppc64"
	case elf.EM_RISCV:
		return "riscv"
	default:
		return strings.ToLower(strings.TrimPrefix(machine.String(), "EM_"))
	}
}
