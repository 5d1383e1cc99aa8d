package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// writeMinimalELF builds an x86-64 executable with one PT_LOAD segment
// holding payload at 0x401000, with 8 zero-fill bytes of memory past the
// file-backed extent.
func writeMinimalELF(t *testing.T, payload []byte) string {
	t.Helper()

	const (
		ehsize  = 64
		phsize  = 56
		dataOff = ehsize + phsize
		vaddr   = 0x401000
	)

	buf := make([]byte, dataOff+len(payload))
	le := binary.LittleEndian

	copy(buf, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	le.PutUint16(buf[16:], uint16(elf.ET_EXEC))
	le.PutUint16(buf[18:], uint16(elf.EM_X86_64))
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[24:], vaddr)   // e_entry
	le.PutUint64(buf[32:], ehsize)  // e_phoff
	le.PutUint16(buf[52:], ehsize)  // e_ehsize
	le.PutUint16(buf[54:], phsize)  // e_phentsize
	le.PutUint16(buf[56:], 1)       // e_phnum

	ph := buf[ehsize:]
	le.PutUint32(ph[0:], uint32(elf.PT_LOAD))
	le.PutUint32(ph[4:], uint32(elf.PF_R|elf.PF_X))
	le.PutUint64(ph[8:], dataOff)                 // p_offset
	le.PutUint64(ph[16:], vaddr)                  // p_vaddr
	le.PutUint64(ph[24:], vaddr)                  // p_paddr
	le.PutUint64(ph[32:], uint64(len(payload)))   // p_filesz
	le.PutUint64(ph[40:], uint64(len(payload)+8)) // p_memsz
	le.PutUint64(ph[48:], 0x1000)                 // p_align

	copy(buf[dataOff:], payload)

	path := filepath.Join(t.TempDir(), "target.elf")
	if err := os.WriteFile(path, buf, 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenELFBinaryReadsSegments(t *testing.T) {
	payload := []byte{0x55, 0x48, 0x89, 0xe5, 0xc3, 0x90, 0x90, 0x90}
	b, err := OpenELFBinary(writeMinimalELF(t, payload))
	if err != nil {
		t.Fatalf("OpenELFBinary: %v", err)
	}
	defer b.Close()

	if b.Arch() != "amd64" {
		t.Errorf("Arch() = %q, want amd64", b.Arch())
	}
	if b.OS() != "linux" {
		t.Errorf("OS() = %q, want linux", b.OS())
	}

	segs := b.Segments()
	if len(segs) != 1 || segs[0].Base != 0x401000 {
		t.Fatalf("Segments() = %v, want one segment at 0x401000", segs)
	}

	// reads must work after OpenELFBinary returns, file-backed bytes
	// first, zero fill up to the memory size
	got := b.LoadBytes(segs[0].Base, int(segs[0].MemSize))
	want := append(append([]byte{}, payload...), 0, 0, 0, 0, 0, 0, 0, 0)
	if !bytes.Equal(got, want) {
		t.Errorf("LoadBytes = %v, want %v", got, want)
	}

	if got := b.LoadBytes(segs[0].Base+1, 4); !bytes.Equal(got, payload[1:5]) {
		t.Errorf("LoadBytes(+1, 4) = %v, want %v", got, payload[1:5])
	}
}

func TestArchName(t *testing.T) {
	tests := []struct {
		machine elf.Machine
		want    string
	}{
		{elf.EM_386, "x86"},
		{elf.EM_X86_64, "amd64"},
		{elf.EM_ARM, "armel"},
		{elf.EM_AARCH64, "aarch64"},
		{elf.EM_MIPS, "mips"},
		{elf.EM_S390, "s390"},
	}
	for _, tt := range tests {
		if got := archName(tt.machine); got != tt.want {
			t.Errorf("archName(%v) = %q, want %q", tt.machine, got, tt.want)
		}
	}
}

func TestLoadBytesZeroFill(t *testing.T) {
	// 4 file-backed bytes inside a 16-byte mapping, like a .bss tail
	b := &ELFBinary{
		loads: []*elf.Prog{{
			ProgHeader: elf.ProgHeader{Vaddr: 0x1000, Filesz: 4, Memsz: 16},
			ReaderAt:   bytes.NewReader([]byte{1, 2, 3, 4}),
		}},
	}

	got := b.LoadBytes(0x1000, 16)
	want := []byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("LoadBytes = %v, want file bytes then zeros", got)
	}

	// reads truncate at the segment end instead of failing
	if got := b.LoadBytes(0x1008, 100); len(got) != 8 {
		t.Errorf("LoadBytes past segment end returned %d bytes, want 8", len(got))
	}

	// reads inside the file-backed part honor the offset
	if got := b.LoadBytes(0x1002, 2); !bytes.Equal(got, []byte{3, 4}) {
		t.Errorf("LoadBytes(0x1002, 2) = %v, want [3 4]", got)
	}

	// addresses outside every segment are unmapped
	if got := b.LoadBytes(0x2000, 4); got != nil {
		t.Errorf("LoadBytes on unmapped address = %v, want nil", got)
	}
}
