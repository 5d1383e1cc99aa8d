package types

import (
	"strings"
	"time"
)

// AnonymousName is the sentinel a matcher reports when a pattern matched
// but carries no symbol name.
const AnonymousName = "?"

// TemporaryLibrary is the library name assigned to an operator-supplied
// signature file that is not part of any catalog.
const TemporaryLibrary = "Temporary"

// Signature identifies one named pattern database. Immutable once built.
type Signature struct {
	Arch        string // lower-cased architecture name, e.g. "x86", "armel"
	OS          string // lower-cased target OS/environment, e.g. "linux"
	LibraryName string // human-readable library name, e.g. "zlib"
	Path        string // path to the pattern database file
	Description string // optional
}

// Block is one basic block of a function.
type Block struct {
	Addr uint64
	Size uint64
}

// Function is one entry of the knowledge store. The matching pipeline
// mutates Name, HasDefaultName and FromSignature; everything else is
// owned by whoever discovered the function.
type Function struct {
	Addr   uint64
	Blocks []Block

	IsStub      bool // PLT/trampoline thunk, never renamed
	IsSimulated bool // builtin/simulated procedure, never renamed

	HasDefaultName bool   // still carries an auto-generated placeholder name
	Name           string
	FromSignature  string // provenance tag, set when a signature names it
}

// LastBlock returns the block with the highest address, or false when the
// function has no recognized blocks.
func (f *Function) LastBlock() (Block, bool) {
	if len(f.Blocks) == 0 {
		return Block{}, false
	}
	last := f.Blocks[0]
	for _, b := range f.Blocks[1:] {
		if b.Addr > last.Addr {
			last = b
		}
	}
	return last, true
}

// MatchHit is one raw hit reported by a matcher: the base address the
// buffer was scanned at, the byte offset where the pattern fired, and the
// matched symbol name (AnonymousName when unknown).
type MatchHit struct {
	Base   uint64
	Offset uint64
	Name   string
}

// RenameEvent records one function rename performed by the pipeline.
type RenameEvent struct {
	Timestamp time.Time
	Addr      uint64
	OldName   string
	NewName   string
	Library   string
	SigPath   string
}

// RunStats counts what one matching run did.
type RunStats struct {
	SignaturesApplied  int
	ParseFailures      int
	FunctionsScanned   int
	Renamed            int
	DroppedUnknownAddr int
	DroppedNamed       int
}

// IsARMFamily reports whether arch names a 32-bit ARM variant. AArch64
// uses fixed-width encoding and no Thumb bit, so it is excluded.
func IsARMFamily(arch string) bool {
	return strings.HasPrefix(strings.ToLower(arch), "arm")
}
