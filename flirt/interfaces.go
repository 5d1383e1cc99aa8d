package flirt

import (
	"io"

	"sigview/types"
)

// PatternDB is an opaque parsed pattern database. The pipeline never looks
// inside it; it only hands it back to the Matcher that produced it.
type PatternDB interface{}

// MatchSink receives raw hits from a Matcher. Zero or more calls per
// Match invocation, none after Match returns.
type MatchSink interface {
	OnHit(offset uint64, name string)
}

// Matcher is the external byte-pattern matching engine.
type Matcher interface {
	// Parse reads one pattern database. A malformed database returns an
	// error; the reader is owned by the caller.
	Parse(r io.Reader) (PatternDB, error)

	// Match scans buf, loaded from base, against db and reports hits to
	// sink synchronously.
	Match(db PatternDB, buf []byte, base uint64, sink MatchSink) error
}

// Segment describes one loaded memory segment of the target binary.
type Segment struct {
	Base     uint64
	FileSize uint64 // bytes backed by the file on disk
	MemSize  uint64 // bytes occupied in memory
}

// AddressSpace provides read access to the target binary's loaded memory.
type AddressSpace interface {
	// LoadBytes reads up to n bytes starting at addr. Fewer bytes than
	// requested may come back near the end of mapped memory; that is not
	// an error.
	LoadBytes(addr uint64, n int) []byte

	Segments() []Segment
}

// FunctionDirectory is the knowledge store's view of discovered
// functions. Functions returns a live view: renames performed earlier in
// a run are visible to later signatures.
type FunctionDirectory interface {
	Functions() []*types.Function
	FunctionAt(addr uint64) (*types.Function, bool)
}

// Logger interface for outputting messages
type Logger interface {
	Debug(component, format string, args ...interface{})
	Info(component, format string, args ...interface{})
	Warning(component, format string, args ...interface{})
	Error(component, format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, string, ...interface{})   {}
func (nopLogger) Info(string, string, ...interface{})    {}
func (nopLogger) Warning(string, string, ...interface{}) {}
func (nopLogger) Error(string, string, ...interface{})   {}
