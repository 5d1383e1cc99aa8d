package flirt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"sigview/types"
)

// scanPad is loaded beyond the last recognized block so patterns that
// reach into tail calls or trailing data still have bytes to look at.
const scanPad = 0x100

// ErrNoSignatures is returned when heuristic mode is requested against an
// empty catalog.
var ErrNoSignatures = errors.New("no signatures loaded; populate the catalog before running heuristic matching")

// Config wires an Analysis to its collaborators.
type Config struct {
	// Arch is the target architecture name; matching against catalog
	// signatures is case-insensitive.
	Arch string
	// OS tags the synthetic signature in explicit-file mode.
	OS string

	// SigFile, when set, selects explicit-file mode: the file is wrapped
	// into a single "Temporary" signature and the catalog is bypassed.
	SigFile string
	// Catalog supplies candidate signatures in heuristic mode.
	Catalog *Catalog

	Space     AddressSpace
	Functions FunctionDirectory
	Matcher   Matcher

	Logger Logger

	// SkipSignature, when non-nil, drops candidate signatures from the
	// heuristic list before any matching (operator library exclusions).
	SkipSignature func(types.Signature) bool

	// OnRename, when non-nil, observes every rename as it happens.
	OnRename func(types.RenameEvent)
}

// Analysis matches a list of signatures against every eligible function
// of the target binary and renames recognized functions. Single-threaded;
// callers must not mutate the function directory during Run.
type Analysis struct {
	arch       string
	isARM      bool
	signatures []types.Signature

	space     AddressSpace
	functions FunctionDirectory
	matcher   Matcher
	log       Logger
	onRename  func(types.RenameEvent)

	currentSig types.Signature
	stats      types.RunStats
}

// New prepares an analysis run. In heuristic mode the signature list is
// decided here, from string evidence in the binary's loaded segments; an
// unpopulated catalog is a configuration error.
func New(cfg Config) (*Analysis, error) {
	if cfg.Space == nil || cfg.Functions == nil || cfg.Matcher == nil {
		return nil, errors.New("flirt: address space, function directory and matcher are all required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	arch := strings.ToLower(cfg.Arch)
	a := &Analysis{
		arch:      arch,
		isARM:     types.IsARMFamily(arch),
		space:     cfg.Space,
		functions: cfg.Functions,
		matcher:   cfg.Matcher,
		log:       logger,
		onRename:  cfg.OnRename,
	}

	if cfg.SigFile != "" {
		a.signatures = []types.Signature{{
			Arch:        arch,
			OS:          strings.ToLower(cfg.OS),
			LibraryName: types.TemporaryLibrary,
			Path:        cfg.SigFile,
		}}
		return a, nil
	}

	if cfg.Catalog == nil || cfg.Catalog.Empty() {
		return nil, ErrNoSignatures
	}

	regions := loadedRegions(a.space)
	selector := NewSelector(cfg.Catalog, logger)
	for sig := range selector.SignaturesByStrings(regions, arch) {
		if cfg.SkipSignature != nil && cfg.SkipSignature(sig) {
			logger.Debug("flirt", "Excluding signature %s (%s) by operator filter", sig.LibraryName, sig.Path)
			continue
		}
		a.signatures = append(a.signatures, sig)
	}
	logger.Debug("flirt", "Identified %d signatures to apply.", len(a.signatures))
	return a, nil
}

// Signatures returns the signatures this run will apply, in order.
func (a *Analysis) Signatures() []types.Signature {
	out := make([]types.Signature, len(a.signatures))
	copy(out, a.signatures)
	return out
}

// Stats returns the counters of the last Run.
func (a *Analysis) Stats() types.RunStats {
	return a.stats
}

// loadedRegions reads the bytes of every file-backed, non-empty loaded
// segment.
func loadedRegions(space AddressSpace) [][]byte {
	var regions [][]byte
	for _, seg := range space.Segments() {
		if seg.FileSize == 0 || seg.MemSize == 0 {
			continue
		}
		regions = append(regions, space.LoadBytes(seg.Base, int(seg.MemSize)))
	}
	return regions
}

// Run applies every signature in order. A database that fails to parse is
// skipped with a diagnostic so one malformed file cannot block the rest;
// a database that cannot be opened at all aborts the run.
func (a *Analysis) Run(ctx context.Context) error {
	for _, sig := range a.signatures {
		if err := a.matchAllAgainstOne(ctx, sig); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analysis) matchAllAgainstOne(ctx context.Context, sig types.Signature) error {
	f, err := os.Open(sig.Path)
	if err != nil {
		return fmt.Errorf("failed to open signature %s: %w", sig.Path, err)
	}
	defer f.Close()

	db, err := a.matcher.Parse(f)
	if err != nil {
		a.log.Warning("flirt", "Skipping signature %s (%s): %v", sig.LibraryName, sig.Path, err)
		a.stats.ParseFailures++
		return nil
	}

	a.currentSig = sig
	a.stats.SignaturesApplied++

	for _, fn := range a.functions.Functions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if fn.IsStub || fn.IsSimulated {
			continue
		}
		if !fn.HasDefaultName {
			// it already has a name. skip
			continue
		}

		start := fn.Addr
		if a.isARM {
			start &^= 1 // Thumb bit is an encoding tag, not part of the address
		}

		last, ok := fn.LastBlock()
		if !ok {
			a.log.Debug("flirt", "Function at %#x has no recognized blocks; skipping", fn.Addr)
			continue
		}
		end := last.Addr + last.Size
		if a.isARM {
			end &^= 1
		}

		buf := a.space.LoadBytes(start, int(end-start)+scanPad)
		a.stats.FunctionsScanned++

		sink := &resolveSink{analysis: a, fn: fn, base: start}
		if err := a.matcher.Match(db, buf, start, sink); err != nil {
			a.log.Warning("flirt", "Matcher failed on function %#x with %s: %v", fn.Addr, sig.LibraryName, err)
		}
	}
	return nil
}

// resolveSink forwards raw matcher hits to the resolver together with the
// function being scanned.
type resolveSink struct {
	analysis *Analysis
	fn       *types.Function
	base     uint64
}

func (s *resolveSink) OnHit(offset uint64, name string) {
	s.analysis.onFunctionMatched(s.fn, types.MatchHit{Base: s.base, Offset: offset, Name: name})
}

// onFunctionMatched resolves one raw hit to the function owning the
// matched address and applies the naming policy.
func (a *Analysis) onFunctionMatched(fn *types.Function, hit types.MatchHit) {
	matched := hit.Base + hit.Offset
	target := fn
	if matched != hit.Base {
		// The matcher recognized some other address inside the scanned
		// window; look up its owner.
		var ok bool
		target, ok = a.functions.FunctionAt(matched)
		if !ok && a.isARM {
			// Thumb entry points carry the low bit set in the directory.
			target, ok = a.functions.FunctionAt(matched + 1)
		}
		if !ok {
			a.log.Warning("flirt", "Matched a function at %#x but it does not exist in the function directory.", matched)
			a.stats.DroppedUnknownAddr++
			return
		}
	}

	if !target.HasDefaultName {
		a.stats.DroppedNamed++
		return
	}

	a.log.Debug("flirt", "Identified %s @ %#x (%#x+%#x)", hit.Name, matched, hit.Base, hit.Offset)
	old := target.Name
	if hit.Name != types.AnonymousName {
		target.Name = hit.Name
	} else {
		target.Name = fmt.Sprintf("unknown_function_%x", target.Addr)
	}
	target.HasDefaultName = false
	target.FromSignature = "flirt"
	a.stats.Renamed++

	if a.onRename != nil {
		a.onRename(types.RenameEvent{
			Timestamp: time.Now(),
			Addr:      target.Addr,
			OldName:   old,
			NewName:   target.Name,
			Library:   a.currentSig.LibraryName,
			SigPath:   a.currentSig.Path,
		})
	}
}
