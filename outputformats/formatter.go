package outputformats

import (
	"fmt"

	"sigview/types"
)

// BinaryInfo identifies the analyzed binary for correlation across runs.
type BinaryInfo struct {
	Path    string
	MD5Hash string
	Arch    string
}

// EventFormatter defines the interface for different output formats
type EventFormatter interface {
	Initialize() error
	Close() error

	FormatRename(ev *types.RenameEvent) error
	FormatSummary(stats types.RunStats) error
}

func hexAddr(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}
