// text.go
package outputformats

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"sigview/types"
)

// TextFormatter implements the original pipe-delimited format
type TextFormatter struct {
	output     io.Writer
	sessionUID string
	binary     BinaryInfo
	mu         sync.Mutex
}

func NewTextFormatter(output io.Writer, binary BinaryInfo, sessionUID string) *TextFormatter {
	return &TextFormatter{
		output:     output,
		sessionUID: sessionUID,
		binary:     binary,
	}
}

func (f *TextFormatter) Initialize() error {
	f.writeRenameHeader()
	return nil
}

func (f *TextFormatter) Close() error {
	return nil
}

func (f *TextFormatter) writeRenameHeader() {
	fmt.Fprintln(f.output, "timestamp|session_uid|binary_hash|address|old_name|new_name|library|signature")
}

func (f *TextFormatter) FormatRename(ev *types.RenameEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	timeStr := ev.Timestamp.Format(time.RFC3339Nano)

	oldName := cleanField(ev.OldName, "-")
	newName := cleanField(ev.NewName, "-")
	library := cleanField(ev.Library, "-")
	sigPath := cleanField(ev.SigPath, "-")

	_, err := fmt.Fprintf(f.output, "%s|%s|%s|0x%x|%s|%s|%s|%s\n",
		timeStr, f.sessionUID, f.binary.MD5Hash,
		ev.Addr, oldName, newName, library, sigPath)
	return err
}

func (f *TextFormatter) FormatSummary(stats types.RunStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, err := fmt.Fprintf(f.output,
		"# signatures_applied=%d parse_failures=%d functions_scanned=%d renamed=%d dropped_unknown_addr=%d dropped_named=%d\n",
		stats.SignaturesApplied, stats.ParseFailures, stats.FunctionsScanned,
		stats.Renamed, stats.DroppedUnknownAddr, stats.DroppedNamed)
	return err
}

// cleanField makes a value safe for pipe-delimited output
func cleanField(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	value = strings.ReplaceAll(value, "|", "_")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
