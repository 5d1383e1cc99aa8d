package outputformats

import (
	"encoding/json"
	"io"
	"time"

	"sigview/types"
)

type JSONFormatter struct {
	encoder    *json.Encoder
	output     io.Writer
	sessionUID string
	binary     BinaryInfo
}

// Structures that will be serialized to JSON, one object per line
type RenameJSON struct {
	Timestamp  string `json:"timestamp"`
	SessionUID string `json:"session_uid"`
	EventType  string `json:"event_type"`
	Binary     struct {
		Path string `json:"path"`
		Hash string `json:"hash,omitempty"`
		Arch string `json:"arch,omitempty"`
	} `json:"binary"`
	Address   string `json:"address"`
	OldName   string `json:"old_name"`
	NewName   string `json:"new_name"`
	Library   string `json:"library,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type SummaryJSON struct {
	Timestamp  string `json:"timestamp"`
	SessionUID string `json:"session_uid"`
	EventType  string `json:"event_type"`
	Stats      struct {
		SignaturesApplied  int `json:"signatures_applied"`
		ParseFailures      int `json:"parse_failures"`
		FunctionsScanned   int `json:"functions_scanned"`
		Renamed            int `json:"renamed"`
		DroppedUnknownAddr int `json:"dropped_unknown_addr"`
		DroppedNamed       int `json:"dropped_named"`
	} `json:"stats"`
}

func NewJSONFormatter(output io.Writer, binary BinaryInfo, sessionUID string) *JSONFormatter {
	return &JSONFormatter{
		encoder:    json.NewEncoder(output),
		output:     output,
		sessionUID: sessionUID,
		binary:     binary,
	}
}

func (f *JSONFormatter) Initialize() error {
	return nil
}

func (f *JSONFormatter) Close() error {
	return nil
}

func (f *JSONFormatter) FormatRename(ev *types.RenameEvent) error {
	out := RenameJSON{
		Timestamp:  ev.Timestamp.Format(time.RFC3339Nano),
		SessionUID: f.sessionUID,
		EventType:  "function_rename",
		Address:    hexAddr(ev.Addr),
		OldName:    ev.OldName,
		NewName:    ev.NewName,
		Library:    ev.Library,
		Signature:  ev.SigPath,
	}
	out.Binary.Path = f.binary.Path
	out.Binary.Hash = f.binary.MD5Hash
	out.Binary.Arch = f.binary.Arch

	return f.encoder.Encode(&out)
}

func (f *JSONFormatter) FormatSummary(stats types.RunStats) error {
	out := SummaryJSON{
		Timestamp:  time.Now().Format(time.RFC3339Nano),
		SessionUID: f.sessionUID,
		EventType:  "run_summary",
	}
	out.Stats.SignaturesApplied = stats.SignaturesApplied
	out.Stats.ParseFailures = stats.ParseFailures
	out.Stats.FunctionsScanned = stats.FunctionsScanned
	out.Stats.Renamed = stats.Renamed
	out.Stats.DroppedUnknownAddr = stats.DroppedUnknownAddr
	out.Stats.DroppedNamed = stats.DroppedNamed

	return f.encoder.Encode(&out)
}
