// Package patmatch implements flirt.Matcher for textual pattern
// databases. One pattern per line:
//
//	<hex bytes, ".." per wildcard byte> <offset-hex> <name>
//
// A pattern recognizes a function when it matches the bytes at the start
// of the scanned window. The reported hit offset is taken from the
// pattern, so a database can name functions referenced at a known
// distance from the recognized entry. A name of "?" reports an anonymous
// hit. Lines starting with "#" or ";" are comments.
package patmatch

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sigview/flirt"
)

type pattern struct {
	bytes  []byte
	mask   []byte // 0xff must match, 0x00 wildcard
	offset uint64
	name   string
}

// DB is a parsed pattern database.
type DB struct {
	patterns []pattern
}

// Len returns the number of patterns in the database.
func (db *DB) Len() int {
	return len(db.patterns)
}

// Engine implements flirt.Matcher.
type Engine struct{}

var _ flirt.Matcher = Engine{}

// Parse reads a textual pattern database.
func (Engine) Parse(r io.Reader) (flirt.PatternDB, error) {
	db := &DB{}
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected <pattern> <offset> <name>, got %d fields", lineno, len(fields))
		}

		bytesPart, maskPart, err := parsePattern(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", lineno, err)
		}
		offset, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad offset %q: %v", lineno, fields[1], err)
		}

		db.patterns = append(db.patterns, pattern{
			bytes:  bytesPart,
			mask:   maskPart,
			offset: offset,
			name:   fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading pattern database: %v", err)
	}
	return db, nil
}

func parsePattern(s string) (b, mask []byte, err error) {
	if len(s)%2 != 0 {
		return nil, nil, fmt.Errorf("pattern %q has odd length", s)
	}
	for i := 0; i < len(s); i += 2 {
		pair := s[i : i+2]
		if pair == ".." {
			b = append(b, 0)
			mask = append(mask, 0)
			continue
		}
		v, err := hex.DecodeString(pair)
		if err != nil {
			return nil, nil, fmt.Errorf("pattern %q: bad byte %q", s, pair)
		}
		b = append(b, v[0])
		mask = append(mask, 0xff)
	}
	fixed := 0
	for _, m := range mask {
		if m != 0 {
			fixed++
		}
	}
	if fixed == 0 {
		return nil, nil, fmt.Errorf("pattern %q has no fixed bytes", s)
	}
	return b, mask, nil
}

// Match tests every pattern against the start of buf and reports hits to
// sink. Synchronous; no sink calls happen after Match returns.
func (Engine) Match(pdb flirt.PatternDB, buf []byte, base uint64, sink flirt.MatchSink) error {
	db, ok := pdb.(*DB)
	if !ok {
		return fmt.Errorf("pattern database is %T, not produced by this matcher", pdb)
	}

	for _, p := range db.patterns {
		if matchesAt(p, buf) {
			sink.OnHit(p.offset, p.name)
		}
	}
	return nil
}

func matchesAt(p pattern, buf []byte) bool {
	if len(buf) < len(p.bytes) {
		return false
	}
	for i, want := range p.bytes {
		if buf[i]&p.mask[i] != want&p.mask[i] {
			return false
		}
	}
	return true
}
