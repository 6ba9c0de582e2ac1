package vetting

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Allowlist is the static set of known-safe network locations. It is built
// once at start and only read afterwards, so concurrent lookups need no lock.
type Allowlist struct {
	entries map[string]struct{}
}

// NewAllowlist builds an allowlist from network locations.
func NewAllowlist(locations ...string) *Allowlist {
	a := &Allowlist{entries: make(map[string]struct{}, len(locations))}
	for _, loc := range locations {
		if loc = strings.TrimSpace(loc); loc != "" {
			a.entries[loc] = struct{}{}
		}
	}
	return a
}

// LoadAllowlist reads a CSV file whose first column is a network location.
func LoadAllowlist(path string) (*Allowlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open allowlist: %w", err)
	}
	defer f.Close()

	a, err := ReadAllowlist(f)
	if err != nil {
		return nil, fmt.Errorf("read allowlist %s: %w", path, err)
	}
	log.Printf("[ALLOWLIST] Loaded %d known-safe locations from %s", a.Len(), path)
	return a, nil
}

// ReadAllowlist parses allowlist CSV from r. Blank lines and lines starting
// with '#' are skipped, extra columns are ignored.
func ReadAllowlist(r io.Reader) (*Allowlist, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var locations []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		locations = append(locations, record[0])
	}
	return NewAllowlist(locations...), nil
}

// Len returns the number of entries.
func (a *Allowlist) Len() int {
	return len(a.entries)
}

// IsKnownSafe reports whether the network location of raw is an exact match.
// A URL that does not parse is never known-safe.
func (a *Allowlist) IsKnownSafe(raw string) bool {
	loc, err := NetworkLocation(raw)
	if err != nil {
		return false
	}
	_, ok := a.entries[loc]
	return ok
}
