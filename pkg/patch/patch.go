// Package patch defines the metadata rows reported by the server for a patch
// file and the in-process cache that holds the most recent result.
package patch

import (
	"strings"
)

// Entry is one resource contained in a patch as reported by the server.
// Date and Size arrive preformatted for display and are never reparsed.
type Entry struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	BuildType string `json:"buildType"`
	Date      string `json:"date"`
	Size      string `json:"size"`
}

// Dataset caches the entries of the most recently completed successful
// request. It is not safe for concurrent use: the inspection session is its
// only writer and mutates it from its event loop.
type Dataset struct {
	entries []Entry
	set     bool
	source  string
}

// NewDataset returns an absent dataset.
func NewDataset() *Dataset {
	return &Dataset{}
}

// Replace swaps the cached entries for entries, wholesale. source records the
// patch path the entries were requested for.
func (d *Dataset) Replace(source string, entries []Entry) {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	d.entries = cp
	d.set = true
	d.source = source
}

// Entries returns a copy of the cached entries, or nil when absent.
func (d *Dataset) Entries() []Entry {
	if d == nil || !d.set {
		return nil
	}
	cp := make([]Entry, len(d.entries))
	copy(cp, d.entries)
	return cp
}

// Present reports whether a response has ever been stored.
func (d *Dataset) Present() bool {
	return d != nil && d.set
}

// Len returns the number of cached entries.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Source returns the patch path of the cached entries.
func (d *Dataset) Source() string {
	if d == nil {
		return ""
	}
	return d.source
}

// Filter returns the entries whose name contains query, case-insensitively.
// An empty query or "*" matches everything.
func Filter(entries []Entry, query string) []Entry {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" || q == "*" {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToUpper(e.Name), q) {
			out = append(out, e)
		}
	}
	return out
}
