// Package codetables translates statement vocabulary (source codes, usage types,
// participant roles) into the catalog's canonical vocabulary.
package codetables

import (
	"sort"
	"strings"
)

// Tables is an immutable set of lookups. Build one with New or Default and share it freely.
type Tables struct {
	sources map[string]string
	usages  map[string]string
	roles   map[string]string
}

//nolint:gochecknoglobals // Static lookup table
var defaultSources = map[string]string{
	"R":    "Radio",
	"RAD":  "Radio",
	"TV":   "Television",
	"CTV":  "Cable Television",
	"DIG":  "Digital",
	"STR":  "Streaming",
	"LIVE": "Live Performance",
	"LP":   "Live Performance",
	"BG":   "Background Music",
	"INT":  "International",
	"FOR":  "International",
	"CIN":  "Cinema",
	"GEN":  "General Licensing",
}

//nolint:gochecknoglobals // Static lookup table
var defaultUsages = map[string]string{
	"PERF":  "performance",
	"PRF":   "performance",
	"P":     "performance",
	"MECH":  "mechanical",
	"MEC":   "mechanical",
	"M":     "mechanical",
	"SYNC":  "sync",
	"SYN":   "sync",
	"DIG":   "digital",
	"STR":   "digital",
	"PRINT": "print",
	"NEIGH": "neighboring",
}

//nolint:gochecknoglobals // Static lookup table
var defaultRoles = map[string]string{
	"W":   "writer",
	"WR":  "writer",
	"CA":  "writer",
	"C":   "composer",
	"A":   "lyricist",
	"AR":  "arranger",
	"P":   "publisher",
	"E":   "publisher",
	"PUB": "publisher",
	"OP":  "publisher",
	"SE":  "sub-publisher",
	"AM":  "administrator",
	"ADM": "administrator",
}

// New copies the supplied maps; later mutation of the arguments does not affect the Tables.
func New(sources, usages, roles map[string]string) *Tables {
	return &Tables{
		sources: copyKeys(sources),
		usages:  copyKeys(usages),
		roles:   copyKeys(roles),
	}
}

// Default returns the built-in tables.
func Default() *Tables {
	return New(defaultSources, defaultUsages, defaultRoles)
}

// Source maps a source code to its label; unknown codes pass through trimmed.
func (t *Tables) Source(code string) string {
	return lookup(t.sources, code)
}

// RoyaltyType maps a usage type to the canonical royalty type.
func (t *Tables) RoyaltyType(usage string) string {
	return lookup(t.usages, usage)
}

// Role maps a participant role to the canonical role.
func (t *Tables) Role(role string) string {
	return lookup(t.roles, role)
}

// Sources lists the distinct canonical source labels, used by the staging filter UI.
func (t *Tables) Sources() []string {
	seen := make(map[string]bool, len(t.sources))
	var out []string
	for _, label := range t.sources {
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

func lookup(table map[string]string, raw string) string {
	trimmed := strings.TrimSpace(raw)
	if v, ok := table[strings.ToUpper(trimmed)]; ok {
		return v
	}
	return trimmed
}

func copyKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}
