// Package match implements the name-matching engine used to associate
// database records with remote catalog and purchase records: exact lookup
// first, then fuzzy similarity matching with a configurable cutoff, plus the
// set-relationship classification applied to the recorded and discovered
// identifier sets.
package match

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/macfreek/game-db-manager/pkg/logging"
)

// DefaultCutoff is the fuzzy similarity threshold used by most passes.
// Strict mode raises it to 1.0, which effectively disables fuzzy matching.
const DefaultCutoff = 0.8

// maxFuzzyMatches bounds the number of fuzzy candidates considered per name.
const maxFuzzyMatches = 100

// knownAsPattern extracts an extra candidate name from a free-text note,
// e.g. "Also known as Q.U.B.E. Director's Cut." up to the next period.
var knownAsPattern = regexp.MustCompile(`(?i)known as (.*?)(\.|$)`)

// Index maps a display name to the identifiers using that name. A list, not
// a singleton: catalog names collide.
type Index[ID comparable] map[string][]ID

// Invert builds an Index from an identifier-to-name mapping.
func Invert[ID comparable](byID map[ID]string) Index[ID] {
	index := make(Index[ID], len(byID))
	for id, name := range byID {
		index[name] = append(index[name], id)
	}
	return index
}

// CandidateNames returns the candidate names for a record in priority order:
// the primary name first, then the alias if distinct, then any "known as X"
// name extracted from the free-text note.
func CandidateNames(name, alias, note string) []string {
	names := []string{name}
	if alias != "" && alias != name {
		names = append(names, alias)
	}
	if note != "" {
		if m := knownAsPattern.FindStringSubmatch(note); m != nil {
			names = append(names, m[1])
		}
	}
	return names
}

// FindBest returns the identifiers best matching the candidate names.
// An exact hit on any candidate wins immediately, regardless of how good a
// fuzzy match a later candidate might have been. Only when no candidate
// matches exactly is a fuzzy pass run per candidate; the first candidate
// with any fuzzy hits contributes the union of the matched identifier lists.
// No match at all yields an empty (nil) result. Result order is discovery
// order and duplicates across matched keys are preserved.
func FindBest[ID comparable](names []string, index Index[ID], cutoff float64) []ID {
	for _, name := range names {
		if ids, ok := index[name]; ok {
			logging.Debug().Str("name", names[0]).Str("match", name).Msg("exact match")
			return ids
		}
	}
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	// Stable key order so repeated runs report identical results.
	sort.Strings(keys)
	for _, name := range names {
		matches := closeMatches(name, keys, maxFuzzyMatches, cutoff)
		if len(matches) == 0 {
			continue
		}
		var ids []ID
		for _, key := range matches {
			ids = append(ids, index[key]...)
		}
		logging.Debug().Str("name", names[0]).Strs("matches", matches).Msg("fuzzy match")
		return ids
	}
	logging.Debug().Strs("names", names).Msg("no match")
	return nil
}

// closeMatches returns up to n keys whose similarity ratio to name is at
// least cutoff, best matches first. The ratio is the character-level
// SequenceMatcher ratio; a pair at exactly the cutoff is included.
func closeMatches(name string, keys []string, n int, cutoff float64) []string {
	type scored struct {
		key   string
		ratio float64
	}
	var result []scored
	m := difflib.NewMatcher(nil, chars(name))
	for _, key := range keys {
		m.SetSeq1(chars(key))
		// Cheap upper bounds first; Ratio is quadratic.
		if m.QuickRatio() >= cutoff && m.Ratio() >= cutoff {
			result = append(result, scored{key, m.Ratio()})
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ratio > result[j].ratio
	})
	if len(result) > n {
		result = result[:n]
	}
	out := make([]string, len(result))
	for i, s := range result {
		out[i] = s.key
	}
	return out
}

// chars explodes a string into per-rune elements for character-level
// sequence matching.
func chars(s string) []string {
	return strings.Split(s, "")
}
