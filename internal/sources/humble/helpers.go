package humble

import (
	"maps"
	"slices"
	"strings"
)

func trimName(name string) string {
	return strings.TrimSpace(name)
}

func containsExpiredCountdown(html string) bool {
	return strings.Contains(html, expiredCountdown)
}

// anyOf reports whether any key of set is in group.
func anyOf(set, group map[string]bool) bool {
	for key := range set {
		if group[key] {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	return slices.Sorted(maps.Keys(set))
}
