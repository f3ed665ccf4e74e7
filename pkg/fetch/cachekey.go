package fetch

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// nonAlnum matches every run of characters that is unsafe in a cache filename.
var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

// keyParamAllowlist lists query parameter keys that are significant for the
// cache key even though they do not end in "id" or "ids".
var keyParamAllowlist = map[string]bool{
	"params": true,
	"volts":  true,
}

// CacheKey derives a stable relative cache path from a URL. The URL path is
// stripped of surrounding slashes and sanitized; a path ending in "json"
// forces a .json extension, anything else gets defaultExt. Query parameters
// whose key ends in "id"/"ids" (or is allow-listed) are appended as
// _key_value suffixes so distinct ids never collide; malformed parameters
// without a literal "=" are ignored. With includeHost the result is
// namespaced under the hostname.
func CacheKey(rawURL, defaultExt string, includeHost bool) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Fall back to sanitizing the whole URL. Still deterministic.
		return nonAlnum.ReplaceAllString(rawURL, "_") + defaultExt
	}

	ext := defaultExt
	name := nonAlnum.ReplaceAllString(strings.Trim(u.Path, "/"), "_")
	if strings.HasSuffix(name, "json") {
		if len(name) >= 5 {
			name = name[:len(name)-5]
		} else {
			name = ""
		}
		ext = ".json"
	}

	// RawQuery is scanned directly: url.Values would reorder keys and drop
	// the malformed entries we want to skip silently.
	for _, param := range strings.Split(u.RawQuery, "&") {
		if strings.Count(param, "=") != 1 {
			continue
		}
		k, v, _ := strings.Cut(param, "=")
		if k == "" {
			continue
		}
		k = strings.ToLower(k)
		if strings.HasSuffix(k, "id") || strings.HasSuffix(k, "ids") || keyParamAllowlist[k] {
			name += "_" + k + "_" + nonAlnum.ReplaceAllString(v, "_")
		}
	}
	name += ext

	if includeHost {
		return path.Join(u.Hostname(), name)
	}
	return name
}
