package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		defaultExt  string
		includeHost bool
		expected    string
	}{
		{
			name:        "id parameter namespaced under host",
			url:         "https://store.steampowered.com/api/appdetails?appids=400",
			defaultExt:  ".json",
			includeHost: true,
			expected:    "store.steampowered.com/api_appdetails_appids_400.json",
		},
		{
			name:       "without host prefix",
			url:        "https://store.steampowered.com/api/appdetails?appids=400",
			defaultExt: ".json",
			expected:   "api_appdetails_appids_400.json",
		},
		{
			name:       "json path suffix forces json extension",
			url:        "https://embed.gog.com/reviews/product/the_witness.json",
			defaultExt: ".html",
			expected:   "reviews_product_the_witness.json",
		},
		{
			name:       "plain page",
			url:        "https://www.humblebundle.com/home/library",
			defaultExt: ".html",
			expected:   "home_library.html",
		},
		{
			name:       "non-id parameters are ignored",
			url:        "https://example.com/games?format=xml&tab=all",
			defaultExt: ".html",
			expected:   "games.html",
		},
		{
			name:       "allow-listed parameter",
			url:        "https://example.com/list?params=abc",
			defaultExt: ".html",
			expected:   "list_params_abc.html",
		},
		{
			name:       "malformed parameters are skipped",
			url:        "https://example.com/list?appids&steamid=5=6&orderid=9",
			defaultExt: ".html",
			expected:   "list_orderid_9.html",
		},
		{
			name:       "parameter values are sanitized",
			url:        "https://example.com/order?orderid=a/b c",
			defaultExt: ".html",
			expected:   "order_orderid_a_b_c.html",
		},
		{
			name:       "id parameter keys are lowercased",
			url:        "https://example.com/owned?steamID=42",
			defaultExt: ".html",
			expected:   "owned_steamid_42.html",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CacheKey(tt.url, tt.defaultExt, tt.includeHost))
		})
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	url := "https://api.steampowered.com/IPlayerService/GetOwnedGames/v0001/?key=secret&steamid=123&format=json"
	first := CacheKey(url, ".json", true)
	assert.Equal(t, first, CacheKey(url, ".json", true))
	assert.Equal(t, "api.steampowered.com/IPlayerService_GetOwnedGames_v0001_steamid_123.json", first)
}

func TestCacheKeyDistinctIDs(t *testing.T) {
	a := CacheKey("https://store.steampowered.com/api/appdetails?appids=400", ".json", true)
	b := CacheKey("https://store.steampowered.com/api/appdetails?appids=620", ".json", true)
	assert.NotEqual(t, a, b)
}
