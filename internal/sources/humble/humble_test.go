package humble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func downloads(platforms ...string) *[]Download {
	dls := make([]Download, len(platforms))
	for i, p := range platforms {
		dls[i] = Download{Platform: p}
	}
	return &dls
}

func TestDates(t *testing.T) {
	tests := []struct {
		name     string
		created  string
		expected []string
	}{
		{
			name:     "midday purchase",
			created:  "2020-01-01T10:00:00.000000",
			expected: []string{"2020-01-01"},
		},
		{
			name:     "late purchase spills into the next day",
			created:  "2020-01-01T22:30:00.000000",
			expected: []string{"2020-01-01", "2020-01-02"},
		},
		{
			name:     "exact midnight boundary",
			created:  "2020-01-01T19:00:00.000000",
			expected: []string{"2020-01-01", "2020-01-02"},
		},
		{
			name:     "unparseable timestamp",
			created:  "yesterday",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Order{GameKey: "abc", Created: tt.created}
			assert.Equal(t, tt.expected, o.Dates())
		})
	}
}

func TestGamesDesktopDownload(t *testing.T) {
	o := Order{
		GameKey: "key1",
		Subproducts: []Subproduct{{
			HumanName: " Portal ",
			Downloads: downloads("windows", "linux", "mac"),
		}},
	}

	games, hasExpired := o.Games()
	require.Len(t, games, 1)
	assert.False(t, hasExpired)
	assert.Equal(t, "Portal", games[0].Name)
	assert.Equal(t, "key1", games[0].OrderID)
	assert.Equal(t, []string{"humblebundle"}, games[0].Distribution)
	assert.Equal(t, []string{"linux", "mac", "windows"}, games[0].Platforms)
	assert.True(t, games[0].MustInclude)
}

func TestGamesNonDesktopOnly(t *testing.T) {
	o := Order{
		GameKey: "key1",
		Subproducts: []Subproduct{{
			HumanName: "Mobile Game",
			Downloads: downloads("android"),
		}},
	}

	games, _ := o.Games()
	require.Len(t, games, 1)
	assert.False(t, games[0].MustInclude)
}

func TestGamesNonGameItemsSkipped(t *testing.T) {
	o := Order{
		GameKey: "key1",
		Subproducts: []Subproduct{
			{HumanName: "Soundtrack", Downloads: downloads("audio")},
			{HumanName: "Making-of", Downloads: downloads("video")},
			{HumanName: "Artbook", Downloads: downloads("ebook")},
			{HumanName: "Actual Game", Downloads: downloads("windows")},
		},
	}

	games, _ := o.Games()
	require.Len(t, games, 1)
	assert.Equal(t, "Actual Game", games[0].Name)
}

func TestGamesSteamKey(t *testing.T) {
	o := Order{
		GameKey: "key1",
		TpkdDict: TpkdDict{AllTpks: []Subproduct{{
			HumanName: "Half-Life",
			KeyType:   "steam",
		}}},
	}

	games, _ := o.Games()
	require.Len(t, games, 1)
	assert.Equal(t, []string{"steam"}, games[0].Distribution)
	assert.True(t, games[0].MustInclude)
}

func TestGamesGenericKey(t *testing.T) {
	o := Order{
		GameKey: "key1",
		TpkdDict: TpkdDict{AllTpks: []Subproduct{{
			HumanName: "Some Game",
			KeyType:   "generic",
		}}},
	}

	games, _ := o.Games()
	require.Len(t, games, 1)
	assert.Equal(t, []string{"unknown"}, games[0].Distribution)
	assert.False(t, games[0].MustInclude)
}

func TestGamesUnknownKeyTypeSkipped(t *testing.T) {
	o := Order{
		GameKey: "key1",
		TpkdDict: TpkdDict{AllTpks: []Subproduct{{
			HumanName: "Some Game",
			KeyType:   "origin_keyless",
		}}},
	}

	games, _ := o.Games()
	assert.Empty(t, games)
}

func TestGamesExpiredKey(t *testing.T) {
	o := Order{
		GameKey: "key1",
		TpkdDict: TpkdDict{AllTpks: []Subproduct{{
			HumanName:      "Old Game",
			KeyType:        "steam",
			ExpirationDate: "2019-01-01",
		}}},
	}

	games, hasExpired := o.Games()
	require.Len(t, games, 1)
	assert.True(t, hasExpired)
}

func TestGamesEmptyDownloadsWithKeys(t *testing.T) {
	// An empty (but present) downloads list next to a Steam key for the
	// same game: the download entry is kept but not required.
	o := Order{
		GameKey: "key1",
		Subproducts: []Subproduct{{
			HumanName: "Some Game",
			Downloads: downloads(),
		}},
		TpkdDict: TpkdDict{AllTpks: []Subproduct{{
			HumanName: "Some Game",
			KeyType:   "steam",
		}}},
	}

	games, _ := o.Games()
	require.Len(t, games, 2)
	assert.Equal(t, []string{"unknown"}, games[0].Distribution)
	assert.False(t, games[0].MustInclude)
	assert.True(t, games[1].MustInclude)
}

func TestGamesExpiredGiveawayPage(t *testing.T) {
	o := Order{
		GameKey: "key1",
		Subproducts: []Subproduct{{
			HumanName:      "Free Weekend Game",
			Downloads:      downloads(),
			CustomPageHTML: "<div><span class='merch-countdown'>0</span></div>",
		}},
	}

	games, hasExpired := o.Games()
	assert.Empty(t, games)
	assert.True(t, hasExpired)
}

func TestGamesSubscriptionPlan(t *testing.T) {
	o := Order{
		GameKey: "key1",
		Product: Product{Category: "subscriptionplan"},
	}

	games, hasExpired := o.Games()
	assert.Nil(t, games)
	assert.False(t, hasExpired)
}

func TestGamesBareOrderAssumesSingleGame(t *testing.T) {
	o := Order{
		GameKey: "key1",
		Product: Product{Category: "storefront", MachineName: "somegame", HumanName: "Some Game"},
	}

	games, _ := o.Games()
	require.Len(t, games, 1)
	assert.Equal(t, "Some Game", games[0].Name)
	assert.Equal(t, []string{"unknown"}, games[0].Distribution)
	assert.False(t, games[0].MustInclude)
}

func TestMerge(t *testing.T) {
	games := []CandidateGame{
		{Name: "Zulu", OrderID: "o1", Distribution: []string{"humblebundle"},
			Platforms: []string{"windows"}, MustInclude: false},
		{Name: "Alpha", OrderID: "o1", Distribution: []string{"steam"}, MustInclude: true},
		{Name: "Zulu", OrderID: "o1", Distribution: []string{"steam"},
			Platforms: []string{"linux", "windows"}, MustInclude: true},
	}

	merged := Merge(games)
	require.Len(t, merged, 2)
	assert.Equal(t, "Alpha", merged[0].Name)
	assert.Equal(t, "Zulu", merged[1].Name)
	assert.Equal(t, []string{"humblebundle", "steam"}, merged[1].Distribution)
	assert.Equal(t, []string{"windows", "linux"}, merged[1].Platforms)
	assert.True(t, merged[1].MustInclude, "must-include is sticky across merged entries")
}
