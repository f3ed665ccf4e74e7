// Package steam wraps the Steam web APIs used to reconcile the collection:
// the full app catalog, per-app details, and the private and public owned
// games listings. All requests go through the shared cache fetcher; TTLs are
// chosen per endpoint by how fast the remote data effectively changes.
package steam

import (
	"fmt"

	"github.com/macfreek/game-db-manager/pkg/errors"
	"github.com/macfreek/game-db-manager/pkg/fetch"
	"github.com/macfreek/game-db-manager/pkg/logging"
)

// API endpoints.
const (
	appListURL     = "https://api.steampowered.com/ISteamApps/GetAppList/v2/"
	ownedGamesURL  = "https://api.steampowered.com/IPlayerService/GetOwnedGames/v0001/?key=%s&steamid=%d&include_appinfo=1&include_played_free_games=1&format=json"
	publicGamesURL = "https://steamcommunity.com/id/%s/games?tab=all&xml=1"
	appDetailsURL  = "https://store.steampowered.com/api/appdetails?appids=%d"

	// StoreAppURL links to an app's store page, for operator reports.
	StoreAppURL = "http://store.steampowered.com/app/%d/"

	// CapsuleImageURL is the capsule image for an app.
	CapsuleImageURL = "http://cdn.akamai.steamstatic.com/steam/apps/%d/capsule_184x69.jpg"
)

// Cache TTLs in days. The full catalog is re-fetched every few days; app
// details rarely change; ownership listings are kept just over a day.
const (
	appListTTL    = 3
	appDetailsTTL = 20
	ownedTTL      = 1.2
	// ImageTTL is used by the image download pass.
	ImageTTL = 100
)

// Client is a typed facade over the Steam APIs.
type Client struct {
	apiKey   string
	userID   int64
	username string
	fetcher  *fetch.Fetcher
}

// New creates a Steam client backed by the given fetcher.
func New(apiKey string, userID int64, username string, f *fetch.Fetcher) *Client {
	return &Client{apiKey: apiKey, userID: userID, username: username, fetcher: f}
}

// UserID returns the configured Steam user id.
func (c *Client) UserID() int64 { return c.userID }

// AllApps returns the full catalog as an appid-to-name map. Duplicate ids in
// the listing are logged and the first name wins.
func (c *Client) AllApps() (map[int]string, error) {
	var payload struct {
		AppList struct {
			Apps []struct {
				AppID *int   `json:"appid"`
				Name  string `json:"name"`
			} `json:"apps"`
		} `json:"applist"`
	}
	_, err := c.fetcher.Do(fetch.Request{
		URL:       appListURL,
		CacheName: "steam_applist.json",
		TTLDays:   appListTTL,
		Kind:      fetch.KindJSON,
		Target:    &payload,
	})
	if err != nil {
		return nil, err
	}
	if payload.AppList.Apps == nil {
		return nil, errors.NewBadShapeError("app list", "",
			"expected {'applist': {'apps': [{'appid': ..., 'name': ...}]}}")
	}
	apps := make(map[int]string, len(payload.AppList.Apps))
	for _, app := range payload.AppList.Apps {
		if app.AppID == nil {
			logging.Warn().Str("name", app.Name).Msg("app list entry without appid")
			continue
		}
		if existing, ok := apps[*app.AppID]; ok {
			logging.Warn().Int("appid", *app.AppID).Str("name", app.Name).
				Str("existing", existing).Msg("duplicate app id")
			continue
		}
		apps[*app.AppID] = app.Name
	}
	return apps, nil
}

// AppDetail holds the fields of an app details response that the
// reconciliation passes use.
type AppDetail struct {
	AppID       int    `json:"steam_appid"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	IsFree      bool   `json:"is_free"`
	ReleaseDate struct {
		Date string `json:"date"`
	} `json:"release_date"`
}

// appDetailsEntry is the per-id wrapper of the appdetails endpoint.
type appDetailsEntry struct {
	Success bool       `json:"success"`
	Data    *AppDetail `json:"data"`
}

// AppDetails returns the details for an app id. When the response reports a
// different canonical id (the queried id is an alias of a master record),
// the lookup transparently re-resolves using the canonical id, bounded to
// one hop per distinct id so a hypothetical redirect cycle cannot loop.
// Returns ErrNotFound (wrapped) when Steam has no data for the id.
func (c *Client) AppDetails(appID int) (*AppDetail, error) {
	return c.appDetails(appID, map[int]bool{appID: true})
}

func (c *Client) appDetails(appID int, visited map[int]bool) (*AppDetail, error) {
	var payload map[string]appDetailsEntry
	_, err := c.fetcher.Do(fetch.Request{
		URL:       fmt.Sprintf(appDetailsURL, appID),
		CacheName: fmt.Sprintf("steam_appdetails_%d.json", appID),
		TTLDays:   appDetailsTTL,
		Kind:      fetch.KindJSON,
		Target:    &payload,
	})
	if err != nil {
		return nil, err
	}
	entry, ok := payload[fmt.Sprint(appID)]
	if !ok {
		logging.Warn().Int("appid", appID).
			Msg("unexpected appdetails format, expected {'<appid>': {'success': ...}}")
		return nil, errors.NewBadShapeError("app details", fmt.Sprint(appID), "missing appid key")
	}
	if !entry.Success {
		logging.Info().Int("appid", appID).Msg("no information available for app")
		return nil, fmt.Errorf("no data available for Steam ID %d: %w", appID, errors.ErrNotFound)
	}
	if entry.Data == nil {
		logging.Warn().Int("appid", appID).
			Msg("unexpected appdetails format, expected {'<appid>': {'data': {'steam_appid': ...}}}")
		return nil, errors.NewBadShapeError("app details", fmt.Sprint(appID), "missing data key")
	}
	if entry.Data.AppID != appID {
		if visited[entry.Data.AppID] {
			logging.Warn().Int("appid", appID).Int("master", entry.Data.AppID).
				Msg("app details redirect cycle")
			return entry.Data, nil
		}
		visited[entry.Data.AppID] = true
		logging.Debug().Int("appid", appID).Int("master", entry.Data.AppID).
			Msg("app details redirect to master id")
		return c.appDetails(entry.Data.AppID, visited)
	}
	return entry.Data, nil
}

// OwnedApp is one entry of an owned-games listing.
type OwnedApp struct {
	AppID int    `json:"appid"`
	Name  string `json:"name"`
	Logo  string `json:"img_logo_url"`
}

// OwnedApps returns the apps owned by the configured user via the private,
// key-authenticated API. This listing somehow omits a few owned games; see
// OwnedAppsPublic for the complementary source.
func (c *Client) OwnedApps() (map[int]OwnedApp, error) {
	var payload struct {
		Response struct {
			Games []OwnedApp `json:"games"`
		} `json:"response"`
	}
	_, err := c.fetcher.Do(fetch.Request{
		URL:       fmt.Sprintf(ownedGamesURL, c.apiKey, c.userID),
		CacheName: fmt.Sprintf("steam_ownedgames_%d.json", c.userID),
		TTLDays:   ownedTTL,
		Kind:      fetch.KindJSON,
		Target:    &payload,
	})
	if err != nil {
		return nil, err
	}
	if payload.Response.Games == nil {
		return nil, errors.NewBadShapeError("owned games", fmt.Sprint(c.userID),
			"expected {'response': {'games': [{'appid': ...}]}}")
	}
	games := make(map[int]OwnedApp, len(payload.Response.Games))
	for _, game := range payload.Response.Games {
		games[game.AppID] = game
	}
	return games, nil
}

// gamesList is the XML shape of the public community profile games page.
type gamesList struct {
	Error     string `xml:"error"`
	SteamID64 int64  `xml:"steamID64"`
	Games     []struct {
		AppID int    `xml:"appID"`
		Name  string `xml:"name"`
		Logo  string `xml:"logo"`
	} `xml:"games>game"`
}

// OwnedAppsPublic returns the apps owned by the configured user via the
// public XML listing, which requires the collection to be public-readable
// but lists more games than the private API. The response's steamID64 is
// cross-checked against the configured user id.
func (c *Client) OwnedAppsPublic() (map[int]OwnedApp, error) {
	var payload gamesList
	url := fmt.Sprintf(publicGamesURL, c.username)
	cacheName := fmt.Sprintf("steam_ownedgames_%s.xml", c.username)
	_, err := c.fetcher.Do(fetch.Request{
		URL:       url,
		CacheName: cacheName,
		TTLDays:   ownedTTL,
		Kind:      fetch.KindXML,
		Target:    &payload,
	})
	if err != nil {
		return nil, err
	}
	if payload.Error != "" {
		logging.Warn().Str("cache", cacheName).Str("url", url).
			Str("error", payload.Error).Msg("error in public games listing")
		return nil, errors.NewBadShapeError("public games listing", c.username, payload.Error)
	}
	if payload.SteamID64 != c.userID {
		logging.Error().Str("username", c.username).Int64("resolved", payload.SteamID64).
			Int64("expected", c.userID).Msg("Steam id mismatch for username")
		return nil, errors.NewBadShapeError("public games listing", c.username,
			fmt.Sprintf("username resolves to Steam ID %d, not %d", payload.SteamID64, c.userID))
	}
	games := make(map[int]OwnedApp, len(payload.Games))
	for _, game := range payload.Games {
		games[game.AppID] = OwnedApp{AppID: game.AppID, Name: game.Name, Logo: game.Logo}
	}
	return games, nil
}

// CapsuleImage downloads the capsule image for an app in binary mode.
func (c *Client) CapsuleImage(appID int) ([]byte, error) {
	res, err := c.fetcher.Do(fetch.Request{
		URL:       fmt.Sprintf(CapsuleImageURL, appID),
		CacheName: fmt.Sprintf("steam_%d.jpg", appID),
		TTLDays:   ImageTTL,
		Kind:      fetch.KindBinary,
	})
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}
