// Package humble wraps the Humble Bundle order API. Orders are fetched with
// a session cookie and normalized into flat candidate games that the
// reconciliation passes can match against database records.
package humble

import (
	"fmt"
	"slices"
	"time"

	"github.com/macfreek/game-db-manager/pkg/errors"
	"github.com/macfreek/game-db-manager/pkg/fetch"
	"github.com/macfreek/game-db-manager/pkg/logging"
)

// API endpoints.
const (
	orderListURL = "https://www.humblebundle.com/api/v1/user/order"
	orderInfoURL = "https://www.humblebundle.com/api/v1/order/%s?wallet_data=true&all_tpkds=true"
)

// orderInfoTTL keeps order details for over a year: historical orders are
// immutable.
const orderInfoTTL = 400

// createdLayout is the timestamp format of the order "created" field.
const createdLayout = "2006-01-02T15:04:05.000000"

// SessionCookieName is the cookie carrying the Humble Bundle session.
const SessionCookieName = "_simpleauth_sess"

// CookieHelp is appended to permission errors so the operator knows how to
// refresh the session.
const CookieHelp = "Log in manually with your web browser and store the " +
	"_simpleauth_sess cookie in config.ini, in humblebundle_sessioncookie."

// Client is a typed facade over the Humble Bundle order API.
type Client struct {
	fetcher *fetch.Fetcher
}

// New creates a Humble Bundle client. The session cookie is installed on the
// fetcher's shared jar so every request is authenticated.
func New(sessionCookie string, f *fetch.Fetcher) *Client {
	f.AddCookie(SessionCookieName, sessionCookie, "www.humblebundle.com")
	return &Client{fetcher: f}
}

// OrderList returns the gamekeys of all orders of the current user.
func (c *Client) OrderList() ([]string, error) {
	var payload []struct {
		GameKey string `json:"gamekey"`
	}
	_, err := c.fetcher.Do(fetch.Request{
		URL:       orderListURL,
		CacheName: "humble_orders_list.json",
		TTLDays:   1.2,
		Kind:      fetch.KindJSON,
		Target:    &payload,
	})
	if err != nil {
		if errors.IsPermission(err) {
			logging.Error().Str("url", orderListURL).Msg("permission denied. " + CookieHelp)
		}
		return nil, err
	}
	keys := make([]string, len(payload))
	for i, entry := range payload {
		keys[i] = entry.GameKey
	}
	return keys, nil
}

// Order is one purchase transaction. Games with only a Steam key are listed
// under TpkdDict, not under Subproducts; an order's true size is the union.
type Order struct {
	GameKey     string       `json:"gamekey"`
	Created     string       `json:"created"`
	Product     Product      `json:"product"`
	Subproducts []Subproduct `json:"subproducts"`
	TpkdDict    TpkdDict     `json:"tpkd_dict"`
}

// Product describes the order itself.
type Product struct {
	Category    string `json:"category"`
	MachineName string `json:"machine_name"`
	HumanName   string `json:"human_name"`
}

// TpkdDict holds third-party key data (e.g. Steam keys).
type TpkdDict struct {
	AllTpks []Subproduct `json:"all_tpks"`
}

// Subproduct is one line item of an order: either a direct download (with a
// downloads list) or a third-party key (with a key type).
type Subproduct struct {
	MachineName string `json:"machine_name"`
	HumanName   string `json:"human_name"`
	// Downloads is a pointer so a present-but-empty list is distinguished
	// from an absent one; the two mean different things below.
	Downloads      *[]Download `json:"downloads"`
	KeyType        string      `json:"key_type"`
	ExpirationDate string      `json:"expiration_date"`
	CustomPageHTML string      `json:"custom_download_page_box_html"`
}

// Download is one downloadable artifact of a subproduct.
type Download struct {
	Platform string `json:"platform"`
}

// OrderDetails returns the full details of one order.
func (c *Client) OrderDetails(orderID string) (*Order, error) {
	var order Order
	_, err := c.fetcher.Do(fetch.Request{
		URL:       fmt.Sprintf(orderInfoURL, orderID),
		CacheName: fmt.Sprintf("humble_order_%s.json", orderID),
		TTLDays:   orderInfoTTL,
		Kind:      fetch.KindJSON,
		Target:    &order,
	})
	if err != nil {
		if errors.IsPermission(err) {
			logging.Error().Str("order", orderID).Msg("permission denied. " + CookieHelp)
		}
		return nil, err
	}
	if order.GameKey == "" {
		return nil, errors.NewBadShapeError("order", orderID, "missing gamekey")
	}
	return &order, nil
}

// Dates returns the 1 or 2 possible purchase dates of the order, accounting
// for the purchase having been made in a different time zone.
func (o *Order) Dates() []string {
	t, err := time.Parse(createdLayout, o.Created)
	if err != nil {
		logging.Warn().Str("order", o.GameKey).Str("created", o.Created).
			Msg("unparseable order timestamp")
		return nil
	}
	dates := []string{t.Format("2006-01-02")}
	if shifted := t.Add(5 * time.Hour).Format("2006-01-02"); shifted != dates[0] {
		dates = append(dates, shifted)
	}
	return dates
}

// Platform groups.
var (
	desktopPlatforms    = map[string]bool{"mac": true, "windows": true, "linux": true}
	nonDesktopPlatforms = map[string]bool{"asmjs": true, "android": true}
	nonGamePlatforms    = map[string]bool{"audio": true, "video": true, "ebook": true}
)

// keyDistributors are the key types that name a known distribution platform.
var keyDistributors = map[string]bool{
	"steam": true, "desura": true, "blizzard": true, "gog": true,
	"ouya": true, "telltale": true, "arenanet": true,
}

// expiredCountdown marks an expired give-away page.
const expiredCountdown = "<span class='merch-countdown'>0</span>"

// CandidateGame is a flattened line item of an order, normalized for
// matching against database records.
type CandidateGame struct {
	Name         string
	OrderID      string
	Distribution []string
	Platforms    []string
	// MustInclude means the game is expected in the database; games that
	// are only playable on non-desktop platforms, or whose distribution
	// is unknown, may be absent.
	MustInclude bool
}

// Games flattens the order into candidate games, skipping books, media and
// other non-game items. The second result reports whether the order contains
// an expired (no longer claimable) game.
func (o *Order) Games() ([]CandidateGame, bool) {
	var items []Subproduct
	switch {
	case len(o.Subproducts) > 0 || len(o.TpkdDict.AllTpks) > 0:
		items = append(append(items, o.Subproducts...), o.TpkdDict.AllTpks...)
	case o.Product.Category == "subscriptionplan":
		return nil, false
	default:
		// An order without downloads or keys, perhaps only coupons.
		// Assume the order is about a single game (uncommon).
		logging.Debug().Str("order", o.GameKey).Msg("assume order is about a single game")
		items = []Subproduct{{
			MachineName: o.Product.MachineName,
			HumanName:   o.Product.HumanName,
		}}
	}

	hasExpired := false
	var games []CandidateGame
	for _, item := range items {
		if item.ExpirationDate != "" {
			hasExpired = true
		}
		game := CandidateGame{
			Name:        trimName(item.HumanName),
			OrderID:     o.GameKey,
			MustInclude: true,
		}
		switch {
		case item.Downloads != nil:
			game.Distribution = []string{"humblebundle"}
			platforms := map[string]bool{}
			for _, dl := range *item.Downloads {
				platforms[dl.Platform] = true
				if !desktopPlatforms[dl.Platform] && !nonDesktopPlatforms[dl.Platform] &&
					!nonGamePlatforms[dl.Platform] {
					logging.Warn().Str("platform", dl.Platform).Str("game", item.HumanName).
						Str("order", o.GameKey).Msg("unknown platform")
				}
			}
			switch {
			case len(platforms) == 0:
				if item.CustomPageHTML != "" {
					if containsExpiredCountdown(item.CustomPageHTML) {
						hasExpired = true
						logging.Debug().Str("order", o.GameKey).Str("game", item.HumanName).
							Msg("order expired due to expired game")
					} else {
						logging.Debug().Str("game", item.MachineName).Str("order", o.GameKey).
							Msg("ignore non-game item")
					}
					continue
				}
				switch {
				case len(o.TpkdDict.AllTpks) > 0:
					// Empty downloads are odd but fairly common; usually
					// there is an associated key for the game.
					logging.Debug().Str("game", item.HumanName).Str("order", o.GameKey).
						Msg("ignore non-downloadable game, likely an associated Steam key exists")
				case hasExpired:
					logging.Debug().Str("game", item.HumanName).Str("order", o.GameKey).
						Msg("ignore non-downloadable game, likely the key expired")
				default:
					logging.Warn().Str("game", item.HumanName).Str("order", o.GameKey).
						Msg("ignore non-downloadable game")
				}
				game.Distribution = []string{"unknown"}
				game.MustInclude = false
			case anyOf(platforms, desktopPlatforms):
				// Regular game.
			case anyOf(platforms, nonDesktopPlatforms):
				logging.Debug().Str("game", item.HumanName).Str("order", o.GameKey).
					Msg("ignore non-desktop game")
				game.MustInclude = false
			default:
				logging.Debug().Str("game", item.HumanName).Str("order", o.GameKey).
					Msg("ignore non-game item")
				continue
			}
			game.Platforms = sortedKeys(platforms)
		case item.KeyType != "":
			switch {
			case keyDistributors[item.KeyType]:
				game.Distribution = []string{item.KeyType}
			case item.KeyType == "generic" || item.KeyType == "external_key":
				logging.Debug().Str("key", item.MachineName).Str("order", o.GameKey).
					Str("game", item.HumanName).Msg("ignore generic key")
				game.Distribution = []string{"unknown"}
				game.MustInclude = false
			default:
				logging.Warn().Str("keyType", item.KeyType).Str("key", item.MachineName).
					Str("order", o.GameKey).Str("game", item.HumanName).Msg("ignore unknown key type")
				continue
			}
		default:
			// A bundle without contents, treated as a possible game.
			game.Distribution = []string{"unknown"}
			game.MustInclude = false
		}
		games = append(games, game)
	}
	return games, hasExpired
}

// Merge combines candidate games with equal names: platforms and
// distributions are unioned and must-include is sticky. Result is sorted by
// name.
func Merge(games []CandidateGame) []CandidateGame {
	byName := make(map[string]*CandidateGame)
	var names []string
	for _, game := range games {
		existing, ok := byName[game.Name]
		if !ok {
			g := game
			byName[game.Name] = &g
			names = append(names, game.Name)
			continue
		}
		for _, p := range game.Platforms {
			if !slices.Contains(existing.Platforms, p) {
				existing.Platforms = append(existing.Platforms, p)
			}
		}
		for _, d := range game.Distribution {
			if !slices.Contains(existing.Distribution, d) {
				existing.Distribution = append(existing.Distribution, d)
			}
		}
		existing.MustInclude = existing.MustInclude || game.MustInclude
	}
	slices.Sort(names)
	merged := make([]CandidateGame, len(names))
	for i, name := range names {
		merged[i] = *byName[name]
	}
	return merged
}
