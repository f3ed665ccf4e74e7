package recon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/macfreek/game-db-manager/internal/gamedb"
	"github.com/macfreek/game-db-manager/internal/sources/steam"
	"github.com/macfreek/game-db-manager/pkg/logging"
)

// steamKeyOnlyPattern recognizes notes that restrict a gift to its Steam key,
// even when the record lists more distribution channels.
var steamKeyOnlyPattern = regexp.MustCompile(`(?i)only give( \w+)? steam( \w+)? (code|key)`)

type giftGame struct {
	description  string
	distribution []distributionURL
	platforms    string
	imageURL     string
	bought       bool
}

type distributionURL struct {
	store string
	url   string
}

// GiftList writes the giveaway page in wiki markup: a table of duplicate
// games still on offer, followed by the games already given away.
func (r *Reconciler) GiftList() error {
	fields := []string{"Name", "DLC", "AppType", "Parent", "Distribution", "Platforms",
		"Note", "Price", "SteamAppID", "StoreURL"}
	var games []giftGame
	for record, err := range r.DB.Select(fields, purchasesTable, "Gift = 'Ungifted gift'", "GameIdentifier") {
		if err != nil {
			return err
		}
		game, ok := r.giftRow(record)
		if !ok {
			continue
		}
		games = append(games, game)
	}

	var given []string
	for record, err := range r.DB.Select([]string{"Name", "DLC", "AppType"}, purchasesTable,
		"Gift = 'Given away'", "GameIdentifier") {
		if err != nil {
			return err
		}
		description := record.Str("Name")
		if dlc := record.Str("DLC"); dlc != "" && record.Str("AppType") == "Bundle" {
			description += " (" + dlc + ")"
		}
		given = append(given, description)
	}

	w := r.out()
	fmt.Fprintln(w, "== Giveaway of Duplicates ==")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Because I buy a lot of [https://www.humblebundle.com/ Humble Bundles], "+
		"I often end up with duplicate games. These duplicates are listed below, "+
		"and are free for the asking.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The games are available on the listed [[Game Distribution Platforms]]. "+
		"Games marked with an asterisk (*) have been bought, the others came in a bundle.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "If you are interested in one of these games, "+
		"[https://www.macfreek.nl/ send me an email].")
	fmt.Fprintln(w)
	fmt.Fprintln(w, `{|class="wikitable" style="width: 100%;"`)
	fmt.Fprintln(w, `! Rec'd !!style="width: 45%;"| Name !! Distribution !! Platforms !!style="width: 190px;"| Preview`)
	for _, game := range games {
		bought := ""
		if game.bought {
			bought = "*"
		}
		links := make([]string, 0, len(game.distribution))
		for _, dist := range game.distribution {
			if dist.url == "" {
				links = append(links, dist.store)
				continue
			}
			links = append(links, fmt.Sprintf("[%s %s]", dist.url, dist.store))
		}
		fmt.Fprintln(w, "|-")
		fmt.Fprintf(w, "| %s || %s || %s || %s || %s\n", bought, game.description,
			strings.Join(links, ", "), game.platforms, game.imageURL)
	}
	fmt.Fprintln(w, "|}")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "The following %d games have already been given away: %s.\n",
		len(given), strings.Join(given, ", "))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "This list was last updated on "+time.Now().Format("2 January 2006")+".")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[[Category:Games]]")
	return nil
}

// storeOrder fixes the column order of the known stores on the gift list.
var storeOrder = []string{"Steam", "Gog", "Humble Bundle"}

// giftRow turns one ungifted-gift record into a table row. Records without a
// Steam app id are skipped, the preview image and default store link depend
// on it.
func (r *Reconciler) giftRow(record gamedb.Record) (giftGame, bool) {
	name := record.Str("Name")
	description := "<b>" + name + "</b>"
	if record.Str("AppType") == "DLC" {
		if parent := record.Str("Parent"); parent != "" {
			description += ". <em>Requires " + parent + " base game!</em>"
		} else {
			description += ". <em>Requires base game!</em>"
		}
	}
	if dlc := record.Str("DLC"); dlc != "" {
		description += " <small>(including " + dlc + ")</small>"
	}

	steamID := record.Str("SteamAppID")
	if steamID == "" {
		logging.Error().Str("name", name).Msg("gift without Steam app id skipped")
		return giftGame{}, false
	}

	distribution := record.Str("Distribution")
	if steamKeyOnlyPattern.MatchString(record.Str("Note")) {
		distribution = "Steam"
	}
	urlsByStore := make(map[string][]string)
	var uncommon []string
	for _, store := range strings.Split(distribution, ",") {
		store = strings.TrimSpace(store)
		if store == "" {
			continue
		}
		urlsByStore[store] = nil
		switch store {
		case "Steam", "Gog", "Humble Bundle":
		default:
			uncommon = append(uncommon, store)
		}
	}

	storeURL := record.Str("StoreURL")
	if storeURL == "" {
		storeURL = fmt.Sprintf(steam.StoreAppURL, record.Int("SteamAppID"))
	}
	for _, url := range strings.Split(storeURL, ",") {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		var store string
		switch {
		case strings.Contains(url, "steampowered.com"):
			store = "Steam"
		case strings.Contains(url, "gog.com"):
			store = "Gog"
		case strings.Contains(url, "humblebundle.com"):
			store = "Humble Bundle"
		case len(uncommon) == 1:
			store = uncommon[0]
		default:
			store = "Store"
		}
		if _, known := urlsByStore[store]; !known && store != "Store" {
			logging.Info().Str("name", name).Str("store", store).Str("url", url).
				Msg("ignore store URL, store not in distribution list")
			continue
		}
		urlsByStore[store] = append(urlsByStore[store], url)
	}

	var distributions []distributionURL
	appendStore := func(store string) {
		urls, known := urlsByStore[store]
		if !known {
			return
		}
		if len(urls) == 0 {
			distributions = append(distributions, distributionURL{store: store})
			return
		}
		for _, url := range urls {
			distributions = append(distributions, distributionURL{store: store, url: url})
		}
		delete(urlsByStore, store)
	}
	for _, store := range storeOrder {
		appendStore(store)
	}
	for _, store := range sortedKeys(urlsByStore) {
		appendStore(store)
	}

	price, _ := strconv.ParseFloat(record.Str("Price"), 64)
	return giftGame{
		description:  description,
		distribution: distributions,
		platforms:    record.Str("Platforms"),
		imageURL:     fmt.Sprintf(steam.CapsuleImageURL, record.Int("SteamAppID")),
		bought:       price > 0,
	}, true
}
