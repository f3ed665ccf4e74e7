package recon

import (
	"regexp"
	"slices"
	"strings"

	"github.com/macfreek/game-db-manager/internal/gamedb"
	"github.com/macfreek/game-db-manager/internal/sources/steam"
	"github.com/macfreek/game-db-manager/pkg/errors"
	"github.com/macfreek/game-db-manager/pkg/logging"
	"github.com/macfreek/game-db-manager/pkg/match"
)

// FillSteamIDsOptions tune the Steam id fill pass.
type FillSteamIDsOptions struct {
	// AllGames considers every game, not only Steam-distributed ones.
	AllGames bool
	// Strict raises the fuzzy cutoff to 1.0, so only exact names match.
	Strict bool
}

// FillSteamIDs looks for game records without a Steam id, matches their
// names against the full catalog, and stores the id when exactly one valid
// candidate is found. Everything else is reported for the operator.
func (r *Reconciler) FillSteamIDs(opts FillSteamIDsOptions) error {
	apps, err := r.Steam.AllApps()
	if err != nil {
		return err
	}
	index := match.Invert(apps)

	logging.Info().Msg("query database for purchases with missing Steam id")
	fields := []string{"Name", "Parent", "AppType", "GameIdentifier", "SteamAppID", "Note"}
	cond := "SteamAppID IS NULL AND AppType='Game'"
	if !opts.AllGames {
		cond += " AND Distribution LIKE '%Steam%'"
	}
	cutoff := match.DefaultCutoff
	if opts.Strict {
		cutoff = 1.0
	}

	var gameCount, changeCount int64
	for record, err := range r.DB.Select(fields, purchasesTable, cond, "") {
		if err != nil {
			return err
		}
		gameCount++
		name := record.Str("Name")
		alias := record.Str("GameIdentifier")
		names := match.CandidateNames(name, alias, record.Str("Note"))
		ids, err := r.validSteamIDs(name, match.FindBest(names, index, cutoff))
		if err != nil {
			return err
		}

		switch c := match.Classify(nil, ids); c.Outcome {
		case match.NoInformation:
			r.problem("No Steam ID found for %s / %s", name, alias)
		case match.MultipleCandidates:
			r.problem("Multiple possible Steam IDs found for %s / %s", name, alias)
			for _, id := range c.Extra {
				r.problem("       %d: %s   "+steam.StoreAppURL, id, apps[id], id)
			}
		case match.Adopt:
			var foundName, foundDate string
			if detail, err := r.Steam.AppDetails(c.AdoptID); err == nil {
				foundName = detail.Name
				foundDate = detail.ReleaseDate.Date
			}
			r.found("Steam ID found for %s : %d  [%s (%s)]", name, c.AdoptID, foundName, foundDate)
			if r.DryRun {
				continue
			}
			// Key the update on the original field values, so a row
			// changed since the select is left alone.
			count, err := r.DB.Update(purchasesTable, gamedb.Where{
				"SteamAppID":     nil,
				"Name":           name,
				"GameIdentifier": alias,
				"AppType":        record.Str("AppType"),
			}, map[string]any{"SteamAppID": c.AdoptID})
			if err != nil {
				return err
			}
			if count != 1 {
				logging.Info().Int64("count", count).Msg("updated (but not committed) records")
			}
			changeCount += count
		}
	}

	logging.Info().Int64("count", gameCount).Msg("games without Steam id")
	if gameCount > 0 {
		logging.Info().Int64("count", changeCount).Msg("updates made to the database")
	}
	if changeCount > 0 {
		if err := r.DB.Commit(); err != nil {
			return err
		}
		logging.Info().Msg("committed all updates to the database")
	}
	return nil
}

// validSteamIDs drops invalid candidates: ids the catalog has no data for,
// and ids of demo apps (a demo does not count as the base game). An id whose
// detail lookup resolves to a different master id is replaced by the master.
func (r *Reconciler) validSteamIDs(name string, ids []int) ([]int, error) {
	valid := slices.Clone(ids)
	var unknown []int
	for _, id := range ids {
		master := 0
		detail, err := r.Steam.AppDetails(id)
		switch {
		case err == nil:
			master = detail.AppID
			if detail.Type == "demo" {
				logging.Debug().Int("appid", master).Msg("drop Steam id of demo game")
				master = 0
			}
		case errors.IsNotFound(err) || errors.IsBadShape(err):
			// No catalog data for this id.
		default:
			return nil, err
		}
		if master == id {
			continue
		}
		valid = slices.DeleteFunc(valid, func(v int) bool { return v == id })
		if master == 0 {
			unknown = append(unknown, id)
		} else if !slices.Contains(valid, master) {
			logging.Debug().Int("appid", id).Int("master", master).Msg("replace Steam id with master id")
			valid = append(valid, master)
		}
		if len(unknown) > 0 && len(valid) == 0 {
			logging.Warn().Str("name", name).Ints("ids", unknown).Msg("no information found for game")
		}
	}
	return valid, nil
}

// Store URL patterns that legitimately replace a Steam id: a bundle or sub
// page, or a multi-app purchase.
var (
	bundleURLPattern   = regexp.MustCompile(`store\.steampowered\.com/(bundle|sub)`)
	multiAppURLPattern = regexp.MustCompile(`(store\.steampowered\.com/app.*){2}`)
)

// VerifySteamIDs cross-checks the Steam ids in the database against the
// owned-games listings, in both directions: ids on record that are not (or no
// longer) owned, type mismatches suggesting a wrong id, and owned games that
// are missing from the database. DLC is ignored in the reverse check.
func (r *Reconciler) VerifySteamIDs() error {
	owned, err := r.Steam.OwnedApps()
	if err != nil {
		return err
	}
	ownedPublic, err := r.Steam.OwnedAppsPublic()
	if err != nil {
		return err
	}

	for _, id := range sortedIntKeys(ownedPublic) {
		if _, ok := owned[id]; !ok {
			logging.Info().Int("appid", id).Str("name", ownedPublic[id].Name).
				Msg("listed in Steam public list, but not in Steam API")
		}
	}
	for _, id := range sortedIntKeys(owned) {
		if _, ok := ownedPublic[id]; !ok {
			logging.Info().Int("appid", id).Str("name", owned[id].Name).
				Msg("listed in Steam API, but not in Steam public list")
		}
	}

	logging.Info().Msg("query database for purchases")
	fields := []string{"Name", "AppType", "SteamAppID", "Distribution", "Gift", "PriceType", "StoreURL"}
	idsInDB := make(map[int]bool)
	for record, err := range r.DB.Select(fields, purchasesTable, "", "") {
		if err != nil {
			return err
		}
		name := record.Str("Name")
		appType := record.Str("AppType")
		steamDistrib := strings.Contains(strings.ToLower(record.Str("Distribution")), "steam")
		gift := record.Str("Gift")
		isGift := gift == "Ungifted gift" || gift == "Given away"

		if record.Str("SteamAppID") == "" {
			if steamDistrib {
				storeURL := record.Str("StoreURL")
				if !bundleURLPattern.MatchString(storeURL) && !multiAppURLPattern.MatchString(storeURL) {
					r.problem("Game '%s': Steam distributed, no Steam ID, and no valid Store URL: %s",
						name, storeURL)
				}
			}
			continue
		}
		steamID := record.Int("SteamAppID")
		idsInDB[steamID] = true

		steamType, steamName, err := r.steamTypeName(steamID)
		if err != nil {
			return err
		}

		switch {
		case steamType != "game" && steamType != "dlc" && steamType != "removed" && appType != "Media":
			r.problem("%s '%s' with Steam ID %d has type %s on Steam. Likely a wrong Steam ID.",
				appType, name, steamID, steamType)
		case appType == "Game" && steamType == "dlc" && record.Str("PriceType") != "Freemium":
			// The other way around, DLC in the database and game on Steam,
			// usually means the row carries the parent game's id.
			r.problem("%s '%s' with Steam ID %d has type DLC on Steam, and is a non-Freemium "+
				"game in the database. Is it a game or DLC?", appType, name, steamID)
		case (appType == "Bundle" && steamType == "dlc") ||
			(appType == "Media" && steamType != "series") ||
			(appType != "Game" && appType != "DLC" && appType != "Bundle" && appType != "Media"):
			r.problem("%s '%s' with Steam ID %d has type %s on Steam. Is this correct?",
				appType, name, steamID, steamType)
		}

		if steamDistrib && steamType != "removed" && steamType != "dlc" && !isGift {
			_, inPrivate := owned[steamID]
			_, inPublic := ownedPublic[steamID]
			if !inPrivate && !inPublic {
				r.problem("%s '%s' with Steam ID %d [%s] in database, is not redeemed on Steam.",
					appType, name, steamID, steamName)
			}
		}
	}

	// Reverse check: owned games missing from the database. Free games are
	// skipped, they are not purchases.
	for _, steamID := range sortedIntKeys(owned) {
		if idsInDB[steamID] {
			continue
		}
		detail, err := r.Steam.AppDetails(steamID)
		switch {
		case err == nil:
			if detail.Type == "game" && !detail.IsFree {
				r.problem("Game '%s' (ID %d) in Steam account, but not in database.",
					owned[steamID].Name, steamID)
			}
		case errors.IsNotFound(err) || errors.IsBadShape(err):
			// No catalog data, nothing to verify.
		default:
			return err
		}
	}
	return nil
}

// steamTypeName returns the catalog type and name for an id, mapping a
// missing catalog entry to the pseudo type "removed".
func (r *Reconciler) steamTypeName(steamID int) (string, string, error) {
	detail, err := r.Steam.AppDetails(steamID)
	switch {
	case err == nil:
		return detail.Type, detail.Name, nil
	case errors.IsNotFound(err) || errors.IsBadShape(err):
		return "removed", "removed", nil
	default:
		return "", "", err
	}
}

// minImageSize is the smallest plausible capsule image. Anything smaller is
// a placeholder or an error page.
const minImageSize = 4000

// AddSteamImages downloads the capsule image for games with a Steam id but
// no stored image, and stores it. After repeated update failures the pass
// keeps downloading (the cache stays warm) but stops writing.
func (r *Reconciler) AddSteamImages() error {
	logging.Info().Msg("query database for purchases without image")
	var steamIDs []int
	total := 0
	for record, err := range r.DB.Select([]string{"SteamAppID"}, purchasesTable,
		"SteamAppID IS NOT NULL AND Image IS NULL", "") {
		if err != nil {
			return err
		}
		total++
		if id := record.Int("SteamAppID"); !slices.Contains(steamIDs, id) {
			steamIDs = append(steamIDs, id)
		}
	}
	slices.Sort(steamIDs)
	logging.Info().Int("games", total).Int("images", len(steamIDs)).Msg("games with missing image")

	var updateCount int64
	downloadCount := 0
	failureCount := 0
	skipUpdates := false
	for _, steamID := range steamIDs {
		image, err := r.Steam.CapsuleImage(steamID)
		if err != nil {
			if errors.IsConnectivity(err) {
				logging.Error().Err(err).Int("appid", steamID).Msg("can't download image")
				continue
			}
			return err
		}
		if len(image) < minImageSize {
			logging.Warn().Int("appid", steamID).Int("bytes", len(image)).Msg("poor image")
			continue
		}
		downloadCount++
		r.found("Found image for Steam ID %d: "+steam.CapsuleImageURL, steamID, steamID)
		if r.DryRun || skipUpdates {
			continue
		}
		count, err := r.DB.Update(purchasesTable, gamedb.Where{
			"Image":      nil,
			"SteamAppID": steamID,
		}, map[string]any{"Image": image})
		if err != nil {
			failureCount++
			if failureCount > 2 {
				logging.Error().Err(err).Msg("updating images fails repeatedly, " +
					"skipping further updates (only downloading images)")
				skipUpdates = true
			}
			continue
		}
		if count != 1 {
			logging.Info().Int64("count", count).Msg("updated (but not committed) records")
		}
		updateCount += count
	}

	logging.Info().Int64("count", updateCount).Msg("updated games without image")
	logging.Info().Int("count", downloadCount).Msg("downloaded images")
	if updateCount > 0 && !skipUpdates {
		if err := r.DB.Commit(); err != nil {
			return err
		}
		logging.Info().Msg("committed all updates to the database")
	}
	if skipUpdates {
		r.problem("Some images could not be stored. Please update them manually.")
	}
	return nil
}

func sortedIntKeys(m map[int]steam.OwnedApp) []int {
	keys := make([]int, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
