package recon

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/macfreek/game-db-manager/internal/cmd/output"
	"github.com/macfreek/game-db-manager/internal/gamedb"
	"github.com/macfreek/game-db-manager/internal/sources/humble"
	"github.com/macfreek/game-db-manager/pkg/logging"
	"github.com/macfreek/game-db-manager/pkg/match"
)

// humbleCond selects the database records tied to Humble Bundle.
const humbleCond = "Vendor LIKE '%Humble Bundle%' OR Distribution LIKE '%Humble Bundle%'"

// orderInventory is the per-run view of all Humble Bundle orders, indexed
// for date-and-name matching against database records.
type orderInventory struct {
	// byDate maps purchase date to game name to the candidate game, with
	// duplicate purchases of the same name on the same date merged.
	byDate map[string]map[string]*humble.CandidateGame

	// duplicates records names bought twice on one date, date -> name ->
	// order ids.
	duplicates map[string]map[string]map[string]bool

	gameOrders    map[string]bool
	emptyOrders   map[string]bool
	expiredOrders map[string]bool
}

// buildOrderInventory fetches every order and indexes its games by purchase
// date and name. Subscription plans are skipped; orders without games are
// classified for the post-pass reports.
func (r *Reconciler) buildOrderInventory() (*orderInventory, error) {
	orderIDs, err := r.Humble.OrderList()
	if err != nil {
		return nil, err
	}
	inv := &orderInventory{
		byDate:        make(map[string]map[string]*humble.CandidateGame),
		duplicates:    make(map[string]map[string]map[string]bool),
		gameOrders:    make(map[string]bool),
		emptyOrders:   make(map[string]bool),
		expiredOrders: make(map[string]bool),
	}

	totalGames, totalOther := 0, 0
	for _, orderID := range orderIDs {
		order, err := r.Humble.OrderDetails(orderID)
		if err != nil {
			return nil, err
		}
		if order.Product.Category == "subscriptionplan" {
			continue
		}
		orderName := strings.TrimSpace(order.Product.HumanName)
		dates := order.Dates()
		games, hasExpired := order.Games()

		gameCount, otherCount := 0, 0
		for _, game := range games {
			if game.MustInclude {
				gameCount++
				totalGames++
			} else {
				otherCount++
				totalOther++
			}
			for _, date := range dates {
				merged := game
				if existing := inv.byDate[date][game.Name]; existing != nil {
					if existing.OrderID != orderID {
						inv.noteDuplicate(date, game.Name, existing.OrderID, orderID)
					}
					merged.Distribution = append(merged.Distribution, existing.Distribution...)
					merged.MustInclude = merged.MustInclude || existing.MustInclude
				}
				if inv.byDate[date] == nil {
					inv.byDate[date] = make(map[string]*humble.CandidateGame)
				}
				inv.byDate[date][game.Name] = &merged
			}
		}
		if hasExpired {
			inv.expiredOrders[orderID] = true
			logging.Debug().Str("order", orderID).Msg("mark order as expired")
		}
		switch {
		case gameCount > 0:
			inv.gameOrders[orderID] = true
		case strings.HasSuffix(order.Product.MachineName, "_bookbundle") ||
			strings.HasSuffix(order.Product.MachineName, "_bookrebundle"):
			logging.Debug().Str("order", orderID).Str("name", orderName).
				Msg("book bundle without games")
		case strings.HasSuffix(order.Product.MachineName, "_softwarebundle"):
			logging.Debug().Str("order", orderID).Str("name", orderName).
				Msg("software bundle without games")
		case hasExpired:
			logging.Warn().Str("order", orderID).Str("name", orderName).
				Msg("order has no games because it is expired")
		case otherCount > 0:
			logging.Warn().Str("order", orderID).Str("name", orderName).Msg("order has no games")
			inv.emptyOrders[orderID] = true
		default:
			logging.Warn().Str("order", orderID).Str("name", orderName).
				Msg("order has no games nor keys")
			inv.emptyOrders[orderID] = true
		}
	}
	logging.Info().Int("games", totalGames).Int("other", totalOther).
		Msg("games or game keys and other items in Humble Bundle purchases")

	for _, date := range sortedKeys(inv.duplicates) {
		for name, orders := range inv.duplicates[date] {
			logging.Warn().Str("game", name).Str("date", date).
				Strs("orders", sortedKeys(orders)).Msg("multiple purchases of the same game")
		}
	}
	return inv, nil
}

func (inv *orderInventory) noteDuplicate(date, name, orderA, orderB string) {
	if inv.duplicates[date] == nil {
		inv.duplicates[date] = make(map[string]map[string]bool)
	}
	if inv.duplicates[date][name] == nil {
		inv.duplicates[date][name] = make(map[string]bool)
	}
	inv.duplicates[date][name][orderA] = true
	inv.duplicates[date][name][orderB] = true
}

// known reports whether the order id was seen in the purchase listing, in
// any classification.
func (inv *orderInventory) known(orderID string) bool {
	return inv.gameOrders[orderID] || inv.emptyOrders[orderID] || inv.expiredOrders[orderID]
}

// FillHumbleOrders determines the Humble Bundle order id for database
// records that lack one, matching by purchase date and game name, and
// reports every discrepancy between recorded and discovered order ids.
// Finally, orders absent from the database are listed.
func (r *Reconciler) FillHumbleOrders() error {
	inv, err := r.buildOrderInventory()
	if err != nil {
		return err
	}

	logging.Info().Msg("query database for purchases")
	fields := []string{"Name", "AppType", "SteamAppID", "HumbleSlug", "HumbleOrder", "Distribution",
		"Gift", "PriceType", "StoreURL", "PurchaseDate", "Bundle", "GameIdentifier", "Note"}
	seenOrders := make(map[string]bool)
	var changeCount int64
	missingOrderCount := 0
	gameCount := 0
	for record, err := range r.DB.Select(fields, purchasesTable, humbleCond, "PurchaseDate") {
		if err != nil {
			return err
		}
		gameCount++
		name := record.Str("Name")
		alias := record.Str("GameIdentifier")
		names := match.CandidateNames(name, alias, record.Str("Note"))
		acquireDate := record.Str("PurchaseDate")

		var discovered []string
		if dayGames := inv.byDate[acquireDate]; dayGames != nil {
			index := make(match.Index[string], len(dayGames))
			for gameName, game := range dayGames {
				index[gameName] = []string{game.OrderID}
			}
			discovered = match.FindBest(names, index, match.DefaultCutoff)
		}

		var recorded []string
		for _, orderID := range strings.Split(record.Str("HumbleOrder"), ",") {
			orderID = strings.TrimSpace(orderID)
			if orderID == "" {
				continue
			}
			recorded = append(recorded, orderID)
			seenOrders[orderID] = true
		}
		if len(recorded) == 0 {
			missingOrderCount++
		}

		switch c := match.Classify(recorded, discovered); c.Outcome {
		case match.NoInformation:
			logging.Warn().Str("name", name).Str("date", acquireDate).
				Msg("no Humble Bundle order found for purchase")
		case match.PerfectMatch:
			continue
		case match.AdditionalDiscovered:
			logging.Warn().Str("name", name).Str("date", acquireDate).
				Strs("recorded", recorded).Strs("additional", c.Extra).
				Msg("found additional orders in purchases")
		case match.Conflict, match.MixedOverlap:
			logging.Warn().Str("name", name).Str("date", acquireDate).
				Strs("recorded", recorded).Strs("found", c.Extra).
				Msg("found different orders in purchases")
		case match.RecordedOnly:
			for _, orderID := range c.Unmatched {
				if err := r.verifyRecordedOrder(inv, record, orderID, acquireDate); err != nil {
					return err
				}
			}
		case match.MultipleCandidates:
			logging.Warn().Str("name", name).Str("date", acquireDate).
				Msg("multiple possible purchases")
		case match.Adopt:
			orderID := c.AdoptID
			r.found("Humble Bundle purchase found on %s for %s: %s", acquireDate, name, orderID)
			if r.DryRun {
				continue
			}
			count, err := r.DB.Update(purchasesTable, gamedb.Where{
				"HumbleOrder":    nil,
				"Name":           name,
				"GameIdentifier": alias,
				"AppType":        record.Str("AppType"),
				"PurchaseDate":   acquireDate,
			}, map[string]any{"HumbleOrder": orderID})
			if err != nil {
				return err
			}
			if count != 1 {
				logging.Info().Int64("count", count).Msg("updated (but not committed) records")
			}
			changeCount += count
		}
	}

	logging.Info().Int("count", missingOrderCount).Msg("games without Humble Bundle order")
	if gameCount > 0 {
		logging.Info().Int64("count", changeCount).Msg("updates made to the database")
	}
	if changeCount > 0 {
		if err := r.DB.Commit(); err != nil {
			return err
		}
		logging.Info().Msg("committed all updates to the database")
	}

	return r.reportLeftoverOrders(inv, seenOrders)
}

// verifyRecordedOrder checks an order id that is on record but was not found
// by matching: the id must be a known order, and its date must match the
// recorded purchase date. Orders given away are no longer listed by the API,
// so a given-away record implies an expired order.
func (r *Reconciler) verifyRecordedOrder(inv *orderInventory, record gamedb.Record, orderID, acquireDate string) error {
	if !inv.known(orderID) {
		if record.Str("Gift") == "Given away" {
			inv.expiredOrders[orderID] = true
			return nil
		}
		logging.Warn().Str("name", record.Str("Name")).Str("date", acquireDate).
			Str("order", orderID).Msg("recorded order is not a known purchase order id")
		return nil
	}
	order, err := r.Humble.OrderDetails(orderID)
	if err != nil {
		return err
	}
	if dates := order.Dates(); len(dates) > 0 && !slices.Contains(dates, acquireDate) {
		logging.Warn().Str("name", record.Str("Name")).Str("date", acquireDate).
			Str("order", orderID).Str("orderDate", dates[0]).
			Msg("recorded order was made on a different date")
	}
	return nil
}

// reportLeftoverOrders lists order ids that exist on only one side: unknown
// ids in the database, and known orders absent from the database.
func (r *Reconciler) reportLeftoverOrders(inv *orderInventory, seenOrders map[string]bool) error {
	for _, orderID := range sortedKeys(seenOrders) {
		if !inv.known(orderID) {
			logging.Warn().Str("order", orderID).Msg("unknown Humble Bundle order in database")
		}
	}

	unseen := func(orders map[string]bool, skipExpired bool) []string {
		var ids []string
		for orderID := range orders {
			if seenOrders[orderID] || (skipExpired && inv.expiredOrders[orderID]) {
				continue
			}
			ids = append(ids, orderID)
		}
		return ids
	}
	emptyUnseen, err := r.ordersByDate(unseen(inv.emptyOrders, false))
	if err != nil {
		return err
	}
	for _, order := range emptyUnseen {
		logging.Warn().Str("order", order.GameKey).
			Str("name", strings.TrimSpace(order.Product.HumanName)).
			Msg("order is not in the database, and has no content")
	}
	gameUnseen, err := r.ordersByDate(unseen(inv.gameOrders, true))
	if err != nil {
		return err
	}
	for _, order := range gameUnseen {
		date := ""
		if dates := order.Dates(); len(dates) > 0 {
			date = dates[0]
		}
		logging.Warn().Str("order", order.GameKey).Str("date", date).
			Str("name", strings.TrimSpace(order.Product.HumanName)).
			Msg("order is not in the database")
	}
	return nil
}

// ordersByDate fetches the given orders, sorted by creation time.
func (r *Reconciler) ordersByDate(orderIDs []string) ([]*humble.Order, error) {
	orders := make([]*humble.Order, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		order, err := r.Humble.OrderDetails(orderID)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Created < orders[j].Created })
	return orders, nil
}

// PrintHumblePurchases renders all orders and their line items. Higher
// verbosity adds more columns.
func (r *Reconciler) PrintHumblePurchases(formatter output.Formatter, verbosity int) error {
	orderIDs, err := r.Humble.OrderList()
	if err != nil {
		return err
	}
	headers := []string{"Order", "Category", "Bundle", "Item"}
	if verbosity >= 1 {
		headers = append(headers, "Platforms", "Created")
	}
	if verbosity >= 2 {
		headers = append(headers, "Distribution", "Must Include")
	}
	data := output.Data{Headers: headers}
	for _, orderID := range orderIDs {
		order, err := r.Humble.OrderDetails(orderID)
		if err != nil {
			return err
		}
		games, _ := order.Games()
		for _, game := range humble.Merge(games) {
			row := []string{orderID, order.Product.Category,
				strings.TrimSpace(order.Product.HumanName), game.Name}
			if verbosity >= 1 {
				row = append(row, strings.Join(game.Platforms, ", "), order.Created)
			}
			if verbosity >= 2 {
				row = append(row, strings.Join(game.Distribution, ", "),
					fmt.Sprint(game.MustInclude))
			}
			data.Rows = append(data.Rows, row)
		}
	}
	return formatter.Format(r.out(), data)
}

// PrintOrder renders the contents of a single order.
func (r *Reconciler) PrintOrder(formatter output.Formatter, orderID string) error {
	order, err := r.Humble.OrderDetails(orderID)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out(), "%s (%s, %s)\n", strings.TrimSpace(order.Product.HumanName),
		order.Product.Category, order.Product.MachineName)
	games, _ := order.Games()
	type gameRow struct {
		Name         string `json:"name"`
		Distribution string `json:"distribution"`
		Platforms    string `json:"platforms"`
	}
	rows := make([]gameRow, 0, len(games))
	for _, game := range humble.Merge(games) {
		rows = append(rows, gameRow{
			Name:         game.Name,
			Distribution: strings.Join(game.Distribution, ", "),
			Platforms:    strings.Join(game.Platforms, ", "),
		})
	}
	return formatter.Format(r.out(), rows)
}

// VerifyHumblePurchases checks that every must-include game of every order
// is present in the database, matching by name against the records tied to
// Humble Bundle.
func (r *Reconciler) VerifyHumblePurchases() error {
	fields := []string{"Name", "GameIdentifier", "HumbleOrder"}
	index := make(match.Index[string])
	for record, err := range r.DB.Select(fields, purchasesTable, humbleCond, "") {
		if err != nil {
			return err
		}
		name := record.Str("Name")
		index[name] = append(index[name], name)
		if alias := record.Str("GameIdentifier"); alias != "" && alias != name {
			index[alias] = append(index[alias], name)
		}
	}

	orderIDs, err := r.Humble.OrderList()
	if err != nil {
		return err
	}
	missing := 0
	for _, orderID := range orderIDs {
		order, err := r.Humble.OrderDetails(orderID)
		if err != nil {
			return err
		}
		games, _ := order.Games()
		for _, game := range humble.Merge(games) {
			if !game.MustInclude {
				continue
			}
			if match.FindBest([]string{game.Name}, index, match.DefaultCutoff) == nil {
				missing++
				r.problem("Game '%s' of order %s (%s) is not in the database.",
					game.Name, orderID, strings.TrimSpace(order.Product.HumanName))
			}
		}
	}
	if missing == 0 {
		r.found("All Humble Bundle games are present in the database.")
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
