package recon

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/macfreek/game-db-manager/internal/gamedb"
	"github.com/macfreek/game-db-manager/internal/sources/gog"
	"github.com/macfreek/game-db-manager/internal/sources/humble"
	"github.com/macfreek/game-db-manager/internal/sources/steam"
	"github.com/macfreek/game-db-manager/pkg/fetch"
)

const (
	appListURL    = "https://api.steampowered.com/ISteamApps/GetAppList/v2/"
	appDetailsURL = "https://store.steampowered.com/api/appdetails?appids=%d"
	orderListURL  = "https://www.humblebundle.com/api/v1/user/order"
	orderInfoURL  = "https://www.humblebundle.com/api/v1/order/%s?wallet_data=true&all_tpkds=true"
)

// stubTransport serves canned response bodies by URL.
type stubTransport map[string]string

func (s stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, ok := s[req.URL.String()]
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

// newTestDB creates a purchases database and inserts the given rows. Columns
// not mentioned stay NULL.
func newTestDB(t *testing.T, rows ...map[string]any) *gamedb.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "games.db")
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE "Purchases" (
		"Name" TEXT,
		"GameIdentifier" TEXT,
		"AppType" TEXT,
		"Parent" TEXT,
		"DLC" TEXT,
		"Bundle" TEXT,
		"SteamAppID" INTEGER,
		"HumbleOrder" TEXT,
		"HumbleSlug" TEXT,
		"Vendor" TEXT,
		"Distribution" TEXT,
		"Platforms" TEXT,
		"Gift" TEXT,
		"Price" TEXT,
		"PriceType" TEXT,
		"PurchaseDate" TEXT,
		"StoreURL" TEXT,
		"Note" TEXT,
		"Image" BLOB
	)`)
	require.NoError(t, err)
	for _, row := range rows {
		cols := make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		quoted := make([]string, len(cols))
		marks := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, col := range cols {
			quoted[i] = `"` + col + `"`
			marks[i] = "?"
			args[i] = row[col]
		}
		_, err = raw.Exec(fmt.Sprintf(`INSERT INTO "Purchases" (%s) VALUES (%s)`,
			strings.Join(quoted, ", "), strings.Join(marks, ", ")), args...)
		require.NoError(t, err)
	}
	require.NoError(t, raw.Close())

	db, err := gamedb.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// game builds a minimal game row for the Steam id fill tests.
func game(name string, steamID any) map[string]any {
	return map[string]any{
		"Name":           name,
		"GameIdentifier": name,
		"AppType":        "Game",
		"SteamAppID":     steamID,
	}
}

func newTestReconciler(t *testing.T, db *gamedb.DB, responses stubTransport) (*Reconciler, *bytes.Buffer) {
	t.Helper()
	f, err := fetch.New(t.TempDir(),
		fetch.WithHTTPClient(&http.Client{Transport: responses}),
		fetch.WithClock(time.Now, func(time.Duration) {}))
	require.NoError(t, err)
	var out bytes.Buffer
	r := &Reconciler{
		DB:      db,
		Steam:   steam.New("apikey", 1, "testuser", f),
		Humble:  humble.New("sessioncookie", f),
		Gog:     gog.New(f),
		Fetcher: f,
		Out:     &out,
	}
	return r, &out
}

func appDetailsResponse(id int, appType, name string) (string, string) {
	return fmt.Sprintf(appDetailsURL, id), fmt.Sprintf(
		`{"%d": {"success": true, "data": {"steam_appid": %d, "type": "%s", "name": "%s",
			"release_date": {"date": "10 Oct, 2007"}}}}`, id, id, appType, name)
}

func selectField(t *testing.T, db *gamedb.DB, field string) map[string]gamedb.Record {
	t.Helper()
	records := make(map[string]gamedb.Record)
	for record, err := range db.Select([]string{"Name", field}, "Purchases", "", "") {
		require.NoError(t, err)
		records[record.Str("Name")] = record
	}
	return records
}
