package gamedb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macfreek/game-db-manager/pkg/errors"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "games.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.handle.Exec(`CREATE TABLE "Purchases" (
		"Name" TEXT,
		"GameIdentifier" TEXT,
		"AppType" TEXT,
		"SteamAppID" INTEGER,
		"PurchaseDate" TEXT
	)`)
	require.NoError(t, err)
	_, err = db.handle.Exec(`INSERT INTO "Purchases" VALUES
		('Portal', 'Portal', 'Game', NULL, '2020-01-01'),
		('Portal 2', 'Portal 2', 'Game', 620, '2021-05-05'),
		('Soundtrack', 'Soundtrack', 'Media', NULL, '2021-05-05')`)
	require.NoError(t, err)
	return db
}

func collect(t *testing.T, db *DB, fields []string, cond, order string) []Record {
	t.Helper()
	var records []Record
	for record, err := range db.Select(fields, "Purchases", cond, order) {
		require.NoError(t, err)
		records = append(records, record)
	}
	return records
}

func TestSelect(t *testing.T) {
	db := newTestDB(t)

	records := collect(t, db, []string{"Name", "SteamAppID"}, "", "Name")
	require.Len(t, records, 3)
	assert.Equal(t, "Portal", records[0].Str("Name"))
	assert.Equal(t, "Portal 2", records[1].Str("Name"))
	assert.Equal(t, 620, records[1].Int("SteamAppID"))
	assert.Equal(t, 0, records[0].Int("SteamAppID"))
}

func TestSelectRawCondition(t *testing.T) {
	db := newTestDB(t)

	records := collect(t, db, []string{"Name"},
		"SteamAppID IS NULL AND AppType='Game'", "")
	require.Len(t, records, 1)
	assert.Equal(t, "Portal", records[0].Str("Name"))
}

func TestSelectAlias(t *testing.T) {
	db := newTestDB(t)

	records := collect(t, db, []string{"Name AS Title"}, "AppType='Media'", "")
	require.Len(t, records, 1)
	assert.Equal(t, "Soundtrack", records[0].Str("Title"))
}

func TestSelectEarlyBreak(t *testing.T) {
	db := newTestDB(t)

	count := 0
	for _, err := range db.Select([]string{"Name"}, "Purchases", "", "Name") {
		require.NoError(t, err)
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestSelectBadQuery(t *testing.T) {
	db := newTestDB(t)

	var lastErr error
	for _, err := range db.Select([]string{"Nonexistent"}, "Purchases", "", "") {
		lastErr = err
	}
	require.Error(t, lastErr)
	var dbErr *errors.DatabaseError
	assert.ErrorAs(t, lastErr, &dbErr)
}

func TestUpdateAndCommit(t *testing.T) {
	db := newTestDB(t)

	count, err := db.Update("Purchases", Where{
		"SteamAppID":     nil,
		"Name":           "Portal",
		"GameIdentifier": "Portal",
		"AppType":        "Game",
	}, map[string]any{"SteamAppID": 400})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.Commit())

	records := collect(t, db, []string{"SteamAppID"}, "Name='Portal'", "")
	require.Len(t, records, 1)
	assert.Equal(t, 400, records[0].Int("SteamAppID"))
}

func TestUpdateBlankMeansNull(t *testing.T) {
	db := newTestDB(t)

	// A blank conditional value filters on IS NULL, same as nil.
	count, err := db.Update("Purchases", Where{"SteamAppID": "", "Name": "Portal"},
		map[string]any{"SteamAppID": 400})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUpdateChangedRowNotMatched(t *testing.T) {
	db := newTestDB(t)

	// The conditions carry the original values; a row that changed since
	// the select no longer matches.
	count, err := db.Update("Purchases", Where{"SteamAppID": nil, "Name": "Portal 2"},
		map[string]any{"SteamAppID": 9999})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestUpdateRejectsEmptyConditions(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Update("Purchases", Where{}, map[string]any{"SteamAppID": 400})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = db.Update("Purchases", Where{"Name": "Portal"}, map[string]any{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRollbackOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.db")
	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.handle.Exec(`CREATE TABLE "Purchases" ("Name" TEXT, "SteamAppID" INTEGER)`)
	require.NoError(t, err)
	_, err = db.handle.Exec(`INSERT INTO "Purchases" VALUES ('Portal', NULL)`)
	require.NoError(t, err)

	_, err = db.Update("Purchases", Where{"Name": "Portal"}, map[string]any{"SteamAppID": 400})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	records := collect(t, reopened, []string{"SteamAppID"}, "Name='Portal'", "")
	require.Len(t, records, 1)
	assert.Nil(t, records[0]["SteamAppID"], "uncommitted update must be rolled back")
}

func TestPrewriteHookFiresOnce(t *testing.T) {
	db := newTestDB(t)

	calls := 0
	db.SetPrewriteHook(func() error {
		calls++
		return nil
	})

	// Reads never trigger the hook.
	collect(t, db, []string{"Name"}, "", "")
	assert.Equal(t, 0, calls)

	for _, name := range []string{"Portal", "Soundtrack"} {
		_, err := db.Update("Purchases", Where{"Name": name},
			map[string]any{"PurchaseDate": "2022-01-01"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestPrewriteHookErrorAbortsUpdate(t *testing.T) {
	db := newTestDB(t)
	db.SetPrewriteHook(func() error { return errors.New("backup failed") })

	_, err := db.Update("Purchases", Where{"Name": "Portal"},
		map[string]any{"PurchaseDate": "2022-01-01"})
	require.Error(t, err)

	records := collect(t, db, []string{"PurchaseDate"}, "Name='Portal'", "")
	require.Len(t, records, 1)
	assert.Equal(t, "2020-01-01", records[0].Str("PurchaseDate"))
}

func TestBuildWhere(t *testing.T) {
	cond, args := buildWhere(Where{"B": "x", "A": nil, "C": 5})
	assert.Equal(t, `"A" IS NULL AND "B" = ? AND "C" = ?`, cond)
	assert.Equal(t, []any{"x", 5}, args)
}

func TestRecordHelpers(t *testing.T) {
	r := Record{"s": "  text  ", "i": int64(42), "f": 3.7, "n": nil, "num": "17"}
	assert.Equal(t, "text", r.Str("s"))
	assert.Equal(t, "", r.Str("n"))
	assert.Equal(t, "", r.Str("missing"))
	assert.Equal(t, 42, r.Int("i"))
	assert.Equal(t, 3, r.Int("f"))
	assert.Equal(t, 17, r.Int("num"))
	assert.Equal(t, 0, r.Int("n"))
}
