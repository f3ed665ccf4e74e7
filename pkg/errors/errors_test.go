package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectivityError(t *testing.T) {
	err := NewHTTPStatusError("http://example.com/a", 503)
	assert.True(t, IsConnectivity(err))
	assert.Contains(t, err.Error(), "503")

	wrapped := NewConnectivityError("http://example.com/a", New("connection refused"))
	assert.True(t, IsConnectivity(wrapped))
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestDecodeErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		kind         DecodeKind
		connectivity bool
		permission   bool
		decode       bool
	}{
		{name: "parse failure", kind: DecodeFailed, decode: true},
		{name: "login redirect", kind: DecodeLoginRedirect, permission: true},
		{name: "wrong content", kind: DecodeWrongContent, connectivity: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &DecodeError{
				URL:      "http://example.com/a",
				FinalURL: "http://example.com/b",
				Format:   "JSON",
				Kind:     tt.kind,
				Err:      New("boom"),
			}
			assert.Equal(t, tt.connectivity, IsConnectivity(err))
			assert.Equal(t, tt.permission, IsPermission(err))
			assert.Equal(t, tt.decode, stderrors.Is(err, ErrDecode))

			// Classification survives wrapping.
			wrapped := fmt.Errorf("fetch failed: %w", err)
			assert.Equal(t, tt.permission, IsPermission(wrapped))
		})
	}
}

func TestBadShapeError(t *testing.T) {
	err := NewBadShapeError("app details", "400", "missing data key")
	assert.True(t, IsBadShape(err))
	assert.Equal(t, "unexpected app details data for 400: missing data key", err.Error())

	noID := NewBadShapeError("app list", "", "empty listing")
	assert.Equal(t, "unexpected app list data: empty listing", noID.Error())
}

func TestNotFoundWrapping(t *testing.T) {
	err := fmt.Errorf("no data available for Steam ID 400: %w", ErrNotFound)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsBadShape(err))
}

func TestDatabaseError(t *testing.T) {
	err := &DatabaseError{Operation: "update", Table: "Purchases", Err: New("locked")}
	assert.Contains(t, err.Error(), "update")
	assert.Contains(t, err.Error(), "Purchases")
	assert.ErrorContains(t, err, "locked")
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Setting: "steam_apikey", Message: "missing value"}
	assert.Equal(t, "configuration error in steam_apikey: missing value", err.Error())
}
