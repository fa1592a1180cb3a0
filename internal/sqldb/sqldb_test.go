package sqldb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b = '?' AND c IN (?, ?)`
	assert.Equal(t, q, Rebind(SQLite, q))
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = '?' AND c IN ($2, $3)`, Rebind(Postgres, q))
}

func TestOpenSQLite(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, SQLite, db.Dialect)
	require.NoError(t, db.Ping())
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC)
	got, err := ParseTime(FormatTime(now))
	require.NoError(t, err)
	assert.True(t, now.Equal(got))

	earlier := FormatTime(now.Add(-time.Nanosecond))
	assert.Less(t, earlier, FormatTime(now))
	assert.Nil(t, NullIfEmpty(""))
}
