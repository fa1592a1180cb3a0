package eventlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Blackthor84/WorkVouch-sub000/internal/trust"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAppendLoad(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)

	e := NewEngine()
	dispatchAll(t, e, sampleActions())
	require.NoError(t, s.Append(ctx, "subject-1", e.Log()...))

	other := NewEngine()
	_, err := other.Dispatch(nil, trust.Tick{Days: 1})
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "subject-2", other.Log()...))

	// 1. Records come back in order with nullable user preserved
	recs, err := s.Load(ctx, "subject-1")
	require.NoError(t, err)
	require.Len(t, recs, len(sampleActions()))
	assert.Equal(t, "operator-1", *recs[0].ActingUser)
	assert.Equal(t, e.Log()[6].ID, recs[6].ID)

	loaded, err := s.Load(ctx, "subject-2")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Nil(t, loaded[0].ActingUser)

	// 2. Loaded log rebuilds the same state and verifies
	h := NewEngine()
	require.NoError(t, h.Hydrate(recs))
	assert.Equal(t, e.State(), h.State())
	assert.Equal(t, StatusComplete, Verify(recs).Status)

	// 3. Streams lists both, newest first
	streams, err := s.Streams(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, "subject-2", streams[0].Stream)
	assert.Equal(t, len(sampleActions()), streams[1].Records)
}

func TestStoreLoadUnknownStream(t *testing.T) {
	recs, err := tempStore(t).Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStoreAppendRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trust_events").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := Open(db)
	require.NoError(t, err)

	e := NewEngine()
	dispatchAll(t, e, sampleActions()[:2])

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO trust_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO trust_events").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = s.Append(context.Background(), "subject-1", e.Log()...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
