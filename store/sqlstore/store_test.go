package sqlstore_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/parking/store"
	"github.com/xraph/parking/store/sqlstore"
	"github.com/xraph/parking/store/storetest"
)

var dbSeq atomic.Int64

func newSQLite(t *testing.T) store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:parking_%d?mode=memory&cache=shared", dbSeq.Add(1))
	s, err := sqlstore.OpenSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, newSQLite)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PARKING_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PARKING_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := sqlstore.OpenPostgres(dsn)
		require.NoError(t, err)
		ctx := context.Background()
		require.NoError(t, s.Migrate(ctx))
		require.NoError(t, s.DB().Exec(
			"TRUNCATE parking_lots, parking_occupants, parking_sessions, parking_receipts",
		).Error)
		return s
	})
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newSQLite(t)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
}

func TestMetadataRoundTrip(t *testing.T) {
	s := newSQLite(t)
	defer s.Close()

	ctx := context.Background()
	l := storetest.NewLot("alice", 2, 1, 2)
	l.Metadata = map[string]string{"zone": "north", "level": "B2"}
	require.NoError(t, s.CreateLot(ctx, l))

	got, err := s.GetLot(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.Metadata, got.Metadata)
}
