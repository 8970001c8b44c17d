package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/angelmondragon/holopos/pkg/config"
	"github.com/angelmondragon/holopos/pkg/db"
	"github.com/angelmondragon/holopos/pkg/migrate"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func newTestClient(t *testing.T) *db.Client {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := db.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.Run(context.Background(), sqlDB, config.DriverSQLite, "up"))
	return db.NewFromGorm(conn, config.DriverSQLite)
}

func TestDBSnapshotReadMissingIsNil(t *testing.T) {
	store, err := NewDBSnapshot(newTestClient(t), "holo_pending_sales")
	require.NoError(t, err)

	value, err := store.Read(context.Background())
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestDBSnapshotUpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	store, err := NewDBSnapshot(client, "holo_pending_sales")
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, func(current []byte) ([]byte, error) {
		require.Nil(t, current)
		return []byte(`{"schema_version":1,"sales":[]}`), nil
	}))
	require.NoError(t, store.Update(ctx, func(current []byte) ([]byte, error) {
		require.Equal(t, `{"schema_version":1,"sales":[]}`, string(current))
		return []byte(`{"schema_version":1,"sales":[{"local_id":"a"}]}`), nil
	}))

	value, err := store.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"schema_version":1,"sales":[{"local_id":"a"}]}`, string(value))

	var rows int64
	require.NoError(t, client.DB().Table("offline_snapshots").Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestDBSnapshotUpdateErrorLeavesRowUntouched(t *testing.T) {
	ctx := context.Background()
	store, err := NewDBSnapshot(newTestClient(t), "holo_catalog")
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, func([]byte) ([]byte, error) { return []byte("[]"), nil }))
	boom := errors.New("boom")
	err = store.Update(ctx, func([]byte) ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	value, err := store.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "[]", string(value))
}

func TestDBSnapshotKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	sales, err := NewDBSnapshot(client, "holo_pending_sales")
	require.NoError(t, err)
	catalog, err := NewDBSnapshot(client, "holo_catalog")
	require.NoError(t, err)

	require.NoError(t, sales.Update(ctx, func([]byte) ([]byte, error) { return []byte("sales"), nil }))
	require.NoError(t, catalog.Update(ctx, func([]byte) ([]byte, error) { return []byte("catalog"), nil }))

	value, err := sales.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "sales", string(value))
}

func TestNewDBSnapshotRequiresKey(t *testing.T) {
	_, err := NewDBSnapshot(newTestClient(t), "  ")
	require.Error(t, err)
	_, err = NewDBSnapshot(nil, "k")
	require.Error(t, err)
}

func TestDBSnapshotFirstWritesDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	store, err := NewDBSnapshot(newTestClient(t), "holo_pending_sales")
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Update(ctx, func(current []byte) ([]byte, error) {
				return append(current, 'x'), nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	value, err := store.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("x", writers), string(value))
}

func TestDBSnapshotSeededRowReadsAsMissing(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	store, err := NewDBSnapshot(client, "holo_catalog")
	require.NoError(t, err)

	require.NoError(t, client.DB().Exec(
		"INSERT INTO offline_snapshots (snapshot_key, payload, updated_at) VALUES (?, '', CURRENT_TIMESTAMP)",
		"holo_catalog").Error)

	value, err := store.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, store.Update(ctx, func(current []byte) ([]byte, error) {
		require.Nil(t, current)
		return []byte("[]"), nil
	}))
	value, err = store.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "[]", string(value))
}

func TestDBSnapshotFailedFirstUpdateLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	store, err := NewDBSnapshot(client, "holo_pending_sales")
	require.NoError(t, err)

	boom := errors.New("boom")
	require.ErrorIs(t, store.Update(ctx, func([]byte) ([]byte, error) { return nil, boom }), boom)

	var rows int64
	require.NoError(t, client.DB().Table("offline_snapshots").Count(&rows).Error)
	require.Zero(t, rows)
}
