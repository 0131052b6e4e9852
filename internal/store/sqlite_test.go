package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) (*SQLiteStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "snapshots.db")
	s, err := NewSQLiteStore(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dbPath
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	_, dbPath := newTestStore(t)
	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSQLiteStore_LatestEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Latest(context.Background(), "insider")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSQLiteStore_SaveAndLatest(t *testing.T) {
	now := time.Date(2025, 4, 24, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "insider", []byte(`[{"symbol":"TSLA"}]`)))
	now = now.Add(time.Minute)
	require.NoError(t, s.Save(ctx, "insider", []byte(`[{"symbol":"AAPL"}]`)))
	require.NoError(t, s.Save(ctx, "other", []byte(`[]`)))

	snap, err := s.Latest(ctx, "insider")
	require.NoError(t, err)
	assert.Equal(t, "insider", snap.Key)
	assert.JSONEq(t, `[{"symbol":"AAPL"}]`, string(snap.Payload))
	assert.True(t, snap.CreatedAt.Equal(now))
}

func TestSQLiteStore_PrunesToRetain(t *testing.T) {
	now := time.Now()
	s, _ := newTestStore(t, WithRetain(3), WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, s.Save(ctx, "insider", []byte(`[]`)))
	}
	require.NoError(t, s.Save(ctx, "other", []byte(`[]`)))

	n, err := s.Count(ctx, "insider")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Count(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "snapshots.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "insider", []byte(`[1]`)))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.Latest(ctx, "insider")
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(snap.Payload))
}
