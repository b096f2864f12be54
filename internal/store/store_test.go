package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robert1948/localstorm-sub000/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLKeepsExistingToken", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?authToken=original",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=original", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: "file:./audit.db"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:./audit.db", dsn)
	})

	t.Run("BarePathGetsFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: t.TempDir() + "/audit.db"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Contains(t, dsn, "file:")
		require.Contains(t, dsn, "audit.db")
	})

	t.Run("PathMissing", func(t *testing.T) {
		cfg := config.StoreConfig{}

		_, err := buildLibsqlDSN(cfg)
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		cfg := config.StoreConfig{Path: ":memory:"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, 100, normalizeLimit(0))
	require.Equal(t, 100, normalizeLimit(-5))
	require.Equal(t, 50, normalizeLimit(50))
	require.Equal(t, 1000, normalizeLimit(5000))
}

func TestStoreNilGuards(t *testing.T) {
	var s *Store

	require.NoError(t, s.Close())
	require.Equal(t, "", s.Driver())
	require.Error(t, s.Migrate(nil))

	_, err := s.RecentEvents(nil, 10)
	require.Error(t, err)
}
