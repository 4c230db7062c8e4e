package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercisePersister runs the contract every backend must satisfy
func exercisePersister(t *testing.T, p Persister) {
	t.Helper()
	ctx := context.Background()

	_, err := p.Load(ctx, "chatbot_session")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, p.Save(ctx, "chatbot_session", []byte(`{"session_id":"a"}`)))
	data, err := p.Load(ctx, "chatbot_session")
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"a"}`, string(data))

	require.NoError(t, p.Save(ctx, "chatbot_session", []byte(`{"session_id":"b"}`)))
	data, err = p.Load(ctx, "chatbot_session")
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"b"}`, string(data))

	require.NoError(t, p.Remove(ctx, "chatbot_session"))
	_, err = p.Load(ctx, "chatbot_session")
	assert.ErrorIs(t, err, ErrNotFound)

	// removing a missing key is fine
	require.NoError(t, p.Remove(ctx, "chatbot_session"))
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	exercisePersister(t, store)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "k", []byte("v")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k.json", entries[0].Name())
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"chatbot_session", "chatbot_session"},
		{"../etc/passwd", ".._etc_passwd"},
		{"a b:c", "a_b_c"},
		{"", "_"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeKey(tt.in))
		})
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	exercisePersister(t, store)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	value := []byte("original")
	require.NoError(t, store.Save(ctx, "k", value))
	value[0] = 'X'

	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	got[0] = 'Y'
	again, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	assert.ErrorIs(t, store.Save(ctx, "k", []byte("v")), context.Canceled)

	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = fs.Load(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat.db")
	store, err := NewSQLStore(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, DriverSQLite, store.Driver())
	exercisePersister(t, store)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSQLStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.db")

	store, err := NewSQLStore(ctx, DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "chatbot_session", []byte(`{"x":1}`)))
	require.NoError(t, store.Close())

	store, err = NewSQLStore(ctx, DriverSQLite, path)
	require.NoError(t, err)
	defer store.Close()

	data, err := store.Load(ctx, "chatbot_session")
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(data))
}

func TestNormalizeDSN(t *testing.T) {
	dir := t.TempDir()

	_, err := normalizeDSN(DriverSQLite, "")
	assert.Error(t, err)

	got, err := normalizeDSN(DriverLibSQL, "libsql://db.example.turso.io?authToken=x")
	require.NoError(t, err)
	assert.Equal(t, "libsql://db.example.turso.io?authToken=x", got)

	got, err = normalizeDSN(DriverLibSQL, filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.Equal(t, "file:"+filepath.Join(dir, "a.db"), got)

	got, err = normalizeDSN(DriverSQLite, "file:"+filepath.Join(dir, "b.db"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b.db"), got)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("BOOKCHAT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BOOKCHAT_TEST_REDIS_URL not set")
	}

	store, err := NewRedisStore(context.Background(), url)
	require.NoError(t, err)
	defer store.Close()

	exercisePersister(t, store)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	paths := NewPathManagerAt(t.TempDir())

	t.Run("default is file", func(t *testing.T) {
		p, err := Open(ctx, Options{Paths: paths})
		require.NoError(t, err)
		defer p.Close()

		fs, ok := p.(*FileStore)
		require.True(t, ok)
		assert.Equal(t, filepath.Join(mustBase(t, paths), "sessions"), fs.Dir())
	})

	t.Run("memory", func(t *testing.T) {
		p, err := Open(ctx, Options{Driver: "memory"})
		require.NoError(t, err)
		defer p.Close()
		assert.IsType(t, &MemoryStore{}, p)
	})

	t.Run("sqlite default path", func(t *testing.T) {
		p, err := Open(ctx, Options{Driver: "SQLite", Paths: paths})
		require.NoError(t, err)
		defer p.Close()
		assert.IsType(t, &SQLStore{}, p)

		_, err = os.Stat(filepath.Join(mustBase(t, paths), "chat.db"))
		assert.NoError(t, err)
	})

	t.Run("redis requires dsn", func(t *testing.T) {
		_, err := Open(ctx, Options{Driver: "redis"})
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, Options{Driver: "etcd"})
		assert.ErrorContains(t, err, "unknown driver")
	})
}

func mustBase(t *testing.T, pm *PathManager) string {
	t.Helper()
	dir, err := pm.BaseDir()
	require.NoError(t, err)
	return dir
}
