package kv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	t.Setenv(StateDirEnv, "")

	file, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	db, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": db,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})

	return stores
}

func TestStore_GetPut(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "cryptosim_portfolio_v2")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, "cryptosim_portfolio_v2", []byte(`{"version":2}`)))
			got, err := store.Get(ctx, "cryptosim_portfolio_v2")
			require.NoError(t, err)
			assert.Equal(t, `{"version":2}`, string(got))

			require.NoError(t, store.Put(ctx, "cryptosim_portfolio_v2", []byte(`{"version":3}`)))
			got, err = store.Get(ctx, "cryptosim_portfolio_v2")
			require.NoError(t, err)
			assert.Equal(t, `{"version":3}`, string(got))

			_, err = store.Get(ctx, "cryptosim_last_price")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

// increment treats the stored value as a decimal counter.
func increment(current []byte, found bool) ([]byte, error) {
	n := 0
	if found {
		var err error
		if n, err = strconv.Atoi(string(current)); err != nil {
			return nil, err
		}
	}
	return []byte(strconv.Itoa(n + 1)), nil
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	halt := errors.New("rejected")

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Update(ctx, "counter", increment))
			require.NoError(t, store.Update(ctx, "counter", increment))

			got, err := store.Get(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, "2", string(got))

			err = store.Update(ctx, "counter", func([]byte, bool) ([]byte, error) { return []byte("99"), halt })
			require.ErrorIs(t, err, halt)

			got, err = store.Get(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, "2", string(got), "aborted update must not write")
		})
	}
}

// Two handles on the same files stand in for two processes.
func TestStore_UpdateIsAtomicAcrossHandles(t *testing.T) {
	t.Setenv(StateDirEnv, "")
	dir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	open := map[string]func() Store{
		"file": func() Store {
			s, err := NewFileStore(dir)
			require.NoError(t, err)
			return s
		},
		"sqlite": func() Store {
			s, err := NewSQLiteStore(dbPath)
			require.NoError(t, err)
			return s
		},
	}

	for name, newStore := range open {
		t.Run(name, func(t *testing.T) {
			a, b := newStore(), newStore()
			t.Cleanup(func() {
				_ = a.Close()
				_ = b.Close()
			})

			const rounds = 25
			var wg sync.WaitGroup
			for _, s := range []Store{a, b} {
				wg.Add(1)
				go func(s Store) {
					defer wg.Done()
					for i := 0; i < rounds; i++ {
						assert.NoError(t, s.Update(context.Background(), "counter", increment))
					}
				}(s)
			}
			wg.Wait()

			got, err := a.Get(context.Background(), "counter")
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(2*rounds), string(got))
		})
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	value := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", value))
	value[0] = 'x'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	got[1] = 'y'

	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestFileStore_LeavesNoTempFile(t *testing.T) {
	t.Setenv(StateDirEnv, "")
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "cryptosim_portfolio_v2", []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"cryptosim_portfolio_v2.json", "cryptosim_portfolio_v2.json.lock"}, names)
}

func TestFileStore_EnvOverridesDir(t *testing.T) {
	override := t.TempDir()
	t.Setenv(StateDirEnv, override)

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, override, store.Dir())
}

func TestFileStore_EmptyFileIsAbsent(t *testing.T) {
	t.Setenv(StateDirEnv, "")
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.json"), nil, 0o644))

	_, err = store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSanitizeKey(t *testing.T) {
	tests := map[string]string{
		"cryptosim_portfolio_v2": "cryptosim_portfolio_v2",
		"../../etc/passwd":       "etc_passwd",
		"  BTC/USDT  ":           "btc_usdt",
		"***":                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeKey(in), in)
	}
}

func TestOpen(t *testing.T) {
	t.Setenv(StateDirEnv, "")

	s, err := Open(Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(Options{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Options{Backend: "redis"})
	assert.Error(t, err)
}
