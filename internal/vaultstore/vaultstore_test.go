package vaultstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestVault(t *testing.T) *Vault {
	t.Helper()
	dir := t.TempDir()
	v, err := Open(filepath.Join(dir, "vault.db"), []byte("master-key-0123456789abcdef"), []byte("vault-key-0123456789abcdef012345"), []byte("salt"), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func TestUpsertThenGetForwardAndReverse(t *testing.T) {
	v := openTestVault(t)

	result, err := v.Upsert(Entry{Column: "email", Original: "jane@example.com", Anonymized: "qexd@mail.test", DataType: "email"})
	require.NoError(t, err)
	assert.True(t, result.Inserted)

	got, ok, err := v.GetForward("email", "jane@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "qexd@mail.test", got)

	orig, ok, err := v.GetReverse("email", "qexd@mail.test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", orig)
}

func TestUpsertIsIdempotentForSameOriginal(t *testing.T) {
	v := openTestVault(t)

	first, err := v.Upsert(Entry{Column: "email", Original: "jane@example.com", Anonymized: "qexd@mail.test"})
	require.NoError(t, err)
	assert.True(t, first.Inserted)

	second, err := v.Upsert(Entry{Column: "email", Original: "jane@example.com", Anonymized: "different-candidate@mail.test"})
	require.NoError(t, err)
	assert.False(t, second.Inserted)
	assert.Equal(t, "qexd@mail.test", second.ExistingAnonymized)
}

func TestGetForwardMissingReturnsNotFound(t *testing.T) {
	v := openTestVault(t)
	_, ok, err := v.GetForward("email", "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSameColumnDifferentOriginalsDoNotCollideOnKey(t *testing.T) {
	v := openTestVault(t)

	_, err := v.Upsert(Entry{Column: "email", Original: "a@example.com", Anonymized: "aaaa@mail.test"})
	require.NoError(t, err)
	_, err = v.Upsert(Entry{Column: "email", Original: "b@example.com", Anonymized: "bbbb@mail.test"})
	require.NoError(t, err)

	a, ok, err := v.GetForward("email", "a@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "aaaa@mail.test", a)

	b, ok, err := v.GetForward("email", "b@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bbbb@mail.test", b)
}

func TestWrongVaultKeyFailsAuthentication(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.db")

	v, err := Open(path, []byte("master-key"), []byte("vault-key-right-0123456789abcdef"), []byte("salt"), 1000)
	require.NoError(t, err)
	_, err = v.Upsert(Entry{Column: "email", Original: "a@example.com", Anonymized: "aaaa@mail.test"})
	require.NoError(t, err)
	require.NoError(t, v.Close())

	wrong, err := Open(path, []byte("master-key"), []byte("vault-key-wrong-0123456789abcdef"), []byte("salt"), 1000)
	require.NoError(t, err)
	defer wrong.Close()

	_, _, err = wrong.GetForward("email", "a@example.com")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestIterColumnVisitsAllInsertedEntries(t *testing.T) {
	v := openTestVault(t)

	originals := []string{"a@example.com", "b@example.com", "c@example.com"}
	for _, o := range originals {
		_, err := v.Upsert(Entry{Column: "email", Original: o, Anonymized: "anon-" + o})
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	err := v.IterColumn("email", func(e Entry) bool {
		seen[e.Original] = true
		return true
	})
	require.NoError(t, err)
	assert.Len(t, seen, len(originals))
	for _, o := range originals {
		assert.True(t, seen[o], "missing %s", o)
	}
}

func TestIterColumnStopsEarlyWhenFnReturnsFalse(t *testing.T) {
	v := openTestVault(t)
	for i := 0; i < 5; i++ {
		_, err := v.Upsert(Entry{Column: "c", Original: string(rune('a' + i)), Anonymized: string(rune('z' - i))})
		require.NoError(t, err)
	}

	visited := 0
	err := v.IterColumn("c", func(e Entry) bool {
		visited++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, visited)
}

func TestReopenPersistsAcrossProcesses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.db")
	masterKey := []byte("master-key-0123456789abcdef")
	vaultKey := []byte("vault-key-0123456789abcdef012345")

	v1, err := Open(path, masterKey, vaultKey, []byte("salt"), 1000)
	require.NoError(t, err)
	_, err = v1.Upsert(Entry{Column: "email", Original: "a@example.com", Anonymized: "anon@mail.test"})
	require.NoError(t, err)
	require.NoError(t, v1.Close())

	v2, err := Open(path, masterKey, vaultKey, []byte("salt"), 1000)
	require.NoError(t, err)
	defer v2.Close()

	got, ok, err := v2.GetForward("email", "a@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "anon@mail.test", got)
}
