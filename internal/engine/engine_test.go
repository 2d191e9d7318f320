package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stealthguard/anonycore/internal/keyschedule"
	"github.com/stealthguard/anonycore/internal/vaultstore"
)

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	schedule, err := keyschedule.New([]byte("test-seed"), 1000)
	require.NoError(t, err)

	var vault *vaultstore.Vault
	if opts.Mode != ModeHMAC {
		vaultKey, err := keyschedule.DeriveVaultKey([]byte("vault-password"), []byte("salt"), 1000)
		require.NoError(t, err)
		vault, err = vaultstore.Open(filepath.Join(t.TempDir(), "vault.db"), schedule.MasterKey(), vaultKey, []byte("salt"), 1000)
		require.NoError(t, err)
		t.Cleanup(func() { vault.Close() })
	}

	eng, err := New(schedule, vault, opts)
	require.NoError(t, err)
	return eng
}

func TestAnonymizeThenDeanonymizeRoundTrips(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeHybrid, Strict: true})

	anon, err := eng.Anonymize("email", "jane.doe@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "jane.doe@example.com", anon)

	back, found, err := eng.Deanonymize("email", anon)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "jane.doe@example.com", back)
}

func TestAnonymizeIsIdempotentForSameValue(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeHybrid, Strict: true})

	first, err := eng.Anonymize("email", "jane.doe@example.com")
	require.NoError(t, err)
	second, err := eng.Anonymize("email", "jane.doe@example.com")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAnonymizeEmptyValuePassesThrough(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeHybrid, Strict: true})
	out, err := eng.Anonymize("email", "")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestAnonymizeExcludedColumnPassesThrough(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeHybrid, Strict: true, ExcludedColumns: []string{"email"}})
	out, err := eng.Anonymize("email", "jane.doe@example.com")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", out)
}

func TestAnonymizeFormatUnparseableRecoversLocallyUnderStrict(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeHybrid, Strict: true})

	// First call fixes the column's detected type as Email.
	_, err := eng.Anonymize("email", "jane.doe@example.com")
	require.NoError(t, err)

	// Second call reuses that cached type, but the value has no "@" to
	// split on: transformEmail raises FormatUnparseableError. Strict mode
	// must not turn this into a hard error (spec §7: local fallback).
	out, err := eng.Anonymize("email", "not-an-email-value")
	require.NoError(t, err)
	assert.NotEqual(t, "not-an-email-value", out)

	back, found, err := eng.Deanonymize("email", out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "not-an-email-value", back)
}

func TestHMACModeNeverTouchesVaultAndDeanonymizeMisses(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeHMAC, Strict: true})

	anon, err := eng.Anonymize("email", "jane.doe@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "jane.doe@example.com", anon)

	_, found, err := eng.Deanonymize("email", anon)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHMACModeIsDeterministic(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeHMAC, Strict: true})
	a, err := eng.Anonymize("email", "jane.doe@example.com")
	require.NoError(t, err)
	b, err := eng.Anonymize("email", "jane.doe@example.com")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFakeModePreservesShapeAndRoundTrips(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeFake, Strict: true})
	anon, err := eng.Anonymize("phone", "+1-555-123-4567")
	require.NoError(t, err)
	assert.Len(t, anon, len("+1-555-123-4567"))

	back, found, err := eng.Deanonymize("phone", anon)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "+1-555-123-4567", back)
}

func TestFPEModeRoundTrips(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeFPE, Strict: true})
	anon, err := eng.Anonymize("account_id", "AB12349")
	require.NoError(t, err)

	back, found, err := eng.Deanonymize("account_id", anon)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "AB12349", back)
}

func TestDifferentColumnsDoNotShareMappingsForSameValue(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeHybrid, Strict: true})

	a, err := eng.Anonymize("home_phone", "+1-555-123-4567")
	require.NoError(t, err)
	b, err := eng.Anonymize("work_phone", "+1-555-123-4567")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLenientModeReturnsOriginalOnMissingVault(t *testing.T) {
	schedule, err := keyschedule.New([]byte("seed"), 1000)
	require.NoError(t, err)
	eng, err := New(schedule, nil, Options{Mode: ModeHybrid, Strict: false})
	require.NoError(t, err)

	out, err := eng.Anonymize("email", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", out)
}

func TestStrictModeSurfacesMissingVaultAsConfigInvalid(t *testing.T) {
	schedule, err := keyschedule.New([]byte("seed"), 1000)
	require.NoError(t, err)
	eng, err := New(schedule, nil, Options{Mode: ModeHybrid, Strict: true})
	require.NoError(t, err)

	_, err = eng.Anonymize("email", "jane@example.com")
	require.Error(t, err)
	var cerr *CoreError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrConfigInvalid, cerr.Kind)
}

func TestNewRejectsNilSchedule(t *testing.T) {
	_, err := New(nil, nil, Options{})
	require.Error(t, err)
	var cerr *CoreError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrConfigInvalid, cerr.Kind)
}

func TestRunProfileRecordsDetectedColumns(t *testing.T) {
	eng := newTestEngine(t, Options{Mode: ModeHybrid, Strict: true, Profile: "test-run"})

	_, err := eng.Anonymize("signup_date", "2020-01-15")
	require.NoError(t, err)

	doc := eng.RunProfile()
	assert.Equal(t, "test-run", doc.Profile)
	require.Len(t, doc.Columns, 1)
	assert.Equal(t, "signup_date", doc.Columns[0].Name)
	assert.Equal(t, "date", doc.Columns[0].Type)
}
