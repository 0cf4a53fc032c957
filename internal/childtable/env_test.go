package childtable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ossexec/ltxd/internal/constants"
)

func TestEnvStoreSetThenLookup(t *testing.T) {
	s := NewEnvStore()
	require.NoError(t, s.Set("PATH", "/usr/bin"))

	v, ok := s.Lookup("PATH")
	require.True(t, ok)
	require.Equal(t, "/usr/bin", v)

	_, ok = s.Lookup("MISSING")
	require.False(t, ok)
}

func TestEnvStoreOverwriteSameLength(t *testing.T) {
	s := NewEnvStore()
	require.NoError(t, s.Set("LTP_TIMEOUT", "30"))
	require.NoError(t, s.Set("LTP_TIMEOUT", "45"))

	v, ok := s.Lookup("LTP_TIMEOUT")
	require.True(t, ok)
	require.Equal(t, "45", v)
}

func TestEnvStoreOverwriteGrowingValueShiftsTail(t *testing.T) {
	s := NewEnvStore()
	require.NoError(t, s.Set("A", "short"))
	require.NoError(t, s.Set("B", "also-short"))

	require.NoError(t, s.Set("A", "a much longer replacement value"))

	va, ok := s.Lookup("A")
	require.True(t, ok)
	require.Equal(t, "a much longer replacement value", va)

	vb, ok := s.Lookup("B")
	require.True(t, ok)
	require.Equal(t, "also-short", vb, "B's value must survive A's tail shift")
}

func TestEnvStoreOverwriteShrinkingValueShiftsTail(t *testing.T) {
	s := NewEnvStore()
	require.NoError(t, s.Set("A", "a much longer original value"))
	require.NoError(t, s.Set("B", "unchanged"))

	require.NoError(t, s.Set("A", "short"))

	va, ok := s.Lookup("A")
	require.True(t, ok)
	require.Equal(t, "short", va)

	vb, ok := s.Lookup("B")
	require.True(t, ok)
	require.Equal(t, "unchanged", vb)
}

func TestEnvStoreEntriesPreservesInsertionOrder(t *testing.T) {
	s := NewEnvStore()
	require.NoError(t, s.Set("FIRST", "1"))
	require.NoError(t, s.Set("SECOND", "2"))
	require.NoError(t, s.Set("FIRST", "overwritten")) // overwrite must not reorder

	require.Equal(t, []string{"FIRST=overwritten", "SECOND=2"}, s.Entries())
}

func TestEnvStoreEntryCountOverflow(t *testing.T) {
	s := NewEnvStore()
	for i := 0; i < constants.MaxEnvEntries; i++ {
		require.NoError(t, s.Set(fmt.Sprintf("K%d", i), "v"))
	}
	err := s.Set("ONE_TOO_MANY", "v")
	require.ErrorIs(t, err, ErrEnvOverflow)
}

func TestEnvStoreValueStoreOverflow(t *testing.T) {
	s := NewEnvStore()
	big := make([]byte, constants.EnvValStoreCap)
	err := s.Set("HUGE", string(big)+"x")
	require.ErrorIs(t, err, ErrEnvOverflow)
}

func TestEnvStoreKeyStoreOverflow(t *testing.T) {
	s := NewEnvStore()
	big := make([]byte, constants.EnvKeyStoreCap+1)
	for i := range big {
		big[i] = 'k'
	}
	err := s.Set(string(big), "v")
	require.ErrorIs(t, err, ErrEnvOverflow)
}
