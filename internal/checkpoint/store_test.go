package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/shop-harvester/internal/product"
)

func rec(id, brand string) product.Record {
	return product.Record{product.KeyColumn: id, "brand": brand}
}

func newTempStore(t *testing.T, saveInterval int, overwrite bool) (*Store, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "results.csv")
	return NewStore(out, saveInterval, overwrite, zap.NewNop()), out
}

func TestDedupe_FirstOccurrenceWins(t *testing.T) {
	records := []product.Record{rec("A", "v1"), rec("B", "v2"), rec("A", "v3")}

	deduped := Dedupe(records)
	require.Len(t, deduped, 2)
	assert.Equal(t, "A", deduped[0].Key())
	assert.Equal(t, "v1", deduped[0]["brand"])
	assert.Equal(t, "B", deduped[1].Key())
}

func TestFinalize_StableDedup(t *testing.T) {
	s, out := newTempStore(t, 0, true)

	require.NoError(t, s.Record(rec("A", "v1")))
	require.NoError(t, s.Record(rec("B", "v2")))
	require.NoError(t, s.Record(rec("A", "v3")))

	path, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, out, path)

	got, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "v1", got[0]["brand"], "first occurrence wins")
}

func TestReserve_AtMostOnce(t *testing.T) {
	s, _ := newTempStore(t, 0, true)

	assert.True(t, s.Reserve("100-2000"))
	assert.False(t, s.Reserve("100-2000"))
	assert.True(t, s.Reserve("200-3000"))
}

func TestRecord_PartialPersistAtInterval(t *testing.T) {
	s, out := newTempStore(t, 2, true)
	partial := PartialPath(out)

	require.NoError(t, s.Record(rec("A", "")))
	_, err := os.Stat(partial)
	assert.True(t, os.IsNotExist(err), "no partial before the interval")

	require.NoError(t, s.Record(rec("B", "")))
	got, err := ReadRecords(partial)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// The third record does not cross a multiple of the interval.
	require.NoError(t, s.Record(rec("C", "")))
	got, err = ReadRecords(partial)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRecord_ZeroIntervalDisablesPartials(t *testing.T) {
	s, out := newTempStore(t, 0, true)

	for _, id := range []string{"A", "B", "C", "D"} {
		require.NoError(t, s.Record(rec(id, "")))
	}
	_, err := os.Stat(PartialPath(out))
	assert.True(t, os.IsNotExist(err))
}

func TestLoad_ResumesFromPartial(t *testing.T) {
	s1, out := newTempStore(t, 0, true)
	require.NoError(t, s1.Record(rec("A", "v1")))
	require.NoError(t, s1.Record(rec("B", "v2")))
	require.NoError(t, s1.PersistPartial())

	s2 := NewStore(out, 0, true, zap.NewNop())
	require.NoError(t, s2.Load())

	assert.Equal(t, 2, s2.Processed())
	assert.Equal(t, []string{"C"}, s2.FilterPending([]string{"A", "B", "C"}))

	require.NoError(t, s2.Record(rec("C", "v3")))
	path, err := s2.Finalize()
	require.NoError(t, err)

	got, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = os.Stat(PartialPath(out))
	assert.True(t, os.IsNotExist(err), "partial removed after commit")
}

func TestLoad_SubtractsCommittedOutput(t *testing.T) {
	_, out := newTempStore(t, 0, true)
	require.NoError(t, WriteRecords(out, []product.Record{rec("A", "v1")}))

	s := NewStore(out, 0, true, zap.NewNop())
	require.NoError(t, s.Load())

	assert.Equal(t, []string{"B"}, s.FilterPending([]string{"A", "B"}))
	// Committed records are not re-emitted into the result set.
	assert.Equal(t, 0, s.ResultCount())
}

func TestFinalize_TimestampSuffixWhenNotOverwriting(t *testing.T) {
	s, out := newTempStore(t, 0, false)
	require.NoError(t, os.WriteFile(out, []byte("existing"), 0o644))

	s.now = func() time.Time {
		return time.Date(2026, 8, 24, 13, 30, 5, 0, time.UTC)
	}
	require.NoError(t, s.Record(rec("A", "")))

	path, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(out), "results_20260824_133005.csv"), path)

	// The pre-existing file is untouched.
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestFinalize_NothingToCommit(t *testing.T) {
	s, out := newTempStore(t, 0, true)

	path, err := s.Finalize()
	require.NoError(t, err)
	assert.Empty(t, path)

	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestPartialPath(t *testing.T) {
	assert.Equal(t, "/data/results_partial.csv", PartialPath("/data/results.csv"))
	assert.Equal(t, "results_partial", PartialPath("results"))
}
