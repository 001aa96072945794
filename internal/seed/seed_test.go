package seed

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/logic"
	"github.com/roach88/sovereign/internal/store"
	"github.com/roach88/sovereign/internal/telemetry"
	"github.com/roach88/sovereign/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithIDGenerator(testutil.NewSequenceGenerator("seed")),
		store.WithClock(testutil.NewManualClock(1_704_067_200_000)),
		store.WithLogger(telemetry.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func counts(t *testing.T, s *store.Store) map[store.Table]int {
	t.Helper()
	out := map[store.Table]int{}
	for _, tbl := range store.AllTables {
		n, err := s.Count(t.Context(), tbl)
		require.NoError(t, err)
		out[tbl] = n
	}
	return out
}

func TestSeedIfEmpty_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	seeded, err := SeedIfEmpty(ctx, s)
	require.NoError(t, err)
	assert.True(t, seeded)
	first := counts(t, s)

	seeded, err = SeedIfEmpty(ctx, s)
	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Equal(t, first, counts(t, s))

	assert.Equal(t, 5, first[store.TableNodes])
	assert.Equal(t, 4, first[store.TableMotions])
	assert.Equal(t, 1, first[store.TableLogic])
	assert.Equal(t, 3, first[store.TableTasks])
	assert.Zero(t, first[store.TableDecisions])
}

func TestSeedIfEmpty_SkipsNonEmptyLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.InsertNode(ctx, ir.Node{Kind: ir.NodeOrg, Label: "Existing"})
	require.NoError(t, err)

	res, err := Run(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	n, err := s.Count(ctx, store.TableTasks)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeed_MotionsReferenceSeededNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	_, err := SeedIfEmpty(ctx, s)
	require.NoError(t, err)

	motions, err := s.ListMotions(ctx, store.Query{})
	require.NoError(t, err)
	for _, m := range motions {
		_, err := s.GetNode(ctx, m.SourceNodeID)
		assert.NoError(t, err, m.Kind)
		_, err = s.GetNode(ctx, m.TargetNodeID)
		assert.NoError(t, err, m.Kind)
	}
}

func TestSeed_LogicIsValid(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	_, err := SeedIfEmpty(ctx, s)
	require.NoError(t, err)

	settings, err := logic.Active(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, logic.Default(), settings)
}
