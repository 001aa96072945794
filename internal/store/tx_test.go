package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/telemetry"
	"github.com/roach88/sovereign/internal/testutil"
)

func TestTransaction_CommitsAllTables(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()

	err := s.Transaction(ctx, []Table{TableDecisions, TableTasks}, func(tx *Tx) error {
		d, err := tx.InsertDecision(ctx, ir.DecisionEvent{Title: "Ship", Decision: ir.DecisionDo})
		if err != nil {
			return err
		}
		_, err = tx.InsertTask(ctx, ir.Task{Title: "Ship", Status: ir.TaskPending, SourceDecisionID: d.ID})
		return err
	})
	require.NoError(t, err)

	n, err := s.Count(ctx, TableDecisions)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Count(ctx, TableTasks)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()
	boom := errors.New("boom")

	err := s.Transaction(ctx, []Table{TableDecisions, TableTasks}, func(tx *Tx) error {
		if _, err := tx.InsertDecision(ctx, ir.DecisionEvent{Title: "a", Decision: ir.DecisionDo}); err != nil {
			return err
		}
		if _, err := tx.InsertTask(ctx, testTask("a", ir.TaskPending)); err != nil {
			return err
		}
		return boom
	})
	assert.Same(t, boom, err)

	for _, table := range []Table{TableDecisions, TableTasks} {
		n, err := s.Count(ctx, table)
		require.NoError(t, err)
		assert.Zero(t, n, table)
	}
}

func TestTransaction_RollsBackOnPanic(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()

	assert.Panics(t, func() {
		_ = s.Transaction(ctx, []Table{TableNodes}, func(tx *Tx) error {
			if _, err := tx.InsertNode(ctx, ir.Node{Kind: ir.NodeOrg, Label: "Acme"}); err != nil {
				return err
			}
			panic("mid-transaction")
		})
	})

	n, err := s.Count(ctx, TableNodes)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The connection is usable again.
	_, err = s.InsertNode(ctx, ir.Node{Kind: ir.NodeOrg, Label: "Acme"})
	require.NoError(t, err)
}

func TestTransaction_OutOfScopeWrite(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()

	err := s.Transaction(ctx, []Table{TableTasks}, func(tx *Tx) error {
		if _, err := tx.InsertTask(ctx, testTask("kept?", ir.TaskPending)); err != nil {
			return err
		}
		_, err := tx.InsertProof(ctx, ir.Proof{RelatedID: "x", RelatedType: "task", Kind: "note"})
		return err
	})
	require.ErrorIs(t, err, ErrTableNotInScope)

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, TableProofs, txErr.Table)

	n, err := s.Count(ctx, TableTasks)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransaction_ReadsSeeOwnWrites(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()

	err := s.Transaction(ctx, []Table{TableTasks}, func(tx *Tx) error {
		task, err := tx.InsertTask(ctx, testTask("visible", ir.TaskPending))
		if err != nil {
			return err
		}
		got, err := tx.GetTask(ctx, task.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, "visible", got.Title)
		// Reads are not scoped.
		_, err = tx.ListNodes(ctx, Query{})
		return err
	})
	require.NoError(t, err)
}

func TestTransaction_RejectsBadDeclarations(t *testing.T) {
	s, _ := createTestStore(t)
	noop := func(*Tx) error { return nil }

	assert.Error(t, s.Transaction(t.Context(), nil, noop))
	assert.ErrorIs(t, s.Transaction(t.Context(), []Table{"ghosts"}, noop), ErrUnknownTable)
}

func TestTransaction_CancelledContextRollsBack(t *testing.T) {
	s, _ := createTestStore(t)
	ctx, cancel := context.WithCancel(t.Context())

	err := s.Transaction(ctx, []Table{TableTasks}, func(tx *Tx) error {
		cancel()
		_, err := tx.InsertTask(ctx, testTask("late", ir.TaskPending))
		return err
	})
	require.Error(t, err)

	n, err := s.Count(t.Context(), TableTasks)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOnCommit_ReportsWrittenTables(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()

	var got [][]Table
	s.OnCommit(func(tables []Table) { got = append(got, tables) })

	err := s.Transaction(ctx, []Table{TableTasks, TableActionLogs, TableProofs}, func(tx *Tx) error {
		if _, err := tx.InsertActionLog(ctx, ir.ActionLog{TaskID: "t", ActionStatus: ir.ActionDelayed}); err != nil {
			return err
		}
		_, err := tx.InsertTask(ctx, testTask("t", ir.TaskPending))
		return err
	})
	require.NoError(t, err)

	// Read-only and failed transactions do not notify.
	require.NoError(t, s.Transaction(ctx, []Table{TableTasks}, func(tx *Tx) error {
		_, err := tx.ListTasks(ctx, Query{})
		return err
	}))
	_ = s.Transaction(ctx, []Table{TableTasks}, func(tx *Tx) error {
		_, _ = tx.InsertTask(ctx, testTask("x", ir.TaskPending))
		return errors.New("abort")
	})

	require.Len(t, got, 1)
	assert.Equal(t, []Table{TableActionLogs, TableTasks}, got[0])
}

func TestTransaction_RecordsMetrics(t *testing.T) {
	reader, provider := testutil.NewMeterReader()
	inst, err := telemetry.NewInstruments(provider.Meter(telemetry.MeterName))
	require.NoError(t, err)

	s, _ := createTestStore(t, WithInstruments(inst))
	ctx := t.Context()

	_, err = s.InsertNode(ctx, ir.Node{Kind: ir.NodeActor, Label: "a"})
	require.NoError(t, err)
	_, err = s.InsertNode(ctx, ir.Node{Kind: ir.NodeActor, Label: "b"})
	require.NoError(t, err)
	_ = s.Transaction(ctx, []Table{TableNodes}, func(*Tx) error { return errors.New("no") })

	assert.Equal(t, int64(2), testutil.CounterValue(t, reader, "sovereign.tx.commits"))
	assert.Equal(t, int64(1), testutil.CounterValue(t, reader, "sovereign.tx.rollbacks"))
}

func TestClear(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()

	for range 3 {
		_, err := s.InsertProof(ctx, ir.Proof{RelatedID: "d", RelatedType: "decision", Kind: "doc"})
		require.NoError(t, err)
	}

	var cleared int64
	err := s.Transaction(ctx, []Table{TableProofs}, func(tx *Tx) error {
		var err error
		cleared, err = tx.Clear(ctx, TableProofs)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), cleared)

	n, err := s.Count(ctx, TableProofs)
	require.NoError(t, err)
	assert.Zero(t, n)
}
