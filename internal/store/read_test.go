package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sovereign/internal/ir"
)

func TestGet_NotFound(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()

	_, err := s.GetNode(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetDecision(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetProof(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	s, _ := createTestStore(t)

	tasks, err := s.ListTasks(t.Context(), Query{})
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestList_OrderAndTieBreak(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()

	// Same timestamp: id decides, byte-wise.
	for _, id := range []string{"b", "a", "c"} {
		_, err := s.InsertDecision(ctx, ir.DecisionEvent{ID: id, CreatedAt: 100, Title: id, Decision: ir.DecisionDo})
		require.NoError(t, err)
	}
	_, err := s.InsertDecision(ctx, ir.DecisionEvent{ID: "z", CreatedAt: 50, Title: "early", Decision: ir.DecisionStop})
	require.NoError(t, err)

	asc, err := s.ListDecisions(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "b", "c"}, decisionIDs(asc))

	desc, err := s.ListDecisions(ctx, Query{Order: Desc})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a", "z"}, decisionIDs(desc))

	limited, err := s.ListDecisions(ctx, Query{Order: Desc, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, decisionIDs(limited))
}

func TestList_Filters(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()

	for _, st := range []ir.TaskStatus{ir.TaskPending, ir.TaskActive, ir.TaskDone, ir.TaskPending} {
		_, err := s.InsertTask(ctx, testTask(string(st), st))
		require.NoError(t, err)
	}

	pending, err := s.ListTasks(ctx, Query{Filters: []Filter{Eq("status", ir.TaskPending)}})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	open, err := s.ListTasks(ctx, Query{Filters: []Filter{In("status", ir.TaskPending, ir.TaskActive)}})
	require.NoError(t, err)
	assert.Len(t, open, 3)

	none, err := s.ListTasks(ctx, Query{Filters: []Filter{In[string]("status")}})
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := s.Count(ctx, TableTasks, Eq("status", ir.TaskDone))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestList_UnindexedColumnRejected(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.ListTasks(t.Context(), Query{Filters: []Filter{Eq("title", "x")}})
	assert.ErrorIs(t, err, ErrNotIndexed)

	_, err = s.Count(t.Context(), TableNodes, Eq("label", "x"))
	assert.ErrorIs(t, err, ErrNotIndexed)
}

func TestActiveLogic(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := t.Context()

	_, err := s.ActiveLogic(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.PutLogic(ctx, ir.LogicConfig{ID: "old", Payload: ir.Object{}})
	require.NoError(t, err)
	clock.Advance(10)
	_, err = s.PutLogic(ctx, ir.LogicConfig{ID: "new", Payload: ir.Object{}})
	require.NoError(t, err)

	active, err := s.ActiveLogic(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", active.ID)
}

func TestListMotions_ByNode(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := t.Context()

	_, err := s.InsertMotion(ctx, ir.Motion{Kind: "pays", SourceNodeID: "n1", TargetNodeID: "n2"})
	require.NoError(t, err)
	_, err = s.InsertMotion(ctx, ir.Motion{Kind: "owns", SourceNodeID: "n2", TargetNodeID: "missing"})
	require.NoError(t, err)

	out, err := s.ListMotions(ctx, Query{Filters: []Filter{Eq("source_node_id", "n2")}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "owns", out[0].Kind)
}

func decisionIDs(ds []ir.DecisionEvent) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestQueryKey(t *testing.T) {
	assert.Equal(t, "all", Query{}.Key())
	assert.Equal(t, "status=pending,active|desc|limit=5",
		Query{Filters: []Filter{In("status", ir.TaskPending, ir.TaskActive)}, Order: Desc, Limit: 5}.Key())
	assert.NotEqual(t, Query{Order: Desc}.Key(), Query{}.Key())
}
