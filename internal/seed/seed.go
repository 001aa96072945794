// Package seed installs a starter graph into an empty ledger.
package seed

import (
	"context"
	"fmt"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/logic"
	"github.com/roach88/sovereign/internal/store"
)

// Tables are the tables SeedIfEmpty writes.
var Tables = []store.Table{store.TableNodes, store.TableMotions, store.TableLogic, store.TableTasks}

// starterNodes are keyed by a local name so motions can refer to them
// before ids exist.
var starterNodes = []struct {
	key  string
	node ir.Node
}{
	{"founder", ir.Node{Kind: ir.NodeActor, Label: "Founder", Tier: 0}},
	{"ops", ir.Node{Kind: ir.NodeActor, Label: "Operations Lead", Tier: 1}},
	{"company", ir.Node{Kind: ir.NodeOrg, Label: "Company", Tier: 0}},
	{"cash", ir.Node{Kind: ir.NodeAsset, Label: "Operating Cash", Tier: 1}},
	{"product", ir.Node{Kind: ir.NodeAsset, Label: "Core Product", Tier: 1}},
}

var starterMotions = []struct {
	kind, from, to string
}{
	{"directs", "founder", "ops"},
	{"owns", "founder", "company"},
	{"funds", "cash", "company"},
	{"builds", "ops", "product"},
}

var starterTasks = []ir.Task{
	{Title: "Review weekly cash position", Status: ir.TaskPending, Priority: 2},
	{Title: "Write the operating plan", Status: ir.TaskActive, Priority: 1},
	{Title: "Record first decision", Status: ir.TaskPending, Priority: 3},
}

// Result counts what SeedIfEmpty inserted.
type Result struct {
	Seeded  bool `json:"seeded"`
	Nodes   int  `json:"nodes"`
	Motions int  `json:"motions"`
	Logic   int  `json:"logic"`
	Tasks   int  `json:"tasks"`
}

// SeedIfEmpty inserts the starter graph when the nodes table is empty and
// reports whether it did. The emptiness check and the inserts share one
// transaction, so repeated calls never duplicate rows.
func SeedIfEmpty(ctx context.Context, s *store.Store) (bool, error) {
	res, err := Run(ctx, s)
	return res.Seeded, err
}

// Run is SeedIfEmpty with a per-table count of inserted rows.
func Run(ctx context.Context, s *store.Store) (Result, error) {
	var res Result
	err := s.Transaction(ctx, Tables, func(tx *store.Tx) error {
		n, err := tx.Count(ctx, store.TableNodes)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		ids := make(map[string]string, len(starterNodes))
		for _, sn := range starterNodes {
			node, err := tx.InsertNode(ctx, sn.node)
			if err != nil {
				return err
			}
			ids[sn.key] = node.ID
			res.Nodes++
		}
		for _, m := range starterMotions {
			if _, err := tx.InsertMotion(ctx, ir.Motion{
				Kind:         m.kind,
				SourceNodeID: ids[m.from],
				TargetNodeID: ids[m.to],
			}); err != nil {
				return err
			}
			res.Motions++
		}
		if _, err := tx.PutLogic(ctx, ir.LogicConfig{ID: logic.DefaultID, Payload: logic.Default().Payload()}); err != nil {
			return err
		}
		res.Logic++
		for _, t := range starterTasks {
			if _, err := tx.InsertTask(ctx, t); err != nil {
				return err
			}
			res.Tasks++
		}
		res.Seeded = true
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed: %w", err)
	}
	return res, nil
}
