// Package backup exports the whole ledger as one JSON document and restores
// it.
//
// Restore is a full replace, never a merge: the document is validated first,
// then every table is cleared and refilled inside a single transaction.
package backup

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/logic"
	"github.com/roach88/sovereign/internal/store"
	"github.com/roach88/sovereign/internal/telemetry"
)

// Version is the document format written by Export.
const Version = 1

//go:embed backup.schema.json
var schemaJSON string

// Snapshot is the backup document. Each array holds a table's full row set
// in creation order.
type Snapshot struct {
	Version      int                `json:"version"`
	ExportedAt   int64              `json:"exported_at"`
	Nodes        []ir.Node          `json:"nodes"`
	Motions      []ir.Motion        `json:"motions"`
	Decisions    []ir.DecisionEvent `json:"decisions"`
	Tasks        []ir.Task          `json:"tasks"`
	ActionLogs   []ir.ActionLog     `json:"actionLogs"`
	Proofs       []ir.Proof         `json:"proofs"`
	Logic        []ir.LogicConfig   `json:"logic"`
	SyncMessages []ir.SyncMessage   `json:"syncMessages,omitempty"`
}

// ImportResult reports what a restore wrote.
type ImportResult struct {
	Rows   map[store.Table]int `json:"rows"`
	Total  int                 `json:"total"`
	Digest string              `json:"digest"`
}

// Service exports and imports one store.
type Service struct {
	store  *store.Store
	logger *slog.Logger
	inst   *telemetry.Instruments
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithInstruments sets the metric instruments.
func WithInstruments(m *telemetry.Instruments) Option {
	return func(s *Service) { s.inst = m }
}

// New creates a backup service over st.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.inst == nil {
		s.inst = telemetry.Default()
	}
	return s
}

// Export reads every table inside one transaction, so the document is a
// consistent point-in-time copy.
func (s *Service) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Version: Version, ExportedAt: s.store.Clock().NowMillis()}
	err := s.store.Transaction(ctx, store.AllTables, func(tx *store.Tx) error {
		var err error
		all := store.Query{}
		if snap.Nodes, err = tx.ListNodes(ctx, all); err != nil {
			return err
		}
		if snap.Motions, err = tx.ListMotions(ctx, all); err != nil {
			return err
		}
		if snap.Decisions, err = tx.ListDecisions(ctx, all); err != nil {
			return err
		}
		if snap.Tasks, err = tx.ListTasks(ctx, all); err != nil {
			return err
		}
		if snap.ActionLogs, err = tx.ListActionLogs(ctx, all); err != nil {
			return err
		}
		if snap.Proofs, err = tx.ListProofs(ctx, all); err != nil {
			return err
		}
		if snap.Logic, err = tx.ListLogic(ctx, all); err != nil {
			return err
		}
		snap.SyncMessages, err = tx.ListSyncMessages(ctx, all)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return snap, nil
}

// WriteTo writes the snapshot as indented JSON.
func (snap *Snapshot) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return 0, fmt.Errorf("encode backup: %w", err)
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// Digest fingerprints the snapshot's rows: SHA-256 over canonical JSON,
// ignoring exported_at. Two exports of the same data share a digest.
func (snap *Snapshot) Digest() (string, error) {
	c := *snap
	c.ExportedAt = 0
	return ir.Digest(ir.DomainSnapshot, c)
}

// Count returns the number of rows per table.
func (snap *Snapshot) Count() map[store.Table]int {
	return map[store.Table]int{
		store.TableNodes:        len(snap.Nodes),
		store.TableMotions:      len(snap.Motions),
		store.TableDecisions:    len(snap.Decisions),
		store.TableTasks:        len(snap.Tasks),
		store.TableActionLogs:   len(snap.ActionLogs),
		store.TableProofs:       len(snap.Proofs),
		store.TableLogic:        len(snap.Logic),
		store.TableSyncMessages: len(snap.SyncMessages),
	}
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("unmarshal backup schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("backup.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("add backup schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile("backup.schema.json")
	})
	return schema, schemaErr
}

// Decode parses and validates a backup document without touching the store.
// Every failure is an *ir.ValidationError.
func Decode(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &ir.ValidationError{Entity: "backup", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := sch.Validate(doc); err != nil {
		return nil, schemaError(err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &ir.ValidationError{Entity: "backup", Message: err.Error()}
	}
	if err := snap.validateRows(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ir.ValidationError{Entity: "backup", Message: err.Error()}
	}
	// Report the deepest failing location.
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return &ir.ValidationError{
		Entity:  "backup",
		Field:   "/" + strings.Join(ve.InstanceLocation, "/"),
		Message: ve.Error(),
	}
}

func (snap *Snapshot) validateRows() error {
	check := func(name string, i int, err error) error {
		if err == nil {
			return nil
		}
		var verr *ir.ValidationError
		if errors.As(err, &verr) {
			return &ir.ValidationError{Entity: fmt.Sprintf("%s[%d]", name, i), Field: verr.Field, Message: verr.Message}
		}
		return err
	}
	for i, r := range snap.Nodes {
		if err := check("nodes", i, r.Validate()); err != nil {
			return err
		}
	}
	for i, r := range snap.Motions {
		if err := check("motions", i, r.Validate()); err != nil {
			return err
		}
	}
	for i, r := range snap.Decisions {
		if err := check("decisions", i, r.Validate()); err != nil {
			return err
		}
	}
	for i, r := range snap.Tasks {
		if err := check("tasks", i, r.Validate()); err != nil {
			return err
		}
	}
	for i, r := range snap.ActionLogs {
		if err := check("actionLogs", i, r.Validate()); err != nil {
			return err
		}
	}
	for i, r := range snap.Proofs {
		if err := check("proofs", i, r.Validate()); err != nil {
			return err
		}
	}
	for i, r := range snap.Logic {
		if err := check("logic", i, r.Validate()); err != nil {
			return err
		}
		settings, err := logic.Parse(r.Payload)
		if err := check("logic", i, err); err != nil {
			return err
		}
		snap.Logic[i].Payload = settings.Payload()
	}
	for i, r := range snap.SyncMessages {
		if err := check("syncMessages", i, r.Validate()); err != nil {
			return err
		}
	}
	return nil
}

// Import validates the document in r, then replaces the contents of every
// table with it in one transaction. On any error the store is unchanged.
// Logic payloads in an older format are upgraded on the way in.
func (s *Service) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	snap, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return s.Restore(ctx, snap)
}

// Restore replaces the store's contents with an already-decoded snapshot.
func (s *Service) Restore(ctx context.Context, snap *Snapshot) (*ImportResult, error) {
	err := s.store.Transaction(ctx, store.AllTables, func(tx *store.Tx) error {
		for _, t := range store.AllTables {
			if _, err := tx.Clear(ctx, t); err != nil {
				return err
			}
		}
		for _, r := range snap.Nodes {
			if _, err := tx.InsertNode(ctx, r); err != nil {
				return err
			}
		}
		for _, r := range snap.Motions {
			if _, err := tx.InsertMotion(ctx, r); err != nil {
				return err
			}
		}
		for _, r := range snap.Decisions {
			if _, err := tx.InsertDecision(ctx, r); err != nil {
				return err
			}
		}
		for _, r := range snap.Tasks {
			if _, err := tx.InsertTask(ctx, r); err != nil {
				return err
			}
		}
		for _, r := range snap.ActionLogs {
			if _, err := tx.InsertActionLog(ctx, r); err != nil {
				return err
			}
		}
		for _, r := range snap.Proofs {
			if _, err := tx.InsertProof(ctx, r); err != nil {
				return err
			}
		}
		for _, r := range snap.Logic {
			if _, err := tx.PutLogic(ctx, r); err != nil {
				return err
			}
		}
		for _, r := range snap.SyncMessages {
			if _, err := tx.InsertSyncMessage(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	digest, err := snap.Digest()
	if err != nil {
		return nil, fmt.Errorf("import digest: %w", err)
	}
	res := &ImportResult{Rows: snap.Count(), Digest: digest}
	for t, n := range res.Rows {
		res.Total += n
		if n > 0 {
			s.inst.ImportRows.Add(ctx, int64(n), metric.WithAttributes(attribute.String("table", string(t))))
		}
	}
	s.logger.Info("backup restored", "rows", res.Total, "digest", digest)
	return res, nil
}
