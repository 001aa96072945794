// Package logic validates and versions the payload of LogicConfig rows.
//
// Payloads are stored as free-form objects. Version 1 was a flat map of
// integer weights; version 2 nests the weights and adds the burnout
// threshold and the length of the decision window. Reads and writes both
// go through Migrate, so a ledger restored from an old backup keeps working.
package logic

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/store"
)

//go:embed schema.cue
var schemaSrc string

// CurrentVersion is the schema_version written by Migrate.
const CurrentVersion = 2

// DefaultID is the row id used for the single active config.
const DefaultID = "logic-default"

// ErrUnsupportedVersion is returned for payloads newer than this build.
var ErrUnsupportedVersion = errors.New("unsupported logic schema version")

// Settings is the decoded form of a version 2 payload.
type Settings struct {
	SchemaVersion    int            `json:"schema_version"`
	Weights          map[string]int `json:"weights"`
	BurnoutThreshold int            `json:"burnout_threshold"`
	WeekDays         int            `json:"week_days"`
}

// Default returns the settings used when the ledger has no logic row.
func Default() Settings {
	return Settings{
		SchemaVersion:    CurrentVersion,
		Weights:          map[string]int{"do": 3, "delegate": 2, "stop": 1},
		BurnoutThreshold: 70,
		WeekDays:         7,
	}
}

// Payload encodes s as a storable object.
func (s Settings) Payload() ir.Object {
	weights := make(ir.Object, len(s.Weights))
	for k, v := range s.Weights {
		weights[k] = ir.Int(v)
	}
	return ir.Object{
		"schema_version":    ir.Int(CurrentVersion),
		"weights":           weights,
		"burnout_threshold": ir.Int(s.BurnoutThreshold),
		"week_days":         ir.Int(s.WeekDays),
	}
}

var (
	schemaOnce sync.Once
	cueCtx     *cue.Context
	schema     cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		cueCtx = cuecontext.New()
		v := cueCtx.CompileString(schemaSrc, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile logic schema: %w", err)
			return
		}
		schema = v.LookupPath(cue.ParsePath("#Logic"))
	})
	return cueCtx, schema, schemaErr
}

// Migrate upgrades a payload to the current version. Version 1 payloads
// (no schema_version, every value an integer weight) become version 2 with
// default threshold and window. Current payloads are returned as a copy.
func Migrate(payload ir.Object) (ir.Object, error) {
	if payload == nil {
		return nil, &ir.ValidationError{Entity: "logic", Field: "payload", Message: "is required"}
	}
	version, hasVersion := payload.Int("schema_version")
	switch {
	case !hasVersion:
		if _, present := payload["schema_version"]; present {
			return nil, &ir.ValidationError{Entity: "logic", Field: "schema_version", Message: "must be an integer"}
		}
		weights := make(map[string]int, len(payload))
		for k, v := range payload {
			n, ok := v.(ir.Int)
			if !ok {
				return nil, &ir.ValidationError{Entity: "logic", Field: k, Message: "v1 weights must be integers"}
			}
			weights[k] = int(n)
		}
		s := Default()
		s.Weights = weights
		return s.Payload(), nil
	case version == CurrentVersion:
		return payload.Clone(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

// Validate checks a current-version payload against the embedded CUE
// schema and returns the decoded settings with defaults filled in.
func Validate(payload ir.Object) (Settings, error) {
	ctx, def, err := loadSchema()
	if err != nil {
		return Settings{}, err
	}
	v := ctx.Encode(payload.Native())
	if err := v.Err(); err != nil {
		return Settings{}, &ir.ValidationError{Entity: "logic", Field: "payload", Message: err.Error()}
	}
	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Settings{}, toValidationError(err)
	}
	var s Settings
	if err := unified.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("decode logic payload: %w", err)
	}
	if s.Weights == nil {
		s.Weights = map[string]int{}
	}
	return s, nil
}

// Parse migrates then validates payload.
func Parse(payload ir.Object) (Settings, error) {
	migrated, err := Migrate(payload)
	if err != nil {
		return Settings{}, err
	}
	return Validate(migrated)
}

func toValidationError(err error) *ir.ValidationError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ir.ValidationError{Entity: "logic", Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ir.ValidationError{
		Entity:  "logic",
		Field:   strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}

// Put migrates and validates payload, then writes it as row id (DefaultID
// when empty). The stored payload is always the current version.
func Put(ctx context.Context, s *store.Store, id string, payload ir.Object) (ir.LogicConfig, Settings, error) {
	settings, err := Parse(payload)
	if err != nil {
		return ir.LogicConfig{}, Settings{}, err
	}
	if id == "" {
		id = DefaultID
	}
	row, err := s.PutLogic(ctx, ir.LogicConfig{ID: id, Payload: settings.Payload()})
	if err != nil {
		return ir.LogicConfig{}, Settings{}, fmt.Errorf("put logic: %w", err)
	}
	return row, settings, nil
}

// Reader is the part of the store Active needs. Satisfied by *store.Store
// and *store.Tx.
type Reader interface {
	ActiveLogic(ctx context.Context) (ir.LogicConfig, error)
}

// Active returns the settings of the most recently updated logic row, or
// Default when there is none.
func Active(ctx context.Context, r Reader) (Settings, error) {
	row, err := r.ActiveLogic(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	s, err := Parse(row.Payload)
	if err != nil {
		return Settings{}, fmt.Errorf("logic %s: %w", row.ID, err)
	}
	return s, nil
}
