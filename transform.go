package ddf

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// TransformKind tags a Transform with the operation that produced it, so that
// chain bookkeeping never needs to inspect closures to learn what they do.
type TransformKind string

// Kinds of transforms produced by the operations/transform package.
const (
	SelectTransform     TransformKind = "select"
	SQLTransform        TransformKind = "sql"
	FilterTransform     TransformKind = "filter"
	WithColumnTransform TransformKind = "withColumn"
	ProjectTransform    TransformKind = "project"
	DropTransform       TransformKind = "drop"
	FillNATransform     TransformKind = "fillna"
	PrepTransform       TransformKind = "prep"
)

// EngineFn is the engine-native variant of a Transform. It applies the
// operation to a full engine frame, returning the derived frame.
type EngineFn func(ctx context.Context, engine Engine, frame EngineFrame) (EngineFrame, error)

// LocalFn is the local variant of a Transform. It applies the operation to a
// single materialized Arrow record, as produced by reading one piece file.
// The returned record is a new record; the input is not released.
type LocalFn func(ctx context.Context, rec arrow.Record) (arrow.Record, error)

// Transform is one deferred operation in a Dataset's transformation chain.
// Engine is always present. Local is nil for operations which cannot be
// replayed against a single piece record; a chain containing such a gap
// cannot serve local piece reads or sampling.
type Transform struct {
	Kind        TransformKind
	Description string
	Engine      EngineFn
	Local       LocalFn
	// InheritCache marks operations which preserve row content closely
	// enough that the parent's cached sample and statistics remain
	// authoritative for the result.
	InheritCache bool
	// InheritNRows marks operations which cannot change the row count.
	InheritNRows bool
}

// LocallyReplayable returns true iff this transform can be applied to a
// single piece record without engine involvement.
func (t Transform) LocallyReplayable() bool {
	return t.Local != nil
}

func (t Transform) String() string {
	if t.Description != "" {
		return t.Description
	}
	return string(t.Kind)
}
