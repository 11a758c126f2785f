package ddf

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// LoadOptions configures how an Engine materializes a partitioned Parquet
// dataset into an EngineFrame.
type LoadOptions struct {
	// CoerceBinaryToString converts binary-typed Parquet columns to string
	// columns on load. Datasets written by JVM tooling frequently type text
	// columns as binary, so this defaults to on for Dataset handles.
	CoerceBinaryToString bool
	// ReadWorkers bounds the number of piece files converted concurrently.
	// Zero means the engine's default.
	ReadWorkers int
}

// Engine executes full-dataset work on behalf of Dataset handles. An Engine
// owns partition discovery for the frames it loads; Dataset-level piece
// bookkeeping exists only for the local read path.
type Engine interface {
	// Load materializes the dataset rooted at path into a frame.
	Load(ctx context.Context, path string, opts *LoadOptions) (EngineFrame, error)
	// ExecSQL runs a restricted SQL query against frame, registered under
	// the given temporary alias.
	ExecSQL(ctx context.Context, query string, alias string, frame EngineFrame) (EngineFrame, error)
}

// EngineFrame is an engine-resident tabular frame. Deriving methods return
// new frames and leave the receiver untouched; a frame is never mutated once
// handed to a Dataset.
type EngineFrame interface {
	Schema() Schema
	Count(ctx context.Context) (int64, error)

	Project(ctx context.Context, colNames []string) (EngineFrame, error)
	SelectExprs(ctx context.Context, exprs []string) (EngineFrame, error)
	Drop(ctx context.Context, colNames []string) (EngineFrame, error)
	Filter(ctx context.Context, condition string) (EngineFrame, error)
	WithColumn(ctx context.Context, colName string, expression string) (EngineFrame, error)
	FillNulls(ctx context.Context, plan *NullFillPlan) (EngineFrame, error)
	Prep(ctx context.Context, plan *PrepPlan) (EngineFrame, error)

	// Sample draws approximately n rows without replacement, deterministically
	// for a given seed.
	Sample(ctx context.Context, n int64, seed int64) (EngineFrame, error)
	// Repartition redistributes the frame's rows across n partitions.
	Repartition(ctx context.Context, n int) (EngineFrame, error)
	// Union appends the rows of others, aligning columns by name and filling
	// columns absent from a side with nulls.
	Union(ctx context.Context, others ...EngineFrame) (EngineFrame, error)

	// Cache pins the frame's materialized form for reuse, eagerly.
	Cache(ctx context.Context) error
	// Head materializes up to n leading rows.
	Head(ctx context.Context, n int64) (arrow.Record, error)
	// Collect materializes the whole frame, one record per partition.
	Collect(ctx context.Context) ([]arrow.Record, error)
}
