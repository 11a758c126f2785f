package s3parquet

import (
	"context"

	"github.com/adatao/ddf/operations/transform"
)

// Select chains a SQL-style projection. Expressions may be bare column
// names, "*", computed expressions and aliases. Selecting only stars and
// bare columns preserves the parent's cached sample and statistics.
func (ds *Dataset) Select(ctx context.Context, exprs ...string) (*Dataset, error) {
	return ds.Transform(ctx, transform.Select(exprs...))
}

// SQL chains a restricted SQL query against this dataset, registered under
// its alias.
func (ds *Dataset) SQL(ctx context.Context, query string) (*Dataset, error) {
	return ds.Transform(ctx, transform.SQL(query, ds.Alias()))
}

// Filter chains a row filter. The row count is not inherited; counting the
// derived handle re-counts through the engine.
func (ds *Dataset) Filter(ctx context.Context, condition string) (*Dataset, error) {
	return ds.Transform(ctx, transform.Filter(condition))
}

// WithColumn chains the derivation of one named column from an expression
// over existing columns.
func (ds *Dataset) WithColumn(ctx context.Context, colName string, expression string) (*Dataset, error) {
	return ds.Transform(ctx, transform.WithColumn(colName, expression))
}

// Project chains a plain column projection. Projection replays locally, so
// projected handles still serve piece reads and sampling.
func (ds *Dataset) Project(ctx context.Context, colNames ...string) (*Dataset, error) {
	return ds.Transform(ctx, transform.Project(colNames...))
}

// Drop chains the removal of the named columns. Dropping replays locally.
func (ds *Dataset) Drop(ctx context.Context, colNames ...string) (*Dataset, error) {
	return ds.Transform(ctx, transform.Drop(colNames...))
}
