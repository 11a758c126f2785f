package ddf

import "context"

// A DataFrame is a tool for constructing a chain of deferred transformations
// applied to partitioned columnar data
type DataFrame interface {
	GetSchema() Schema                                           // GetSchema returns the Schema of a DataFrame
	GetEngineFrame() EngineFrame                                 // GetEngineFrame returns the engine frame backing a DataFrame
	Count(ctx context.Context) (int64, error)                    // Count returns the number of rows in a DataFrame
	To(ctx context.Context, ts ...Transform) (DataFrame, error)  // To is a "functional operations" factory method for DataFrames, chaining transforms onto the current one(s).
}
