// Package s3parquet provides Dataset, a DataFrame handle over a partitioned
// Parquet dataset in an object store. A Dataset pairs an engine-resident
// frame covering the whole dataset with an inventory of the piece files
// beneath its path, so callers can chain deferred transformations, carve off
// partition subsets, draw piece-level random samples, profile columns against
// a representative sample, and plan null-filling and feature preparation from
// those profiles.
package s3parquet
