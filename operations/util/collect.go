package util

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/adatao/ddf"
)

// Collect materializes a DataFrame as Arrow records, one per engine
// partition. A positive partitionLimit caps how many partitions are brought
// back; the remainder is released.
func Collect(ctx context.Context, df ddf.DataFrame, partitionLimit int) ([]arrow.Record, error) {
	recs, err := df.GetEngineFrame().Collect(ctx)
	if err != nil {
		return nil, err
	}
	if partitionLimit > 0 && len(recs) > partitionLimit {
		for _, rec := range recs[partitionLimit:] {
			rec.Release()
		}
		recs = recs[:partitionLimit]
	}
	return recs, nil
}

// Head materializes up to n leading rows of a DataFrame.
func Head(ctx context.Context, df ddf.DataFrame, n int64) (arrow.Record, error) {
	return df.GetEngineFrame().Head(ctx, n)
}
