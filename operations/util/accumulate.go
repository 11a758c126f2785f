package util

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/adatao/ddf"
)

// Accumulate folds update over every record of a DataFrame, releasing each
// record after use. Statistics accumulators feed on full datasets this way
// without holding more than one partition in memory at a time.
func Accumulate(ctx context.Context, df ddf.DataFrame, update func(rec arrow.Record) error) error {
	recs, err := df.GetEngineFrame().Collect(ctx)
	if err != nil {
		return err
	}
	var failed error
	for _, rec := range recs {
		if failed == nil {
			failed = update(rec)
		}
		rec.Release()
	}
	return failed
}
