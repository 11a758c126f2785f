package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/internal/recordops"
	"github.com/adatao/ddf/internal/util"
)

// Prep defers applying a feature-preparation plan. The plan's level maps and
// scaling statistics are frozen, so the engine and the local replay produce
// identical derived columns.
func Prep(plan *ddf.PrepPlan) ddf.Transform {
	return ddf.Transform{
		Kind:         ddf.PrepTransform,
		Description:  prepDescription(plan),
		InheritNRows: true,
		Engine: func(ctx context.Context, _ ddf.Engine, frame ddf.EngineFrame) (ddf.EngineFrame, error) {
			return frame.Prep(ctx, plan)
		},
		Local: util.SafeLocalTransform(func(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
			return recordops.ApplyPrep(memory.DefaultAllocator, rec, plan)
		}),
	}
}

// prepDescription digests the plan so chains applying different plans never
// share a description.
func prepDescription(plan *ddf.PrepPlan) string {
	data, err := json.Marshal(plan)
	if err != nil {
		data = nil
	}
	return fmt.Sprintf("prep(%d cat, %d num, plan %x)", len(plan.Cats), len(plan.Nums), xxhash.Sum64(data))
}
