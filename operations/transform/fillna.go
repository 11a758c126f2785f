package transform

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/internal/recordops"
	"github.com/adatao/ddf/internal/util"
)

// FillNA defers applying a null-fill plan. The plan's fill values are frozen,
// so the engine and the local replay produce identical derived columns. The
// parent's cached sample lacks the derived columns and is not inherited.
func FillNA(plan *ddf.NullFillPlan) ddf.Transform {
	return ddf.Transform{
		Kind:         ddf.FillNATransform,
		Description:  plan.SQLStatement(),
		InheritNRows: true,
		Engine: func(ctx context.Context, _ ddf.Engine, frame ddf.EngineFrame) (ddf.EngineFrame, error) {
			return frame.FillNulls(ctx, plan)
		},
		Local: util.SafeLocalTransform(func(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
			return recordops.FillNulls(memory.DefaultAllocator, rec, plan)
		}),
	}
}
