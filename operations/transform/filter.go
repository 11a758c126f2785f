package transform

import (
	"context"

	"github.com/adatao/ddf"
)

// Filter defers a row filter over a boolean SQL condition.
func Filter(condition string) ddf.Transform {
	return ddf.Transform{
		Kind:        ddf.FilterTransform,
		Description: "filter(" + condition + ")",
		Engine: func(ctx context.Context, _ ddf.Engine, frame ddf.EngineFrame) (ddf.EngineFrame, error) {
			return frame.Filter(ctx, condition)
		},
	}
}
