package transform

import (
	"context"

	"github.com/adatao/ddf"
)

// WithColumn defers adding one derived column computed by a SQL expression.
// Every other column passes through untouched.
func WithColumn(colName string, expression string) ddf.Transform {
	return ddf.Transform{
		Kind:         ddf.WithColumnTransform,
		Description:  "withColumn(" + colName + ", " + expression + ")",
		InheritNRows: true,
		Engine: func(ctx context.Context, _ ddf.Engine, frame ddf.EngineFrame) (ddf.EngineFrame, error) {
			return frame.WithColumn(ctx, colName, expression)
		},
	}
}
