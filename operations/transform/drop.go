package transform

import (
	"context"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/internal/recordops"
	"github.com/adatao/ddf/internal/util"
)

// Drop defers removing the named columns. Absent names are ignored.
func Drop(colNames ...string) ddf.Transform {
	return ddf.Transform{
		Kind:         ddf.DropTransform,
		Description:  "drop(" + strings.Join(colNames, ", ") + ")",
		InheritCache: true,
		InheritNRows: true,
		Engine: func(ctx context.Context, _ ddf.Engine, frame ddf.EngineFrame) (ddf.EngineFrame, error) {
			return frame.Drop(ctx, colNames)
		},
		Local: util.SafeLocalTransform(func(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
			return recordops.Drop(rec, colNames)
		}),
	}
}
