package transform

import (
	"context"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/internal/recordops"
	"github.com/adatao/ddf/internal/util"
)

// Project defers narrowing to the named columns, in order. Row identity is
// untouched, so the parent's cached sample stays authoritative and the
// operation replays locally against piece records.
func Project(colNames ...string) ddf.Transform {
	return ddf.Transform{
		Kind:         ddf.ProjectTransform,
		Description:  "project(" + strings.Join(colNames, ", ") + ")",
		InheritCache: true,
		InheritNRows: true,
		Engine: func(ctx context.Context, _ ddf.Engine, frame ddf.EngineFrame) (ddf.EngineFrame, error) {
			return frame.Project(ctx, colNames)
		},
		Local: util.SafeLocalTransform(func(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
			return recordops.Project(rec, colNames)
		}),
	}
}
