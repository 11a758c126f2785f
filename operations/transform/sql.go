package transform

import (
	"context"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/expr"
)

// SQL defers a restricted SQL query, with the frame registered under alias.
// The query runs through the engine's dialect, so the result cannot serve
// local piece replay.
func SQL(query string, alias string) ddf.Transform {
	inheritCache := false
	inheritNRows := false
	if stmt, err := expr.ParseSelect(query); err == nil {
		inheritCache = stmt.SelectsAll() && stmt.Where == nil
		inheritNRows = stmt.Where == nil
	}
	return ddf.Transform{
		Kind:         ddf.SQLTransform,
		Description:  query,
		InheritCache: inheritCache,
		InheritNRows: inheritNRows,
		Engine: func(ctx context.Context, engine ddf.Engine, frame ddf.EngineFrame) (ddf.EngineFrame, error) {
			return engine.ExecSQL(ctx, query, alias, frame)
		},
	}
}
