package transform

import (
	"context"
	"strings"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/expr"
)

// Select defers a projection over SQL select expressions against the engine.
// Derived columns make the result unable to serve local piece replay, so the
// chain gap is marked rather than papered over.
func Select(exprs ...string) ddf.Transform {
	return ddf.Transform{
		Kind:         ddf.SelectTransform,
		Description:  "select(" + strings.Join(exprs, ", ") + ")",
		InheritCache: selectInheritsCache(exprs),
		InheritNRows: true,
		Engine: func(ctx context.Context, _ ddf.Engine, frame ddf.EngineFrame) (ddf.EngineFrame, error) {
			return frame.SelectExprs(ctx, exprs)
		},
	}
}

// selectInheritsCache reports whether every item is a star or a bare column,
// leaving the parent's cached sample authoritative for the result.
func selectInheritsCache(exprs []string) bool {
	if len(exprs) == 0 {
		return false
	}
	for _, src := range exprs {
		item, err := expr.ParseSelectItem(src)
		if err != nil {
			return false
		}
		switch item.(type) {
		case *expr.ColumnRef, *expr.Star:
		default:
			return false
		}
	}
	return true
}
