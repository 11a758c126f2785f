package s3parquet

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/operations/transform"
)

// FillNAOptions tunes null-fill plan computation.
type FillNAOptions struct {
	// Method selects the fill statistic for numerical columns. Defaults to
	// the sample mean.
	Method ddf.NullFillMethod
	// OutlierResistant computes the fill statistic over outlier-clipped
	// sample values.
	OutlierResistant bool
	// ConstNum, ConstStr and ConstBool supply fill values with FillWithConst,
	// by column type.
	ConstNum  float64
	ConstStr  string
	ConstBool bool
}

// FillNA computes a null-fill plan from the representative sample and chains
// its application: each planned column gains a derived output column holding
// its values with nulls replaced. Numerical columns fill with the configured
// statistic; string and boolean columns fill with their most frequent sample
// value. With no columns named, every fillable content column is planned.
// Columns with no sample data are skipped. The returned plan is saved under
// the dataset's plan directory and fully determines the application, so the
// engine and local replays of the chain agree cell for cell.
func (ds *Dataset) FillNA(ctx context.Context, cols []string, opts *FillNAOptions) (*Dataset, *ddf.NullFillPlan, error) {
	if opts == nil {
		opts = &FillNAOptions{}
	}
	method := opts.Method
	if method == "" {
		method = ddf.FillWithMean
	}
	if len(cols) == 0 {
		cols = ds.fillableContentCols()
	}
	msg := fmt.Sprintf("Planning null fills for %d column(s) of %s...", len(cols), ds.path)
	ds.opts.Logger.Infof(msg)
	start := time.Now()

	plan := &ddf.NullFillPlan{}
	for _, col := range cols {
		t, err := ds.Type(col)
		if err != nil {
			return nil, nil, err
		}
		p, err := ds.NonNullProportion(ctx, col)
		if err != nil {
			return nil, nil, err
		}
		if p == 0 {
			ds.opts.Logger.Warnf("%s has no data in the sample and is not filled", col)
			continue
		}
		spec := ddf.NullFillSpec{
			Col:    col,
			OutCol: ddf.NullFillPrefix + col + ddf.PrepSuffix,
			Method: method,
		}
		switch {
		case t.IsNumeric():
			var v float64
			if method == ddf.FillWithConst {
				v = opts.ConstNum
			} else if v, err = ds.fillValue(ctx, col, method, opts.OutlierResistant); err != nil {
				return nil, nil, err
			}
			if math.IsNaN(v) {
				ds.opts.Logger.Warnf("%s's %s fill value is undefined; not filled", col, method)
				continue
			}
			spec.NumValue = &v
		case t.IsBoolean():
			var v bool
			if method == ddf.FillWithConst {
				v = opts.ConstBool
			} else {
				levels, err := ds.Distinct(ctx, col)
				if err != nil {
					return nil, nil, err
				}
				if len(levels) == 0 {
					continue
				}
				v = levels[0].Value == "true"
			}
			spec.BoolValue = &v
		case t == ddf.String:
			var v string
			if method == ddf.FillWithConst {
				v = opts.ConstStr
			} else {
				levels, err := ds.Distinct(ctx, col)
				if err != nil {
					return nil, nil, err
				}
				if len(levels) == 0 {
					continue
				}
				v = levels[0].Value
			}
			spec.StrValue = &v
		default:
			ds.opts.Logger.Debugf("%s is %s-typed and is not filled", col, t)
			continue
		}
		plan.Specs = append(plan.Specs, spec)
	}
	ds.opts.Logger.Infof("%s done!  <%s>", msg, time.Since(start).Round(time.Millisecond))
	if len(plan.Specs) == 0 {
		return ds, plan, nil
	}
	if err := ds.savePlan(plan, nil); err != nil {
		return nil, nil, err
	}
	derived, err := ds.Transform(ctx, transform.FillNA(plan))
	if err != nil {
		return nil, nil, err
	}
	return derived, plan, nil
}

// fillableContentCols returns the content columns null filling knows how to
// fill: numerical, boolean and string columns.
func (ds *Dataset) fillableContentCols() []string {
	return ds.contentColsWhere(func(t ddf.ColumnType) bool {
		return t.IsNumeric() || t.IsBoolean() || t == ddf.String
	})
}

// fillValue computes the fill statistic for one numerical column.
func (ds *Dataset) fillValue(ctx context.Context, col string, method ddf.NullFillMethod, outlierRst bool) (float64, error) {
	var stat Stat
	switch method {
	case ddf.FillWithMean:
		stat = StatMean
	case ddf.FillWithMedian:
		stat = StatMedian
	case ddf.FillWithMin:
		stat = StatMin
	case ddf.FillWithMax:
		stat = StatMax
	default:
		return 0, fmt.Errorf("Unknown null-fill method %q", method)
	}
	if outlierRst {
		return ds.OutlierRstStat(ctx, col, stat)
	}
	return ds.SampleStat(ctx, col, stat)
}

// planDir returns the directory plans for this dataset are saved under.
func (ds *Dataset) planDir() string {
	return filepath.Join(ds.opts.TempDir, "prep", fmt.Sprintf("%016x", xxhash.Sum64String(ds.path)))
}

// savePlan persists a null-fill plan, a preparation plan or both under the
// dataset's plan directory.
func (ds *Dataset) savePlan(nullFill *ddf.NullFillPlan, prep *ddf.PrepPlan) error {
	dir := ds.planDir()
	if nullFill != nil {
		if err := ddf.SaveNullFillPlan(nullFill, dir); err != nil {
			return err
		}
	}
	if prep != nil {
		if err := ddf.SavePrepPlan(prep, dir); err != nil {
			return err
		}
	}
	ds.opts.Logger.Infof("Saved plan(s) to %s", dir)
	return nil
}
