package s3parquet

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/operations/transform"
	"github.com/adatao/ddf/stats"
)

// PrepOptions tunes feature-preparation plan computation.
type PrepOptions struct {
	// ForceCat treats the named columns as categorical regardless of the
	// level-count heuristics; ForceNum keeps them numerical.
	ForceCat []string
	ForceNum []string
	// OHE adds one 0/1 indicator column per level to each categorical.
	OHE bool
	// Scaler selects numerical scaling. Defaults to standardization.
	Scaler ddf.Scaler
	// NoScale disables scaling: numerical columns are null-filled only.
	NoScale bool
	// FillMethod selects the null-fill statistic frozen into numerical
	// specs. Defaults to the sample mean.
	FillMethod ddf.NullFillMethod
	// OutlierResistant computes fill and scaling statistics over
	// outlier-clipped sample values.
	OutlierResistant bool
}

// Prep computes a feature-preparation plan from the representative sample
// and chains its application. Columns with sufficient data qualify as
// categorical when their distinct sample values fit the level-count cap, or
// when the capped level set covers enough of the sample; such columns gain
// an integer level-index column and optionally indicator columns. Remaining
// numerical columns gain a null-filled, scaled column with the statistics
// frozen into the plan. With no columns named, every possible feature
// content column is considered. The plan is saved under the dataset's plan
// directory and fully determines the application.
func (ds *Dataset) Prep(ctx context.Context, cols []string, opts *PrepOptions) (*Dataset, *ddf.PrepPlan, error) {
	if opts == nil {
		opts = &PrepOptions{}
	}
	scaler := opts.Scaler
	if opts.NoScale {
		scaler = ddf.NoScaler
	} else if scaler == "" {
		scaler = ddf.StandardScaler
	}
	fillMethod := opts.FillMethod
	if fillMethod == "" {
		fillMethod = ddf.FillWithMean
	}
	if len(cols) == 0 {
		cols = ds.PossibleFeatureContentCols()
	}
	forceCat := stringSet(opts.ForceCat)
	forceNum := stringSet(opts.ForceNum)
	maxNCats := ds.MaxNCats()
	minCoverage := ds.MinProportionByMaxNCats()

	msg := fmt.Sprintf("Planning preparation of %d column(s) of %s...", len(cols), ds.path)
	ds.opts.Logger.Infof(msg)
	start := time.Now()

	plan := &ddf.PrepPlan{}
	for _, col := range cols {
		t, err := ds.Type(col)
		if err != nil {
			return nil, nil, err
		}
		suff, err := ds.SuffNonNull(ctx, col)
		if err != nil {
			return nil, nil, err
		}
		if !suff {
			ds.opts.Logger.Debugf("%s holds insufficient data and is not prepared", col)
			continue
		}
		var levels []stats.Level
		isCat := false
		if !forceNum[col] && (forceCat[col] || t.IsPossibleCat()) {
			if levels, err = ds.Distinct(ctx, col); err != nil {
				return nil, nil, err
			}
			isCat = forceCat[col] || qualifiesAsCat(levels, maxNCats, minCoverage)
		}
		switch {
		case isCat && len(levels) > 0:
			if len(levels) > maxNCats {
				levels = levels[:maxNCats]
			}
			values := make([]string, len(levels))
			for i, lvl := range levels {
				values[i] = lvl.Value
			}
			plan.Cats = append(plan.Cats, ddf.CatPrepSpec{
				Col:    col,
				OutCol: ddf.CatIdxPrefix + col + ddf.PrepSuffix,
				Levels: values,
				OHE:    opts.OHE,
			})
		case t.IsNumeric():
			spec, err := ds.numPrepSpec(ctx, col, scaler, fillMethod, opts.OutlierResistant)
			if err != nil {
				return nil, nil, err
			}
			if spec == nil {
				continue
			}
			plan.Nums = append(plan.Nums, *spec)
		default:
			ds.opts.Logger.Debugf("%s is neither categorical nor numerical and is not prepared", col)
		}
	}
	ds.opts.Logger.Infof("%s done!  <%s>", msg, time.Since(start).Round(time.Millisecond))
	if len(plan.Cats) == 0 && len(plan.Nums) == 0 {
		return ds, plan, nil
	}
	if err := ds.savePlan(nil, plan); err != nil {
		return nil, nil, err
	}
	derived, err := ds.Transform(ctx, transform.Prep(plan))
	if err != nil {
		return nil, nil, err
	}
	return derived, plan, nil
}

// qualifiesAsCat applies the level-count heuristics: few enough distinct
// values, or a capped level set covering enough of the sample.
func qualifiesAsCat(levels []stats.Level, maxNCats int, minCoverage float64) bool {
	if len(levels) == 0 {
		return false
	}
	if len(levels) <= maxNCats {
		return true
	}
	covered := 0.0
	for _, lvl := range levels[:maxNCats] {
		covered += lvl.Proportion
	}
	return covered >= minCoverage
}

// numPrepSpec freezes one numerical column's fill value and scaling
// statistics into a spec. Columns whose statistics are undefined are
// skipped.
func (ds *Dataset) numPrepSpec(ctx context.Context, col string, scaler ddf.Scaler, fillMethod ddf.NullFillMethod, outlierRst bool) (*ddf.NumPrepSpec, error) {
	fill, err := ds.fillValue(ctx, col, fillMethod, outlierRst)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(fill) {
		ds.opts.Logger.Warnf("%s's %s fill value is undefined; not prepared", col, fillMethod)
		return nil, nil
	}
	spec := &ddf.NumPrepSpec{Col: col, FillValue: fill, Scaler: scaler}
	sampleStat := ds.SampleStat
	if outlierRst {
		sampleStat = ds.OutlierRstStat
	}
	switch scaler {
	case ddf.StandardScaler:
		spec.OutCol = ddf.StdSclPrefix + col + ddf.PrepSuffix
		if spec.Mean, err = sampleStat(ctx, col, StatMean); err != nil {
			return nil, err
		}
		if spec.Std, err = sampleStat(ctx, col, StatStd); err != nil {
			return nil, err
		}
	case ddf.MaxAbsScaler:
		spec.OutCol = ddf.MaxAbsSclPrefix + col + ddf.PrepSuffix
		mn, err := sampleStat(ctx, col, StatMin)
		if err != nil {
			return nil, err
		}
		mx, err := sampleStat(ctx, col, StatMax)
		if err != nil {
			return nil, err
		}
		spec.MaxAbs = math.Max(math.Abs(mn), math.Abs(mx))
	case ddf.MinMaxScaler:
		spec.OutCol = ddf.MinMaxSclPrefix + col + ddf.PrepSuffix
		if spec.Min, err = sampleStat(ctx, col, StatMin); err != nil {
			return nil, err
		}
		if spec.Max, err = sampleStat(ctx, col, StatMax); err != nil {
			return nil, err
		}
	case ddf.NoScaler:
		spec.OutCol = ddf.NullFillPrefix + col + ddf.PrepSuffix
	default:
		return nil, fmt.Errorf("Unknown scaler %q", scaler)
	}
	return spec, nil
}

func stringSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
