package ddf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Name prefixes for derived preparation columns. Output columns never shadow
// their originals; downstream consumers select either the raw or the prepared
// name.
const (
	NullFillPrefix  = "__NullFill__"
	CatIdxPrefix    = "__CatIdx__"
	OHEPrefix       = "__OHE__"
	StdSclPrefix    = "__StdScl__"
	MaxAbsSclPrefix = "__MaxAbsScl__"
	MinMaxSclPrefix = "__MinMaxScl__"
	PrepSuffix      = "__"
)

// Plan file names persisted under a Dataset's temp directory.
const (
	NullFillPlanFileName = "nullFillPlan.json"
	PrepPlanFileName     = "prepPlan.json"
)

// NullFillMethod selects the statistic used to fill a column's nulls.
type NullFillMethod string

// Null-fill methods. Mean, Median, Min and Max are computed over the
// representative sample; Const uses a caller-supplied value.
const (
	FillWithMean   NullFillMethod = "mean"
	FillWithMedian NullFillMethod = "median"
	FillWithMin    NullFillMethod = "min"
	FillWithMax    NullFillMethod = "max"
	FillWithConst  NullFillMethod = "const"
)

// NullFillSpec fills one column's nulls into a derived output column.
// Exactly one of NumValue, StrValue, BoolValue is set, according to the
// column's type.
type NullFillSpec struct {
	Col       string         `json:"col"`
	OutCol    string         `json:"outCol"`
	Method    NullFillMethod `json:"method"`
	NumValue  *float64       `json:"numValue,omitempty"`
	StrValue  *string        `json:"strValue,omitempty"`
	BoolValue *bool          `json:"boolValue,omitempty"`
}

// NullFillPlan is a deterministic set of per-column null fills. Applying the
// same plan to the same rows always yields the same values, no matter which
// engine or local code path applies it.
type NullFillPlan struct {
	Specs []NullFillSpec `json:"specs"`
}

// OutputCols returns the derived column names the plan produces, in order.
func (p *NullFillPlan) OutputCols() []string {
	cols := make([]string, len(p.Specs))
	for i, s := range p.Specs {
		cols[i] = s.OutCol
	}
	return cols
}

// SQLStatement renders the plan as the equivalent COALESCE projection. The
// statement is for manifests and logs; engines apply the typed plan directly.
func (p *NullFillPlan) SQLStatement() string {
	var b strings.Builder
	b.WriteString("SELECT *")
	for _, s := range p.Specs {
		b.WriteString(fmt.Sprintf(", COALESCE(%s, %s) AS %s", s.Col, s.valueLiteral(), s.OutCol))
	}
	b.WriteString(" FROM __THIS__")
	return b.String()
}

func (s *NullFillSpec) valueLiteral() string {
	switch {
	case s.NumValue != nil:
		return strconv.FormatFloat(*s.NumValue, 'g', -1, 64)
	case s.BoolValue != nil:
		return strconv.FormatBool(*s.BoolValue)
	case s.StrValue != nil:
		return "'" + strings.ReplaceAll(*s.StrValue, "'", "''") + "'"
	}
	return "NULL"
}

// Scaler selects the numerical scaling applied by a NumPrepSpec.
type Scaler string

// Scalers. The zero value means no scaling beyond null filling.
const (
	NoScaler       Scaler = ""
	StandardScaler Scaler = "standard"
	MaxAbsScaler   Scaler = "maxabs"
	MinMaxScaler   Scaler = "minmax"
)

// CatPrepSpec encodes one categorical column into integer level indices.
// Levels are canonical string renderings ordered most-frequent-first; a value
// outside Levels (including null) maps to index len(Levels). When OHE is set,
// one 0/1 indicator column per level accompanies the index column, with the
// out-of-levels bucket encoded as all zeros.
type CatPrepSpec struct {
	Col    string   `json:"col"`
	OutCol string   `json:"outCol"`
	Levels []string `json:"levels"`
	OHE    bool     `json:"ohe,omitempty"`
}

// OHECols returns the indicator column names, or nil if OHE is off.
func (c *CatPrepSpec) OHECols() []string {
	if !c.OHE {
		return nil
	}
	cols := make([]string, len(c.Levels))
	for i := range c.Levels {
		cols[i] = OHEPrefix + c.Col + PrepSuffix + strconv.Itoa(i)
	}
	return cols
}

// NumPrepSpec fills then scales one numerical column. The statistics are
// frozen in when the plan is computed, so application never re-derives them.
type NumPrepSpec struct {
	Col       string  `json:"col"`
	OutCol    string  `json:"outCol"`
	FillValue float64 `json:"fillValue"`
	Scaler    Scaler  `json:"scaler,omitempty"`
	Mean      float64 `json:"mean,omitempty"`
	Std       float64 `json:"std,omitempty"`
	MaxAbs    float64 `json:"maxAbs,omitempty"`
	Min       float64 `json:"min,omitempty"`
	Max       float64 `json:"max,omitempty"`
}

// PrepPlan is a deterministic feature-preparation plan computed from a
// representative sample and applied to full data.
type PrepPlan struct {
	Cats []CatPrepSpec `json:"cats"`
	Nums []NumPrepSpec `json:"nums"`
}

// CatOrigToPrepCol maps each categorical source column to its prepared column.
func (p *PrepPlan) CatOrigToPrepCol() map[string]string {
	m := make(map[string]string, len(p.Cats))
	for _, c := range p.Cats {
		m[c.Col] = c.OutCol
	}
	return m
}

// NumOrigToPrepCol maps each numerical source column to its prepared column.
func (p *PrepPlan) NumOrigToPrepCol() map[string]string {
	m := make(map[string]string, len(p.Nums))
	for _, n := range p.Nums {
		m[n.Col] = n.OutCol
	}
	return m
}

// OutputCols returns the derived column names the plan produces, cats first.
// Each OHE cat contributes its index column followed by its indicators.
func (p *PrepPlan) OutputCols() []string {
	cols := make([]string, 0, len(p.Cats)+len(p.Nums))
	for _, c := range p.Cats {
		cols = append(cols, c.OutCol)
		cols = append(cols, c.OHECols()...)
	}
	for _, n := range p.Nums {
		cols = append(cols, n.OutCol)
	}
	return cols
}

// SaveNullFillPlan persists plan as JSON under dir.
func SaveNullFillPlan(plan *NullFillPlan, dir string) error {
	return savePlanFile(filepath.Join(dir, NullFillPlanFileName), plan)
}

// SavePrepPlan persists plan as JSON under dir.
func SavePrepPlan(plan *PrepPlan, dir string) error {
	return savePlanFile(filepath.Join(dir, PrepPlanFileName), plan)
}

func savePlanFile(path string, plan interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadNullFillPlan reads a plan previously written by SaveNullFillPlan.
func LoadNullFillPlan(dir string) (*NullFillPlan, error) {
	data, err := os.ReadFile(filepath.Join(dir, NullFillPlanFileName))
	if err != nil {
		return nil, err
	}
	plan := &NullFillPlan{}
	for _, spec := range gjson.GetBytes(data, "specs").Array() {
		s := NullFillSpec{
			Col:    spec.Get("col").String(),
			OutCol: spec.Get("outCol").String(),
			Method: NullFillMethod(spec.Get("method").String()),
		}
		if v := spec.Get("numValue"); v.Exists() {
			f := v.Float()
			s.NumValue = &f
		}
		if v := spec.Get("strValue"); v.Exists() {
			str := v.String()
			s.StrValue = &str
		}
		if v := spec.Get("boolValue"); v.Exists() {
			b := v.Bool()
			s.BoolValue = &b
		}
		plan.Specs = append(plan.Specs, s)
	}
	return plan, nil
}

// LoadPrepPlan reads a plan previously written by SavePrepPlan.
func LoadPrepPlan(dir string) (*PrepPlan, error) {
	data, err := os.ReadFile(filepath.Join(dir, PrepPlanFileName))
	if err != nil {
		return nil, err
	}
	plan := &PrepPlan{}
	for _, cat := range gjson.GetBytes(data, "cats").Array() {
		c := CatPrepSpec{
			Col:    cat.Get("col").String(),
			OutCol: cat.Get("outCol").String(),
			OHE:    cat.Get("ohe").Bool(),
		}
		for _, lvl := range cat.Get("levels").Array() {
			c.Levels = append(c.Levels, lvl.String())
		}
		plan.Cats = append(plan.Cats, c)
	}
	for _, num := range gjson.GetBytes(data, "nums").Array() {
		plan.Nums = append(plan.Nums, NumPrepSpec{
			Col:       num.Get("col").String(),
			OutCol:    num.Get("outCol").String(),
			FillValue: num.Get("fillValue").Float(),
			Scaler:    Scaler(num.Get("scaler").String()),
			Mean:      num.Get("mean").Float(),
			Std:       num.Get("std").Float(),
			MaxAbs:    num.Get("maxAbs").Float(),
			Min:       num.Get("min").Float(),
			Max:       num.Get("max").Float(),
		})
	}
	return plan, nil
}
