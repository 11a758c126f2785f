package transform

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/adatao/ddf"
)

func TestSelectFlags(t *testing.T) {
	all := Select("*")
	require.Equal(t, ddf.SelectTransform, all.Kind)
	require.True(t, all.InheritCache)
	require.True(t, all.InheritNRows)
	require.False(t, all.LocallyReplayable())

	bare := Select("a", "b")
	require.True(t, bare.InheritCache)

	derived := Select("*", "a + 1 AS b")
	require.False(t, derived.InheritCache)
	require.Equal(t, "select(*, a + 1 AS b)", derived.Description)
}

func TestSQLFlags(t *testing.T) {
	passthrough := SQL("SELECT * FROM df", "df")
	require.Equal(t, ddf.SQLTransform, passthrough.Kind)
	require.True(t, passthrough.InheritCache)
	require.True(t, passthrough.InheritNRows)

	filtered := SQL("SELECT * FROM df WHERE a > 1", "df")
	require.False(t, filtered.InheritCache)
	require.False(t, filtered.InheritNRows)

	narrowed := SQL("SELECT a, b FROM df", "df")
	require.False(t, narrowed.InheritCache)
	require.True(t, narrowed.InheritNRows)

	garbage := SQL("SELECT FROM WHERE", "df")
	require.False(t, garbage.InheritCache)
	require.False(t, garbage.InheritNRows)
}

func TestFilterAndWithColumnFlags(t *testing.T) {
	f := Filter("a > 1")
	require.Equal(t, ddf.FilterTransform, f.Kind)
	require.False(t, f.InheritCache)
	require.False(t, f.InheritNRows)
	require.False(t, f.LocallyReplayable())

	w := WithColumn("b", "a + 1")
	require.Equal(t, ddf.WithColumnTransform, w.Kind)
	require.False(t, w.InheritCache)
	require.True(t, w.InheritNRows)
	require.False(t, w.LocallyReplayable())
}

func TestProjectAndDropReplayLocally(t *testing.T) {
	mem := memory.DefaultAllocator
	sch := arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "b", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	ab := array.NewInt64Builder(mem)
	ab.AppendValues([]int64{1, 2}, nil)
	bb := array.NewInt64Builder(mem)
	bb.AppendValues([]int64{3, 4}, nil)
	cols := []arrow.Array{ab.NewArray(), bb.NewArray()}
	ab.Release()
	bb.Release()
	rec := array.NewRecord(sch, cols, 2)
	for _, c := range cols {
		c.Release()
	}
	defer rec.Release()

	p := Project("b")
	require.True(t, p.LocallyReplayable())
	require.True(t, p.InheritCache)
	out, err := p.Local(context.Background(), rec)
	require.Nil(t, err)
	defer out.Release()
	require.Equal(t, 1, out.Schema().NumFields())
	require.Equal(t, "b", out.Schema().Field(0).Name)

	d := Drop("a")
	require.True(t, d.LocallyReplayable())
	dropped, err := d.Local(context.Background(), rec)
	require.Nil(t, err)
	defer dropped.Release()
	require.Equal(t, 1, dropped.Schema().NumFields())
	require.Equal(t, "b", dropped.Schema().Field(0).Name)
}

func TestFillNAAndPrepDescriptions(t *testing.T) {
	v := 1.5
	fill := FillNA(&ddf.NullFillPlan{Specs: []ddf.NullFillSpec{
		{Col: "a", OutCol: "fa", Method: ddf.FillWithMean, NumValue: &v},
	}})
	require.Equal(t, ddf.FillNATransform, fill.Kind)
	require.True(t, fill.LocallyReplayable())
	require.Contains(t, fill.Description, "COALESCE(a, 1.5) AS fa")

	p1 := Prep(&ddf.PrepPlan{Cats: []ddf.CatPrepSpec{{Col: "c", OutCol: "pc", Levels: []string{"x"}}}})
	p2 := Prep(&ddf.PrepPlan{Cats: []ddf.CatPrepSpec{{Col: "c", OutCol: "pc", Levels: []string{"y"}}}})
	require.True(t, p1.LocallyReplayable())
	require.NotEqual(t, p1.Description, p2.Description)
}
