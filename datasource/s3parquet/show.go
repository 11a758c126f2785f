package s3parquet

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/adatao/ddf/internal/util"
)

// DefaultShowNRows is how many rows Show renders for a non-positive count.
const DefaultShowNRows = 10

// Show renders up to n leading rows of the dataset as an aligned text table.
// Null cells render as "null".
func (ds *Dataset) Show(ctx context.Context, w io.Writer, n int64) error {
	if n <= 0 {
		n = DefaultShowNRows
	}
	rec, err := ds.frame.Head(ctx, n)
	if err != nil {
		return err
	}
	defer rec.Release()

	fields := rec.Schema().Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for row := 0; row < int(rec.NumRows()); row++ {
		cells := make([]string, len(header))
		for i := range header {
			s, ok := util.RenderCell(rec.Column(i), row)
			if !ok {
				s = "null"
			}
			cells[i] = s
		}
		table.Append(cells)
	}
	table.Render()
	return nil
}

// commas formats n with thousands separators.
func commas(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(s[i])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
