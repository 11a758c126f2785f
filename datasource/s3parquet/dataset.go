package s3parquet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/adatao/ddf"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/logging"
	"github.com/adatao/ddf/stats"
)

// Dataset is a DataFrame handle over a partitioned Parquet dataset. A handle
// is immutable: every operation returns a new handle sharing the dataset's
// registry entry and piece inventory, carrying the parent's transform chain
// plus the operation's own transform.
type Dataset struct {
	path                 string
	opts                 *Options
	entry                *registryEntry
	initFrame            ddf.EngineFrame
	frame                ddf.EngineFrame
	transforms           []ddf.Transform
	alias                string
	iCol, dCol, tCol     string
	reprSampleMinNPieces int

	cache  *datasetCache
	pieces *pieceHandles
}

var _ ddf.DataFrame = (*Dataset)(nil)

// datasetCache holds a handle's mutable profiling state: cached row count
// and type map, the representative sample, per-column statistics memos and
// the thresholds they were computed under.
type datasetCache struct {
	mu     sync.Mutex
	nRows  int64
	schema ddf.Schema

	reprSampleSize          int64
	minNonNullProportion    float64
	outlierTailProportion   float64
	maxNCats                int
	minProportionByMaxNCats float64

	reprSample           arrow.Record
	nonNullProportion    map[string]float64
	suffNonNull          map[string]bool
	suffNonNullThreshold map[string]float64
	distinct             map[string][]stats.Level
	quantiles            map[string]*stats.Quantiles
	sampleStats          map[string]float64
	outlierStats         map[string]float64
}

func newDatasetCache(opts *Options) *datasetCache {
	return &datasetCache{
		nRows:                   -1,
		reprSampleSize:          opts.ReprSampleSize,
		minNonNullProportion:    opts.MinNonNullProportion,
		outlierTailProportion:   opts.OutlierTailProportion,
		maxNCats:                opts.MaxNCats,
		minProportionByMaxNCats: opts.MinProportionByMaxNCats,
		nonNullProportion:       make(map[string]float64),
		suffNonNull:             make(map[string]bool),
		suffNonNullThreshold:    make(map[string]float64),
		distinct:                make(map[string][]stats.Level),
		quantiles:               make(map[string]*stats.Quantiles),
		sampleStats:             make(map[string]float64),
		outlierStats:            make(map[string]float64),
	}
}

// inherit builds the cache of a derived handle. Thresholds always carry
// over; the row count carries over only for row-preserving operations, and
// the representative sample with its dependent memos only for operations
// which provably preserve the cached frame's content.
func (c *datasetCache) inherit(sch ddf.Schema, inheritNRows bool, inheritCache bool) *datasetCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	child := &datasetCache{
		nRows:                   -1,
		schema:                  sch,
		reprSampleSize:          c.reprSampleSize,
		minNonNullProportion:    c.minNonNullProportion,
		outlierTailProportion:   c.outlierTailProportion,
		maxNCats:                c.maxNCats,
		minProportionByMaxNCats: c.minProportionByMaxNCats,
		nonNullProportion:       make(map[string]float64),
		suffNonNull:             make(map[string]bool),
		suffNonNullThreshold:    make(map[string]float64),
		distinct:                make(map[string][]stats.Level),
		quantiles:               make(map[string]*stats.Quantiles),
		sampleStats:             make(map[string]float64),
		outlierStats:            make(map[string]float64),
	}
	if inheritNRows {
		child.nRows = c.nRows
	}
	if inheritCache {
		if c.reprSample != nil {
			c.reprSample.Retain()
			child.reprSample = c.reprSample
		}
		for k, v := range c.nonNullProportion {
			child.nonNullProportion[k] = v
		}
		for k, v := range c.suffNonNull {
			child.suffNonNull[k] = v
		}
		for k, v := range c.suffNonNullThreshold {
			child.suffNonNullThreshold[k] = v
		}
		for k, v := range c.distinct {
			child.distinct[k] = v
		}
		for k, v := range c.quantiles {
			child.quantiles[k] = v
		}
		for k, v := range c.sampleStats {
			child.sampleStats[k] = v
		}
		for k, v := range c.outlierStats {
			child.outlierStats[k] = v
		}
	}
	return child
}

// Open returns a Dataset handle over the partitioned Parquet dataset at
// path. Repeated Opens of one path share discovery state through the
// Registry, so only the first pays for listing and loading.
func Open(ctx context.Context, path string, opts *Options) (*Dataset, error) {
	opts = ensureDefaultOptions(opts)
	ent, err := opts.Registry.resolve(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{
		path:                 ent.path,
		opts:                 opts,
		entry:                ent,
		initFrame:            ent.srcFrame,
		frame:                ent.srcFrame,
		alias:                opts.Alias,
		iCol:                 opts.ICol,
		dCol:                 opts.DCol,
		tCol:                 opts.TCol,
		reprSampleMinNPieces: min(opts.ReprSampleMinNPieces, len(ent.pieceSubPaths)),
		cache:                newDatasetCache(opts),
		pieces:               newPieceHandles(),
	}
	ds.cache.nRows = ent.srcNRows
	ds.cache.schema = ent.srcSchema
	return ds, nil
}

// Path returns the dataset's root path.
func (ds *Dataset) Path() string {
	return ds.path
}

// Alias returns the temporary table name used for SQL transforms.
func (ds *Dataset) Alias() string {
	if ds.alias == "" {
		return DefaultAlias
	}
	return ds.alias
}

// NPieces returns the number of piece files in the dataset.
func (ds *Dataset) NPieces() int {
	return len(ds.entry.pieceSubPaths)
}

// PieceSubPaths returns the dataset-relative piece paths, sorted.
func (ds *Dataset) PieceSubPaths() []string {
	return append([]string{}, ds.entry.pieceSubPaths...)
}

// PiecePaths returns the full piece paths, sorted.
func (ds *Dataset) PiecePaths() []string {
	paths := make([]string, len(ds.entry.pieceSubPaths))
	for i, sp := range ds.entry.pieceSubPaths {
		paths[i] = ds.path + "/" + sp
	}
	return paths
}

// PartitionedByDateOnly reports whether pieces sit one level deep under date
// partition directories.
func (ds *Dataset) PartitionedByDateOnly() bool {
	return ds.entry.partitionedByDateOnly
}

// ICol returns the identity column name.
func (ds *Dataset) ICol() string { return ds.iCol }

// DCol returns the date partition column name.
func (ds *Dataset) DCol() string { return ds.dCol }

// TCol returns the time column name, or "" when unset.
func (ds *Dataset) TCol() string { return ds.tCol }

// Transforms returns a copy of the handle's transform chain.
func (ds *Dataset) Transforms() []ddf.Transform {
	return append([]ddf.Transform{}, ds.transforms...)
}

// GetSchema returns the handle's cached type map.
func (ds *Dataset) GetSchema() ddf.Schema {
	ds.cache.mu.Lock()
	defer ds.cache.mu.Unlock()
	return ds.cache.schema
}

// GetEngineFrame returns the engine frame the handle's chain has produced.
func (ds *Dataset) GetEngineFrame() ddf.EngineFrame {
	return ds.frame
}

// Columns returns the handle's column names in schema order.
func (ds *Dataset) Columns() []string {
	return ds.GetSchema().ColumnNames()
}

// Type returns the engine type of one column.
func (ds *Dataset) Type(col string) (ddf.ColumnType, error) {
	return ds.GetSchema().ColumnType(col)
}

// Count returns the handle's row count, counting through the engine on first
// use and caching the result. Row-preserving operations hand the count down
// to derived handles, so chains of such operations never re-count.
func (ds *Dataset) Count(ctx context.Context) (int64, error) {
	ds.cache.mu.Lock()
	n := ds.cache.nRows
	ds.cache.mu.Unlock()
	if n >= 0 {
		return n, nil
	}
	msg := fmt.Sprintf("Counting rows of %s...", ds.path)
	ds.opts.Logger.Infof(msg)
	start := time.Now()
	n, err := ds.frame.Count(ctx)
	if err != nil {
		return 0, err
	}
	ds.opts.Logger.Infof("%s done!  <%s>", msg, time.Since(start).Round(time.Millisecond))
	ds.cache.mu.Lock()
	ds.cache.nRows = n
	ds.cache.mu.Unlock()
	return n, nil
}

// To chains ts onto this handle, satisfying the DataFrame interface.
func (ds *Dataset) To(ctx context.Context, ts ...ddf.Transform) (ddf.DataFrame, error) {
	return ds.Transform(ctx, ts...)
}

// Transform applies ts in order through the engine and returns the derived
// handle carrying the extended chain.
func (ds *Dataset) Transform(ctx context.Context, ts ...ddf.Transform) (*Dataset, error) {
	if len(ts) == 0 {
		return ds, nil
	}
	frame, err := applyChain(ctx, ds.opts.Engine, ds.frame, ts, len(ds.transforms), ds.path, ds.opts.Logger)
	if err != nil {
		return nil, err
	}
	chain := make([]ddf.Transform, 0, len(ds.transforms)+len(ts))
	chain = append(append(chain, ds.transforms...), ts...)
	inheritNRows, inheritCache := true, true
	for _, t := range ts {
		inheritNRows = inheritNRows && t.InheritNRows
		inheritCache = inheritCache && t.InheritCache
	}
	return ds.derive(frame, chain, inheritNRows, inheritCache), nil
}

// derive builds the handle for a transformed frame, re-reading the type map
// from the frame and inheriting cache state per the operation's flags.
func (ds *Dataset) derive(frame ddf.EngineFrame, chain []ddf.Transform, inheritNRows bool, inheritCache bool) *Dataset {
	return &Dataset{
		path:                 ds.path,
		opts:                 ds.opts,
		entry:                ds.entry,
		initFrame:            ds.initFrame,
		frame:                frame,
		transforms:           chain,
		alias:                ds.alias,
		iCol:                 ds.iCol,
		dCol:                 ds.dCol,
		tCol:                 ds.tCol,
		reprSampleMinNPieces: ds.reprSampleMinNPieces,
		cache:                ds.cache.inherit(frame.Schema(), inheritNRows, inheritCache),
		pieces:               ds.pieces,
	}
}

// applyChain applies ts to frame in order. The first failure is logged and
// wrapped with its absolute position in the chain, so a replayed chain's
// errors name the same transform index whichever handle replays it.
func applyChain(ctx context.Context, eng ddf.Engine, frame ddf.EngineFrame, ts []ddf.Transform, base int, path string, logger *logging.Logger) (ddf.EngineFrame, error) {
	for i, t := range ts {
		out, err := t.Engine(ctx, eng, frame)
		if err != nil {
			logger.Errorf("*** %s transform #%d (%s): %v ***", path, base+i, t, err)
			return nil, ddferrors.TransformError{Index: base + i, Description: t.String(), Path: path, Err: err}
		}
		frame = out
	}
	return frame, nil
}

// CopyToPath mirrors the dataset's piece files under dst, removing files
// under dst which have no counterpart here. Only the stored files move; the
// handle's transform chain is not materialized.
func (ds *Dataset) CopyToPath(ctx context.Context, dst string) error {
	msg := fmt.Sprintf("Syncing %s to %s...", ds.path, dst)
	ds.opts.Logger.Infof(msg)
	start := time.Now()
	if err := ds.opts.Store.Sync(ctx, ds.path, dst, true); err != nil {
		return err
	}
	ds.opts.Logger.Infof("%s done!  <%s>", msg, time.Since(start).Round(time.Millisecond))
	return nil
}

func (ds *Dataset) String() string {
	var b strings.Builder
	if ds.alias != "" {
		fmt.Fprintf(&b, "%q ", ds.alias)
	}
	fmt.Fprintf(&b, "%s-piece ", commas(int64(ds.NPieces())))
	ds.cache.mu.Lock()
	nRows := ds.cache.nRows
	sch := ds.cache.schema
	ds.cache.mu.Unlock()
	if nRows >= 0 {
		fmt.Fprintf(&b, "%s-row ", commas(nRows))
	}
	fmt.Fprintf(&b, "Dataset[%s", ds.path)
	if n := len(ds.transforms); n > 0 {
		fmt.Fprintf(&b, " + %d transform(s)", n)
	}
	b.WriteString("][")
	for i, col := range sch.ColumnNames() {
		if i > 0 {
			b.WriteString(", ")
		}
		switch col {
		case ds.iCol:
			b.WriteString("(iCol) ")
		case ds.dCol:
			b.WriteString("(dCol) ")
		case ds.tCol:
			b.WriteString("(tCol) ")
		}
		t, _ := sch.ColumnType(col)
		fmt.Fprintf(&b, "%s: %s", col, t)
	}
	b.WriteString("]")
	return b.String()
}
