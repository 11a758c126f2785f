// Package localexec is an in-process Engine over Arrow records. Frames hold
// one materialized record per piece read, and every operation is a columnar
// kernel or a restricted SQL evaluation, so the tabular layer and its tests
// run without a cluster behind them.
package localexec

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/errgroup"

	"github.com/adatao/ddf"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/expr"
	"github.com/adatao/ddf/internal/pieceio"
	"github.com/adatao/ddf/internal/recordops"
	"github.com/adatao/ddf/internal/util"
	"github.com/adatao/ddf/logging"
)

// EngineOptions configures an in-process Engine.
type EngineOptions struct {
	// Mem allocates every record the engine materializes.
	Mem memory.Allocator
	// Logger receives load progress at DebugLevel.
	Logger *logging.Logger
	// ReadWorkers bounds concurrent piece reads during Load.
	ReadWorkers int
}

func ensureDefaultEngineOptions(opts *EngineOptions) *EngineOptions {
	if opts == nil {
		opts = &EngineOptions{}
	}
	if opts.Mem == nil {
		opts.Mem = memory.DefaultAllocator
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("localexec", logging.WarnLevel)
	}
	if opts.ReadWorkers < 1 {
		opts.ReadWorkers = 4
	}
	return opts
}

// Engine executes frames in the calling process.
type Engine struct {
	opts *EngineOptions
}

// NewEngine produces an in-process Engine.
func NewEngine(opts *EngineOptions) *Engine {
	return &Engine{opts: ensureDefaultEngineOptions(opts)}
}

// Load materializes the Parquet dataset rooted at path, one record per piece
// file. Hive-style partition-key directories become constant columns.
func (e *Engine) Load(ctx context.Context, path string, opts *ddf.LoadOptions) (ddf.EngineFrame, error) {
	start := time.Now()
	subPaths, err := discoverPieces(path)
	if err != nil {
		return nil, err
	}
	e.opts.Logger.Debugf("Loading %s: %d piece(s)", path, len(subPaths))

	workers := e.opts.ReadWorkers
	if opts != nil && opts.ReadWorkers > 0 {
		workers = opts.ReadWorkers
	}
	recs := make([]arrow.Record, len(subPaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sub := range subPaths {
		g.Go(func() error {
			full := path
			if sub != "" {
				full = filepath.Join(path, filepath.FromSlash(sub))
			}
			rec, err := pieceio.ReadFile(gctx, full, &pieceio.ReadOptions{
				CoerceBinaryToString: opts != nil && opts.CoerceBinaryToString,
				PartitionValues:      pieceio.PartitionKeyValues(sub),
				Mem:                  e.opts.Mem,
			})
			if err != nil {
				return fmt.Errorf("piece %s: %w", full, err)
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, rec := range recs {
			if rec != nil {
				rec.Release()
			}
		}
		return nil, err
	}
	aligned, err := recordops.AlignRecords(e.opts.Mem, recs)
	if err != nil {
		return nil, err
	}
	f := newFrame(e, aligned)
	rows, _ := f.Count(ctx)
	e.opts.Logger.Debugf("Loaded %s: %d rows <%s>", path, rows, time.Since(start).Round(time.Millisecond))
	return f, nil
}

// ExecSQL runs a restricted SELECT against frame, registered under alias.
func (e *Engine) ExecSQL(ctx context.Context, query string, alias string, fr ddf.EngineFrame) (ddf.EngineFrame, error) {
	f, ok := fr.(*frame)
	if !ok {
		return nil, fmt.Errorf("frame %T was not produced by this engine", fr)
	}
	stmt, err := expr.ParseSelect(query)
	if err != nil {
		return nil, err
	}
	if alias != "" && stmt.From != alias {
		return nil, ddferrors.UnsupportedSQLError{Query: query, Reason: "unknown frame " + stmt.From}
	}
	cur := f
	if stmt.Where != nil {
		filtered, err := cur.filterExpr(ctx, stmt.Where)
		if err != nil {
			return nil, err
		}
		cur = filtered
	}
	return cur.selectItems(ctx, stmt.Items, query)
}

// discoverPieces returns the dataset's piece sub-paths in lexical order. A
// bare Parquet file is a single-piece dataset with an empty sub-path.
func discoverPieces(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{""}, nil
	}
	var subPaths []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		sub := filepath.ToSlash(rel)
		if util.IsPiecePath(sub) {
			subPaths = append(subPaths, sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(subPaths) == 0 {
		return nil, ddferrors.NoPiecesFoundError{Path: path}
	}
	return subPaths, nil
}
