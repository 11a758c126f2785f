package s3parquet

import (
	"context"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/columns"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/internal/pieceio"
)

// pieceHandles caches single-piece Dataset handles by sub-path. The map is
// shared down a lineage of derived handles, so a piece handle built for a
// parent is reused by its descendants.
type pieceHandles struct {
	mu sync.Mutex
	m  map[string]*Dataset
}

func newPieceHandles() *pieceHandles {
	return &pieceHandles{m: make(map[string]*Dataset)}
}

func (ds *Dataset) hasPiece(subPath string) bool {
	for _, sp := range ds.entry.pieceSubPaths {
		if sp == subPath {
			return true
		}
	}
	return false
}

// Piece returns a single-piece Dataset handle over one piece file, carrying
// this handle's full transform chain. Handles are cached by sub-path; when
// this handle's chain has grown since a piece handle was built, the cached
// handle is re-based on its source frame and the current chain is replayed
// in place.
func (ds *Dataset) Piece(ctx context.Context, subPath string) (*Dataset, error) {
	if !ds.hasPiece(subPath) {
		return nil, ddferrors.PieceNotFoundError{Path: ds.path, SubPath: subPath}
	}
	ds.pieces.mu.Lock()
	defer ds.pieces.mu.Unlock()
	child, ok := ds.pieces.m[subPath]
	if !ok {
		child, err := ds.openPiece(ctx, subPath)
		if err != nil {
			return nil, err
		}
		ds.pieces.m[subPath] = child
		return child, nil
	}
	if !sameChain(child.transforms, ds.transforms) {
		frame, err := applyChain(ctx, ds.opts.Engine, child.initFrame, ds.transforms, 0, child.path, ds.opts.Logger)
		if err != nil {
			return nil, err
		}
		child.frame = frame
		child.transforms = append([]ddf.Transform{}, ds.transforms...)
		child.cache.mu.Lock()
		child.cache.schema = frame.Schema()
		child.cache.nRows = -1
		child.cache.mu.Unlock()
	}
	return child, nil
}

// openPiece builds a fresh single-piece handle and replays this handle's
// chain onto it.
func (ds *Dataset) openPiece(ctx context.Context, subPath string) (*Dataset, error) {
	pieceOpts := *ds.opts
	pieceOpts.Refresh = false
	child, err := Open(ctx, ds.path+"/"+subPath, &pieceOpts)
	if err != nil {
		return nil, err
	}
	frame, err := applyChain(ctx, child.opts.Engine, child.initFrame, ds.transforms, 0, child.path, child.opts.Logger)
	if err != nil {
		return nil, err
	}
	child.frame = frame
	child.transforms = append([]ddf.Transform{}, ds.transforms...)
	child.cache.mu.Lock()
	child.cache.schema = frame.Schema()
	if len(ds.transforms) > 0 {
		child.cache.nRows = -1
	}
	child.cache.mu.Unlock()
	return child, nil
}

// sameChain reports whether two transform chains are the same sequence of
// operations, compared by kind and description.
func sameChain(a, b []ddf.Transform) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].Description != b[i].Description {
			return false
		}
	}
	return true
}

// CheckLocallyReplayable returns an error naming the first transform in the
// chain which has no local variant. Such a chain cannot serve local piece
// reads or sampling.
func (ds *Dataset) CheckLocallyReplayable() error {
	for i, t := range ds.transforms {
		if !t.LocallyReplayable() {
			return ddferrors.NotLocallyReplayableError{Index: i, Description: t.String()}
		}
	}
	return nil
}

// PieceRecord materializes one piece locally: the piece file is read into an
// Arrow record through the piece record cache, partition key columns are
// attached from the sub-path, time auxiliary columns are derived when a time
// column is configured, and the handle's transform chain is replayed against
// the record. The caller releases the returned record.
func (ds *Dataset) PieceRecord(ctx context.Context, subPath string) (arrow.Record, error) {
	if err := ds.CheckLocallyReplayable(); err != nil {
		return nil, err
	}
	if !ds.hasPiece(subPath) {
		return nil, ddferrors.PieceNotFoundError{Path: ds.path, SubPath: subPath}
	}
	rec, err := ds.rawPieceRecord(ctx, subPath)
	if err != nil {
		return nil, err
	}
	if ds.tCol != "" && len(rec.Schema().FieldIndices(ds.tCol)) > 0 {
		out, err := columns.GenAux(ds.opts.Mem, rec, ds.tCol)
		rec.Release()
		if err != nil {
			return nil, err
		}
		rec = out
	}
	for i, t := range ds.transforms {
		out, err := t.Local(ctx, rec)
		if err != nil {
			rec.Release()
			ds.opts.Logger.Errorf("*** %s transform #%d (%s): %v ***", subPath, i, t, err)
			return nil, ddferrors.TransformError{Index: i, Description: t.String(), Path: subPath, Err: err}
		}
		rec.Release()
		rec = out
	}
	return rec, nil
}

// rawPieceRecord reads one piece file into an Arrow record with partition
// key columns attached, serving repeat reads from the piece record cache.
// The caller releases the returned record.
func (ds *Dataset) rawPieceRecord(ctx context.Context, subPath string) (arrow.Record, error) {
	piecePath := ds.path + "/" + subPath
	if rec, err := ds.entry.pieceRecords.Get(piecePath); err == nil {
		rec.Retain()
		return rec, nil
	}
	data, err := ds.opts.Store.Get(ctx, piecePath)
	if err != nil {
		return nil, err
	}
	rec, err := pieceio.ReadBytes(ctx, data, &pieceio.ReadOptions{
		CoerceBinaryToString: true,
		PartitionValues:      pieceio.PartitionKeyValues(subPath),
		Mem:                  ds.opts.Mem,
	})
	if err != nil {
		return nil, err
	}
	ds.entry.pieceRecords.Add(piecePath, rec)
	return rec, nil
}
