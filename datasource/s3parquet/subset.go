package s3parquet

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/adatao/ddf"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/internal/pieceio"
)

// Subset returns a handle over the named pieces, carrying this handle's
// transform chain. No sub-paths, or every sub-path, returns this handle
// unchanged. A single piece re-roots the handle at the piece's file without
// copying; several pieces are copied server-side into a fresh
// temporary-directory dataset.
func (ds *Dataset) Subset(ctx context.Context, subPaths ...string) (*Dataset, error) {
	if len(subPaths) == 0 {
		return ds, nil
	}
	inventory := make(map[string]bool, ds.NPieces())
	for _, sp := range ds.entry.pieceSubPaths {
		inventory[sp] = true
	}
	requested := make([]string, 0, len(subPaths))
	seen := make(map[string]bool, len(subPaths))
	for _, sp := range subPaths {
		if !inventory[sp] {
			return nil, ddferrors.PieceNotFoundError{Path: ds.path, SubPath: sp}
		}
		if !seen[sp] {
			seen[sp] = true
			requested = append(requested, sp)
		}
	}
	if len(requested) == ds.NPieces() {
		return ds, nil
	}
	if len(requested) == 1 {
		return ds.reopenAt(ctx, ds.path+"/"+requested[0])
	}
	subPaths = requested

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	dst := filepath.ToSlash(filepath.Join(ds.opts.TempDir, id.String()))
	msg := fmt.Sprintf("Copying %d piece(s) of %s to %s...", len(subPaths), ds.path, dst)
	ds.opts.Logger.Infof(msg)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ds.opts.ReadWorkers)
	for _, sp := range subPaths {
		g.Go(func() error {
			return ds.opts.Store.Copy(gctx, ds.path+"/"+sp, dst+"/"+sp)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	ds.opts.Logger.Infof("%s done!  <%s>", msg, time.Since(start).Round(time.Millisecond))
	return ds.reopenAt(ctx, dst)
}

// reopenAt opens a derived handle at path and replays this handle's chain
// onto it. The derived handle keeps this handle's alias, column roles and
// thresholds but none of its profiling caches.
func (ds *Dataset) reopenAt(ctx context.Context, path string) (*Dataset, error) {
	opts := *ds.opts
	opts.Refresh = false
	child, err := Open(ctx, path, &opts)
	if err != nil {
		return nil, err
	}
	child.iCol, child.dCol, child.tCol = ds.iCol, ds.dCol, ds.tCol
	child.alias = ds.alias
	if len(ds.transforms) == 0 {
		return child, nil
	}
	frame, err := applyChain(ctx, child.opts.Engine, child.initFrame, ds.transforms, 0, child.path, child.opts.Logger)
	if err != nil {
		return nil, err
	}
	child.frame = frame
	child.transforms = append([]ddf.Transform{}, ds.transforms...)
	child.cache.mu.Lock()
	child.cache.schema = frame.Schema()
	child.cache.nRows = -1
	child.cache.mu.Unlock()
	return child, nil
}

// PartitionFilter selects pieces by one partition key parsed from their
// sub-paths. Either In or the From/To range is consulted, never both.
type PartitionFilter struct {
	Col string
	// From and To bound the key's value inclusively. An empty bound is open.
	From string
	To   string
	// In lists the key's allowed values. A non-empty In wins over From/To.
	In []string
}

// Between filters a partition key to an inclusive range.
func Between(col string, from string, to string) PartitionFilter {
	return PartitionFilter{Col: col, From: from, To: to}
}

// OneOf filters a partition key to a set of values.
func OneOf(col string, values ...string) PartitionFilter {
	return PartitionFilter{Col: col, In: values}
}

func (f PartitionFilter) String() string {
	if len(f.In) > 0 {
		return fmt.Sprintf("%s in (%s)", f.Col, strings.Join(f.In, ", "))
	}
	return fmt.Sprintf("%s between [%s] and [%s]", f.Col, f.From, f.To)
}

func (f PartitionFilter) matches(value string) bool {
	if len(f.In) > 0 {
		for _, v := range f.In {
			if v == value {
				return true
			}
		}
		return false
	}
	if f.From != "" && comparePartitionValues(value, f.From) < 0 {
		return false
	}
	if f.To != "" && comparePartitionValues(value, f.To) > 0 {
		return false
	}
	return true
}

// FilterByPartitionKeys returns the subset of pieces whose sub-path
// partition keys satisfy every filter. Filters naming keys absent from the
// piece sub-paths are ignored. Eliminating every piece is an error.
func (ds *Dataset) FilterByPartitionKeys(ctx context.Context, filters ...PartitionFilter) (*Dataset, error) {
	if len(ds.entry.pieceSubPaths) == 0 {
		return ds, nil
	}
	sample := ds.entry.pieceSubPaths[0]
	active := filters[:0:0]
	for _, f := range filters {
		if strings.Contains(sample, f.Col+"=") {
			active = append(active, f)
		} else {
			ds.opts.Logger.Debugf("Partition filter %q names no partition key of %s; ignored", f, ds.path)
		}
	}
	if len(active) == 0 {
		return ds, nil
	}

	var matched []string
	for _, sp := range ds.entry.pieceSubPaths {
		kvs := pieceio.PartitionKeyValues(sp)
		ok := true
		for _, f := range active {
			v, found := lookupKey(kvs, f.Col)
			if !found || !f.matches(v) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, sp)
		}
	}
	if len(matched) == 0 {
		rendered := make([]string, len(active))
		for i, f := range active {
			rendered[i] = f.String()
		}
		return nil, ddferrors.NoPiecesMatchedError{Path: ds.path, Criteria: strings.Join(rendered, " and ")}
	}
	return ds.Subset(ctx, matched...)
}

func lookupKey(kvs []pieceio.KV, col string) (string, bool) {
	for _, kv := range kvs {
		if kv.Key == col {
			return kv.Value, true
		}
	}
	return "", false
}

// comparePartitionValues orders two partition key values, numerically when
// both parse as numbers, by calendar when both parse as dates, and by bytes
// otherwise.
func comparePartitionValues(a, b string) int {
	if fa, errA := strconv.ParseFloat(a, 64); errA == nil {
		if fb, errB := strconv.ParseFloat(b, 64); errB == nil {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if dateLike(a) && dateLike(b) {
		ta, errA := dateparse.ParseAny(a)
		tb, errB := dateparse.ParseAny(b)
		if errA == nil && errB == nil {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			}
			return 0
		}
	}
	return strings.Compare(a, b)
}

func dateLike(s string) bool {
	return len(s) >= 6 && (strings.Contains(s, "-") || strings.Contains(s, "/"))
}

// Split partitions the dataset's pieces into disjoint subsets sized
// proportionally to the normalized weights, covering every piece exactly
// once. Piece assignment shuffles deterministically per dataset path, so
// repeated splits of one dataset agree. Fewer than two weights return the
// handle itself.
func (ds *Dataset) Split(ctx context.Context, weights ...float64) ([]*Dataset, error) {
	if len(weights) < 2 {
		return []*Dataset{ds}, nil
	}
	total := 0.0
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("Split weight %v is negative", w)
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("Split weights must sum to a positive number")
	}
	nPieces := ds.NPieces()
	seed := ds.opts.SampleSeed
	if seed == 0 {
		seed = int64(xxhash.Sum64String(ds.path))
	}
	rng := rand.New(rand.NewSource(seed))
	shuffled := ds.PieceSubPaths()
	rng.Shuffle(nPieces, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	out := make([]*Dataset, 0, len(weights))
	cumu := 0.0
	lo := 0
	for i, w := range weights {
		cumu += w / total
		hi := int(math.Round(cumu * float64(nPieces)))
		if i == len(weights)-1 {
			hi = nPieces
		}
		if hi <= lo {
			return nil, ddferrors.EmptySplitSegmentError{NPieces: nPieces, NWeights: len(weights)}
		}
		sub, err := ds.Subset(ctx, shuffled[lo:hi]...)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
		lo = hi
	}
	return out, nil
}
