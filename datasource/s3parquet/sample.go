package s3parquet

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/internal/recordops"
	"github.com/adatao/ddf/stats"
)

// Sample draws approximately n rows uniformly at random into one in-memory
// record. Rather than scanning the whole dataset, sampling reads a random
// choice of pieces, sized by the square root of the requested fraction, and
// draws evenly from each. Pieces which fail to load are logged and skipped;
// the sample is drawn from whatever pieces survive. A chain containing an
// operation with no local variant cannot be sampled. The caller releases the
// returned record.
func (ds *Dataset) Sample(ctx context.Context, n int64, opts *SampleOptions) (arrow.Record, error) {
	if err := ds.CheckLocallyReplayable(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &SampleOptions{}
	}
	total, err := ds.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 || n <= 0 {
		return nil, ddferrors.EmptySampleError{Path: ds.path}
	}

	nPieces := ds.NPieces()
	minN := opts.MinNPieces
	if minN <= 0 {
		minN = ds.reprSampleMinNPieces
	}
	nChosen := int(math.Ceil(math.Sqrt(float64(min(n, total))/float64(total)) * float64(nPieces)))
	if nChosen < minN {
		nChosen = minN
	}
	if opts.MaxNPieces > 0 && nChosen > opts.MaxNPieces {
		nChosen = opts.MaxNPieces
	}
	if nChosen > nPieces {
		nChosen = nPieces
	}

	seed := opts.Seed
	if seed == 0 {
		seed = ds.opts.SampleSeed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	subPaths := ds.PieceSubPaths()
	chosen := make([]string, 0, nChosen)
	for _, i := range rng.Perm(nPieces)[:nChosen] {
		chosen = append(chosen, subPaths[i])
	}
	perPiece := int(math.Ceil(float64(n) / float64(nChosen)))

	msg := fmt.Sprintf("Sampling ~%s rows from %d piece(s) of %s...", commas(n), nChosen, ds.path)
	ds.opts.Logger.Infof(msg)
	start := time.Now()

	sem := semaphore.NewWeighted(int64(ds.opts.ReadWorkers))
	samples := make([]arrow.Record, len(chosen))
	var (
		wg   sync.WaitGroup
		errM sync.Mutex
		merr *multierror.Error
	)
	for i, sp := range chosen {
		if err := sem.Acquire(ctx, 1); err != nil {
			errM.Lock()
			merr = multierror.Append(merr, err)
			errM.Unlock()
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			rec, err := ds.PieceRecord(ctx, sp)
			if err != nil {
				ds.opts.Logger.Errorf("*** %s cannot be loaded: %v ***", sp, err)
				errM.Lock()
				merr = multierror.Append(merr, fmt.Errorf("piece %s: %w", sp, err))
				errM.Unlock()
				return
			}
			defer rec.Release()
			pieceRNG := rand.New(rand.NewSource(seed ^ int64(xxhash.Sum64String(sp))))
			smp, err := recordops.SampleRows(ds.opts.Mem, rec, perPiece, pieceRNG)
			if err != nil {
				ds.opts.Logger.Errorf("*** %s cannot be sampled: %v ***", sp, err)
				errM.Lock()
				merr = multierror.Append(merr, fmt.Errorf("piece %s: %w", sp, err))
				errM.Unlock()
				return
			}
			samples[i] = smp
		}()
	}
	wg.Wait()

	alive := samples[:0:0]
	for _, s := range samples {
		if s != nil {
			alive = append(alive, s)
		}
	}
	if len(alive) == 0 {
		if err := merr.ErrorOrNil(); err != nil {
			return nil, err
		}
		return nil, ddferrors.EmptySampleError{Path: ds.path}
	}
	if failed := len(chosen) - len(alive); failed > 0 {
		ds.opts.Logger.Warnf("%d of %d sampled piece(s) of %s failed and were skipped", failed, len(chosen), ds.path)
	}
	union, err := recordops.UnionAll(ds.opts.Mem, alive)
	for _, s := range alive {
		s.Release()
	}
	if err != nil {
		return nil, err
	}
	if union.NumRows() == 0 {
		union.Release()
		return nil, ddferrors.EmptySampleError{Path: ds.path}
	}
	ds.opts.Logger.Infof("%s done! %s row(s)  <%s>", msg, commas(union.NumRows()), time.Since(start).Round(time.Millisecond))
	return union, nil
}

// ReprSample returns the handle's representative sample record, drawing it
// on first use. The caller releases the returned record.
func (ds *Dataset) ReprSample(ctx context.Context) (arrow.Record, error) {
	ds.cache.mu.Lock()
	rec := ds.cache.reprSample
	if rec != nil {
		rec.Retain()
	}
	ds.cache.mu.Unlock()
	if rec != nil {
		return rec, nil
	}
	if err := ds.assignReprSample(ctx); err != nil {
		return nil, err
	}
	ds.cache.mu.Lock()
	rec = ds.cache.reprSample
	rec.Retain()
	ds.cache.mu.Unlock()
	return rec, nil
}

// ReprSampleSize returns the representative sample's size: the configured
// target before the sample exists, the actual row count after. Asking for
// the size draws the sample.
func (ds *Dataset) ReprSampleSize(ctx context.Context) (int64, error) {
	ds.cache.mu.Lock()
	assigned := ds.cache.reprSample != nil
	n := ds.cache.reprSampleSize
	ds.cache.mu.Unlock()
	if assigned {
		return n, nil
	}
	if err := ds.assignReprSample(ctx); err != nil {
		return 0, err
	}
	ds.cache.mu.Lock()
	defer ds.cache.mu.Unlock()
	return ds.cache.reprSampleSize, nil
}

// SetReprSampleSize changes the target size and redraws the sample now.
func (ds *Dataset) SetReprSampleSize(ctx context.Context, n int64) error {
	ds.cache.mu.Lock()
	ds.cache.reprSampleSize = n
	ds.cache.mu.Unlock()
	return ds.assignReprSample(ctx)
}

// assignReprSample draws a fresh representative sample, records the actual
// sampled size as the authoritative sample size, and drops every per-column
// memo computed against the previous sample.
func (ds *Dataset) assignReprSample(ctx context.Context) error {
	ds.cache.mu.Lock()
	target := ds.cache.reprSampleSize
	ds.cache.mu.Unlock()
	rec, err := ds.Sample(ctx, target, &SampleOptions{MinNPieces: ds.reprSampleMinNPieces})
	if err != nil {
		return err
	}
	ds.cache.mu.Lock()
	if ds.cache.reprSample != nil {
		ds.cache.reprSample.Release()
	}
	ds.cache.reprSample = rec
	ds.cache.reprSampleSize = rec.NumRows()
	ds.cache.nonNullProportion = make(map[string]float64)
	ds.cache.suffNonNull = make(map[string]bool)
	ds.cache.suffNonNullThreshold = make(map[string]float64)
	ds.cache.distinct = make(map[string][]stats.Level)
	ds.cache.quantiles = make(map[string]*stats.Quantiles)
	ds.cache.sampleStats = make(map[string]float64)
	ds.cache.outlierStats = make(map[string]float64)
	ds.cache.mu.Unlock()
	return nil
}
